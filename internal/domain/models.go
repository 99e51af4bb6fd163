package domain

import "time"

// Order lifecycle states.
const (
	OrderStatusPending          = "PENDING"
	OrderStatusInProgress       = "IN_PROGRESS"
	OrderStatusAwaitingPart     = "AWAITING_PART"
	OrderStatusAwaitingApproval = "AWAITING_APPROVAL"
	OrderStatusCompleted        = "COMPLETED"
	OrderStatusCancelled        = "CANCELLED"
)

// Order types. A SALE_ONLY order never carries a service component and a
// SERVICE_ONLY order never carries product items.
const (
	OrderTypeSale           = "SALE_ONLY"
	OrderTypeService        = "SERVICE_ONLY"
	OrderTypeSaleAndService = "SALE_AND_SERVICE"
)

// Discount scopes.
const (
	DiscountScopeSale    = "SALE"
	DiscountScopeService = "SERVICE"
	DiscountScopeTotal   = "TOTAL"
)

// Line item kinds.
const (
	ItemKindProduct = "PRODUCT"
	ItemKindService = "SERVICE"
)

// Client kinds.
const (
	ClientKindIndividual = "INDIVIDUAL"
	ClientKindCompany    = "COMPANY"
)

// Stock movement kinds.
const (
	MovementOut = "OUT"
	MovementIn  = "IN"
)

// Shop settings stored in the repository.
const (
	SettingMaxDiscountPercent = "max_discount_percent"
	SettingSupervisorPassword = "supervisor_password"
	SettingDefaultMargin      = "default_profit_margin"
)

const DefaultMaxDiscountPercent = 15.0

type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Document  string    `json:"document,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Phone2    string    `json:"phone2,omitempty"`
	Whatsapp  string    `json:"whatsapp,omitempty"`
	Street    string    `json:"street,omitempty"`
	City      string    `json:"city,omitempty"`
	State     string    `json:"state,omitempty"`
	PostCode  string    `json:"post_code,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ClientUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Kind     *string `json:"kind,omitempty"`
	Document *string `json:"document,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Phone2   *string `json:"phone2,omitempty"`
	Whatsapp *string `json:"whatsapp,omitempty"`
	Street   *string `json:"street,omitempty"`
	City     *string `json:"city,omitempty"`
	State    *string `json:"state,omitempty"`
	PostCode *string `json:"post_code,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

type Vehicle struct {
	ID         int64     `json:"id"`
	ClientID   int64     `json:"client_id"`
	Plate      string    `json:"plate"`
	Make       string    `json:"make"`
	Model      string    `json:"model"`
	Year       int       `json:"year"`
	Color      string    `json:"color,omitempty"`
	Fuel       string    `json:"fuel,omitempty"`
	Chassis    string    `json:"chassis,omitempty"`
	OdometerKM int64     `json:"odometer_km"`
	Notes      string    `json:"notes,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type VehicleUpdateRequest struct {
	ClientID   *int64  `json:"client_id,omitempty"`
	Plate      *string `json:"plate,omitempty"`
	Make       *string `json:"make,omitempty"`
	Model      *string `json:"model,omitempty"`
	Year       *int    `json:"year,omitempty"`
	Color      *string `json:"color,omitempty"`
	Fuel       *string `json:"fuel,omitempty"`
	Chassis    *string `json:"chassis,omitempty"`
	OdometerKM *int64  `json:"odometer_km,omitempty"`
	Notes      *string `json:"notes,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type Product struct {
	ID                int64  `json:"id"`
	Code              string `json:"code"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Unit              string `json:"unit"`
	CatalogPriceCents int64  `json:"catalog_price_cents"`
	CostCents         int64  `json:"cost_cents"`
	StockQty          int64  `json:"stock_qty"`
	Active            bool   `json:"active"`
}

type InventoryLot struct {
	ID             int64     `json:"id"`
	ProductID      int64     `json:"product_id"`
	LotNumber      string    `json:"lot_number,omitempty"`
	RemainingQty   int64     `json:"remaining_qty"`
	SalePriceCents int64     `json:"sale_price_cents"`
	CostCents      int64     `json:"cost_cents"`
	EnteredAt      time.Time `json:"entered_at"`
	SupplierID     int64     `json:"supplier_id,omitempty"`
	Active         bool      `json:"active"`
}

// LotOptions is the result of resolving available lots for one product,
// ranked oldest entry first.
type LotOptions struct {
	Product           Product        `json:"product"`
	Lots              []InventoryLot `json:"lots"`
	HasMultiplePrices bool           `json:"has_multiple_prices"`
	// CatalogFallback is set when the lot lookup failed and the item should
	// be priced from the product catalog with no lot binding.
	CatalogFallback bool `json:"catalog_fallback,omitempty"`
}

type OrderItem struct {
	ID             int64  `json:"id,omitempty"`
	OrderID        int64  `json:"order_id,omitempty"`
	ProductID      int64  `json:"product_id,omitempty"`
	LotID          int64  `json:"lot_id,omitempty"`
	Description    string `json:"description"`
	Qty            int64  `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
	Kind           string `json:"kind"`
	Notes          string `json:"notes,omitempty"`
	ProductName    string `json:"product_name,omitempty"`
}

type ServiceOrder struct {
	ID                 int64       `json:"id"`
	Number             string      `json:"number"`
	ClientID           int64       `json:"client_id"`
	VehicleID          int64       `json:"vehicle_id,omitempty"`
	Type               string      `json:"type"`
	Status             string      `json:"status"`
	OdometerKM         int64       `json:"odometer_km,omitempty"`
	ServiceDescription string      `json:"service_description,omitempty"`
	ServiceChargeCents int64       `json:"service_charge_cents"`
	DiscountPercent    float64     `json:"discount_percent"`
	DiscountScope      string      `json:"discount_scope"`
	Notes              string      `json:"notes,omitempty"`
	AssignedTo         string      `json:"assigned_to,omitempty"`
	Items              []OrderItem `json:"items"`
	PartsCents         int64       `json:"parts_cents"`
	ServiceCents       int64       `json:"service_cents"`
	SubtotalCents      int64       `json:"subtotal_cents"`
	DiscountCents      int64       `json:"discount_cents"`
	TotalCents         int64       `json:"total_cents"`
	CancelReason       string      `json:"cancel_reason,omitempty"`
	OpenedAt           time.Time   `json:"opened_at"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	ClientName         string      `json:"client_name,omitempty"`
	ClientPhone        string      `json:"client_phone,omitempty"`
	VehiclePlate       string      `json:"vehicle_plate,omitempty"`
	VehicleMake        string      `json:"vehicle_make,omitempty"`
	VehicleModel       string      `json:"vehicle_model,omitempty"`
}

type OrderUpdateRequest struct {
	VehicleID          *int64       `json:"vehicle_id,omitempty"`
	Type               *string      `json:"type,omitempty"`
	OdometerKM         *int64       `json:"odometer_km,omitempty"`
	ServiceDescription *string      `json:"service_description,omitempty"`
	ServiceChargeCents *int64       `json:"service_charge_cents,omitempty"`
	DiscountPercent    *float64     `json:"discount_percent,omitempty"`
	DiscountScope      *string      `json:"discount_scope,omitempty"`
	Notes              *string      `json:"notes,omitempty"`
	AssignedTo         *string      `json:"assigned_to,omitempty"`
	Items              *[]OrderItem `json:"items,omitempty"`
}

type OrderStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type OrderSummary struct {
	ID           int64     `json:"id"`
	Number       string    `json:"number"`
	ClientID     int64     `json:"client_id"`
	ClientName   string    `json:"client_name,omitempty"`
	VehicleID    int64     `json:"vehicle_id,omitempty"`
	VehiclePlate string    `json:"vehicle_plate,omitempty"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	OpenedAt     time.Time `json:"opened_at"`
	TotalCents   int64     `json:"total_cents"`
}

type OrderFilter struct {
	ClientID  int64
	VehicleID int64
	Type      string
	Status    string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

type OrderStats struct {
	Total             int   `json:"total"`
	Pending           int   `json:"pending"`
	InProgress        int   `json:"in_progress"`
	AwaitingPart      int   `json:"awaiting_part"`
	AwaitingApproval  int   `json:"awaiting_approval"`
	Completed         int   `json:"completed"`
	Cancelled         int   `json:"cancelled"`
	RevenueCents      int64 `json:"revenue_cents"`
	RevenueMonthCents int64 `json:"revenue_month_cents"`
}

// OrderTotals is the financial breakdown computed from an order draft.
type OrderTotals struct {
	PartsCents    int64 `json:"parts_cents"`
	ServiceCents  int64 `json:"service_cents"`
	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	GrandCents    int64 `json:"grand_cents"`
}

type StockMovement struct {
	ID             string    `json:"id"`
	ProductID      int64     `json:"product_id"`
	OrderID        int64     `json:"order_id,omitempty"`
	Kind           string    `json:"kind"`
	Qty            int64     `json:"qty"`
	UnitPriceCents int64     `json:"unit_price_cents,omitempty"`
	UnitCostCents  int64     `json:"unit_cost_cents,omitempty"`
	Reason         string    `json:"reason"`
	Notes          string    `json:"notes,omitempty"`
	MovedAt        time.Time `json:"moved_at"`
}

type MaintenanceRecord struct {
	ID          string     `json:"id"`
	VehicleID   int64      `json:"vehicle_id"`
	OrderID     int64      `json:"order_id"`
	Kind        string     `json:"kind"`
	Description string     `json:"description"`
	OdometerKM  int64      `json:"odometer_km"`
	NextDueKM   int64      `json:"next_due_km,omitempty"`
	NextDueAt   *time.Time `json:"next_due_at,omitempty"`
	PerformedAt time.Time  `json:"performed_at"`
	TotalCents  int64      `json:"total_cents"`
	Notes       string     `json:"notes,omitempty"`
}

type MaintenanceSuggestion struct {
	Kind        string    `json:"kind"`
	LastKM      int64     `json:"last_km"`
	LastAt      time.Time `json:"last_at"`
	DueKM       int64     `json:"due_km"`
	KMRemaining int64     `json:"km_remaining"`
	Urgency     string    `json:"urgency"`
}

type Setting struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type SupervisorValidationRequest struct {
	Password string `json:"password"`
}

type SettingUpdateRequest struct {
	Value string `json:"value"`
}

type TransferOwnerRequest struct {
	NewClientID int64 `json:"new_client_id"`
}

type OdometerUpdateRequest struct {
	OdometerKM int64 `json:"odometer_km"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientMatch is the result of a document/phone search. The client's
// vehicles are embedded so the caller can offer them for selection.
type ClientMatch struct {
	Found    bool      `json:"found"`
	Client   *Client   `json:"client,omitempty"`
	Vehicles []Vehicle `json:"vehicles,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// VehicleMatch is the result of a plate search. The current owner and the
// owner's full vehicle list ride along.
type VehicleMatch struct {
	Found         bool                `json:"found"`
	Vehicle       *Vehicle            `json:"vehicle,omitempty"`
	Owner         *Client             `json:"owner,omitempty"`
	OwnerVehicles []Vehicle           `json:"owner_vehicles,omitempty"`
	Placeholder   *PlaceholderVehicle `json:"placeholder,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// PlaceholderVehicle marks a plate the operator typed for a vehicle that is
// not registered yet. ID 0 plus IsNew is the sentinel; the vehicle is only
// materialized after its owner is resolved.
type PlaceholderVehicle struct {
	ID    int64  `json:"id"`
	Plate string `json:"plate"`
	IsNew bool   `json:"is_new"`
}

// AuthChallenge is emitted by a composition session when a guarded field
// commit violates policy and a supervisor credential is required.
type AuthChallenge struct {
	Field     string  `json:"field"`
	Attempted float64 `json:"attempted"`
	Boundary  float64 `json:"boundary"`
}

// Guarded field names used in AuthChallenge.
const (
	GuardedFieldDiscount = "discount_percent"
	GuardedFieldOdometer = "odometer_km"
)
