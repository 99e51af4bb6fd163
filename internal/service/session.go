package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"autocare/backend/internal/domain"
	"autocare/backend/internal/store"
)

// ErrLotChoiceRequired is returned by AddProduct when the product's lots
// carry differing prices and the caller must pick one explicitly.
var ErrLotChoiceRequired = errors.New("multiple lot prices available, explicit lot choice required")

// Session is a single-operator order composition draft. It orchestrates lot
// resolution, pricing, the authorization gates and submission; the draft
// survives a failed submit so nothing has to be retyped. Sub-flow results
// (resolved clients, transferred vehicles, freshly registered owners) are
// handed back through SetClient/SetVehicle directly; there is no ambient
// broadcast path.
type Session struct {
	mu  sync.Mutex
	svc *Service

	client  *domain.Client
	vehicle *domain.Vehicle

	orderType          string
	odometerKM         int64
	serviceDescription string
	serviceChargeCents int64
	discountScope      string
	notes              string
	assignedTo         string
	items              []domain.OrderItem
	nextItemID         int64

	discountGate *FieldGate[float64]
	odometerGate *FieldGate[int64]

	challenges chan domain.AuthChallenge
}

func (s *Service) NewSession() *Session {
	return &Session{
		svc:           s,
		orderType:     domain.OrderTypeSale,
		discountScope: domain.DiscountScopeSale,
		discountGate:  NewFieldGate[float64](0),
		odometerGate:  NewFieldGate[int64](0),
		nextItemID:    1,
		// Two guarded fields, so pending challenges never exceed two; the
		// buffer keeps emission non-blocking regardless of consumer pace.
		challenges: make(chan domain.AuthChallenge, 8),
	}
}

// Challenges delivers authorization prompts for the presentation layer to
// render. Emission never blocks the session.
func (se *Session) Challenges() <-chan domain.AuthChallenge {
	return se.challenges
}

func (se *Session) emitChallenge(ch domain.AuthChallenge) {
	select {
	case se.challenges <- ch:
	default:
	}
}

func (se *Session) SetClient(client domain.Client) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.client = &client
	// Changing the subject invalidates any vehicle carried over from the
	// previous client.
	if se.vehicle != nil && se.vehicle.ClientID != client.ID {
		se.clearVehicleLocked()
	}
}

// SetVehicle attaches a vehicle and applies the type/vehicle convenience
// coupling.
func (se *Session) SetVehicle(vehicle domain.Vehicle) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.vehicle = &vehicle
	se.odometerGate = NewFieldGate[int64](vehicle.OdometerKM)
	se.odometerKM = vehicle.OdometerKM
	se.applyTypeLocked(DeriveOrderType(se.orderType, true))
}

func (se *Session) ClearVehicle() {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.clearVehicleLocked()
}

func (se *Session) clearVehicleLocked() {
	se.vehicle = nil
	se.odometerKM = 0
	se.odometerGate = NewFieldGate[int64](0)
	se.applyTypeLocked(DeriveOrderType(se.orderType, false))
}

// SetOrderType switches the order type explicitly. Service-bearing types
// need a vehicle; the downgrade to SALE_ONLY with a vehicle attached is
// allowed (the vehicle becomes informational).
func (se *Session) SetOrderType(orderType string) error {
	se.mu.Lock()
	defer se.mu.Unlock()

	if !validOrderType(orderType) {
		return fmt.Errorf("%w: unknown order type %q", store.ErrInvalidOrder, orderType)
	}
	if includesService(orderType) && se.vehicle == nil {
		return fmt.Errorf("%w: service orders require a vehicle", store.ErrInvalidOrder)
	}
	se.applyTypeLocked(orderType)
	return nil
}

// applyTypeLocked performs the type switch cleanup: incompatible items are
// dropped, the service component is cleared on a plain sale, and an
// out-of-scope discount falls back to the type's default scope.
func (se *Session) applyTypeLocked(orderType string) {
	if orderType == se.orderType {
		return
	}
	se.orderType = orderType
	se.items = FilterItemsForType(orderType, se.items)
	if !includesService(orderType) {
		se.serviceDescription = ""
		se.serviceChargeCents = 0
	}
	if !scopeAllowed(orderType, se.discountScope) {
		se.discountScope = defaultScopeForType(orderType)
	}
}

// AddProduct resolves lots for a product and adds an item when the pick is
// unambiguous. With a single lot, or several lots at one price, the oldest
// lot is applied automatically. Differing prices return the ranked options
// with ErrLotChoiceRequired; the oldest entry is the FIFO default but is
// never silently applied. A failed lot lookup prices the item from the
// catalog with no lot binding.
func (se *Session) AddProduct(ctx context.Context, productID int64, qty int64) (*domain.OrderItem, *domain.LotOptions, error) {
	if qty < 1 {
		return nil, nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidOrder)
	}

	opts, err := se.svc.ResolveProductLots(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	if opts.CatalogFallback || len(opts.Lots) == 0 {
		item := se.addItem(domain.OrderItem{
			ProductID:      productID,
			Description:    opts.Product.Name,
			ProductName:    opts.Product.Name,
			Qty:            qty,
			UnitPriceCents: opts.Product.CatalogPriceCents,
			Kind:           domain.ItemKindProduct,
		})
		return item, nil, nil
	}

	if opts.HasMultiplePrices && len(opts.Lots) > 1 {
		return nil, &opts, ErrLotChoiceRequired
	}

	lot := opts.Lots[0]
	item := se.addItem(domain.OrderItem{
		ProductID:      productID,
		LotID:          lot.ID,
		Description:    opts.Product.Name,
		ProductName:    opts.Product.Name,
		Qty:            qty,
		UnitPriceCents: lot.SalePriceCents,
		Kind:           domain.ItemKindProduct,
	})
	return item, nil, nil
}

// AddProductWithLot adds a product item priced from an explicitly chosen lot.
func (se *Session) AddProductWithLot(product domain.Product, lot domain.InventoryLot, qty int64) (*domain.OrderItem, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidOrder)
	}
	item := se.addItem(domain.OrderItem{
		ProductID:      product.ID,
		LotID:          lot.ID,
		Description:    product.Name,
		ProductName:    product.Name,
		Qty:            qty,
		UnitPriceCents: lot.SalePriceCents,
		Kind:           domain.ItemKindProduct,
	})
	return item, nil
}

// AddServiceItem adds a freeform service line.
func (se *Session) AddServiceItem(description string, qty int64, unitPriceCents int64) (*domain.OrderItem, error) {
	if description == "" {
		return nil, fmt.Errorf("%w: item description is required", store.ErrInvalidOrder)
	}
	if qty < 1 || unitPriceCents < 0 {
		return nil, fmt.Errorf("%w: invalid item quantity or price", store.ErrInvalidOrder)
	}
	item := se.addItem(domain.OrderItem{
		Description:    description,
		Qty:            qty,
		UnitPriceCents: unitPriceCents,
		Kind:           domain.ItemKindService,
	})
	return item, nil
}

func (se *Session) addItem(item domain.OrderItem) *domain.OrderItem {
	se.mu.Lock()
	defer se.mu.Unlock()

	item.ID = se.nextItemID
	se.nextItemID++
	item.TotalCents = item.Qty * item.UnitPriceCents
	se.items = append(se.items, item)
	added := item
	return &added
}

// UpdateItem edits an item's quantity and unit price; the total is always
// recomputed from the edit, never carried over.
func (se *Session) UpdateItem(itemID int64, qty int64, unitPriceCents int64) error {
	se.mu.Lock()
	defer se.mu.Unlock()

	if qty < 1 || unitPriceCents < 0 {
		return fmt.Errorf("%w: invalid item quantity or price", store.ErrInvalidOrder)
	}
	for i := range se.items {
		if se.items[i].ID == itemID {
			se.items[i].Qty = qty
			se.items[i].UnitPriceCents = unitPriceCents
			se.items[i].TotalCents = qty * unitPriceCents
			return nil
		}
	}
	return store.ErrNotFound
}

func (se *Session) RemoveItem(itemID int64) error {
	se.mu.Lock()
	defer se.mu.Unlock()

	for i := range se.items {
		if se.items[i].ID == itemID {
			se.items = append(se.items[:i], se.items[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (se *Session) SetDiscountScope(scope string) error {
	se.mu.Lock()
	defer se.mu.Unlock()

	if !scopeAllowed(se.orderType, scope) {
		return fmt.Errorf("%w: discount scope %s not allowed for %s orders", store.ErrInvalidOrder, scope, se.orderType)
	}
	se.discountScope = scope
	return nil
}

// SetDiscountPercent commits a discount value. A value above the configured
// ceiling rolls the field back to the ceiling, holds the attempted value
// aside and emits an authorization challenge. The applied value is returned.
func (se *Session) SetDiscountPercent(ctx context.Context, percent float64) float64 {
	maxPercent := se.svc.MaxDiscountPercent(ctx)

	se.mu.Lock()
	defer se.mu.Unlock()

	if percent < 0 {
		percent = 0
	}
	pending := se.discountGate.Commit(percent, maxPercent, percent > maxPercent)
	if pending {
		se.emitChallenge(domain.AuthChallenge{
			Field:     domain.GuardedFieldDiscount,
			Attempted: percent,
			Boundary:  maxPercent,
		})
	}
	return se.discountGate.Applied()
}

// AuthorizeDiscount validates a supervisor credential for a pending discount
// breach and, on success, applies the held-aside value. A bad credential
// leaves the gate pending so the operator can retry.
func (se *Session) AuthorizeDiscount(ctx context.Context, secret string) error {
	valid, err := se.svc.ValidateSupervisorCredential(ctx, secret)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("invalid supervisor credential")
	}

	se.mu.Lock()
	defer se.mu.Unlock()
	se.discountGate.Authorize()
	return nil
}

func (se *Session) CancelDiscountChallenge() {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.discountGate.Cancel()
}

// SetOdometer commits an odometer reading for the order. A value below the
// vehicle's last recorded reading rolls back to that reading and requires
// supervisor authorization.
func (se *Session) SetOdometer(km int64) int64 {
	se.mu.Lock()
	defer se.mu.Unlock()

	if se.vehicle == nil || km <= 0 {
		return se.odometerGate.Applied()
	}

	last := se.vehicle.OdometerKM
	pending := se.odometerGate.Commit(km, last, km < last)
	if pending {
		se.emitChallenge(domain.AuthChallenge{
			Field:     domain.GuardedFieldOdometer,
			Attempted: float64(km),
			Boundary:  float64(last),
		})
	}
	se.odometerKM = se.odometerGate.Applied()
	return se.odometerKM
}

func (se *Session) AuthorizeOdometer(ctx context.Context, secret string) error {
	valid, err := se.svc.ValidateSupervisorCredential(ctx, secret)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("invalid supervisor credential")
	}

	se.mu.Lock()
	defer se.mu.Unlock()
	se.odometerGate.Authorize()
	se.odometerKM = se.odometerGate.Applied()
	return nil
}

func (se *Session) CancelOdometerChallenge() {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.odometerGate.Cancel()
	se.odometerKM = se.odometerGate.Applied()
}

func (se *Session) SetServiceCharge(cents int64) {
	se.mu.Lock()
	defer se.mu.Unlock()
	if cents < 0 {
		cents = 0
	}
	se.serviceChargeCents = cents
}

func (se *Session) SetServiceDescription(description string) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.serviceDescription = description
}

func (se *Session) SetNotes(notes string) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.notes = notes
}

func (se *Session) SetAssignedTo(name string) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.assignedTo = name
}

func (se *Session) OrderType() string {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.orderType
}

func (se *Session) DiscountScope() string {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.discountScope
}

func (se *Session) Items() []domain.OrderItem {
	se.mu.Lock()
	defer se.mu.Unlock()
	items := make([]domain.OrderItem, len(se.items))
	copy(items, se.items)
	return items
}

// Totals recomputes the breakdown from the current draft state on every
// call; nothing is cached across edits.
func (se *Session) Totals() domain.OrderTotals {
	se.mu.Lock()
	defer se.mu.Unlock()
	return CalculateOrderTotals(se.orderType, se.items, se.serviceChargeCents, se.discountGate.Applied(), se.discountScope)
}

// Submit validates and persists the draft. On failure the draft is left
// untouched for retry.
func (se *Session) Submit(ctx context.Context) (domain.ServiceOrder, error) {
	se.mu.Lock()
	if se.client == nil {
		se.mu.Unlock()
		return domain.ServiceOrder{}, fmt.Errorf("%w: no client selected", store.ErrInvalidOrder)
	}

	order := domain.ServiceOrder{
		ClientID:           se.client.ID,
		Type:               se.orderType,
		OdometerKM:         se.odometerKM,
		ServiceDescription: se.serviceDescription,
		ServiceChargeCents: se.serviceChargeCents,
		DiscountPercent:    se.discountGate.Applied(),
		DiscountScope:      se.discountScope,
		Notes:              se.notes,
		AssignedTo:         se.assignedTo,
		Items:              make([]domain.OrderItem, len(se.items)),
	}
	copy(order.Items, se.items)
	// Draft item ids are session-local; the store assigns real ones.
	for i := range order.Items {
		order.Items[i].ID = 0
	}
	if se.vehicle != nil {
		order.VehicleID = se.vehicle.ID
	}
	se.mu.Unlock()

	return se.svc.CreateOrder(ctx, order)
}
