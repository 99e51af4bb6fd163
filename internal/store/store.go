package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autocare/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidOrder      = errors.New("invalid order")
)

// ConflictError reports a uniqueness violation with enough detail for the
// operator to self-resolve (existing record id and owner name).
type ConflictError struct {
	Resource     string
	Field        string
	ExistingID   int64
	ExistingName string
	Active       bool
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s already registered (id=%d)", e.Resource, e.Field, e.ExistingID)
}

type Repository interface {
	// Clients.
	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	UpdateClient(ctx context.Context, id int64, req domain.ClientUpdateRequest) (*domain.Client, error)
	ListClients(ctx context.Context, search string, activeOnly bool, limit int, offset int) ([]domain.Client, error)
	FindClientByDocument(ctx context.Context, documentDigits string) (*domain.Client, error)
	FindClientByPhone(ctx context.Context, phoneDigits string) (*domain.Client, error)

	// Vehicles.
	CreateVehicle(ctx context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error)
	GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error)
	UpdateVehicle(ctx context.Context, id int64, req domain.VehicleUpdateRequest) (*domain.Vehicle, error)
	ListVehiclesByClient(ctx context.Context, clientID int64, activeOnly bool) ([]domain.Vehicle, error)
	FindVehicleByPlate(ctx context.Context, plateNormalized string) (*domain.Vehicle, error)
	TransferVehicleOwner(ctx context.Context, vehicleID int64, newClientID int64) (*domain.Vehicle, error)
	SetVehicleOdometer(ctx context.Context, vehicleID int64, km int64) error

	// Products and inventory lots.
	SearchProducts(ctx context.Context, term string, limit int) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListAvailableLots(ctx context.Context, productID int64) ([]domain.InventoryLot, error)
	ConsumeLotsFIFO(ctx context.Context, productID int64, qty int64) (avgUnitCostCents int64, err error)
	AdjustProductStock(ctx context.Context, productID int64, delta int64) error
	CreateStockMovement(ctx context.Context, movement domain.StockMovement) error
	SumStockMovements(ctx context.Context, orderID int64, productID int64, kind string) (int64, error)

	// Service orders.
	NextOrderNumber(ctx context.Context) (string, error)
	CreateOrder(ctx context.Context, order domain.ServiceOrder) (*domain.ServiceOrder, error)
	GetOrder(ctx context.Context, id int64) (*domain.ServiceOrder, error)
	UpdateOrder(ctx context.Context, order domain.ServiceOrder) (*domain.ServiceOrder, error)
	SetOrderStatus(ctx context.Context, id int64, status string, reason string, completedAt *time.Time) (*domain.ServiceOrder, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderSummary, error)
	GetOrderStats(ctx context.Context, now time.Time) (domain.OrderStats, error)

	// Shop settings.
	GetSetting(ctx context.Context, key string) (*domain.Setting, error)
	UpsertSetting(ctx context.Context, setting domain.Setting) (*domain.Setting, error)
	ListSettings(ctx context.Context) ([]domain.Setting, error)

	// Maintenance history.
	CreateMaintenanceRecord(ctx context.Context, record domain.MaintenanceRecord) error
	ListMaintenanceByVehicle(ctx context.Context, vehicleID int64) ([]domain.MaintenanceRecord, error)
	HasMaintenanceForOrder(ctx context.Context, orderID int64) (bool, error)

	// Audit trail.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	// Operator accounts.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
