package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"autocare/backend/internal/cache"
	"autocare/backend/internal/domain"
	"autocare/backend/internal/maintenance"
	"autocare/backend/internal/store"
	"autocare/backend/internal/xid"
)

// ErrSameOwner signals an ownership transfer targeting the vehicle's current
// owner; the caller must offer "keep current" or "pick another client"
// instead of performing a no-op transfer.
var ErrSameOwner = errors.New("vehicle already belongs to this client")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	settings    cache.SettingCache
	lots        cache.LotCache
	maintenance *maintenance.Engine
	settingsTTL time.Duration
}

func New(repo store.Repository, settingCache cache.SettingCache, lotCache cache.LotCache, settingsTTL time.Duration) *Service {
	if settingCache == nil {
		settingCache = cache.Noop{}
	}
	if lotCache == nil {
		lotCache = cache.Noop{}
	}
	if settingsTTL <= 0 {
		settingsTTL = 30 * time.Second
	}

	return &Service{
		repo:        repo,
		settings:    settingCache,
		lots:        lotCache,
		maintenance: maintenance.NewEngine(),
		settingsTTL: settingsTTL,
	}
}

// ---- Client/vehicle resolution ----

// SearchClientByTerm resolves a client by document or phone. Eleven-digit
// terms are ambiguous between a personal document and a mobile number: a
// valid check digit routes the first attempt to the document index, an
// invalid one to the phone index, and a miss retries the other index before
// giving up.
func (s *Service) SearchClientByTerm(ctx context.Context, term string) (domain.ClientMatch, error) {
	digits := normalizeDigits(term)
	if digits == "" {
		return domain.ClientMatch{Found: false, Message: "search term cannot be empty"}, nil
	}

	asDocument := true
	if len(digits) == 11 && !validCPF(digits) {
		asDocument = false
	}

	client, err := s.lookupClient(ctx, digits, asDocument)
	if err != nil {
		return domain.ClientMatch{}, err
	}
	if client == nil && len(digits) == 11 {
		client, err = s.lookupClient(ctx, digits, !asDocument)
		if err != nil {
			return domain.ClientMatch{}, err
		}
	}

	if client == nil {
		return domain.ClientMatch{Found: false, Message: "client not found"}, nil
	}

	vehicles, err := s.repo.ListVehiclesByClient(ctx, client.ID, true)
	if err != nil {
		return domain.ClientMatch{}, err
	}

	return domain.ClientMatch{Found: true, Client: client, Vehicles: vehicles}, nil
}

func (s *Service) lookupClient(ctx context.Context, digits string, asDocument bool) (*domain.Client, error) {
	var (
		client *domain.Client
		err    error
	)
	if asDocument {
		client, err = s.repo.FindClientByDocument(ctx, digits)
	} else {
		client, err = s.repo.FindClientByPhone(ctx, digits)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// SearchVehicleByPlate resolves a vehicle and its current owner. A vehicle
// whose owner record is missing or inactive is reported as not found rather
// than half-resolved.
func (s *Service) SearchVehicleByPlate(ctx context.Context, plate string) (domain.VehicleMatch, error) {
	normalized := normalizePlate(plate)
	if normalized == "" {
		return domain.VehicleMatch{Found: false, Message: "plate cannot be empty"}, nil
	}

	vehicle, err := s.repo.FindVehicleByPlate(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		// The typed plate rides along as a placeholder so the caller can
		// register the owner first and materialize the vehicle afterwards.
		return domain.VehicleMatch{
			Found:       false,
			Placeholder: &domain.PlaceholderVehicle{Plate: normalized, IsNew: true},
			Message:     "no vehicle registered with this plate",
		}, nil
	}
	if err != nil {
		return domain.VehicleMatch{}, err
	}

	owner, err := s.repo.GetClient(ctx, vehicle.ClientID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.VehicleMatch{Found: false, Message: "vehicle owner not found"}, nil
	}
	if err != nil {
		return domain.VehicleMatch{}, err
	}
	if !owner.Active {
		return domain.VehicleMatch{Found: false, Message: "vehicle owner is inactive"}, nil
	}

	ownerVehicles, err := s.repo.ListVehiclesByClient(ctx, owner.ID, true)
	if err != nil {
		return domain.VehicleMatch{}, err
	}

	return domain.VehicleMatch{
		Found:         true,
		Vehicle:       vehicle,
		Owner:         owner,
		OwnerVehicles: ownerVehicles,
	}, nil
}

func (s *Service) CreateClient(ctx context.Context, client domain.Client) (domain.Client, error) {
	client.Name = strings.TrimSpace(client.Name)
	client.Document = normalizeDigits(client.Document)
	client.Phone = normalizeDigits(client.Phone)
	client.Phone2 = normalizeDigits(client.Phone2)
	client.Whatsapp = normalizeDigits(client.Whatsapp)

	if client.Name == "" {
		return domain.Client{}, fmt.Errorf("%w: client name is required", store.ErrInvalidOrder)
	}
	if client.Phone == "" {
		return domain.Client{}, fmt.Errorf("%w: primary phone is required", store.ErrInvalidOrder)
	}
	if client.Kind == "" {
		client.Kind = domain.ClientKindIndividual
		if len(client.Document) == 14 {
			client.Kind = domain.ClientKindCompany
		}
	}
	if err := validateDocument(client.Kind, client.Document); err != nil {
		return domain.Client{}, err
	}

	if client.Document != "" {
		existing, err := s.repo.FindClientByDocument(ctx, client.Document)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, err
		}
		if existing != nil {
			return domain.Client{}, &store.ConflictError{
				Resource:     "client",
				Field:        "document",
				ExistingID:   existing.ID,
				ExistingName: existing.Name,
				Active:       existing.Active,
			}
		}
	}

	client.Active = true
	created, err := s.repo.CreateClient(ctx, client)
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "client_create", "client", strconv.FormatInt(created.ID, 10), fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) UpdateClient(ctx context.Context, id int64, req domain.ClientUpdateRequest) (domain.Client, error) {
	if req.Document != nil {
		digits := normalizeDigits(*req.Document)
		if digits != "" {
			existing, err := s.repo.FindClientByDocument(ctx, digits)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return domain.Client{}, err
			}
			if existing != nil && existing.ID != id {
				return domain.Client{}, &store.ConflictError{
					Resource:     "client",
					Field:        "document",
					ExistingID:   existing.ID,
					ExistingName: existing.Name,
					Active:       existing.Active,
				}
			}
		}
		req.Document = &digits
	}

	updated, err := s.repo.UpdateClient(ctx, id, req)
	if err != nil {
		return domain.Client{}, err
	}
	return *updated, nil
}

func (s *Service) GetClient(ctx context.Context, id int64) (domain.Client, error) {
	client, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func (s *Service) ListClients(ctx context.Context, search string, limit int, offset int) ([]domain.Client, error) {
	if limit < 1 || limit > 200 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListClients(ctx, strings.TrimSpace(search), true, limit, offset)
}

func (s *Service) CreateVehicle(ctx context.Context, vehicle domain.Vehicle) (domain.Vehicle, error) {
	vehicle.Plate = normalizePlate(vehicle.Plate)
	vehicle.Make = strings.TrimSpace(vehicle.Make)
	vehicle.Model = strings.TrimSpace(vehicle.Model)

	if vehicle.Make == "" || vehicle.Model == "" || vehicle.Year == 0 {
		return domain.Vehicle{}, fmt.Errorf("%w: make, model and year are required", store.ErrInvalidOrder)
	}
	if !validPlate(vehicle.Plate) {
		return domain.Vehicle{}, fmt.Errorf("%w: invalid plate format", store.ErrInvalidOrder)
	}
	if vehicle.OdometerKM < 0 {
		return domain.Vehicle{}, fmt.Errorf("%w: odometer cannot be negative", store.ErrInvalidOrder)
	}

	if _, err := s.repo.GetClient(ctx, vehicle.ClientID); err != nil {
		return domain.Vehicle{}, err
	}

	existing, err := s.repo.FindVehicleByPlate(ctx, vehicle.Plate)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.Vehicle{}, err
	}
	if existing != nil {
		return domain.Vehicle{}, s.plateConflict(ctx, existing)
	}

	vehicle.Active = true
	created, err := s.repo.CreateVehicle(ctx, vehicle)
	if err != nil {
		return domain.Vehicle{}, err
	}

	s.logAudit(ctx, "vehicle_create", "vehicle", strconv.FormatInt(created.ID, 10), fmt.Sprintf("plate=%s,client=%d", created.Plate, created.ClientID))
	return *created, nil
}

func (s *Service) GetVehicle(ctx context.Context, id int64) (domain.Vehicle, error) {
	vehicle, err := s.repo.GetVehicle(ctx, id)
	if err != nil {
		return domain.Vehicle{}, err
	}
	return *vehicle, nil
}

func (s *Service) UpdateVehicle(ctx context.Context, id int64, req domain.VehicleUpdateRequest) (domain.Vehicle, error) {
	if req.Plate != nil {
		normalized := normalizePlate(*req.Plate)
		if !validPlate(normalized) {
			return domain.Vehicle{}, fmt.Errorf("%w: invalid plate format", store.ErrInvalidOrder)
		}
		existing, err := s.repo.FindVehicleByPlate(ctx, normalized)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.Vehicle{}, err
		}
		if existing != nil && existing.ID != id {
			return domain.Vehicle{}, s.plateConflict(ctx, existing)
		}
		req.Plate = &normalized
	}
	if req.ClientID != nil {
		if _, err := s.repo.GetClient(ctx, *req.ClientID); err != nil {
			return domain.Vehicle{}, err
		}
	}

	updated, err := s.repo.UpdateVehicle(ctx, id, req)
	if err != nil {
		return domain.Vehicle{}, err
	}
	return *updated, nil
}

// plateConflict shapes a duplicate-plate error carrying the current owner's
// name so the operator can resolve the collision without a second lookup.
func (s *Service) plateConflict(ctx context.Context, existing *domain.Vehicle) *store.ConflictError {
	conflict := &store.ConflictError{
		Resource:   "vehicle",
		Field:      "plate",
		ExistingID: existing.ID,
		Active:     existing.Active,
	}
	if owner, err := s.repo.GetClient(ctx, existing.ClientID); err == nil {
		conflict.ExistingName = owner.Name
	}
	return conflict
}

func (s *Service) ListVehiclesByClient(ctx context.Context, clientID int64) ([]domain.Vehicle, error) {
	return s.repo.ListVehiclesByClient(ctx, clientID, true)
}

// TransferVehicleOwnership reassigns a vehicle to a new owner. Transfers to
// the current owner are refused with ErrSameOwner rather than applied as a
// silent no-op.
func (s *Service) TransferVehicleOwnership(ctx context.Context, vehicleID int64, newClientID int64) (domain.Vehicle, error) {
	vehicle, err := s.repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		return domain.Vehicle{}, err
	}
	if _, err := s.repo.GetClient(ctx, newClientID); err != nil {
		return domain.Vehicle{}, err
	}
	if vehicle.ClientID == newClientID {
		return domain.Vehicle{}, ErrSameOwner
	}

	previousOwner := vehicle.ClientID
	transferred, err := s.repo.TransferVehicleOwner(ctx, vehicleID, newClientID)
	if err != nil {
		return domain.Vehicle{}, err
	}

	s.logAudit(ctx, "vehicle_transfer", "vehicle", strconv.FormatInt(vehicleID, 10), fmt.Sprintf("from=%d,to=%d", previousOwner, newClientID))
	return *transferred, nil
}

// UpdateVehicleOdometer advances a vehicle's stored odometer. The stored
// reading is monotonic: an authorized rollback lives on the order that
// captured it, never on the vehicle record.
func (s *Service) UpdateVehicleOdometer(ctx context.Context, vehicleID int64, km int64) error {
	vehicle, err := s.repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		return err
	}
	if km < vehicle.OdometerKM {
		return fmt.Errorf("%w: odometer reading below current value", store.ErrInvalidOrder)
	}
	return s.repo.SetVehicleOdometer(ctx, vehicleID, km)
}

// ---- Lot allocation ----

// ResolveProductLots lists the available lots for a product oldest first.
// When the lot listing fails the product's catalog price is offered instead
// so item entry is never blocked by a transient lookup failure; the item is
// simply left unattributed to a lot.
func (s *Service) ResolveProductLots(ctx context.Context, productID int64) (domain.LotOptions, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.LotOptions{}, err
	}

	cacheKey := strconv.FormatInt(productID, 10)
	if cached, ok, err := s.lots.GetLots(ctx, cacheKey); err == nil && ok {
		return *cached, nil
	}

	lots, err := s.repo.ListAvailableLots(ctx, productID)
	if err != nil {
		log.Printf("[service] WARN: lot lookup failed for product %d, falling back to catalog price: %v", productID, err)
		return domain.LotOptions{Product: *product, CatalogFallback: true}, nil
	}

	opts := domain.LotOptions{
		Product:           *product,
		Lots:              lots,
		HasMultiplePrices: hasMultiplePrices(lots),
	}
	if err := s.lots.SetLots(ctx, cacheKey, &opts, 10*time.Second); err != nil {
		log.Printf("[service] WARN: failed to cache lots for product %d: %v", productID, err)
	}
	return opts, nil
}

// invalidateLotCache drops a product's cached lot listing after its lots
// change, so ResolveProductLots never serves already-consumed balances for
// the cache TTL.
func (s *Service) invalidateLotCache(ctx context.Context, productID int64) {
	if err := s.lots.InvalidateLots(ctx, strconv.FormatInt(productID, 10)); err != nil {
		log.Printf("[service] WARN: failed to invalidate lot cache for product %d: %v", productID, err)
	}
}

func hasMultiplePrices(lots []domain.InventoryLot) bool {
	if len(lots) < 2 {
		return false
	}
	first := lots[0].SalePriceCents
	for _, lot := range lots[1:] {
		if lot.SalePriceCents != first {
			return true
		}
	}
	return false
}

func (s *Service) SearchProducts(ctx context.Context, term string, limit int) ([]domain.Product, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.SearchProducts(ctx, strings.TrimSpace(term), limit)
}

// ---- Settings and supervisor credential ----

func (s *Service) GetSettingValue(ctx context.Context, key string) (string, error) {
	if val, ok, err := s.settings.GetSetting(ctx, key); err == nil && ok {
		return val, nil
	}

	setting, err := s.repo.GetSetting(ctx, key)
	if err != nil {
		return "", err
	}
	if err := s.settings.SetSetting(ctx, key, setting.Value, s.settingsTTL); err != nil {
		log.Printf("[service] WARN: failed to cache setting %s: %v", key, err)
	}
	return setting.Value, nil
}

func (s *Service) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	return s.repo.ListSettings(ctx)
}

// UpdateSetting writes a shop setting. Password-kind settings are stored as
// bcrypt hashes, never as plaintext. Admin only.
func (s *Service) UpdateSetting(ctx context.Context, key string, value string) (domain.Setting, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Setting{}, fmt.Errorf("admin role required")
	}

	existing, err := s.repo.GetSetting(ctx, key)
	if err != nil {
		return domain.Setting{}, err
	}

	setting := *existing
	if setting.Kind == "password" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
		if err != nil {
			return domain.Setting{}, err
		}
		setting.Value = string(hashed)
	} else {
		setting.Value = value
	}

	updated, err := s.repo.UpsertSetting(ctx, setting)
	if err != nil {
		return domain.Setting{}, err
	}
	if err := s.settings.InvalidateSetting(ctx, key); err != nil {
		log.Printf("[service] WARN: failed to invalidate setting cache %s: %v", key, err)
	}

	s.logAudit(ctx, "setting_update", "setting", key, "")
	return *updated, nil
}

// MaxDiscountPercent reads the discount ceiling applied by the
// authorization gate.
func (s *Service) MaxDiscountPercent(ctx context.Context) float64 {
	val, err := s.GetSettingValue(ctx, domain.SettingMaxDiscountPercent)
	if err != nil {
		return domain.DefaultMaxDiscountPercent
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil || pct < 0 {
		return domain.DefaultMaxDiscountPercent
	}
	return pct
}

// ValidateSupervisorCredential checks a supervisor override password against
// the stored bcrypt hash.
func (s *Service) ValidateSupervisorCredential(ctx context.Context, secret string) (bool, error) {
	if secret == "" {
		return false, nil
	}
	hash, err := s.GetSettingValue(ctx, domain.SettingSupervisorPassword)
	if err != nil {
		return false, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return false, nil
	}
	return true, nil
}

// ---- Service orders ----

func (s *Service) CreateOrder(ctx context.Context, order domain.ServiceOrder) (domain.ServiceOrder, error) {
	normalized, vehicle, err := s.validateOrder(ctx, order)
	if err != nil {
		return domain.ServiceOrder{}, err
	}

	number, err := s.repo.NextOrderNumber(ctx)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	normalized.Number = number
	normalized.Status = domain.OrderStatusPending
	if normalized.OpenedAt.IsZero() {
		normalized.OpenedAt = time.Now().UTC()
	}

	created, err := s.repo.CreateOrder(ctx, normalized)
	if err != nil {
		return domain.ServiceOrder{}, err
	}

	// Best effort: advance the vehicle odometer to the reading captured on
	// the order. A failure here never rolls back the created order.
	if vehicle != nil && created.OdometerKM > vehicle.OdometerKM {
		if err := s.repo.SetVehicleOdometer(ctx, vehicle.ID, created.OdometerKM); err != nil {
			log.Printf("[service] WARN: odometer sync failed for vehicle %d after order %s: %v", vehicle.ID, created.Number, err)
		}
	}

	s.logAudit(ctx, "order_create", "order", created.Number, fmt.Sprintf("client=%d,type=%s,total=%d", created.ClientID, created.Type, created.TotalCents))
	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (domain.ServiceOrder, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderSummary, error) {
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) GetOrderStats(ctx context.Context) (domain.OrderStats, error) {
	return s.repo.GetOrderStats(ctx, time.Now().UTC())
}

// UpdateOrder applies a partial edit to a non-terminal order and recomputes
// its totals. When the order's stock draw has already been applied, item
// quantity changes are reconciled against inventory per product delta.
func (s *Service) UpdateOrder(ctx context.Context, id int64, req domain.OrderUpdateRequest) (domain.ServiceOrder, error) {
	existing, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	if IsTerminalStatus(existing.Status) {
		return domain.ServiceOrder{}, fmt.Errorf("%w: order %s is %s", store.ErrInvalidOrder, existing.Number, existing.Status)
	}

	previousQty := productQuantities(existing.Items)

	updated := *existing
	if req.VehicleID != nil {
		updated.VehicleID = *req.VehicleID
	}
	if req.Type != nil {
		updated.Type = *req.Type
	}
	if req.OdometerKM != nil {
		updated.OdometerKM = *req.OdometerKM
	}
	if req.ServiceDescription != nil {
		updated.ServiceDescription = *req.ServiceDescription
	}
	if req.ServiceChargeCents != nil {
		updated.ServiceChargeCents = *req.ServiceChargeCents
	}
	if req.DiscountPercent != nil {
		updated.DiscountPercent = *req.DiscountPercent
	}
	if req.DiscountScope != nil {
		updated.DiscountScope = *req.DiscountScope
	}
	if req.Notes != nil {
		updated.Notes = *req.Notes
	}
	if req.AssignedTo != nil {
		updated.AssignedTo = *req.AssignedTo
	}
	if req.Items != nil {
		updated.Items = *req.Items
	}

	normalized, vehicle, err := s.validateOrder(ctx, updated)
	if err != nil {
		return domain.ServiceOrder{}, err
	}
	normalized.ID = existing.ID
	normalized.Number = existing.Number
	normalized.Status = existing.Status
	normalized.OpenedAt = existing.OpenedAt

	if stockApplied(existing.Status) {
		if err := s.reconcileStockDelta(ctx, &normalized, previousQty); err != nil {
			return domain.ServiceOrder{}, err
		}
	}

	saved, err := s.repo.UpdateOrder(ctx, normalized)
	if err != nil {
		return domain.ServiceOrder{}, err
	}

	if vehicle != nil && saved.OdometerKM > vehicle.OdometerKM {
		if err := s.repo.SetVehicleOdometer(ctx, vehicle.ID, saved.OdometerKM); err != nil {
			log.Printf("[service] WARN: odometer sync failed for vehicle %d after order %s: %v", vehicle.ID, saved.Number, err)
		}
	}

	s.logAudit(ctx, "order_update", "order", saved.Number, fmt.Sprintf("total=%d", saved.TotalCents))
	return *saved, nil
}

// UpdateOrderStatus moves an order through its lifecycle. Entering a status
// that applies the stock draw consumes lots FIFO; leaving one returns the
// outstanding balance. Cancellation requires a non-empty reason.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, newStatus string, reason string) (domain.ServiceOrder, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.ServiceOrder{}, err
	}

	if !ValidOrderStatus(newStatus) {
		return domain.ServiceOrder{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidOrder, newStatus)
	}
	if newStatus == order.Status {
		return *order, nil
	}
	if !CanTransition(order.Status, newStatus) {
		return domain.ServiceOrder{}, fmt.Errorf("%w: cannot move order %s from %s to %s", store.ErrInvalidOrder, order.Number, order.Status, newStatus)
	}

	reason = strings.TrimSpace(reason)
	if newStatus == domain.OrderStatusCancelled && reason == "" {
		return domain.ServiceOrder{}, fmt.Errorf("%w: cancellation requires a reason", store.ErrInvalidOrder)
	}

	if stockApplied(newStatus) && !stockApplied(order.Status) {
		if err := s.applyStockDraw(ctx, order); err != nil {
			return domain.ServiceOrder{}, err
		}
	} else if !stockApplied(newStatus) && stockApplied(order.Status) {
		if err := s.returnOutstandingStock(ctx, order, newStatus, reason); err != nil {
			return domain.ServiceOrder{}, err
		}
	}

	var completedAt *time.Time
	if newStatus == domain.OrderStatusCompleted {
		now := time.Now().UTC()
		completedAt = &now
	}

	saved, err := s.repo.SetOrderStatus(ctx, id, newStatus, reason, completedAt)
	if err != nil {
		return domain.ServiceOrder{}, err
	}

	if newStatus == domain.OrderStatusCompleted {
		s.recordMaintenance(ctx, saved)
	}

	s.logAudit(ctx, "order_status", "order", saved.Number, fmt.Sprintf("from=%s,to=%s", order.Status, newStatus))
	return *saved, nil
}

// validateOrder normalizes and validates an order draft, recomputing item
// and order totals. Returns the order's vehicle when one is attached.
func (s *Service) validateOrder(ctx context.Context, order domain.ServiceOrder) (domain.ServiceOrder, *domain.Vehicle, error) {
	if !validOrderType(order.Type) {
		return domain.ServiceOrder{}, nil, fmt.Errorf("%w: unknown order type %q", store.ErrInvalidOrder, order.Type)
	}

	client, err := s.repo.GetClient(ctx, order.ClientID)
	if err != nil {
		return domain.ServiceOrder{}, nil, err
	}

	var vehicle *domain.Vehicle
	if order.VehicleID != 0 {
		vehicle, err = s.repo.GetVehicle(ctx, order.VehicleID)
		if err != nil {
			return domain.ServiceOrder{}, nil, err
		}
		if vehicle.ClientID != client.ID {
			return domain.ServiceOrder{}, nil, fmt.Errorf("%w: vehicle %d does not belong to client %d", store.ErrInvalidOrder, vehicle.ID, client.ID)
		}
	}

	if includesService(order.Type) {
		if vehicle == nil {
			return domain.ServiceOrder{}, nil, fmt.Errorf("%w: service orders require a vehicle", store.ErrInvalidOrder)
		}
		if strings.TrimSpace(order.ServiceDescription) == "" {
			return domain.ServiceOrder{}, nil, fmt.Errorf("%w: service description is required", store.ErrInvalidOrder)
		}
		// A left-at-zero charge becomes the minimum billable unit rather
		// than a rejection.
		if order.ServiceChargeCents <= 0 {
			order.ServiceChargeCents = 100
		}
	} else {
		order.ServiceDescription = ""
		order.ServiceChargeCents = 0
	}

	if order.DiscountScope == "" {
		order.DiscountScope = defaultScopeForType(order.Type)
	}
	if !scopeAllowed(order.Type, order.DiscountScope) {
		return domain.ServiceOrder{}, nil, fmt.Errorf("%w: discount scope %s not allowed for %s orders", store.ErrInvalidOrder, order.DiscountScope, order.Type)
	}
	if order.DiscountPercent < 0 || order.DiscountPercent > 100 {
		return domain.ServiceOrder{}, nil, fmt.Errorf("%w: discount percent out of range", store.ErrInvalidOrder)
	}

	items := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		item.Description = strings.TrimSpace(item.Description)
		if !validItemKind(item.Kind) {
			return domain.ServiceOrder{}, nil, fmt.Errorf("%w: unknown item kind %q", store.ErrInvalidOrder, item.Kind)
		}
		if item.Description == "" {
			return domain.ServiceOrder{}, nil, fmt.Errorf("%w: item description is required", store.ErrInvalidOrder)
		}
		if item.Qty < 1 || item.UnitPriceCents < 0 {
			return domain.ServiceOrder{}, nil, fmt.Errorf("%w: invalid item quantity or price", store.ErrInvalidOrder)
		}
		if item.Kind == domain.ItemKindProduct && item.ProductID != 0 {
			product, err := s.repo.GetProduct(ctx, item.ProductID)
			if err != nil {
				return domain.ServiceOrder{}, nil, err
			}
			if product.StockQty < item.Qty {
				return domain.ServiceOrder{}, nil, fmt.Errorf("%w: product %s", store.ErrInsufficientStock, product.Name)
			}
			item.ProductName = product.Name
		}
		// Item totals are always recomputed, never trusted from the caller.
		item.TotalCents = item.Qty * item.UnitPriceCents
		items = append(items, item)
	}
	order.Items = FilterItemsForType(order.Type, items)

	totals := CalculateOrderTotals(order.Type, order.Items, order.ServiceChargeCents, order.DiscountPercent, order.DiscountScope)
	order.PartsCents = totals.PartsCents
	order.ServiceCents = totals.ServiceCents
	order.SubtotalCents = totals.SubtotalCents
	order.DiscountCents = totals.DiscountCents
	order.TotalCents = totals.GrandCents

	return order, vehicle, nil
}

// applyStockDraw consumes inventory for the order's product items. Draws are
// ledgered as OUT movements and only the balance not yet drawn for this order
// is consumed, so a transition retried after a mid-loop failure resumes where
// it stopped instead of drawing the same units twice.
func (s *Service) applyStockDraw(ctx context.Context, order *domain.ServiceOrder) error {
	needed := productQuantities(order.Items)
	for _, item := range order.Items {
		qty, pending := needed[item.ProductID]
		if item.Kind != domain.ItemKindProduct || item.ProductID == 0 || !pending {
			continue
		}
		delete(needed, item.ProductID)

		drawn, err := s.repo.SumStockMovements(ctx, order.ID, item.ProductID, domain.MovementOut)
		if err != nil {
			return err
		}
		returned, err := s.repo.SumStockMovements(ctx, order.ID, item.ProductID, domain.MovementIn)
		if err != nil {
			return err
		}
		outstanding := qty - (drawn - returned)
		if outstanding <= 0 {
			continue
		}

		// The stock decrement carries the insufficiency guard; lots are only
		// consumed once it has gone through.
		if err := s.repo.AdjustProductStock(ctx, item.ProductID, -outstanding); err != nil {
			return err
		}
		unitCost, err := s.repo.ConsumeLotsFIFO(ctx, item.ProductID, outstanding)
		if err != nil {
			return err
		}
		s.invalidateLotCache(ctx, item.ProductID)

		movement := domain.StockMovement{
			ID:             xid.New("mv"),
			ProductID:      item.ProductID,
			OrderID:        order.ID,
			Kind:           domain.MovementOut,
			Qty:            outstanding,
			UnitPriceCents: item.UnitPriceCents,
			UnitCostCents:  unitCost,
			Reason:         "service order",
			Notes:          fmt.Sprintf("order %s - %s", order.Number, item.Description),
			MovedAt:        time.Now().UTC(),
		}
		if err := s.repo.CreateStockMovement(ctx, movement); err != nil {
			log.Printf("[service] WARN: failed to record stock movement for order %s: %v", order.Number, err)
		}
	}
	return nil
}

// returnOutstandingStock puts back whatever was drawn for the order and not
// yet returned, per product, so repeated status flapping never double
// returns.
func (s *Service) returnOutstandingStock(ctx context.Context, order *domain.ServiceOrder, newStatus string, reason string) error {
	seen := make(map[int64]bool)
	for _, item := range order.Items {
		if item.Kind != domain.ItemKindProduct || item.ProductID == 0 || seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true

		drawn, err := s.repo.SumStockMovements(ctx, order.ID, item.ProductID, domain.MovementOut)
		if err != nil {
			return err
		}
		returned, err := s.repo.SumStockMovements(ctx, order.ID, item.ProductID, domain.MovementIn)
		if err != nil {
			return err
		}
		outstanding := drawn - returned
		if outstanding <= 0 {
			continue
		}

		if err := s.repo.AdjustProductStock(ctx, item.ProductID, outstanding); err != nil {
			return err
		}

		moveReason := "service order return"
		if newStatus == domain.OrderStatusCancelled {
			moveReason = "service order cancelled"
		}
		notes := fmt.Sprintf("order %s - status %s", order.Number, newStatus)
		if reason != "" {
			notes += " - " + reason
		}
		movement := domain.StockMovement{
			ID:             xid.New("mv"),
			ProductID:      item.ProductID,
			OrderID:        order.ID,
			Kind:           domain.MovementIn,
			Qty:            outstanding,
			UnitPriceCents: item.UnitPriceCents,
			Reason:         moveReason,
			Notes:          notes,
			MovedAt:        time.Now().UTC(),
		}
		if err := s.repo.CreateStockMovement(ctx, movement); err != nil {
			log.Printf("[service] WARN: failed to record stock return for order %s: %v", order.Number, err)
		}
	}
	return nil
}

// reconcileStockDelta applies only the quantity difference between the
// previous and current items of an order whose stock draw is live.
func (s *Service) reconcileStockDelta(ctx context.Context, order *domain.ServiceOrder, previousQty map[int64]int64) error {
	currentQty := productQuantities(order.Items)

	for productID, newQty := range currentQty {
		delta := newQty - previousQty[productID]
		if delta == 0 {
			continue
		}
		if err := s.moveStockDelta(ctx, order, productID, delta); err != nil {
			return err
		}
	}
	for productID, oldQty := range previousQty {
		if _, still := currentQty[productID]; still {
			continue
		}
		if err := s.moveStockDelta(ctx, order, productID, -oldQty); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) moveStockDelta(ctx context.Context, order *domain.ServiceOrder, productID int64, delta int64) error {
	if delta > 0 {
		if err := s.repo.AdjustProductStock(ctx, productID, -delta); err != nil {
			return err
		}
		unitCost, err := s.repo.ConsumeLotsFIFO(ctx, productID, delta)
		if err != nil {
			return err
		}
		s.invalidateLotCache(ctx, productID)
		return s.repo.CreateStockMovement(ctx, domain.StockMovement{
			ID:            xid.New("mv"),
			ProductID:     productID,
			OrderID:       order.ID,
			Kind:          domain.MovementOut,
			Qty:           delta,
			UnitCostCents: unitCost,
			Reason:        "service order adjustment",
			Notes:         fmt.Sprintf("order %s quantity increase", order.Number),
			MovedAt:       time.Now().UTC(),
		})
	}

	returned := -delta
	if err := s.repo.AdjustProductStock(ctx, productID, returned); err != nil {
		return err
	}
	return s.repo.CreateStockMovement(ctx, domain.StockMovement{
		ID:        xid.New("mv"),
		ProductID: productID,
		OrderID:   order.ID,
		Kind:      domain.MovementIn,
		Qty:       returned,
		Reason:    "service order adjustment",
		Notes:     fmt.Sprintf("order %s quantity decrease", order.Number),
		MovedAt:   time.Now().UTC(),
	})
}

func productQuantities(items []domain.OrderItem) map[int64]int64 {
	qty := make(map[int64]int64, len(items))
	for _, item := range items {
		if item.Kind == domain.ItemKindProduct && item.ProductID != 0 {
			qty[item.ProductID] += item.Qty
		}
	}
	return qty
}

// recordMaintenance writes the completed order into the vehicle's
// maintenance history. Best effort and idempotent per order.
func (s *Service) recordMaintenance(ctx context.Context, order *domain.ServiceOrder) {
	if order.VehicleID == 0 || !includesService(order.Type) {
		return
	}

	exists, err := s.repo.HasMaintenanceForOrder(ctx, order.ID)
	if err != nil || exists {
		if err != nil {
			log.Printf("[service] WARN: maintenance lookup failed for order %s: %v", order.Number, err)
		}
		return
	}

	vehicle, err := s.repo.GetVehicle(ctx, order.VehicleID)
	if err != nil {
		log.Printf("[service] WARN: vehicle lookup failed for order %s: %v", order.Number, err)
		return
	}

	completedAt := time.Now().UTC()
	if order.CompletedAt != nil {
		completedAt = *order.CompletedAt
	}
	record := s.maintenance.BuildRecord(*order, *vehicle, completedAt)
	if record == nil {
		return
	}
	if err := s.repo.CreateMaintenanceRecord(ctx, *record); err != nil {
		log.Printf("[service] WARN: failed to record maintenance for order %s: %v", order.Number, err)
	}
}

func (s *Service) ListVehicleMaintenance(ctx context.Context, vehicleID int64) ([]domain.MaintenanceRecord, error) {
	if _, err := s.repo.GetVehicle(ctx, vehicleID); err != nil {
		return nil, err
	}
	return s.repo.ListMaintenanceByVehicle(ctx, vehicleID)
}

func (s *Service) VehicleMaintenanceSuggestions(ctx context.Context, vehicleID int64) ([]domain.MaintenanceSuggestion, error) {
	vehicle, err := s.repo.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListMaintenanceByVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return s.maintenance.Suggestions(records, vehicle.OdometerKM), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actorName := "system"
	if actor, ok := ActorFromContext(ctx); ok {
		actorName = actor.Username
	}

	entry := domain.AuditLog{
		ID:         xid.New("audit"),
		Actor:      actorName,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}

// ---- Normalization helpers ----

func normalizeDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizePlate(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(s)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validPlate accepts the legacy three-letter four-digit format and the
// mixed-alphanumeric regional format.
func validPlate(plate string) bool {
	if len(plate) != 7 {
		return false
	}
	for i := 0; i < 3; i++ {
		if plate[i] < 'A' || plate[i] > 'Z' {
			return false
		}
	}
	legacy := true
	for i := 3; i < 7; i++ {
		if plate[i] < '0' || plate[i] > '9' {
			legacy = false
			break
		}
	}
	if legacy {
		return true
	}
	return isDigit(plate[3]) && plate[4] >= 'A' && plate[4] <= 'Z' && isDigit(plate[5]) && isDigit(plate[6])
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// validCPF checks an 11-digit personal document's verification digits.
func validCPF(digits string) bool {
	if len(digits) != 11 {
		return false
	}
	allSame := true
	for i := 1; i < 11; i++ {
		if digits[i] != digits[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return false
	}

	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(digits[i]-'0') * (10 - i)
	}
	d1 := 0
	if rest := sum % 11; rest >= 2 {
		d1 = 11 - rest
	}
	if d1 != int(digits[9]-'0') {
		return false
	}

	sum = 0
	for i := 0; i < 10; i++ {
		sum += int(digits[i]-'0') * (11 - i)
	}
	d2 := 0
	if rest := sum % 11; rest >= 2 {
		d2 = 11 - rest
	}
	return d2 == int(digits[10]-'0')
}

// validateDocument rejects malformed documents; an empty document is legal.
func validateDocument(kind string, digits string) error {
	if digits == "" {
		return nil
	}
	switch len(digits) {
	case 11:
		if kind == domain.ClientKindCompany {
			return fmt.Errorf("%w: company clients use a 14-digit document", store.ErrInvalidOrder)
		}
		if !validCPF(digits) {
			return fmt.Errorf("%w: invalid personal document", store.ErrInvalidOrder)
		}
	case 14:
		if kind == domain.ClientKindIndividual {
			return fmt.Errorf("%w: individual clients use an 11-digit document", store.ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: document must have 11 or 14 digits", store.ErrInvalidOrder)
	}
	return nil
}
