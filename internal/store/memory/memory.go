package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"autocare/backend/internal/domain"
	"autocare/backend/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	clients  map[int64]domain.Client
	vehicles map[int64]domain.Vehicle
	products map[int64]domain.Product
	lots     map[int64][]domain.InventoryLot
	orders   map[int64]*domain.ServiceOrder

	movements   []domain.StockMovement
	maintenance []domain.MaintenanceRecord
	auditLogs   []domain.AuditLog
	settings    map[string]domain.Setting
	users       map[string]domain.UserAccount

	nextClientID  int64
	nextVehicleID int64
	nextProductID int64
	nextLotID     int64
	nextOrderID   int64
	nextItemID    int64
	orderSeq      int64
}

// seedUsers builds the initial in-memory operator accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_ATTENDANT_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	attendantPwd := envOr("SEED_ATTENDANT_PASSWORD", "attendant123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_ATTENDANT_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_ATTENDANT_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"attendant", attendantPwd, "attendant"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			CreatedAt: now,
		}
	}
	return users
}

func seedSettings() map[string]domain.Setting {
	supervisorPwd := envOr("SEED_SUPERVISOR_PASSWORD", "supervisor123")
	hash, err := bcrypt.GenerateFromPassword([]byte(supervisorPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed supervisor password: %v", err)
	}

	return map[string]domain.Setting{
		domain.SettingMaxDiscountPercent: {
			Key:         domain.SettingMaxDiscountPercent,
			Value:       "15",
			Description: "Maximum discount percent an attendant may apply without supervisor authorization",
			Kind:        "number",
		},
		domain.SettingSupervisorPassword: {
			Key:         domain.SettingSupervisorPassword,
			Value:       string(hash),
			Description: "Supervisor credential for overriding guarded fields",
			Kind:        "password",
		},
		domain.SettingDefaultMargin: {
			Key:         domain.SettingDefaultMargin,
			Value:       "30",
			Description: "Default profit margin percent suggested on stock entry",
			Kind:        "number",
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	clients := map[int64]domain.Client{
		1: {ID: 1, Name: "Maria Silva", Kind: domain.ClientKindIndividual, Document: "52998224725", Phone: "11987654321", City: "São Paulo", Active: true, CreatedAt: now, UpdatedAt: now},
		2: {ID: 2, Name: "João Pereira", Kind: domain.ClientKindIndividual, Document: "11144477735", Phone: "11912345678", Whatsapp: "11912345678", Active: true, CreatedAt: now, UpdatedAt: now},
		3: {ID: 3, Name: "Transportes Andrade Ltda", Kind: domain.ClientKindCompany, Document: "12345678000190", Phone: "1133334444", Active: true, CreatedAt: now, UpdatedAt: now},
	}

	vehicles := map[int64]domain.Vehicle{
		1: {ID: 1, ClientID: 1, Plate: "ABC1234", Make: "Volkswagen", Model: "Gol", Year: 2018, Color: "Prata", Fuel: "flex", OdometerKM: 45000, Active: true, CreatedAt: now, UpdatedAt: now},
		2: {ID: 2, ClientID: 2, Plate: "BRA2E19", Make: "Fiat", Model: "Argo", Year: 2021, Color: "Branco", Fuel: "flex", OdometerKM: 23000, Active: true, CreatedAt: now, UpdatedAt: now},
		3: {ID: 3, ClientID: 3, Plate: "DEF5678", Make: "Fiat", Model: "Fiorino", Year: 2019, Color: "Branco", Fuel: "flex", OdometerKM: 98000, Active: true, CreatedAt: now, UpdatedAt: now},
	}

	products := map[int64]domain.Product{
		1: {ID: 1, Code: "OLEO-5W30", Name: "Óleo Motor 5W30 1L", Unit: "UN", CatalogPriceCents: 4500, CostCents: 2800, StockQty: 40, Active: true},
		2: {ID: 2, Code: "FILTRO-OL-01", Name: "Filtro de Óleo", Unit: "UN", CatalogPriceCents: 2500, CostCents: 1200, StockQty: 25, Active: true},
		3: {ID: 3, Code: "FILTRO-AR-01", Name: "Filtro de Ar", Unit: "UN", CatalogPriceCents: 3900, CostCents: 2100, StockQty: 18, Active: true},
		4: {ID: 4, Code: "PASTILHA-01", Name: "Jogo Pastilha de Freio", Unit: "JG", CatalogPriceCents: 12900, CostCents: 7400, StockQty: 10, Active: true},
		5: {ID: 5, Code: "ADITIVO-01", Name: "Aditivo Radiador 1L", Unit: "UN", CatalogPriceCents: 3200, CostCents: 1600, StockQty: 30, Active: true},
	}

	// Product 1 deliberately carries two lots at different sale prices so the
	// explicit-choice path is exercised out of the box.
	lots := map[int64][]domain.InventoryLot{
		1: {
			{ID: 1, ProductID: 1, LotNumber: "L-2026-01", RemainingQty: 15, SalePriceCents: 4300, CostCents: 2600, EnteredAt: now.AddDate(0, -2, 0), Active: true},
			{ID: 2, ProductID: 1, LotNumber: "L-2026-02", RemainingQty: 25, SalePriceCents: 4500, CostCents: 2800, EnteredAt: now.AddDate(0, -1, 0), Active: true},
		},
		2: {
			{ID: 3, ProductID: 2, LotNumber: "L-2026-03", RemainingQty: 25, SalePriceCents: 2500, CostCents: 1200, EnteredAt: now.AddDate(0, -1, -10), Active: true},
		},
		4: {
			{ID: 4, ProductID: 4, LotNumber: "L-2026-04", RemainingQty: 10, SalePriceCents: 12900, CostCents: 7400, EnteredAt: now.AddDate(0, 0, -20), Active: true},
		},
	}

	return &Store{
		clients:       clients,
		vehicles:      vehicles,
		products:      products,
		lots:          lots,
		orders:        make(map[int64]*domain.ServiceOrder),
		movements:     make([]domain.StockMovement, 0, 64),
		maintenance:   make([]domain.MaintenanceRecord, 0, 32),
		auditLogs:     make([]domain.AuditLog, 0, 128),
		settings:      seedSettings(),
		users:         seedUsers(),
		nextClientID:  4,
		nextVehicleID: 4,
		nextProductID: 6,
		nextLotID:     5,
		nextOrderID:   1,
		nextItemID:    1,
	}
}

// Clients.

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc := digits(client.Document); doc != "" {
		for _, existing := range s.clients {
			if digits(existing.Document) == doc {
				return nil, &store.ConflictError{
					Resource:     "client",
					Field:        "document",
					ExistingID:   existing.ID,
					ExistingName: existing.Name,
					Active:       existing.Active,
				}
			}
		}
	}

	now := time.Now().UTC()
	client.ID = s.nextClientID
	s.nextClientID++
	client.Active = true
	client.CreatedAt = now
	client.UpdatedAt = now
	s.clients[client.ID] = client
	created := client
	return &created, nil
}

func (s *Store) GetClient(_ context.Context, id int64) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, exists := s.clients[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyClient := client
	return &copyClient, nil
}

func (s *Store) UpdateClient(_ context.Context, id int64, req domain.ClientUpdateRequest) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, exists := s.clients[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	if req.Document != nil {
		doc := digits(*req.Document)
		if doc != "" {
			for _, other := range s.clients {
				if other.ID != id && digits(other.Document) == doc {
					return nil, &store.ConflictError{
						Resource:     "client",
						Field:        "document",
						ExistingID:   other.ID,
						ExistingName: other.Name,
						Active:       other.Active,
					}
				}
			}
		}
		client.Document = *req.Document
	}
	if req.Name != nil {
		client.Name = *req.Name
	}
	if req.Kind != nil {
		client.Kind = *req.Kind
	}
	if req.Email != nil {
		client.Email = *req.Email
	}
	if req.Phone != nil {
		client.Phone = *req.Phone
	}
	if req.Phone2 != nil {
		client.Phone2 = *req.Phone2
	}
	if req.Whatsapp != nil {
		client.Whatsapp = *req.Whatsapp
	}
	if req.Street != nil {
		client.Street = *req.Street
	}
	if req.City != nil {
		client.City = *req.City
	}
	if req.State != nil {
		client.State = *req.State
	}
	if req.PostCode != nil {
		client.PostCode = *req.PostCode
	}
	if req.Notes != nil {
		client.Notes = *req.Notes
	}
	if req.Active != nil {
		client.Active = *req.Active
	}

	client.UpdatedAt = time.Now().UTC()
	s.clients[id] = client
	updated := client
	return &updated, nil
}

func (s *Store) ListClients(_ context.Context, search string, activeOnly bool, limit int, offset int) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	term := strings.ToLower(strings.TrimSpace(search))
	termDigits := digits(term)

	matches := make([]domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		if activeOnly && !c.Active {
			continue
		}
		if term != "" {
			nameHit := strings.Contains(strings.ToLower(c.Name), term)
			docHit := termDigits != "" && strings.Contains(digits(c.Document), termDigits)
			phoneHit := termDigits != "" && (strings.Contains(digits(c.Phone), termDigits) ||
				strings.Contains(digits(c.Phone2), termDigits) ||
				strings.Contains(digits(c.Whatsapp), termDigits))
			if !nameHit && !docHit && !phoneHit {
				continue
			}
		}
		matches = append(matches, c)
	}

	slices.SortFunc(matches, func(a, b domain.Client) int {
		return strings.Compare(a.Name, b.Name)
	})

	return paginate(matches, limit, offset), nil
}

func (s *Store) FindClientByDocument(_ context.Context, documentDigits string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if documentDigits == "" {
		return nil, store.ErrNotFound
	}
	for _, c := range s.clients {
		if digits(c.Document) == documentDigits {
			copyClient := c
			return &copyClient, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindClientByPhone(_ context.Context, phoneDigits string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if phoneDigits == "" {
		return nil, store.ErrNotFound
	}
	for _, c := range s.clients {
		if digits(c.Phone) == phoneDigits || digits(c.Phone2) == phoneDigits || digits(c.Whatsapp) == phoneDigits {
			copyClient := c
			return &copyClient, nil
		}
	}
	return nil, store.ErrNotFound
}

// Vehicles.

func (s *Store) CreateVehicle(_ context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plate := normalizePlate(vehicle.Plate)
	for _, existing := range s.vehicles {
		if normalizePlate(existing.Plate) == plate {
			owner := s.clients[existing.ClientID]
			return nil, &store.ConflictError{
				Resource:     "vehicle",
				Field:        "plate",
				ExistingID:   existing.ID,
				ExistingName: owner.Name,
				Active:       existing.Active,
			}
		}
	}

	now := time.Now().UTC()
	vehicle.ID = s.nextVehicleID
	s.nextVehicleID++
	vehicle.Plate = plate
	vehicle.Active = true
	vehicle.CreatedAt = now
	vehicle.UpdatedAt = now
	s.vehicles[vehicle.ID] = vehicle
	created := vehicle
	return &created, nil
}

func (s *Store) GetVehicle(_ context.Context, id int64) (*domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vehicle, exists := s.vehicles[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyVehicle := vehicle
	return &copyVehicle, nil
}

func (s *Store) UpdateVehicle(_ context.Context, id int64, req domain.VehicleUpdateRequest) (*domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicle, exists := s.vehicles[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	if req.Plate != nil {
		plate := normalizePlate(*req.Plate)
		for _, other := range s.vehicles {
			if other.ID != id && normalizePlate(other.Plate) == plate {
				owner := s.clients[other.ClientID]
				return nil, &store.ConflictError{
					Resource:     "vehicle",
					Field:        "plate",
					ExistingID:   other.ID,
					ExistingName: owner.Name,
					Active:       other.Active,
				}
			}
		}
		vehicle.Plate = plate
	}
	if req.ClientID != nil {
		vehicle.ClientID = *req.ClientID
	}
	if req.Make != nil {
		vehicle.Make = *req.Make
	}
	if req.Model != nil {
		vehicle.Model = *req.Model
	}
	if req.Year != nil {
		vehicle.Year = *req.Year
	}
	if req.Color != nil {
		vehicle.Color = *req.Color
	}
	if req.Fuel != nil {
		vehicle.Fuel = *req.Fuel
	}
	if req.Chassis != nil {
		vehicle.Chassis = *req.Chassis
	}
	if req.OdometerKM != nil {
		vehicle.OdometerKM = *req.OdometerKM
	}
	if req.Notes != nil {
		vehicle.Notes = *req.Notes
	}
	if req.Active != nil {
		vehicle.Active = *req.Active
	}

	vehicle.UpdatedAt = time.Now().UTC()
	s.vehicles[id] = vehicle
	updated := vehicle
	return &updated, nil
}

func (s *Store) ListVehiclesByClient(_ context.Context, clientID int64, activeOnly bool) ([]domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vehicles := make([]domain.Vehicle, 0, 4)
	for _, v := range s.vehicles {
		if v.ClientID != clientID {
			continue
		}
		if activeOnly && !v.Active {
			continue
		}
		vehicles = append(vehicles, v)
	}

	slices.SortFunc(vehicles, func(a, b domain.Vehicle) int {
		return strings.Compare(a.Plate, b.Plate)
	})

	return vehicles, nil
}

func (s *Store) FindVehicleByPlate(_ context.Context, plateNormalized string) (*domain.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.vehicles {
		if normalizePlate(v.Plate) == plateNormalized {
			copyVehicle := v
			return &copyVehicle, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) TransferVehicleOwner(_ context.Context, vehicleID int64, newClientID int64) (*domain.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicle, exists := s.vehicles[vehicleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.clients[newClientID]; !exists {
		return nil, store.ErrNotFound
	}

	vehicle.ClientID = newClientID
	vehicle.UpdatedAt = time.Now().UTC()
	s.vehicles[vehicleID] = vehicle
	updated := vehicle
	return &updated, nil
}

func (s *Store) SetVehicleOdometer(_ context.Context, vehicleID int64, km int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vehicle, exists := s.vehicles[vehicleID]
	if !exists {
		return store.ErrNotFound
	}
	vehicle.OdometerKM = km
	vehicle.UpdatedAt = time.Now().UTC()
	s.vehicles[vehicleID] = vehicle
	return nil
}

// Products and inventory lots.

func (s *Store) SearchProducts(_ context.Context, term string, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(term))
	matches := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Code), needle) {
			continue
		}
		matches = append(matches, p)
	}

	slices.SortFunc(matches, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListAvailableLots(_ context.Context, productID int64) ([]domain.InventoryLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.products[productID]; !exists {
		return nil, store.ErrNotFound
	}

	available := make([]domain.InventoryLot, 0, 4)
	for _, lot := range s.lots[productID] {
		if !lot.Active || lot.RemainingQty < 1 {
			continue
		}
		available = append(available, lot)
	}

	slices.SortFunc(available, func(a, b domain.InventoryLot) int {
		return a.EnteredAt.Compare(b.EnteredAt)
	})

	return available, nil
}

// ConsumeLotsFIFO draws qty units from the product's lots oldest entry first
// and reports the weighted average unit cost of the draw. When the lots run
// short the remainder is costed from the product catalog so the draw never
// fails on lot bookkeeping alone; the authoritative stock check is the
// product quantity.
func (s *Store) ConsumeLotsFIFO(_ context.Context, productID int64, qty int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return 0, store.ErrNotFound
	}
	if qty < 1 {
		return 0, store.ErrInvalidOrder
	}

	lots := s.lots[productID]
	slices.SortFunc(lots, func(a, b domain.InventoryLot) int {
		return a.EnteredAt.Compare(b.EnteredAt)
	})

	remaining := qty
	var totalCost int64
	for i := range lots {
		if remaining == 0 {
			break
		}
		if !lots[i].Active || lots[i].RemainingQty < 1 {
			continue
		}
		take := lots[i].RemainingQty
		if take > remaining {
			take = remaining
		}
		lots[i].RemainingQty -= take
		totalCost += take * lots[i].CostCents
		remaining -= take
	}
	s.lots[productID] = lots

	if remaining > 0 {
		totalCost += remaining * product.CostCents
	}
	return totalCost / qty, nil
}

func (s *Store) AdjustProductStock(_ context.Context, productID int64, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return store.ErrNotFound
	}
	if product.StockQty+delta < 0 {
		return store.ErrInsufficientStock
	}
	product.StockQty += delta
	s.products[productID] = product
	return nil
}

func (s *Store) CreateStockMovement(_ context.Context, movement domain.StockMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if movement.MovedAt.IsZero() {
		movement.MovedAt = time.Now().UTC()
	}
	s.movements = append(s.movements, movement)
	return nil
}

func (s *Store) SumStockMovements(_ context.Context, orderID int64, productID int64, kind string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, m := range s.movements {
		if m.OrderID == orderID && m.ProductID == productID && m.Kind == kind {
			total += m.Qty
		}
	}
	return total, nil
}

// Service orders.

func (s *Store) NextOrderNumber(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orderSeq++
	return fmt.Sprintf("OS-%d-%04d", time.Now().UTC().Year(), s.orderSeq), nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.ServiceOrder) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	order.ID = s.nextOrderID
	s.nextOrderID++
	for i := range order.Items {
		order.Items[i].ID = s.nextItemID
		s.nextItemID++
		order.Items[i].OrderID = order.ID
	}
	if order.OpenedAt.IsZero() {
		order.OpenedAt = now
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	stored := order
	s.orders[order.ID] = &stored
	created := s.decorateOrderLocked(stored)
	return &created, nil
}

func (s *Store) GetOrder(_ context.Context, id int64) (*domain.ServiceOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	decorated := s.decorateOrderLocked(*order)
	return &decorated, nil
}

func (s *Store) UpdateOrder(_ context.Context, order domain.ServiceOrder) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.orders[order.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	// Identity and lifecycle fields are never overwritten by an edit.
	order.Number = existing.Number
	order.Status = existing.Status
	order.OpenedAt = existing.OpenedAt
	order.CompletedAt = existing.CompletedAt
	order.CancelReason = existing.CancelReason
	order.CreatedAt = existing.CreatedAt
	order.UpdatedAt = time.Now().UTC()
	for i := range order.Items {
		if order.Items[i].ID == 0 {
			order.Items[i].ID = s.nextItemID
			s.nextItemID++
		}
		order.Items[i].OrderID = order.ID
	}

	stored := order
	s.orders[order.ID] = &stored
	updated := s.decorateOrderLocked(stored)
	return &updated, nil
}

func (s *Store) SetOrderStatus(_ context.Context, id int64, status string, reason string, completedAt *time.Time) (*domain.ServiceOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.orders[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	order.Status = status
	order.CancelReason = reason
	order.CompletedAt = completedAt
	order.UpdatedAt = time.Now().UTC()
	decorated := s.decorateOrderLocked(*order)
	return &decorated, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.OrderSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]domain.OrderSummary, 0, len(s.orders))
	for _, o := range s.orders {
		if filter.ClientID != 0 && o.ClientID != filter.ClientID {
			continue
		}
		if filter.VehicleID != 0 && o.VehicleID != filter.VehicleID {
			continue
		}
		if filter.Type != "" && o.Type != filter.Type {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && o.OpenedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && o.OpenedAt.After(filter.To) {
			continue
		}

		summary := domain.OrderSummary{
			ID:         o.ID,
			Number:     o.Number,
			ClientID:   o.ClientID,
			VehicleID:  o.VehicleID,
			Type:       o.Type,
			Status:     o.Status,
			OpenedAt:   o.OpenedAt,
			TotalCents: o.TotalCents,
		}
		if client, ok := s.clients[o.ClientID]; ok {
			summary.ClientName = client.Name
		}
		if vehicle, ok := s.vehicles[o.VehicleID]; ok {
			summary.VehiclePlate = vehicle.Plate
		}
		summaries = append(summaries, summary)
	}

	slices.SortFunc(summaries, func(a, b domain.OrderSummary) int {
		return b.OpenedAt.Compare(a.OpenedAt)
	})

	return paginate(summaries, filter.Limit, filter.Offset), nil
}

func (s *Store) GetOrderStats(_ context.Context, now time.Time) (domain.OrderStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var stats domain.OrderStats
	for _, o := range s.orders {
		stats.Total++
		switch o.Status {
		case domain.OrderStatusPending:
			stats.Pending++
		case domain.OrderStatusInProgress:
			stats.InProgress++
		case domain.OrderStatusAwaitingPart:
			stats.AwaitingPart++
		case domain.OrderStatusAwaitingApproval:
			stats.AwaitingApproval++
		case domain.OrderStatusCompleted:
			stats.Completed++
			stats.RevenueCents += o.TotalCents
			if o.CompletedAt != nil && !o.CompletedAt.Before(monthStart) {
				stats.RevenueMonthCents += o.TotalCents
			}
		case domain.OrderStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

// decorateOrderLocked attaches denormalized client and vehicle display fields.
// Caller must hold at least a read lock.
func (s *Store) decorateOrderLocked(order domain.ServiceOrder) domain.ServiceOrder {
	items := make([]domain.OrderItem, len(order.Items))
	copy(items, order.Items)
	order.Items = items

	if client, ok := s.clients[order.ClientID]; ok {
		order.ClientName = client.Name
		order.ClientPhone = client.Phone
	}
	if vehicle, ok := s.vehicles[order.VehicleID]; ok {
		order.VehiclePlate = vehicle.Plate
		order.VehicleMake = vehicle.Make
		order.VehicleModel = vehicle.Model
	}
	return order
}

// Shop settings.

func (s *Store) GetSetting(_ context.Context, key string) (*domain.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	setting, exists := s.settings[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySetting := setting
	return &copySetting, nil
}

func (s *Store) UpsertSetting(_ context.Context, setting domain.Setting) (*domain.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.settings[setting.Key]; exists {
		if setting.Description == "" {
			setting.Description = existing.Description
		}
		if setting.Kind == "" {
			setting.Kind = existing.Kind
		}
	}
	s.settings[setting.Key] = setting
	stored := setting
	return &stored, nil
}

func (s *Store) ListSettings(_ context.Context) ([]domain.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := make([]domain.Setting, 0, len(s.settings))
	for _, setting := range s.settings {
		settings = append(settings, setting)
	}
	slices.SortFunc(settings, func(a, b domain.Setting) int {
		return strings.Compare(a.Key, b.Key)
	})
	return settings, nil
}

// Maintenance history.

func (s *Store) CreateMaintenanceRecord(_ context.Context, record domain.MaintenanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maintenance = append(s.maintenance, record)
	return nil
}

func (s *Store) ListMaintenanceByVehicle(_ context.Context, vehicleID int64) ([]domain.MaintenanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.MaintenanceRecord, 0, 8)
	for _, r := range s.maintenance {
		if r.VehicleID == vehicleID {
			records = append(records, r)
		}
	}
	slices.SortFunc(records, func(a, b domain.MaintenanceRecord) int {
		return b.PerformedAt.Compare(a.PerformedAt)
	})
	return records, nil
}

func (s *Store) HasMaintenanceForOrder(_ context.Context, orderID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.maintenance {
		if r.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

// Audit trail.

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// Operator accounts.

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidOrder
	}
	if _, exists := s.users[user.Username]; exists {
		return fmt.Errorf("username %s already exists", user.Username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hash)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[username]
	if !exists {
		return store.ErrNotFound
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.Password = string(hash)
	s.users[username] = user
	return nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizePlate(plate string) string {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	return strings.NewReplacer("-", "", " ", "").Replace(plate)
}

func paginate[T any](items []T, limit int, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
