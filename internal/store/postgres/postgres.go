package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"golang.org/x/crypto/bcrypt"

	"autocare/backend/internal/domain"
	"autocare/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Clients.

const clientColumns = `id, name, kind, COALESCE(document,''), COALESCE(email,''), COALESCE(phone,''),
	COALESCE(phone2,''), COALESCE(whatsapp,''), COALESCE(street,''), COALESCE(city,''),
	COALESCE(state,''), COALESCE(post_code,''), COALESCE(notes,''), active, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (*domain.Client, error) {
	var c domain.Client
	err := row.Scan(&c.ID, &c.Name, &c.Kind, &c.Document, &c.Email, &c.Phone,
		&c.Phone2, &c.Whatsapp, &c.Street, &c.City,
		&c.State, &c.PostCode, &c.Notes, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if doc := digits(client.Document); doc != "" {
		existing, err := s.FindClientByDocument(ctx, doc)
		if err == nil {
			return nil, &store.ConflictError{
				Resource:     "client",
				Field:        "document",
				ExistingID:   existing.ID,
				ExistingName: existing.Name,
				Active:       existing.Active,
			}
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO clients (name, kind, document, email, phone, phone2, whatsapp,
			street, city, state, post_code, notes, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,true,now(),now())
		RETURNING `+clientColumns+`
	`, client.Name, client.Kind, nullIfEmpty(client.Document), nullIfEmpty(client.Email),
		nullIfEmpty(client.Phone), nullIfEmpty(client.Phone2), nullIfEmpty(client.Whatsapp),
		nullIfEmpty(client.Street), nullIfEmpty(client.City), nullIfEmpty(client.State),
		nullIfEmpty(client.PostCode), nullIfEmpty(client.Notes))

	created, err := scanClient(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.ConflictError{Resource: "client", Field: "document"}
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return client, nil
}

func (s *Store) UpdateClient(ctx context.Context, id int64, req domain.ClientUpdateRequest) (*domain.Client, error) {
	existing, err := s.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Document != nil {
		if doc := digits(*req.Document); doc != "" {
			other, err := s.FindClientByDocument(ctx, doc)
			if err == nil && other.ID != id {
				return nil, &store.ConflictError{
					Resource:     "client",
					Field:        "document",
					ExistingID:   other.ID,
					ExistingName: other.Name,
					Active:       other.Active,
				}
			}
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
		existing.Document = *req.Document
	}
	applyString(&existing.Name, req.Name)
	applyString(&existing.Kind, req.Kind)
	applyString(&existing.Email, req.Email)
	applyString(&existing.Phone, req.Phone)
	applyString(&existing.Phone2, req.Phone2)
	applyString(&existing.Whatsapp, req.Whatsapp)
	applyString(&existing.Street, req.Street)
	applyString(&existing.City, req.City)
	applyString(&existing.State, req.State)
	applyString(&existing.PostCode, req.PostCode)
	applyString(&existing.Notes, req.Notes)
	if req.Active != nil {
		existing.Active = *req.Active
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE clients
		SET name = $2, kind = $3, document = $4, email = $5, phone = $6, phone2 = $7,
			whatsapp = $8, street = $9, city = $10, state = $11, post_code = $12,
			notes = $13, active = $14, updated_at = now()
		WHERE id = $1
		RETURNING `+clientColumns+`
	`, id, existing.Name, existing.Kind, nullIfEmpty(existing.Document), nullIfEmpty(existing.Email),
		nullIfEmpty(existing.Phone), nullIfEmpty(existing.Phone2), nullIfEmpty(existing.Whatsapp),
		nullIfEmpty(existing.Street), nullIfEmpty(existing.City), nullIfEmpty(existing.State),
		nullIfEmpty(existing.PostCode), nullIfEmpty(existing.Notes), existing.Active)

	updated, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) ListClients(ctx context.Context, search string, activeOnly bool, limit int, offset int) ([]domain.Client, error) {
	if limit < 1 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	term := "%" + strings.ToLower(strings.TrimSpace(search)) + "%"
	termDigits := "%" + digits(search) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE ($3 = false OR active = true)
		  AND ($4 = '%%'
			OR lower(name) LIKE $4
			OR regexp_replace(COALESCE(document,''), '\D', '', 'g') LIKE $5
			OR regexp_replace(COALESCE(phone,''), '\D', '', 'g') LIKE $5
			OR regexp_replace(COALESCE(phone2,''), '\D', '', 'g') LIKE $5
			OR regexp_replace(COALESCE(whatsapp,''), '\D', '', 'g') LIKE $5)
		ORDER BY name
		LIMIT $1 OFFSET $2
	`, limit, offset, activeOnly, term, termDigits)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, limit)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *client)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return clients, nil
}

func (s *Store) FindClientByDocument(ctx context.Context, documentDigits string) (*domain.Client, error) {
	if documentDigits == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE regexp_replace(COALESCE(document,''), '\D', '', 'g') = $1
		LIMIT 1
	`, documentDigits)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return client, nil
}

func (s *Store) FindClientByPhone(ctx context.Context, phoneDigits string) (*domain.Client, error) {
	if phoneDigits == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE regexp_replace(COALESCE(phone,''), '\D', '', 'g') = $1
		   OR regexp_replace(COALESCE(phone2,''), '\D', '', 'g') = $1
		   OR regexp_replace(COALESCE(whatsapp,''), '\D', '', 'g') = $1
		LIMIT 1
	`, phoneDigits)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return client, nil
}

// Vehicles.

const vehicleColumns = `id, client_id, plate, make, model, year, COALESCE(color,''), COALESCE(fuel,''),
	COALESCE(chassis,''), odometer_km, COALESCE(notes,''), active, created_at, updated_at`

func scanVehicle(row interface{ Scan(...any) error }) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := row.Scan(&v.ID, &v.ClientID, &v.Plate, &v.Make, &v.Model, &v.Year, &v.Color, &v.Fuel,
		&v.Chassis, &v.OdometerKM, &v.Notes, &v.Active, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return &v, nil
}

func (s *Store) CreateVehicle(ctx context.Context, vehicle domain.Vehicle) (*domain.Vehicle, error) {
	plate := normalizePlate(vehicle.Plate)
	if existing, err := s.FindVehicleByPlate(ctx, plate); err == nil {
		ownerName := ""
		if owner, err := s.GetClient(ctx, existing.ClientID); err == nil {
			ownerName = owner.Name
		}
		return nil, &store.ConflictError{
			Resource:     "vehicle",
			Field:        "plate",
			ExistingID:   existing.ID,
			ExistingName: ownerName,
			Active:       existing.Active,
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO vehicles (client_id, plate, make, model, year, color, fuel, chassis,
			odometer_km, notes, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,true,now(),now())
		RETURNING `+vehicleColumns+`
	`, vehicle.ClientID, plate, vehicle.Make, vehicle.Model, vehicle.Year,
		nullIfEmpty(vehicle.Color), nullIfEmpty(vehicle.Fuel), nullIfEmpty(vehicle.Chassis),
		vehicle.OdometerKM, nullIfEmpty(vehicle.Notes))

	created, err := scanVehicle(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.ConflictError{Resource: "vehicle", Field: "plate"}
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	vehicle, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return vehicle, nil
}

func (s *Store) UpdateVehicle(ctx context.Context, id int64, req domain.VehicleUpdateRequest) (*domain.Vehicle, error) {
	existing, err := s.GetVehicle(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Plate != nil {
		plate := normalizePlate(*req.Plate)
		if other, err := s.FindVehicleByPlate(ctx, plate); err == nil && other.ID != id {
			ownerName := ""
			if owner, err := s.GetClient(ctx, other.ClientID); err == nil {
				ownerName = owner.Name
			}
			return nil, &store.ConflictError{
				Resource:     "vehicle",
				Field:        "plate",
				ExistingID:   other.ID,
				ExistingName: ownerName,
				Active:       other.Active,
			}
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		existing.Plate = plate
	}
	if req.ClientID != nil {
		existing.ClientID = *req.ClientID
	}
	applyString(&existing.Make, req.Make)
	applyString(&existing.Model, req.Model)
	if req.Year != nil {
		existing.Year = *req.Year
	}
	applyString(&existing.Color, req.Color)
	applyString(&existing.Fuel, req.Fuel)
	applyString(&existing.Chassis, req.Chassis)
	if req.OdometerKM != nil {
		existing.OdometerKM = *req.OdometerKM
	}
	applyString(&existing.Notes, req.Notes)
	if req.Active != nil {
		existing.Active = *req.Active
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE vehicles
		SET client_id = $2, plate = $3, make = $4, model = $5, year = $6, color = $7,
			fuel = $8, chassis = $9, odometer_km = $10, notes = $11, active = $12, updated_at = now()
		WHERE id = $1
		RETURNING `+vehicleColumns+`
	`, id, existing.ClientID, existing.Plate, existing.Make, existing.Model, existing.Year,
		nullIfEmpty(existing.Color), nullIfEmpty(existing.Fuel), nullIfEmpty(existing.Chassis),
		existing.OdometerKM, nullIfEmpty(existing.Notes), existing.Active)

	updated, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return updated, nil
}

func (s *Store) ListVehiclesByClient(ctx context.Context, clientID int64, activeOnly bool) ([]domain.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+vehicleColumns+`
		FROM vehicles
		WHERE client_id = $1 AND ($2 = false OR active = true)
		ORDER BY plate
	`, clientID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vehicles := make([]domain.Vehicle, 0, 4)
	for rows.Next() {
		vehicle, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, *vehicle)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vehicles, nil
}

func (s *Store) FindVehicleByPlate(ctx context.Context, plateNormalized string) (*domain.Vehicle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+vehicleColumns+`
		FROM vehicles
		WHERE upper(replace(replace(plate, '-', ''), ' ', '')) = $1
		LIMIT 1
	`, plateNormalized)
	vehicle, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return vehicle, nil
}

func (s *Store) TransferVehicleOwner(ctx context.Context, vehicleID int64, newClientID int64) (*domain.Vehicle, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE vehicles
		SET client_id = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+vehicleColumns+`
	`, vehicleID, newClientID)
	vehicle, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return vehicle, nil
}

func (s *Store) SetVehicleOdometer(ctx context.Context, vehicleID int64, km int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE vehicles
		SET odometer_km = $2, updated_at = now()
		WHERE id = $1
	`, vehicleID, km)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Products and inventory lots.

func (s *Store) SearchProducts(ctx context.Context, term string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 20
	}
	needle := "%" + strings.ToLower(strings.TrimSpace(term)) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, COALESCE(description,''), unit, catalog_price_cents, cost_cents, stock_qty, active
		FROM products
		WHERE active = true AND (lower(name) LIKE $1 OR lower(code) LIKE $1)
		ORDER BY name
		LIMIT $2
	`, needle, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Unit,
			&p.CatalogPriceCents, &p.CostCents, &p.StockQty, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, COALESCE(description,''), unit, catalog_price_cents, cost_cents, stock_qty, active
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.Unit,
		&p.CatalogPriceCents, &p.CostCents, &p.StockQty, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListAvailableLots(ctx context.Context, productID int64) ([]domain.InventoryLot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, COALESCE(lot_number,''), remaining_qty, sale_price_cents,
			cost_cents, entered_at, COALESCE(supplier_id,0), active
		FROM inventory_lots
		WHERE product_id = $1 AND active = true AND remaining_qty > 0
		ORDER BY entered_at
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make([]domain.InventoryLot, 0, 4)
	for rows.Next() {
		var lot domain.InventoryLot
		if err := rows.Scan(&lot.ID, &lot.ProductID, &lot.LotNumber, &lot.RemainingQty,
			&lot.SalePriceCents, &lot.CostCents, &lot.EnteredAt, &lot.SupplierID, &lot.Active); err != nil {
			return nil, err
		}
		lot.EnteredAt = lot.EnteredAt.UTC()
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

// ConsumeLotsFIFO draws qty units from the product's lots oldest entry first
// inside a serializable transaction and reports the weighted average unit
// cost of the draw. A shortfall against lot bookkeeping is costed from the
// product catalog; the authoritative stock check is the product quantity.
func (s *Store) ConsumeLotsFIFO(ctx context.Context, productID int64, qty int64) (int64, error) {
	if qty < 1 {
		return 0, store.ErrInvalidOrder
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var productCost int64
	err = tx.QueryRowContext(ctx, `SELECT cost_cents FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&productCost)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, remaining_qty, cost_cents
		FROM inventory_lots
		WHERE product_id = $1 AND active = true AND remaining_qty > 0
		ORDER BY entered_at
		FOR UPDATE
	`, productID)
	if err != nil {
		return 0, err
	}

	type draw struct {
		lotID int64
		take  int64
	}
	draws := make([]draw, 0, 4)
	remaining := qty
	var totalCost int64
	for rows.Next() {
		var lotID, lotQty, lotCost int64
		if err := rows.Scan(&lotID, &lotQty, &lotCost); err != nil {
			rows.Close()
			return 0, err
		}
		if remaining == 0 {
			continue
		}
		take := lotQty
		if take > remaining {
			take = remaining
		}
		draws = append(draws, draw{lotID: lotID, take: take})
		totalCost += take * lotCost
		remaining -= take
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, d := range draws {
		if _, err := tx.ExecContext(ctx, `
			UPDATE inventory_lots
			SET remaining_qty = remaining_qty - $2
			WHERE id = $1
		`, d.lotID, d.take); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	if remaining > 0 {
		totalCost += remaining * productCost
	}
	return totalCost / qty, nil
}

func (s *Store) AdjustProductStock(ctx context.Context, productID int64, delta int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock_qty = stock_qty + $2
		WHERE id = $1 AND stock_qty + $2 >= 0
	`, productID, delta)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.GetProduct(ctx, productID); err != nil {
			return err
		}
		return store.ErrInsufficientStock
	}
	return nil
}

func (s *Store) CreateStockMovement(ctx context.Context, movement domain.StockMovement) error {
	if movement.MovedAt.IsZero() {
		movement.MovedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, order_id, kind, qty, unit_price_cents,
			unit_cost_cents, reason, notes, moved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, movement.ID, movement.ProductID, nullIfZero(movement.OrderID), movement.Kind, movement.Qty,
		movement.UnitPriceCents, movement.UnitCostCents, movement.Reason, nullIfEmpty(movement.Notes), movement.MovedAt)
	return err
}

func (s *Store) SumStockMovements(ctx context.Context, orderID int64, productID int64, kind string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(qty), 0)
		FROM stock_movements
		WHERE order_id = $1 AND product_id = $2 AND kind = $3
	`, orderID, productID, kind).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Service orders.

func (s *Store) NextOrderNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT nextval('service_order_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("OS-%d-%04d", time.Now().UTC().Year(), seq), nil
}

const orderColumns = `o.id, o.number, o.client_id, COALESCE(o.vehicle_id, 0), o.type, o.status,
	o.odometer_km, COALESCE(o.service_description,''), o.service_charge_cents,
	o.discount_percent, o.discount_scope, COALESCE(o.notes,''), COALESCE(o.assigned_to,''),
	o.parts_cents, o.service_cents, o.subtotal_cents, o.discount_cents, o.total_cents,
	COALESCE(o.cancel_reason,''), o.opened_at, o.completed_at, o.created_at, o.updated_at,
	COALESCE(c.name,''), COALESCE(c.phone,''), COALESCE(v.plate,''), COALESCE(v.make,''), COALESCE(v.model,'')`

func scanOrder(row interface{ Scan(...any) error }) (*domain.ServiceOrder, error) {
	var o domain.ServiceOrder
	var completedAt sql.NullTime
	err := row.Scan(&o.ID, &o.Number, &o.ClientID, &o.VehicleID, &o.Type, &o.Status,
		&o.OdometerKM, &o.ServiceDescription, &o.ServiceChargeCents,
		&o.DiscountPercent, &o.DiscountScope, &o.Notes, &o.AssignedTo,
		&o.PartsCents, &o.ServiceCents, &o.SubtotalCents, &o.DiscountCents, &o.TotalCents,
		&o.CancelReason, &o.OpenedAt, &completedAt, &o.CreatedAt, &o.UpdatedAt,
		&o.ClientName, &o.ClientPhone, &o.VehiclePlate, &o.VehicleMake, &o.VehicleModel)
	if err != nil {
		return nil, err
	}
	o.OpenedAt = o.OpenedAt.UTC()
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		o.CompletedAt = &t
	}
	return &o, nil
}

func (s *Store) loadOrderItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, COALESCE(product_id,0), COALESCE(lot_id,0), description,
			qty, unit_price_cents, total_cents, kind, COALESCE(notes,''), COALESCE(product_name,'')
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.LotID, &item.Description,
			&item.Qty, &item.UnitPriceCents, &item.TotalCents, &item.Kind, &item.Notes, &item.ProductName); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func insertOrderItems(ctx context.Context, tx *sql.Tx, orderID int64, items []domain.OrderItem) error {
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, lot_id, description, qty,
				unit_price_cents, total_cents, kind, notes, product_name)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, orderID, nullIfZero(item.ProductID), nullIfZero(item.LotID), item.Description, item.Qty,
			item.UnitPriceCents, item.TotalCents, item.Kind, nullIfEmpty(item.Notes), nullIfEmpty(item.ProductName)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.ServiceOrder) (*domain.ServiceOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if order.OpenedAt.IsZero() {
		order.OpenedAt = time.Now().UTC()
	}
	var orderID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO service_orders (number, client_id, vehicle_id, type, status, odometer_km,
			service_description, service_charge_cents, discount_percent, discount_scope,
			notes, assigned_to, parts_cents, service_cents, subtotal_cents, discount_cents,
			total_cents, opened_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())
		RETURNING id
	`, order.Number, order.ClientID, nullIfZero(order.VehicleID), order.Type, order.Status,
		order.OdometerKM, nullIfEmpty(order.ServiceDescription), order.ServiceChargeCents,
		order.DiscountPercent, order.DiscountScope, nullIfEmpty(order.Notes), nullIfEmpty(order.AssignedTo),
		order.PartsCents, order.ServiceCents, order.SubtotalCents, order.DiscountCents,
		order.TotalCents, order.OpenedAt).Scan(&orderID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := insertOrderItems(ctx, tx, orderID, order.Items); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.ServiceOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM service_orders o
		LEFT JOIN clients c ON c.id = o.client_id
		LEFT JOIN vehicles v ON v.id = o.vehicle_id
		WHERE o.id = $1
	`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *Store) UpdateOrder(ctx context.Context, order domain.ServiceOrder) (*domain.ServiceOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE service_orders
		SET vehicle_id = $2, type = $3, odometer_km = $4, service_description = $5,
			service_charge_cents = $6, discount_percent = $7, discount_scope = $8,
			notes = $9, assigned_to = $10, parts_cents = $11, service_cents = $12,
			subtotal_cents = $13, discount_cents = $14, total_cents = $15, updated_at = now()
		WHERE id = $1
	`, order.ID, nullIfZero(order.VehicleID), order.Type, order.OdometerKM,
		nullIfEmpty(order.ServiceDescription), order.ServiceChargeCents, order.DiscountPercent,
		order.DiscountScope, nullIfEmpty(order.Notes), nullIfEmpty(order.AssignedTo),
		order.PartsCents, order.ServiceCents, order.SubtotalCents, order.DiscountCents, order.TotalCents)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	// Items are replaced wholesale on edit.
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return nil, err
	}
	if err := insertOrderItems(ctx, tx, order.ID, order.Items); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, order.ID)
}

func (s *Store) SetOrderStatus(ctx context.Context, id int64, status string, reason string, completedAt *time.Time) (*domain.ServiceOrder, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE service_orders
		SET status = $2, cancel_reason = $3, completed_at = $4, updated_at = now()
		WHERE id = $1
	`, id, status, nullIfEmpty(reason), nullTime(completedAt))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderSummary, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.number, o.client_id, COALESCE(c.name,''), COALESCE(o.vehicle_id,0),
			COALESCE(v.plate,''), o.type, o.status, o.opened_at, o.total_cents
		FROM service_orders o
		LEFT JOIN clients c ON c.id = o.client_id
		LEFT JOIN vehicles v ON v.id = o.vehicle_id
		WHERE ($3 = 0 OR o.client_id = $3)
		  AND ($4 = 0 OR o.vehicle_id = $4)
		  AND ($5 = '' OR o.type = $5)
		  AND ($6 = '' OR o.status = $6)
		  AND ($7::timestamptz IS NULL OR o.opened_at >= $7)
		  AND ($8::timestamptz IS NULL OR o.opened_at <= $8)
		ORDER BY o.opened_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset, filter.ClientID, filter.VehicleID, filter.Type, filter.Status,
		nullTimeValue(filter.From), nullTimeValue(filter.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]domain.OrderSummary, 0, limit)
	for rows.Next() {
		var summary domain.OrderSummary
		if err := rows.Scan(&summary.ID, &summary.Number, &summary.ClientID, &summary.ClientName,
			&summary.VehicleID, &summary.VehiclePlate, &summary.Type, &summary.Status,
			&summary.OpenedAt, &summary.TotalCents); err != nil {
			return nil, err
		}
		summary.OpenedAt = summary.OpenedAt.UTC()
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Store) GetOrderStats(ctx context.Context, now time.Time) (domain.OrderStats, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var stats domain.OrderStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(*) FILTER (WHERE status = 'IN_PROGRESS'),
			COUNT(*) FILTER (WHERE status = 'AWAITING_PART'),
			COUNT(*) FILTER (WHERE status = 'AWAITING_APPROVAL'),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED'),
			COALESCE(SUM(total_cents) FILTER (WHERE status = 'COMPLETED'), 0),
			COALESCE(SUM(total_cents) FILTER (WHERE status = 'COMPLETED' AND completed_at >= $1), 0)
		FROM service_orders
	`, monthStart).Scan(&stats.Total, &stats.Pending, &stats.InProgress, &stats.AwaitingPart,
		&stats.AwaitingApproval, &stats.Completed, &stats.Cancelled,
		&stats.RevenueCents, &stats.RevenueMonthCents)
	if err != nil {
		return domain.OrderStats{}, err
	}
	return stats, nil
}

// Shop settings.

func (s *Store) GetSetting(ctx context.Context, key string) (*domain.Setting, error) {
	var setting domain.Setting
	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, COALESCE(description,''), COALESCE(kind,'')
		FROM shop_settings
		WHERE key = $1
	`, key).Scan(&setting.Key, &setting.Value, &setting.Description, &setting.Kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &setting, nil
}

func (s *Store) UpsertSetting(ctx context.Context, setting domain.Setting) (*domain.Setting, error) {
	var stored domain.Setting
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO shop_settings (key, value, description, kind, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
			description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE shop_settings.description END,
			kind = CASE WHEN EXCLUDED.kind <> '' THEN EXCLUDED.kind ELSE shop_settings.kind END,
			updated_at = now()
		RETURNING key, value, COALESCE(description,''), COALESCE(kind,'')
	`, setting.Key, setting.Value, setting.Description, setting.Kind).
		Scan(&stored.Key, &stored.Value, &stored.Description, &stored.Kind)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *Store) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, COALESCE(description,''), COALESCE(kind,'')
		FROM shop_settings
		ORDER BY key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make([]domain.Setting, 0, 8)
	for rows.Next() {
		var setting domain.Setting
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.Description, &setting.Kind); err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Maintenance history.

func (s *Store) CreateMaintenanceRecord(ctx context.Context, record domain.MaintenanceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_records (id, vehicle_id, order_id, kind, description,
			odometer_km, next_due_km, next_due_at, performed_at, total_cents, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, record.ID, record.VehicleID, record.OrderID, record.Kind, record.Description,
		record.OdometerKM, nullIfZero(record.NextDueKM), nullTime(record.NextDueAt),
		record.PerformedAt, record.TotalCents, nullIfEmpty(record.Notes))
	return err
}

func (s *Store) ListMaintenanceByVehicle(ctx context.Context, vehicleID int64) ([]domain.MaintenanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vehicle_id, order_id, kind, description, odometer_km,
			COALESCE(next_due_km,0), next_due_at, performed_at, total_cents, COALESCE(notes,'')
		FROM maintenance_records
		WHERE vehicle_id = $1
		ORDER BY performed_at DESC
	`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.MaintenanceRecord, 0, 8)
	for rows.Next() {
		var record domain.MaintenanceRecord
		var nextDueAt sql.NullTime
		if err := rows.Scan(&record.ID, &record.VehicleID, &record.OrderID, &record.Kind,
			&record.Description, &record.OdometerKM, &record.NextDueKM, &nextDueAt,
			&record.PerformedAt, &record.TotalCents, &record.Notes); err != nil {
			return nil, err
		}
		record.PerformedAt = record.PerformedAt.UTC()
		if nextDueAt.Valid {
			t := nextDueAt.Time.UTC()
			record.NextDueAt = &t
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) HasMaintenanceForOrder(ctx context.Context, orderID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM maintenance_records WHERE order_id = $1)
	`, orderID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Audit trail.

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.Actor, entry.Action, entry.EntityType, entry.EntityID,
		nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, entity_type, entity_id, COALESCE(detail,''), created_at
		FROM audit_logs
		WHERE ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
		ORDER BY created_at DESC
		LIMIT $1
	`, limit, nullTimeValue(from), nullTimeValue(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// Operator accounts.

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidOrder
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES ($1,$2,$3,now())
	`, user.Username, string(hash), user.Role)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("username %s already exists", user.Username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = $1
	`, username, string(hash))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullIfZero(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}

func nullTimeValue(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val.UTC()
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
