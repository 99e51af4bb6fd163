package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"autocare/backend/internal/domain"
	"autocare/backend/internal/store"
)

func TestCreateClientDuplicateDocument(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CreateClient(ctx, domain.Client{Name: "Outra Maria", Document: "529.982.247-25"})
	var conflict *store.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if conflict.Resource != "client" || conflict.Field != "document" {
		t.Fatalf("unexpected conflict detail: %+v", conflict)
	}
	if conflict.ExistingID != 1 || conflict.ExistingName != "Maria Silva" {
		t.Fatalf("expected pointer to Maria Silva (1), got %+v", conflict)
	}
}

func TestListClientsMatchesDigitsAcrossFormatting(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	byDoc, err := s.ListClients(ctx, "529.982", true, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byDoc) != 1 || byDoc[0].ID != 1 {
		t.Fatalf("expected formatted document fragment to match Maria, got %+v", byDoc)
	}

	byPhone, err := s.ListClients(ctx, "(11) 91234-5678", true, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byPhone) != 1 || byPhone[0].ID != 2 {
		t.Fatalf("expected phone match for João, got %+v", byPhone)
	}
}

func TestCreateVehicleDuplicatePlateReportsOwner(t *testing.T) {
	s := NewSeeded()

	_, err := s.CreateVehicle(context.Background(), domain.Vehicle{ClientID: 2, Plate: "abc-1234"})
	var conflict *store.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if conflict.Resource != "vehicle" || conflict.ExistingName != "Maria Silva" {
		t.Fatalf("expected owner name on plate conflict, got %+v", conflict)
	}
}

func TestFindVehicleByPlateNormalized(t *testing.T) {
	s := NewSeeded()

	vehicle, err := s.FindVehicleByPlate(context.Background(), "BRA2E19")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if vehicle.ID != 2 || vehicle.Model != "Argo" {
		t.Fatalf("expected Argo (2), got %+v", vehicle)
	}
}

func TestConsumeLotsFIFOWeightedAverage(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Product 1 lots: 15 @ cost 2600 (older) then 25 @ cost 2800. Drawing 20
	// takes all of the first lot and 5 from the second.
	avgCost, err := s.ConsumeLotsFIFO(ctx, 1, 20)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if want := (15*int64(2600) + 5*int64(2800)) / 20; avgCost != want {
		t.Fatalf("expected weighted cost %d, got %d", want, avgCost)
	}

	lots, err := s.ListAvailableLots(ctx, 1)
	if err != nil {
		t.Fatalf("list lots: %v", err)
	}
	if len(lots) != 1 || lots[0].RemainingQty != 20 {
		t.Fatalf("expected only newer lot with 20 left, got %+v", lots)
	}
}

func TestConsumeLotsFIFOShortfallUsesCatalogCost(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Product 4 has one lot of 10 at cost 7400; catalog cost is also 7400.
	// Draw more than the lot holds and the remainder is catalog-costed.
	avgCost, err := s.ConsumeLotsFIFO(ctx, 4, 12)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if avgCost != 7400 {
		t.Fatalf("expected avg cost 7400 with catalog fallback, got %d", avgCost)
	}

	lots, err := s.ListAvailableLots(ctx, 4)
	if err != nil {
		t.Fatalf("list lots: %v", err)
	}
	if len(lots) != 0 {
		t.Fatalf("expected lot exhausted, got %+v", lots)
	}
}

func TestAdjustProductStockGuardsNegative(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if err := s.AdjustProductStock(ctx, 2, -25); err != nil {
		t.Fatalf("adjust to zero: %v", err)
	}
	if err := s.AdjustProductStock(ctx, 2, -1); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	product, err := s.GetProduct(ctx, 2)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.StockQty != 0 {
		t.Fatalf("expected stock held at 0, got %d", product.StockQty)
	}
}

func TestSumStockMovementsFiltersByKind(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	for _, m := range []domain.StockMovement{
		{OrderID: 9, ProductID: 1, Kind: domain.MovementOut, Qty: 3},
		{OrderID: 9, ProductID: 1, Kind: domain.MovementOut, Qty: 2},
		{OrderID: 9, ProductID: 1, Kind: domain.MovementIn, Qty: 2},
		{OrderID: 8, ProductID: 1, Kind: domain.MovementOut, Qty: 7},
	} {
		if err := s.CreateStockMovement(ctx, m); err != nil {
			t.Fatalf("create movement: %v", err)
		}
	}

	out, err := s.SumStockMovements(ctx, 9, 1, domain.MovementOut)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if out != 5 {
		t.Fatalf("expected OUT total 5, got %d", out)
	}
	in, err := s.SumStockMovements(ctx, 9, 1, domain.MovementIn)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if in != 2 {
		t.Fatalf("expected IN total 2, got %d", in)
	}
}

func TestNextOrderNumberSequencing(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	first, err := s.NextOrderNumber(ctx)
	if err != nil {
		t.Fatalf("next number: %v", err)
	}
	second, err := s.NextOrderNumber(ctx)
	if err != nil {
		t.Fatalf("next number: %v", err)
	}

	year := time.Now().UTC().Year()
	if first != fmt.Sprintf("OS-%d-0001", year) || second != fmt.Sprintf("OS-%d-0002", year) {
		t.Fatalf("expected sequential numbers, got %s then %s", first, second)
	}
}

func TestUpdateOrderPreservesLifecycleFields(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateOrder(ctx, domain.ServiceOrder{
		Number:   "OS-2026-0001",
		ClientID: 1,
		Type:     domain.OrderTypeSale,
		Status:   domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{Kind: domain.ItemKindProduct, ProductID: 2, Description: "Filtro de Óleo", Qty: 1, UnitPriceCents: 2500, TotalCents: 2500},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if created.Items[0].ID == 0 || created.Items[0].OrderID != created.ID {
		t.Fatalf("expected item IDs assigned, got %+v", created.Items[0])
	}
	if created.ClientName != "Maria Silva" {
		t.Fatalf("expected denormalized client name, got %q", created.ClientName)
	}

	edit := *created
	edit.Number = "OS-HACKED"
	edit.Status = domain.OrderStatusCompleted
	edit.Notes = "cliente retorna amanhã"
	updated, err := s.UpdateOrder(ctx, edit)
	if err != nil {
		t.Fatalf("update order: %v", err)
	}
	if updated.Number != created.Number || updated.Status != domain.OrderStatusPending {
		t.Fatalf("expected number/status preserved, got %s/%s", updated.Number, updated.Status)
	}
	if updated.Notes != "cliente retorna amanhã" {
		t.Fatalf("expected notes applied, got %q", updated.Notes)
	}
}

func TestGetOrderStatsRevenue(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	now := time.Now().UTC()
	lastMonth := now.AddDate(0, -1, 0)

	seedOrder := func(status string, total int64, completedAt *time.Time) {
		created, err := s.CreateOrder(ctx, domain.ServiceOrder{
			ClientID:   1,
			Type:       domain.OrderTypeSale,
			Status:     domain.OrderStatusPending,
			TotalCents: total,
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		if status != domain.OrderStatusPending {
			if _, err := s.SetOrderStatus(ctx, created.ID, status, "", completedAt); err != nil {
				t.Fatalf("set status: %v", err)
			}
		}
	}

	seedOrder(domain.OrderStatusCompleted, 10000, &now)
	seedOrder(domain.OrderStatusCompleted, 5000, &lastMonth)
	seedOrder(domain.OrderStatusPending, 7000, nil)
	seedOrder(domain.OrderStatusCancelled, 3000, nil)

	stats, err := s.GetOrderStats(ctx, now)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Completed != 2 || stats.Pending != 1 || stats.Cancelled != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.RevenueCents != 15000 {
		t.Fatalf("expected lifetime revenue 15000, got %d", stats.RevenueCents)
	}
	if stats.RevenueMonthCents != 10000 {
		t.Fatalf("expected month revenue 10000, got %d", stats.RevenueMonthCents)
	}
}

func TestUpsertSettingPreservesMetadata(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	updated, err := s.UpsertSetting(ctx, domain.Setting{Key: domain.SettingMaxDiscountPercent, Value: "20"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if updated.Value != "20" {
		t.Fatalf("expected value 20, got %q", updated.Value)
	}
	if updated.Kind != "number" || updated.Description == "" {
		t.Fatalf("expected kind/description preserved, got %+v", updated)
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	if got := paginate(items, 2, 0); len(got) != 2 || got[0] != 1 {
		t.Fatalf("expected first page [1 2], got %v", got)
	}
	if got := paginate(items, 2, 4); len(got) != 1 || got[0] != 5 {
		t.Fatalf("expected last partial page [5], got %v", got)
	}
	if got := paginate(items, 10, 7); len(got) != 0 {
		t.Fatalf("expected empty page past the end, got %v", got)
	}
	if got := paginate(items, 0, 0); len(got) != 5 {
		t.Fatalf("expected unlimited page, got %v", got)
	}
}
