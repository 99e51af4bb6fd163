package service

import (
	"context"
	"errors"
	"testing"

	"autocare/backend/internal/domain"
)

func sessionWithClient(svc *Service) *Session {
	se := svc.NewSession()
	se.SetClient(domain.Client{ID: 1, Name: "Maria Silva", Active: true})
	return se
}

func TestSessionDiscountAboveCeilingRollsBack(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)
	ctx := context.Background()

	applied := se.SetDiscountPercent(ctx, 20)
	if applied != 15 {
		t.Fatalf("expected discount clamped to 15, got %v", applied)
	}

	select {
	case challenge := <-se.Challenges():
		if challenge.Field != domain.GuardedFieldDiscount {
			t.Fatalf("expected discount challenge, got %s", challenge.Field)
		}
		if challenge.Attempted != 20 || challenge.Boundary != 15 {
			t.Fatalf("expected attempted 20 boundary 15, got %+v", challenge)
		}
	default:
		t.Fatalf("expected an authorization challenge to be emitted")
	}
}

func TestSessionDiscountAuthorizationPromotesAttempted(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)
	ctx := context.Background()

	se.SetDiscountPercent(ctx, 20)
	if err := se.AuthorizeDiscount(ctx, "supervisor123"); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}

	if _, err := se.AddServiceItem("Mão de obra avulsa", 1, 10000); err != nil {
		t.Fatalf("add item: %v", err)
	}
	se.SetVehicle(domain.Vehicle{ID: 1, ClientID: 1, Plate: "ABC1234", OdometerKM: 45000, Active: true})
	se.SetServiceDescription("Serviço avulso")

	// The vehicle upgrade locks the session to SERVICE_ONLY and the scope to
	// SERVICE, so the authorized 20% applies to the service portion.
	totals := se.Totals()
	if totals.DiscountCents != 2000 {
		t.Fatalf("expected discount 2000 at 20%%, got %d", totals.DiscountCents)
	}
}

func TestSessionDiscountBadCredentialKeepsPending(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)
	ctx := context.Background()

	se.SetDiscountPercent(ctx, 30)
	if err := se.AuthorizeDiscount(ctx, "wrong"); err == nil {
		t.Fatalf("expected bad credential to be rejected")
	}
	if err := se.AuthorizeDiscount(ctx, "supervisor123"); err != nil {
		t.Fatalf("expected retry with good credential to pass, got %v", err)
	}
}

func TestSessionDiscountCancelRestoresCeiling(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)
	ctx := context.Background()

	se.SetDiscountPercent(ctx, 40)
	se.CancelDiscountChallenge()

	if _, err := se.AddServiceItem("Diagnóstico", 1, 10000); err != nil {
		t.Fatalf("add item: %v", err)
	}
	se.SetVehicle(domain.Vehicle{ID: 1, ClientID: 1, Plate: "ABC1234", OdometerKM: 45000, Active: true})

	totals := se.Totals()
	if totals.DiscountCents != 1500 {
		t.Fatalf("expected discount held at ceiling (1500), got %d", totals.DiscountCents)
	}
}

func TestSessionOdometerRollbackRequiresAuthorization(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)
	ctx := context.Background()

	se.SetVehicle(domain.Vehicle{ID: 1, ClientID: 1, Plate: "ABC1234", OdometerKM: 45000, Active: true})

	applied := se.SetOdometer(40000)
	if applied != 45000 {
		t.Fatalf("expected odometer held at 45000, got %d", applied)
	}

	if err := se.AuthorizeOdometer(ctx, "supervisor123"); err != nil {
		t.Fatalf("authorize failed: %v", err)
	}
	se.SetServiceDescription("Troca de painel")
	order, err := se.Submit(ctx)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if order.OdometerKM != 40000 {
		t.Fatalf("expected authorized odometer 40000 on order, got %d", order.OdometerKM)
	}
}

func TestSessionAddProductRequiresLotChoiceOnPriceSplit(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)
	ctx := context.Background()

	_, options, err := se.AddProduct(ctx, 1, 2)
	if !errors.Is(err, ErrLotChoiceRequired) {
		t.Fatalf("expected ErrLotChoiceRequired, got %v", err)
	}
	if options == nil || len(options.Lots) != 2 {
		t.Fatalf("expected 2 lot options, got %+v", options)
	}
	if options.Lots[0].SalePriceCents != 4300 {
		t.Fatalf("expected oldest lot ranked first, got %d", options.Lots[0].SalePriceCents)
	}
	if len(se.Items()) != 0 {
		t.Fatalf("expected no item added before explicit choice")
	}

	item, err := se.AddProductWithLot(options.Product, options.Lots[1], 2)
	if err != nil {
		t.Fatalf("add with lot failed: %v", err)
	}
	if item.UnitPriceCents != 4500 || item.TotalCents != 9000 {
		t.Fatalf("expected chosen lot price 4500 total 9000, got %d/%d", item.UnitPriceCents, item.TotalCents)
	}
}

func TestSessionAddProductAutoPicksSingleLot(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)

	item, options, err := se.AddProduct(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("add product failed: %v", err)
	}
	if options != nil {
		t.Fatalf("expected no options for single lot")
	}
	if item.UnitPriceCents != 2500 || item.LotID == 0 {
		t.Fatalf("expected lot auto-pick at 2500, got %+v", item)
	}
}

func TestSessionAddProductCatalogFallbackWithoutLots(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)

	// Product 5 has no registered lots; the item is priced from the catalog
	// with no lot binding.
	item, _, err := se.AddProduct(context.Background(), 5, 1)
	if err != nil {
		t.Fatalf("add product failed: %v", err)
	}
	if item.UnitPriceCents != 3200 || item.LotID != 0 {
		t.Fatalf("expected catalog price 3200 without lot, got %+v", item)
	}
}

func TestSessionVehicleAttachmentUpgradesType(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)

	if se.OrderType() != domain.OrderTypeSale {
		t.Fatalf("expected SALE_ONLY before vehicle, got %s", se.OrderType())
	}

	se.SetVehicle(domain.Vehicle{ID: 1, ClientID: 1, Plate: "ABC1234", OdometerKM: 45000, Active: true})
	if se.OrderType() != domain.OrderTypeService {
		t.Fatalf("expected SERVICE_ONLY after vehicle, got %s", se.OrderType())
	}

	se.ClearVehicle()
	if se.OrderType() != domain.OrderTypeSale {
		t.Fatalf("expected SALE_ONLY after clearing vehicle, got %s", se.OrderType())
	}
}

func TestSessionTypeSwitchFiltersItemsAndScope(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)
	ctx := context.Background()

	se.SetVehicle(domain.Vehicle{ID: 1, ClientID: 1, Plate: "ABC1234", OdometerKM: 45000, Active: true})
	if err := se.SetOrderType(domain.OrderTypeSaleAndService); err != nil {
		t.Fatalf("set type: %v", err)
	}
	if _, _, err := se.AddProduct(ctx, 2, 1); err != nil {
		t.Fatalf("add product: %v", err)
	}
	if _, err := se.AddServiceItem("Troca de filtro", 1, 5000); err != nil {
		t.Fatalf("add service item: %v", err)
	}
	if err := se.SetDiscountScope(domain.DiscountScopeSale); err != nil {
		t.Fatalf("set scope: %v", err)
	}

	if err := se.SetOrderType(domain.OrderTypeService); err != nil {
		t.Fatalf("set type: %v", err)
	}

	items := se.Items()
	if len(items) != 1 || items[0].Kind != domain.ItemKindService {
		t.Fatalf("expected only the service item to survive, got %+v", items)
	}
	if se.DiscountScope() != domain.DiscountScopeService {
		t.Fatalf("expected scope re-locked to SERVICE, got %s", se.DiscountScope())
	}
}

func TestSessionServiceTypeWithoutVehicleRejected(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)

	if err := se.SetOrderType(domain.OrderTypeService); err == nil {
		t.Fatalf("expected service type without vehicle to be rejected")
	}
}

func TestSessionSubmitKeepsDraftOnFailure(t *testing.T) {
	svc, _ := newTestService()
	se := svc.NewSession()
	ctx := context.Background()

	if _, err := se.Submit(ctx); err == nil {
		t.Fatalf("expected submit without client to fail")
	}

	se.SetClient(domain.Client{ID: 1, Name: "Maria Silva", Active: true})
	if _, _, err := se.AddProduct(ctx, 2, 1); err != nil {
		t.Fatalf("add product: %v", err)
	}

	order, err := se.Submit(ctx)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if order.Status != domain.OrderStatusPending || len(order.Items) != 1 {
		t.Fatalf("expected pending order with 1 item, got %+v", order)
	}
}

func TestSessionUpdateItemRecomputesTotal(t *testing.T) {
	svc, _ := newTestService()
	se := sessionWithClient(svc)

	item, _, err := se.AddProduct(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("add product: %v", err)
	}
	if err := se.UpdateItem(item.ID, 4, 2600); err != nil {
		t.Fatalf("update item: %v", err)
	}

	items := se.Items()
	if items[0].TotalCents != 10400 {
		t.Fatalf("expected total recomputed to 10400, got %d", items[0].TotalCents)
	}

	if err := se.RemoveItem(item.ID); err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if len(se.Items()) != 0 {
		t.Fatalf("expected item removed")
	}
}
