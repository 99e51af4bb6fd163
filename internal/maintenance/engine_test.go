package maintenance

import (
	"testing"
	"time"

	"autocare/backend/internal/domain"
)

func TestInferIntervalKM(t *testing.T) {
	tests := []struct {
		description string
		want        int64
	}{
		{"Troca de óleo do motor", 5000},
		{"troca de oleo e filtro", 5000},
		{"Substituição da correia dentada", 50000},
		{"Troca das velas de ignição", 20000},
		{"Pastilhas de freio dianteiras", 30000},
		{"Amortecedores traseiros", 40000},
		{"Alinhamento e balanceamento", 10000},
		{"Troca da bateria", 50000},
		{"Higienização do ar condicionado", 15000},
		{"Filtro de cabine", 10000},
		{"Revisão dos 30 mil", 10000},
		{"Solda no escapamento", 10000},
	}

	for _, tc := range tests {
		if got := InferIntervalKM(tc.description); got != tc.want {
			t.Fatalf("InferIntervalKM(%q) = %d, want %d", tc.description, got, tc.want)
		}
	}
}

func TestBuildRecordSkipsNonServiceOrders(t *testing.T) {
	engine := NewEngine()
	now := time.Now()
	vehicle := domain.Vehicle{ID: 1, OdometerKM: 45000}

	noVehicle := domain.ServiceOrder{ID: 1, Type: domain.OrderTypeService}
	if record := engine.BuildRecord(noVehicle, vehicle, now); record != nil {
		t.Fatalf("expected nil record without a vehicle, got %+v", record)
	}

	plainSale := domain.ServiceOrder{ID: 2, VehicleID: 1, Type: domain.OrderTypeSale}
	if record := engine.BuildRecord(plainSale, vehicle, now); record != nil {
		t.Fatalf("expected nil record for a plain sale, got %+v", record)
	}
}

func TestBuildRecordComputesNextDue(t *testing.T) {
	engine := NewEngine()
	completedAt := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	order := domain.ServiceOrder{
		ID:         7,
		VehicleID:  1,
		Type:       domain.OrderTypeService,
		OdometerKM: 46000,
		TotalCents: 18000,
		Items: []domain.OrderItem{
			{Kind: domain.ItemKindService, Description: "Troca de óleo do motor"},
			{Kind: domain.ItemKindProduct, Description: "Óleo 5W30"},
		},
	}
	vehicle := domain.Vehicle{ID: 1, OdometerKM: 45000}

	record := engine.BuildRecord(order, vehicle, completedAt)
	if record == nil {
		t.Fatalf("expected a maintenance record")
	}
	if record.Kind != "Troca de óleo do motor" {
		t.Fatalf("expected kind from first service item, got %q", record.Kind)
	}
	if record.OdometerKM != 46000 {
		t.Fatalf("expected order odometer 46000, got %d", record.OdometerKM)
	}
	if record.NextDueKM != 51000 {
		t.Fatalf("expected next due at 51000 km, got %d", record.NextDueKM)
	}
	if record.NextDueAt == nil {
		t.Fatalf("expected a due date estimate")
	}
	if want := completedAt.AddDate(0, 5, 0); !record.NextDueAt.Equal(want) {
		t.Fatalf("expected due date %v, got %v", want, *record.NextDueAt)
	}
	if record.TotalCents != 18000 {
		t.Fatalf("expected total carried over, got %d", record.TotalCents)
	}
}

func TestBuildRecordFallsBackToVehicleOdometer(t *testing.T) {
	engine := NewEngine()
	order := domain.ServiceOrder{
		ID:                 3,
		VehicleID:          1,
		Type:               domain.OrderTypeService,
		ServiceDescription: "Revisão geral",
	}
	vehicle := domain.Vehicle{ID: 1, OdometerKM: 98000}

	record := engine.BuildRecord(order, vehicle, time.Now())
	if record == nil {
		t.Fatalf("expected a maintenance record")
	}
	if record.OdometerKM != 98000 {
		t.Fatalf("expected vehicle odometer fallback, got %d", record.OdometerKM)
	}
	if record.Kind != "Revisão geral" {
		t.Fatalf("expected kind from order description, got %q", record.Kind)
	}
	if record.NextDueKM != 108000 {
		t.Fatalf("expected next due at 108000 km, got %d", record.NextDueKM)
	}
}

func TestSuggestionsUrgency(t *testing.T) {
	engine := NewEngine()
	performed := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	records := []domain.MaintenanceRecord{
		{Kind: "Troca de óleo", OdometerKM: 44000, NextDueKM: 49000, PerformedAt: performed},
		{Kind: "Correia dentada", OdometerKM: 10000, NextDueKM: 60000, PerformedAt: performed},
		{Kind: "Pastilhas de freio", OdometerKM: 20000, NextDueKM: 50200, PerformedAt: performed},
	}

	suggestions := engine.Suggestions(records, 50000)
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d: %+v", len(suggestions), suggestions)
	}

	byKind := map[string]domain.MaintenanceSuggestion{}
	for _, s := range suggestions {
		byKind[s.Kind] = s
	}

	oil, ok := byKind["Troca de óleo"]
	if !ok || oil.Urgency != "overdue" || oil.KMRemaining != -1000 {
		t.Fatalf("expected overdue oil change 1000 km past due, got %+v", oil)
	}
	brakes, ok := byKind["Pastilhas de freio"]
	if !ok || brakes.Urgency != "upcoming" || brakes.KMRemaining != 200 {
		t.Fatalf("expected upcoming brake service in 200 km, got %+v", brakes)
	}
	if _, ok := byKind["Correia dentada"]; ok {
		t.Fatalf("expected belt service outside the window to be skipped")
	}
}

func TestSuggestionsSkipSupersededRecords(t *testing.T) {
	engine := NewEngine()
	first := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	records := []domain.MaintenanceRecord{
		{Kind: "Troca de óleo", OdometerKM: 40000, NextDueKM: 45000, PerformedAt: first},
		{Kind: "Troca de óleo", OdometerKM: 45200, NextDueKM: 50200, PerformedAt: second},
	}

	suggestions := engine.Suggestions(records, 50000)
	if len(suggestions) != 1 {
		t.Fatalf("expected only the latest oil record to suggest, got %+v", suggestions)
	}
	if suggestions[0].DueKM != 50200 {
		t.Fatalf("expected suggestion from the newer record, got %+v", suggestions[0])
	}
}
