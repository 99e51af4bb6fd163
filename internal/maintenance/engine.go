package maintenance

import (
	"strings"
	"time"

	"autocare/backend/internal/domain"
	"autocare/backend/internal/xid"
)

// Engine turns completed service-bearing orders into maintenance history
// entries and computes due suggestions from a vehicle's odometer.
type Engine struct {
	// A suggestion surfaces once the vehicle is within this many km of the
	// predicted next service.
	upcomingWindowKM int64
	// Rough driving pace used to estimate a due date from remaining km.
	kmPerMonth int64
}

func NewEngine() *Engine {
	return &Engine{
		upcomingWindowKM: 1000,
		kmPerMonth:       1000,
	}
}

type intervalRule struct {
	keywords   []string
	intervalKM int64
}

// Keyword table ordered by specificity; first match wins. Descriptions are
// typed by attendants in Portuguese, with English synonyms kept for mixed
// catalogs.
var intervalRules = []intervalRule{
	{keywords: []string{"óleo", "oleo", "oil", "lubrifica"}, intervalKM: 5000},
	{keywords: []string{"correia", "timing belt", "belt"}, intervalKM: 50000},
	{keywords: []string{"vela", "spark plug"}, intervalKM: 20000},
	{keywords: []string{"freio", "pastilha", "disco", "brake", "pad"}, intervalKM: 30000},
	{keywords: []string{"amortecedor", "suspens", "shock", "suspension"}, intervalKM: 40000},
	{keywords: []string{"pneu", "alinhamento", "balanceamento", "tire", "alignment"}, intervalKM: 10000},
	{keywords: []string{"bateria", "battery"}, intervalKM: 50000},
	{keywords: []string{"ar condicionado", "a/c", "air conditioning"}, intervalKM: 15000},
	{keywords: []string{"filtro", "filter"}, intervalKM: 10000},
	{keywords: []string{"revisão", "revisao", "inspection", "revision"}, intervalKM: 10000},
}

const defaultIntervalKM = 10000

// InferIntervalKM maps a freeform service description to a recommended
// next-service distance.
func InferIntervalKM(description string) int64 {
	lower := strings.ToLower(description)
	for _, rule := range intervalRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intervalKM
			}
		}
	}
	return defaultIntervalKM
}

// BuildRecord derives a maintenance history entry from a completed order.
// Returns nil when the order carries no vehicle or no service component.
func (e *Engine) BuildRecord(order domain.ServiceOrder, vehicle domain.Vehicle, completedAt time.Time) *domain.MaintenanceRecord {
	if order.VehicleID == 0 || order.Type == domain.OrderTypeSale {
		return nil
	}

	descriptions := make([]string, 0, len(order.Items)+1)
	kind := "Maintenance"
	for _, item := range order.Items {
		if item.Kind != domain.ItemKindService || item.Description == "" {
			continue
		}
		descriptions = append(descriptions, item.Description)
	}
	if len(descriptions) > 0 {
		kind = descriptions[0]
	} else if order.ServiceDescription != "" {
		descriptions = append(descriptions, order.ServiceDescription)
		kind = order.ServiceDescription
	}
	description := strings.Join(descriptions, ", ")
	if description == "" {
		description = "Service performed"
	}
	if len(kind) > 100 {
		kind = kind[:100]
	}

	odometer := order.OdometerKM
	if odometer == 0 {
		odometer = vehicle.OdometerKM
	}

	record := domain.MaintenanceRecord{
		ID:          xid.New("mh"),
		VehicleID:   order.VehicleID,
		OrderID:     order.ID,
		Kind:        kind,
		Description: description,
		OdometerKM:  odometer,
		PerformedAt: completedAt,
		TotalCents:  order.TotalCents,
		Notes:       order.Notes,
	}

	if odometer > 0 {
		interval := InferIntervalKM(description)
		record.NextDueKM = odometer + interval
		months := interval / e.kmPerMonth
		if months > 0 {
			due := completedAt.AddDate(0, int(months), 0)
			record.NextDueAt = &due
		}
	}

	return &record
}

// Suggestions compares a vehicle's maintenance history against its current
// odometer and reports services that are due or overdue. Records superseded
// by a later service of the same kind are skipped.
func (e *Engine) Suggestions(records []domain.MaintenanceRecord, currentKM int64) []domain.MaintenanceSuggestion {
	suggestions := make([]domain.MaintenanceSuggestion, 0, len(records))

	for i, record := range records {
		if record.NextDueKM == 0 {
			continue
		}
		remaining := record.NextDueKM - currentKM
		if remaining > e.upcomingWindowKM {
			continue
		}

		superseded := false
		for j, later := range records {
			if i == j || later.Kind != record.Kind {
				continue
			}
			if later.PerformedAt.After(record.PerformedAt) && later.OdometerKM >= record.NextDueKM {
				superseded = true
				break
			}
		}
		if superseded {
			continue
		}

		urgency := "upcoming"
		if remaining <= 0 {
			urgency = "overdue"
		}
		suggestions = append(suggestions, domain.MaintenanceSuggestion{
			Kind:        record.Kind,
			LastKM:      record.OdometerKM,
			LastAt:      record.PerformedAt,
			DueKM:       record.NextDueKM,
			KMRemaining: remaining,
			Urgency:     urgency,
		})
	}

	return suggestions
}
