package service

import (
	"testing"

	"autocare/backend/internal/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from string
		to   string
		want bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusInProgress, true},
		{domain.OrderStatusPending, domain.OrderStatusCancelled, true},
		{domain.OrderStatusPending, domain.OrderStatusCompleted, false},
		{domain.OrderStatusPending, domain.OrderStatusAwaitingPart, false},
		{domain.OrderStatusInProgress, domain.OrderStatusAwaitingPart, true},
		{domain.OrderStatusInProgress, domain.OrderStatusPending, true},
		{domain.OrderStatusInProgress, domain.OrderStatusCompleted, true},
		{domain.OrderStatusAwaitingPart, domain.OrderStatusInProgress, true},
		{domain.OrderStatusAwaitingApproval, domain.OrderStatusCompleted, true},
		{domain.OrderStatusCompleted, domain.OrderStatusInProgress, false},
		{domain.OrderStatusCancelled, domain.OrderStatusPending, false},
	}

	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if !IsTerminalStatus(domain.OrderStatusCompleted) || !IsTerminalStatus(domain.OrderStatusCancelled) {
		t.Fatalf("expected COMPLETED and CANCELLED to be terminal")
	}
	if IsTerminalStatus(domain.OrderStatusAwaitingPart) {
		t.Fatalf("expected AWAITING_PART to be non-terminal")
	}
}

func TestValidOrderStatus(t *testing.T) {
	if !ValidOrderStatus(domain.OrderStatusAwaitingApproval) {
		t.Fatalf("expected AWAITING_APPROVAL to be valid")
	}
	if ValidOrderStatus("SHIPPED") {
		t.Fatalf("expected unknown status to be invalid")
	}
}

func TestStockAppliedStatuses(t *testing.T) {
	if !stockApplied(domain.OrderStatusInProgress) || !stockApplied(domain.OrderStatusCompleted) {
		t.Fatalf("expected IN_PROGRESS and COMPLETED to imply stock drawn")
	}
	if stockApplied(domain.OrderStatusPending) || stockApplied(domain.OrderStatusAwaitingPart) {
		t.Fatalf("expected PENDING and AWAITING_PART to leave stock untouched")
	}
}
