package service

import "testing"

func TestFieldGateAcceptsCompliantValue(t *testing.T) {
	gate := NewFieldGate[float64](0)

	pending := gate.Commit(10, 15, false)
	if pending {
		t.Fatalf("expected compliant commit to apply directly")
	}
	if gate.State() != GateNormal || gate.Applied() != 10 {
		t.Fatalf("expected NORMAL/10, got %s/%v", gate.State(), gate.Applied())
	}
}

func TestFieldGateViolationHoldsAttempted(t *testing.T) {
	gate := NewFieldGate[float64](0)

	pending := gate.Commit(25, 15, true)
	if !pending {
		t.Fatalf("expected violating commit to report pending")
	}
	if gate.State() != GatePendingAuth {
		t.Fatalf("expected PENDING_AUTH, got %s", gate.State())
	}
	if gate.Applied() != 15 {
		t.Fatalf("expected applied clamped to boundary 15, got %v", gate.Applied())
	}
	if gate.Attempted() != 25 {
		t.Fatalf("expected attempted value preserved, got %v", gate.Attempted())
	}
}

func TestFieldGateAuthorizePromotes(t *testing.T) {
	gate := NewFieldGate[int64](45000)
	gate.Commit(40000, 45000, true)

	gate.Authorize()
	if gate.State() != GateAuthorized || gate.Applied() != 40000 {
		t.Fatalf("expected AUTHORIZED/40000, got %s/%d", gate.State(), gate.Applied())
	}
}

func TestFieldGateCancelRestoresBoundary(t *testing.T) {
	gate := NewFieldGate[float64](0)
	gate.Commit(30, 15, true)

	gate.Cancel()
	if gate.State() != GateNormal || gate.Applied() != 15 {
		t.Fatalf("expected NORMAL/15 after cancel, got %s/%v", gate.State(), gate.Applied())
	}
}

func TestFieldGateAuthorizeOutsidePendingIsNoop(t *testing.T) {
	gate := NewFieldGate[float64](5)

	gate.Authorize()
	if gate.State() != GateNormal || gate.Applied() != 5 {
		t.Fatalf("expected authorize to be a no-op outside PENDING_AUTH")
	}
	gate.Cancel()
	if gate.State() != GateNormal || gate.Applied() != 5 {
		t.Fatalf("expected cancel to be a no-op outside PENDING_AUTH")
	}
}
