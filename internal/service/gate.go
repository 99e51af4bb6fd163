package service

// GateState tracks one guarded field of a composition session.
type GateState string

const (
	GateNormal      GateState = "NORMAL"
	GatePendingAuth GateState = "PENDING_AUTH"
	GateAuthorized  GateState = "AUTHORIZED"
)

// FieldGate is the per-field authorization state machine. A commit that
// violates policy holds the attempted value aside and rolls the applied value
// back to the boundary; only a successful supervisor authorization promotes
// the attempted value. The gate never silently accepts an out-of-policy value
// and never forgets what the operator typed.
type FieldGate[T int64 | float64] struct {
	state     GateState
	applied   T
	attempted T
	boundary  T
}

func NewFieldGate[T int64 | float64](initial T) *FieldGate[T] {
	return &FieldGate[T]{state: GateNormal, applied: initial}
}

// Commit records a value the operator committed. When violates is set the
// gate enters PENDING_AUTH with the applied value clamped to boundary and
// reports true; otherwise the value is applied directly.
func (g *FieldGate[T]) Commit(value T, boundary T, violates bool) bool {
	if !violates {
		g.state = GateNormal
		g.applied = value
		g.attempted = value
		return false
	}

	g.state = GatePendingAuth
	g.attempted = value
	g.boundary = boundary
	g.applied = boundary
	return true
}

// Authorize promotes the held-aside value after a validated credential.
func (g *FieldGate[T]) Authorize() {
	if g.state != GatePendingAuth {
		return
	}
	g.state = GateAuthorized
	g.applied = g.attempted
}

// Cancel abandons a pending authorization, leaving the boundary value in
// place.
func (g *FieldGate[T]) Cancel() {
	if g.state != GatePendingAuth {
		return
	}
	g.state = GateNormal
	g.applied = g.boundary
}

func (g *FieldGate[T]) State() GateState { return g.state }
func (g *FieldGate[T]) Applied() T       { return g.applied }
func (g *FieldGate[T]) Attempted() T     { return g.attempted }
func (g *FieldGate[T]) Boundary() T      { return g.boundary }
