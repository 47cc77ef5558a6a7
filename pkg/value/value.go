package value

import "fmt"

// State is the closed tagged variant a Value's lifecycle moves through:
// UNSPENT -> SELECTED -> LOCAL_COMMITTED -> CONFIRMED, with UNSPENT able to
// split into two UNSPENT children before selection (§3 Value).
type State int

const (
	StateUnspent State = iota
	StateSelected
	StateLocalCommitted
	StateConfirmed
)

// String renders the state the way it appears in spec.md.
func (s State) String() string {
	switch s {
	case StateUnspent:
		return "UNSPENT"
	case StateSelected:
		return "SELECTED"
	case StateLocalCommitted:
		return "LOCAL_COMMITTED"
	case StateConfirmed:
		return "CONFIRMED"
	default:
		return fmt.Sprintf("UNKNOWN_STATE(%d)", int(s))
	}
}

// canTransition is the exhaustive pattern match over the state DAG (§9
// design note: state transitions expressed as exhaustive, compile-time-total
// matches rather than an open-ended state field).
func canTransition(from, to State) bool {
	switch from {
	case StateUnspent:
		return to == StateSelected
	case StateSelected:
		return to == StateLocalCommitted
	case StateLocalCommitted:
		return to == StateConfirmed
	case StateConfirmed:
		return false
	default:
		return false
	}
}

// Value is a disjoint interval of spendable units owned by one account at a
// given time (§3 Value). Num must be >= 1.
type Value struct {
	Begin Index
	Num   uint64
	State State
}

// NewValue constructs a Value in the UNSPENT state.
func NewValue(begin Index, num uint64) (Value, error) {
	if num == 0 {
		return Value{}, fmt.Errorf("value_num must be >= 1, got 0")
	}
	return Value{Begin: begin, Num: num, State: StateUnspent}, nil
}

// End returns the inclusive end index: begin + num - 1.
func (v Value) End() (Index, error) {
	return v.Begin.Add(v.Num - 1)
}

// Overlaps reports whether v and other's intervals intersect.
func (v Value) Overlaps(other Value) bool {
	vEnd, err := v.End()
	if err != nil {
		return false
	}
	oEnd, err := other.End()
	if err != nil {
		return false
	}
	// Disjoint iff v ends before other begins, or other ends before v begins.
	if vEnd.Cmp(other.Begin) < 0 {
		return false
	}
	if oEnd.Cmp(v.Begin) < 0 {
		return false
	}
	return true
}

// key identifies a Value uniquely within a collection by its interval start;
// intervals never relocate once created, so Begin is a stable identity.
func (v Value) key() string {
	return v.Begin.Hex()
}
