package value

import (
	"fmt"
	"sync"

	"github.com/ezchain/validator-core/pkg/errs"
)

// Collection is an AccountValueCollection (§4.2): a set of Values for one
// address with lookup by state, guaranteeing no overlap among
// UNSPENT ∪ SELECTED. All mutating operations are serialized under a single
// mutex, matching the "single-writer per component" rule of §5.
type Collection struct {
	mu     sync.Mutex
	values map[string]Value
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{values: make(map[string]Value)}
}

// Insert adds a Value, failing with CodeOverlap if its interval intersects
// any existing UNSPENT/SELECTED interval.
func (c *Collection) Insert(v Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(v)
}

func (c *Collection) insertLocked(v Value) error {
	if _, exists := c.values[v.key()]; exists {
		return errs.New(errs.CodeOverlap, fmt.Sprintf("value at %s already present", v.key()))
	}
	if v.State == StateUnspent || v.State == StateSelected {
		for _, existing := range c.values {
			if existing.State != StateUnspent && existing.State != StateSelected {
				continue
			}
			if v.Overlaps(existing) {
				return errs.New(errs.CodeOverlap, fmt.Sprintf("interval [%s,+%d) overlaps existing value at %s", v.Begin.Hex(), v.Num, existing.Begin.Hex()))
			}
		}
	}
	c.values[v.key()] = v
	return nil
}

// removeLocked deletes a value by identity; it is only used internally by
// operations that immediately re-insert a replacement (split, transition).
func (c *Collection) removeLocked(v Value) {
	delete(c.values, v.key())
}

// FindByState returns a snapshot copy of all values in the given state.
func (c *Collection) FindByState(state State) []Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Value
	for _, v := range c.values {
		if v.State == state {
			out = append(out, v)
		}
	}
	return out
}

// All returns a snapshot copy of every value in the collection.
func (c *Collection) All() []Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Value, 0, len(c.values))
	for _, v := range c.values {
		out = append(out, v)
	}
	return out
}

// Total sums value_num over all values in the given state.
func (c *Collection) Total(state State) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total uint64
	for _, v := range c.values {
		if v.State == state {
			total += v.Num
		}
	}
	return total
}

// Transition enforces the state DAG (§3): the target value must currently be
// in the collection, and from->to must be a legal edge.
func (c *Collection) Transition(v Value, newState State) (Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(v, newState)
}

func (c *Collection) transitionLocked(v Value, newState State) (Value, error) {
	current, ok := c.values[v.key()]
	if !ok {
		return Value{}, fmt.Errorf("value at %s not found in collection", v.key())
	}
	if !canTransition(current.State, newState) {
		return Value{}, errs.New(errs.CodeStateTransitionIllegal, fmt.Sprintf("%s -> %s is not a legal transition", current.State, newState))
	}
	current.State = newState
	c.values[v.key()] = current
	return current, nil
}

// Get looks up the current record for a value by interval start.
func (c *Collection) Get(begin Index) (Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[begin.Hex()]
	return v, ok
}
