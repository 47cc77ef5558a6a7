package value

import (
	"fmt"
	"sort"

	"github.com/ezchain/validator-core/pkg/errs"
)

// PickStrategy orders UNSPENT values before the picker's greedy accumulation
// pass (§4.2 step 1). DefaultPickStrategy implements the canonical order:
// ascending value_num, then ascending begin_index.
type PickStrategy func(values []Value) []Value

// DefaultPickStrategy sorts ascending by value_num then ascending by
// begin_index, the canonical order from spec.md §4.2.
func DefaultPickStrategy(values []Value) []Value {
	out := append([]Value(nil), values...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Num != out[j].Num {
			return out[i].Num < out[j].Num
		}
		return out[i].Begin.Cmp(out[j].Begin) < 0
	})
	return out
}

// PickResult is the outcome of a successful PickValues call. Callers that
// embed the pick in a larger atomic operation (e.g. account.CreateBatch,
// §4.4) may Cancel it if a later step fails, restoring the collection to its
// pre-pick state; otherwise the pick is already committed into the
// collection and no further action is required.
type PickResult struct {
	Selected []Value
	Change   *Value

	collection   *Collection
	originalLast Value // the pre-split value, if a split occurred
	didSplit     bool
}

// Cancel reverts a pick: SELECTED values return to UNSPENT, and if a split
// occurred the residual is removed and the original undivided value restored.
// This is the escape hatch spec.md §8 calls "pick(n) then cancel restores the
// collection" — it is not a forward edge of the state DAG, only a rollback of
// an uncommitted pick.
func (r *PickResult) Cancel() error {
	r.collection.mu.Lock()
	defer r.collection.mu.Unlock()

	for _, sel := range r.Selected {
		current, ok := r.collection.values[sel.key()]
		if !ok || current.State != StateSelected {
			return fmt.Errorf("cannot cancel: value at %s is not SELECTED", sel.key())
		}
	}

	if r.didSplit {
		r.collection.removeLocked(*r.Change)
		last := r.Selected[len(r.Selected)-1]
		r.collection.removeLocked(last)
	}
	for _, sel := range r.Selected {
		if r.didSplit && sel.key() == r.Selected[len(r.Selected)-1].key() {
			continue
		}
		sel.State = StateUnspent
		r.collection.values[sel.key()] = sel
	}
	if r.didSplit {
		r.originalLast.State = StateUnspent
		r.collection.values[r.originalLast.key()] = r.originalLast
	}
	return nil
}

// PickValues chooses UNSPENT values whose sum covers amount, splitting at
// most one value, and atomically transitions the selected set to SELECTED
// (§4.2). On any internal failure the collection is left unchanged.
func (c *Collection) PickValues(amount uint64, strategy PickStrategy) (*PickResult, error) {
	if amount == 0 {
		return nil, fmt.Errorf("amount must be > 0")
	}
	if strategy == nil {
		strategy = DefaultPickStrategy
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	unspent := make([]Value, 0)
	var totalUnspent uint64
	for _, v := range c.values {
		if v.State == StateUnspent {
			unspent = append(unspent, v)
			totalUnspent += v.Num
		}
	}
	if totalUnspent < amount {
		return nil, errs.New(errs.CodeInsufficientBalance, fmt.Sprintf("have %d unspent, need %d", totalUnspent, amount))
	}

	ordered := strategy(unspent)

	var accumulated uint64
	var chosen []Value
	for _, v := range ordered {
		chosen = append(chosen, v)
		accumulated += v.Num
		if accumulated >= amount {
			break
		}
	}

	result := &PickResult{collection: c}

	if accumulated == amount {
		for _, sel := range chosen {
			if _, err := c.transitionLocked(sel, StateSelected); err != nil {
				c.revertPartialLocked(result.Selected)
				return nil, err
			}
			result.Selected = append(result.Selected, mustGet(c, sel))
		}
		return result, nil
	}

	// Split the last chosen value at the deficit boundary.
	last := chosen[len(chosen)-1]
	deficit := amount - (accumulated - last.Num)
	spentBegin := last.Begin
	residualBegin, err := last.Begin.Add(deficit)
	if err != nil {
		return nil, err
	}
	spentPortion, err := NewValue(spentBegin, deficit)
	if err != nil {
		return nil, err
	}
	residual, err := NewValue(residualBegin, last.Num-deficit)
	if err != nil {
		return nil, err
	}

	// Replace `last` with spentPortion+residual, transition the earlier
	// chosen values and spentPortion to SELECTED, re-insert residual UNSPENT.
	c.removeLocked(last)
	if err := c.insertLocked(spentPortion); err != nil {
		c.values[last.key()] = last // revert
		return nil, err
	}
	if err := c.insertLocked(residual); err != nil {
		c.removeLocked(spentPortion)
		c.values[last.key()] = last
		return nil, err
	}

	for _, sel := range chosen[:len(chosen)-1] {
		if _, err := c.transitionLocked(sel, StateSelected); err != nil {
			c.revertPartialLocked(result.Selected)
			c.removeLocked(residual)
			c.removeLocked(spentPortion)
			c.values[last.key()] = last
			return nil, err
		}
		result.Selected = append(result.Selected, mustGet(c, sel))
	}
	if _, err := c.transitionLocked(spentPortion, StateSelected); err != nil {
		c.revertPartialLocked(result.Selected)
		c.removeLocked(residual)
		c.removeLocked(spentPortion)
		c.values[last.key()] = last
		return nil, err
	}
	result.Selected = append(result.Selected, mustGet(c, spentPortion))
	result.Change = &residual
	result.didSplit = true
	result.originalLast = last
	return result, nil
}

// revertPartialLocked undoes transitions already applied earlier in a failed
// PickValues call; the caller holds c.mu.
func (c *Collection) revertPartialLocked(applied []Value) {
	for _, v := range applied {
		if current, ok := c.values[v.key()]; ok && current.State == StateSelected {
			current.State = StateUnspent
			c.values[v.key()] = current
		}
	}
}

func mustGet(c *Collection, v Value) Value {
	return c.values[v.key()]
}
