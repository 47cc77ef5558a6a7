package value

import (
	"sort"
	"testing"
)

func TestPickValues_ExactMatchNoSplit(t *testing.T) {
	c := NewCollection()
	mustInsert(t, c, mustValue(t, 0, 10))
	mustInsert(t, c, mustValue(t, 10, 5))

	result, err := c.PickValues(15, nil)
	if err != nil {
		t.Fatalf("PickValues: %v", err)
	}
	if result.Change != nil {
		t.Fatal("expected no change/residual on an exact match")
	}
	if len(result.Selected) != 2 {
		t.Fatalf("expected both values selected, got %d", len(result.Selected))
	}
	for _, sel := range result.Selected {
		if sel.State != StateSelected {
			t.Fatalf("expected selected value to be SELECTED, got %s", sel.State)
		}
	}
}

func TestPickValues_SplitsLastValueOnPartialMatch(t *testing.T) {
	c := NewCollection()
	mustInsert(t, c, mustValue(t, 0, 10))

	result, err := c.PickValues(4, nil)
	if err != nil {
		t.Fatalf("PickValues: %v", err)
	}
	if result.Change == nil {
		t.Fatal("expected a change/residual when the pick splits a value")
	}
	if result.Change.Num != 6 {
		t.Fatalf("expected residual of 6, got %d", result.Change.Num)
	}
	if result.Change.State != StateUnspent {
		t.Fatalf("expected residual to remain UNSPENT, got %s", result.Change.State)
	}
	if len(result.Selected) != 1 || result.Selected[0].Num != 4 {
		t.Fatalf("expected exactly one selected value of size 4, got %+v", result.Selected)
	}

	total := c.Total(StateUnspent) + c.Total(StateSelected)
	if total != 10 {
		t.Fatalf("expected the sum of UNSPENT+SELECTED to still be 10 after the split, got %d", total)
	}
}

func TestPickValues_InsufficientBalanceErrors(t *testing.T) {
	c := NewCollection()
	mustInsert(t, c, mustValue(t, 0, 5))

	if _, err := c.PickValues(10, nil); err == nil {
		t.Fatal("expected insufficient UNSPENT balance to error")
	}
}

func TestPickValues_RejectsZeroAmount(t *testing.T) {
	c := NewCollection()
	mustInsert(t, c, mustValue(t, 0, 5))
	if _, err := c.PickValues(0, nil); err == nil {
		t.Fatal("expected amount == 0 to error")
	}
}

func TestPickResult_CancelRestoresExactMatch(t *testing.T) {
	c := NewCollection()
	mustInsert(t, c, mustValue(t, 0, 10))
	mustInsert(t, c, mustValue(t, 10, 5))

	result, err := c.PickValues(15, nil)
	if err != nil {
		t.Fatalf("PickValues: %v", err)
	}
	if err := result.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if total := c.Total(StateUnspent); total != 15 {
		t.Fatalf("expected both values restored to UNSPENT, total = %d", total)
	}
	if total := c.Total(StateSelected); total != 0 {
		t.Fatalf("expected no SELECTED values after cancel, got %d", total)
	}
}

func TestPickResult_CancelRestoresSplitValueUndivided(t *testing.T) {
	c := NewCollection()
	mustInsert(t, c, mustValue(t, 0, 10))

	result, err := c.PickValues(4, nil)
	if err != nil {
		t.Fatalf("PickValues: %v", err)
	}
	if err := result.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	all := c.All()
	if len(all) != 1 {
		t.Fatalf("expected the split to be undone back to a single value, got %d values", len(all))
	}
	if all[0].Num != 10 || all[0].State != StateUnspent {
		t.Fatalf("expected the original undivided UNSPENT value restored, got %+v", all[0])
	}
}

func TestDefaultPickStrategy_OrdersByNumThenBeginIndex(t *testing.T) {
	values := []Value{
		mustValue(t, 100, 5),
		mustValue(t, 0, 5),
		mustValue(t, 0, 1),
	}
	ordered := DefaultPickStrategy(values)
	if ordered[0].Num != 1 {
		t.Fatalf("expected the smallest value_num first, got %d", ordered[0].Num)
	}
	if ordered[1].Begin.Cmp(ordered[2].Begin) >= 0 {
		t.Fatal("expected ties in value_num to be broken by ascending begin_index")
	}
}

func TestPickValues_UsesProvidedStrategy(t *testing.T) {
	c := NewCollection()
	mustInsert(t, c, mustValue(t, 0, 3))
	mustInsert(t, c, mustValue(t, 10, 20))

	// A strategy that always puts the larger value first, the opposite of
	// DefaultPickStrategy's ascending order.
	largestFirst := func(values []Value) []Value {
		out := append([]Value(nil), values...)
		sort.Slice(out, func(i, j int) bool { return out[i].Num > out[j].Num })
		return out
	}

	result, err := c.PickValues(3, largestFirst)
	if err != nil {
		t.Fatalf("PickValues: %v", err)
	}
	if result.Change == nil {
		t.Fatal("expected the larger-first strategy to pick the size-20 value and split it")
	}
	if result.Selected[0].Num != 3 {
		t.Fatalf("expected the selected portion to be 3, got %d", result.Selected[0].Num)
	}
}
