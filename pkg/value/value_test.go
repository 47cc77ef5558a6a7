package value

import "testing"

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateUnspent:        "UNSPENT",
		StateSelected:       "SELECTED",
		StateLocalCommitted: "LOCAL_COMMITTED",
		StateConfirmed:      "CONFIRMED",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestCanTransition_LinearChainIsLegal(t *testing.T) {
	steps := []struct{ from, to State }{
		{StateUnspent, StateSelected},
		{StateSelected, StateLocalCommitted},
		{StateLocalCommitted, StateConfirmed},
	}
	for _, s := range steps {
		if !canTransition(s.from, s.to) {
			t.Fatalf("expected %s -> %s to be legal", s.from, s.to)
		}
	}
}

func TestCanTransition_RejectsSkipsAndBackwardsAndTerminal(t *testing.T) {
	illegal := []struct{ from, to State }{
		{StateUnspent, StateLocalCommitted},
		{StateUnspent, StateConfirmed},
		{StateSelected, StateConfirmed},
		{StateSelected, StateUnspent},
		{StateLocalCommitted, StateSelected},
		{StateConfirmed, StateUnspent},
		{StateConfirmed, StateSelected},
		{StateConfirmed, StateLocalCommitted},
	}
	for _, s := range illegal {
		if canTransition(s.from, s.to) {
			t.Fatalf("expected %s -> %s to be illegal", s.from, s.to)
		}
	}
}

func TestNewValue_RejectsZeroNum(t *testing.T) {
	if _, err := NewValue(ZeroIndex, 0); err == nil {
		t.Fatal("expected num == 0 to be rejected")
	}
}

func TestNewValue_AcceptsPositiveNum(t *testing.T) {
	v, err := NewValue(IndexFromUint64(10), 5)
	if err != nil {
		t.Fatalf("NewValue: %v", err)
	}
	if v.State != StateUnspent {
		t.Fatalf("expected a freshly constructed value to start UNSPENT, got %s", v.State)
	}
}

func TestValue_End(t *testing.T) {
	v, err := NewValue(IndexFromUint64(10), 5)
	if err != nil {
		t.Fatalf("NewValue: %v", err)
	}
	end, err := v.End()
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if end.Cmp(IndexFromUint64(14)) != 0 {
		t.Fatalf("expected End() == 14, got %s", end.Hex())
	}
}

func TestValue_Overlaps(t *testing.T) {
	a, _ := NewValue(IndexFromUint64(10), 5) // [10,14]
	overlapping, _ := NewValue(IndexFromUint64(14), 3) // [14,16]
	before, _ := NewValue(IndexFromUint64(0), 5) // [0,4]
	after, _ := NewValue(IndexFromUint64(15), 5) // [15,19]
	adjacentAfter, _ := NewValue(IndexFromUint64(15), 1) // [15,15], touches but does not overlap [10,14]

	if !a.Overlaps(overlapping) {
		t.Fatal("expected intersecting intervals to overlap")
	}
	if a.Overlaps(before) {
		t.Fatal("expected a strictly-earlier interval not to overlap")
	}
	if a.Overlaps(after) {
		t.Fatal("expected a strictly-later interval not to overlap")
	}
	if a.Overlaps(adjacentAfter) {
		t.Fatal("expected an adjacent, non-intersecting interval not to overlap")
	}
}
