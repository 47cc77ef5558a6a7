package account

import (
	"testing"

	"github.com/ezchain/validator-core/pkg/crypto"
)

func TestBlockIndexList_AppendRejectsNonIncreasingHeight(t *testing.T) {
	var l BlockIndexList
	var addr crypto.Address
	if err := l.Append(5, addr); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(5, addr); err == nil {
		t.Fatal("expected appending a height equal to the last entry to be rejected")
	}
	if err := l.Append(3, addr); err == nil {
		t.Fatal("expected appending a height less than the last entry to be rejected")
	}
}

func TestBlockIndexList_AppendAcceptsIncreasingHeights(t *testing.T) {
	var l BlockIndexList
	var addr crypto.Address
	if err := l.Append(1, addr); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(2, addr); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(l) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(l))
	}
}

func TestBlockIndexList_LastHeight(t *testing.T) {
	var l BlockIndexList
	var addr crypto.Address
	if h := l.LastHeight(); h != 0 {
		t.Fatalf("expected LastHeight of an empty list to be 0, got %d", h)
	}
	if err := l.Append(7, addr); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if h := l.LastHeight(); h != 7 {
		t.Fatalf("expected LastHeight == 7, got %d", h)
	}
}
