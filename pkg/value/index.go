// Package value implements the account-side value ledger (§3 Value, §4.2
// AccountValueCollection + picker), grounded on the key-value store
// conventions of the ancestor's pkg/ledger package but held as an in-memory,
// mutex-guarded collection per account rather than a shared KV store.
package value

import (
	"fmt"
	"math/big"

	"github.com/ezchain/validator-core/pkg/errs"
)

// indexWidth is the bit width fixed for interval arithmetic (§9 open
// question: "256-bit recommended"). Index arithmetic that would overflow
// this width fails with an errs.CodeIndexOverflow error rather than wrapping.
const indexWidth = 256

var indexBound = new(big.Int).Lsh(big.NewInt(1), indexWidth) // 2^256

// Index is a 256-bit interval coordinate, serialized as lowercase hex at the
// protocol boundary.
type Index struct {
	v *big.Int
}

// ZeroIndex is the index at position 0.
var ZeroIndex = Index{v: big.NewInt(0)}

// IndexFromHex parses a hex string (with or without "0x" prefix) into an Index.
func IndexFromHex(s string) (Index, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return Index{}, fmt.Errorf("invalid hex index %q", s)
	}
	if n.Sign() < 0 || n.Cmp(indexBound) >= 0 {
		return Index{}, errs.New(errs.CodeIndexOverflow, fmt.Sprintf("index %q out of 256-bit range", s))
	}
	return Index{v: n}, nil
}

// IndexFromUint64 builds an Index from a small integer, for tests and genesis
// allocation.
func IndexFromUint64(n uint64) Index {
	return Index{v: new(big.Int).SetUint64(n)}
}

// Hex returns the lowercase hex encoding of the index.
func (i Index) Hex() string {
	return fmt.Sprintf("%x", i.v)
}

// Cmp compares two indices the way big.Int.Cmp does.
func (i Index) Cmp(other Index) int {
	return i.v.Cmp(other.v)
}

// Add returns i+n, failing with errs.CodeIndexOverflow if the result would exceed
// the configured 256-bit width.
func (i Index) Add(n uint64) (Index, error) {
	sum := new(big.Int).Add(i.v, new(big.Int).SetUint64(n))
	if sum.Cmp(indexBound) >= 0 {
		return Index{}, errs.New(errs.CodeIndexOverflow, fmt.Sprintf("index %s + %d overflows 256-bit range", i.Hex(), n))
	}
	return Index{v: sum}, nil
}

// Sub returns i-n. Only ever called with n <= i in this package.
func (i Index) Sub(n uint64) Index {
	return Index{v: new(big.Int).Sub(i.v, new(big.Int).SetUint64(n))}
}
