// Package account implements the account-side VPB manager (§4.4): per-Value
// proof units and block-index lists, batched transaction construction, and
// the send/receive state transitions that keep a value's proofs in step with
// its state.
package account

import (
	"fmt"

	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/txn"
)

// ProofUnit proves one account's ownership of a value at one block height:
// the owner at that height, the MultiTransactions that moved the value to
// them, and the Merkle inclusion proof binding that multi-transactions hash
// to the block's merkle root (§3).
type ProofUnit struct {
	Owner          crypto.Address
	OwnerMultiTxns *txn.MultiTransactions
	InclusionProof crypto.MerkleProof
}

// BlockIndexEntry records the owner of a value at one block height, per the
// BlockIndexList definition in §3.
type BlockIndexEntry struct {
	Height uint64
	Owner  crypto.Address
}

// BlockIndexList is an ordered, strictly-increasing-by-height record of which
// account owned a value at each height it appeared at.
type BlockIndexList []BlockIndexEntry

// Append adds a new entry; height must exceed the list's last entry, per the
// strictly-increasing-heights invariant of §3.
func (l *BlockIndexList) Append(height uint64, owner crypto.Address) error {
	if len(*l) > 0 && height <= (*l)[len(*l)-1].Height {
		return fmt.Errorf("block index list: height %d does not exceed last recorded height %d", height, (*l)[len(*l)-1].Height)
	}
	*l = append(*l, BlockIndexEntry{Height: height, Owner: owner})
	return nil
}

// LastHeight returns the most recent recorded height, or 0 if empty.
func (l BlockIndexList) LastHeight() uint64 {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].Height
}
