// Package assembler implements the block assembler / picker (§4.6):
// deterministic selection of pool entries under a strategy, Merkle
// commitment over the selected submission hashes, and block header
// construction.
package assembler

import (
	"fmt"
	"sort"
	"time"

	"github.com/ezchain/validator-core/pkg/chain"
	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/txn"
	"github.com/ezchain/validator-core/pkg/txpool"
)

// Strategy orders a snapshot of pool entries before the cap/uniqueness pass
// (§4.6 step 2).
type Strategy string

const (
	// StrategyFIFO preserves the pool's insertion order.
	StrategyFIFO Strategy = "fifo"
	// StrategyFee sorts by descending submit_timestamp, used as a priority
	// proxy in the absence of a real fee field (documented simplification,
	// not a real fee market — see Non-goals).
	StrategyFee Strategy = "fee"
)

// DefaultMaxSubmissionsPerBlock is the picker's default cap (§4.6 step 4).
const DefaultMaxSubmissionsPerBlock = 100

// PackagedBlockData is the picker's output (§4.6): selected submissions in
// final order, the Merkle root over their hashes, the unique ordered list of
// submitter addresses, and the assembly timestamp.
type PackagedBlockData struct {
	Selected           []*txn.SubmitTxInfo
	MerkleRoot         crypto.Digest
	SubmitterAddresses []crypto.Address
	AssembledAt        time.Time
}

// LeafProof pairs a selected entry's multi-transactions hash with its
// Merkle inclusion proof (§4.6 Commitment).
type LeafProof struct {
	MultiTxHash crypto.Digest
	Proof       crypto.MerkleProof
}

// Assembler picks pool entries into packaged blocks.
type Assembler struct {
	maxSubmissionsPerBlock int
}

// Config configures an Assembler.
type Config struct {
	MaxSubmissionsPerBlock int // 0 means DefaultMaxSubmissionsPerBlock
}

// New constructs an Assembler.
func New(cfg Config) *Assembler {
	max := cfg.MaxSubmissionsPerBlock
	if max <= 0 {
		max = DefaultMaxSubmissionsPerBlock
	}
	return &Assembler{maxSubmissionsPerBlock: max}
}

// order applies strategy to a pool snapshot (§4.6 step 2).
func order(entries []*txn.SubmitTxInfo, strategy Strategy) []*txn.SubmitTxInfo {
	out := append([]*txn.SubmitTxInfo(nil), entries...)
	switch strategy {
	case StrategyFee:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].SubmitTimestamp.After(out[j].SubmitTimestamp)
		})
	case StrategyFIFO, "":
		// Insertion order preserved as-is.
	}
	return out
}

// dedupeBySubmitter filters to at most one entry per submitter address,
// keeping the first occurrence in the already-ordered sequence (§4.6 step
// 3: defense in depth on top of the pool's own admission invariant).
func dedupeBySubmitter(entries []*txn.SubmitTxInfo) []*txn.SubmitTxInfo {
	seen := make(map[crypto.Address]bool, len(entries))
	out := make([]*txn.SubmitTxInfo, 0, len(entries))
	for _, e := range entries {
		if seen[e.SubmitterAddress] {
			continue
		}
		seen[e.SubmitterAddress] = true
		out = append(out, e)
	}
	return out
}

// Pick selects entries from pool under strategy: snapshot, order, dedupe,
// cap, build the Merkle commitment (§4.6 steps 1-4 + Commitment). An empty
// pool yields an empty, well-formed package.
func (a *Assembler) Pick(pool *txpool.Pool, strategy Strategy) (PackagedBlockData, error) {
	entries := order(pool.All(), strategy)
	entries = dedupeBySubmitter(entries)
	if len(entries) > a.maxSubmissionsPerBlock {
		entries = entries[:a.maxSubmissionsPerBlock]
	}

	pkg := PackagedBlockData{
		Selected:    entries,
		AssembledAt: time.Now().UTC(),
	}
	for _, e := range entries {
		pkg.SubmitterAddresses = append(pkg.SubmitterAddresses, e.SubmitterAddress)
	}

	if len(entries) == 0 {
		return pkg, nil
	}

	leaves := make([]crypto.Digest, len(entries))
	for i, e := range entries {
		leaves[i] = e.MultiTransactionsHash
	}
	tree, err := crypto.BuildTree(leaves)
	if err != nil {
		return PackagedBlockData{}, fmt.Errorf("build merkle tree over selected submissions: %w", err)
	}
	pkg.MerkleRoot = tree.Root()
	return pkg, nil
}

// PickWithProofs is Pick plus, for each selected leaf, its Merkle inclusion
// proof. sender_addresses[i] is guaranteed to be the submitter of the same
// entry as proofs[i], verified by index equality (§4.6 Sender address
// ordering contract).
func (a *Assembler) PickWithProofs(pool *txpool.Pool, strategy Strategy) (PackagedBlockData, []LeafProof, error) {
	pkg, err := a.Pick(pool, strategy)
	if err != nil {
		return PackagedBlockData{}, nil, err
	}
	if len(pkg.Selected) == 0 {
		return pkg, []LeafProof{}, nil
	}

	leaves := make([]crypto.Digest, len(pkg.Selected))
	for i, e := range pkg.Selected {
		leaves[i] = e.MultiTransactionsHash
	}
	tree, err := crypto.BuildTree(leaves)
	if err != nil {
		return PackagedBlockData{}, nil, fmt.Errorf("rebuild merkle tree for proofs: %w", err)
	}

	proofs := make([]LeafProof, len(leaves))
	for i, leaf := range leaves {
		p, err := tree.Proof(i)
		if err != nil {
			return PackagedBlockData{}, nil, fmt.Errorf("generate proof for leaf %d: %w", i, err)
		}
		proofs[i] = LeafProof{MultiTxHash: leaf, Proof: p}
	}
	return pkg, proofs, nil
}

// CreateBlock assembles a Block header from a packaged selection: the
// Merkle root, a Bloom filter over every unique submitter address, and an
// explicit parent link and index (§4.6 Block creation).
func (a *Assembler) CreateBlock(pkg PackagedBlockData, miner crypto.Address, previousHash crypto.Digest, index uint64) (*chain.Block, error) {
	bloom := crypto.NewBloomFilter()
	for _, addr := range pkg.SubmitterAddresses {
		bloom.Add(addr[:])
	}

	b := &chain.Block{
		Index:           index,
		PreHash:         previousHash,
		MerkleRoot:      pkg.MerkleRoot,
		BloomFilter:     bloom,
		Miner:           miner,
		Timestamp:       pkg.AssembledAt,
		ProtocolVersion: txn.SupportedProtocolVersion,
	}
	return b, nil
}

// RemovePicked removes every selected entry from pool and returns the count
// actually removed (§4.6).
func (a *Assembler) RemovePicked(pool *txpool.Pool, pkg PackagedBlockData) int {
	removed := 0
	for _, e := range pkg.Selected {
		if pool.Remove(e.IdentityHash()) {
			removed++
		}
	}
	return removed
}
