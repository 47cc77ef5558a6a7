package chain

import (
	"fmt"
	"log"
	"sync"

	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/errs"
	"github.com/ezchain/validator-core/pkg/logging"
)

// ConsensusStatus is a fork node's confirmation state (§3 Blockchain state).
type ConsensusStatus int

const (
	StatusPending ConsensusStatus = iota
	StatusConfirmed
	StatusOrphaned
)

func (s ConsensusStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusOrphaned:
		return "ORPHANED"
	default:
		return "UNKNOWN"
	}
}

// ForkNode is one node in the fork tree (§3 Blockchain state).
type ForkNode struct {
	Block           *Block
	Parent          *ForkNode
	Children        []*ForkNode
	IsMainChain     bool
	ConsensusStatus ConsensusStatus
	Height          uint64
}

// Config configures a Blockchain.
type Config struct {
	// ConfirmationBlocks is the confirmation depth (§4.7 step 5): a node at
	// index <= tip.index - ConfirmationBlocks + 1 is marked CONFIRMED.
	ConfirmationBlocks uint64
	// MaxForkHeight marks a fork node ORPHANED once it falls this far behind
	// the tip.
	MaxForkHeight uint64
	Logger        *log.Logger
}

// DefaultConfirmationBlocks and DefaultMaxForkHeight are the fork engine's
// defaults absent explicit configuration.
const (
	DefaultConfirmationBlocks = 6
	DefaultMaxForkHeight      = 100
)

// Blockchain is the fork-tree-backed chain (§4.7). A single lock guards
// every mutating operation; readers take the same lock for a consistent
// snapshot (the spec's "single re-entrant lock" — implemented here as one
// exclusive lock per public call, since internal helpers never re-enter it
// themselves).
type Blockchain struct {
	mu sync.Mutex

	confirmationBlocks uint64
	maxForkHeight       uint64
	logger              *log.Logger

	root *ForkNode // genesis node, nil until genesis is added
	tip  *ForkNode

	byHash       map[crypto.Digest]*ForkNode
	mainByIndex  []*ForkNode // mainByIndex[i] is the main-chain node at index i
}

// New constructs an empty Blockchain (no genesis yet).
func New(cfg Config) *Blockchain {
	confirmationBlocks := cfg.ConfirmationBlocks
	if confirmationBlocks == 0 {
		confirmationBlocks = DefaultConfirmationBlocks
	}
	maxForkHeight := cfg.MaxForkHeight
	if maxForkHeight == 0 {
		maxForkHeight = DefaultMaxForkHeight
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New("chain")
	}
	return &Blockchain{
		confirmationBlocks: confirmationBlocks,
		maxForkHeight:      maxForkHeight,
		logger:             logger,
		byHash:             make(map[crypto.Digest]*ForkNode),
	}
}

// merkleRootWellFormed checks §4.7 Validation's "Merkle root is well-formed
// (non-empty unless there were zero selected entries)": a zero root is only
// acceptable alongside an empty (all-zero) bloom filter, i.e. no submitters
// were packed.
func merkleRootWellFormed(b *Block) bool {
	if !b.MerkleRoot.IsZero() {
		return true
	}
	if b.BloomFilter == nil {
		return true
	}
	for _, bb := range b.BloomFilter.Bytes() {
		if bb != 0 {
			return false
		}
	}
	return true
}

func validateLink(block *Block, parent *Block) error {
	if block.Index != parent.Index+1 {
		return errs.New(errs.CodeInvalidLink, fmt.Sprintf("block index %d does not follow parent index %d", block.Index, parent.Index))
	}
	if block.PreHash != parent.Hash() {
		return errs.New(errs.CodeInvalidLink, "block pre_hash does not match parent hash")
	}
	return nil
}

func validateBlock(block *Block, parent *Block) error {
	if err := validateLink(block, parent); err != nil {
		return err
	}
	if !block.VerifySignature() {
		return errs.New(errs.CodeInvalidBlock, "block self-signature does not verify")
	}
	if !merkleRootWellFormed(block) {
		return errs.New(errs.CodeInvalidBlock, "merkle root is malformed for a non-empty selection")
	}
	return nil
}

// AddBlock inserts block into the fork tree, performing reorg if its branch
// overtakes the main chain (§4.7 Insertion algorithm). It returns whether
// the main chain tip changed as a result.
func (bc *Blockchain) AddBlock(block *Block) (bool, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if block.Index == 0 {
		if bc.root != nil {
			bc.logger.Printf("ignoring second genesis block %s", block.Hash().String())
			return false, nil
		}
		node := &ForkNode{Block: block, IsMainChain: true, ConsensusStatus: StatusPending, Height: 0}
		bc.root = node
		bc.tip = node
		bc.byHash[block.Hash()] = node
		bc.mainByIndex = []*ForkNode{node}
		bc.updateConsensusStatusLocked()
		return true, nil
	}

	if bc.root == nil {
		return false, errs.New(errs.CodeMissingParent, "chain has no genesis yet")
	}

	if block.PreHash == bc.tip.Block.Hash() && block.Index == bc.tip.Height+1 {
		if err := validateBlock(block, bc.tip.Block); err != nil {
			return false, err
		}
		node := &ForkNode{Block: block, Parent: bc.tip, IsMainChain: true, ConsensusStatus: StatusPending, Height: bc.tip.Height + 1}
		bc.tip.Children = append(bc.tip.Children, node)
		bc.byHash[block.Hash()] = node
		bc.mainByIndex = append(bc.mainByIndex, node)
		bc.tip = node
		bc.updateConsensusStatusLocked()
		return true, nil
	}

	parent, ok := bc.byHash[block.PreHash]
	if !ok {
		return false, errs.New(errs.CodeMissingParent, fmt.Sprintf("no known block with hash %s", block.PreHash.String()))
	}
	if err := validateBlock(block, parent.Block); err != nil {
		return false, err
	}
	newHeight := parent.Height + 1
	node := &ForkNode{Block: block, Parent: parent, IsMainChain: false, ConsensusStatus: StatusPending, Height: newHeight}
	parent.Children = append(parent.Children, node)
	bc.byHash[block.Hash()] = node

	if newHeight > bc.tip.Height {
		bc.reorgToLocked(node)
		bc.updateConsensusStatusLocked()
		return true, nil
	}
	bc.updateConsensusStatusLocked()
	return false, nil
}

// reorgToLocked walks from newTip to the lowest common ancestor with the
// current main chain, flips is_main_chain flags along both affected paths,
// and replaces the main-chain vector (§4.7 step 4). Caller holds bc.mu.
func (bc *Blockchain) reorgToLocked(newTip *ForkNode) {
	oldPath := map[*ForkNode]bool{}
	for n := bc.tip; n != nil; n = n.Parent {
		oldPath[n] = true
	}

	var newPath []*ForkNode
	cursor := newTip
	for cursor != nil && !oldPath[cursor] {
		newPath = append(newPath, cursor)
		cursor = cursor.Parent
	}
	lca := cursor // may be nil only if trees are disjoint, which cannot happen from one root

	for n := bc.tip; n != nil && n != lca; n = n.Parent {
		n.IsMainChain = false
	}
	for i := len(newPath) - 1; i >= 0; i-- {
		newPath[i].IsMainChain = true
	}

	var rebuilt []*ForkNode
	for n := lca; n != nil; n = n.Parent {
		rebuilt = append([]*ForkNode{n}, rebuilt...)
	}
	rebuilt = append(rebuilt, newPath2(newPath)...)
	bc.mainByIndex = rebuilt
	bc.tip = newTip

	bc.logger.Printf("reorg: new tip %s at height %d", newTip.Block.Hash().String(), newTip.Height)
}

// newPath2 reverses newPath (collected tip-to-LCA) into LCA-to-tip order.
func newPath2(newPath []*ForkNode) []*ForkNode {
	out := make([]*ForkNode, len(newPath))
	for i, n := range newPath {
		out[len(newPath)-1-i] = n
	}
	return out
}

// updateConsensusStatusLocked applies §4.7 step 5: mark main-chain nodes deep
// enough behind the tip as CONFIRMED, and fork nodes far enough behind the
// tip as ORPHANED. Caller holds bc.mu.
func (bc *Blockchain) updateConsensusStatusLocked() {
	if bc.tip == nil {
		return
	}
	confirmedBoundary := int64(bc.tip.Height) - int64(bc.confirmationBlocks) + 1
	for _, n := range bc.mainByIndex {
		if int64(n.Height) <= confirmedBoundary {
			n.ConsensusStatus = StatusConfirmed
		}
	}
	for _, n := range bc.byHash {
		if n.IsMainChain {
			continue
		}
		if int64(bc.tip.Height)-int64(n.Height) > int64(bc.maxForkHeight) {
			n.ConsensusStatus = StatusOrphaned
		}
	}
}

// GetBlockByIndex returns the main-chain block at index i.
func (bc *Blockchain) GetBlockByIndex(i uint64) (*Block, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if i >= uint64(len(bc.mainByIndex)) {
		return nil, false
	}
	return bc.mainByIndex[i].Block, true
}

// GetBlockByHash returns any known block (main chain or fork) by hash.
func (bc *Blockchain) GetBlockByHash(h crypto.Digest) (*Block, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	n, ok := bc.byHash[h]
	if !ok {
		return nil, false
	}
	return n.Block, true
}

// GetLatestConfirmedIndex returns the highest main-chain index currently
// marked CONFIRMED.
func (bc *Blockchain) GetLatestConfirmedIndex() (uint64, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for i := len(bc.mainByIndex) - 1; i >= 0; i-- {
		if bc.mainByIndex[i].ConsensusStatus == StatusConfirmed {
			return bc.mainByIndex[i].Height, true
		}
	}
	return 0, false
}

// IsValidChain re-checks every main-chain link (§4.7 Contract).
func (bc *Blockchain) IsValidChain() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for i := 1; i < len(bc.mainByIndex); i++ {
		if err := validateLink(bc.mainByIndex[i].Block, bc.mainByIndex[i-1].Block); err != nil {
			return false
		}
	}
	return true
}

// ForkStatistics summarizes the fork tree's shape.
type ForkStatistics struct {
	TotalNodes     int
	MainChainNodes int
	ForkNodes      int
	OrphanedNodes  int
	TipHeight      uint64
}

// GetForkStatistics returns a snapshot of the fork tree's shape.
func (bc *Blockchain) GetForkStatistics() ForkStatistics {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	stats := ForkStatistics{TotalNodes: len(bc.byHash)}
	if bc.tip != nil {
		stats.TipHeight = bc.tip.Height
	}
	for _, n := range bc.byHash {
		if n.IsMainChain {
			stats.MainChainNodes++
		} else {
			stats.ForkNodes++
		}
		if n.ConsensusStatus == StatusOrphaned {
			stats.OrphanedNodes++
		}
	}
	return stats
}

// Tip returns the current main-chain tip, or nil if the chain has no
// genesis yet.
func (bc *Blockchain) Tip() *Block {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.tip == nil {
		return nil
	}
	return bc.tip.Block
}
