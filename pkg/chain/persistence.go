package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/errs"
)

// wireBlock is the on-disk JSON encoding of one main-chain block, mirroring
// the dual-format requirement (§4.7 Persistence): a human-readable snapshot
// file plus a compact checksum guarding against partial writes.
type wireBlock struct {
	Index           uint64 `json:"index"`
	PreHash         string `json:"pre_hash"`
	MerkleRoot      string `json:"merkle_root"`
	BloomFilter     string `json:"bloom_filter,omitempty"`
	Miner           string `json:"miner"`
	Nonce           uint64 `json:"nonce"`
	Timestamp       string `json:"timestamp"`
	ProtocolVersion uint32 `json:"protocol_version"`
	Signature       []byte `json:"signature,omitempty"`
	MinerPubKey     []byte `json:"miner_pubkey,omitempty"`
}

// wireForkNode is the on-disk JSON encoding of one ForkNode: its block, its
// parent's hash (empty for the root/genesis node), and the two fields that
// don't follow mechanically from the block data (§3 Blockchain state: "fork
// tree nodes with parent-hash edges").
type wireForkNode struct {
	Block           wireBlock `json:"block"`
	ParentHash      string    `json:"parent_hash,omitempty"`
	IsMainChain     bool      `json:"is_main_chain"`
	ConsensusStatus int       `json:"consensus_status"`
}

// snapshot is the whole persisted fork tree (§3 Blockchain state: "config,
// main chain, confirmed-hash set, orphaned-hash set, fork-tree nodes with
// parent-hash edges, main-chain tip hash"). The confirmed/orphaned sets are
// recovered from each node's ConsensusStatus rather than stored separately,
// since they're exactly the nodes with that status.
type snapshot struct {
	Nodes    []wireForkNode `json:"nodes"`
	TipHash  string         `json:"tip_hash,omitempty"`
	Checksum string         `json:"checksum"`
}

func toWireBlock(b *Block) wireBlock {
	w := wireBlock{
		Index:           b.Index,
		PreHash:         b.PreHash.String(),
		MerkleRoot:      b.MerkleRoot.String(),
		Miner:           b.Miner.String(),
		Nonce:           b.Nonce,
		Timestamp:       b.Timestamp.Format(time.RFC3339Nano),
		ProtocolVersion: b.ProtocolVersion,
		Signature:       b.Signature,
		MinerPubKey:     b.MinerPubKey,
	}
	if b.BloomFilter != nil {
		w.BloomFilter = hex.EncodeToString(b.BloomFilter.Bytes())
	}
	return w
}

func fromWireBlock(w wireBlock) (*Block, error) {
	preHash, ok := crypto.DigestFromBytes(mustDecodeHex(w.PreHash))
	if !ok {
		return nil, errs.New(errs.CodeCorruptRecord, "invalid pre_hash in stored block")
	}
	merkleRoot, ok := crypto.DigestFromBytes(mustDecodeHex(w.MerkleRoot))
	if !ok {
		return nil, errs.New(errs.CodeCorruptRecord, "invalid merkle_root in stored block")
	}
	miner, ok := crypto.AddressFromBytes(mustDecodeHex(w.Miner))
	if !ok {
		return nil, errs.New(errs.CodeCorruptRecord, "invalid miner address in stored block")
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return nil, errs.Wrap(errs.CodeCorruptRecord, "invalid timestamp in stored block", err)
	}
	b := &Block{
		Index:           w.Index,
		PreHash:         preHash,
		MerkleRoot:      merkleRoot,
		Miner:           miner,
		Nonce:           w.Nonce,
		Timestamp:       ts,
		ProtocolVersion: w.ProtocolVersion,
		Signature:       w.Signature,
		MinerPubKey:     w.MinerPubKey,
	}
	if w.BloomFilter != "" {
		bloom, ok := crypto.BloomFilterFromBytes(mustDecodeHex(w.BloomFilter))
		if !ok {
			return nil, errs.New(errs.CodeCorruptRecord, "invalid bloom filter in stored block")
		}
		b.BloomFilter = bloom
	}
	return b, nil
}

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// checksumOfNodes computes a compact integrity checksum over every fork node
// plus the tip hash, order-independent (so map iteration order never
// spuriously trips it): each node's JSON encoding is hashed individually,
// the resulting digests are sorted, then folded together with the tip hash.
func checksumOfNodes(nodes []wireForkNode, tipHash string) string {
	encoded := make([]string, len(nodes))
	for i, n := range nodes {
		b, _ := json.Marshal(n)
		encoded[i] = string(b)
	}
	sort.Strings(encoded)
	h := sha256.New()
	for _, e := range encoded {
		sum := sha256.Sum256([]byte(e))
		h.Write(sum[:])
	}
	h.Write([]byte(tipHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Save writes the full fork tree to path as a checksummed JSON snapshot
// (§3 Blockchain state, §4.7 Persistence): every ForkNode with its
// parent-hash edge, is_main_chain flag and consensus status, plus the
// main-chain tip hash, so a subsequent Load reconstructs fork branches too,
// not just the main chain.
func (bc *Blockchain) Save(path string) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	nodes := make([]wireForkNode, 0, len(bc.byHash))
	for _, n := range bc.byHash {
		wn := wireForkNode{
			Block:           toWireBlock(n.Block),
			IsMainChain:     n.IsMainChain,
			ConsensusStatus: int(n.ConsensusStatus),
		}
		if n.Parent != nil {
			wn.ParentHash = n.Parent.Block.Hash().String()
		}
		nodes = append(nodes, wn)
	}
	var tipHash string
	if bc.tip != nil {
		tipHash = bc.tip.Block.Hash().String()
	}
	snap := snapshot{Nodes: nodes, TipHash: tipHash, Checksum: checksumOfNodes(nodes, tipHash)}

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chain snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize snapshot: %w", err)
	}
	bc.logger.Printf("saved chain snapshot: %d nodes (%d main-chain) to %s", len(nodes), len(bc.mainByIndex), path)
	return nil
}

// Load replaces the in-memory fork tree with the snapshot at path. On
// checksum mismatch it logs the loss and returns an empty chain rather than
// trusting corrupt data, mirroring the txpool store's recovery behavior.
func Load(path string, cfg Config) (*Blockchain, error) {
	bc := New(cfg)

	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return bc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, errs.Wrap(errs.CodeCorruptRecord, "unmarshal chain snapshot", err)
	}
	if computed := checksumOfNodes(snap.Nodes, snap.TipHash); computed != snap.Checksum {
		bc.logger.Printf("chain snapshot checksum mismatch: stored=%s computed=%s; starting fresh", snap.Checksum, computed)
		return bc, nil
	}

	nodesByHash := make(map[crypto.Digest]*ForkNode, len(snap.Nodes))
	parentHashOf := make(map[crypto.Digest]string, len(snap.Nodes))
	for _, w := range snap.Nodes {
		block, err := fromWireBlock(w.Block)
		if err != nil {
			return nil, err
		}
		h := block.Hash()
		nodesByHash[h] = &ForkNode{
			Block:           block,
			IsMainChain:     w.IsMainChain,
			ConsensusStatus: ConsensusStatus(w.ConsensusStatus),
			Height:          block.Index,
		}
		parentHashOf[h] = w.ParentHash
	}

	for h, node := range nodesByHash {
		parentHash := parentHashOf[h]
		if parentHash == "" {
			if bc.root != nil {
				return nil, errs.New(errs.CodeCorruptRecord, "chain snapshot has more than one root node")
			}
			bc.root = node
			continue
		}
		parentDigest, ok := crypto.DigestFromBytes(mustDecodeHex(parentHash))
		if !ok {
			return nil, errs.New(errs.CodeCorruptRecord, "invalid parent hash in stored fork node")
		}
		parent, ok := nodesByHash[parentDigest]
		if !ok {
			return nil, errs.New(errs.CodeCorruptRecord, "fork node references an unknown parent")
		}
		node.Parent = parent
		parent.Children = append(parent.Children, node)
	}

	bc.byHash = nodesByHash

	if snap.TipHash != "" {
		tipDigest, ok := crypto.DigestFromBytes(mustDecodeHex(snap.TipHash))
		if !ok {
			return nil, errs.New(errs.CodeCorruptRecord, "invalid tip hash in stored snapshot")
		}
		tip, ok := nodesByHash[tipDigest]
		if !ok {
			return nil, errs.New(errs.CodeCorruptRecord, "snapshot tip hash does not match any stored node")
		}
		bc.tip = tip
	}

	var mainChain []*ForkNode
	for _, node := range nodesByHash {
		if node.IsMainChain {
			mainChain = append(mainChain, node)
		}
	}
	sort.Slice(mainChain, func(i, j int) bool { return mainChain[i].Height < mainChain[j].Height })
	bc.mainByIndex = mainChain

	return bc, nil
}

// CreateBackup copies the snapshot at path into a timestamped sibling file
// (§4.7 Persistence: backups before overwrite).
func (bc *Blockchain) CreateBackup(path string, now time.Time) error {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot for backup: %w", err)
	}
	backupPath := fmt.Sprintf("%s.backup-%s", path, now.UTC().Format("20060102T150405"))
	if err := os.WriteFile(backupPath, b, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

// CleanupOldBackups removes backups of path beyond the most recent keep
// entries, oldest first.
func (bc *Blockchain) CleanupOldBackups(path string, keep int) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list backup directory: %w", err)
	}

	var names []string
	prefix := base + ".backup-"
	for _, e := range entries {
		if !e.IsDir() && len(e.Name()) > len(prefix) && e.Name()[:len(prefix)] == prefix {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // timestamp suffix sorts lexicographically with time
	if len(names) <= keep {
		return nil
	}
	for _, n := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, n)); err != nil {
			return fmt.Errorf("remove old backup %s: %w", n, err)
		}
	}
	return nil
}
