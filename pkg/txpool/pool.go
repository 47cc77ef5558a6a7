// Package txpool implements the consensus-side transaction pool (§4.5): a
// thread-safe, persistent queue of SubmitTxInfo with three synchronously
// maintained indices and the one-submission-per-submitter-per-block
// admission invariant.
package txpool

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/errs"
	"github.com/ezchain/validator-core/pkg/logging"
	"github.com/ezchain/validator-core/pkg/txn"
)

// Store is the durable append-only backing for the pool, so unprocessed
// submissions survive a restart (§4.5 Persistence). Implementations live in
// the kvstore (cometbft-db) and sqlstore (lib/pq) subpackages.
type Store interface {
	Append(sti *txn.SubmitTxInfo) error
	Remove(submitHash crypto.Digest) error
	LoadAll() ([]*txn.SubmitTxInfo, error)
}

// Stats are the pool's admission counters (§4.5).
type Stats struct {
	TotalReceived   uint64
	ValidReceived   uint64
	InvalidReceived uint64
	Duplicates      uint64
}

// entry pairs a stored submission with the multi-transactions it referenced
// at admission time, when the caller supplied one.
type entry struct {
	sti      *txn.SubmitTxInfo
	multiTx  *txn.MultiTransactions
	received time.Time
}

// Config configures a Pool.
type Config struct {
	Store  Store
	Logger *log.Logger
}

// Pool is the thread-safe SubmitTxInfo queue (§4.5).
type Pool struct {
	mu sync.Mutex

	store  Store
	logger *log.Logger

	entries []entry

	bySubmitHash  map[crypto.Digest]int
	byMultiTxHash map[crypto.Digest]int
	bySubmitter   map[crypto.Address][]int

	stats Stats
}

// New constructs an empty pool, optionally backed by a durable Store. If
// store is non-nil, its persisted entries are rehydrated immediately.
func New(cfg Config) (*Pool, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New("txpool")
	}
	p := &Pool{
		store:         cfg.Store,
		logger:        logger,
		bySubmitHash:  make(map[crypto.Digest]int),
		byMultiTxHash: make(map[crypto.Digest]int),
		bySubmitter:   make(map[crypto.Address][]int),
	}
	if cfg.Store != nil {
		rehydrated, err := cfg.Store.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("rehydrate pool from store: %w", err)
		}
		for _, sti := range rehydrated {
			p.insertLocked(sti, nil, false)
		}
		if len(rehydrated) > 0 {
			p.logger.Printf("rehydrated %d unprocessed submissions from store", len(rehydrated))
		}
	}
	return p, nil
}

// Add validates and inserts a submission (§4.5 Validation steps 1-3). On
// success it returns (true, "ok"); on rejection it returns (false, reason)
// and the stats counters reflect the outcome either way.
func (p *Pool) Add(sti *txn.SubmitTxInfo, multiTx *txn.MultiTransactions) (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.TotalReceived++

	if sti.SubmitterAddress.IsZero() || len(sti.Signature) == 0 {
		p.stats.InvalidReceived++
		return false, "structurally invalid: missing submitter or signature"
	}
	if sti.MultiTransactionsHash.IsZero() {
		p.stats.InvalidReceived++
		return false, "structurally invalid: missing multi-transactions hash"
	}
	if sti.SubmitTimestamp.IsZero() {
		p.stats.InvalidReceived++
		return false, "structurally invalid: missing submit timestamp"
	}
	if sti.ProtocolVersion != txn.SupportedProtocolVersion {
		p.stats.InvalidReceived++
		return false, "version mismatch"
	}

	if err := sti.Verify(multiTx); err != nil {
		p.stats.InvalidReceived++
		return false, fmt.Sprintf("signature verification failed: %v", err)
	}

	if _, exists := p.bySubmitter[sti.SubmitterAddress]; exists && len(p.bySubmitter[sti.SubmitterAddress]) > 0 {
		p.stats.Duplicates++
		return false, errs.New(errs.CodeDuplicateSubmitter, "already submitted in this block").Error()
	}

	if p.store != nil {
		if err := p.store.Append(sti); err != nil {
			p.stats.InvalidReceived++
			return false, fmt.Sprintf("persist submission: %v", err)
		}
	}

	p.insertLocked(sti, multiTx, true)
	p.stats.ValidReceived++
	return true, "ok"
}

// insertLocked appends an entry and updates all three indices; the caller
// holds p.mu. countStat is false during rehydration (counters should reflect
// only submissions received this process' lifetime).
func (p *Pool) insertLocked(sti *txn.SubmitTxInfo, multiTx *txn.MultiTransactions, _ bool) {
	pos := len(p.entries)
	p.entries = append(p.entries, entry{sti: sti, multiTx: multiTx, received: sti.SubmitTimestamp})
	p.bySubmitHash[sti.IdentityHash()] = pos
	p.byMultiTxHash[sti.MultiTransactionsHash] = pos
	p.bySubmitter[sti.SubmitterAddress] = append(p.bySubmitter[sti.SubmitterAddress], pos)
}

// Remove deletes the entry with the given submit hash, if present, and fully
// rebuilds the indices afterward (correctness over efficiency, per §4.5).
func (p *Pool) Remove(submitHash crypto.Digest) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.bySubmitHash[submitHash]
	if !ok {
		return false
	}
	removed := p.entries[pos]
	p.entries = append(p.entries[:pos], p.entries[pos+1:]...)
	p.rebuildIndicesLocked()

	if p.store != nil {
		if err := p.store.Remove(submitHash); err != nil {
			p.logger.Printf("failed to remove submission %s from store: %v", submitHash.String(), err)
		}
	}
	_ = removed
	return true
}

func (p *Pool) rebuildIndicesLocked() {
	p.bySubmitHash = make(map[crypto.Digest]int, len(p.entries))
	p.byMultiTxHash = make(map[crypto.Digest]int, len(p.entries))
	p.bySubmitter = make(map[crypto.Address][]int, len(p.entries))
	for i, e := range p.entries {
		p.bySubmitHash[e.sti.IdentityHash()] = i
		p.byMultiTxHash[e.sti.MultiTransactionsHash] = i
		p.bySubmitter[e.sti.SubmitterAddress] = append(p.bySubmitter[e.sti.SubmitterAddress], i)
	}
}

// GetBySubmitHash looks up an entry by its identity hash.
func (p *Pool) GetBySubmitHash(h crypto.Digest) (*txn.SubmitTxInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.bySubmitHash[h]
	if !ok {
		return nil, false
	}
	return p.entries[pos].sti, true
}

// GetByMultiTxHash looks up an entry by its multi-transactions hash.
func (p *Pool) GetByMultiTxHash(h crypto.Digest) (*txn.SubmitTxInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.byMultiTxHash[h]
	if !ok {
		return nil, false
	}
	return p.entries[pos].sti, true
}

// GetBySubmitter returns every submission currently queued from addr (in
// practice at most one, enforced by the admission invariant, but the
// contract returns the full set).
func (p *Pool) GetBySubmitter(addr crypto.Address) []*txn.SubmitTxInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	positions := p.bySubmitter[addr]
	out := make([]*txn.SubmitTxInfo, 0, len(positions))
	for _, pos := range positions {
		out = append(out, p.entries[pos].sti)
	}
	return out
}

// All returns a snapshot copy of every queued submission.
func (p *Pool) All() []*txn.SubmitTxInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*txn.SubmitTxInfo, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.sti)
	}
	return out
}

// Clear empties the pool in-memory. It does not touch the durable store;
// callers that want a full reset should also reinitialize their Store.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = nil
	p.bySubmitHash = make(map[crypto.Digest]int)
	p.byMultiTxHash = make(map[crypto.Digest]int)
	p.bySubmitter = make(map[crypto.Address][]int)
}

// CleanupAged removes every entry whose submit_timestamp is older than
// maxAge relative to now, and returns the count removed (§4.5 Cleanup).
func (p *Pool) CleanupAged(maxAge time.Duration, now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var kept []entry
	removedHashes := make([]crypto.Digest, 0)
	for _, e := range p.entries {
		if now.Sub(e.sti.SubmitTimestamp) > maxAge {
			removedHashes = append(removedHashes, e.sti.IdentityHash())
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
	p.rebuildIndicesLocked()

	if p.store != nil {
		for _, h := range removedHashes {
			if err := p.store.Remove(h); err != nil {
				p.logger.Printf("failed to remove aged submission %s from store: %v", h.String(), err)
			}
		}
	}
	return len(removedHashes)
}

// Stats returns a snapshot of the pool's admission counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Len reports the number of submissions currently queued.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
