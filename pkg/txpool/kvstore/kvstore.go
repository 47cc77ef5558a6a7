// Package kvstore is a cometbft-db-backed txpool.Store: every unprocessed
// submission is appended as a JSON record under a submit-hash key, plus a
// compact integrity checksum over the snapshot (§4.5 Persistence).
package kvstore

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/errs"
	"github.com/ezchain/validator-core/pkg/logging"
	"github.com/ezchain/validator-core/pkg/txn"
)

// mustHexDecode decodes a lowercase hex string produced by Digest.String /
// Address.String, returning nil on malformed input so callers surface a
// coded corrupt-record error instead of panicking.
func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// parseRFC3339Nano parses the timestamp format SubmitTxInfo is stored with.
func parseRFC3339Nano(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

var (
	keyEntryPrefix = []byte("txpool:entry:") // + submit hash -> wireRecord
	keyChecksum    = []byte("txpool:checksum")
)

// wireRecord is the on-disk JSON encoding of one pool entry.
type wireRecord struct {
	MultiTransactionsHash string `json:"multi_transactions_hash"`
	SubmitTimestamp       string `json:"submit_timestamp"`
	ProtocolVersion       uint32 `json:"protocol_version"`
	SubmitterAddress      string `json:"submitter_address"`
	Signature             []byte `json:"signature"`
	SubmitterPubKey       []byte `json:"submitter_pubkey"`
}

// Store is a cometbft-db-backed txpool.Store.
type Store struct {
	db     dbm.DB
	logger *log.Logger
}

// New wraps db as a txpool.Store.
func New(db dbm.DB) *Store {
	return &Store{db: db, logger: logging.New("txpool-kvstore")}
}

func entryKey(submitHash crypto.Digest) []byte {
	return append(append([]byte{}, keyEntryPrefix...), submitHash[:]...)
}

func toWire(sti *txn.SubmitTxInfo) wireRecord {
	return wireRecord{
		MultiTransactionsHash: sti.MultiTransactionsHash.String(),
		SubmitTimestamp:       sti.SubmitTimestamp.Format(time.RFC3339Nano),
		ProtocolVersion:       sti.ProtocolVersion,
		SubmitterAddress:      sti.SubmitterAddress.String(),
		Signature:             sti.Signature,
		SubmitterPubKey:       sti.SubmitterPubKey,
	}
}

// Append persists sti and recomputes the snapshot checksum.
func (s *Store) Append(sti *txn.SubmitTxInfo) error {
	rec := toWire(sti)
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal submit tx info: %w", err)
	}
	if err := s.db.SetSync(entryKey(sti.IdentityHash()), b); err != nil {
		return fmt.Errorf("write submit tx info: %w", err)
	}
	return s.recomputeChecksum()
}

// Remove deletes the persisted record for submitHash, if present.
func (s *Store) Remove(submitHash crypto.Digest) error {
	if err := s.db.Delete(entryKey(submitHash)); err != nil {
		return fmt.Errorf("delete submit tx info: %w", err)
	}
	return s.recomputeChecksum()
}

// LoadAll rehydrates every persisted, unprocessed submission. It verifies
// the stored checksum against the freshly-read snapshot first; on mismatch
// it logs the loss and starts fresh rather than trusting corrupt data.
func (s *Store) LoadAll() ([]*txn.SubmitTxInfo, error) {
	records, err := s.readAllRaw()
	if err != nil {
		return nil, err
	}

	stored, err := s.db.Get(keyChecksum)
	if err == nil && len(stored) > 0 {
		computed := checksumOf(records)
		if string(stored) != computed {
			s.logger.Printf("txpool snapshot checksum mismatch: stored=%s computed=%s; starting fresh", string(stored), computed)
			return nil, nil
		}
	}

	out := make([]*txn.SubmitTxInfo, 0, len(records))
	for _, b := range records {
		var rec wireRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, errs.Wrap(errs.CodeCorruptRecord, "unmarshal submit tx info record", err)
		}
		mh, ok := crypto.DigestFromBytes(mustHexDecode(rec.MultiTransactionsHash))
		if !ok {
			return nil, errs.New(errs.CodeCorruptRecord, "invalid multi-transactions hash in stored record")
		}
		ts, err := parseRFC3339Nano(rec.SubmitTimestamp)
		if err != nil {
			return nil, errs.Wrap(errs.CodeCorruptRecord, "invalid submit timestamp in stored record", err)
		}
		addr, ok := crypto.AddressFromBytes(mustHexDecode(rec.SubmitterAddress))
		if !ok {
			return nil, errs.New(errs.CodeCorruptRecord, "invalid submitter address in stored record")
		}
		out = append(out, &txn.SubmitTxInfo{
			MultiTransactionsHash: mh,
			SubmitTimestamp:       ts,
			ProtocolVersion:       rec.ProtocolVersion,
			SubmitterAddress:      addr,
			Signature:             rec.Signature,
			SubmitterPubKey:       rec.SubmitterPubKey,
		})
	}
	return out, nil
}

func (s *Store) readAllRaw() ([][]byte, error) {
	iter, err := s.db.Iterator(keyEntryPrefix, dbm.PrefixEndBytes(keyEntryPrefix))
	if err != nil {
		return nil, fmt.Errorf("open iterator: %w", err)
	}
	defer iter.Close()

	var out [][]byte
	for ; iter.Valid(); iter.Next() {
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) recomputeChecksum() error {
	records, err := s.readAllRaw()
	if err != nil {
		return err
	}
	return s.db.SetSync(keyChecksum, []byte(checksumOf(records)))
}

// checksumOf computes a compact integrity checksum over a snapshot of raw
// records, order-independent (so compaction/rebuild never spuriously trips
// it), per §4.5's "compact integrity checksum covers the snapshot".
func checksumOf(records [][]byte) string {
	hashes := make([][32]byte, len(records))
	for i, r := range records {
		hashes[i] = sha256.Sum256(r)
	}
	sort.Slice(hashes, func(i, j int) bool {
		for k := 0; k < 32; k++ {
			if hashes[i][k] != hashes[j][k] {
				return hashes[i][k] < hashes[j][k]
			}
		}
		return false
	})
	h := sha256.New()
	for _, hh := range hashes {
		h.Write(hh[:])
	}
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(records)))
	h.Write(lenBuf[:])
	return fmt.Sprintf("%x", h.Sum(nil))
}
