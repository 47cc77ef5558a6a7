// Package sqlstore is a Postgres-backed txpool.Store, an alternative to
// kvstore for deployments that already run a relational database for other
// node state (§4.5 Persistence: "append-only durable record with columns for
// each field and a blob of the canonical serialization").
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/errs"
	"github.com/ezchain/validator-core/pkg/logging"
	"github.com/ezchain/validator-core/pkg/txn"
)

const schema = `
CREATE TABLE IF NOT EXISTS txpool_submissions (
	submit_hash             BYTEA PRIMARY KEY,
	multi_transactions_hash BYTEA NOT NULL,
	submit_timestamp        TIMESTAMPTZ NOT NULL,
	protocol_version        INTEGER NOT NULL,
	submitter_address       BYTEA NOT NULL,
	signature               BYTEA NOT NULL,
	submitter_pubkey        BYTEA NOT NULL,
	canonical_blob          BYTEA NOT NULL
);
CREATE INDEX IF NOT EXISTS txpool_submissions_multi_tx_hash_idx ON txpool_submissions (multi_transactions_hash);
CREATE INDEX IF NOT EXISTS txpool_submissions_submitter_idx ON txpool_submissions (submitter_address);
`

// Store is a lib/pq-backed txpool.Store.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Open connects to a Postgres database at databaseURL and ensures the
// submissions table exists.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply txpool schema: %w", err)
	}
	return &Store{db: db, logger: logging.New("txpool-sqlstore")}, nil
}

// New wraps an already-open *sql.DB (e.g. shared with other components),
// ensuring the submissions table exists.
func New(db *sql.DB) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply txpool schema: %w", err)
	}
	return &Store{db: db, logger: logging.New("txpool-sqlstore")}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts sti as a new row, replacing any prior row with the same
// submit hash (a resubmission under an identical hash is a no-op upsert).
func (s *Store) Append(sti *txn.SubmitTxInfo) error {
	blob, err := canonicalBlob(sti)
	if err != nil {
		return err
	}
	submitHash := sti.IdentityHash()
	_, err = s.db.Exec(`
		INSERT INTO txpool_submissions
			(submit_hash, multi_transactions_hash, submit_timestamp, protocol_version, submitter_address, signature, submitter_pubkey, canonical_blob)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (submit_hash) DO UPDATE SET
			multi_transactions_hash = EXCLUDED.multi_transactions_hash,
			submit_timestamp        = EXCLUDED.submit_timestamp,
			protocol_version        = EXCLUDED.protocol_version,
			submitter_address       = EXCLUDED.submitter_address,
			signature               = EXCLUDED.signature,
			submitter_pubkey        = EXCLUDED.submitter_pubkey,
			canonical_blob          = EXCLUDED.canonical_blob
	`, submitHash.Bytes(), sti.MultiTransactionsHash.Bytes(), sti.SubmitTimestamp, sti.ProtocolVersion,
		sti.SubmitterAddress[:], sti.Signature, sti.SubmitterPubKey, blob)
	if err != nil {
		return fmt.Errorf("insert submission row: %w", err)
	}
	return nil
}

// Remove deletes the row for submitHash, if present.
func (s *Store) Remove(submitHash crypto.Digest) error {
	if _, err := s.db.Exec(`DELETE FROM txpool_submissions WHERE submit_hash = $1`, submitHash.Bytes()); err != nil {
		return fmt.Errorf("delete submission row: %w", err)
	}
	return nil
}

// LoadAll rehydrates every persisted submission, ordered by submit timestamp
// so replay order matches original admission order.
func (s *Store) LoadAll() ([]*txn.SubmitTxInfo, error) {
	rows, err := s.db.Query(`
		SELECT multi_transactions_hash, submit_timestamp, protocol_version, submitter_address, signature, submitter_pubkey
		FROM txpool_submissions
		ORDER BY submit_timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []*txn.SubmitTxInfo
	for rows.Next() {
		var multiHashB, submitterB, sig, pub []byte
		var ts time.Time
		var version uint32
		if err := rows.Scan(&multiHashB, &ts, &version, &submitterB, &sig, &pub); err != nil {
			return nil, errs.Wrap(errs.CodeCorruptRecord, "scan submission row", err)
		}
		mh, ok := crypto.DigestFromBytes(multiHashB)
		if !ok {
			return nil, errs.New(errs.CodeCorruptRecord, "invalid multi-transactions hash in stored row")
		}
		addr, ok := crypto.AddressFromBytes(submitterB)
		if !ok {
			return nil, errs.New(errs.CodeCorruptRecord, "invalid submitter address in stored row")
		}
		out = append(out, &txn.SubmitTxInfo{
			MultiTransactionsHash: mh,
			SubmitTimestamp:       ts,
			ProtocolVersion:       version,
			SubmitterAddress:      addr,
			Signature:             sig,
			SubmitterPubKey:       pub,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission rows: %w", err)
	}
	return out, nil
}

func canonicalBlob(sti *txn.SubmitTxInfo) ([]byte, error) {
	enc := crypto.NewEncoder()
	enc.WriteDigest(sti.MultiTransactionsHash)
	enc.WriteString(sti.SubmitTimestamp.Format(time.RFC3339Nano))
	enc.WriteUint32(sti.ProtocolVersion)
	enc.WriteBytes(sti.SubmitterAddress[:])
	enc.WriteBytes(sti.Signature)
	enc.WriteBytes(sti.SubmitterPubKey)
	return enc.Bytes(), nil
}
