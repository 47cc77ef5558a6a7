package txn

import (
	"fmt"
	"time"

	ezcrypto "github.com/ezchain/validator-core/pkg/crypto"
)

// SupportedProtocolVersion is the only protocol_version this build accepts.
const SupportedProtocolVersion uint32 = 1

// SubmitTxInfo is the envelope by which an account announces a
// MultiTransactions to the consensus pool (§3, §4.3). Its signature covers
// the first four fields; its own identity hash covers all six.
type SubmitTxInfo struct {
	MultiTransactionsHash ezcrypto.Digest  `json:"multi_transactions_hash"`
	SubmitTimestamp       time.Time        `json:"submit_timestamp"`
	ProtocolVersion       uint32           `json:"protocol_version"`
	SubmitterAddress      ezcrypto.Address `json:"submitter_address"`
	Signature             []byte           `json:"signature"`
	SubmitterPubKey       []byte           `json:"submitter_pubkey"`
}

// signedFieldsDigest is the digest over the four signed fields.
func (s *SubmitTxInfo) signedFieldsDigest() ezcrypto.Digest {
	enc := ezcrypto.NewEncoder()
	enc.WriteDigest(s.MultiTransactionsHash)
	enc.WriteString(s.SubmitTimestamp.UTC().Format(time.RFC3339Nano))
	enc.WriteUint32(s.ProtocolVersion)
	enc.WriteBytes(s.SubmitterAddress[:])
	return enc.Sum()
}

// IdentityHash is the digest over all six fields; this is the "submit hash"
// used as the pool's primary key.
func (s *SubmitTxInfo) IdentityHash() ezcrypto.Digest {
	enc := ezcrypto.NewEncoder()
	enc.WriteDigest(s.MultiTransactionsHash)
	enc.WriteString(s.SubmitTimestamp.UTC().Format(time.RFC3339Nano))
	enc.WriteUint32(s.ProtocolVersion)
	enc.WriteBytes(s.SubmitterAddress[:])
	enc.WriteBytes(s.Signature)
	enc.WriteBytes(s.SubmitterPubKey)
	return enc.Sum()
}

// CreateSubmitTxInfo wraps an already-signed, verified MultiTransactions into
// a submission envelope, captured at the current wall-clock time (§4.3).
func CreateSubmitTxInfo(multiTx *MultiTransactions, priv *ezcrypto.PrivateKey, pub *ezcrypto.PublicKey) (*SubmitTxInfo, error) {
	if multiTx.Digest.IsZero() {
		return nil, fmt.Errorf("multi-transactions digest is not set")
	}
	if err := multiTx.Verify(); err != nil {
		return nil, fmt.Errorf("multi-transactions does not verify: %w", err)
	}

	s := &SubmitTxInfo{
		MultiTransactionsHash: multiTx.Digest,
		SubmitTimestamp:       time.Now().UTC(),
		ProtocolVersion:       SupportedProtocolVersion,
		SubmitterAddress:      pub.Address(),
	}
	digest := s.signedFieldsDigest()
	sig, err := priv.Sign(digest)
	if err != nil {
		return nil, fmt.Errorf("sign submit tx info: %w", err)
	}
	s.Signature = sig
	s.SubmitterPubKey = pub.Bytes()
	return s, nil
}

// Verify checks version, timestamp, and the signature over the four signed
// fields against the embedded pubkey. If multiTx is provided, it additionally
// checks multiTx.Digest == MultiTransactionsHash and multiTx.Sender ==
// SubmitterAddress (§4.3).
func (s *SubmitTxInfo) Verify(multiTx *MultiTransactions) error {
	if s.ProtocolVersion != SupportedProtocolVersion {
		return fmt.Errorf("unsupported protocol version %d", s.ProtocolVersion)
	}
	if s.SubmitTimestamp.IsZero() {
		return fmt.Errorf("submit timestamp is not set")
	}
	if len(s.Signature) == 0 || len(s.SubmitterPubKey) == 0 {
		return fmt.Errorf("submit tx info is unsigned")
	}
	pub, err := ezcrypto.PublicKeyFromBytes(s.SubmitterPubKey)
	if err != nil {
		return fmt.Errorf("invalid submitter pubkey: %w", err)
	}
	if pub.Address() != s.SubmitterAddress {
		return fmt.Errorf("submitter pubkey does not derive claimed submitter address")
	}
	digest := s.signedFieldsDigest()
	if !pub.Verify(digest, s.Signature) {
		return fmt.Errorf("submit tx info signature does not verify")
	}
	if multiTx != nil {
		if multiTx.Digest != s.MultiTransactionsHash {
			return fmt.Errorf("multi-transactions digest does not match submission hash")
		}
		if multiTx.Sender != s.SubmitterAddress {
			return fmt.Errorf("multi-transactions sender does not match submitter address")
		}
	}
	return nil
}
