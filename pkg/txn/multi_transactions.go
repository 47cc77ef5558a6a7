package txn

import (
	"fmt"

	ezcrypto "github.com/ezchain/validator-core/pkg/crypto"
)

// MultiTransactions is a batch of Transactions sharing one sender, covered by
// a single aggregate signature (§3). Digest = H(sender || H(inner digests in
// order)); the aggregate signature is computed over that digest.
type MultiTransactions struct {
	Sender              ezcrypto.Address `json:"sender"`
	Inner               []Transaction    `json:"inner"`
	AggregateSignature  []byte           `json:"aggregate_signature"`
	SenderPubKey        []byte           `json:"sender_pubkey"`
	Digest              ezcrypto.Digest  `json:"digest"`
}

// computeDigest folds the inner transactions' digests in order, then combines
// with the sender, per spec.md §3.
func (m *MultiTransactions) computeDigest() (ezcrypto.Digest, error) {
	innerEnc := ezcrypto.NewEncoder()
	for _, t := range m.Inner {
		if t.Sender != m.Sender {
			return ezcrypto.Digest{}, fmt.Errorf("inner transaction sender %s does not match multi-transactions sender %s", t.Sender.String(), m.Sender.String())
		}
		innerEnc.WriteDigest(t.digestFields())
	}
	innerDigest := innerEnc.Sum()

	enc := ezcrypto.NewEncoder()
	enc.WriteBytes(m.Sender[:])
	enc.WriteDigest(innerDigest)
	return enc.Sum(), nil
}

// Sign requires all inner transactions to already be individually signed and
// to share m.Sender, computes the digest, and signs it aggregately.
func (m *MultiTransactions) Sign(priv *ezcrypto.PrivateKey) error {
	pub := priv.PublicKey()
	if pub.Address() != m.Sender {
		return fmt.Errorf("signing key does not match multi-transactions sender %s", m.Sender.String())
	}
	for i, t := range m.Inner {
		if err := t.Verify(); err != nil {
			return fmt.Errorf("inner transaction %d not individually signed: %w", i, err)
		}
	}
	digest, err := m.computeDigest()
	if err != nil {
		return err
	}
	sig, err := priv.Sign(digest)
	if err != nil {
		return fmt.Errorf("sign multi-transactions: %w", err)
	}
	m.Digest = digest
	m.AggregateSignature = sig
	m.SenderPubKey = pub.Bytes()
	return nil
}

// Verify checks the aggregate signature and every inner transaction's
// individual signature.
func (m *MultiTransactions) Verify() error {
	if len(m.Inner) == 0 {
		return fmt.Errorf("multi-transactions has no inner transactions")
	}
	if len(m.AggregateSignature) == 0 || len(m.SenderPubKey) == 0 {
		return fmt.Errorf("multi-transactions is unsigned")
	}
	pub, err := ezcrypto.PublicKeyFromBytes(m.SenderPubKey)
	if err != nil {
		return fmt.Errorf("invalid sender pubkey: %w", err)
	}
	if pub.Address() != m.Sender {
		return fmt.Errorf("sender pubkey does not derive claimed sender address")
	}
	digest, err := m.computeDigest()
	if err != nil {
		return err
	}
	if digest != m.Digest {
		return fmt.Errorf("multi-transactions digest does not match recomputed digest")
	}
	if !pub.Verify(digest, m.AggregateSignature) {
		return fmt.Errorf("multi-transactions aggregate signature does not verify")
	}
	for i, t := range m.Inner {
		if err := t.Verify(); err != nil {
			return fmt.Errorf("inner transaction %d invalid: %w", i, err)
		}
	}
	return nil
}
