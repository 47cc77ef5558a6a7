// Package txn implements the protocol's transaction types (§3, §4.3):
// Transaction, MultiTransactions, and the SubmitTxInfo submission envelope.
// JSON struct tags and timestamp handling follow the conventions of the
// ancestor's pkg/proof package.
package txn

import (
	"fmt"
	"time"

	ezcrypto "github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/value"
)

// Transaction is a signed transfer of Values from sender to recipient (§3).
// The signature covers the canonical encoding of the first five fields.
type Transaction struct {
	Sender      ezcrypto.Address `json:"sender"`
	Recipient   ezcrypto.Address `json:"recipient"`
	Nonce       uint64           `json:"nonce"`
	Values      []value.Value    `json:"values"`
	Timestamp   time.Time        `json:"timestamp"`
	Signature   []byte           `json:"signature"`
	SenderPubKey []byte          `json:"sender_pubkey"`
}

// digestFields returns the canonical encoding of the fields the signature
// covers: sender, recipient, nonce, values, timestamp.
func (t *Transaction) digestFields() ezcrypto.Digest {
	enc := ezcrypto.NewEncoder()
	enc.WriteBytes(t.Sender[:])
	enc.WriteBytes(t.Recipient[:])
	enc.WriteUint64(t.Nonce)
	enc.WriteUint64(uint64(len(t.Values)))
	for _, v := range t.Values {
		enc.WriteString(v.Begin.Hex())
		enc.WriteUint64(v.Num)
	}
	enc.WriteUint64(uint64(t.Timestamp.UnixNano()))
	return enc.Sum()
}

// Sign computes the digest over the canonical encoding and signs it with priv.
// SenderPubKey is set so recipients can verify without an out-of-band lookup.
func (t *Transaction) Sign(priv *ezcrypto.PrivateKey) error {
	pub := priv.PublicKey()
	if pub.Address() != t.Sender {
		return fmt.Errorf("signing key does not match transaction sender %s", t.Sender.String())
	}
	digest := t.digestFields()
	sig, err := priv.Sign(digest)
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	t.Signature = sig
	t.SenderPubKey = pub.Bytes()
	return nil
}

// Verify checks the digest and signature against the embedded sender pubkey,
// and that the pubkey actually derives the claimed sender address.
func (t *Transaction) Verify() error {
	if len(t.Signature) == 0 || len(t.SenderPubKey) == 0 {
		return fmt.Errorf("transaction is unsigned")
	}
	pub, err := ezcrypto.PublicKeyFromBytes(t.SenderPubKey)
	if err != nil {
		return fmt.Errorf("invalid sender pubkey: %w", err)
	}
	if pub.Address() != t.Sender {
		return fmt.Errorf("sender pubkey does not derive claimed sender address")
	}
	digest := t.digestFields()
	if !pub.Verify(digest, t.Signature) {
		return fmt.Errorf("transaction signature does not verify")
	}
	return nil
}
