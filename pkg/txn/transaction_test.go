package txn

import (
	"testing"
	"time"

	ezcrypto "github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/value"
)

func newKey(t *testing.T) (*ezcrypto.PrivateKey, *ezcrypto.PublicKey) {
	t.Helper()
	priv, pub, err := ezcrypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return priv, pub
}

func mustVal(t *testing.T, begin, num uint64) value.Value {
	t.Helper()
	v, err := value.NewValue(value.IndexFromUint64(begin), num)
	if err != nil {
		t.Fatalf("NewValue: %v", err)
	}
	return v
}

func signedTransaction(t *testing.T, priv *ezcrypto.PrivateKey, pub *ezcrypto.PublicKey, recipient ezcrypto.Address) Transaction {
	t.Helper()
	tx := Transaction{
		Sender:    pub.Address(),
		Recipient: recipient,
		Nonce:     1,
		Values:    []value.Value{mustVal(t, 0, 10)},
		Timestamp: time.Now(),
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tx
}

func TestTransaction_SignThenVerify(t *testing.T) {
	priv, pub := newKey(t)
	_, recipientPub := newKey(t)
	tx := signedTransaction(t, priv, pub, recipientPub.Address())

	if err := tx.Verify(); err != nil {
		t.Fatalf("expected a freshly signed transaction to verify, got: %v", err)
	}
}

func TestTransaction_Verify_RejectsUnsigned(t *testing.T) {
	_, pub := newKey(t)
	_, recipientPub := newKey(t)
	tx := Transaction{Sender: pub.Address(), Recipient: recipientPub.Address(), Nonce: 1}
	if err := tx.Verify(); err == nil {
		t.Fatal("expected an unsigned transaction to fail verification")
	}
}

func TestTransaction_Sign_RejectsMismatchedSigningKey(t *testing.T) {
	priv, _ := newKey(t)
	_, otherPub := newKey(t)
	_, recipientPub := newKey(t)
	tx := Transaction{Sender: otherPub.Address(), Recipient: recipientPub.Address(), Nonce: 1}
	if err := tx.Sign(priv); err == nil {
		t.Fatal("expected signing with a key that does not match Sender to error")
	}
}

func TestTransaction_Verify_RejectsTamperedNonce(t *testing.T) {
	priv, pub := newKey(t)
	_, recipientPub := newKey(t)
	tx := signedTransaction(t, priv, pub, recipientPub.Address())

	tx.Nonce = 2
	if err := tx.Verify(); err == nil {
		t.Fatal("expected a tampered nonce to invalidate the signature")
	}
}

func TestTransaction_Verify_RejectsTamperedValues(t *testing.T) {
	priv, pub := newKey(t)
	_, recipientPub := newKey(t)
	tx := signedTransaction(t, priv, pub, recipientPub.Address())

	tx.Values = []value.Value{mustVal(t, 0, 999)}
	if err := tx.Verify(); err == nil {
		t.Fatal("expected tampered values to invalidate the signature")
	}
}

func TestTransaction_Verify_RejectsPubKeyNotMatchingSender(t *testing.T) {
	priv, pub := newKey(t)
	_, recipientPub := newKey(t)
	tx := signedTransaction(t, priv, pub, recipientPub.Address())

	_, otherPub := newKey(t)
	tx.SenderPubKey = otherPub.Bytes()
	if err := tx.Verify(); err == nil {
		t.Fatal("expected a pubkey that doesn't derive the claimed sender to be rejected")
	}
}
