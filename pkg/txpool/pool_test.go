package txpool

import (
	"testing"
	"time"

	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/txn"
	"github.com/ezchain/validator-core/pkg/value"
)

func newTestSubmission(t *testing.T) *txn.SubmitTxInfo {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	v, err := value.NewValue(value.IndexFromUint64(1), 10)
	if err != nil {
		t.Fatalf("construct value: %v", err)
	}
	_, recipientPub, _ := crypto.GenerateKeyPair()

	tx := txn.Transaction{Sender: pub.Address(), Recipient: recipientPub.Address(), Values: []value.Value{v}}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign transaction: %v", err)
	}
	multi := &txn.MultiTransactions{Sender: pub.Address(), Inner: []txn.Transaction{tx}}
	if err := multi.Sign(priv); err != nil {
		t.Fatalf("sign multi-transactions: %v", err)
	}
	sti, err := txn.CreateSubmitTxInfo(multi, priv, pub)
	if err != nil {
		t.Fatalf("create submit tx info: %v", err)
	}
	return sti
}

func TestPoolAdd_AcceptsValidSubmission(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	sti := newTestSubmission(t)

	ok, msg := p.Add(sti, nil)
	if !ok {
		t.Fatalf("expected acceptance, got rejection: %s", msg)
	}
	if p.Len() != 1 {
		t.Errorf("pool length = %d, want 1", p.Len())
	}
	if p.Stats().ValidReceived != 1 {
		t.Errorf("valid received = %d, want 1", p.Stats().ValidReceived)
	}
}

func TestPoolAdd_RejectsDuplicateSubmitterInSameBlock(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	_, recipientPub, _ := crypto.GenerateKeyPair()

	makeSubmission := func(begin uint64) *txn.SubmitTxInfo {
		v, err := value.NewValue(value.IndexFromUint64(begin), 5)
		if err != nil {
			t.Fatalf("construct value: %v", err)
		}
		tx := txn.Transaction{Sender: pub.Address(), Recipient: recipientPub.Address(), Values: []value.Value{v}}
		if err := tx.Sign(priv); err != nil {
			t.Fatalf("sign transaction: %v", err)
		}
		multi := &txn.MultiTransactions{Sender: pub.Address(), Inner: []txn.Transaction{tx}}
		if err := multi.Sign(priv); err != nil {
			t.Fatalf("sign multi-transactions: %v", err)
		}
		sti, err := txn.CreateSubmitTxInfo(multi, priv, pub)
		if err != nil {
			t.Fatalf("create submit tx info: %v", err)
		}
		return sti
	}

	first := makeSubmission(100)
	second := makeSubmission(200)

	if ok, msg := p.Add(first, nil); !ok {
		t.Fatalf("expected first submission accepted: %s", msg)
	}
	ok, msg := p.Add(second, nil)
	if ok {
		t.Fatal("expected second submission from the same submitter to be rejected")
	}
	if msg == "" {
		t.Error("expected a rejection message")
	}
	if p.Stats().Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", p.Stats().Duplicates)
	}
	if p.Len() != 1 {
		t.Errorf("pool length = %d, want 1", p.Len())
	}
}

func TestPoolRemove(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	sti := newTestSubmission(t)
	if ok, msg := p.Add(sti, nil); !ok {
		t.Fatalf("expected acceptance: %s", msg)
	}

	if !p.Remove(sti.IdentityHash()) {
		t.Fatal("expected removal to succeed")
	}
	if p.Len() != 0 {
		t.Errorf("pool length after removal = %d, want 0", p.Len())
	}
	if _, ok := p.GetBySubmitHash(sti.IdentityHash()); ok {
		t.Error("expected submission to be gone from submit-hash index")
	}
}

func TestPoolLookupsByAllThreeIndices(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	sti := newTestSubmission(t)
	if ok, msg := p.Add(sti, nil); !ok {
		t.Fatalf("expected acceptance: %s", msg)
	}

	if _, ok := p.GetBySubmitHash(sti.IdentityHash()); !ok {
		t.Error("expected lookup by submit hash to succeed")
	}
	if _, ok := p.GetByMultiTxHash(sti.MultiTransactionsHash); !ok {
		t.Error("expected lookup by multi-tx hash to succeed")
	}
	if got := p.GetBySubmitter(sti.SubmitterAddress); len(got) != 1 {
		t.Errorf("lookup by submitter returned %d entries, want 1", len(got))
	}
}

func TestPoolCleanupAged(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	sti := newTestSubmission(t)
	sti.SubmitTimestamp = time.Now().Add(-2 * time.Hour)
	// Re-sign is unnecessary for this test: CleanupAged only reads the
	// timestamp field, it does not re-verify the signature.
	p.entries = append(p.entries, entry{sti: sti, received: sti.SubmitTimestamp})
	p.bySubmitHash[sti.IdentityHash()] = 0

	removed := p.CleanupAged(time.Hour, time.Now())
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if p.Len() != 0 {
		t.Errorf("pool length after cleanup = %d, want 0", p.Len())
	}
}

func TestPoolClear(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	sti := newTestSubmission(t)
	if ok, _ := p.Add(sti, nil); !ok {
		t.Fatal("expected acceptance")
	}
	p.Clear()
	if p.Len() != 0 {
		t.Errorf("pool length after clear = %d, want 0", p.Len())
	}
}
