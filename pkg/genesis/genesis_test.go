package genesis

import (
	"testing"

	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/value"
)

func genAddr(t *testing.T) crypto.Address {
	t.Helper()
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return pub.Address()
}

func TestBuild_DefaultScheduleProducesExpectedValueCount(t *testing.T) {
	genesisPriv, genesisPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate genesis keypair: %v", err)
	}
	accounts := []crypto.Address{genAddr(t), genAddr(t), genAddr(t)}

	res, err := Build(Config{Accounts: accounts}, genesisPriv, genesisPub)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantPerAccount := 0
	for _, d := range DefaultDenominationSchedule {
		wantPerAccount += int(d.Count)
	}
	for _, acct := range accounts {
		d := res.Deliveries[acct]
		if len(d.Values) != wantPerAccount {
			t.Errorf("account %s: got %d values, want %d", acct.String(), len(d.Values), wantPerAccount)
		}
		if len(d.ProofUnits) != wantPerAccount {
			t.Errorf("account %s: got %d proof units, want %d", acct.String(), len(d.ProofUnits), wantPerAccount)
		}
		if d.BlockIndex.LastHeight() != 0 {
			t.Errorf("account %s: expected genesis block index at height 0", acct.String())
		}
	}

	if len(res.MultiTxns.Inner) != wantPerAccount*len(accounts) {
		t.Errorf("got %d genesis transactions, want %d", len(res.MultiTxns.Inner), wantPerAccount*len(accounts))
	}
}

func TestBuild_ValuesAreNonOverlappingAcrossAllAccounts(t *testing.T) {
	genesisPriv, genesisPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate genesis keypair: %v", err)
	}
	accounts := []crypto.Address{genAddr(t), genAddr(t)}

	res, err := Build(Config{Accounts: accounts}, genesisPriv, genesisPub)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var all []value.Value
	for _, acct := range accounts {
		all = append(all, res.Deliveries[acct].Values...)
	}
	for i := range all {
		for j := range all {
			if i == j {
				continue
			}
			if all[i].Overlaps(all[j]) {
				t.Fatalf("values %d and %d overlap: %+v / %+v", i, j, all[i], all[j])
			}
		}
	}
}

func TestBuild_GenesisBlockHasSingleLeafMerkleRoot(t *testing.T) {
	genesisPriv, genesisPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate genesis keypair: %v", err)
	}
	accounts := []crypto.Address{genAddr(t)}

	res, err := Build(Config{Accounts: accounts}, genesisPriv, genesisPub)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if res.Block.Index != 0 {
		t.Errorf("genesis block index = %d, want 0", res.Block.Index)
	}
	if !res.Block.PreHash.IsZero() {
		t.Error("genesis block pre_hash should be zero (no parent)")
	}
	if res.Block.MerkleRoot != res.MultiTxns.Digest {
		t.Error("genesis block merkle root should equal the single leaf (the unified multi-transactions digest)")
	}
	if res.Block.BloomFilter == nil || !res.Block.BloomFilter.ProbablyContains(res.SubmitTxInfo.SubmitterAddress[:]) {
		t.Error("genesis block bloom filter should contain the genesis submitter")
	}

	for _, d := range res.Deliveries {
		for _, pu := range d.ProofUnits {
			if len(pu.InclusionProof.Path) != 0 {
				t.Error("single-leaf genesis proof should have an empty path")
			}
			if !crypto.VerifyProof(pu.OwnerMultiTxns.Digest, pu.InclusionProof, res.Block.MerkleRoot) {
				t.Error("genesis proof unit should verify against the genesis merkle root")
			}
		}
	}
}

func TestBuild_RejectsEmptyAccountList(t *testing.T) {
	genesisPriv, genesisPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate genesis keypair: %v", err)
	}
	if _, err := Build(Config{}, genesisPriv, genesisPub); err == nil {
		t.Fatal("expected an error for an empty account list")
	}
}

func TestBuild_CustomDenominationSchedule(t *testing.T) {
	genesisPriv, genesisPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate genesis keypair: %v", err)
	}
	acct := genAddr(t)

	res, err := Build(Config{
		Accounts:      []crypto.Address{acct},
		Denominations: []Denomination{{Amount: 7, Count: 3}},
	}, genesisPriv, genesisPub)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	d := res.Deliveries[acct]
	if len(d.Values) != 3 {
		t.Fatalf("got %d values, want 3", len(d.Values))
	}
	for _, v := range d.Values {
		if v.Num != 7 {
			t.Errorf("value amount = %d, want 7", v.Num)
		}
	}
}
