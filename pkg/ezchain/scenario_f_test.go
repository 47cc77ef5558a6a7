package ezchain

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ezchain/validator-core/pkg/chain"
	"github.com/ezchain/validator-core/pkg/crypto"
)

// TestScenarioF_PersistenceRoundTrip builds a 50-block chain carrying two
// forks, saves it, reloads it into a fresh Blockchain, and checks that the
// fork tree, tip, and individual blocks all survive the round trip.
func TestScenarioF_PersistenceRoundTrip(t *testing.T) {
	bc := chain.New(chain.Config{ConfirmationBlocks: 6})
	miners := distinctMiners(t, 60)
	next := 0
	miner := func() crypto.Address {
		m := miners[next]
		next++
		return m
	}

	genesis := &chain.Block{
		Index:      0,
		MerkleRoot: crypto.Hash([]byte("genesis")),
		Miner:      miner(),
		Timestamp:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if _, err := bc.AddBlock(genesis); err != nil {
		t.Fatalf("add genesis: %v", err)
	}

	var sampled *chain.Block
	parent := genesis
	for i := 1; i <= 45; i++ {
		b := childBlock(parent, miner(), 0)
		if _, err := bc.AddBlock(b); err != nil {
			t.Fatalf("add block %d: %v", i, err)
		}
		if i == 20 {
			sampled = b
		}
		parent = b
	}
	mainTip := parent

	// A short-lived fork off block 30 that never catches up to the main
	// chain: stays in the tree as non-main-chain fork nodes.
	forkParent, ok := bc.GetBlockByIndex(30)
	if !ok {
		t.Fatal("expected block 30 to exist on the main chain")
	}
	fp := forkParent
	for i := 0; i < 3; i++ {
		fb := childBlock(fp, miner(), 1)
		if _, err := bc.AddBlock(fb); err != nil {
			t.Fatalf("add fork block %d: %v", i, err)
		}
		fp = fb
	}

	// A second fork, off block 40, that also never catches up.
	forkParent2, ok := bc.GetBlockByIndex(40)
	if !ok {
		t.Fatal("expected block 40 to exist on the main chain")
	}
	fp2 := forkParent2
	for i := 0; i < 2; i++ {
		fb := childBlock(fp2, miner(), 2)
		if _, err := bc.AddBlock(fb); err != nil {
			t.Fatalf("add second fork block %d: %v", i, err)
		}
		fp2 = fb
	}

	// Extend the main chain on to height 50.
	parent = mainTip
	for i := 46; i <= 50; i++ {
		b := childBlock(parent, miner(), 0)
		if _, err := bc.AddBlock(b); err != nil {
			t.Fatalf("add block %d: %v", i, err)
		}
		parent = b
	}
	finalTip := parent

	wantStats := bc.GetForkStatistics()
	if wantStats.ForkNodes == 0 {
		t.Fatal("expected the fork branch to register as non-main-chain nodes before saving")
	}
	if wantStats.MainChainNodes != 51 {
		t.Fatalf("main-chain nodes before save = %d, want 51 (genesis + 50)", wantStats.MainChainNodes)
	}
	if wantStats.TipHeight != 50 {
		t.Fatalf("tip height before save = %d, want 50", wantStats.TipHeight)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "chain.json")
	if err := bc.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := chain.Load(path, chain.Config{ConfirmationBlocks: 6})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Tip() == nil || loaded.Tip().Hash() != finalTip.Hash() {
		t.Fatal("expected the reloaded tip to match the original tip")
	}
	if gotStats := loaded.GetForkStatistics(); gotStats != wantStats {
		t.Errorf("fork statistics after reload = %+v, want %+v", gotStats, wantStats)
	}
	if !loaded.IsValidChain() {
		t.Error("expected the reloaded main chain to still validate")
	}

	gotSample, ok := loaded.GetBlockByIndex(sampled.Index)
	if !ok || gotSample.Hash() != sampled.Hash() {
		t.Fatalf("expected block %d to round-trip by index", sampled.Index)
	}
	byHash, ok := loaded.GetBlockByHash(sampled.Hash())
	if !ok || byHash.Hash() != sampled.Hash() {
		t.Fatalf("expected block %d to round-trip by hash", sampled.Index)
	}

	forkTipBlock, ok := loaded.GetBlockByHash(fp.Hash())
	if !ok || forkTipBlock.Hash() != fp.Hash() {
		t.Error("expected the fork branch's tip to survive the round trip")
	}
}
