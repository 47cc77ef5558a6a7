// Package ezchain holds end-to-end tests that drive the account, pool,
// assembler, chain, and verifier components together the way cmd/ezchaind
// wires them, rather than exercising each package in isolation. Grounded on
// the real-account, real-signature style of the ancestor's
// test_real_end_to_end_blockchain.py.
package ezchain

import (
	"testing"
	"time"

	"github.com/ezchain/validator-core/pkg/account"
	"github.com/ezchain/validator-core/pkg/assembler"
	"github.com/ezchain/validator-core/pkg/chain"
	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/genesis"
	"github.com/ezchain/validator-core/pkg/txpool"
	"github.com/ezchain/validator-core/pkg/verify"
)

// node bundles one validator's wired components, minus the router/HTTP
// layer, so a test can drive the real pool -> assembler -> chain pipeline
// in process.
type node struct {
	chain    *chain.Blockchain
	pool     *txpool.Pool
	asm      *assembler.Assembler
	verifier *verify.Verifier
	miner    crypto.Address
}

func newNode(t *testing.T, chainCfg chain.Config) *node {
	t.Helper()
	bc := chain.New(chainCfg)
	pool, err := txpool.New(txpool.Config{})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	_, minerPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate miner key: %v", err)
	}
	return &node{
		chain:    bc,
		pool:     pool,
		asm:      assembler.New(assembler.Config{}),
		verifier: verify.New(verify.Config{Chain: bc}),
		miner:    minerPub.Address(),
	}
}

// round is one pass of the assembly loop: pick everything queued, package
// it atop the chain's current tip, add it, and drop the picked entries from
// the pool. Returns the new block and, in selection order, each selected
// submission's Merkle inclusion proof.
func (n *node) round(t *testing.T) (*chain.Block, []assembler.LeafProof) {
	t.Helper()
	pkg, proofs, err := n.asm.PickWithProofs(n.pool, assembler.StrategyFIFO)
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	tip := n.chain.Tip()
	if tip == nil {
		t.Fatal("round called before a genesis block was added")
	}
	block, err := n.asm.CreateBlock(pkg, n.miner, tip.Hash(), n.chain.CurrentHeight()+1)
	if err != nil {
		t.Fatalf("create block: %v", err)
	}
	if _, err := n.chain.AddBlock(block); err != nil {
		t.Fatalf("add block: %v", err)
	}
	n.asm.RemovePicked(n.pool, pkg)
	return block, proofs
}

// genesisPair builds a fresh node seeded with a genesis block that gives
// alice and bob one value of amountEach each, with both accounts' local VPB
// state seeded from their genesis deliveries through the real receive path
// (not by poking unexported fields).
func genesisPair(t *testing.T, amountEach uint64) (n *node, alice, bob *account.Account, result *genesis.Result) {
	t.Helper()

	alicePriv, alicePub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate alice key: %v", err)
	}
	bobPriv, bobPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate bob key: %v", err)
	}
	genesisPriv, genesisPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate genesis key: %v", err)
	}

	result, err = genesis.Build(genesis.Config{
		Accounts:      []crypto.Address{alicePub.Address(), bobPub.Address()},
		Denominations: []genesis.Denomination{{Amount: amountEach, Count: 1}},
		Timestamp:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}, genesisPriv, genesisPub)
	if err != nil {
		t.Fatalf("build genesis: %v", err)
	}

	n = newNode(t, chain.Config{ConfirmationBlocks: 2})
	if _, err := n.chain.AddBlock(result.Block); err != nil {
		t.Fatalf("add genesis block: %v", err)
	}

	alice = account.New(account.Config{Address: alicePub.Address(), Private: alicePriv, Public: alicePub})
	bob = account.New(account.Config{Address: bobPub.Address(), Private: bobPriv, Public: bobPub})

	seed := func(a *account.Account) {
		d := result.Deliveries[a.Address()]
		for i, v := range d.Values {
			if err := a.ReceiveVPBFromOthers(v, []account.ProofUnit{d.ProofUnits[i]}, d.BlockIndex, n.verifier); err != nil {
				t.Fatalf("seed genesis value for %s: %v", a.Address().String(), err)
			}
		}
	}
	seed(alice)
	seed(bob)
	return n, alice, bob, result
}

// distinctMiners returns n independently generated addresses, for tests
// that distinguish synthetic blocks by miner identity alone.
func distinctMiners(t *testing.T, n int) []crypto.Address {
	t.Helper()
	out := make([]crypto.Address, n)
	for i := range out {
		_, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatalf("generate miner key %d: %v", i, err)
		}
		out[i] = pub.Address()
	}
	return out
}

// childBlock builds a syntactically valid unsigned child block of parent,
// distinguished from any sibling by miner/nonce, for the fork-resolution and
// persistence scenarios that don't need real transaction content.
func childBlock(parent *chain.Block, miner crypto.Address, nonce uint64) *chain.Block {
	return &chain.Block{
		Index:           parent.Index + 1,
		PreHash:         parent.Hash(),
		MerkleRoot:      crypto.Hash([]byte("block-content")),
		Miner:           miner,
		Nonce:           nonce,
		Timestamp:       parent.Timestamp.Add(time.Duration(parent.Index+1) * time.Second),
		ProtocolVersion: 1,
	}
}
