// Package genesis builds the unified genesis block (§4.9): a single
// MultiTransactions distributing a deterministic denomination schedule to
// every initial account, wrapped in a single-leaf Merkle tree, plus the
// per-account VPB delivery each recipient needs to seed its local state.
package genesis

import (
	"fmt"
	"time"

	"github.com/ezchain/validator-core/pkg/account"
	"github.com/ezchain/validator-core/pkg/chain"
	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/txn"
	"github.com/ezchain/validator-core/pkg/value"
)

// Denomination pairs a value size with how many values of that size every
// account receives (§4.9 Input).
type Denomination struct {
	Amount uint64
	Count  uint64
}

// DefaultDenominationSchedule is the reference distribution: 20 values each
// of 100, 50, 20, 10, 5, and 1 units per account.
var DefaultDenominationSchedule = []Denomination{
	{Amount: 100, Count: 20},
	{Amount: 50, Count: 20},
	{Amount: 20, Count: 20},
	{Amount: 10, Count: 20},
	{Amount: 5, Count: 20},
	{Amount: 1, Count: 20},
}

// AccountDelivery is everything one recipient needs to seed its VPB state
// from the genesis block (§4.9 step 7).
type AccountDelivery struct {
	Address    crypto.Address
	Values     []value.Value
	ProofUnits []account.ProofUnit
	BlockIndex account.BlockIndexList
}

// Result is the complete output of building the genesis block.
type Result struct {
	Block        *chain.Block
	SubmitTxInfo *txn.SubmitTxInfo
	MultiTxns    *txn.MultiTransactions
	Deliveries   map[crypto.Address]AccountDelivery
}

// Config configures Build.
type Config struct {
	Accounts      []crypto.Address
	Denominations []Denomination // nil uses DefaultDenominationSchedule
	Miner         crypto.Address
	Timestamp     time.Time
}

// Build runs the deterministic genesis construction algorithm: allocate
// non-overlapping value intervals, sign one transaction per (account,
// value), wrap them all into a single aggregately-signed MultiTransactions,
// assert its single-leaf Merkle tree has root == leaf, create the genesis
// block, and compute each account's delivery (§4.9).
func Build(cfg Config, genesisPriv *crypto.PrivateKey, genesisPub *crypto.PublicKey) (*Result, error) {
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("genesis requires at least one account")
	}
	schedule := cfg.Denominations
	if schedule == nil {
		schedule = DefaultDenominationSchedule
	}
	ts := cfg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	sender := genesisPub.Address()

	cursor := value.ZeroIndex
	perAccountValues := make(map[crypto.Address][]value.Value, len(cfg.Accounts))
	var transactions []txn.Transaction

	for _, acct := range cfg.Accounts {
		for _, d := range schedule {
			for k := uint64(0); k < d.Count; k++ {
				v, err := value.NewValue(cursor, d.Amount)
				if err != nil {
					return nil, fmt.Errorf("construct genesis value for %s: %w", acct.String(), err)
				}
				tx := txn.Transaction{
					Sender:    sender,
					Recipient: acct,
					Nonce:     uint64(len(transactions)),
					Values:    []value.Value{v},
					Timestamp: ts,
				}
				if err := tx.Sign(genesisPriv); err != nil {
					return nil, fmt.Errorf("sign genesis transaction for %s: %w", acct.String(), err)
				}
				transactions = append(transactions, tx)
				perAccountValues[acct] = append(perAccountValues[acct], v)

				next, err := cursor.Add(d.Amount)
				if err != nil {
					return nil, fmt.Errorf("genesis index allocator overflow: %w", err)
				}
				cursor = next
			}
		}
	}

	multi := &txn.MultiTransactions{Sender: sender, Inner: transactions}
	if err := multi.Sign(genesisPriv); err != nil {
		return nil, fmt.Errorf("sign genesis multi-transactions: %w", err)
	}

	sti, err := txn.CreateSubmitTxInfo(multi, genesisPriv, genesisPub)
	if err != nil {
		return nil, fmt.Errorf("create genesis submit tx info: %w", err)
	}

	tree, err := crypto.BuildTree([]crypto.Digest{multi.Digest})
	if err != nil {
		return nil, fmt.Errorf("build genesis merkle tree: %w", err)
	}
	if tree.Root() != multi.Digest {
		return nil, fmt.Errorf("genesis merkle root does not equal its single leaf")
	}
	proof, err := tree.Proof(0)
	if err != nil {
		return nil, fmt.Errorf("build genesis merkle proof: %w", err)
	}
	if len(proof.Path) != 0 {
		return nil, fmt.Errorf("genesis merkle proof is not the expected empty single-leaf path")
	}

	bloom := crypto.NewBloomFilter()
	bloom.Add(sti.SubmitterAddress[:])
	block := &chain.Block{
		Index:           0,
		PreHash:         crypto.Digest{},
		MerkleRoot:      tree.Root(),
		BloomFilter:     bloom,
		Miner:           cfg.Miner,
		Timestamp:       ts,
		ProtocolVersion: txn.SupportedProtocolVersion,
	}

	deliveries := make(map[crypto.Address]AccountDelivery, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		values := perAccountValues[acct]
		proofUnits := make([]account.ProofUnit, len(values))
		for i := range values {
			proofUnits[i] = account.ProofUnit{
				Owner:          acct,
				OwnerMultiTxns: multi,
				InclusionProof: proof,
			}
		}
		var blockIndex account.BlockIndexList
		if err := blockIndex.Append(0, acct); err != nil {
			return nil, fmt.Errorf("build genesis block index for %s: %w", acct.String(), err)
		}
		deliveries[acct] = AccountDelivery{
			Address:    acct,
			Values:     values,
			ProofUnits: proofUnits,
			BlockIndex: blockIndex,
		}
	}

	return &Result{Block: block, SubmitTxInfo: sti, MultiTxns: multi, Deliveries: deliveries}, nil
}
