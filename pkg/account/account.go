package account

import (
	"fmt"
	"log"
	"sync"

	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/errs"
	"github.com/ezchain/validator-core/pkg/logging"
	"github.com/ezchain/validator-core/pkg/txn"
	"github.com/ezchain/validator-core/pkg/value"
)

// Verifier re-derives a received value's provenance against the account's
// main-chain view (merkle roots + bloom filters per height + genesis
// height), per §4.8. Account depends only on this interface so the VPB
// verifier can be wired in without an import cycle.
type Verifier interface {
	VerifyReceivedValue(v value.Value, proofUnits []ProofUnit, blockIndex BlockIndexList) error
}

// BatchRequest is one leg of a batched send: transfer amount to recipient.
type BatchRequest struct {
	Recipient crypto.Address
	Amount    uint64
}

// BatchResult is what create_batch_transactions returns (§4.4).
type BatchResult struct {
	MultiTransactions *txn.MultiTransactions
	Recipients        []crypto.Address
	TotalAmount       uint64
	TransactionCount  int
}

// Config holds an Account's construction parameters.
type Config struct {
	Address crypto.Address
	Private *crypto.PrivateKey
	Public  *crypto.PublicKey
	Logger  *log.Logger
}

// Account is the account-side VPB manager (§4.4): it owns one address's value
// collection plus the parallel ProofMap and BlockIndexList records, and
// serializes every mutation under a single account-scoped lock.
type Account struct {
	mu sync.Mutex

	address crypto.Address
	priv    *crypto.PrivateKey
	pub     *crypto.PublicKey
	logger  *log.Logger

	values     *value.Collection
	proofs     map[string][]ProofUnit
	blockIndex map[string]BlockIndexList
	nonce      uint64
}

// New constructs an Account for the given keypair. cfg.Logger defaults to a
// component-prefixed logger if nil.
func New(cfg Config) *Account {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.New("account:" + cfg.Address.String()[:8])
	}
	return &Account{
		address:    cfg.Address,
		priv:       cfg.Private,
		pub:        cfg.Public,
		logger:     logger,
		values:     value.NewCollection(),
		proofs:     make(map[string][]ProofUnit),
		blockIndex: make(map[string]BlockIndexList),
	}
}

// Address returns the account's address.
func (a *Account) Address() crypto.Address { return a.address }

// Values returns the account's underlying value collection, for callers
// (genesis distribution, tests) that need direct insertion access.
func (a *Account) Values() *value.Collection { return a.values }

func valueKey(v value.Value) string { return v.Begin.Hex() }

// CreateBatchTransactions picks values covering each request's amount,
// builds one signed Transaction per request, and bundles them into a single
// aggregately-signed MultiTransactions (§4.4). If any step after picking
// fails, every pick made so far is cancelled and the collection is left
// unchanged.
func (a *Account) CreateBatchTransactions(requests []BatchRequest) (*BatchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var picks []*value.PickResult
	rollback := func() {
		for i := len(picks) - 1; i >= 0; i-- {
			if err := picks[i].Cancel(); err != nil {
				a.logger.Printf("rollback: failed to cancel pick %d: %v", i, err)
			}
		}
	}

	var inner []txn.Transaction
	var recipients []crypto.Address
	var total uint64

	for _, req := range requests {
		pick, err := a.values.PickValues(req.Amount, nil)
		if err != nil {
			rollback()
			return nil, fmt.Errorf("pick %d units for %s: %w", req.Amount, req.Recipient.String(), err)
		}
		picks = append(picks, pick)

		t := txn.Transaction{
			Sender:    a.address,
			Recipient: req.Recipient,
			Nonce:     a.nonce,
			Values:    pick.Selected,
		}
		if err := t.Sign(a.priv); err != nil {
			rollback()
			return nil, fmt.Errorf("sign transaction to %s: %w", req.Recipient.String(), err)
		}
		a.nonce++

		inner = append(inner, t)
		recipients = append(recipients, req.Recipient)
		total += req.Amount
	}

	if len(inner) == 0 {
		rollback()
		return nil, fmt.Errorf("no requests to batch")
	}

	multi := &txn.MultiTransactions{Sender: a.address, Inner: inner}
	if err := multi.Sign(a.priv); err != nil {
		rollback()
		return nil, fmt.Errorf("sign multi-transactions: %w", err)
	}

	return &BatchResult{
		MultiTransactions: multi,
		Recipients:        recipients,
		TotalAmount:       total,
		TransactionCount:  len(inner),
	}, nil
}

// CreateSubmitTxInfo wraps a batch result's MultiTransactions into a
// submission envelope (§4.4, delegating to §4.3).
func (a *Account) CreateSubmitTxInfo(result *BatchResult) (*txn.SubmitTxInfo, error) {
	return txn.CreateSubmitTxInfo(result.MultiTransactions, a.priv, a.pub)
}

// UpdateVPBAfterTransactionSent advances every value spent by
// confirmedMultiTxns from SELECTED to LOCAL_COMMITTED, records the new
// block height and a new ProofUnit for each (§4.4 steps 1-3).
func (a *Account) UpdateVPBAfterTransactionSent(confirmedMultiTxns *txn.MultiTransactions, mtProof crypto.MerkleProof, blockHeight uint64, recipientAddress crypto.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if confirmedMultiTxns.Sender != a.address {
		return fmt.Errorf("multi-transactions sender %s does not match account %s", confirmedMultiTxns.Sender.String(), a.address.String())
	}

	var touched []value.Value
	for _, t := range confirmedMultiTxns.Inner {
		for _, v := range t.Values {
			current, ok := a.values.Get(v.Begin)
			if !ok {
				return fmt.Errorf("value at %s not found in collection", v.Begin.Hex())
			}
			if _, err := a.values.Transition(current, value.StateLocalCommitted); err != nil {
				return fmt.Errorf("transition value at %s: %w", v.Begin.Hex(), err)
			}
			touched = append(touched, current)
		}
	}

	for _, v := range touched {
		key := valueKey(v)
		list := a.blockIndex[key]
		if err := list.Append(blockHeight, recipientAddress); err != nil {
			return fmt.Errorf("append block index for value at %s: %w", key, err)
		}
		a.blockIndex[key] = list

		a.proofs[key] = append(a.proofs[key], ProofUnit{
			Owner:          a.address,
			OwnerMultiTxns: confirmedMultiTxns,
			InclusionProof: mtProof,
		})
	}
	return nil
}

// PromoteConfirmed transitions a LOCAL_COMMITTED value to CONFIRMED once the
// enclosing block has reached confirmation depth (§4.4 step 4).
func (a *Account) PromoteConfirmed(begin value.Index) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, ok := a.values.Get(begin)
	if !ok {
		return fmt.Errorf("value at %s not found in collection", begin.Hex())
	}
	_, err := a.values.Transition(current, value.StateConfirmed)
	return err
}

// ReceiveVPBFromOthers verifies a received (Value, ProofUnits, BlockIndex)
// against the account's chain view and, on success, inserts the value as
// UNSPENT and stores its proofs verbatim (§4.4).
func (a *Account) ReceiveVPBFromOthers(v value.Value, proofUnits []ProofUnit, blockIndex BlockIndexList, verifier Verifier) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := verifier.VerifyReceivedValue(v, proofUnits, blockIndex); err != nil {
		return err
	}

	v.State = value.StateUnspent
	if err := a.values.Insert(v); err != nil {
		return fmt.Errorf("insert received value at %s: %w", v.Begin.Hex(), err)
	}
	key := valueKey(v)
	a.proofs[key] = append([]ProofUnit(nil), proofUnits...)
	a.blockIndex[key] = append(BlockIndexList(nil), blockIndex...)
	return nil
}

// ValidateIntegrity checks (§4.4): every proof-unit list in the ProofMap is
// the same length as its BlockIndexList, ProofMap keys are a subset of the
// collection's keys, and no two UNSPENT/SELECTED intervals overlap. It does
// not check aggregate balances against state sums.
func (a *Account) ValidateIntegrity() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	all := a.values.All()
	present := make(map[string]value.Value, len(all))
	for _, v := range all {
		present[valueKey(v)] = v
	}

	for key, proofList := range a.proofs {
		v, ok := present[key]
		if !ok {
			return errs.New(errs.CodeDataStructureValidationFailed, fmt.Sprintf("proof map key %s is not present in the value collection", key))
		}
		biList := a.blockIndex[key]
		if len(proofList) != len(biList) {
			return errs.New(errs.CodeProofUnitValidationFailed, fmt.Sprintf("value at %s has %d proof units but %d block index entries", key, len(proofList), len(biList)))
		}
		_ = v
	}

	var unspentSelected []value.Value
	for _, v := range all {
		if v.State == value.StateUnspent || v.State == value.StateSelected {
			unspentSelected = append(unspentSelected, v)
		}
	}
	for i := 0; i < len(unspentSelected); i++ {
		for j := i + 1; j < len(unspentSelected); j++ {
			if unspentSelected[i].Overlaps(unspentSelected[j]) {
				return errs.New(errs.CodeOverlap, fmt.Sprintf("values at %s and %s overlap", unspentSelected[i].Begin.Hex(), unspentSelected[j].Begin.Hex()))
			}
		}
	}

	return nil
}

// Balance returns the total value_num of values in the given state.
func (a *Account) Balance(state value.State) uint64 {
	return a.values.Total(state)
}
