// ezchaind is the node process: it wires the account manager, transaction
// pool, block assembler, blockchain, and message router together according
// to the loaded configuration's node role, exposes a small HTTP surface over
// the router's message types, and serves a metrics endpoint until signaled
// to shut down.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/ezchain/validator-core/pkg/account"
	"github.com/ezchain/validator-core/pkg/assembler"
	"github.com/ezchain/validator-core/pkg/chain"
	"github.com/ezchain/validator-core/pkg/config"
	"github.com/ezchain/validator-core/pkg/crypto"
	"github.com/ezchain/validator-core/pkg/errs"
	"github.com/ezchain/validator-core/pkg/genesis"
	"github.com/ezchain/validator-core/pkg/logging"
	"github.com/ezchain/validator-core/pkg/metrics"
	"github.com/ezchain/validator-core/pkg/router"
	"github.com/ezchain/validator-core/pkg/txn"
	"github.com/ezchain/validator-core/pkg/txpool"
	"github.com/ezchain/validator-core/pkg/txpool/kvstore"
	"github.com/ezchain/validator-core/pkg/txpool/sqlstore"
	"github.com/ezchain/validator-core/pkg/value"
	"github.com/ezchain/validator-core/pkg/verify"
)

// node bundles every long-lived component a running ezchaind process owns.
type node struct {
	cfg      *config.Config
	logger   *log.Logger
	chain    *chain.Blockchain
	pool     *txpool.Pool
	asm      *assembler.Assembler
	router   *router.Router
	acct     *account.Account
	verifier *verify.Verifier
	metrics  *metrics.Collector
	miner    crypto.Address

	poolStatsMu   sync.Mutex
	lastPoolStats txpool.Stats
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to the node YAML config file (devnet defaults used if omitted)")
		validatorID = flag.String("node-id", "", "overrides node.id from the config file")
	)
	flag.Parse()

	logger := logging.New("ezchaind")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config %s: %v", *configPath, err)
		}
		cfg = loaded
	}
	if *validatorID != "" {
		cfg.Node.ID = *validatorID
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger.Printf("starting node %s role=%s environment=%s", cfg.Node.ID, cfg.Node.Role, cfg.Environment)

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir %s: %v", cfg.Node.DataDir, err)
	}

	priv, pub, err := loadOrGenerateKey(cfg.Crypto.KeyPath)
	if err != nil {
		log.Fatalf("load or generate node key: %v", err)
	}
	logger.Printf("node address: %s", pub.Address().String())

	bc, err := buildChain(cfg, logger)
	if err != nil {
		log.Fatalf("build blockchain: %v", err)
	}
	pool, err := buildPool(cfg, logger)
	if err != nil {
		log.Fatalf("build transaction pool: %v", err)
	}

	n := &node{
		cfg:      cfg,
		logger:   logger,
		chain:    bc,
		pool:     pool,
		asm:      assembler.New(assembler.Config{MaxSubmissionsPerBlock: cfg.Assembler.MaxSubmissionsPerBlock}),
		router:   router.New(router.Config{Logger: logging.New("router")}),
		verifier: verify.New(verify.Config{Chain: bc}),
		metrics:  metrics.New(),
		miner:    pub.Address(),
	}
	if cfg.Node.Role == "account" || cfg.Node.Role == "combined" {
		n.acct = account.New(account.Config{Address: pub.Address(), Private: priv, Public: pub, Logger: logging.New("account")})
	}
	n.registerHandlers()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", n.metrics.Handler())
		mux.HandleFunc("/acctxn/submit", n.handleSubmitHTTP)
		mux.HandleFunc("/vpb/transfer", n.handleVPBTransferHTTP)
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Printf("HTTP endpoint listening on %s", cfg.Metrics.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTP server: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Node.Role == "consensus" || cfg.Node.Role == "combined" {
		go n.runAssemblyLoop(ctx)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Printf("shutdown signal received")
	cancel()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP server shutdown error: %v", err)
		}
	}

	chainPath := filepath.Join(cfg.Chain.StoreDir, "chain.json")
	if err := bc.Save(chainPath); err != nil {
		logger.Printf("failed to save chain on shutdown: %v", err)
	}
	logger.Printf("node %s stopped", cfg.Node.ID)
}

// registerHandlers wires the router's message types to the components that
// act on them (§6's wire table, applied in-process rather than over a
// network transport).
func (n *node) registerHandlers() {
	n.router.RegisterHandler(router.TypeAcctxnSubmit, func(env router.Envelope) error {
		var sti txn.SubmitTxInfo
		if err := json.Unmarshal(env.Payload, &sti); err != nil {
			return fmt.Errorf("decode ACCTXN_SUBMIT payload: %w", err)
		}
		ok, msg := n.pool.Add(&sti, nil)
		n.recordPoolStats()
		if !ok {
			return fmt.Errorf("submission rejected: %s", msg)
		}
		return nil
	})

	n.router.RegisterHandler(router.TypeVPBTransfer, func(env router.Envelope) error {
		if n.acct == nil {
			return fmt.Errorf("node %s does not run the account role", n.cfg.Node.ID)
		}
		var payload vpbTransferPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return fmt.Errorf("decode VPB_TRANSFER payload: %w", err)
		}
		err := n.acct.ReceiveVPBFromOthers(payload.Value, payload.ProofUnits, payload.BlockIndex, n.verifier)
		n.metrics.RecordVerification(err == nil, errCode(err))
		return err
	})

	n.router.RegisterHandler(router.TypeNewBlock, func(router.Envelope) error {
		n.metrics.RecordForkStatistics(n.chain.GetForkStatistics())
		return nil
	})
}

// recordPoolStats feeds the pool's latest snapshot into the metrics
// collector, which only applies non-negative deltas against the last one
// observed.
func (n *node) recordPoolStats() {
	n.poolStatsMu.Lock()
	defer n.poolStatsMu.Unlock()
	cur := n.pool.Stats()
	n.metrics.RecordPoolStats(n.lastPoolStats, cur)
	n.lastPoolStats = cur
}

// vpbTransferPayload is the in-process JSON shape of the VPB_TRANSFER
// message (§6): {recipient, value, proof_units[], block_index, sender}.
// The recipient/sender addresses are carried by the envelope's routing, not
// re-decoded here.
type vpbTransferPayload struct {
	Value      value.Value            `json:"value"`
	ProofUnits []account.ProofUnit    `json:"proof_units"`
	BlockIndex account.BlockIndexList `json:"block_index"`
}

// handleSubmitHTTP accepts an ACCTXN_SUBMIT payload over HTTP. The body is
// decoded here (not left to the router handler) so a malformed payload gets
// a 400 synchronously; the router's own Send only ever returns an error for
// an unregistered message type, treating handler-level rejection (pool
// admission failing) as an async-delivery concern, same as a broadcast to
// several subscribers would.
func (n *node) handleSubmitHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var sti txn.SubmitTxInfo
	if err := json.Unmarshal(body, &sti); err != nil {
		http.Error(w, "malformed ACCTXN_SUBMIT payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	env := router.NewEnvelope(n.cfg.Node.ID, router.TypeAcctxnSubmit, body, time.Now())
	if err := n.router.Send(env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleVPBTransferHTTP accepts a VPB_TRANSFER payload over HTTP, decoding
// it up front for the same reason handleSubmitHTTP does.
func (n *node) handleVPBTransferHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var payload vpbTransferPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "malformed VPB_TRANSFER payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	env := router.NewEnvelope(n.cfg.Node.ID, router.TypeVPBTransfer, body, time.Now())
	if err := n.router.Send(env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// runAssemblyLoop periodically packages pending submissions into a block
// and broadcasts NEW_BLOCK, standing in for the consensus node's mining
// cadence (§4.6).
func (n *node) runAssemblyLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.assembleOnce()
		}
	}
}

func (n *node) assembleOnce() {
	pkg, err := n.asm.Pick(n.pool, assembler.Strategy(n.cfg.Assembler.Strategy))
	if err != nil {
		n.logger.Printf("pick failed: %v", err)
		return
	}
	if len(pkg.Entries) == 0 {
		return
	}
	tip := n.chain.Tip()
	var previousHash crypto.Digest
	var index uint64
	if tip != nil {
		previousHash = tip.Hash()
		index = n.chain.CurrentHeight() + 1
	}
	block, err := n.asm.CreateBlock(pkg, n.miner, previousHash, index)
	if err != nil {
		n.logger.Printf("create block failed: %v", err)
		return
	}
	if _, err := n.chain.AddBlock(block); err != nil {
		n.logger.Printf("add block failed: %v", err)
		return
	}
	n.asm.RemovePicked(n.pool, pkg)
	n.metrics.RecordForkStatistics(n.chain.GetForkStatistics())

	payload, err := json.Marshal(block)
	if err != nil {
		n.logger.Printf("encode NEW_BLOCK payload: %v", err)
		return
	}
	env := router.NewEnvelope(n.cfg.Node.ID, router.TypeNewBlock, payload, time.Now())
	if err := n.router.Broadcast(env); err != nil {
		n.logger.Printf("broadcast NEW_BLOCK: %v", err)
	}
}

// buildChain loads the blockchain from cfg.Chain.StoreDir if a snapshot
// exists, seeding it with a freshly-built genesis block otherwise when the
// config names genesis accounts.
func buildChain(cfg *config.Config, logger *log.Logger) (*chain.Blockchain, error) {
	if err := os.MkdirAll(cfg.Chain.StoreDir, 0o755); err != nil {
		return nil, err
	}
	chainCfg := chain.Config{
		ConfirmationBlocks: cfg.Chain.ConfirmationBlocks,
		MaxForkHeight:      cfg.Chain.MaxForkHeight,
		Logger:             logging.New("chain"),
	}
	chainPath := filepath.Join(cfg.Chain.StoreDir, "chain.json")
	bc, err := chain.Load(chainPath, chainCfg)
	if err != nil {
		return nil, err
	}
	if bc.GetForkStatistics().TotalNodes > 0 {
		return bc, nil
	}
	if len(cfg.Genesis.Accounts) == 0 {
		logger.Printf("no genesis accounts configured; starting with an empty chain")
		return bc, nil
	}

	genesisPriv, genesisPub, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	accounts := make([]crypto.Address, 0, len(cfg.Genesis.Accounts))
	for _, addrHex := range cfg.Genesis.Accounts {
		b, err := hex.DecodeString(addrHex)
		if err != nil {
			return nil, err
		}
		addr, ok := crypto.AddressFromBytes(b)
		if !ok {
			continue
		}
		accounts = append(accounts, addr)
	}
	var denominations []genesis.Denomination
	for _, d := range cfg.Genesis.Denominations {
		denominations = append(denominations, genesis.Denomination{Amount: d.Amount, Count: d.Count})
	}
	result, err := genesis.Build(genesis.Config{Accounts: accounts, Denominations: denominations}, genesisPriv, genesisPub)
	if err != nil {
		return nil, err
	}
	if _, err := bc.AddBlock(result.Block); err != nil {
		return nil, err
	}
	logger.Printf("genesis block built for %d accounts", len(accounts))
	return bc, nil
}

// buildPool constructs the durable Store named by cfg.Pool.Backend.
func buildPool(cfg *config.Config, logger *log.Logger) (*txpool.Pool, error) {
	var store txpool.Store
	switch cfg.Pool.Backend {
	case "kvstore":
		if err := os.MkdirAll(cfg.Pool.KVStoreDir, 0o755); err != nil {
			return nil, err
		}
		db, err := dbm.NewGoLevelDB("txpool", cfg.Pool.KVStoreDir)
		if err != nil {
			return nil, err
		}
		store = kvstore.New(db)
	case "sqlstore":
		s, err := sqlstore.Open(cfg.Pool.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = s
	case "memory", "":
		store = kvstore.New(dbm.NewMemDB())
	default:
		store = kvstore.New(dbm.NewMemDB())
		logger.Printf("unrecognized pool backend %q, defaulting to in-memory", cfg.Pool.Backend)
	}
	return txpool.New(txpool.Config{Store: store, Logger: logging.New("txpool")})
}

// loadOrGenerateKey reads a hex-encoded private key from path, generating
// and persisting a fresh keypair if the file does not yet exist.
func loadOrGenerateKey(path string) (*crypto.PrivateKey, *crypto.PublicKey, error) {
	if path == "" {
		priv, pub, err := crypto.GenerateKeyPair()
		return priv, pub, err
	}
	if data, err := os.ReadFile(path); err == nil {
		raw, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, nil, err
		}
		priv, err := crypto.PrivateKeyFromBytes(raw)
		if err != nil {
			return nil, nil, err
		}
		return priv, priv.PublicKey(), nil
	}

	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(priv.Bytes())), 0o600); err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

// errCode extracts the stable taxonomy code from a verification error,
// falling back to the generic exception code for anything else (a decode
// failure, a nil account, etc).
func errCode(err error) errs.Code {
	if err == nil {
		return ""
	}
	if ce, ok := err.(errs.CodedError); ok {
		return ce.Code()
	}
	return errs.CodeVerificationException
}
