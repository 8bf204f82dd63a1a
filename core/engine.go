package core

// Blockchain engine (spec.md §4.4): genesis, mempool-to-block production,
// and per-transaction execution. Grounded on the teacher's ledger.go
// (single-writer block production over a locked store, block hash chained
// to prev_hash) generalized from WAL+snapshot replay to direct KV
// persistence, since Store already durably commits every block in one
// batch — a separate WAL would duplicate goleveldb's own write-ahead log.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EngineConfig is the static, startup-only configuration the engine needs
// (spec.md §6); internal/config loads it from YAML + environment overrides.
type EngineConfig struct {
	ChainID          string
	BlockTime        time.Duration
	GasLimit         uint64
	MaxTxsPerBlock   int
	BlockReward      uint64
	ValidatorPercent uint64 // 0..100, share of BlockReward newly minted to the validator
	ValidatorAddress string
	MasterAddress    string
	MasterBalance    uint64
}

// worstCaseCallGas bounds the gas a call_contract transaction could ever
// consume, so affordability can be checked once, before any state mutates,
// instead of correcting balances after the fact.
const worstCaseCallGas = gasUserFunction + uint64(maxOpsPerFunction)*gasPerOp

// Engine drives block production. A single mutex serializes ProduceBlock
// calls and is held for the duration of one transaction's execution
// (spec.md §5) — the mempool and store have their own finer-grained locks
// for concurrent reads.
type Engine struct {
	mu      sync.Mutex
	store   *Store
	pool    *Mempool
	mvm     *MVM
	tokens  *TokenLedger
	cfg     EngineConfig
	log       *logrus.Entry
	metrics   *Metrics
	transport Transport
}

// SetMetrics attaches a metric set the engine updates after every produced
// block. Optional — a nil Metrics (the default) disables instrumentation.
func (e *Engine) SetMetrics(m *Metrics) { e.metrics = m }

// SetTransport attaches the network backend a produced block is broadcast
// through. Optional — a nil Transport (the default) disables broadcast.
func (e *Engine) SetTransport(t Transport) { e.transport = t }

// NewEngine wires an engine over an already-open store and mempool.
func NewEngine(store *Store, pool *Mempool, mvm *MVM, tokens *TokenLedger, cfg EngineConfig) *Engine {
	return &Engine{
		store:  store,
		pool:   pool,
		mvm:    mvm,
		tokens: tokens,
		cfg:    cfg,
		log:    logrus.WithField("component", "engine"),
	}
}

// Genesis writes block 0 if the chain has not yet been initialized,
// crediting cfg.MasterAddress with cfg.MasterBalance.
func (e *Engine) Genesis(nowUnix int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok, err := e.store.GetBlockByHeight(0); err != nil {
		return fmt.Errorf("engine: check genesis: %w", err)
	} else if ok {
		return nil
	}

	if e.cfg.MasterAddress != "" {
		if err := e.store.SetBalance(e.cfg.MasterAddress, e.cfg.MasterBalance); err != nil {
			return fmt.Errorf("engine: credit master: %w", err)
		}
	}
	genesis := &Block{
		Height:       0,
		PrevHash:     genesisPrevHash,
		Timestamp:    nowUnix,
		Validator:    e.cfg.ValidatorAddress,
		Transactions: []*Transaction{},
		GasLimit:     e.cfg.GasLimit,
	}
	genesis.Hash = hashBlock(genesis)
	if err := e.store.SaveBlock(genesis); err != nil {
		return fmt.Errorf("engine: save genesis: %w", err)
	}
	if err := e.store.SetHeight(0); err != nil {
		return fmt.Errorf("engine: set height: %w", err)
	}
	e.log.WithField("master", e.cfg.MasterAddress).Info("genesis block written")
	return nil
}

// Submit admits tx into the mempool. Only dedup and nonce-conflict are
// checked here; signature, nonce-vs-chain-state, and balance are verified
// at block production time (spec.md §4.4).
func (e *Engine) Submit(tx *Transaction) AddResult {
	return e.pool.Add(tx)
}

// Run ticks block production every cfg.BlockTime until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.BlockTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ProduceBlock(time.Now().Unix()); err != nil {
				e.log.WithError(err).Error("produce block")
			}
		}
	}
}

// ProduceBlock drains the mempool, executes every transaction in
// deterministic order, and appends the resulting block. It returns nil,
// nil when there is nothing pending — an empty tick produces no block.
func (e *Engine) ProduceBlock(nowUnix int64) (*Block, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	txs := e.pool.DrainForBlock(e.cfg.MaxTxsPerBlock)
	if len(txs) == 0 {
		return nil, nil
	}

	height, err := e.store.GetHeight()
	if err != nil {
		return nil, fmt.Errorf("engine: read height: %w", err)
	}
	prev, ok, err := e.store.GetBlockByHeight(height)
	if err != nil {
		return nil, fmt.Errorf("engine: read prev block: %w", err)
	}
	if !ok {
		return nil, errInternal("missing block at current height")
	}
	newHeight := height + 1

	var gasFeesTotal uint64
	var gasUsedTotal uint64
	for _, tx := range txs {
		e.execute(tx, newHeight, nowUnix)
		gasUsedTotal += tx.GasUsed
		gasFeesTotal += tx.GasUsed * tx.GasPrice
		if err := e.store.IndexTransaction(tx, newHeight); err != nil {
			return nil, fmt.Errorf("engine: index tx %s: %w", tx.Hash, err)
		}
	}

	minted := e.cfg.BlockReward * e.cfg.ValidatorPercent / 100
	validatorReward := minted + gasFeesTotal
	if e.cfg.ValidatorAddress != "" && validatorReward > 0 {
		bal, err := e.store.GetBalance(e.cfg.ValidatorAddress)
		if err != nil {
			return nil, fmt.Errorf("engine: read validator balance: %w", err)
		}
		if err := e.store.SetBalance(e.cfg.ValidatorAddress, bal+validatorReward); err != nil {
			return nil, fmt.Errorf("engine: credit validator: %w", err)
		}
	}
	if minted > 0 {
		if err := e.store.AddTotalSupply(minted); err != nil {
			return nil, fmt.Errorf("engine: mint reward: %w", err)
		}
	}

	block := &Block{
		Height:          newHeight,
		PrevHash:        prev.Hash,
		Timestamp:       nowUnix,
		Validator:       e.cfg.ValidatorAddress,
		Transactions:    txs,
		TxCount:         len(txs),
		GasUsed:         gasUsedTotal,
		GasLimit:        e.cfg.GasLimit,
		ValidatorReward: validatorReward,
		TotalMinted:     minted,
	}
	block.Hash = hashBlock(block)
	if err := e.store.SaveBlock(block); err != nil {
		return nil, fmt.Errorf("engine: save block: %w", err)
	}
	if err := e.store.SetHeight(newHeight); err != nil {
		return nil, fmt.Errorf("engine: set height: %w", err)
	}
	for _, tx := range txs {
		if err := e.store.IndexTransaction(tx, newHeight); err != nil {
			return nil, fmt.Errorf("engine: index tx %s: %w", tx.Hash, err)
		}
	}
	e.log.WithFields(logrus.Fields{
		"height": newHeight, "txs": len(txs), "gas_used": gasUsedTotal,
	}).Info("block produced")
	e.metrics.Observe(block, e.pool.Count())
	if e.transport != nil {
		e.transport.BroadcastBlock(block)
	}
	return block, nil
}

// hashBlock computes H(height ‖ prev_hash ‖ timestamp ‖ validator ‖
// concat(tx.hash)) per spec.md §4.4.
func hashBlock(b *Block) string {
	h := sha256.New()
	var buf [8]byte
	putUint64(buf[:], b.Height)
	h.Write(buf[:])
	h.Write([]byte(b.PrevHash))
	putInt64(buf[:], b.Timestamp)
	h.Write(buf[:])
	h.Write([]byte(b.Validator))
	for _, tx := range b.Transactions {
		h.Write([]byte(tx.Hash))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func putUint64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func putInt64(buf []byte, v int64) { putUint64(buf, uint64(v)) }

//---------------------------------------------------------------------
// Per-transaction execution
//---------------------------------------------------------------------

// execute runs the gate sequence (signature, nonce, balance) followed by
// kind-specific effects, mutating tx in place to its terminal status. It
// never returns an error: every failure mode is recorded on tx itself, so
// one bad transaction never aborts the rest of the block.
func (e *Engine) execute(tx *Transaction, blockHeight uint64, blockTimestamp int64) {
	tx.GasUsed = BaseGasCost(tx.Kind)

	msg := HashTxData(string(tx.Kind), tx.From, tx.To, tx.Value, tx.Nonce, tx.Data)
	ok, err := VerifyTx(tx.From, msg, tx.Signature, tx.PublicKey)
	if err != nil || !ok {
		e.fail(tx, errInvalidSignature())
		return
	}

	nonce, err := e.store.GetNonce(tx.From)
	if err != nil {
		e.fail(tx, errInternal(err.Error()))
		return
	}
	if tx.Nonce != nonce {
		e.fail(tx, errInvalidNonce(nonce, tx.Nonce))
		return
	}

	worstGas := tx.GasUsed
	if tx.Kind == KindCallContract {
		worstGas += worstCaseCallGas
	}
	var reserveValue uint64
	if tx.Kind == KindTransfer {
		reserveValue = tx.Value
	}
	balance, err := e.store.GetBalance(tx.From)
	if err != nil {
		e.fail(tx, errInternal(err.Error()))
		return
	}
	if needed := worstGas*tx.GasPrice + reserveValue; balance < needed {
		e.fail(tx, errInsufficientBalance(needed, balance))
		return
	}

	// Gates passed: the nonce and the base gas fee are consumed regardless
	// of what the kind-specific effect below does. A call_contract's MVM
	// surcharge is charged separately, once its actual op count is known.
	if err := e.store.SetNonce(tx.From, nonce+1); err != nil {
		e.fail(tx, errInternal(err.Error()))
		return
	}
	baseFee := tx.GasUsed * tx.GasPrice
	if err := e.store.SetBalance(tx.From, balance-baseFee); err != nil {
		e.fail(tx, errInternal(err.Error()))
		return
	}

	var effectErr error
	switch tx.Kind {
	case KindTransfer:
		effectErr = e.execTransfer(tx)
	case KindCreateToken:
		effectErr = e.execCreateToken(tx, blockTimestamp)
	case KindTransferToken:
		effectErr = e.execTransferToken(tx)
	case KindDeployContract:
		effectErr = e.execDeployContract(tx, blockTimestamp)
	case KindCallContract:
		effectErr = e.execCallContract(tx, blockHeight, blockTimestamp)
	case KindDeployLegacy, KindCallLegacy:
		effectErr = errContract("legacy bytecode contracts are not supported")
	default:
		effectErr = errContract("unknown transaction kind: " + string(tx.Kind))
	}

	if effectErr != nil {
		e.fail(tx, effectErr)
		return
	}
	tx.Status = StatusSuccess
}

func (e *Engine) fail(tx *Transaction, err error) {
	tx.Status = StatusFailed
	tx.Error = err.Error()
}

// execTransfer moves tx.Value from the already fee-debited sender balance
// to the recipient.
func (e *Engine) execTransfer(tx *Transaction) error {
	if tx.To == "" {
		return errInvalidRecipient()
	}
	senderBal, err := e.store.GetBalance(tx.From)
	if err != nil {
		return err
	}
	if senderBal < tx.Value {
		return errInsufficientBalance(tx.Value, senderBal)
	}
	recvBal, err := e.store.GetBalance(tx.To)
	if err != nil {
		return err
	}
	if err := e.store.SetBalance(tx.From, senderBal-tx.Value); err != nil {
		return err
	}
	return e.store.SetBalance(tx.To, recvBal+tx.Value)
}

func (e *Engine) execCreateToken(tx *Transaction, nowUnix int64) error {
	var d CreateTokenData
	if err := json.Unmarshal(tx.Data, &d); err != nil {
		return errContract("malformed create_token payload")
	}
	addr, err := e.tokens.Deploy(tx.From, d.Name, d.Symbol, d.TotalSupply*DisplayScale, nowUnix, int64(tx.Nonce))
	if err != nil {
		return err
	}
	tx.To = addr
	return nil
}

func (e *Engine) execTransferToken(tx *Transaction) error {
	var d TransferTokenData
	if err := json.Unmarshal(tx.Data, &d); err != nil {
		return errContract("malformed transfer_token payload")
	}
	if tx.To == "" {
		return errInvalidRecipient()
	}
	return e.tokens.Transfer(d.Contract, tx.From, tx.To, d.Amount*DisplayScale)
}

func (e *Engine) execDeployContract(tx *Transaction, nowUnix int64) error {
	var d DeployContractData
	if err := json.Unmarshal(tx.Data, &d); err != nil {
		return errContract("malformed deploy_contract payload")
	}
	addr, err := e.mvm.Deploy(tx.From, d.Name, d.Token, d.Variables, d.Mappings, d.Functions, nowUnix, int64(tx.Nonce))
	if err != nil {
		return err
	}
	tx.To = addr
	return nil
}

func (e *Engine) execCallContract(tx *Transaction, blockHeight uint64, blockTimestamp int64) error {
	var d CallContractData
	if err := json.Unmarshal(tx.Data, &d); err != nil {
		return errContract("malformed call_contract payload")
	}
	if tx.To == "" {
		return errContract("call_contract requires a target contract address")
	}
	res, err := e.mvm.Call(tx.From, tx.To, d.Method, d.Args, d.Amount, blockHeight, blockTimestamp)
	if err != nil {
		return err
	}
	tx.GasUsed += res.GasUsed
	surcharge := res.GasUsed * tx.GasPrice
	if surcharge > 0 {
		senderBal, err := e.store.GetBalance(tx.From)
		if err != nil {
			return err
		}
		if senderBal >= surcharge {
			if err := e.store.SetBalance(tx.From, senderBal-surcharge); err != nil {
				return err
			}
		}
	}
	if !res.Success {
		return errContract(res.Error)
	}
	return nil
}
