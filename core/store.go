package core

// State store façade (spec.md §4.2) over an embedded ordered key-value
// engine. Grounded on the teacher's Ledger type (one struct owning all
// on-disk state behind a single lock, typed accessor methods instead of a
// raw handle) but backed by a real LSM engine instead of in-memory maps +
// WAL replay, since spec.md explicitly calls for "any KV store that
// supports ordered prefix scans". goleveldb is the engine go-ethereum
// itself ships as a chain-database backend.
//
// Key namespaces are disjoint ASCII strings with ':' separators so that
// ordered iteration (leveldb's natural key order) gives prefix scans for
// free. All integer cells are 8-byte little-endian; all structured records
// are canonical JSON.

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Store is the sole owner of all persisted chain state. It is shared
// read/write across the engine and read-only across API collaborators,
// guarded by a single RWMutex per spec.md §5.
type Store struct {
	mu  sync.RWMutex
	db  *leveldb.DB
	log *logrus.Entry
}

// OpenStore opens (creating if absent) the ordered KV store at dir.
func OpenStore(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dir, err)
	}
	return &Store{db: db, log: logrus.WithField("component", "store")}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

//---------------------------------------------------------------------
// Low-level helpers
//---------------------------------------------------------------------

func (s *Store) get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) put(key string, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put([]byte(key), val, nil); err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) putBatch(kv map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := new(leveldb.Batch)
	for k, v := range kv {
		batch.Put([]byte(k), v)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: batch write: %w", err)
	}
	return nil
}

func (s *Store) iteratePrefix(prefix string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	out := make(map[string][]byte)
	for it.Next() {
		k := string(it.Key())
		v := append([]byte(nil), it.Value()...)
		out[k] = v
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("store: iterate %s: %w", prefix, err)
	}
	return out, nil
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (s *Store) getUint64(key string) (uint64, error) {
	v, ok, err := s.get(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return decodeUint64(v), nil
}

func (s *Store) setUint64(key string, v uint64) error {
	return s.put(key, encodeUint64(v))
}

func (s *Store) getJSON(key string, out any) (bool, error) {
	v, ok, err := s.get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(v, out); err != nil {
		return false, fmt.Errorf("store: unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) putJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", key, err)
	}
	return s.put(key, b)
}

//---------------------------------------------------------------------
// Key namespaces
//---------------------------------------------------------------------

func balanceKey(addr string) string       { return "balance:" + addr }
func nonceKey(addr string) string         { return "nonce:" + addr }
func blockKey(height uint64) string       { return fmt.Sprintf("block:%020d", height) }
func blockHashKey(hash string) string     { return "block_hash:" + hash }
func txKey(hash string) string            { return "tx:" + hash }
func txByBlockKey(h uint64, i int) string { return fmt.Sprintf("tx_by_block:%020d:%08d", h, i) }
func txByAddrKey(addr, hash string) string { return "tx_by_addr:" + addr + ":" + hash }
func txBlockIndexKey(hash string) string  { return "tx_block:" + hash }
func tokenKey(addr string) string         { return "token:" + addr }
func tokenBalanceKey(contract, holder string) string {
	return "token_balance:" + contract + ":" + holder
}
func moshKey(addr string) string { return "mosh:" + addr }
func moshByCreatorKey(creator, addr string) string {
	return "mosh_by_creator:" + creator + ":" + addr
}
func moshVarKey(contract, v string) string { return "mosh_var:" + contract + ":" + v }
func moshMapKey(contract, mapping, key string) string {
	return "mosh_map:" + contract + ":" + mapping + ":" + key
}
func moshMapPrefix(contract, mapping string) string {
	return "mosh_map:" + contract + ":" + mapping + ":"
}
func faucetKey(addr string) string { return "faucet:" + addr }

const (
	metaHeight      = "meta:height"
	metaTotalSupply = "meta:total_supply"
	metaKeypair     = "meta:keypair"
)

//---------------------------------------------------------------------
// Balances, nonces, height, total supply
//---------------------------------------------------------------------

func (s *Store) GetBalance(addr string) (uint64, error) { return s.getUint64(balanceKey(addr)) }
func (s *Store) SetBalance(addr string, v uint64) error { return s.setUint64(balanceKey(addr), v) }

func (s *Store) GetNonce(addr string) (uint64, error) { return s.getUint64(nonceKey(addr)) }
func (s *Store) SetNonce(addr string, v uint64) error { return s.setUint64(nonceKey(addr), v) }

func (s *Store) GetHeight() (uint64, error) { return s.getUint64(metaHeight) }
func (s *Store) SetHeight(v uint64) error   { return s.setUint64(metaHeight, v) }

func (s *Store) GetTotalSupply() (uint64, error) { return s.getUint64(metaTotalSupply) }
func (s *Store) AddTotalSupply(delta uint64) error {
	cur, err := s.GetTotalSupply()
	if err != nil {
		return err
	}
	return s.setUint64(metaTotalSupply, cur+delta)
}

//---------------------------------------------------------------------
// Keypair persistence
//---------------------------------------------------------------------

// GetKeypairSeed reads the node's persisted 32-byte seed, if any.
func (s *Store) GetKeypairSeed() ([]byte, bool, error) { return s.get(metaKeypair) }

// SetKeypairSeed persists the node's 32-byte seed. The caller is
// responsible for ensuring the store directory itself carries restrictive
// filesystem permissions, since the seed lives inside the LSM's sstables.
func (s *Store) SetKeypairSeed(seed []byte) error { return s.put(metaKeypair, seed) }

//---------------------------------------------------------------------
// Blocks & transactions
//---------------------------------------------------------------------

// SaveBlock persists a block and its per-height/per-hash/per-tx indices in
// one batch, so a crash never leaves a block partially indexed.
func (s *Store) SaveBlock(b *Block) error {
	blob, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("store: marshal block: %w", err)
	}
	kv := map[string][]byte{
		blockKey(b.Height):      blob,
		blockHashKey(b.Hash):    encodeUint64(b.Height),
	}
	for i, tx := range b.Transactions {
		txBlob, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("store: marshal tx %s: %w", tx.Hash, err)
		}
		kv[txKey(tx.Hash)] = txBlob
		kv[txByBlockKey(b.Height, i)] = []byte(tx.Hash)
	}
	if err := s.putBatch(kv); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"height": b.Height, "txs": len(b.Transactions)}).Info("block saved")
	return nil
}

// GetBlockByHeight loads the block at the given height, if present.
func (s *Store) GetBlockByHeight(height uint64) (*Block, bool, error) {
	var b Block
	ok, err := s.getJSON(blockKey(height), &b)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &b, true, nil
}

// GetBlockByHash resolves a block hash to its height and loads the block.
func (s *Store) GetBlockByHash(hash string) (*Block, bool, error) {
	v, ok, err := s.get(blockHashKey(hash))
	if err != nil || !ok {
		return nil, ok, err
	}
	return s.GetBlockByHeight(decodeUint64(v))
}

// GetTransaction loads a transaction by hash.
func (s *Store) GetTransaction(hash string) (*Transaction, bool, error) {
	var tx Transaction
	ok, err := s.getJSON(txKey(hash), &tx)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &tx, true, nil
}

// GetTransactionBlockHeight returns the height of the block containing hash.
func (s *Store) GetTransactionBlockHeight(hash string) (uint64, bool, error) {
	v, ok, err := s.get(txBlockIndexKey(hash))
	if err != nil || !ok {
		return 0, ok, err
	}
	return decodeUint64(v), true, nil
}

// IndexTransaction writes the sender/recipient/block indices for an
// already-persisted transaction. Token and contract transactions are also
// indexed under the token/contract address (and, for transfer_token, under
// the recipient of that token) so a holder's or a contract's history is a
// single prefix scan.
func (s *Store) IndexTransaction(tx *Transaction, height uint64) error {
	kv := map[string][]byte{
		txByAddrKey(tx.From, tx.Hash): []byte{1},
		txBlockIndexKey(tx.Hash):      encodeUint64(height),
	}
	if tx.To != "" {
		kv[txByAddrKey(tx.To, tx.Hash)] = []byte{1}
	}
	switch tx.Kind {
	case KindCreateToken, KindDeployContract:
		if tx.To != "" {
			kv[txByAddrKey(tx.To, tx.Hash)] = []byte{1}
		}
	case KindTransferToken:
		var d TransferTokenData
		if err := json.Unmarshal(tx.Data, &d); err == nil && d.Contract != "" {
			kv[txByAddrKey(d.Contract, tx.Hash)] = []byte{1}
		}
		if tx.To != "" {
			kv[txByAddrKey(tx.To, tx.Hash)] = []byte{1}
		}
	case KindCallContract:
		if tx.To != "" {
			kv[txByAddrKey(tx.To, tx.Hash)] = []byte{1}
		}
	}
	return s.putBatch(kv)
}

// GetTransactionsByAddress returns up to limit transactions touching addr,
// newest first.
func (s *Store) GetTransactionsByAddress(addr string, limit int) ([]*Transaction, error) {
	entries, err := s.iteratePrefix("tx_by_addr:" + addr + ":")
	if err != nil {
		return nil, err
	}
	txs := make([]*Transaction, 0, len(entries))
	for k := range entries {
		hash := k[len("tx_by_addr:"+addr+":"):]
		tx, ok, err := s.GetTransaction(hash)
		if err != nil {
			return nil, err
		}
		if ok {
			txs = append(txs, tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].Timestamp > txs[j].Timestamp })
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

//---------------------------------------------------------------------
// Tokens (MVM-20)
//---------------------------------------------------------------------

func (s *Store) SaveToken(t *Token) error { return s.putJSON(tokenKey(t.Address), t) }

func (s *Store) GetToken(addr string) (*Token, bool, error) {
	var t Token
	ok, err := s.getJSON(tokenKey(addr), &t)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &t, true, nil
}

func (s *Store) GetAllTokens() ([]*Token, error) {
	entries, err := s.iteratePrefix("token:")
	if err != nil {
		return nil, err
	}
	out := make([]*Token, 0, len(entries))
	for _, v := range entries {
		var t Token
		if err := json.Unmarshal(v, &t); err != nil {
			return nil, fmt.Errorf("store: unmarshal token: %w", err)
		}
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) GetTokenBalance(contract, holder string) (uint64, error) {
	return s.getUint64(tokenBalanceKey(contract, holder))
}

func (s *Store) SetTokenBalance(contract, holder string, v uint64) error {
	return s.setUint64(tokenBalanceKey(contract, holder), v)
}

// HolderBalance is one row of a token holder-balance scan.
type HolderBalance struct {
	Holder  string `json:"holder"`
	Balance uint64 `json:"balance"`
}

// GetTokenHolders returns all positive-balance holders of contract, sorted
// descending by balance.
func (s *Store) GetTokenHolders(contract string) ([]HolderBalance, error) {
	prefix := "token_balance:" + contract + ":"
	entries, err := s.iteratePrefix(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]HolderBalance, 0, len(entries))
	for k, v := range entries {
		bal := decodeUint64(v)
		if bal == 0 {
			continue
		}
		out = append(out, HolderBalance{Holder: k[len(prefix):], Balance: bal})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Balance > out[j].Balance })
	return out, nil
}

//---------------------------------------------------------------------
// Declarative contracts (MVM)
//---------------------------------------------------------------------

func (s *Store) SaveContract(c *Contract) error {
	kv := map[string][]byte{}
	blob, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: marshal contract: %w", err)
	}
	kv[moshKey(c.Address)] = blob
	kv[moshByCreatorKey(c.Creator, c.Address)] = []byte{1}
	return s.putBatch(kv)
}

func (s *Store) GetContract(addr string) (*Contract, bool, error) {
	var c Contract
	ok, err := s.getJSON(moshKey(addr), &c)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &c, true, nil
}

func (s *Store) GetAllContracts() ([]*Contract, error) {
	entries, err := s.iteratePrefix(moshKey(contractAddrPrefix))
	if err != nil {
		return nil, err
	}
	out := make([]*Contract, 0, len(entries))
	for _, v := range entries {
		var c Contract
		if err := json.Unmarshal(v, &c); err != nil {
			return nil, fmt.Errorf("store: unmarshal contract: %w", err)
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) GetContractsByCreator(creator string) ([]*Contract, error) {
	entries, err := s.iteratePrefix("mosh_by_creator:" + creator + ":")
	if err != nil {
		return nil, err
	}
	prefix := "mosh_by_creator:" + creator + ":"
	out := make([]*Contract, 0, len(entries))
	for k := range entries {
		addr := k[len(prefix):]
		c, ok, err := s.GetContract(addr)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (s *Store) GetVar(contract, name string) (string, bool, error) {
	v, ok, err := s.get(moshVarKey(contract, name))
	if err != nil || !ok {
		return "", ok, err
	}
	return string(v), true, nil
}

func (s *Store) SetVar(contract, name, value string) error {
	return s.put(moshVarKey(contract, name), []byte(value))
}

func (s *Store) GetMapValue(contract, mapping, key string) (string, bool, error) {
	v, ok, err := s.get(moshMapKey(contract, mapping, key))
	if err != nil || !ok {
		return "", ok, err
	}
	return string(v), true, nil
}

func (s *Store) SetMapValue(contract, mapping, key, value string) error {
	return s.put(moshMapKey(contract, mapping, key), []byte(value))
}

// IterateMapping returns every key/value pair currently set in a contract
// mapping. Absent keys are implicitly the value type's zero value and are
// never materialized here.
func (s *Store) IterateMapping(contract, mapping string) (map[string]string, error) {
	prefix := moshMapPrefix(contract, mapping)
	entries, err := s.iteratePrefix(prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for k, v := range entries {
		out[k[len(prefix):]] = string(v)
	}
	return out, nil
}

//---------------------------------------------------------------------
// Faucet (collaborator-owned namespace; core only provides accessors)
//---------------------------------------------------------------------

func (s *Store) GetFaucetClaim(addr string) (int64, bool, error) {
	v, ok, err := s.get(faucetKey(addr))
	if err != nil || !ok {
		return 0, ok, err
	}
	return int64(decodeUint64(v)), true, nil
}

func (s *Store) SetFaucetClaim(addr string, epochSeconds int64) error {
	return s.put(faucetKey(addr), encodeUint64(uint64(epochSeconds)))
}
