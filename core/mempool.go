package core

// Mempool (spec.md §4.3). Grounded on the teacher's txpool_addtx.go /
// txpool_snapshot.go pair (a lock-guarded map plus a drain-to-slice
// snapshot), generalized here from the teacher's single lookup map into
// the spec's two-index design: by_hash for dedup, by_sender mapping each
// sender's nonces to hashes for nonce-conflict checks. Neither index is
// kept in order; BySender and DrainForBlock sort when they read.

import (
	"sort"
	"sync"
)

// AddResult is the outcome of Mempool.Add.
type AddResult int

const (
	AddAccepted AddResult = iota
	AddDuplicate
	AddNoncePending
)

// Mempool holds accepted-but-unincluded transactions, indexed by hash for
// dedup and by (sender, nonce) for nonce-conflict lookups.
type Mempool struct {
	mu        sync.Mutex
	byHash    map[string]*Transaction
	bySender  map[string]map[uint64]string // sender -> nonce -> hash
}

// NewMempool constructs an empty mempool.
func NewMempool() *Mempool {
	return &Mempool{
		byHash:   make(map[string]*Transaction),
		bySender: make(map[string]map[uint64]string),
	}
}

// Add inserts tx. A repeated hash is reported as AddDuplicate, not an
// error — the caller already has the transaction pending. A second
// transaction at the same (sender, nonce) is rejected with
// AddNoncePending rather than replacing the pending one: the producer
// tolerates exactly one pending tx per (sender, nonce) and orders strictly
// by nonce.
func (m *Mempool) Add(tx *Transaction) AddResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byHash[tx.Hash]; exists {
		return AddDuplicate
	}
	senderNonces, ok := m.bySender[tx.From]
	if !ok {
		senderNonces = make(map[uint64]string)
		m.bySender[tx.From] = senderNonces
	}
	if _, pending := senderNonces[tx.Nonce]; pending {
		return AddNoncePending
	}
	m.byHash[tx.Hash] = tx
	senderNonces[tx.Nonce] = tx.Hash
	return AddAccepted
}

// Remove evicts tx (by hash) from both indices.
func (m *Mempool) Remove(hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(hash)
}

func (m *Mempool) removeLocked(hash string) {
	tx, ok := m.byHash[hash]
	if !ok {
		return
	}
	delete(m.byHash, hash)
	if senderNonces, ok := m.bySender[tx.From]; ok {
		delete(senderNonces, tx.Nonce)
		if len(senderNonces) == 0 {
			delete(m.bySender, tx.From)
		}
	}
}

// Contains reports whether hash is currently pending.
func (m *Mempool) Contains(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byHash[hash]
	return ok
}

// Count returns the number of pending transactions.
func (m *Mempool) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

// BySender returns the pending transactions for sender, ordered by nonce.
func (m *Mempool) BySender(sender string) []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	nonces, ok := m.bySender[sender]
	if !ok {
		return nil
	}
	ordered := make([]uint64, 0, len(nonces))
	for n := range nonces {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	out := make([]*Transaction, 0, len(ordered))
	for _, n := range ordered {
		out = append(out, m.byHash[nonces[n]])
	}
	return out
}

// PendingNonce returns the next nonce a sender's client should use:
// max(confirmedNonce, highest pending nonce + 1).
func (m *Mempool) PendingNonce(sender string, confirmedNonce uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	nonces, ok := m.bySender[sender]
	if !ok || len(nonces) == 0 {
		return confirmedNonce
	}
	var maxPending uint64
	first := true
	for n := range nonces {
		if first || n > maxPending {
			maxPending = n
			first = false
		}
	}
	next := maxPending + 1
	if next > confirmedNonce {
		return next
	}
	return confirmedNonce
}

// DrainForBlock removes and returns up to max pending transactions, ordered
// by (sender ascending, nonce ascending) — the deterministic order a
// single-producer block is built from.
func (m *Mempool) DrainForBlock(max int) []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*Transaction, 0, len(m.byHash))
	for _, tx := range m.byHash {
		all = append(all, tx)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].From != all[j].From {
			return all[i].From < all[j].From
		}
		return all[i].Nonce < all[j].Nonce
	})
	if max > 0 && len(all) > max {
		all = all[:max]
	}
	for _, tx := range all {
		m.removeLocked(tx.Hash)
	}
	return all
}
