package core

import "testing"

func mkTx(from string, nonce uint64, hash string) *Transaction {
	return &Transaction{Hash: hash, Kind: KindTransfer, From: from, Nonce: nonce}
}

func TestMempoolAddDedup(t *testing.T) {
	m := NewMempool()
	tx := mkTx("alice", 0, "h1")
	if res := m.Add(tx); res != AddAccepted {
		t.Fatalf("expected AddAccepted, got %v", res)
	}
	if res := m.Add(tx); res != AddDuplicate {
		t.Fatalf("expected AddDuplicate, got %v", res)
	}
	if m.Count() != 1 {
		t.Fatalf("expected 1 pending tx, got %d", m.Count())
	}
}

func TestMempoolNoncePending(t *testing.T) {
	m := NewMempool()
	m.Add(mkTx("alice", 5, "h1"))
	if res := m.Add(mkTx("alice", 5, "h2")); res != AddNoncePending {
		t.Fatalf("expected AddNoncePending, got %v", res)
	}
}

func TestMempoolBySenderOrdering(t *testing.T) {
	m := NewMempool()
	m.Add(mkTx("alice", 2, "h3"))
	m.Add(mkTx("alice", 0, "h1"))
	m.Add(mkTx("alice", 1, "h2"))

	txs := m.BySender("alice")
	if len(txs) != 3 {
		t.Fatalf("expected 3 txs, got %d", len(txs))
	}
	for i, tx := range txs {
		if tx.Nonce != uint64(i) {
			t.Fatalf("expected nonce order 0,1,2, got %d at position %d", tx.Nonce, i)
		}
	}
}

func TestMempoolDrainForBlockRespectsMaxAndOrder(t *testing.T) {
	m := NewMempool()
	m.Add(mkTx("bob", 0, "b0"))
	m.Add(mkTx("alice", 1, "a1"))
	m.Add(mkTx("alice", 0, "a0"))

	drained := m.DrainForBlock(2)
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained txs, got %d", len(drained))
	}
	if drained[0].From != "alice" || drained[0].Nonce != 0 {
		t.Fatalf("expected alice nonce 0 first, got %+v", drained[0])
	}
	if m.Count() != 1 {
		t.Fatalf("expected 1 tx remaining, got %d", m.Count())
	}
}

func TestMempoolPendingNonce(t *testing.T) {
	m := NewMempool()
	if n := m.PendingNonce("alice", 3); n != 3 {
		t.Fatalf("expected confirmed nonce 3 with nothing pending, got %d", n)
	}
	m.Add(mkTx("alice", 3, "a3"))
	m.Add(mkTx("alice", 4, "a4"))
	if n := m.PendingNonce("alice", 3); n != 5 {
		t.Fatalf("expected next nonce 5, got %d", n)
	}
}

func TestMempoolRemove(t *testing.T) {
	m := NewMempool()
	m.Add(mkTx("alice", 0, "h1"))
	m.Remove("h1")
	if m.Contains("h1") {
		t.Fatalf("expected h1 to be removed")
	}
	if m.Count() != 0 {
		t.Fatalf("expected empty mempool after remove")
	}
}
