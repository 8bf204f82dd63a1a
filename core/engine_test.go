package core

import (
	"encoding/hex"
	"encoding/json"
	"testing"
)

// newTestEngine wires a fresh store/mempool/mvm/tokens/engine over a
// temporary on-disk goleveldb directory, with a funded master account.
func newTestEngine(t *testing.T, master string, masterBalance uint64) (*Engine, *Store) {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pool := NewMempool()
	tokens := NewTokenLedger(store)
	mvm := NewMVM(store, tokens)
	engine := NewEngine(store, pool, mvm, tokens, EngineConfig{
		ChainID:          "test",
		GasLimit:         5_000_000,
		MaxTxsPerBlock:   100,
		BlockReward:      1_000,
		ValidatorPercent: 100,
		ValidatorAddress: "mvm1validator",
		MasterAddress:    master,
		MasterBalance:    masterBalance,
	})
	if err := engine.Genesis(1_700_000_000); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return engine, store
}

// signedTransfer builds and signs a well-formed transfer transaction from
// kp at the given nonce.
func signedTransfer(t *testing.T, kp *Keypair, to string, value, nonce, gasPrice uint64) *Transaction {
	t.Helper()
	msg := HashTxData(string(KindTransfer), kp.Address, to, value, nonce, nil)
	sig := kp.Sign(msg)
	return &Transaction{
		Hash:      hex.EncodeToString(msg),
		Kind:      KindTransfer,
		From:      kp.Address,
		To:        to,
		Value:     value,
		GasPrice:  gasPrice,
		GasLimit:  1_000_000,
		Nonce:     nonce,
		Signature: hex.EncodeToString(sig),
		PublicKey: hex.EncodeToString(kp.Public),
	}
}

func TestEngineGenesisCreditsMaster(t *testing.T) {
	kp, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, store := newTestEngine(t, kp.Address, 1_000_000)

	bal, err := store.GetBalance(kp.Address)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if bal != 1_000_000 {
		t.Fatalf("expected master balance 1000000, got %d", bal)
	}
	if _, ok, err := store.GetBlockByHeight(0); err != nil || !ok {
		t.Fatalf("expected genesis block at height 0, ok=%v err=%v", ok, err)
	}
}

func TestEngineTransferEndToEnd(t *testing.T) {
	kp, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	engine, store := newTestEngine(t, kp.Address, 1_000_000)

	recipient := deriveSyntheticAddress(tokenAddrPrefix, []byte("recipient")) // any well-formed string works as a plain bucket key
	tx := signedTransfer(t, kp, recipient, 1_000, 0, 1)
	if res := engine.Submit(tx); res != AddAccepted {
		t.Fatalf("expected AddAccepted, got %v", res)
	}

	block, err := engine.ProduceBlock(1_700_000_010)
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if block == nil {
		t.Fatalf("expected a block to be produced")
	}
	if block.Height != 1 {
		t.Fatalf("expected height 1, got %d", block.Height)
	}
	if len(block.Transactions) != 1 || block.Transactions[0].Status != StatusSuccess {
		t.Fatalf("expected 1 successful tx, got %+v", block.Transactions)
	}

	recvBal, err := store.GetBalance(recipient)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if recvBal != 1_000 {
		t.Fatalf("expected recipient balance 1000, got %d", recvBal)
	}

	senderBal, err := store.GetBalance(kp.Address)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	expectedFee := BaseGasCost(KindTransfer) * 1
	if senderBal != 1_000_000-1_000-expectedFee {
		t.Fatalf("unexpected sender balance: %d", senderBal)
	}

	nonce, err := store.GetNonce(kp.Address)
	if err != nil {
		t.Fatalf("get nonce: %v", err)
	}
	if nonce != 1 {
		t.Fatalf("expected nonce to advance to 1, got %d", nonce)
	}
}

func TestEngineRejectsBadSignature(t *testing.T) {
	kp, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	engine, _ := newTestEngine(t, kp.Address, 1_000_000)

	tx := signedTransfer(t, kp, "mvm1recipient", 1_000, 0, 1)
	tx.Signature = hex.EncodeToString([]byte("not-a-real-signature-not-a-real-signature"))
	engine.Submit(tx)

	block, err := engine.ProduceBlock(1_700_000_010)
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if block == nil || block.Transactions[0].Status != StatusFailed {
		t.Fatalf("expected failed tx due to bad signature")
	}
}

func TestEngineCreateAndTransferToken(t *testing.T) {
	kp, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	holder, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	engine, store := newTestEngine(t, kp.Address, 1_000_000)

	createData, _ := json.Marshal(CreateTokenData{Name: "Test Token", Symbol: "TST", TotalSupply: 1_000_000})
	msg := HashTxData(string(KindCreateToken), kp.Address, "", 0, 0, createData)
	createTx := &Transaction{
		Hash: hex.EncodeToString(msg), Kind: KindCreateToken, From: kp.Address,
		GasPrice: 1, GasLimit: 1_000_000, Nonce: 0, Data: createData,
		Signature: hex.EncodeToString(kp.Sign(msg)), PublicKey: hex.EncodeToString(kp.Public),
	}
	engine.Submit(createTx)
	block, err := engine.ProduceBlock(1_700_000_020)
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if block.Transactions[0].Status != StatusSuccess {
		t.Fatalf("expected token creation to succeed, got %q", block.Transactions[0].Error)
	}
	tokenAddr := block.Transactions[0].To
	if !IsTokenAddress(tokenAddr) {
		t.Fatalf("expected a synthesized token address, got %s", tokenAddr)
	}

	transferData, _ := json.Marshal(TransferTokenData{Contract: tokenAddr, Amount: 5_000})
	msg2 := HashTxData(string(KindTransferToken), kp.Address, holder.Address, 0, 1, transferData)
	transferTx := &Transaction{
		Hash: hex.EncodeToString(msg2), Kind: KindTransferToken, From: kp.Address, To: holder.Address,
		GasPrice: 1, GasLimit: 1_000_000, Nonce: 1, Data: transferData,
		Signature: hex.EncodeToString(kp.Sign(msg2)), PublicKey: hex.EncodeToString(kp.Public),
	}
	engine.Submit(transferTx)
	block2, err := engine.ProduceBlock(1_700_000_030)
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if block2.Transactions[0].Status != StatusSuccess {
		t.Fatalf("expected token transfer to succeed, got %q", block2.Transactions[0].Error)
	}

	bal, err := store.GetTokenBalance(tokenAddr, holder.Address)
	if err != nil {
		t.Fatalf("get token balance: %v", err)
	}
	if bal != 5_000*DisplayScale {
		t.Fatalf("expected holder balance 5000*DisplayScale, got %d", bal)
	}
}

func TestEngineDeployAndCallContract(t *testing.T) {
	kp, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	engine, store := newTestEngine(t, kp.Address, 1_000_000)

	deployData, _ := json.Marshal(DeployContractData{
		Name: "Counter",
		Variables: []VariableDef{
			{Name: "count", Type: VarUint, Default: "0"},
		},
		Functions: []FunctionDef{
			{
				Name: "increment",
				Ops: []Operation{
					{Kind: OpAdd, Var: "count", Value: "1"},
					{Kind: OpReturn, Value: "count"},
				},
			},
		},
	})
	msg := HashTxData(string(KindDeployContract), kp.Address, "", 0, 0, deployData)
	deployTx := &Transaction{
		Hash: hex.EncodeToString(msg), Kind: KindDeployContract, From: kp.Address,
		GasPrice: 1, GasLimit: 1_000_000, Nonce: 0, Data: deployData,
		Signature: hex.EncodeToString(kp.Sign(msg)), PublicKey: hex.EncodeToString(kp.Public),
	}
	engine.Submit(deployTx)
	block, err := engine.ProduceBlock(1_700_000_040)
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if block.Transactions[0].Status != StatusSuccess {
		t.Fatalf("expected deploy to succeed, got %q", block.Transactions[0].Error)
	}
	contractAddr := block.Transactions[0].To
	if !IsContractAddress(contractAddr) {
		t.Fatalf("expected a synthesized contract address, got %s", contractAddr)
	}

	callData, _ := json.Marshal(CallContractData{Method: "increment"})
	msg2 := HashTxData(string(KindCallContract), kp.Address, contractAddr, 0, 1, callData)
	callTx := &Transaction{
		Hash: hex.EncodeToString(msg2), Kind: KindCallContract, From: kp.Address, To: contractAddr,
		GasPrice: 1, GasLimit: 1_000_000, Nonce: 1, Data: callData,
		Signature: hex.EncodeToString(kp.Sign(msg2)), PublicKey: hex.EncodeToString(kp.Public),
	}
	engine.Submit(callTx)
	block2, err := engine.ProduceBlock(1_700_000_050)
	if err != nil {
		t.Fatalf("produce block: %v", err)
	}
	if block2.Transactions[0].Status != StatusSuccess {
		t.Fatalf("expected call to succeed, got %q", block2.Transactions[0].Error)
	}

	val, ok, err := store.GetVar(contractAddr, "count")
	if err != nil {
		t.Fatalf("get var: %v", err)
	}
	if !ok || val != "1" {
		t.Fatalf("expected count == 1, got %q (ok=%v)", val, ok)
	}
}
