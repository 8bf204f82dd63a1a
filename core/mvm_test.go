package core

import "testing"

func newTestMVM(t *testing.T) (*MVM, *Store) {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	tokens := NewTokenLedger(store)
	return NewMVM(store, tokens), store
}

func TestMVMDeployRejectsDuplicateNames(t *testing.T) {
	mvm, _ := newTestMVM(t)
	_, err := mvm.Deploy("creator", "Dup", "",
		[]VariableDef{{Name: "x", Type: VarUint}},
		[]MappingDef{{Name: "x", KeyType: VarAddress, ValueType: VarUint}},
		nil, 0, 1)
	if err == nil {
		t.Fatalf("expected duplicate-name deploy to fail")
	}
}

func TestMVMDeployRejectsReservedName(t *testing.T) {
	mvm, _ := newTestMVM(t)
	_, err := mvm.Deploy("creator", "Reserved", "",
		[]VariableDef{{Name: "owner", Type: VarUint}}, nil, nil, 0, 1)
	if err == nil {
		t.Fatalf("expected reserved-name deploy to fail")
	}
}

func TestMVMDeployWritesDefaults(t *testing.T) {
	mvm, store := newTestMVM(t)
	addr, err := mvm.Deploy("creator", "Defaults", "",
		[]VariableDef{{Name: "count", Type: VarUint}, {Name: "label", Type: VarString, Default: "hi"}},
		nil, nil, 0, 1)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	v, ok, err := store.GetVar(addr, "count")
	if err != nil || !ok || v != "0" {
		t.Fatalf("expected count default 0, got %q ok=%v err=%v", v, ok, err)
	}
	v, ok, err = store.GetVar(addr, "label")
	if err != nil || !ok || v != "hi" {
		t.Fatalf("expected label default hi, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestMVMAutoGetterAndSetter(t *testing.T) {
	mvm, _ := newTestMVM(t)
	addr, err := mvm.Deploy("owner1", "GetSet", "",
		[]VariableDef{{Name: "count", Type: VarUint, Default: "5"}}, nil, nil, 0, 1)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	res, err := mvm.Call("anyone", addr, "get_count", nil, 0, 0, 0)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !res.Success || res.Data != "5" {
		t.Fatalf("expected get_count == 5, got %+v", res)
	}

	if res, err := mvm.Call("not-owner", addr, "set_count", []string{"9"}, 0, 0, 0); err != nil || res.Success {
		t.Fatalf("expected non-owner set_count to fail, got %+v err=%v", res, err)
	}

	res, err = mvm.Call("owner1", addr, "set_count", []string{"9"}, 0, 0, 0)
	if err != nil || !res.Success {
		t.Fatalf("expected owner set_count to succeed, got %+v err=%v", res, err)
	}
	res, err = mvm.Call("anyone", addr, "get_count", nil, 0, 0, 0)
	if err != nil || res.Data != "9" {
		t.Fatalf("expected get_count == 9 after set, got %+v", res)
	}
}

func TestMVMRequireFailureStopsFunction(t *testing.T) {
	mvm, store := newTestMVM(t)
	addr, err := mvm.Deploy("owner1", "Guarded", "",
		[]VariableDef{{Name: "count", Type: VarUint, Default: "0"}}, nil,
		[]FunctionDef{{
			Name: "guardedIncrement",
			Ops: []Operation{
				{Kind: OpRequire, Left: "msg.sender", Cmp: "==", Right: "contract.owner", Msg: "only owner may increment"},
				{Kind: OpAdd, Var: "count", Value: "1"},
			},
		}}, 0, 1)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	res, err := mvm.Call("intruder", addr, "guardedIncrement", nil, 0, 0, 0)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Success || res.Error != "only owner may increment" {
		t.Fatalf("expected require failure, got %+v", res)
	}
	v, _, _ := store.GetVar(addr, "count")
	if v != "0" {
		t.Fatalf("expected count unchanged at 0, got %s", v)
	}

	res, err = mvm.Call("owner1", addr, "guardedIncrement", nil, 0, 0, 0)
	if err != nil || !res.Success {
		t.Fatalf("expected owner call to succeed, got %+v err=%v", res, err)
	}
	v, _, _ = store.GetVar(addr, "count")
	if v != "1" {
		t.Fatalf("expected count == 1, got %s", v)
	}
}

func TestMVMViewCallRejectsMutation(t *testing.T) {
	mvm, _ := newTestMVM(t)
	addr, err := mvm.Deploy("owner1", "Viewer", "",
		[]VariableDef{{Name: "count", Type: VarUint, Default: "1"}}, nil,
		[]FunctionDef{
			{Name: "peek", View: true, Ops: []Operation{{Kind: OpReturn, Value: "count"}}},
			{Name: "sneaky", View: true, Ops: []Operation{{Kind: OpSet, Var: "count", Value: "0"}}},
		}, 0, 1)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	res, err := mvm.ViewCall(addr, "peek", nil)
	if err != nil || !res.Success || res.Data != "1" {
		t.Fatalf("expected peek to return 1, got %+v err=%v", res, err)
	}
	if res.GasUsed != 0 {
		t.Fatalf("expected view calls to report zero gas, got %d", res.GasUsed)
	}

	res, err = mvm.ViewCall(addr, "sneaky", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res.Success {
		t.Fatalf("expected a state-mutating op to be rejected in a view call")
	}

	res, err = mvm.Call("owner1", addr, "peek", nil, 0, 0, 0)
	if err != nil || res.Success {
		t.Fatalf("expected a view function to be unreachable through Call, got %+v", res)
	}
}

func TestMVMMappingSetAndGet(t *testing.T) {
	mvm, _ := newTestMVM(t)
	addr, err := mvm.Deploy("owner1", "Balances", "", nil,
		[]MappingDef{{Name: "balances", KeyType: VarAddress, ValueType: VarUint}}, nil, 0, 1)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}

	if res, err := mvm.Call("owner1", addr, "set_balances", []string{"alice", "42"}, 0, 0, 0); err != nil || !res.Success {
		t.Fatalf("set_balances: %+v err=%v", res, err)
	}
	res, err := mvm.Call("anyone", addr, "get_balances", []string{"alice"}, 0, 0, 0)
	if err != nil {
		t.Fatalf("get_balances: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected get_balances to succeed, got %+v", res)
	}
}
