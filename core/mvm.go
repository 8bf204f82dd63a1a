package core

// MVM — the declarative contract virtual machine (spec.md §4.5). Grounded
// on the teacher's opcode_dispatcher.go (switch-dispatch over a closed op
// enum, gas charged per step before the step runs) and virtual_machine.go's
// VMContext (caller/origin/gas fields) — generalized from bytecode
// dispatch to dispatch over a structured Operation list, since spec.md
// explicitly rules out bytecode: MVM programs are "structured data", not a
// compiled instruction stream.

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MVM interprets deployed contracts against a Store.
type MVM struct {
	store  *Store
	tokens *TokenLedger
}

// NewMVM constructs a contract VM bound to store and the token ledger it
// uses for bound-token transfers.
func NewMVM(store *Store, tokens *TokenLedger) *MVM {
	return &MVM{store: store, tokens: tokens}
}

//---------------------------------------------------------------------
// Deploy
//---------------------------------------------------------------------

// Deploy validates and persists a new declarative contract, returning its
// synthesized address.
func (m *MVM) Deploy(creator, name string, token string, variables []VariableDef, mappings []MappingDef, functions []FunctionDef, nowUnix int64, nonceSeed int64) (string, error) {
	if err := validateSchema(name, variables, mappings, functions); err != nil {
		return "", err
	}
	if token != "" {
		if _, ok, err := m.store.GetToken(token); err != nil {
			return "", fmt.Errorf("mvm: check token: %w", err)
		} else if !ok {
			return "", errTokenNotFound(token)
		}
	}

	seed := fmt.Sprintf("%s|%s|%d", creator, name, nonceSeed)
	addr := deriveSyntheticAddress(contractAddrPrefix, []byte(seed))

	c := &Contract{
		Address:   addr,
		Name:      name,
		Creator:   creator,
		Owner:     creator,
		CreatedAt: nowUnix,
		Token:     token,
		Variables: variables,
		Mappings:  mappings,
		Functions: functions,
	}
	if err := m.store.SaveContract(c); err != nil {
		return "", fmt.Errorf("mvm: save contract: %w", err)
	}
	for _, v := range variables {
		def := v.Default
		if def == "" {
			def = v.Type.ZeroValue()
		}
		if err := m.store.SetVar(addr, v.Name, def); err != nil {
			return "", fmt.Errorf("mvm: set default for %s: %w", v.Name, err)
		}
	}
	return addr, nil
}

func validateSchema(name string, variables []VariableDef, mappings []MappingDef, functions []FunctionDef) error {
	if len(name) > maxNameLen {
		return errContract("contract name too long")
	}
	if len(variables) > maxContractVariables {
		return errContract("too many variables")
	}
	if len(mappings) > maxContractMappings {
		return errContract("too many mappings")
	}
	if len(functions) > maxContractFunctions {
		return errContract("too many functions")
	}
	seen := map[string]bool{}
	for _, v := range variables {
		if len(v.Name) > maxNameLen || len(v.Default) > maxStringLen {
			return errContract("variable name or default too long: " + v.Name)
		}
		if reservedFieldNames[v.Name] {
			return errContract("variable name is reserved: " + v.Name)
		}
		if seen[v.Name] {
			return errContract("duplicate variable/mapping name: " + v.Name)
		}
		seen[v.Name] = true
	}
	for _, mp := range mappings {
		if len(mp.Name) > maxNameLen {
			return errContract("mapping name too long: " + mp.Name)
		}
		if reservedFieldNames[mp.Name] {
			return errContract("mapping name is reserved: " + mp.Name)
		}
		if seen[mp.Name] {
			return errContract("duplicate variable/mapping name: " + mp.Name)
		}
		seen[mp.Name] = true
	}
	for _, fn := range functions {
		if len(fn.Name) > maxNameLen {
			return errContract("function name too long: " + fn.Name)
		}
		if len(fn.Ops) > maxOpsPerFunction {
			return errContract("too many ops in function: " + fn.Name)
		}
	}
	return nil
}

//---------------------------------------------------------------------
// Call dispatch
//---------------------------------------------------------------------

// execContext carries everything resolve() and the op interpreter need for
// one function invocation.
type execContext struct {
	contract       *Contract
	caller         string
	amount         uint64
	blockHeight    uint64
	blockTimestamp int64
	params         map[string]string
	locals         map[string]string
	viewOnly       bool
}

// Call dispatches a non-view contract invocation: auto-getter, auto-setter,
// or a user-defined function. View-modifier functions are rejected here —
// they are only reachable through ViewCall.
func (m *MVM) Call(caller, addr, method string, args []string, amount uint64, blockHeight uint64, blockTimestamp int64) (*CallResult, error) {
	c, ok, err := m.store.GetContract(addr)
	if err != nil {
		return nil, fmt.Errorf("mvm: load contract: %w", err)
	}
	if !ok {
		return &CallResult{Success: false, Error: "contract not found"}, nil
	}

	switch {
	case strings.HasPrefix(method, "get_"):
		name := strings.TrimPrefix(method, "get_")
		if findMapping(c, name) != nil {
			if len(args) < 1 {
				return &CallResult{Success: false, Error: "mapping getter requires a key argument"}, nil
			}
			return m.autoGetterWithKey(c, name, args[0])
		}
		return m.autoGetter(c, method)
	case strings.HasPrefix(method, "set_"):
		return m.autoSetter(c, caller, method, args)
	default:
		fn := findFunction(c, method)
		if fn == nil {
			return &CallResult{Success: false, Error: "unknown function: " + method}, nil
		}
		if fn.View {
			return &CallResult{Success: false, Error: "view functions must be invoked through the view path"}, nil
		}
		return m.callUserFunction(c, fn, caller, args, amount, blockHeight, blockTimestamp)
	}
}

// ViewCall evaluates a View-modifier function gas-free and without a
// signature. Only read-only operations are permitted; any state-mutating
// op encountered aborts the call with an error rather than applying it.
func (m *MVM) ViewCall(addr, method string, args []string) (*CallResult, error) {
	c, ok, err := m.store.GetContract(addr)
	if err != nil {
		return nil, fmt.Errorf("mvm: load contract: %w", err)
	}
	if !ok {
		return &CallResult{Success: false, Error: "contract not found"}, nil
	}
	fn := findFunction(c, method)
	if fn == nil {
		return &CallResult{Success: false, Error: "unknown function: " + method}, nil
	}
	if !fn.View {
		return &CallResult{Success: false, Error: "only view functions are callable through the view path"}, nil
	}
	ctx := &execContext{
		contract: c,
		params:   paramMap(fn.Params, args),
		locals:   map[string]string{},
		viewOnly: true,
	}
	res, _ := runOps(m, ctx, fn.Ops)
	res.GasUsed = 0
	return res, nil
}

func findFunction(c *Contract, name string) *FunctionDef {
	for i := range c.Functions {
		if c.Functions[i].Name == name {
			return &c.Functions[i]
		}
	}
	return nil
}

func paramMap(names, args []string) map[string]string {
	out := make(map[string]string, len(names))
	for i, n := range names {
		if i < len(args) {
			out[n] = args[i]
		}
	}
	return out
}

//---------------------------------------------------------------------
// Auto-getter / auto-setter
//---------------------------------------------------------------------

func (m *MVM) autoGetter(c *Contract, method string) (*CallResult, error) {
	gas := gasAutoGetter
	name := strings.TrimPrefix(method, "get_")
	switch name {
	case "owner":
		return &CallResult{Success: true, Data: c.Owner, GasUsed: gas}, nil
	case "creator":
		return &CallResult{Success: true, Data: c.Creator, GasUsed: gas}, nil
	case "token":
		return &CallResult{Success: true, Data: c.Token, GasUsed: gas}, nil
	case "address":
		return &CallResult{Success: true, Data: c.Address, GasUsed: gas}, nil
	}
	if v := findVariable(c, name); v != nil {
		val, ok, err := m.store.GetVar(c.Address, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			val = v.Type.ZeroValue()
		}
		return &CallResult{Success: true, Data: val, GasUsed: gas}, nil
	}
	if mp := findMapping(c, name); mp != nil {
		return &CallResult{Success: false, Error: "mapping getter requires a key argument", GasUsed: gas}, nil
	}
	return &CallResult{Success: false, Error: "unknown getter: " + method, GasUsed: gas}, nil
}

// autoGetterWithKey is the mapping variant of autoGetter, used when the
// caller supplies a key argument.
func (m *MVM) autoGetterWithKey(c *Contract, name string, key string) (*CallResult, error) {
	mp := findMapping(c, name)
	if mp == nil {
		return &CallResult{Success: false, Error: "unknown getter: get_" + name}, nil
	}
	val, ok, err := m.store.GetMapValue(c.Address, name, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		val = mp.ValueType.ZeroValue()
	}
	blob, _ := json.Marshal(map[string]string{"key": key, "value": val})
	return &CallResult{Success: true, Data: string(blob), GasUsed: gasAutoGetter}, nil
}

func (m *MVM) autoSetter(c *Contract, caller, method string, args []string) (*CallResult, error) {
	gas := gasAutoSetter
	if caller != c.Owner {
		return &CallResult{Success: false, Error: "Only owner can call this function", GasUsed: gas}, nil
	}
	name := strings.TrimPrefix(method, "set_")
	if name == "owner" {
		if len(args) < 1 {
			return &CallResult{Success: false, Error: "set_owner requires a new owner address", GasUsed: gas}, nil
		}
		c.Owner = args[0]
		if err := m.store.SaveContract(c); err != nil {
			return nil, fmt.Errorf("mvm: save contract: %w", err)
		}
		return &CallResult{Success: true, GasUsed: gas}, nil
	}
	if v := findVariable(c, name); v != nil {
		if len(args) < 1 {
			return &CallResult{Success: false, Error: "setter requires a value argument", GasUsed: gas}, nil
		}
		if err := m.store.SetVar(c.Address, name, args[0]); err != nil {
			return nil, err
		}
		return &CallResult{Success: true, GasUsed: gas}, nil
	}
	if mp := findMapping(c, name); mp != nil {
		if len(args) < 2 {
			return &CallResult{Success: false, Error: "mapping setter requires key and value arguments", GasUsed: gas}, nil
		}
		if err := m.store.SetMapValue(c.Address, name, args[0], args[1]); err != nil {
			return nil, err
		}
		return &CallResult{Success: true, GasUsed: gas}, nil
	}
	return &CallResult{Success: false, Error: "unknown setter: " + method, GasUsed: gas}, nil
}

func findVariable(c *Contract, name string) *VariableDef {
	for i := range c.Variables {
		if c.Variables[i].Name == name {
			return &c.Variables[i]
		}
	}
	return nil
}

func findMapping(c *Contract, name string) *MappingDef {
	for i := range c.Mappings {
		if c.Mappings[i].Name == name {
			return &c.Mappings[i]
		}
	}
	return nil
}

//---------------------------------------------------------------------
// User function dispatch
//---------------------------------------------------------------------

func (m *MVM) callUserFunction(c *Contract, fn *FunctionDef, caller string, args []string, amount uint64, blockHeight uint64, blockTimestamp int64) (*CallResult, error) {
	gas := gasUserFunction
	if fn.OnlyOwner && caller != c.Owner {
		return &CallResult{Success: false, Error: "Only owner can call this function", GasUsed: gas}, nil
	}
	if amount > 0 {
		if !fn.Payable {
			return &CallResult{Success: false, Error: "function is not payable", GasUsed: gas}, nil
		}
		if c.Token == "" {
			return &CallResult{Success: false, Error: "contract has no bound token", GasUsed: gas}, nil
		}
		if err := m.tokens.Transfer(c.Token, caller, c.Address, amount); err != nil {
			return &CallResult{Success: false, Error: err.Error(), GasUsed: gas}, nil
		}
	}
	ctx := &execContext{
		contract:       c,
		caller:         caller,
		amount:         amount,
		blockHeight:    blockHeight,
		blockTimestamp: blockTimestamp,
		params:         paramMap(fn.Params, args),
		locals:         map[string]string{},
	}
	res, stepGas := runOps(m, ctx, fn.Ops)
	res.GasUsed = gas + stepGas
	return res, nil
}

//---------------------------------------------------------------------
// Operation interpreter
//---------------------------------------------------------------------

// runOps executes an op list in order, returning the function's result and
// the gas consumed by the steps actually run. When ctx.viewOnly is set,
// any state-mutating op aborts execution instead of applying it.
func runOps(m *MVM, ctx *execContext, ops []Operation) (*CallResult, uint64) {
	var gas uint64
	var returned *string

	for _, op := range ops {
		gas += gasPerOp
		if ctx.viewOnly && isMutatingOp(op.Kind) {
			return &CallResult{Success: false, Error: "view function must not mutate state"}, gas
		}
		switch op.Kind {
		case OpSet:
			val := m.resolve(ctx, op.Value)
			if err := m.store.SetVar(ctx.contract.Address, op.Var, val); err != nil {
				return &CallResult{Success: false, Error: err.Error()}, gas
			}
		case OpAdd:
			cur := m.currentVar(ctx, op.Var)
			delta := parseU64(m.resolve(ctx, op.Value))
			if err := m.store.SetVar(ctx.contract.Address, op.Var, formatU64(cur+delta)); err != nil {
				return &CallResult{Success: false, Error: err.Error()}, gas
			}
		case OpSub:
			cur := m.currentVar(ctx, op.Var)
			delta := parseU64(m.resolve(ctx, op.Value))
			if err := m.store.SetVar(ctx.contract.Address, op.Var, formatU64(saturatingSub(cur, delta))); err != nil {
				return &CallResult{Success: false, Error: err.Error()}, gas
			}
		case OpMapSet:
			key := m.resolve(ctx, op.Key)
			val := m.resolve(ctx, op.Value)
			if err := m.store.SetMapValue(ctx.contract.Address, op.Map, key, val); err != nil {
				return &CallResult{Success: false, Error: err.Error()}, gas
			}
		case OpMapAdd, OpMapSub:
			key := m.resolve(ctx, op.Key)
			cur := parseU64(m.currentMap(ctx, op.Map, key))
			delta := parseU64(m.resolve(ctx, op.Value))
			var next uint64
			if op.Kind == OpMapAdd {
				next = cur + delta
			} else {
				next = saturatingSub(cur, delta)
			}
			if err := m.store.SetMapValue(ctx.contract.Address, op.Map, key, formatU64(next)); err != nil {
				return &CallResult{Success: false, Error: err.Error()}, gas
			}
		case OpRequire:
			ok, err := evalRequire(m, ctx, op)
			if err != nil {
				return &CallResult{Success: false, Error: err.Error()}, gas
			}
			if !ok {
				msg := op.Msg
				if msg == "" {
					msg = "require failed"
				}
				return &CallResult{Success: false, Error: msg}, gas
			}
		case OpTransfer:
			if ctx.contract.Token == "" {
				return &CallResult{Success: false, Error: "contract has no bound token"}, gas
			}
			to := m.resolve(ctx, op.To)
			amt := parseU64(m.resolve(ctx, op.Amount))
			if err := m.tokens.Transfer(ctx.contract.Token, ctx.contract.Address, to, amt); err != nil {
				return &CallResult{Success: false, Error: err.Error()}, gas
			}
		case OpReturn:
			v := m.resolve(ctx, op.Value)
			returned = &v
		case OpLet:
			ctx.locals[op.Var] = m.resolve(ctx, op.Value)
		default:
			return &CallResult{Success: false, Error: "unknown operation: " + string(op.Kind)}, gas
		}
	}

	if returned != nil {
		return &CallResult{Success: true, Data: *returned}, gas
	}
	return &CallResult{Success: true}, gas
}

func isMutatingOp(k OpKind) bool {
	switch k {
	case OpSet, OpAdd, OpSub, OpMapSet, OpMapAdd, OpMapSub, OpTransfer:
		return true
	default:
		return false
	}
}

func (m *MVM) currentVar(ctx *execContext, name string) uint64 {
	val, ok, _ := m.store.GetVar(ctx.contract.Address, name)
	if !ok {
		return 0
	}
	return parseU64(val)
}

func (m *MVM) currentMap(ctx *execContext, mapping, key string) string {
	val, ok, _ := m.store.GetMapValue(ctx.contract.Address, mapping, key)
	if !ok {
		if mp := findMapping(ctx.contract, mapping); mp != nil {
			return mp.ValueType.ZeroValue()
		}
		return ""
	}
	return val
}

func evalRequire(m *MVM, ctx *execContext, op Operation) (bool, error) {
	left := m.resolve(ctx, op.Left)
	right := m.resolve(ctx, op.Right)
	switch op.Cmp {
	case "==":
		return left == right, nil
	case "!=":
		return left != right, nil
	case ">":
		return parseU64(left) > parseU64(right), nil
	case ">=":
		return parseU64(left) >= parseU64(right), nil
	case "<":
		return parseU64(left) < parseU64(right), nil
	case "<=":
		return parseU64(left) <= parseU64(right), nil
	default:
		return false, fmt.Errorf("unknown comparator: %s", op.Cmp)
	}
}

// resolve implements spec.md §4.5's value-resolution rules: special
// tokens, parameter lookups, local ('let') bindings, contract variables,
// mapping reads ("name[expr]"), or a bare literal.
func (m *MVM) resolve(ctx *execContext, v string) string {
	switch v {
	case "msg.sender":
		return ctx.caller
	case "msg.amount":
		return formatU64(ctx.amount)
	case "block.height":
		return formatU64(ctx.blockHeight)
	case "block.timestamp":
		return strconv.FormatInt(ctx.blockTimestamp, 10)
	case "contract.owner":
		return ctx.contract.Owner
	case "contract.address":
		return ctx.contract.Address
	}
	if name, expr, ok := parseMapAccess(v); ok {
		key := m.resolve(ctx, expr)
		return m.currentMap(ctx, name, key)
	}
	if val, ok := ctx.params[v]; ok {
		return val
	}
	if val, ok := ctx.locals[v]; ok {
		return val
	}
	if findVariable(ctx.contract, v) != nil {
		val, ok, _ := m.store.GetVar(ctx.contract.Address, v)
		if !ok {
			return ""
		}
		return val
	}
	return v
}

// parseMapAccess recognises "name[expr]" and returns name, expr, true.
func parseMapAccess(v string) (string, string, bool) {
	open := strings.IndexByte(v, '[')
	if open <= 0 || !strings.HasSuffix(v, "]") {
		return "", "", false
	}
	return v[:open], v[open+1 : len(v)-1], true
}

func parseU64(s string) uint64 {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func formatU64(n uint64) string { return strconv.FormatUint(n, 10) }

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}
