package core

// Core data model (spec.md §3). Go has no built-in sum types, so the closed
// "tagged variant" shapes spec.md §9 calls for (TxKind, Operation) are
// modelled as string-enum-tagged flat structs with optional fields — the
// same shape the teacher's own structs (e.g. AuthorityNode, KYCDocument in
// common_structs.go) use for heterogeneous records, rather than an
// interface-per-variant hierarchy that would force type assertions
// everywhere a transaction or operation is handled.

import (
	"encoding/json"
	"strings"
)

// DisplayScale converts between display units and base units: 1 display
// unit = 10^8 base units.
const DisplayScale uint64 = 100_000_000

// TxKind is the closed set of transaction kinds the engine executes.
type TxKind string

const (
	KindTransfer        TxKind = "transfer"
	KindCreateToken      TxKind = "create_token"
	KindTransferToken    TxKind = "transfer_token"
	KindDeployContract   TxKind = "deploy_contract"
	KindCallContract     TxKind = "call_contract"
	KindDeployLegacy     TxKind = "deploy"
	KindCallLegacy       TxKind = "call"
)

// TxStatus is the terminal state of an executed transaction.
type TxStatus string

const (
	StatusSuccess TxStatus = "success"
	StatusFailed  TxStatus = "failed"
)

// Transaction is the canonical, already-scaled (base-unit) record stored in
// blocks and indices. SubmitRequest is the wire shape collaborators send;
// the HTTP submit handler scales its display-unit Value into base units when
// it builds the Transaction, and the engine scales the display-unit token
// amounts inside Data when the transaction executes.
type Transaction struct {
	Hash      string          `json:"hash"`
	Kind      TxKind          `json:"kind"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
	Value     uint64          `json:"value"`
	GasPrice  uint64          `json:"gas_price"`
	GasLimit  uint64          `json:"gas_limit"`
	GasUsed   uint64          `json:"gas_used"`
	Nonce     uint64          `json:"nonce"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Signature string          `json:"signature"`
	PublicKey string          `json:"public_key"`
	Status    TxStatus        `json:"status"`
	Error     string          `json:"error,omitempty"`
}

// SubmitRequest is the external submit contract (spec.md §6): amounts are
// display units, scaled by DisplayScale before execution.
type SubmitRequest struct {
	Kind      TxKind          `json:"kind"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
	Value     uint64          `json:"value,omitempty"`
	Nonce     uint64          `json:"nonce"`
	GasPrice  uint64          `json:"gas_price"`
	GasLimit  uint64          `json:"gas_limit"`
	Data      json.RawMessage `json:"data,omitempty"`
	Signature string          `json:"signature"`
	PublicKey string          `json:"public_key"`
}

// CreateTokenData is the display-unit payload for a create_token tx.
type CreateTokenData struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	TotalSupply uint64 `json:"total_supply"`
}

// TransferTokenData is the display-unit payload for a transfer_token tx;
// the recipient is carried in Transaction.To.
type TransferTokenData struct {
	Contract string `json:"contract"`
	Amount   uint64 `json:"amount"`
}

// CallContractData is the payload for a call_contract tx; the target
// contract is carried in Transaction.To.
type CallContractData struct {
	Method string   `json:"method"`
	Args   []string `json:"args,omitempty"`
	Amount uint64   `json:"amount,omitempty"`
}

// DeployContractData is the payload for a deploy_contract tx.
type DeployContractData struct {
	Name      string        `json:"name"`
	Token     string        `json:"token,omitempty"`
	Variables []VariableDef `json:"variables,omitempty"`
	Mappings  []MappingDef  `json:"mappings,omitempty"`
	Functions []FunctionDef `json:"functions,omitempty"`
}

// Block is an immutable, appended-once unit of the chain.
type Block struct {
	Height          uint64         `json:"height"`
	PrevHash        string         `json:"prev_hash"`
	Timestamp       int64          `json:"timestamp"`
	Validator       string         `json:"validator"`
	Transactions    []*Transaction `json:"transactions"`
	TxCount         int            `json:"tx_count"`
	GasUsed         uint64         `json:"gas_used"`
	GasLimit        uint64         `json:"gas_limit"`
	ValidatorReward uint64         `json:"validator_reward"`
	TotalMinted     uint64         `json:"total_minted"`
	Hash            string         `json:"hash"`
}

// genesisPrevHash is 64 zero characters, per spec.md §3.
var genesisPrevHash = strings.Repeat("0", 64)

// Token is the MVM-20 fungible token record.
type Token struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply uint64 `json:"total_supply"`
	Creator     string `json:"creator"`
	CreatedAt   int64  `json:"created_at"`
}

// TokenDecimals is fixed at 8 per spec.md §3.
const TokenDecimals uint8 = 8

// VarType is the closed set of MVM variable/mapping value types.
type VarType string

const (
	VarUint    VarType = "uint64"
	VarString  VarType = "string"
	VarBool    VarType = "bool"
	VarAddress VarType = "address"
)

// ZeroValue returns the type's zero-value string encoding.
func (t VarType) ZeroValue() string {
	switch t {
	case VarUint:
		return "0"
	case VarBool:
		return "false"
	default:
		return ""
	}
}

// VariableDef declares one contract-level scalar variable.
type VariableDef struct {
	Name    string  `json:"name"`
	Type    VarType `json:"type"`
	Default string  `json:"default,omitempty"`
}

// MappingDef declares one contract-level key/value mapping.
type MappingDef struct {
	Name      string  `json:"name"`
	KeyType   VarType `json:"key_type"`
	ValueType VarType `json:"value_type"`
}

// FunctionDef is a user-defined contract function: an ordered op list under
// a fixed set of boolean modifiers.
type FunctionDef struct {
	Name      string      `json:"name"`
	OnlyOwner bool        `json:"only_owner,omitempty"`
	Payable   bool        `json:"payable,omitempty"`
	View      bool        `json:"view,omitempty"`
	Params    []string    `json:"params,omitempty"`
	Ops       []Operation `json:"ops"`
}

// OpKind is the closed set of MVM operation kinds (spec.md §4.5).
type OpKind string

const (
	OpSet     OpKind = "set"
	OpAdd     OpKind = "add"
	OpSub     OpKind = "sub"
	OpMapSet  OpKind = "map_set"
	OpMapAdd  OpKind = "map_add"
	OpMapSub  OpKind = "map_sub"
	OpRequire OpKind = "require"
	OpTransfer OpKind = "transfer"
	OpReturn  OpKind = "return"
	OpLet     OpKind = "let"
)

// Operation is one structured instruction of a contract function body.
// Fields are interpreted per Kind; spec.md §4.5's operation table documents
// which fields each kind consumes.
type Operation struct {
	Kind  OpKind `json:"op"`
	Var   string `json:"var,omitempty"`
	Value string `json:"value,omitempty"`
	Map   string `json:"map,omitempty"`
	Key   string `json:"key,omitempty"`
	Left  string `json:"left,omitempty"`
	Cmp   string `json:"cmp,omitempty"`
	Right string `json:"right,omitempty"`
	Msg   string `json:"msg,omitempty"`
	To    string `json:"to,omitempty"`
	Amount string `json:"amount,omitempty"`
}

// Contract is the declarative MVM contract record.
type Contract struct {
	Address   string        `json:"address"`
	Name      string        `json:"name"`
	Creator   string        `json:"creator"`
	Owner     string        `json:"owner"`
	CreatedAt int64         `json:"created_at"`
	Token     string        `json:"token,omitempty"`
	Variables []VariableDef `json:"variables"`
	Mappings  []MappingDef  `json:"mappings"`
	Functions []FunctionDef `json:"functions"`
}

// reservedFieldNames are the names declared variables and mappings may not
// use (spec.md §3). Of these, auto-getters serve owner, creator, token and
// address directly from the Contract record; balance and name have no getter.
var reservedFieldNames = map[string]bool{
	"owner": true, "creator": true, "token": true,
	"address": true, "balance": true, "name": true,
}

// Contract schema bounds (spec.md §3).
const (
	maxContractVariables = 10
	maxContractMappings  = 5
	maxContractFunctions = 10
	maxOpsPerFunction    = 20
	maxNameLen           = 32
	maxStringLen         = 256
)

// CallResult is the outcome of a contract Call (spec.md §4.5).
type CallResult struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	GasUsed uint64 `json:"gas_used"`
}
