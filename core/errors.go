package core

// Tagged error taxonomy (spec.md §7). A ChainError carries a stable Kind
// plus structured fields so collaborators can switch on it instead of
// string-matching, per spec.md §9's "error carriage" note. Internal
// boundaries still wrap with fmt.Errorf("%s: %w", component, err) in the
// teacher's style; only the outermost layer (internal/server) flattens to
// a bare message.

import "fmt"

// ErrorKind is the closed set of typed failures a transaction or read
// operation can surface.
type ErrorKind string

const (
	ErrInvalidSignature       ErrorKind = "invalid_signature"
	ErrInvalidNonce           ErrorKind = "invalid_nonce"
	ErrInsufficientBalance    ErrorKind = "insufficient_balance"
	ErrInvalidAddress         ErrorKind = "invalid_address"
	ErrInvalidRecipient       ErrorKind = "invalid_recipient"
	ErrTokenNotFound          ErrorKind = "token_not_found"
	ErrInsufficientTokenBal   ErrorKind = "insufficient_token_balance"
	ErrContractError          ErrorKind = "contract_error"
	ErrGasExceeded            ErrorKind = "gas_exceeded"
	ErrInternal               ErrorKind = "internal_error"
)

// ChainError is the structured error value raised by the execution
// pipeline and the read surface.
type ChainError struct {
	Kind   ErrorKind
	Fields map[string]any
	msg    string
}

func (e *ChainError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return string(e.Kind)
}

func newChainErr(kind ErrorKind, msg string, fields map[string]any) *ChainError {
	return &ChainError{Kind: kind, Fields: fields, msg: msg}
}

func errInvalidSignature() *ChainError {
	return newChainErr(ErrInvalidSignature, "invalid signature", nil)
}

func errInvalidNonce(expected, got uint64) *ChainError {
	return newChainErr(ErrInvalidNonce,
		fmt.Sprintf("invalid nonce: expected %d, got %d", expected, got),
		map[string]any{"expected": expected, "got": got})
}

func errInsufficientBalance(required, available uint64) *ChainError {
	return newChainErr(ErrInsufficientBalance,
		fmt.Sprintf("insufficient balance: required %d, available %d", required, available),
		map[string]any{"required": required, "available": available})
}

func errInvalidAddress(addr string) *ChainError {
	return newChainErr(ErrInvalidAddress,
		fmt.Sprintf("invalid address: %s", addr),
		map[string]any{"address": addr})
}

func errInvalidRecipient() *ChainError {
	return newChainErr(ErrInvalidRecipient, "transfer requires a recipient address", nil)
}

func errTokenNotFound(contract string) *ChainError {
	return newChainErr(ErrTokenNotFound,
		fmt.Sprintf("token not found: %s", contract),
		map[string]any{"contract": contract})
}

func errInsufficientTokenBalance(required, available uint64) *ChainError {
	return newChainErr(ErrInsufficientTokenBal,
		fmt.Sprintf("insufficient token balance: required %d, available %d", required, available),
		map[string]any{"required": required, "available": available})
}

func errContract(message string) *ChainError {
	return newChainErr(ErrContractError, message, map[string]any{"message": message})
}

func errInternal(message string) *ChainError {
	return newChainErr(ErrInternal, message, map[string]any{"message": message})
}
