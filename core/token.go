package core

// MVM-20 fungible token standard (spec.md §4.6). Grounded on the teacher's
// coin.go mint-cap manager (a Store-backed ledger with a fixed decimals
// constant and logrus-logged mint/transfer events) — generalized from a
// single chain-native coin to many independently deployed token contracts,
// each addressed and balanced the same way coin.go balanced its one coin.

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// TokenLedger implements the MVM-20 operations over a Store.
type TokenLedger struct {
	store *Store
	log   *logrus.Entry
}

// NewTokenLedger constructs a token ledger bound to store.
func NewTokenLedger(store *Store) *TokenLedger {
	return &TokenLedger{store: store, log: logrus.WithField("component", "token")}
}

// Deploy creates a new MVM-20 token, crediting its entire total supply to
// creator, and returns its synthesized address.
func (l *TokenLedger) Deploy(creator, name, symbol string, totalSupply uint64, nowUnix int64, nonceSeed int64) (string, error) {
	if len(name) == 0 || len(name) > maxNameLen {
		return "", errContract("token name must be 1.." + fmt.Sprint(maxNameLen) + " characters")
	}
	if len(symbol) == 0 || len(symbol) > 16 {
		return "", errContract("token symbol must be 1..16 characters")
	}
	seed := fmt.Sprintf("%s|%s|%s|%d", creator, name, symbol, nonceSeed)
	addr := deriveSyntheticAddress(tokenAddrPrefix, []byte(seed))

	t := &Token{
		Address:     addr,
		Name:        name,
		Symbol:      symbol,
		Decimals:    TokenDecimals,
		TotalSupply: totalSupply,
		Creator:     creator,
		CreatedAt:   nowUnix,
	}
	if err := l.store.SaveToken(t); err != nil {
		return "", fmt.Errorf("token: save: %w", err)
	}
	if err := l.store.SetTokenBalance(addr, creator, totalSupply); err != nil {
		return "", fmt.Errorf("token: credit creator: %w", err)
	}
	l.log.WithFields(logrus.Fields{
		"address": addr, "symbol": symbol, "supply": totalSupply,
	}).Info("token deployed")
	return addr, nil
}

// Transfer moves amount of contract's token from from to to. Both balances
// are read and written while the engine holds the per-transaction state
// lock (spec.md §5); TokenLedger itself performs no additional locking.
func (l *TokenLedger) Transfer(contract, from, to string, amount uint64) error {
	if to == "" {
		return errInvalidRecipient()
	}
	_, ok, err := l.store.GetToken(contract)
	if err != nil {
		return fmt.Errorf("token: lookup: %w", err)
	}
	if !ok {
		return errTokenNotFound(contract)
	}
	bal, err := l.store.GetTokenBalance(contract, from)
	if err != nil {
		return fmt.Errorf("token: read balance: %w", err)
	}
	if bal < amount {
		return errInsufficientTokenBalance(amount, bal)
	}
	toBal, err := l.store.GetTokenBalance(contract, to)
	if err != nil {
		return fmt.Errorf("token: read balance: %w", err)
	}
	if err := l.store.SetTokenBalance(contract, from, bal-amount); err != nil {
		return fmt.Errorf("token: debit: %w", err)
	}
	if err := l.store.SetTokenBalance(contract, to, toBal+amount); err != nil {
		return fmt.Errorf("token: credit: %w", err)
	}
	return nil
}

// BalanceOf returns holder's balance of contract.
func (l *TokenLedger) BalanceOf(contract, holder string) (uint64, error) {
	return l.store.GetTokenBalance(contract, holder)
}

// Holders returns every positive-balance holder of contract, richest first.
func (l *TokenLedger) Holders(contract string) ([]HolderBalance, error) {
	return l.store.GetTokenHolders(contract)
}

// ByCreator returns every token deployed by creator, oldest first.
func (l *TokenLedger) ByCreator(creator string) ([]*Token, error) {
	all, err := l.store.GetAllTokens()
	if err != nil {
		return nil, err
	}
	out := make([]*Token, 0)
	for _, t := range all {
		if t.Creator == creator {
			out = append(out, t)
		}
	}
	return out, nil
}
