package core

// Address codec for the MVM chain.
//
// A plain account address is the bech32 encoding (human-readable prefix
// "mvm1") of the first 20 bytes of SHA-256(pubkey). Token and declarative
// contract addresses are NOT bech32 — they are opaque synthesized strings
// of the form "mvm1token<20 hex>" / "mvm1contract<20 hex>" and must be
// treated as such by callers; AddressIsValid only applies to plain
// bech32 account addresses.

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

const (
	addressHRP      = "mvm1"
	tokenAddrPrefix    = "mvm1token"
	contractAddrPrefix = "mvm1contract"
	addressHashLen     = 20
)

// AddressFromPublicKey derives the bech32 account address for an Ed25519
// public key: hrp("mvm1") over sha256(pubkey)[:20].
func AddressFromPublicKey(pub []byte) (string, error) {
	sum := sha256.Sum256(pub)
	conv, err := bech32.ConvertBits(sum[:addressHashLen], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("address: convert bits: %w", err)
	}
	addr, err := bech32.Encode(addressHRP, conv)
	if err != nil {
		return "", fmt.Errorf("address: encode: %w", err)
	}
	return addr, nil
}

// AddressIsValid reports whether s is a well-formed bech32 account address
// under the mvm1 human-readable prefix. Token and contract addresses are
// opaque identifiers and are validated separately (IsTokenAddress,
// IsContractAddress).
func AddressIsValid(s string) bool {
	if !strings.HasPrefix(s, addressHRP) {
		return false
	}
	if IsTokenAddress(s) || IsContractAddress(s) {
		return false
	}
	hrp, _, err := bech32.Decode(s)
	return err == nil && hrp == addressHRP
}

// IsTokenAddress reports whether s looks like a synthesized MVM-20 token
// contract address ("mvm1token" + 20 hex chars).
func IsTokenAddress(s string) bool {
	if !strings.HasPrefix(s, tokenAddrPrefix) {
		return false
	}
	rest := strings.TrimPrefix(s, tokenAddrPrefix)
	if len(rest) != 20 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// IsContractAddress reports whether s looks like a synthesized declarative
// contract address ("mvm1contract" + 20 hex chars).
func IsContractAddress(s string) bool {
	if !strings.HasPrefix(s, contractAddrPrefix) {
		return false
	}
	rest := strings.TrimPrefix(s, contractAddrPrefix)
	if len(rest) != 20 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// deriveSyntheticAddress is the common DeriveXAddress helper for token and
// contract creation: prefix + hex(sha256(seed)[:10]).
func deriveSyntheticAddress(prefix string, seed []byte) string {
	sum := sha256.Sum256(seed)
	return prefix + hex.EncodeToString(sum[:10])
}
