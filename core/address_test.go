package core

import (
	"crypto/ed25519"
	"strings"
	"testing"
)

func TestAddressFromPublicKeyDeterministic(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	a1, err := AddressFromPublicKey(pub)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	a2, err := AddressFromPublicKey(pub)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("address derivation not deterministic: %s != %s", a1, a2)
	}
	if !strings.HasPrefix(a1, addressHRP) {
		t.Fatalf("address missing hrp prefix: %s", a1)
	}
	if !AddressIsValid(a1) {
		t.Fatalf("derived address failed validation: %s", a1)
	}
}

func TestAddressIsValidRejectsSynthesized(t *testing.T) {
	seed := []byte("seed-material-for-test-purposes")
	tok := deriveSyntheticAddress(tokenAddrPrefix, seed)
	if AddressIsValid(tok) {
		t.Fatalf("token address should not validate as a plain account address: %s", tok)
	}
	if !IsTokenAddress(tok) {
		t.Fatalf("expected %s to be recognized as a token address", tok)
	}
	con := deriveSyntheticAddress(contractAddrPrefix, seed)
	if !IsContractAddress(con) {
		t.Fatalf("expected %s to be recognized as a contract address", con)
	}
	if IsTokenAddress(con) {
		t.Fatalf("contract address misclassified as token address: %s", con)
	}
}

func TestDeriveSyntheticAddressDeterministic(t *testing.T) {
	seed := []byte("same-seed")
	a := deriveSyntheticAddress(tokenAddrPrefix, seed)
	b := deriveSyntheticAddress(tokenAddrPrefix, seed)
	if a != b {
		t.Fatalf("synthetic derivation not deterministic")
	}
	c := deriveSyntheticAddress(tokenAddrPrefix, []byte("different-seed"))
	if a == c {
		t.Fatalf("different seeds produced the same address")
	}
}
