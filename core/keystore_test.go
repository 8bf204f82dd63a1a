package core

import (
	"encoding/hex"
	"testing"
)

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func TestGenerateAndRecoverKeypair(t *testing.T) {
	kp, mnemonic, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	recovered, err := KeypairFromMnemonic(mnemonic)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered.Address != kp.Address {
		t.Fatalf("recovered address mismatch: %s != %s", recovered.Address, kp.Address)
	}
}

func TestSignAndVerifyTx(t *testing.T) {
	kp, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := HashTxData("transfer", kp.Address, "mvm1recipient", 100, 0, nil)
	sig := kp.Sign(msg)

	ok, err := VerifyTx(kp.Address, msg, hexEncode(sig), hexEncode(kp.Public))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected signature to verify")
	}

	tampered := HashTxData("transfer", kp.Address, "mvm1recipient", 999, 0, nil)
	ok, err = VerifyTx(kp.Address, tampered, hexEncode(sig), hexEncode(kp.Public))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("signature should not verify against a tampered message")
	}
}

func TestVerifyTxRejectsMismatchedSender(t *testing.T) {
	kp, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	other, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := HashTxData("transfer", kp.Address, "mvm1recipient", 100, 0, nil)
	sig := kp.Sign(msg)

	ok, err := VerifyTx(other.Address, msg, hexEncode(sig), hexEncode(kp.Public))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("signature should not verify against a different claimed sender")
	}
}
