package core

// Keystore owns the node's single, non-rotating Ed25519 keypair. Generation
// is shown to the operator as a 24-word BIP-39 mnemonic exactly once; the
// seed persisted under the state store's meta:keypair cell never requires
// the mnemonic to be reproduced. Hierarchical child-key derivation (as the
// teacher's HDWallet does via SLIP-0010) has no caller here: the spec wants
// exactly one keypair per node, so that surface is not carried.

import (
	"crypto/ed25519"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// Keypair holds a node's Ed25519 secret and public key.
type Keypair struct {
	Secret  ed25519.PrivateKey
	Public  ed25519.PublicKey
	Address string
}

// GenerateKeypair creates a fresh Ed25519 keypair from system randomness and
// returns it alongside its 24-word mnemonic encoding of the 32-byte seed.
func GenerateKeypair() (*Keypair, string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, "", fmt.Errorf("keystore: entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("keystore: mnemonic: %w", err)
	}
	kp, err := KeypairFromSeed(entropy)
	if err != nil {
		return nil, "", err
	}
	return kp, mnemonic, nil
}

// KeypairFromMnemonic recovers the node keypair from a previously recorded
// 24-word mnemonic.
func KeypairFromMnemonic(mnemonic string) (*Keypair, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("keystore: invalid mnemonic")
	}
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("keystore: entropy from mnemonic: %w", err)
	}
	return KeypairFromSeed(entropy)
}

// KeypairFromSeed derives an Ed25519 keypair deterministically from a
// 32-byte seed (the bip39 entropy, or the raw bytes read back from
// meta:keypair on node restart).
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keystore: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	secret := ed25519.NewKeyFromSeed(seed)
	pub := secret.Public().(ed25519.PublicKey)
	addr, err := AddressFromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &Keypair{Secret: secret, Public: pub, Address: addr}, nil
}

// Seed returns the 32-byte seed backing this keypair, for persistence under
// meta:keypair. Callers must protect the returned bytes (file mode 0600 at
// rest, never logged).
func (k *Keypair) Seed() []byte {
	return append([]byte(nil), k.Secret.Seed()...)
}

// Sign signs msg (typically the output of HashTxData) with the node's
// secret key.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.Secret, msg)
}

// HashTxData computes the deterministic pre-signature transaction hash:
// SHA-256 over kind || from || to || value(LE64) || nonce(LE64) || data.
// `to` and `data` are empty-string/empty-bytes when absent, exactly as
// spec.md §4.1 requires.
func HashTxData(kind string, from string, to string, valueScaled uint64, nonce uint64, dataJSON []byte) []byte {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte(from))
	h.Write([]byte(to))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], valueScaled)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])
	h.Write(dataJSON)
	return h.Sum(nil)
}

// VerifyTx checks that sig over msg was produced by the secret half of
// pubkeyHex, and that the claimed sender address matches that public key.
func VerifyTx(from string, msg []byte, sigHex string, pubkeyHex string) (bool, error) {
	pub, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return false, fmt.Errorf("keystore: decode pubkey: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, errors.New("keystore: bad public key size")
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("keystore: decode signature: %w", err)
	}
	addr, err := AddressFromPublicKey(pub)
	if err != nil {
		return false, err
	}
	if addr != from {
		return false, nil
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
}

// RandomSeed returns cryptographically random bytes of length n.
func RandomSeed(n int) []byte {
	b := make([]byte, n)
	_, _ = crand.Read(b)
	return b
}
