package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// PublicKeySize is the size of an identity public key in bytes.
const PublicKeySize = ed25519.PublicKeySize

// KeyPair is an Ed25519 signing key pair identifying a peer.
// Secret uses the seed || public layout of ed25519.PrivateKey.
type KeyPair struct {
	Public [32]byte
	Secret [64]byte
}

// GenerateKeyPair creates a new random identity key pair.
func GenerateKeyPair() (*KeyPair, error) {
	public, secret, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}

	kp := &KeyPair{}
	copy(kp.Public[:], public)
	copy(kp.Secret[:], secret)
	ZeroBytes(secret)

	return kp, nil
}

// KeyPairFromSeed derives the key pair for a 32-byte seed.
func KeyPairFromSeed(seed [32]byte) (*KeyPair, error) {
	if isZeroKey(seed) {
		return nil, fmt.Errorf("invalid seed: all zeros")
	}

	secret := ed25519.NewKeyFromSeed(seed[:])
	kp := &KeyPair{}
	copy(kp.Secret[:], secret)
	copy(kp.Public[:], secret[32:])
	ZeroBytes(secret)

	return kp, nil
}

// Seed returns the 32-byte seed the key pair was derived from.
func (kp *KeyPair) Seed() [32]byte {
	var seed [32]byte
	copy(seed[:], kp.Secret[:32])
	return seed
}

// FormatPublicKey encodes a public key as lowercase hex.
func FormatPublicKey(public [32]byte) string {
	return hex.EncodeToString(public[:])
}

// ParsePublicKey decodes a 64 character hex public key. Surrounding whitespace
// is ignored and either letter case is accepted.
func ParsePublicKey(s string) ([32]byte, error) {
	var public [32]byte

	s = strings.TrimSpace(s)
	if len(s) != hex.EncodedLen(PublicKeySize) {
		return public, fmt.Errorf("%w: expected %d hex characters, got %d",
			ErrInvalidPublicKey, hex.EncodedLen(PublicKeySize), len(s))
	}

	raw, err := hex.DecodeString(s)
	if err != nil {
		return public, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	copy(public[:], raw)

	if isZeroKey(public) {
		return [32]byte{}, fmt.Errorf("%w: all zeros", ErrInvalidPublicKey)
	}

	return public, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
