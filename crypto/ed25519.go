package crypto

import (
	"crypto/ed25519"
	"errors"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Signature represents an Ed25519 signature.
type Signature [SignatureSize]byte

// Sign creates an Ed25519 signature for a message using the key pair's secret key.
func Sign(message []byte, kp *KeyPair) (Signature, error) {
	if kp == nil {
		return Signature{}, ErrNilKeyPair
	}
	if len(message) == 0 {
		return Signature{}, errors.New("empty message")
	}

	var signature Signature
	copy(signature[:], ed25519.Sign(ed25519.PrivateKey(kp.Secret[:]), message))

	return signature, nil
}

// Verify checks if a signature is valid for a message and public key.
func Verify(message []byte, signature Signature, publicKey [32]byte) bool {
	return ed25519.Verify(ed25519.PublicKey(publicKey[:]), message, signature[:])
}
