package crypto

import (
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe overwrites a byte slice holding sensitive data with zeros.
// It returns an error if the byte slice is nil.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	zeros := make([]byte, len(data))
	subtle.ConstantTimeCopy(1, data, zeros)

	// Keep the write observable so it is not optimized away.
	runtime.KeepAlive(data)

	return nil
}

// ZeroBytes erases the contents of a byte slice, ignoring the nil case.
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}

// WipeKeyPair erases the secret key in a KeyPair.
// The public key is left intact so the identity can still be logged.
func WipeKeyPair(kp *KeyPair) error {
	if kp == nil {
		return ErrNilKeyPair
	}
	return SecureWipe(kp.Secret[:])
}
