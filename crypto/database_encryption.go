package crypto

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// DatabaseFormatVersion is the current encrypted database format version.
	DatabaseFormatVersion = 1

	// DatabaseSaltSize is the size of the Argon2id salt.
	DatabaseSaltSize = 16

	// DatabaseNonceSize is the size of the secretbox nonce.
	DatabaseNonceSize = 24

	// Argon2id parameters (libsodium "interactive" limits).
	argonTime    = 2
	argonMemory  = 64 * 1024
	argonThreads = 1
	argonKeyLen  = 32
)

var databaseMagic = []byte("PCDB")

// databaseHeaderSize is magic, version, salt and nonce.
var databaseHeaderSize = len(databaseMagic) + 1 + DatabaseSaltSize + DatabaseNonceSize

// IsEncryptedDatabase reports whether data starts with the encrypted database magic.
func IsEncryptedDatabase(data []byte) bool {
	return bytes.HasPrefix(data, databaseMagic)
}

// EncryptDatabase encrypts a serialized database with a key derived from password.
// A fresh salt and nonce are generated for every call.
func EncryptDatabase(plaintext, password []byte) ([]byte, error) {
	logger := logEntry("EncryptDatabase")

	if len(password) == 0 {
		return nil, fmt.Errorf("password cannot be empty")
	}

	var salt [DatabaseSaltSize]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	var nonce [DatabaseNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	key := deriveDatabaseKey(password, salt[:])
	defer ZeroBytes(key[:])

	out := make([]byte, 0, databaseHeaderSize+len(plaintext)+secretbox.Overhead)
	out = append(out, databaseMagic...)
	out = append(out, DatabaseFormatVersion)
	out = append(out, salt[:]...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plaintext, &nonce, &key)

	logger.WithField("size", len(out)).Debug("Database encrypted")
	return out, nil
}

// DecryptDatabase reverses EncryptDatabase.
func DecryptDatabase(data, password []byte) ([]byte, error) {
	if !IsEncryptedDatabase(data) {
		return nil, fmt.Errorf("%w: missing magic", ErrUnsupportedFormat)
	}
	if len(data) < databaseHeaderSize+secretbox.Overhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedDatabase, len(data))
	}

	offset := len(databaseMagic)
	if version := data[offset]; version != DatabaseFormatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, version)
	}
	offset++

	salt := data[offset : offset+DatabaseSaltSize]
	offset += DatabaseSaltSize

	var nonce [DatabaseNonceSize]byte
	copy(nonce[:], data[offset:offset+DatabaseNonceSize])
	offset += DatabaseNonceSize

	key := deriveDatabaseKey(password, salt)
	defer ZeroBytes(key[:])

	plaintext, ok := secretbox.Open(nil, data[offset:], &nonce, &key)
	if !ok {
		logEntry("DecryptDatabase").Warn("Database authentication failed")
		return nil, ErrWrongPassword
	}

	return plaintext, nil
}

func deriveDatabaseKey(password, salt []byte) [32]byte {
	derived := argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	var key [32]byte
	copy(key[:], derived)
	ZeroBytes(derived)
	return key
}
