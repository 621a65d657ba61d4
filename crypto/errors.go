package crypto

import "errors"

// Key errors
var (
	// ErrInvalidPublicKey indicates a public key that is malformed, all zeros,
	// or not a valid curve point.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrNilKeyPair indicates an operation received a nil key pair.
	ErrNilKeyPair = errors.New("nil key pair")
)

// Envelope errors
var (
	// ErrDecryptionFailed indicates the sealed box could not be opened with
	// the local key pair.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrMalformedEnvelope indicates the decrypted bundle is too short to hold
	// a sender key and a signature.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrInvalidSignature indicates the embedded signature does not verify
	// against the embedded sender key.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnexpectedSender indicates a valid message signed by a different key
	// than the expected peer.
	ErrUnexpectedSender = errors.New("unexpected sender")
)

// Database encryption errors
var (
	// ErrWrongPassword indicates authentication of the encrypted database
	// failed, either due to a wrong password or a modified file.
	ErrWrongPassword = errors.New("wrong password or corrupted database")

	// ErrUnsupportedFormat indicates an unknown magic or format version.
	ErrUnsupportedFormat = errors.New("unsupported database format")

	// ErrMalformedDatabase indicates the encrypted database is truncated.
	ErrMalformedDatabase = errors.New("malformed encrypted database")
)
