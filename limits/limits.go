package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxPacketSize is the largest framed packet accepted on a signaling socket.
	// SDP offers with a full set of ICE candidates stay well below this value.
	MaxPacketSize = 32 * 1024

	// LengthPrefixSize is the size of the big-endian length header of a packet.
	LengthPrefixSize = 4

	// SealedBoxOverhead is the overhead of an anonymous sealed box: the
	// ephemeral Curve25519 public key plus the Poly1305 tag
	// (golang.org/x/crypto/nacl/box.AnonymousOverhead).
	SealedBoxOverhead = 32 + 16

	// PublicKeySize is the size of an Ed25519 public key.
	PublicKeySize = 32

	// SignatureSize is the size of an Ed25519 signature.
	SignatureSize = 64

	// EnvelopeOverhead is the number of bytes a crypto envelope adds to its
	// plaintext: sender key, signature and sealed box overhead.
	EnvelopeOverhead = SealedBoxOverhead + PublicKeySize + SignatureSize

	// MaxSignalingMessage is the largest signaling plaintext that still fits
	// in a single packet once sealed.
	MaxSignalingMessage = MaxPacketSize - EnvelopeOverhead

	// MaxDatabaseSize bounds the database file read from disk.
	MaxDatabaseSize = 16 * 1024 * 1024
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidatePacketSize validates a packet length read from or destined for the
// wire. It takes a length instead of a buffer so that a hostile length prefix
// can be rejected before allocation.
func ValidatePacketSize(n int) error {
	if n <= 0 {
		return ErrMessageEmpty
	}
	if n > MaxPacketSize {
		return fmt.Errorf("%w: packet size %d exceeds limit %d", ErrMessageTooLarge, n, MaxPacketSize)
	}
	return nil
}

// ValidateSignalingMessage validates a signaling plaintext against MaxSignalingMessage.
func ValidateSignalingMessage(message []byte) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > MaxSignalingMessage {
		return fmt.Errorf("%w: signaling message size %d exceeds limit %d", ErrMessageTooLarge, len(message), MaxSignalingMessage)
	}
	return nil
}

// ValidateDatabase validates a serialized or encrypted database against MaxDatabaseSize.
func ValidateDatabase(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > MaxDatabaseSize {
		return fmt.Errorf("%w: database size %d exceeds limit %d", ErrMessageTooLarge, len(data), MaxDatabaseSize)
	}
	return nil
}
