package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/opd-ai/peercall/limits"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// envelopeHeaderSize is the sender key plus signature prefix of a decrypted bundle.
const envelopeHeaderSize = PublicKeySize + SignatureSize

// SealMessage signs message with the own key pair, prepends the own public
// key and seals the result to the recipient.
func SealMessage(message []byte, recipient [32]byte, own *KeyPair) ([]byte, error) {
	logger := logEntry("SealMessage")

	if own == nil {
		return nil, ErrNilKeyPair
	}
	if err := limits.ValidateSignalingMessage(message); err != nil {
		return nil, err
	}

	recipientBox, err := PublicKeyToCurve25519(recipient)
	if err != nil {
		logger.WithFields(SecureFieldHash(recipient[:], "recipient")).Warn("Recipient key does not convert")
		return nil, err
	}

	signature, err := Sign(message, own)
	if err != nil {
		return nil, err
	}

	bundle := make([]byte, 0, envelopeHeaderSize+len(message))
	bundle = append(bundle, own.Public[:]...)
	bundle = append(bundle, signature[:]...)
	bundle = append(bundle, message...)

	sealed, err := box.SealAnonymous(nil, bundle, &recipientBox, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal message: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"message_size":    len(message),
		"ciphertext_size": len(sealed),
	}).Debug("Message sealed")

	return sealed, nil
}

// OpenMessage opens a sealed envelope with the own key pair and verifies the
// embedded signature. It returns the message and the sender's public key.
func OpenMessage(ciphertext []byte, own *KeyPair) ([]byte, [32]byte, error) {
	var sender [32]byte

	if own == nil {
		return nil, sender, ErrNilKeyPair
	}
	if len(ciphertext) <= box.AnonymousOverhead {
		return nil, sender, fmt.Errorf("%w: ciphertext of %d bytes", ErrDecryptionFailed, len(ciphertext))
	}

	boxSecret := SecretKeyToCurve25519(own.Secret)
	defer ZeroBytes(boxSecret[:])

	boxPublic, err := curve25519.X25519(boxSecret[:], curve25519.Basepoint)
	if err != nil {
		return nil, sender, fmt.Errorf("derive box key: %w", err)
	}
	var boxPublicArr [32]byte
	copy(boxPublicArr[:], boxPublic)

	bundle, ok := box.OpenAnonymous(nil, ciphertext, &boxPublicArr, &boxSecret)
	if !ok {
		return nil, sender, ErrDecryptionFailed
	}

	if len(bundle) <= envelopeHeaderSize {
		return nil, sender, fmt.Errorf("%w: bundle of %d bytes", ErrMalformedEnvelope, len(bundle))
	}

	copy(sender[:], bundle[:PublicKeySize])
	var signature Signature
	copy(signature[:], bundle[PublicKeySize:envelopeHeaderSize])
	message := bundle[envelopeHeaderSize:]

	if !Verify(message, signature, sender) {
		logEntry("OpenMessage").WithFields(SecureFieldHash(sender[:], "sender")).Warn("Signature verification failed")
		return nil, [32]byte{}, ErrInvalidSignature
	}

	return message, sender, nil
}

// OpenMessageFrom behaves like OpenMessage and additionally requires the
// message to be signed by expected.
func OpenMessageFrom(ciphertext []byte, own *KeyPair, expected [32]byte) ([]byte, error) {
	message, sender, err := OpenMessage(ciphertext, own)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare(sender[:], expected[:]) != 1 {
		return nil, ErrUnexpectedSender
	}

	return message, nil
}
