package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/opd-ai/peercall/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"
)

func newTestPair(t *testing.T) (*KeyPair, *KeyPair) {
	t.Helper()
	alice, err := GenerateKeyPair()
	require.NoError(t, err)
	bob, err := GenerateKeyPair()
	require.NoError(t, err)
	return alice, bob
}

// sealRawBundle seals an arbitrary bundle to the recipient, bypassing signing.
func sealRawBundle(t *testing.T, bundle []byte, recipient [32]byte) []byte {
	t.Helper()
	boxKey, err := PublicKeyToCurve25519(recipient)
	require.NoError(t, err)
	sealed, err := box.SealAnonymous(nil, bundle, &boxKey, rand.Reader)
	require.NoError(t, err)
	return sealed
}

func TestSealOpenRoundTrip(t *testing.T) {
	alice, bob := newTestPair(t)
	message := []byte(`{"action":"call","offer":"v=0"}`)

	sealed, err := SealMessage(message, bob.Public, alice)
	require.NoError(t, err)
	assert.Len(t, sealed, len(message)+limits.EnvelopeOverhead)

	opened, sender, err := OpenMessage(sealed, bob)
	require.NoError(t, err)
	assert.Equal(t, message, opened)
	assert.Equal(t, alice.Public, sender)

	opened, err = OpenMessageFrom(sealed, bob, alice.Public)
	require.NoError(t, err)
	assert.Equal(t, message, opened)
}

func TestSealIsRandomized(t *testing.T) {
	alice, bob := newTestPair(t)
	message := []byte("ping")

	a, err := SealMessage(message, bob.Public, alice)
	require.NoError(t, err)
	b, err := SealMessage(message, bob.Public, alice)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "each envelope uses a fresh ephemeral key")
}

func TestOpenMessageWrongRecipient(t *testing.T) {
	alice, bob := newTestPair(t)
	eve, err := GenerateKeyPair()
	require.NoError(t, err)

	sealed, err := SealMessage([]byte("secret"), bob.Public, alice)
	require.NoError(t, err)

	_, _, err = OpenMessage(sealed, eve)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpenMessageTampered(t *testing.T) {
	alice, bob := newTestPair(t)

	sealed, err := SealMessage([]byte("secret"), bob.Public, alice)
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0x01

	_, _, err = OpenMessage(sealed, bob)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpenMessageShortCiphertext(t *testing.T) {
	_, bob := newTestPair(t)

	for _, size := range []int{0, 1, box.AnonymousOverhead} {
		_, _, err := OpenMessage(make([]byte, size), bob)
		assert.ErrorIs(t, err, ErrDecryptionFailed, "size %d", size)
	}
}

func TestOpenMessageMalformedBundle(t *testing.T) {
	_, bob := newTestPair(t)

	sealed := sealRawBundle(t, make([]byte, PublicKeySize+10), bob.Public)
	_, _, err := OpenMessage(sealed, bob)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestOpenMessageInvalidSignature(t *testing.T) {
	alice, bob := newTestPair(t)
	message := []byte("connected")

	sig, err := Sign([]byte("dismissed"), alice)
	require.NoError(t, err)

	bundle := append([]byte{}, alice.Public[:]...)
	bundle = append(bundle, sig[:]...)
	bundle = append(bundle, message...)

	_, _, err = OpenMessage(sealRawBundle(t, bundle, bob.Public), bob)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

// TestOpenMessageForgedSender checks that claiming another identity's key
// without its secret fails signature verification.
func TestOpenMessageForgedSender(t *testing.T) {
	alice, bob := newTestPair(t)
	mallory, err := GenerateKeyPair()
	require.NoError(t, err)

	message := []byte("call")
	sig, err := Sign(message, mallory)
	require.NoError(t, err)

	bundle := append([]byte{}, alice.Public[:]...)
	bundle = append(bundle, sig[:]...)
	bundle = append(bundle, message...)

	_, _, err = OpenMessage(sealRawBundle(t, bundle, bob.Public), bob)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestOpenMessageFromUnexpectedSender(t *testing.T) {
	alice, bob := newTestPair(t)
	carol, err := GenerateKeyPair()
	require.NoError(t, err)

	sealed, err := SealMessage([]byte("ringing"), bob.Public, alice)
	require.NoError(t, err)

	_, err = OpenMessageFrom(sealed, bob, carol.Public)
	assert.ErrorIs(t, err, ErrUnexpectedSender)
}

func TestSealMessageValidation(t *testing.T) {
	alice, bob := newTestPair(t)

	_, err := SealMessage(nil, bob.Public, alice)
	assert.ErrorIs(t, err, limits.ErrMessageEmpty)

	_, err = SealMessage(make([]byte, limits.MaxSignalingMessage+1), bob.Public, alice)
	assert.ErrorIs(t, err, limits.ErrMessageTooLarge)

	_, err = SealMessage([]byte("x"), [32]byte{}, alice)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	_, err = SealMessage([]byte("x"), bob.Public, nil)
	assert.ErrorIs(t, err, ErrNilKeyPair)

	_, _, err = OpenMessage([]byte("x"), nil)
	assert.ErrorIs(t, err, ErrNilKeyPair)
}

func TestSealMessageMaxSizeFitsPacket(t *testing.T) {
	alice, bob := newTestPair(t)

	sealed, err := SealMessage(make([]byte, limits.MaxSignalingMessage), bob.Public, alice)
	require.NoError(t, err)
	assert.Equal(t, limits.MaxPacketSize, len(sealed))
}
