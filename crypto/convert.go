package crypto

import (
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
)

// PublicKeyToCurve25519 converts an Ed25519 public key into the X25519 public
// key of the same identity. Encodings that are not valid curve points and
// points of small order are rejected.
func PublicKeyToCurve25519(edPublic [32]byte) ([32]byte, error) {
	var out [32]byte

	point, err := new(edwards25519.Point).SetBytes(edPublic[:])
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	// Small-order points collapse to the identity when multiplied by the cofactor.
	if new(edwards25519.Point).MultByCofactor(point).Equal(edwards25519.NewIdentityPoint()) == 1 {
		return out, fmt.Errorf("%w: small order point", ErrInvalidPublicKey)
	}

	copy(out[:], point.BytesMontgomery())
	if isZeroKey(out) {
		return [32]byte{}, fmt.Errorf("%w: converts to zero", ErrInvalidPublicKey)
	}

	return out, nil
}

// SecretKeyToCurve25519 converts an Ed25519 secret key into the matching
// X25519 secret scalar (RFC 7748 clamping applied).
func SecretKeyToCurve25519(edSecret [64]byte) [32]byte {
	h := sha512.Sum512(edSecret[:32])
	defer ZeroBytes(h[:])

	var out [32]byte
	copy(out[:], h[:32])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64

	return out
}
