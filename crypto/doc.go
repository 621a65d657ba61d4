// Package crypto implements the identity keys and the two encryption layers
// used by peercall: the signaling crypto envelope and password-based database
// encryption.
//
// # Identity Keys
//
// Every peer owns an Ed25519 signing key pair. The public key is the peer's
// identity; it is shared out of band as a 64 character hex string and doubles
// as the recipient key for encryption after conversion to Curve25519:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer crypto.WipeKeyPair(keys)
//	fmt.Println(crypto.FormatPublicKey(keys.Public))
//
// # Key Conversion
//
// [PublicKeyToCurve25519] maps an Edwards point to its Montgomery
// u-coordinate and rejects invalid and small-order points.
// [SecretKeyToCurve25519] hashes the seed with SHA-512 and clamps the first
// 32 bytes. The two conversions agree: scalar multiplication of the base
// point by the converted secret yields the converted public key.
//
// # Crypto Envelope
//
// Signaling messages are signed and then sealed:
//
//	signed     = signature(64) || message
//	bundle     = senderPublicKey(32) || signed
//	ciphertext = SealedBox(bundle, Curve25519(recipientPublicKey))
//
// The sealed box hides the sender's identity from observers; the embedded
// signature authenticates it to the recipient:
//
//	ct, err := crypto.SealMessage(msg, peerPublic, ownKeys)
//	msg, sender, err := crypto.OpenMessage(ct, ownKeys)
//
// [OpenMessageFrom] additionally pins the expected sender.
//
// # Database Encryption
//
// [EncryptDatabase] derives a key with Argon2id from a password and a random
// salt and encrypts with XSalsa20-Poly1305 (NaCl secretbox):
//
//	"PCDB" || version(1) || salt(16) || nonce(24) || secretbox
//
// A wrong password and a tampered file are indistinguishable and both report
// [ErrWrongPassword].
//
// # Secure Memory
//
// [SecureWipe], [ZeroBytes] and [WipeKeyPair] overwrite key material. Go's
// garbage collector may have copied the data already, so wiping is best
// effort.
//
// # Logging
//
// Log entries carry "package" and "function" fields. Key material is logged only through [SecureFieldHash]
// previews.
package crypto
