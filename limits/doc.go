// Package limits provides the size limits shared by the peercall signaling
// transport, the crypto envelope and the encrypted database.
//
// # Size Hierarchy
//
//   - MaxPacketSize (32 KiB): the largest framed packet the transport writes or
//     accepts from a peer. A length prefix above this value is rejected before
//     any payload buffer is allocated.
//
//   - MaxSignalingMessage: the largest JSON signaling plaintext. It is
//     MaxPacketSize minus EnvelopeOverhead so that every sealed message fits in
//     one packet.
//
//   - EnvelopeOverhead: sealed box overhead (ephemeral key + Poly1305 tag), plus
//     the embedded sender public key and its Ed25519 signature.
//
//   - MaxDatabaseSize (16 MiB): the largest database file that is read into
//     memory for decryption.
//
// # Validation Functions
//
//	if err := limits.ValidateSignalingMessage(payload); err != nil {
//	    // ErrMessageEmpty or a wrapped ErrMessageTooLarge
//	}
//
// Errors wrap ErrMessageTooLarge with the actual and permitted sizes, so
// callers classify them with errors.Is.
package limits
