// Package database stores a peer's identity, contacts, call history and
// settings, and persists them as one JSON document that is optionally
// encrypted with a password.
//
// # Overview
//
//   - Settings: own username, identity key pair, call policy (block unknown
//     callers, auto accept) and connection parameters
//   - Contact: a named peer identified by its public key, reachable under
//     one or more addresses
//   - Event: one call history entry (direction and outcome)
//
// # Persistence
//
//	db, err := database.Load(path, password)
//	if errors.Is(err, os.ErrNotExist) {
//	    db, err = database.New("alice")
//	}
//	...
//	err = db.Save(path, password)
//
// With a non-empty password the document is encrypted with
// crypto.EncryptDatabase. Writes go to a temporary file in the same directory
// which is renamed over the target, so a crash never leaves a truncated
// database behind. Files are created with mode 0600.
//
// # Contact Sharing
//
// ExportContact and ImportContact encode the shareable part of a contact
// (name, public key, addresses) as compact JSON suitable for a QR code or a
// copy-paste exchange.
//
// All Database methods are safe for concurrent use.
package database
