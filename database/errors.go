package database

import "errors"

var (
	// ErrPasswordRequired indicates an encrypted database was loaded without a password.
	ErrPasswordRequired = errors.New("database is encrypted, password required")

	// ErrUnsupportedVersion indicates a database written by an unknown format version.
	ErrUnsupportedVersion = errors.New("unsupported database version")

	// ErrContactExists indicates a contact with the same public key or name exists.
	ErrContactExists = errors.New("contact already exists")

	// ErrContactNotFound indicates no contact matches the given key or name.
	ErrContactNotFound = errors.New("contact not found")

	// ErrInvalidContact indicates a contact with a bad name, key or address.
	ErrInvalidContact = errors.New("invalid contact")
)
