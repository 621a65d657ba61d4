package database

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/opd-ai/peercall/crypto"
	"github.com/opd-ai/peercall/limits"
	"github.com/sirupsen/logrus"
)

// Database holds settings, contacts and call history.
type Database struct {
	mu       sync.RWMutex
	settings Settings
	contacts []Contact
	events   []Event
}

// New creates a database with default settings and a fresh identity.
func New(username string) (*Database, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer crypto.WipeKeyPair(kp)

	settings := Settings{
		Username:  strings.TrimSpace(username),
		PublicKey: kp.Public,
		SecretKey: kp.Secret,
	}
	settings.applyDefaults()

	logrus.WithFields(logrus.Fields{
		"function":   "New",
		"username":   settings.Username,
		"public_key": crypto.KeyPreview(kp.Public),
	}).Info("Created new database")

	return &Database{settings: settings}, nil
}

// Load reads a database file. Encrypted files require a non-empty password;
// plain files are accepted with or without one.
func Load(path string, password []byte) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limits.MaxDatabaseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read database: %w", err)
	}
	if err := limits.ValidateDatabase(data); err != nil {
		return nil, fmt.Errorf("read database: %w", err)
	}

	if crypto.IsEncryptedDatabase(data) {
		if len(password) == 0 {
			return nil, ErrPasswordRequired
		}
		plain, err := crypto.DecryptDatabase(data, password)
		if err != nil {
			return nil, err
		}
		defer crypto.ZeroBytes(plain)
		data = plain
	}

	d, err := Deserialize(data)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Load",
		"path":      path,
		"encrypted": len(password) > 0,
		"contacts":  len(d.contacts),
		"events":    len(d.events),
	}).Info("Database loaded")

	return d, nil
}

// Save writes the database atomically, encrypting it when password is non-empty.
func (d *Database) Save(path string, password []byte) error {
	data, err := d.Serialize()
	if err != nil {
		return err
	}
	defer crypto.ZeroBytes(data)

	if len(password) > 0 {
		data, err = crypto.EncryptDatabase(data, password)
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if err := tmp.Chmod(0o600); err != nil {
		return cleanup(fmt.Errorf("set file mode: %w", err))
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("write temporary file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("sync temporary file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temporary file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename database file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Save",
		"path":      path,
		"encrypted": len(password) > 0,
	}).Debug("Database saved")

	return nil
}

// Version returns the document version the database is written with.
func (d *Database) Version() int {
	return CurrentVersion
}

// Settings returns a copy of the settings.
func (d *Database) Settings() Settings {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings.clone()
}

// UpdateSettings applies fn to the settings under the write lock.
// The identity keys cannot be changed through it.
func (d *Database) UpdateSettings(fn func(s *Settings)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	public, secret := d.settings.PublicKey, d.settings.SecretKey
	fn(&d.settings)
	d.settings.PublicKey, d.settings.SecretKey = public, secret
	d.settings.applyDefaults()
	d.trimEventsLocked()
}

// KeyPair returns a copy of the identity key pair.
func (d *Database) KeyPair() *crypto.KeyPair {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings.KeyPair()
}

// OwnContact returns the shareable contact describing this peer.
func (d *Database) OwnContact() Contact {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Contact{
		Name:      d.settings.Username,
		PublicKey: d.settings.PublicKey,
		Addresses: append([]string(nil), d.settings.Addresses...),
	}
}

// AddContact adds a new contact. Names are compared case-insensitively.
func (d *Database) AddContact(c Contact) error {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if c.PublicKey == d.settings.PublicKey {
		return fmt.Errorf("%w: own public key", ErrInvalidContact)
	}
	for _, existing := range d.contacts {
		if existing.PublicKey == c.PublicKey {
			return fmt.Errorf("%w: public key belongs to %q", ErrContactExists, existing.Name)
		}
		if strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("%w: name %q", ErrContactExists, c.Name)
		}
	}

	d.contacts = append(d.contacts, c.clone())

	logrus.WithFields(logrus.Fields{
		"function":   "AddContact",
		"name":       c.Name,
		"public_key": crypto.KeyPreview(c.PublicKey),
		"addresses":  len(c.Addresses),
	}).Info("Contact added")

	return nil
}

// UpdateContact replaces the contact with the same public key.
func (d *Database) UpdateContact(c Contact) error {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexLocked(c.PublicKey)
	if idx < 0 {
		return ErrContactNotFound
	}
	for i, existing := range d.contacts {
		if i != idx && strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("%w: name %q", ErrContactExists, c.Name)
		}
	}

	d.contacts[idx] = c.clone()
	return nil
}

// RemoveContact deletes the contact with the given public key.
// Call history for the key is kept.
func (d *Database) RemoveContact(public [32]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexLocked(public)
	if idx < 0 {
		return ErrContactNotFound
	}
	d.contacts = append(d.contacts[:idx], d.contacts[idx+1:]...)
	return nil
}

// ContactByPublicKey looks up a contact by public key.
func (d *Database) ContactByPublicKey(public [32]byte) (Contact, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if idx := d.indexLocked(public); idx >= 0 {
		return d.contacts[idx].clone(), true
	}
	return Contact{}, false
}

// ContactByName looks up a contact by name, ignoring case.
func (d *Database) ContactByName(name string) (Contact, bool) {
	name = strings.TrimSpace(name)

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, c := range d.contacts {
		if strings.EqualFold(c.Name, name) {
			return c.clone(), true
		}
	}
	return Contact{}, false
}

// Contacts returns a copy of all contacts sorted by name.
func (d *Database) Contacts() []Contact {
	d.mu.RLock()
	out := make([]Contact, 0, len(d.contacts))
	for _, c := range d.contacts {
		out = append(out, c.clone())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// SetBlocked blocks or unblocks a contact.
func (d *Database) SetBlocked(public [32]byte, blocked bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexLocked(public)
	if idx < 0 {
		return ErrContactNotFound
	}
	d.contacts[idx].Blocked = blocked
	return nil
}

// SetLastWorkingAddress remembers the address a contact was last reached at.
func (d *Database) SetLastWorkingAddress(public [32]byte, address string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.indexLocked(public)
	if idx < 0 {
		return ErrContactNotFound
	}
	d.contacts[idx].LastWorkingAddress = address
	return nil
}

func (d *Database) indexLocked(public [32]byte) int {
	for i, c := range d.contacts {
		if c.PublicKey == public {
			return i
		}
	}
	return -1
}

// AddEvent appends a call history event, dropping the oldest events beyond
// MaxEvents. A zero Date is set to the current time.
func (d *Database) AddEvent(e Event) {
	if e.Date.IsZero() {
		e.Date = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.events = append(d.events, e)
	d.trimEventsLocked()

	logrus.WithFields(logrus.Fields{
		"function":   "AddEvent",
		"type":       e.Type.String(),
		"public_key": crypto.KeyPreview(e.PublicKey),
	}).Debug("Event recorded")
}

func (d *Database) trimEventsLocked() {
	if max := d.settings.MaxEvents; max > 0 && len(d.events) > max {
		d.events = append([]Event(nil), d.events[len(d.events)-max:]...)
	}
}

// Events returns a copy of the call history, oldest first.
func (d *Database) Events() []Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Event(nil), d.events...)
}

// EventsFor returns the call history of one peer, oldest first.
func (d *Database) EventsFor(public [32]byte) []Event {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Event
	for _, e := range d.events {
		if e.PublicKey == public {
			out = append(out, e)
		}
	}
	return out
}

// ClearEvents removes the whole call history.
func (d *Database) ClearEvents() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
}

// IsNotExist reports whether err means the database file does not exist yet.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
