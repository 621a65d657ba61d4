package database

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/opd-ai/peercall/crypto"
	"github.com/opd-ai/peercall/transport"
)

// MaxNameLength is the maximum length of a contact or user name in bytes.
const MaxNameLength = 128

// Contact is a peer known by name and public key.
type Contact struct {
	Name      string
	PublicKey [32]byte
	// Addresses are tried in order when calling, after LastWorkingAddress.
	Addresses          []string
	Blocked            bool
	LastWorkingAddress string
}

// DialOrder returns the addresses to try, LastWorkingAddress first and
// without duplicates.
func (c Contact) DialOrder() []string {
	out := make([]string, 0, len(c.Addresses)+1)
	if c.LastWorkingAddress != "" {
		out = append(out, c.LastWorkingAddress)
	}
	for _, a := range c.Addresses {
		if a != c.LastWorkingAddress {
			out = append(out, a)
		}
	}
	return out
}

func (c Contact) clone() Contact {
	c.Addresses = append([]string(nil), c.Addresses...)
	return c
}

// Validate checks name, public key and addresses.
func (c Contact) Validate() error {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidContact)
	}
	if len(name) > MaxNameLength || !utf8.ValidString(name) {
		return fmt.Errorf("%w: name must be valid UTF-8 of at most %d bytes", ErrInvalidContact, MaxNameLength)
	}
	if _, err := crypto.PublicKeyToCurve25519(c.PublicKey); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContact, err)
	}
	for _, a := range c.Addresses {
		if !transport.IsValidAddress(a) {
			return fmt.Errorf("%w: bad address %q", ErrInvalidContact, a)
		}
	}
	return nil
}

// sharedContact is the exchange format of ExportContact and ImportContact.
type sharedContact struct {
	Name      string   `json:"name"`
	PublicKey string   `json:"public_key"`
	Addresses []string `json:"addresses"`
}

// ExportContact encodes the shareable fields of a contact as JSON.
func ExportContact(c Contact) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	addresses := c.Addresses
	if addresses == nil {
		addresses = []string{}
	}
	return json.Marshal(sharedContact{
		Name:      strings.TrimSpace(c.Name),
		PublicKey: crypto.FormatPublicKey(c.PublicKey),
		Addresses: addresses,
	})
}

// ImportContact decodes and validates a contact produced by ExportContact.
func ImportContact(data []byte) (Contact, error) {
	var shared sharedContact
	if err := json.Unmarshal(data, &shared); err != nil {
		return Contact{}, fmt.Errorf("%w: %v", ErrInvalidContact, err)
	}

	public, err := crypto.ParsePublicKey(shared.PublicKey)
	if err != nil {
		return Contact{}, fmt.Errorf("%w: %v", ErrInvalidContact, err)
	}

	c := Contact{
		Name:      strings.TrimSpace(shared.Name),
		PublicKey: public,
		Addresses: shared.Addresses,
	}
	if err := c.Validate(); err != nil {
		return Contact{}, err
	}
	return c, nil
}
