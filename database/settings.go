package database

import (
	"time"

	"github.com/opd-ai/peercall/crypto"
)

// Default settings values.
const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultMaxEvents      = 256
)

// Settings holds the local identity and call policy.
type Settings struct {
	Username  string
	PublicKey [32]byte
	SecretKey [64]byte
	// BlockUnknown rejects calls from keys that are not contacts.
	BlockUnknown    bool
	AutoAcceptCalls bool
	// Addresses are published in the own contact. Empty means "detect".
	Addresses  []string
	ICEServers []string
	// ConnectTimeout bounds each connection attempt to a contact address.
	ConnectTimeout time.Duration
	// MaxEvents caps the call history; older events are dropped first.
	MaxEvents int
}

// KeyPair returns a copy of the identity key pair.
func (s Settings) KeyPair() *crypto.KeyPair {
	return &crypto.KeyPair{Public: s.PublicKey, Secret: s.SecretKey}
}

func (s Settings) clone() Settings {
	s.Addresses = append([]string(nil), s.Addresses...)
	s.ICEServers = append([]string(nil), s.ICEServers...)
	return s
}

func (s *Settings) applyDefaults() {
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = DefaultConnectTimeout
	}
	if s.MaxEvents <= 0 {
		s.MaxEvents = DefaultMaxEvents
	}
}
