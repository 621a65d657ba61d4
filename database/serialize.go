package database

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opd-ai/peercall/crypto"
)

// CurrentVersion is the database document version written by Save.
const CurrentVersion = 1

// savedDatabase is the on-disk JSON document. Keys are hex encoded.
type savedDatabase struct {
	Version  int            `json:"version"`
	Settings savedSettings  `json:"settings"`
	Contacts []savedContact `json:"contacts"`
	Events   []savedEvent   `json:"events"`
}

type savedSettings struct {
	Username         string   `json:"username"`
	PublicKey        string   `json:"public_key"`
	SecretKey        string   `json:"secret_key"`
	BlockUnknown     bool     `json:"block_unknown"`
	AutoAcceptCalls  bool     `json:"auto_accept_calls"`
	Addresses        []string `json:"addresses"`
	ICEServers       []string `json:"ice_servers"`
	ConnectTimeoutMS int64    `json:"connect_timeout_ms"`
	MaxEvents        int      `json:"max_events"`
}

type savedContact struct {
	Name               string   `json:"name"`
	PublicKey          string   `json:"public_key"`
	Addresses          []string `json:"addresses"`
	Blocked            bool     `json:"blocked"`
	LastWorkingAddress string   `json:"last_working_address,omitempty"`
}

type savedEvent struct {
	PublicKey string    `json:"public_key"`
	Address   string    `json:"address"`
	Type      EventType `json:"type"`
	Date      time.Time `json:"date"`
}

// Serialize encodes the database as JSON.
func (d *Database) Serialize() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc := savedDatabase{
		Version: CurrentVersion,
		Settings: savedSettings{
			Username:         d.settings.Username,
			PublicKey:        hex.EncodeToString(d.settings.PublicKey[:]),
			SecretKey:        hex.EncodeToString(d.settings.SecretKey[:]),
			BlockUnknown:     d.settings.BlockUnknown,
			AutoAcceptCalls:  d.settings.AutoAcceptCalls,
			Addresses:        d.settings.Addresses,
			ICEServers:       d.settings.ICEServers,
			ConnectTimeoutMS: d.settings.ConnectTimeout.Milliseconds(),
			MaxEvents:        d.settings.MaxEvents,
		},
		Contacts: make([]savedContact, 0, len(d.contacts)),
		Events:   make([]savedEvent, 0, len(d.events)),
	}

	for _, c := range d.contacts {
		doc.Contacts = append(doc.Contacts, savedContact{
			Name:               c.Name,
			PublicKey:          crypto.FormatPublicKey(c.PublicKey),
			Addresses:          c.Addresses,
			Blocked:            c.Blocked,
			LastWorkingAddress: c.LastWorkingAddress,
		})
	}
	for _, e := range d.events {
		doc.Events = append(doc.Events, savedEvent{
			PublicKey: crypto.FormatPublicKey(e.PublicKey),
			Address:   e.Address,
			Type:      e.Type,
			Date:      e.Date,
		})
	}

	return json.MarshalIndent(doc, "", "  ")
}

// Deserialize decodes a JSON document produced by Serialize.
func Deserialize(data []byte) (*Database, error) {
	var doc savedDatabase
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode database: %w", err)
	}
	if doc.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Version)
	}

	settings, err := doc.Settings.toSettings()
	if err != nil {
		return nil, err
	}

	d := &Database{settings: settings}

	for _, sc := range doc.Contacts {
		public, err := crypto.ParsePublicKey(sc.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("contact %q: %w", sc.Name, err)
		}
		d.contacts = append(d.contacts, Contact{
			Name:               sc.Name,
			PublicKey:          public,
			Addresses:          sc.Addresses,
			Blocked:            sc.Blocked,
			LastWorkingAddress: sc.LastWorkingAddress,
		})
	}

	for _, se := range doc.Events {
		public, err := crypto.ParsePublicKey(se.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("event: %w", err)
		}
		d.events = append(d.events, Event{
			PublicKey: public,
			Address:   se.Address,
			Type:      se.Type,
			Date:      se.Date,
		})
	}

	return d, nil
}

func (s savedSettings) toSettings() (Settings, error) {
	var settings Settings

	public, err := crypto.ParsePublicKey(s.PublicKey)
	if err != nil {
		return settings, fmt.Errorf("settings: %w", err)
	}
	secret, err := hex.DecodeString(s.SecretKey)
	if err != nil || len(secret) != len(settings.SecretKey) {
		return settings, fmt.Errorf("settings: malformed secret key")
	}
	defer crypto.ZeroBytes(secret)

	// The secret key embeds the public key; a mismatch means a corrupted file.
	restored, err := crypto.KeyPairFromSeed([32]byte(secret[:32]))
	if err != nil || restored.Public != public {
		return settings, fmt.Errorf("settings: secret key does not match public key")
	}

	settings = Settings{
		Username:        s.Username,
		PublicKey:       public,
		SecretKey:       restored.Secret,
		BlockUnknown:    s.BlockUnknown,
		AutoAcceptCalls: s.AutoAcceptCalls,
		Addresses:       s.Addresses,
		ICEServers:      s.ICEServers,
		ConnectTimeout:  time.Duration(s.ConnectTimeoutMS) * time.Millisecond,
		MaxEvents:       s.MaxEvents,
	}
	crypto.WipeKeyPair(restored)
	settings.applyDefaults()

	return settings, nil
}
