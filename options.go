package peercall

import (
	"time"

	"github.com/opd-ai/peercall/call"
	"github.com/opd-ai/peercall/transport"
)

// DefaultDatabaseFile is the database file name inside DataDir.
const DefaultDatabaseFile = "database.json"

// Options contains configuration options for creating a PeerCall instance.
type Options struct {
	// DataDir holds the database file. It is created if missing.
	DataDir      string
	DatabaseFile string
	// Password encrypts the database. Empty stores it in plain JSON.
	Password []byte
	// Username is used when a new database is created.
	Username string

	// ListenAddr is the TCP address the signaling listener binds.
	ListenAddr string
	// Port is assumed for contact addresses without an explicit port.
	Port int

	RingTimeout time.Duration
	// ConnectTimeout overrides the database setting when non-zero.
	ConnectTimeout time.Duration
	// RateLimit is the number of connections accepted per remote IP per
	// minute. Zero disables the limit.
	RateLimit uint64

	// ICEServers overrides the database setting when non-empty.
	ICEServers []string
	// MediaEngine replaces the WebRTC engine, mainly for tests.
	MediaEngine call.MediaEngine
	// UseSimulation selects the in-memory media engine when MediaEngine is
	// nil. PEERCALL_MEDIA_SIMULATION=true has the same effect.
	UseSimulation bool
	TimeProvider  call.TimeProvider
}

// NewOptions creates a new Options instance with default values.
func NewOptions() *Options {
	return &Options{
		DataDir:      ".",
		DatabaseFile: DefaultDatabaseFile,
		ListenAddr:   ":10001",
		Port:         transport.DefaultPort,
		RingTimeout:  call.DefaultRingTimeout,
		RateLimit:    10,
	}
}
