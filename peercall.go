package peercall

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/opd-ai/peercall/call"
	"github.com/opd-ai/peercall/crypto"
	"github.com/opd-ai/peercall/database"
	"github.com/opd-ai/peercall/factory"
	"github.com/opd-ai/peercall/transport"
	"github.com/sirupsen/logrus"
)

// PeerCall represents a running peer: identity, contacts, listener and calls.
type PeerCall struct {
	options *Options
	dbPath  string
	db      *database.Database
	manager *call.Manager

	mu       sync.Mutex
	listener *transport.Listener
	stopped  bool
}

// New creates a PeerCall instance, loading the database from
// options.DataDir or creating a fresh identity when none exists.
//
// Parameters:
//   - options: Configuration, or nil for NewOptions()
//
// Returns:
//   - *PeerCall: The new instance, not yet listening
//   - error: The database could not be loaded or the engine not built
func New(options *Options) (*PeerCall, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.DatabaseFile == "" {
		options.DatabaseFile = DefaultDatabaseFile
	}

	dbPath := filepath.Join(options.DataDir, options.DatabaseFile)
	db, err := openDatabase(dbPath, options)
	if err != nil {
		return nil, err
	}

	settings := db.Settings()
	engine := options.MediaEngine
	if engine == nil {
		servers := options.ICEServers
		if len(servers) == 0 {
			servers = settings.ICEServers
		}
		f := factory.NewMediaEngineFactory()
		e, err := f.CreateMediaEngine(&factory.MediaEngineConfig{
			UseSimulation: options.UseSimulation || f.IsUsingSimulation(),
			ICEServers:    servers,
		})
		if err != nil {
			return nil, err
		}
		engine = e
	}

	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = settings.ConnectTimeout
	}

	kp := db.KeyPair()
	defer crypto.WipeKeyPair(kp)

	manager, err := call.NewManager(call.ManagerConfig{
		KeyPair:        kp,
		Contacts:       db,
		Events:         db,
		MediaEngine:    engine,
		Port:           options.Port,
		ConnectTimeout: connectTimeout,
		RingTimeout:    options.RingTimeout,
		TimeProvider:   options.TimeProvider,
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "New",
		"database":   dbPath,
		"public_key": crypto.KeyPreview(settings.PublicKey),
		"encrypted":  len(options.Password) > 0,
	}).Info("PeerCall instance created")

	return &PeerCall{
		options: options,
		dbPath:  dbPath,
		db:      db,
		manager: manager,
	}, nil
}

// openDatabase loads the database at path or creates and saves a new one.
func openDatabase(path string, options *Options) (*database.Database, error) {
	db, err := database.Load(path, options.Password)
	if err == nil {
		return db, nil
	}
	if !database.IsNotExist(err) {
		return nil, fmt.Errorf("load database: %w", err)
	}

	db, err = database.New(options.Username)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := db.Save(path, options.Password); err != nil {
		return nil, fmt.Errorf("save new database: %w", err)
	}
	return db, nil
}

// Start begins accepting signaling connections.
func (p *PeerCall) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.listener != nil {
		return ErrAlreadyRunning
	}

	opts := transport.DefaultListenerOptions()
	opts.RateLimitTokens = p.options.RateLimit
	opts.RateLimitInterval = time.Minute

	l, err := transport.Listen(p.options.ListenAddr, p.manager.HandleConn, opts)
	if err != nil {
		return err
	}
	p.listener = l

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"address":  l.Addr().String(),
	}).Info("Listening for calls")

	return nil
}

// Addr returns the listener address, or nil before Start.
func (p *PeerCall) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop ends the active call, closes the listener and saves the database.
// A stopped instance cannot be started again.
func (p *PeerCall) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	l := p.listener
	p.listener = nil
	p.mu.Unlock()

	if err := p.manager.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Stop",
			"error":    err.Error(),
		}).Warn("Hangup on stop failed")
	}
	if l != nil {
		if err := l.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Stop",
				"error":    err.Error(),
			}).Warn("Listener close failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Stop",
	}).Info("PeerCall stopped")

	return p.Save()
}

// Save writes the database to disk.
func (p *PeerCall) Save() error {
	return p.db.Save(p.dbPath, p.options.Password)
}

// Database returns the underlying database.
func (p *PeerCall) Database() *database.Database {
	return p.db
}

// PublicKey returns the own public key.
func (p *PeerCall) PublicKey() [32]byte {
	return p.db.Settings().PublicKey
}

// OwnContact returns the contact other peers need to call this instance.
// When no addresses are configured the local interface addresses are used,
// with the listening port appended when it is not the default.
func (p *PeerCall) OwnContact() (database.Contact, error) {
	own := p.db.OwnContact()
	if len(own.Addresses) > 0 {
		return own, nil
	}

	hosts, err := transport.LocalAddresses()
	if err != nil {
		return own, err
	}

	port := p.listenPort()
	for _, host := range hosts {
		if port == 0 || port == transport.DefaultPort {
			own.Addresses = append(own.Addresses, host)
			continue
		}
		own.Addresses = append(own.Addresses, net.JoinHostPort(host, strconv.Itoa(port)))
	}
	return own, nil
}

func (p *PeerCall) listenPort() int {
	if addr, ok := p.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	_, portStr, err := net.SplitHostPort(p.options.ListenAddr)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

func (p *PeerCall) contact(name string) (database.Contact, error) {
	c, ok := p.db.ContactByName(name)
	if !ok {
		return database.Contact{}, fmt.Errorf("%w: %q", ErrUnknownContact, name)
	}
	return c, nil
}

// Call places a call to the contact with the given name.
func (p *PeerCall) Call(ctx context.Context, name string) (*call.Call, error) {
	c, err := p.contact(name)
	if err != nil {
		return nil, err
	}
	return p.manager.Call(ctx, c)
}

// Ping reports whether the named contact is online.
func (p *PeerCall) Ping(ctx context.Context, name string) (bool, error) {
	c, err := p.contact(name)
	if err != nil {
		return false, err
	}
	return p.manager.Ping(ctx, c)
}

// ActiveCall returns the call in progress, or nil.
func (p *PeerCall) ActiveCall() *call.Call {
	return p.manager.ActiveCall()
}

// OnIncomingCall sets the callback for incoming calls.
func (p *PeerCall) OnIncomingCall(cb call.IncomingCallback) {
	p.manager.OnIncomingCall(cb)
}

// OnCallState sets the callback for call state changes.
func (p *PeerCall) OnCallState(cb call.StateCallback) {
	p.manager.OnCallState(cb)
}

// OnPeerCamera sets the callback for the peer's camera status.
func (p *PeerCall) OnPeerCamera(cb call.PeerCameraCallback) {
	p.manager.OnPeerCamera(cb)
}
