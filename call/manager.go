package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/peercall/crypto"
	"github.com/opd-ai/peercall/database"
	"github.com/opd-ai/peercall/transport"
	"github.com/sirupsen/logrus"
)

// UnknownContactName is the name given to callers that are not contacts.
const UnknownContactName = "Unknown"

// Default manager timeouts.
const (
	DefaultRingTimeout     = 60 * time.Second
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 5 * time.Second
	DefaultDisconnectGrace = 5 * time.Second
)

// StateCallback is invoked for every accepted state transition of a call.
type StateCallback func(c *Call, state CallState)

// IncomingCallback is invoked when an incoming call starts ringing.
type IncomingCallback func(c *Call)

// PeerCameraCallback is invoked when the peer turns its camera on or off.
type PeerCameraCallback func(c *Call, enabled bool)

// ContactDirectory resolves peers and call policy. *database.Database
// satisfies it.
type ContactDirectory interface {
	ContactByPublicKey(public [32]byte) (database.Contact, bool)
	SetLastWorkingAddress(public [32]byte, address string) error
	Settings() database.Settings
}

// EventRecorder stores call history. *database.Database satisfies it.
type EventRecorder interface {
	AddEvent(e database.Event)
}

// ManagerConfig configures a Manager. Zero durations select the defaults.
type ManagerConfig struct {
	KeyPair     *crypto.KeyPair
	Contacts    ContactDirectory
	Events      EventRecorder
	MediaEngine MediaEngine

	// Port is used for contact addresses without an explicit port.
	Port int
	// ConnectTimeout bounds each connection attempt to a contact address.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for the first packet of an incoming
	// connection and for replies that are not subject to ringing.
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RingTimeout     time.Duration
	DisconnectGrace time.Duration

	TimeProvider TimeProvider
}

func (cfg *ManagerConfig) applyDefaults() {
	if cfg.Port <= 0 {
		cfg.Port = transport.DefaultPort
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = database.DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = DefaultRingTimeout
	}
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = DefaultDisconnectGrace
	}
	if cfg.TimeProvider == nil {
		cfg.TimeProvider = DefaultTimeProvider{}
	}
}

// Manager places and receives calls. At most one call is active at a time.
type Manager struct {
	cfg      ManagerConfig
	keyPair  *crypto.KeyPair
	contacts ContactDirectory
	events   EventRecorder
	engine   MediaEngine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu                 sync.RWMutex
	active             *Call
	closed             bool
	stateCallback      StateCallback
	incomingCallback   IncomingCallback
	peerCameraCallback PeerCameraCallback
}

// NewManager creates a call manager.
//
// Parameters:
//   - cfg: identity, contact directory, media engine and timeouts
//
// Returns:
//   - *Manager: The new manager instance
//   - error: A required collaborator is missing
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.KeyPair == nil {
		return nil, errors.New("key pair cannot be nil")
	}
	if cfg.Contacts == nil {
		return nil, errors.New("contact directory cannot be nil")
	}
	if cfg.MediaEngine == nil {
		return nil, errors.New("media engine cannot be nil")
	}
	cfg.applyDefaults()

	kp := *cfg.KeyPair
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:      cfg,
		keyPair:  &kp,
		contacts: cfg.Contacts,
		events:   cfg.Events,
		engine:   cfg.MediaEngine,
		ctx:      ctx,
		cancel:   cancel,
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewManager",
		"public_key":   crypto.KeyPreview(kp.Public),
		"ring_timeout": cfg.RingTimeout,
		"port":         cfg.Port,
	}).Info("Call manager created")

	return m, nil
}

func (m *Manager) now() time.Time {
	return m.cfg.TimeProvider.Now()
}

func (m *Manager) afterFunc(d time.Duration, f func()) Timer {
	return m.cfg.TimeProvider.AfterFunc(d, f)
}

// OnCallState registers the state change callback, or nil to unregister.
func (m *Manager) OnCallState(cb StateCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCallback = cb
}

// OnIncomingCall registers the incoming call callback, or nil to unregister.
func (m *Manager) OnIncomingCall(cb IncomingCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incomingCallback = cb
}

// OnPeerCamera registers the peer camera callback, or nil to unregister.
func (m *Manager) OnPeerCamera(cb PeerCameraCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerCameraCallback = cb
}

func (m *Manager) notifyState(c *Call, state CallState) {
	m.mu.RLock()
	cb := m.stateCallback
	m.mu.RUnlock()
	if cb != nil {
		cb(c, state)
	}
}

func (m *Manager) notifyIncoming(c *Call) {
	m.mu.RLock()
	cb := m.incomingCallback
	m.mu.RUnlock()
	if cb != nil {
		cb(c)
	}
}

func (m *Manager) notifyPeerCamera(c *Call, enabled bool) {
	m.mu.RLock()
	cb := m.peerCameraCallback
	m.mu.RUnlock()
	if cb != nil {
		cb(c, enabled)
	}
}

func (m *Manager) recordEvent(e database.Event) {
	if m.events == nil {
		return
	}
	m.events.AddEvent(e)
}

// ActiveCall returns the call in progress, or nil.
func (m *Manager) ActiveCall() *Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// claim makes c the active call.
func (m *Manager) claim(c *Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if m.active != nil {
		return ErrCallAlreadyActive
	}
	m.active = c
	return nil
}

// release clears the active call slot if c holds it.
func (m *Manager) release(c *Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == c {
		m.active = nil
	}
}

// Call places an outgoing call. It returns once the call is in
// CallStateConnecting; dialing and signaling continue in the background.
// ctx bounds offer creation and dialing.
//
// Parameters:
//   - ctx: Cancels call setup
//   - contact: The peer to call
//
// Returns:
//   - *Call: The new call
//   - error: ErrCallAlreadyActive, ErrContactBlocked, ErrManagerClosed
func (m *Manager) Call(ctx context.Context, contact database.Contact) (*Call, error) {
	if contact.Blocked {
		return nil, ErrContactBlocked
	}
	addresses := contact.DialOrder()
	if len(addresses) == 0 {
		return nil, fmt.Errorf("%w: contact %q has no addresses", transport.ErrNoReachableAddress, contact.Name)
	}

	c := newCall(m, Outgoing, contact, addresses[0])
	if err := m.claim(c); err != nil {
		c.dispatcher.close()
		return nil, err
	}

	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	c.mu.Lock()
	c.cancel = func() {
		stop()
		cancel()
	}
	c.mu.Unlock()

	if err := c.transition(CallStateConnecting, nil); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Call",
		"call_id":   c.id,
		"contact":   contact.Name,
		"addresses": len(addresses),
	}).Info("Placing call")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.runOutgoing(callCtx)
	}()

	return c, nil
}

// Ping checks whether a contact is online.
func (m *Manager) Ping(ctx context.Context, contact database.Contact) (bool, error) {
	conn, addr, err := transport.DialAny(ctx, contact.DialOrder(), m.cfg.Port, m.cfg.ConnectTimeout)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	conn.SetTimeouts(m.cfg.ReadTimeout, m.cfg.WriteTimeout)

	ch := NewSignalingChannel(conn, m.keyPair, contact.PublicKey)
	if err := ch.Send(Message{Action: ActionPing}); err != nil {
		return false, err
	}
	reply, err := ch.Receive()
	if err != nil {
		return false, err
	}

	_ = m.contacts.SetLastWorkingAddress(contact.PublicKey, addr)

	logrus.WithFields(logrus.Fields{
		"function": "Ping",
		"contact":  contact.Name,
		"address":  addr,
		"reply":    reply.Action,
	}).Debug("Ping answered")

	return reply.Action == ActionOnline, nil
}

// Close hangs up the active call, refuses new calls and waits for call
// goroutines to finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	active := m.active
	m.mu.Unlock()

	var err error
	if active != nil {
		err = active.Hangup()
	}
	m.cancel()
	m.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Info("Call manager closed")

	return err
}
