package call_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/peercall/call"
	"github.com/opd-ai/peercall/database"
	simtest "github.com/opd-ai/peercall/testing"
	"github.com/opd-ai/peercall/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

type peer struct {
	name     string
	db       *database.Database
	mgr      *call.Manager
	listener *transport.Listener
	incoming chan *call.Call

	mu     sync.Mutex
	states []call.CallState
	camera []bool
}

func newPeer(t *testing.T, engine call.MediaEngine, name string, tweak func(cfg *call.ManagerConfig)) *peer {
	t.Helper()

	db, err := database.New(name)
	require.NoError(t, err)

	cfg := call.ManagerConfig{
		KeyPair:        db.KeyPair(),
		Contacts:       db,
		Events:         db,
		MediaEngine:    engine,
		ConnectTimeout: time.Second,
		ReadTimeout:    2 * time.Second,
		RingTimeout:    waitTimeout,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	mgr, err := call.NewManager(cfg)
	require.NoError(t, err)

	opts := transport.DefaultListenerOptions()
	opts.RateLimitTokens = 0
	l, err := transport.Listen("127.0.0.1:0", mgr.HandleConn, opts)
	require.NoError(t, err)

	p := &peer{
		name:     name,
		db:       db,
		mgr:      mgr,
		listener: l,
		incoming: make(chan *call.Call, 4),
	}
	mgr.OnIncomingCall(func(c *call.Call) { p.incoming <- c })
	mgr.OnCallState(func(_ *call.Call, s call.CallState) {
		p.mu.Lock()
		p.states = append(p.states, s)
		p.mu.Unlock()
	})
	mgr.OnPeerCamera(func(_ *call.Call, enabled bool) {
		p.mu.Lock()
		p.camera = append(p.camera, enabled)
		p.mu.Unlock()
	})

	t.Cleanup(func() {
		_ = mgr.Close()
		_ = l.Close()
	})
	return p
}

func (p *peer) public() [32]byte {
	return p.db.Settings().PublicKey
}

func (p *peer) address() string {
	return p.listener.Addr().String()
}

// knows adds other to p's contacts and returns the stored contact.
func (p *peer) knows(t *testing.T, other *peer) database.Contact {
	t.Helper()
	c := database.Contact{Name: other.name, PublicKey: other.public(), Addresses: []string{other.address()}}
	require.NoError(t, p.db.AddContact(c))
	stored, ok := p.db.ContactByPublicKey(other.public())
	require.True(t, ok)
	return stored
}

func (p *peer) nextIncoming(t *testing.T) *call.Call {
	t.Helper()
	select {
	case c := <-p.incoming:
		return c
	case <-time.After(waitTimeout):
		t.Fatalf("%s: no incoming call", p.name)
		return nil
	}
}

func (p *peer) eventTypes(other *peer) []database.EventType {
	var types []database.EventType
	for _, e := range p.db.EventsFor(other.public()) {
		types = append(types, e.Type)
	}
	return types
}

func waitState(t *testing.T, c *call.Call, want call.CallState) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, waitTimeout, 5*time.Millisecond,
		"call %s stuck in %s, want %s", c.ID(), c.State(), want)
}

func waitDone(t *testing.T, c *call.Call) call.CallState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	state, err := c.Wait(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "call %s did not finish (state %s)", c.ID(), state)
	return state
}

// connect places a call from a to b and has b accept it.
func connect(t *testing.T, a, b *peer) (*call.Call, *call.Call) {
	t.Helper()
	contact := a.knows(t, b)
	b.knows(t, a)

	out, err := a.mgr.Call(context.Background(), contact)
	require.NoError(t, err)

	in := b.nextIncoming(t)
	require.NoError(t, in.Accept(context.Background()))

	waitState(t, out, call.CallStateConnected)
	waitState(t, in, call.CallStateConnected)
	return out, in
}

func TestCallAcceptAndHangup(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)

	out, in := connect(t, alice, bob)

	assert.Equal(t, call.Outgoing, out.Direction())
	assert.Equal(t, call.Incoming, in.Direction())
	assert.Equal(t, "alice", in.Contact().Name)
	assert.Equal(t, bob.address(), out.Address())
	assert.False(t, out.ConnectedAt().IsZero())
	assert.Same(t, out, alice.mgr.ActiveCall())

	require.NoError(t, out.Hangup())
	assert.Equal(t, call.CallStateEnded, waitDone(t, out))
	assert.Equal(t, call.CallStateEnded, waitDone(t, in))
	assert.Nil(t, alice.mgr.ActiveCall())
	require.Eventually(t, func() bool { return bob.mgr.ActiveCall() == nil }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, []database.EventType{database.OutgoingAccepted}, alice.eventTypes(bob))
	assert.Equal(t, []database.EventType{database.IncomingAccepted}, bob.eventTypes(alice))

	stored, _ := alice.db.ContactByPublicKey(bob.public())
	assert.Equal(t, bob.address(), stored.LastWorkingAddress)

	// Hanging up twice is harmless.
	assert.NoError(t, out.Hangup())
}

func TestCallStateCallbacksInOrder(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)

	out, in := connect(t, alice, bob)
	require.NoError(t, in.Hangup())
	waitDone(t, out)
	waitDone(t, in)

	want := []call.CallState{call.CallStateConnecting, call.CallStateRinging, call.CallStateConnected, call.CallStateEnded}
	require.Eventually(t, func() bool {
		alice.mu.Lock()
		defer alice.mu.Unlock()
		return len(alice.states) == len(want)
	}, waitTimeout, 5*time.Millisecond)

	alice.mu.Lock()
	defer alice.mu.Unlock()
	assert.Equal(t, want, alice.states)
}

func TestCallDeclined(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)
	contact := alice.knows(t, bob)
	bob.knows(t, alice)

	out, err := alice.mgr.Call(context.Background(), contact)
	require.NoError(t, err)

	in := bob.nextIncoming(t)
	require.NoError(t, in.Decline())

	assert.Equal(t, call.CallStateDismissed, waitDone(t, out))
	assert.Equal(t, call.CallStateDismissed, waitDone(t, in))
	assert.Equal(t, []database.EventType{database.OutgoingDeclined}, alice.eventTypes(bob))
	assert.Equal(t, []database.EventType{database.IncomingDeclined}, bob.eventTypes(alice))

	assert.ErrorIs(t, in.Accept(context.Background()), call.ErrInvalidTransition)
	assert.ErrorIs(t, out.Decline(), call.ErrNotIncoming)
}

func TestRingTimeout(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", func(cfg *call.ManagerConfig) {
		cfg.RingTimeout = 100 * time.Millisecond
	})
	contact := alice.knows(t, bob)

	out, err := alice.mgr.Call(context.Background(), contact)
	require.NoError(t, err)
	in := bob.nextIncoming(t)

	assert.Equal(t, call.CallStateEnded, waitDone(t, in))
	assert.Equal(t, call.CallStateDismissed, waitDone(t, out))
	assert.Equal(t, []database.EventType{database.IncomingMissed}, bob.eventTypes(alice))
	assert.Equal(t, []database.EventType{database.OutgoingDeclined}, alice.eventTypes(bob))
}

func TestCallerHangsUpWhileRinging(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)
	contact := alice.knows(t, bob)
	bob.knows(t, alice)

	out, err := alice.mgr.Call(context.Background(), contact)
	require.NoError(t, err)
	in := bob.nextIncoming(t)
	waitState(t, out, call.CallStateRinging)

	require.NoError(t, out.Hangup())
	assert.Equal(t, call.CallStateEnded, waitDone(t, out))
	assert.Equal(t, call.CallStateEnded, waitDone(t, in))
	assert.Equal(t, []database.EventType{database.OutgoingMissed}, alice.eventTypes(bob))
	assert.Equal(t, []database.EventType{database.IncomingMissed}, bob.eventTypes(alice))
}

func TestUnknownCaller(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)
	contact := alice.knows(t, bob)

	out, err := alice.mgr.Call(context.Background(), contact)
	require.NoError(t, err)

	in := bob.nextIncoming(t)
	assert.Equal(t, call.UnknownContactName, in.Contact().Name)
	assert.Equal(t, alice.public(), in.Contact().PublicKey)
	assert.Equal(t, "127.0.0.1", in.Address())

	require.NoError(t, in.Decline())
	waitDone(t, out)
}

func TestBlockUnknownDropsCaller(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)
	bob.db.UpdateSettings(func(s *database.Settings) { s.BlockUnknown = true })
	contact := alice.knows(t, bob)

	out, err := alice.mgr.Call(context.Background(), contact)
	require.NoError(t, err)

	assert.Equal(t, call.CallStateError, waitDone(t, out))
	assert.Error(t, out.Err())
	assert.Equal(t, []database.EventType{database.OutgoingError}, alice.eventTypes(bob))
	assert.Empty(t, bob.db.Events())
	assert.Empty(t, bob.incoming)
}

func TestBlockedContactDropped(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)
	contact := alice.knows(t, bob)
	bob.knows(t, alice)
	require.NoError(t, bob.db.SetBlocked(alice.public(), true))

	out, err := alice.mgr.Call(context.Background(), contact)
	require.NoError(t, err)

	assert.Equal(t, call.CallStateError, waitDone(t, out))
	assert.Empty(t, bob.db.Events())
}

func TestCallBlockedContactRefused(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)
	contact := alice.knows(t, bob)
	contact.Blocked = true

	_, err := alice.mgr.Call(context.Background(), contact)
	assert.ErrorIs(t, err, call.ErrContactBlocked)

	contact.Blocked = false
	contact.Addresses = nil
	_, err = alice.mgr.Call(context.Background(), contact)
	assert.ErrorIs(t, err, transport.ErrNoReachableAddress)
}

func TestSecondCallRejectedLocally(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)
	carol := newPeer(t, engine, "carol", nil)

	out, _ := connect(t, alice, bob)
	_, err := alice.mgr.Call(context.Background(), alice.knows(t, carol))
	assert.ErrorIs(t, err, call.ErrCallAlreadyActive)
	assert.Equal(t, call.CallStateConnected, out.State())
}

func TestBusyCalleeDismisses(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)
	carol := newPeer(t, engine, "carol", nil)

	connect(t, alice, bob)

	busy, err := carol.mgr.Call(context.Background(), carol.knows(t, bob))
	require.NoError(t, err)
	assert.Equal(t, call.CallStateDismissed, waitDone(t, busy))
	assert.Equal(t, []database.EventType{database.OutgoingDeclined}, carol.eventTypes(bob))
	assert.Equal(t, []database.EventType{database.IncomingMissed}, bob.eventTypes(carol))
}

func TestUnreachableContact(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().String()
	require.NoError(t, ln.Close())

	contact := database.Contact{Name: "bob", PublicKey: bob.public(), Addresses: []string{dead}}
	require.NoError(t, alice.db.AddContact(contact))

	out, err := alice.mgr.Call(context.Background(), contact)
	require.NoError(t, err)
	assert.Equal(t, call.CallStateError, waitDone(t, out))
	assert.ErrorIs(t, out.Err(), transport.ErrNoReachableAddress)
	assert.Equal(t, []database.EventType{database.OutgoingError}, alice.eventTypes(bob))
	assert.Nil(t, alice.mgr.ActiveCall())
}

func TestMediaSessionFailure(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)
	contact := alice.knows(t, bob)

	engine.FailNextSession(errors.New("no audio device"))
	out, err := alice.mgr.Call(context.Background(), contact)
	require.NoError(t, err)
	assert.Equal(t, call.CallStateError, waitDone(t, out))
	assert.ErrorContains(t, out.Err(), "no audio device")
}

func TestMediaFailureAfterConnect(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)

	out, in := connect(t, alice, bob)

	var offerer *simtest.SimulatedSession
	for _, s := range engine.Sessions() {
		if s.Offerer() {
			offerer = s
		}
	}
	require.NotNil(t, offerer)
	offerer.SimulateState(call.MediaStateFailed)

	assert.Equal(t, call.CallStateError, waitDone(t, out))
	assert.Equal(t, call.CallStateEnded, waitDone(t, in))
	// The accepted event stays the only history entry.
	assert.Equal(t, []database.EventType{database.OutgoingAccepted}, alice.eventTypes(bob))
}

func TestPeerCamera(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)

	out, in := connect(t, alice, bob)
	require.NoError(t, out.SetCameraEnabled(true))
	require.NoError(t, out.SetCameraEnabled(false))

	require.Eventually(t, func() bool {
		bob.mu.Lock()
		defer bob.mu.Unlock()
		return len(bob.camera) == 2
	}, waitTimeout, 5*time.Millisecond)

	bob.mu.Lock()
	assert.Equal(t, []bool{true, false}, bob.camera)
	bob.mu.Unlock()
	assert.False(t, in.PeerCameraEnabled())
}

func TestSetCameraBeforeConnect(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)

	out, err := alice.mgr.Call(context.Background(), alice.knows(t, bob))
	require.NoError(t, err)
	in := bob.nextIncoming(t)

	assert.ErrorIs(t, in.SetCameraEnabled(true), call.ErrNotConnected)
	require.NoError(t, in.Decline())
	waitDone(t, out)
}

func TestAutoAccept(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)
	bob.db.UpdateSettings(func(s *database.Settings) { s.AutoAcceptCalls = true })

	out, err := alice.mgr.Call(context.Background(), alice.knows(t, bob))
	require.NoError(t, err)
	waitState(t, out, call.CallStateConnected)

	in := bob.nextIncoming(t)
	waitState(t, in, call.CallStateConnected)
}

func TestPing(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)
	contact := alice.knows(t, bob)

	online, err := alice.mgr.Ping(context.Background(), contact)
	require.NoError(t, err)
	assert.True(t, online)
	assert.Empty(t, bob.db.Events())

	require.NoError(t, bob.listener.Close())
	_, err = alice.mgr.Ping(context.Background(), contact)
	assert.ErrorIs(t, err, transport.ErrNoReachableAddress)
}

func TestManagerCloseEndsCall(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", nil)

	out, in := connect(t, alice, bob)
	require.NoError(t, alice.mgr.Close())

	assert.Equal(t, call.CallStateEnded, waitDone(t, out))
	assert.Equal(t, call.CallStateEnded, waitDone(t, in))

	_, err := alice.mgr.Call(context.Background(), alice.knows(t, newPeer(t, engine, "carol", nil)))
	assert.ErrorIs(t, err, call.ErrManagerClosed)
}

func TestNewManagerValidation(t *testing.T) {
	db, err := database.New("x")
	require.NoError(t, err)
	engine := simtest.NewSimulatedMediaEngine()

	_, err = call.NewManager(call.ManagerConfig{Contacts: db, MediaEngine: engine})
	assert.Error(t, err)
	_, err = call.NewManager(call.ManagerConfig{KeyPair: db.KeyPair(), MediaEngine: engine})
	assert.Error(t, err)
	_, err = call.NewManager(call.ManagerConfig{KeyPair: db.KeyPair(), Contacts: db})
	assert.Error(t, err)
}

// gatedEngine holds answering sessions in CreateAnswer until released or
// until the answer context ends, like ICE gathering on a slow network.
type gatedEngine struct {
	call.MediaEngine
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedEngine(inner call.MediaEngine) *gatedEngine {
	return &gatedEngine{MediaEngine: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (e *gatedEngine) NewSession(cfg call.SessionConfig) (call.MediaSession, error) {
	s, err := e.MediaEngine.NewSession(cfg)
	if err != nil || cfg.Offerer {
		return s, err
	}
	return &gatedSession{MediaSession: s, engine: e}, nil
}

type gatedSession struct {
	call.MediaSession
	engine *gatedEngine
}

func (s *gatedSession) CreateAnswer(ctx context.Context, offer string) (string, error) {
	s.engine.once.Do(func() { close(s.engine.entered) })
	select {
	case <-s.engine.release:
	case <-ctx.Done():
	}
	return s.MediaSession.CreateAnswer(ctx, offer)
}

func TestCallerHangsUpWhileAnswering(t *testing.T) {
	sim := simtest.NewSimulatedMediaEngine()
	gated := newGatedEngine(sim)
	defer close(gated.release)

	alice := newPeer(t, sim, "alice", nil)
	bob := newPeer(t, gated, "bob", nil)
	bob.knows(t, alice)

	out, err := alice.mgr.Call(context.Background(), alice.knows(t, bob))
	require.NoError(t, err)
	in := bob.nextIncoming(t)
	waitState(t, out, call.CallStateRinging)

	accepted := make(chan error, 1)
	go func() { accepted <- in.Accept(context.Background()) }()

	select {
	case <-gated.entered:
	case <-time.After(waitTimeout):
		t.Fatal("answer never started")
	}
	require.NoError(t, out.Hangup())

	select {
	case err := <-accepted:
		assert.ErrorIs(t, err, call.ErrCallerHungUp)
	case <-time.After(waitTimeout):
		t.Fatal("Accept did not return after the caller left")
	}

	assert.Equal(t, call.CallStateEnded, waitDone(t, out))
	assert.Equal(t, call.CallStateEnded, waitDone(t, in))
	assert.Equal(t, []database.EventType{database.OutgoingMissed}, alice.eventTypes(bob))
	assert.Equal(t, []database.EventType{database.IncomingMissed}, bob.eventTypes(alice))
	assert.Nil(t, bob.mgr.ActiveCall())
}

func offererSession(t *testing.T, engine *simtest.SimulatedMediaEngine) *simtest.SimulatedSession {
	t.Helper()
	for _, s := range engine.Sessions() {
		if s.Offerer() {
			return s
		}
	}
	t.Fatal("no offering session")
	return nil
}

func TestDisconnectWithinGraceKeepsCall(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	grace := func(cfg *call.ManagerConfig) { cfg.DisconnectGrace = 100 * time.Millisecond }
	alice := newPeer(t, engine, "alice", grace)
	bob := newPeer(t, engine, "bob", grace)

	out, in := connect(t, alice, bob)
	session := offererSession(t, engine)

	session.SimulateState(call.MediaStateDisconnected)
	session.SimulateState(call.MediaStateConnected)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, call.CallStateConnected, out.State())
	assert.Equal(t, call.CallStateConnected, in.State())

	require.NoError(t, out.Hangup())
	waitDone(t, in)
}

func TestDisconnectPastGraceEndsCall(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	grace := func(cfg *call.ManagerConfig) { cfg.DisconnectGrace = 50 * time.Millisecond }
	alice := newPeer(t, engine, "alice", grace)
	bob := newPeer(t, engine, "bob", grace)

	out, in := connect(t, alice, bob)
	offererSession(t, engine).SimulateState(call.MediaStateDisconnected)

	assert.Equal(t, call.CallStateEnded, waitDone(t, out))
	assert.Equal(t, call.CallStateEnded, waitDone(t, in))
	assert.Equal(t, []database.EventType{database.OutgoingAccepted}, alice.eventTypes(bob))
	assert.Nil(t, alice.mgr.ActiveCall())
}

func TestRingTimeoutFollowsTimeProvider(t *testing.T) {
	engine := simtest.NewSimulatedMediaEngine()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := simtest.NewManualClock(start)

	alice := newPeer(t, engine, "alice", nil)
	bob := newPeer(t, engine, "bob", func(cfg *call.ManagerConfig) {
		cfg.RingTimeout = time.Minute
		cfg.TimeProvider = clock
	})

	out, err := alice.mgr.Call(context.Background(), alice.knows(t, bob))
	require.NoError(t, err)
	in := bob.nextIncoming(t)
	assert.Equal(t, 1, clock.PendingTimers())

	clock.Advance(59 * time.Second)
	assert.Equal(t, call.CallStateRinging, in.State())

	clock.Advance(time.Second)
	assert.Equal(t, call.CallStateEnded, waitDone(t, in))
	assert.Equal(t, call.CallStateDismissed, waitDone(t, out))

	events := bob.db.EventsFor(alice.public())
	require.Len(t, events, 1)
	assert.Equal(t, database.IncomingMissed, events[0].Type)
	assert.True(t, events[0].Date.Equal(start.Add(time.Minute)))
}
