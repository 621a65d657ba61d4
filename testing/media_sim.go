package testing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/peercall/call"
	"github.com/sirupsen/logrus"
)

const (
	offerPrefix  = "sim-offer:"
	answerPrefix = "sim-answer:"
)

// engineSeq names engines so tokens never resolve in another engine.
var engineSeq atomic.Int64

// Operation names recorded in the log.
const (
	OpNewSession   = "new_session"
	OpCreateOffer  = "create_offer"
	OpCreateAnswer = "create_answer"
	OpSetAnswer    = "set_answer"
	OpSendData     = "send_data"
	OpClose        = "close"
)

var (
	// ErrUnknownToken is returned for offers or answers this engine did not issue.
	ErrUnknownToken = errors.New("unknown session description")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("media session closed")
	// ErrNoPeer is returned by SendData before the session is paired.
	ErrNoPeer = errors.New("media session not connected")
)

// OperationRecord represents a session operation for test verification.
type OperationRecord struct {
	SessionID string
	Op        string
	Size      int
	Timestamp int64
}

// SimulatedMediaEngine implements call.MediaEngine in memory.
type SimulatedMediaEngine struct {
	mu         sync.Mutex
	name       string
	nextID     int
	sessions   map[string]*SimulatedSession
	log        []OperationRecord
	failNext   error
	failOffers error
}

// NewSimulatedMediaEngine creates an empty engine.
func NewSimulatedMediaEngine() *SimulatedMediaEngine {
	logrus.WithFields(logrus.Fields{
		"function": "NewSimulatedMediaEngine",
	}).Debug("Creating simulated media engine for testing")

	return &SimulatedMediaEngine{
		name:     fmt.Sprintf("e%d", engineSeq.Add(1)),
		sessions: make(map[string]*SimulatedSession),
	}
}

// NewSession implements call.MediaEngine.
func (e *SimulatedMediaEngine) NewSession(cfg call.SessionConfig) (call.MediaSession, error) {
	e.mu.Lock()
	if err := e.failNext; err != nil {
		e.failNext = nil
		e.mu.Unlock()
		return nil, err
	}
	e.nextID++
	s := &SimulatedSession{
		id:      fmt.Sprintf("s%d", e.nextID),
		engine:  e,
		offerer: cfg.Offerer,
		state:   call.MediaStateNew,
	}
	e.sessions[s.id] = s
	e.mu.Unlock()

	e.record(s.id, OpNewSession, 0)
	return s, nil
}

// FailNextSession makes the next NewSession call return err.
func (e *SimulatedMediaEngine) FailNextSession(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = err
}

// FailNextOffer makes the next CreateOffer call return err.
func (e *SimulatedMediaEngine) FailNextOffer(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOffers = err
}

// Sessions returns all sessions created so far, in creation order.
func (e *SimulatedMediaEngine) Sessions() []*SimulatedSession {
	e.mu.Lock()
	defer e.mu.Unlock()

	sessions := make([]*SimulatedSession, 0, len(e.sessions))
	for i := 1; i <= e.nextID; i++ {
		if s, ok := e.sessions[fmt.Sprintf("s%d", i)]; ok {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

// Operations returns a copy of the operation log.
func (e *SimulatedMediaEngine) Operations() []OperationRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	log := make([]OperationRecord, len(e.log))
	copy(log, e.log)
	return log
}

// CountOps returns how many times op was recorded.
func (e *SimulatedMediaEngine) CountOps(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, r := range e.log {
		if r.Op == op {
			n++
		}
	}
	return n
}

// ClearOperations resets the operation log.
func (e *SimulatedMediaEngine) ClearOperations() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = nil
}

func (e *SimulatedMediaEngine) record(id, op string, size int) {
	e.mu.Lock()
	e.log = append(e.log, OperationRecord{
		SessionID: id,
		Op:        op,
		Size:      size,
		Timestamp: time.Now().UnixNano(),
	})
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "SimulatedMediaEngine.record",
		"session_id": id,
		"op":         op,
		"size":       size,
	}).Debug("Simulated media operation")
}

// token names a session description issued by this engine.
func (e *SimulatedMediaEngine) token(prefix, id string) string {
	return prefix + e.name + "/" + id
}

func (e *SimulatedMediaEngine) lookup(token, prefix string) (*SimulatedSession, error) {
	engine, id, ok := strings.Cut(strings.TrimPrefix(token, prefix), "/")
	if !strings.HasPrefix(token, prefix) || !ok || engine != e.name {
		return nil, fmt.Errorf("%w: %q", ErrUnknownToken, token)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownToken, token)
	}
	return s, nil
}

// SimulatedSession implements call.MediaSession.
type SimulatedSession struct {
	id      string
	engine  *SimulatedMediaEngine
	offerer bool

	mu            sync.Mutex
	state         call.MediaState
	peer          *SimulatedSession
	closed        bool
	onData        func([]byte)
	onStateChange func(call.MediaState)
}

// ID returns the session identifier used in the operation log.
func (s *SimulatedSession) ID() string { return s.id }

// Offerer reports whether the session was created on the calling side.
func (s *SimulatedSession) Offerer() bool { return s.offerer }

// State returns the current media state.
func (s *SimulatedSession) State() call.MediaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CreateOffer implements call.MediaSession.
func (s *SimulatedSession) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.engine.mu.Lock()
	err := s.engine.failOffers
	s.engine.failOffers = nil
	s.engine.mu.Unlock()
	if err != nil {
		return "", err
	}
	if s.isClosed() {
		return "", ErrSessionClosed
	}

	s.engine.record(s.id, OpCreateOffer, 0)
	return s.engine.token(offerPrefix, s.id), nil
}

// CreateAnswer implements call.MediaSession.
func (s *SimulatedSession) CreateAnswer(ctx context.Context, offer string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	remote, err := s.engine.lookup(offer, offerPrefix)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrSessionClosed
	}
	s.peer = remote
	s.mu.Unlock()

	s.engine.record(s.id, OpCreateAnswer, 0)
	s.setState(call.MediaStateConnecting)
	return s.engine.token(answerPrefix, s.id), nil
}

// SetAnswer implements call.MediaSession. Both sessions become connected.
func (s *SimulatedSession) SetAnswer(answer string) error {
	remote, err := s.engine.lookup(answer, answerPrefix)
	if err != nil {
		return err
	}

	remote.mu.Lock()
	matches := remote.peer == s
	remote.mu.Unlock()
	if !matches {
		return fmt.Errorf("%w: answer was not made for this offer", ErrUnknownToken)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.peer = remote
	s.mu.Unlock()

	s.engine.record(s.id, OpSetAnswer, 0)
	s.setState(call.MediaStateConnected)
	remote.setState(call.MediaStateConnected)
	return nil
}

// SendData implements call.MediaSession. The peer's handler runs on the
// calling goroutine.
func (s *SimulatedSession) SendData(data []byte) error {
	s.mu.Lock()
	peer, closed := s.peer, s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	if peer == nil || peer.State() != call.MediaStateConnected {
		return ErrNoPeer
	}

	s.engine.record(s.id, OpSendData, len(data))

	peer.mu.Lock()
	handler := peer.onData
	peer.mu.Unlock()
	if handler != nil {
		handler(append([]byte(nil), data...))
	}
	return nil
}

// OnData implements call.MediaSession.
func (s *SimulatedSession) OnData(handler func(data []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = handler
}

// OnStateChange implements call.MediaSession.
func (s *SimulatedSession) OnStateChange(handler func(state call.MediaState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = handler
}

// Close implements call.MediaSession. The peer observes MediaStateClosed.
func (s *SimulatedSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	peer := s.peer
	s.mu.Unlock()

	s.engine.record(s.id, OpClose, 0)
	s.setState(call.MediaStateClosed)
	if peer != nil {
		peer.setState(call.MediaStateClosed)
	}
	return nil
}

// SimulateState forces a media state, as a network change would.
func (s *SimulatedSession) SimulateState(state call.MediaState) {
	s.setState(state)
}

func (s *SimulatedSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SimulatedSession) setState(state call.MediaState) {
	s.mu.Lock()
	if s.state == state || s.state == call.MediaStateClosed {
		s.mu.Unlock()
		return
	}
	s.state = state
	handler := s.onStateChange
	s.mu.Unlock()

	if handler != nil {
		handler(state)
	}
}
