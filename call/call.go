package call

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/peercall/crypto"
	"github.com/opd-ai/peercall/database"
	"github.com/sirupsen/logrus"
)

// Call is a single outgoing or incoming call.
//
// All methods are safe for concurrent use. A call reaches exactly one
// terminal state; Done is closed when it does.
type Call struct {
	id        string
	direction Direction
	manager   *Manager

	mu            sync.Mutex
	contact       database.Contact
	address       string
	state         CallState
	err           error
	session       MediaSession
	mediaState    MediaState
	channel       *SignalingChannel
	offer         string
	answering     bool
	callerGone    bool
	cancelAnswer  context.CancelFunc
	startTime     time.Time
	connectTime   time.Time
	peerCamera    bool
	eventRecorded bool
	ringTimer     Timer
	graceTimer    Timer
	cancel        context.CancelFunc

	dispatcher *dispatcher
	done       chan struct{}
}

func newCall(m *Manager, direction Direction, contact database.Contact, address string) *Call {
	var id [8]byte
	_, _ = rand.Read(id[:])

	return &Call{
		id:         hex.EncodeToString(id[:]),
		direction:  direction,
		manager:    m,
		contact:    contact,
		address:    address,
		state:      CallStateWaiting,
		startTime:  m.now(),
		dispatcher: newDispatcher(),
		done:       make(chan struct{}),
	}
}

// ID returns a random identifier for log correlation.
func (c *Call) ID() string {
	return c.id
}

// Direction returns whether the call was placed or received.
func (c *Call) Direction() Direction {
	return c.direction
}

// Contact returns the peer. Unknown callers have the name "Unknown".
func (c *Call) Contact() database.Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contact
}

// Address returns the remote address the call was established over.
func (c *Call) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// State returns the current call state.
func (c *Call) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the cause of a call that ended in CallStateError.
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// StartTime returns when the call was created.
func (c *Call) StartTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTime
}

// ConnectedAt returns when the call reached CallStateConnected, or the zero time.
func (c *Call) ConnectedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectTime
}

// PeerCameraEnabled reports the last camera status announced by the peer.
func (c *Call) PeerCameraEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerCamera
}

// Done is closed once the call reaches a terminal state.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call reaches a terminal state or ctx is done.
func (c *Call) Wait(ctx context.Context) (CallState, error) {
	select {
	case <-c.done:
		return c.State(), c.Err()
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// event wraps an event type for transition.
func event(t database.EventType) *database.EventType {
	return &t
}

// transition moves the call to state to. When record is non-nil and the call
// has no history event yet, the event is stored before waiters are released.
func (c *Call) transition(to CallState, record *database.EventType) error {
	c.mu.Lock()
	from := c.state
	if !CanTransition(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	c.state = to
	if to == CallStateConnected {
		c.connectTime = c.manager.now()
	}

	var ev *database.Event
	if record != nil && !c.eventRecorded {
		c.eventRecorded = true
		ev = &database.Event{
			PublicKey: c.contact.PublicKey,
			Address:   c.address,
			Type:      *record,
			Date:      c.manager.now(),
		}
	}

	// Enqueue under the lock so callbacks observe transitions in order.
	c.dispatcher.enqueue(func() { c.manager.notifyState(c, to) })
	peer := c.contact.PublicKey
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "transition",
		"call_id":  c.id,
		"peer":     crypto.KeyPreview(peer),
		"from":     from.String(),
		"state":    to.String(),
	}).Info("Call state changed")

	if ev != nil {
		c.manager.recordEvent(*ev)
	}

	if to.IsTerminal() {
		c.cleanup()
		close(c.done)
		c.dispatcher.close()
	}
	return nil
}

// failWith ends the call in CallStateError.
func (c *Call) failWith(eventType database.EventType, err error) {
	c.mu.Lock()
	if c.state.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.err = err
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "failWith",
		"call_id":  c.id,
		"error":    err.Error(),
	}).Warn("Call failed")

	_ = c.transition(CallStateError, event(eventType))
}

// errorEvent returns the failure event type for the call's direction.
func (c *Call) errorEvent() database.EventType {
	if c.direction == Incoming {
		return database.IncomingError
	}
	return database.OutgoingError
}

// missedEvent returns the missed event type for the call's direction.
func (c *Call) missedEvent() database.EventType {
	if c.direction == Incoming {
		return database.IncomingMissed
	}
	return database.OutgoingMissed
}

// cleanup releases the signaling socket, media session and timers.
func (c *Call) cleanup() {
	c.mu.Lock()
	ch, session := c.channel, c.session
	c.channel = nil
	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}
	if c.graceTimer != nil {
		c.graceTimer.Stop()
	}
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		ch.Close()
	}
	if session != nil {
		if err := session.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "cleanup",
				"call_id":  c.id,
				"error":    err.Error(),
			}).Debug("Media session close failed")
		}
	}
	c.manager.release(c)
}

// setChannel stores the signaling channel. It returns false if the call
// already ended, in which case the caller owns the channel.
func (c *Call) setChannel(ch *SignalingChannel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsTerminal() {
		return false
	}
	c.channel = ch
	return true
}

// closeChannel closes the signaling socket once it is no longer needed.
func (c *Call) closeChannel() {
	c.mu.Lock()
	ch := c.channel
	c.channel = nil
	c.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
}

// attachSession wires media session events into the call.
func (c *Call) attachSession(session MediaSession) {
	session.OnStateChange(c.handleMediaState)
	session.OnData(c.handleData)

	c.mu.Lock()
	terminal := c.state.IsTerminal()
	if !terminal {
		c.session = session
	}
	c.mu.Unlock()

	if terminal {
		session.Close()
	}
}

func (c *Call) handleMediaState(state MediaState) {
	c.mu.Lock()
	c.mediaState = state
	callState := c.state
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "handleMediaState",
		"call_id":     c.id,
		"media_state": state.String(),
		"state":       callState.String(),
	}).Debug("Media state changed")

	switch state {
	case MediaStateConnected:
		c.mu.Lock()
		if c.graceTimer != nil {
			c.graceTimer.Stop()
			c.graceTimer = nil
		}
		c.mu.Unlock()
	case MediaStateFailed:
		c.failWith(c.errorEvent(), errors.New("media connection failed"))
	case MediaStateDisconnected:
		if callState != CallStateConnected {
			return
		}
		c.mu.Lock()
		if c.graceTimer == nil {
			c.graceTimer = c.manager.afterFunc(c.manager.cfg.DisconnectGrace, c.disconnectExpired)
		}
		c.mu.Unlock()
	case MediaStateClosed:
		if callState == CallStateConnected {
			_ = c.transition(CallStateEnded, nil)
		}
	}
}

func (c *Call) disconnectExpired() {
	c.mu.Lock()
	still := c.mediaState == MediaStateDisconnected
	c.graceTimer = nil
	c.mu.Unlock()

	if still {
		_ = c.transition(CallStateEnded, nil)
	}
}

// handleData processes status messages arriving on the data channel.
func (c *Call) handleData(data []byte) {
	msg, err := ParseMessage(data)
	if err != nil || msg.Action != ActionStatusChange {
		logrus.WithFields(logrus.Fields{
			"function": "handleData",
			"call_id":  c.id,
			"size":     len(data),
		}).Debug("Ignoring data channel message")
		return
	}

	switch msg.Status {
	case StatusHangup, StatusOffline:
		_ = c.transition(CallStateEnded, event(c.missedEvent()))
	case StatusCameraOn, StatusCameraOff:
		enabled := msg.Status == StatusCameraOn
		c.mu.Lock()
		c.peerCamera = enabled
		c.dispatcher.enqueue(func() { c.manager.notifyPeerCamera(c, enabled) })
		c.mu.Unlock()
	}
}

// sendStatus sends a status_change message on the data channel.
func (c *Call) sendStatus(status string) error {
	c.mu.Lock()
	session, state := c.session, c.state
	c.mu.Unlock()

	if state != CallStateConnected || session == nil {
		return ErrNotConnected
	}
	data, err := MarshalMessage(Message{Action: ActionStatusChange, Status: status})
	if err != nil {
		return err
	}
	return session.SendData(data)
}

// SetCameraEnabled announces the local camera status to the peer.
func (c *Call) SetCameraEnabled(enabled bool) error {
	status := StatusCameraOff
	if enabled {
		status = StatusCameraOn
	}
	return c.sendStatus(status)
}

// Hangup ends the call from the local side. Ringing incoming calls are
// declined; calls still being set up are cancelled. Hanging up a finished
// call is a no-op.
func (c *Call) Hangup() error {
	c.mu.Lock()
	state, answering, ch := c.state, c.answering, c.channel
	c.mu.Unlock()

	var err error
	switch {
	case state.IsTerminal():
		return nil
	case state == CallStateConnected:
		if sendErr := c.sendStatus(StatusHangup); sendErr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Hangup",
				"call_id":  c.id,
				"error":    sendErr.Error(),
			}).Debug("Hangup notification not delivered")
		}
		err = c.transition(CallStateEnded, nil)
	case c.direction == Incoming && state == CallStateRinging && !answering:
		err = c.Decline()
	default:
		if ch != nil {
			_ = ch.Send(Message{Action: ActionDismissed})
		}
		err = c.transition(CallStateEnded, event(c.missedEvent()))
	}

	if errors.Is(err, ErrInvalidTransition) && c.State().IsTerminal() {
		return nil
	}
	return err
}

// Accept answers a ringing incoming call: a media session is created from
// the caller's offer and the answer is sent back.
func (c *Call) Accept(ctx context.Context) error {
	if c.direction != Incoming {
		return ErrNotIncoming
	}

	c.mu.Lock()
	if c.state != CallStateRinging || c.answering {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: accept in state %s", ErrInvalidTransition, state)
	}
	c.answering = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancelAnswer = cancel
	offer, ch := c.offer, c.channel
	if c.ringTimer != nil {
		c.ringTimer.Stop()
	}
	c.mu.Unlock()
	defer cancel()

	session, err := c.manager.engine.NewSession(SessionConfig{Offerer: false})
	if err != nil {
		err = fmt.Errorf("create media session: %w", err)
		c.failWith(database.IncomingError, err)
		return err
	}
	c.attachSession(session)

	answer, err := session.CreateAnswer(ctx, offer)
	if c.callerLeft() {
		return c.endAbandoned()
	}
	if err != nil {
		err = fmt.Errorf("create answer: %w", err)
		c.failWith(database.IncomingError, err)
		return err
	}

	if ch == nil {
		return fmt.Errorf("%w: signaling channel closed", ErrInvalidTransition)
	}
	if err := ch.Send(Message{Action: ActionConnected, Answer: answer}); err != nil {
		if c.callerLeft() {
			return c.endAbandoned()
		}
		err = fmt.Errorf("send answer: %w", err)
		c.failWith(database.IncomingError, err)
		return err
	}

	if err := c.transition(CallStateConnected, event(database.IncomingAccepted)); err != nil {
		return err
	}
	c.closeChannel()
	return nil
}

// callerLeft reports whether the caller hung up while the call was being
// answered.
func (c *Call) callerLeft() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callerGone
}

// endAbandoned ends a call whose caller hung up during Accept.
func (c *Call) endAbandoned() error {
	logrus.WithFields(logrus.Fields{
		"function": "Accept",
		"call_id":  c.id,
	}).Info("Caller hung up before the answer was sent")

	_ = c.transition(CallStateEnded, event(database.IncomingMissed))
	return ErrCallerHungUp
}

// Decline rejects a ringing incoming call.
func (c *Call) Decline() error {
	if c.direction != Incoming {
		return ErrNotIncoming
	}

	c.mu.Lock()
	if c.state != CallStateRinging || c.answering {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: decline in state %s", ErrInvalidTransition, state)
	}
	ch := c.channel
	c.mu.Unlock()

	if ch != nil {
		if err := ch.Send(Message{Action: ActionDismissed}); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Decline",
				"call_id":  c.id,
				"error":    err.Error(),
			}).Debug("Dismiss not delivered")
		}
	}
	return c.transition(CallStateDismissed, event(database.IncomingDeclined))
}
