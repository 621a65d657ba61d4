package call

import (
	"context"
	"fmt"

	"github.com/opd-ai/peercall/database"
	"github.com/opd-ai/peercall/transport"
	"github.com/sirupsen/logrus"
)

// runOutgoing drives an outgoing call from offer creation until the answer
// arrives or the call ends.
func (c *Call) runOutgoing(ctx context.Context) {
	m := c.manager

	session, err := m.engine.NewSession(SessionConfig{Offerer: true})
	if err != nil {
		c.failWith(database.OutgoingError, fmt.Errorf("create media session: %w", err))
		return
	}
	c.attachSession(session)

	offer, err := session.CreateOffer(ctx)
	if err != nil {
		c.failWith(database.OutgoingError, fmt.Errorf("create offer: %w", err))
		return
	}

	contact := c.Contact()
	conn, addr, err := transport.DialAny(ctx, contact.DialOrder(), m.cfg.Port, m.cfg.ConnectTimeout)
	if err != nil {
		c.failWith(database.OutgoingError, err)
		return
	}

	c.mu.Lock()
	c.address = addr
	c.mu.Unlock()
	// Anonymous peers are not in the directory; the error is expected for them.
	_ = m.contacts.SetLastWorkingAddress(contact.PublicKey, addr)

	// The callee may ring for up to its ring timeout before answering.
	conn.SetTimeouts(m.cfg.RingTimeout+m.cfg.ReadTimeout, m.cfg.WriteTimeout)
	ch := NewSignalingChannel(conn, m.keyPair, contact.PublicKey)
	if !c.setChannel(ch) {
		ch.Close()
		return
	}

	if err := ch.Send(Message{Action: ActionCall, Offer: offer}); err != nil {
		c.failWith(database.OutgoingError, fmt.Errorf("send offer: %w", err))
		return
	}

	for {
		msg, err := ch.Receive()
		if err != nil {
			if c.State().IsTerminal() {
				return
			}
			c.failWith(database.OutgoingError, fmt.Errorf("signaling: %w", err))
			return
		}

		switch msg.Action {
		case ActionRinging:
			if err := c.transition(CallStateRinging, nil); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "runOutgoing",
					"call_id":  c.id,
					"error":    err.Error(),
				}).Debug("Ignoring ringing")
			}
		case ActionConnected:
			if err := session.SetAnswer(msg.Answer); err != nil {
				c.failWith(database.OutgoingError, fmt.Errorf("apply answer: %w", err))
				return
			}
			if err := c.transition(CallStateConnected, event(database.OutgoingAccepted)); err != nil {
				return
			}
			c.closeChannel()
			return
		case ActionDismissed:
			_ = c.transition(CallStateDismissed, event(database.OutgoingDeclined))
			return
		case ActionStatusChange:
			_ = c.transition(CallStateEnded, event(database.OutgoingMissed))
			return
		default:
			logrus.WithFields(logrus.Fields{
				"function": "runOutgoing",
				"call_id":  c.id,
				"action":   msg.Action,
			}).Debug("Ignoring unexpected message")
		}
	}
}
