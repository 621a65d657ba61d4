package call

import (
	"net"

	"github.com/opd-ai/peercall/crypto"
	"github.com/opd-ai/peercall/database"
	"github.com/opd-ai/peercall/transport"
	"github.com/sirupsen/logrus"
)

// HandleConn serves one incoming signaling connection. It is meant to be
// passed to transport.Listen and returns when the exchange is over.
func (m *Manager) HandleConn(conn *transport.PacketConn) {
	remote := remoteHost(conn.RemoteAddr())
	conn.SetTimeouts(m.cfg.ReadTimeout, m.cfg.WriteTimeout)

	data, err := conn.ReadPacket()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleConn",
			"remote":   remote,
			"error":    err.Error(),
		}).Debug("No request received")
		return
	}

	msg, sender, err := DecodeMessage(data, m.keyPair)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleConn",
			"remote":   remote,
			"error":    err.Error(),
		}).Warn("Rejected undecryptable request")
		return
	}

	contact, ok := m.resolveCaller(sender, remote)
	if !ok {
		return
	}

	ch := NewSignalingChannel(conn, m.keyPair, sender)

	switch msg.Action {
	case ActionPing:
		if err := ch.Send(Message{Action: ActionOnline}); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "HandleConn",
				"remote":   remote,
				"error":    err.Error(),
			}).Debug("Ping reply failed")
		}
	case ActionCall:
		m.handleIncomingCall(ch, conn, contact, remote, msg.Offer)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "HandleConn",
			"remote":   remote,
			"action":   msg.Action,
		}).Debug("Ignoring unsolicited message")
	}
}

// resolveCaller maps a sender key to a contact, applying the block policy.
func (m *Manager) resolveCaller(sender [32]byte, remote string) (database.Contact, bool) {
	if contact, known := m.contacts.ContactByPublicKey(sender); known {
		if contact.Blocked {
			logrus.WithFields(logrus.Fields{
				"function": "resolveCaller",
				"contact":  contact.Name,
			}).Info("Dropping request from blocked contact")
			return database.Contact{}, false
		}
		return contact, true
	}

	if m.contacts.Settings().BlockUnknown {
		logrus.WithFields(logrus.Fields{
			"function": "resolveCaller",
			"peer":     crypto.KeyPreview(sender),
			"remote":   remote,
		}).Info("Dropping request from unknown caller")
		return database.Contact{}, false
	}

	contact := database.Contact{Name: UnknownContactName, PublicKey: sender}
	if remote != "" {
		contact.Addresses = []string{remote}
	}
	return contact, true
}

func (m *Manager) handleIncomingCall(ch *SignalingChannel, conn *transport.PacketConn, contact database.Contact, remote, offer string) {
	c := newCall(m, Incoming, contact, remote)
	c.offer = offer

	if err := m.claim(c); err != nil {
		c.dispatcher.close()
		logrus.WithFields(logrus.Fields{
			"function": "handleIncomingCall",
			"contact":  contact.Name,
			"reason":   err.Error(),
		}).Info("Rejecting incoming call")

		_ = ch.Send(Message{Action: ActionDismissed})
		m.recordEvent(database.Event{
			PublicKey: contact.PublicKey,
			Address:   remote,
			Type:      database.IncomingMissed,
			Date:      m.now(),
		})
		return
	}

	// Ringing is bounded by the ring timer, not by socket deadlines.
	conn.SetTimeouts(0, m.cfg.WriteTimeout)
	c.setChannel(ch)

	if err := c.transition(CallStateRinging, nil); err != nil {
		return
	}
	if err := ch.Send(Message{Action: ActionRinging}); err != nil {
		c.failWith(database.IncomingError, err)
		return
	}

	c.mu.Lock()
	c.ringTimer = m.afterFunc(m.cfg.RingTimeout, c.ringTimeout)
	c.dispatcher.enqueue(func() { m.notifyIncoming(c) })
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "handleIncomingCall",
		"call_id":  c.id,
		"contact":  contact.Name,
		"remote":   remote,
	}).Info("Incoming call ringing")

	if m.contacts.Settings().AutoAcceptCalls {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := c.Accept(m.ctx); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "handleIncomingCall",
					"call_id":  c.id,
					"error":    err.Error(),
				}).Warn("Auto accept failed")
			}
		}()
	}

	c.watchCaller(ch)
}

// watchCaller reads the signaling socket while the call rings, so that a
// caller hanging up is noticed.
func (c *Call) watchCaller(ch *SignalingChannel) {
	for {
		msg, err := ch.Receive()
		if err != nil {
			c.endRinging()
			return
		}

		switch msg.Action {
		case ActionDismissed, ActionStatusChange:
			c.endRinging()
			return
		default:
			logrus.WithFields(logrus.Fields{
				"function": "watchCaller",
				"call_id":  c.id,
				"action":   msg.Action,
			}).Debug("Ignoring message while ringing")
		}
	}
}

// endRinging marks a ringing call missed. A call being answered is flagged
// instead and Accept ends it once the answer is ready.
func (c *Call) endRinging() {
	c.mu.Lock()
	if c.state != CallStateRinging {
		c.mu.Unlock()
		return
	}
	if c.answering {
		c.callerGone = true
		cancel := c.cancelAnswer
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	c.mu.Unlock()
	_ = c.transition(CallStateEnded, event(database.IncomingMissed))
}

// ringTimeout ends a call nobody answered.
func (c *Call) ringTimeout() {
	c.mu.Lock()
	if c.state != CallStateRinging || c.answering {
		c.mu.Unlock()
		return
	}
	ch := c.channel
	c.mu.Unlock()

	if ch != nil {
		_ = ch.Send(Message{Action: ActionDismissed})
	}
	_ = c.transition(CallStateEnded, event(database.IncomingMissed))
}

func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
