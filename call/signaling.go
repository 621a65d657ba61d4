package call

import (
	"encoding/json"
	"fmt"

	"github.com/opd-ai/peercall/crypto"
	"github.com/opd-ai/peercall/transport"
	"github.com/sirupsen/logrus"
)

// Action names a signaling message type.
type Action string

const (
	ActionCall         Action = "call"
	ActionRinging      Action = "ringing"
	ActionConnected    Action = "connected"
	ActionDismissed    Action = "dismissed"
	ActionPing         Action = "ping"
	ActionOnline       Action = "online"
	ActionStatusChange Action = "status_change"
)

// Status values of ActionStatusChange messages.
const (
	StatusHangup    = "hangup"
	StatusOffline   = "offline"
	StatusCameraOn  = "camera_on"
	StatusCameraOff = "camera_off"
)

// Message is one signaling message.
type Message struct {
	Action Action `json:"action"`
	Offer  string `json:"offer,omitempty"`
	Answer string `json:"answer,omitempty"`
	Status string `json:"status,omitempty"`
}

// Validate checks the action is known and its required field is present.
func (m Message) Validate() error {
	switch m.Action {
	case ActionCall:
		if m.Offer == "" {
			return fmt.Errorf("%w: call without offer", ErrInvalidMessage)
		}
	case ActionConnected:
		if m.Answer == "" {
			return fmt.Errorf("%w: connected without answer", ErrInvalidMessage)
		}
	case ActionStatusChange:
		if m.Status == "" {
			return fmt.Errorf("%w: status_change without status", ErrInvalidMessage)
		}
	case ActionRinging, ActionDismissed, ActionPing, ActionOnline:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, m.Action)
	}
	return nil
}

// MarshalMessage validates and encodes a message as JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// ParseMessage decodes and validates a JSON message.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// EncodeMessage encodes msg as JSON and seals it for the recipient.
func EncodeMessage(msg Message, recipient [32]byte, own *crypto.KeyPair) ([]byte, error) {
	plain, err := MarshalMessage(msg)
	if err != nil {
		return nil, err
	}
	return crypto.SealMessage(plain, recipient, own)
}

// DecodeMessage opens a sealed message and returns it with the sender's key.
func DecodeMessage(data []byte, own *crypto.KeyPair) (Message, [32]byte, error) {
	plain, sender, err := crypto.OpenMessage(data, own)
	if err != nil {
		return Message{}, sender, err
	}
	msg, err := ParseMessage(plain)
	if err != nil {
		return Message{}, sender, err
	}
	return msg, sender, nil
}

// SignalingChannel exchanges sealed messages with one peer over a packet connection.
type SignalingChannel struct {
	conn *transport.PacketConn
	own  *crypto.KeyPair
	peer [32]byte
}

// NewSignalingChannel binds conn to the own key pair and the peer's public key.
func NewSignalingChannel(conn *transport.PacketConn, own *crypto.KeyPair, peer [32]byte) *SignalingChannel {
	return &SignalingChannel{conn: conn, own: own, peer: peer}
}

// Send seals and writes one message.
func (s *SignalingChannel) Send(msg Message) error {
	data, err := EncodeMessage(msg, s.peer, s.own)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "SignalingChannel.Send",
		"action":   msg.Action,
		"peer":     crypto.KeyPreview(s.peer),
	}).Debug("Sending signaling message")

	return s.conn.WritePacket(data)
}

// Receive reads the next message. Messages not signed by the peer are
// rejected with crypto.ErrUnexpectedSender.
func (s *SignalingChannel) Receive() (Message, error) {
	data, err := s.conn.ReadPacket()
	if err != nil {
		return Message{}, err
	}

	plain, err := crypto.OpenMessageFrom(data, s.own, s.peer)
	if err != nil {
		return Message{}, err
	}
	msg, err := ParseMessage(plain)
	if err != nil {
		return Message{}, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "SignalingChannel.Receive",
		"action":   msg.Action,
		"peer":     crypto.KeyPreview(s.peer),
	}).Debug("Received signaling message")

	return msg, nil
}

// Peer returns the peer's public key.
func (s *SignalingChannel) Peer() [32]byte {
	return s.peer
}

// Close closes the underlying connection.
func (s *SignalingChannel) Close() error {
	return s.conn.Close()
}
