package database

import (
	"fmt"
	"time"
)

// EventType is the direction and outcome of a call.
type EventType uint8

const (
	OutgoingUnknown EventType = iota
	OutgoingAccepted
	OutgoingDeclined
	OutgoingMissed
	OutgoingError
	IncomingUnknown
	IncomingAccepted
	IncomingDeclined
	IncomingMissed
	IncomingError
)

var eventTypeNames = map[EventType]string{
	OutgoingUnknown:  "outgoing_unknown",
	OutgoingAccepted: "outgoing_accepted",
	OutgoingDeclined: "outgoing_declined",
	OutgoingMissed:   "outgoing_missed",
	OutgoingError:    "outgoing_error",
	IncomingUnknown:  "incoming_unknown",
	IncomingAccepted: "incoming_accepted",
	IncomingDeclined: "incoming_declined",
	IncomingMissed:   "incoming_missed",
	IncomingError:    "incoming_error",
}

// String returns the string representation of the event type.
func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", uint8(t))
}

// MarshalText encodes the event type by name.
func (t EventType) MarshalText() ([]byte, error) {
	name, ok := eventTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown event type %d", uint8(t))
	}
	return []byte(name), nil
}

// UnmarshalText decodes an event type name.
func (t *EventType) UnmarshalText(text []byte) error {
	for k, name := range eventTypeNames {
		if name == string(text) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", text)
}

// IsIncoming reports whether the event describes a call placed by the peer.
func (t EventType) IsIncoming() bool {
	return t >= IncomingUnknown
}

// Event is one entry of the call history.
type Event struct {
	PublicKey [32]byte
	Address   string
	Type      EventType
	Date      time.Time
}
