package call

import "fmt"

// CallState represents the current state of a call.
type CallState uint8

const (
	// CallStateWaiting is the initial state before any signaling.
	CallStateWaiting CallState = iota
	// CallStateConnecting indicates an outgoing call is dialing the peer.
	CallStateConnecting
	// CallStateRinging indicates the callee has been notified.
	CallStateRinging
	// CallStateConnected indicates the media session is negotiated.
	CallStateConnected
	// CallStateDismissed indicates the call was declined or rejected as busy.
	CallStateDismissed
	// CallStateEnded indicates the call finished normally or was cancelled.
	CallStateEnded
	// CallStateError indicates the call failed.
	CallStateError
)

var callStateNames = [...]string{
	CallStateWaiting:    "waiting",
	CallStateConnecting: "connecting",
	CallStateRinging:    "ringing",
	CallStateConnected:  "connected",
	CallStateDismissed:  "dismissed",
	CallStateEnded:      "ended",
	CallStateError:      "error",
}

// String returns the string representation of the call state.
func (s CallState) String() string {
	if int(s) < len(callStateNames) {
		return callStateNames[s]
	}
	return fmt.Sprintf("CallState(%d)", uint8(s))
}

// IsTerminal reports whether no further transition is possible.
func (s CallState) IsTerminal() bool {
	return s == CallStateDismissed || s == CallStateEnded || s == CallStateError
}

// transitions lists the allowed successor states of each non-terminal state.
var transitions = map[CallState][]CallState{
	CallStateWaiting:    {CallStateConnecting, CallStateRinging, CallStateError, CallStateEnded},
	CallStateConnecting: {CallStateRinging, CallStateConnected, CallStateDismissed, CallStateError, CallStateEnded},
	CallStateRinging:    {CallStateConnected, CallStateDismissed, CallStateError, CallStateEnded},
	CallStateConnected:  {CallStateEnded, CallStateError},
}

// CanTransition reports whether a call may move from one state to another.
func CanTransition(from, to CallState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Direction tells who placed the call.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}
