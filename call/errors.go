package call

import "errors"

// Sentinel errors for call package operations.
// These errors enable reliable error classification using errors.Is().

// Call initiation errors.
var (
	// ErrCallAlreadyActive indicates another call is in progress.
	ErrCallAlreadyActive = errors.New("another call is already active")

	// ErrContactBlocked indicates the contact is blocked.
	ErrContactBlocked = errors.New("contact is blocked")

	// ErrManagerClosed indicates the manager no longer accepts calls.
	ErrManagerClosed = errors.New("call manager closed")
)

// Call control errors.
var (
	// ErrInvalidTransition indicates an invalid state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotIncoming indicates Accept or Decline on an outgoing call.
	ErrNotIncoming = errors.New("not an incoming call")

	// ErrNotConnected indicates an operation that needs a connected call.
	ErrNotConnected = errors.New("call is not connected")

	// ErrCallerHungUp indicates the caller left before Accept completed.
	ErrCallerHungUp = errors.New("caller hung up")
)

// Signaling errors.
var (
	// ErrUnknownAction indicates a signaling message with an unrecognized action.
	ErrUnknownAction = errors.New("unknown signaling action")

	// ErrInvalidMessage indicates a message missing a field its action requires.
	ErrInvalidMessage = errors.New("invalid signaling message")
)
