package peercall

import "errors"

var (
	// ErrAlreadyRunning indicates Start was called twice.
	ErrAlreadyRunning = errors.New("already running")

	// ErrStopped indicates the instance was stopped and cannot be restarted.
	ErrStopped = errors.New("stopped")

	// ErrUnknownContact indicates no contact has the given name.
	ErrUnknownContact = errors.New("unknown contact")
)
