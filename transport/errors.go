package transport

import "errors"

var (
	// ErrEmptyPacket indicates a zero-length packet was written or announced.
	ErrEmptyPacket = errors.New("empty packet")

	// ErrPacketTooLarge indicates a packet above the size limit. On read the
	// connection is no longer in sync and must be closed.
	ErrPacketTooLarge = errors.New("packet too large")

	// ErrNoReachableAddress indicates none of a contact's addresses accepted a connection.
	ErrNoReachableAddress = errors.New("no reachable address")

	// ErrInvalidAddress indicates an address that cannot be turned into host:port.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNotEUI64 indicates an IPv6 address that was not derived from a MAC address.
	ErrNotEUI64 = errors.New("address is not EUI-64 derived")

	// ErrListenerClosed indicates an operation on a closed listener.
	ErrListenerClosed = errors.New("listener closed")
)
