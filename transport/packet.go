package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/opd-ai/peercall/limits"
)

// createLengthPrefixedPacket returns the 4-byte big-endian length followed by payload.
func createLengthPrefixedPacket(payload []byte) []byte {
	buf := make([]byte, limits.LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[limits.LengthPrefixSize:], payload)
	return buf
}

// WritePacket writes payload to w as a single length-prefixed packet.
// Nothing is written when the payload is empty or above limits.MaxPacketSize.
func WritePacket(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPacket
	}
	if len(payload) > limits.MaxPacketSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPacketTooLarge, len(payload), limits.MaxPacketSize)
	}

	_, err := w.Write(createLengthPrefixedPacket(payload))
	return err
}

// ReadPacket reads one length-prefixed packet from r. A maxSize of zero or
// less selects limits.MaxPacketSize.
//
// io.EOF is returned only when the stream ends before the first byte of a
// packet; a stream ending inside a packet yields io.ErrUnexpectedEOF.
func ReadPacket(r io.Reader, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = limits.MaxPacketSize
	}

	var header [limits.LengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrEmptyPacket
	}
	if uint64(length) > uint64(maxSize) {
		return nil, fmt.Errorf("%w: announced %d bytes, limit %d", ErrPacketTooLarge, length, maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return payload, nil
}
