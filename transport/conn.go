package transport

import (
	"net"
	"sync"
	"time"

	"github.com/opd-ai/peercall/limits"
)

// Default per-operation deadlines of a PacketConn.
const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// PacketConn exchanges length-prefixed packets over a stream connection.
// Writes are serialized; reads are expected from a single goroutine.
type PacketConn struct {
	conn          net.Conn
	maxPacketSize int

	mu           sync.RWMutex
	readTimeout  time.Duration
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewPacketConn wraps conn with the default timeouts and packet size limit.
func NewPacketConn(conn net.Conn) *PacketConn {
	return &PacketConn{
		conn:          conn,
		maxPacketSize: limits.MaxPacketSize,
		readTimeout:   DefaultReadTimeout,
		writeTimeout:  DefaultWriteTimeout,
	}
}

// SetTimeouts sets the deadline applied to each subsequent read and write.
// A zero duration disables the corresponding deadline.
func (c *PacketConn) SetTimeouts(read, write time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readTimeout = read
	c.writeTimeout = write
}

func (c *PacketConn) timeouts() (time.Duration, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readTimeout, c.writeTimeout
}

// ReadPacket reads the next packet, honoring the read timeout.
func (c *PacketConn) ReadPacket() ([]byte, error) {
	read, _ := c.timeouts()
	if err := c.setDeadline(c.conn.SetReadDeadline, read); err != nil {
		return nil, err
	}
	return ReadPacket(c.conn, c.maxPacketSize)
}

// WritePacket writes one packet, honoring the write timeout.
func (c *PacketConn) WritePacket(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, write := c.timeouts()
	if err := c.setDeadline(c.conn.SetWriteDeadline, write); err != nil {
		return err
	}
	return WritePacket(c.conn, payload)
}

func (c *PacketConn) setDeadline(set func(time.Time) error, timeout time.Duration) error {
	if timeout <= 0 {
		return set(time.Time{})
	}
	return set(time.Now().Add(timeout))
}

// Close closes the underlying connection. It is safe to call more than once.
func (c *PacketConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the remote network address.
func (c *PacketConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local network address.
func (c *PacketConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}
