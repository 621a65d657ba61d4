package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
	"github.com/sirupsen/logrus"
)

// DefaultPort is the TCP port peers listen on for signaling.
const DefaultPort = 10001

// ConnHandler processes one accepted connection. The connection is closed
// by the listener when the handler returns.
type ConnHandler func(conn *PacketConn)

// ListenerOptions configures a Listener.
type ListenerOptions struct {
	// RateLimitTokens is the number of connections a single remote IP may
	// open per RateLimitInterval. Zero disables rate limiting.
	RateLimitTokens uint64
	// RateLimitInterval is the refill interval of the per-IP budget.
	RateLimitInterval time.Duration
	// ReadTimeout and WriteTimeout are applied to accepted connections.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultListenerOptions returns options allowing 10 connections per IP per minute.
func DefaultListenerOptions() ListenerOptions {
	return ListenerOptions{
		RateLimitTokens:   10,
		RateLimitInterval: time.Minute,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
	}
}

// Listener accepts signaling connections over TCP.
type Listener struct {
	listener     net.Listener
	handler      ConnHandler
	opts         ListenerOptions
	limiterStore limiter.Store

	mu    sync.Mutex
	conns map[*PacketConn]struct{}

	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Listen binds addr and starts accepting connections in the background.
func Listen(addr string, handler ConnHandler, opts ListenerOptions) (*Listener, error) {
	if handler == nil {
		return nil, errors.New("connection handler cannot be nil")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		listener: ln,
		handler:  handler,
		opts:     opts,
		conns:    make(map[*PacketConn]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	if opts.RateLimitTokens > 0 {
		interval := opts.RateLimitInterval
		if interval <= 0 {
			interval = time.Minute
		}
		l.limiterStore, err = memorystore.New(&memorystore.Config{
			Tokens:   opts.RateLimitTokens,
			Interval: interval,
		})
		if err != nil {
			cancel()
			ln.Close()
			return nil, fmt.Errorf("create rate limiter: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Listen",
		"address":    ln.Addr().String(),
		"rate_limit": opts.RateLimitTokens,
	}).Info("Signaling listener started")

	l.wg.Add(1)
	go l.acceptConnections()

	return l, nil
}

// Addr returns the bound listener address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// acceptConnections runs until the listener is closed.
func (l *Listener) acceptConnections() {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "acceptConnections",
				"error":    err.Error(),
			}).Warn("Accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !l.allow(conn.RemoteAddr()) {
			logrus.WithFields(logrus.Fields{
				"function": "acceptConnections",
				"remote":   conn.RemoteAddr().String(),
			}).Warn("Connection rate limit exceeded, closing")
			conn.Close()
			continue
		}

		pc := NewPacketConn(conn)
		pc.SetTimeouts(l.opts.ReadTimeout, l.opts.WriteTimeout)
		if !l.track(pc) {
			pc.Close()
			return
		}

		l.wg.Add(1)
		go l.handleConnection(pc)
	}
}

// allow takes a token from the remote IP's budget.
func (l *Listener) allow(addr net.Addr) bool {
	if l.limiterStore == nil {
		return true
	}

	host := addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	_, _, _, ok, err := l.limiterStore.Take(l.ctx, host)
	if err != nil {
		return false
	}
	return ok
}

func (l *Listener) track(pc *PacketConn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conns == nil {
		return false
	}
	l.conns[pc] = struct{}{}
	return true
}

func (l *Listener) untrack(pc *PacketConn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, pc)
}

func (l *Listener) handleConnection(pc *PacketConn) {
	defer l.wg.Done()
	defer l.untrack(pc)
	defer pc.Close()

	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleConnection",
				"remote":   pc.RemoteAddr().String(),
				"panic":    r,
			}).Error("Connection handler panicked")
		}
	}()

	l.handler(pc)
}

// Close stops accepting, closes live connections and waits for handlers to return.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		err = l.listener.Close()

		l.mu.Lock()
		conns := l.conns
		l.conns = nil
		l.mu.Unlock()

		for pc := range conns {
			pc.Close()
		}

		l.wg.Wait()

		if l.limiterStore != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = l.limiterStore.Close(ctx)
		}

		logrus.WithFields(logrus.Fields{
			"function": "Close",
			"address":  l.listener.Addr().String(),
		}).Info("Signaling listener stopped")
	})
	return err
}
