package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// DialAny connects to the first reachable address in order. Each attempt
// has its own connect timeout. It returns the connection and the address
// entry, as given, that accepted it.
func DialAny(ctx context.Context, addresses []string, defaultPort int, timeout time.Duration) (*PacketConn, string, error) {
	if len(addresses) == 0 {
		return nil, "", fmt.Errorf("%w: no addresses", ErrNoReachableAddress)
	}

	var lastErr error
	for _, address := range addresses {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		target, err := NormalizeAddress(address, defaultPort)
		if err != nil {
			lastErr = err
			continue
		}

		dialer := net.Dialer{Timeout: timeout}
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, "", ctxErr
			}
			logrus.WithFields(logrus.Fields{
				"function": "DialAny",
				"address":  target,
				"error":    err.Error(),
			}).Debug("Address unreachable")
			lastErr = err
			continue
		}

		logrus.WithFields(logrus.Fields{
			"function": "DialAny",
			"address":  target,
		}).Debug("Connected")

		return NewPacketConn(conn), address, nil
	}

	return nil, "", fmt.Errorf("%w: %w", ErrNoReachableAddress, lastErr)
}
