package call

import (
	"context"
	"fmt"
)

// MediaState is the connectivity state of a media session.
type MediaState uint8

const (
	MediaStateNew MediaState = iota
	MediaStateConnecting
	MediaStateConnected
	MediaStateDisconnected
	MediaStateFailed
	MediaStateClosed
)

var mediaStateNames = [...]string{
	MediaStateNew:          "new",
	MediaStateConnecting:   "connecting",
	MediaStateConnected:    "connected",
	MediaStateDisconnected: "disconnected",
	MediaStateFailed:       "failed",
	MediaStateClosed:       "closed",
}

// String returns the string representation of the media state.
func (s MediaState) String() string {
	if int(s) < len(mediaStateNames) {
		return mediaStateNames[s]
	}
	return fmt.Sprintf("MediaState(%d)", uint8(s))
}

// SessionConfig configures a new media session.
type SessionConfig struct {
	// Offerer is true on the calling side, which creates the data channel.
	Offerer bool
}

// MediaEngine creates media sessions.
type MediaEngine interface {
	NewSession(cfg SessionConfig) (MediaSession, error)
}

// MediaSession is one negotiated media connection with a data channel.
type MediaSession interface {
	// CreateOffer returns a complete SDP offer once candidate gathering is done.
	CreateOffer(ctx context.Context) (string, error)
	// CreateAnswer applies the remote offer and returns a complete SDP answer.
	CreateAnswer(ctx context.Context, offer string) (string, error)
	// SetAnswer applies the remote answer on the offering side.
	SetAnswer(answer string) error
	// SendData sends a message on the data channel.
	SendData(data []byte) error
	// OnData registers the handler for data channel messages.
	OnData(handler func(data []byte))
	// OnStateChange registers the handler for connectivity changes.
	OnStateChange(handler func(state MediaState))
	// Close tears the session down.
	Close() error
}
