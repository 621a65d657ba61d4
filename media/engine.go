package media

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opd-ai/peercall/call"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// DataChannelLabel is the label of the status data channel.
const DataChannelLabel = "data"

var (
	// ErrDataChannelNotOpen is returned by SendData before the channel opens.
	ErrDataChannelNotOpen = errors.New("data channel not open")
	// ErrInvalidICEServer is returned for malformed ICE server URLs.
	ErrInvalidICEServer = errors.New("invalid ICE server")
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	// ICEServers are STUN or TURN URLs. TURN credentials are given in the
	// userinfo part: "turn:user:secret@host:3478".
	ICEServers []string
}

// Engine creates WebRTC media sessions.
type Engine struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewEngine builds an engine with the default codec set.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	servers, err := parseICEServers(cfg.ICEServers)
	if err != nil {
		return nil, err
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewEngine",
		"package":     "media",
		"ice_servers": len(servers),
	}).Debug("Media engine created")

	return &Engine{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		config: webrtc.Configuration{ICEServers: servers},
	}, nil
}

// NewSession implements call.MediaEngine.
func (e *Engine) NewSession(cfg call.SessionConfig) (call.MediaSession, error) {
	return newSession(e.api, e.config, cfg.Offerer)
}

// parseICEServers converts URLs to pion ICE server entries.
func parseICEServers(urls []string) ([]webrtc.ICEServer, error) {
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		scheme, rest, ok := strings.Cut(raw, ":")
		if !ok || rest == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidICEServer, raw)
		}
		switch scheme {
		case "stun", "stuns", "turn", "turns":
		default:
			return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidICEServer, raw)
		}

		server := webrtc.ICEServer{}
		if userinfo, host, found := strings.Cut(rest, "@"); found {
			user, secret, _ := strings.Cut(userinfo, ":")
			if host == "" || user == "" {
				return nil, fmt.Errorf("%w: %q", ErrInvalidICEServer, raw)
			}
			server.Username = user
			server.Credential = secret
			server.CredentialType = webrtc.ICECredentialTypePassword
			rest = host
		}
		server.URLs = []string{scheme + ":" + rest}
		servers = append(servers, server)
	}
	return servers, nil
}

// mediaState maps a peer connection state to a call media state.
func mediaState(s webrtc.PeerConnectionState) call.MediaState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return call.MediaStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return call.MediaStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return call.MediaStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return call.MediaStateFailed
	case webrtc.PeerConnectionStateClosed:
		return call.MediaStateClosed
	default:
		return call.MediaStateNew
	}
}
