package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/opd-ai/peercall/call"
	"github.com/opd-ai/peercall/limits"
	"github.com/pion/webrtc/v3"
	"github.com/sirupsen/logrus"
)

// Session is one WebRTC peer connection.
type Session struct {
	pc      *webrtc.PeerConnection
	audio   *webrtc.TrackLocalStaticSample
	offerer bool

	mu      sync.Mutex
	dc      *webrtc.DataChannel
	onData  func([]byte)
	onState func(call.MediaState)

	closeOnce sync.Once
	closeErr  error
}

func newSession(api *webrtc.API, config webrtc.Configuration, offerer bool) (*Session, error) {
	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	s := &Session{pc: pc, offerer: offerer}
	if err := s.setup(); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) setup() error {
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "peercall",
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	sender, err := s.pc.AddTrack(audio)
	if err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}
	s.audio = audio

	// RTCP must be read for interceptors to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logrus.WithFields(logrus.Fields{
			"function": "Session.OnTrack",
			"package":  "media",
			"codec":    track.Codec().MimeType,
		}).Debug("Remote track started")

		buf := make([]byte, 1500)
		for {
			if _, _, err := track.Read(buf); err != nil {
				return
			}
		}
	})

	s.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logrus.WithFields(logrus.Fields{
			"function": "Session.OnConnectionStateChange",
			"package":  "media",
			"state":    state.String(),
		}).Debug("Peer connection state changed")

		s.mu.Lock()
		handler := s.onState
		s.mu.Unlock()
		if handler != nil {
			handler(mediaState(state))
		}
	})

	if s.offerer {
		dc, err := s.pc.CreateDataChannel(DataChannelLabel, nil)
		if err != nil {
			return fmt.Errorf("create data channel: %w", err)
		}
		s.bindDataChannel(dc)
	} else {
		s.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != DataChannelLabel {
				return
			}
			s.bindDataChannel(dc)
		})
	}
	return nil
}

func (s *Session) bindDataChannel(dc *webrtc.DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.mu.Lock()
		handler := s.onData
		s.mu.Unlock()
		if handler != nil {
			handler(msg.Data)
		}
	})
}

// AudioTrack returns the local Opus track samples are written to.
func (s *Session) AudioTrack() *webrtc.TrackLocalStaticSample {
	return s.audio
}

// CreateOffer implements call.MediaSession.
func (s *Session) CreateOffer(ctx context.Context) (string, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	return s.setLocal(ctx, offer)
}

// CreateAnswer implements call.MediaSession.
func (s *Session) CreateAnswer(ctx context.Context, offer string) (string, error) {
	err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer})
	if err != nil {
		return "", fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	return s.setLocal(ctx, answer)
}

// setLocal applies desc and waits for ICE gathering to finish.
func (s *Session) setLocal(ctx context.Context, desc webrtc.SessionDescription) (string, error) {
	gathered := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := s.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("set local description: no description after gathering")
	}
	return local.SDP, nil
}

// SetAnswer implements call.MediaSession.
func (s *Session) SetAnswer(answer string) error {
	err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer})
	if err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

// SendData implements call.MediaSession.
func (s *Session) SendData(data []byte) error {
	if err := limits.ValidateSignalingMessage(data); err != nil {
		return err
	}

	s.mu.Lock()
	dc := s.dc
	s.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrDataChannelNotOpen
	}
	return dc.Send(data)
}

// OnData implements call.MediaSession.
func (s *Session) OnData(handler func(data []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onData = handler
}

// OnStateChange implements call.MediaSession.
func (s *Session) OnStateChange(handler func(state call.MediaState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = handler
}

// Close implements call.MediaSession.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pc.Close()
	})
	return s.closeErr
}
