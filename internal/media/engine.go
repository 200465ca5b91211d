// Package media adapts pion/webrtc to the transport contract the call core
// drives. The core never imports pion types; everything crosses the boundary
// as plain descriptions and candidate blobs.
package media

import (
	"context"
	"fmt"
	"log/slog"

	"call-platform/internal/call"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	// ICEServers are STUN/TURN URLs handed to every peer connection.
	ICEServers []string
	Logger     *slog.Logger
}

// Engine builds peer connections from a shared API instance so codec and
// interceptor registration happens once.
type Engine struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	log        *slog.Logger
}

func NewEngine(cfg Config) (*Engine, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("media: register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, fmt.Errorf("media: register interceptors: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		api:        webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithInterceptorRegistry(ir)),
		iceServers: []webrtc.ICEServer{{URLs: cfg.ICEServers}},
		log:        log,
	}, nil
}

func (e *Engine) NewSession(cfg call.SessionConfig, obs call.SessionObserver) (call.MediaSession, error) {
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.iceServers})
	if err != nil {
		return nil, fmt.Errorf("media: new peer connection: %w", err)
	}

	s := &session{pc: pc, tracks: map[call.TrackKind]*localTrack{}, log: e.log}
	if err := s.addTrack(call.TrackAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}); err != nil {
		_ = pc.Close()
		return nil, err
	}
	if cfg.Video {
		if err := s.addTrack(call.TrackVideo, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	// Out-of-band control messages ride a dedicated ordered channel.
	ordered := true
	if _, err := pc.CreateDataChannel("signal", &webrtc.DataChannelInit{Ordered: &ordered}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("media: create data channel: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || obs.OnCandidate == nil {
			return
		}
		init := c.ToJSON()
		cand := call.Candidate{SDP: init.Candidate}
		if init.SDPMid != nil {
			cand.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			cand.SDPMLineIndex = *init.SDPMLineIndex
		}
		obs.OnCandidate(cand)
	})
	pc.OnICEConnectionStateChange(func(st webrtc.ICEConnectionState) {
		e.log.Debug("ice connection state", "state", st.String())
		if obs.OnConnState != nil {
			obs.OnConnState(mapConnState(st))
		}
	})

	return s, nil
}

type localTrack struct {
	track  *webrtc.TrackLocalStaticRTP
	sender *webrtc.RTPSender
}

type session struct {
	pc     *webrtc.PeerConnection
	tracks map[call.TrackKind]*localTrack
	log    *slog.Logger
}

func (s *session) addTrack(kind call.TrackKind, codec webrtc.RTPCodecCapability) error {
	track, err := webrtc.NewTrackLocalStaticRTP(codec, string(kind), "call")
	if err != nil {
		return fmt.Errorf("media: new %s track: %w", kind, err)
	}
	sender, err := s.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("media: add %s track: %w", kind, err)
	}
	s.tracks[kind] = &localTrack{track: track, sender: sender}
	return nil
}

func (s *session) CreateOffer(_ context.Context) (call.Description, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return call.Description{}, fmt.Errorf("media: create offer: %w", err)
	}
	return fromSessionDescription(offer), nil
}

func (s *session) CreateAnswer(_ context.Context) (call.Description, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return call.Description{}, fmt.Errorf("media: create answer: %w", err)
	}
	return fromSessionDescription(answer), nil
}

func (s *session) SetLocalDescription(d call.Description) error {
	if err := s.pc.SetLocalDescription(toSessionDescription(d)); err != nil {
		return fmt.Errorf("media: set local description: %w", err)
	}
	return nil
}

func (s *session) SetRemoteDescription(d call.Description) error {
	if err := s.pc.SetRemoteDescription(toSessionDescription(d)); err != nil {
		return fmt.Errorf("media: set remote description: %w", err)
	}
	return nil
}

func (s *session) AddRemoteCandidate(c call.Candidate) error {
	mid := c.SDPMid
	idx := c.SDPMLineIndex
	init := webrtc.ICECandidateInit{Candidate: c.SDP, SDPMid: &mid, SDPMLineIndex: &idx}
	if err := s.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("media: add candidate: %w", err)
	}
	return nil
}

// SetTrackEnabled detaches the track from its sender rather than stopping
// capture, so re-enabling resumes without renegotiation.
func (s *session) SetTrackEnabled(kind call.TrackKind, enabled bool) error {
	lt, ok := s.tracks[kind]
	if !ok {
		return nil
	}
	if enabled {
		return lt.sender.ReplaceTrack(lt.track)
	}
	return lt.sender.ReplaceTrack(nil)
}

func (s *session) Close() error {
	return s.pc.Close()
}

func toSessionDescription(d call.Description) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(d.Type), SDP: d.SDP}
}

func fromSessionDescription(d webrtc.SessionDescription) call.Description {
	return call.Description{Type: d.Type.String(), SDP: d.SDP}
}

func mapConnState(st webrtc.ICEConnectionState) call.ConnState {
	switch st {
	case webrtc.ICEConnectionStateChecking:
		return call.ConnStateChecking
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return call.ConnStateConnected
	case webrtc.ICEConnectionStateDisconnected:
		return call.ConnStateDisconnected
	case webrtc.ICEConnectionStateFailed:
		return call.ConnStateFailed
	case webrtc.ICEConnectionStateClosed:
		return call.ConnStateClosed
	default:
		return call.ConnStateNew
	}
}
