// Package peer drives the client side of a two-party call: one Session per
// room, owning the RTCPeerConnection lifecycle and the offer/answer state
// machine on top of relayed signaling events.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/peterroe/roomsignal/internal/signaling"
)

var (
	ErrLocalMediaUnavailable = errors.New("peer: local media unavailable")
	ErrNegotiationFailed     = errors.New("peer: negotiation failed")
	ErrSessionEnded          = errors.New("peer: session ended")
)

// Signaler sends outbound signaling on behalf of a session. Implemented by
// signalclient.Client.
type Signaler interface {
	SendOffer(roomID string, desc webrtc.SessionDescription) error
	SendAnswer(roomID string, desc webrtc.SessionDescription) error
	SendCandidate(roomID string, init webrtc.ICECandidateInit) error
	SendToggleAudio(roomID string, enabled bool) error
	LeaveRoom(roomID string) error
}

// MediaSource acquires the local tracks to publish. Called once, at Start.
type MediaSource func() ([]webrtc.TrackLocal, error)

type Config struct {
	API        *webrtc.API
	ICEServers []webrtc.ICEServer
	Signaler   Signaler
	Logger     *slog.Logger

	// OnStateChange observes every transition, called from the session
	// goroutine; keep it fast.
	OnStateChange func(State)
	// OnRemoteTrack fires when remote media arrives.
	OnRemoteTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	// OnPeerAudioToggle fires when the remote peer mutes or unmutes.
	OnPeerAudioToggle func(enabled bool)
}

// Session is a single-goroutine state machine: every relayed event and local
// action is applied on the session goroutine, one at a time, never
// interleaved mid-transition.
type Session struct {
	cfg    Config
	log    *slog.Logger
	roomID string

	events    chan func()
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the session goroutine after Start.
	state        State
	pc           *webrtc.PeerConnection
	tracks       []webrtc.TrackLocal
	audioSenders []*webrtc.RTPSender
	audioTracks  []webrtc.TrackLocal
	audioEnabled bool

	// Candidates that arrived before the remote description; flushed after
	// SetRemoteDescription so none are lost to ordering.
	pendingCandidates []webrtc.ICECandidateInit
	remoteSet         bool

	// offerer marks the earlier joiner: the side that saw user-joined and
	// therefore sends the offer. Ties broken deterministically by this
	// role: the offerer ignores a colliding inbound offer, the other side
	// abandons its own offer and answers.
	offerer bool

	mu sync.Mutex // guards state for State()
}

func NewSession(cfg Config) (*Session, error) {
	if cfg.Signaler == nil {
		return nil, errors.New("peer: Signaler is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("peer: Logger is required")
	}
	if cfg.API == nil {
		api, err := NewAPI()
		if err != nil {
			return nil, err
		}
		cfg.API = api
	}
	return &Session{
		cfg:          cfg,
		log:          cfg.Logger,
		events:       make(chan func(), 32),
		done:         make(chan struct{}),
		state:        StateIdle,
		audioEnabled: true,
	}, nil
}

// Start acquires local media and enters Waiting. A media failure is terminal.
func (s *Session) Start(roomID string, media MediaSource) error {
	if media == nil {
		return fmt.Errorf("%w: no media source", ErrLocalMediaUnavailable)
	}
	tracks, err := media()
	if err != nil {
		s.setState(StateEnded)
		return fmt.Errorf("%w: %v", ErrLocalMediaUnavailable, err)
	}

	s.roomID = roomID
	s.tracks = tracks
	s.setState(StateWaiting)
	go s.loop()
	return nil
}

func (s *Session) loop() {
	for {
		select {
		case fn := <-s.events:
			s.apply(fn)
		case <-s.done:
			return
		}
	}
}

// apply runs one queued transition. A panic tears the peer connection down
// instead of killing the queue.
func (s *Session) apply(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in session transition", "recover", r)
			s.teardownToWaiting()
		}
	}()
	fn()
}

func (s *Session) post(fn func()) error {
	select {
	case s.events <- fn:
		return nil
	case <-s.done:
		return ErrSessionEnded
	}
}

// State reports the current negotiation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.log.Debug("session state", "from", prev.String(), "to", next.String())
		if s.cfg.OnStateChange != nil {
			s.cfg.OnStateChange(next)
		}
	}
}

// HandleEvent feeds one relayed server envelope into the state machine.
func (s *Session) HandleEvent(env signaling.Envelope) error {
	switch env.Type {
	case signaling.EventUserJoined:
		return s.post(s.onUserJoined)

	case signaling.EventOffer:
		desc, err := decodeSDP(env.Payload, "offer")
		if err != nil {
			return err
		}
		return s.post(func() { s.onOffer(desc) })

	case signaling.EventAnswer:
		desc, err := decodeSDP(env.Payload, "answer")
		if err != nil {
			return err
		}
		return s.post(func() { s.onAnswer(desc) })

	case signaling.EventICECandidate:
		var p signaling.CandidatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode candidate payload: %w", err)
		}
		return s.post(func() { s.onRemoteCandidate(p.ToPion()) })

	case signaling.EventUserLeft:
		return s.post(s.teardownToWaiting)

	case signaling.EventUserAudioToggle:
		var p signaling.AudioTogglePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode toggle payload: %w", err)
		}
		return s.post(func() {
			if s.cfg.OnPeerAudioToggle != nil {
				s.cfg.OnPeerAudioToggle(p.Enabled)
			}
		})

	default:
		// room-joined acks, chat and errors are not negotiation inputs.
		return nil
	}
}

func decodeSDP(payload json.RawMessage, wantType string) (webrtc.SessionDescription, error) {
	var p signaling.SDPPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("decode sdp payload: %w", err)
	}
	if p.Type != wantType {
		return webrtc.SessionDescription{}, fmt.Errorf("sdp payload type %q, want %q", p.Type, wantType)
	}
	return p.ToPion()
}

// onUserJoined: the earlier joiner sees the newcomer and makes the offer.
func (s *Session) onUserJoined() {
	if s.state != StateWaiting {
		s.log.Debug("ignoring user-joined", "state", s.state.String())
		return
	}
	s.offerer = true

	if err := s.setupPeerConnection(); err != nil {
		s.negotiationFailed("setup peer connection", err)
		return
	}
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		s.negotiationFailed("create offer", err)
		return
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		s.negotiationFailed("set local offer", err)
		return
	}
	if err := s.cfg.Signaler.SendOffer(s.roomID, offer); err != nil {
		s.negotiationFailed("send offer", err)
		return
	}
	s.setState(StateOffering)
}

func (s *Session) onOffer(desc webrtc.SessionDescription) {
	switch s.state {
	case StateWaiting:
		// Normal path: the later joiner answers.
	case StateOffering:
		if s.offerer {
			// Glare: the deterministic offerer wins and ignores the
			// colliding offer.
			s.log.Debug("ignoring colliding offer as offerer")
			return
		}
		// Abandon our own offer and answer theirs.
		s.log.Debug("abandoning own offer to answer colliding offer")
		s.teardownPC()
	default:
		s.log.Debug("ignoring offer", "state", s.state.String())
		return
	}

	s.setState(StateAnswering)

	if s.pc == nil {
		if err := s.setupPeerConnection(); err != nil {
			s.negotiationFailed("setup peer connection", err)
			return
		}
	}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		s.negotiationFailed("set remote offer", err)
		return
	}
	s.remoteSet = true
	s.flushPendingCandidates()

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		s.negotiationFailed("create answer", err)
		return
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		s.negotiationFailed("set local answer", err)
		return
	}
	if err := s.cfg.Signaler.SendAnswer(s.roomID, answer); err != nil {
		s.negotiationFailed("send answer", err)
		return
	}
	s.setState(StateActive)
}

func (s *Session) onAnswer(desc webrtc.SessionDescription) {
	if s.state != StateOffering {
		s.log.Debug("ignoring answer", "state", s.state.String())
		return
	}
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		s.negotiationFailed("set remote answer", err)
		return
	}
	s.remoteSet = true
	s.flushPendingCandidates()
	s.setState(StateActive)
}

// onRemoteCandidate applies a trickle candidate, buffering it if the remote
// description is not set yet so ordering never loses a candidate.
func (s *Session) onRemoteCandidate(init webrtc.ICECandidateInit) {
	if s.state == StateEnded {
		return
	}
	if s.pc == nil || !s.remoteSet {
		s.pendingCandidates = append(s.pendingCandidates, init)
		return
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		s.log.Warn("add ice candidate", "err", err)
	}
}

func (s *Session) flushPendingCandidates() {
	for _, init := range s.pendingCandidates {
		if err := s.pc.AddICECandidate(init); err != nil {
			s.log.Warn("add buffered ice candidate", "err", err)
		}
	}
	s.pendingCandidates = nil
}

// SetAudioEnabled pauses or resumes the published audio tracks and notifies
// the room. It does not touch negotiation state.
func (s *Session) SetAudioEnabled(enabled bool) error {
	errc := make(chan error, 1)
	if err := s.post(func() {
		errc <- s.applyAudioEnabled(enabled)
	}); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrSessionEnded
	}
}

func (s *Session) applyAudioEnabled(enabled bool) error {
	s.audioEnabled = enabled
	for i, sender := range s.audioSenders {
		var next webrtc.TrackLocal
		if enabled {
			next = s.audioTracks[i]
		}
		if err := sender.ReplaceTrack(next); err != nil {
			return fmt.Errorf("replace audio track: %w", err)
		}
	}
	return s.cfg.Signaler.SendToggleAudio(s.roomID, enabled)
}

// Leave sends leave-room, closes the peer connection and ends the session.
func (s *Session) Leave() error {
	errc := make(chan error, 1)
	if err := s.post(func() {
		err := s.cfg.Signaler.LeaveRoom(s.roomID)
		s.teardownPC()
		s.setState(StateEnded)
		s.closeOnce.Do(func() { close(s.done) })
		errc <- err
	}); err != nil {
		return err
	}
	return <-errc
}

// Close ends the session without notifying the room. Safe to call twice.
func (s *Session) Close() error {
	err := s.post(func() {
		s.teardownPC()
		s.setState(StateEnded)
		s.closeOnce.Do(func() { close(s.done) })
	})
	if errors.Is(err, ErrSessionEnded) {
		return nil
	}
	return err
}

func (s *Session) negotiationFailed(op string, err error) {
	s.log.Warn("negotiation failed", "op", op, "err", err)
	s.teardownToWaiting()
}

// teardownToWaiting drops the peer relationship and returns to Waiting.
// Idempotent: a duplicate user-left while already Waiting is a no-op.
func (s *Session) teardownToWaiting() {
	if s.state == StateEnded {
		return
	}
	if s.state == StateWaiting && s.pc == nil {
		return
	}
	s.teardownPC()
	s.setState(StateWaiting)
}

func (s *Session) teardownPC() {
	if s.pc != nil {
		_ = s.pc.Close()
		s.pc = nil
	}
	s.audioSenders = nil
	s.audioTracks = nil
	s.pendingCandidates = nil
	s.remoteSet = false
	s.offerer = false
}

func (s *Session) setupPeerConnection() error {
	pc, err := s.cfg.API.NewPeerConnection(webrtc.Configuration{ICEServers: s.cfg.ICEServers})
	if err != nil {
		return err
	}

	for _, track := range s.tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			_ = pc.Close()
			return err
		}
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			s.audioSenders = append(s.audioSenders, sender)
			s.audioTracks = append(s.audioTracks, track)
			if !s.audioEnabled {
				if err := sender.ReplaceTrack(nil); err != nil {
					_ = pc.Close()
					return err
				}
			}
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := s.cfg.Signaler.SendCandidate(s.roomID, c.ToJSON()); err != nil {
			s.log.Warn("send ice candidate", "err", err)
		}
	})

	if s.cfg.OnRemoteTrack != nil {
		pc.OnTrack(s.cfg.OnRemoteTrack)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			_ = s.post(func() {
				// The callback may outlive this pc; only react if it is
				// still the current one.
				if s.pc == pc {
					s.log.Info("peer connection lost", "state", state.String())
					s.teardownToWaiting()
				}
			})
		default:
		}
	})

	s.pc = pc
	return nil
}
