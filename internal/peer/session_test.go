package peer

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/peterroe/roomsignal/internal/signaling"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSignaler captures outbound signaling so tests can shuttle messages
// between sessions in a controlled order.
type fakeSignaler struct {
	offers     chan webrtc.SessionDescription
	answers    chan webrtc.SessionDescription
	candidates chan webrtc.ICECandidateInit
	toggles    chan bool
	leaves     chan string
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{
		offers:     make(chan webrtc.SessionDescription, 4),
		answers:    make(chan webrtc.SessionDescription, 4),
		candidates: make(chan webrtc.ICECandidateInit, 64),
		toggles:    make(chan bool, 4),
		leaves:     make(chan string, 4),
	}
}

func (f *fakeSignaler) SendOffer(_ string, desc webrtc.SessionDescription) error {
	f.offers <- desc
	return nil
}

func (f *fakeSignaler) SendAnswer(_ string, desc webrtc.SessionDescription) error {
	f.answers <- desc
	return nil
}

func (f *fakeSignaler) SendCandidate(_ string, init webrtc.ICECandidateInit) error {
	f.candidates <- init
	return nil
}

func (f *fakeSignaler) SendToggleAudio(_ string, enabled bool) error {
	f.toggles <- enabled
	return nil
}

func (f *fakeSignaler) LeaveRoom(roomID string) error {
	f.leaves <- roomID
	return nil
}

func audioMedia() ([]webrtc.TrackLocal, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "roomsignal-test",
	)
	if err != nil {
		return nil, err
	}
	return []webrtc.TrackLocal{track}, nil
}

func newTestSession(t *testing.T, sig Signaler, states chan State) *Session {
	t.Helper()
	s, err := NewSession(Config{
		Signaler: sig,
		Logger:   testLogger(),
		OnStateChange: func(st State) {
			if states != nil {
				states <- st
			}
		},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func startSession(t *testing.T, sig Signaler, states chan State) *Session {
	t.Helper()
	s := newTestSession(t, sig, states)
	if err := s.Start("ROOM0001", audioMedia); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func waitState(t *testing.T, states chan State, want State) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case st := <-states:
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("never reached state %v", want)
		}
	}
}

// probe runs fn on the session goroutine and waits for it, so tests can
// inspect loop-owned fields without racing.
func probe(t *testing.T, s *Session, fn func()) {
	t.Helper()
	done := make(chan struct{})
	if err := s.post(func() {
		fn()
		close(done)
	}); err != nil {
		t.Fatalf("post: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("probe timed out")
	}
}

func offerEnvelope(t *testing.T, desc webrtc.SessionDescription) signaling.Envelope {
	t.Helper()
	payload, err := signaling.MarshalPayload(signaling.SDPPayloadFromPion(desc))
	if err != nil {
		t.Fatalf("marshal sdp: %v", err)
	}
	return signaling.Envelope{Type: signaling.EventOffer, Room: "ROOM0001", From: "peer", Payload: payload}
}

func answerEnvelope(t *testing.T, desc webrtc.SessionDescription) signaling.Envelope {
	t.Helper()
	payload, err := signaling.MarshalPayload(signaling.SDPPayloadFromPion(desc))
	if err != nil {
		t.Fatalf("marshal sdp: %v", err)
	}
	return signaling.Envelope{Type: signaling.EventAnswer, Room: "ROOM0001", From: "peer", Payload: payload}
}

func candidateEnvelope(t *testing.T, init webrtc.ICECandidateInit) signaling.Envelope {
	t.Helper()
	payload, err := signaling.MarshalPayload(signaling.CandidatePayloadFromPion(init))
	if err != nil {
		t.Fatalf("marshal candidate: %v", err)
	}
	return signaling.Envelope{Type: signaling.EventICECandidate, Room: "ROOM0001", From: "peer", Payload: payload}
}

var userJoined = signaling.Envelope{Type: signaling.EventUserJoined, Room: "ROOM0001", From: "peer"}
var userLeft = signaling.Envelope{Type: signaling.EventUserLeft, Room: "ROOM0001", From: "peer"}

func TestStartMediaFailureIsTerminal(t *testing.T) {
	s := newTestSession(t, newFakeSignaler(), nil)

	err := s.Start("ROOM0001", func() ([]webrtc.TrackLocal, error) {
		return nil, errors.New("no camera")
	})
	if !errors.Is(err, ErrLocalMediaUnavailable) {
		t.Fatalf("err=%v, want ErrLocalMediaUnavailable", err)
	}
	if s.State() != StateEnded {
		t.Fatalf("state=%v, want ended", s.State())
	}
}

func TestOfferAnswerReachesActiveBothSides(t *testing.T) {
	sigA := newFakeSignaler()
	sigB := newFakeSignaler()
	statesA := make(chan State, 16)
	statesB := make(chan State, 16)

	a := startSession(t, sigA, statesA)
	b := startSession(t, sigB, statesB)

	// A is the earlier joiner: user-joined makes it offer.
	if err := a.HandleEvent(userJoined); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	waitState(t, statesA, StateOffering)

	var offer webrtc.SessionDescription
	select {
	case offer = <-sigA.offers:
	case <-time.After(10 * time.Second):
		t.Fatalf("no offer sent")
	}

	if err := b.HandleEvent(offerEnvelope(t, offer)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	waitState(t, statesB, StateActive)

	var answer webrtc.SessionDescription
	select {
	case answer = <-sigB.answers:
	case <-time.After(10 * time.Second):
		t.Fatalf("no answer sent")
	}

	if err := a.HandleEvent(answerEnvelope(t, answer)); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	waitState(t, statesA, StateActive)
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	sigA := newFakeSignaler()
	sigB := newFakeSignaler()
	statesA := make(chan State, 16)
	statesB := make(chan State, 16)

	a := startSession(t, sigA, statesA)
	b := startSession(t, sigB, statesB)

	_ = a.HandleEvent(userJoined)
	waitState(t, statesA, StateOffering)
	offer := <-sigA.offers

	_ = b.HandleEvent(offerEnvelope(t, offer))
	waitState(t, statesB, StateActive)
	answer := <-sigB.answers

	// Deliver a trickle candidate to A before the answer. It must be
	// buffered, not dropped or applied early.
	early := webrtc.ICECandidateInit{Candidate: "candidate:1 1 UDP 2122252543 192.0.2.10 54321 typ host"}
	_ = a.HandleEvent(candidateEnvelope(t, early))

	probe(t, a, func() {
		if len(a.pendingCandidates) != 1 {
			t.Errorf("pendingCandidates=%d, want 1", len(a.pendingCandidates))
		}
	})

	_ = a.HandleEvent(answerEnvelope(t, answer))
	waitState(t, statesA, StateActive)

	probe(t, a, func() {
		if len(a.pendingCandidates) != 0 {
			t.Errorf("pendingCandidates=%d after flush, want 0", len(a.pendingCandidates))
		}
	})
}

func TestDuplicateUserLeftIsIdempotent(t *testing.T) {
	sigA := newFakeSignaler()
	statesA := make(chan State, 16)
	a := startSession(t, sigA, statesA)

	_ = a.HandleEvent(userJoined)
	waitState(t, statesA, StateOffering)

	_ = a.HandleEvent(userLeft)
	waitState(t, statesA, StateWaiting)

	_ = a.HandleEvent(userLeft)
	probe(t, a, func() {
		if a.state != StateWaiting {
			t.Errorf("state=%v, want waiting", a.state)
		}
		if a.pc != nil {
			t.Errorf("pc not nil after teardown")
		}
	})
}

func TestOffererIgnoresCollidingOffer(t *testing.T) {
	sigA := newFakeSignaler()
	statesA := make(chan State, 16)
	a := startSession(t, sigA, statesA)

	_ = a.HandleEvent(userJoined)
	waitState(t, statesA, StateOffering)

	// Build a colliding offer from a second throwaway session.
	sigX := newFakeSignaler()
	x := startSession(t, sigX, nil)
	_ = x.HandleEvent(userJoined)
	collidingOffer := <-sigX.offers

	_ = a.HandleEvent(offerEnvelope(t, collidingOffer))

	probe(t, a, func() {
		if a.state != StateOffering {
			t.Errorf("state=%v, want offering", a.state)
		}
	})
	select {
	case <-sigA.answers:
		t.Fatalf("offerer answered a colliding offer")
	default:
	}
}

func TestSetAudioEnabledEmitsToggle(t *testing.T) {
	sigA := newFakeSignaler()
	a := startSession(t, sigA, nil)

	if err := a.SetAudioEnabled(false); err != nil {
		t.Fatalf("SetAudioEnabled: %v", err)
	}
	select {
	case enabled := <-sigA.toggles:
		if enabled {
			t.Fatalf("toggle=true, want false")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no toggle sent")
	}
}

func TestLeaveNotifiesRoomAndEnds(t *testing.T) {
	sigA := newFakeSignaler()
	a := startSession(t, sigA, nil)

	if err := a.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	select {
	case roomID := <-sigA.leaves:
		if roomID != "ROOM0001" {
			t.Fatalf("left room %q", roomID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no leave-room sent")
	}
	if a.State() != StateEnded {
		t.Fatalf("state=%v, want ended", a.State())
	}
	if err := a.HandleEvent(userJoined); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("err=%v, want ErrSessionEnded", err)
	}
}
