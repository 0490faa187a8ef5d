package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Payload codecs shared by the Go-side signaling client and peer sessions.
// The server treats all of these as opaque cargo.

type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func SDPPayloadFromPion(desc webrtc.SessionDescription) SDPPayload {
	return SDPPayload{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func (p SDPPayload) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch p.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", p.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: p.SDP}, nil
}

type CandidatePayload struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidatePayloadFromPion(init webrtc.ICECandidateInit) CandidatePayload {
	return CandidatePayload{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (p CandidatePayload) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        p.Candidate,
		SDPMid:           p.SDPMid,
		SDPMLineIndex:    p.SDPMLineIndex,
		UsernameFragment: p.UsernameFragment,
	}
}

type AudioTogglePayload struct {
	Enabled bool `json:"enabled"`
}

type ChatPayload struct {
	Text string `json:"text"`
	Time string `json:"time"`
}

// MarshalPayload encodes a payload struct as envelope cargo.
func MarshalPayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}
