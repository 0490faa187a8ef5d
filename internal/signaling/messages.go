package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type EventType string

// Client -> server events.
const (
	EventCreateRoom   EventType = "create-room"
	EventJoinRoom     EventType = "join-room"
	EventOffer        EventType = "offer"
	EventAnswer       EventType = "answer"
	EventICECandidate EventType = "ice-candidate"
	EventToggleAudio  EventType = "toggle-audio"
	EventChatMessage  EventType = "chat-message"
	EventLeaveRoom    EventType = "leave-room"
)

// Server -> client events. Offer/answer/candidate/chat reuse the inbound
// type tag, forwarded with From set to the sender's connection id.
const (
	EventRoomCreated     EventType = "room-created"
	EventRoomJoined      EventType = "room-joined"
	EventUserJoined      EventType = "user-joined"
	EventUserLeft        EventType = "user-left"
	EventUserAudioToggle EventType = "user-audio-toggle"
	EventError           EventType = "error"
)

// Error codes carried by EventError envelopes.
const (
	ErrorCodeRoomNotFound  = "room_not_found"
	ErrorCodeRoomFull      = "room_full"
	ErrorCodeAlreadyInRoom = "already_in_room"
	ErrorCodeNotInRoom     = "not_in_room"
	ErrorCodeBadMessage    = "bad_message"
	ErrorCodeInternal      = "internal"
)

// Envelope is the wire format for all signaling traffic. Payload carries
// event-specific cargo (SDP, ICE candidates, chat bodies) that the relay
// forwards verbatim and never inspects.
type Envelope struct {
	Type EventType `json:"type"`
	Room string    `json:"room,omitempty"`

	// From is the server-assigned connection id of the originating client.
	// Server-populated; clients must leave it empty.
	From string `json:"from,omitempty"`

	// Peers lists the other members already present, on room-joined acks.
	Peers []string `json:"peers,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ParseEnvelope strictly decodes a client message. Unknown fields, trailing
// data, server-only event types and field combinations that don't match the
// event type are all rejected.
func ParseEnvelope(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	if err := env.validate(); err != nil {
		return Envelope{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Envelope{}, fmt.Errorf("unexpected trailing data")
	}
	return env, nil
}

func (e Envelope) validate() error {
	if e.From != "" {
		return fmt.Errorf("%s message must not set from", e.Type)
	}
	if len(e.Peers) != 0 {
		return fmt.Errorf("%s message must not set peers", e.Type)
	}
	if e.Code != "" || e.Message != "" {
		return fmt.Errorf("%s message must not set code/message", e.Type)
	}

	switch e.Type {
	case EventCreateRoom:
		if e.Room != "" {
			return fmt.Errorf("create-room message must not name a room")
		}
		if len(e.Payload) != 0 {
			return fmt.Errorf("create-room message has unexpected payload")
		}
	case EventJoinRoom, EventLeaveRoom:
		if e.Room == "" {
			return fmt.Errorf("%s message missing room", e.Type)
		}
		if len(e.Payload) != 0 {
			return fmt.Errorf("%s message has unexpected payload", e.Type)
		}
	case EventOffer, EventAnswer, EventICECandidate, EventToggleAudio, EventChatMessage:
		if e.Room == "" {
			return fmt.Errorf("%s message missing room", e.Type)
		}
		if len(e.Payload) == 0 {
			return fmt.Errorf("%s message missing payload", e.Type)
		}
	default:
		return fmt.Errorf("unsupported message type %q", e.Type)
	}
	return nil
}

func errorEnvelope(code, message string) Envelope {
	return Envelope{
		Type:    EventError,
		Code:    code,
		Message: message,
	}
}
