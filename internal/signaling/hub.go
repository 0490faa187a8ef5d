package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/peterroe/roomsignal/internal/metrics"
	"github.com/peterroe/roomsignal/internal/rooms"
)

// Hub owns the room registry and relays signaling traffic between clients.
// All state is mutated by the single Run goroutine; clients only communicate
// with it through channels.
type Hub struct {
	log      *slog.Logger
	metrics  *metrics.Metrics
	registry *rooms.Registry

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundMessage

	// done is closed when Run exits so client pumps never block on a hub
	// that is no longer draining its channels.
	done chan struct{}

	clients map[string]*Client
}

type inboundMessage struct {
	sender *Client
	env    Envelope

	// malformed marks a message the read pump could not parse; the hub
	// answers it with a bad_message error.
	malformed bool
}

func NewHub(registry *rooms.Registry, m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		log:        logger,
		metrics:    m,
		registry:   registry,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundMessage),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
	}
}

// Run processes hub events until ctx is cancelled. It must be called exactly
// once, before any client connects.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for _, c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[string]*Client)
			return

		case c := <-h.register:
			h.clients[c.id] = c
			h.log.Debug("client connected", "client", c.id)

		case c := <-h.unregister:
			if _, ok := h.clients[c.id]; !ok {
				continue
			}
			delete(h.clients, c.id)
			close(c.send)
			h.metrics.Inc(metrics.EventDisconnects)

			for _, roomID := range h.registry.LeaveAll(c.id) {
				h.broadcast(roomID, c.id, Envelope{
					Type: EventUserLeft,
					Room: roomID,
					From: c.id,
				})
			}
			h.log.Debug("client disconnected", "client", c.id)

		case msg := <-h.inbound:
			if _, ok := h.clients[msg.sender.id]; !ok {
				continue
			}
			if msg.malformed {
				h.metrics.Inc(metrics.EventMalformedMessages)
				h.sendTo(msg.sender, errorEnvelope(ErrorCodeBadMessage, "malformed message"))
				continue
			}
			h.handle(msg.sender, msg.env)
		}
	}
}

// handle applies one client message. Errors are reported to the sender only
// and never break the loop.
func (h *Hub) handle(sender *Client, env Envelope) {
	switch env.Type {
	case EventCreateRoom:
		h.handleCreateRoom(sender)
	case EventJoinRoom:
		h.handleJoinRoom(sender, env.Room)
	case EventLeaveRoom:
		h.handleLeaveRoom(sender, env.Room)
	case EventOffer, EventAnswer, EventICECandidate, EventChatMessage:
		h.relay(sender, env.Room, Envelope{
			Type:    env.Type,
			Room:    env.Room,
			From:    sender.id,
			Payload: env.Payload,
		})
	case EventToggleAudio:
		h.relay(sender, env.Room, Envelope{
			Type:    EventUserAudioToggle,
			Room:    env.Room,
			From:    sender.id,
			Payload: env.Payload,
		})
	default:
		// ParseEnvelope already rejects unknown types; this is unreachable
		// for messages that came through the read pump.
		h.sendTo(sender, errorEnvelope(ErrorCodeBadMessage, "unsupported message type"))
	}
}

func (h *Hub) handleCreateRoom(sender *Client) {
	roomID, err := h.registry.CreateRoom()
	if err != nil {
		h.log.Error("room creation failed", "err", err)
		h.sendTo(sender, errorEnvelope(ErrorCodeInternal, "could not create room"))
		return
	}
	if err := h.registry.Join(roomID, sender.id); err != nil {
		h.log.Error("creator join failed", "err", err, "room", roomID)
		h.sendTo(sender, errorEnvelope(ErrorCodeInternal, "could not create room"))
		return
	}
	h.metrics.Inc(metrics.EventRoomsCreated)
	h.metrics.Inc(metrics.EventJoins)
	h.sendTo(sender, Envelope{Type: EventRoomCreated, Room: roomID})
	h.log.Info("room created", "room", roomID, "client", sender.id)
}

func (h *Hub) handleJoinRoom(sender *Client, roomID string) {
	if !rooms.ValidRoomID(roomID) {
		h.sendTo(sender, errorEnvelope(ErrorCodeBadMessage, "invalid room id"))
		return
	}

	// Peer list is captured before the join so the ack names only the
	// members that were already present.
	peers := h.registry.MembersExcept(roomID, sender.id)

	err := h.registry.Join(roomID, sender.id)
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		h.metrics.Inc(metrics.EventJoinRoomNotFound)
		h.sendTo(sender, errorEnvelope(ErrorCodeRoomNotFound, "room does not exist"))
		return
	case errors.Is(err, rooms.ErrRoomFull):
		h.metrics.Inc(metrics.EventJoinRoomFull)
		h.sendTo(sender, errorEnvelope(ErrorCodeRoomFull, "room is full"))
		return
	case errors.Is(err, rooms.ErrAlreadyMember):
		h.sendTo(sender, errorEnvelope(ErrorCodeAlreadyInRoom, "already in room"))
		return
	case err != nil:
		h.log.Error("join failed", "err", err, "room", roomID)
		h.sendTo(sender, errorEnvelope(ErrorCodeInternal, "could not join room"))
		return
	}

	h.metrics.Inc(metrics.EventJoins)
	h.sendTo(sender, Envelope{Type: EventRoomJoined, Room: roomID, Peers: peers})
	h.broadcast(roomID, sender.id, Envelope{
		Type: EventUserJoined,
		Room: roomID,
		From: sender.id,
	})
	h.log.Info("client joined room", "room", roomID, "client", sender.id)
}

func (h *Hub) handleLeaveRoom(sender *Client, roomID string) {
	if !h.registry.Contains(roomID, sender.id) {
		// Duplicate leave is a no-op, not an error.
		return
	}
	h.registry.Leave(roomID, sender.id)
	h.metrics.Inc(metrics.EventLeaves)
	h.broadcast(roomID, sender.id, Envelope{
		Type: EventUserLeft,
		Room: roomID,
		From: sender.id,
	})
	h.log.Debug("client left room", "room", roomID, "client", sender.id)
}

// relay forwards a message to every other member of the named room. Senders
// that are not members of the room get an error reply instead.
func (h *Hub) relay(sender *Client, roomID string, out Envelope) {
	if !h.registry.Contains(roomID, sender.id) {
		h.metrics.Inc(metrics.EventRejectedNotInRoom)
		h.sendTo(sender, errorEnvelope(ErrorCodeNotInRoom, "not a member of room"))
		return
	}
	h.metrics.Inc(metrics.EventMessagesRelayed)
	h.broadcast(roomID, sender.id, out)
}

func (h *Hub) broadcast(roomID, exceptID string, env Envelope) {
	for _, memberID := range h.registry.MembersExcept(roomID, exceptID) {
		c, ok := h.clients[memberID]
		if !ok {
			continue
		}
		h.sendTo(c, env)
	}
}

// sendTo enqueues an envelope without blocking the hub loop. Delivery is
// at-most-once: a full send buffer drops the message.
func (h *Hub) sendTo(c *Client, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error("marshal outbound envelope", "err", err)
		return
	}
	select {
	case c.send <- data:
	default:
		h.metrics.Inc(metrics.EventRelayDrops)
		h.log.Warn("dropping message for slow client", "client", c.id, "type", string(env.Type))
	}
}
