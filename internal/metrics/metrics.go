package metrics

import "sync"

// Counter names used by the signaling hub. Kept as plain strings so the
// registry stays a dumb map; a future metrics task can promote these to a
// real backend.
const (
	EventRoomsCreated      = "rooms_created"
	EventJoins             = "joins"
	EventJoinRoomNotFound  = "join_room_not_found"
	EventJoinRoomFull      = "join_room_full"
	EventMessagesRelayed   = "messages_relayed"
	EventRelayDrops        = "relay_drops"
	EventLeaves            = "leaves"
	EventDisconnects       = "disconnects"
	EventRejectedNotInRoom = "rejected_not_in_room"
	EventRateLimited       = "rate_limited"
	EventMalformedMessages = "malformed_messages"
)

// Metrics is a minimal, concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
