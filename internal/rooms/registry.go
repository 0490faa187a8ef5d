// Package rooms implements the in-memory room registry: the mapping from
// room identifier to the set of connected member identifiers.
//
// The registry holds no I/O and no persistence. Rooms are ephemeral call
// sessions; state is rebuilt from nothing on process restart. A room exists
// if and only if it has at least one member: the first join brings it into
// existence (via CreateRoom + Join) and the last leave deletes it.
package rooms

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrRoomNotFound is returned when joining a room id that is not live.
	// Rooms are created explicitly; joins never create rooms implicitly.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomFull is returned when a third member attempts to join. The
	// signaling protocol is strictly two-party.
	ErrRoomFull = errors.New("room is full")

	// ErrAlreadyMember is returned when a member joins a room it is in.
	ErrAlreadyMember = errors.New("already a member of this room")
)

// MaxMembers is the room occupancy cap.
const MaxMembers = 2

// Registry is the single source of truth for room membership.
//
// The signaling hub is the only writer (all mutations happen on its event
// loop goroutine); the mutex exists so read-only accessors remain safe from
// other goroutines such as tests and metrics scrapes.
type Registry struct {
	mu         sync.Mutex
	codeLength int
	members    map[string]map[string]struct{} // room id -> member ids
}

// NewRegistry returns an empty registry. codeLength <= 0 selects
// DefaultCodeLength.
func NewRegistry(codeLength int) *Registry {
	if codeLength <= 0 {
		codeLength = DefaultCodeLength
	}
	return &Registry{
		codeLength: codeLength,
		members:    make(map[string]map[string]struct{}),
	}
}

// CreateRoom allocates a fresh room code that collides with no live room and
// registers an empty room under it. The caller is expected to Join the
// creator immediately; an empty room left unjoined is deleted by the next
// sweep of Leave/LeaveAll bookkeeping only, so the hub always pairs the two.
func (r *Registry) CreateRoom() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		code, err := NewRoomCode(r.codeLength)
		if err != nil {
			return "", err
		}
		if _, live := r.members[code]; live {
			continue
		}
		r.members[code] = make(map[string]struct{})
		return code, nil
	}
}

// Join adds memberID to the room. The room must already exist.
func (r *Registry) Join(roomID, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[roomID]
	if !ok {
		return fmt.Errorf("join %q: %w", roomID, ErrRoomNotFound)
	}
	if _, in := set[memberID]; in {
		return fmt.Errorf("join %q: %w", roomID, ErrAlreadyMember)
	}
	if len(set) >= MaxMembers {
		return fmt.Errorf("join %q: %w", roomID, ErrRoomFull)
	}
	set[memberID] = struct{}{}
	return nil
}

// Leave removes memberID from the room and deletes the room the instant its
// member set becomes empty. Leaving a room one is not in is a no-op.
func (r *Registry) Leave(roomID, memberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(roomID, memberID)
}

// LeaveAll removes memberID from every room it belongs to and returns the
// ids of the rooms it was actually a member of, so the caller can notify
// each one. Used on abrupt disconnect.
//
// Expected membership per connection is 0 or 1, so the full scan is fine.
func (r *Registry) LeaveAll(memberID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected []string
	for roomID, set := range r.members {
		if _, in := set[memberID]; in {
			affected = append(affected, roomID)
		}
	}
	for _, roomID := range affected {
		r.leaveLocked(roomID, memberID)
	}
	return affected
}

func (r *Registry) leaveLocked(roomID, memberID string) {
	set, ok := r.members[roomID]
	if !ok {
		return
	}
	delete(set, memberID)
	if len(set) == 0 {
		delete(r.members, roomID)
	}
}

// MembersExcept returns the members of roomID other than memberID. These are
// the broadcast targets for a message sent by memberID.
func (r *Registry) MembersExcept(roomID, memberID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		if id != memberID {
			out = append(out, id)
		}
	}
	return out
}

// Contains reports whether memberID is a member of roomID.
func (r *Registry) Contains(roomID, memberID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[roomID]
	if !ok {
		return false
	}
	_, in := set[memberID]
	return in
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
