package rooms

import (
	"errors"
	"sort"
	"testing"
)

func TestCreateRoom_JoinSucceedsImmediately(t *testing.T) {
	r := NewRegistry(0)

	roomID, err := r.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(roomID) != DefaultCodeLength {
		t.Fatalf("room code length=%d, want %d", len(roomID), DefaultCodeLength)
	}
	if err := r.Join(roomID, "a"); err != nil {
		t.Fatalf("Join after CreateRoom: %v", err)
	}
	if !r.Contains(roomID, "a") {
		t.Fatalf("Contains(%q, a)=false after Join", roomID)
	}
}

func TestJoin_UnknownRoom(t *testing.T) {
	r := NewRegistry(0)
	if err := r.Join("NOPE1234", "a"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Join err=%v, want ErrRoomNotFound", err)
	}
}

func TestJoin_RoomFull(t *testing.T) {
	r := NewRegistry(0)
	roomID, err := r.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := r.Join(roomID, "a"); err != nil {
		t.Fatalf("Join a: %v", err)
	}
	if err := r.Join(roomID, "b"); err != nil {
		t.Fatalf("Join b: %v", err)
	}
	if err := r.Join(roomID, "c"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("Join c err=%v, want ErrRoomFull", err)
	}
}

func TestJoin_Duplicate(t *testing.T) {
	r := NewRegistry(0)
	roomID, err := r.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := r.Join(roomID, "a"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := r.Join(roomID, "a"); !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("duplicate Join err=%v, want ErrAlreadyMember", err)
	}
}

func TestMembersExcept(t *testing.T) {
	r := NewRegistry(0)
	roomID, err := r.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	for _, m := range []string{"a", "b"} {
		if err := r.Join(roomID, m); err != nil {
			t.Fatalf("Join %s: %v", m, err)
		}
	}

	if got := r.MembersExcept(roomID, "a"); len(got) != 1 || got[0] != "b" {
		t.Fatalf("MembersExcept(a)=%v, want [b]", got)
	}
	if got := r.MembersExcept(roomID, "b"); len(got) != 1 || got[0] != "a" {
		t.Fatalf("MembersExcept(b)=%v, want [a]", got)
	}
	if got := r.MembersExcept("UNKNOWN1", "a"); got != nil {
		t.Fatalf("MembersExcept(unknown room)=%v, want nil", got)
	}
}

func TestLeave_LastMemberDeletesRoom(t *testing.T) {
	r := NewRegistry(0)
	roomID, err := r.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := r.Join(roomID, "a"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	r.Leave(roomID, "a")

	if got := r.RoomCount(); got != 0 {
		t.Fatalf("RoomCount=%d after last leave, want 0", got)
	}
	// Explicit-create semantics: the id is dead until re-created.
	if err := r.Join(roomID, "b"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Join deleted room err=%v, want ErrRoomNotFound", err)
	}
}

func TestLeave_NonMemberIsNoOp(t *testing.T) {
	r := NewRegistry(0)
	roomID, err := r.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := r.Join(roomID, "a"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	r.Leave(roomID, "ghost")
	r.Leave("UNKNOWN1", "a")

	if !r.Contains(roomID, "a") {
		t.Fatalf("member a evicted by unrelated Leave calls")
	}
}

func TestLeaveAll(t *testing.T) {
	r := NewRegistry(0)
	room1, err := r.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	room2, err := r.CreateRoom()
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := r.Join(room1, "a"); err != nil {
		t.Fatalf("Join room1: %v", err)
	}
	if err := r.Join(room1, "b"); err != nil {
		t.Fatalf("Join room1: %v", err)
	}
	if err := r.Join(room2, "a"); err != nil {
		t.Fatalf("Join room2: %v", err)
	}

	affected := r.LeaveAll("a")
	sort.Strings(affected)
	want := []string{room1, room2}
	sort.Strings(want)
	if len(affected) != 2 || affected[0] != want[0] || affected[1] != want[1] {
		t.Fatalf("LeaveAll affected=%v, want %v", affected, want)
	}

	// room2 held only "a" and must be gone; room1 still holds "b".
	if r.Contains(room2, "a") || r.RoomCount() != 1 {
		t.Fatalf("room2 not deleted after LeaveAll (rooms=%d)", r.RoomCount())
	}
	if !r.Contains(room1, "b") {
		t.Fatalf("room1 lost unrelated member b")
	}

	if got := r.LeaveAll("a"); got != nil {
		t.Fatalf("second LeaveAll=%v, want nil", got)
	}
}
