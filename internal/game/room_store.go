// internal/game/room_store.go
package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// CodeLength is the length of a room code.
const CodeLength = 5

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RoomStore owns the set of live rooms keyed by room code. Rooms are
// created here, looked up here, and removed here when their last player
// leaves. Membership changes (Join, LeaveAndReapIfEmpty) run under the
// store lock so resolution and teardown cannot interleave. Lock order is
// always store then room; rooms never call back into the store.
type RoomStore struct {
	mu    sync.Mutex
	rooms map[string]*Room
	rng   *rand.Rand

	// GraceWindow is applied to every room created through this store.
	GraceWindow time.Duration
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:       make(map[string]*Room),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		GraceWindow: DefaultGraceWindow,
	}
}

// Create registers a new room under code. Fails if the code is already in
// use; generating a fresh code is the caller's responsibility (or use
// CreateWithFreshCode).
func (s *RoomStore) Create(code, hostID, hostName string, settings Settings) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[code]; exists {
		return nil, fmt.Errorf("room code %s already in use", code)
	}
	room := NewRoom(code, hostID, hostName, settings)
	room.GraceWindow = s.GraceWindow
	s.rooms[code] = room
	return room, nil
}

// CreateWithFreshCode generates random codes until one is unused and
// registers a room under it. Codes are short, so collisions are rare but
// possible; the check-and-insert happens under one lock acquisition.
func (s *RoomStore) CreateWithFreshCode(hostID, hostName string, settings Settings) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	var code string
	for {
		code = s.newCodeLocked()
		if _, exists := s.rooms[code]; !exists {
			break
		}
	}
	room := NewRoom(code, hostID, hostName, settings)
	room.GraceWindow = s.GraceWindow
	s.rooms[code] = room
	return room
}

// Join resolves code and adds the player to that room, creating the room
// with the joiner as host when the code is unknown. The membership change
// happens under the store lock, so it is serialized against
// LeaveAndReapIfEmpty: a joiner can never land in a room the registry has
// already dropped.
func (s *RoomStore) Join(code, playerID, name string, defaults Settings) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, exists := s.rooms[code]; exists {
		room.Join(playerID, name)
		return room, false
	}
	room := NewRoom(code, playerID, name, defaults)
	room.GraceWindow = s.GraceWindow
	s.rooms[code] = room
	return room, true
}

// LeaveAndReapIfEmpty removes the player from the room under code and,
// when that leaves the room empty, drops it from the registry in the same
// critical section. Returns whether the room was reaped. Unknown codes
// are a no-op.
func (s *RoomStore) LeaveAndReapIfEmpty(code, playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[code]
	if !exists {
		return false
	}
	if room.Leave(playerID) {
		delete(s.rooms, code)
		return true
	}
	return false
}

func (s *RoomStore) Get(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, exists := s.rooms[code]
	return room, exists
}

func (s *RoomStore) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
}

// Len reports the number of live rooms.
func (s *RoomStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// newCodeLocked returns a random 5-letter uppercase code. Assumes the
// store lock is held (the rng is not safe for concurrent use).
func (s *RoomStore) newCodeLocked() string {
	buf := make([]byte, CodeLength)
	for i := range buf {
		buf[i] = codeAlphabet[s.rng.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
