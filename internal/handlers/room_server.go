// internal/handlers/room_server.go
package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/drkhunter/exquisite-corpse/internal/game"
	"github.com/drkhunter/exquisite-corpse/internal/models"
)

// RoomServer owns the room registry and the transport-side broadcast
// groups: one group of live WebSocket sessions per room code. The engine
// never sees connections; it hands this layer a finished snapshot and the
// fan-out happens here.
type RoomServer struct {
	Rooms  *game.RoomStore
	Logger *logrus.Logger

	mu     sync.Mutex
	groups map[string]map[*session]struct{}
}

func NewRoomServer(logger *logrus.Logger) *RoomServer {
	return &RoomServer{
		Rooms:  game.NewRoomStore(),
		Logger: logger,
		groups: make(map[string]map[*session]struct{}),
	}
}

// session is one client connection's gateway state: the transport handle
// plus the room/player binding established at create/join time.
type session struct {
	conn     *websocket.Conn
	roomCode string
	playerID string
}

// bindRoom wires a freshly created room's broadcast hooks into this
// server's groups. The hooks are called by the engine with the room lock
// held, so they must not block and must not touch the room.
func (s *RoomServer) bindRoom(room *game.Room) {
	code := room.Code
	room.BroadcastFn = func(state game.RoomState) {
		s.broadcastState(code, state)
	}
	room.NotifyFn = func(event string) {
		s.notify(code, event)
	}
}

func (s *RoomServer) joinGroup(code string, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[code]
	if !ok {
		group = make(map[*session]struct{})
		s.groups[code] = group
	}
	group[sess] = struct{}{}
}

func (s *RoomServer) leaveGroup(code string, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if group, ok := s.groups[code]; ok {
		delete(group, sess)
		if len(group) == 0 {
			delete(s.groups, code)
		}
	}
}

// groupSessions returns a point-in-time copy of a room's sessions so
// writes happen outside the groups lock.
func (s *RoomServer) groupSessions(code string) []*session {
	s.mu.Lock()
	defer s.mu.Unlock()
	group := s.groups[code]
	sessions := make([]*session, 0, len(group))
	for sess := range group {
		sessions = append(sessions, sess)
	}
	return sessions
}

// broadcastState pushes a room snapshot to every session in the room's
// group. Writes are asynchronous with a per-write timeout; a failed write
// is logged and left for the session's read loop to clean up.
func (s *RoomServer) broadcastState(code string, state game.RoomState) {
	payload, err := json.Marshal(state)
	if err != nil {
		s.Logger.Errorf("failed to marshal room state for %s: %v", code, err)
		return
	}
	s.send(code, models.Message{Type: models.EventRoomState, Payload: payload})
}

// notify sends a bare event (no payload) to a room's group.
func (s *RoomServer) notify(code string, event string) {
	s.send(code, models.Message{Type: event})
}

func (s *RoomServer) send(code string, msg models.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.Logger.Errorf("failed to marshal %s message for room %s: %v", msg.Type, code, err)
		return
	}
	sessions := s.groupSessions(code)

	go func() {
		for _, sess := range sessions {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := sess.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.Logger.Warnf("failed to write %s to a session in room %s: %v", msg.Type, code, err)
			}
		}
	}()
}
