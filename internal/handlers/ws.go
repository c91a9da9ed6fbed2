// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/drkhunter/exquisite-corpse/internal/game"
	"github.com/drkhunter/exquisite-corpse/internal/models"
)

// WSHandler upgrades the connection and runs the session gateway: it maps
// inbound events to engine operations and engine state to outbound
// broadcasts. Every inbound event is implicitly scoped to the sender's
// bound room code and player id, established at room:create/room:join;
// events arriving before a binding exists are ignored.
func WSHandler(logger *logrus.Logger, s *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"exquisite"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler exit")

		if c.Subprotocol() != "exquisite" {
			c.Close(websocket.StatusPolicyViolation, "client must use the 'exquisite' subprotocol")
			return
		}
		logger.Infof("websocket connected from %s", r.RemoteAddr)

		sess := &session{conn: c}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readMessages(ctx, c, s, sess, logger)

		logger.Infof("websocket read loop exited for %s", r.RemoteAddr)
		s.handleDisconnect(sess)
	}
}

// readMessages decodes inbound frames and dispatches them until the
// connection closes or the context is cancelled.
func readMessages(ctx context.Context, c *websocket.Conn, s *RoomServer, sess *session, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("websocket closed normally for player %s", sess.playerID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("websocket context canceled for player %s", sess.playerID)
			} else {
				logger.Warnf("websocket read error for player %s: %v", sess.playerID, err)
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("invalid JSON frame from player %s: %v", sess.playerID, err)
			continue
		}
		s.dispatch(sess, msg, logger)
	}
}

// dispatch routes one inbound event. Malformed payloads, events sent
// before a room binding exists, and unauthorized player ids are dropped
// silently, matching the engine's failure policy.
func (s *RoomServer) dispatch(sess *session, msg models.Message, logger *logrus.Logger) {
	switch msg.Type {
	case models.EventRoomCreate:
		var p models.CreateRoomPayload
		if msg.Payload != nil {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return
			}
		}
		s.handleCreate(sess, p, logger)

	case models.EventRoomJoin:
		var p models.JoinRoomPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		s.handleJoin(sess, p)

	case models.EventReadyToggle:
		var p models.ReadyTogglePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		// Only a client's own ready flag may be toggled.
		if p.PlayerID != sess.playerID {
			return
		}
		if room, ok := s.boundRoom(sess); ok {
			room.ToggleReady(sess.playerID)
		}

	case models.EventSettingsUpdate:
		var partial map[string]interface{}
		if err := json.Unmarshal(msg.Payload, &partial); err != nil {
			return
		}
		if room, ok := s.boundRoom(sess); ok {
			room.UpdateSettings(sess.playerID, partial)
		}

	case models.EventGameStart:
		if room, ok := s.boundRoom(sess); ok {
			room.Start()
		}

	case models.EventSegmentUpdate:
		var p models.SegmentUpdatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		if room, ok := s.boundRoom(sess); ok {
			room.UpdateSegment(sess.playerID, p.OwnerID, p.SegmentIndex, p.Strokes)
		}

	case models.EventSegmentSubmit:
		var p models.SubmitPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		if p.PlayerID != sess.playerID {
			return
		}
		if room, ok := s.boundRoom(sess); ok {
			room.Submit(sess.playerID)
		}

	case models.EventGameReset:
		if room, ok := s.boundRoom(sess); ok {
			room.Reset()
		}

	case models.EventNameUpdate:
		var p models.NameUpdatePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		if room, ok := s.boundRoom(sess); ok {
			room.UpdateName(sess.playerID, p.Name)
		}

	default:
		logger.Warnf("unknown event type %q from player %s", msg.Type, sess.playerID)
	}
}

// handleCreate makes a fresh room with a generated code and binds the
// creating session to it as host.
func (s *RoomServer) handleCreate(sess *session, p models.CreateRoomPayload, logger *logrus.Logger) {
	s.detach(sess)

	hostID := p.Player.ID
	if hostID == "" {
		hostID = uuid.NewString()
	}
	settings, err := game.ParseSettings(p.Settings, game.DefaultSettings())
	if err != nil {
		logger.Warnf("ignoring invalid settings on room:create: %v", err)
		settings = game.DefaultSettings()
	}

	room := s.Rooms.CreateWithFreshCode(hostID, p.Player.Name, settings)
	s.bindRoom(room)

	sess.roomCode = room.Code
	sess.playerID = hostID
	s.joinGroup(room.Code, sess)

	state := room.Snapshot()
	s.broadcastState(room.Code, state)
	logger.Infof("room %s created by player %s", room.Code, hostID)
}

// handleJoin binds the session to an existing room. Unknown codes create
// a room on the spot, with the joiner as host. The membership change goes
// through RoomStore.Join so that a concurrent last-player disconnect
// cannot reap the room between resolution and the append.
func (s *RoomServer) handleJoin(sess *session, p models.JoinRoomPayload) {
	code := strings.ToUpper(strings.TrimSpace(p.Code))
	if code == "" {
		return
	}
	s.detach(sess)

	playerID := p.Player.ID
	if playerID == "" {
		playerID = uuid.NewString()
	}

	sess.roomCode = code
	sess.playerID = playerID
	// Join the group first so this session receives the join broadcast.
	s.joinGroup(code, sess)

	room, created := s.Rooms.Join(code, playerID, p.Player.Name, game.DefaultSettings())
	if created {
		s.bindRoom(room)
		s.broadcastState(code, room.Snapshot())
	}
}

// boundRoom resolves the session's room binding.
func (s *RoomServer) boundRoom(sess *session) (*game.Room, bool) {
	if sess.roomCode == "" {
		return nil, false
	}
	return s.Rooms.Get(sess.roomCode)
}

// detach cleanly removes a session's current room binding before it binds
// elsewhere. A session that creates or joins twice leaves its old room
// instead of lingering there as a phantom player.
func (s *RoomServer) detach(sess *session) {
	if sess.roomCode == "" {
		return
	}
	s.handleDisconnect(sess)
	sess.roomCode = ""
	sess.playerID = ""
}

// handleDisconnect removes the player from their room on connection loss.
// The room is torn down, with no further broadcast, when its last player
// leaves.
func (s *RoomServer) handleDisconnect(sess *session) {
	if sess.roomCode == "" || sess.playerID == "" {
		return
	}
	s.leaveGroup(sess.roomCode, sess)
	if s.Rooms.LeaveAndReapIfEmpty(sess.roomCode, sess.playerID) {
		s.Logger.Infof("room %s is empty, removed", sess.roomCode)
	}
}
