// internal/models/messages.go
package models

import "encoding/json"

// Client-to-server event types carried in Message.Type.
const (
	EventRoomCreate     = "room:create"
	EventRoomJoin       = "room:join"
	EventReadyToggle    = "player:ready:toggle"
	EventSettingsUpdate = "room:settings:update"
	EventGameStart      = "game:start"
	EventSegmentUpdate  = "segment:update"
	EventSegmentSubmit  = "segment:submit"
	EventGameReset      = "game:reset"
	EventNameUpdate     = "player:name:update"
)

// Server-to-client event types.
const (
	EventRoomState   = "room:state"
	EventForceSubmit = "timer:force-submit"
)

// Message is the wire envelope for every WebSocket frame in both
// directions. Payload stays raw until the event type selects a shape.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PlayerRef identifies the acting player inside create/join payloads.
type PlayerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateRoomPayload is the body of a room:create event. Settings is a
// partial object merged over the defaults.
type CreateRoomPayload struct {
	Player   PlayerRef              `json:"player"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// JoinRoomPayload is the body of a room:join event.
type JoinRoomPayload struct {
	Code   string    `json:"code"`
	Player PlayerRef `json:"player"`
}

// ReadyTogglePayload is the body of a player:ready:toggle event.
type ReadyTogglePayload struct {
	PlayerID string `json:"playerId"`
}

// SegmentUpdatePayload is the body of a segment:update event. Strokes
// arrive untrusted and are sanitized before they touch room state.
type SegmentUpdatePayload struct {
	OwnerID      string   `json:"ownerId"`
	SegmentIndex int      `json:"segmentIndex"`
	Strokes      []Stroke `json:"strokes"`
}

// SubmitPayload is the body of a segment:submit event.
type SubmitPayload struct {
	PlayerID string `json:"playerId"`
}

// NameUpdatePayload is the body of a player:name:update event.
type NameUpdatePayload struct {
	Name string `json:"name"`
}
