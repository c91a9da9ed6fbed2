// internal/game/room.go
package game

import (
	"strings"
	"sync"
	"time"

	"github.com/drkhunter/exquisite-corpse/internal/models"
)

// Phase is the room's top-level lifecycle state. Transitions are strictly
// lobby -> drawing -> reveal -> lobby (reset).
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhaseDrawing Phase = "drawing"
	PhaseReveal  Phase = "reveal"
)

// DefaultGraceWindow is how long the engine waits after announcing a
// forced submit before closing the segment, so strokes already in flight
// at the deadline still land. Tuning constant, not an invariant.
const DefaultGraceWindow = 750 * time.Millisecond

// MaxNameLen bounds player display names.
const MaxNameLen = 20

// Room holds the entire authoritative state for one game instance in
// memory. Every public operation acquires Mu for its full duration; the
// per-segment timers are AfterFunc handles owned by the room itself so
// cancellation can never desync from the state they guard.
type Room struct {
	Code   string
	HostID string

	// Players is ordered; the order is the turn-rotation basis.
	Players  []models.Player
	Settings Settings

	Phase        Phase
	SegmentIndex int

	// Pictures holds one entry per player ever present, keyed by owner id.
	// Entries survive their owner's disconnect.
	Pictures map[string]*models.Picture

	// Submitted tracks which current players have finished the active
	// segment. Emptied transactionally with every phase/segment transition.
	Submitted map[string]bool

	// SegmentEndsAt is the drawing deadline for the current segment, nil
	// when the room is untimed or not drawing.
	SegmentEndsAt *time.Time

	// GraceWindow is the delay between the force-submit notice and the
	// forced advancement.
	GraceWindow time.Duration

	segmentTimer *time.Timer
	graceTimer   *time.Timer

	// BroadcastFn pushes a consistent room snapshot to every connection in
	// the room's group. It must not block and must not touch Mu; the
	// engine calls it with the lock held. Nil disables broadcasting.
	BroadcastFn func(state RoomState)

	// NotifyFn sends a bare event type (no snapshot) to the room's group,
	// used for the timer:force-submit notice. Same contract as BroadcastFn.
	NotifyFn func(event string)

	Mu sync.Mutex
}

// RoomState is the immutable snapshot shape broadcast to clients and
// served by the export path. SegmentEndsAt is epoch milliseconds.
type RoomState struct {
	Code          string                    `json:"code"`
	HostID        string                    `json:"hostId"`
	Players       []models.Player           `json:"players"`
	Settings      Settings                  `json:"settings"`
	Phase         Phase                     `json:"phase"`
	SegmentIndex  int                       `json:"segmentIndex"`
	Pictures      map[string]models.Picture `json:"pictures"`
	Submitted     map[string]bool           `json:"submitted"`
	SegmentEndsAt *int64                    `json:"segmentEndsAt"`
}

// NewRoom builds a lobby-phase room with the creator as host and an empty
// picture allocated for them.
func NewRoom(code, hostID, hostName string, settings Settings) *Room {
	host := models.Player{ID: hostID, Name: SanitizeName(hostName, "Host")}
	return &Room{
		Code:     code,
		HostID:   hostID,
		Players:  []models.Player{host},
		Settings: settings,
		Phase:    PhaseLobby,
		Pictures: map[string]*models.Picture{
			hostID: models.NewPicture(hostID, settings.Segments),
		},
		Submitted:   map[string]bool{},
		GraceWindow: DefaultGraceWindow,
	}
}

// SanitizeName trims and bounds a display name, substituting fallback
// when the result is empty. The bound counts runes so truncation never
// splits a multi-byte character.
func SanitizeName(name, fallback string) string {
	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > MaxNameLen {
		name = string(runes[:MaxNameLen])
	}
	if name == "" {
		return fallback
	}
	return name
}

// Snapshot returns a consistent copy of the room state. Acquires the lock.
func (r *Room) Snapshot() RoomState {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.snapshotLocked()
}

// snapshotLocked builds the broadcast snapshot. Assumes lock is held.
// Slice headers inside strokes are shared with live state; that is safe
// because segment strokes are always replaced wholesale, never mutated
// in place.
func (r *Room) snapshotLocked() RoomState {
	players := make([]models.Player, len(r.Players))
	copy(players, r.Players)

	pictures := make(map[string]models.Picture, len(r.Pictures))
	for ownerID, pic := range r.Pictures {
		segments := make([]models.Segment, len(pic.Segments))
		copy(segments, pic.Segments)
		pictures[ownerID] = models.Picture{OwnerID: pic.OwnerID, Segments: segments}
	}

	submitted := make(map[string]bool, len(r.Submitted))
	for id, ok := range r.Submitted {
		submitted[id] = ok
	}

	var endsAt *int64
	if r.SegmentEndsAt != nil {
		ms := r.SegmentEndsAt.UnixMilli()
		endsAt = &ms
	}

	return RoomState{
		Code:          r.Code,
		HostID:        r.HostID,
		Players:       players,
		Settings:      r.Settings,
		Phase:         r.Phase,
		SegmentIndex:  r.SegmentIndex,
		Pictures:      pictures,
		Submitted:     submitted,
		SegmentEndsAt: endsAt,
	}
}

// broadcastLocked pushes the current state to the room's group. Assumes
// lock is held.
func (r *Room) broadcastLocked() {
	if r.BroadcastFn != nil {
		r.BroadcastFn(r.snapshotLocked())
	}
}

// cancelTimersLocked stops any pending segment or grace timer. Stopping
// an already-fired or already-stopped timer is a no-op, so this is
// idempotent. Assumes lock is held.
func (r *Room) cancelTimersLocked() {
	if r.segmentTimer != nil {
		r.segmentTimer.Stop()
		r.segmentTimer = nil
	}
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
}

// playerIndexLocked returns the index of playerID in Players, or -1.
// Assumes lock is held.
func (r *Room) playerIndexLocked(playerID string) int {
	for i, p := range r.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// allSubmittedLocked reports whether every current player has submitted
// the active segment. Assumes lock is held.
func (r *Room) allSubmittedLocked() bool {
	for _, p := range r.Players {
		if !r.Submitted[p.ID] {
			return false
		}
	}
	return true
}
