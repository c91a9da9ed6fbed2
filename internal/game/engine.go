// internal/game/engine.go
package game

import (
	"log"
	"math"
	"time"

	"github.com/drkhunter/exquisite-corpse/internal/models"
)

// Segment progression engine: every exported method here is one atomic
// operation against a room. Invalid, unauthorized, out-of-phase, and stale
// calls are silently ignored; they are expected under normal network
// latency and reconnect races, not faults.

// Join adds a player to the room, or refreshes their display name if the
// id is already known (reconnect). The player's picture is created on
// first join and retained across disconnects. Always broadcasts.
func (r *Room) Join(playerID, name string) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if idx := r.playerIndexLocked(playerID); idx >= 0 {
		if name != "" {
			r.Players[idx].Name = SanitizeName(name, r.Players[idx].Name)
		}
	} else {
		r.Players = append(r.Players, models.Player{
			ID:   playerID,
			Name: SanitizeName(name, "Guest"),
		})
	}
	if _, ok := r.Pictures[playerID]; !ok {
		r.Pictures[playerID] = models.NewPicture(playerID, r.Settings.Segments)
	}
	r.broadcastLocked()
}

// ToggleReady flips the acting player's ready flag. Lobby only.
func (r *Room) ToggleReady(playerID string) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Phase != PhaseLobby {
		return
	}
	idx := r.playerIndexLocked(playerID)
	if idx < 0 {
		return
	}
	r.Players[idx].Ready = !r.Players[idx].Ready
	r.broadcastLocked()
}

// UpdateName changes the acting player's display name. Lobby only.
func (r *Room) UpdateName(playerID, name string) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Phase != PhaseLobby {
		return
	}
	idx := r.playerIndexLocked(playerID)
	if idx < 0 {
		return
	}
	r.Players[idx].Name = SanitizeName(name, "Guest")
	r.broadcastLocked()
}

// UpdateSettings merges a partial settings object. Host only, lobby only.
// Every picture's segment slots are resized to the new count, preserving
// already-filled slots by index.
func (r *Room) UpdateSettings(actorID string, partial map[string]interface{}) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Phase != PhaseLobby || actorID != r.HostID {
		return
	}
	updated, err := ParseSettings(partial, r.Settings)
	if err != nil {
		log.Printf("room %s: rejecting settings update: %v", r.Code, err)
		return
	}
	r.Settings = updated
	for _, pic := range r.Pictures {
		pic.Resize(r.Settings.Segments)
	}
	r.broadcastLocked()
}

// Start moves the room from lobby to drawing. Requires every player to be
// ready. Segment 0 begins immediately; timed rooms get a deadline and a
// force-submit timer.
func (r *Room) Start() {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Phase != PhaseLobby {
		return
	}
	for _, p := range r.Players {
		if !p.Ready {
			return
		}
	}

	r.Phase = PhaseDrawing
	r.SegmentIndex = 0
	r.Submitted = map[string]bool{}
	r.scheduleSegmentTimerLocked()
	r.broadcastLocked()
}

// UpdateSegment overwrites the strokes of the segment the acting player
// is currently assigned to. The write is rejected when the room is not
// drawing, the payload's segment index is stale, or the caller is not the
// assigned artist for ownerID under the current rotation. The artist
// stamp set here is provisional; the authoritative stamp happens at
// advancement. Does not broadcast: this is the high-frequency path and
// state goes out on submit/advance.
func (r *Room) UpdateSegment(actorID, ownerID string, segmentIndex int, strokes []models.Stroke) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Phase != PhaseDrawing {
		return
	}
	if segmentIndex != r.SegmentIndex {
		return
	}
	if AssignedOwnerForArtist(r.Players, r.SegmentIndex, actorID) != ownerID {
		return
	}
	pic, ok := r.Pictures[ownerID]
	if !ok {
		return
	}

	// Each segment occupies an equal vertical slice of the full canvas.
	w := float64(r.Settings.Width)
	h := math.Floor(float64(r.Settings.Height) / float64(r.Settings.Segments))
	artist := actorID
	pic.Segments[segmentIndex] = models.Segment{
		ArtistID: &artist,
		Strokes:  SanitizeStrokes(strokes, w, h),
	}
}

// Submit marks the acting player as done with the current segment. When
// every current player has submitted, the pending timer is cancelled and
// the room advances immediately; otherwise the updated tally broadcasts.
// Submitting twice in the same segment is the same as submitting once.
func (r *Room) Submit(playerID string) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Phase != PhaseDrawing {
		return
	}
	if r.playerIndexLocked(playerID) < 0 {
		return
	}
	r.Submitted[playerID] = true

	if r.allSubmittedLocked() {
		r.cancelTimersLocked()
		r.advanceLocked()
	} else {
		r.broadcastLocked()
	}
}

// advanceLocked closes the current segment once everyone has submitted:
// it locks each owner's segment artist using the rotation over the
// current player order, then either transitions to reveal (last segment)
// or moves to the next segment with a fresh submission tally and timer.
// Assumes lock is held. Always broadcasts.
func (r *Room) advanceLocked() {
	if !r.allSubmittedLocked() {
		return
	}

	sid := r.SegmentIndex
	for ownerIdx, owner := range r.Players {
		artistID := ArtistFor(ownerIdx, sid, r.Players)
		if pic, ok := r.Pictures[owner.ID]; ok && sid < len(pic.Segments) {
			pic.Segments[sid].ArtistID = &artistID
		}
	}

	if sid+1 >= r.Settings.Segments {
		r.Phase = PhaseReveal
		r.Submitted = map[string]bool{}
		r.SegmentEndsAt = nil
	} else {
		r.SegmentIndex = sid + 1
		r.Submitted = map[string]bool{}
		r.scheduleSegmentTimerLocked()
	}
	r.broadcastLocked()
}

// scheduleSegmentTimerLocked cancels any outstanding timer and, for timed
// rooms, sets the segment deadline and arms a force-submit callback bound
// to the current segment index. Untimed rooms get a nil deadline and no
// timer. Assumes lock is held.
func (r *Room) scheduleSegmentTimerLocked() {
	r.cancelTimersLocked()
	if r.Settings.TimerDuration <= 0 {
		r.SegmentEndsAt = nil
		return
	}
	duration := time.Duration(r.Settings.TimerDuration) * time.Second
	endsAt := time.Now().Add(duration)
	r.SegmentEndsAt = &endsAt

	sid := r.SegmentIndex
	r.segmentTimer = time.AfterFunc(duration, func() {
		r.ForceSubmitAll(sid)
	})
}

// ForceSubmitAll runs when a segment timer expires for the captured
// segment index. It announces the final call, then after the grace window
// re-checks the segment: if the room has already advanced organically the
// expiry is stale and nothing happens. The grace window lets strokes sent
// right at the deadline land before the segment is forcibly closed.
func (r *Room) ForceSubmitAll(capturedSegment int) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Phase != PhaseDrawing || r.SegmentIndex != capturedSegment {
		return
	}

	log.Printf("room %s: timer expired on segment %d, requesting final strokes", r.Code, capturedSegment)
	if r.NotifyFn != nil {
		r.NotifyFn(models.EventForceSubmit)
	}

	r.graceTimer = time.AfterFunc(r.GraceWindow, func() {
		r.finalizeForcedSubmit(capturedSegment)
	})
}

// finalizeForcedSubmit is the second phase of a forced submit. It
// re-validates the captured segment index so a natural advance that raced
// the timer wins cleanly, then marks every remaining player submitted and
// advances.
func (r *Room) finalizeForcedSubmit(capturedSegment int) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	if r.Phase != PhaseDrawing || r.SegmentIndex != capturedSegment {
		log.Printf("room %s: segment already advanced, aborting force-submit for segment %d", r.Code, capturedSegment)
		return
	}
	for _, p := range r.Players {
		r.Submitted[p.ID] = true
	}
	r.advanceLocked()
}

// Reset returns the room to the lobby from any phase: timers cancelled,
// every picture cleared to empty segments at the current settings length,
// ready flags and submissions wiped.
func (r *Room) Reset() {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	r.cancelTimersLocked()
	for ownerID := range r.Pictures {
		r.Pictures[ownerID] = models.NewPicture(ownerID, r.Settings.Segments)
	}
	for i := range r.Players {
		r.Players[i].Ready = false
	}
	r.Phase = PhaseLobby
	r.SegmentIndex = 0
	r.Submitted = map[string]bool{}
	r.SegmentEndsAt = nil
	r.broadcastLocked()
}

// Leave removes a player from the rotation; their picture is retained.
// Returns true when the room is now empty, in which case timers are
// cancelled, nothing broadcasts, and the caller must delete the room from
// the registry. A departing host hands the role to the new first player.
func (r *Room) Leave(playerID string) (empty bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	idx := r.playerIndexLocked(playerID)
	if idx < 0 {
		return false
	}
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
	delete(r.Submitted, playerID)

	if len(r.Players) == 0 {
		r.cancelTimersLocked()
		return true
	}
	if playerID == r.HostID {
		r.HostID = r.Players[0].ID
	}
	r.broadcastLocked()
	return false
}
