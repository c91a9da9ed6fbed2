// internal/game/engine_test.go
package game

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drkhunter/exquisite-corpse/internal/models"
)

// mockBroadcaster collects snapshots and notices instead of sending them
// over WS.
type mockBroadcaster struct {
	mu      sync.Mutex
	states  []RoomState
	notices []string
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{}
}

func (mb *mockBroadcaster) broadcastFn(state RoomState) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.states = append(mb.states, state)
}

func (mb *mockBroadcaster) notifyFn(event string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.notices = append(mb.notices, event)
}

func (mb *mockBroadcaster) lastState() *RoomState {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.states) == 0 {
		return nil
	}
	return &mb.states[len(mb.states)-1]
}

func (mb *mockBroadcaster) stateCount() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.states)
}

func (mb *mockBroadcaster) noticeCount() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.notices)
}

func untimedSettings(segments int) Settings {
	s := DefaultSettings()
	s.Segments = segments
	s.TimerDuration = 0
	return s
}

// setupTestRoom builds a room with numPlayers joined players (p1 is host)
// and mock broadcast hooks. The grace window is shortened for tests.
func setupTestRoom(t *testing.T, numPlayers int, settings Settings) (*Room, []string, *mockBroadcaster) {
	t.Helper()
	mb := newMockBroadcaster()
	room := NewRoom("ABCDE", "p1", "Player 1", settings)
	room.GraceWindow = 20 * time.Millisecond
	room.BroadcastFn = mb.broadcastFn
	room.NotifyFn = mb.notifyFn

	ids := []string{"p1"}
	for i := 2; i <= numPlayers; i++ {
		id := fmt.Sprintf("p%d", i)
		room.Join(id, fmt.Sprintf("Player %d", i))
		ids = append(ids, id)
	}
	return room, ids, mb
}

func startDrawing(t *testing.T, room *Room, ids []string) {
	t.Helper()
	for _, id := range ids {
		room.ToggleReady(id)
	}
	room.Start()
	require.Equal(t, PhaseDrawing, room.Phase, "room should be drawing after all-ready start")
}

// drawAndSubmit has the player draw one stroke on their assigned picture
// for the current segment, then submit.
func drawAndSubmit(t *testing.T, room *Room, playerID string) {
	t.Helper()
	state := room.Snapshot()
	owner := AssignedOwnerForArtist(state.Players, state.SegmentIndex, playerID)
	require.NotEmpty(t, owner, "player %s should have an assignment", playerID)
	room.UpdateSegment(playerID, owner, state.SegmentIndex, []models.Stroke{
		{Size: 4, Points: []models.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}},
	})
	room.Submit(playerID)
}

func TestJoinCreatesPictureAndReconnectKeepsIt(t *testing.T) {
	room, _, _ := setupTestRoom(t, 2, untimedSettings(3))

	require.Len(t, room.Players, 2)
	require.Contains(t, room.Pictures, "p2")
	assert.Len(t, room.Pictures["p2"].Segments, 3)

	// Rejoining with a known id updates the name without duplicating the
	// player or resetting the picture.
	pic := room.Pictures["p2"]
	room.Join("p2", "Renamed")
	assert.Len(t, room.Players, 2)
	assert.Equal(t, "Renamed", room.Players[1].Name)
	assert.Same(t, pic, room.Pictures["p2"])
}

func TestJoinSanitizesName(t *testing.T) {
	room, _, _ := setupTestRoom(t, 1, untimedSettings(2))

	room.Join("p2", "   ")
	assert.Equal(t, "Guest", room.Players[1].Name)

	room.Join("p3", "this name is way way way too long")
	assert.Len(t, room.Players[2].Name, MaxNameLen)

	// Truncation counts runes, so a multi-byte name is cut on a character
	// boundary and stays valid UTF-8.
	room.Join("p4", strings.Repeat("é", MaxNameLen+5))
	got := room.Players[3].Name
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, MaxNameLen, utf8.RuneCountInString(got))
}

func TestToggleReadyLobbyOnly(t *testing.T) {
	room, ids, _ := setupTestRoom(t, 2, untimedSettings(2))

	room.ToggleReady("p1")
	assert.True(t, room.Players[0].Ready)
	room.ToggleReady("p1")
	assert.False(t, room.Players[0].Ready)

	// Unknown ids are ignored.
	room.ToggleReady("ghost")
	assert.Len(t, room.Players, 2)

	startDrawing(t, room, ids)
	before := room.Players[0].Ready
	room.ToggleReady("p1")
	assert.Equal(t, before, room.Players[0].Ready, "ready must not flip outside lobby")
}

func TestUpdateNameLobbyOnly(t *testing.T) {
	room, ids, _ := setupTestRoom(t, 2, untimedSettings(2))

	room.UpdateName("p2", "  Dora  ")
	assert.Equal(t, "Dora", room.Players[1].Name)

	room.UpdateName("p2", "")
	assert.Equal(t, "Guest", room.Players[1].Name)

	startDrawing(t, room, ids)
	room.UpdateName("p2", "Midgame")
	assert.Equal(t, "Guest", room.Players[1].Name, "rename must be ignored outside lobby")
}

func TestStartRequiresAllReady(t *testing.T) {
	room, _, _ := setupTestRoom(t, 2, untimedSettings(2))

	room.ToggleReady("p1")
	room.Start()
	assert.Equal(t, PhaseLobby, room.Phase, "start must be refused until everyone is ready")

	room.ToggleReady("p2")
	room.Start()
	assert.Equal(t, PhaseDrawing, room.Phase)
	assert.Equal(t, 0, room.SegmentIndex)
	assert.Empty(t, room.Submitted)
	assert.Nil(t, room.SegmentEndsAt, "untimed room must have no deadline")
}

func TestStartTimedSetsDeadline(t *testing.T) {
	settings := untimedSettings(2)
	settings.TimerDuration = 30
	room, ids, _ := setupTestRoom(t, 2, settings)

	startDrawing(t, room, ids)
	require.NotNil(t, room.SegmentEndsAt)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), *room.SegmentEndsAt, time.Second)

	// Reset cancels the pending timer and clears the deadline.
	room.Reset()
	assert.Equal(t, PhaseLobby, room.Phase)
	assert.Nil(t, room.SegmentEndsAt)
	assert.Nil(t, room.segmentTimer)
}

func TestUpdateSettingsHostOnlyLobbyOnly(t *testing.T) {
	room, ids, _ := setupTestRoom(t, 2, untimedSettings(3))

	room.UpdateSettings("p2", map[string]interface{}{"segments": float64(4)})
	assert.Equal(t, 3, room.Settings.Segments, "non-host settings update must be ignored")

	room.UpdateSettings("p1", map[string]interface{}{"segments": float64(4)})
	assert.Equal(t, 4, room.Settings.Segments)
	for _, pic := range room.Pictures {
		assert.Len(t, pic.Segments, 4)
	}

	startDrawing(t, room, ids)
	room.UpdateSettings("p1", map[string]interface{}{"segments": float64(2)})
	assert.Equal(t, 4, room.Settings.Segments, "settings are locked outside lobby")
}

// TestSettingsResizePreservesPrefix shrinks 5 -> 3 and grows back to 5:
// the surviving prefix keeps its content and the new tail is empty.
func TestSettingsResizePreservesPrefix(t *testing.T) {
	room, _, _ := setupTestRoom(t, 1, untimedSettings(5))

	pic := room.Pictures["p1"]
	for i := 0; i < 5; i++ {
		artist := "p1"
		pic.Segments[i] = models.Segment{
			ArtistID: &artist,
			Strokes:  []models.Stroke{{Size: float64(i + 1), Points: []models.Point{{X: float64(i), Y: 0}}}},
		}
	}

	room.UpdateSettings("p1", map[string]interface{}{"segments": float64(3)})
	require.Len(t, pic.Segments, 3)

	room.UpdateSettings("p1", map[string]interface{}{"segments": float64(5)})
	require.Len(t, pic.Segments, 5)

	for i := 0; i < 3; i++ {
		require.Len(t, pic.Segments[i].Strokes, 1, "segment %d should survive the round trip", i)
		assert.Equal(t, float64(i+1), pic.Segments[i].Strokes[0].Size)
	}
	for i := 3; i < 5; i++ {
		assert.Nil(t, pic.Segments[i].ArtistID, "segment %d should be fresh", i)
		assert.Empty(t, pic.Segments[i].Strokes)
	}
}

// TestFullGameToReveal drives the 2-player, 2-segment scenario end to
// end: own pictures at segment 0, swapped at segment 1, reveal after the
// final submits, every segment stamped with its locked artist.
func TestFullGameToReveal(t *testing.T) {
	room, ids, mb := setupTestRoom(t, 2, untimedSettings(2))
	startDrawing(t, room, ids)

	// Segment 0: everyone draws their own picture.
	assert.Equal(t, "p1", AssignedOwnerForArtist(room.Players, 0, "p1"))
	assert.Equal(t, "p2", AssignedOwnerForArtist(room.Players, 0, "p2"))

	drawAndSubmit(t, room, "p1")
	assert.Equal(t, 0, room.SegmentIndex, "segment must not advance until all submit")
	drawAndSubmit(t, room, "p2")

	require.Equal(t, PhaseDrawing, room.Phase)
	require.Equal(t, 1, room.SegmentIndex)
	assert.Empty(t, room.Submitted, "tally must be cleared with the transition")

	// Locked artists for segment 0.
	require.NotNil(t, room.Pictures["p1"].Segments[0].ArtistID)
	assert.Equal(t, "p1", *room.Pictures["p1"].Segments[0].ArtistID)
	require.NotNil(t, room.Pictures["p2"].Segments[0].ArtistID)
	assert.Equal(t, "p2", *room.Pictures["p2"].Segments[0].ArtistID)

	// Segment 1: the assignment swaps.
	assert.Equal(t, "p2", AssignedOwnerForArtist(room.Players, 1, "p1"))
	assert.Equal(t, "p1", AssignedOwnerForArtist(room.Players, 1, "p2"))

	drawAndSubmit(t, room, "p1")
	drawAndSubmit(t, room, "p2")

	assert.Equal(t, PhaseReveal, room.Phase)
	assert.Empty(t, room.Submitted)
	assert.Nil(t, room.SegmentEndsAt)

	for _, ownerID := range ids {
		for i, seg := range room.Pictures[ownerID].Segments {
			require.NotNil(t, seg.ArtistID, "picture %s segment %d should have a locked artist", ownerID, i)
		}
	}
	assert.Equal(t, "p1", *room.Pictures["p2"].Segments[1].ArtistID)
	assert.Equal(t, "p2", *room.Pictures["p1"].Segments[1].ArtistID)

	// The reveal transition broadcast reflects the final state.
	last := mb.lastState()
	require.NotNil(t, last)
	assert.Equal(t, PhaseReveal, last.Phase)
}

func TestSubmitIdempotent(t *testing.T) {
	room, ids, _ := setupTestRoom(t, 2, untimedSettings(2))
	startDrawing(t, room, ids)

	room.Submit("p1")
	room.Submit("p1")
	room.Submit("p1")

	assert.Equal(t, 0, room.SegmentIndex, "repeat submits must not advance the segment")
	assert.True(t, room.Submitted["p1"])
	assert.Len(t, room.Submitted, 1)
}

func TestSubmitRules(t *testing.T) {
	room, _, _ := setupTestRoom(t, 2, untimedSettings(2))

	// Lobby submits are ignored.
	room.Submit("p1")
	assert.Empty(t, room.Submitted)

	startDrawing(t, room, []string{"p1", "p2"})

	// Submits from non-players are ignored.
	room.Submit("ghost")
	assert.Empty(t, room.Submitted)
}

func TestStaleSegmentUpdateRejected(t *testing.T) {
	room, ids, _ := setupTestRoom(t, 2, untimedSettings(3))
	startDrawing(t, room, ids)

	strokes := []models.Stroke{{Size: 4, Points: []models.Point{{X: 1, Y: 1}}}}

	// Early update for a future segment.
	room.UpdateSegment("p1", "p1", 1, strokes)
	assert.Empty(t, room.Pictures["p1"].Segments[1].Strokes)

	// Advance to segment 1, then replay a stale update for segment 0.
	room.Submit("p1")
	room.Submit("p2")
	require.Equal(t, 1, room.SegmentIndex)

	room.UpdateSegment("p1", "p1", 0, strokes)
	assert.Empty(t, room.Pictures["p1"].Segments[0].Strokes, "stale update must not mutate any picture")
}

func TestUnassignedWriteRejected(t *testing.T) {
	room, ids, _ := setupTestRoom(t, 2, untimedSettings(2))
	startDrawing(t, room, ids)

	strokes := []models.Stroke{{Size: 4, Points: []models.Point{{X: 1, Y: 1}}}}

	// At segment 0, p1 is assigned their own picture, not p2's.
	room.UpdateSegment("p1", "p2", 0, strokes)
	assert.Empty(t, room.Pictures["p2"].Segments[0].Strokes)

	// A non-player has no assignment at all.
	room.UpdateSegment("ghost", "p1", 0, strokes)
	assert.Empty(t, room.Pictures["p1"].Segments[0].Strokes)
}

func TestUpdateSegmentClampsToSegmentSlice(t *testing.T) {
	settings := untimedSettings(3)
	settings.Width = 600
	settings.Height = 900
	room, ids, _ := setupTestRoom(t, 1, settings)
	startDrawing(t, room, ids)

	// Segment slice height is floor(900/3) = 300; y beyond it clamps.
	room.UpdateSegment("p1", "p1", 0, []models.Stroke{
		{Size: 4, Points: []models.Point{{X: 650, Y: 550}}},
	})
	seg := room.Pictures["p1"].Segments[0]
	require.Len(t, seg.Strokes, 1)
	assert.Equal(t, models.Point{X: 600, Y: 300}, seg.Strokes[0].Points[0])

	// The provisional artist stamp is applied with the write.
	require.NotNil(t, seg.ArtistID)
	assert.Equal(t, "p1", *seg.ArtistID)
}

// TestForcedSubmitAdvances exercises the timer path: the expiry callback
// announces the final call, and after the grace window every remaining
// player is marked submitted and the segment closes.
func TestForcedSubmitAdvances(t *testing.T) {
	room, ids, mb := setupTestRoom(t, 2, untimedSettings(2))
	startDrawing(t, room, ids)

	room.Submit("p1") // p2 never submits

	room.ForceSubmitAll(0)
	assert.Equal(t, 1, mb.noticeCount(), "final-call notice should fire immediately")
	assert.Equal(t, 0, room.Snapshot().SegmentIndex, "advance must wait for the grace window")

	require.Eventually(t, func() bool {
		return room.Snapshot().SegmentIndex == 1
	}, time.Second, 5*time.Millisecond, "forced submit should advance the segment")

	state := room.Snapshot()
	assert.Empty(t, state.Submitted)
	require.NotNil(t, state.Pictures["p1"].Segments[0].ArtistID)
	require.NotNil(t, state.Pictures["p2"].Segments[0].ArtistID)
}

// TestStaleTimerNoFurtherMutation covers the race where a natural
// all-submitted advance completes before the grace window elapses: the
// forced-submit path must make no further mutation.
func TestStaleTimerNoFurtherMutation(t *testing.T) {
	room, ids, mb := setupTestRoom(t, 2, untimedSettings(3))
	room.GraceWindow = 50 * time.Millisecond
	startDrawing(t, room, ids)

	// Timer fires for segment 0...
	room.ForceSubmitAll(0)
	require.Equal(t, 1, mb.noticeCount())

	// ...but everyone submits organically before the grace window ends.
	drawAndSubmit(t, room, "p1")
	drawAndSubmit(t, room, "p2")
	require.Equal(t, 1, room.Snapshot().SegmentIndex)
	countAfterAdvance := mb.stateCount()

	// Give the stale grace callback time to fire. Nothing may change.
	time.Sleep(150 * time.Millisecond)
	state := room.Snapshot()
	assert.Equal(t, 1, state.SegmentIndex)
	assert.Equal(t, PhaseDrawing, state.Phase)
	assert.Empty(t, state.Submitted)
	assert.Equal(t, countAfterAdvance, mb.stateCount(), "stale force-submit must not broadcast")
}

// ForceSubmitAll fired for a segment the room has already left is a no-op
// even before the grace window.
func TestForceSubmitStaleSegmentIgnored(t *testing.T) {
	room, ids, mb := setupTestRoom(t, 2, untimedSettings(3))
	startDrawing(t, room, ids)

	drawAndSubmit(t, room, "p1")
	drawAndSubmit(t, room, "p2")
	require.Equal(t, 1, room.SegmentIndex)

	room.ForceSubmitAll(0)
	assert.Zero(t, mb.noticeCount(), "stale expiry must not announce a final call")
}

func TestResetFromAnyPhase(t *testing.T) {
	room, ids, _ := setupTestRoom(t, 2, untimedSettings(2))
	startDrawing(t, room, ids)

	drawAndSubmit(t, room, "p1")
	drawAndSubmit(t, room, "p2")
	drawAndSubmit(t, room, "p1")
	drawAndSubmit(t, room, "p2")
	require.Equal(t, PhaseReveal, room.Phase)

	room.Reset()

	assert.Equal(t, PhaseLobby, room.Phase)
	assert.Equal(t, 0, room.SegmentIndex)
	assert.Empty(t, room.Submitted)
	assert.Nil(t, room.SegmentEndsAt)
	for _, p := range room.Players {
		assert.False(t, p.Ready)
	}
	for _, pic := range room.Pictures {
		require.Len(t, pic.Segments, 2)
		for _, seg := range pic.Segments {
			assert.Nil(t, seg.ArtistID)
			assert.Empty(t, seg.Strokes)
		}
	}
}

func TestHostReassignOnLeave(t *testing.T) {
	room, _, _ := setupTestRoom(t, 3, untimedSettings(2))
	require.Equal(t, "p1", room.HostID)

	empty := room.Leave("p1")
	assert.False(t, empty)
	assert.Equal(t, "p2", room.HostID, "host role passes to the new first player")
	assert.Len(t, room.Players, 2)

	// The departed host's picture is retained.
	assert.Contains(t, room.Pictures, "p1")
}

func TestLeaveClearsSubmissionEntry(t *testing.T) {
	room, ids, _ := setupTestRoom(t, 3, untimedSettings(2))
	startDrawing(t, room, ids)

	room.Submit("p3")
	require.True(t, room.Submitted["p3"])

	room.Leave("p3")
	_, present := room.Submitted["p3"]
	assert.False(t, present, "submitted must stay a subset of current players")
}

func TestLastPlayerLeaveTearsDown(t *testing.T) {
	settings := untimedSettings(2)
	settings.TimerDuration = 30
	room, ids, mb := setupTestRoom(t, 2, settings)
	startDrawing(t, room, ids)
	require.NotNil(t, room.segmentTimer)

	require.False(t, room.Leave("p1"))
	countBefore := mb.stateCount()

	require.True(t, room.Leave("p2"), "room should report empty on last leave")
	assert.Nil(t, room.segmentTimer, "pending timer must be cancelled on teardown")
	assert.Equal(t, countBefore, mb.stateCount(), "teardown must not broadcast")
}

// TestTimedCyclesReachReveal runs three players through every segment via
// forced submits only, proving timed rooms cannot wedge.
func TestTimedCyclesReachReveal(t *testing.T) {
	room, ids, _ := setupTestRoom(t, 3, untimedSettings(3))
	startDrawing(t, room, ids)

	for segment := 0; segment < 3; segment++ {
		room.ForceSubmitAll(segment)
		require.Eventually(t, func() bool {
			state := room.Snapshot()
			return state.SegmentIndex > segment || state.Phase == PhaseReveal
		}, time.Second, 5*time.Millisecond, "segment %d should close", segment)
	}

	state := room.Snapshot()
	assert.Equal(t, PhaseReveal, state.Phase)
	for _, ownerID := range ids {
		for i, seg := range state.Pictures[ownerID].Segments {
			require.NotNil(t, seg.ArtistID, "picture %s segment %d unstamped", ownerID, i)
		}
	}
}
