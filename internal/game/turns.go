// internal/game/turns.go
package game

import "github.com/drkhunter/exquisite-corpse/internal/models"

// ArtistFor returns the id of the player assigned to draw on the picture
// at ownerIndex for the given segment. The rotation is cyclic: at segment
// 0 everyone draws their own picture; at segment s each player draws the
// picture of the player s positions ahead in the current ordering. For a
// fixed segment the mapping ownerIndex -> artist is a permutation of the
// player ids. Returns "" when there are no players.
func ArtistFor(ownerIndex, segmentIndex int, players []models.Player) string {
	if len(players) == 0 {
		return ""
	}
	return players[(ownerIndex+segmentIndex)%len(players)].ID
}

// AssignedOwnerForArtist inverts the rotation: it returns the id of the
// unique owner whose picture artistID is assigned to at segmentIndex, or
// "" if artistID is not a current player. At most one owner can map to a
// given artist because the rotation is a bijection over players.
func AssignedOwnerForArtist(players []models.Player, segmentIndex int, artistID string) string {
	for ownerIdx, owner := range players {
		if ArtistFor(ownerIdx, segmentIndex, players) == artistID {
			return owner.ID
		}
	}
	return ""
}
