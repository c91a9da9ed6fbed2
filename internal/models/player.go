// internal/models/player.go
package models

// Player is a single participant in a room. The ID is an opaque string
// supplied by the client and stays stable across reconnects, so a player
// who drops and rejoins keeps their picture and turn slot.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}
