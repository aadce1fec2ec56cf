package lobby

import (
	"github.com/google/uuid"

	"github.com/tecu23/match-server/internal/color"
)

// Player is one seated participant of a lobby. Token is the opaque secret
// that proves identity on reconnect; it never changes for the lifetime of
// the seat. IsOnline tracks whether a live socket is currently attached.
type Player struct {
	ID       string
	Name     string
	Token    string
	Color    color.Color
	IsOnline bool
}

func newPlayer(name string, col color.Color) *Player {
	return &Player{
		ID:    uuid.NewString(),
		Name:  name,
		Token: uuid.NewString(),
		Color: col,
	}
}
