package lobby

import "github.com/tecu23/match-server/internal/color"

// OfferKind identifies a mutually-agreed action proposed by one player.
type OfferKind string

const (
	OfferDraw      OfferKind = "draw"
	OfferUndo      OfferKind = "undo"
	OfferPlayAgain OfferKind = "play_again"
)

// ValidOfferKind reports whether k is one of the known offer kinds.
func ValidOfferKind(k OfferKind) bool {
	switch k {
	case OfferDraw, OfferUndo, OfferPlayAgain:
		return true
	}
	return false
}

// PendingOffer is the single outstanding offer of a lobby. At most one
// exists at any time; it is destroyed by accept, decline, cancel or by
// the game finishing.
type PendingOffer struct {
	Kind OfferKind
	From color.Color
}
