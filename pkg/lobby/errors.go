package lobby

import (
	"errors"
	"fmt"
)

// Precondition-violation and not-found errors. Each rejection is terminal
// for that single command and leaves lobby state untouched; the client may
// retry with corrected input. Callers use errors.Is against the sentinels
// and forward the templated message to the acting client.
var (
	ErrLobbyFull           = errors.New("lobby is full")
	ErrLobbyAlreadyStarted = errors.New("lobby already started")
	ErrLobbyNotFound       = errors.New("lobby not found")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrPlayerAlreadyOnline = errors.New("player already online")

	ErrPlayMoveFailed = errors.New("cannot play move")
	ErrResignFailed   = errors.New("cannot resign from game")

	// ErrAbortUnavailable is deliberately silent at the protocol boundary:
	// an abort against a closed window produces no event for either side.
	ErrAbortUnavailable = errors.New("cannot abort game")

	ErrOfferFailed   = errors.New("cannot send offer")
	ErrAcceptFailed  = errors.New("cannot accept offer")
	ErrDeclineFailed = errors.New("cannot decline offer")
	ErrCancelFailed  = errors.New("cannot cancel offer")
)

// opError wraps a sentinel with the failing operation, lobby and token,
// producing the message surfaced to the acting client.
func (l *Lobby) opError(sentinel error, op, token string) error {
	return fmt.Errorf("%w: operation=%s lobby=%s token=%s", sentinel, op, l.id, token)
}
