package messages

import "github.com/tecu23/match-server/internal/color"

// Outbound event tags.
const (
	EvtConnected          = "CONNECTED"
	EvtStarted            = "STARTED"
	EvtMoved              = "MOVED"
	EvtDisconnected       = "DISCONNECTED"
	EvtReconnected        = "RECONNECTED"
	EvtAborted            = "ABORTED"
	EvtResigned           = "RESIGNED"
	EvtFinished           = "FINISHED"
	EvtDrawOffered        = "DRAW_OFFERED"
	EvtUndoOffered        = "UNDO_OFFERED"
	EvtPlayAgainOffered   = "PLAY_AGAIN_OFFERED"
	EvtDrawAccepted       = "DRAW_ACCEPTED"
	EvtUndoAccepted       = "UNDO_ACCEPTED"
	EvtPlayAgainAccepted  = "PLAY_AGAIN_ACCEPTED"
	EvtOfferCancelled     = "OFFER_CANCELLED"
	EvtOfferDeclined      = "OFFER_DECLINED"
	EvtClockUpdate        = "CLOCK_UPDATE"
	EvtError              = "ERROR"
)

// OutboundMessage is how we wrap responses before sending
// them to the client
type OutboundMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

type ConnectedPayload struct {
	LobbyID  string      `json:"lobby_id"`
	PlayerID string      `json:"player_id"`
	Color    color.Color `json:"color"`
}

// PlayerInfo describes one seated player inside a STARTED snapshot.
type PlayerInfo struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Color    color.Color `json:"color"`
	IsOnline bool        `json:"is_online"`
}

// StartedPayload is the full board snapshot both clients receive when the
// game begins, when a player reattaches, and after an accepted play-again.
type StartedPayload struct {
	LobbyID     string       `json:"lobby_id"`
	Players     []PlayerInfo `json:"players"`
	BoardFEN    string       `json:"board_fen"`
	CurrentTurn color.Color  `json:"current_turn"`
	WhiteTime   int64        `json:"white_time"`
	BlackTime   int64        `json:"black_time"`
	Increment   int64        `json:"increment"`
}

type MovedPayload struct {
	From        string      `json:"from"`
	To          string      `json:"to"`
	BoardFEN    string      `json:"board_fen"`
	CurrentTurn color.Color `json:"current_turn"`
	WhiteTime   int64       `json:"white_time"`
	BlackTime   int64       `json:"black_time"`
}

type DisconnectedPayload struct {
	Color color.Color `json:"color"`
}

type ReconnectedPayload struct {
	Color color.Color `json:"color"`
}

// FinishedPayload carries the terminal status of the game. Also used for
// RESIGNED, which is a FINISHED with the resignation spelled out.
type FinishedPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// OfferedPayload tells the recipient which side proposed what.
type OfferedPayload struct {
	Kind string      `json:"kind"`
	From color.Color `json:"from"`
}

type UndoAcceptedPayload struct {
	UndoColor   color.Color `json:"undo_color"`
	BoardFEN    string      `json:"board_fen"`
	CurrentTurn color.Color `json:"current_turn"`
}

type OfferResolvedPayload struct {
	Kind string `json:"kind"`
}

// ClockUpdatePayload contains information about the current state of the clock
type ClockUpdatePayload struct {
	WhiteTime   int64  `json:"white_time"`
	BlackTime   int64  `json:"black_time"`
	ActiveColor string `json:"active_color"`
}

type ErrorPayload struct {
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after_ms,omitempty"`
}
