package messages

import "encoding/json"

// Inbound command tags. Each tag maps to exactly one lobby operation.
const (
	CmdPlayMove     = "PLAY_MOVE"
	CmdAbortGame    = "ABORT_GAME"
	CmdResignGame   = "RESIGN_GAME"
	CmdSendOffer    = "SEND_OFFER"
	CmdAcceptOffer  = "ACCEPT_OFFER"
	CmdDeclineOffer = "DECLINE_OFFER"
	CmdCancelOffer  = "CANCEL_OFFER"
)

// InboundMessage is the generic wrapper for messages coming from the client.
// The "type" field tells us the action; "payload" is the data we parse further.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PlayMovePayload represents the payload for making a move during a game
type PlayMovePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// OfferPayload carries the kind of offer being sent or accepted.
type OfferPayload struct {
	Kind string `json:"kind"`
}
