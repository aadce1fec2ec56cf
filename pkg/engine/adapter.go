// Package engine adapts the chess rules library to the needs of the
// match server. It is the only place that talks to the rules engine:
// legality, terminal detection, FEN snapshots and take-backs all go
// through the Adapter.
package engine

import (
	"fmt"
	"strings"

	"github.com/corentings/chess/v2"

	"github.com/tecu23/match-server/internal/color"
)

// State classifies the game from the rules engine's point of view.
type State int

const (
	InProgress State = iota
	Checkmate
	Stalemate
	DrawByRule
)

// Report is the engine's verdict on the current position. Winner is only
// meaningful for Checkmate.
type Report struct {
	State  State
	Winner color.Color
}

// Terminal reports whether the game is over by rule.
func (r Report) Terminal() bool {
	return r.State != InProgress
}

// Adapter wraps one rules-engine game plus the journal of half-moves
// played against it, in UCI form. The journal is what makes take-backs
// possible: the library has no native rewind, so we rebuild from the
// start position instead.
type Adapter struct {
	startFEN string
	game     *chess.Game
	moves    []string
}

// New creates an adapter for a game starting from the given position.
// An empty string or "startpos" means the standard initial position.
// A bare piece placement (no side-to-move or castling fields) is
// completed to a full FEN before parsing.
func New(startFEN string) (*Adapter, error) {
	game, err := newGame(startFEN)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		startFEN: startFEN,
		game:     game,
	}, nil
}

func newGame(startFEN string) (*chess.Game, error) {
	fen := strings.TrimSpace(startFEN)
	if fen == "" || fen == "startpos" {
		return chess.NewGame(), nil
	}

	if !strings.Contains(fen, " ") {
		fen += " w KQkq - 0 1"
	}

	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid start position %q: %w", startFEN, err)
	}

	return chess.NewGame(opt), nil
}

// PlayMove applies a from/to move. Promotions default to a queen.
// Returns an error if the move is illegal in the current position.
func (a *Adapter) PlayMove(from, to string) error {
	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to))
	pos := a.game.Position()

	notation := chess.UCINotation{}
	mv, err := notation.Decode(pos, uci)
	if err != nil {
		// Retry as a queen promotion before giving up.
		promoted, perr := notation.Decode(pos, uci+"q")
		if perr != nil {
			return fmt.Errorf("illegal move %s: %w", uci, err)
		}
		mv = promoted
		uci += "q"
	}

	if err := a.game.Move(mv, nil); err != nil {
		return fmt.Errorf("illegal move %s: %w", uci, err)
	}

	a.moves = append(a.moves, uci)
	return nil
}

// TakeBack rewinds the last n half-moves by replaying the journal from
// the start position. n is capped at the number of moves played.
func (a *Adapter) TakeBack(n int) error {
	if n <= 0 || len(a.moves) == 0 {
		return nil
	}
	if n > len(a.moves) {
		n = len(a.moves)
	}

	kept := a.moves[:len(a.moves)-n]

	game, err := newGame(a.startFEN)
	if err != nil {
		return err
	}
	for _, mv := range kept {
		if err := game.PushNotationMove(mv, chess.UCINotation{}, nil); err != nil {
			return fmt.Errorf("replay journal move %s: %w", mv, err)
		}
	}

	a.game = game
	a.moves = append([]string(nil), kept...)
	return nil
}

// Status returns the engine's verdict on the current position.
func (a *Adapter) Status() Report {
	switch a.game.Outcome() {
	case chess.WhiteWon:
		return Report{State: Checkmate, Winner: color.White}
	case chess.BlackWon:
		return Report{State: Checkmate, Winner: color.Black}
	case chess.Draw:
		if a.game.Method() == chess.Stalemate {
			return Report{State: Stalemate}
		}
		return Report{State: DrawByRule}
	default:
		return Report{State: InProgress}
	}
}

// FEN returns the current position.
func (a *Adapter) FEN() string {
	return a.game.FEN()
}

// Turn returns the side to move.
func (a *Adapter) Turn() color.Color {
	if a.game.Position().Turn() == chess.White {
		return color.White
	}
	return color.Black
}

// MoveCount returns the number of half-moves played.
func (a *Adapter) MoveCount() int {
	return len(a.moves)
}

// Moves returns a copy of the UCI move journal.
func (a *Adapter) Moves() []string {
	return append([]string(nil), a.moves...)
}

// StartFEN returns the position the game was created from.
func (a *Adapter) StartFEN() string {
	return a.startFEN
}
