package lobby

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tecu23/match-server/internal/color"
	"github.com/tecu23/match-server/internal/messages"
	"github.com/tecu23/match-server/pkg/events"
)

const initialBoard = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR"

// recorder captures every event a lobby publishes, in order.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) record(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) named(name string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) last(name string) (events.Event, bool) {
	all := r.named(name)
	if len(all) == 0 {
		return events.Event{}, false
	}
	return all[len(all)-1], true
}

func (r *recorder) waitFor(t *testing.T, name string, timeout time.Duration) events.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if e, ok := r.last(name); ok {
			return e
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s event within %s", name, timeout)
	return events.Event{}
}

func newTestLobby(t *testing.T, params Params) (*Lobby, *recorder, *Player) {
	t.Helper()

	if params.CreatorName == "" {
		params.CreatorName = "alice"
	}
	if params.InitialMs == 0 {
		params.InitialMs = 300000
	}

	pub := events.NewPublisher()
	rec := &recorder{}
	pub.Subscribe(rec.record)

	l, creator, err := New(params, pub, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(l.Close)

	return l, rec, creator
}

// pairedLobby returns a started lobby with the players keyed by color.
func pairedLobby(t *testing.T, params Params) (*Lobby, *recorder, map[color.Color]*Player) {
	t.Helper()

	l, rec, creator := newTestLobby(t, params)
	joiner, err := l.Join("bob")
	require.NoError(t, err)

	players := map[color.Color]*Player{
		creator.Color: creator,
		joiner.Color:  joiner,
	}
	require.Len(t, players, 2)
	require.NotEqual(t, creator.Color, joiner.Color)

	return l, rec, players
}

func TestJoinPairsAndStarts(t *testing.T) {
	l, rec, creator := newTestLobby(t, Params{InitialMs: 300000, IncrementMs: 5000})
	require.Equal(t, StatusWaitingForOpponent, l.Status())

	joiner, err := l.Join("bob")
	require.NoError(t, err)
	require.Equal(t, StatusStarted, l.Status())
	require.Equal(t, creator.Color.Opp(), joiner.Color)
	require.NotEmpty(t, joiner.Token)
	require.NotEqual(t, creator.Token, joiner.Token)

	started, ok := rec.last(messages.EvtStarted)
	require.True(t, ok)
	snap := started.Payload.(messages.StartedPayload)
	require.Len(t, snap.Players, 2)
	require.True(t, strings.HasPrefix(snap.BoardFEN, initialBoard))
	require.Equal(t, int64(300000), snap.WhiteTime)
	require.Equal(t, int64(300000), snap.BlackTime)
	require.Equal(t, int64(5000), snap.Increment)
	require.Equal(t, color.White, snap.CurrentTurn)
}

func TestJoinFailsOnceFull(t *testing.T) {
	l, _, _ := newTestLobby(t, Params{})

	_, err := l.Join("bob")
	require.NoError(t, err)

	_, err = l.Join("carol")
	require.ErrorIs(t, err, ErrLobbyFull)
}

func TestPlayMoveBroadcastsMoved(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{InitialMs: 300000, IncrementMs: 5000})

	white := players[color.White]
	black := players[color.Black]

	// Not black's turn yet.
	err := l.PlayMove(black.Token, "e7", "e5")
	require.ErrorIs(t, err, ErrPlayMoveFailed)

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))

	moved, ok := rec.last(messages.EvtMoved)
	require.True(t, ok)
	require.Equal(t, events.ToBoth, moved.Audience)
	payload := moved.Payload.(messages.MovedPayload)
	require.Equal(t, "e2", payload.From)
	require.Equal(t, "e4", payload.To)
	require.True(t, strings.HasPrefix(payload.BoardFEN, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b"),
		"unexpected FEN %q", payload.BoardFEN)
	require.Equal(t, color.Black, payload.CurrentTurn)

	// Illegal move leaves state untouched.
	err = l.PlayMove(black.Token, "e7", "e9")
	require.ErrorIs(t, err, ErrPlayMoveFailed)
	require.Len(t, rec.named(messages.EvtMoved), 1)

	// Unknown token.
	err = l.PlayMove("bogus", "e7", "e5")
	require.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestPlayMoveRejectedBeforePairing(t *testing.T) {
	l, _, creator := newTestLobby(t, Params{})

	err := l.PlayMove(creator.Token, "e2", "e4")
	require.ErrorIs(t, err, ErrPlayMoveFailed)
}

func TestAbortWindow(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))

	// One starter move played: still abortable.
	require.NoError(t, l.Abort(black.Token))
	require.Equal(t, StatusFinished, l.Status())
	require.Equal(t, ResultAborted, l.Result())

	aborted, ok := rec.last(messages.EvtAborted)
	require.True(t, ok)
	require.Equal(t, events.ToBoth, aborted.Audience)
}

func TestAbortClosedAfterBothStarterMoves(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))
	require.NoError(t, l.PlayMove(black.Token, "e7", "e5"))

	// Repeated attempts against the closed window all fail the same way.
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, l.Abort(white.Token), ErrAbortUnavailable)
	}
	require.Equal(t, StatusStarted, l.Status())
	require.Empty(t, rec.named(messages.EvtAborted))
}

func TestAbortWhileWaitingForOpponent(t *testing.T) {
	l, _, creator := newTestLobby(t, Params{})

	require.NoError(t, l.Abort(creator.Token))
	require.Equal(t, StatusFinished, l.Status())
	require.Equal(t, ResultAborted, l.Result())
}

func TestResignPreconditionsAndResult(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{})
	white := players[color.White]
	black := players[color.Black]

	// No moves exist yet: abort is the way out, not resignation.
	require.ErrorIs(t, l.Resign(white.Token), ErrResignFailed)
	require.Equal(t, StatusStarted, l.Status())

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))
	require.NoError(t, l.PlayMove(black.Token, "e7", "e5"))

	require.NoError(t, l.Resign(white.Token))
	require.Equal(t, StatusFinished, l.Status())
	require.Equal(t, ResultBlackVictory, l.Result())

	resigned, ok := rec.last(messages.EvtResigned)
	require.True(t, ok)
	payload := resigned.Payload.(messages.FinishedPayload)
	require.Equal(t, string(ResultBlackVictory), payload.Status)

	// Already finished.
	require.ErrorIs(t, l.Resign(black.Token), ErrResignFailed)
}

func TestCheckmateEmitsMovedThenFinished(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "f2", "f3"))
	require.NoError(t, l.PlayMove(black.Token, "e7", "e5"))
	require.NoError(t, l.PlayMove(white.Token, "g2", "g4"))
	require.NoError(t, l.PlayMove(black.Token, "d8", "h4"))

	require.Equal(t, StatusFinished, l.Status())
	require.Equal(t, ResultBlackVictory, l.Result())

	finished, ok := rec.last(messages.EvtFinished)
	require.True(t, ok)
	payload := finished.Payload.(messages.FinishedPayload)
	require.Equal(t, string(ResultBlackVictory), payload.Status)
	require.Equal(t, "checkmate", payload.Reason)

	// The mating move itself was still broadcast.
	require.Len(t, rec.named(messages.EvtMoved), 4)

	// No further moves accepted.
	require.ErrorIs(t, l.PlayMove(white.Token, "a2", "a3"), ErrPlayMoveFailed)
}

func TestOfferExclusivity(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))
	require.NoError(t, l.PlayMove(black.Token, "e7", "e5"))

	require.NoError(t, l.SendOffer(white.Token, OfferDraw))

	offered, ok := rec.last(messages.EvtDrawOffered)
	require.True(t, ok)
	require.Equal(t, events.ToOpponent, offered.Audience)
	require.Equal(t, color.White, offered.Color)

	// A second offer of any kind is rejected while one is pending.
	require.ErrorIs(t, l.SendOffer(white.Token, OfferUndo), ErrOfferFailed)
	require.ErrorIs(t, l.SendOffer(black.Token, OfferDraw), ErrOfferFailed)

	// The offerer cannot accept its own offer.
	require.ErrorIs(t, l.AcceptOffer(white.Token, OfferDraw), ErrAcceptFailed)

	// Kind mismatch.
	require.ErrorIs(t, l.AcceptOffer(black.Token, OfferUndo), ErrAcceptFailed)

	// Recipient declines; the offer is resolved exactly once.
	require.NoError(t, l.DeclineOffer(black.Token))
	require.ErrorIs(t, l.DeclineOffer(black.Token), ErrDeclineFailed)
	require.ErrorIs(t, l.AcceptOffer(black.Token, OfferDraw), ErrAcceptFailed)

	declined, ok := rec.last(messages.EvtOfferDeclined)
	require.True(t, ok)
	require.Equal(t, string(OfferDraw), declined.Payload.(messages.OfferResolvedPayload).Kind)

	// The slot is free again.
	require.NoError(t, l.SendOffer(black.Token, OfferDraw))
}

func TestOfferCancelOnlyByOfferer(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))
	require.NoError(t, l.SendOffer(white.Token, OfferDraw))

	require.ErrorIs(t, l.CancelOffer(black.Token), ErrCancelFailed)
	require.NoError(t, l.CancelOffer(white.Token))
	require.ErrorIs(t, l.CancelOffer(white.Token), ErrCancelFailed)

	cancelled, ok := rec.last(messages.EvtOfferCancelled)
	require.True(t, ok)
	require.Equal(t, events.ToOpponent, cancelled.Audience)
}

func TestDrawAndUndoOffersRequireMoves(t *testing.T) {
	l, _, players := pairedLobby(t, Params{})
	white := players[color.White]

	require.ErrorIs(t, l.SendOffer(white.Token, OfferDraw), ErrOfferFailed)
	require.ErrorIs(t, l.SendOffer(white.Token, OfferUndo), ErrOfferFailed)
	require.ErrorIs(t, l.SendOffer(white.Token, OfferKind("nonsense")), ErrOfferFailed)
}

func TestDrawAcceptedFinishesGame(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))
	require.NoError(t, l.SendOffer(white.Token, OfferDraw))
	require.NoError(t, l.AcceptOffer(black.Token, OfferDraw))

	require.Equal(t, StatusFinished, l.Status())
	require.Equal(t, ResultDraw, l.Result())

	accepted, ok := rec.last(messages.EvtDrawAccepted)
	require.True(t, ok)
	require.Equal(t, string(ResultDraw), accepted.Payload.(messages.FinishedPayload).Status)
}

func TestUndoAcceptedRewindsFullMovePair(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))
	require.NoError(t, l.PlayMove(black.Token, "e7", "e5"))

	require.NoError(t, l.SendOffer(white.Token, OfferUndo))
	require.NoError(t, l.AcceptOffer(black.Token, OfferUndo))

	undone, ok := rec.last(messages.EvtUndoAccepted)
	require.True(t, ok)
	payload := undone.Payload.(messages.UndoAcceptedPayload)
	require.Equal(t, color.White, payload.UndoColor)
	require.True(t, strings.HasPrefix(payload.BoardFEN, initialBoard+" w"),
		"unexpected FEN %q", payload.BoardFEN)

	// Game continues from the rewound position.
	require.Equal(t, StatusStarted, l.Status())
	require.NoError(t, l.PlayMove(white.Token, "d2", "d4"))
}

func TestUndoWithSingleHalfMove(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))
	require.NoError(t, l.SendOffer(white.Token, OfferUndo))
	require.NoError(t, l.AcceptOffer(black.Token, OfferUndo))

	undone, ok := rec.last(messages.EvtUndoAccepted)
	require.True(t, ok)
	payload := undone.Payload.(messages.UndoAcceptedPayload)
	require.Equal(t, color.White, payload.UndoColor)
	require.True(t, strings.HasPrefix(payload.BoardFEN, initialBoard+" w"))
}

func TestPlayAgainOnlyAfterFinish(t *testing.T) {
	l, _, players := pairedLobby(t, Params{})
	white := players[color.White]

	require.ErrorIs(t, l.SendOffer(white.Token, OfferPlayAgain), ErrOfferFailed)
}

func TestPlayAgainSwapsColorsAndResetsGame(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{InitialMs: 300000, IncrementMs: 5000})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))
	require.NoError(t, l.PlayMove(black.Token, "e7", "e5"))
	require.NoError(t, l.Resign(white.Token))
	require.Equal(t, StatusFinished, l.Status())

	require.NoError(t, l.SendOffer(white.Token, OfferPlayAgain))
	require.NoError(t, l.AcceptOffer(black.Token, OfferPlayAgain))

	require.Equal(t, StatusStarted, l.Status())
	require.Equal(t, ResultNone, l.Result())

	// Colors swapped.
	require.Equal(t, color.Black, white.Color)
	require.Equal(t, color.White, black.Color)

	_, ok := rec.last(messages.EvtPlayAgainAccepted)
	require.True(t, ok)

	started, ok := rec.last(messages.EvtStarted)
	require.True(t, ok)
	snap := started.Payload.(messages.StartedPayload)
	require.True(t, strings.HasPrefix(snap.BoardFEN, initialBoard))
	require.Equal(t, int64(300000), snap.WhiteTime, "durations reset to full")
	require.Equal(t, int64(300000), snap.BlackTime)

	// The old white now moves second.
	require.ErrorIs(t, l.PlayMove(white.Token, "e2", "e4"), ErrPlayMoveFailed)
	require.NoError(t, l.PlayMove(black.Token, "e2", "e4"))
}

func TestOfferRoutingFollowsRematchSwap(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))
	require.NoError(t, l.Resign(black.Token))

	require.NoError(t, l.SendOffer(white.Token, OfferPlayAgain))
	require.NoError(t, l.AcceptOffer(black.Token, OfferPlayAgain))

	// The old black player opens the new game, then receives the draw
	// offer the old white player (now black) sends.
	require.NoError(t, l.PlayMove(black.Token, "e2", "e4"))
	require.NoError(t, l.SendOffer(white.Token, OfferDraw))

	offered, ok := rec.last(messages.EvtDrawOffered)
	require.True(t, ok)
	require.Equal(t, events.ToOpponent, offered.Audience)
	require.Equal(t, color.Black, offered.Color, "offer named with the offerer's current color")
	require.Equal(t, []string{black.Token}, offered.Targets, "recipient resolved by token, not stale color")
}

func TestBlackToMoveStartPosition(t *testing.T) {
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	l, rec, players := pairedLobby(t, Params{StartFEN: fen, InitialMs: 300000, IncrementMs: 5000})
	white := players[color.White]
	black := players[color.Black]

	started, ok := rec.last(messages.EvtStarted)
	require.True(t, ok)
	require.Equal(t, color.Black, started.Payload.(messages.StartedPayload).CurrentTurn)

	// Black is on move in the start position; white cannot open.
	require.ErrorIs(t, l.PlayMove(white.Token, "d2", "d4"), ErrPlayMoveFailed)
	require.NoError(t, l.PlayMove(black.Token, "e7", "e5"))

	moved, ok := rec.last(messages.EvtMoved)
	require.True(t, ok)
	payload := moved.Payload.(messages.MovedPayload)
	require.Equal(t, color.White, payload.CurrentTurn)
	require.Equal(t, int64(305000), payload.BlackTime, "increment credited to the mover")
	require.Equal(t, int64(300000), payload.WhiteTime)
}

func TestAttachReconnectGuards(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{})
	white := players[color.White]

	// Unknown token.
	_, err := l.Attach("bogus")
	require.ErrorIs(t, err, ErrPlayerNotFound)

	col, err := l.Attach(white.Token)
	require.NoError(t, err)
	require.Equal(t, color.White, col)
	require.True(t, white.IsOnline)

	// Second live socket for the same player is rejected, and the failed
	// attempt does not flip the online flag.
	_, err = l.Attach(white.Token)
	require.ErrorIs(t, err, ErrPlayerAlreadyOnline)
	require.True(t, white.IsOnline)

	// The attaching player received a fresh snapshot addressed to it.
	started, ok := rec.last(messages.EvtStarted)
	require.True(t, ok)
	require.Equal(t, events.ToColor, started.Audience)
	require.Equal(t, color.White, started.Color)

	l.Detach(white.Token)
	require.False(t, white.IsOnline)

	disconnected, ok := rec.last(messages.EvtDisconnected)
	require.True(t, ok)
	require.Equal(t, events.ToOpponent, disconnected.Audience)
	require.Equal(t, StatusStarted, l.Status(), "disconnect does not finish the game")

	// Reconnect works again after the disconnect.
	_, err = l.Attach(white.Token)
	require.NoError(t, err)
}

func TestDetachWithUnknownTokenIsHarmless(t *testing.T) {
	l, rec, _ := pairedLobby(t, Params{})

	l.Detach("bogus")
	require.Empty(t, rec.named(messages.EvtDisconnected))
}

func TestTimeoutFinishesGameWithoutInput(t *testing.T) {
	l, rec, players := pairedLobby(t, Params{InitialMs: 150})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))
	require.NoError(t, l.PlayMove(black.Token, "e7", "e5"))

	// White is on move with 150ms on the clock; no further commands.
	finished := rec.waitFor(t, messages.EvtFinished, 2*time.Second)
	payload := finished.Payload.(messages.FinishedPayload)
	require.Equal(t, string(ResultBlackVictory), payload.Status)
	require.Equal(t, "timeout", payload.Reason)
	require.Equal(t, StatusFinished, l.Status())

	// Pending state is gone and late commands are rejected cleanly.
	require.ErrorIs(t, l.PlayMove(white.Token, "a2", "a3"), ErrPlayMoveFailed)
}

func TestClockDoesNotRunBeforeBothStarterMoves(t *testing.T) {
	l, _, players := pairedLobby(t, Params{InitialMs: 80})
	white := players[color.White]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))

	// Well past the initial time, but black never played its starter.
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, StatusStarted, l.Status())
}

func TestFinishDestroysPendingOffer(t *testing.T) {
	l, _, players := pairedLobby(t, Params{})
	white := players[color.White]
	black := players[color.Black]

	require.NoError(t, l.PlayMove(white.Token, "e2", "e4"))
	require.NoError(t, l.SendOffer(white.Token, OfferDraw))
	require.NoError(t, l.Abort(black.Token))

	// The draw offer died with the game.
	require.ErrorIs(t, l.AcceptOffer(black.Token, OfferDraw), ErrAcceptFailed)
}
