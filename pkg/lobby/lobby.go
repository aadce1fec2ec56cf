// Package lobby implements the authoritative state of one timed match
// between two remote players: seating, clocks, the move journal, the
// offer sub-protocol and every terminal transition. All mutation of a
// lobby happens under its own mutex, so no two commands or clock ticks
// on the same lobby ever interleave. Different lobbies are independent.
package lobby

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tecu23/match-server/internal/color"
	"github.com/tecu23/match-server/internal/messages"
	"github.com/tecu23/match-server/pkg/clock"
	"github.com/tecu23/match-server/pkg/engine"
	"github.com/tecu23/match-server/pkg/events"
)

// Status is the lifecycle state of a lobby.
type Status string

const (
	StatusWaitingForOpponent Status = "waiting_for_opponent"
	StatusStarted            Status = "started"
	StatusFinished           Status = "finished"
)

// Result is the terminal outcome of a finished game.
type Result string

const (
	ResultNone         Result = ""
	ResultWhiteVictory Result = "white_victory"
	ResultBlackVictory Result = "black_victory"
	ResultDraw         Result = "draw"
	ResultAborted      Result = "aborted"
)

func victoryFor(c color.Color) Result {
	if c == color.White {
		return ResultWhiteVictory
	}
	return ResultBlackVictory
}

// Params configures a new lobby.
type Params struct {
	CreatorName string
	StartFEN    string
	InitialMs   int64
	IncrementMs int64
	// UndoHalfMoves is how far an accepted undo rewinds. Capped at the
	// number of moves actually played.
	UndoHalfMoves int
}

// Lobby is one match's authoritative server-side state container.
type Lobby struct {
	id uuid.UUID

	mu sync.Mutex

	players map[color.Color]*Player

	status Status
	result Result

	pendingOffer *PendingOffer

	starterPlayed map[color.Color]bool

	eng *engine.Adapter
	clk *clock.Clock

	tc            clock.TimeControl
	startFEN      string
	undoHalfMoves int

	lastActivityAt time.Time

	clockDone chan struct{}

	publisher *events.Publisher
	logger    *zap.Logger
}

// New creates a lobby with its first player seated at a random color.
// The second seat stays empty until Join.
func New(params Params, publisher *events.Publisher, logger *zap.Logger) (*Lobby, *Player, error) {
	eng, err := engine.New(params.StartFEN)
	if err != nil {
		return nil, nil, err
	}

	undo := params.UndoHalfMoves
	if undo <= 0 {
		undo = 2
	}

	tc := clock.TimeControl{InitialMs: params.InitialMs, IncrementMs: params.IncrementMs}

	creator := newPlayer(params.CreatorName, color.Random())

	// Custom start positions may have Black to move.
	clk := clock.New(tc)
	clk.SetSideToMove(eng.Turn())

	l := &Lobby{
		id:             uuid.New(),
		players:        map[color.Color]*Player{creator.Color: creator},
		status:         StatusWaitingForOpponent,
		starterPlayed:  make(map[color.Color]bool),
		eng:            eng,
		clk:            clk,
		tc:             tc,
		startFEN:       params.StartFEN,
		undoHalfMoves:  undo,
		lastActivityAt: time.Now(),
		publisher:      publisher,
		logger:         logger,
	}

	logger.Info("lobby created",
		zap.String("lobby_id", l.id.String()),
		zap.String("creator_color", string(creator.Color)),
		zap.Int64("initial_ms", params.InitialMs),
		zap.Int64("increment_ms", params.IncrementMs),
	)

	return l, creator, nil
}

// ID returns the lobby's opaque identifier.
func (l *Lobby) ID() uuid.UUID {
	return l.id
}

// Status returns the current lifecycle state.
func (l *Lobby) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Result returns the terminal outcome, or ResultNone while the game runs.
func (l *Lobby) Result() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result
}

// Join seats the second player at the remaining color and starts the game.
func (l *Lobby) Join(name string) (*Player, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.players) == 2 {
		return nil, l.opError(ErrLobbyFull, "connect", "")
	}
	if l.status != StatusWaitingForOpponent {
		return nil, l.opError(ErrLobbyAlreadyStarted, "connect", "")
	}

	var free color.Color = color.White
	if _, taken := l.players[color.White]; taken {
		free = color.Black
	}

	joiner := newPlayer(name, free)
	l.players[free] = joiner
	l.status = StatusStarted
	l.touch()

	l.logger.Info("lobby paired",
		zap.String("lobby_id", l.id.String()),
		zap.String("joiner_color", string(free)),
	)

	l.broadcast(messages.EvtStarted, l.snapshotLocked())

	return joiner, nil
}

// ResolveToken maps a reconnect token to its seat without side effects.
func (l *Lobby) ResolveToken(token string) (color.Color, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.playerByToken(token)
	if p == nil {
		return "", l.opError(ErrPlayerNotFound, "resolve_token", token)
	}
	return p.Color, nil
}

// Attach marks the player identified by token as online. Used both for
// the first socket after create/join and for any later reconnect. The
// attaching player receives a fresh snapshot reflecting the current
// board and true remaining time; the opponent is told someone came back.
func (l *Lobby) Attach(token string) (color.Color, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.playerByToken(token)
	if p == nil {
		return "", l.opError(ErrPlayerNotFound, "reconnect", token)
	}
	if p.IsOnline {
		return "", l.opError(ErrPlayerAlreadyOnline, "reconnect", token)
	}

	p.IsOnline = true
	l.touch()

	l.sendTo(p.Color, messages.EvtConnected, messages.ConnectedPayload{
		LobbyID:  l.id.String(),
		PlayerID: p.ID,
		Color:    p.Color,
	})
	if l.status != StatusWaitingForOpponent {
		l.sendTo(p.Color, messages.EvtStarted, l.snapshotLocked())
	}
	l.sendOpponent(p.Color, messages.EvtReconnected, messages.ReconnectedPayload{Color: p.Color})

	return p.Color, nil
}

// Detach marks the player as offline and tells the opponent. Clocks keep
// running and the game does not finish.
func (l *Lobby) Detach(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.playerByToken(token)
	if p == nil || !p.IsOnline {
		return
	}

	p.IsOnline = false
	l.touch()

	l.sendOpponent(p.Color, messages.EvtDisconnected, messages.DisconnectedPayload{Color: p.Color})
}

// PlayMove applies a move for the caller's color. On success the mover's
// clock is credited its increment and both sides receive the new state.
func (l *Lobby) PlayMove(token, from, to string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.playerByToken(token)
	if p == nil {
		return l.opError(ErrPlayerNotFound, "play_move", token)
	}
	if l.status != StatusStarted {
		return l.opError(ErrPlayMoveFailed, "play_move", token)
	}
	if l.eng.Turn() != p.Color {
		return l.opError(ErrPlayMoveFailed, "play_move", token)
	}
	if err := l.eng.PlayMove(from, to); err != nil {
		return l.opError(ErrPlayMoveFailed, "play_move", token)
	}

	l.starterPlayed[p.Color] = true
	l.clk.Switch()
	l.touch()

	report := l.eng.Status()

	// Clocks begin counting down only once both sides have played their
	// starter move; until then only increments accrue.
	if l.bothStartersLocked() && !report.Terminal() && !l.clk.Running() {
		l.startClockLocked()
	}

	times := l.clk.GetRemainingTime()
	l.broadcast(messages.EvtMoved, messages.MovedPayload{
		From:        from,
		To:          to,
		BoardFEN:    l.eng.FEN(),
		CurrentTurn: l.eng.Turn(),
		WhiteTime:   times.White,
		BlackTime:   times.Black,
	})

	if report.Terminal() {
		reason := reasonFromReport(report)
		l.finishLocked(resultFromReport(report), reason)
		l.publishFinishedLocked(reason)
	}

	return nil
}

// Abort ends the game with a neutral outcome. Only available while fewer
// than two starter moves exist. A closed abort window is silent: the
// returned sentinel produces no event for either side.
func (l *Lobby) Abort(token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.playerByToken(token)
	if p == nil {
		return l.opError(ErrPlayerNotFound, "abort_game", token)
	}
	if l.status == StatusFinished || l.bothStartersLocked() {
		return l.opError(ErrAbortUnavailable, "abort_game", token)
	}

	l.finishLocked(ResultAborted, "aborted")
	l.broadcast(messages.EvtAborted, messages.FinishedPayload{
		Status: string(ResultAborted),
		Reason: "aborted",
	})

	return nil
}

// Resign forfeits the game in favour of the opponent. Requires at least
// one move on the board; before that, aborting is the way out.
func (l *Lobby) Resign(token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.playerByToken(token)
	if p == nil {
		return l.opError(ErrPlayerNotFound, "resign_game", token)
	}
	if l.status != StatusStarted || l.eng.MoveCount() == 0 {
		return l.opError(ErrResignFailed, "resign_game", token)
	}

	result := victoryFor(p.Color.Opp())
	l.finishLocked(result, "resignation")
	l.broadcast(messages.EvtResigned, messages.FinishedPayload{
		Status: string(result),
		Reason: "resignation",
	})

	return nil
}

// SendOffer proposes a draw, an undo or a rematch to the opponent.
func (l *Lobby) SendOffer(token string, kind OfferKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.playerByToken(token)
	if p == nil {
		return l.opError(ErrPlayerNotFound, "send_offer", token)
	}
	if !ValidOfferKind(kind) {
		return l.opError(ErrOfferFailed, "send_offer", token)
	}
	if l.pendingOffer != nil {
		return l.opError(ErrOfferFailed, "send_offer", token)
	}

	switch kind {
	case OfferDraw, OfferUndo:
		if l.status != StatusStarted || l.eng.MoveCount() == 0 {
			return l.opError(ErrOfferFailed, "send_offer", token)
		}
	case OfferPlayAgain:
		if l.status != StatusFinished {
			return l.opError(ErrOfferFailed, "send_offer", token)
		}
	}

	l.pendingOffer = &PendingOffer{Kind: kind, From: p.Color}
	l.touch()

	l.sendOpponent(p.Color, offeredEvent(kind), messages.OfferedPayload{
		Kind: string(kind),
		From: p.Color,
	})

	return nil
}

// AcceptOffer resolves the pending offer in the offerer's favour. The
// caller must be the recipient and name the matching kind.
func (l *Lobby) AcceptOffer(token string, kind OfferKind) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.playerByToken(token)
	if p == nil {
		return l.opError(ErrPlayerNotFound, "accept_offer", token)
	}
	if l.pendingOffer == nil || l.pendingOffer.Kind != kind || l.pendingOffer.From == p.Color {
		return l.opError(ErrAcceptFailed, "accept_offer", token)
	}

	offer := l.pendingOffer
	l.pendingOffer = nil
	l.touch()

	switch offer.Kind {
	case OfferDraw:
		l.finishLocked(ResultDraw, "agreement")
		l.broadcast(messages.EvtDrawAccepted, messages.FinishedPayload{
			Status: string(ResultDraw),
			Reason: "agreement",
		})

	case OfferUndo:
		n := l.undoHalfMoves
		if n > l.eng.MoveCount() {
			n = l.eng.MoveCount()
		}
		if err := l.eng.TakeBack(n); err != nil {
			l.pendingOffer = offer
			return l.opError(ErrAcceptFailed, "accept_offer", token)
		}
		l.clk.SetSideToMove(l.eng.Turn())
		l.broadcast(messages.EvtUndoAccepted, messages.UndoAcceptedPayload{
			UndoColor:   l.eng.Turn(),
			BoardFEN:    l.eng.FEN(),
			CurrentTurn: l.eng.Turn(),
		})

	case OfferPlayAgain:
		if err := l.rematchLocked(); err != nil {
			return l.opError(ErrAcceptFailed, "accept_offer", token)
		}
		l.broadcast(messages.EvtPlayAgainAccepted, messages.OfferResolvedPayload{
			Kind: string(OfferPlayAgain),
		})
		l.broadcast(messages.EvtStarted, l.snapshotLocked())
	}

	return nil
}

// DeclineOffer rejects the pending offer. Only the recipient may decline.
func (l *Lobby) DeclineOffer(token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.playerByToken(token)
	if p == nil {
		return l.opError(ErrPlayerNotFound, "decline_offer", token)
	}
	if l.pendingOffer == nil || l.pendingOffer.From == p.Color {
		return l.opError(ErrDeclineFailed, "decline_offer", token)
	}

	kind := l.pendingOffer.Kind
	l.pendingOffer = nil
	l.touch()

	l.sendOpponent(p.Color, messages.EvtOfferDeclined, messages.OfferResolvedPayload{Kind: string(kind)})

	return nil
}

// CancelOffer withdraws the pending offer. Only the offerer may cancel.
func (l *Lobby) CancelOffer(token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.playerByToken(token)
	if p == nil {
		return l.opError(ErrPlayerNotFound, "cancel_offer", token)
	}
	if l.pendingOffer == nil || l.pendingOffer.From != p.Color {
		return l.opError(ErrCancelFailed, "cancel_offer", token)
	}

	kind := l.pendingOffer.Kind
	l.pendingOffer = nil
	l.touch()

	l.sendOpponent(p.Color, messages.EvtOfferCancelled, messages.OfferResolvedPayload{Kind: string(kind)})

	return nil
}

// Evictable reports whether the registry sweep may remove this lobby:
// never paired (still waiting, or aborted before an opponent arrived),
// every seated player offline, idle past the grace window. Once a lobby
// reaches Started it is kept forever so disconnected players can always
// come back to a resumable game.
func (l *Lobby) Evictable(grace time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.players) == 2 {
		return false
	}
	for _, p := range l.players {
		if p.IsOnline {
			return false
		}
	}
	return time.Since(l.lastActivityAt) > grace
}

// Close stops the clock and its watcher. Called by the registry on eviction.
func (l *Lobby) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopClockLocked()
}

// --- internals, caller holds l.mu ---

func (l *Lobby) playerByToken(token string) *Player {
	for _, p := range l.players {
		if p.Token == token {
			return p
		}
	}
	return nil
}

func (l *Lobby) bothStartersLocked() bool {
	return l.starterPlayed[color.White] && l.starterPlayed[color.Black]
}

func (l *Lobby) touch() {
	l.lastActivityAt = time.Now()
}

func (l *Lobby) startClockLocked() {
	l.clk.Start()
	done := make(chan struct{})
	l.clockDone = done
	go l.watchClock(l.clk, done)
}

func (l *Lobby) stopClockLocked() {
	l.clk.Stop()
	if l.clockDone != nil {
		close(l.clockDone)
		l.clockDone = nil
	}
}

// finishLocked moves the lobby to its terminal state: result recorded,
// pending offer destroyed, clock stopped.
func (l *Lobby) finishLocked(result Result, reason string) {
	if l.status == StatusFinished {
		return
	}
	l.status = StatusFinished
	l.result = result
	l.pendingOffer = nil
	l.stopClockLocked()
	l.touch()

	l.logger.Info("game finished",
		zap.String("lobby_id", l.id.String()),
		zap.String("result", string(result)),
		zap.String("reason", reason),
	)
}

// rematchLocked starts a fresh game cycle inside the same lobby identity:
// colors swapped, original position and full durations restored.
func (l *Lobby) rematchLocked() error {
	eng, err := engine.New(l.startFEN)
	if err != nil {
		return err
	}

	l.stopClockLocked()

	white, black := l.players[color.White], l.players[color.Black]
	white.Color, black.Color = color.Black, color.White
	l.players[color.White], l.players[color.Black] = black, white

	l.eng = eng
	l.clk = clock.New(l.tc)
	l.clk.SetSideToMove(eng.Turn())
	l.starterPlayed = make(map[color.Color]bool)
	l.status = StatusStarted
	l.result = ResultNone
	l.touch()

	l.logger.Info("rematch started", zap.String("lobby_id", l.id.String()))

	return nil
}

// watchClock bridges one clock instance's channels back into the lobby.
// The same terminal status is reached whether the flag falls or a racing
// client command wins; finishLocked converges both orders.
func (l *Lobby) watchClock(c *clock.Clock, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case col := <-c.TimeupChannel():
			l.handleTimeout(col)
			return
		case tick := <-c.TickChannel():
			l.publisher.Publish(events.Event{
				LobbyID:  l.id.String(),
				Audience: events.ToBoth,
				Name:     messages.EvtClockUpdate,
				Payload: messages.ClockUpdatePayload{
					WhiteTime:   tick.White,
					BlackTime:   tick.Black,
					ActiveColor: string(tick.ActiveColor),
				},
			})
		}
	}
}

func (l *Lobby) handleTimeout(col color.Color) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status != StatusStarted {
		return
	}

	result := victoryFor(col.Opp())
	l.finishLocked(result, "timeout")
	l.broadcast(messages.EvtFinished, messages.FinishedPayload{
		Status: string(result),
		Reason: "timeout",
	})
}

func resultFromReport(r engine.Report) Result {
	switch r.State {
	case engine.Checkmate:
		return victoryFor(r.Winner)
	default:
		return ResultDraw
	}
}

func reasonFromReport(r engine.Report) string {
	switch r.State {
	case engine.Checkmate:
		return "checkmate"
	case engine.Stalemate:
		return "stalemate"
	default:
		return "draw_rule"
	}
}

func offeredEvent(kind OfferKind) string {
	switch kind {
	case OfferDraw:
		return messages.EvtDrawOffered
	case OfferUndo:
		return messages.EvtUndoOffered
	default:
		return messages.EvtPlayAgainOffered
	}
}

func (l *Lobby) snapshotLocked() messages.StartedPayload {
	var players []messages.PlayerInfo
	for _, col := range []color.Color{color.White, color.Black} {
		if p, ok := l.players[col]; ok {
			players = append(players, messages.PlayerInfo{
				ID:       p.ID,
				Name:     p.Name,
				Color:    p.Color,
				IsOnline: p.IsOnline,
			})
		}
	}

	times := l.clk.GetRemainingTime()

	return messages.StartedPayload{
		LobbyID:     l.id.String(),
		Players:     players,
		BoardFEN:    l.eng.FEN(),
		CurrentTurn: l.eng.Turn(),
		WhiteTime:   times.White,
		BlackTime:   times.Black,
		Increment:   l.tc.IncrementMs,
	}
}

func (l *Lobby) broadcast(name string, payload interface{}) {
	l.publisher.Publish(events.Event{
		LobbyID:  l.id.String(),
		Audience: events.ToBoth,
		Name:     name,
		Payload:  payload,
	})
}

func (l *Lobby) sendTo(col color.Color, name string, payload interface{}) {
	l.publisher.Publish(events.Event{
		LobbyID:  l.id.String(),
		Audience: events.ToColor,
		Color:    col,
		Targets:  l.seatTokensLocked(col),
		Name:     name,
		Payload:  payload,
	})
}

func (l *Lobby) sendOpponent(col color.Color, name string, payload interface{}) {
	l.publisher.Publish(events.Event{
		LobbyID:  l.id.String(),
		Audience: events.ToOpponent,
		Color:    col,
		Targets:  l.seatTokensLocked(col.Opp()),
		Name:     name,
		Payload:  payload,
	})
}

// seatTokensLocked resolves the current holder of a seat, empty when the
// seat is vacant. Recipients are addressed by token because the colors
// of both players swap on a rematch.
func (l *Lobby) seatTokensLocked(col color.Color) []string {
	if p, ok := l.players[col]; ok {
		return []string{p.Token}
	}
	return nil
}

// publishFinishedLocked announces the recorded terminal result. Moves
// that end the game by rule are announced with FINISHED right after the
// MOVED broadcast.
func (l *Lobby) publishFinishedLocked(reason string) {
	l.broadcast(messages.EvtFinished, messages.FinishedPayload{
		Status: string(l.result),
		Reason: reason,
	})
}
