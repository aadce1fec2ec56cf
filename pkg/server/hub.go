// Package server is the websocket protocol layer: it binds sockets to
// lobby seats, dispatches validated inbound commands to exactly one
// lobby operation, and fans lobby events out to whichever sockets of
// that lobby are online.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tecu23/match-server/internal/messages"
	"github.com/tecu23/match-server/pkg/events"
	"github.com/tecu23/match-server/pkg/limiter"
	"github.com/tecu23/match-server/pkg/lobby"
)

// InboundHubMessage are the messages that the hub receives
type InboundHubMessage struct {
	Conn    *Connection             // who sent it
	Message messages.InboundMessage // decoded command envelope
}

// Hub routes between sockets and lobbies. It keeps the directory of
// online connections per lobby seat, consumes inbound commands from a
// single channel, and subscribes to the event publisher for outbound
// fan-out. Seats are keyed by token, which survives the color swap of a
// rematch. An offline seat simply misses broadcasts; Attach resends a
// snapshot.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]map[string]*Connection

	inbound chan InboundHubMessage

	registry *lobby.Registry
	guard    *limiter.Guard

	logger *zap.Logger

	done chan struct{}
	once sync.Once
}

// NewHub creates a hub and subscribes it to lobby events.
func NewHub(registry *lobby.Registry, guard *limiter.Guard, publisher *events.Publisher, logger *zap.Logger) *Hub {
	h := &Hub{
		connections: make(map[uuid.UUID]map[string]*Connection),
		inbound:     make(chan InboundHubMessage, 64),
		registry:    registry,
		guard:       guard,
		logger:      logger,
		done:        make(chan struct{}),
	}

	publisher.Subscribe(h.routeEvent)

	return h
}

// Run is the main execution of the hub
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.inbound:
			h.handleInbound(msg)
		}
	}
}

// Shutdown stops the run loop and closes every live connection.
func (h *Hub) Shutdown() {
	h.once.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, seats := range h.connections {
		for _, conn := range seats {
			conn.closeSend()
		}
	}
	h.connections = make(map[uuid.UUID]map[string]*Connection)
}

// Attach binds a socket to its lobby seat and marks the player online.
// Rejected when the lobby is unknown, the token resolves to no seat, or
// a live socket already occupies the seat.
func (h *Hub) Attach(conn *Connection) error {
	l, ok := h.registry.Get(conn.LobbyID)
	if !ok {
		return lobby.ErrLobbyNotFound
	}

	col, err := l.ResolveToken(conn.Token)
	if err != nil {
		return err
	}

	h.mu.Lock()
	seats, ok := h.connections[conn.LobbyID]
	if !ok {
		seats = make(map[string]*Connection)
		h.connections[conn.LobbyID] = seats
	}
	if _, taken := seats[conn.Token]; taken {
		h.mu.Unlock()
		return lobby.ErrPlayerAlreadyOnline
	}
	conn.Color = col
	seats[conn.Token] = conn
	h.mu.Unlock()

	if _, err := l.Attach(conn.Token); err != nil {
		h.removeConn(conn)
		return err
	}

	h.logger.Info("socket attached",
		zap.String("lobby_id", conn.LobbyID.String()),
		zap.String("color", string(col)),
	)

	return nil
}

// Detach unbinds a socket and marks the player offline.
func (h *Hub) Detach(conn *Connection) {
	if !h.removeConn(conn) {
		return
	}

	if l, ok := h.registry.Get(conn.LobbyID); ok {
		l.Detach(conn.Token)
	}

	conn.closeSend()

	h.logger.Info("socket detached",
		zap.String("lobby_id", conn.LobbyID.String()),
		zap.String("color", string(conn.Color)),
	)
}

// removeConn drops the connection from the directory if it still owns
// its seat. Reports whether it did.
func (h *Hub) removeConn(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	seats, ok := h.connections[conn.LobbyID]
	if !ok || seats[conn.Token] != conn {
		return false
	}
	delete(seats, conn.Token)
	if len(seats) == 0 {
		delete(h.connections, conn.LobbyID)
	}
	return true
}

// routeEvent fans one published lobby event out to the online sockets
// its audience selects.
func (h *Hub) routeEvent(e events.Event) {
	id, err := uuid.Parse(e.LobbyID)
	if err != nil {
		return
	}

	h.mu.RLock()
	seats := h.connections[id]
	var targets []*Connection
	switch e.Audience {
	case events.ToBoth:
		for _, conn := range seats {
			targets = append(targets, conn)
		}
	default:
		for _, token := range e.Targets {
			if conn, ok := seats[token]; ok {
				targets = append(targets, conn)
			}
		}
	}
	h.mu.RUnlock()

	msg := messages.OutboundMessage{Event: e.Name, Payload: e.Payload}
	for _, conn := range targets {
		conn.SendJSON(msg)
	}
}

// handleInbound dispatches one decoded command to its lobby operation.
func (h *Hub) handleInbound(msg InboundHubMessage) {
	conn := msg.Conn

	if ok, retryAfter := h.guard.WS.Allow(conn.RemoteIP); !ok {
		conn.SendJSON(messages.OutboundMessage{
			Event: messages.EvtError,
			Payload: messages.ErrorPayload{
				Message:    "message limit exceeded",
				RetryAfter: retryAfter.Milliseconds(),
			},
		})
		return
	}

	l, ok := h.registry.Get(conn.LobbyID)
	if !ok {
		h.sendError(conn, lobby.ErrLobbyNotFound.Error())
		return
	}

	var err error

	switch msg.Message.Type {
	case messages.CmdPlayMove:
		var payload messages.PlayMovePayload
		if jerr := json.Unmarshal(msg.Message.Payload, &payload); jerr != nil {
			h.sendError(conn, "invalid PLAY_MOVE payload")
			return
		}
		err = l.PlayMove(conn.Token, payload.From, payload.To)

	case messages.CmdAbortGame:
		err = l.Abort(conn.Token)

	case messages.CmdResignGame:
		err = l.Resign(conn.Token)

	case messages.CmdSendOffer:
		var payload messages.OfferPayload
		if jerr := json.Unmarshal(msg.Message.Payload, &payload); jerr != nil {
			h.sendError(conn, "invalid SEND_OFFER payload")
			return
		}
		err = l.SendOffer(conn.Token, lobby.OfferKind(payload.Kind))

	case messages.CmdAcceptOffer:
		var payload messages.OfferPayload
		if jerr := json.Unmarshal(msg.Message.Payload, &payload); jerr != nil {
			h.sendError(conn, "invalid ACCEPT_OFFER payload")
			return
		}
		err = l.AcceptOffer(conn.Token, lobby.OfferKind(payload.Kind))

	case messages.CmdDeclineOffer:
		err = l.DeclineOffer(conn.Token)

	case messages.CmdCancelOffer:
		err = l.CancelOffer(conn.Token)

	default:
		h.sendError(conn, "unknown message type")
		return
	}

	if err != nil {
		// A closed abort window stays silent for both sides.
		if errors.Is(err, lobby.ErrAbortUnavailable) {
			return
		}
		h.sendError(conn, err.Error())
	}
}

func (h *Hub) sendError(conn *Connection, msg string) {
	conn.SendJSON(messages.OutboundMessage{
		Event:   messages.EvtError,
		Payload: messages.ErrorPayload{Message: msg},
	})
}

// ServeWS upgrades an HTTP request into a lobby socket. The lobby id is
// the {id} path value and the reconnect token comes from the query
// string. Attach failures are reported on the socket, then it closes.
func (h *Hub) ServeWS(upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbyID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid lobby id", http.StatusBadRequest)
			return
		}
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusBadRequest)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Error("failed to upgrade to websocket", zap.Error(err))
			return
		}

		conn := NewConnection(ws, h, lobbyID, token, ClientIP(r), h.logger)

		if err := h.Attach(conn); err != nil {
			_ = ws.WriteJSON(messages.OutboundMessage{
				Event:   messages.EvtError,
				Payload: messages.ErrorPayload{Message: err.Error()},
			})
			ws.Close()
			return
		}

		go conn.WritePump()
		go conn.ReadPump()
	}
}
