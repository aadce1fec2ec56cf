package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tecu23/match-server/internal/color"
	"github.com/tecu23/match-server/pkg/lobby"
)

const maxNameLength = 32

type createLobbyRequest struct {
	Name        string `json:"name"`
	StartFEN    string `json:"start_fen"`
	InitialMs   int64  `json:"initial_ms"`
	IncrementMs int64  `json:"increment_ms"`
}

type joinLobbyRequest struct {
	Name string `json:"name"`
}

type lobbyResponse struct {
	LobbyID  string      `json:"lobby_id"`
	PlayerID string      `json:"player_id"`
	Token    string      `json:"token"`
	Color    color.Color `json:"color"`
}

// handleCreateLobby handles POST /api/lobby
func (app *application) handleCreateLobby(w http.ResponseWriter, r *http.Request) {
	var req createLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	name, ok := validName(req.Name)
	if !ok {
		http.Error(w, "invalid display name", http.StatusBadRequest)
		return
	}

	if req.InitialMs <= 0 {
		req.InitialMs = app.Config.Lobby.DefaultInitialMs
	}
	if req.IncrementMs < 0 {
		req.IncrementMs = app.Config.Lobby.DefaultIncrementMs
	}

	l, creator, err := app.Registry.Create(lobby.Params{
		CreatorName: name,
		StartFEN:    req.StartFEN,
		InitialMs:   req.InitialMs,
		IncrementMs: req.IncrementMs,
	})
	if err != nil {
		app.Logger.Error("create lobby failed", zap.Error(err))
		http.Error(w, "invalid start position", http.StatusBadRequest)
		return
	}

	app.writeJSON(w, http.StatusCreated, lobbyResponse{
		LobbyID:  l.ID().String(),
		PlayerID: creator.ID,
		Token:    creator.Token,
		Color:    creator.Color,
	})
}

// handleJoinLobby handles POST /api/lobby/{id}/join
func (app *application) handleJoinLobby(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid lobby id", http.StatusBadRequest)
		return
	}

	var req joinLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	name, ok := validName(req.Name)
	if !ok {
		http.Error(w, "invalid display name", http.StatusBadRequest)
		return
	}

	l, found := app.Registry.Get(id)
	if !found {
		http.Error(w, "lobby not found", http.StatusNotFound)
		return
	}

	joiner, err := l.Join(name)
	if err != nil {
		if errors.Is(err, lobby.ErrLobbyFull) || errors.Is(err, lobby.ErrLobbyAlreadyStarted) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		app.Logger.Error("join lobby failed", zap.Error(err))
		http.Error(w, "could not join lobby", http.StatusInternalServerError)
		return
	}

	app.writeJSON(w, http.StatusOK, lobbyResponse{
		LobbyID:  l.ID().String(),
		PlayerID: joiner.ID,
		Token:    joiner.Token,
		Color:    joiner.Color,
	})
}

func validName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return "", false
	}
	return name, true
}

func (app *application) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Logger.Error("encode response", zap.Error(err))
	}
}
