package main

import (
	"net/http"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", app.handleHealth)
	mux.HandleFunc("POST /api/lobby", app.rateLimit(app.authenticate(app.handleCreateLobby)))
	mux.HandleFunc("POST /api/lobby/{id}/join", app.rateLimit(app.authenticate(app.handleJoinLobby)))
	mux.HandleFunc("GET /ws/{id}", app.rateLimit(app.Hub.ServeWS(app.upgrader())))

	return mux
}
