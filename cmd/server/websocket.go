package main

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader builds the websocket upgrader. With no allowed origin
// configured, any origin is accepted.
func (app *application) upgrader() websocket.Upgrader {
	allowed := app.Config.AllowedOrigin

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,

		CheckOrigin: func(r *http.Request) bool {
			if allowed == "" {
				return true
			}
			return r.Header.Get("Origin") == allowed
		},
	}
}
