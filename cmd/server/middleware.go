package main

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/tecu23/match-server/pkg/server"
)

func (app *application) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-Api-Key")

		if app.Auth.IsValidKey(apiKey) {
			next.ServeHTTP(w, r)
			return
		}

		app.Logger.Warn(
			"Authentication failed",
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)
		w.Header().Set("WWW-Authenticate", "APIKey")
		http.Error(w, "Unauthorized: invalid API key", http.StatusUnauthorized)
	}
}

// rateLimit gates lobby create/connect/reconnect calls per source IP.
// Rejections carry a Retry-After hint and are fully recoverable by
// waiting out the window.
func (app *application) rateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := server.ClientIP(r)

		ok, retryAfter := app.Guard.HTTP.Allow(ip)
		if !ok {
			app.Logger.Warn("rate limit exceeded",
				zap.String("remote_ip", ip),
				zap.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	}
}
