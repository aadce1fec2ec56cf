// Package main is the entry point of the application
package main

import (
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tecu23/match-server/internal/auth"
	"github.com/tecu23/match-server/internal/config"
	"github.com/tecu23/match-server/pkg/events"
	"github.com/tecu23/match-server/pkg/limiter"
	"github.com/tecu23/match-server/pkg/lobby"
	"github.com/tecu23/match-server/pkg/server"
)

// application encapsulates global dependencies
type application struct {
	Auth      *auth.APIKeyAuth
	Logger    *zap.Logger
	Config    *config.Config
	Publisher *events.Publisher
	Registry  *lobby.Registry
	Guard     *limiter.Guard
	Hub       *server.Hub
	Server    *http.Server

	StartTime time.Time
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.String("port", "", "server port (overrides config)")
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Initialize logger
	logger := initLogger(*debug)
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("loading config error", zap.Error(err))
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *debug {
		cfg.Debug = true
	}

	// Initialize event publisher
	publisher := events.NewPublisher()

	// Initialize lobby registry with its GC sweep settings
	registry := lobby.NewRegistry(lobby.RegistryConfig{
		SweepInterval: cfg.Lobby.SweepInterval.Std(),
		AbandonGrace:  cfg.Lobby.AbandonGrace.Std(),
		UndoHalfMoves: cfg.Lobby.UndoHalfMoves,
	}, publisher, logger)

	// Initialize the abuse guard
	guard := limiter.NewGuard(
		cfg.HTTPLimit.Requests, cfg.HTTPLimit.Window.Std(),
		cfg.WSLimit.Requests, cfg.WSLimit.Window.Std(),
	)

	hub := server.NewHub(registry, guard, publisher, logger)

	var authKeys []string
	if envAPIKeys := os.Getenv("API_KEYS"); envAPIKeys != "" {
		// Split comma-separated list of API keys
		keys := strings.Split(envAPIKeys, ",")
		for i, key := range keys {
			keys[i] = strings.TrimSpace(key)
		}
		authKeys = keys
	}

	app := &application{
		Auth:      auth.NewAPIKeyAuth(authKeys),
		Logger:    logger,
		Config:    cfg,
		Publisher: publisher,
		Registry:  registry,
		Guard:     guard,
		Hub:       hub,
		StartTime: time.Now(),
	}

	go app.Hub.Run()
	go app.Registry.Run()
	go app.Guard.Run(cfg.HTTPLimit.Window.Std())

	if err := app.serve(); err != nil {
		logger.Fatal("error serving", zap.Error(err))
	}
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// Shutdown cleans up resources
func (app *application) Shutdown() {
	if app.Hub != nil {
		app.Hub.Shutdown()
	}
	if app.Registry != nil {
		app.Registry.Shutdown()
	}
	if app.Guard != nil {
		app.Guard.Shutdown()
	}

	app.Logger.Info("All components shut down successfully")
}
