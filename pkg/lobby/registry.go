package lobby

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tecu23/match-server/pkg/events"
)

// RegistryConfig tunes the background sweep.
type RegistryConfig struct {
	SweepInterval time.Duration
	AbandonGrace  time.Duration
	UndoHalfMoves int
}

// Registry is the process-wide directory of live lobbies. Entries are
// removed only by the sweep rule: a lobby that never paired and whose
// players are all offline past the grace window. Anything that reached
// Started stays resumable for the life of the process.
type Registry struct {
	mu      sync.RWMutex
	lobbies map[uuid.UUID]*Lobby

	cfg RegistryConfig

	publisher *events.Publisher
	logger    *zap.Logger

	done chan struct{}
	once sync.Once
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig, publisher *events.Publisher, logger *zap.Logger) *Registry {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.AbandonGrace <= 0 {
		cfg.AbandonGrace = 5 * time.Minute
	}

	return &Registry{
		lobbies:   make(map[uuid.UUID]*Lobby),
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Create builds a new lobby with its creator seated and registers it.
func (r *Registry) Create(params Params) (*Lobby, *Player, error) {
	if params.UndoHalfMoves <= 0 {
		params.UndoHalfMoves = r.cfg.UndoHalfMoves
	}

	l, creator, err := New(params, r.publisher, r.logger)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	r.lobbies[l.ID()] = l
	r.mu.Unlock()

	return l, creator, nil
}

// Get returns a lobby by ID.
func (r *Registry) Get(id uuid.UUID) (*Lobby, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lobbies[id]
	return l, ok
}

// Remove deletes a lobby from the directory and releases its clock.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	l, ok := r.lobbies[id]
	delete(r.lobbies, id)
	r.mu.Unlock()

	if ok {
		l.Close()
		r.logger.Info("lobby removed", zap.String("lobby_id", id.String()))
	}
}

// Len returns the number of registered lobbies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lobbies)
}

// Run starts the periodic sweep. Blocks until Shutdown.
func (r *Registry) Run() {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep removes every abandoned pre-start lobby. Exported so tests can
// trigger a pass without waiting for the interval.
func (r *Registry) Sweep() {
	r.mu.RLock()
	candidates := make([]*Lobby, 0)
	for _, l := range r.lobbies {
		candidates = append(candidates, l)
	}
	r.mu.RUnlock()

	for _, l := range candidates {
		if l.Evictable(r.cfg.AbandonGrace) {
			r.Remove(l.ID())
			r.logger.Info("swept abandoned lobby", zap.String("lobby_id", l.ID().String()))
		}
	}
}

// Shutdown stops the sweep loop.
func (r *Registry) Shutdown() {
	r.once.Do(func() { close(r.done) })
}
