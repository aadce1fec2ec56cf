// Package limiter provides a keyed sliding-window rate limiter used to
// shield the server from abusive sources. Limiting is advisory only: a
// rejected request never touches lobby state, and once the window slides
// past, the source is accepted again.
package limiter

import (
	"sync"
	"time"
)

// SlidingWindow counts events per key inside a moving time window.
// Typical keys are source IPs.
type SlidingWindow struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewSlidingWindow creates a limiter allowing `limit` events per `window`
// for each key.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:   limit,
		window:  window,
		entries: make(map[string][]time.Time),
	}
}

// Allow records an attempt for key and reports whether it is within the
// limit. When rejected, retryAfter says how long until the oldest counted
// attempt slides out of the window.
func (sw *SlidingWindow) Allow(key string) (ok bool, retryAfter time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-sw.window)

	// Drop attempts that slid out of the window.
	times := sw.entries[key]
	valid := times[:0]
	for _, t := range times {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= sw.limit {
		sw.entries[key] = valid
		return false, valid[0].Sub(windowStart)
	}

	sw.entries[key] = append(valid, now)
	return true, 0
}

// Count returns how many attempts are currently counted for key.
func (sw *SlidingWindow) Count(key string) int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	windowStart := time.Now().Add(-sw.window)
	n := 0
	for _, t := range sw.entries[key] {
		if t.After(windowStart) {
			n++
		}
	}
	return n
}

// Cleanup drops keys whose every attempt has expired. Call periodically
// to keep the table from growing with one-off sources.
func (sw *SlidingWindow) Cleanup() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	windowStart := time.Now().Add(-sw.window)
	for key, times := range sw.entries {
		live := false
		for _, t := range times {
			if t.After(windowStart) {
				live = true
				break
			}
		}
		if !live {
			delete(sw.entries, key)
		}
	}
}

// Guard bundles the two independent limiters the server runs: one for
// HTTP lobby create/connect calls, one for websocket message throughput.
type Guard struct {
	HTTP *SlidingWindow
	WS   *SlidingWindow

	done chan struct{}
	once sync.Once
}

// NewGuard builds both limiters.
func NewGuard(httpLimit int, httpWindow time.Duration, wsLimit int, wsWindow time.Duration) *Guard {
	return &Guard{
		HTTP: NewSlidingWindow(httpLimit, httpWindow),
		WS:   NewSlidingWindow(wsLimit, wsWindow),
		done: make(chan struct{}),
	}
}

// Run periodically evicts idle keys from both tables. Blocks until Shutdown.
func (g *Guard) Run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.HTTP.Cleanup()
			g.WS.Cleanup()
		}
	}
}

// Shutdown stops the cleanup loop.
func (g *Guard) Shutdown() {
	g.once.Do(func() { close(g.done) })
}
