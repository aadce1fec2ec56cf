// Package clock implements the per-game countdown clock.
package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/tecu23/match-server/internal/color"
)

const defaultTickInterval = 100 * time.Millisecond

// TimeControl defines the time settings for a game
type TimeControl struct {
	InitialMs   int64 // Initial time in milliseconds, per color
	IncrementMs int64 // Increment per move in milliseconds
}

// Clock manages the countdown for both players. Only the active color's
// time decreases, and only while the clock is running. Expiry is detected
// by the tick routine, so a flag fall is noticed even if no further move
// or message ever arrives.
type Clock struct {
	whiteTimeMs int64
	blackTimeMs int64

	incrementMs int64

	activeColor color.Color

	startTime time.Time
	isRunning bool

	tickInterval time.Duration

	mutex sync.RWMutex

	// For external events
	timeupChan chan color.Color
	tickChan   chan Tick
}

// Tick is a periodic snapshot of both remaining times.
type Tick struct {
	White       int64
	Black       int64
	ActiveColor color.Color
}

// RemainingTime holds the live remaining time for both colors.
type RemainingTime struct {
	White int64
	Black int64
}

// New creates a clock with the given time control. White is to move.
func New(tc TimeControl) *Clock {
	return &Clock{
		whiteTimeMs:  tc.InitialMs,
		blackTimeMs:  tc.InitialMs,
		incrementMs:  tc.IncrementMs,
		activeColor:  color.White,
		tickInterval: defaultTickInterval,
		timeupChan:   make(chan color.Color, 1),
		tickChan:     make(chan Tick, 10),
	}
}

// Start begins the countdown for the current side to move.
func (c *Clock) Start() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isRunning {
		return
	}

	c.startTime = time.Now()
	c.isRunning = true

	go c.tickRoutine()
}

// Stop pauses the countdown, settling elapsed time first.
func (c *Clock) Stop() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.isRunning {
		return
	}

	c.updateTime()
	c.isRunning = false
}

// Switch records a completed move: the mover's elapsed time is settled,
// the mover is credited its increment, and the other color becomes active.
// Safe to call while the clock is not yet running, in which case only the
// increment and the turn change apply.
func (c *Clock) Switch() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isRunning {
		c.updateTime()
	}

	if c.activeColor == color.White {
		c.whiteTimeMs += c.incrementMs
	} else {
		c.blackTimeMs += c.incrementMs
	}

	c.activeColor = c.activeColor.Opp()

	if c.isRunning {
		c.startTime = time.Now()
	}
}

// SetSideToMove forces the active color without crediting any increment.
// Used when an accepted undo rewinds the game to an earlier turn.
func (c *Clock) SetSideToMove(col color.Color) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isRunning {
		c.updateTime()
		c.startTime = time.Now()
	}
	c.activeColor = col
}

// Running reports whether the countdown is active.
func (c *Clock) Running() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.isRunning
}

// ActiveColor returns the color whose time is counting down.
func (c *Clock) ActiveColor() color.Color {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.activeColor
}

// updateTime settles elapsed time into the active color's stored time.
// Caller must hold the mutex.
func (c *Clock) updateTime() {
	elapsed := time.Since(c.startTime).Milliseconds()
	c.startTime = time.Now()

	if c.activeColor == color.White {
		c.whiteTimeMs -= elapsed
	} else {
		c.blackTimeMs -= elapsed
	}

	if (c.activeColor == color.White && c.whiteTimeMs <= 0) ||
		(c.activeColor == color.Black && c.blackTimeMs <= 0) {
		if c.activeColor == color.White {
			c.whiteTimeMs = 0
		} else {
			c.blackTimeMs = 0
		}

		c.isRunning = false

		select {
		case c.timeupChan <- c.activeColor:
		default:
			// Channel buffer is full
		}
	}
}

// GetRemainingTime returns the current remaining time for both players
func (c *Clock) GetRemainingTime() RemainingTime {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	whiteTime := c.whiteTimeMs
	blackTime := c.blackTimeMs

	// If clock is running, calculate current time
	if c.isRunning {
		elapsed := time.Since(c.startTime).Milliseconds()

		if c.activeColor == color.White {
			whiteTime -= elapsed
		} else {
			blackTime -= elapsed
		}
	}

	// Ensure times don't go negative
	if whiteTime < 0 {
		whiteTime = 0
	}
	if blackTime < 0 {
		blackTime = 0
	}

	return RemainingTime{White: whiteTime, Black: blackTime}
}

// IsExpired checks if a player has run out of time
func (c *Clock) IsExpired(col color.Color) bool {
	t := c.GetRemainingTime()
	if col == color.White {
		return t.White <= 0
	}
	return t.Black <= 0
}

// TimeupChannel returns a channel that signals when time is up
func (c *Clock) TimeupChannel() <-chan color.Color {
	return c.timeupChan
}

// TickChannel returns a channel that provides periodic clock updates
func (c *Clock) TickChannel() <-chan Tick {
	return c.tickChan
}

// tickRoutine sends periodic updates of the clock state and watches for
// the active color's flag to fall. Exits when the clock stops.
func (c *Clock) tickRoutine() {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		if !c.isRunning {
			c.mutex.Unlock()
			return
		}

		c.updateTime()
		if !c.isRunning {
			// Flag fell; updateTime already signaled timeup.
			c.mutex.Unlock()
			return
		}

		tick := Tick{
			White:       c.whiteTimeMs,
			Black:       c.blackTimeMs,
			ActiveColor: c.activeColor,
		}
		c.mutex.Unlock()

		// Send tick update
		select {
		case c.tickChan <- tick:
		default:
			// Channel buffer is full
		}
	}
}

// FormatClockTime formats a duration in milliseconds to a user-friendly string (e.g., "1:30")
func FormatClockTime(timeMs int64) string {
	if timeMs < 0 {
		timeMs = 0
	}

	totalSeconds := timeMs / 1000
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60

	// For times less than 10 seconds, show decimal
	if timeMs < 10000 {
		tenths := (timeMs % 1000) / 100
		return fmt.Sprintf("%d.%d", totalSeconds, tenths)
	}

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
