// Package color provides basic color definitions for a chess game
package color

import "crypto/rand"

// Color represent a chess color
type Color string

// Possible color variations in a chess game
const (
	White Color = "w"
	Black Color = "b"
)

// Opp returns the opposite color for the given color.
func (c Color) Opp() Color {
	if c == White {
		return Black
	}

	return White
}

// Random picks a side with a coin flip. Used when the lobby creator
// has no color preference.
func Random() Color {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return White
	}
	if b[0]&1 == 0 {
		return White
	}
	return Black
}
