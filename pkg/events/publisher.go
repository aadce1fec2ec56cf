// Package events decouples the lobby engine from the transport layer.
// Lobbies publish state changes here; the websocket hub subscribes and
// fans them out to whichever sockets of that lobby are online.
package events

import (
	"sync"

	"github.com/tecu23/match-server/internal/color"
)

// Audience selects which of a lobby's two players should receive an event.
type Audience int

const (
	// ToBoth delivers to every online socket of the lobby.
	ToBoth Audience = iota
	// ToColor delivers only to the socket seated at Event.Color.
	ToColor
	// ToOpponent delivers to the socket opposite Event.Color.
	ToOpponent
)

// Event is one outbound lobby state change. For ToColor/ToOpponent the
// lobby resolves the recipients into Targets at publish time: seats are
// identified downstream by token, not color, because colors swap on a
// rematch while tokens never change.
type Event struct {
	LobbyID  string
	Audience Audience
	Color    color.Color // reference color for ToColor/ToOpponent
	Targets  []string    // recipient seat tokens; unused for ToBoth
	Name     string      // outbound event tag
	Payload  interface{}
}

// Handler is a function that processes events
type Handler func(event Event)

// Publisher is the central event publisher. Delivery is synchronous so
// that events observed by a subscriber keep the order the lobby emitted
// them in; handlers must not block.
type Publisher struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewPublisher creates a new event publisher
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Subscribe registers a handler for every published event.
func (p *Publisher) Subscribe(handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handlers = append(p.handlers, handler)
}

// Publish delivers an event to all subscribers, in registration order.
func (p *Publisher) Publish(event Event) {
	p.mu.RLock()
	handlers := append([]Handler(nil), p.handlers...)
	p.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}
