// Package events carries game notifications from the engine to watchers.
package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"redacted/internal/assignment"
)

// Type names an event topic.
type Type string

const (
	TypePlayerJoinedGame Type = "PlayerJoinedGame"
	TypeNewAssignment    Type = "NewAssignment"
)

// Types lists every topic.
var Types = []Type{TypePlayerJoinedGame, TypeNewAssignment}

// Event is a notification about one game.
type Event interface {
	EventType() Type
	GameID() string
}

// PlayerJoinedGame is emitted when a new player joins.
type PlayerJoinedGame struct {
	Game            string `json:"gameId"`
	PlayerID        string `json:"playerId"`
	NumberOfPlayers int    `json:"numberOfPlayers"`
}

func (e PlayerJoinedGame) EventType() Type { return TypePlayerJoinedGame }
func (e PlayerJoinedGame) GameID() string  { return e.Game }

// NewAssignment is emitted when a player's current assignment changes.
type NewAssignment struct {
	Game       string
	PlayerID   string
	Assignment assignment.Assignment
}

func (e NewAssignment) EventType() Type { return TypeNewAssignment }
func (e NewAssignment) GameID() string  { return e.Game }

func (e NewAssignment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GameID     string          `json:"gameId"`
		PlayerID   string          `json:"playerId"`
		Assignment assignment.Wire `json:"assignment"`
	}{e.Game, e.PlayerID, assignment.Encode(e.Assignment)})
}

// Handler receives events. Handlers run on the emitting goroutine and must
// not block.
type Handler func(ctx context.Context, e Event)

// Broker is the publish/subscribe surface the engine depends on.
type Broker interface {
	Emit(ctx context.Context, e Event)
	Subscribe(t Type, h Handler) *Subscription
}

// Bus is an in-process Broker.
type Bus struct {
	Logger *log.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[Type]map[uint64]Handler
}

func NewBus(logger *log.Logger) *Bus {
	return &Bus{Logger: logger, subs: make(map[Type]map[uint64]Handler)}
}

func (b *Bus) logger() *log.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return log.Default()
}

// Subscribe registers h for events of type t until the subscription ends.
func (b *Bus) Subscribe(t Type, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[Type]map[uint64]Handler)
	}
	b.nextID++
	if b.subs[t] == nil {
		b.subs[t] = make(map[uint64]Handler)
	}
	b.subs[t][b.nextID] = h
	return &Subscription{bus: b, typ: t, id: b.nextID}
}

// Emit delivers e to every current subscriber of its type. A panicking
// handler is logged and does not affect the others.
func (b *Bus) Emit(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.EventType()]))
	for _, h := range b.subs[e.EventType()] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		b.deliver(ctx, h, e)
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger().Printf("events: handler for %s panicked: %v", e.EventType(), r)
		}
	}()
	h(ctx, e)
}

// Subscribers returns the number of live subscriptions for t.
func (b *Bus) Subscribers(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[t])
}

func (b *Bus) unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[t], id)
}

// Subscription is a handle on a registered handler.
type Subscription struct {
	bus  *Bus
	typ  Type
	id   uint64
	once sync.Once
}

// End stops delivery. It is safe to call more than once.
func (s *Subscription) End() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() { s.bus.unsubscribe(s.typ, s.id) })
}
