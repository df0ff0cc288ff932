// Package repo stores games and player sessions.
package repo

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"redacted/internal/failure"
	"redacted/internal/game"
)

var (
	ErrNotFound = failure.ErrNotFound
	ErrConflict = failure.ErrConflict
)

// Games persists games. Every game handed out is a private copy: mutating it
// has no effect until it is passed back to SaveGame.
type Games interface {
	CreateGame(ctx context.Context, entriesPerStory int) (*game.Game, error)
	// FindGameByID returns ErrNotFound for unknown ids.
	FindGameByID(ctx context.Context, id string) (*game.Game, error)
	// SaveGame stores g and notifies watchers. Saving a game that was never
	// created is a no-op.
	SaveGame(ctx context.Context, g *game.Game) error
	// Watch calls onChange with a copy of the game after every save. It
	// returns ErrNotFound for unknown ids.
	Watch(ctx context.Context, id string, onChange func(*game.Game)) (*Watcher, error)
}

// GameSummary is a listing row.
type GameSummary struct {
	ID              string `json:"id"`
	EntriesPerStory int    `json:"entries_per_story"`
	Records         int    `json:"records"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func newGameID() string {
	return uuid.NewString()
}

// Watcher is a handle on a Watch registration.
type Watcher struct {
	stop func()
	once sync.Once
}

// Stop ends the registration. It is safe to call more than once.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(w.stop)
}

type watchers struct {
	mu     sync.Mutex
	nextID uint64
	byGame map[string]map[uint64]func(*game.Game)
}

func (ws *watchers) add(id string, fn func(*game.Game)) *Watcher {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.byGame == nil {
		ws.byGame = make(map[string]map[uint64]func(*game.Game))
	}
	if ws.byGame[id] == nil {
		ws.byGame[id] = make(map[uint64]func(*game.Game))
	}
	ws.nextID++
	key := ws.nextID
	ws.byGame[id][key] = fn
	return &Watcher{stop: func() {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		delete(ws.byGame[id], key)
		if len(ws.byGame[id]) == 0 {
			delete(ws.byGame, id)
		}
	}}
}

func (ws *watchers) notify(g *game.Game) {
	ws.mu.Lock()
	fns := make([]func(*game.Game), 0, len(ws.byGame[g.ID()]))
	for _, fn := range ws.byGame[g.ID()] {
		fns = append(fns, fn)
	}
	ws.mu.Unlock()
	for _, fn := range fns {
		fn(g.Copy())
	}
}
