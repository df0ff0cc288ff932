package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"redacted/internal/game"
)

// MemoryGames keeps games in process memory.
type MemoryGames struct {
	NewID func() string
	Now   func() time.Time

	mu       sync.RWMutex
	games    map[string]*game.Game
	created  map[string]time.Time
	watchers watchers
}

func NewMemoryGames() *MemoryGames {
	return &MemoryGames{
		games:   make(map[string]*game.Game),
		created: make(map[string]time.Time),
	}
}

func (m *MemoryGames) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemoryGames) CreateGame(ctx context.Context, entriesPerStory int) (*game.Game, error) {
	newID := m.NewID
	if newID == nil {
		newID = newGameID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.games == nil {
		m.games = make(map[string]*game.Game)
		m.created = make(map[string]time.Time)
	}
	id := newID()
	for _, taken := m.games[id]; taken; _, taken = m.games[id] {
		id = newID()
	}
	g := game.New(id, entriesPerStory)
	m.games[id] = g.Copy()
	m.created[id] = m.now().UTC()
	return g, nil
}

func (m *MemoryGames) FindGameByID(ctx context.Context, id string) (*game.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Copy(), nil
}

func (m *MemoryGames) SaveGame(ctx context.Context, g *game.Game) error {
	m.mu.Lock()
	if _, ok := m.games[g.ID()]; !ok {
		m.mu.Unlock()
		return nil
	}
	m.games[g.ID()] = g.Copy()
	m.mu.Unlock()
	m.watchers.notify(g)
	return nil
}

func (m *MemoryGames) Watch(ctx context.Context, id string, onChange func(*game.Game)) (*Watcher, error) {
	m.mu.RLock()
	_, ok := m.games[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.watchers.add(id, onChange), nil
}

// ListGames returns every game, oldest first.
func (m *MemoryGames) ListGames(ctx context.Context) ([]GameSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]GameSummary, 0, len(m.games))
	for id, g := range m.games {
		created := m.created[id].Format(time.RFC3339)
		out = append(out, GameSummary{
			ID:              id,
			EntriesPerStory: g.EntriesPerStory(),
			Records:         g.History().Len(),
			CreatedAt:       created,
			UpdatedAt:       created,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt == out[j].CreatedAt {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt < out[j].CreatedAt
	})
	return out, nil
}
