// Package engine runs game use cases: it loads a game, applies one operation,
// saves it and notifies watchers.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"redacted/internal/assignment"
	"redacted/internal/config"
	"redacted/internal/events"
	"redacted/internal/failure"
	"redacted/internal/game"
	"redacted/internal/repo"
)

type Engine struct {
	Games   repo.Games
	Events  events.Broker
	Config  *config.Config
	Logger  *log.Logger
	Verbose bool
	Now     func() time.Time

	locks *gameLocks
}

func New(games repo.Games, bus events.Broker, cfg *config.Config, logger *log.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		Games:  games,
		Events: bus,
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
		locks:  &gameLocks{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) logf(format string, args ...any) {
	if e.Verbose {
		e.logger().Printf(format, args...)
	}
}

// gameLocks serializes operations per game id.
type gameLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *gameLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// lock serializes operations on one game. Engines must be built with New.
func (e Engine) lock(id string) (func(), error) {
	if e.locks == nil {
		return nil, failure.IllegalStatef("engine has no game locks; build it with engine.New")
	}
	return e.locks.lock(id), nil
}

func (e Engine) emit(ctx context.Context, evt events.Event) {
	if e.Events == nil {
		return
	}
	e.Events.Emit(ctx, evt)
}

func (e Engine) emitAssignment(ctx context.Context, gameID, playerID string, a assignment.Assignment) {
	e.logf("engine: new assignment game=%s player=%s type=%s", gameID, playerID, kindOf(a))
	e.emit(ctx, events.NewAssignment{Game: gameID, PlayerID: playerID, Assignment: a})
}

func kindOf(a assignment.Assignment) assignment.Kind {
	if a == nil {
		return assignment.KindAwaitingAssignment
	}
	return a.Kind()
}

func (e Engine) load(ctx context.Context, gameID string) (*game.Game, error) {
	g, err := e.Games.FindGameByID(ctx, gameID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, failure.NotFoundf("game %s not found", gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", gameID, err)
	}
	return g, nil
}

// update runs fn against a private copy of the game under the game lock and
// saves it when fn succeeds. after runs before the lock is released.
func (e Engine) update(ctx context.Context, gameID string, fn func(g *game.Game) error, after func(g *game.Game)) (*game.Game, error) {
	unlock, err := e.lock(gameID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	g, err := e.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	if err := e.Games.SaveGame(ctx, g); err != nil {
		return nil, fmt.Errorf("save game %s: %w", gameID, err)
	}
	if after != nil {
		after(g)
	}
	return g, nil
}

// Summary describes a game without revealing story content.
type Summary struct {
	ID              string   `json:"id"`
	EntriesPerStory int      `json:"entries_per_story"`
	Players         []string `json:"players"`
	NumberOfPlayers int      `json:"number_of_players"`
	HasStarted      bool     `json:"has_started"`
	HasEnded        bool     `json:"has_ended"`
	StoryCount      int      `json:"story_count"`
	Records         int      `json:"records"`
}

func summarize(g *game.Game) Summary {
	return Summary{
		ID:              g.ID(),
		EntriesPerStory: g.EntriesPerStory(),
		Players:         g.Players(),
		NumberOfPlayers: g.NumberOfPlayers(),
		HasStarted:      g.HasStarted(),
		HasEnded:        g.HasEnded(),
		StoryCount:      g.StoryCount(),
		Records:         g.History().Len(),
	}
}

// CreateGame creates an empty game. entriesPerStory <= 0 uses the configured
// default.
func (e Engine) CreateGame(ctx context.Context, entriesPerStory int) (Summary, error) {
	if entriesPerStory <= 0 && e.Config != nil {
		entriesPerStory = e.Config.Game.EntriesPerStory
	}
	g, err := e.Games.CreateGame(ctx, entriesPerStory)
	if err != nil {
		return Summary{}, fmt.Errorf("create game: %w", err)
	}
	e.logf("engine: game created game=%s entries=%d", g.ID(), g.EntriesPerStory())
	return summarize(g), nil
}

func (e Engine) Summary(ctx context.Context, gameID string) (Summary, error) {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return Summary{}, err
	}
	return summarize(g), nil
}

// GameJoined is the result of JoinGame.
type GameJoined struct {
	GameID          string
	PlayerID        string
	NumberOfPlayers int
	HasStarted      bool
	Assignment      assignment.Assignment
}

func (j GameJoined) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GameID          string          `json:"gameId"`
		PlayerID        string          `json:"playerId"`
		NumberOfPlayers int             `json:"numberOfPlayers"`
		HasStarted      bool            `json:"hasStarted"`
		Assignment      assignment.Wire `json:"assignment"`
	}{j.GameID, j.PlayerID, j.NumberOfPlayers, j.HasStarted, assignment.Encode(j.Assignment)})
}

func joined(g *game.Game, playerID string) (GameJoined, error) {
	a, err := g.Assignment(playerID)
	if err != nil {
		return GameJoined{}, err
	}
	return GameJoined{
		GameID:          g.ID(),
		PlayerID:        playerID,
		NumberOfPlayers: g.NumberOfPlayers(),
		HasStarted:      g.HasStarted(),
		Assignment:      a,
	}, nil
}

// JoinGame adds playerID to the game. Joining twice returns the current state
// without emitting anything.
func (e Engine) JoinGame(ctx context.Context, gameID, playerID string) (GameJoined, error) {
	unlock, err := e.lock(gameID)
	if err != nil {
		return GameJoined{}, err
	}
	defer unlock()
	g, err := e.load(ctx, gameID)
	if err != nil {
		return GameJoined{}, err
	}
	if g.HasPlayer(playerID) {
		return joined(g, playerID)
	}
	if err := g.AddPlayer(playerID); err != nil {
		return GameJoined{}, err
	}
	if err := e.Games.SaveGame(ctx, g); err != nil {
		return GameJoined{}, fmt.Errorf("save game %s: %w", gameID, err)
	}
	e.logf("engine: player joined game=%s player=%s players=%d", gameID, playerID, g.NumberOfPlayers())
	e.emit(ctx, events.PlayerJoinedGame{Game: gameID, PlayerID: playerID, NumberOfPlayers: g.NumberOfPlayers()})
	return joined(g, playerID)
}

// StartGame starts the game and hands every player a StartingStory.
func (e Engine) StartGame(ctx context.Context, gameID string) error {
	_, err := e.update(ctx, gameID, func(g *game.Game) error {
		return g.Start()
	}, func(g *game.Game) {
		e.logf("engine: game started game=%s players=%d", gameID, g.NumberOfPlayers())
		for _, pa := range g.PlayerAssignments() {
			e.emitAssignment(ctx, gameID, pa.PlayerID, pa.Assignment)
		}
	})
	return err
}

// storyOp applies one story operation and returns the acting player's new
// current assignment.
func (e Engine) storyOp(ctx context.Context, gameID, playerID, name string, op func(g *game.Game) (*game.PlayerAssignment, error)) (assignment.Assignment, error) {
	var unlocked *game.PlayerAssignment
	var current assignment.Assignment
	_, err := e.update(ctx, gameID, func(g *game.Game) error {
		var err error
		if unlocked, err = op(g); err != nil {
			return err
		}
		current, err = g.Assignment(playerID)
		return err
	}, func(g *game.Game) {
		e.logf("engine: %s game=%s player=%s", name, gameID, playerID)
		if g.HasEnded() {
			e.logf("engine: game ended game=%s", gameID)
			for _, pa := range g.PlayerAssignments() {
				e.emitAssignment(ctx, gameID, pa.PlayerID, pa.Assignment)
			}
			return
		}
		e.emitAssignment(ctx, gameID, playerID, current)
		if unlocked != nil {
			e.emitAssignment(ctx, gameID, unlocked.PlayerID, unlocked.Assignment)
		}
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

func (e Engine) StartStory(ctx context.Context, gameID, playerID, content string) (assignment.Assignment, error) {
	return e.storyOp(ctx, gameID, playerID, "story started", func(g *game.Game) (*game.PlayerAssignment, error) {
		return g.StartStory(playerID, content)
	})
}

func (e Engine) CensorStory(ctx context.Context, gameID, playerID string, storyIndex int, wordIndices []int) (assignment.Assignment, error) {
	return e.storyOp(ctx, gameID, playerID, "story censored", func(g *game.Game) (*game.PlayerAssignment, error) {
		return g.CensorStory(playerID, storyIndex, wordIndices)
	})
}

func (e Engine) RepairCensoredStory(ctx context.Context, gameID, playerID string, storyIndex int, replacements []string) (assignment.Assignment, error) {
	return e.storyOp(ctx, gameID, playerID, "story repaired", func(g *game.Game) (*game.PlayerAssignment, error) {
		return g.RepairCensoredStory(playerID, storyIndex, replacements)
	})
}

func (e Engine) ContinueStory(ctx context.Context, gameID, playerID string, storyIndex int, content string) (assignment.Assignment, error) {
	return e.storyOp(ctx, gameID, playerID, "story continued", func(g *game.Game) (*game.PlayerAssignment, error) {
		return g.ContinueStory(playerID, storyIndex, content)
	})
}

// Assignment returns the player's current assignment.
func (e Engine) Assignment(ctx context.Context, gameID, playerID string) (assignment.Assignment, error) {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return g.Assignment(playerID)
}

func (e Engine) PlayerAssignments(ctx context.Context, gameID string) ([]game.PlayerAssignment, error) {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return g.PlayerAssignments(), nil
}

// Stories returns the game's stories. Only finished games expose them.
func (e Engine) Stories(ctx context.Context, gameID string) ([]*game.Story, error) {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !g.HasEnded() {
		return nil, failure.IllegalStatef("game %s has not ended", gameID)
	}
	return g.Stories(), nil
}

func (e Engine) History(ctx context.Context, gameID string) (game.History, error) {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return game.History{}, err
	}
	return g.History(), nil
}
