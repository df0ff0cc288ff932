package server

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"redacted/internal/config"
	"redacted/internal/engine"
	"redacted/internal/events"
	"redacted/internal/game"
	"redacted/internal/repo"
)

// interleavingGames runs hook after every FindGameByID, letting a test slip
// another operation in between a read and whatever follows it.
type interleavingGames struct {
	repo.Games
	mu    sync.Mutex
	calls int
	hook  func(call int)
}

func (g *interleavingGames) FindGameByID(ctx context.Context, id string) (*game.Game, error) {
	found, err := g.Games.FindGameByID(ctx, id)
	g.mu.Lock()
	g.calls++
	call, hook := g.calls, g.hook
	g.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return found, err
}

func (g *interleavingGames) setHook(hook func(call int)) {
	g.mu.Lock()
	g.calls = 0
	g.hook = hook
	g.mu.Unlock()
}

func TestWatchGameEndsOnLatestAssignment(t *testing.T) {
	ctx := context.Background()
	logger := log.New(io.Discard, "", 0)
	games := &interleavingGames{Games: repo.NewMemoryGames()}
	e := engine.New(games, events.NewBus(logger), config.Default(), logger)

	summary, err := e.CreateGame(ctx, 1)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	for _, p := range []string{"p1", "p2", "p3", "p4"} {
		if _, err := e.JoinGame(ctx, summary.ID, p); err != nil {
			t.Fatalf("join %s: %v", p, err)
		}
	}
	if err := e.StartGame(ctx, summary.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.StartStory(ctx, summary.ID, "p4", "The tale of p4"); err != nil {
		t.Fatalf("start story p4: %v", err)
	}

	// The second read is the assignment snapshot; p3 starts a story while it
	// is in flight, which hands p4 a new assignment.
	done := make(chan error, 1)
	games.setHook(func(call int) {
		if call != 2 {
			return
		}
		go func() {
			_, err := e.StartStory(ctx, summary.ID, "p3", "The tale of p3")
			done <- err
		}()
		time.Sleep(50 * time.Millisecond)
	})
	msgs, stop, err := watchGame(ctx, e, logger, summary.ID, "p4")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()
	if err := <-done; err != nil {
		t.Fatalf("start story p3: %v", err)
	}
	games.setHook(nil)

	var kinds []string
	for len(msgs) > 0 {
		m := <-msgs
		if msg, ok := m.Data.(NewAssignmentMessage); ok {
			kinds = append(kinds, msg.Assignment.Type)
		}
	}
	current, err := e.Assignment(ctx, summary.ID, "p4")
	if err != nil {
		t.Fatalf("assignment: %v", err)
	}
	if len(kinds) == 0 || kinds[len(kinds)-1] != string(current.Kind()) {
		t.Fatalf("streamed %v, current %s", kinds, current.Kind())
	}
	if current.Kind() != "redactingStory" {
		t.Fatalf("current = %s", current.Kind())
	}
}
