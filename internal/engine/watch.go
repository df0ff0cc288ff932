package engine

import (
	"context"

	"redacted/internal/assignment"
	"redacted/internal/events"
	"redacted/internal/failure"
	"redacted/internal/game"
	"redacted/internal/repo"
)

func (e Engine) requireParticipant(ctx context.Context, gameID, playerID string) error {
	g, err := e.load(ctx, gameID)
	if err != nil {
		return err
	}
	if !g.HasPlayer(playerID) {
		return failure.NotFoundf("player %s is not in game %s", playerID, gameID)
	}
	return nil
}

// WatchForAssignment calls fn with every new assignment of playerID in the
// game until the subscription ends.
func (e Engine) WatchForAssignment(ctx context.Context, gameID, playerID string, fn func(assignment.Assignment)) (*events.Subscription, error) {
	if err := e.requireParticipant(ctx, gameID, playerID); err != nil {
		return nil, err
	}
	if e.Events == nil {
		return nil, failure.IllegalStatef("no event broker configured")
	}
	return e.Events.Subscribe(events.TypeNewAssignment, func(ctx context.Context, evt events.Event) {
		na, ok := evt.(events.NewAssignment)
		if !ok || na.Game != gameID || na.PlayerID != playerID {
			return
		}
		fn(na.Assignment)
	}), nil
}

// WatchAssignment calls fn with the player's current assignment and then with
// every new one. The first call happens under the game lock, so no event
// emitted by a concurrent operation can reach fn before it.
func (e Engine) WatchAssignment(ctx context.Context, gameID, playerID string, fn func(assignment.Assignment)) (*events.Subscription, error) {
	if e.Events == nil {
		return nil, failure.IllegalStatef("no event broker configured")
	}
	unlock, err := e.lock(gameID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	g, err := e.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	current, err := g.Assignment(playerID)
	if err != nil {
		return nil, err
	}
	sub := e.Events.Subscribe(events.TypeNewAssignment, func(ctx context.Context, evt events.Event) {
		na, ok := evt.(events.NewAssignment)
		if !ok || na.Game != gameID || na.PlayerID != playerID {
			return
		}
		fn(na.Assignment)
	})
	fn(current)
	return sub, nil
}

// WatchForOtherPlayers calls fn whenever someone joins the game.
func (e Engine) WatchForOtherPlayers(ctx context.Context, gameID, playerID string, fn func(events.PlayerJoinedGame)) (*events.Subscription, error) {
	if err := e.requireParticipant(ctx, gameID, playerID); err != nil {
		return nil, err
	}
	if e.Events == nil {
		return nil, failure.IllegalStatef("no event broker configured")
	}
	return e.Events.Subscribe(events.TypePlayerJoinedGame, func(ctx context.Context, evt events.Event) {
		pj, ok := evt.(events.PlayerJoinedGame)
		if !ok || pj.Game != gameID {
			return
		}
		fn(pj)
	}), nil
}

// WatchGame calls fn with a summary after every save of the game.
func (e Engine) WatchGame(ctx context.Context, gameID string, fn func(Summary)) (*repo.Watcher, error) {
	w, err := e.Games.Watch(ctx, gameID, func(g *game.Game) { fn(summarize(g)) })
	if err != nil {
		if failure.CodeOf(err) == failure.NotFound {
			return nil, failure.NotFoundf("game %s not found", gameID)
		}
		return nil, err
	}
	return w, nil
}
