// Package app builds the dependencies a process needs to run games.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"redacted/internal/config"
	"redacted/internal/db"
	"redacted/internal/engine"
	"redacted/internal/events"
	"redacted/internal/migrate"
	"redacted/internal/repo"
)

type Options struct {
	Workspace string
	// InMemory keeps games and sessions in process memory and skips the
	// workspace database.
	InMemory bool
	// Config overrides the workspace redacted.yml.
	Config  *config.Config
	Logger  *log.Logger
	Verbose bool
}

// Context owns the process-wide collaborators. Close releases the database.
type Context struct {
	Config   *config.Config
	DB       *sql.DB
	Games    repo.Games
	Sessions repo.Sessions
	Bus      *events.Bus
	Engine   engine.Engine
	Logger   *log.Logger
}

// Open loads configuration, opens storage and wires the engine.
func Open(ctx context.Context, opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadOptional(opts.Workspace)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	c := &Context{Config: cfg, Logger: logger, Bus: events.NewBus(logger)}
	if opts.InMemory {
		c.Games = repo.NewMemoryGames()
		c.Sessions = repo.NewMemorySessions()
	} else {
		conn, err := db.Open(db.Config{Workspace: opts.Workspace})
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if _, err := migrate.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		c.DB = conn
		c.Games = repo.NewSQLGames(conn)
		c.Sessions = repo.SQLSessions{DB: conn}
	}
	c.Engine = engine.New(c.Games, c.Bus, cfg, logger)
	c.Engine.Verbose = opts.Verbose
	return c, nil
}

// ListGames lists stored games when the repository supports it.
func (c *Context) ListGames(ctx context.Context) ([]repo.GameSummary, error) {
	lister, ok := c.Games.(interface {
		ListGames(ctx context.Context) ([]repo.GameSummary, error)
	})
	if !ok {
		return nil, fmt.Errorf("game listing is not supported by this repository")
	}
	return lister.ListGames(ctx)
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
