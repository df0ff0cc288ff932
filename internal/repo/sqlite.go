package repo

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"redacted/internal/failure"
	"redacted/internal/game"
)

// SQLGames stores each game as its creation row plus an append-only log of
// history records, and rebuilds games by replaying the log.
type SQLGames struct {
	DB    *sql.DB
	NewID func() string
	Now   func() time.Time

	watchers watchers
}

func NewSQLGames(db *sql.DB) *SQLGames {
	return &SQLGames{DB: db, Now: time.Now}
}

func (r *SQLGames) now() string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (r *SQLGames) CreateGame(ctx context.Context, entriesPerStory int) (*game.Game, error) {
	newID := r.NewID
	if newID == nil {
		newID = newGameID
	}
	g := game.New(newID(), entriesPerStory)
	ts := r.now()
	if _, err := r.DB.ExecContext(ctx, `INSERT INTO games(id,entries_per_story,created_at,updated_at) VALUES (?,?,?,?)`,
		g.ID(), g.EntriesPerStory(), ts, ts); err != nil {
		return nil, fmt.Errorf("insert game: %w", err)
	}
	return g, nil
}

type storedRecord struct {
	Type    game.RecordType
	Payload string
}

func loadRecords(ctx context.Context, q queryer, id string) ([]storedRecord, error) {
	rows, err := q.QueryContext(ctx, `SELECT type,payload_json FROM game_records WHERE game_id=? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []storedRecord
	for rows.Next() {
		var typ, payload string
		if err := rows.Scan(&typ, &payload); err != nil {
			return nil, err
		}
		out = append(out, storedRecord{Type: game.RecordType(typ), Payload: payload})
	}
	return out, rows.Err()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLGames) FindGameByID(ctx context.Context, id string) (*game.Game, error) {
	var entries int
	err := r.DB.QueryRowContext(ctx, `SELECT entries_per_story FROM games WHERE id=?`, id).Scan(&entries)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	stored, err := loadRecords(ctx, r.DB, id)
	if err != nil {
		return nil, fmt.Errorf("load game records: %w", err)
	}
	h := game.History{Created: game.GameCreated{GameID: id, EntriesPerStory: entries}}
	for _, rec := range stored {
		decoded, err := game.DecodeRecord(rec.Type, []byte(rec.Payload))
		if err != nil {
			return nil, err
		}
		h.Records = append(h.Records, decoded)
	}
	return game.Replay(h)
}

// SaveGame appends the records of g that are not stored yet. A snapshot that
// is behind or diverges from the stored log fails with ErrConflict.
func (r *SQLGames) SaveGame(ctx context.Context, g *game.Game) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM games WHERE id=?`, g.ID()).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	stored, err := loadRecords(ctx, tx, g.ID())
	if err != nil {
		return fmt.Errorf("load game records: %w", err)
	}
	h := g.History()
	if len(stored) > len(h.Records) {
		return failure.New(failure.Conflict, fmt.Sprintf("game %s was modified concurrently", g.ID()))
	}
	if n := len(stored); n > 0 {
		last, err := game.EncodeRecord(h.Records[n-1])
		if err != nil {
			return err
		}
		if stored[n-1].Type != h.Records[n-1].Type() || !bytes.Equal(last, []byte(stored[n-1].Payload)) {
			return failure.New(failure.Conflict, fmt.Sprintf("game %s was modified concurrently", g.ID()))
		}
	}
	ts := r.now()
	for i := len(stored); i < len(h.Records); i++ {
		payload, err := game.EncodeRecord(h.Records[i])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO game_records(game_id,seq,type,payload_json,ts) VALUES (?,?,?,?,?)`,
			g.ID(), i+1, string(h.Records[i].Type()), string(payload), ts); err != nil {
			return fmt.Errorf("insert game record: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE games SET updated_at=? WHERE id=?`, ts, g.ID()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.watchers.notify(g)
	return nil
}

// Watch only sees saves made through this SQLGames value.
func (r *SQLGames) Watch(ctx context.Context, id string, onChange func(*game.Game)) (*Watcher, error) {
	var exists int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM games WHERE id=?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.watchers.add(id, onChange), nil
}

// ListGames returns every game, oldest first.
func (r *SQLGames) ListGames(ctx context.Context) ([]GameSummary, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT g.id, g.entries_per_story, g.created_at, g.updated_at,
       (SELECT COUNT(*) FROM game_records gr WHERE gr.game_id=g.id) AS records
FROM games g ORDER BY g.created_at, g.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GameSummary
	for rows.Next() {
		var s GameSummary
		if err := rows.Scan(&s.ID, &s.EntriesPerStory, &s.CreatedAt, &s.UpdatedAt, &s.Records); err != nil {
			return nil, err
		}
		s.Records++
		out = append(out, s)
	}
	return out, rows.Err()
}
