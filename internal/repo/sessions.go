package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session ties a bearer credential to a player identity.
type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

// Sessions stores player sessions.
type Sessions interface {
	StartNewSession(ctx context.Context, userID string) (Session, error)
	// GetSessionByID returns ErrNotFound for unknown ids.
	GetSessionByID(ctx context.Context, id string) (Session, error)
}

func newSession(userID string, now time.Time) (Session, error) {
	if strings.TrimSpace(userID) == "" {
		return Session{}, fmt.Errorf("user id required")
	}
	return Session{ID: uuid.NewString(), UserID: userID, CreatedAt: now.UTC().Format(time.RFC3339)}, nil
}

// MemorySessions keeps sessions in process memory.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]Session)}
}

func (m *MemorySessions) StartNewSession(ctx context.Context, userID string) (Session, error) {
	s, err := newSession(userID, time.Now())
	if err != nil {
		return Session{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = make(map[string]Session)
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *MemorySessions) GetSessionByID(ctx context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

// SQLSessions stores sessions in the sessions table.
type SQLSessions struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r SQLSessions) StartNewSession(ctx context.Context, userID string) (Session, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	s, err := newSession(userID, now())
	if err != nil {
		return Session{}, err
	}
	if _, err := r.DB.ExecContext(ctx, `INSERT INTO sessions(id,user_id,created_at) VALUES (?,?,?)`, s.ID, s.UserID, s.CreatedAt); err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}

func (r SQLSessions) GetSessionByID(ctx context.Context, id string) (Session, error) {
	var s Session
	err := r.DB.QueryRowContext(ctx, `SELECT id,user_id,created_at FROM sessions WHERE id=?`, id).Scan(&s.ID, &s.UserID, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	return s, err
}
