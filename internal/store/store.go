// Package store persists BotSession rows — the durable half of session
// resolution that internal/clientmanager consults before falling back to
// the shared history index. Ported from claude-coder's UserModel
// (src/storage/models.py) and its repository (src/storage/repositories.py).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/clawbridge/internal/clientmanager"
)

// BotSessionRow is the persisted form of clientmanager.BotSession, keyed by
// Telegram user ID.
type BotSessionRow struct {
	ID        uuid.UUID
	UserID    string
	Directory string
	SessionID string
	Model     string
	Betas     []string
	UpdatedAt time.Time
}

// PGStore implements clientmanager.SessionStore backed by Postgres, with an
// in-memory read cache to absorb the GetOrConnect reuse-check traffic
// without round-tripping to the database on every message.
type PGStore struct {
	db *sql.DB

	mu    sync.RWMutex
	cache map[string]BotSessionRow
}

// OpenDB opens a pgx-backed *sql.DB and verifies connectivity.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return db, nil
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, cache: make(map[string]BotSessionRow)}
}

// Get implements clientmanager.SessionStore.
func (s *PGStore) Get(ctx context.Context, userID string) (clientmanager.BotSession, bool, error) {
	s.mu.RLock()
	if row, ok := s.cache[userID]; ok {
		s.mu.RUnlock()
		return toBotSession(row), true, nil
	}
	s.mu.RUnlock()

	row, ok, err := s.loadFromDB(ctx, userID)
	if err != nil {
		return clientmanager.BotSession{}, false, err
	}
	if !ok {
		return clientmanager.BotSession{}, false, nil
	}

	s.mu.Lock()
	s.cache[userID] = row
	s.mu.Unlock()
	return toBotSession(row), true, nil
}

// Upsert implements clientmanager.SessionStore.
func (s *PGStore) Upsert(ctx context.Context, session clientmanager.BotSession) error {
	row := BotSessionRow{
		ID:        uuid.Must(uuid.NewV7()),
		UserID:    session.UserID,
		Directory: session.Directory,
		SessionID: session.SessionID,
		Model:     session.Model,
		Betas:     session.Betas,
		UpdatedAt: time.Now(),
	}

	betasJSON, err := json.Marshal(row.Betas)
	if err != nil {
		return fmt.Errorf("store: marshal betas for user %s: %w", session.UserID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bot_sessions (id, user_id, directory, session_id, model, betas, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			directory = EXCLUDED.directory,
			session_id = EXCLUDED.session_id,
			model = EXCLUDED.model,
			betas = EXCLUDED.betas,
			updated_at = EXCLUDED.updated_at`,
		row.ID, row.UserID, row.Directory, row.SessionID, row.Model, betasJSON, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert bot_session for user %s: %w", session.UserID, err)
	}

	s.mu.Lock()
	s.cache[row.UserID] = row
	s.mu.Unlock()
	return nil
}

func (s *PGStore) loadFromDB(ctx context.Context, userID string) (BotSessionRow, bool, error) {
	var row BotSessionRow
	var betasJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, directory, session_id, model, betas, updated_at
		FROM bot_sessions WHERE user_id = $1`, userID,
	).Scan(&row.ID, &row.UserID, &row.Directory, &row.SessionID, &row.Model, &betasJSON, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return BotSessionRow{}, false, nil
	}
	if err != nil {
		return BotSessionRow{}, false, fmt.Errorf("store: load bot_session for user %s: %w", userID, err)
	}
	if len(betasJSON) > 0 {
		if err := json.Unmarshal(betasJSON, &row.Betas); err != nil {
			return BotSessionRow{}, false, fmt.Errorf("store: unmarshal betas for user %s: %w", userID, err)
		}
	}
	return row, true, nil
}

func toBotSession(row BotSessionRow) clientmanager.BotSession {
	return clientmanager.BotSession{
		UserID:    row.UserID,
		Directory: row.Directory,
		SessionID: row.SessionID,
		Model:     row.Model,
		Betas:     row.Betas,
		UpdatedAt: row.UpdatedAt,
	}
}
