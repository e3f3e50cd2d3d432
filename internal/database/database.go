// internal/database/database.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           UUID PRIMARY KEY,
	display_name TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS games (
	id          UUID PRIMARY KEY,
	host_id     UUID NOT NULL,
	winner_id   UUID,
	rounds      INTEGER NOT NULL,
	phases      JSONB NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS game_players (
	game_id     UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	seat        INTEGER NOT NULL,
	user_id     UUID NOT NULL,
	display     TEXT NOT NULL,
	is_bot      BOOLEAN NOT NULL,
	phase_index INTEGER NOT NULL,
	score       INTEGER NOT NULL,
	PRIMARY KEY (game_id, seat)
);
`

// PlayerResult is one seat's final standing.
type PlayerResult struct {
	UserID     uuid.UUID
	Display    string
	IsBot      bool
	PhaseIndex int
	Score      int
}

// GameResult is the record written once a game finishes.
type GameResult struct {
	GameID     uuid.UUID
	HostID     uuid.UUID
	Winner     uuid.UUID // uuid.Nil when nobody won
	Rounds     int
	Phases     []string
	Players    []PlayerResult // in seat order
	FinishedAt time.Time
}

// UserRecord is a persisted directory entry.
type UserRecord struct {
	ID        uuid.UUID
	Display   string
	CreatedAt time.Time
}

// Store persists finished games and the user directory in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool, pings it and applies the schema.
func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// StoreGameResult writes a finished game and its seats in one transaction.
func (s *Store) StoreGameResult(ctx context.Context, r GameResult) error {
	if r.GameID == uuid.Nil {
		return errors.New("game result without id")
	}
	phases, err := json.Marshal(r.Phases)
	if err != nil {
		return fmt.Errorf("marshal phases: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO games (id, host_id, winner_id, rounds, phases, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		r.GameID, r.HostID, nullableID(r.Winner), r.Rounds, phases, r.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert game %s: %w", r.GameID, err)
	}

	batch := &pgx.Batch{}
	for seat, p := range r.Players {
		batch.Queue(`
			INSERT INTO game_players (game_id, seat, user_id, display, is_bot, phase_index, score)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (game_id, seat) DO NOTHING`,
			r.GameID, seat, p.UserID, p.Display, p.IsBot, p.PhaseIndex, p.Score)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert players for %s: %w", r.GameID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpsertUser records a user or updates their display name.
func (s *Store) UpsertUser(ctx context.Context, id uuid.UUID, display string, createdAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`,
		id, display, createdAt)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", id, err)
	}
	return nil
}

// LoadUsers returns every stored user ordered by creation time.
func (s *Store) LoadUsers(ctx context.Context) ([]UserRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, display_name, created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowToStructByPos[UserRecord])
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return users, nil
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
