package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxQuerier is the part of *pgxpool.Pool the store needs.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps the refresh token in a one-row table.
type PostgresStore struct {
	DB pgxQuerier
}

func NewPostgresStore(db pgxQuerier) *PostgresStore {
	return &PostgresStore{DB: db}
}

// Migrate creates the credentials table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS calendar_credentials (
          id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
          refresh_token TEXT NOT NULL,
          updated_at TIMESTAMPTZ NOT NULL
          )`
	if _, err := s.DB.Exec(ctx, q); err != nil {
		return fmt.Errorf("migrate calendar_credentials: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (string, error) {
	var token string
	err := s.DB.QueryRow(ctx, `SELECT refresh_token FROM calendar_credentials WHERE id=1`).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	return token, nil
}

func (s *PostgresStore) Save(ctx context.Context, refreshToken string) error {
	q := `INSERT INTO calendar_credentials (id, refresh_token, updated_at)
          VALUES (1, $1, $2)
          ON CONFLICT (id) DO UPDATE
          SET refresh_token=EXCLUDED.refresh_token, updated_at=EXCLUDED.updated_at`
	if _, err := s.DB.Exec(ctx, q, refreshToken, time.Now().UTC()); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
