package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the refresh token in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at dsn and
// ensures the credentials table exists.
func OpenSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS calendar_credentials (
          id INTEGER PRIMARY KEY CHECK (id = 1),
          refresh_token TEXT NOT NULL,
          updated_at TEXT NOT NULL
          )`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("migrate calendar_credentials: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT refresh_token FROM calendar_credentials WHERE id=1`).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	return token, nil
}

func (s *SQLiteStore) Save(ctx context.Context, refreshToken string) error {
	q := `INSERT INTO calendar_credentials (id, refresh_token, updated_at)
          VALUES (1, ?, ?)
          ON CONFLICT(id) DO UPDATE
          SET refresh_token=excluded.refresh_token, updated_at=excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, refreshToken, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
