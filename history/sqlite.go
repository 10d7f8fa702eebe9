package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a durable Store implementation backed by a single SQLite
// table. One row per session key; Save replaces the whole transcript.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return s, nil
}

// NewSQLiteStoreWithDB wraps an existing database connection.
func NewSQLiteStoreWithDB(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			session_key TEXT PRIMARY KEY,
			transcript BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the stored transcript or (nil, nil) when no record exists.
func (s *SQLiteStore) Load(ctx context.Context, key string) (json.RawMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT transcript FROM transcripts WHERE session_key = ?`, key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load", Key: key, Err: err}
	}
	return raw, nil
}

// Save replaces the record for key with the given transcript.
func (s *SQLiteStore) Save(ctx context.Context, key string, transcript json.RawMessage) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (session_key, transcript, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			transcript = excluded.transcript,
			updated_at = excluded.updated_at
	`, key, []byte(transcript), now)
	if err != nil {
		return &PersistenceError{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Clear removes the record for key; clearing an absent key is a no-op.
func (s *SQLiteStore) Clear(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE session_key = ?`, key)
	if err != nil {
		return &PersistenceError{Op: "clear", Key: key, Err: err}
	}
	return nil
}
