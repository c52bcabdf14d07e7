// ABOUTME: SQLite implementation of the Storage interface using modernc.org/sqlite
// ABOUTME: Persists state blobs in a single table with automatic schema creation

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStorage creates a new SQLite storage at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	logger := slog.Default().With("component", "state")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStorage{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite state storage initialized", "path", path)
	return s, nil
}

// createSchema creates the state table if it doesn't exist
func (s *SQLiteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversation_state (
			state_key TEXT PRIMARY KEY,
			state BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load retrieves the blob stored under key.
// Returns ErrNotFound if the key has no saved state.
func (s *SQLiteStorage) Load(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT state FROM conversation_state WHERE state_key = ?`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying state: %w", err)
	}

	return data, nil
}

// Save saves or updates the blob under key.
// Uses INSERT OR REPLACE to handle both insert and update cases.
func (s *SQLiteStorage) Save(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT OR REPLACE INTO conversation_state (state_key, state, updated_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		key,
		data,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	s.logger.Debug("saved state", "key", key, "size", len(data))
	return nil
}

// Delete removes the state stored under key.
func (s *SQLiteStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_state WHERE state_key = ?`, key); err != nil {
		return fmt.Errorf("deleting state: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	s.logger.Info("closing SQLite state storage")
	return s.db.Close()
}
