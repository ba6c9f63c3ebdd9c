// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, enables WAL, and creates the schema on startup

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements the full Store interface.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

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

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Wait for writer locks instead of failing under concurrent appends
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		-- Admin accounts (support staff with roles)
		CREATE TABLE IF NOT EXISTS admin_accounts (
			id            TEXT PRIMARY KEY,
			username      TEXT UNIQUE NOT NULL,
			email         TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL,
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,

			CHECK (role IN ('super_admin', 'agent'))
		);

		CREATE INDEX IF NOT EXISTS idx_admin_accounts_username ON admin_accounts(username);

		-- Chat sessions (one active session per customer ref)
		CREATE TABLE IF NOT EXISTS chat_sessions (
			id               TEXT PRIMARY KEY,
			customer_ref     TEXT NOT NULL,
			assigned_admin   TEXT REFERENCES admin_accounts(id),
			status           TEXT NOT NULL DEFAULT 'open',
			last_seq         INTEGER NOT NULL DEFAULT 0,
			created_at       TEXT NOT NULL,
			last_activity_at TEXT NOT NULL,

			CHECK (status IN ('open', 'assigned', 'closed'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_customer
			ON chat_sessions(customer_ref) WHERE status != 'closed';

		CREATE INDEX IF NOT EXISTS idx_sessions_status ON chat_sessions(status);
		CREATE INDEX IF NOT EXISTS idx_sessions_admin ON chat_sessions(assigned_admin);

		-- Messages (append-only, per-session sequence)
		CREATE TABLE IF NOT EXISTS messages (
			session_id TEXT NOT NULL REFERENCES chat_sessions(id),
			seq        INTEGER NOT NULL,
			sender     TEXT NOT NULL,
			body       TEXT NOT NULL,
			sent_at    TEXT NOT NULL,

			PRIMARY KEY (session_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}
