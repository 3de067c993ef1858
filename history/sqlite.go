// SQLite-backed history store.
//
// Information Hiding:
// - SQLite connection management hidden behind the Store interface
// - Schema details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling; per-session
//   append ordering comes from single-writer SQLite transactions

package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	// A single connection keeps the in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	store := &SqliteStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chat_sessions (
			chat_id TEXT PRIMARY KEY,
			user_id TEXT,
			title TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_call_id TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (chat_id) REFERENCES chat_sessions(chat_id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_chat
		ON chat_messages(chat_id, id);

		CREATE INDEX IF NOT EXISTS idx_sessions_user
		ON chat_sessions(user_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// EnsureSession creates the session record if missing.
func (s *SqliteStore) EnsureSession(ctx context.Context, sessionID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO chat_sessions (chat_id, user_id) VALUES (?, ?)",
		sessionID, nullable(userID),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure session: %w", err)
	}
	return nil
}

// Append appends one message to a session's log.
func (s *SqliteStore) Append(ctx context.Context, sessionID, role, content, toolCallID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is a no-op after Commit.
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO chat_sessions (chat_id) VALUES (?)",
		sessionID,
	); err != nil {
		return 0, fmt.Errorf("failed to ensure session: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO chat_messages (chat_id, role, content, tool_call_id) VALUES (?, ?, ?, ?)",
		sessionID, role, content, nullable(toolCallID),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read message id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE chat_sessions SET updated_at = datetime('now') WHERE chat_id = ?",
		sessionID,
	); err != nil {
		return 0, fmt.Errorf("failed to update session timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

// Window returns the most recent user/assistant messages, oldest first.
// Ordering is by primary key, not timestamp, to avoid clock-skew ambiguity.
func (s *SqliteStore) Window(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, COALESCE(tool_call_id, ''), created_at
		FROM chat_messages
		WHERE chat_id = ? AND role != 'tool'
		ORDER BY id DESC
		LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query window: %w", err)
	}
	defer rows.Close()

	var newestFirst []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.ToolCallID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.SessionID = sessionID
		m.CreatedAt = parseSqliteTime(createdAt)
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read window rows: %w", err)
	}

	// Reverse into oldest-first order.
	window := make([]Message, len(newestFirst))
	for i, m := range newestFirst {
		window[len(newestFirst)-1-i] = m
	}
	return window, nil
}

// Clear removes a session and all of its messages. Idempotent.
func (s *SqliteStore) Clear(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chat_messages WHERE chat_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chat_sessions WHERE chat_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetTitle updates a session's display title.
func (s *SqliteStore) SetTitle(ctx context.Context, sessionID, title string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE chat_sessions SET title = ?, updated_at = datetime('now') WHERE chat_id = ?",
		title, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to set title: %w", err)
	}
	return nil
}

// Sessions lists sessions, most recently updated first.
func (s *SqliteStore) Sessions(ctx context.Context, userID string) ([]Session, error) {
	query := `
		SELECT chat_id, COALESCE(user_id, ''), COALESCE(title, ''), created_at, updated_at
		FROM chat_sessions`
	args := []any{}
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var createdAt, updatedAt string
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.CreatedAt = parseSqliteTime(createdAt)
		sess.UpdatedAt = parseSqliteTime(updatedAt)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session rows: %w", err)
	}
	return sessions, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseSqliteTime(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Verify SqliteStore implements Store
var _ Store = (*SqliteStore)(nil)
