// Package history provides the durable per-session message log.
//
// Information Hiding:
// - Storage backend implementation details hidden behind interface
// - Allows swapping between memory and SQLite without API changes
// - Windowing policy encapsulated with the store

package history

import (
	"context"
	"time"
)

// DefaultWindow is the bounded-window size for history reads.
const DefaultWindow = 10

// Message is one row of a session's ordered message log.
// Insertion order (ID ascending), not wall clock, is authoritative.
type Message struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"-"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time `json:"-"`
}

// Session is one logical conversation.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store defines the interface for the history store.
//
// Appending to an unknown session implicitly creates the session record.
// Storage unavailability is returned as an error; callers must treat it as
// request failure, never as an empty history.
type Store interface {
	// Append appends one message to a session's log and returns its id.
	Append(ctx context.Context, sessionID, role, content, toolCallID string) (int64, error)

	// Window returns up to limit of the most recent user/assistant messages,
	// oldest first. Tool-role messages are persisted for audit but elided
	// here before truncation, so they never count against the cap.
	Window(ctx context.Context, sessionID string, limit int) ([]Message, error)

	// Clear removes a session and all of its messages. Idempotent: clearing
	// a session that does not exist is not an error.
	Clear(ctx context.Context, sessionID string) error

	// EnsureSession creates the session record if missing, recording the
	// owning user id on first creation.
	EnsureSession(ctx context.Context, sessionID, userID string) error

	// SetTitle updates a session's display title.
	SetTitle(ctx context.Context, sessionID, title string) error

	// Sessions lists sessions, most recently updated first. An empty userID
	// lists all sessions.
	Sessions(ctx context.Context, userID string) ([]Session, error)

	// Close releases backing resources.
	Close() error
}
