// In-memory history store, used in tests and ephemeral deployments.

package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process maps.
// Safe for concurrent use; appends within a session are serialized by the
// store mutex so a window is never observed partially written.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	messages map[string][]Message
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		messages: make(map[string][]Message),
		sessions: make(map[string]Session),
	}
}

// Append appends one message to a session's log.
func (s *MemoryStore) Append(ctx context.Context, sessionID, role, content, toolCallID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLocked(sessionID, "")

	id := s.nextID
	s.nextID++
	s.messages[sessionID] = append(s.messages[sessionID], Message{
		ID:         id,
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		ToolCallID: toolCallID,
		CreatedAt:  time.Now(),
	})

	sess := s.sessions[sessionID]
	sess.UpdatedAt = time.Now()
	s.sessions[sessionID] = sess

	return id, nil
}

// Window returns the most recent user/assistant messages, oldest first.
func (s *MemoryStore) Window(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var conversational []Message
	for _, m := range s.messages[sessionID] {
		if m.Role != "tool" {
			conversational = append(conversational, m)
		}
	}

	if len(conversational) > limit {
		conversational = conversational[len(conversational)-limit:]
	}

	window := make([]Message, len(conversational))
	copy(window, conversational)
	return window, nil
}

// Clear removes a session and all of its messages. Idempotent.
func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, sessionID)
	delete(s.sessions, sessionID)
	return nil
}

// EnsureSession creates the session record if missing.
func (s *MemoryStore) EnsureSession(ctx context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLocked(sessionID, userID)
	return nil
}

// SetTitle updates a session's display title.
func (s *MemoryStore) SetTitle(ctx context.Context, sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	sess.Title = title
	sess.UpdatedAt = time.Now()
	s.sessions[sessionID] = sess
	return nil
}

// Sessions lists sessions, most recently updated first.
func (s *MemoryStore) Sessions(ctx context.Context, userID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []Session
	for _, sess := range s.sessions {
		if userID != "" && sess.UserID != userID {
			continue
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) ensureLocked(sessionID, userID string) {
	if _, ok := s.sessions[sessionID]; ok {
		return
	}
	now := time.Now()
	s.sessions[sessionID] = Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Verify MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
