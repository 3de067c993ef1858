package history

import (
	"context"
	"fmt"
	"testing"
)

func TestSqliteAppendAndWindow(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if _, err := store.Append(ctx, "chat-1", "user", "Hello", ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := store.Append(ctx, "chat-1", "assistant", "Hi there", ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	window, err := store.Window(ctx, "chat-1", 10)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}

	if len(window) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(window))
	}
	if window[0].Role != "user" || window[0].Content != "Hello" {
		t.Errorf("unexpected first message: %+v", window[0])
	}
	if window[1].Role != "assistant" || window[1].Content != "Hi there" {
		t.Errorf("unexpected second message: %+v", window[1])
	}
	if window[0].ID >= window[1].ID {
		t.Errorf("window not in insertion order: %d >= %d", window[0].ID, window[1].ID)
	}
}

func TestSqliteWindowTruncatesOldestFirst(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	// 8 turns = 16 conversational messages.
	for i := 0; i < 8; i++ {
		if _, err := store.Append(ctx, "chat-1", "user", fmt.Sprintf("question %d", i), ""); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if _, err := store.Append(ctx, "chat-1", "assistant", fmt.Sprintf("answer %d", i), ""); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	window, err := store.Window(ctx, "chat-1", 10)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}

	if len(window) != 10 {
		t.Fatalf("expected window of 10, got %d", len(window))
	}
	// Window must end with the most recent turn.
	last := window[len(window)-1]
	if last.Role != "assistant" || last.Content != "answer 7" {
		t.Errorf("window does not end with latest message: %+v", last)
	}
	if window[0].Content != "question 3" {
		t.Errorf("window starts at %q, want 'question 3'", window[0].Content)
	}
}

func TestSqliteWindowElidesToolMessages(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if _, err := store.Append(ctx, "chat-1", "user", "look this up", ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := store.Append(ctx, "chat-1", "tool", "search result", "call-1"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := store.Append(ctx, "chat-1", "assistant", "here's what I found", ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	window, err := store.Window(ctx, "chat-1", 10)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}

	if len(window) != 2 {
		t.Fatalf("expected tool message elided, got %d messages", len(window))
	}
	for _, m := range window {
		if m.Role == "tool" {
			t.Errorf("tool message leaked into window: %+v", m)
		}
	}
}

func TestSqliteImplicitSessionCreation(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if _, err := store.Append(ctx, "new-chat", "user", "hello", ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	sessions, err := store.Sessions(ctx, "")
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "new-chat" {
		t.Errorf("expected implicit session 'new-chat', got %+v", sessions)
	}
}

func TestSqliteClearIsIdempotent(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if _, err := store.Append(ctx, "chat-1", "user", "hello", ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := store.Clear(ctx, "chat-1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	// Clearing again, and clearing a session that never existed, must succeed.
	if err := store.Clear(ctx, "chat-1"); err != nil {
		t.Errorf("second Clear failed: %v", err)
	}
	if err := store.Clear(ctx, "never-existed"); err != nil {
		t.Errorf("Clear of unknown session failed: %v", err)
	}

	window, err := store.Window(ctx, "chat-1", 10)
	if err != nil {
		t.Fatalf("Window failed: %v", err)
	}
	if len(window) != 0 {
		t.Errorf("expected empty window after clear, got %d messages", len(window))
	}
}

func TestSqliteSessionsOrderedByUpdate(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.EnsureSession(ctx, "chat-a", "user-1"); err != nil {
		t.Fatalf("EnsureSession failed: %v", err)
	}
	if err := store.EnsureSession(ctx, "chat-b", "user-2"); err != nil {
		t.Fatalf("EnsureSession failed: %v", err)
	}

	sessions, err := store.Sessions(ctx, "user-1")
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "chat-a" {
		t.Errorf("user filter broken: %+v", sessions)
	}
	if sessions[0].UserID != "user-1" {
		t.Errorf("user id not recorded: %+v", sessions[0])
	}

	if err := store.SetTitle(ctx, "chat-a", "weather talk"); err != nil {
		t.Fatalf("SetTitle failed: %v", err)
	}
	sessions, err = store.Sessions(ctx, "user-1")
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if sessions[0].Title != "weather talk" {
		t.Errorf("title not updated: %+v", sessions[0])
	}
}
