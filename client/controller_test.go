package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/richinex/palaver/model"
	"github.com/richinex/palaver/stream"
)

func TestControllerSubmitHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/stream" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Question != "hi" {
			t.Errorf("question = %q", req.Question)
		}

		sw, err := stream.NewWriter(w)
		if err != nil {
			t.Fatalf("NewWriter failed: %v", err)
		}
		sw.Reasoning(model.StageDeciding, "deciding", 0)
		sw.Token("Hello ")
		sw.Token("there!")
		sw.Metadata(stream.MetadataPayload{ChatID: "assigned-1", TurnCount: 2})
		sw.Result()
	}))
	defer srv.Close()

	ctrl := NewController(srv.URL, "")
	if err := ctrl.Submit(context.Background(), "hi"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	conv := ctrl.Conversation()
	if conv.ChatID != "assigned-1" {
		t.Errorf("chat id = %q, want server-assigned", conv.ChatID)
	}
	entry := conv.Entries[1]
	if entry.Thinking || entry.Text != "Hello there!" {
		t.Errorf("final entry = %+v", entry)
	}
}

func TestControllerCancelAfterThreeTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw, err := stream.NewWriter(w)
		if err != nil {
			t.Fatalf("NewWriter failed: %v", err)
		}
		sw.Token("one ")
		sw.Token("two ")
		sw.Token("three")
		// Hold the stream open until the client aborts.
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctrl := NewController(srv.URL, "c1")
	tokens := 0
	ctrl.OnEvent = func(ev stream.Event) {
		if ev.Name == stream.EventToken {
			tokens++
			if tokens == 3 {
				ctrl.Cancel()
			}
		}
	}

	err := ctrl.Submit(context.Background(), "count for me")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	entry := ctrl.Conversation().Entries[1]
	if entry.Thinking {
		t.Error("thinking flag not cleared after cancel")
	}
	if entry.Text != "one two three" {
		t.Errorf("partial text = %q, want the 3 received fragments", entry.Text)
	}
	if tokens != 3 {
		t.Errorf("applied %d token events, want 3", tokens)
	}
}

func TestControllerTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw, err := stream.NewWriter(w)
		if err != nil {
			t.Fatalf("NewWriter failed: %v", err)
		}
		// Stream drops without a terminal event.
		sw.Token("partial")
	}))
	defer srv.Close()

	ctrl := NewController(srv.URL, "c1")
	err := ctrl.Submit(context.Background(), "hello")
	if !errors.Is(err, stream.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}

	// The entry stays marked in-flight so the caller can surface a
	// connection failure instead of a finished answer.
	entry := ctrl.Conversation().Entries[1]
	if !entry.Thinking {
		t.Error("transport failure must not silently resolve the entry")
	}
	if entry.Text != "partial" {
		t.Errorf("partial text = %q", entry.Text)
	}
}

func TestControllerLoadHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/chat/history/abc" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(HistoryResponse{
			ChatID: "abc",
			Messages: []HistoryMessage{
				{Role: model.RoleUser, Content: "earlier question"},
				{Role: model.RoleAssistant, Content: "earlier answer"},
			},
			Total: 2,
		})
	}))
	defer srv.Close()

	ctrl := NewController(srv.URL, "old")
	ctrl.Conversation().ToolState["0†source"] = "https://stale.example"

	if err := ctrl.LoadHistory(context.Background(), "abc"); err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}

	conv := ctrl.Conversation()
	if conv.ChatID != "abc" || len(conv.Entries) != 2 {
		t.Fatalf("conversation not replaced: %+v", conv)
	}
	if conv.Entries[0].Text != "earlier question" {
		t.Errorf("entries = %+v", conv.Entries)
	}
	if len(conv.ToolState) != 0 {
		t.Error("stale tool state survived the load")
	}
}

func TestControllerDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/chat/history/gone" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(DeleteResponse{ChatID: "gone", Success: true})
	}))
	defer srv.Close()

	ctrl := NewController(srv.URL, "gone")
	ctrl.Conversation().Begin("q")

	if err := ctrl.Delete(context.Background(), "gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(ctrl.Conversation().Entries) != 0 {
		t.Errorf("local entries not cleared: %+v", ctrl.Conversation().Entries)
	}
}
