package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(NewMemoryTool()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(NewMemoryTool()); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	if _, ok := registry.Get("memory"); !ok {
		t.Error("expected to find registered tool")
	}
	if _, ok := registry.Get("nonexistent"); ok {
		t.Error("expected lookup of unknown tool to fail")
	}
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	registry, err := WithDefaults()
	if err != nil {
		t.Fatalf("WithDefaults failed: %v", err)
	}

	defs := registry.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 default tools, got %d", len(defs))
	}
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Name >= defs[i].Name {
			t.Errorf("definitions not sorted: %s before %s", defs[i-1].Name, defs[i].Name)
		}
	}
	for _, d := range defs {
		if d.Parameters["type"] != "object" {
			t.Errorf("tool %s schema is not an object: %v", d.Name, d.Parameters)
		}
	}
}

func TestSearchToolRecordsState(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Go","url":"https://go.dev","content":"The Go programming language"},
			{"title":"Docs","url":"https://go.dev/doc","content":"Documentation"}
		]}`))
	}))
	defer api.Close()

	tool := NewSearchTool(api.URL, "")
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"search_query":[{"q":"golang"}]}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success() {
		t.Fatalf("search failed: %v", result.Error)
	}

	if result.State["0†source"] != "https://go.dev" {
		t.Errorf("expected state mapping for first result, got %v", result.State)
	}
	if !strings.Contains(result.Output, "【0†source】") {
		t.Errorf("output missing citation marker: %s", result.Output)
	}
}

func TestSearchToolEmptyQueryIsToolFailure(t *testing.T) {
	tool := NewSearchTool("http://127.0.0.1:0", "")
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"search_query":[]}`))
	if err != nil {
		t.Fatalf("Execute returned hard error: %v", err)
	}
	if result.Success() {
		t.Error("expected tool-level failure for empty query")
	}
}

func TestOpenToolResolvesSearchReferences(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Test Page</title></head>
			<body><article><p>first paragraph</p><p>second paragraph</p></article></body></html>`))
	}))
	defer page.Close()

	tool := NewOpenTool()
	tool.ObserveState(map[string]string{"0†source": page.URL})

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"id":"0†source"}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success() {
		t.Fatalf("open failed: %v", result.Error)
	}
	if !strings.Contains(result.Output, "first paragraph") {
		t.Errorf("extracted text missing content: %s", result.Output)
	}
	if result.State["current_url"] != page.URL {
		t.Errorf("current_url not recorded: %v", result.State)
	}

	// Omitting id reuses the last opened URL.
	result, err = tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success() {
		t.Errorf("reopen failed: %v", result.Error)
	}
}

func TestOpenToolUnknownReference(t *testing.T) {
	tool := NewOpenTool()
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"id":"9†source"}`))
	if err != nil {
		t.Fatalf("Execute returned hard error: %v", err)
	}
	if result.Success() {
		t.Error("expected failure for unknown reference")
	}
}

func TestMemoryToolLifecycle(t *testing.T) {
	tool := NewMemoryTool()
	ctx := context.Background()

	result, _ := tool.Execute(ctx, json.RawMessage(`{"mode":"w","content":"likes tea"}`))
	if !result.Success() {
		t.Fatalf("write failed: %v", result.Error)
	}

	result, _ = tool.Execute(ctx, json.RawMessage(`{"mode":"r"}`))
	if !strings.Contains(result.Output, "likes tea") {
		t.Errorf("list missing note: %s", result.Output)
	}

	result, _ = tool.Execute(ctx, json.RawMessage(`{"mode":"d","id":1}`))
	if !result.Success() {
		t.Fatalf("delete failed: %v", result.Error)
	}

	result, _ = tool.Execute(ctx, json.RawMessage(`{"mode":"d","id":1}`))
	if result.Success() {
		t.Error("expected delete of missing note to fail")
	}

	if len(tool.Notes()) != 0 {
		t.Errorf("expected no notes, got %v", tool.Notes())
	}
}
