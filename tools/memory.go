// User memory tool - persists small notes the assistant decides to remember.
//
// Information Hiding:
// - Note storage internalized; callers only see numbered entries

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MemoryTool manages a numbered list of user memory notes.
type MemoryTool struct {
	mu    sync.Mutex
	notes []string
}

// NewMemoryTool creates an empty memory tool.
func NewMemoryTool() *MemoryTool {
	return &MemoryTool{}
}

// Metadata returns the tool metadata.
func (t *MemoryTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "memory",
		Description: "Manage long-lived user memory notes: write, list, or delete.",
		Parameters: []ToolParameter{
			{Name: "mode", ParamType: "string", Description: "\"w\" to write, \"r\" to list, \"d\" to delete", Required: true},
			{Name: "content", ParamType: "string", Description: "Note to store when mode is \"w\"", Required: false},
			{Name: "id", ParamType: "integer", Description: "1-based note number to delete when mode is \"d\"", Required: false},
		},
	}
}

type memoryArgs struct {
	Mode    string `json:"mode"`
	Content string `json:"content"`
	ID      int    `json:"id"`
}

// Execute applies the requested memory operation.
func (t *MemoryTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a memoryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch a.Mode {
	case "w":
		if a.Content == "" {
			return FailureResultf("content is required for mode \"w\""), nil
		}
		t.notes = append(t.notes, a.Content)
		return SuccessResult(fmt.Sprintf("Stored as note %d.", len(t.notes))), nil
	case "r":
		if len(t.notes) == 0 {
			return SuccessResult("No notes stored."), nil
		}
		var out strings.Builder
		for i, n := range t.notes {
			fmt.Fprintf(&out, "%d. %s\n", i+1, n)
		}
		return SuccessResult(out.String()), nil
	case "d":
		if a.ID < 1 || a.ID > len(t.notes) {
			return FailureResultf("no note %d to delete", a.ID), nil
		}
		t.notes = append(t.notes[:a.ID-1], t.notes[a.ID:]...)
		return SuccessResult(fmt.Sprintf("Deleted note %d.", a.ID)), nil
	default:
		return FailureResultf("unknown mode %q", a.Mode), nil
	}
}

// Notes returns a copy of the stored notes, for building system context.
func (t *MemoryTool) Notes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.notes))
	copy(out, t.notes)
	return out
}

// Verify MemoryTool implements Tool
var _ Tool = (*MemoryTool)(nil)
