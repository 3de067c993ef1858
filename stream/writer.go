// Server-Sent Events writer.
//
// Wire format: "event: <name>\ndata: <json>\n\n". JSON payloads contain
// no raw newlines, so each event's data is a single line. Comment lines
// (": keep-alive") may be interleaved as heartbeats and are ignored by
// the decoder.

package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/richinex/palaver/model"
)

// Writer wraps an http.ResponseWriter for SSE streaming and implements
// Emitter. Safe for concurrent use; the heartbeat goroutine and the
// engine may write from different goroutines.
type Writer struct {
	mu       sync.Mutex
	w        io.Writer
	flusher  http.Flusher
	terminal bool
}

// NewWriter creates an SSE writer and sets the response headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// writeEvent writes one named event with a JSON payload and flushes.
// After a terminal event, further writes are dropped so exactly one
// terminal event reaches the consumer.
func (w *Writer) writeEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminal {
		return nil
	}

	if _, err := fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	w.flusher.Flush()

	if name == EventError || name == EventResult {
		w.terminal = true
	}
	return nil
}

// Comment writes an SSE comment line, used as a keep-alive heartbeat.
func (w *Writer) Comment(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminal {
		return nil
	}
	if _, err := fmt.Fprintf(w.w, ": %s\n\n", text); err != nil {
		return fmt.Errorf("failed to write comment: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// Token emits an incremental fragment of the final answer.
func (w *Writer) Token(text string) error {
	return w.writeEvent(EventToken, text)
}

// Reasoning emits a progress note for a pipeline stage.
func (w *Writer) Reasoning(stage model.Stage, message string, iteration int) error {
	return w.writeEvent(EventReasoning, ReasoningPayload{Stage: stage, Message: message, Iteration: iteration})
}

// ToolState emits a render-state mapping to be merged by the consumer.
func (w *Writer) ToolState(state map[string]string) error {
	return w.writeEvent(EventToolState, state)
}

// Metadata emits the informational metadata event.
func (w *Writer) Metadata(meta MetadataPayload) error {
	return w.writeEvent(EventMetadata, meta)
}

// Error emits the terminal error event.
func (w *Writer) Error(message string) error {
	return w.writeEvent(EventError, ErrorPayload{Message: message})
}

// Result emits the terminal success event.
func (w *Writer) Result() error {
	return w.writeEvent(EventResult, nil)
}

// Verify Writer implements Emitter
var _ Emitter = (*Writer)(nil)
