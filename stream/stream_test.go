package stream

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/richinex/palaver/model"
)

func TestWriterDecoderRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if err := w.Reasoning(model.StageDeciding, "choosing next step", 1); err != nil {
		t.Fatalf("Reasoning failed: %v", err)
	}
	if err := w.Comment("keep-alive"); err != nil {
		t.Fatalf("Comment failed: %v", err)
	}
	if err := w.ToolState(map[string]string{"0†source": "https://go.dev"}); err != nil {
		t.Fatalf("ToolState failed: %v", err)
	}
	if err := w.Token("Hello "); err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if err := w.Token("world"); err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if err := w.Metadata(MetadataPayload{ChatID: "c1", TurnCount: 2}); err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if err := w.Result(); err != nil {
		t.Fatalf("Result failed: %v", err)
	}

	d := NewDecoder(strings.NewReader(rec.Body.String()))

	ev, err := d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	reasoning, err := ev.Reasoning()
	if err != nil {
		t.Fatalf("Reasoning decode failed: %v", err)
	}
	if reasoning.Stage != model.StageDeciding || reasoning.Iteration != 1 {
		t.Errorf("unexpected reasoning payload: %+v", reasoning)
	}

	// Heartbeat comment must be skipped entirely.
	ev, err = d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	state, err := ev.ToolState()
	if err != nil {
		t.Fatalf("ToolState decode failed: %v", err)
	}
	if state["0†source"] != "https://go.dev" {
		t.Errorf("unexpected tool state: %v", state)
	}

	var text strings.Builder
	for i := 0; i < 2; i++ {
		ev, err = d.Next()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		tok, err := ev.Token()
		if err != nil {
			t.Fatalf("Token decode failed: %v", err)
		}
		text.WriteString(tok)
	}
	if text.String() != "Hello world" {
		t.Errorf("token concatenation = %q, want 'Hello world'", text.String())
	}

	ev, err = d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	meta, err := ev.Metadata()
	if err != nil {
		t.Fatalf("Metadata decode failed: %v", err)
	}
	if meta.ChatID != "c1" || meta.TurnCount != 2 {
		t.Errorf("unexpected metadata: %+v", meta)
	}

	ev, err = d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Name != EventResult || !ev.Terminal() {
		t.Errorf("expected terminal result event, got %+v", ev)
	}

	if _, err := d.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after terminal event, got %v", err)
	}
}

func TestWriterSuppressesEventsAfterTerminal(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if err := w.Error("engine unreachable"); err != nil {
		t.Fatalf("Error failed: %v", err)
	}
	// Writes after the terminal event must be dropped silently.
	if err := w.Token("late"); err != nil {
		t.Fatalf("Token after terminal returned error: %v", err)
	}
	if err := w.Result(); err != nil {
		t.Fatalf("Result after terminal returned error: %v", err)
	}

	d := NewDecoder(strings.NewReader(rec.Body.String()))
	ev, err := d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	msg, err := ev.ErrorMessage()
	if err != nil {
		t.Fatalf("ErrorMessage decode failed: %v", err)
	}
	if msg != "engine unreachable" {
		t.Errorf("error message = %q", msg)
	}
	if _, err := d.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestDecoderTransportFailure(t *testing.T) {
	// Stream cut off before any terminal event.
	body := "event: token\ndata: \"partial\"\n\n"
	d := NewDecoder(strings.NewReader(body))

	ev, err := d.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Name != EventToken {
		t.Fatalf("expected token event, got %s", ev.Name)
	}

	_, err = d.Next()
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestRecorderOrder(t *testing.T) {
	var r Recorder
	_ = r.Reasoning(model.StageToolCall, "calling search", 1)
	_ = r.Token("a")
	_ = r.Result()

	if len(r.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(r.Events))
	}
	if r.Events[0].Name != EventReasoning || r.Events[1].Name != EventToken || r.Events[2].Name != EventResult {
		t.Errorf("events out of order: %v", r.Events)
	}
}
