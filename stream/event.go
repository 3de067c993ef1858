// Package stream defines the typed event protocol between the response
// engine and its consumers, plus SSE transport on both sides.
//
// One streaming response carries an ordered sequence of named events and
// is terminated by exactly one terminal event: result on success, error
// on failure. Stream termination without a terminal event is a transport
// failure, distinct from a reported error.
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/richinex/palaver/model"
)

// Event names.
const (
	EventToken     = "token"
	EventReasoning = "reasoning"
	EventToolState = "tool_state"
	EventMetadata  = "metadata"
	EventError     = "error"
	EventResult    = "result"
)

// Event is one wire event: a name and a JSON payload.
type Event struct {
	Name string
	Data json.RawMessage
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Name == EventError || e.Name == EventResult
}

// ReasoningPayload is the payload of a reasoning event. Purely
// observational; never required for correctness.
type ReasoningPayload struct {
	Stage     model.Stage `json:"stage"`
	Message   string      `json:"message"`
	Iteration int         `json:"iteration,omitempty"`
}

// MetadataPayload is the payload of the metadata event, emitted at most
// once near the end of a successful stream.
type MetadataPayload struct {
	ChatID    string                `json:"chat_id"`
	TurnCount int                   `json:"turn_count"`
	Model     string                `json:"model,omitempty"`
	ToolCalls []model.ToolCallStats `json:"tool_calls,omitempty"`
}

// ErrorPayload is the payload of the terminal error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Token decodes a token event payload.
func (e Event) Token() (string, error) {
	if e.Name != EventToken {
		return "", fmt.Errorf("not a token event: %s", e.Name)
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("bad token payload: %w", err)
	}
	return s, nil
}

// Reasoning decodes a reasoning event payload.
func (e Event) Reasoning() (ReasoningPayload, error) {
	var p ReasoningPayload
	if e.Name != EventReasoning {
		return p, fmt.Errorf("not a reasoning event: %s", e.Name)
	}
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return p, fmt.Errorf("bad reasoning payload: %w", err)
	}
	return p, nil
}

// ToolState decodes a tool_state event payload.
func (e Event) ToolState() (map[string]string, error) {
	if e.Name != EventToolState {
		return nil, fmt.Errorf("not a tool_state event: %s", e.Name)
	}
	var m map[string]string
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return nil, fmt.Errorf("bad tool_state payload: %w", err)
	}
	return m, nil
}

// Metadata decodes a metadata event payload.
func (e Event) Metadata() (MetadataPayload, error) {
	var p MetadataPayload
	if e.Name != EventMetadata {
		return p, fmt.Errorf("not a metadata event: %s", e.Name)
	}
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return p, fmt.Errorf("bad metadata payload: %w", err)
	}
	return p, nil
}

// ErrorMessage decodes an error event payload.
func (e Event) ErrorMessage() (string, error) {
	if e.Name != EventError {
		return "", fmt.Errorf("not an error event: %s", e.Name)
	}
	var p ErrorPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return "", fmt.Errorf("bad error payload: %w", err)
	}
	return p.Message, nil
}

// Emitter is the engine's view of the outbound stream. Implementations
// must preserve emission order.
type Emitter interface {
	Token(text string) error
	Reasoning(stage model.Stage, message string, iteration int) error
	ToolState(state map[string]string) error
	Metadata(meta MetadataPayload) error
	Error(message string) error
	Result() error
}

// NewEvent builds an event from a name and a payload value.
func NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}
	return Event{Name: name, Data: data}, nil
}

// Recorder is an Emitter that collects events in memory.
// Useful for tests and for driving a reducer without a network stream.
type Recorder struct {
	Events []Event
}

func (r *Recorder) record(name string, payload any) error {
	ev, err := NewEvent(name, payload)
	if err != nil {
		return err
	}
	r.Events = append(r.Events, ev)
	return nil
}

// Token records a token event.
func (r *Recorder) Token(text string) error { return r.record(EventToken, text) }

// Reasoning records a reasoning event.
func (r *Recorder) Reasoning(stage model.Stage, message string, iteration int) error {
	return r.record(EventReasoning, ReasoningPayload{Stage: stage, Message: message, Iteration: iteration})
}

// ToolState records a tool_state event.
func (r *Recorder) ToolState(state map[string]string) error {
	return r.record(EventToolState, state)
}

// Metadata records a metadata event.
func (r *Recorder) Metadata(meta MetadataPayload) error { return r.record(EventMetadata, meta) }

// Error records a terminal error event.
func (r *Recorder) Error(message string) error {
	return r.record(EventError, ErrorPayload{Message: message})
}

// Result records a terminal result event.
func (r *Recorder) Result() error { return r.record(EventResult, nil) }

// Verify Recorder implements Emitter
var _ Emitter = (*Recorder)(nil)
