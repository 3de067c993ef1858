// Package client implements the consumer side of the streaming chat
// protocol: a pure event reducer over conversation state, a session
// controller owning at most one in-flight stream, and the content
// transformer that resolves placeholder tokens at render time.
package client

import (
	"fmt"
	"sort"
	"time"

	"github.com/richinex/palaver/model"
	"github.com/richinex/palaver/stream"
)

// ReasoningStep is one observed progress note, kept in arrival order.
type ReasoningStep struct {
	Stage   model.Stage
	Message string
	At      time.Time
}

// Entry is one rendered message in the local list. Thinking marks the
// placeholder assistant entry for an in-flight turn.
type Entry struct {
	Role     string
	Text     string
	Thinking bool
	Steps    []ReasoningStep
}

// Conversation is the reducer state for one session. Mutated only through
// Begin, Apply, MarkAborted, and Replace, all on the caller's goroutine.
type Conversation struct {
	ChatID    string
	Entries   []Entry
	ToolState map[string]string
	Preview   string
	UpdatedAt time.Time
}

// NewConversation creates an empty conversation for the given id. The id
// may be empty; the server assigns one and reports it via metadata.
func NewConversation(chatID string) *Conversation {
	return &Conversation{
		ChatID:    chatID,
		ToolState: make(map[string]string),
	}
}

// Begin appends the user entry and the thinking placeholder for a new
// turn. Apply directs subsequent events at the placeholder.
func (c *Conversation) Begin(question string) {
	c.Entries = append(c.Entries,
		Entry{Role: model.RoleUser, Text: question},
		Entry{Role: model.RoleAssistant, Thinking: true},
	)
}

// placeholder returns the in-flight assistant entry, or nil when no turn
// is active.
func (c *Conversation) placeholder() *Entry {
	for i := len(c.Entries) - 1; i >= 0; i-- {
		if c.Entries[i].Thinking {
			return &c.Entries[i]
		}
	}
	return nil
}

// Apply folds one stream event into the conversation. Events are applied
// in arrival order; token fragments are appended verbatim, never
// reordered or buffered.
func (c *Conversation) Apply(ev stream.Event) error {
	switch ev.Name {
	case stream.EventToken:
		text, err := ev.Token()
		if err != nil {
			return err
		}
		if e := c.placeholder(); e != nil {
			e.Text += text
		}

	case stream.EventReasoning:
		p, err := ev.Reasoning()
		if err != nil {
			return err
		}
		if e := c.placeholder(); e != nil {
			e.Steps = append(e.Steps, ReasoningStep{Stage: p.Stage, Message: p.Message, At: time.Now()})
		}

	case stream.EventToolState:
		state, err := ev.ToolState()
		if err != nil {
			return err
		}
		// Key-wise merge, never a replacement.
		for k, v := range state {
			c.ToolState[k] = v
		}

	case stream.EventMetadata:
		meta, err := ev.Metadata()
		if err != nil {
			return err
		}
		if c.ChatID == "" {
			c.ChatID = meta.ChatID
		}

	case stream.EventError:
		msg, err := ev.ErrorMessage()
		if err != nil {
			return err
		}
		if e := c.placeholder(); e != nil {
			e.Text = fmt.Sprintf("Something went wrong: %s", msg)
			e.Thinking = false
		}
		c.UpdatedAt = time.Now()

	case stream.EventResult:
		if e := c.placeholder(); e != nil {
			e.Thinking = false
			c.Preview = e.Text
		}
		c.UpdatedAt = time.Now()

	default:
		// Unknown event names are ignored for forward compatibility.
	}
	return nil
}

// MarkAborted clears the thinking flag after a client-side cancel. The
// partial text accumulated so far is retained.
func (c *Conversation) MarkAborted() {
	if e := c.placeholder(); e != nil {
		e.Thinking = false
	}
}

// Replace swaps in a server-loaded message list, discarding ephemeral
// reasoning steps and tool state from the previous contents.
func (c *Conversation) Replace(chatID string, entries []Entry) {
	c.ChatID = chatID
	c.Entries = entries
	c.ToolState = make(map[string]string)
	c.Preview = ""
	if n := len(entries); n > 0 {
		c.Preview = entries[n-1].Text
	}
}

// SortedSteps returns the entry's reasoning steps ordered by arrival
// time. The sort is stable so equal timestamps keep arrival order.
func (e Entry) SortedSteps() []ReasoningStep {
	steps := make([]ReasoningStep, len(e.Steps))
	copy(steps, e.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].At.Before(steps[j].At) })
	return steps
}
