package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/richinex/palaver/stream"
)

// SubmitRequest is the submit-turn request body.
type SubmitRequest struct {
	Question string    `json:"question"`
	ChatID   string    `json:"chatId,omitempty"`
	UserInfo *UserInfo `json:"userInfo,omitempty"`
}

// UserInfo identifies the submitting user.
type UserInfo struct {
	ID string `json:"id"`
}

// HistoryResponse is the history read response body.
type HistoryResponse struct {
	ChatID   string           `json:"chat_id"`
	Messages []HistoryMessage `json:"messages"`
	Total    int              `json:"total"`
}

// HistoryMessage is one windowed message in a history read.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DeleteResponse is the history delete response body.
type DeleteResponse struct {
	ChatID  string `json:"chat_id"`
	Success bool   `json:"success"`
}

// Controller drives one conversation against a server. It owns at most
// one in-flight request: a new submit or load cancels whatever was
// running. Submit and LoadHistory block until their stream or response
// completes; Cancel may be called from any goroutine.
type Controller struct {
	baseURL string
	http    *http.Client
	userID  string
	log     zerolog.Logger

	// OnEvent, when set, observes every applied stream event. Called on
	// the Submit goroutine after the event is folded into state.
	OnEvent func(stream.Event)

	mu     sync.Mutex
	cancel context.CancelFunc

	conv *Conversation
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithUserID attaches a user id to submitted turns.
func WithUserID(id string) ControllerOption {
	return func(c *Controller) { c.userID = id }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) ControllerOption {
	return func(c *Controller) { c.http = hc }
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(log zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.log = log }
}

// NewController creates a controller for one conversation. chatID may be
// empty; the first submitted turn adopts the server-assigned id.
func NewController(baseURL, chatID string, opts ...ControllerOption) *Controller {
	c := &Controller{
		baseURL: baseURL,
		http:    &http.Client{},
		log:     zerolog.Nop(),
		conv:    NewConversation(chatID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Conversation returns the reducer state. Read it only between calls, or
// from OnEvent; Submit mutates it while a stream is live.
func (c *Controller) Conversation() *Conversation {
	return c.conv
}

// beginRequest cancels any in-flight request and installs a fresh
// cancellable context in its place.
func (c *Controller) beginRequest(ctx context.Context) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, c.cancel = context.WithCancel(ctx)
	return ctx
}

// Cancel aborts the in-flight request, if any. The placeholder entry
// keeps its partial text; only the thinking flag is cleared.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Submit sends one turn and folds the resulting stream into the
// conversation. It returns once a terminal event arrives, the stream
// drops, or the request is cancelled.
func (c *Controller) Submit(ctx context.Context, question string) error {
	ctx = c.beginRequest(ctx)

	c.conv.Begin(question)

	body := SubmitRequest{Question: question, ChatID: c.conv.ChatID}
	if c.userID != "" {
		body.UserInfo = &UserInfo{ID: c.userID}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		c.conv.MarkAborted()
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("%w: %v", stream.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.conv.MarkAborted()
		return fmt.Errorf("server returned %s", resp.Status)
	}

	return c.readStream(ctx, resp.Body)
}

// readStream applies decoded events until a terminal event, cancel, or
// transport failure.
func (c *Controller) readStream(ctx context.Context, body io.Reader) error {
	decoder := stream.NewDecoder(body)
	for {
		ev, err := decoder.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				// Explicit cancel: keep the partial text, stop thinking.
				c.conv.MarkAborted()
				return context.Canceled
			}
			// Stream dropped without a terminal event. The placeholder
			// stays marked in-flight so the caller can surface it as a
			// connection failure rather than a finished answer.
			c.log.Warn().Err(err).Msg("stream transport failure")
			return err
		}

		if applyErr := c.conv.Apply(ev); applyErr != nil {
			c.log.Warn().Err(applyErr).Str("event", ev.Name).Msg("dropping malformed event")
			continue
		}
		if c.OnEvent != nil {
			c.OnEvent(ev)
		}
	}
}

// LoadHistory replaces the local message list with the server's window
// for chatID. A load in progress is cancelled by a newer load or submit.
func (c *Controller) LoadHistory(ctx context.Context, chatID string) error {
	ctx = c.beginRequest(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/history/"+chatID, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return context.Canceled
		}
		return fmt.Errorf("history load failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var history HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return fmt.Errorf("failed to decode history: %w", err)
	}
	// A stale load must not clobber a newer conversation switch.
	if ctx.Err() != nil {
		return context.Canceled
	}

	entries := make([]Entry, len(history.Messages))
	for i, m := range history.Messages {
		entries[i] = Entry{Role: m.Role, Text: m.Content}
	}
	c.conv.Replace(chatID, entries)
	c.conv.UpdatedAt = time.Now()
	return nil
}

// Delete removes the conversation on the server and clears local state
// when it was the active conversation. Deleting a conversation that does
// not exist succeeds.
func (c *Controller) Delete(ctx context.Context, chatID string) error {
	if c.conv.ChatID == chatID {
		c.Cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/chat/history/"+chatID, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("history delete failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if c.conv.ChatID == chatID {
		c.conv.Replace(chatID, nil)
	}
	return nil
}
