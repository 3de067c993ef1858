// Package engine implements the response pipeline: load the history
// window, run the tool-calling loop against the generation engine, stream
// progress through an emitter, and persist the completed turn.
//
// Per-request state machine:
//
//	Start -> Deciding -> {ToolCall -> ToolResult -> Deciding}* -> Responding -> Done
//
// with Error reachable from any state. Tool-level failures (including
// unknown tool names) never escape the loop; only generation-engine
// unavailability and persistence failure terminate the request with an
// error event.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/richinex/palaver/history"
	"github.com/richinex/palaver/llm"
	"github.com/richinex/palaver/model"
	"github.com/richinex/palaver/stream"
	"github.com/richinex/palaver/tools"
)

// DefaultMaxToolRounds bounds Deciding<->ToolCall round trips per request.
const DefaultMaxToolRounds = 6

// tokenChunkRunes is the streaming granularity when the final answer was
// produced in one piece by the deciding step.
const tokenChunkRunes = 24

// Request is one submitted turn.
type Request struct {
	ChatID   string
	UserID   string
	Question string
}

// Engine orchestrates one request at a time per call. Tool calls within a
// request run sequentially to preserve result ordering.
type Engine struct {
	client        *llm.Client
	registry      *tools.Registry
	store         history.Store
	windowSize    int
	maxToolRounds int
	systemPrompt  string
	log           zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWindowSize overrides the history window bound.
func WithWindowSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.windowSize = n
		}
	}
}

// WithMaxToolRounds overrides the tool-loop bound.
func WithMaxToolRounds(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxToolRounds = n
		}
	}
}

// WithSystemPrompt overrides the system prompt template.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) { e.systemPrompt = prompt }
}

// WithLogger sets the engine logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an engine over the given provider, tool registry, and store.
func New(provider llm.Provider, registry *tools.Registry, store history.Store, opts ...Option) *Engine {
	e := &Engine{
		client:        llm.NewClient(provider),
		registry:      registry,
		store:         store,
		windowSize:    history.DefaultWindow,
		maxToolRounds: DefaultMaxToolRounds,
		systemPrompt:  defaultSystemPrompt,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

const defaultSystemPrompt = `You are a helpful assistant. Today's date is %s.
When you use search results, cite them inline with their 【N†source】 markers.`

// Run processes one request, emitting progress events in order and
// terminating the stream with exactly one result or error event.
func (e *Engine) Run(ctx context.Context, req Request, emit stream.Emitter) error {
	log := e.log.With().Str("chat_id", req.ChatID).Logger()
	log.Info().Msg("turn started")

	if err := e.store.EnsureSession(ctx, req.ChatID, req.UserID); err != nil {
		return e.fail(emit, log, fmt.Errorf("history store unavailable: %w", err))
	}

	window, err := e.store.Window(ctx, req.ChatID, e.windowSize)
	if err != nil {
		return e.fail(emit, log, fmt.Errorf("history store unavailable: %w", err))
	}

	// A session's title is its opening question.
	if len(window) == 0 {
		if err := e.store.SetTitle(ctx, req.ChatID, titleFrom(req.Question)); err != nil {
			return e.fail(emit, log, fmt.Errorf("history store unavailable: %w", err))
		}
	}

	working := make([]llm.ChatMessage, 0, len(window)+2)
	working = append(working, llm.SystemMessage(fmt.Sprintf(e.systemPrompt, time.Now().Format("2006-01-02"))))
	for _, m := range window {
		working = append(working, llm.ChatMessage{Role: m.Role, Content: m.Content})
	}
	working = append(working, llm.UserMessage(req.Question))

	defs := e.registry.Definitions()

	// Tool-role messages produced this turn, persisted on Done in order.
	var pendingTool []llm.ChatMessage
	var callStats []model.ToolCallStats
	turnState := make(map[string]string)

	final := ""
	forced := false

	for round := 0; ; round++ {
		if round >= e.maxToolRounds {
			forced = true
			break
		}
		if ctx.Err() != nil {
			return e.fail(emit, log, fmt.Errorf("request cancelled: %w", ctx.Err()))
		}

		if err := emit.Reasoning(model.StageDeciding, "deciding the next step", round); err != nil {
			return err
		}

		decision, err := e.client.ChatWithTools(ctx, working, defs)
		if err != nil {
			return e.fail(emit, log, fmt.Errorf("generation engine failed: %w", err))
		}

		if len(decision.ToolCalls) == 0 {
			if decision.Content != "" {
				final = decision.Content
				break
			}
			// Neither tools nor text; ask again, still bounded.
			continue
		}

		working = append(working, llm.ChatMessage{
			Role:      model.RoleAssistant,
			Content:   decision.Content,
			ToolCalls: decision.ToolCalls,
		})

		// Execute requested calls in the order the engine listed them.
		for _, call := range decision.ToolCalls {
			if err := emit.Reasoning(model.StageToolCall, fmt.Sprintf("calling %s", call.Name), round); err != nil {
				return err
			}

			output, stats := e.executeTool(ctx, call, turnState)
			callStats = append(callStats, stats)
			log.Info().
				Str("tool", call.Name).
				Bool("success", stats.Success).
				Uint64("duration_ms", stats.DurationMs).
				Msg("tool call")

			if err := emit.Reasoning(model.StageToolResult, fmt.Sprintf("processing %s result", call.Name), round); err != nil {
				return err
			}

			toolMsg := llm.ToolMessage(call.ID, output)
			working = append(working, toolMsg)
			pendingTool = append(pendingTool, toolMsg)
		}

		if len(turnState) > 0 {
			if err := emit.ToolState(turnState); err != nil {
				return err
			}
		}
	}

	if err := emit.Reasoning(model.StageResponding, "writing the answer", 0); err != nil {
		return err
	}

	if forced || final == "" {
		final, err = e.respondForced(ctx, working, emit)
		if err != nil {
			return e.fail(emit, log, fmt.Errorf("generation engine failed: %w", err))
		}
	} else {
		for _, chunk := range chunkRunes(final, tokenChunkRunes) {
			if err := emit.Token(chunk); err != nil {
				return err
			}
		}
	}

	// Persist even if the client has gone away; already-decided results
	// are durable regardless of the stream's fate.
	persistCtx := context.WithoutCancel(ctx)
	if err := e.persistTurn(persistCtx, req, pendingTool, final); err != nil {
		return e.fail(emit, log, fmt.Errorf("history store unavailable: %w", err))
	}

	turnCount, _ := e.turnCount(persistCtx, req.ChatID)
	if err := emit.Metadata(stream.MetadataPayload{
		ChatID:    req.ChatID,
		TurnCount: turnCount,
		Model:     e.client.Provider().Model(),
		ToolCalls: callStats,
	}); err != nil {
		return err
	}

	log.Info().Int("tool_calls", len(callStats)).Msg("turn finished")
	return emit.Result()
}

// executeTool runs one requested call. Failures, including unknown tool
// names, are folded into the tool result text so the loop continues.
func (e *Engine) executeTool(ctx context.Context, call llm.ToolCall, turnState map[string]string) (string, model.ToolCallStats) {
	start := time.Now()
	stats := model.ToolCallStats{
		Name:      call.Name,
		InputSize: len(call.Arguments),
	}

	tool, ok := e.registry.Get(call.Name)
	if !ok {
		stats.DurationMs = uint64(time.Since(start).Milliseconds())
		return fmt.Sprintf("Tool %q is not available. Available tools: %v. Try a different approach.",
			call.Name, e.registry.Names()), stats
	}

	if consumer, ok := tool.(tools.StateConsumer); ok {
		consumer.ObserveState(turnState)
	}

	result, err := tool.Execute(ctx, call.Arguments)
	stats.DurationMs = uint64(time.Since(start).Milliseconds())

	if err != nil {
		return fmt.Sprintf("Error calling %s: %v. Try again with different arguments.", call.Name, err), stats
	}
	if !result.Success() {
		return fmt.Sprintf("Error calling %s: %v. Try again with different arguments.", call.Name, result.Error), stats
	}

	for k, v := range result.State {
		turnState[k] = v
	}

	stats.Success = true
	stats.OutputSize = len(result.Output)
	return result.Output, stats
}

// respondForced produces the final answer with a fresh streaming
// completion, used when the loop bound fired or the deciding step
// returned neither tools nor text.
func (e *Engine) respondForced(ctx context.Context, working []llm.ChatMessage, emit stream.Emitter) (string, error) {
	working = append(working, llm.UserMessage(
		"Answer now using the information gathered so far. If the context is incomplete, say so and give your best answer."))

	chunks := make(chan string, 64)
	type streamResult struct {
		err error
	}
	resultCh := make(chan streamResult, 1)

	go func() {
		defer close(chunks)
		_, err := e.client.StreamChat(ctx, working, chunks)
		resultCh <- streamResult{err: err}
	}()

	var final []byte
	for chunk := range chunks {
		final = append(final, chunk...)
		if err := emit.Token(chunk); err != nil {
			// Drain so the streaming goroutine can finish.
			for range chunks {
			}
			<-resultCh
			return "", err
		}
	}

	res := <-resultCh
	if res.err != nil {
		return "", res.err
	}
	return string(final), nil
}

// persistTurn appends the turn's messages in chronological order: the
// user message, every intermediate tool-role message, then the final
// assistant message.
func (e *Engine) persistTurn(ctx context.Context, req Request, pendingTool []llm.ChatMessage, final string) error {
	if _, err := e.store.Append(ctx, req.ChatID, model.RoleUser, req.Question, ""); err != nil {
		return err
	}
	for _, m := range pendingTool {
		if _, err := e.store.Append(ctx, req.ChatID, model.RoleTool, m.Content, m.ToolCallID); err != nil {
			return err
		}
	}
	if _, err := e.store.Append(ctx, req.ChatID, model.RoleAssistant, final, ""); err != nil {
		return err
	}
	return nil
}

func (e *Engine) turnCount(ctx context.Context, chatID string) (int, error) {
	window, err := e.store.Window(ctx, chatID, e.windowSize)
	if err != nil {
		return 0, err
	}
	return len(window), nil
}

// fail reports a fatal request error: log it, emit the terminal error
// event, and stop. Nothing partial beyond already-appended messages is
// persisted.
func (e *Engine) fail(emit stream.Emitter, log zerolog.Logger, err error) error {
	log.Error().Err(err).Msg("turn failed")
	if emitErr := emit.Error(err.Error()); emitErr != nil {
		return emitErr
	}
	return err
}

// titleFrom derives a session title from its opening question.
func titleFrom(question string) string {
	const maxTitle = 60
	runes := []rune(question)
	if len(runes) <= maxTitle {
		return question
	}
	return string(runes[:maxTitle]) + "…"
}

// chunkRunes splits s into chunks of at most n runes, preserving content
// exactly under concatenation.
func chunkRunes(s string, n int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	var chunks []string
	for len(runes) > n {
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return append(chunks, string(runes))
}
