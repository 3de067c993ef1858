// URL open tool - fetches a page and returns its readable text.
//
// Information Hiding:
// - HTTP fetching and content extraction hidden
// - Reference resolution (search result ids vs raw URLs) internalized

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// StateConsumer is implemented by tools that resolve references produced by
// earlier tool calls in the same turn. The engine feeds the accumulated
// turn state to consumers before each execution.
type StateConsumer interface {
	ObserveState(state map[string]string)
}

// OpenTool opens a URL, or a result reference from a prior search, and
// returns a numbered-line slice of the page's readable text.
type OpenTool struct {
	client *http.Client

	mu         sync.Mutex
	refs       map[string]string
	currentURL string
}

// NewOpenTool creates a new open tool.
func NewOpenTool() *OpenTool {
	return &OpenTool{
		client: &http.Client{Timeout: 30 * time.Second},
		refs:   make(map[string]string),
	}
}

// Metadata returns the tool metadata.
func (t *OpenTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "open",
		Description: "Open a URL or a search result reference and show its text as numbered lines.",
		Parameters: []ToolParameter{
			{Name: "id", ParamType: "string", Description: "A URL, or a result id from a previous search; omit to reuse the last opened URL", Required: false},
			{Name: "loc", ParamType: "integer", Description: "Line to start from (-1 for the beginning)", Required: false},
			{Name: "num_lines", ParamType: "integer", Description: "Number of lines to show (default 100)", Required: false},
		},
	}
}

// ObserveState records result-id to URL mappings from earlier tool calls.
func (t *OpenTool) ObserveState(state map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range state {
		if strings.HasPrefix(v, "http") {
			t.refs[k] = v
		}
	}
}

type openArgs struct {
	ID       string `json:"id"`
	Loc      int    `json:"loc"`
	NumLines int    `json:"num_lines"`
}

// Execute fetches and extracts the requested page.
func (t *OpenTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a := openArgs{Loc: -1, NumLines: 100}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
		}
	}

	target, err := t.resolve(a.ID)
	if err != nil {
		return FailureResult(err), nil
	}

	text, title, err := t.fetch(ctx, target)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to open %s: %w", target, err)), nil
	}

	t.mu.Lock()
	t.currentURL = target
	t.mu.Unlock()

	lines := strings.Split(text, "\n")
	start := a.Loc
	if start < 0 {
		start = 0
	}
	if start >= len(lines) {
		start = max(0, len(lines)-1)
	}
	count := a.NumLines
	if count <= 0 {
		count = 100
	}
	end := min(start+count, len(lines))

	var out strings.Builder
	fmt.Fprintf(&out, "%s (%s)\nLines %d-%d of %d:\n\n", title, target, start, end-1, len(lines))
	for i := start; i < end; i++ {
		fmt.Fprintf(&out, "L%d: %s\n", i, lines[i])
	}

	return ToolResult{
		Output: out.String(),
		State:  map[string]string{"current_url": target},
	}, nil
}

// resolve maps an id argument to a concrete URL.
func (t *OpenTool) resolve(id string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case strings.HasPrefix(id, "http://"), strings.HasPrefix(id, "https://"):
		return id, nil
	case id == "":
		if t.currentURL == "" {
			return "", fmt.Errorf("no URL given and nothing opened yet")
		}
		return t.currentURL, nil
	default:
		if u, ok := t.refs[id]; ok {
			return u, nil
		}
		return "", fmt.Errorf("unknown reference %q; run a search first or pass a full URL", id)
	}
}

// fetch downloads the page and extracts readable text.
func (t *OpenTool) fetch(ctx context.Context, target string) (text, title string, err error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("server returned %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", "", fmt.Errorf("content extraction failed: %w", err)
	}

	return article.TextContent, article.Title, nil
}

// Verify OpenTool implements Tool and StateConsumer
var (
	_ Tool          = (*OpenTool)(nil)
	_ StateConsumer = (*OpenTool)(nil)
)
