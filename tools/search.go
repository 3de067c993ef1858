// Web search tool.
//
// Information Hiding:
// - Search API endpoint and authentication hidden
// - Result ranking and formatting internalized

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultSearchEndpoint is the search API used when none is configured.
const DefaultSearchEndpoint = "https://api.tavily.com/search"

// SearchTool performs web searches through an HTTP search API.
type SearchTool struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

// NewSearchTool creates a search tool against the given endpoint.
func NewSearchTool(endpoint, apiKey string) *SearchTool {
	if endpoint == "" {
		endpoint = DefaultSearchEndpoint
	}
	return &SearchTool{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: endpoint,
		apiKey:   apiKey,
	}
}

// Metadata returns the tool metadata.
func (t *SearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "search",
		Description: "Search the web. Returns a numbered list of results; cite a result with 【N†source】.",
		Parameters: []ToolParameter{
			{
				Name:        "search_query",
				ParamType:   "array",
				Description: "Search queries to run, in order",
				Required:    true,
				Items: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"q": map[string]interface{}{
							"type":        "string",
							"description": "The query string",
						},
					},
					"required": []string{"q"},
				},
			},
			{
				Name:        "response_length",
				ParamType:   "string",
				Description: "How much snippet text to return: short, medium, or long",
				Required:    false,
			},
		},
	}
}

type searchArgs struct {
	SearchQuery []struct {
		Q string `json:"q"`
	} `json:"search_query"`
	ResponseLength string `json:"response_length"`
}

type searchAPIResult struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Execute runs each query sequentially and merges the results.
func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}
	if len(a.SearchQuery) == 0 {
		return FailureResultf("search_query cannot be empty"), nil
	}

	snippetLimit := snippetLimitFor(a.ResponseLength)

	var out strings.Builder
	state := make(map[string]string)
	resultIdx := 0

	for _, q := range a.SearchQuery {
		if q.Q == "" {
			continue
		}
		results, err := t.runQuery(ctx, q.Q)
		if err != nil {
			return FailureResult(fmt.Errorf("search for %q failed: %w", q.Q, err)), nil
		}

		fmt.Fprintf(&out, "Results for %q:\n", q.Q)
		for _, r := range results.Results {
			key := fmt.Sprintf("%d†source", resultIdx)
			state[key] = r.URL

			snippet := r.Content
			if len(snippet) > snippetLimit {
				snippet = snippet[:snippetLimit] + "..."
			}
			fmt.Fprintf(&out, "【%s】 %s\n%s\n%s\n\n", key, r.Title, r.URL, snippet)
			resultIdx++
		}
	}

	if resultIdx == 0 {
		return SuccessResult("No results found."), nil
	}

	return ToolResult{Output: out.String(), State: state}, nil
}

func (t *SearchTool) runQuery(ctx context.Context, query string) (*searchAPIResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":       query,
		"max_results": 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search API returned %d: %s", resp.StatusCode, string(data))
	}

	var result searchAPIResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

func snippetLimitFor(length string) int {
	switch length {
	case "short":
		return 200
	case "long":
		return 2000
	default:
		return 600
	}
}

// Verify SearchTool implements Tool
var _ Tool = (*SearchTool)(nil)
