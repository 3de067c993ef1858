// Package tools provides the tool system for the response engine.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Tool parameters and schemas hidden in implementations
// - Registry implementation details hidden from consumers
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolParameter defines a parameter schema for a tool.
type ToolParameter struct {
	Name        string                 `json:"name"`
	ParamType   string                 `json:"param_type"`
	Description string                 `json:"description"`
	Required    bool                   `json:"required"`
	Items       map[string]interface{} `json:"items,omitempty"` // item schema for array parameters
}

// ToolMetadata describes what a tool does and how to call it.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// String returns a string representation of the tool metadata.
func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Schema returns the JSON Schema object for the tool's parameters,
// in the shape generation engines expect for tool definitions.
func (m ToolMetadata) Schema() map[string]interface{} {
	properties := make(map[string]interface{})
	var required []string

	for _, p := range m.Parameters {
		prop := map[string]interface{}{
			"type":        p.ParamType,
			"description": p.Description,
		}
		if p.ParamType == "array" {
			items := p.Items
			if items == nil {
				items = map[string]interface{}{"type": "string"}
			}
			prop["items"] = items
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// ToolResult represents the result of a tool execution.
// Success is determined by whether Error is nil. State carries
// side-channel render state (content key -> fragment) produced by the
// tool; it is forwarded to consumers as tool_state events and never
// stored in the history log.
type ToolResult struct {
	Output string            `json:"output"`
	State  map[string]string `json:"state,omitempty"`
	Error  error             `json:"-"`
}

// Success returns true if the tool execution succeeded.
func (t ToolResult) Success() bool {
	return t.Error == nil
}

// SuccessResult creates a successful tool result.
func SuccessResult(output string) ToolResult {
	return ToolResult{Output: output}
}

// FailureResult creates a failed tool result.
func FailureResult(err error) ToolResult {
	return ToolResult{Error: err}
}

// FailureResultf creates a failed tool result with a formatted message.
func FailureResultf(format string, args ...interface{}) ToolResult {
	return ToolResult{Error: fmt.Errorf(format, args...)}
}

// Tool is the interface all tools implement. Implementations hide their
// execution logic and error handling behind this interface; the engine
// treats them as opaque fallible capabilities.
type Tool interface {
	// Metadata returns tool metadata (name, description, parameters).
	Metadata() ToolMetadata

	// Execute runs the tool with the given JSON arguments.
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)
}
