// Package model provides domain types shared across packages.
package model

// Stage names a phase of the response pipeline. Stages are carried on
// reasoning events so consumers can label progress without depending on
// the engine's internals.
type Stage string

const (
	StageDeciding   Stage = "deciding"
	StageToolCall   Stage = "tool_call"
	StageToolResult Stage = "tool_result"
	StageResponding Stage = "responding"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCallStats contains metrics about a tool invocation.
// Used for logging and analytics, never for control flow.
type ToolCallStats struct {
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
}
