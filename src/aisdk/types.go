// Package aisdk defines the vendor-neutral conversation protocol: turns, tool
// definitions, tool calls, streamed protocol events and the error taxonomy
// shared by the engine and every vendor adapter.
package aisdk

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn represents a single message in a conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
	// Images are optional attachments, only honored on user turns
	Images []ImageRef `json:"images,omitempty"`
	// ToolCallID is set on tool turns to reference the originating call
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Name is the tool name on tool turns
	Name string `json:"name,omitempty"`
	// ToolCalls contains function calls requested by the assistant.
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`
	// Active marks membership in the current context window
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ToolCallRequest represents a function call request decoded from a vendor
// response.
type ToolCallRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsOrEmpty returns the call arguments, substituting an empty object
// when the vendor sent none.
func (c ToolCallRequest) ArgumentsOrEmpty() json.RawMessage {
	if len(c.Arguments) == 0 {
		return json.RawMessage("{}")
	}
	return c.Arguments
}

// ToolResult is the outcome of a dispatched tool call. Failures are carried as
// data with IsError set, never as Go errors.
type ToolResult struct {
	CallID   string        `json:"call_id"`
	Name     string        `json:"name"`
	Content  string        `json:"content"`
	IsError  bool          `json:"is_error"`
	Duration time.Duration `json:"duration"`
}

// Parameters are the per-session generation settings. A copy is taken for
// each turn so they cannot change while the turn is processed.
type Parameters struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	// ContextSize is the number of trailing turns kept after the first turn
	ContextSize int  `json:"context_size"`
	Monadic     bool `json:"monadic"`
	// Strict requests schema-constrained JSON output in monadic mode
	Strict           bool              `json:"strict"`
	Tools            []*ToolDefinition `json:"tools,omitempty"`
	MaxFuncCallDepth int               `json:"max_func_call_depth"`
}

// Clone returns a copy that shares no slices with p.
func (p Parameters) Clone() Parameters {
	out := p
	if p.Tools != nil {
		out.Tools = make([]*ToolDefinition, len(p.Tools))
		copy(out.Tools, p.Tools)
	}
	return out
}

// Request is what a vendor adapter serializes into its own wire shape.
type Request struct {
	Params Parameters
	Window []Turn
	Stream bool
	// ResponseSchema forces a JSON response format when set
	ResponseSchema json.RawMessage
}

// FinishReason is the terminal classification of why generation stopped.
type FinishReason string

const (
	FinishNone      FinishReason = ""
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
)
