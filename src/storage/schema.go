package storage

import (
	"fmt"
	"time"

	"github.com/elee1766/chatmux/src/aisdk"
)

// Session is one persisted conversation.
type Session struct {
	ID     string `json:"id" db:"id"`
	App    string `json:"app" db:"app"`
	Vendor string `json:"vendor" db:"vendor"`
	Model  string `json:"model" db:"model"`
	Title  string `json:"title" db:"title"`
	// Params holds the session parameters without tool definitions
	Params    JSONObject `json:"params" db:"params"`
	Context   JSONObject `json:"context" db:"context"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Turn is a stored conversation turn. Seq is the turn's index in the
// session history.
type Turn struct {
	ID         string    `json:"id" db:"id"`
	SessionID  string    `json:"session_id" db:"session_id"`
	Seq        int       `json:"seq" db:"seq"`
	Role       string    `json:"role" db:"role"`
	Content    string    `json:"content" db:"content"`
	Images     *string   `json:"images,omitempty" db:"images"` // JSON array of images
	ToolCallID string    `json:"tool_call_id" db:"tool_call_id"`
	ToolName   string    `json:"tool_name" db:"tool_name"`
	ToolCalls  *string   `json:"tool_calls,omitempty" db:"tool_calls"` // JSON array of tool calls
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// NewTurn converts a protocol turn into its stored form.
func NewTurn(sessionID string, seq int, t aisdk.Turn) (*Turn, error) {
	images, err := nullableJSON(t.Images)
	if err != nil {
		return nil, fmt.Errorf("failed to encode images: %w", err)
	}
	calls, err := nullableJSON(t.ToolCalls)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool calls: %w", err)
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &Turn{
		SessionID:  sessionID,
		Seq:        seq,
		Role:       string(t.Role),
		Content:    t.Text,
		Images:     images,
		ToolCallID: t.ToolCallID,
		ToolName:   t.Name,
		ToolCalls:  calls,
		Active:     t.Active,
		CreatedAt:  createdAt,
	}, nil
}

// AITurn converts the stored turn back into a protocol turn.
func (t *Turn) AITurn() (aisdk.Turn, error) {
	images, err := decodeNullableJSON[aisdk.ImageRef](t.Images)
	if err != nil {
		return aisdk.Turn{}, fmt.Errorf("turn %d: failed to decode images: %w", t.Seq, err)
	}
	calls, err := decodeNullableJSON[aisdk.ToolCallRequest](t.ToolCalls)
	if err != nil {
		return aisdk.Turn{}, fmt.Errorf("turn %d: failed to decode tool calls: %w", t.Seq, err)
	}
	return aisdk.Turn{
		Role:       aisdk.Role(t.Role),
		Text:       t.Content,
		Images:     images,
		ToolCallID: t.ToolCallID,
		Name:       t.ToolName,
		ToolCalls:  calls,
		Active:     t.Active,
		CreatedAt:  t.CreatedAt,
	}, nil
}
