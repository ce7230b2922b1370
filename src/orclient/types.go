package orclient

import (
	"encoding/json"

	"github.com/elee1766/chatmux/src/aisdk"
)

// ChatRequest is the Chat Completions request body.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []ChatTool    `json:"tools,omitempty"`
}

// ChatMessage is one entry of the messages array. Content is either a string,
// a list of ContentPart, or null for assistant messages that only call tools.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ContentPart is an element of multimodal message content.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL points at an image by URL or data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// ToolCall is a function call replayed on an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the call arguments as a JSON encoded string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatTool declares a callable function.
type ChatTool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function part of a tool declaration.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

func buildChatRequest(req *aisdk.Request) *ChatRequest {
	out := &ChatRequest{
		Model:       req.Params.Model,
		Messages:    make([]ChatMessage, 0, len(req.Window)),
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		MaxTokens:   req.Params.MaxTokens,
		Stream:      req.Stream,
	}
	for _, turn := range req.Window {
		out.Messages = append(out.Messages, toMessage(turn))
	}
	for _, def := range req.Params.Tools {
		if def == nil {
			continue
		}
		out.Tools = append(out.Tools, ChatTool{
			Type: "function",
			Function: ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.ParametersJSON(),
			},
		})
	}
	return out
}

func toMessage(turn aisdk.Turn) ChatMessage {
	msg := ChatMessage{Role: string(turn.Role), Content: turn.Text}

	switch turn.Role {
	case aisdk.RoleUser:
		if len(turn.Images) == 0 {
			break
		}
		parts := make([]ContentPart, 0, len(turn.Images)+1)
		if turn.Text != "" {
			parts = append(parts, ContentPart{Type: "text", Text: turn.Text})
		}
		for _, img := range turn.Images {
			parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: img.DataURL()}})
		}
		msg.Content = parts

	case aisdk.RoleAssistant:
		if len(turn.ToolCalls) == 0 {
			break
		}
		if turn.Text == "" {
			msg.Content = nil
		}
		for _, call := range turn.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   call.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      call.Name,
					Arguments: string(call.ArgumentsOrEmpty()),
				},
			})
		}

	case aisdk.RoleTool:
		msg.ToolCallID = turn.ToolCallID
		msg.Name = turn.Name
	}
	return msg
}
