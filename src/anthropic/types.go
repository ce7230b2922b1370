package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/elee1766/chatmux/src/aisdk"
)

type messagesRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	System      string      `json:"system,omitempty"`
	Messages    []message   `json:"messages"`
	Tools       []tool      `json:"tools,omitempty"`
	ToolChoice  *toolChoice `json:"tool_choice,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	TopP        *float64    `json:"top_p,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    *imageSource    `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// buildRequest converts the window. System turns are lifted into the
// top-level system field, tool turns become tool_result blocks of a user
// message, and adjacent messages of the same role are merged because the API
// requires alternating roles.
func buildRequest(req *aisdk.Request, defaultMaxTokens int) *messagesRequest {
	wire := &messagesRequest{
		Model:       req.Params.Model,
		MaxTokens:   defaultMaxTokens,
		Stream:      req.Stream,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
	}
	if req.Params.MaxTokens != nil && *req.Params.MaxTokens > 0 {
		wire.MaxTokens = *req.Params.MaxTokens
	}

	var system []string
	for _, turn := range req.Window {
		if turn.Role == aisdk.RoleSystem {
			if turn.Text != "" {
				system = append(system, turn.Text)
			}
			continue
		}
		wire.appendMessage(toMessage(turn))
	}
	wire.System = strings.Join(system, "\n\n")

	for _, def := range req.Params.Tools {
		if def == nil {
			continue
		}
		wire.Tools = append(wire.Tools, tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.ParametersJSON(),
		})
	}

	if len(req.ResponseSchema) > 0 {
		wire.Tools = append(wire.Tools, tool{
			Name:        envelopeTool,
			Description: "Deliver the final answer. Always respond by calling this tool.",
			InputSchema: req.ResponseSchema,
		})
		if len(wire.Tools) == 1 {
			wire.ToolChoice = &toolChoice{Type: "tool", Name: envelopeTool}
		} else {
			wire.ToolChoice = &toolChoice{Type: "any"}
		}
	}
	return wire
}

func (r *messagesRequest) appendMessage(m message) {
	if len(m.Content) == 0 {
		return
	}
	if n := len(r.Messages); n > 0 && r.Messages[n-1].Role == m.Role {
		r.Messages[n-1].Content = append(r.Messages[n-1].Content, m.Content...)
		return
	}
	r.Messages = append(r.Messages, m)
}

func toMessage(turn aisdk.Turn) message {
	switch turn.Role {
	case aisdk.RoleTool:
		return message{Role: "user", Content: []contentBlock{{
			Type:      "tool_result",
			ToolUseID: turn.ToolCallID,
			Content:   turn.Text,
		}}}

	case aisdk.RoleAssistant:
		m := message{Role: "assistant"}
		if turn.Text != "" {
			m.Content = append(m.Content, contentBlock{Type: "text", Text: turn.Text})
		}
		for _, call := range turn.ToolCalls {
			m.Content = append(m.Content, contentBlock{
				Type:  "tool_use",
				ID:    call.ID,
				Name:  call.Name,
				Input: call.ArgumentsOrEmpty(),
			})
		}
		return m

	default:
		m := message{Role: "user"}
		for _, img := range turn.Images {
			src := &imageSource{Type: "base64", MediaType: img.MediaType(), Data: img.Data}
			if img.IsRemote() {
				src = &imageSource{Type: "url", URL: img.URL}
			}
			m.Content = append(m.Content, contentBlock{Type: "image", Source: src})
		}
		if turn.Text != "" {
			m.Content = append(m.Content, contentBlock{Type: "text", Text: turn.Text})
		}
		return m
	}
}
