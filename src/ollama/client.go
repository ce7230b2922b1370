// Package ollama adapts the Ollama /api/chat endpoint, which streams
// newline-delimited JSON objects.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/engine"
	"github.com/elee1766/chatmux/src/stream"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	defaultName    = "ollama"
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

var (
	_ engine.Vendor       = (*Client)(nil)
	_ engine.ErrorDecoder = (*Client)(nil)
	_ aisdk.ModelLister   = (*Client)(nil)
)

// Config holds configuration for the Ollama client
type Config struct {
	Name    string // Registry name, "ollama" by default
	BaseURL string
	// KeepAlive controls how long the model stays loaded, e.g. "5m"
	KeepAlive  string
	Headers    map[string]string
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Client is the Ollama vendor adapter.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an Ollama client.
func NewClient(config Config) *Client {
	if config.Name == "" {
		config.Name = defaultName
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger.With("component", "ollama_client", "vendor", config.Name),
	}
}

func (c *Client) Name() string { return c.config.Name }

func (c *Client) Framing() stream.Framing { return stream.Lines{} }

func (c *Client) NewTranslator() stream.Translator { return &translator{} }

type chatRequest struct {
	Model     string          `json:"model"`
	Messages  []chatMessage   `json:"messages"`
	Tools     []chatTool      `json:"tools,omitempty"`
	Stream    bool            `json:"stream"`
	Format    json.RawMessage `json:"format,omitempty"`
	Options   map[string]any  `json:"options,omitempty"`
	KeepAlive string          `json:"keep_alive,omitempty"`
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Images    []string   `json:"images,omitempty"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

type toolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

// NewRequest serializes the window into an /api/chat request. The schema of
// strict monadic mode goes into format.
func (c *Client) NewRequest(ctx context.Context, req *aisdk.Request) (*http.Request, error) {
	wire := chatRequest{
		Model:     req.Params.Model,
		Stream:    req.Stream,
		Format:    req.ResponseSchema,
		KeepAlive: c.config.KeepAlive,
	}

	options := map[string]any{}
	if req.Params.Temperature != nil {
		options["temperature"] = *req.Params.Temperature
	}
	if req.Params.TopP != nil {
		options["top_p"] = *req.Params.TopP
	}
	if req.Params.MaxTokens != nil {
		options["num_predict"] = *req.Params.MaxTokens
	}
	if len(options) > 0 {
		wire.Options = options
	}

	for _, turn := range req.Window {
		wire.Messages = append(wire.Messages, toMessage(turn))
	}
	for _, def := range req.Params.Tools {
		if def == nil {
			continue
		}
		var t chatTool
		t.Type = "function"
		t.Function.Name = def.Name
		t.Function.Description = def.Description
		t.Function.Parameters = def.ParametersJSON()
		wire.Tools = append(wire.Tools, t)
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	c.logger.Debug("chat request", "model", wire.Model, "messages", len(wire.Messages), "tools", len(wire.Tools))
	return c.newRequest(ctx, http.MethodPost, "/api/chat", body)
}

func toMessage(turn aisdk.Turn) chatMessage {
	msg := chatMessage{Role: string(turn.Role), Content: turn.Text}
	switch turn.Role {
	case aisdk.RoleUser:
		var remote []string
		for _, img := range turn.Images {
			if img.IsRemote() {
				// only inline images are accepted
				remote = append(remote, img.Summary())
				continue
			}
			msg.Images = append(msg.Images, img.Data)
		}
		if len(remote) > 0 {
			msg.Content = strings.TrimSpace(msg.Content + "\n" + strings.Join(remote, "\n"))
		}
	case aisdk.RoleAssistant:
		for _, call := range turn.ToolCalls {
			var tc toolCall
			tc.Function.Name = call.Name
			tc.Function.Arguments = call.ArgumentsOrEmpty()
			msg.ToolCalls = append(msg.ToolCalls, tc)
		}
	case aisdk.RoleTool:
		msg.ToolName = turn.Name
	}
	return msg
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// DecodeError reads Ollama's {"error":"..."} body.
func (c *Client) DecodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &aisdk.APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error"); msg.Type == gjson.String {
			apiErr.Message = msg.Str
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// ListModels returns the locally installed models.
func (c *Client) ListModels(ctx context.Context) ([]*aisdk.ModelInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &aisdk.NetworkError{Op: "list models", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.DecodeError(resp)
	}

	var tags struct {
		Models []struct {
			Name       string    `json:"name"`
			Model      string    `json:"model"`
			ModifiedAt time.Time `json:"modified_at"`
			Details    struct {
				Family        string `json:"family"`
				ParameterSize string `json:"parameter_size"`
			} `json:"details"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	out := make([]*aisdk.ModelInfo, 0, len(tags.Models))
	for _, m := range tags.Models {
		id := m.Model
		if id == "" {
			id = m.Name
		}
		out = append(out, &aisdk.ModelInfo{
			ID:          id,
			Name:        m.Name,
			Created:     m.ModifiedAt.Unix(),
			Description: strings.TrimSpace(m.Details.Family + " " + m.Details.ParameterSize),
			OwnedBy:     "local",
		})
	}
	return out, nil
}

// translator reads one /api/chat stream object per line.
type translator struct {
	toolCalls int
}

func (t *translator) Translate(unit []byte) ([]aisdk.Event, error) {
	if !gjson.ValidBytes(unit) {
		return nil, fmt.Errorf("%w: line is not valid JSON", aisdk.ErrDecode)
	}
	obj := gjson.ParseBytes(unit)
	if !obj.IsObject() {
		return nil, fmt.Errorf("%w: line is not a JSON object", aisdk.ErrDecode)
	}

	if errMsg := obj.Get("error"); errMsg.Exists() {
		return []aisdk.Event{aisdk.ErrorEvent(aisdk.NewError(aisdk.KindHTTP, &aisdk.APIError{
			StatusCode: http.StatusInternalServerError,
			Message:    errMsg.String(),
		}))}, nil
	}

	var out []aisdk.Event
	if content := obj.Get("message.content").Str; content != "" {
		out = append(out, aisdk.Fragment(content))
	}
	for _, tc := range obj.Get("message.tool_calls").Array() {
		t.toolCalls++
		args := tc.Get("function.arguments")
		call := aisdk.ToolCallRequest{
			ID:   "call_" + uuid.NewString(),
			Name: tc.Get("function.name").String(),
		}
		switch {
		case args.IsObject():
			call.Arguments = json.RawMessage(args.Raw)
		case args.Type == gjson.String && gjson.Valid(args.Str):
			call.Arguments = json.RawMessage(args.Str)
		}
		out = append(out, aisdk.ToolCallRequested(call))
	}

	if obj.Get("done").Bool() {
		out = append(out, aisdk.Done(t.finishReason(obj.Get("done_reason").String())))
	}
	return out, nil
}

func (t *translator) finishReason(reason string) aisdk.FinishReason {
	if t.toolCalls > 0 {
		return aisdk.FinishToolCalls
	}
	if reason == "length" {
		return aisdk.FinishLength
	}
	return aisdk.FinishStop
}
