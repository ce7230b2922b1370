// Package anthropic adapts the Anthropic Messages API.
package anthropic

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
	"github.com/tidwall/gjson"
)

const (
	defaultName      = "anthropic"
	defaultBaseURL   = "https://api.anthropic.com"
	defaultVersion   = "2023-06-01"
	defaultMaxTokens = 4096
	defaultTimeout   = 30 * time.Second
	maxErrorBody     = 64 << 10

	// envelopeTool is the forced tool used to obtain schema-constrained
	// output, since the Messages API has no JSON response format.
	envelopeTool = "respond"
)

var (
	_ engine.Vendor       = (*Client)(nil)
	_ engine.ErrorDecoder = (*Client)(nil)
	_ aisdk.ModelLister   = (*Client)(nil)
)

// Config holds configuration for the Messages API client
type Config struct {
	Name      string // Registry name, "anthropic" by default
	APIKey    string
	BaseURL   string // Without the /v1 suffix
	Version   string // anthropic-version header
	MaxTokens int    // Used when the session sets no limit; the API requires one
	Headers   map[string]string
	Logger    *slog.Logger

	// HTTPClient is used for model listing
	HTTPClient *http.Client
}

// Client is the Anthropic vendor adapter.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Messages API client.
func NewClient(config Config) *Client {
	if config.Name == "" {
		config.Name = defaultName
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Version == "" {
		config.Version = defaultVersion
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}

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
		logger:     logger.With("component", "anthropic_client", "vendor", config.Name),
	}
}

func (c *Client) Name() string {
	return c.config.Name
}

func (c *Client) Framing() stream.Framing {
	return stream.SSE{}
}

func (c *Client) NewTranslator() stream.Translator {
	return newTranslator()
}

// NewRequest serializes the window into a Messages request.
func (c *Client) NewRequest(ctx context.Context, req *aisdk.Request) (*http.Request, error) {
	wire := buildRequest(req, c.config.MaxTokens)
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.logger.Debug("messages request",
		"model", wire.Model,
		"messages", len(wire.Messages),
		"tools", len(wire.Tools),
		"strict", wire.ToolChoice != nil)

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/messages", body)
	if err != nil {
		return nil, err
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
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
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}
	req.Header.Set("anthropic-version", c.config.Version)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// DecodeError reads {"type":"error","error":{"type":"...","message":"..."}}.
func (c *Client) DecodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &aisdk.APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		RetryAfter: aisdk.ParseRetryAfter(resp.Header),
	}
	if res := gjson.ParseBytes(body); gjson.ValidBytes(body) && res.Get("error.message").Exists() {
		apiErr.Type = res.Get("error.type").String()
		apiErr.Message = res.Get("error.message").String()
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	c.logger.Debug("received error response", "status_code", resp.StatusCode, "type", apiErr.Type)
	return apiErr
}

// ListModels returns the models visible to the API key.
func (c *Client) ListModels(ctx context.Context) ([]*aisdk.ModelInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/models?limit=1000", nil)
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

	var page struct {
		Data []struct {
			ID          string    `json:"id"`
			DisplayName string    `json:"display_name"`
			CreatedAt   time.Time `json:"created_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([]*aisdk.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		out = append(out, &aisdk.ModelInfo{
			ID:      m.ID,
			Name:    m.DisplayName,
			Created: m.CreatedAt.Unix(),
			OwnedBy: "anthropic",
		})
	}
	return out, nil
}
