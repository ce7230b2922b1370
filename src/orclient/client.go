// Package orclient talks to OpenAI-compatible Chat Completions endpoints such
// as OpenRouter, OpenAI, Groq or a local vLLM server.
package orclient

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
	"github.com/tidwall/sjson"
)

const (
	defaultName        = "openrouter"
	defaultBaseURL     = "https://openrouter.ai/api/v1"
	defaultTimeout     = 30 * time.Second
	maxErrorBody       = 64 << 10
	envelopeSchemaName = "monadic_envelope"
)

var (
	_ engine.Vendor       = (*Client)(nil)
	_ engine.ErrorDecoder = (*Client)(nil)
	_ aisdk.ModelLister   = (*Client)(nil)
)

// Client is an OpenAI-compatible vendor adapter.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	modelCache *ModelCache
}

// NewClient creates a new OpenAI-compatible client.
func NewClient(config Config) *Client {
	if config.Name == "" {
		config.Name = defaultName
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.ModelCacheTTL == 0 {
		config.ModelCacheTTL = time.Hour
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "openai_client", "vendor", config.Name)

	client := &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
	}
	client.modelCache = NewModelCache(client, config.ModelCacheTTL)
	return client
}

// Name returns the registry name.
func (c *Client) Name() string {
	return c.config.Name
}

// Framing returns the server-sent events framing used by streamed completions.
func (c *Client) Framing() stream.Framing {
	return stream.SSE{}
}

// NewTranslator returns a fresh translator for one decode pass.
func (c *Client) NewTranslator() stream.Translator {
	return newTranslator()
}

// NewRequest serializes the window into a chat completion request.
func (c *Client) NewRequest(ctx context.Context, req *aisdk.Request) (*http.Request, error) {
	body, err := json.Marshal(buildChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if len(req.ResponseSchema) > 0 {
		body, err = sjson.SetBytes(body, "response_format.type", "json_schema")
		if err == nil {
			body, err = sjson.SetBytes(body, "response_format.json_schema.name", envelopeSchemaName)
		}
		if err == nil {
			body, err = sjson.SetRawBytes(body, "response_format.json_schema.schema", req.ResponseSchema)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to set response format: %w", err)
		}
	}

	if c.logger.Enabled(ctx, slog.LevelDebug) {
		c.logger.Debug("chat completion request",
			"model", req.Params.Model,
			"messages", len(req.Window),
			"tools", len(req.Params.Tools),
			"strict", len(req.ResponseSchema) > 0)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

// newRequest creates a new HTTP request with the appropriate headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	url := c.config.BaseURL + path

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	// Optional headers for ranking
	if c.config.SiteURL != "" {
		req.Header.Set("HTTP-Referer", c.config.SiteURL)
	}
	if c.config.SiteName != "" {
		req.Header.Set("X-Title", c.config.SiteName)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// ErrorResponse is the error body returned by OpenAI-compatible APIs:
// {"error":{"message":"...","type":"...","code":...}}. OpenRouter sends a
// numeric code, OpenAI a string one.
type ErrorResponse struct {
	Error struct {
		Message string          `json:"message"`
		Type    string          `json:"type"`
		Code    json.RawMessage `json:"code"`
		Param   string          `json:"param"`
	} `json:"error"`
}

// DecodeError processes error responses from the API.
func (c *Client) DecodeError(resp *http.Response) error {
	apiErr := &aisdk.APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
		RetryAfter: aisdk.ParseRetryAfter(resp.Header),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		apiErr.Message = fmt.Sprintf("failed to read error response: %v", err)
		return apiErr
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	} else {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
		apiErr.Code = strings.Trim(string(errResp.Error.Code), `"`)
		if apiErr.Code == "null" {
			apiErr.Code = ""
		}
	}

	c.logger.Debug("received error response", "status_code", resp.StatusCode, "code", apiErr.Code, "message", apiErr.Message)
	return apiErr
}
