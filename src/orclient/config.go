package orclient

import (
	"log/slog"
	"net/http"
	"time"
)

// Config holds configuration for an OpenAI-compatible client
type Config struct {
	Name     string            // Registry name, "openrouter" by default
	APIKey   string            // Bearer token, may be empty for local servers
	BaseURL  string            // Base URL ending in the API version, e.g. https://api.openai.com/v1
	SiteURL  string            // Site URL for OpenRouter ranking
	SiteName string            // Site name for OpenRouter ranking
	Headers  map[string]string // Extra headers sent with every request
	Logger   *slog.Logger

	// HTTPClient is used for model listing; chat requests go through the engine
	HTTPClient    *http.Client
	ModelCacheTTL time.Duration
}
