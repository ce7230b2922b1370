package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for chatmux
type Config struct {
	// Version of the configuration format
	Version string `json:"version"`

	// DefaultApp is used when no app is named on the command line
	DefaultApp string `json:"default_app,omitempty"`

	// Vendors keyed by registry name
	Vendors map[string]VendorConfig `json:"vendors,omitempty" validate:"dive"`

	// Engine timeouts and queueing
	Engine EngineConfig `json:"engine"`

	// Retry policy for vendor requests
	Retry RetryConfig `json:"retry"`

	// RateLimit per caller
	RateLimit RateLimitConfig `json:"rate_limit"`

	// Tools settings shared by the built-in tools
	Tools ToolsConfig `json:"tools"`

	// Storage configuration
	Storage StorageConfig `json:"storage,omitempty"`

	// Logging configuration
	Logging LoggingConfig `json:"logging,omitempty"`

	// Apps defined inline; app files under the apps directory are merged
	// over these
	Apps map[string]AppConfig `json:"apps,omitempty" validate:"dive"`
}

// VendorConfig configures one vendor adapter.
type VendorConfig struct {
	// Type selects the adapter: openai, anthropic or ollama
	Type string `json:"type" yaml:"type" validate:"vendor"`

	// BaseURL overrides the default API endpoint
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`

	// APIKey for authentication (can be omitted if using env vars)
	APIKey string `json:"api_key,omitempty"`

	// APIKeyEnvVar specifies the environment variable to read the API key from
	APIKeyEnvVar string `json:"api_key_env_var,omitempty"`

	// Headers for additional API headers
	Headers map[string]string `json:"headers,omitempty"`

	// SiteURL and SiteName are sent as OpenRouter attribution headers
	SiteURL  string `json:"site_url,omitempty"`
	SiteName string `json:"site_name,omitempty"`

	// APIVersion is the anthropic-version header
	APIVersion string `json:"api_version,omitempty"`

	// MaxTokens is the fallback for vendors that require a limit
	MaxTokens int `json:"max_tokens,omitempty" validate:"min=0"`

	// KeepAlive is how long ollama keeps the model loaded
	KeepAlive string `json:"keep_alive,omitempty"`
}

// EngineConfig holds engine timeouts.
type EngineConfig struct {
	ConnectTimeout Duration `json:"connect_timeout,omitempty"`
	ReadTimeout    Duration `json:"read_timeout,omitempty"`
	TurnTimeout    Duration `json:"turn_timeout,omitempty"`
	ToolTimeout    Duration `json:"tool_timeout,omitempty"`
	QueueSize      int      `json:"queue_size,omitempty" validate:"min=0"`
}

// RetryConfig defines retry behavior for API requests
type RetryConfig struct {
	MaxAttempts int      `json:"max_attempts" validate:"min=0"`
	Delay       Duration `json:"delay"`
	MaxDelay    Duration `json:"max_delay"`
	Backoff     string   `json:"backoff" validate:"backoff"`
}

// RateLimitConfig bounds requests per caller over a sliding window. Limit 0
// disables limiting.
type RateLimitConfig struct {
	Limit    int      `json:"limit" validate:"min=0"`
	Window   Duration `json:"window"`
	Capacity int      `json:"capacity" validate:"min=0"`
}

// ToolsConfig restricts what the built-in tools may touch.
type ToolsConfig struct {
	// FileSystem permissions for the file tools
	FileSystem FileSystemPermissions `json:"filesystem"`

	// Network permissions for web_fetch
	Network NetworkPermissions `json:"network"`

	// UserAgent sent by web_fetch
	UserAgent string `json:"user_agent,omitempty"`
}

// FileSystemPermissions defines file system access permissions
type FileSystemPermissions struct {
	// Root is the directory the file tools are confined to
	Root string `json:"root,omitempty"`

	// DenyPaths lists explicitly denied paths
	DenyPaths []string `json:"deny_paths,omitempty"`

	// MaxFileSize limits the size of files that can be read
	MaxFileSize int64 `json:"max_file_size,omitempty" validate:"min=0"`

	// DeniedExtensions prevents operations on specific file types
	DeniedExtensions []string `json:"denied_extensions,omitempty"`
}

// NetworkPermissions defines network access permissions
type NetworkPermissions struct {
	// AllowedDomains lists allowed domains for web fetch
	AllowedDomains []string `json:"allowed_domains,omitempty"`

	// DeniedDomains lists denied domains
	DeniedDomains []string `json:"denied_domains,omitempty"`

	// AllowLocalhost controls access to localhost
	AllowLocalhost bool `json:"allow_localhost"`

	// AllowPrivateNetworks controls access to private IP ranges
	AllowPrivateNetworks bool `json:"allow_private_networks"`

	// MaxResponseSize limits how much of a page is read
	MaxResponseSize int64 `json:"max_response_size,omitempty" validate:"min=0"`
}

// StorageConfig locates the transcript database.
type StorageConfig struct {
	// DatabasePath of the sqlite file; empty uses the XDG state directory
	DatabasePath string `json:"database_path,omitempty"`

	// Disabled turns transcript persistence off
	Disabled bool `json:"disabled,omitempty"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `json:"level,omitempty" validate:"log_level"`

	// File receives JSON logs instead of stderr when set
	File string `json:"file,omitempty"`
}

// AppConfig describes a prompt app: which vendor and model to talk to, the
// generation settings, and the tools it may call.
type AppConfig struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Vendor      string   `json:"vendor" yaml:"vendor"`
	Model       string   `json:"model" yaml:"model"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty" validate:"omitempty,min=0,max=1"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"omitempty,min=1"`
	// ContextSize is the number of trailing turns sent after the first
	ContextSize      int      `json:"context_size" yaml:"context_size" validate:"min=0"`
	Monadic          bool     `json:"monadic,omitempty" yaml:"monadic,omitempty"`
	Strict           bool     `json:"strict,omitempty" yaml:"strict,omitempty"`
	Tools            []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	InitialPrompt    string   `json:"initial_prompt,omitempty" yaml:"initial_prompt,omitempty"`
	MaxFuncCallDepth int      `json:"max_func_call_depth" yaml:"max_func_call_depth" validate:"min=0"`
	// ContextSchema is a JSON schema for the monadic context in strict mode
	ContextSchema map[string]any `json:"context_schema,omitempty" yaml:"context_schema,omitempty"`
	// InitialContext seeds the monadic context of new sessions
	InitialContext map[string]any `json:"initial_context,omitempty" yaml:"initial_context,omitempty"`
}

// Duration is a time.Duration that reads "30s" style strings as well as
// nanosecond integers.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(n)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if n, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*d = Duration(n)
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// ConfigPrecedence defines the order of configuration loading
type ConfigPrecedence struct {
	// SystemConfig path
	SystemConfig string

	// UserConfig path
	UserConfig string

	// ProjectConfig path
	ProjectConfig string

	// AppsDir holds one YAML file per app
	AppsDir string

	// EnvironmentPrefix for env var overrides
	EnvironmentPrefix string
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ValidationError) Error() string {
	return e.Message
}

// ConfigSource indicates where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"
	SourceUser        ConfigSource = "user"
	SourceProject     ConfigSource = "project"
	SourceEnvironment ConfigSource = "environment"
)

// Vendor adapter types
const (
	VendorOpenAI    = "openai"
	VendorAnthropic = "anthropic"
	VendorOllama    = "ollama"
)
