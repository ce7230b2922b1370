package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/adrg/xdg"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Loader handles loading and merging configurations from multiple sources
type Loader struct {
	precedence ConfigPrecedence
	validator  *Validator
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader(precedence ConfigPrecedence) *Loader {
	return &Loader{
		precedence: precedence,
		validator:  NewValidator(),
		getenv:     os.Getenv,
	}
}

// Load loads configuration from all sources and merges them
func (l *Loader) Load() (*Config, error) {
	// Start with default configuration
	config := DefaultConfig()

	// Load and merge configurations in order of precedence
	sources := []struct {
		path   string
		source ConfigSource
	}{
		{l.precedence.SystemConfig, SourceSystem},
		{l.precedence.UserConfig, SourceUser},
		{l.precedence.ProjectConfig, SourceProject},
	}

	for _, src := range sources {
		if src.path == "" {
			continue
		}

		if cfg, err := l.loadFile(src.path); err == nil {
			config = l.mergeConfigs(config, cfg)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s config from %s: %w", src.source, src.path, err)
		}
	}

	if l.precedence.AppsDir != "" {
		apps, err := LoadAppsDir(l.precedence.AppsDir)
		if err != nil {
			return nil, err
		}
		maps.Copy(config.Apps, apps)
	}

	// Apply environment variable overrides
	if l.precedence.EnvironmentPrefix != "" {
		l.applyEnvironmentOverrides(config)
	}

	// Validate the final configuration
	if err := l.validator.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFile loads a single configuration file. Comments and trailing commas
// are accepted.
func (l *Loader) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return &config, nil
}

// SaveFile saves configuration to a file
func (l *Loader) SaveFile(config *Config, path string) error {
	// Validate before saving
	if err := l.validator.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Marshal with pretty printing
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// mergeConfigs merges two configurations with the second taking precedence
func (l *Loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.DefaultApp != "" {
		result.DefaultApp = override.DefaultApp
	}

	// Merge vendors field by field so a file can set just an API key
	result.Vendors = maps.Clone(base.Vendors)
	if result.Vendors == nil {
		result.Vendors = make(map[string]VendorConfig)
	}
	for name, v := range override.Vendors {
		result.Vendors[name] = mergeVendor(result.Vendors[name], v)
	}

	// Merge Engine
	if override.Engine.ConnectTimeout != 0 {
		result.Engine.ConnectTimeout = override.Engine.ConnectTimeout
	}
	if override.Engine.ReadTimeout != 0 {
		result.Engine.ReadTimeout = override.Engine.ReadTimeout
	}
	if override.Engine.TurnTimeout != 0 {
		result.Engine.TurnTimeout = override.Engine.TurnTimeout
	}
	if override.Engine.ToolTimeout != 0 {
		result.Engine.ToolTimeout = override.Engine.ToolTimeout
	}
	if override.Engine.QueueSize != 0 {
		result.Engine.QueueSize = override.Engine.QueueSize
	}

	// Merge Retry
	if override.Retry.MaxAttempts != 0 {
		result.Retry.MaxAttempts = override.Retry.MaxAttempts
	}
	if override.Retry.Delay != 0 {
		result.Retry.Delay = override.Retry.Delay
	}
	if override.Retry.MaxDelay != 0 {
		result.Retry.MaxDelay = override.Retry.MaxDelay
	}
	if override.Retry.Backoff != "" {
		result.Retry.Backoff = override.Retry.Backoff
	}

	// Merge RateLimit
	if override.RateLimit.Limit != 0 {
		result.RateLimit.Limit = override.RateLimit.Limit
	}
	if override.RateLimit.Window != 0 {
		result.RateLimit.Window = override.RateLimit.Window
	}
	if override.RateLimit.Capacity != 0 {
		result.RateLimit.Capacity = override.RateLimit.Capacity
	}

	result.Tools = l.mergeTools(result.Tools, override.Tools)

	// Merge Storage
	if override.Storage.DatabasePath != "" {
		result.Storage.DatabasePath = override.Storage.DatabasePath
	}
	if override.Storage.Disabled {
		result.Storage.Disabled = true
	}

	// Merge Logging
	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.File != "" {
		result.Logging.File = override.Logging.File
	}

	// Apps replace whole entries
	result.Apps = maps.Clone(base.Apps)
	if result.Apps == nil {
		result.Apps = make(map[string]AppConfig)
	}
	for name, app := range override.Apps {
		if app.Name == "" {
			app.Name = name
		}
		result.Apps[name] = app
	}

	return &result
}

func mergeVendor(base, override VendorConfig) VendorConfig {
	result := base
	if override.Type != "" {
		result.Type = override.Type
	}
	if override.BaseURL != "" {
		result.BaseURL = override.BaseURL
	}
	if override.APIKey != "" {
		result.APIKey = override.APIKey
	}
	if override.APIKeyEnvVar != "" {
		result.APIKeyEnvVar = override.APIKeyEnvVar
	}
	if override.SiteURL != "" {
		result.SiteURL = override.SiteURL
	}
	if override.SiteName != "" {
		result.SiteName = override.SiteName
	}
	if override.APIVersion != "" {
		result.APIVersion = override.APIVersion
	}
	if override.MaxTokens != 0 {
		result.MaxTokens = override.MaxTokens
	}
	if override.KeepAlive != "" {
		result.KeepAlive = override.KeepAlive
	}
	if len(override.Headers) > 0 {
		result.Headers = maps.Clone(base.Headers)
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, override.Headers)
	}
	return result
}

// mergeTools merges tool permission configurations
func (l *Loader) mergeTools(base, override ToolsConfig) ToolsConfig {
	result := base

	if override.FileSystem.Root != "" {
		result.FileSystem.Root = override.FileSystem.Root
	}
	if len(override.FileSystem.DenyPaths) > 0 {
		result.FileSystem.DenyPaths = override.FileSystem.DenyPaths
	}
	if override.FileSystem.MaxFileSize != 0 {
		result.FileSystem.MaxFileSize = override.FileSystem.MaxFileSize
	}
	if len(override.FileSystem.DeniedExtensions) > 0 {
		result.FileSystem.DeniedExtensions = override.FileSystem.DeniedExtensions
	}

	if len(override.Network.AllowedDomains) > 0 {
		result.Network.AllowedDomains = override.Network.AllowedDomains
	}
	if len(override.Network.DeniedDomains) > 0 {
		result.Network.DeniedDomains = override.Network.DeniedDomains
	}
	if override.Network.AllowLocalhost {
		result.Network.AllowLocalhost = true
	}
	if override.Network.AllowPrivateNetworks {
		result.Network.AllowPrivateNetworks = true
	}
	if override.Network.MaxResponseSize != 0 {
		result.Network.MaxResponseSize = override.Network.MaxResponseSize
	}

	if override.UserAgent != "" {
		result.UserAgent = override.UserAgent
	}

	return result
}

// applyEnvironmentOverrides applies environment variable overrides to config
func (l *Loader) applyEnvironmentOverrides(config *Config) {
	prefix := l.precedence.EnvironmentPrefix

	if app := l.getenv(prefix + "_APP"); app != "" {
		config.DefaultApp = app
	}

	if level := l.getenv(prefix + "_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}

	if path := l.getenv(prefix + "_DB"); path != "" {
		config.Storage.DatabasePath = path
	}

	// Per-vendor overrides, e.g. CHATMUX_OLLAMA_BASE_URL
	for name, v := range config.Vendors {
		key := prefix + "_" + envName(name)
		if baseURL := l.getenv(key + "_BASE_URL"); baseURL != "" {
			v.BaseURL = baseURL
		}
		if apiKey := l.getenv(key + "_API_KEY"); apiKey != "" {
			v.APIKey = apiKey
		}
		config.Vendors[name] = v
	}
}

// ResolveAPIKey returns the vendor's API key, reading APIKeyEnvVar when no
// key is configured directly.
func (v VendorConfig) ResolveAPIKey() string {
	if v.APIKey != "" {
		return v.APIKey
	}
	if v.APIKeyEnvVar != "" {
		return os.Getenv(v.APIKeyEnvVar)
	}
	return ""
}

func envName(name string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

// LoadAppFile reads one YAML app definition. The file name is used when the
// app has no name.
func LoadAppFile(path string) (AppConfig, error) {
	var app AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return app, err
	}
	if err := yaml.Unmarshal(data, &app); err != nil {
		return app, fmt.Errorf("failed to parse app %s: %w", path, err)
	}
	if app.Name == "" {
		app.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return app, nil
}

// LoadAppsDir reads every *.yaml and *.yml file in dir. A missing directory
// yields no apps.
func LoadAppsDir(dir string) (map[string]AppConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]AppConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read apps directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	apps := make(map[string]AppConfig, len(files))
	for _, f := range files {
		app, err := LoadAppFile(f)
		if err != nil {
			return nil, err
		}
		apps[app.Name] = app
	}
	return apps, nil
}

// GetConfigPaths returns the configuration file paths to check
func GetConfigPaths() ConfigPrecedence {
	// Use XDG paths for cross-platform compatibility
	userConfigPath := filepath.Join(xdg.ConfigHome, "chatmux", "config.json")

	// System config path varies by OS
	systemConfigPath := "/etc/chatmux/config.json"
	if runtime.GOOS == "windows" {
		systemConfigPath = filepath.Join(os.Getenv("PROGRAMDATA"), "chatmux", "config.json")
	}

	projectConfigPath, err := FindProjectConfig("")
	if err != nil {
		projectConfigPath = ""
	}

	return ConfigPrecedence{
		SystemConfig:      systemConfigPath,
		UserConfig:        userConfigPath,
		ProjectConfig:     projectConfigPath,
		AppsDir:           filepath.Join(xdg.ConfigHome, "chatmux", "apps"),
		EnvironmentPrefix: "CHATMUX",
	}
}
