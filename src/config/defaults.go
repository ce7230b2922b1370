package config

import (
	"time"
)

// DefaultConfig returns a default configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Version:    "1.0",
		DefaultApp: "assistant",

		Vendors: map[string]VendorConfig{
			"openrouter": {
				Type:         VendorOpenAI,
				BaseURL:      "https://openrouter.ai/api/v1",
				APIKeyEnvVar: "OPENROUTER_API_KEY",
				SiteURL:      "https://github.com/elee1766/chatmux",
				SiteName:     "chatmux",
			},
			"openai": {
				Type:         VendorOpenAI,
				BaseURL:      "https://api.openai.com/v1",
				APIKeyEnvVar: "OPENAI_API_KEY",
			},
			"anthropic": {
				Type:         VendorAnthropic,
				APIKeyEnvVar: "ANTHROPIC_API_KEY",
				MaxTokens:    4096,
			},
			"ollama": {
				Type:    VendorOllama,
				BaseURL: "http://localhost:11434",
			},
		},

		Engine: EngineConfig{
			ConnectTimeout: Duration(10 * time.Second),
			ReadTimeout:    Duration(60 * time.Second),
			TurnTimeout:    Duration(5 * time.Minute),
			ToolTimeout:    Duration(30 * time.Second),
			QueueSize:      16,
		},

		Retry: RetryConfig{
			MaxAttempts: 5,
			Delay:       Duration(time.Second),
			MaxDelay:    Duration(30 * time.Second),
			Backoff:     "exponential",
		},

		RateLimit: RateLimitConfig{
			Limit:    60,
			Window:   Duration(time.Minute),
			Capacity: 1024,
		},

		Tools: ToolsConfig{
			FileSystem: FileSystemPermissions{
				Root: ".",
				DenyPaths: []string{
					"/etc",
					"/sys",
					"/proc",
					"/dev",
					"/boot",
					"/root",
				},
				MaxFileSize: 1024 * 1024, // 1MB
				DeniedExtensions: []string{
					".exe", ".dll", ".so", ".dylib",
					".pem", ".key",
				},
			},
			Network: NetworkPermissions{
				AllowLocalhost:       false,
				AllowPrivateNetworks: false,
				MaxResponseSize:      5 * 1024 * 1024, // 5MB
			},
			UserAgent: "chatmux/1.0",
		},

		Logging: LoggingConfig{
			Level: "info",
		},

		Apps: DefaultApps(),
	}
}

// DefaultApps returns the built-in app catalog.
func DefaultApps() map[string]AppConfig {
	return map[string]AppConfig{
		"assistant": {
			Name:             "assistant",
			Description:      "General assistant with clock, web and system tools",
			Vendor:           "openrouter",
			Model:            "google/gemini-2.5-flash",
			ContextSize:      20,
			Tools:            []string{"current_time", "web_fetch", "system_info"},
			InitialPrompt:    "You are a helpful assistant. Use tools when they help answer accurately.",
			MaxFuncCallDepth: 4,
		},
		"files": {
			Name:             "files",
			Description:      "Answers questions about files in the working directory",
			Vendor:           "openrouter",
			Model:            "google/gemini-2.5-flash",
			ContextSize:      12,
			Tools:            []string{"list_directory", "read_file", "get_file_info", "grep_files"},
			InitialPrompt:    "You help the user understand the files in their project. Read files before describing them.",
			MaxFuncCallDepth: 8,
		},
		"notes": {
			Name:           "notes",
			Description:    "Keeps a running list of notes in the monadic context",
			Vendor:         "openrouter",
			Model:          "google/gemini-2.5-flash",
			ContextSize:    6,
			Monadic:        true,
			InitialPrompt:  "You keep the user's notes. Store every note in context.notes and answer questions from it.",
			InitialContext: map[string]any{"notes": []any{}},
		},
		"local": {
			Name:          "local",
			Description:   "Plain chat against a local ollama model",
			Vendor:        "ollama",
			Model:         "llama3.2",
			ContextSize:   10,
			InitialPrompt: "You are a concise assistant.",
		},
	}
}
