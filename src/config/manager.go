package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// ErrUnknownApp is returned when an app name is not in the catalog
var ErrUnknownApp = errors.New("unknown app")

// Manager manages configuration loading, validation, and access
type Manager struct {
	config            *Config
	loader            *Loader
	validator         *Validator
	permissionChecker *PermissionChecker
	precedence        ConfigPrecedence
	mu                sync.RWMutex
}

// NewManager loads configuration from the given locations
func NewManager(precedence ConfigPrecedence) (*Manager, error) {
	loader := NewLoader(precedence)

	config, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return &Manager{
		config:            config,
		loader:            loader,
		validator:         loader.validator,
		permissionChecker: NewPermissionChecker(&config.Tools),
		precedence:        precedence,
	}, nil
}

// NewManagerWithConfig creates a manager with a specific configuration
func NewManagerWithConfig(config *Config) (*Manager, error) {
	validator := NewValidator()
	if err := validator.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Manager{
		config:            config,
		loader:            NewLoader(ConfigPrecedence{}),
		validator:         validator,
		permissionChecker: NewPermissionChecker(&config.Tools),
	}, nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPermissionChecker returns the tool permission checker
func (m *Manager) GetPermissionChecker() *PermissionChecker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.permissionChecker
}

// Reload reloads configuration from disk
func (m *Manager) Reload() error {
	config, err := m.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
	m.permissionChecker = NewPermissionChecker(&config.Tools)
	return nil
}

// App returns the named app, or the default app when name is empty.
func (m *Manager) App(name string) (AppConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if name == "" {
		name = m.config.DefaultApp
	}
	app, ok := m.config.Apps[name]
	if !ok {
		return AppConfig{}, fmt.Errorf("%w: %s", ErrUnknownApp, name)
	}
	if app.Name == "" {
		app.Name = name
	}
	return app, nil
}

// Apps returns the catalog sorted by name.
func (m *Manager) Apps() []AppConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.config.Apps))
	for name := range m.config.Apps {
		names = append(names, name)
	}
	sort.Strings(names)

	apps := make([]AppConfig, 0, len(names))
	for _, name := range names {
		app := m.config.Apps[name]
		if app.Name == "" {
			app.Name = name
		}
		apps = append(apps, app)
	}
	return apps
}

// Vendor returns the named vendor configuration.
func (m *Manager) Vendor(name string) (VendorConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.config.Vendors[name]
	return v, ok
}

// ConfigInfo summarizes the loaded configuration
type ConfigInfo struct {
	Sources  []string `json:"sources"`
	Apps     int      `json:"apps"`
	Vendors  []string `json:"vendors"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// GetInfo returns configuration information
func (m *Manager) GetInfo() (*ConfigInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := &ConfigInfo{
		Apps:     len(m.config.Apps),
		Errors:   []string{},
		Warnings: []string{},
	}

	for _, path := range []string{m.precedence.SystemConfig, m.precedence.UserConfig, m.precedence.ProjectConfig} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			info.Sources = append(info.Sources, path)
		}
	}

	for name, v := range m.config.Vendors {
		info.Vendors = append(info.Vendors, name)
		// Check for API key
		if v.APIKey == "" && v.APIKeyEnvVar != "" && os.Getenv(v.APIKeyEnvVar) == "" {
			info.Warnings = append(info.Warnings, fmt.Sprintf("vendor %s: API key environment variable %s is not set", name, v.APIKeyEnvVar))
		}
	}
	sort.Strings(info.Vendors)
	sort.Strings(info.Warnings)

	// Validate configuration
	if err := m.validator.Validate(m.config); err != nil {
		info.Errors = append(info.Errors, fmt.Sprintf("Configuration validation error: %v", err))
	}

	return info, nil
}

// ExportConfig exports the configuration as JSON
func (m *Manager) ExportConfig(includeSecrets bool) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	config := *m.config

	// Optionally remove sensitive information
	if !includeSecrets {
		vendors := make(map[string]VendorConfig, len(config.Vendors))
		for name, v := range config.Vendors {
			v.APIKey = ""
			vendors[name] = v
		}
		config.Vendors = vendors
	}

	return json.MarshalIndent(config, "", "  ")
}
