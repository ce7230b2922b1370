package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// StoragePaths contains paths for application storage
type StoragePaths struct {
	DatabasePath string
	LogPath      string
}

// GetDefaultStoragePaths returns default storage paths using XDG base directories
func GetDefaultStoragePaths() StoragePaths {
	// Use XDG_STATE_HOME for runtime state data
	return StoragePaths{
		DatabasePath: filepath.Join(xdg.StateHome, "chatmux", "chatmux.db"),
		LogPath:      filepath.Join(xdg.StateHome, "chatmux", "chatmux.log"),
	}
}

// DatabasePath returns the configured database path or the XDG default.
func (c *Config) DatabasePath() string {
	if c.Storage.DatabasePath != "" {
		return c.Storage.DatabasePath
	}
	return GetDefaultStoragePaths().DatabasePath
}
