package config

import (
	"fmt"
	"os"
	"path/filepath"
)

var projectConfigNames = []string{
	".chatmux/config.json",
	".chatmux/config.jsonc",
	"chatmux.json",
}

// FindProjectConfig searches for project configuration starting from startDir
// (the working directory when empty) and walking up to the home directory.
func FindProjectConfig(startDir string) (string, error) {
	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	home, _ := os.UserHomeDir()

	// Walk up the directory tree looking for config
	currentDir := startDir
	for {
		for _, name := range projectConfigNames {
			configPath := filepath.Join(currentDir, name)
			if info, err := os.Stat(configPath); err == nil && !info.IsDir() {
				return configPath, nil
			}
		}

		// Stop at home directory
		if currentDir == home {
			break
		}

		// Check if we've reached the root
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	return "", fmt.Errorf("no project configuration found")
}
