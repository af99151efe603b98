package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the default data directory for durable ledgers and
// the embedded bus. It prefers standard locations when available and falls
// back to a dotdir in the user's home directory.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "flocheck")
	}

	// macOS: ~/Library/Application Support/flocheck
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "flocheck")
	}

	return filepath.Join(homeDir, ".flocheck")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
