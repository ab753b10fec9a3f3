// Package paths provides centralized path resolution for notebooklm-mcp.
// This package has NO internal imports (only stdlib) to avoid import cycles.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalConfigName is the config file looked up in the current directory.
const LocalConfigName = "notebooklm-config.json"

// BaseDir returns the base directory (~/.notebooklm-mcp).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".notebooklm-mcp"), nil
}

// DataPath returns a path within the base directory.
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// ConfigPath returns the active config path.
// Priority: ./notebooklm-config.json > ~/.notebooklm-mcp/config.json
// Returns ("", nil) if no config exists - defaults are used then.
func ConfigPath() (string, error) {
	if _, err := os.Stat(LocalConfigName); err == nil {
		abs, err := filepath.Abs(LocalConfigName)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return abs, nil
	}

	global, err := DefaultConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(global); err == nil {
		return global, nil
	}
	return "", nil
}

// DefaultConfigPath returns where new configs are written.
func DefaultConfigPath() (string, error) {
	return DataPath("config.json")
}

// BrowserDir returns the directory holding the Chromium download and profiles.
func BrowserDir() (string, error) {
	return DataPath("browser")
}

// LogPath returns the default log file location.
func LogPath() (string, error) {
	return DataPath(filepath.Join("logs", "notebooklm-mcp.log"))
}

// ExpandHome expands a leading "~/" to the user's home directory.
func ExpandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// EnsureDir creates a directory if it doesn't exist (0750).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
