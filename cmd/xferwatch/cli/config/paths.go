// Package config provides configuration management for the xferwatch CLI.
package config

import (
	"os"
	"path/filepath"
)

// Dir returns the xferwatch config directory.
// Uses XDG_CONFIG_HOME/xferwatch, defaulting to ~/.config/xferwatch.
func Dir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the xferwatch data directory, where the default history
// file lives.
// Uses XDG_DATA_HOME/xferwatch, defaulting to ~/.local/share/xferwatch.
func DataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// File returns the path of the config file inside Dir.
func File() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// HistoryFile returns the default history database path inside DataDir.
func HistoryFile() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

func xdgDir(env, fallback string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	return filepath.Join(base, "xferwatch"), nil
}
