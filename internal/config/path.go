package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir returns the per-user directory holding the queue database.
// It follows the platform convention for application data and falls back to
// ./data when no home directory is known.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "bgq")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./data"
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", "bgq")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "bgq")
		}
		return filepath.Join(homeDir, "AppData", "Local", "bgq")
	}

	if isDir(filepath.Join(homeDir, ".local", "share")) {
		return filepath.Join(homeDir, ".local", "share", "bgq")
	}
	return filepath.Join(homeDir, ".bgq")
}

// ResolveDataDir returns dir, or DefaultDataDir when dir is empty.
func ResolveDataDir(dir string) string {
	if dir != "" {
		return dir
	}
	return DefaultDataDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
