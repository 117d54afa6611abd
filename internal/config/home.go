package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeDirName is the per-project state directory.
const HomeDirName = ".gradewalker"

// GetHome returns the gradewalker home directory.
// Priority order:
//  1. GRADEWALKER_HOME environment variable (if set)
//  2. Project root (nearest ancestor holding a .gradewalker directory)
//  3. Current working directory (fallback)
//
// The directory is created if it doesn't exist.
func GetHome() (string, error) {
	if home := os.Getenv("GRADEWALKER_HOME"); home != "" {
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("create gradewalker home directory: %w", err)
		}
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	if root, ok := findProjectRoot(cwd); ok {
		return filepath.Join(root, HomeDirName), nil
	}

	home := filepath.Join(cwd, HomeDirName)
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create gradewalker home directory: %w", err)
	}
	return home, nil
}

// findProjectRoot walks up from start looking for an existing home directory.
func findProjectRoot(start string) (string, bool) {
	current := start
	for {
		info, err := os.Stat(filepath.Join(current, HomeDirName))
		if err == nil && info.IsDir() {
			return current, true
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// GetHistoryDBPath returns the default run history database path.
func GetHistoryDBPath() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "history", "runs.db"), nil
}

// GetSessionPath returns the default session artifact path.
func GetSessionPath() (string, error) {
	home, err := GetHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "session", "storage-state.json"), nil
}
