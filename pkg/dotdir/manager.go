// Package dotdir manages the .relay/ and ~/.relay directories.
//
// The relay gateway keeps its config.toml inside a .relay/ directory,
// resolved from an explicit override, the current working directory, or the
// user's home directory, in that order.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the relay directory.
	dirName = ".relay"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .relay/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.relay/ dir
//  3. Home ~/.relay/ dir
//
// If no directory is found, Target returns an empty string: callers fall
// back to defaults instead of writing into a directory nobody asked for.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating relay directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, dirName)
		if dirExists(local) {
			return filepath.Abs(local)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		global := filepath.Join(home, dirName)
		if dirExists(global) {
			return filepath.Abs(global)
		}
	}

	return "", nil
}

// dirExists reports whether path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
