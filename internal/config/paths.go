package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the dualbuild state directory.
const HomeEnv = "DUALBUILD_HOME"

// Paths contains the filesystem locations dualbuild keeps its own state in.
type Paths struct {
	// Root is the base directory for all dualbuild state (default: ~/.dualbuild)
	Root string

	// Locks holds one lock file per source tree
	Locks string

	// History is the run history database
	History string
}

// DefaultStateDir returns the state directory: $DUALBUILD_HOME when set,
// otherwise ~/.dualbuild.
func DefaultStateDir() (string, error) {
	if root := os.Getenv(HomeEnv); root != "" {
		return root, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".dualbuild"), nil
}

// PathsFor lays out the state directory rooted at root.
func PathsFor(root string) *Paths {
	return &Paths{
		Root:    root,
		Locks:   filepath.Join(root, "locks"),
		History: filepath.Join(root, "history.db"),
	}
}

// EnsureDirectories creates all necessary directories if they don't exist.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.Root, p.Locks} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
