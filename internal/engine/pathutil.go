package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/dualbuild/internal/manifest"
)

// resolveToSourceRelative resolves a user-provided path (absolute, relative, or containing "..")
// to a clean source-root-relative path. It rejects paths that escape the source root or
// resolve to the root itself.
func resolveToSourceRelative(userPath, cwd, sourceRoot string) (string, error) {
	absPath := userPath
	if !filepath.IsAbs(userPath) {
		absPath = filepath.Join(cwd, userPath)
	}
	absPath = filepath.Clean(absPath)
	sourceRoot = filepath.Clean(sourceRoot)

	relPath, err := filepath.Rel(sourceRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to compute source-relative path for %q: %w", userPath, err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q resolves to %q which is outside the source root", userPath, absPath)
	}
	if relPath == "." {
		return "", fmt.Errorf("path %q resolves to the source root, which is never a manifest entry", userPath)
	}
	return filepath.ToSlash(relPath), nil
}

// selectEntries returns the manifest entries named by paths, in manifest
// order. Relative paths are taken from cwd. No paths selects every entry.
func selectEntries(m *manifest.Manifest, paths []string, cwd string) ([]manifest.Entry, error) {
	if len(paths) == 0 {
		return m.Entries, nil
	}
	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		rel, err := resolveToSourceRelative(p, cwd, m.Layout.SourceRoot)
		if err != nil {
			return nil, err
		}
		entry, ok := m.Lookup(rel)
		if !ok {
			return nil, fmt.Errorf("%s: %w", rel, manifest.ErrUnknownEntry)
		}
		wanted[entry.RelPath] = true
	}

	var out []manifest.Entry
	for _, entry := range m.Entries {
		if wanted[entry.RelPath] {
			out = append(out, entry)
		}
	}
	return out, nil
}
