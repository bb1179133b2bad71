package planner

import (
	"fmt"

	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/manifest"
)

// Checker inspects the tree for conditions that affect preparation.
type Checker struct {
	fs fsops.FS
}

// NewChecker creates a new Checker.
func NewChecker(fs fsops.FS) *Checker {
	return &Checker{fs: fs}
}

// EntryStatus is what the checker found for one entry.
type EntryStatus struct {
	SourceExists bool

	// Problem is set when preparing the entry would fail.
	Problem *Problem

	Warnings []Problem
}

// CheckEntry inspects the source, quarantine and stub paths of entry.
// A returned error means the filesystem could not be queried at all.
func (c *Checker) CheckEntry(entry manifest.Entry) (*EntryStatus, error) {
	status := &EntryStatus{}

	exists, err := c.fs.Exists(entry.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check source path: %w", err)
	}
	status.SourceExists = exists

	if !exists {
		if !entry.Optional {
			status.Problem = &Problem{
				Path:   entry.RelPath,
				Reason: "required path is missing from the source tree",
			}
		}
		return status, nil
	}

	stale, err := c.fs.Exists(entry.QuarantinePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check quarantine path: %w", err)
	}
	if stale {
		status.Warnings = append(status.Warnings, Problem{
			Path:   entry.RelPath,
			Reason: fmt.Sprintf("stale quarantine content at %s will be discarded (run recover first if it is the only copy)", entry.QuarantinePath),
		})
	}

	if entry.Kind == manifest.KindReplace {
		stubExists, err := c.fs.Exists(entry.StubSourcePath)
		if err != nil {
			return nil, fmt.Errorf("failed to check stub path: %w", err)
		}
		if !stubExists {
			status.Problem = &Problem{
				Path:   entry.RelPath,
				Reason: fmt.Sprintf("stub %s does not exist", entry.StubSourcePath),
			}
		}
	}

	return status, nil
}
