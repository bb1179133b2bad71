package engine

import (
	"fmt"

	"github.com/danieljhkim/dualbuild/internal/buildexec"
	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/manifest"
	"github.com/danieljhkim/dualbuild/internal/variant"
)

// BuildRequest represents a request to build the source tree for one target.
type BuildRequest struct {
	// Manifest lists the entries prepared for a desktop build
	Manifest *manifest.Manifest

	// Target is the build target; only electron builds prepare the tree
	Target variant.Target

	// Build is the build tool invocation
	Build buildexec.Spec

	// Package is an optional packaging step run after a successful build
	// and restore
	Package *buildexec.Spec

	// OutputDir is removed before building when CleanOutput is set
	OutputDir   string
	CleanOutput bool

	// Verify hashes every manifest path before preparation and after
	// restoration and fails the run on any difference
	Verify bool
}

// prepares reports whether the request quarantines manifest entries.
func (r *BuildRequest) prepares() bool {
	return r.Target == variant.TargetElectron
}

// validate rejects an output directory that overlaps a manifest entry or a
// quarantine location when it is going to be cleaned.
func (r *BuildRequest) validate() error {
	if !r.CleanOutput || r.OutputDir == "" {
		return nil
	}
	overlaps := func(p string) bool {
		return fsops.IsWithin(r.OutputDir, p) || fsops.IsWithin(p, r.OutputDir)
	}
	if q := r.Manifest.Layout.QuarantineDir; q != "" && overlaps(q) {
		return fmt.Errorf("%w: %s overlaps the quarantine directory %s", ErrUnsafeOutputDir, r.OutputDir, q)
	}
	for _, e := range r.Manifest.Entries {
		if overlaps(e.SourcePath) {
			return fmt.Errorf("%w: %s overlaps manifest entry %s", ErrUnsafeOutputDir, r.OutputDir, e.RelPath)
		}
		if overlaps(e.QuarantinePath) {
			return fmt.Errorf("%w: %s overlaps the quarantine path of %s", ErrUnsafeOutputDir, r.OutputDir, e.RelPath)
		}
	}
	return nil
}

// RecoverRequest represents a request to restore entries left in quarantine.
type RecoverRequest struct {
	Manifest *manifest.Manifest

	// Paths restricts recovery to these entries; empty means all
	Paths []string

	// CWD resolves relative Paths
	CWD string
}

// PlanRequest represents a request for a dry-run preparation plan.
type PlanRequest struct {
	Manifest *manifest.Manifest
}
