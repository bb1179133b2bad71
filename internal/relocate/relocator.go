// Package relocate moves manifest entries out of the source tree and back,
// and installs stand-in stubs where an entry must be replaced rather than
// merely removed.
//
// Both Relocator and StubInstaller record every successful step in a shared
// State; the restore phase consults that State so only entries that were
// actually moved get moved back.
package relocate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/manifest"
)

const (
	opQuarantine = "quarantine"
	opRestore    = "restore"
)

// Relocator moves entries between the source tree and quarantine.
type Relocator struct {
	fs     fsops.FS
	state  *State
	logger *zap.Logger
}

// NewRelocator creates a Relocator that records its moves in state.
func NewRelocator(fs fsops.FS, state *State, logger *zap.Logger) *Relocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relocator{fs: fs, state: state, logger: logger}
}

// State returns the relocation state this relocator writes to.
func (r *Relocator) State() *State {
	return r.state
}

// Quarantine moves entry.SourcePath to entry.QuarantinePath.
//
// A missing source yields ErrMissingOptionalPath for optional entries and
// ErrFilesystemOperation otherwise. Leftover content at the quarantine path
// (from an earlier crashed run) is discarded first.
func (r *Relocator) Quarantine(entry manifest.Entry) error {
	fail := func(kind error, err error) error {
		return &Error{Op: opQuarantine, Path: entry.RelPath, Kind: kind, Err: err}
	}

	if r.state.IsQuarantined(entry.SourcePath) {
		return fail(ErrFilesystemOperation, errors.New("already quarantined"))
	}

	if _, err := r.fs.Lstat(entry.SourcePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if entry.Optional {
				return fail(ErrMissingOptionalPath, nil)
			}
			return fail(ErrFilesystemOperation, fmt.Errorf("source path missing: %w", err))
		}
		return fail(ErrFilesystemOperation, fmt.Errorf("failed to stat source: %w", err))
	}

	stale, err := r.fs.Exists(entry.QuarantinePath)
	if err != nil {
		return fail(ErrFilesystemOperation, fmt.Errorf("failed to check quarantine path: %w", err))
	}
	if stale {
		r.logger.Warn("discarding stale quarantine content",
			zap.String("path", entry.RelPath),
			zap.String("quarantine", entry.QuarantinePath))
		if err := r.fs.RemoveAll(entry.QuarantinePath); err != nil {
			return fail(ErrFilesystemOperation, fmt.Errorf("failed to discard stale quarantine content: %w", err))
		}
	}

	if err := r.fs.MkdirAll(filepath.Dir(entry.QuarantinePath), 0755); err != nil {
		return fail(ErrFilesystemOperation, fmt.Errorf("failed to create quarantine directory: %w", err))
	}
	if err := r.fs.Move(entry.SourcePath, entry.QuarantinePath); err != nil {
		return fail(ErrFilesystemOperation, fmt.Errorf("failed to move to quarantine: %w", err))
	}

	r.state.markQuarantined(entry.SourcePath)
	r.logger.Info("quarantined",
		zap.String("path", entry.RelPath),
		zap.String("quarantine", entry.QuarantinePath))
	return nil
}

// Restore moves a quarantined entry back into the source tree, discarding
// whatever occupies the source path first. Calling Restore on an entry that
// is not quarantined is a no-op.
func (r *Relocator) Restore(entry manifest.Entry) error {
	if !r.state.IsQuarantined(entry.SourcePath) {
		return nil
	}
	fail := func(err error) error {
		return &Error{Op: opRestore, Path: entry.RelPath, Kind: ErrRestorationFailed, Err: err}
	}

	// Never clear the source location unless the original is there to
	// take its place.
	parked, err := r.fs.Exists(entry.QuarantinePath)
	if err != nil {
		return fail(fmt.Errorf("failed to check quarantine path: %w", err))
	}
	if !parked {
		return fail(fmt.Errorf("quarantined content missing at %s", entry.QuarantinePath))
	}

	occupied, err := r.fs.Exists(entry.SourcePath)
	if err != nil {
		return fail(fmt.Errorf("failed to check source path: %w", err))
	}
	if occupied {
		r.logger.Debug("discarding content at source path before restore", zap.String("path", entry.RelPath))
		if err := r.fs.RemoveAll(entry.SourcePath); err != nil {
			return fail(fmt.Errorf("failed to clear source path: %w", err))
		}
	}

	if err := r.fs.MkdirAll(filepath.Dir(entry.SourcePath), 0755); err != nil {
		return fail(fmt.Errorf("failed to recreate parent directory: %w", err))
	}
	if err := r.fs.Move(entry.QuarantinePath, entry.SourcePath); err != nil {
		return fail(fmt.Errorf("failed to move back from quarantine: %w", err))
	}

	r.state.markRestored(entry.SourcePath)
	r.logger.Info("restored", zap.String("path", entry.RelPath))
	return nil
}

// Adopt seeds the state from what is on disk, for recovering a run that
// died before it could restore. An entry counts as quarantined when its
// quarantine path exists; for replace entries, anything occupying the source
// path is taken to be the stub. Adopt reports whether the entry was adopted.
func (r *Relocator) Adopt(entry manifest.Entry) (bool, error) {
	parked, err := r.fs.Exists(entry.QuarantinePath)
	if err != nil {
		return false, &Error{Op: opRestore, Path: entry.RelPath, Kind: ErrRestorationFailed, Err: err}
	}
	if !parked {
		return false, nil
	}

	r.state.markQuarantined(entry.SourcePath)
	if entry.Kind == manifest.KindReplace {
		occupied, err := r.fs.Exists(entry.SourcePath)
		if err != nil {
			return true, &Error{Op: opRestore, Path: entry.RelPath, Kind: ErrRestorationFailed, Err: err}
		}
		r.state.setStubInstalled(entry.SourcePath, occupied)
	}
	r.logger.Info("adopted quarantined entry", zap.String("path", entry.RelPath))
	return true, nil
}
