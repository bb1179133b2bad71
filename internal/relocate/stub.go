package relocate

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/manifest"
)

const (
	opInstallStub   = "install-stub"
	opUninstallStub = "uninstall-stub"
)

// StubInstaller copies stand-in implementations into vacated source paths.
type StubInstaller struct {
	fs     fsops.FS
	state  *State
	logger *zap.Logger
}

// NewStubInstaller creates a StubInstaller sharing state with a Relocator.
func NewStubInstaller(fs fsops.FS, state *State, logger *zap.Logger) *StubInstaller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubInstaller{fs: fs, state: state, logger: logger}
}

// Install copies entry.StubSourcePath into entry.SourcePath. The entry must
// be of kind replace and already quarantined.
func (s *StubInstaller) Install(entry manifest.Entry) error {
	fail := func(err error) error {
		return &Error{Op: opInstallStub, Path: entry.RelPath, Kind: ErrFilesystemOperation, Err: err}
	}

	if entry.Kind != manifest.KindReplace {
		return fail(fmt.Errorf("entry kind %q does not take a stub", entry.Kind))
	}
	if !s.state.IsQuarantined(entry.SourcePath) {
		return fail(ErrNotQuarantined)
	}

	if _, err := s.fs.Lstat(entry.StubSourcePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fail(fmt.Errorf("stub %s missing: %w", entry.StubSourcePath, err))
		}
		return fail(fmt.Errorf("failed to stat stub: %w", err))
	}

	occupied, err := s.fs.Exists(entry.SourcePath)
	if err != nil {
		return fail(fmt.Errorf("failed to check source path: %w", err))
	}
	if occupied {
		return fail(fmt.Errorf("source path %s is not vacant", entry.SourcePath))
	}

	if err := s.fs.Copy(entry.StubSourcePath, entry.SourcePath); err != nil {
		if rmErr := s.fs.RemoveAll(entry.SourcePath); rmErr != nil {
			s.logger.Warn("failed to clean up partial stub", zap.String("path", entry.RelPath), zap.Error(rmErr))
		}
		return fail(fmt.Errorf("failed to copy stub: %w", err))
	}

	s.state.setStubInstalled(entry.SourcePath, true)
	s.logger.Info("stub installed",
		zap.String("path", entry.RelPath),
		zap.String("stub", entry.StubSourcePath))
	return nil
}

// Uninstall removes the stub occupying entry.SourcePath. It is a no-op when
// no stub is installed, and must run before Restore for the same entry.
func (s *StubInstaller) Uninstall(entry manifest.Entry) error {
	if !s.state.StubInstalled(entry.SourcePath) {
		return nil
	}
	if err := s.fs.RemoveAll(entry.SourcePath); err != nil {
		return &Error{Op: opUninstallStub, Path: entry.RelPath, Kind: ErrRestorationFailed, Err: err}
	}
	s.state.setStubInstalled(entry.SourcePath, false)
	s.logger.Info("stub removed", zap.String("path", entry.RelPath))
	return nil
}
