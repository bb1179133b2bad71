package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danieljhkim/dualbuild/internal/engine"
)

var recoverCmd = &cobra.Command{
	Use:   "recover [path...]",
	Short: "Put back entries a previous run left in quarantine",
	Long: `Put back manifest entries that an interrupted or killed run left out of the source tree.

Every entry whose quarantine path exists is adopted and restored in reverse manifest
order; a replace entry whose source path is occupied is treated as having its stub
installed, and the stub is removed first. Entries that are already in place are
left alone, so recover is safe to run at any time.

Paths are relative to the current directory and restrict recovery to those entries.

Examples:
  dualbuild recover
  dualbuild recover src/app/api`,
	RunE: runRecover,
}

func runRecover(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	m, err := s.loadManifest(true)
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	lock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release run lock", zap.Error(err))
		}
	}()

	rec, flush := s.recorder()
	res, runErr := s.newEngine(rec).Recover(cmd.Context(), &engine.RecoverRequest{
		Manifest: m,
		Paths:    args,
		CWD:      cwd,
	})
	flush()
	if res == nil {
		return runErr
	}
	s.recordHistory(cmd.Context(), res)

	if jsonOutput {
		if err := outputJSON(res); err != nil {
			return err
		}
	} else {
		printRunReport(res)
	}
	if runErr != nil {
		return fmt.Errorf("recovery failed: %w", runErr)
	}
	return nil
}
