package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Recover restores entries a previous run left in quarantine, for example
// after the process was killed mid-build. Entries are adopted from what is
// on disk and restored in reverse manifest order. Recovery is not
// interruptible; ctx only scopes logging.
func (e *Engine) Recover(ctx context.Context, req *RecoverRequest) (*RunResult, error) {
	if req == nil || req.Manifest == nil {
		return nil, ErrNoManifest
	}
	entries, err := selectEntries(req.Manifest, req.Paths, req.CWD)
	if err != nil {
		return nil, err
	}

	r := e.start(KindRecover, "", req.Manifest)
	r.logger.Info("recovery started", zap.Int("entries", len(entries)))

	var adoptErrs []error
	adopted := 0
	for _, entry := range entries {
		ok, err := r.relocator.Adopt(entry)
		if err != nil {
			r.mark(entry, "", err)
			adoptErrs = append(adoptErrs, err)
			continue
		}
		if ok {
			adopted++
		}
	}
	if ctx.Err() != nil {
		r.logger.Warn("interrupt received during recovery; restoring anyway")
	}
	r.logger.Info("adopted quarantined entries", zap.Int("adopted", adopted))

	r.phases.mustEnter(PhaseRestoring)
	restoreErr := r.restore()

	var adoptErr error
	if len(adoptErrs) > 0 {
		adoptErr = fmt.Errorf("%w: %w", ErrRestorationFailed, adoptErrs[0])
	}
	return r.finish(errors.Join(adoptErr, restoreErr))
}
