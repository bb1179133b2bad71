package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danieljhkim/dualbuild/internal/buildexec"
	"github.com/danieljhkim/dualbuild/internal/manifest"
	"github.com/danieljhkim/dualbuild/internal/metrics"
	"github.com/danieljhkim/dualbuild/internal/relocate"
	"github.com/danieljhkim/dualbuild/internal/variant"
)

// run is the mutable bookkeeping of one Run or Recover call.
type run struct {
	e         *Engine
	m         *manifest.Manifest
	state     *relocate.State
	relocator *relocate.Relocator
	stubs     *relocate.StubInstaller
	phases    *phaseTracker
	result    *RunResult
	index     map[string]int
	logger    *zap.Logger

	// restoring is set once the restore phase has started.
	restoring bool
}

func (e *Engine) start(kind string, target variant.Target, m *manifest.Manifest) *run {
	id := e.newID()
	logger := e.logger.With(zap.String("run_id", id), zap.String("kind", kind))
	state := relocate.NewState()

	r := &run{
		e:         e,
		m:         m,
		state:     state,
		relocator: relocate.NewRelocator(e.fs, state, logger),
		stubs:     relocate.NewStubInstaller(e.fs, state, logger),
		index:     make(map[string]int, len(m.Entries)),
		logger:    logger,
		result: &RunResult{
			RunID:      id,
			Kind:       kind,
			Target:     target,
			SourceRoot: m.Layout.SourceRoot,
			StartedAt:  e.clock.Now(),
			Entries:    make([]EntryReport, len(m.Entries)),
		},
	}
	r.phases = newPhaseTracker(e.clock, e.recorder)
	for i, entry := range m.Entries {
		r.index[entry.SourcePath] = i
		r.result.Entries[i] = EntryReport{
			Path:           entry.RelPath,
			Kind:           entry.Kind,
			QuarantinePath: entry.QuarantinePath,
		}
	}
	return r
}

// Run builds the source tree for req.Target.
//
// Electron builds quarantine the manifest entries first and only invoke the
// build tool when every entry was prepared. Whatever was moved is restored
// in reverse order before Run returns, even when ctx is cancelled. The
// returned error is the run's root error; the result is always populated.
func (e *Engine) Run(ctx context.Context, req *BuildRequest) (*RunResult, error) {
	if req == nil || req.Manifest == nil {
		return nil, ErrNoManifest
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	r := e.start(KindBuild, req.Target, req.Manifest)
	r.logger.Info("run started",
		zap.String("target", string(req.Target)),
		zap.String("source_root", req.Manifest.Layout.SourceRoot),
		zap.Int("entries", len(req.Manifest.Entries)))

	var verifyErr error
	if req.Verify {
		verifyErr = r.hashEntries(false)
	}

	r.phases.mustEnter(PhasePreparing)
	defer r.restoreOnPanic()
	prepErr := r.prepare(ctx, req.prepares())

	var buildErr error
	if prepErr == nil {
		r.phases.mustEnter(PhaseBuilding)
		buildErr = r.build(ctx, req)
	} else {
		r.logger.Warn("skipping build after failed preparation", zap.Error(prepErr))
	}

	r.phases.mustEnter(PhaseRestoring)
	restoreErr := r.restore()

	if req.Verify && verifyErr == nil {
		verifyErr = r.hashEntries(true)
	}

	var pkgErr error
	if req.Package != nil {
		switch {
		case prepErr != nil || buildErr != nil || restoreErr != nil || verifyErr != nil:
			r.logger.Info("skipping packaging after failed run")
		case ctx.Err() != nil:
			pkgErr = fmt.Errorf("%w: packaging not started", ErrInterrupted)
		default:
			r.phases.mustEnter(PhasePackaging)
			res, err := r.invoke(ctx, stepPackage, *req.Package)
			r.result.Package = res
			pkgErr = err
		}
	}

	return r.finish(errors.Join(prepErr, buildErr, pkgErr, restoreErr, verifyErr))
}

// prepare quarantines every entry in manifest order and installs stubs for
// replace entries. A failed entry is recorded and the next one is attempted.
func (r *run) prepare(ctx context.Context, active bool) error {
	if !active {
		r.logger.Debug("target builds the tree as is; nothing to prepare")
		return nil
	}

	var failed []error
	for _, entry := range r.m.Entries {
		if ctx.Err() != nil {
			err := fmt.Errorf("%w: preparation stopped before %s", ErrInterrupted, entry.RelPath)
			failed = append(failed, err)
			break
		}

		if err := r.relocator.Quarantine(entry); err != nil {
			if relocate.IsMissingOptional(err) {
				r.mark(entry, StateSkipped, err)
				r.logger.Info("optional path absent", zap.String("path", entry.RelPath))
				continue
			}
			r.mark(entry, "", err)
			failed = append(failed, err)
			r.logger.Error("quarantine failed", zap.String("path", entry.RelPath), zap.Error(err))
			continue
		}

		if entry.Kind == manifest.KindReplace {
			if err := r.stubs.Install(entry); err != nil {
				r.mark(entry, "", err)
				failed = append(failed, err)
				r.logger.Error("stub install failed", zap.String("path", entry.RelPath), zap.Error(err))
			}
		}
	}

	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w (%d of %d entries): %w", ErrPreparationFailed, len(failed), len(r.m.Entries), failed[0])
}

func (r *run) build(ctx context.Context, req *BuildRequest) error {
	if req.CleanOutput && req.OutputDir != "" {
		r.logger.Debug("cleaning output directory", zap.String("dir", req.OutputDir))
		if err := r.e.fs.RemoveAll(req.OutputDir); err != nil {
			return fmt.Errorf("clean output directory %s: %w", req.OutputDir, err)
		}
	}
	res, err := r.invoke(ctx, stepBuild, req.Build)
	r.result.Build = res
	return err
}

func (r *run) invoke(ctx context.Context, step string, spec buildexec.Spec) (*buildexec.Result, error) {
	spec.Name = step
	r.logger.Info("invoking "+step, zap.String("command", spec.CommandLine()))

	res, err := r.e.invoker.Invoke(ctx, spec)
	if err != nil {
		return nil, &BuildError{Step: step, ExitCode: -1, Interrupted: ctx.Err() != nil, Err: err}
	}
	if !res.Success() {
		return res, &BuildError{
			Step:        step,
			ExitCode:    res.ExitCode,
			Output:      res.Output,
			Interrupted: res.Interrupted,
		}
	}
	return res, nil
}

// restore unwinds every quarantined entry, last quarantined first: stub
// removal, then the move back. It never stops early and never consults a
// context, so an interrupt cannot skip it.
func (r *run) restore() error {
	r.restoring = true
	var failed []error
	for _, src := range r.state.RestoreOrder() {
		entry := r.m.Entries[r.index[src]]

		if err := r.stubs.Uninstall(entry); err != nil {
			r.mark(entry, "", err)
			failed = append(failed, err)
			r.logger.Error("stub removal failed", zap.String("path", entry.RelPath), zap.Error(err))
			continue
		}
		if err := r.relocator.Restore(entry); err != nil {
			r.mark(entry, "", err)
			failed = append(failed, err)
			r.logger.Error("restore failed", zap.String("path", entry.RelPath), zap.Error(err))
			continue
		}
		r.mark(entry, StateRestored, nil)
	}

	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w (%d entries left out of place): %w", ErrRestorationFailed, len(failed), failed[0])
}

// restoreOnPanic restores the tree when a panic unwinds through a run that
// has not reached Restoring, then re-raises the panic.
func (r *run) restoreOnPanic() {
	p := recover()
	if p == nil {
		return
	}
	if !r.restoring {
		r.logger.Error("panic during run, restoring tree", zap.Any("panic", p))
		if err := r.phases.enter(PhaseRestoring); err != nil {
			r.logger.Warn("phase transition", zap.Error(err))
		}
		if err := r.restore(); err != nil {
			r.logger.Error("restore after panic", zap.Error(err))
		}
	}
	panic(p)
}

// hashEntries records the content digest of every entry, before the run or
// after restoration. After restoration, any difference is an error.
func (r *run) hashEntries(after bool) error {
	var mismatched []string
	for i, entry := range r.m.Entries {
		rep := &r.result.Entries[i]
		digest, err := r.e.hasher.HashTree(entry.SourcePath)
		if err != nil {
			return fmt.Errorf("%w: hash %s: %w", ErrVerificationFailed, entry.RelPath, err)
		}
		if !after {
			rep.HashBefore = digest
			continue
		}
		rep.HashAfter = digest
		if rep.HashBefore != rep.HashAfter {
			mismatched = append(mismatched, entry.RelPath)
			if rep.Err == nil {
				rep.Err = fmt.Errorf("%w: content differs from before the run", ErrVerificationFailed)
			}
		}
	}
	if len(mismatched) > 0 {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, mismatched)
	}
	return nil
}

// mark sets the state of entry (when state is non-empty) and records err as
// its first error.
func (r *run) mark(entry manifest.Entry, state EntryState, err error) {
	rep := &r.result.Entries[r.index[entry.SourcePath]]
	if state != "" {
		rep.State = state
	}
	if err != nil && rep.Err == nil {
		rep.Err = err
	}
}

func (r *run) finish(err error) (*RunResult, error) {
	r.phases.mustEnter(PhaseDone)

	res := r.result
	for i, entry := range r.m.Entries {
		rep := &res.Entries[i]
		switch st := r.state.Lookup(entry.SourcePath); {
		case st.StubInstalled:
			rep.State = StateStubInstalled
		case st.Quarantined:
			rep.State = StateQuarantined
		case rep.State == "":
			rep.State = StateUntouched
		}
	}

	res.FinishedAt = r.e.clock.Now()
	res.Phases = r.phases.visited
	res.PhaseDurations = r.phases.durations
	res.Err = err
	res.Outcome = OutcomeSuccess
	if err != nil {
		res.Outcome = OutcomeFailure
	}

	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, ErrInterrupted):
		outcome = metrics.OutcomeInterrupted
	case err != nil:
		outcome = metrics.OutcomeFailure
	}
	rec := r.e.recorder
	rec.ObserveRunDuration(res.Kind, res.Duration())
	rec.IncRunOutcome(res.Kind, outcome)
	for _, rep := range res.Entries {
		rec.IncEntryResult(string(rep.State))
	}
	rec.SetLastRun(res.Kind, res.FinishedAt)

	fields := []zap.Field{
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("duration", res.Duration()),
	}
	if left := res.Unrestored(); len(left) > 0 {
		fields = append(fields, zap.Int("unrestored", len(left)))
	}
	if err != nil {
		r.logger.Error("run finished", append(fields, zap.Error(err))...)
	} else {
		r.logger.Info("run finished", fields...)
	}
	return res, err
}
