// Package engine orchestrates dualbuild runs.
//
// The engine sits between the CLI and the leaf packages. A build run walks a
// fixed phase table: it prepares the source tree from the manifest
// (quarantine, then stub install), invokes the build tool only when every
// entry was prepared, and always restores whatever it touched in reverse
// order before reporting. Recovery reuses the same restore phase for trees
// left quarantined by a run that died.
//
// Key components:
//   - Engine: holds the injected filesystem, invoker, hasher, clock and recorder
//   - Run: the Idle → Preparing → Building → Restoring → Done sequence
//   - Recover: adopt leftovers from disk and restore them
//   - Plan: dry-run preparation plan for a manifest
package engine

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danieljhkim/dualbuild/internal/buildexec"
	"github.com/danieljhkim/dualbuild/internal/clock"
	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/hash"
	"github.com/danieljhkim/dualbuild/internal/metrics"
	"github.com/danieljhkim/dualbuild/internal/planner"
)

// Engine orchestrates all dualbuild operations.
// It is the main API surface called by the CLI.
type Engine struct {
	fs       fsops.FS
	invoker  buildexec.Invoker
	hasher   hash.Hasher
	clock    clock.Clock
	recorder metrics.Recorder
	logger   *zap.Logger
	newID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithLogger injects a logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIDGenerator replaces the run ID source.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// New creates a new Engine with the given dependencies.
func New(
	fs fsops.FS,
	invoker buildexec.Invoker,
	hasher hash.Hasher,
	clk clock.Clock,
	opts ...Option,
) *Engine {
	e := &Engine{
		fs:       fs,
		invoker:  invoker,
		hasher:   hasher,
		clock:    clk,
		recorder: metrics.NoopRecorder{},
		logger:   zap.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Plan computes what preparation would do for req.Manifest without
// touching the tree.
func (e *Engine) Plan(req *PlanRequest) (*planner.PreparePlan, error) {
	if req == nil || req.Manifest == nil {
		return nil, ErrNoManifest
	}
	return planner.BuildPreparePlan(req.Manifest, e.fs)
}
