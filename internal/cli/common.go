package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/danieljhkim/dualbuild/internal/buildexec"
	"github.com/danieljhkim/dualbuild/internal/clock"
	"github.com/danieljhkim/dualbuild/internal/config"
	"github.com/danieljhkim/dualbuild/internal/engine"
	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/gitx"
	"github.com/danieljhkim/dualbuild/internal/hash"
	"github.com/danieljhkim/dualbuild/internal/history"
	"github.com/danieljhkim/dualbuild/internal/manifest"
	"github.com/danieljhkim/dualbuild/internal/metrics"
	"github.com/danieljhkim/dualbuild/internal/runlock"
	"github.com/danieljhkim/dualbuild/internal/variant"
)

// session is the resolved configuration for one command invocation.
type session struct {
	cfg      *config.Config
	cfgPath  string
	cfgFound bool
	target   config.TargetSelection
}

// loadSession loads the configuration for the directory named by --root (or
// the working directory) and resolves the build target.
func loadSession() (*session, error) {
	root := rootDir
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		root = cwd
	}

	cfg, path, found, err := config.Load(configPath, root)
	if err != nil {
		return nil, err
	}

	l, err := newLogger(cfg.Logging.Format, cfg.Logging.Level, verbose)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger = l

	sel, err := config.ResolveTarget(targetFlag, cfg.Paths.SourceRoot, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if !sel.Recognized {
		logger.Warn("unrecognized build target, using web",
			zap.String("value", sel.Raw),
			zap.String("source", string(sel.Source)))
	}
	logger.Debug("configuration loaded",
		zap.String("config", path),
		zap.Bool("config_found", found),
		zap.String("source_root", cfg.Paths.SourceRoot),
		zap.String("target", string(sel.Target)),
		zap.String("target_source", string(sel.Source)))

	return &session{cfg: cfg, cfgPath: path, cfgFound: found, target: sel}, nil
}

// loadManifest reads the configured manifest. When required is false a
// missing manifest yields an empty one.
func (s *session) loadManifest(required bool) (*manifest.Manifest, error) {
	m, err := manifest.Load(s.cfg.Paths.Manifest, s.cfg.Layout())
	if err == nil {
		return m, nil
	}
	if !required && errors.Is(err, manifest.ErrNotFound) {
		logger.Debug("no manifest, building with an untouched tree", zap.String("path", s.cfg.Paths.Manifest))
		return &manifest.Manifest{Version: manifest.CurrentVersion, Layout: s.cfg.Layout()}, nil
	}
	return nil, err
}

// targetConfig derives the module resolution configuration for the session target.
func (s *session) targetConfig() variant.BuildTargetConfig {
	return s.cfg.TargetConfig(s.target.Target)
}

// newEngine creates a new engine with real implementations of all dependencies.
func (s *session) newEngine(rec metrics.Recorder) *engine.Engine {
	clk := &clock.RealClock{}
	invoker := buildexec.NewCommandInvoker(logger.Named("buildexec"),
		buildexec.WithGracePeriod(s.cfg.GracePeriod()),
		buildexec.WithTailLines(s.cfg.Build.OutputTailLines),
		buildexec.WithClock(clk))

	return engine.New(
		fsops.NewRealFS(),
		invoker,
		hash.NewSHA256Hasher(),
		clk,
		engine.WithRecorder(rec),
		engine.WithLogger(logger.Named("engine")),
	)
}

// acquireLock takes the per-tree run lock.
func (s *session) acquireLock() (*runlock.Lock, error) {
	paths := s.cfg.StatePaths()
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	repo := gitx.NewRealGitRepo()
	fp, err := repo.Fingerprint(s.cfg.Paths.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("fingerprint source tree: %w", err)
	}
	lock, err := runlock.Acquire(paths.Locks, fp)
	if err != nil {
		return nil, err
	}
	logger.Debug("run lock acquired",
		zap.String("path", lock.Path()),
		zap.String("head", repo.Head(s.cfg.Paths.SourceRoot)))
	return lock, nil
}

// recorder returns the metrics recorder for one run and a flush function
// that writes the textfile when one is configured.
func (s *session) recorder() (metrics.Recorder, func()) {
	if s.cfg.Metrics.Textfile == "" {
		return metrics.NoopRecorder{}, func() {}
	}
	rec := metrics.NewPrometheusRecorder(nil)
	return rec, func() {
		if err := rec.WriteTextfile(s.cfg.Metrics.Textfile); err != nil {
			logger.Warn("metrics export failed", zap.Error(err))
		}
	}
}

// recordHistory stores res in the run history. Failures are logged, never
// returned: history must not change a run's outcome.
func (s *session) recordHistory(ctx context.Context, res *engine.RunResult) {
	if res == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	store, err := history.Open(ctx, s.cfg.StatePaths().History)
	if err != nil {
		logger.Warn("open run history", zap.Error(err))
		return
	}
	defer store.Close()

	if err := store.Record(ctx, toHistoryRun(res)); err != nil {
		logger.Warn("record run history", zap.Error(err))
		return
	}
	logger.Debug("run recorded", zap.String("run_id", res.RunID), zap.String("db", store.Path()))
}

func toHistoryRun(res *engine.RunResult) history.Run {
	run := history.Run{
		ID:         res.RunID,
		Kind:       res.Kind,
		Target:     string(res.Target),
		SourceRoot: res.SourceRoot,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Outcome:    string(res.Outcome),
		ExitCode:   res.ExitCode(),
		Error:      res.ErrorMessage(),
	}
	for _, p := range res.Phases {
		run.Phases = append(run.Phases, string(p))
	}
	for _, e := range res.Entries {
		run.Entries = append(run.Entries, history.Entry{
			Path:  e.Path,
			State: string(e.State),
			Error: e.ErrorMessage(),
		})
	}
	return run
}

// formatJSON formats a value as JSON.
func formatJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// formatError formats an error for display.
func formatError(err error) string {
	return errorColor.Sprintf("Error: %v", err)
}

// outputJSON outputs a value as JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
