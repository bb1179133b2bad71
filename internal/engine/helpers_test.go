package engine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/danieljhkim/dualbuild/internal/buildexec"
	"github.com/danieljhkim/dualbuild/internal/clock"
	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/hash"
	"github.com/danieljhkim/dualbuild/internal/manifest"
	"github.com/danieljhkim/dualbuild/internal/metrics"
)

// moveLog wraps RealFS, records every Move and can fail selected ones.
type moveLog struct {
	*fsops.RealFS
	mu    sync.Mutex
	moves [][2]string
	fail  map[string]error
}

func newMoveLog() *moveLog {
	return &moveLog{RealFS: fsops.NewRealFS(), fail: make(map[string]error)}
}

func (m *moveLog) Move(src, dst string) error {
	m.mu.Lock()
	m.moves = append(m.moves, [2]string{src, dst})
	err, failing := m.fail[src]
	m.mu.Unlock()
	if failing {
		return err
	}
	return m.RealFS.Move(src, dst)
}

// fakeInvoker records specs and runs an optional hook in place of a process.
type fakeInvoker struct {
	calls []buildexec.Spec
	hook  func(ctx context.Context, spec buildexec.Spec) (*buildexec.Result, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, spec buildexec.Spec) (*buildexec.Result, error) {
	f.calls = append(f.calls, spec)
	if f.hook != nil {
		return f.hook(ctx, spec)
	}
	return &buildexec.Result{ExitCode: 0}, nil
}

func (f *fakeInvoker) steps() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c.Name)
	}
	return out
}

// countingRecorder counts run outcomes and entry results.
type countingRecorder struct {
	metrics.NoopRecorder
	outcomes map[metrics.OutcomeLabel]int
	entries  map[string]int
	phases   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		outcomes: map[metrics.OutcomeLabel]int{},
		entries:  map[string]int{},
		phases:   map[string]int{},
	}
}

func (c *countingRecorder) IncRunOutcome(_ string, o metrics.OutcomeLabel) { c.outcomes[o]++ }
func (c *countingRecorder) IncEntryResult(state string)                    { c.entries[state]++ }
func (c *countingRecorder) ObservePhaseDuration(phase string, _ time.Duration) {
	c.phases[phase]++
}

type tree struct {
	base string
	root string
}

func newTree(t *testing.T) tree {
	t.Helper()
	base := t.TempDir()
	return tree{base: base, root: filepath.Join(base, "frontend")}
}

func (tr tree) path(rel string) string {
	return filepath.Join(tr.root, filepath.FromSlash(rel))
}

func (tr tree) write(t *testing.T, rel, content string) {
	t.Helper()
	writeAt(t, tr.path(rel), content)
}

func (tr tree) manifest(t *testing.T, yaml string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(yaml), manifest.Layout{SourceRoot: tr.root})
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	return m
}

func writeAt(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// snapshot maps every regular file under root to its content.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("failed to snapshot %s: %v", root, err)
	}
	return out
}

func newTestEngine(t *testing.T, fsys fsops.FS, inv buildexec.Invoker, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithLogger(zaptest.NewLogger(t)),
		WithIDGenerator(func() string { return "run-1" }),
	}
	return New(fsys, inv, hash.NewSHA256Hasher(),
		clock.NewSteppingClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), time.Second),
		append(base, opts...)...)
}

func entryStates(res *RunResult) map[string]EntryState {
	out := make(map[string]EntryState, len(res.Entries))
	for _, e := range res.Entries {
		out[e.Path] = e.State
	}
	return out
}
