package relocate

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/manifest"
)

// faultFS wraps RealFS and fails Move or RemoveAll for selected paths.
type faultFS struct {
	*fsops.RealFS
	failMove      map[string]error
	failRemoveAll map[string]error
}

func newFaultFS() *faultFS {
	return &faultFS{
		RealFS:        fsops.NewRealFS(),
		failMove:      make(map[string]error),
		failRemoveAll: make(map[string]error),
	}
}

func (f *faultFS) Move(src, dst string) error {
	if err, ok := f.failMove[src]; ok {
		return err
	}
	return f.RealFS.Move(src, dst)
}

func (f *faultFS) RemoveAll(path string) error {
	if err, ok := f.failRemoveAll[path]; ok {
		return err
	}
	return f.RealFS.RemoveAll(path)
}

type fixture struct {
	root       string
	quarantine string
	stubs      string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	base := t.TempDir()
	return fixture{
		root:       filepath.Join(base, "frontend"),
		quarantine: filepath.Join(base, ".frontend-quarantine"),
		stubs:      filepath.Join(base, "actions_stubs"),
	}
}

func (f fixture) entry(rel string, kind manifest.Kind, optional bool) manifest.Entry {
	e := manifest.Entry{
		RelPath:        rel,
		SourcePath:     filepath.Join(f.root, filepath.FromSlash(rel)),
		QuarantinePath: filepath.Join(f.quarantine, filepath.Base(rel)),
		Kind:           kind,
		Optional:       optional,
	}
	if kind == manifest.KindReplace {
		e.StubSourcePath = f.stubs
	}
	return e
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
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

func TestRelocator_QuarantineAndRestore(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, filepath.Join(fx.root, "src/app/api/route.ts"), "export const GET = 1")
	writeFile(t, filepath.Join(fx.root, "src/app/api/edge-flags/route.ts"), "export const POST = 2")
	writeFile(t, filepath.Join(fx.root, "src/app/page.tsx"), "page")
	before := snapshot(t, fx.root)

	state := NewState()
	r := NewRelocator(fsops.NewRealFS(), state, zaptest.NewLogger(t))
	entry := fx.entry("src/app/api", manifest.KindRemove, false)

	if err := r.Quarantine(entry); err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}
	if !state.IsQuarantined(entry.SourcePath) {
		t.Error("entry should be marked quarantined")
	}
	if _, err := os.Lstat(entry.SourcePath); !os.IsNotExist(err) {
		t.Errorf("source should be vacated, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(entry.QuarantinePath, "route.ts")); err != nil {
		t.Errorf("quarantine should hold the entry: %v", err)
	}

	if err := r.Restore(entry); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if state.IsQuarantined(entry.SourcePath) {
		t.Error("entry should no longer be quarantined")
	}
	if diff := cmp.Diff(before, snapshot(t, fx.root)); diff != "" {
		t.Errorf("tree changed after round trip (-before +after):\n%s", diff)
	}
}

func TestRelocator_MissingSource(t *testing.T) {
	tests := []struct {
		name     string
		optional bool
		wantErr  error
	}{
		{name: "optional entry", optional: true, wantErr: ErrMissingOptionalPath},
		{name: "required entry", optional: false, wantErr: ErrFilesystemOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			state := NewState()
			r := NewRelocator(fsops.NewRealFS(), state, zaptest.NewLogger(t))
			entry := fx.entry("src/app/agents/preview", manifest.KindRemove, tt.optional)

			err := r.Quarantine(entry)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Quarantine() error = %v, want %v", err, tt.wantErr)
			}
			if IsMissingOptional(err) != tt.optional {
				t.Errorf("IsMissingOptional() = %v, want %v", IsMissingOptional(err), tt.optional)
			}
			if state.Len() != 0 {
				t.Errorf("state should stay empty, got %v", state.Quarantined())
			}
		})
	}
}

func TestRelocator_DiscardsStaleQuarantine(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, filepath.Join(fx.root, "src/app/api/route.ts"), "current")
	entry := fx.entry("src/app/api", manifest.KindRemove, false)
	writeFile(t, filepath.Join(entry.QuarantinePath, "leftover.ts"), "crash artifact")

	r := NewRelocator(fsops.NewRealFS(), NewState(), zaptest.NewLogger(t))
	if err := r.Quarantine(entry); err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}

	want := map[string]string{"route.ts": "current"}
	if diff := cmp.Diff(want, snapshot(t, entry.QuarantinePath)); diff != "" {
		t.Errorf("quarantine content mismatch (-want +got):\n%s", diff)
	}
}

func TestRelocator_MoveFailureIsFatal(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, filepath.Join(fx.root, "src/app/api/route.ts"), "x")
	entry := fx.entry("src/app/api", manifest.KindRemove, true)

	ffs := newFaultFS()
	ffs.failMove[entry.SourcePath] = os.ErrPermission
	state := NewState()
	r := NewRelocator(ffs, state, zaptest.NewLogger(t))

	err := r.Quarantine(entry)
	if !errors.Is(err, ErrFilesystemOperation) {
		t.Fatalf("Quarantine() error = %v, want ErrFilesystemOperation", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("error should carry the cause, got %v", err)
	}
	if IsMissingOptional(err) {
		t.Error("a move failure must not look like a missing optional path")
	}
	if state.IsQuarantined(entry.SourcePath) {
		t.Error("failed move must not be recorded")
	}
	var relErr *Error
	if !errors.As(err, &relErr) || relErr.Op != "quarantine" || relErr.Path != "src/app/api" {
		t.Errorf("expected *Error for quarantine of src/app/api, got %#v", err)
	}
}

func TestRelocator_RestoreIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, filepath.Join(fx.root, "src/app/opengraph-image.tsx"), "og")
	entry := fx.entry("src/app/opengraph-image.tsx", manifest.KindRemove, false)

	r := NewRelocator(fsops.NewRealFS(), NewState(), zaptest.NewLogger(t))

	if err := r.Restore(entry); err != nil {
		t.Fatalf("Restore on untouched entry should be a no-op, got %v", err)
	}
	if err := r.Quarantine(entry); err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}
	if err := r.Restore(entry); err != nil {
		t.Fatalf("first Restore failed: %v", err)
	}
	if err := r.Restore(entry); err != nil {
		t.Fatalf("second Restore should be a no-op, got %v", err)
	}

	data, err := os.ReadFile(entry.SourcePath)
	if err != nil || string(data) != "og" {
		t.Errorf("restored file = %q, %v", data, err)
	}
}

func TestRelocator_RestoreKeepsSourceWhenQuarantineLost(t *testing.T) {
	fx := newFixture(t)
	writeFile(t, filepath.Join(fx.root, "src/lib/actions/threads.ts"), "original")
	entry := fx.entry("src/lib/actions", manifest.KindRemove, false)

	state := NewState()
	r := NewRelocator(fsops.NewRealFS(), state, zaptest.NewLogger(t))
	if err := r.Quarantine(entry); err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}
	writeFile(t, filepath.Join(entry.SourcePath, "placeholder.ts"), "something")
	if err := os.RemoveAll(entry.QuarantinePath); err != nil {
		t.Fatalf("failed to remove quarantine: %v", err)
	}

	err := r.Restore(entry)
	if !errors.Is(err, ErrRestorationFailed) {
		t.Fatalf("Restore() error = %v, want ErrRestorationFailed", err)
	}
	if _, statErr := os.Stat(filepath.Join(entry.SourcePath, "placeholder.ts")); statErr != nil {
		t.Errorf("source content must not be discarded when nothing can replace it: %v", statErr)
	}
	if !state.IsQuarantined(entry.SourcePath) {
		t.Error("failed restore must leave the entry marked quarantined")
	}
}

func TestRelocator_Adopt(t *testing.T) {
	fx := newFixture(t)
	removeEntry := fx.entry("src/app/api", manifest.KindRemove, false)
	replaceEntry := fx.entry("src/lib/actions", manifest.KindReplace, false)
	untouched := fx.entry("src/app/auth/callback", manifest.KindRemove, true)

	writeFile(t, filepath.Join(removeEntry.QuarantinePath, "route.ts"), "api")
	writeFile(t, filepath.Join(replaceEntry.QuarantinePath, "threads.ts"), "real actions")
	writeFile(t, filepath.Join(replaceEntry.SourcePath, "threads.ts"), "stub actions")

	state := NewState()
	r := NewRelocator(fsops.NewRealFS(), state, zaptest.NewLogger(t))
	stubs := NewStubInstaller(fsops.NewRealFS(), state, zaptest.NewLogger(t))

	for _, e := range []manifest.Entry{removeEntry, replaceEntry, untouched} {
		if _, err := r.Adopt(e); err != nil {
			t.Fatalf("Adopt(%s) failed: %v", e.RelPath, err)
		}
	}
	if got := state.Len(); got != 2 {
		t.Fatalf("adopted %d entries, want 2", got)
	}
	if !state.StubInstalled(replaceEntry.SourcePath) {
		t.Error("occupied replace entry should be adopted with its stub")
	}

	for _, src := range state.RestoreOrder() {
		e := removeEntry
		if src == replaceEntry.SourcePath {
			e = replaceEntry
		}
		if err := stubs.Uninstall(e); err != nil {
			t.Fatalf("Uninstall failed: %v", err)
		}
		if err := r.Restore(e); err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
	}

	want := map[string]string{
		"src/app/api/route.ts":       "api",
		"src/lib/actions/threads.ts": "real actions",
	}
	if diff := cmp.Diff(want, snapshot(t, fx.root)); diff != "" {
		t.Errorf("recovered tree mismatch (-want +got):\n%s", diff)
	}
}
