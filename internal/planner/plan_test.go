package planner

import (
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danieljhkim/dualbuild/internal/manifest"
)

// mockFS is a mock implementation of fsops.FS for testing
type mockFS struct {
	exists    map[string]bool
	existsErr map[string]error
}

func newMockFS() *mockFS {
	return &mockFS{
		exists:    make(map[string]bool),
		existsErr: make(map[string]error),
	}
}

func (m *mockFS) setExists(paths ...string) {
	for _, p := range paths {
		m.exists[p] = true
	}
}

func (m *mockFS) Exists(path string) (bool, error) {
	if err, ok := m.existsErr[path]; ok {
		return false, err
	}
	return m.exists[path], nil
}

// Unused methods for mockFS
func (m *mockFS) Lstat(path string) (os.FileInfo, error)                       { return nil, os.ErrNotExist }
func (m *mockFS) MkdirAll(path string, perm os.FileMode) error                 { return nil }
func (m *mockFS) Remove(path string) error                                     { return nil }
func (m *mockFS) RemoveAll(path string) error                                  { return nil }
func (m *mockFS) Move(src, dst string) error                                   { return nil }
func (m *mockFS) Copy(src, dst string) error                                   { return nil }
func (m *mockFS) AtomicWrite(path string, data []byte, perm os.FileMode) error { return nil }
func (m *mockFS) ReadFile(path string) ([]byte, error)                         { return nil, nil }
func (m *mockFS) ValidateRelPath(relPath string) error                         { return nil }

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Version: manifest.CurrentVersion,
		Entries: []manifest.Entry{
			{
				RelPath:        "src/app/api",
				SourcePath:     "/w/frontend/src/app/api",
				QuarantinePath: "/w/q/src__app__api",
				Kind:           manifest.KindRemove,
			},
			{
				RelPath:        "src/app/agents/preview",
				SourcePath:     "/w/frontend/src/app/agents/preview",
				QuarantinePath: "/w/q/src__app__agents__preview",
				Kind:           manifest.KindRemove,
				Optional:       true,
			},
			{
				RelPath:        "src/lib/actions",
				SourcePath:     "/w/frontend/src/lib/actions",
				QuarantinePath: "/w/q/src__lib__actions",
				Kind:           manifest.KindReplace,
				StubSourcePath: "/w/actions_stubs",
			},
		},
	}
}

func TestBuildPreparePlan(t *testing.T) {
	fs := newMockFS()
	fs.setExists("/w/frontend/src/app/api", "/w/frontend/src/lib/actions", "/w/actions_stubs")

	plan, err := BuildPreparePlan(testManifest(), fs)
	if err != nil {
		t.Fatalf("BuildPreparePlan failed: %v", err)
	}

	wantOps := []Operation{
		{Type: OpQuarantine, RelPath: "src/app/api", SourcePath: "/w/frontend/src/app/api", DestPath: "/w/q/src__app__api"},
		{Type: OpQuarantine, RelPath: "src/lib/actions", SourcePath: "/w/frontend/src/lib/actions", DestPath: "/w/q/src__lib__actions"},
		{Type: OpInstallStub, RelPath: "src/lib/actions", SourcePath: "/w/actions_stubs", DestPath: "/w/frontend/src/lib/actions"},
	}
	if diff := cmp.Diff(wantOps, plan.Operations); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Skip{{RelPath: "src/app/agents/preview", Reason: "not present in this checkout"}}, plan.Skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
	if plan.HasProblems() {
		t.Errorf("unexpected problems: %v", plan.Problems)
	}

	wantRestore := []Operation{
		{Type: OpUninstallStub, RelPath: "src/lib/actions", SourcePath: "/w/frontend/src/lib/actions"},
		{Type: OpRestore, RelPath: "src/lib/actions", SourcePath: "/w/q/src__lib__actions", DestPath: "/w/frontend/src/lib/actions"},
		{Type: OpRestore, RelPath: "src/app/api", SourcePath: "/w/q/src__app__api", DestPath: "/w/frontend/src/app/api"},
	}
	if diff := cmp.Diff(wantRestore, plan.RestoreSequence()); diff != "" {
		t.Errorf("restore sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPreparePlan_Problems(t *testing.T) {
	tests := []struct {
		name         string
		exists       []string
		wantProblems []string
		wantWarnings []string
	}{
		{
			name:         "missing required path",
			exists:       []string{"/w/frontend/src/lib/actions", "/w/actions_stubs"},
			wantProblems: []string{"src/app/api"},
		},
		{
			name:         "missing stub",
			exists:       []string{"/w/frontend/src/app/api", "/w/frontend/src/lib/actions"},
			wantProblems: []string{"src/lib/actions"},
		},
		{
			name:         "stale quarantine",
			exists:       []string{"/w/frontend/src/app/api", "/w/q/src__app__api", "/w/frontend/src/lib/actions", "/w/actions_stubs"},
			wantWarnings: []string{"src/app/api"},
		},
		{
			name:   "stale quarantine of absent optional path is ignored",
			exists: []string{"/w/frontend/src/app/api", "/w/q/src__app__agents__preview", "/w/frontend/src/lib/actions", "/w/actions_stubs"},
		},
	}

	paths := func(ps []Problem) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Path)
		}
		return out
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newMockFS()
			fs.setExists(tt.exists...)

			plan, err := BuildPreparePlan(testManifest(), fs)
			if err != nil {
				t.Fatalf("BuildPreparePlan failed: %v", err)
			}
			if diff := cmp.Diff(tt.wantProblems, paths(plan.Problems)); diff != "" {
				t.Errorf("problems mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantWarnings, paths(plan.Warnings)); diff != "" {
				t.Errorf("warnings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildPreparePlan_FilesystemError(t *testing.T) {
	fs := newMockFS()
	fs.existsErr["/w/frontend/src/app/api"] = os.ErrPermission

	_, err := BuildPreparePlan(testManifest(), fs)
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("BuildPreparePlan() error = %v, want os.ErrPermission", err)
	}
}

func TestPreparePlan_Empty(t *testing.T) {
	plan := NewPreparePlan()

	if plan.HasProblems() {
		t.Error("empty plan should have no problems")
	}
	if seq := plan.RestoreSequence(); len(seq) != 0 {
		t.Errorf("empty plan should restore nothing, got %v", seq)
	}

	plan.AddProblem(Problem{Path: "src/app/api", Reason: "missing"})
	if !plan.HasProblems() {
		t.Error("HasProblems() = false after AddProblem")
	}
}
