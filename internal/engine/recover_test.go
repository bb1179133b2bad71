package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danieljhkim/dualbuild/internal/manifest"
	"github.com/danieljhkim/dualbuild/internal/planner"
)

const recoverManifest = `
entries:
  - path: src/app/api
    kind: remove
  - path: src/lib/actions
    kind: replace
    stubPath: ../actions_stubs
  - path: src/app/auth/callback
    kind: remove
    optional: true
`

// leftover simulates a run killed mid-build: entries moved to quarantine and
// the stub copied into place.
func leftover(t *testing.T, tr tree, m *manifest.Manifest) {
	t.Helper()
	for _, e := range m.Entries {
		if !exists(e.SourcePath) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(e.QuarantinePath), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(e.SourcePath, e.QuarantinePath); err != nil {
			t.Fatal(err)
		}
		if e.Kind == manifest.KindReplace {
			writeAt(t, filepath.Join(e.SourcePath, "threads.ts"), "stub actions")
		}
	}
}

func TestRecover_RestoresLeftovers(t *testing.T) {
	tr := newTree(t)
	tr.write(t, "src/app/api/route.ts", "api")
	tr.write(t, "src/lib/actions/threads.ts", "real actions")
	tr.write(t, "src/app/page.tsx", "page")
	before := snapshot(t, tr.root)

	m := tr.manifest(t, recoverManifest)
	leftover(t, tr, m)

	fsys := newMoveLog()
	eng := newTestEngine(t, fsys, &fakeInvoker{})
	res, err := eng.Recover(context.Background(), &RecoverRequest{Manifest: m})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if diff := cmp.Diff(before, snapshot(t, tr.root)); diff != "" {
		t.Errorf("tree not recovered (-want +got):\n%s", diff)
	}
	want := map[string]EntryState{
		"src/app/api":           StateRestored,
		"src/lib/actions":       StateRestored,
		"src/app/auth/callback": StateUntouched,
	}
	if diff := cmp.Diff(want, entryStates(res)); diff != "" {
		t.Errorf("entry states (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Phase{PhaseIdle, PhaseRestoring, PhaseDone}, res.Phases); diff != "" {
		t.Errorf("phases (-want +got):\n%s", diff)
	}
	// Reverse manifest order: actions before api.
	if len(fsys.moves) != 2 || fsys.moves[0][1] != m.Entries[1].SourcePath || fsys.moves[1][1] != m.Entries[0].SourcePath {
		t.Errorf("moves = %v", fsys.moves)
	}
	if res.Kind != KindRecover {
		t.Errorf("Kind = %s", res.Kind)
	}
}

func TestRecover_CleanTreeIsNoop(t *testing.T) {
	tr := newTree(t)
	tr.write(t, "src/app/api/route.ts", "api")
	m := tr.manifest(t, recoverManifest)

	fsys := newMoveLog()
	res, err := newTestEngine(t, fsys, &fakeInvoker{}).Recover(context.Background(), &RecoverRequest{Manifest: m})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(fsys.moves) != 0 {
		t.Errorf("moves = %v", fsys.moves)
	}
	for _, e := range res.Entries {
		if e.State != StateUntouched {
			t.Errorf("%s: state %s", e.Path, e.State)
		}
	}
}

func TestRecover_SelectedPaths(t *testing.T) {
	tr := newTree(t)
	tr.write(t, "src/app/api/route.ts", "api")
	tr.write(t, "src/lib/actions/threads.ts", "real actions")
	m := tr.manifest(t, recoverManifest)
	leftover(t, tr, m)

	eng := newTestEngine(t, newMoveLog(), &fakeInvoker{})
	res, err := eng.Recover(context.Background(), &RecoverRequest{
		Manifest: m,
		Paths:    []string{"api"},
		CWD:      tr.path("src/app"),
	})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	states := entryStates(res)
	if states["src/app/api"] != StateRestored || states["src/lib/actions"] != StateUntouched {
		t.Errorf("states = %v", states)
	}
	if !exists(m.Entries[1].QuarantinePath) {
		t.Error("unselected entry must stay in quarantine")
	}

	_, err = eng.Recover(context.Background(), &RecoverRequest{Manifest: m, Paths: []string{"src/app/page.tsx"}, CWD: tr.root})
	if !errors.Is(err, manifest.ErrUnknownEntry) {
		t.Errorf("err = %v, want ErrUnknownEntry", err)
	}
	_, err = eng.Recover(context.Background(), &RecoverRequest{Manifest: m, Paths: []string{"../elsewhere"}, CWD: tr.root})
	if err == nil {
		t.Error("expected error for a path outside the source root")
	}
}

func TestPlan(t *testing.T) {
	tr := newTree(t)
	tr.write(t, "src/app/api/route.ts", "api")
	tr.write(t, "src/lib/actions/threads.ts", "real actions")
	writeAt(t, filepath.Join(tr.base, "actions_stubs", "threads.ts"), "stub")
	m := tr.manifest(t, recoverManifest)

	plan, err := newTestEngine(t, newMoveLog(), &fakeInvoker{}).Plan(&PlanRequest{Manifest: m})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	var types []string
	for _, op := range plan.Operations {
		types = append(types, op.Type+" "+op.RelPath)
	}
	want := []string{
		planner.OpQuarantine + " src/app/api",
		planner.OpQuarantine + " src/lib/actions",
		planner.OpInstallStub + " src/lib/actions",
	}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Errorf("operations (-want +got):\n%s", diff)
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0].RelPath != "src/app/auth/callback" {
		t.Errorf("skipped = %+v", plan.Skipped)
	}
	if plan.HasProblems() {
		t.Errorf("problems = %+v", plan.Problems)
	}
}

func TestPhaseTable(t *testing.T) {
	pt := newPhaseTracker(newTestEngine(t, newMoveLog(), &fakeInvoker{}).clock, newCountingRecorder())
	if err := pt.enter(PhaseBuilding); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("idle -> building: err = %v", err)
	}
	for _, p := range []Phase{PhasePreparing, PhaseRestoring, PhaseDone} {
		if err := pt.enter(p); err != nil {
			t.Fatalf("enter %s: %v", p, err)
		}
	}
	if err := pt.enter(PhasePreparing); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("done -> preparing: err = %v", err)
	}
}
