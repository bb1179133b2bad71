package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danieljhkim/dualbuild/internal/buildexec"
	"github.com/danieljhkim/dualbuild/internal/config"
	"github.com/danieljhkim/dualbuild/internal/engine"
	"github.com/danieljhkim/dualbuild/internal/metrics"
	"github.com/danieljhkim/dualbuild/internal/variant"
)

func entryStates(res *engine.RunResult) map[string]engine.EntryState {
	out := make(map[string]engine.EntryState, len(res.Entries))
	for _, e := range res.Entries {
		out[e.Path] = e.State
	}
	return out
}

func TestBuild_ElectronRoundTrip(t *testing.T) {
	f := newFixture(t)
	before := f.snapshot(t)

	// The build sees the prepared tree and records it.
	spec := f.shell(`set -e
test ! -e src/app/api
test ! -e src/app/opengraph-image.tsx
test ! -e src/lib/actions/teams.ts
grep -q "web only" src/lib/actions/index.ts
mkdir -p out
ls src/app > out/app-listing.txt`)

	res, err := newEngine(t, nil).Run(context.Background(), &engine.BuildRequest{
		Manifest:    f.manifest(t, standardManifest),
		Target:      variant.TargetElectron,
		Build:       spec,
		OutputDir:   f.path("out"),
		CleanOutput: true,
		Verify:      true,
	})
	require.NoError(t, err)
	require.True(t, res.Success())

	assert.Equal(t, []engine.Phase{
		engine.PhaseIdle, engine.PhasePreparing, engine.PhaseBuilding, engine.PhaseRestoring, engine.PhaseDone,
	}, res.Phases)
	assert.Equal(t, map[string]engine.EntryState{
		"src/app/api":                 engine.StateRestored,
		"src/app/opengraph-image.tsx": engine.StateRestored,
		"src/lib/actions":             engine.StateRestored,
		"src/app/agents/preview":      engine.StateSkipped,
	}, entryStates(res))
	require.NotNil(t, res.Build)
	assert.Equal(t, 0, res.Build.ExitCode)

	after := f.snapshot(t)
	listing := after["out/app-listing.txt"]
	delete(after, "out/app-listing.txt")
	assert.Equal(t, before, after, "tree differs after the run")
	assert.Equal(t, "page.tsx\n", listing)

	entries, err := os.ReadDir(f.quarantineDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "quarantine still holds entries")
}

func TestBuild_MissingStubSkipsBuild(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(filepath.Join(f.base, "stubs")))
	before := f.snapshot(t)

	marker := filepath.Join(f.base, "build-ran")
	res, err := newEngine(t, nil).Run(context.Background(), &engine.BuildRequest{
		Manifest: f.manifest(t, standardManifest),
		Target:   variant.TargetElectron,
		Build:    f.shell("touch " + marker),
	})
	require.ErrorIs(t, err, engine.ErrPreparationFailed)
	assert.False(t, res.Success())
	assert.False(t, exists(marker), "build ran after failed preparation")
	assert.Nil(t, res.Build)
	assert.NotContains(t, res.Phases, engine.PhaseBuilding)

	assert.Equal(t, before, f.snapshot(t))
	assert.Empty(t, res.Unrestored())
}

func TestBuild_FailingBuildRestoresAndReportsTail(t *testing.T) {
	f := newFixture(t)
	before := f.snapshot(t)

	res, err := newEngine(t, nil).Run(context.Background(), &engine.BuildRequest{
		Manifest: f.manifest(t, standardManifest),
		Target:   variant.TargetElectron,
		Build:    f.shell("echo 'Error: Page /api/teams cannot be exported' >&2; exit 2"),
	})
	require.ErrorIs(t, err, engine.ErrBuildToolFailed)

	var buildErr *engine.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, 2, buildErr.ExitCode)
	assert.Contains(t, buildErr.Output, "cannot be exported")

	assert.Equal(t, before, f.snapshot(t))
	assert.Equal(t, engine.StateRestored, entryStates(res)["src/app/api"])
}

func TestBuild_InterruptRestoresTree(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f := newFixture(t)
	before := f.snapshot(t)
	started := filepath.Join(f.base, "started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for !exists(started) {
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()

	begin := time.Now()
	res, err := newEngine(t, nil).Run(ctx, &engine.BuildRequest{
		Manifest: f.manifest(t, standardManifest),
		Target:   variant.TargetElectron,
		Build:    f.shell("touch " + started + "; exec sleep 30"),
	})
	require.ErrorIs(t, err, engine.ErrInterrupted)
	assert.Less(t, time.Since(begin), 15*time.Second)
	require.NotNil(t, res.Build)
	assert.True(t, res.Build.Interrupted)

	assert.Contains(t, res.Phases, engine.PhaseRestoring)
	assert.Equal(t, before, f.snapshot(t))
}

func TestBuild_WebTargetLeavesTreeAlone(t *testing.T) {
	f := newFixture(t)
	before := f.snapshot(t)

	tc := variant.NewBuildTargetConfig(variant.TargetWeb, nil, []string{"src/client"})
	spec := f.shell(`set -e
test -e src/app/api/teams/route.ts
test -e src/lib/actions/teams.ts
mkdir -p out
echo "$DUALBUILD_TARGET $DUALBUILD_EXCLUDED_SUBTREES" > out/target.txt`)
	spec.Env = tc.Environ()

	res, err := newEngine(t, nil).Run(context.Background(), &engine.BuildRequest{
		Manifest: f.manifest(t, standardManifest),
		Target:   variant.TargetWeb,
		Build:    spec,
	})
	require.NoError(t, err)
	for path, state := range entryStates(res) {
		assert.Equal(t, engine.StateUntouched, state, path)
	}

	after := f.snapshot(t)
	assert.Equal(t, "web src/client\n", after["out/target.txt"])
	delete(after, "out/target.txt")
	assert.Equal(t, before, after)
}

func TestBuild_PackagingRunsAfterRestore(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()
	cfg.Package.Command = "sh"
	cfg.Package.Args = []string{"-c", `test -e src/app/api && echo "$0 $1" > packaged.txt`, "electron-builder"}

	pkg := buildexec.Spec{
		Name:    "package",
		Command: cfg.Package.Command,
		Args:    cfg.PackageArgs("linux"),
		Dir:     f.root,
	}
	res, err := newEngine(t, nil).Run(context.Background(), &engine.BuildRequest{
		Manifest: f.manifest(t, standardManifest),
		Target:   variant.TargetElectron,
		Build:    f.shell("exit 0"),
		Package:  &pkg,
	})
	require.NoError(t, err)
	assert.Equal(t, engine.PhasePackaging, res.Phases[len(res.Phases)-2])

	data, err := os.ReadFile(f.path("packaged.txt"))
	require.NoError(t, err)
	assert.Equal(t, "electron-builder --linux", strings.TrimSpace(string(data)))
}

func TestBuild_MetricsTextfile(t *testing.T) {
	f := newFixture(t)
	rec := metrics.NewPrometheusRecorder(nil)

	_, err := newEngine(t, rec).Run(context.Background(), &engine.BuildRequest{
		Manifest: f.manifest(t, standardManifest),
		Target:   variant.TargetElectron,
		Build:    f.shell("exit 0"),
	})
	require.NoError(t, err)

	path := filepath.Join(f.base, "metrics", "dualbuild.prom")
	require.NoError(t, rec.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, `dualbuild_run_outcomes_total{kind="build",outcome="success"} 1`)
	assert.Contains(t, text, `dualbuild_entry_results_total{state="restored"} 3`)
	assert.Contains(t, text, `dualbuild_entry_results_total{state="skipped"} 1`)
	assert.Contains(t, text, "dualbuild_phase_duration_seconds")
}
