package integration

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/danieljhkim/dualbuild/internal/buildexec"
	"github.com/danieljhkim/dualbuild/internal/clock"
	"github.com/danieljhkim/dualbuild/internal/engine"
	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/hash"
	"github.com/danieljhkim/dualbuild/internal/manifest"
	"github.com/danieljhkim/dualbuild/internal/metrics"
)

// standardManifest covers every entry shape: a required directory, a
// required file, a replace entry with a stub tree, and an optional path
// that is absent from the checkout.
const standardManifest = `version: 1
entries:
  - path: src/app/api
    kind: remove
    reason: route handlers
  - path: src/app/opengraph-image.tsx
    kind: remove
  - path: src/lib/actions
    kind: replace
    stubPath: ../stubs/actions
  - path: src/app/agents/preview
    kind: remove
    optional: true
`

// fixture is a source tree on disk with its sibling stub directory.
type fixture struct {
	base string
	root string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{base: base, root: filepath.Join(base, "app")}

	f.write(t, "package.json", `{"name":"app"}`)
	f.write(t, "src/app/page.tsx", "export default function Page() {}\n")
	f.write(t, "src/app/api/teams/route.ts", "export async function GET() {}\n")
	f.write(t, "src/app/api/auth/route.ts", "export async function POST() {}\n")
	f.write(t, "src/app/opengraph-image.tsx", "export default function Image() {}\n")
	f.write(t, "src/lib/actions/index.ts", "'use server'\nexport async function save() {}\n")
	f.write(t, "src/lib/actions/teams.ts", "'use server'\n")
	f.write(t, "../stubs/actions/index.ts", "export async function save() { throw new Error('web only') }\n")
	return f
}

func (f *fixture) path(rel string) string {
	return filepath.Join(f.root, filepath.FromSlash(rel))
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := f.path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) layout() manifest.Layout {
	return manifest.Layout{SourceRoot: f.root}
}

func (f *fixture) manifest(t *testing.T, doc string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(doc), f.layout())
	require.NoError(t, err)
	return m
}

func (f *fixture) quarantineDir() string {
	return manifest.DefaultQuarantineDir(f.root)
}

// snapshot maps every file under the source root to its content.
func (f *fixture) snapshot(t *testing.T) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
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
		rel, _ := filepath.Rel(f.root, path)
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}

// shell runs script with sh in the source root.
func (f *fixture) shell(script string) buildexec.Spec {
	return buildexec.Spec{
		Name:    "build",
		Command: "sh",
		Args:    []string{"-c", script},
		Dir:     f.root,
	}
}

func newEngine(t *testing.T, rec metrics.Recorder) *engine.Engine {
	t.Helper()
	logger := zaptest.NewLogger(t)
	invoker := buildexec.NewCommandInvoker(logger.Named("buildexec"),
		buildexec.WithGracePeriod(2*time.Second),
		buildexec.WithTailLines(20))
	return engine.New(
		fsops.NewRealFS(),
		invoker,
		hash.NewSHA256Hasher(),
		&clock.RealClock{},
		engine.WithRecorder(rec),
		engine.WithLogger(logger.Named("engine")),
	)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
