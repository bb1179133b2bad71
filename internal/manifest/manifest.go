// Package manifest loads the ordered list of source-tree paths that must be
// moved out of the way (or replaced by stubs) before a static-export build.
//
// A manifest is authored as YAML:
//
//	entries:
//	  - path: src/app/api
//	    kind: remove
//	    optional: true
//	    reason: route handlers need a running server
//	  - path: src/lib/actions
//	    kind: replace
//	    stubPath: ../actions_stubs
//
// Entries keep their declared order; preparation follows it and restoration
// runs in reverse.
package manifest

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/dualbuild/internal/fsops"
)

//go:embed sample_manifest.yaml
var sampleManifest []byte

// CurrentVersion is the manifest schema version this build understands.
const CurrentVersion = 1

// Kind says what happens to an entry's path during preparation.
type Kind string

const (
	// KindRemove moves the path to quarantine for the duration of the build.
	KindRemove Kind = "remove"

	// KindReplace quarantines the path and installs a stub in its place.
	KindReplace Kind = "replace"
)

// Layout holds the absolute directories a manifest is resolved against.
type Layout struct {
	// SourceRoot is the project directory; entry paths are relative to it.
	SourceRoot string

	// ScanRoot is the tree the build tool scans. Quarantine targets must lie
	// outside of it. Defaults to SourceRoot.
	ScanRoot string

	// QuarantineDir holds relocated entries whose quarantinePath is unset.
	QuarantineDir string
}

// Entry is a validated manifest entry with all paths made absolute.
type Entry struct {
	// RelPath is the entry path as written in the manifest.
	RelPath string

	// SourcePath is the absolute location of the entry in the source tree.
	SourcePath string

	// QuarantinePath is where the entry is parked during the build.
	QuarantinePath string

	Kind Kind

	// StubSourcePath is the stand-in copied into SourcePath (replace only).
	StubSourcePath string

	// Optional entries may be absent from a checkout without failing the run.
	Optional bool

	Reason string
}

// Manifest is an ordered, validated set of entries.
type Manifest struct {
	Version int
	Layout  Layout
	Entries []Entry
}

type document struct {
	Version int           `yaml:"version,omitempty"`
	Entries []entryRecord `yaml:"entries"`
}

type entryRecord struct {
	Path           string `yaml:"path"`
	Kind           string `yaml:"kind"`
	StubPath       string `yaml:"stubPath,omitempty"`
	QuarantinePath string `yaml:"quarantinePath,omitempty"`
	Optional       bool   `yaml:"optional,omitempty"`
	Reason         string `yaml:"reason,omitempty"`
}

// Sample returns the embedded example manifest.
func Sample() []byte {
	return bytes.Clone(sampleManifest)
}

// Load reads the manifest at path and resolves it against layout.
func Load(path string, layout Layout) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data, layout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes manifest YAML and resolves it against layout.
func Parse(data []byte, layout Layout) (*Manifest, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty manifest", ErrInvalid)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	if doc.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalid, doc.Version)
	}

	layout, err := layout.normalize()
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Version: doc.Version,
		Layout:  layout,
		Entries: make([]Entry, 0, len(doc.Entries)),
	}
	for i, rec := range doc.Entries {
		entry, err := rec.resolve(layout)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, rec.Path, err)
		}
		m.Entries = append(m.Entries, entry)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (l Layout) normalize() (Layout, error) {
	if l.SourceRoot == "" {
		return l, fmt.Errorf("%w: source root is required", ErrInvalid)
	}
	if !filepath.IsAbs(l.SourceRoot) {
		return l, fmt.Errorf("%w: source root %q must be absolute", ErrInvalid, l.SourceRoot)
	}
	l.SourceRoot = filepath.Clean(l.SourceRoot)

	if l.ScanRoot == "" {
		l.ScanRoot = l.SourceRoot
	}
	l.ScanRoot = l.abs(l.ScanRoot)

	if l.QuarantineDir == "" {
		l.QuarantineDir = DefaultQuarantineDir(l.SourceRoot)
	}
	l.QuarantineDir = l.abs(l.QuarantineDir)
	return l, nil
}

func (l Layout) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(l.SourceRoot, p)
}

// DefaultQuarantineDir places quarantined entries in a hidden sibling of the
// source root, so neither the bundler nor the type checker ever sees them.
func DefaultQuarantineDir(sourceRoot string) string {
	clean := filepath.Clean(sourceRoot)
	return filepath.Join(filepath.Dir(clean), "."+filepath.Base(clean)+"-quarantine")
}

func (r entryRecord) resolve(layout Layout) (Entry, error) {
	if err := fsops.ValidateRelPath(r.Path); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	rel := filepath.Clean(filepath.FromSlash(r.Path))

	kind := Kind(strings.ToLower(strings.TrimSpace(r.Kind)))
	switch kind {
	case KindRemove:
		if r.StubPath != "" {
			return Entry{}, fmt.Errorf("%w: stubPath is only valid for kind %q", ErrInvalid, KindReplace)
		}
	case KindReplace:
		if strings.TrimSpace(r.StubPath) == "" {
			return Entry{}, fmt.Errorf("%w: kind %q requires stubPath", ErrInvalid, KindReplace)
		}
	case "":
		return Entry{}, fmt.Errorf("%w: kind is required (%q or %q)", ErrInvalid, KindRemove, KindReplace)
	default:
		return Entry{}, fmt.Errorf("%w: unknown kind %q", ErrInvalid, r.Kind)
	}

	entry := Entry{
		RelPath:    filepath.ToSlash(rel),
		SourcePath: filepath.Join(layout.SourceRoot, rel),
		Kind:       kind,
		Optional:   r.Optional,
		Reason:     strings.TrimSpace(r.Reason),
	}

	if r.QuarantinePath != "" {
		entry.QuarantinePath = layout.abs(filepath.FromSlash(r.QuarantinePath))
	} else {
		entry.QuarantinePath = filepath.Join(layout.QuarantineDir, flatten(rel))
	}
	if kind == KindReplace {
		entry.StubSourcePath = layout.abs(filepath.FromSlash(r.StubPath))
	}
	return entry, nil
}

// flatten turns a relative path into a single file name so every entry gets
// its own slot directly under the quarantine directory.
func flatten(rel string) string {
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "__")
}

func (m *Manifest) validate() error {
	sources := make(map[string]int, len(m.Entries))
	quarantines := make(map[string]int, len(m.Entries))

	for i, e := range m.Entries {
		if j, ok := sources[e.SourcePath]; ok {
			return fmt.Errorf("%w: entries %d and %d both name %s", ErrInvalid, j, i, e.RelPath)
		}
		sources[e.SourcePath] = i

		for j := range i {
			if fsops.IsWithin(m.Entries[j].SourcePath, e.SourcePath) {
				return fmt.Errorf("%w: entry %s lies inside earlier entry %s and would already be quarantined; list it first or drop it", ErrInvalid, e.RelPath, m.Entries[j].RelPath)
			}
		}

		if j, ok := quarantines[e.QuarantinePath]; ok {
			return fmt.Errorf("%w: entries %d and %d share quarantine path %s", ErrInvalid, j, i, e.QuarantinePath)
		}
		quarantines[e.QuarantinePath] = i

		if fsops.IsWithin(m.Layout.ScanRoot, e.QuarantinePath) {
			return fmt.Errorf("%w: %s: quarantine path %s is inside the scan root %s", ErrQuarantineInScanRoot, e.RelPath, e.QuarantinePath, m.Layout.ScanRoot)
		}
		if e.Kind == KindReplace && fsops.IsWithin(e.SourcePath, e.StubSourcePath) {
			return fmt.Errorf("%w: %s: stub %s lives inside the path it replaces", ErrInvalid, e.RelPath, e.StubSourcePath)
		}
	}

	for _, e := range m.Entries {
		for _, other := range m.Entries {
			if fsops.IsWithin(other.SourcePath, e.QuarantinePath) {
				return fmt.Errorf("%w: %s: quarantine path %s is inside manifest entry %s", ErrInvalid, e.RelPath, e.QuarantinePath, other.RelPath)
			}
		}
	}
	return nil
}

// Lookup returns the entry whose relative path matches rel.
func (m *Manifest) Lookup(rel string) (Entry, bool) {
	want := filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
	for _, e := range m.Entries {
		if e.RelPath == want {
			return e, true
		}
	}
	return Entry{}, false
}
