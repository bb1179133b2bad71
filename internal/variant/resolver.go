package variant

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/danieljhkim/dualbuild/internal/fsops"
)

// Environment keys exported to the build subprocess.
const (
	EnvTarget     = "DUALBUILD_TARGET"
	EnvExtensions = "DUALBUILD_RESOLVE_EXTENSIONS"
	EnvExcluded   = "DUALBUILD_EXCLUDED_SUBTREES"
)

// Resolution is the outcome of resolving one import request.
type Resolution struct {
	Request string `json:"request"`

	// Path is the absolute path of the selected file.
	Path string `json:"path"`

	// Suffix is the extension that matched, empty for an exact file match.
	Suffix string `json:"suffix,omitempty"`

	// Index is true when the request named a directory and its index file
	// was selected.
	Index bool `json:"index,omitempty"`
}

// Resolver performs bundler-style module lookup under a source root.
type Resolver struct {
	fs      fsops.FS
	root    string
	cfg     BuildTargetConfig
	aliases map[string]string
}

// NewResolver creates a Resolver for the tree at root. aliases map an
// import prefix (for example "@/") to a root-relative directory ("src/").
func NewResolver(fs fsops.FS, root string, cfg BuildTargetConfig, aliases map[string]string) *Resolver {
	return &Resolver{
		fs:      fs,
		root:    filepath.Clean(root),
		cfg:     cfg,
		aliases: aliases,
	}
}

// Config returns the configuration the resolver applies.
func (r *Resolver) Config() BuildTargetConfig {
	return r.cfg
}

// Resolve finds the file an import of request from fromDir refers to.
//
// Candidates are tried in order: the exact path, the path plus each suffix
// in priority order, then index plus each suffix inside the path. The first
// existing file wins. Candidates inside an excluded subtree never match.
func (r *Resolver) Resolve(fromDir, request string) (*Resolution, error) {
	base, err := r.base(fromDir, request)
	if err != nil {
		return nil, err
	}
	if r.Excluded(base) {
		return nil, fmt.Errorf("%s: %w", request, ErrExcludedSubtree)
	}

	if r.isFile(base) {
		return &Resolution{Request: request, Path: base}, nil
	}
	for _, ext := range r.cfg.extensions {
		if cand := base + ext; r.isFile(cand) && !r.Excluded(cand) {
			return &Resolution{Request: request, Path: cand, Suffix: ext}, nil
		}
	}
	for _, ext := range r.cfg.extensions {
		if cand := filepath.Join(base, "index"+ext); r.isFile(cand) {
			return &Resolution{Request: request, Path: cand, Suffix: ext, Index: true}, nil
		}
	}

	return nil, fmt.Errorf("%s from %s: %w", request, fromDir, ErrModuleNotFound)
}

func (r *Resolver) base(fromDir, request string) (string, error) {
	if request == "" {
		return "", fmt.Errorf("empty request: %w", ErrModuleNotFound)
	}

	// Longest alias prefix wins.
	prefixes := make([]string, 0, len(r.aliases))
	for p := range r.aliases {
		prefixes = append(prefixes, p)
	}
	slices.SortFunc(prefixes, func(a, b string) int { return len(b) - len(a) })
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(request, p); ok {
			return filepath.Join(r.root, filepath.FromSlash(r.aliases[p]), filepath.FromSlash(rest)), nil
		}
	}

	switch {
	case filepath.IsAbs(request):
		return filepath.Clean(request), nil
	case request == "." || request == ".." ||
		strings.HasPrefix(request, "./") || strings.HasPrefix(request, "../"):
		if !filepath.IsAbs(fromDir) {
			fromDir = filepath.Join(r.root, fromDir)
		}
		return filepath.Join(fromDir, filepath.FromSlash(request)), nil
	default:
		return "", fmt.Errorf("bare specifier %q is left to the package resolver: %w", request, ErrModuleNotFound)
	}
}

func (r *Resolver) isFile(path string) bool {
	info, err := r.fs.Lstat(path)
	return err == nil && !info.IsDir()
}

// Excluded reports whether path lies inside an excluded subtree. Relative
// paths are taken relative to the source root.
func (r *Resolver) Excluded(path string) bool {
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.root, path)
	}
	for _, sub := range r.cfg.excluded {
		if fsops.IsWithin(filepath.Join(r.root, filepath.FromSlash(sub)), path) {
			return true
		}
	}
	return false
}

// Environ returns the KEY=value pairs the bundler configuration reads.
func (c BuildTargetConfig) Environ() []string {
	return []string{
		EnvTarget + "=" + string(c.target),
		EnvExtensions + "=" + strings.Join(c.extensions, ","),
		EnvExcluded + "=" + strings.Join(c.excluded, ","),
	}
}

// BundlerConfig is the JSON view of a BuildTargetConfig.
type BundlerConfig struct {
	Target            Target   `json:"target"`
	ResolveExtensions []string `json:"resolveExtensions"`
	ExcludedSubtrees  []string `json:"excludedSubtrees"`
}

// Bundler returns the bundler view of c.
func (c BuildTargetConfig) Bundler() BundlerConfig {
	excluded := c.ExcludedSubtrees()
	if excluded == nil {
		excluded = []string{}
	}
	return BundlerConfig{
		Target:            c.target,
		ResolveExtensions: c.ExtensionPriority(),
		ExcludedSubtrees:  excluded,
	}
}

// MarshalJSON encodes c as its BundlerConfig.
func (c BuildTargetConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Bundler())
}

// FromEnviron rebuilds a BuildTargetConfig from values previously produced
// by Environ. lookup is typically os.LookupEnv.
func FromEnviron(lookup func(string) (string, bool)) (BuildTargetConfig, error) {
	raw, ok := lookup(EnvTarget)
	if !ok {
		return BuildTargetConfig{}, fmt.Errorf("%s not set: %w", EnvTarget, os.ErrNotExist)
	}
	target, known := ParseTarget(raw)
	if !known {
		return BuildTargetConfig{}, fmt.Errorf("unknown target %q", raw)
	}

	split := func(key string) []string {
		v, _ := lookup(key)
		if v == "" {
			return nil
		}
		return strings.Split(v, ",")
	}
	exts := split(EnvExtensions)
	if len(exts) == 0 {
		return BuildTargetConfig{}, errors.New(EnvExtensions + " is empty")
	}

	return BuildTargetConfig{
		target:     target,
		extensions: exts,
		excluded:   split(EnvExcluded),
	}, nil
}
