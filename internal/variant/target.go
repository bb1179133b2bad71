// Package variant computes build-target-specific module resolution.
//
// For a declared target, target-suffixed source files (teams.electron.ts)
// shadow their generic counterparts (teams.ts), and client-only subtrees are
// kept out of the web bundle. The configuration is derived once per
// invocation and handed to the bundler through the build subprocess
// environment.
package variant

import (
	"slices"
	"strings"
)

// Target is a build target.
type Target string

const (
	TargetWeb      Target = "web"
	TargetElectron Target = "electron"
)

// Targets lists every recognized target.
var Targets = []Target{TargetWeb, TargetElectron}

// DefaultGenericExtensions is the generic suffix family, in lookup order.
var DefaultGenericExtensions = []string{".tsx", ".ts", ".jsx", ".js", ".mjs", ".json"}

// DefaultClientSubtrees are the source-root-relative subtrees only the
// desktop build uses.
var DefaultClientSubtrees = []string{"src/client"}

// ParseTarget maps a selector value to a Target. Empty selects TargetWeb.
// Unrecognized values also select TargetWeb and report ok=false so the
// caller can warn.
func ParseTarget(s string) (t Target, ok bool) {
	v := Target(strings.ToLower(strings.TrimSpace(s)))
	if v == "" {
		return TargetWeb, true
	}
	if slices.Contains(Targets, v) {
		return v, true
	}
	return TargetWeb, false
}

func (t Target) String() string {
	return string(t)
}

// BuildTargetConfig is the module resolution configuration for one build.
// It is immutable once constructed.
type BuildTargetConfig struct {
	target     Target
	extensions []string
	excluded   []string
}

// NewBuildTargetConfig derives the configuration for target.
//
// The extension priority is the target family (".<target><ext>" for each
// generic extension) followed by the generic family. Client-only subtrees
// are excluded for the web target and nothing is excluded for electron.
// A nil generic list means DefaultGenericExtensions.
func NewBuildTargetConfig(target Target, generic, clientSubtrees []string) BuildTargetConfig {
	if generic == nil {
		generic = DefaultGenericExtensions
	}

	exts := make([]string, 0, 2*len(generic))
	for _, ext := range generic {
		exts = append(exts, "."+string(target)+normalizeExt(ext))
	}
	for _, ext := range generic {
		exts = append(exts, normalizeExt(ext))
	}

	var excluded []string
	if target == TargetWeb {
		for _, sub := range clientSubtrees {
			sub = strings.Trim(strings.TrimSpace(sub), "/")
			if sub != "" && !slices.Contains(excluded, sub) {
				excluded = append(excluded, sub)
			}
		}
	}

	return BuildTargetConfig{
		target:     target,
		extensions: slices.Compact(exts),
		excluded:   excluded,
	}
}

// Target returns the build target.
func (c BuildTargetConfig) Target() Target {
	return c.target
}

// ExtensionPriority returns the suffixes in lookup order.
func (c BuildTargetConfig) ExtensionPriority() []string {
	return slices.Clone(c.extensions)
}

// ExcludedSubtrees returns the slash-separated, source-root-relative
// subtrees excluded from the bundle.
func (c BuildTargetConfig) ExcludedSubtrees() []string {
	return slices.Clone(c.excluded)
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
