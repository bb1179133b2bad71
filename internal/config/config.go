package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danieljhkim/dualbuild/internal/manifest"
	"github.com/danieljhkim/dualbuild/internal/variant"
)

//go:embed sample_config.toml
var sampleConfig string

// PathsConfig locates the source tree and everything dualbuild reads or
// writes around it. Relative values are resolved against the source root.
type PathsConfig struct {
	SourceRoot    string `toml:"source_root"`
	ScanRoot      string `toml:"scan_root"`
	QuarantineDir string `toml:"quarantine_dir"`
	OutputDir     string `toml:"output_dir"`
	Manifest      string `toml:"manifest"`
	StateDir      string `toml:"state_dir"`
}

// Build configures the build tool invocation.
type Build struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`

	// TargetEnv names an extra variable that receives the target name.
	TargetEnv string `toml:"target_env"`

	CleanOutput     bool `toml:"clean_output"`
	OutputTailLines int  `toml:"output_tail_lines"`
	GraceSeconds    int  `toml:"grace_seconds"`

	// Env holds per-target variables, keyed by target name.
	Env map[string]map[string]string `toml:"env"`
}

// Package configures the optional packaging step after a desktop build.
type Package struct {
	Command  string   `toml:"command"`
	Args     []string `toml:"args"`
	Platform string   `toml:"platform"`
}

// Resolver configures module variant resolution.
type Resolver struct {
	GenericExtensions []string          `toml:"generic_extensions"`
	ClientSubtrees    []string          `toml:"client_subtrees"`
	Aliases           map[string]string `toml:"aliases"`
}

// Metrics configures the Prometheus textfile export.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for dualbuild.
//
// Configuration sections:
//   - Paths: source tree, quarantine, output, manifest and state locations
//   - Build: build command, per-target environment, output capture
//   - Package: desktop packaging command
//   - Resolver: extension family, client-only subtrees, import aliases
//   - Metrics: Prometheus textfile location
//   - Logging: log format and level
type Config struct {
	Paths    PathsConfig `toml:"paths"`
	Build    Build       `toml:"build"`
	Package  Package     `toml:"package"`
	Resolver Resolver    `toml:"resolver"`
	Metrics  Metrics     `toml:"metrics"`
	Logging  Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the per-user configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultUserConfigPath)
}

// Load locates, parses, and validates a configuration file. root is the
// directory dualbuild was pointed at; it is the default source root and the
// first place searched for dualbuild.toml. The returned config has all path
// fields made absolute.
func Load(path, root string) (*Config, string, bool, error) {
	cfg := Default()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, "", false, fmt.Errorf("resolve root: %w", err)
	}

	resolvedPath, exists, err := resolveConfigPath(path, absRoot)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(absRoot); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path, root string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config %s: %w", expanded, err)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	projectPath := filepath.Join(root, FileName)
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	userPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(userPath); err == nil && !info.IsDir() {
		return userPath, true, nil
	}

	return projectPath, false, nil
}

// Layout returns the manifest layout described by the paths section.
func (c *Config) Layout() manifest.Layout {
	return manifest.Layout{
		SourceRoot:    c.Paths.SourceRoot,
		ScanRoot:      c.Paths.ScanRoot,
		QuarantineDir: c.Paths.QuarantineDir,
	}
}

// StatePaths returns the layout of the state directory.
func (c *Config) StatePaths() *Paths {
	return PathsFor(c.Paths.StateDir)
}

// GracePeriod returns how long an interrupted build may take to exit.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.Build.GraceSeconds) * time.Second
}

// BuildEnv returns the extra environment for a build of target, sorted by key.
func (c *Config) BuildEnv(target variant.Target) []string {
	vars := c.Build.Env[string(target)]
	out := make([]string, 0, len(vars)+1)
	for _, k := range sortedKeys(vars) {
		out = append(out, k+"="+vars[k])
	}
	if c.Build.TargetEnv != "" {
		out = append(out, c.Build.TargetEnv+"="+string(target))
	}
	return out
}

// PackageArgs returns the packager arguments with the platform flag appended.
func (c *Config) PackageArgs(platform string) []string {
	args := append([]string(nil), c.Package.Args...)
	if platform == "" {
		platform = c.Package.Platform
	}
	if platform != "" {
		args = append(args, "--"+platform)
	}
	return args
}

// TargetConfig derives the module resolution configuration for target.
func (c *Config) TargetConfig(target variant.Target) variant.BuildTargetConfig {
	return variant.NewBuildTargetConfig(target, c.Resolver.GenericExtensions, c.Resolver.ClientSubtrees)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// resolveAgainst expands p and makes it absolute relative to base.
func resolveAgainst(base, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	if !strings.HasPrefix(p, "~") && !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return expandPath(p)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
