package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/danieljhkim/dualbuild/internal/manifest"
)

func (c *Config) normalize(root string) error {
	if err := c.normalizePaths(root); err != nil {
		return err
	}
	c.normalizeBuild()
	c.normalizePackage()
	c.normalizeResolver()
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths(root string) error {
	var err error
	if strings.TrimSpace(c.Paths.SourceRoot) == "" {
		c.Paths.SourceRoot = root
	}
	if c.Paths.SourceRoot, err = resolveAgainst(root, c.Paths.SourceRoot); err != nil {
		return fmt.Errorf("paths.source_root: %w", err)
	}
	src := c.Paths.SourceRoot

	if strings.TrimSpace(c.Paths.ScanRoot) == "" {
		c.Paths.ScanRoot = src
	}
	if c.Paths.ScanRoot, err = resolveAgainst(src, c.Paths.ScanRoot); err != nil {
		return fmt.Errorf("paths.scan_root: %w", err)
	}

	if strings.TrimSpace(c.Paths.QuarantineDir) == "" {
		c.Paths.QuarantineDir = manifest.DefaultQuarantineDir(src)
	}
	if c.Paths.QuarantineDir, err = resolveAgainst(src, c.Paths.QuarantineDir); err != nil {
		return fmt.Errorf("paths.quarantine_dir: %w", err)
	}

	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = resolveAgainst(src, c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}

	if strings.TrimSpace(c.Paths.Manifest) == "" {
		c.Paths.Manifest = defaultManifest
	}
	if c.Paths.Manifest, err = resolveAgainst(src, c.Paths.Manifest); err != nil {
		return fmt.Errorf("paths.manifest: %w", err)
	}

	if strings.TrimSpace(c.Paths.StateDir) == "" {
		if c.Paths.StateDir, err = DefaultStateDir(); err != nil {
			return fmt.Errorf("paths.state_dir: %w", err)
		}
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBuild() {
	c.Build.Command = strings.TrimSpace(c.Build.Command)
	c.Build.TargetEnv = strings.TrimSpace(c.Build.TargetEnv)
	if c.Build.OutputTailLines <= 0 {
		c.Build.OutputTailLines = defaultTailLines
	}
	if c.Build.GraceSeconds <= 0 {
		c.Build.GraceSeconds = defaultGraceSeconds
	}

	env := make(map[string]map[string]string, len(c.Build.Env))
	for target, vars := range c.Build.Env {
		key := strings.ToLower(strings.TrimSpace(target))
		merged := env[key]
		if merged == nil {
			merged = make(map[string]string, len(vars))
			env[key] = merged
		}
		for k, v := range vars {
			merged[k] = v
		}
	}
	c.Build.Env = env
}

func (c *Config) normalizePackage() {
	c.Package.Command = strings.TrimSpace(c.Package.Command)
	c.Package.Platform = strings.ToLower(strings.TrimSpace(c.Package.Platform))
}

func (c *Config) normalizeResolver() {
	exts := make([]string, 0, len(c.Resolver.GenericExtensions))
	for _, ext := range c.Resolver.GenericExtensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !slices.Contains(exts, ext) {
			exts = append(exts, ext)
		}
	}
	c.Resolver.GenericExtensions = exts

	subtrees := make([]string, 0, len(c.Resolver.ClientSubtrees))
	for _, sub := range c.Resolver.ClientSubtrees {
		if sub = strings.Trim(strings.TrimSpace(sub), "/"); sub != "" {
			subtrees = append(subtrees, sub)
		}
	}
	c.Resolver.ClientSubtrees = subtrees
}

func (c *Config) normalizeMetrics() error {
	if strings.TrimSpace(c.Metrics.Textfile) == "" {
		c.Metrics.Textfile = ""
		return nil
	}
	var err error
	if c.Metrics.Textfile, err = resolveAgainst(c.Paths.StateDir, c.Metrics.Textfile); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
