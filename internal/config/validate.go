package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/variant"
)

var validPlatforms = []string{"", "mac", "win", "linux"}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBuild(); err != nil {
		return err
	}
	if err := c.validatePackage(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	src := c.Paths.SourceRoot
	if !fsops.IsWithin(src, c.Paths.ScanRoot) && !fsops.IsWithin(c.Paths.ScanRoot, src) {
		return fmt.Errorf("paths.scan_root %s must contain or lie within the source root %s", c.Paths.ScanRoot, src)
	}
	if fsops.IsWithin(c.Paths.ScanRoot, c.Paths.QuarantineDir) {
		return fmt.Errorf("paths.quarantine_dir %s must lie outside the scanned tree %s", c.Paths.QuarantineDir, c.Paths.ScanRoot)
	}
	if c.Paths.OutputDir == src || fsops.IsWithin(c.Paths.OutputDir, src) {
		return errors.New("paths.output_dir must not be the source root or contain it")
	}
	if fsops.IsWithin(c.Paths.OutputDir, c.Paths.QuarantineDir) || fsops.IsWithin(c.Paths.QuarantineDir, c.Paths.OutputDir) {
		return fmt.Errorf("paths.output_dir %s must not overlap paths.quarantine_dir %s", c.Paths.OutputDir, c.Paths.QuarantineDir)
	}
	if filepath.Clean(c.Paths.StateDir) == filepath.Clean(src) {
		return errors.New("paths.state_dir must not be the source root")
	}
	return nil
}

func (c *Config) validateBuild() error {
	if c.Build.Command == "" {
		return errors.New("build.command must be set")
	}
	for target := range c.Build.Env {
		if _, ok := variant.ParseTarget(target); !ok {
			return fmt.Errorf("build.env: unknown target %q", target)
		}
	}
	if strings.ContainsAny(c.Build.TargetEnv, "= ") {
		return fmt.Errorf("build.target_env %q is not a valid variable name", c.Build.TargetEnv)
	}
	return nil
}

func (c *Config) validatePackage() error {
	if !slices.Contains(validPlatforms, c.Package.Platform) {
		return fmt.Errorf("package.platform must be one of mac, win, linux (got %q)", c.Package.Platform)
	}
	return nil
}

// ValidatePlatform checks a --platform override.
func ValidatePlatform(platform string) error {
	if !slices.Contains(validPlatforms, platform) {
		return fmt.Errorf("platform must be one of mac, win, linux (got %q)", platform)
	}
	return nil
}

func (c *Config) validateResolver() error {
	if len(c.Resolver.GenericExtensions) == 0 {
		return errors.New("resolver.generic_extensions must not be empty")
	}
	for _, sub := range c.Resolver.ClientSubtrees {
		if err := fsops.ValidateRelPath(sub); err != nil {
			return fmt.Errorf("resolver.client_subtrees: %w", err)
		}
	}
	for prefix, dir := range c.Resolver.Aliases {
		if prefix == "" {
			return errors.New("resolver.aliases: empty prefix")
		}
		if err := fsops.ValidateRelPath(dir); err != nil {
			return fmt.Errorf("resolver.aliases[%q]: %w", prefix, err)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error (got %q)", c.Logging.Level)
	}
	return nil
}
