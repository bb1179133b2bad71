package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/dualbuild/internal/config"
	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/manifest"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create dualbuild.toml and a sample manifest",
	Long: `Create a dualbuild.toml in the root directory and a sample manifest at the
configured manifest path. Existing files are left untouched.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root := rootDir
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		root = cwd
	}

	fs := fsops.NewRealFS()
	var created []string

	cfgFile := filepath.Join(root, config.FileName)
	exists, err := fs.Exists(cfgFile)
	if err != nil {
		return err
	}
	if !exists {
		if err := config.CreateSample(cfgFile); err != nil {
			return err
		}
		created = append(created, cfgFile)
	}

	s, err := loadSession()
	if err != nil {
		return err
	}
	manifestFile := s.cfg.Paths.Manifest
	if exists, err = fs.Exists(manifestFile); err != nil {
		return err
	}
	if !exists {
		if err := fs.AtomicWrite(manifestFile, manifest.Sample(), 0o644); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		created = append(created, manifestFile)
	}

	if jsonOutput {
		if created == nil {
			created = []string{}
		}
		return outputJSON(map[string]any{"created": created})
	}
	if len(created) == 0 {
		PrintInfo("Already initialized")
		return nil
	}
	for _, path := range created {
		PrintSuccess(fmt.Sprintf("Created %s", path))
	}
	return nil
}
