package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/dualbuild/internal/engine"
	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/manifest"
	"github.com/danieljhkim/dualbuild/internal/planner"
)

var manifestInitForce bool

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Create and validate the path manifest",
	Long: `Create and validate the manifest that lists the source-tree members an electron
build moves out of the way.`,
}

var manifestInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the sample manifest",
	Long: `Write the sample manifest to the configured manifest path (paths.manifest).
An existing manifest is left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runManifestInit,
}

var manifestCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the manifest against the source tree",
	Long: `Validate the manifest and show the state of each entry in the source tree, followed
by the preparation plan. Exits non-zero when the manifest is invalid or preparation
would fail.`,
	Args: cobra.NoArgs,
	RunE: runManifestCheck,
}

func init() {
	manifestInitCmd.Flags().BoolVar(&manifestInitForce, "force", false, "Overwrite an existing manifest")

	manifestCmd.AddCommand(manifestInitCmd)
	manifestCmd.AddCommand(manifestCheckCmd)
}

func runManifestInit(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	path := s.cfg.Paths.Manifest

	fs := fsops.NewRealFS()
	exists, err := fs.Exists(path)
	if err != nil {
		return err
	}
	if exists && !manifestInitForce {
		return fmt.Errorf("manifest already exists at %s (use --force to overwrite)", path)
	}
	if err := fs.AtomicWrite(path, manifest.Sample(), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	if jsonOutput {
		return outputJSON(map[string]string{"manifest": path})
	}
	PrintSuccess(fmt.Sprintf("Wrote sample manifest to %s", path))
	PrintInfo("Edit the entries to match your source tree, then run 'dualbuild manifest check'.")
	return nil
}

// manifestCheckView is the JSON form of a manifest check.
type manifestCheckView struct {
	Path    string               `json:"path"`
	Entries []manifestEntryView  `json:"entries"`
	Plan    *planner.PreparePlan `json:"plan"`
}

type manifestEntryView struct {
	Path           string        `json:"path"`
	Kind           manifest.Kind `json:"kind"`
	Optional       bool          `json:"optional"`
	Present        bool          `json:"present"`
	QuarantinePath string        `json:"quarantine_path"`
	StubPath       string        `json:"stub_path,omitempty"`
	Reason         string        `json:"reason,omitempty"`
}

func runManifestCheck(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	m, err := s.loadManifest(true)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			return fmt.Errorf("%w (run 'dualbuild manifest init' to create one)", err)
		}
		return err
	}

	plan, err := s.newEngine(nil).Plan(&engine.PlanRequest{Manifest: m})
	if err != nil {
		return err
	}

	fs := fsops.NewRealFS()
	view := manifestCheckView{Path: s.cfg.Paths.Manifest, Plan: plan}
	for _, e := range m.Entries {
		present, err := fs.Exists(e.SourcePath)
		if err != nil {
			return err
		}
		view.Entries = append(view.Entries, manifestEntryView{
			Path:           e.RelPath,
			Kind:           e.Kind,
			Optional:       e.Optional,
			Present:        present,
			QuarantinePath: e.QuarantinePath,
			StubPath:       e.StubSourcePath,
			Reason:         e.Reason,
		})
	}

	if jsonOutput {
		if err := outputJSON(view); err != nil {
			return err
		}
	} else {
		PrintSection("Manifest")
		PrintLabelValue("File", view.Path)
		PrintLabelValue("Entries", fmt.Sprintf("%d", len(view.Entries)))
		_, _ = fmt.Fprintln(stdout)
		if len(view.Entries) == 0 {
			PrintEmptyState("No entries")
		} else {
			rows := make([][]string, 0, len(view.Entries))
			for _, e := range view.Entries {
				present := "missing"
				if e.Present {
					present = "present"
				}
				optional := ""
				if e.Optional {
					optional = "optional"
				}
				rows = append(rows, []string{e.Path, string(e.Kind), present, optional, e.Reason})
			}
			PrintTable([]string{"PATH", "KIND", "TREE", "", "REASON"}, rows)
		}
		printPlan(plan)
	}

	if plan.HasProblems() {
		return fmt.Errorf("preparation would fail: %s", PrintCount(len(plan.Problems), "problem", "problems"))
	}
	if !jsonOutput {
		_, _ = fmt.Fprintln(stdout)
		PrintSuccess("Manifest is valid")
	}
	return nil
}
