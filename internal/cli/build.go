package cli

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danieljhkim/dualbuild/internal/buildexec"
	"github.com/danieljhkim/dualbuild/internal/config"
	"github.com/danieljhkim/dualbuild/internal/engine"
	"github.com/danieljhkim/dualbuild/internal/manifest"
	"github.com/danieljhkim/dualbuild/internal/planner"
	"github.com/danieljhkim/dualbuild/internal/variant"
)

var (
	buildPackage  bool
	buildPlatform string
	buildVerify   bool
	buildDryRun   bool
	buildNoClean  bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the source tree for the selected target",
	Long: `Build the source tree for the selected target.

For the electron target every manifest entry is moved out of the source tree (and
replaced by its stub where one is declared) before the build tool runs. The tree is
always restored afterwards, in reverse order, even when the build fails or is
interrupted. The web target builds the tree as it is.

The module resolution configuration for the target is passed to the build tool
through DUALBUILD_TARGET, DUALBUILD_RESOLVE_EXTENSIONS and DUALBUILD_EXCLUDED_SUBTREES.

Examples:
  dualbuild build
  dualbuild build --target electron
  dualbuild build --target electron --package --platform mac
  dualbuild build --target electron --verify
  dualbuild build --target electron --dry-run`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildPackage, "package", false, "Run the packaging command after a successful electron build")
	buildCmd.Flags().StringVar(&buildPlatform, "platform", "", "Packaging platform: mac, win or linux (overrides package.platform)")
	buildCmd.Flags().BoolVar(&buildVerify, "verify", false, "Hash manifest paths before and after the run and fail on any difference")
	buildCmd.Flags().BoolVar(&buildDryRun, "dry-run", false, "Show what would run without touching the tree")
	buildCmd.Flags().BoolVar(&buildNoClean, "no-clean", false, "Keep the output directory instead of clearing it before the build")
}

func runBuild(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	target := s.target.Target

	if buildPlatform != "" {
		if err := config.ValidatePlatform(buildPlatform); err != nil {
			return err
		}
	}
	if buildPackage && target != variant.TargetElectron {
		return fmt.Errorf("--package requires the electron target (selected: %s)", target)
	}

	m, err := s.loadManifest(target == variant.TargetElectron)
	if err != nil {
		return err
	}

	req := newBuildRequest(s, m, cmd)

	if buildDryRun {
		return showDryRun(s, req)
	}

	if err := preflight(req); err != nil {
		return err
	}

	lock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release run lock", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, flush := s.recorder()
	eng := s.newEngine(rec)

	res, runErr := eng.Run(ctx, req)
	flush()
	s.recordHistory(ctx, res)

	if res == nil {
		return runErr
	}
	if jsonOutput {
		if err := outputJSON(res); err != nil {
			return err
		}
	} else {
		printRunReport(res)
	}
	if runErr != nil {
		return fmt.Errorf("build failed: %w", runErr)
	}
	return nil
}

// newBuildRequest assembles the engine request from the session and flags.
// Build output goes to stdout, or to stderr when stdout carries JSON.
func newBuildRequest(s *session, m *manifest.Manifest, cmd *cobra.Command) *engine.BuildRequest {
	cfg := s.cfg
	target := s.target.Target

	var out io.Writer = cmd.OutOrStdout()
	if jsonOutput {
		out = cmd.ErrOrStderr()
	}

	env := append(s.targetConfig().Environ(), cfg.BuildEnv(target)...)
	req := &engine.BuildRequest{
		Manifest: m,
		Target:   target,
		Build: buildexec.Spec{
			Name:    "build",
			Command: cfg.Build.Command,
			Args:    cfg.Build.Args,
			Dir:     cfg.Paths.SourceRoot,
			Env:     env,
			Stdout:  out,
			Stderr:  cmd.ErrOrStderr(),
		},
		OutputDir:   cfg.Paths.OutputDir,
		CleanOutput: cfg.Build.CleanOutput && !buildNoClean,
		Verify:      buildVerify,
	}
	if buildPackage {
		req.Package = &buildexec.Spec{
			Name:    "package",
			Command: cfg.Package.Command,
			Args:    cfg.PackageArgs(buildPlatform),
			Dir:     cfg.Paths.SourceRoot,
			Env:     env,
			Stdout:  out,
			Stderr:  cmd.ErrOrStderr(),
		}
	}
	return req
}

// preflight checks that every command the run will start is on PATH.
func preflight(req *engine.BuildRequest) error {
	reqs := []buildexec.Requirement{{
		Name:        "build",
		Command:     req.Build.Command,
		Description: "build tool",
	}}
	if req.Package != nil {
		reqs = append(reqs, buildexec.Requirement{
			Name:        "package",
			Command:     req.Package.Command,
			Description: "packaging tool",
		})
	}

	missing := buildexec.Missing(buildexec.CheckBinaries(reqs))
	if len(missing) == 0 {
		return nil
	}
	errs := make([]error, 0, len(missing))
	for _, st := range missing {
		errs = append(errs, fmt.Errorf("%s: %s", st.Name, st.Detail))
	}
	return fmt.Errorf("preflight failed: %w", errors.Join(errs...))
}

// buildPreview is the JSON form of a dry run.
type buildPreview struct {
	Target      variant.Target        `json:"target"`
	TargetFrom  config.TargetSource   `json:"target_source"`
	Command     string                `json:"command"`
	Package     string                `json:"package,omitempty"`
	Env         []string              `json:"env"`
	OutputDir   string                `json:"output_dir"`
	CleanOutput bool                  `json:"clean_output"`
	Resolution  variant.BundlerConfig `json:"resolution"`
	Plan        *planner.PreparePlan  `json:"plan,omitempty"`
}

func showDryRun(s *session, req *engine.BuildRequest) error {
	preview := buildPreview{
		Target:      req.Target,
		TargetFrom:  s.target.Source,
		Command:     req.Build.CommandLine(),
		Env:         req.Build.Env,
		OutputDir:   req.OutputDir,
		CleanOutput: req.CleanOutput,
		Resolution:  s.targetConfig().Bundler(),
	}
	if req.Package != nil {
		preview.Package = req.Package.CommandLine()
	}
	if req.Target == variant.TargetElectron {
		plan, err := s.newEngine(nil).Plan(&engine.PlanRequest{Manifest: req.Manifest})
		if err != nil {
			return err
		}
		preview.Plan = plan
	}

	if jsonOutput {
		return outputJSON(preview)
	}

	PrintSection("Dry run")
	PrintLabelValue("Target", fmt.Sprintf("%s (from %s)", preview.Target, preview.TargetFrom))
	PrintLabelValue("Build command", preview.Command)
	if preview.Package != "" {
		PrintLabelValue("Package command", preview.Package)
	}
	PrintLabelValue("Output directory", preview.OutputDir)
	PrintLabelValue("Clean output", fmt.Sprintf("%t", preview.CleanOutput))
	PrintLabelValue("Environment", "")
	PrintList(preview.Env, 2)
	if preview.Plan != nil {
		printPlan(preview.Plan)
	} else {
		PrintInfo("\nThe web target leaves the source tree untouched.")
	}
	return nil
}
