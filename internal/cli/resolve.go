package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/variant"
)

var (
	resolveFrom string

	resolveConfigEnv bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <request>",
	Short: "Show which file an import resolves to for the selected target",
	Long: `Resolve an import request the way the bundler does for the selected target.

Target-suffixed files (teams.electron.ts) shadow their generic counterparts
(teams.ts), directories fall back to their index file, and client-only subtrees
never match for the web target.

Examples:
  dualbuild resolve ./teams --from src/components
  dualbuild resolve @/client/bridge --target web`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var resolveConfigCmd = &cobra.Command{
	Use:   "resolve-config",
	Short: "Print the module resolution configuration for the selected target",
	Long: `Print the module resolution configuration the build tool receives for the selected
target: the extension priority and the subtrees excluded from the bundle.

The output is JSON for a bundler configuration file to consume. With --env the
same values are printed as the environment variables a build receives.`,
	Args: cobra.NoArgs,
	RunE: runResolveConfig,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFrom, "from", "", "Directory the import is written in (default: source root)")
	resolveConfigCmd.Flags().BoolVar(&resolveConfigEnv, "env", false, "Print KEY=value lines instead of JSON")
}

func runResolve(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}

	root := s.cfg.Paths.SourceRoot
	from := root
	if resolveFrom != "" {
		if from, err = filepath.Abs(resolveFrom); err != nil {
			return fmt.Errorf("resolve --from: %w", err)
		}
	}

	r := variant.NewResolver(fsops.NewRealFS(), root, s.targetConfig(), s.cfg.Resolver.Aliases)
	res, err := r.Resolve(from, args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(res)
	}

	shown := res.Path
	if rel, err := filepath.Rel(root, res.Path); err == nil && fsops.IsWithin(root, res.Path) {
		shown = filepath.ToSlash(rel)
	}
	PrintSuccess(fmt.Sprintf("%s → %s", res.Request, shown))
	PrintLabelValue("Target", string(s.target.Target))
	if res.Suffix != "" {
		PrintLabelValue("Matched suffix", res.Suffix)
	}
	if res.Index {
		PrintLabelValue("Index file", "yes")
	}
	return nil
}

func runResolveConfig(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	tc := s.targetConfig()

	if resolveConfigEnv {
		for _, kv := range tc.Environ() {
			_, _ = fmt.Fprintln(stdout, kv)
		}
		return nil
	}
	return outputJSON(tc.Bundler())
}
