package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/dualbuild/internal/history"
)

var (
	historyLimit int
	historyAll   bool
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or show one run",
	Long: `List the build and recover runs recorded for this source tree, newest first.
With a run ID, show the full report of that run.

Examples:
  dualbuild history
  dualbuild history --limit 5 --all
  dualbuild history 3f2c9e1a-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of runs to list")
	historyCmd.Flags().BoolVar(&historyAll, "all", false, "Include runs of every source tree")
}

func runHistory(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}

	store, err := history.Open(cmd.Context(), s.cfg.StatePaths().History)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		run, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(run)
		}
		printHistoryRun(run)
		return nil
	}

	opts := history.ListOptions{Limit: historyLimit}
	if !historyAll {
		opts.SourceRoot = s.cfg.Paths.SourceRoot
	}
	runs, err := store.List(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if jsonOutput {
		if runs == nil {
			runs = []history.Run{}
		}
		return outputJSON(runs)
	}

	if len(runs) == 0 {
		PrintEmptyState("No runs recorded")
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Kind,
			r.Target,
			r.Outcome,
			exitCodeString(r.ExitCode),
			r.Duration().Round(time.Millisecond).String(),
		})
	}
	PrintTable([]string{"RUN", "STARTED", "KIND", "TARGET", "OUTCOME", "EXIT", "DURATION"}, rows, 5, 6)
	return nil
}

func printHistoryRun(run history.Run) {
	PrintSection(fmt.Sprintf("Run %s", run.ID))
	PrintLabelValue("Kind", run.Kind)
	if run.Target != "" {
		PrintLabelValue("Target", run.Target)
	}
	PrintLabelValue("Source root", run.SourceRoot)
	PrintLabelValue("Started", run.StartedAt.Local().Format(time.DateTime))
	PrintLabelValue("Duration", run.Duration().Round(time.Millisecond).String())
	PrintLabelValue("Phases", strings.Join(run.Phases, " → "))
	PrintLabelValue("Exit code", exitCodeString(run.ExitCode))
	if run.Outcome == "success" {
		PrintLabelValueWithColor("Outcome", run.Outcome, successColor)
	} else {
		PrintLabelValueWithColor("Outcome", run.Outcome, errorColor)
	}

	if len(run.Entries) > 0 {
		_, _ = fmt.Fprintln(stdout)
		rows := make([][]string, 0, len(run.Entries))
		for _, e := range run.Entries {
			rows = append(rows, []string{e.Path, e.State, e.Error})
		}
		PrintTable([]string{"PATH", "STATE", "ERROR"}, rows)
	}
	if run.Error != "" {
		_, _ = fmt.Fprintln(stdout)
		PrintError(run.Error)
	}
}

func exitCodeString(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *code)
}
