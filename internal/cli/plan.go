package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/dualbuild/internal/engine"
	"github.com/danieljhkim/dualbuild/internal/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show how an electron build would prepare the tree",
	Long: `Show the operations an electron build would perform on the source tree, in order,
followed by the sequence that undoes them. Nothing is moved.

Problems are conditions that would fail preparation, such as a missing required
path or a missing stub. The command exits non-zero when there are any.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	m, err := s.loadManifest(true)
	if err != nil {
		return err
	}

	plan, err := s.newEngine(nil).Plan(&engine.PlanRequest{Manifest: m})
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := outputJSON(plan); err != nil {
			return err
		}
	} else {
		printPlan(plan)
	}

	if plan.HasProblems() {
		return fmt.Errorf("preparation would fail: %s", PrintCount(len(plan.Problems), "problem", "problems"))
	}
	return nil
}

func printPlan(plan *planner.PreparePlan) {
	PrintSection("Preparation")
	if len(plan.Operations) == 0 {
		PrintEmptyState("Nothing to move")
	} else {
		rows := make([][]string, 0, len(plan.Operations))
		for _, op := range plan.Operations {
			rows = append(rows, []string{op.Type, op.RelPath, op.SourcePath, op.DestPath})
		}
		PrintTable([]string{"OPERATION", "PATH", "FROM", "TO"}, rows)
	}

	if seq := plan.RestoreSequence(); len(seq) > 0 {
		PrintSection("Restoration")
		items := make([]string, 0, len(seq))
		for _, op := range seq {
			items = append(items, fmt.Sprintf("%s %s", op.Type, op.RelPath))
		}
		PrintNumberedList(items, 1)
	}

	if len(plan.Skipped) > 0 {
		PrintSection("Skipped")
		for _, sk := range plan.Skipped {
			PrintLabelValue(sk.RelPath, sk.Reason)
		}
	}
	if len(plan.Warnings) > 0 {
		_, _ = fmt.Fprintln(stdout)
		for _, w := range plan.Warnings {
			PrintWarning(fmt.Sprintf("%s: %s", w.Path, w.Reason))
		}
	}
	if len(plan.Problems) > 0 {
		_, _ = fmt.Fprintln(stdout)
		for _, p := range plan.Problems {
			PrintError(fmt.Sprintf("%s: %s", p.Path, p.Reason))
		}
	}
}
