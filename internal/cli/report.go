package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/danieljhkim/dualbuild/internal/engine"
)

// printRunReport renders the final report of a build or recover run.
func printRunReport(res *engine.RunResult) {
	title := "Build report"
	if res.Kind == engine.KindRecover {
		title = "Recovery report"
	}
	PrintSection(title)

	PrintLabelValue("Run", res.RunID)
	if res.Target != "" {
		PrintLabelValue("Target", string(res.Target))
	}
	PrintLabelValue("Source root", res.SourceRoot)
	PrintLabelValue("Phases", joinPhases(res.Phases))
	PrintLabelValue("Duration", res.Duration().Round(time.Millisecond).String())
	if res.Build != nil {
		PrintLabelValue("Build exit code", fmt.Sprintf("%d", res.Build.ExitCode))
	}
	if res.Package != nil {
		PrintLabelValue("Package exit code", fmt.Sprintf("%d", res.Package.ExitCode))
	}

	if len(res.Entries) > 0 {
		_, _ = fmt.Fprintln(stdout)
		rows := make([][]string, 0, len(res.Entries))
		for _, e := range res.Entries {
			rows = append(rows, []string{e.Path, string(e.Kind), string(e.State), e.ErrorMessage()})
		}
		PrintTable([]string{"PATH", "KIND", "STATE", "ERROR"}, rows)
	}
	_, _ = fmt.Fprintln(stdout)

	if left := res.Unrestored(); len(left) > 0 {
		PrintWarning(fmt.Sprintf("%s left out of place:", PrintCount(len(left), "entry", "entries")))
		items := make([]string, 0, len(left))
		for _, e := range left {
			items = append(items, fmt.Sprintf("%s (%s, held at %s)", e.Path, e.State, e.QuarantinePath))
		}
		PrintList(items, 1)
		PrintInfo("Run 'dualbuild recover' to put them back.")
	}

	if res.Err != nil {
		if res.Build != nil && !res.Build.Success() && res.Build.Output != "" {
			PrintSection("Build output (tail)")
			PrintInfo(strings.TrimRight(res.Build.Output, "\n"))
		}
		PrintError(res.ErrorMessage())
		return
	}
	if res.Kind == engine.KindRecover {
		PrintSuccess("Tree restored")
		return
	}
	PrintSuccess(fmt.Sprintf("Built %s target", res.Target))
}

func joinPhases(phases []engine.Phase) string {
	parts := make([]string, len(phases))
	for i, p := range phases {
		parts[i] = string(p)
	}
	return strings.Join(parts, " → ")
}
