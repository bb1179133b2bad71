package planner

import (
	"fmt"

	"github.com/danieljhkim/dualbuild/internal/fsops"
	"github.com/danieljhkim/dualbuild/internal/manifest"
)

// BuildPreparePlan generates a deterministic plan to prepare the tree for
// the entries of m, in manifest order.
func BuildPreparePlan(m *manifest.Manifest, fs fsops.FS) (*PreparePlan, error) {
	plan := NewPreparePlan()
	checker := NewChecker(fs)

	for _, entry := range m.Entries {
		status, err := checker.CheckEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", entry.RelPath, err)
		}

		for _, w := range status.Warnings {
			plan.AddWarning(w)
		}
		if status.Problem != nil {
			plan.AddProblem(*status.Problem)
		}
		if !status.SourceExists {
			if entry.Optional {
				plan.Skipped = append(plan.Skipped, Skip{
					RelPath: entry.RelPath,
					Reason:  "not present in this checkout",
				})
			}
			continue
		}

		plan.AddOperation(Operation{
			Type:       OpQuarantine,
			RelPath:    entry.RelPath,
			SourcePath: entry.SourcePath,
			DestPath:   entry.QuarantinePath,
		})
		if entry.Kind == manifest.KindReplace {
			plan.AddOperation(Operation{
				Type:       OpInstallStub,
				RelPath:    entry.RelPath,
				SourcePath: entry.StubSourcePath,
				DestPath:   entry.SourcePath,
			})
		}
	}

	return plan, nil
}
