package planner

// PreparePlan represents the steps preparation would take for a manifest.
type PreparePlan struct {
	// Operations is the ordered list of operations to execute
	Operations []Operation `json:"operations"`

	// Skipped lists optional entries absent from the tree
	Skipped []Skip `json:"skipped"`

	// Problems lists conditions that would fail preparation (empty if none)
	Problems []Problem `json:"problems"`

	// Warnings lists conditions preparation handles but an operator may
	// want to know about
	Warnings []Problem `json:"warnings"`
}

// Operation represents a single filesystem operation to execute.
type Operation struct {
	// Type is the operation type: "quarantine", "install_stub",
	// "uninstall_stub", "restore"
	Type string `json:"type"`

	// RelPath is the manifest path of the entry
	RelPath string `json:"path"`

	// SourcePath is where the operation reads from (absolute)
	SourcePath string `json:"source"`

	// DestPath is where the operation writes to (absolute)
	DestPath string `json:"dest"`
}

// Skip records an optional entry preparation would pass over.
type Skip struct {
	RelPath string `json:"path"`
	Reason  string `json:"reason"`
}

// Problem represents an issue detected during planning.
type Problem struct {
	// Path is the manifest path the problem concerns
	Path string `json:"path"`

	// Reason is a human-readable explanation
	Reason string `json:"reason"`
}

// Operation type constants
const (
	OpQuarantine    = "quarantine"
	OpInstallStub   = "install_stub"
	OpUninstallStub = "uninstall_stub"
	OpRestore       = "restore"
)

// NewPreparePlan creates a new empty PreparePlan.
func NewPreparePlan() *PreparePlan {
	return &PreparePlan{
		Operations: []Operation{},
		Skipped:    []Skip{},
		Problems:   []Problem{},
		Warnings:   []Problem{},
	}
}

// HasProblems returns true if preparation would fail.
func (p *PreparePlan) HasProblems() bool {
	return len(p.Problems) > 0
}

// AddOperation adds an operation to the plan.
func (p *PreparePlan) AddOperation(op Operation) {
	p.Operations = append(p.Operations, op)
}

// AddProblem adds a problem to the plan.
func (p *PreparePlan) AddProblem(problem Problem) {
	p.Problems = append(p.Problems, problem)
}

// AddWarning adds a warning to the plan.
func (p *PreparePlan) AddWarning(warning Problem) {
	p.Warnings = append(p.Warnings, warning)
}

// RestoreSequence returns the operations that undo the plan: every
// quarantine in reverse order, each preceded by removal of its stub.
func (p *PreparePlan) RestoreSequence() []Operation {
	stubbed := make(map[string]Operation)
	for _, op := range p.Operations {
		if op.Type == OpInstallStub {
			stubbed[op.RelPath] = op
		}
	}

	var seq []Operation
	for i := len(p.Operations) - 1; i >= 0; i-- {
		op := p.Operations[i]
		if op.Type != OpQuarantine {
			continue
		}
		if _, ok := stubbed[op.RelPath]; ok {
			seq = append(seq, Operation{
				Type:       OpUninstallStub,
				RelPath:    op.RelPath,
				SourcePath: op.SourcePath,
			})
		}
		seq = append(seq, Operation{
			Type:       OpRestore,
			RelPath:    op.RelPath,
			SourcePath: op.DestPath,
			DestPath:   op.SourcePath,
		})
	}
	return seq
}
