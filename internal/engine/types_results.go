package engine

import (
	"encoding/json"
	"time"

	"github.com/danieljhkim/dualbuild/internal/buildexec"
	"github.com/danieljhkim/dualbuild/internal/manifest"
	"github.com/danieljhkim/dualbuild/internal/variant"
)

// Run kinds.
const (
	KindBuild   = "build"
	KindRecover = "recover"

	stepBuild   = "build"
	stepPackage = "package"
)

// Outcome is the terminal result of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// EntryState is where a manifest entry ended up.
type EntryState string

const (
	// StateRestored means the entry was moved out and put back.
	StateRestored EntryState = "restored"

	// StateSkipped means an optional entry was absent.
	StateSkipped EntryState = "skipped"

	// StateUntouched means the entry was never moved.
	StateUntouched EntryState = "untouched"

	// StateQuarantined means the entry is still in quarantine.
	StateQuarantined EntryState = "quarantined"

	// StateStubInstalled means a stub still occupies the source path.
	StateStubInstalled EntryState = "stub-installed"
)

// EntryReport is the final state of one manifest entry.
type EntryReport struct {
	Path           string        `json:"path"`
	Kind           manifest.Kind `json:"kind"`
	State          EntryState    `json:"state"`
	QuarantinePath string        `json:"quarantine_path"`

	// Err is the first error recorded for the entry
	Err error `json:"-"`

	// HashBefore and HashAfter are set when verification ran
	HashBefore string `json:"hash_before,omitempty"`
	HashAfter  string `json:"hash_after,omitempty"`
}

// ErrorMessage returns the entry error message, or "".
func (r EntryReport) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// MarshalJSON includes the error message.
func (r EntryReport) MarshalJSON() ([]byte, error) {
	type alias EntryReport
	return json.Marshal(struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias(r), r.ErrorMessage()})
}

// RunResult represents the result of a build or recover run.
type RunResult struct {
	// RunID uniquely identifies the run
	RunID string `json:"run_id"`

	// Kind is "build" or "recover"
	Kind string `json:"kind"`

	Target     variant.Target `json:"target"`
	SourceRoot string         `json:"source_root"`

	// Phases lists the phases visited, in order
	Phases []Phase `json:"phases"`

	// PhaseDurations is the time spent in each phase
	PhaseDurations map[Phase]time.Duration `json:"phase_durations"`

	Outcome    Outcome   `json:"outcome"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Entries is one report per manifest entry, in manifest order
	Entries []EntryReport `json:"entries"`

	// Build is the build tool result (nil if it never ran)
	Build *buildexec.Result `json:"build,omitempty"`

	// Package is the packaging step result (nil if it never ran)
	Package *buildexec.Result `json:"package,omitempty"`

	// Err is the root error (nil on success)
	Err error `json:"-"`
}

// Success reports whether the run succeeded.
func (r *RunResult) Success() bool {
	return r != nil && r.Outcome == OutcomeSuccess
}

// Duration returns the wall time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExitCode returns the build tool exit code, or nil if it never ran.
func (r *RunResult) ExitCode() *int {
	if r == nil || r.Build == nil {
		return nil
	}
	code := r.Build.ExitCode
	return &code
}

// ErrorMessage returns the root error message, or "".
func (r *RunResult) ErrorMessage() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Unrestored lists entries left out of place.
func (r *RunResult) Unrestored() []EntryReport {
	var out []EntryReport
	for _, e := range r.Entries {
		if e.State == StateQuarantined || e.State == StateStubInstalled {
			out = append(out, e)
		}
	}
	return out
}

// MarshalJSON includes the root error message.
func (r *RunResult) MarshalJSON() ([]byte, error) {
	type alias RunResult
	return json.Marshal(struct {
		*alias
		Error string `json:"error,omitempty"`
	}{(*alias)(r), r.ErrorMessage()})
}
