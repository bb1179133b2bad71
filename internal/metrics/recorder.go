package metrics

import "time"

// OutcomeLabel enumerates run outcomes for counters.
type OutcomeLabel string

const (
	OutcomeSuccess     OutcomeLabel = "success"
	OutcomeFailure     OutcomeLabel = "failure"
	OutcomeInterrupted OutcomeLabel = "interrupted"
)

// Recorder defines observability hooks for runs, phases and manifest entries.
type Recorder interface {
	ObservePhaseDuration(phase string, d time.Duration)
	ObserveRunDuration(kind string, d time.Duration)
	IncRunOutcome(kind string, outcome OutcomeLabel)
	IncEntryResult(state string)
	SetLastRun(kind string, at time.Time)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePhaseDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(string, time.Duration)   {}
func (NoopRecorder) IncRunOutcome(string, OutcomeLabel)         {}
func (NoopRecorder) IncEntryResult(string)                      {}
func (NoopRecorder) SetLastRun(string, time.Time)               {}
