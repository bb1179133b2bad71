package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/danieljhkim/dualbuild/internal/clock"
	"github.com/danieljhkim/dualbuild/internal/metrics"
)

// Phase is a stage of a run.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePreparing Phase = "preparing"
	PhaseBuilding  Phase = "building"
	PhaseRestoring Phase = "restoring"
	PhasePackaging Phase = "packaging"
	PhaseDone      Phase = "done"
)

// transitions lists the phases reachable from each phase. Preparing may skip
// Building; Idle may go straight to Restoring for recovery.
var transitions = map[Phase][]Phase{
	PhaseIdle:      {PhasePreparing, PhaseRestoring},
	PhasePreparing: {PhaseBuilding, PhaseRestoring},
	PhaseBuilding:  {PhaseRestoring},
	PhaseRestoring: {PhasePackaging, PhaseDone},
	PhasePackaging: {PhaseDone},
}

// phaseTracker enforces the transition table and times each phase.
type phaseTracker struct {
	current   Phase
	visited   []Phase
	enteredAt time.Time
	durations map[Phase]time.Duration
	clock     clock.Clock
	recorder  metrics.Recorder
}

func newPhaseTracker(clk clock.Clock, rec metrics.Recorder) *phaseTracker {
	return &phaseTracker{
		current:   PhaseIdle,
		visited:   []Phase{PhaseIdle},
		enteredAt: clk.Now(),
		durations: make(map[Phase]time.Duration),
		clock:     clk,
		recorder:  rec,
	}
}

func (t *phaseTracker) enter(next Phase) error {
	if !slices.Contains(transitions[t.current], next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.current, next)
	}
	now := t.clock.Now()
	d := now.Sub(t.enteredAt)
	t.durations[t.current] += d
	if t.current != PhaseIdle {
		t.recorder.ObservePhaseDuration(string(t.current), d)
	}
	t.current = next
	t.enteredAt = now
	t.visited = append(t.visited, next)
	return nil
}

// mustEnter is for transitions the run sequence guarantees are legal.
func (t *phaseTracker) mustEnter(next Phase) {
	if err := t.enter(next); err != nil {
		panic(err)
	}
}
