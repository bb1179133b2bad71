package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	phaseDuration *prom.HistogramVec
	runDuration   *prom.HistogramVec
	runOutcome    *prom.CounterVec
	entryResults  *prom.CounterVec
	lastRun       *prom.GaugeVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg,
// or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "dualbuild",
			Name:      "phase_duration_seconds",
			Help:      "Duration of run phases",
			Buckets:   prom.ExponentialBuckets(0.01, 4, 10),
		}, []string{"phase"}),
		runDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "dualbuild",
			Name:      "run_duration_seconds",
			Help:      "Total run duration",
			Buckets:   prom.ExponentialBuckets(0.1, 4, 10),
		}, []string{"kind"}),
		runOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dualbuild",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by kind",
		}, []string{"kind", "outcome"}),
		entryResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dualbuild",
			Name:      "entry_results_total",
			Help:      "Final manifest entry states",
		}, []string{"state"}),
		lastRun: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "dualbuild",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}, []string{"kind"}),
	}
	reg.MustRegister(pr.phaseDuration, pr.runDuration, pr.runOutcome, pr.entryResults, pr.lastRun)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.reg
}

func (p *PrometheusRecorder) ObservePhaseDuration(phase string, d time.Duration) {
	if p == nil {
		return
	}
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(kind string, d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(kind string, outcome OutcomeLabel) {
	if p == nil {
		return
	}
	p.runOutcome.WithLabelValues(kind, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncEntryResult(state string) {
	if p == nil {
		return
	}
	p.entryResults.WithLabelValues(state).Inc()
}

func (p *PrometheusRecorder) SetLastRun(kind string, at time.Time) {
	if p == nil {
		return
	}
	p.lastRun.WithLabelValues(kind).Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the text exposition format to path.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
