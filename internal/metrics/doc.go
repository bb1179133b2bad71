// Package metrics records dualbuild run metrics.
//
// Components receive a Recorder; NoopRecorder is the default. When
// metrics.textfile is configured the CLI injects a PrometheusRecorder and
// writes its registry to that file after each run, for collection by the
// node_exporter textfile collector.
package metrics
