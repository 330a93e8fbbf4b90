// Package metrics defines the sinks that record scheduling outcomes for
// observability. Sinks like PromSink and InfluxSink in infra/metrics record
// per-contact schedules and batch summaries and can be combined with
// NewMultiSink. NewMetricsSink returns a MultiSink automatically when several
// sinks are configured.
package metrics
