// Package models holds the data types shared by the collector's
// self-monitoring pipeline: raw per-tick samples in, aggregated
// metrics and anomalies out.
package models

import "time"

// SourceFlusher identifies a PipelineSample reporting the outcome of a
// real HTTP send attempt, as opposed to a per-follower throughput
// sample or a bare spool-size snapshot. MetricsCollector uses this to
// compute FailureRate and AvgFlushLatency only from actual send
// attempts, not from every sample it receives.
const SourceFlusher = "flusher"

// PipelineSample is one observation of the collector's own behavior —
// a single flush attempt, a follower's throughput since the last tick,
// or a spool-size snapshot — fed to the MetricsCollector. It plays the
// role the teacher's LogEntry played for proxied HTTP traffic, but
// describes the collector watching itself rather than an upstream
// service.
type PipelineSample struct {
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"` // follower path, SourceFlusher for a send attempt, or "" for a bare telemetry snapshot
	Success    bool      `json:"success"`
	LatencyMs  float64   `json:"latency_ms"`
	EventCount int       `json:"event_count"`
	SpoolBytes int64     `json:"spool_bytes"`
}

// Anomaly represents a detected deviation in collector pipeline
// health.
type Anomaly struct {
	Timestamp     time.Time   `json:"timestamp"`
	Type          AnomalyType `json:"type"`
	Severity      Severity    `json:"severity"`
	Description   string      `json:"description"`
	Metric        string      `json:"metric"`
	ActualValue   float64     `json:"actual_value"`
	ExpectedValue float64     `json:"expected_value"`
	Deviation     float64     `json:"deviation"`
}

// AnomalyType identifies what kind of pipeline health deviation was
// detected.
type AnomalyType string

const (
	AnomalyTypeFailureRate  AnomalyType = "failure_rate"
	AnomalyTypeThroughput   AnomalyType = "throughput"
	AnomalyTypeFlushLatency AnomalyType = "flush_latency"
	AnomalyTypeSpoolGrowth  AnomalyType = "spool_growth"
)

// Severity represents anomaly severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Metrics is an aggregated window of collector pipeline health,
// computed once per analysis tick.
type Metrics struct {
	Timestamp        time.Time     `json:"timestamp"`
	EventsPerSec     float64       `json:"events_per_sec"`
	FailureRate      float64       `json:"failure_rate"`
	AvgFlushLatency  float64       `json:"avg_flush_latency_ms"`
	SpoolBytes       int64         `json:"spool_bytes"`
	TopSources       []SourceCount `json:"top_sources"`
}

// SourceCount is the number of events observed from one follower path
// within a window.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}
