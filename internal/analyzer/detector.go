package analyzer

import (
	"context"
	"math"
	"time"

	"github.com/cynexa/collectord/internal/config"
	"github.com/cynexa/collectord/pkg/models"
)

// AnomalyDetector watches the collector's own pipeline health and
// raises Anomalies when it drifts from its recent baseline.
type AnomalyDetector struct {
	config           config.MonitorConfig
	metricsCollector *MetricsCollector
	algorithm        DetectionAlgorithm
}

// DetectionAlgorithm is implemented by the different detection
// strategies.
type DetectionAlgorithm interface {
	Detect(metrics *models.Metrics, historical []models.Metrics) []models.Anomaly
}

// NewAnomalyDetector creates a new anomaly detector from a MonitorConfig
// (spec.md's self-monitoring configuration, formerly the teacher's
// HTTP-traffic DetectorConfig).
func NewAnomalyDetector(cfg config.MonitorConfig) *AnomalyDetector {
	var algo DetectionAlgorithm
	switch cfg.Algorithm {
	case "moving_average":
		algo = NewMovingAverageDetector(cfg.SensitivityLevel, cfg.SmoothingFactor)
	case "cusum":
		algo = NewCUSUMDetector(cfg.CUSUMThreshold, cfg.CUSUMSlack)
	default:
		algo = &StdDevDetector{threshold: cfg.SensitivityLevel}
	}

	return &AnomalyDetector{
		config:           cfg,
		metricsCollector: NewMetricsCollector(cfg.WindowSize),
		algorithm:        algo,
	}
}

// Start consumes pipeline samples from input and, once a second,
// computes metrics and publishes metrics plus any anomalies to output.
func (ad *AnomalyDetector) Start(ctx context.Context, input <-chan *models.PipelineSample, output chan<- interface{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-input:
			if !ok {
				return
			}
			ad.metricsCollector.AddSample(sample)
		case <-ticker.C:
			metrics := ad.metricsCollector.GetCurrentMetrics()
			historical := ad.metricsCollector.GetHistoricalMetrics()

			anomalies := ad.algorithm.Detect(metrics, historical)

			output <- metrics
			for _, anomaly := range anomalies {
				output <- anomaly
			}
		}
	}
}

// StdDevDetector flags a metric when it strays more than threshold
// standard deviations from its historical mean.
type StdDevDetector struct {
	threshold float64
}

func (d *StdDevDetector) Detect(current *models.Metrics, historical []models.Metrics) []models.Anomaly {
	anomalies := []models.Anomaly{}

	if len(historical) < 10 {
		return anomalies // not enough data for a baseline
	}

	failureMean, failureStdDev := calculateStats(historical, func(m models.Metrics) float64 {
		return m.FailureRate
	})
	if math.Abs(current.FailureRate-failureMean) > d.threshold*failureStdDev {
		anomalies = append(anomalies, models.Anomaly{
			Timestamp:     time.Now(),
			Type:          models.AnomalyTypeFailureRate,
			Severity:      calculateSeverity(current.FailureRate, failureMean, failureStdDev),
			Description:   "Abnormal send failure rate detected",
			Metric:        "failure_rate",
			ActualValue:   current.FailureRate,
			ExpectedValue: failureMean,
			Deviation:     math.Abs(current.FailureRate - failureMean),
		})
	}

	throughputMean, throughputStdDev := calculateStats(historical, func(m models.Metrics) float64 {
		return m.EventsPerSec
	})
	if math.Abs(current.EventsPerSec-throughputMean) > d.threshold*throughputStdDev {
		anomalies = append(anomalies, models.Anomaly{
			Timestamp:     time.Now(),
			Type:          models.AnomalyTypeThroughput,
			Severity:      calculateSeverity(current.EventsPerSec, throughputMean, throughputStdDev),
			Description:   "Event throughput spike or drop detected",
			Metric:        "events_per_sec",
			ActualValue:   current.EventsPerSec,
			ExpectedValue: throughputMean,
			Deviation:     math.Abs(current.EventsPerSec - throughputMean),
		})
	}

	latencyMean, latencyStdDev := calculateStats(historical, func(m models.Metrics) float64 {
		return m.AvgFlushLatency
	})
	if current.AvgFlushLatency > latencyMean+d.threshold*latencyStdDev {
		anomalies = append(anomalies, models.Anomaly{
			Timestamp:     time.Now(),
			Type:          models.AnomalyTypeFlushLatency,
			Severity:      calculateSeverity(current.AvgFlushLatency, latencyMean, latencyStdDev),
			Description:   "Flush latency degradation detected",
			Metric:        "avg_flush_latency_ms",
			ActualValue:   current.AvgFlushLatency,
			ExpectedValue: latencyMean,
			Deviation:     current.AvgFlushLatency - latencyMean,
		})
	}

	spoolMean, spoolStdDev := calculateStats(historical, func(m models.Metrics) float64 {
		return float64(m.SpoolBytes)
	})
	currentSpoolBytes := float64(current.SpoolBytes)
	if spoolStdDev > 0 && currentSpoolBytes-spoolMean > d.threshold*spoolStdDev {
		anomalies = append(anomalies, models.Anomaly{
			Timestamp:     time.Now(),
			Type:          models.AnomalyTypeSpoolGrowth,
			Severity:      calculateSeverity(currentSpoolBytes, spoolMean, spoolStdDev),
			Description:   "Spool directory growing faster than its historical baseline",
			Metric:        "spool_bytes",
			ActualValue:   currentSpoolBytes,
			ExpectedValue: spoolMean,
			Deviation:     currentSpoolBytes - spoolMean,
		})
	}

	return anomalies
}

// MovingAverageDetector flags a metric when it strays from an
// exponentially weighted moving average baseline by more than
// threshold times the current baseline value.
type MovingAverageDetector struct {
	threshold float64
	alpha     float64

	initialized         bool
	ewmaFailureRate     float64
	ewmaEventsPerSec    float64
	ewmaAvgFlushLatency float64
}

// NewMovingAverageDetector creates an EWMA-based detector. alpha is
// clamped to 0.3 when outside (0, 1).
func NewMovingAverageDetector(threshold, alpha float64) *MovingAverageDetector {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.3
	}
	return &MovingAverageDetector{threshold: threshold, alpha: alpha}
}

func (d *MovingAverageDetector) Detect(current *models.Metrics, historical []models.Metrics) []models.Anomaly {
	anomalies := []models.Anomaly{}

	if !d.initialized {
		if len(historical) < 10 {
			return anomalies
		}
		d.ewmaFailureRate, _ = calculateStats(historical, func(m models.Metrics) float64 { return m.FailureRate })
		d.ewmaEventsPerSec, _ = calculateStats(historical, func(m models.Metrics) float64 { return m.EventsPerSec })
		d.ewmaAvgFlushLatency, _ = calculateStats(historical, func(m models.Metrics) float64 { return m.AvgFlushLatency })
		d.initialized = true
		return anomalies
	}

	anomalies = append(anomalies, d.checkAndUpdate(models.AnomalyTypeFailureRate, "failure_rate",
		current.FailureRate, &d.ewmaFailureRate)...)
	anomalies = append(anomalies, d.checkAndUpdate(models.AnomalyTypeThroughput, "events_per_sec",
		current.EventsPerSec, &d.ewmaEventsPerSec)...)
	anomalies = append(anomalies, d.checkAndUpdate(models.AnomalyTypeFlushLatency, "avg_flush_latency_ms",
		current.AvgFlushLatency, &d.ewmaAvgFlushLatency)...)

	return anomalies
}

func (d *MovingAverageDetector) checkAndUpdate(t models.AnomalyType, metricName string, actual float64, ewma *float64) []models.Anomaly {
	baseline := *ewma
	bound := math.Abs(d.threshold * baseline)
	deviation := math.Abs(actual - baseline)

	var anomalies []models.Anomaly
	if deviation > bound {
		anomalies = append(anomalies, models.Anomaly{
			Timestamp:     time.Now(),
			Type:          t,
			Severity:      calculateSeverity(actual, baseline, bound),
			Description:   "EWMA baseline deviation detected",
			Metric:        metricName,
			ActualValue:   actual,
			ExpectedValue: baseline,
			Deviation:     deviation,
		})
	}

	*ewma = d.alpha*actual + (1-d.alpha)*baseline
	return anomalies
}

// CUSUMDetector uses a two-sided cumulative sum to catch sustained
// drift that a single EWMA comparison can miss.
type CUSUMDetector struct {
	threshold float64
	slack     float64

	initialized bool
	states      map[string]*cusumState
	targets     map[string]float64
}

type cusumState struct {
	pos, neg float64
}

// NewCUSUMDetector creates a CUSUM-based detector. threshold is the
// cumulative deviation that triggers an alarm; slack dampens small
// fluctuations from contributing to the running sum.
func NewCUSUMDetector(threshold, slack float64) *CUSUMDetector {
	return &CUSUMDetector{
		threshold: threshold,
		slack:     slack,
		states:    make(map[string]*cusumState),
		targets:   make(map[string]float64),
	}
}

func (d *CUSUMDetector) Detect(current *models.Metrics, historical []models.Metrics) []models.Anomaly {
	anomalies := []models.Anomaly{}

	if !d.initialized {
		if len(historical) < 10 {
			return anomalies
		}
		d.targets["failure_rate"], _ = calculateStats(historical, func(m models.Metrics) float64 { return m.FailureRate })
		d.targets["events_per_sec"], _ = calculateStats(historical, func(m models.Metrics) float64 { return m.EventsPerSec })
		d.targets["avg_flush_latency_ms"], _ = calculateStats(historical, func(m models.Metrics) float64 { return m.AvgFlushLatency })
		d.states["failure_rate"] = &cusumState{}
		d.states["events_per_sec"] = &cusumState{}
		d.states["avg_flush_latency_ms"] = &cusumState{}
		d.initialized = true
		return anomalies
	}

	anomalies = append(anomalies, d.check(models.AnomalyTypeFailureRate, "failure_rate", current.FailureRate)...)
	anomalies = append(anomalies, d.check(models.AnomalyTypeThroughput, "events_per_sec", current.EventsPerSec)...)
	anomalies = append(anomalies, d.check(models.AnomalyTypeFlushLatency, "avg_flush_latency_ms", current.AvgFlushLatency)...)

	return anomalies
}

func (d *CUSUMDetector) check(t models.AnomalyType, metricName string, actual float64) []models.Anomaly {
	target := d.targets[metricName]
	state := d.states[metricName]

	deviation := actual - target
	state.pos = math.Max(0, state.pos+deviation-d.slack)
	state.neg = math.Max(0, state.neg-deviation-d.slack)

	var anomalies []models.Anomaly
	if state.pos > d.threshold || state.neg > d.threshold {
		anomalies = append(anomalies, models.Anomaly{
			Timestamp:     time.Now(),
			Type:          t,
			Severity:      cusumSeverity(math.Max(state.pos, state.neg), d.threshold),
			Description:   "Sustained drift detected via cumulative sum",
			Metric:        metricName,
			ActualValue:   actual,
			ExpectedValue: target,
			Deviation:     math.Abs(deviation),
		})
		state.pos = 0
		state.neg = 0
	}

	return anomalies
}

func cusumSeverity(cusum, threshold float64) models.Severity {
	ratio := cusum / threshold
	switch {
	case ratio > 3:
		return models.SeverityCritical
	case ratio > 2:
		return models.SeverityHigh
	case ratio > 1.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// calculateStats computes mean and population standard deviation.
func calculateStats(metrics []models.Metrics, getValue func(models.Metrics) float64) (mean, stdDev float64) {
	if len(metrics) == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, m := range metrics {
		sum += getValue(m)
	}
	mean = sum / float64(len(metrics))

	variance := 0.0
	for _, m := range metrics {
		diff := getValue(m) - mean
		variance += diff * diff
	}
	stdDev = math.Sqrt(variance / float64(len(metrics)))

	return mean, stdDev
}

func calculateSeverity(actual, expected, stdDev float64) models.Severity {
	deviation := math.Abs(actual - expected)
	if stdDev <= 0 {
		if deviation > 0 {
			return models.SeverityHigh
		}
		return models.SeverityLow
	}
	switch {
	case deviation > 4*stdDev:
		return models.SeverityCritical
	case deviation > 3*stdDev:
		return models.SeverityHigh
	case deviation > 2*stdDev:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
