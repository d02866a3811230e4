package analyzer

import (
	"sort"
	"sync"
	"time"

	"github.com/cynexa/collectord/pkg/models"
)

// MetricsCollector collects and aggregates pipeline samples
type MetricsCollector struct {
	windowSize        int
	currentWindow     *MetricsWindow
	historicalMetrics []models.Metrics
	maxHistoricalSize int
	mu                sync.RWMutex
}

// MetricsWindow represents a time window of collector pipeline health
type MetricsWindow struct {
	startTime     time.Time
	totalEvents   int
	sendAttempts  int
	sendFailures  int
	latencies     []float64
	lastSpoolSize int64
	sources       map[string]int
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(windowSize int) *MetricsCollector {
	return &MetricsCollector{
		windowSize:        windowSize,
		currentWindow:     newMetricsWindow(),
		historicalMetrics: make([]models.Metrics, 0),
		maxHistoricalSize: 100,
	}
}

func newMetricsWindow() *MetricsWindow {
	return &MetricsWindow{
		startTime: time.Now(),
		sources:   make(map[string]int),
		latencies: make([]float64, 0),
	}
}

// AddSample adds one pipeline observation — a follower's throughput
// since the last tick, a flusher send attempt, or a spool-size
// snapshot — to the current window. Only samples from the flusher
// (Source == models.SourceFlusher) count toward FailureRate and
// AvgFlushLatency; a follower emitting many throughput samples per
// send attempt must not dilute the failure signal. Conversely, only
// non-flusher samples count toward EventsPerSec and TopSources, so
// sent events are not counted a second time.
func (mc *MetricsCollector) AddSample(s *models.PipelineSample) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if s.Source == models.SourceFlusher {
		mc.currentWindow.sendAttempts++
		if !s.Success {
			mc.currentWindow.sendFailures++
		}
		if s.LatencyMs > 0 {
			mc.currentWindow.latencies = append(mc.currentWindow.latencies, s.LatencyMs)
		}
	} else {
		mc.currentWindow.totalEvents += s.EventCount
		if s.Source != "" {
			mc.currentWindow.sources[s.Source] += s.EventCount
		}
	}

	if s.SpoolBytes > 0 {
		mc.currentWindow.lastSpoolSize = s.SpoolBytes
	}
}

// GetCurrentMetrics returns aggregated metrics for the current window
func (mc *MetricsCollector) GetCurrentMetrics() *models.Metrics {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	metrics := mc.computeMetrics(mc.currentWindow)

	// Archive current window and start new one
	mc.historicalMetrics = append(mc.historicalMetrics, *metrics)
	if len(mc.historicalMetrics) > mc.maxHistoricalSize {
		mc.historicalMetrics = mc.historicalMetrics[1:]
	}

	mc.currentWindow = newMetricsWindow()

	return metrics
}

// GetHistoricalMetrics returns historical metrics
func (mc *MetricsCollector) GetHistoricalMetrics() []models.Metrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	// Return a copy
	historical := make([]models.Metrics, len(mc.historicalMetrics))
	copy(historical, mc.historicalMetrics)
	return historical
}

func (mc *MetricsCollector) computeMetrics(window *MetricsWindow) *models.Metrics {
	duration := time.Since(window.startTime).Seconds()
	if duration == 0 {
		duration = 1
	}

	eventsPerSec := float64(window.totalEvents) / duration
	failureRate := 0.0
	if window.sendAttempts > 0 {
		failureRate = float64(window.sendFailures) / float64(window.sendAttempts)
	}

	avgLatency := 0.0
	if len(window.latencies) > 0 {
		sum := 0.0
		for _, l := range window.latencies {
			sum += l
		}
		avgLatency = sum / float64(len(window.latencies))
	}

	return &models.Metrics{
		Timestamp:       time.Now(),
		EventsPerSec:    eventsPerSec,
		FailureRate:     failureRate,
		AvgFlushLatency: avgLatency,
		SpoolBytes:      window.lastSpoolSize,
		TopSources:      getTopSources(window.sources, 10),
	}
}

func getTopSources(sources map[string]int, limit int) []models.SourceCount {
	type kv struct {
		Key   string
		Value int
	}

	var sorted []kv
	for k, v := range sources {
		sorted = append(sorted, kv{k, v})
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	result := make([]models.SourceCount, 0, limit)
	for i := 0; i < len(sorted) && i < limit; i++ {
		result = append(result, models.SourceCount{
			Source: sorted[i].Key,
			Count:  sorted[i].Value,
		})
	}

	return result
}
