// Package collector wires together the followers, shared buffer,
// flusher, spool, transport client, self-monitoring analyzer, and
// status server into collectord's single long-lived process.
package collector

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cynexa/collectord/internal/analyzer"
	"github.com/cynexa/collectord/internal/buffer"
	"github.com/cynexa/collectord/internal/config"
	"github.com/cynexa/collectord/internal/flusher"
	"github.com/cynexa/collectord/internal/follower"
	"github.com/cynexa/collectord/internal/parser"
	"github.com/cynexa/collectord/internal/spool"
	"github.com/cynexa/collectord/internal/status"
	"github.com/cynexa/collectord/internal/transport"
	"github.com/cynexa/collectord/pkg/models"
)

// Collector is the top-level supervisor: one per process.
type Collector struct {
	cfg           *config.Config
	logger        *log.Logger
	buf           *buffer.Buffer
	spoolSt       *spool.Store
	client        *transport.Client
	flush         *flusher.Flusher
	followers     []*follower.Follower
	prevLinesSeen []int64
	detector      *analyzer.AnomalyDetector
	samples       chan *models.PipelineSample
	status        *status.Server
}

// New builds a Collector from cfg. It fails only when the spool
// directory cannot be created, the one documented fatal startup
// condition (spec.md §7).
func New(cfg *config.Config, logger *log.Logger) (*Collector, error) {
	if logger == nil {
		logger = log.Default()
	}

	spoolSt, err := spool.New(cfg.SpoolDir, cfg.MaxSpoolBytes, logger)
	if err != nil {
		return nil, err
	}

	samples := make(chan *models.PipelineSample, 256)

	buf := buffer.New(cfg.BatchSize, logger)
	client := transport.New(cfg.BackendURL, cfg.APIToken, cfg.ConnectTimeoutDuration(), cfg.RequestTimeoutDuration())
	flush := flusher.New(buf, spoolSt, client, cfg.BatchSize, cfg.FlushIntervalDuration(), samples, logger)

	classifier := parser.NewLineClassifier(nil)
	followers := make([]*follower.Follower, 0, len(cfg.LogPaths))
	for _, path := range cfg.LogPaths {
		followers = append(followers, follower.New(path, cfg.Hostname, buf, nil, classifier, logger))
	}

	detector := analyzer.NewAnomalyDetector(cfg.Monitor)

	c := &Collector{
		cfg:           cfg,
		logger:        logger,
		buf:           buf,
		spoolSt:       spoolSt,
		client:        client,
		flush:         flush,
		followers:     followers,
		prevLinesSeen: make([]int64, len(followers)),
		detector:      detector,
		samples:       samples,
	}
	c.status = status.NewServer(cfg.Dashboard, c, logger)
	return c, nil
}

// Run starts every follower, the flusher, the self-monitoring
// analyzer, and the status server, and blocks until ctx is cancelled.
// It waits for every component to finish shutting down before
// returning, so the caller's exit code can reflect a clean stop
// (spec.md §4.E "Shutdown").
func (c *Collector) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, f := range c.followers {
		wg.Add(1)
		go func(f *follower.Follower) {
			defer wg.Done()
			f.Run(ctx)
		}(f)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.flush.Run(ctx)
	}()

	analysisOutput := make(chan interface{}, 64)
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.detector.Start(ctx, c.samples, analysisOutput)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-analysisOutput:
				if !ok {
					return
				}
				c.status.Publish(msg)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.status.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sampleLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
}

// sampleLoop periodically records the collector's own health as
// PipelineSamples for the analyzer, in place of the teacher's
// per-request log entries. It runs once a second, matching the
// analyzer's own tick. Send-outcome samples (failure rate, flush
// latency) come from the flusher itself via the same channel; this
// loop only reports per-follower throughput and spool-size telemetry.
func (c *Collector) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reportFollowerThroughput()
			c.reportSpoolSize()
		}
	}
}

// reportFollowerThroughput emits one PipelineSample per follower that
// has seen new lines since the last tick, tagged with the follower's
// path so TopSources reflects real per-source volume.
func (c *Collector) reportFollowerThroughput() {
	for i, f := range c.followers {
		seen := f.LinesSeen()
		delta := seen - c.prevLinesSeen[i]
		c.prevLinesSeen[i] = seen
		if delta <= 0 {
			continue
		}

		sample := &models.PipelineSample{
			Timestamp:  time.Now(),
			Source:     f.Path(),
			Success:    true,
			EventCount: int(delta),
		}
		select {
		case c.samples <- sample:
		default:
			c.logger.Printf("collector: sample channel full, dropping throughput sample for %s", f.Path())
		}
	}
}

// reportSpoolSize emits a bare telemetry sample carrying only the
// current spool size, so AvgFlushLatency/FailureRate are unaffected
// by it (both are gated on models.SourceFlusher).
func (c *Collector) reportSpoolSize() {
	spoolBytes, err := c.spoolSt.Size()
	if err != nil {
		c.logger.Printf("collector: failed to read spool size: %v", err)
	}

	sample := &models.PipelineSample{
		Timestamp:  time.Now(),
		SpoolBytes: spoolBytes,
	}
	select {
	case c.samples <- sample:
	default:
		c.logger.Printf("collector: sample channel full, dropping spool-size sample")
	}
}

// Snapshot implements status.Provider.
func (c *Collector) Snapshot() status.Snapshot {
	followers := make([]status.FollowerStatus, 0, len(c.followers))
	for _, f := range c.followers {
		followers = append(followers, status.FollowerStatus{
			Path:      f.Path(),
			State:     f.State().String(),
			LinesSeen: f.LinesSeen(),
		})
	}

	spoolBytes, err := c.spoolSt.Size()
	if err != nil {
		c.logger.Printf("collector: failed to read spool size for snapshot: %v", err)
	}

	return status.Snapshot{
		Followers:   followers,
		BufferDepth: c.buf.Len(),
		SpoolBytes:  spoolBytes,
	}
}
