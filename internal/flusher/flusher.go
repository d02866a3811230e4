// Package flusher drives the size-and-time flush policy, orders spool
// replay ahead of live sends, and routes failed sends to the spool.
package flusher

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cynexa/collectord/internal/event"
	"github.com/cynexa/collectord/internal/spool"
	"github.com/cynexa/collectord/pkg/models"
)

// tick is the scheduling granularity from spec.md §4.E.
const tick = 500 * time.Millisecond

// spoolDrainPeriod is the independent periodic drain interval. This
// replaces the source's `int(time.time()) % 30 == 0` check (flagged as
// a bug in spec.md §9) with an explicit monotonic timer.
const spoolDrainPeriod = 30 * time.Second

// Buffer is the subset of *buffer.Buffer the flusher needs.
type Buffer interface {
	DrainIfReady(minSize int, maxAge time.Duration, now time.Time) *event.Batch
	DrainAll(now time.Time) *event.Batch
}

// Sender delivers one batch. *transport.Client satisfies this.
type Sender interface {
	Send(ctx context.Context, batch *event.Batch) error
}

// Spool is the subset of *spool.Store the flusher needs.
type Spool interface {
	Write(batch *event.Batch) error
	ListOldestFirst() ([]string, error)
	Read(path string) (*event.Batch, error)
	Delete(path string) error
}

// Flusher is the single long-lived worker described in spec.md §4.E.
type Flusher struct {
	buffer    Buffer
	spool     Spool
	sender    Sender
	batchSize int
	flushAge  time.Duration
	samples   chan<- *models.PipelineSample
	logger    *log.Logger
}

// New creates a Flusher. samples, if non-nil, receives one
// PipelineSample per send attempt (spool replay or live) so the
// analyzer can compute real failure rate and flush latency; a full
// channel drops the sample rather than blocking the send path.
func New(buf Buffer, sp Spool, sender Sender, batchSize int, flushAge time.Duration, samples chan<- *models.PipelineSample, logger *log.Logger) *Flusher {
	if logger == nil {
		logger = log.Default()
	}
	return &Flusher{
		buffer:    buf,
		spool:     sp,
		sender:    sender,
		batchSize: batchSize,
		flushAge:  flushAge,
		samples:   samples,
		logger:    logger,
	}
}

// sendBatch sends batch, timing the attempt and reporting the outcome
// as a PipelineSample tagged models.SourceFlusher.
func (f *Flusher) sendBatch(ctx context.Context, batch *event.Batch) error {
	start := time.Now()
	err := f.sender.Send(ctx, batch)
	f.reportSend(len(batch.Events), time.Since(start), err)
	return err
}

func (f *Flusher) reportSend(eventCount int, elapsed time.Duration, err error) {
	if f.samples == nil {
		return
	}
	sample := &models.PipelineSample{
		Timestamp:  time.Now(),
		Source:     models.SourceFlusher,
		Success:    err == nil,
		LatencyMs:  float64(elapsed.Milliseconds()),
		EventCount: eventCount,
	}
	select {
	case f.samples <- sample:
	default:
		f.logger.Printf("flusher: sample channel full, dropping send-outcome sample")
	}
}

// Run ticks every 500ms, draining the buffer under the size/age policy
// and independently draining the spool every 30s, until ctx is
// cancelled. On cancellation it performs one final forced buffer drain
// and one final spool drain before returning, per spec.md §4.E
// "Shutdown".
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	spoolTicker := time.NewTicker(spoolDrainPeriod)
	defer spoolTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.shutdownFlush()
			return
		case <-ticker.C:
			f.tick(ctx)
		case <-spoolTicker.C:
			f.drainSpoolOnce(ctx)
		}
	}
}

func (f *Flusher) tick(ctx context.Context) {
	batch := f.buffer.DrainIfReady(f.batchSize, f.flushAge, time.Now())
	if batch == nil {
		return
	}
	f.flushBatch(ctx, batch)
}

// flushBatch implements the ordering in spec.md §4.E step 1: spool
// drain first (P3), then the live batch.
func (f *Flusher) flushBatch(ctx context.Context, batch *event.Batch) {
	f.drainSpoolOnce(ctx)

	if err := f.sendBatch(ctx, batch); err != nil {
		f.logger.Printf("flusher: send failed, spooling batch of %d events: %v", len(batch.Events), err)
		if spoolErr := f.spool.Write(batch); spoolErr != nil {
			f.logger.Printf("flusher: failed to spool batch: %v", spoolErr)
		}
		return
	}
	f.logger.Printf("flusher: sent batch size=%d", len(batch.Events))
}

// drainSpoolOnce iterates the spool oldest-first, sending and deleting
// each file in turn. It stops at the first transport failure to
// preserve ordering and avoid hammering a down endpoint (spec.md
// §4.E).
func (f *Flusher) drainSpoolOnce(ctx context.Context) {
	paths, err := f.spool.ListOldestFirst()
	if err != nil {
		f.logger.Printf("flusher: failed to list spool: %v", err)
		return
	}

	for _, path := range paths {
		batch, err := f.spool.Read(path)
		if err != nil {
			var corrupt *spool.ErrCorrupt
			if errors.As(err, &corrupt) {
				f.logger.Printf("flusher: dropped corrupt spool file %s", path)
				continue
			}
			f.logger.Printf("flusher: failed to read spool file %s: %v", path, err)
			return
		}

		if err := f.sendBatch(ctx, batch); err != nil {
			f.logger.Printf("flusher: spool replay failed on %s, stopping drain: %v", path, err)
			return
		}

		if err := f.spool.Delete(path); err != nil {
			f.logger.Printf("flusher: failed to delete replayed spool file %s: %v", path, err)
		}
	}
}

func (f *Flusher) shutdownFlush() {
	ctx := context.Background()
	if batch := f.buffer.DrainAll(time.Now()); batch != nil {
		f.drainSpoolOnce(ctx)
		if err := f.sendBatch(ctx, batch); err != nil {
			f.logger.Printf("flusher: final send failed, spooling batch of %d events: %v", len(batch.Events), err)
			if spoolErr := f.spool.Write(batch); spoolErr != nil {
				f.logger.Printf("flusher: failed to spool final batch: %v", spoolErr)
			}
		}
	}
	f.drainSpoolOnce(ctx)
}
