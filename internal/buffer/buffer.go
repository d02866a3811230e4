// Package buffer implements the shared, mutex-protected event queue
// that sits between the followers and the flusher.
package buffer

import (
	"log"
	"sync"
	"time"

	"github.com/cynexa/collectord/internal/event"
)

// softCapMultiplier bounds in-memory growth when the network and the
// spool are both backed up. It is the only place events may be lost
// outside the documented spool-quota and corruption paths.
const softCapMultiplier = 10

// Buffer is a bounded-concurrency in-memory queue of events.
type Buffer struct {
	mu         sync.Mutex
	events     []event.Event
	lastFlush  time.Time
	batchSize  int
	softCap    int
	logger     *log.Logger
}

// New creates a Buffer whose soft cap is softCapMultiplier times
// batchSize. logger may be nil, in which case the default logger is
// used.
func New(batchSize int, logger *log.Logger) *Buffer {
	if logger == nil {
		logger = log.Default()
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Buffer{
		lastFlush: time.Now(),
		batchSize: batchSize,
		softCap:   batchSize * softCapMultiplier,
		logger:    logger,
	}
}

// Enqueue appends ev to the buffer. It never blocks beyond mutex
// acquisition. If the buffer is at its soft cap, the oldest event is
// dropped and a warning is logged (I5 still holds for surviving
// events: their relative order is preserved).
func (b *Buffer) Enqueue(ev event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) >= b.softCap {
		dropped := b.events[0]
		b.events = b.events[1:]
		b.logger.Printf("buffer: soft cap %d reached, dropping oldest event from %s", b.softCap, dropped.Source)
	}
	b.events = append(b.events, ev)
}

// DrainIfReady extracts all currently buffered events as a Batch and
// resets lastFlush, but only if count >= minSize or the buffer has not
// flushed in at least maxAge. Returns nil if neither trigger fires or
// the buffer is empty.
func (b *Buffer) DrainIfReady(minSize int, maxAge time.Duration, now time.Time) *event.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}
	if len(b.events) < minSize && now.Sub(b.lastFlush) < maxAge {
		return nil
	}
	return b.extractLocked(now)
}

// DrainAll unconditionally extracts every buffered event, used during
// shutdown to force a final flush.
func (b *Buffer) DrainAll(now time.Time) *event.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}
	return b.extractLocked(now)
}

// Len returns the current number of buffered events, for diagnostics.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *Buffer) extractLocked(now time.Time) *event.Batch {
	batch := &event.Batch{Events: b.events}
	b.events = nil
	b.lastFlush = now
	return batch
}
