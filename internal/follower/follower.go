// Package follower tails one configured file and turns its newly
// appended lines into annotated events in the shared buffer,
// surviving rotation, truncation, and temporary disappearance of the
// file across a single process lifetime.
package follower

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/cynexa/collectord/internal/event"
)

// State is the Follower's lifecycle state, exposed for status
// reporting (see SPEC_FULL.md's status/diagnostics module).
type State int32

const (
	StateWaitingForFile State = iota
	StateOpen
	StateIdle
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateWaitingForFile:
		return "waiting_for_file"
	case StateOpen:
		return "open"
	case StateIdle:
		return "idle"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Sink receives annotated events produced by a Follower. *buffer.Buffer
// satisfies this interface.
type Sink interface {
	Enqueue(event.Event)
}

// Follower owns exactly one configured path.
type Follower struct {
	path      string
	host      string
	annotator event.Annotator
	sink      Sink
	tailer    LineTailer
	logger    *log.Logger

	state   atomic.Int32
	lineCnt atomic.Int64
}

// New creates a Follower for path. tailer and annotator may be nil, in
// which case the default rotation-safe tailer and regex annotator are
// used.
func New(path, host string, sink Sink, tailer LineTailer, annotator event.Annotator, logger *log.Logger) *Follower {
	if logger == nil {
		logger = log.Default()
	}
	if tailer == nil {
		tailer = NewLineTailer(logger)
	}
	if annotator == nil {
		annotator = event.RegexAnnotator{}
	}
	f := &Follower{
		path:      path,
		host:      host,
		annotator: annotator,
		sink:      sink,
		tailer:    tailer,
		logger:    logger,
	}
	f.state.Store(int32(StateWaitingForFile))
	return f
}

// Path returns the configured path.
func (f *Follower) Path() string { return f.path }

// State returns the Follower's current lifecycle state.
func (f *Follower) State() State { return State(f.state.Load()) }

// LinesSeen returns the number of lines enqueued so far, for status
// reporting.
func (f *Follower) LinesSeen() int64 { return f.lineCnt.Load() }

// Run tails the configured path until ctx is cancelled, annotating and
// enqueuing each complete line it observes. It never returns on a
// transient read error; it returns when ctx is done, when the tailer
// fails to start, or when the tailer closes its line channel.
func (f *Follower) Run(ctx context.Context) {
	f.state.Store(int32(StateWaitingForFile))

	lines, err := f.tailer.Lines(ctx, f.path)
	if err != nil {
		f.logger.Printf("follower[%s]: failed to start tailer: %v", f.path, err)
		f.state.Store(int32(StateStopped))
		return
	}
	f.state.Store(int32(StateOpen))

	for {
		select {
		case <-ctx.Done():
			f.state.Store(int32(StateStopped))
			return
		case line, ok := <-lines:
			if !ok {
				f.state.Store(int32(StateStopped))
				return
			}
			f.state.Store(int32(StateOpen))
			ev := event.New(line, f.path, time.Now(), f.host, f.annotator)
			f.sink.Enqueue(ev)
			f.lineCnt.Add(1)
		}
	}
}
