package follower

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Tuning constants from spec.md §4.B. These are intentionally not
// configurable: they are a per-line liveness budget, not a policy
// lever an operator should need to touch.
const (
	waitForFileInterval  = 2 * time.Second
	idleReadInterval     = 200 * time.Millisecond
	rotationRetryBackoff = 1 * time.Second
)

// LineTailer is the rotation-safe line source behind a Follower. It is
// the same role the teacher's FileTailer interface plays in
// internal/stream/log_stream.go: a thing that can be started against a
// path and handed a context, and that emits complete lines until
// stopped.
type LineTailer interface {
	// Lines starts tailing path and returns a channel of complete,
	// newline-stripped lines. The channel is closed when ctx is
	// cancelled.
	Lines(ctx context.Context, path string) (<-chan string, error)
}

// fileTailer is the default LineTailer. It always falls back to
// polling (the source of correctness) and uses an fsnotify watcher,
// when one can be installed, purely to shorten the wait between an
// append and the next read — see SPEC_FULL.md's Follower module notes.
type fileTailer struct {
	logger *log.Logger
}

// NewLineTailer creates the default rotation-safe LineTailer.
func NewLineTailer(logger *log.Logger) LineTailer {
	if logger == nil {
		logger = log.Default()
	}
	return &fileTailer{logger: logger}
}

func (t *fileTailer) Lines(ctx context.Context, path string) (<-chan string, error) {
	out := make(chan string, 256)
	go t.run(ctx, path, out)
	return out, nil
}

func (t *fileTailer) run(ctx context.Context, path string, out chan<- string) {
	defer close(out)

	file, id, ok := t.waitForFile(ctx, path)
	if !ok {
		return
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	watcher, wake := t.tryWatch(path)
	if watcher != nil {
		defer watcher.Close()
	}

	offset, _ := file.Seek(0, io.SeekCurrent)
	var pending string

	for {
		if ctx.Err() != nil {
			return
		}

		chunk, err := reader.ReadString('\n')
		if err == nil {
			full := pending + chunk
			pending = ""
			offset += int64(len(chunk))
			line := trimNewline(full)
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
			continue
		}
		if err != io.EOF {
			t.logger.Printf("follower: read error on %s: %v; retrying", path, err)
			if !sleepCtx(ctx, idleReadInterval) {
				return
			}
			continue
		}

		// EOF: a newline-terminated line was not available. Any bytes
		// read so far belong to an in-progress line and must survive
		// until the rest of it is written — they are only ever
		// dropped below, on rotation or truncation.
		if chunk != "" {
			pending += chunk
			offset += int64(len(chunk))
		}

		// EOF: wait for new data or a rotation signal, then re-probe.
		if !t.waitForChange(ctx, wake) {
			return
		}

		newF, newR, newOffset, newID, rotated, truncated, ok := t.reconcile(file, reader, offset, id, path)
		if !ok {
			if !sleepCtx(ctx, rotationRetryBackoff) {
				return
			}
			continue
		}
		if rotated || truncated {
			// Partial-line policy (spec.md §4.B): a line that was
			// mid-write when its file rotated or was truncated in
			// place is lost, not replayed against the new file.
			pending = ""
		}
		if rotated {
			file.Close()
			if watcher != nil {
				watcher.Remove(path)
				watcher.Add(path)
			}
		}
		file, reader, offset, id = newF, newR, newOffset, newID
	}
}

// waitForFile implements the WAITING_FOR_FILE state: poll for
// existence at waitForFileInterval, then open and seek to EOF.
func (t *fileTailer) waitForFile(ctx context.Context, path string) (*os.File, fileIdentity, bool) {
	for {
		file, err := os.Open(path)
		if err == nil {
			if _, err := file.Seek(0, io.SeekEnd); err != nil {
				file.Close()
				t.logger.Printf("follower: seek to end failed for %s: %v", path, err)
				if !sleepCtx(ctx, waitForFileInterval) {
					return nil, fileIdentity{}, false
				}
				continue
			}
			info, err := file.Stat()
			if err != nil {
				file.Close()
				if !sleepCtx(ctx, waitForFileInterval) {
					return nil, fileIdentity{}, false
				}
				continue
			}
			return file, identify(info), true
		}
		if !os.IsNotExist(err) {
			t.logger.Printf("follower: open %s failed: %v; retrying", path, err)
		}
		if !sleepCtx(ctx, waitForFileInterval) {
			return nil, fileIdentity{}, false
		}
	}
}

// reconcile implements rotation and truncation detection after an EOF.
// It returns ok=false if the path is currently missing (the caller
// should back off and retry without disturbing existing state).
func (t *fileTailer) reconcile(file *os.File, reader *bufio.Reader, offset int64, id fileIdentity, path string) (newFile *os.File, newReader *bufio.Reader, newOffset int64, newID fileIdentity, rotated, truncated, ok bool) {
	stat, err := os.Stat(path)
	if err != nil {
		// Tolerates the brief gap some rotators leave between rename
		// and recreate; retain old handle and identity.
		return file, reader, offset, id, false, false, false
	}

	statID := identify(stat)
	if statID != id {
		reopened, err := os.Open(path)
		if err != nil {
			t.logger.Printf("follower: reopen %s after rotation failed: %v", path, err)
			return file, reader, offset, id, false, false, false
		}
		// First bytes of the rotated-in file must be captured, so
		// seek to beginning rather than end.
		return reopened, bufio.NewReader(reopened), 0, statID, true, false, true
	}

	if stat.Size() < offset {
		// Truncation in place: same inode, smaller size.
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			t.logger.Printf("follower: seek to start after truncation failed for %s: %v", path, err)
			return file, reader, offset, id, false, false, false
		}
		return file, bufio.NewReader(file), 0, id, false, true, true
	}

	return file, reader, offset, id, false, false, true
}

// tryWatch best-effort installs an fsnotify watcher directly on path
// so writes and renames wake the read loop immediately. A nil return
// means the caller must rely solely on polling; this is never a fatal
// condition.
func (t *fileTailer) tryWatch(path string) (*fsnotify.Watcher, <-chan struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.logger.Printf("follower: fsnotify unavailable for %s, falling back to polling: %v", path, err)
		return nil, nil
	}
	if err := watcher.Add(path); err != nil {
		t.logger.Printf("follower: fsnotify.Add(%s) failed, falling back to polling: %v", path, err)
		watcher.Close()
		return nil, nil
	}

	wake := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return watcher, wake
}

// waitForChange blocks until the poll interval elapses, the watcher
// wakes it early, or the context is cancelled. Returns false only on
// cancellation.
func (t *fileTailer) waitForChange(ctx context.Context, wake <-chan struct{}) bool {
	timer := time.NewTimer(idleReadInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-wake:
		return true
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func trimNewline(line string) string {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
