// Package spool implements the on-disk FIFO of batches that failed a
// live send, bounded by a total byte quota.
package spool

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cynexa/collectord/internal/event"
)

// ErrCorrupt is returned by Read when a spool file cannot be
// deserialized. Read has already deleted the file by then; the caller
// only needs to move on to the next one.
type ErrCorrupt struct {
	Path string
	Err  error
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("spool: corrupt file %s: %v", e.Path, e.Err)
}

func (e *ErrCorrupt) Unwrap() error { return e.Err }

// Store is a directory of serialized batches.
type Store struct {
	dir       string
	maxBytes  int64
	logger    *log.Logger
}

// New creates a Store rooted at dir, creating the directory if needed.
// This is the one startup failure the agent treats as fatal.
func New(dir string, maxBytes int64, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("spool: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

// Dir returns the spool directory path.
func (s *Store) Dir() string { return s.dir }

// Size returns the total size in bytes of all regular files currently
// in the spool directory.
func (s *Store) Size() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// Write serializes batch and writes it to a new file named
// batch-<unix-secs>-<hex-token>.json. If the spool is already over
// quota, the write is skipped and a drop is logged (I3,
// SpoolQuotaExceeded); no error is returned because this is not a
// fatal condition.
func (s *Store) Write(batch *event.Batch) error {
	size, err := s.Size()
	if err != nil {
		s.logger.Printf("spool: failed to compute spool size: %v", err)
	} else if size > s.maxBytes {
		s.logger.Printf("spool: quota exceeded (%d > %d bytes); dropping batch of %d events", size, s.maxBytes, len(batch.Events))
		return nil
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("spool: marshal batch: %w", err)
	}

	name := fmt.Sprintf("batch-%d-%s.json", time.Now().Unix(), randomToken())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("spool: write %s: %w", path, err)
	}
	s.logger.Printf("spool: wrote %s (%d events, %d bytes)", path, len(batch.Events), len(data))
	return nil
}

// ListOldestFirst returns the paths of batch files (batch-*.json) in
// the spool, ordered by modification time ascending. Other files in
// the directory are not listed.
func (s *Store) ListOldestFirst() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "batch-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			path:    filepath.Join(s.dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// Read deserializes the batch at path. On parse failure it deletes the
// file (it is corrupt) and returns *ErrCorrupt.
func (s *Store) Read(path string) (*event.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var batch event.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Printf("spool: failed to remove corrupt file %s: %v", path, rmErr)
		}
		return nil, &ErrCorrupt{Path: path, Err: err}
	}
	return &batch, nil
}

// Delete removes path after a successful replay.
func (s *Store) Delete(path string) error {
	return os.Remove(path)
}

func randomToken() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unrecoverable entropy
		// starvation; fall back to a timestamp-derived token so the
		// write still proceeds with a reasonably unique name.
		return hex.EncodeToString([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	}
	return hex.EncodeToString(buf)
}
