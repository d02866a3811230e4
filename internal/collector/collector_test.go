package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cynexa/collectord/internal/config"
)

func TestCollectorEndToEndTailsAndSends(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	var receivedCount int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&receivedCount, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.LogPaths = []string{logPath}
	cfg.BackendURL = srv.URL
	cfg.BatchSize = 1
	cfg.FlushInterval = 0.1
	cfg.SpoolDir = t.TempDir()
	cfg.ConnectTimeout = 1
	cfg.RequestTimeout = 1
	cfg.Dashboard.Port = 0

	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("hello world\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&receivedCount) == 0 {
		select {
		case <-deadline:
			cancel()
			wg.Wait()
			t.Fatal("expected backend to receive at least one batch")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	wg.Wait()
}

func TestCollectorSnapshotReflectsFollowers(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.LogPaths = []string{logPath}
	cfg.SpoolDir = t.TempDir()
	cfg.Dashboard.Port = 0

	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap := c.Snapshot()
	if len(snap.Followers) != 1 {
		t.Fatalf("expected 1 follower in snapshot, got %d", len(snap.Followers))
	}
	if snap.Followers[0].Path != logPath {
		t.Errorf("Followers[0].Path = %q, want %q", snap.Followers[0].Path, logPath)
	}
}

func TestNewFailsWhenSpoolDirUncreatable(t *testing.T) {
	cfg := config.Default()
	// A path through a file (not a directory) component can never be
	// created as a directory.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.SpoolDir = filepath.Join(blocker, "spool")

	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected New to fail when spool dir cannot be created")
	}
}
