package follower

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func drainLines(t *testing.T, ch <-chan string, want int, timeout time.Duration) []string {
	t.Helper()
	var got []string
	deadline := time.After(timeout)
	for len(got) < want {
		select {
		case line, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, line)
		case <-deadline:
			t.Fatalf("timed out waiting for %d lines, got %d: %v", want, len(got), got)
		}
	}
	return got
}

func TestTailerBaselineDelivery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewLineTailer(nil)
	lines, err := tailer.Lines(ctx, path)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}

	// Give the tailer a moment to open and seek to EOF before writing.
	time.Sleep(50 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("hello\nworld\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got := drainLines(t, lines, 2, 2*time.Second)
	if got[0] != "hello" || got[1] != "world" {
		t.Fatalf("got %v, want [hello world]", got)
	}
}

func TestTailerWaitsForMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.log")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewLineTailer(nil)
	lines, err := tailer.Lines(ctx, path)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}

	select {
	case <-lines:
		t.Fatal("expected no lines before file exists")
	case <-time.After(100 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("first\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := drainLines(t, lines, 1, 3*time.Second)
	if got[0] != "first" {
		t.Fatalf("got %v, want [first]", got)
	}
}

func TestTailerPartialLineNotEmitted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewLineTailer(nil)
	lines, err := tailer.Lines(ctx, path)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("abc"); err != nil {
		t.Fatal(err)
	}

	select {
	case line := <-lines:
		t.Fatalf("expected no line for unterminated write, got %q", line)
	case <-time.After(500 * time.Millisecond):
	}

	if _, err := f.WriteString("def\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got := drainLines(t, lines, 1, 2*time.Second)
	if got[0] != "abcdef" {
		t.Fatalf("got %q, want %q", got[0], "abcdef")
	}
}

func TestTailerRotationContinuity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewLineTailer(nil)
	lines, err := tailer.Lines(ctx, path)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := drainLines(t, lines, 1, 2*time.Second)
	if got[0] != "a" {
		t.Fatalf("got %q, want a", got[0])
	}

	// Rotate: rename old file away, create a fresh one at the same path.
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("b\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got = drainLines(t, lines, 1, 3*time.Second)
	if got[0] != "b" {
		t.Fatalf("got %q, want b", got[0])
	}
}

func TestTailerTruncationResetsToStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, []byte("aaaaaaaaaa\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewLineTailer(nil)
	lines, err := tailer.Lines(ctx, path)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	// Truncate in place (same inode, smaller size) and write a new, short line.
	if err := os.Truncate(path, 0); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("short\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := drainLines(t, lines, 1, 2*time.Second)
	if got[0] != "short" {
		t.Fatalf("got %q, want short", got[0])
	}
}

func TestTailerStopsOnContextCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.log")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tailer := NewLineTailer(nil)
	lines, err := tailer.Lines(ctx, path)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	cancel()

	select {
	case _, ok := <-lines:
		if ok {
			t.Fatal("expected channel to close on cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close after cancel")
	}
}
