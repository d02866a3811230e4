package spool

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cynexa/collectord/internal/event"
)

func testBatch(n int) *event.Batch {
	b := &event.Batch{}
	for i := 0; i < n; i++ {
		b.Events = append(b.Events, event.New("line", "/tmp/x.log", time.Now(), "h", event.RegexAnnotator{}))
	}
	return b
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 1<<20, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	batch := testBatch(3)
	if err := s.Write(batch); err != nil {
		t.Fatalf("Write: %v", err)
	}

	paths, err := s.ListOldestFirst()
	if err != nil {
		t.Fatalf("ListOldestFirst: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("expected 1 spool file, got %d", len(paths))
	}

	got, err := s.Read(paths[0])
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got.Events))
	}
}

func TestListOldestFirstOrder(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir, 1<<20, nil)

	names := []string{"batch-100-aaaa.json", "batch-200-bbbb.json", "batch-050-cccc.json"}
	times := []time.Time{
		time.Unix(100, 0),
		time.Unix(200, 0),
		time.Unix(50, 0),
	}
	for i, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(`{"events":[]}`), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, times[i], times[i]); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := s.ListOldestFirst()
	if err != nil {
		t.Fatalf("ListOldestFirst: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 files, got %d", len(paths))
	}
	if filepath.Base(paths[0]) != "batch-050-cccc.json" {
		t.Errorf("expected oldest first, got %s", filepath.Base(paths[0]))
	}
	if filepath.Base(paths[2]) != "batch-200-bbbb.json" {
		t.Errorf("expected newest last, got %s", filepath.Base(paths[2]))
	}
}

func TestReadCorruptDeletesFile(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir, 1<<20, nil)
	p := filepath.Join(dir, "batch-1-deadbeef.json")
	if err := os.WriteFile(p, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Read(p)
	var corrupt *ErrCorrupt
	if err == nil {
		t.Fatal("expected ErrCorrupt")
	}
	if !asErrCorrupt(err, &corrupt) {
		t.Fatalf("expected *ErrCorrupt, got %T: %v", err, err)
	}
	if _, statErr := os.Stat(p); !os.IsNotExist(statErr) {
		t.Error("expected corrupt file to be deleted")
	}
}

func asErrCorrupt(err error, target **ErrCorrupt) bool {
	if e, ok := err.(*ErrCorrupt); ok {
		*target = e
		return true
	}
	return false
}

func TestWriteSkippedOverQuota(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir, 10, nil) // tiny quota
	if err := s.Write(testBatch(1)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	paths, _ := s.ListOldestFirst()
	firstCount := len(paths)
	if firstCount == 0 {
		t.Fatal("expected first write under/at empty quota to succeed")
	}

	// Second write should see spool already over quota and skip.
	if err := s.Write(testBatch(50)); err != nil {
		t.Fatalf("second write: %v", err)
	}
	paths, _ = s.ListOldestFirst()
	if len(paths) != firstCount {
		t.Fatalf("expected quota-exceeded write to be skipped, file count changed from %d to %d", firstCount, len(paths))
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	s, _ := New(dir, 1<<20, nil)
	_ = s.Write(testBatch(1))
	paths, _ := s.ListOldestFirst()
	if err := s.Delete(paths[0]); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	remaining, _ := s.ListOldestFirst()
	if len(remaining) != 0 {
		t.Fatalf("expected spool empty after delete, got %d", len(remaining))
	}
}
