package media

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestScratchAcquireRelease(t *testing.T) {
	s, err := NewScratch(filepath.Join(t.TempDir(), "downloads"))
	if err != nil {
		t.Fatalf("NewScratch: %v", err)
	}
	area, err := s.Acquire("job-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := os.WriteFile(filepath.Join(area.Path(), "file.mp3"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := area.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(area.Path()); !os.IsNotExist(err) {
		t.Fatalf("area still exists after Release")
	}
	if err := area.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestScratchAcquireTwiceFails(t *testing.T) {
	s, _ := NewScratch(t.TempDir())
	if _, err := s.Acquire("same"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Acquire("same"); err == nil {
		t.Fatal("second Acquire of the same id must fail")
	}
}

func TestScratchSweep(t *testing.T) {
	s, _ := NewScratch(t.TempDir())
	old, _ := s.Acquire("old")
	fresh, _ := s.Acquire("fresh")

	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old.Path(), past, past); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old.Path()); !os.IsNotExist(err) {
		t.Fatal("old area survived sweep")
	}
	if _, err := os.Stat(fresh.Path()); err != nil {
		t.Fatal("fresh area was swept")
	}
}
