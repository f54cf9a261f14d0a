package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeExpirer struct{ calls int }

func (f *fakeExpirer) ExpirePending(ctx context.Context) int {
	f.calls++
	return 2
}

type fakeSweeper struct {
	ages []time.Duration
	err  error
}

func (f *fakeSweeper) Sweep(maxAge time.Duration) (int, error) {
	f.ages = append(f.ages, maxAge)
	return 1, f.err
}

func TestStartSweepsOnceAndStops(t *testing.T) {
	sw := &fakeSweeper{}
	s := NewScheduler(&fakeExpirer{}, sw, 6*time.Hour, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()

	if len(sw.ages) != 1 || sw.ages[0] != 6*time.Hour {
		t.Fatalf("sweep calls = %v, want one call with 6h", sw.ages)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Fatalf("entries = %d, want 2", got)
	}
}

func TestJobBodies(t *testing.T) {
	ex := &fakeExpirer{}
	sw := &fakeSweeper{err: errors.New("read dir")}
	s := NewScheduler(ex, sw, time.Hour, time.UTC)

	s.ExpirePending(context.Background())
	s.SweepScratch()

	if ex.calls != 1 {
		t.Errorf("expire calls = %d, want 1", ex.calls)
	}
	if len(sw.ages) != 1 {
		t.Errorf("sweep calls = %d, want 1", len(sw.ages))
	}
}
