package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (f *fakePruner) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, t)
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuditPruner_Prune(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &fakePruner{}
	a := NewAuditPruner(p, 48*time.Hour, testLogger())
	a.now = func() time.Time { return now }

	n, err := a.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Prune() = %d, want 3", n)
	}
	if want := now.Add(-48 * time.Hour); !p.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", p.cutoffs[0], want)
	}
}

func TestAuditPruner_DefaultsAndErrors(t *testing.T) {
	p := &fakePruner{err: errors.New("disk full")}
	a := NewAuditPruner(p, 0, testLogger())

	if a.retention != DefaultRetention {
		t.Errorf("retention = %v, want %v", a.retention, DefaultRetention)
	}
	if _, err := a.Prune(context.Background()); err == nil {
		t.Error("Prune() expected error")
	}
}

func TestWorker_RunsJobs(t *testing.T) {
	var runs atomic.Int32
	w := New(testLogger())
	w.Add(Job{Name: "tick", Interval: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("logged, not fatal")
	}})
	w.Start()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()

	if runs.Load() < 2 {
		t.Errorf("job ran %d times, want at least 2", runs.Load())
	}
}

func TestWorker_DisabledJob(t *testing.T) {
	p := &fakePruner{}
	w := New(testLogger())
	w.Add(NewAuditPruner(p, time.Hour, testLogger()).Job(-1))
	w.Start()
	w.Stop()

	if len(p.cutoffs) != 0 {
		t.Errorf("DeleteBefore called %d times, want 0", len(p.cutoffs))
	}
}

func TestWorker_StopWithoutStart(t *testing.T) {
	New(testLogger()).Stop()
}
