package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kenjobs/jobsync/internal/model"
)

// --- Mock implementations ---

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepExpired(_ context.Context) (int, error) {
	s.calls.Add(1)
	return 3, s.err
}

// recordingRefresher records the queries it was asked to refresh.
type recordingRefresher struct {
	mu      sync.Mutex
	queries []string
	failOn  string
}

func (r *recordingRefresher) Refresh(_ context.Context, query, _ string, _ model.Filters) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	if query == r.failOn {
		return 0, errors.New("all sources failed")
	}
	return 5, nil
}

func (r *recordingRefresher) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func warmQueries(names ...string) []WarmQuery {
	out := make([]WarmQuery, len(names))
	for i, n := range names {
		out[i] = WarmQuery{Query: n, Location: "Kenya"}
	}
	return out
}

// --- Tests ---

func TestWarmAll_RefreshesInOrderAndContinuesOnError(t *testing.T) {
	ref := &recordingRefresher{failOn: "designer"}
	s := NewScheduler(&countingSweeper{}, ref, warmQueries("developer", "designer", "accountant"), "", "", discardLogger())
	s.pause = 0

	s.WarmAll(context.Background())

	got := ref.seen()
	want := []string{"developer", "designer", "accountant"}
	if len(got) != len(want) {
		t.Fatalf("expected %d refreshes, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("refresh %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWarmAll_StopsOnCancel(t *testing.T) {
	ref := &recordingRefresher{}
	s := NewScheduler(&countingSweeper{}, ref, warmQueries("a", "b", "c"), "", "", discardLogger())
	s.pause = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.WarmAll(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WarmAll did not return after cancel")
	}
	if got := ref.seen(); len(got) != 1 {
		t.Errorf("expected only the first query refreshed, got %v", got)
	}
}

func TestSweep(t *testing.T) {
	sw := &countingSweeper{}
	s := NewScheduler(sw, nil, nil, "", "", discardLogger())
	s.Sweep(context.Background())

	sw.err = errors.New("disk full")
	s.Sweep(context.Background())

	if sw.calls.Load() != 2 {
		t.Errorf("expected 2 sweeps, got %d", sw.calls.Load())
	}
}

func TestRun_WarmsImmediatelyAndStopsOnCancel(t *testing.T) {
	ref := &recordingRefresher{}
	s := NewScheduler(&countingSweeper{}, ref, warmQueries("developer"), "@every 1h", "@every 12h", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(ref.seen()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(ref.seen()) != 1 {
		t.Fatalf("expected one immediate warm-up, got %v", ref.seen())
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_FiresSweepOnSchedule(t *testing.T) {
	sw := &countingSweeper{}
	s := NewScheduler(sw, nil, nil, "@every 1s", "", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for sw.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if sw.calls.Load() == 0 {
		t.Error("expected the sweep to fire within 3s")
	}
}

func TestRun_InvalidSpec(t *testing.T) {
	s := NewScheduler(&countingSweeper{}, nil, nil, "not a cron spec", "", discardLogger())
	if err := s.Run(context.Background()); err == nil {
		t.Error("expected error for invalid spec")
	}
}
