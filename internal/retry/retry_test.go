package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kenjobs/jobsync/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockSource calls a function on each invocation, tracking call count.
type mockSource struct {
	calls int
	fn    func(attempt int) ([]model.RawRecord, error)
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Fetch(_ context.Context, _ model.Query, _ int) ([]model.RawRecord, error) {
	m.calls++
	return m.fn(m.calls)
}

func httpFailure(status int) error {
	return &model.SourceError{
		Source:     "mock",
		Kind:       model.KindHTTP,
		StatusCode: status,
		Err:        &model.HTTPError{StatusCode: status, Err: fmt.Errorf("status %d", status)},
	}
}

func fetch(rs *RetrySource, ctx context.Context) ([]model.RawRecord, error) {
	return rs.Fetch(ctx, model.Query{Text: "developer", Location: "Kenya"}, 1)
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	records := []model.RawRecord{{NativeID: "1", Title: "Engineer"}}
	mock := &mockSource{fn: func(_ int) ([]model.RawRecord, error) {
		return records, nil
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	got, err := fetch(rs, context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].NativeID != "1" {
		t.Fatalf("unexpected records: %v", got)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetry_RetriesOn5xx_SucceedsOnSecondAttempt(t *testing.T) {
	mock := &mockSource{fn: func(attempt int) ([]model.RawRecord, error) {
		if attempt == 1 {
			return nil, httpFailure(503)
		}
		return []model.RawRecord{{NativeID: "1"}}, nil
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	got, err := fetch(rs, context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if mock.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryOn4xx(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.RawRecord, error) {
		return nil, httpFailure(404)
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	_, err := fetch(rs, context.Background())
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 404 {
		t.Fatalf("expected HTTPError with status 404, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryRateLimitOrMalformed(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rate limited", fmt.Errorf("jsearch: %w", model.ErrRateLimitExceeded)},
		{"malformed", &model.SourceError{Source: "mock", Kind: model.KindMalformed, Err: errors.New("bad json")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockSource{fn: func(_ int) ([]model.RawRecord, error) {
				return nil, tc.err
			}}
			rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
			if _, err := fetch(rs, context.Background()); err == nil {
				t.Fatal("expected error, got nil")
			}
			if mock.calls != 1 {
				t.Fatalf("expected 1 call, got %d", mock.calls)
			}
		})
	}
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.RawRecord, error) {
		return nil, httpFailure(500)
	}}

	rs := NewRetrySource(mock, 2, 10*time.Millisecond, discardLogger())
	if _, err := fetch(rs, context.Background()); err == nil {
		t.Fatal("expected error after max retries, got nil")
	}
	// 1 initial + 2 retries = 3
	if mock.calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", mock.calls)
	}
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	mock := &mockSource{fn: func(_ int) ([]model.RawRecord, error) {
		return nil, httpFailure(500)
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rs := NewRetrySource(mock, 2, time.Second, discardLogger())
	_, err := fetch(rs, ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", mock.calls)
	}
}

func TestBackoffDelay_PrefersRetryAfter(t *testing.T) {
	rs := NewRetrySource(&mockSource{}, 2, 10*time.Millisecond, discardLogger())
	err := &model.SourceError{
		Source: "mock",
		Kind:   model.KindHTTP,
		Err:    &model.HTTPError{StatusCode: 429, RetryAfter: 3 * time.Second},
	}
	if got := rs.backoffDelay(1, err); got != 3*time.Second {
		t.Errorf("backoffDelay = %v, want 3s", got)
	}
}

func TestBackoffDelay_ExponentialWithJitter(t *testing.T) {
	rs := NewRetrySource(&mockSource{}, 3, 100*time.Millisecond, discardLogger())
	for attempt, base := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 400 * time.Millisecond} {
		got := rs.backoffDelay(attempt, errors.New("network down"))
		lo := time.Duration(float64(base) * 0.7)
		hi := time.Duration(float64(base) * 1.3)
		if got < lo || got > hi {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt, got, lo, hi)
		}
	}
}

// pageSource fails its first call and records the page of every call.
type pageSource struct {
	pages []int
}

func (p *pageSource) Name() string { return "pages" }

func (p *pageSource) Fetch(_ context.Context, _ model.Query, page int) ([]model.RawRecord, error) {
	p.pages = append(p.pages, page)
	if len(p.pages) == 1 {
		return nil, httpFailure(503)
	}
	return []model.RawRecord{{NativeID: fmt.Sprint(page)}}, nil
}

func TestRetry_RequestsSamePageAgain(t *testing.T) {
	src := &pageSource{}
	rs := NewRetrySource(src, 2, time.Millisecond, discardLogger())

	got, err := rs.Fetch(context.Background(), model.Query{Text: "developer"}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].NativeID != "3" {
		t.Fatalf("unexpected records: %v", got)
	}
	if len(src.pages) != 2 || src.pages[0] != 3 || src.pages[1] != 3 {
		t.Errorf("pages requested = %v, want [3 3]", src.pages)
	}
}
