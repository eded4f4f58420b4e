package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/kenjobs/jobsync/internal/model"
)

// RetrySource retries one page request at a time. A failed page is
// re-requested with the same query and page number, so a retry never refetches
// pages the aggregator already holds. Every attempt goes through the wrapped
// Source, which means a rate-limited inner source counts each attempt against
// its quota.
type RetrySource struct {
	inner      model.Source
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewRetrySource wraps inner. maxRetries counts attempts after the first;
// baseDelay is doubled for each further retry.
func NewRetrySource(inner model.Source, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetrySource {
	return &RetrySource{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

func (s *RetrySource) Name() string { return s.inner.Name() }

// Fetch requests page from the inner source until it succeeds, fails with a
// permanent error, or runs out of attempts. The last error is returned as is.
func (s *RetrySource) Fetch(ctx context.Context, q model.Query, page int) ([]model.RawRecord, error) {
	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := s.backoffDelay(attempt, err)
			s.logger.Warn("page fetch failed, retrying",
				"source", s.inner.Name(),
				"page", page,
				"attempt", attempt,
				"of", s.maxRetries,
				"delay", delay,
				"error", err,
			)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("retry of %s page %d cancelled: %w", s.inner.Name(), page, ctx.Err())
			case <-timer.C:
			}
		}

		var records []model.RawRecord
		records, err = s.inner.Fetch(ctx, q, page)
		if err == nil {
			return records, nil
		}
		if attempt >= s.maxRetries || !isRetryable(err) {
			return nil, err
		}
	}
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (s *RetrySource) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := s.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// The limiter already decided; retrying would only burn quota.
	if errors.Is(err, model.ErrRateLimitExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 429 {
			return true
		}
		return httpErr.StatusCode >= 500
	}

	var srcErr *model.SourceError
	if errors.As(err, &srcErr) && srcErr.Kind == model.KindMalformed {
		return false
	}

	// Network, DNS, etc.
	return true
}
