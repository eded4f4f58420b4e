package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kenjobs/jobsync/internal/model"
)

// Policy bounds outbound requests to one source.
type Policy struct {
	MaxRequests int           // per window; zero disables the window check
	Window      time.Duration // fixed window length
	MinInterval time.Duration // minimum gap between consecutive requests
	Block       bool          // wait for the next window instead of failing
}

// Stats is a snapshot of one source's limiter state.
type Stats struct {
	WindowStart   time.Time
	CountInWindow int
	LastRequestAt time.Time
}

type sourceState struct {
	windowStart time.Time
	count       int
	lastRequest time.Time
	throttle    *rate.Limiter // nil when MinInterval is zero
}

// Limiter enforces a fixed-window quota plus a minimum-interval throttle per
// source. State is in-process only.
type Limiter struct {
	mu       sync.Mutex
	policies map[string]Policy
	fallback Policy
	states   map[string]*sourceState
	now      func() time.Time
}

// NewLimiter creates a limiter. Sources without an entry in policies use fallback.
func NewLimiter(fallback Policy, policies map[string]Policy) *Limiter {
	if policies == nil {
		policies = make(map[string]Policy)
	}
	return &Limiter{
		policies: policies,
		fallback: fallback,
		states:   make(map[string]*sourceState),
		now:      time.Now,
	}
}

// PolicyFor returns the policy applied to source.
func (l *Limiter) PolicyFor(source string) Policy {
	if p, ok := l.policies[source]; ok {
		return p
	}
	return l.fallback
}

func (l *Limiter) state(source string, p Policy) *sourceState {
	st, ok := l.states[source]
	if !ok {
		st = &sourceState{windowStart: l.now()}
		if p.MinInterval > 0 {
			st.throttle = rate.NewLimiter(rate.Every(p.MinInterval), 1)
		}
		l.states[source] = st
	}
	return st
}

// Admit blocks until a request to source is permitted. It returns an error
// wrapping model.ErrRateLimitExceeded when the window quota is exhausted and
// the policy does not block, or when waiting would outlive ctx.
func (l *Limiter) Admit(ctx context.Context, source string) error {
	p := l.PolicyFor(source)

	for {
		l.mu.Lock()
		st := l.state(source, p)
		now := l.now()
		if p.Window > 0 && now.Sub(st.windowStart) >= p.Window {
			st.windowStart = now
			st.count = 0
		}

		if p.MaxRequests <= 0 || st.count < p.MaxRequests {
			st.count++
			windowStart := st.windowStart
			throttle := st.throttle
			l.mu.Unlock()

			if throttle != nil {
				if err := throttle.Wait(ctx); err != nil {
					l.release(source, windowStart)
					return fmt.Errorf("rate limiter wait for %s: %w: %v", source, model.ErrRateLimitExceeded, err)
				}
			}

			l.mu.Lock()
			st.lastRequest = l.now()
			l.mu.Unlock()
			return nil
		}

		reset := st.windowStart.Add(p.Window).Sub(now)
		l.mu.Unlock()

		if !p.Block {
			return fmt.Errorf("%s: %d requests per %v: %w", source, p.MaxRequests, p.Window, model.ErrRateLimitExceeded)
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < reset {
			return fmt.Errorf("%s: window resets in %v, after deadline: %w", source, reset, model.ErrRateLimitExceeded)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter wait for %s: %w", source, ctx.Err())
		case <-time.After(reset):
		}
	}
}

// release gives back a slot taken in the window that started at windowStart,
// for requests that were admitted but never sent.
func (l *Limiter) release(source string, windowStart time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.states[source]; ok && st.windowStart.Equal(windowStart) && st.count > 0 {
		st.count--
	}
}

// Stats returns the current state for source.
func (l *Limiter) Stats(source string) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.states[source]
	if !ok {
		return Stats{}
	}
	return Stats{
		WindowStart:   st.windowStart,
		CountInWindow: st.count,
		LastRequestAt: st.lastRequest,
	}
}

// RateLimitedSource is a decorator that admits every request through the
// shared limiter before delegating to the wrapped Source.
type RateLimitedSource struct {
	inner   model.Source
	limiter *Limiter
}

// NewRateLimitedSource wraps a Source with per-source rate limiting.
// All sources should share the same limiter instance.
func NewRateLimitedSource(inner model.Source, limiter *Limiter) *RateLimitedSource {
	return &RateLimitedSource{
		inner:   inner,
		limiter: limiter,
	}
}

func (s *RateLimitedSource) Name() string { return s.inner.Name() }

// Fetch waits for the limiter to admit a request, then delegates.
func (s *RateLimitedSource) Fetch(ctx context.Context, q model.Query, page int) ([]model.RawRecord, error) {
	if err := s.limiter.Admit(ctx, s.inner.Name()); err != nil {
		return nil, err
	}
	return s.inner.Fetch(ctx, q, page)
}
