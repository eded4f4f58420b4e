package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimitExceeded is returned by the rate limiter when a source's
	// window quota is exhausted and the caller should skip that source.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidQuery is the only error Search surfaces to callers.
	ErrInvalidQuery = errors.New("invalid search query")

	ErrCacheRead  = errors.New("cache read")
	ErrCacheWrite = errors.New("cache write")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// SourceErrorKind classifies adapter failures.
type SourceErrorKind string

const (
	KindTimeout   SourceErrorKind = "timeout"
	KindHTTP      SourceErrorKind = "http_error"
	KindMalformed SourceErrorKind = "malformed_response"
	KindTransport SourceErrorKind = "transport"
)

// SourceError is returned by adapters for any failed fetch.
type SourceError struct {
	Source     string
	Kind       SourceErrorKind
	StatusCode int // set for KindHTTP
	Err        error
}

func (e *SourceError) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("%s fetch: %s %d: %v", e.Source, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Reason returns a short label for logging why a source contributed nothing.
func Reason(err error) string {
	if errors.Is(err, ErrRateLimitExceeded) {
		return "rate_limited"
	}
	var se *SourceError
	if errors.As(err, &se) {
		return string(se.Kind)
	}
	return "error"
}
