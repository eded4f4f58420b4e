// Package cache stores aggregated search results keyed by query signature.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/kenjobs/jobsync/internal/model"
)

// KeyPrefix namespaces every cache key.
const KeyPrefix = "jobs:"

// Entry is one cached result set.
type Entry struct {
	Key       string      `json:"key"`
	Jobs      []model.Job `json:"jobs"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Age returns how long ago the entry was written.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Store persists result sets with expiry. Put replaces an entry atomically;
// readers never observe a partial write.
type Store interface {
	// Get returns the entry for key. Expired entries are reported as a miss.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// GetIgnoringExpiry returns the entry for key even when it has expired,
	// as long as it has not been swept yet.
	GetIgnoringExpiry(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, jobs []model.Job, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	// SweepExpired deletes entries that expired more than the store's
	// retention ago and returns how many were removed.
	SweepExpired(ctx context.Context) (int, error)
	Close() error
}

// Key derives the cache key for a search. Page and limit never take part:
// the whole result set is cached and paginated by the caller.
func Key(query, location string, f model.Filters) string {
	sum := sha256.Sum256([]byte(Signature(query, location, f)))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Signature is the canonical string hashed by Key. Filter fields are only
// included when they differ from their defaults.
func Signature(query, location string, f model.Filters) string {
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(canonical(query))
	b.WriteString("|loc=")
	b.WriteString(canonical(location))
	if f.RemoteOnly {
		b.WriteString("|remote=1")
	}
	if dp := canonical(f.DatePosted); dp != "" && dp != "all" {
		b.WriteString("|date=")
		b.WriteString(dp)
	}
	return b.String()
}

func canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
