package filter

import (
	"strings"
	"time"

	"github.com/kenjobs/jobsync/internal/model"
)

// DatePostedValues lists the accepted date_posted filter values.
var DatePostedValues = []string{"all", "today", "3days", "week", "month"}

// Window returns the maximum posting age for a date_posted value. The second
// result is false for "all", empty and unknown values.
func Window(datePosted string) (time.Duration, bool) {
	switch strings.ToLower(strings.TrimSpace(datePosted)) {
	case "today":
		return 24 * time.Hour, true
	case "3days":
		return 3 * 24 * time.Hour, true
	case "week":
		return 7 * 24 * time.Hour, true
	case "month":
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

// ResultFilter re-applies the remote-only and date-posted filters to
// normalized jobs, since not every provider honours them server-side.
type ResultFilter struct {
	remoteOnly bool
	maxAge     time.Duration
	hasWindow  bool
	now        func() time.Time
}

var _ model.JobFilter = (*ResultFilter)(nil)

// NewResultFilter builds a filter from the caller's options. Pagination
// fields are ignored.
func NewResultFilter(f model.Filters, now func() time.Time) *ResultFilter {
	if now == nil {
		now = time.Now
	}
	maxAge, ok := Window(f.DatePosted)
	return &ResultFilter{
		remoteOnly: f.RemoteOnly,
		maxAge:     maxAge,
		hasWindow:  ok,
		now:        now,
	}
}

// Active reports whether the filter can reject anything.
func (f *ResultFilter) Active() bool {
	return f.remoteOnly || f.hasWindow
}

// Match returns true if the job passes every configured filter.
func (f *ResultFilter) Match(job model.Job) bool {
	if f.remoteOnly && !IsRemote(job) {
		return false
	}
	if f.hasWindow && !job.PostedAt.IsZero() && f.now().Sub(job.PostedAt) > f.maxAge {
		return false
	}
	return true
}

// IsRemote reports whether the job advertises remote work in its location,
// job type or title. Matching is case-insensitive.
func IsRemote(job model.Job) bool {
	for _, field := range []string{job.Location, job.JobType, job.Title} {
		if strings.Contains(strings.ToLower(field), "remote") {
			return true
		}
	}
	return false
}

// Apply returns the jobs matching f, preserving order.
func Apply(jobs []model.Job, f model.JobFilter) []model.Job {
	out := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		if f.Match(j) {
			out = append(out, j)
		}
	}
	return out
}
