// Package bridge combines first-party jobs with aggregated external jobs.
package bridge

import (
	"sort"

	"github.com/kenjobs/jobsync/internal/model"
)

// Merge returns internal jobs first, newest first, followed by external jobs
// in the order given. Ids from the two namespaces never collide, so no
// cross-namespace deduplication is done. Neither input is modified.
func Merge(internal, external []model.Job) []model.Job {
	out := make([]model.Job, 0, len(internal)+len(external))
	out = append(out, internal...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PostedAt.After(out[j].PostedAt)
	})
	return append(out, external...)
}
