// Package store reads first-party jobs and keeps users' saved jobs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kenjobs/jobsync/internal/model"
	"github.com/kenjobs/jobsync/internal/normalize"
)

// ErrStoreDisabled is returned by saved-job operations when no persistent
// store is configured.
var ErrStoreDisabled = errors.New("persistent store is disabled")

// SavedJob is a user's bookmark. Job is a snapshot taken when it was saved,
// so external jobs stay readable after their cache entry expires.
type SavedJob struct {
	UserID  string    `json:"user_id"`
	JobID   string    `json:"job_id"`
	Job     model.Job `json:"job"`
	SavedAt time.Time `json:"saved_at"`
}

// SavedJobStore manages saved jobs per user.
type SavedJobStore interface {
	// ToggleSaved saves job for userID, or removes it if it was already
	// saved. It reports whether the job is saved afterwards.
	ToggleSaved(ctx context.Context, userID string, job model.Job) (bool, error)
	// ListSaved returns the user's saved jobs, newest first.
	ListSaved(ctx context.Context, userID string) ([]SavedJob, error)
	DeleteSaved(ctx context.Context, userID, jobID string) error
	IsSaved(ctx context.Context, userID, jobID string) (bool, error)
}

// Store is a persistent backend for both internal jobs and saved jobs.
type Store interface {
	model.InternalJobSource
	SavedJobStore
	Close() error
}

// internalRow holds the columns read for one open job.
type internalRow struct {
	id          int64
	title       string
	description string
	location    string
	jobType     string
	salaryRange string
	company     string
	logo        string
	createdAt   time.Time
}

func (r internalRow) job() model.Job {
	j := model.Job{
		ID:          fmt.Sprintf("%s:%d", model.SourceInternal, r.id),
		Source:      model.SourceInternal,
		Title:       r.title,
		Description: normalize.ExtractText(r.description),
		CompanyName: orDefault(r.company, normalize.DefaultCompany),
		Location:    orDefault(r.location, normalize.DefaultLocation),
		JobType:     normalize.JobType(r.jobType),
		SalaryRange: orDefault(r.salaryRange, normalize.NotSpecified),
		PostedAt:    r.createdAt.UTC(),
	}
	if r.logo != "" {
		logo := r.logo
		j.CompanyLogo = &logo
	}
	return j
}

func likePattern(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}

func validateSave(userID string, job model.Job) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("job id is required")
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
