package model

import (
	"context"
	"time"
)

// SourceInternal names first-party jobs posted through the job board itself.
const SourceInternal = "internal"

// Provenance tags a search result with where its jobs came from.
type Provenance string

const (
	ProvenanceCache         Provenance = "cache"
	ProvenanceLive          Provenance = "live"
	ProvenanceStaleFallback Provenance = "stale-fallback"
)

// Job is the canonical, source-agnostic job posting.
type Job struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CompanyName string    `json:"company_name"`
	CompanyLogo *string   `json:"company_logo"`
	Location    string    `json:"location"`
	JobType     string    `json:"job_type"`
	SalaryRange string    `json:"salary_range"`
	ExternalURL *string   `json:"external_url"`
	PostedAt    time.Time `json:"posted_at"`
	IsExternal  bool      `json:"is_external"`
}

// RawRecord is a provider posting mapped field-by-field by its adapter,
// before defaults, language checks and id derivation are applied.
type RawRecord struct {
	NativeID       string
	Title          string
	Description    string // may contain HTML
	CompanyName    string
	CompanyLogo    string
	Location       string
	JobType        string
	Remote         bool
	SalaryText     string // provider-formatted salary, preferred when present
	SalaryMin      float64
	SalaryMax      float64
	SalaryCurrency string
	SalaryPeriod   string
	URL            string
	PostedAt       *time.Time
}

// Filters are the caller-supplied search options.
type Filters struct {
	RemoteOnly bool   `json:"remote_only"`
	DatePosted string `json:"date_posted"` // all, today, 3days, week, month
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
}

// Query is what a Source receives: the search terms plus the filter fields
// providers can apply server-side.
type Query struct {
	Text       string
	Location   string
	RemoteOnly bool
	DatePosted string
}

// Result is the caller-facing output of a search.
type Result struct {
	Jobs       []Job      `json:"jobs"`
	Total      int        `json:"total"`
	Source     Provenance `json:"source"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"total_pages"`
}

// Source fetches raw postings from one external job provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query, page int) ([]RawRecord, error)
}

// InternalJobSource lists first-party open jobs from the persistent store.
type InternalJobSource interface {
	ListOpenJobs(ctx context.Context, query, location string) ([]Job, error)
}

// JobFilter decides whether a job matches the caller's filters.
type JobFilter interface {
	Match(job Job) bool
}
