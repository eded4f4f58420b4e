// Package normalize turns provider records into canonical jobs.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kenjobs/jobsync/internal/model"
)

const (
	MaxDescriptionRunes = 5000

	DefaultCompany  = "Unknown Company"
	DefaultLocation = "Location not specified"
	NotSpecified    = "Not specified"
)

var (
	htmlTagRegex  = regexp.MustCompile(`<[^>]*>`)
	blockTagRegex = regexp.MustCompile(`(?i)<\s*(br|/p|/li|/div|/h[1-6])[^>]*>`)
	idCharRegex   = regexp.MustCompile(`[^a-z0-9-]`)
)

// Normalizer converts raw provider records into canonical jobs.
type Normalizer struct {
	now func() time.Time
}

// New returns a Normalizer that stamps jobs without a provider date with the
// current time.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewWithClock returns a Normalizer using now as the fetch time.
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize maps raw into a canonical Job. It returns false when the record
// fails the language or validity checks and must be dropped.
func (n *Normalizer) Normalize(raw model.RawRecord, source string) (model.Job, bool) {
	title := collapse(html.UnescapeString(raw.Title))
	if title == "" {
		return model.Job{}, false
	}

	description := ExtractText(raw.Description)
	if !IsTargetLanguage(title) || !IsTargetLanguage(description) {
		return model.Job{}, false
	}

	externalURL := strings.TrimSpace(raw.URL)
	if !isHTTPURL(externalURL) {
		return model.Job{}, false
	}

	company := collapse(raw.CompanyName)
	location := collapse(raw.Location)

	job := model.Job{
		ID:          JobID(source, raw.NativeID, title, company, location),
		Source:      source,
		Title:       title,
		Description: truncateRunes(description, MaxDescriptionRunes),
		CompanyName: orDefault(company, DefaultCompany),
		Location:    orDefault(location, DefaultLocation),
		JobType:     JobType(raw.JobType),
		SalaryRange: SalaryRange(raw),
		ExternalURL: &externalURL,
		IsExternal:  true,
	}

	if logo := strings.TrimSpace(raw.CompanyLogo); isHTTPURL(logo) {
		job.CompanyLogo = &logo
	}

	if raw.PostedAt != nil && !raw.PostedAt.IsZero() {
		job.PostedAt = raw.PostedAt.UTC()
	} else {
		job.PostedAt = n.now().UTC()
	}

	if raw.Remote && !strings.Contains(strings.ToLower(job.Location), "remote") {
		if location == "" {
			job.Location = "Remote"
		} else {
			job.Location = location + " (Remote)"
		}
	}

	return job, true
}

// NormalizeAll normalizes a batch from one source and reports how many
// records were dropped.
func (n *Normalizer) NormalizeAll(records []model.RawRecord, source string) ([]model.Job, int) {
	jobs := make([]model.Job, 0, len(records))
	dropped := 0
	for _, r := range records {
		job, ok := n.Normalize(r, source)
		if !ok {
			dropped++
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, dropped
}

// Dedupe drops later jobs that repeat an earlier id. A job from one source
// that repeats the title, company and location of a job from another source
// is dropped too (the same posting syndicated to several providers); within a
// single source only the id counts. Order is preserved.
func Dedupe(jobs []model.Job) []model.Job {
	ids := make(map[string]struct{}, len(jobs))
	owner := make(map[string]string, len(jobs)) // fingerprint → first source
	out := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		if _, ok := ids[j.ID]; ok {
			continue
		}
		fp := fingerprint(j)
		if src, ok := owner[fp]; ok && src != j.Source {
			continue
		}
		ids[j.ID] = struct{}{}
		if _, ok := owner[fp]; !ok {
			owner[fp] = j.Source
		}
		out = append(out, j)
	}
	return out
}

func fingerprint(j model.Job) string {
	return strings.ToLower(j.Title) + "|" + strings.ToLower(j.CompanyName) + "|" + strings.ToLower(j.Location)
}

// JobID derives the stable canonical id. When nativeID is blank the id is a
// content hash of title, company and location.
func JobID(source, nativeID, title, company, location string) string {
	src := sanitize(source)
	native := strings.TrimSpace(nativeID)
	if native == "" {
		sum := sha256.Sum256([]byte(strings.ToLower(title) + "|" + strings.ToLower(company) + "|" + strings.ToLower(location)))
		return url.PathEscape(src + ":h" + hex.EncodeToString(sum[:])[:16])
	}
	return url.PathEscape(src + ":" + sanitize(native))
}

func sanitize(s string) string {
	return idCharRegex.ReplaceAllString(strings.ToLower(s), "_")
}

// ExtractText converts an HTML or HTML-encoded string to plain text.
// Entities are unescaped first (some providers double-encode), then tags are
// stripped and whitespace collapsed. Block-level tags become spaces so words
// from adjacent paragraphs do not run together.
func ExtractText(content string) string {
	unescaped := html.UnescapeString(content)
	spaced := blockTagRegex.ReplaceAllString(unescaped, " ")
	plain := htmlTagRegex.ReplaceAllString(spaced, "")
	return collapse(plain)
}

// JobType maps provider employment types onto a small vocabulary. Unknown
// values are kept as given.
func JobType(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return NotSpecified
	}
	compact := strings.NewReplacer("_", "", "-", "", " ", "").Replace(v)
	switch {
	case strings.Contains(compact, "fulltime"), strings.Contains(compact, "permanent"):
		return "Full-time"
	case strings.Contains(compact, "parttime"):
		return "Part-time"
	case strings.Contains(compact, "contract"), strings.Contains(compact, "freelance"):
		return "Contract"
	case strings.Contains(compact, "intern"):
		return "Internship"
	case strings.Contains(compact, "temp"):
		return "Temporary"
	}
	return collapse(raw)
}

// SalaryRange formats the salary fields of raw, preferring provider text.
func SalaryRange(raw model.RawRecord) string {
	if text := collapse(raw.SalaryText); text != "" {
		return text
	}

	lo, hi := raw.SalaryMin, raw.SalaryMax
	if lo <= 0 && hi <= 0 {
		return NotSpecified
	}

	var amount string
	switch {
	case lo > 0 && hi > 0 && math.Round(lo) != math.Round(hi):
		amount = money(lo) + " - " + money(hi)
	case lo > 0 && hi > 0:
		amount = money(lo)
	case lo > 0:
		amount = "From " + money(lo)
	default:
		amount = "Up to " + money(hi)
	}

	parts := []string{}
	if c := strings.ToUpper(strings.TrimSpace(raw.SalaryCurrency)); c != "" {
		parts = append(parts, c)
	}
	parts = append(parts, amount)
	if p := period(raw.SalaryPeriod); p != "" {
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

func money(v float64) string {
	return humanize.Comma(int64(math.Round(v)))
}

func period(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "year", "yearly", "annual", "annum":
		return "per year"
	case "month", "monthly":
		return "per month"
	case "week", "weekly":
		return "per week"
	case "day", "daily":
		return "per day"
	case "hour", "hourly":
		return "per hour"
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func isHTTPURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
