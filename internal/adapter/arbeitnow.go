package adapter

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kenjobs/jobsync/internal/model"
)

const (
	ArbeitnowName        = "arbeitnow"
	arbeitnowDefaultBase = "https://www.arbeitnow.com/api/job-board-api"
)

// arbeitnowJob represents a single job in the Arbeitnow job board API.
type arbeitnowJob struct {
	Slug        string   `json:"slug"`
	CompanyName string   `json:"company_name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Remote      bool     `json:"remote"`
	URL         string   `json:"url"`
	Tags        []string `json:"tags"`
	JobTypes    []string `json:"job_types"`
	Location    string   `json:"location"`
	CreatedAt   int64    `json:"created_at"`
}

type arbeitnowResponse struct {
	Data []arbeitnowJob `json:"data"`
}

// ArbeitnowAdapter fetches jobs from the public Arbeitnow board. The API has
// no search parameters, so query and location are matched client-side.
type ArbeitnowAdapter struct {
	baseURL string
	client  *http.Client
}

// NewArbeitnowAdapter creates an adapter for the keyless Arbeitnow API.
func NewArbeitnowAdapter(baseURL string, client *http.Client) *ArbeitnowAdapter {
	if baseURL == "" {
		baseURL = arbeitnowDefaultBase
	}
	return &ArbeitnowAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (a *ArbeitnowAdapter) Name() string { return ArbeitnowName }

// Fetch retrieves one board page and keeps the postings matching the query.
func (a *ArbeitnowAdapter) Fetch(ctx context.Context, q model.Query, page int) ([]model.RawRecord, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	if q.RemoteOnly {
		params.Set("remote", "true")
	}

	req, err := newGet(ctx, ArbeitnowName, a.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var resp arbeitnowResponse
	if err := getJSON(a.client, ArbeitnowName, req, &resp); err != nil {
		return nil, err
	}

	records := make([]model.RawRecord, 0, len(resp.Data))
	for _, j := range resp.Data {
		if !arbeitnowMatches(j, q) {
			continue
		}
		records = append(records, model.RawRecord{
			NativeID:    j.Slug,
			Title:       j.Title,
			Description: j.Description,
			CompanyName: j.CompanyName,
			Location:    j.Location,
			JobType:     strings.Join(j.JobTypes, ", "),
			Remote:      j.Remote,
			URL:         j.URL,
			PostedAt:    unixTime(j.CreatedAt),
		})
	}

	return records, nil
}

// arbeitnowMatches requires every query term to appear in the title, tags or
// description. Location only narrows non-remote postings.
func arbeitnowMatches(j arbeitnowJob, q model.Query) bool {
	if q.RemoteOnly && !j.Remote {
		return false
	}

	haystack := strings.ToLower(j.Title + " " + strings.Join(j.Tags, " ") + " " + j.Description)
	for _, term := range strings.Fields(strings.ToLower(q.Text)) {
		if !strings.Contains(haystack, term) {
			return false
		}
	}

	if loc := strings.ToLower(strings.TrimSpace(q.Location)); loc != "" && !j.Remote {
		return strings.Contains(strings.ToLower(j.Location), loc)
	}
	return true
}
