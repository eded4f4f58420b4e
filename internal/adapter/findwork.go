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
	FindworkName        = "findwork"
	findworkDefaultBase = "https://findwork.dev/api/jobs/"
)

// findworkJob represents a single job in the Findwork API response.
type findworkJob struct {
	ID             flexString `json:"id"`
	Role           string     `json:"role"`
	CompanyName    string     `json:"company_name"`
	EmploymentType string     `json:"employment_type"`
	Location       string     `json:"location"`
	Remote         bool       `json:"remote"`
	Logo           string     `json:"logo"`
	URL            string     `json:"url"`
	Text           string     `json:"text"`
	DatePosted     string     `json:"date_posted"`
}

type findworkResponse struct {
	Count   int           `json:"count"`
	Results []findworkJob `json:"results"`
}

// FindworkAdapter fetches jobs from the Findwork API.
type FindworkAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewFindworkAdapter creates an adapter authenticated with a Findwork token.
func NewFindworkAdapter(baseURL, apiKey string, client *http.Client) *FindworkAdapter {
	if baseURL == "" {
		baseURL = findworkDefaultBase
	}
	return &FindworkAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  client,
	}
}

func (a *FindworkAdapter) Name() string { return FindworkName }

// Fetch retrieves one page of search results.
func (a *FindworkAdapter) Fetch(ctx context.Context, q model.Query, page int) ([]model.RawRecord, error) {
	params := url.Values{}
	params.Set("search", q.Text)
	if q.Location != "" {
		params.Set("location", q.Location)
	}
	if q.RemoteOnly {
		params.Set("remote", "true")
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("sort_by", "date")

	sep := "?"
	if strings.Contains(a.baseURL, "?") {
		sep = "&"
	}
	req, err := newGet(ctx, FindworkName, a.baseURL+sep+params.Encode())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+a.apiKey)

	var resp findworkResponse
	if err := getJSON(a.client, FindworkName, req, &resp); err != nil {
		return nil, err
	}

	records := make([]model.RawRecord, 0, len(resp.Results))
	for _, j := range resp.Results {
		records = append(records, model.RawRecord{
			NativeID:    string(j.ID),
			Title:       j.Role,
			Description: j.Text,
			CompanyName: j.CompanyName,
			CompanyLogo: j.Logo,
			Location:    j.Location,
			JobType:     j.EmploymentType,
			Remote:      j.Remote,
			URL:         j.URL,
			PostedAt:    parseTime(j.DatePosted),
		})
	}

	return records, nil
}
