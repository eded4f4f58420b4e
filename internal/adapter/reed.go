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
	ReedName        = "reed"
	reedDefaultBase = "https://www.reed.co.uk/api/1.0"
	reedPageSize    = 100
)

// reedJob represents a single job in the Reed search response.
type reedJob struct {
	JobID          flexString `json:"jobId"`
	EmployerName   string     `json:"employerName"`
	JobTitle       string     `json:"jobTitle"`
	LocationName   string     `json:"locationName"`
	MinimumSalary  *float64   `json:"minimumSalary"`
	MaximumSalary  *float64   `json:"maximumSalary"`
	Currency       string     `json:"currency"`
	Date           string     `json:"date"`
	JobDescription string     `json:"jobDescription"`
	JobURL         string     `json:"jobUrl"`
}

type reedResponse struct {
	Results      []reedJob `json:"results"`
	TotalResults int       `json:"totalResults"`
}

// ReedAdapter fetches jobs from the Reed.co.uk jobseeker API.
type ReedAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewReedAdapter creates an adapter; Reed authenticates with the API key as
// the basic-auth username and an empty password.
func NewReedAdapter(baseURL, apiKey string, client *http.Client) *ReedAdapter {
	if baseURL == "" {
		baseURL = reedDefaultBase
	}
	return &ReedAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (a *ReedAdapter) Name() string { return ReedName }

// Fetch retrieves one page of search results. Reed pages by offset.
func (a *ReedAdapter) Fetch(ctx context.Context, q model.Query, page int) ([]model.RawRecord, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("keywords", q.Text)
	if q.Location != "" {
		params.Set("locationName", q.Location)
	}
	params.Set("resultsToTake", strconv.Itoa(reedPageSize))
	params.Set("resultsToSkip", strconv.Itoa((page-1)*reedPageSize))

	req, err := newGet(ctx, ReedName, a.baseURL+"/search?"+params.Encode())
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(a.apiKey, "")

	var resp reedResponse
	if err := getJSON(a.client, ReedName, req, &resp); err != nil {
		return nil, err
	}

	records := make([]model.RawRecord, 0, len(resp.Results))
	for _, j := range resp.Results {
		rec := model.RawRecord{
			NativeID:       string(j.JobID),
			Title:          j.JobTitle,
			Description:    j.JobDescription,
			CompanyName:    j.EmployerName,
			Location:       j.LocationName,
			SalaryCurrency: j.Currency,
			SalaryPeriod:   "year",
			URL:            j.JobURL,
			PostedAt:       parseTime(j.Date),
		}
		if j.MinimumSalary != nil {
			rec.SalaryMin = *j.MinimumSalary
		}
		if j.MaximumSalary != nil {
			rec.SalaryMax = *j.MaximumSalary
		}
		records = append(records, rec)
	}

	return records, nil
}
