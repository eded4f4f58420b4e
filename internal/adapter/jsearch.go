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
	JSearchName        = "jsearch"
	jsearchDefaultBase = "https://jsearch.p.rapidapi.com"
	jsearchDefaultHost = "jsearch.p.rapidapi.com"
)

// jsearchJob represents a single job in the JSearch API response.
type jsearchJob struct {
	JobID             flexString `json:"job_id"`
	Title             string     `json:"job_title"`
	EmployerName      string     `json:"employer_name"`
	EmployerLogo      string     `json:"employer_logo"`
	City              string     `json:"job_city"`
	State             string     `json:"job_state"`
	Country           string     `json:"job_country"`
	Description       string     `json:"job_description"`
	EmploymentType    string     `json:"job_employment_type"`
	IsRemote          bool       `json:"job_is_remote"`
	ApplyLink         string     `json:"job_apply_link"`
	PostedAtUTC       string     `json:"job_posted_at_datetime_utc"`
	PostedAtTimestamp int64      `json:"job_posted_at_timestamp"`
	Salary            string     `json:"job_salary"`
	MinSalary         *float64   `json:"job_min_salary"`
	MaxSalary         *float64   `json:"job_max_salary"`
	SalaryCurrency    string     `json:"job_salary_currency"`
	SalaryPeriod      string     `json:"job_salary_period"`
}

// jsearchResponse is the top-level JSearch search response.
type jsearchResponse struct {
	Status string       `json:"status"`
	Data   []jsearchJob `json:"data"`
}

// JSearchAdapter fetches jobs from the JSearch API on RapidAPI.
type JSearchAdapter struct {
	baseURL string
	apiKey  string
	host    string
	country string
	client  *http.Client
}

// NewJSearchAdapter creates an adapter authenticated with a RapidAPI key.
// country is an ISO code passed as a region hint ("ke"); empty disables it.
func NewJSearchAdapter(baseURL, apiKey, host, country string, client *http.Client) *JSearchAdapter {
	if baseURL == "" {
		baseURL = jsearchDefaultBase
	}
	if host == "" {
		host = jsearchDefaultHost
	}
	return &JSearchAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		host:    host,
		country: country,
		client:  client,
	}
}

func (a *JSearchAdapter) Name() string { return JSearchName }

// Fetch retrieves one page of search results.
func (a *JSearchAdapter) Fetch(ctx context.Context, q model.Query, page int) ([]model.RawRecord, error) {
	params := url.Values{}
	params.Set("query", joinNonEmpty(" in ", q.Text, q.Location))
	params.Set("page", strconv.Itoa(page))
	params.Set("num_pages", "1")
	params.Set("date_posted", firstNonEmpty(q.DatePosted, "all"))
	if q.RemoteOnly {
		params.Set("remote_jobs_only", "true")
	}
	if a.country != "" {
		params.Set("country", a.country)
	}

	req, err := newGet(ctx, JSearchName, a.baseURL+"/search?"+params.Encode())
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", a.apiKey)
	req.Header.Set("X-RapidAPI-Host", a.host)

	var resp jsearchResponse
	if err := getJSON(a.client, JSearchName, req, &resp); err != nil {
		return nil, err
	}

	records := make([]model.RawRecord, 0, len(resp.Data))
	for _, j := range resp.Data {
		rec := model.RawRecord{
			NativeID:       string(j.JobID),
			Title:          j.Title,
			Description:    j.Description,
			CompanyName:    j.EmployerName,
			CompanyLogo:    j.EmployerLogo,
			Location:       joinNonEmpty(", ", j.City, j.State, j.Country),
			JobType:        j.EmploymentType,
			Remote:         j.IsRemote,
			SalaryText:     j.Salary,
			SalaryCurrency: j.SalaryCurrency,
			SalaryPeriod:   j.SalaryPeriod,
			URL:            j.ApplyLink,
			PostedAt:       parseTime(j.PostedAtUTC),
		}
		if rec.PostedAt == nil {
			rec.PostedAt = unixTime(j.PostedAtTimestamp)
		}
		if j.MinSalary != nil {
			rec.SalaryMin = *j.MinSalary
		}
		if j.MaxSalary != nil {
			rec.SalaryMax = *j.MaxSalary
		}
		records = append(records, rec)
	}

	return records, nil
}
