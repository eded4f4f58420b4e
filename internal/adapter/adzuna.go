package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kenjobs/jobsync/internal/model"
)

const (
	AdzunaName        = "adzuna"
	adzunaDefaultBase = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize    = 50
)

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID           flexString     `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// AdzunaAdapter fetches job offers from the Adzuna public API.
type AdzunaAdapter struct {
	baseURL  string
	appID    string
	appKey   string
	country  string // "gb", "za", …; Adzuna scopes every search to one country
	currency string
	client   *http.Client
}

// NewAdzunaAdapter creates an adapter for one Adzuna country index.
func NewAdzunaAdapter(baseURL, appID, appKey, country string, client *http.Client) *AdzunaAdapter {
	if baseURL == "" {
		baseURL = adzunaDefaultBase
	}
	return &AdzunaAdapter{
		baseURL:  strings.TrimRight(baseURL, "/"),
		appID:    appID,
		appKey:   appKey,
		country:  strings.ToLower(country),
		currency: adzunaCurrency(country),
		client:   client,
	}
}

func (a *AdzunaAdapter) Name() string { return AdzunaName }

// Fetch retrieves one page of results for the query within the configured country.
func (a *AdzunaAdapter) Fetch(ctx context.Context, q model.Query, page int) ([]model.RawRecord, error) {
	params := url.Values{}
	params.Set("app_id", a.appID)
	params.Set("app_key", a.appKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", q.Text)
	if q.Location != "" {
		params.Set("where", q.Location)
	}
	if days := maxDaysOld(q.DatePosted); days > 0 {
		params.Set("max_days_old", strconv.Itoa(days))
	}
	params.Set("sort_by", "date")

	endpoint := fmt.Sprintf("%s/%s/search/%d?%s", a.baseURL, a.country, page, params.Encode())
	req, err := newGet(ctx, AdzunaName, endpoint)
	if err != nil {
		return nil, err
	}

	var resp adzunaResponse
	if err := getJSON(a.client, AdzunaName, req, &resp); err != nil {
		return nil, err
	}

	records := make([]model.RawRecord, 0, len(resp.Results))
	for _, r := range resp.Results {
		records = append(records, model.RawRecord{
			NativeID:       string(r.ID),
			Title:          r.Title,
			Description:    r.Description,
			CompanyName:    r.Company.DisplayName,
			Location:       r.Location.DisplayName,
			JobType:        firstNonEmpty(r.ContractTime, r.ContractType),
			SalaryMin:      r.SalaryMin,
			SalaryMax:      r.SalaryMax,
			SalaryCurrency: a.currency,
			SalaryPeriod:   "year",
			URL:            r.RedirectURL,
			PostedAt:       parseTime(r.Created),
		})
	}

	return records, nil
}

// maxDaysOld maps the date-posted filter to Adzuna's max_days_old.
func maxDaysOld(datePosted string) int {
	switch datePosted {
	case "today":
		return 1
	case "3days":
		return 3
	case "week":
		return 7
	case "month":
		return 30
	default:
		return 0
	}
}

func adzunaCurrency(country string) string {
	switch strings.ToLower(country) {
	case "gb":
		return "GBP"
	case "za":
		return "ZAR"
	case "in":
		return "INR"
	case "us":
		return "USD"
	case "de", "fr", "nl", "it", "es", "at", "be":
		return "EUR"
	default:
		return ""
	}
}
