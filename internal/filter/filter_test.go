package filter

import (
	"testing"
	"time"

	"github.com/kenjobs/jobsync/internal/model"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func job(title, location string, age time.Duration) model.Job {
	return model.Job{Title: title, Location: location, PostedAt: now.Add(-age)}
}

func TestResultFilter_Match(t *testing.T) {
	tests := []struct {
		name      string
		filters   model.Filters
		job       model.Job
		wantMatch bool
	}{
		{
			name:      "no filters pass all",
			filters:   model.Filters{},
			job:       job("Accountant", "Mombasa", 400*24*time.Hour),
			wantMatch: true,
		},
		{
			name:      "remote only matches location",
			filters:   model.Filters{RemoteOnly: true},
			job:       job("Go Developer", "Nairobi (Remote)", time.Hour),
			wantMatch: true,
		},
		{
			name:      "remote only matches title case-insensitively",
			filters:   model.Filters{RemoteOnly: true},
			job:       job("REMOTE Support Engineer", "Kenya", time.Hour),
			wantMatch: true,
		},
		{
			name:      "remote only rejects onsite",
			filters:   model.Filters{RemoteOnly: true},
			job:       job("Go Developer", "Nairobi", time.Hour),
			wantMatch: false,
		},
		{
			name:      "today keeps jobs within 24h",
			filters:   model.Filters{DatePosted: "today"},
			job:       job("Go Developer", "Nairobi", 23*time.Hour),
			wantMatch: true,
		},
		{
			name:      "today rejects older jobs",
			filters:   model.Filters{DatePosted: "today"},
			job:       job("Go Developer", "Nairobi", 25*time.Hour),
			wantMatch: false,
		},
		{
			name:      "week window",
			filters:   model.Filters{DatePosted: "week"},
			job:       job("Go Developer", "Nairobi", 6*24*time.Hour),
			wantMatch: true,
		},
		{
			name:      "month window rejects",
			filters:   model.Filters{DatePosted: "month"},
			job:       job("Go Developer", "Nairobi", 31*24*time.Hour),
			wantMatch: false,
		},
		{
			name:      "all ignores age",
			filters:   model.Filters{DatePosted: "all"},
			job:       job("Go Developer", "Nairobi", 365*24*time.Hour),
			wantMatch: true,
		},
		{
			name:      "both filters must pass",
			filters:   model.Filters{RemoteOnly: true, DatePosted: "3days"},
			job:       job("Go Developer", "Remote", 4*24*time.Hour),
			wantMatch: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewResultFilter(tt.filters, clock)
			if got := f.Match(tt.job); got != tt.wantMatch {
				t.Errorf("Match() = %v, want %v", got, tt.wantMatch)
			}
		})
	}
}

func TestResultFilter_RemoteJobType(t *testing.T) {
	f := NewResultFilter(model.Filters{RemoteOnly: true}, clock)
	j := model.Job{Title: "Designer", Location: "Kenya", JobType: "Remote contract", PostedAt: now}
	if !f.Match(j) {
		t.Error("expected job type mentioning remote to match")
	}
}

func TestResultFilter_Active(t *testing.T) {
	if NewResultFilter(model.Filters{Page: 2, Limit: 5, DatePosted: "all"}, clock).Active() {
		t.Error("expected filter with only defaults to be inactive")
	}
	if !NewResultFilter(model.Filters{DatePosted: "week"}, clock).Active() {
		t.Error("expected date window to activate the filter")
	}
}

func TestApply_PreservesOrder(t *testing.T) {
	jobs := []model.Job{
		job("A", "Remote", time.Hour),
		job("B", "Nairobi", time.Hour),
		job("C", "Remote, Kenya", time.Hour),
	}
	got := Apply(jobs, NewResultFilter(model.Filters{RemoteOnly: true}, clock))
	if len(got) != 2 || got[0].Title != "A" || got[1].Title != "C" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestWindow(t *testing.T) {
	if d, ok := Window("3days"); !ok || d != 72*time.Hour {
		t.Errorf("Window(3days) = %v, %v", d, ok)
	}
	if _, ok := Window("yesterday"); ok {
		t.Error("expected unknown value to have no window")
	}
}
