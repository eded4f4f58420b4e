package bridge

import (
	"testing"
	"time"

	"github.com/kenjobs/jobsync/internal/model"
)

func TestMerge_InternalFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	internal := []model.Job{
		{ID: "internal:1", PostedAt: base},
		{ID: "internal:2", PostedAt: base.Add(2 * time.Hour)},
	}
	external := []model.Job{
		{ID: "jsearch:a", PostedAt: base.Add(5 * time.Hour)},
		{ID: "reed:b", PostedAt: base.Add(-5 * time.Hour)},
	}

	got := Merge(internal, external)

	want := []string{"internal:2", "internal:1", "jsearch:a", "reed:b"}
	if len(got) != len(want) {
		t.Fatalf("expected %d jobs, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
	if internal[0].ID != "internal:1" {
		t.Error("Merge must not reorder the caller's slice")
	}
}

func TestMerge_Empty(t *testing.T) {
	if got := Merge(nil, nil); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
	ext := []model.Job{{ID: "a"}, {ID: "b"}}
	if got := Merge(nil, ext); len(got) != 2 || got[0].ID != "a" {
		t.Errorf("unexpected merge of external only: %+v", got)
	}
}
