package store

import (
	"context"

	"github.com/kenjobs/jobsync/internal/model"
)

// NopStore is used when no persistent store is configured. It has no
// internal jobs and rejects saved-job operations with ErrStoreDisabled.
type NopStore struct{}

var _ Store = NopStore{}

func NewNopStore() NopStore { return NopStore{} }

func (NopStore) ListOpenJobs(context.Context, string, string) ([]model.Job, error) { return nil, nil }
func (NopStore) ToggleSaved(context.Context, string, model.Job) (bool, error)     { return false, ErrStoreDisabled }
func (NopStore) ListSaved(context.Context, string) ([]SavedJob, error)            { return nil, ErrStoreDisabled }
func (NopStore) DeleteSaved(context.Context, string, string) error                { return ErrStoreDisabled }
func (NopStore) IsSaved(context.Context, string, string) (bool, error)            { return false, ErrStoreDisabled }
func (NopStore) Close() error                                                     { return nil }
