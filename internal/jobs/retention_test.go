package jobs

import (
	"context"
	"testing"
	"time"

	"contactminer/internal/config"
	"contactminer/internal/model"
)

type fakeRetentionStore struct {
	deletedByType map[model.JobType]time.Time
}

func (f *fakeRetentionStore) DeleteExpiredJobs(ctx context.Context, jobType model.JobType, cutoff time.Time) (int64, error) {
	if f.deletedByType == nil {
		f.deletedByType = make(map[model.JobType]time.Time)
	}
	f.deletedByType[jobType] = cutoff
	return 3, nil
}

func TestCleanupAppliesPerTypeTTLOverDefault(t *testing.T) {
	cfg := &config.Config{Retention: config.RetentionConfig{
		Jobs: config.JobTTLConfig{DefaultDays: 30, URLDays: 7, FileDays: 0},
	}}
	st := &fakeRetentionStore{}
	r := NewRetention(cfg, st)

	stats := r.Cleanup(context.Background())

	if stats.JobsDeleted[string(model.JobTypeURL)] != 3 {
		t.Errorf("expected 3 url jobs deleted, got %+v", stats.JobsDeleted)
	}
	if stats.JobsDeleted[string(model.JobTypePDF)] != 3 {
		t.Errorf("expected pdf jobs deleted via default TTL, got %+v", stats.JobsDeleted)
	}

	urlCutoff := st.deletedByType[model.JobTypeURL]
	pdfCutoff := st.deletedByType[model.JobTypePDF]
	if !urlCutoff.After(pdfCutoff) {
		t.Errorf("expected url's shorter TTL to produce a later cutoff than pdf's default TTL")
	}
}

func TestCleanupSkipsTypesWithNoTTL(t *testing.T) {
	cfg := &config.Config{Retention: config.RetentionConfig{
		Jobs: config.JobTTLConfig{DefaultDays: 0, URLDays: 0, FileDays: 0},
	}}
	st := &fakeRetentionStore{}
	r := NewRetention(cfg, st)

	stats := r.Cleanup(context.Background())

	if len(stats.JobsDeleted) != 0 {
		t.Errorf("expected no deletions when no TTL is configured, got %+v", stats.JobsDeleted)
	}
}
