package jobs

import (
	"context"
	"time"

	"contactminer/internal/config"
	"contactminer/internal/model"
)

// RetentionStore is the subset of *store.Store the Retention sweep
// depends on.
type RetentionStore interface {
	DeleteExpiredJobs(ctx context.Context, jobType model.JobType, cutoff time.Time) (int64, error)
}

// RetentionStats captures the number of job rows deleted by one sweep,
// keyed by job type. Only types with rows deleted appear; types without
// a specific TTL use the default days but are still keyed by their own
// type.
type RetentionStats struct {
	JobsDeleted map[string]int64
}

// Retention runs the job_ttl TTL cleanup: per-job-type retention in
// days, falling back to a default when a type has no specific value.
type Retention struct {
	cfg   *config.Config
	store RetentionStore
}

// NewRetention builds a Retention sweep wired to cfg.Retention.
func NewRetention(cfg *config.Config, st RetentionStore) *Retention {
	return &Retention{cfg: cfg, store: st}
}

// Cleanup deletes jobs older than their type's TTL so that the
// database does not grow without bound over time.
func (r *Retention) Cleanup(ctx context.Context) RetentionStats {
	now := time.Now().UTC()
	stats := RetentionStats{JobsDeleted: make(map[string]int64)}
	ttl := r.cfg.Retention.Jobs

	effectiveDays := func(specific int) int {
		if specific > 0 {
			return specific
		}
		return ttl.DefaultDays
	}

	applyTTL := func(jobType model.JobType, days int) {
		if days <= 0 {
			return
		}
		cutoff := now.AddDate(0, 0, -days)
		if n, err := r.store.DeleteExpiredJobs(ctx, jobType, cutoff); err == nil && n > 0 {
			stats.JobsDeleted[string(jobType)] += n
		}
	}

	applyTTL(model.JobTypeURL, effectiveDays(ttl.URLDays))
	applyTTL(model.JobTypePDF, effectiveDays(ttl.FileDays))
	applyTTL(model.JobTypeCSV, effectiveDays(ttl.FileDays))
	applyTTL(model.JobTypeExcel, effectiveDays(ttl.FileDays))
	applyTTL(model.JobTypeWord, effectiveDays(ttl.FileDays))
	applyTTL(model.JobTypeOther, effectiveDays(ttl.FileDays))

	return stats
}
