// Package jobs polls the jobs table and dispatches pending work to the
// Job Orchestrator, bounding concurrency and running periodic
// retention cleanup.
package jobs

import (
	"context"
	"time"

	"contactminer/internal/config"
	"contactminer/internal/model"
)

// Orchestrator is the subset of orchestrator.Orchestrator the Runner
// depends on.
type Orchestrator interface {
	Run(ctx context.Context, job model.Job)
}

// Store is the subset of *store.Store the Runner depends on.
type Store interface {
	ListPendingJobs(ctx context.Context, limit int32) ([]model.Job, error)
}

// Runner polls for pending jobs and dispatches each to the
// Orchestrator, bounding how many run concurrently and running
// retention cleanup on its own interval.
type Runner struct {
	cfg          *config.Config
	store        Store
	orchestrator Orchestrator
	retention    *Retention
}

// NewRunner constructs a Runner wired to the given store and orchestrator.
func NewRunner(cfg *config.Config, st Store, orch Orchestrator, retention *Retention) *Runner {
	return &Runner{cfg: cfg, store: st, orchestrator: orch, retention: retention}
}

// Start runs the poll/dispatch loop until ctx is canceled. Callers
// typically run this in its own goroutine and keep the process alive.
func (r *Runner) Start(ctx context.Context) {
	pollInterval := time.Duration(r.cfg.Worker.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	maxJobs := r.cfg.Worker.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 4
	}

	sem := make(chan struct{}, maxJobs)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastCleanup time.Time
	cleanupInterval := time.Duration(r.cfg.Retention.CleanupIntervalMinutes) * time.Minute
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r.retention != nil && r.cfg.Retention.Enabled {
			now := time.Now().UTC()
			if lastCleanup.IsZero() || now.Sub(lastCleanup) >= cleanupInterval {
				r.retention.Cleanup(ctx)
				lastCleanup = now
			}
		}

		capacity := maxJobs - len(sem)
		if capacity <= 0 {
			continue
		}

		pending, err := r.store.ListPendingJobs(ctx, int32(capacity))
		if err != nil {
			continue
		}

		for _, job := range pending {
			job := job
			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				r.orchestrator.Run(ctx, job)
			}()
		}
	}
}
