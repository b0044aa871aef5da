package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"contactminer/internal/config"
	"contactminer/internal/model"
)

type fakeStore struct {
	mu      sync.Mutex
	pending []model.Job
	calls   int
}

func (f *fakeStore) ListPendingJobs(ctx context.Context, limit int32) ([]model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.pending) == 0 {
		return nil, nil
	}
	n := int(limit)
	if n > len(f.pending) {
		n = len(f.pending)
	}
	out := f.pending[:n]
	f.pending = f.pending[n:]
	return out, nil
}

type fakeOrchestrator struct {
	mu  sync.Mutex
	ran []uuid.UUID
}

func (f *fakeOrchestrator) Run(ctx context.Context, job model.Job) {
	f.mu.Lock()
	f.ran = append(f.ran, job.ID)
	f.mu.Unlock()
}

func TestRunnerDispatchesPendingJobs(t *testing.T) {
	cfg := &config.Config{Worker: config.WorkerConfig{MaxConcurrentJobs: 2, PollIntervalMs: 10}}
	st := &fakeStore{pending: []model.Job{{ID: uuid.New()}, {ID: uuid.New()}}}
	orch := &fakeOrchestrator{}

	r := NewRunner(cfg, st, orch, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r.Start(ctx)

	orch.mu.Lock()
	defer orch.mu.Unlock()
	if len(orch.ran) != 2 {
		t.Fatalf("expected both pending jobs dispatched, got %d", len(orch.ran))
	}
}

func TestRunnerStopsOnContextCancellation(t *testing.T) {
	cfg := &config.Config{Worker: config.WorkerConfig{MaxConcurrentJobs: 1, PollIntervalMs: 10}}
	st := &fakeStore{}
	orch := &fakeOrchestrator{}

	r := NewRunner(cfg, st, orch, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return promptly after context cancellation")
	}
}
