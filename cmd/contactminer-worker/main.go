// Command contactminer-worker runs exactly one job to completion and
// exits, for callers that want a per-job process rather than the
// long-running poll loop in cmd/contactminer-api: the job id comes
// from the JOB_ID environment variable, the process exits 0 on a
// completed job and 1 otherwise, and it never
// leaves the job in `running` because orchestrator.Run's single exit
// path always reaches a terminal status before this returns.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/google/uuid"

	"contactminer/internal/analyzer"
	"contactminer/internal/config"
	"contactminer/internal/htmlcache"
	"contactminer/internal/migrate"
	"contactminer/internal/model"
	"contactminer/internal/orchestrator"
	"contactminer/internal/ratelimit"
	"contactminer/internal/store"
	"contactminer/internal/wiring"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	jobIDRaw := os.Getenv("JOB_ID")
	if jobIDRaw == "" {
		log.Fatal("JOB_ID environment variable is required")
	}
	jobID, err := uuid.Parse(jobIDRaw)
	if err != nil {
		log.Fatalf("invalid JOB_ID: %v", err)
	}

	cfg := config.Load(*configPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}
	defer db.Close()

	st := store.New(db)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	job, err := st.GetJob(context.Background(), jobID)
	if err != nil {
		logger.Error("job not found", "job_id", jobID, "error", err)
		os.Exit(1)
	}

	reg := wiring.BuildRegistry(cfg, logger)

	cache := htmlcache.New(
		time.Duration(cfg.HTMLCache.TTLSeconds)*time.Second,
		cfg.HTMLCache.MaxBodySize,
	)
	an := analyzer.New(cache, analyzer.Config{
		Timeout:      time.Duration(cfg.Analyzer.TimeoutMs) * time.Millisecond,
		MaxRedirects: cfg.Analyzer.MaxRedirects,
		UserAgent:    cfg.Analyzer.UserAgent,
	})

	var limiter *ratelimit.Limiter
	if cfg.Redis.Enabled {
		limiter, err = ratelimit.New(cfg.Redis.URL, time.Duration(cfg.Mining.ListPageDelayMs)*time.Millisecond)
		if err != nil {
			log.Fatalf("ratelimit.New failed: %v", err)
		}
		defer limiter.Close()
	}

	orch := orchestrator.New(st, an, reg, limiter, cfg)
	orch.Run(context.Background(), job)

	final, err := st.GetJob(context.Background(), jobID)
	if err != nil {
		logger.Error("failed to read final job status", "job_id", jobID, "error", err)
		os.Exit(1)
	}
	if final.Status != model.StatusCompleted {
		os.Exit(1)
	}
}
