// Command contactminer-api runs the HTTP Job API alongside the
// background worker poll loop: flag-based config path, migrations,
// pooled *sql.DB, background runner, then the HTTP listener.
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

	"contactminer/internal/analyzer"
	"contactminer/internal/config"
	"contactminer/internal/htmlcache"
	"contactminer/internal/httpapi"
	"contactminer/internal/jobs"
	"contactminer/internal/migrate"
	"contactminer/internal/orchestrator"
	"contactminer/internal/ratelimit"
	"contactminer/internal/store"
	"contactminer/internal/wiring"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

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
	maxOpen := cfg.Database.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if cfg.Database.ConnMaxLifeMins > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifeMins) * time.Minute)
	}

	st := store.New(db)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

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
	retention := jobs.NewRetention(cfg, st)
	runner := jobs.NewRunner(cfg, st, orch, retention)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(rootCtx)

	srv := httpapi.NewServer(cfg, st, orch, logger)
	if err := srv.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
