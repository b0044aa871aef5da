// Package httpapi exposes the Job API surface over Fiber: create,
// list, inspect, patch, run, retry, and delete mining jobs.
// Collaborators are injected through Locals; every handler responds
// with the shared Success/Code/Error envelope, except a successful
// delete, which returns 204 with no body.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"contactminer/internal/config"
	"contactminer/internal/model"
	"contactminer/internal/store"
)

// Orchestrator is the subset of orchestrator.Orchestrator the API
// depends on, for the /run endpoint, which starts Run in the background
// and responds 202 without waiting for it.
type Orchestrator interface {
	Run(ctx context.Context, job model.Job)
}

// Server wraps a Fiber app exposing the job API.
type Server struct {
	app    *fiber.App
	config *config.Config
	store  *store.Store
	logger *slog.Logger
}

// NewServer builds a Server wired to st, with orch dispatching the
// /jobs/:id/run endpoint's immediate-run request.
func NewServer(cfg *config.Config, st *store.Store, orch Orchestrator, logger *slog.Logger) *Server {
	app := fiber.New()

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("config", cfg)
		c.Locals("store", st)
		c.Locals("orchestrator", orch)
		return c.Next()
	})

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		if logger != nil {
			logger.Info("request",
				"request_id", reqID,
				"method", c.Method(),
				"path", c.Path(),
				"status", c.Response().StatusCode(),
				"latency_ms", time.Since(start).Milliseconds(),
			)
		}
		return err
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := st.DB.PingContext(ctx); err != nil {
			dbStatus = "error"
		}
		status := "ok"
		if dbStatus != "ok" {
			status = "error"
		}
		return c.JSON(fiber.Map{"status": status, "db": dbStatus})
	})

	jobs := app.Group("/jobs")
	jobs.Post("/", createJobHandler)
	jobs.Get("/", listJobsHandler)
	jobs.Get("/:id", jobDetailHandler)
	jobs.Patch("/:id", patchJobHandler)
	jobs.Post("/:id/run", runJobHandler)
	jobs.Post("/:id/retry", retryJobHandler)
	jobs.Delete("/:id", deleteJobHandler)

	return &Server{app: app, config: cfg, store: st, logger: logger}
}

// Listen starts the HTTP server on the configured host:port.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	return s.app.Listen(addr)
}
