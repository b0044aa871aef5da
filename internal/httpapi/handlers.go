package httpapi

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"contactminer/internal/config"
	"contactminer/internal/model"
	"contactminer/internal/store"
)

// envelope is the Success/Code/Error response shape shared by the job
// endpoints; a successful delete returns 204 with no body instead.
type envelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Job     any    `json:"job,omitempty"`
	Jobs    any    `json:"jobs,omitempty"`
	Stats   any    `json:"stats,omitempty"`
}

func fail(c *fiber.Ctx, status int, code, msg string) error {
	return c.Status(status).JSON(envelope{Success: false, Code: code, Error: msg})
}

// createJobRequest is the POST /jobs request body.
type createJobRequest struct {
	OrganizerID uuid.UUID      `json:"organizer_id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Input       string         `json:"input"`
	Strategy    string         `json:"strategy"`
	SiteProfile string         `json:"site_profile"`
	Config      map[string]any `json:"config"`
}

func createJobHandler(c *fiber.Ctx) error {
	cfg := c.Locals("config").(*config.Config)
	st := c.Locals("store").(*store.Store)

	var req createJobRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
	}
	if req.OrganizerID == uuid.Nil {
		return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "organizer_id is required")
	}
	if req.Input == "" {
		return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "input is required")
	}
	jobType := model.JobType(req.Type)
	if jobType == "" {
		jobType = model.JobTypeURL
	}

	job := model.Job{
		OrganizerID: req.OrganizerID,
		Name:        req.Name,
		Type:        jobType,
		Input:       req.Input,
		Strategy:    model.Strategy(req.Strategy),
		SiteProfile: req.SiteProfile,
		Config:      config.ParseJobConfig(req.Config, cfg.Mining),
	}
	if job.Strategy == "" {
		job.Strategy = model.StrategyAuto
	}

	created, err := st.CreateJob(c.Context(), job)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "JOB_CREATE_FAILED", err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(envelope{Success: true, Job: created})
}

func listJobsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	filter := store.JobListFilter{
		Type:   model.JobType(c.Query("type")),
		Status: model.Status(c.Query("status")),
		Limit:  50,
	}
	if orgStr := c.Query("organizer_id"); orgStr != "" {
		id, err := uuid.Parse(orgStr)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid organizer_id")
		}
		filter.OrganizerID = &id
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid limit value")
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid offset value")
		}
		filter.Offset = n
	}

	jobs, err := st.ListJobs(c.Context(), filter)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "JOB_LIST_FAILED", err.Error())
	}

	resp := envelope{Success: true, Jobs: jobs}
	if filter.OrganizerID != nil {
		if stats, err := st.CountJobStats(c.Context(), *filter.OrganizerID); err == nil {
			resp.Stats = stats
		}
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func parseJobID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

func jobDetailHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	id, err := parseJobID(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid job id")
	}
	job, err := st.GetJob(c.Context(), id)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "NOT_FOUND", "job not found")
	}
	return c.Status(fiber.StatusOK).JSON(envelope{Success: true, Job: job})
}

// patchJobRequest is the PATCH /jobs/:id request body; a nil field
// leaves the corresponding column unchanged.
type patchJobRequest struct {
	Status         *string `json:"status"`
	Progress       *int    `json:"progress"`
	ProcessedPages *int    `json:"processed_pages"`
	TotalPages     *int    `json:"total_pages"`
}

func patchJobHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	id, err := parseJobID(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid job id")
	}

	var req patchJobRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
	}

	patch := store.JobPatch{Progress: req.Progress, ProcessedPages: req.ProcessedPages, TotalPages: req.TotalPages}
	if req.Status != nil {
		s := model.Status(*req.Status)
		patch.Status = &s
	}

	if err := st.PatchJob(c.Context(), id, patch); err != nil {
		return fail(c, fiber.StatusInternalServerError, "JOB_PATCH_FAILED", err.Error())
	}
	job, err := st.GetJob(c.Context(), id)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "NOT_FOUND", "job not found")
	}
	return c.Status(fiber.StatusOK).JSON(envelope{Success: true, Job: job})
}

// runJobHandler dispatches a job to the orchestrator immediately
// instead of waiting for the worker's next poll tick, running it in
// the background so the HTTP response does not block on mining.
func runJobHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	orch, _ := c.Locals("orchestrator").(Orchestrator)

	id, err := parseJobID(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid job id")
	}
	job, err := st.GetJob(c.Context(), id)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "NOT_FOUND", "job not found")
	}
	if job.Status == model.StatusRunning {
		return fail(c, fiber.StatusConflict, "ALREADY_RUNNING", "job is already running")
	}
	if orch == nil {
		return fail(c, fiber.StatusServiceUnavailable, "ORCHESTRATOR_UNAVAILABLE", "no orchestrator configured")
	}

	go orch.Run(context.Background(), job)

	return c.Status(fiber.StatusAccepted).JSON(envelope{Success: true, Job: job})
}

// retryJobHandler creates a child job cloning a terminal (completed,
// failed or blocked) job's input and config, linked back through
// parent_job_id.
func retryJobHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	id, err := parseJobID(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid job id")
	}
	original, err := st.GetJob(c.Context(), id)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "NOT_FOUND", "job not found")
	}
	if !original.Status.Terminal() {
		return fail(c, fiber.StatusConflict, "NOT_TERMINAL", "job has not reached a terminal status")
	}

	retry := model.Job{
		OrganizerID: original.OrganizerID,
		Name:        original.Name + " (Retry)",
		Type:        original.Type,
		Input:       original.Input,
		Strategy:    original.Strategy,
		SiteProfile: original.SiteProfile,
		Config:      original.Config,
		ParentJobID: &original.ID,
		FileData:    original.FileData,
	}

	created, err := st.CreateJob(c.Context(), retry)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "JOB_CREATE_FAILED", err.Error())
	}
	_ = st.SetRetryJobID(c.Context(), original.ID, created.ID)

	return c.Status(fiber.StatusCreated).JSON(envelope{Success: true, Job: created})
}

// deleteJobHandler removes a job and its mining results. Deletion is
// forbidden while the job is running, since that would race the
// worker currently mutating it.
func deleteJobHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	id, err := parseJobID(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid job id")
	}
	job, err := st.GetJob(c.Context(), id)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "NOT_FOUND", "job not found")
	}
	if job.Status == model.StatusRunning {
		return fail(c, fiber.StatusConflict, "JOB_RUNNING", "cannot delete a running job")
	}
	if err := st.DeleteJob(c.Context(), id); err != nil {
		return fail(c, fiber.StatusInternalServerError, "JOB_DELETE_FAILED", err.Error())
	}
	return c.Status(fiber.StatusNoContent).Send(nil)
}
