package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"contactminer/internal/config"
	"contactminer/internal/model"
	"contactminer/internal/store"
)

type fakeOrchestrator struct {
	ran chan model.Job
}

func (f *fakeOrchestrator) Run(ctx context.Context, job model.Job) {
	f.ran <- job
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock, *fakeOrchestrator) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	cfg := &config.Config{}
	orch := &fakeOrchestrator{ran: make(chan model.Job, 1)}
	return NewServer(cfg, st, orch, nil), mock, orch
}

func TestCreateJobHandlerRejectsMissingInput(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"organizer_id": uuid.New().String()})
	req := httptest.NewRequest(http.MethodPost, "/jobs/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCreateJobHandlerInsertsPendingJob(t *testing.T) {
	srv, mock, _ := newTestServer(t)
	mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(1, 1))

	body, _ := json.Marshal(map[string]any{
		"organizer_id": uuid.New().String(),
		"input":        "https://example.com",
		"type":         "url",
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestJobDetailHandlerRejectsMalformedID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil)
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDeleteJobHandlerForbidsWhileRunning(t *testing.T) {
	srv, mock, _ := newTestServer(t)
	id := uuid.New()

	cols := []string{
		"id", "organizer_id", "name", "type", "input", "strategy", "site_profile", "config",
		"status", "progress", "total_pages", "processed_pages", "total_found",
		"total_emails_raw", "total_prospects_created", "stats", "error",
		"parent_job_id", "retry_job_id", "file_data", "created_at", "started_at", "completed_at", "updated_at",
	}
	now := time.Now().UTC()
	row := sqlmock.NewRows(cols).AddRow(
		id, uuid.New(), "job", "url", "https://example.com", "auto", "", []byte("{}"),
		"running", 0, 0, 0, 0, 0, 0, []byte("{}"), nil, nil, nil, nil, now, nil, nil, now,
	)
	mock.ExpectQuery("SELECT(.|\n)+FROM jobs WHERE id").WithArgs(id).WillReturnRows(row)

	req := httptest.NewRequest(http.MethodDelete, "/jobs/"+id.String(), nil)
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}
