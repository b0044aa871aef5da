package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"contactminer/internal/model"
)

func TestCreateJobInsertsPendingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(1, 1))

	s := New(db)
	job := model.Job{OrganizerID: uuid.New(), Name: "expo 2026", Type: model.JobTypeURL, Input: "https://example.com"}

	out, err := s.CreateJob(context.Background(), job)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if out.Status != model.StatusPending {
		t.Errorf("expected pending status, got %q", out.Status)
	}
	if out.ID == uuid.Nil {
		t.Errorf("expected a generated ID")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCompleteJobClearsFileData(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE jobs SET status").
		WithArgs(id, string(model.StatusCompleted), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := New(db)
	if err := s.CompleteJob(context.Background(), id, model.StatusCompleted, nil, map[string]any{"emails_found": 3}); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestNormalizeBinaryStripsHexPrefix(t *testing.T) {
	got := normalizeBinary([]byte(`\x68656c6c6f`))
	if string(got) != "hello" {
		t.Errorf("expected decoded 'hello', got %q", got)
	}
}

func TestNormalizeBinaryPassesThroughPlainBytes(t *testing.T) {
	got := normalizeBinary([]byte("raw bytes"))
	if string(got) != "raw bytes" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestListPendingJobsReturnsEmptyWhenNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	cols := []string{
		"id", "organizer_id", "name", "type", "input", "strategy", "site_profile", "config",
		"status", "progress", "total_pages", "processed_pages", "total_found",
		"total_emails_raw", "total_prospects_created", "stats", "error",
		"parent_job_id", "retry_job_id", "file_data", "created_at", "started_at", "completed_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.|\n)+ FROM jobs WHERE status IN").
		WithArgs(int32(5)).
		WillReturnRows(sqlmock.NewRows(cols))

	s := New(db)
	jobs, err := s.ListPendingJobs(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListPendingJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPatchJobUpdatesOnlyGivenFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	id := uuid.New()
	progress := 42
	mock.ExpectExec("UPDATE jobs SET updated_at = \\$1, progress = \\$2 WHERE id = \\$3").
		WithArgs(sqlmock.AnyArg(), progress, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := New(db)
	if err := s.PatchJob(context.Background(), id, JobPatch{Progress: &progress}); err != nil {
		t.Fatalf("PatchJob: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeleteJobRemovesResultsThenJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM mining_results WHERE job_id").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM jobs WHERE id").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := New(db)
	if err := s.DeleteJob(context.Background(), id); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCountJobStatsAggregatesByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	orgID := uuid.New()
	rows := sqlmock.NewRows([]string{"pending", "running", "completed", "failed", "total_emails"}).
		AddRow(int64(1), int64(2), int64(5), int64(1), int64(30))
	mock.ExpectQuery("SELECT(.|\n)+FROM jobs WHERE organizer_id").
		WithArgs(orgID).
		WillReturnRows(rows)

	s := New(db)
	stats, err := s.CountJobStats(context.Background(), orgID)
	if err != nil {
		t.Fatalf("CountJobStats: %v", err)
	}
	if stats.Completed != 5 || stats.TotalEmails != 30 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDeleteExpiredJobsByType(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM jobs WHERE type").
		WithArgs(string(model.JobTypeURL), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	s := New(db)
	n, err := s.DeleteExpiredJobs(context.Background(), model.JobTypeURL, time.Now())
	if err != nil {
		t.Fatalf("DeleteExpiredJobs: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 rows deleted, got %d", n)
	}
}
