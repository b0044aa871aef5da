// Package store is the persistence adapter: a thin transactional
// wrapper over *sql.DB (the pgx/v5 stdlib driver) issuing hand-written
// prepared statements for jobs, raw mining results, and canonical
// persons/affiliations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"contactminer/internal/aggregate"
	"contactminer/internal/model"
)

// nullJSON wraps marshalled JSON for a nullable jsonb column: a nil or
// empty value is written as SQL NULL rather than the string "null".
func nullJSON(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return pqtype.NullRawMessage{}, nil
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

// Store wraps a shared *sql.DB connection pool; pool sizing is a
// connection-string/config concern, not this type's.
type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Tx exposes a Begin/Exec/Query/Commit/Rollback/Release contract over
// a single *sql.Tx.
type Tx struct {
	tx *sql.Tx
}

// Begin opens a transaction for a caller-managed batch of statements.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// Release is a no-op on *sql.Tx (the pool reclaims the underlying
// connection on Commit/Rollback); it exists so callers can defer a
// single Release call uniformly regardless of commit/rollback outcome.
func (t *Tx) Release() {}

// normalizeBinary strips a "\x" hex-prefix the pgx/v5 stdlib driver can
// surface for bytea columns scanned into []byte.
func normalizeBinary(b []byte) []byte {
	if len(b) >= 2 && b[0] == '\\' && b[1] == 'x' {
		decoded := make([]byte, (len(b)-2)/2)
		for i := range decoded {
			hi := fromHexNibble(b[2+i*2])
			lo := fromHexNibble(b[3+i*2])
			decoded[i] = hi<<4 | lo
		}
		return decoded
	}
	return b
}

func fromHexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// CreateJob inserts a new job row in `pending` status.
func (s *Store) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	job.Status = model.StatusPending
	job.CreatedAt, job.UpdatedAt = now, now

	statsJSON, err := nullJSON(job.Stats)
	if err != nil {
		return model.Job{}, err
	}
	cfgJSON, err := json.Marshal(job.Config)
	if err != nil {
		return model.Job{}, err
	}

	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO jobs (
			id, organizer_id, name, type, input, strategy, site_profile, config,
			status, progress, total_pages, processed_pages, total_found,
			total_emails_raw, total_prospects_created, stats, error,
			parent_job_id, retry_job_id, file_data, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		job.ID, job.OrganizerID, job.Name, string(job.Type), job.Input, string(job.Strategy),
		job.SiteProfile, cfgJSON, string(job.Status), job.Progress, job.TotalPages,
		job.ProcessedPages, job.TotalFound, job.TotalEmailsRaw, job.TotalProspectsCreated,
		statsJSON, job.Error, job.ParentJobID, job.RetryJobID, job.FileData, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return model.Job{}, fmt.Errorf("store: create job: %w", err)
	}
	return job, nil
}

// GetJob fetches one job row by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (model.Job, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, organizer_id, name, type, input, strategy, site_profile, config,
			status, progress, total_pages, processed_pages, total_found,
			total_emails_raw, total_prospects_created, stats, error,
			parent_job_id, retry_job_id, file_data, created_at, started_at, completed_at, updated_at
		FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (model.Job, error) {
	var j model.Job
	var jobType, strategy, status string
	var cfgJSON, statsJSON []byte
	var fileData []byte

	err := row.Scan(
		&j.ID, &j.OrganizerID, &j.Name, &jobType, &j.Input, &strategy, &j.SiteProfile, &cfgJSON,
		&status, &j.Progress, &j.TotalPages, &j.ProcessedPages, &j.TotalFound,
		&j.TotalEmailsRaw, &j.TotalProspectsCreated, &statsJSON, &j.Error,
		&j.ParentJobID, &j.RetryJobID, &fileData, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.UpdatedAt,
	)
	if err != nil {
		return model.Job{}, err
	}

	j.Type = model.JobType(jobType)
	j.Strategy = model.Strategy(strategy)
	j.Status = model.Status(status)
	j.FileData = normalizeBinary(fileData)

	if len(cfgJSON) > 0 {
		_ = json.Unmarshal(cfgJSON, &j.Config)
	}
	if len(statsJSON) > 0 {
		_ = json.Unmarshal(statsJSON, &j.Stats)
	}
	return j, nil
}

// JobListFilter describes the optional filters for listing jobs.
type JobListFilter struct {
	OrganizerID *uuid.UUID
	Type        model.JobType
	Status      model.Status
	Limit       int
	Offset      int
}

// ListJobs returns jobs matching the filter, newest first.
func (s *Store) ListJobs(ctx context.Context, filter JobListFilter) ([]model.Job, error) {
	query := `SELECT id, organizer_id, name, type, input, strategy, site_profile, config,
		status, progress, total_pages, processed_pages, total_found,
		total_emails_raw, total_prospects_created, stats, error,
		parent_job_id, retry_job_id, file_data, created_at, started_at, completed_at, updated_at
		FROM jobs`

	var conditions []string
	var args []any
	argPos := 1

	if filter.OrganizerID != nil {
		conditions = append(conditions, fmt.Sprintf("organizer_id = $%d", argPos))
		args = append(args, *filter.OrganizerID)
		argPos++
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argPos))
		args = append(args, string(filter.Type))
		argPos++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(filter.Status))
		argPos++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argPos)
	args = append(args, limit)
	argPos++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, filter.Offset)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkRunning transitions a job to running and sets started_at.
func (s *Store) MarkRunning(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = $2, started_at = $3, updated_at = $3 WHERE id = $1`,
		id, string(model.StatusRunning), time.Now().UTC())
	return err
}

// CompleteJob sets a terminal status and always clears file_data
// regardless of whether the job succeeded.
func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID, status model.Status, errMsg *string, stats map[string]any) error {
	statsJSON, err := nullJSON(stats)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = s.DB.ExecContext(ctx, `
		UPDATE jobs SET status = $2, error = $3, stats = $4, file_data = NULL,
			completed_at = $5, updated_at = $5 WHERE id = $1`,
		id, string(status), errMsg, statsJSON, now)
	return err
}

// UpdateJobProgress updates page/counter progress mid-run.
func (s *Store) UpdateJobProgress(ctx context.Context, id uuid.UUID, progress, totalPages, processedPages, totalFound, totalEmailsRaw int) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET progress = $2, total_pages = $3, processed_pages = $4,
			total_found = $5, total_emails_raw = $6, updated_at = $7 WHERE id = $1`,
		id, progress, totalPages, processedPages, totalFound, totalEmailsRaw, time.Now().UTC())
	return err
}

// InsertMiningResults appends the normalized, merged cards produced by
// one job's mining run. A re-merge within the same job is an UPDATE
// keyed by (job_id, lower(primary email)).
func (s *Store) InsertMiningResults(ctx context.Context, jobID, organizerID uuid.UUID, sourceURL string, cards []model.Card) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Release()

	for _, c := range cards {
		rawJSON, err := nullJSON(c.Raw)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		emailsJSON, err := json.Marshal(c.Emails)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		email := strings.ToLower(c.PrimaryEmail())
		_, err = tx.Exec(ctx, `
			INSERT INTO mining_results (
				id, job_id, organizer_id, source_url, company_name, contact_name, job_title,
				phone, country, city, address, website, emails, confidence_score, raw, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (job_id, lower_email) WHERE lower_email <> '' DO UPDATE SET
				company_name = CASE WHEN mining_results.company_name = '' THEN EXCLUDED.company_name ELSE mining_results.company_name END,
				contact_name = CASE WHEN mining_results.contact_name = '' THEN EXCLUDED.contact_name ELSE mining_results.contact_name END,
				job_title    = CASE WHEN mining_results.job_title = '' THEN EXCLUDED.job_title ELSE mining_results.job_title END,
				phone        = CASE WHEN mining_results.phone = '' THEN EXCLUDED.phone ELSE mining_results.phone END,
				country      = CASE WHEN mining_results.country = '' THEN EXCLUDED.country ELSE mining_results.country END,
				city         = CASE WHEN mining_results.city = '' THEN EXCLUDED.city ELSE mining_results.city END,
				address      = CASE WHEN mining_results.address = '' THEN EXCLUDED.address ELSE mining_results.address END,
				website      = CASE WHEN mining_results.website = '' THEN EXCLUDED.website ELSE mining_results.website END,
				confidence_score = GREATEST(mining_results.confidence_score, EXCLUDED.confidence_score)`,
			uuid.New(), jobID, organizerID, sourceURL, c.CompanyName, c.ContactName, c.JobTitle,
			c.Phone, c.Country, c.City, c.Address, c.Website, emailsJSON, c.Confidence, rawJSON, time.Now().UTC(),
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: insert mining result for %q: %w", email, err)
		}
	}

	return tx.Commit()
}

// UpsertPersonsAndAffiliations executes one aggregate.Plan batch
// (<= aggregate.MaxBatchSize rows) in a single transaction: on any
// error the whole batch rolls back and the caller's error counter is
// expected to increment for it.
func (s *Store) UpsertPersonsAndAffiliations(ctx context.Context, plans []aggregate.Plan) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Release()

	for _, p := range plans {
		var personID uuid.UUID
		row := tx.tx.QueryRowContext(ctx, `
			INSERT INTO persons (id, organizer_id, first_name, last_name, email, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$6)
			ON CONFLICT (organizer_id, lower_email) DO UPDATE SET
				first_name = CASE WHEN persons.first_name = '' THEN EXCLUDED.first_name ELSE persons.first_name END,
				last_name  = CASE WHEN persons.last_name  = '' THEN EXCLUDED.last_name  ELSE persons.last_name  END,
				updated_at = EXCLUDED.updated_at
			RETURNING id`,
			uuid.New(), p.Person.OrganizerID, p.Person.FirstName, p.Person.LastName, p.Person.Email, time.Now().UTC(),
		)
		if err := row.Scan(&personID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: upsert person %q: %w", p.Person.Email, err)
		}

		rawJSON, err := nullJSON(p.Affiliation.Raw)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		if p.Affiliation.HasCompany {
			_, err = tx.Exec(ctx, `
				INSERT INTO affiliations (
					id, organizer_id, person_id, company_name, position, country_code, city,
					website, phone, source_type, source_ref, mining_job_id, confidence, raw, created_at, updated_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)
				ON CONFLICT (organizer_id, person_id, lower_company_name) WHERE lower_company_name <> '' DO UPDATE SET
					position     = CASE WHEN affiliations.position = '' THEN EXCLUDED.position ELSE affiliations.position END,
					country_code = CASE WHEN affiliations.country_code = '' THEN EXCLUDED.country_code ELSE affiliations.country_code END,
					city         = CASE WHEN affiliations.city = '' THEN EXCLUDED.city ELSE affiliations.city END,
					website      = CASE WHEN affiliations.website = '' THEN EXCLUDED.website ELSE affiliations.website END,
					phone        = CASE WHEN affiliations.phone = '' THEN EXCLUDED.phone ELSE affiliations.phone END,
					confidence   = GREATEST(affiliations.confidence, EXCLUDED.confidence),
					updated_at   = EXCLUDED.updated_at`,
				uuid.New(), p.Affiliation.OrganizerID, personID, p.Affiliation.CompanyName, p.Affiliation.Position,
				p.Affiliation.CountryCode, p.Affiliation.City, p.Affiliation.Website, p.Affiliation.Phone,
				string(p.Affiliation.SourceType), p.Affiliation.SourceRef, p.Affiliation.MiningJobID,
				p.Affiliation.Confidence, rawJSON, time.Now().UTC(),
			)
		} else {
			// Company absent: plain insert, no dedup.
			_, err = tx.Exec(ctx, `
				INSERT INTO affiliations (
					id, organizer_id, person_id, company_name, position, country_code, city,
					website, phone, source_type, source_ref, mining_job_id, confidence, raw, created_at, updated_at
				) VALUES ($1,$2,$3,'',$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)`,
				uuid.New(), p.Affiliation.OrganizerID, personID, p.Affiliation.Position,
				p.Affiliation.CountryCode, p.Affiliation.City, p.Affiliation.Website, p.Affiliation.Phone,
				string(p.Affiliation.SourceType), p.Affiliation.SourceRef, p.Affiliation.MiningJobID,
				p.Affiliation.Confidence, rawJSON, time.Now().UTC(),
			)
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: upsert affiliation for person %q: %w", p.Person.Email, err)
		}
	}

	return tx.Commit()
}

// DeleteExpiredJobs removes jobs of the given type older than cutoff
// (retention cleanup driven by the job_ttl config keys).
func (s *Store) DeleteExpiredJobs(ctx context.Context, jobType model.JobType, cutoff time.Time) (int64, error) {
	var res sql.Result
	var err error
	if jobType == "" {
		res, err = s.DB.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < $1`, cutoff)
	} else {
		res, err = s.DB.ExecContext(ctx, `DELETE FROM jobs WHERE type = $1 AND created_at < $2`, string(jobType), cutoff)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListPendingJobs fetches up to limit jobs in `pending` status, oldest
// first, for the worker Runner to claim. Multiple workers poll the
// same query and rely on the eventual status UPDATE to avoid
// double-dispatch in the common case.
func (s *Store) ListPendingJobs(ctx context.Context, limit int32) ([]model.Job, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, organizer_id, name, type, input, strategy, site_profile, config,
			status, progress, total_pages, processed_pages, total_found,
			total_emails_raw, total_prospects_created, stats, error,
			parent_job_id, retry_job_id, file_data, created_at, started_at, completed_at, updated_at
		FROM jobs WHERE status IN ('pending', 'queued') ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// JobPatch carries the subset of job fields the PATCH /jobs/:id
// endpoint is allowed to mutate. A nil field is left unchanged.
type JobPatch struct {
	Status         *model.Status
	Progress       *int
	ProcessedPages *int
	TotalPages     *int
}

// PatchJob applies a partial update to a job row.
func (s *Store) PatchJob(ctx context.Context, id uuid.UUID, patch JobPatch) error {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	pos := 2

	if patch.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", pos))
		args = append(args, string(*patch.Status))
		pos++
	}
	if patch.Progress != nil {
		sets = append(sets, fmt.Sprintf("progress = $%d", pos))
		args = append(args, *patch.Progress)
		pos++
	}
	if patch.ProcessedPages != nil {
		sets = append(sets, fmt.Sprintf("processed_pages = $%d", pos))
		args = append(args, *patch.ProcessedPages)
		pos++
	}
	if patch.TotalPages != nil {
		sets = append(sets, fmt.Sprintf("total_pages = $%d", pos))
		args = append(args, *patch.TotalPages)
		pos++
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = $%d", strings.Join(sets, ", "), pos)
	_, err := s.DB.ExecContext(ctx, query, args...)
	return err
}

// SetRetryJobID records the child job created by a retry request on
// the original job's row.
func (s *Store) SetRetryJobID(ctx context.Context, originalID, retryID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE jobs SET retry_job_id = $2, updated_at = $3 WHERE id = $1`,
		originalID, retryID, time.Now().UTC())
	return err
}

// DeleteJob removes a job and its mining_results. Deleting a running
// job is rejected by the caller before this is reached.
func (s *Store) DeleteJob(ctx context.Context, id uuid.UUID) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Release()

	if _, err := tx.Exec(ctx, `DELETE FROM mining_results WHERE job_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// JobStats is the GET /jobs aggregate summary.
type JobStats struct {
	Pending     int64
	Running     int64
	Completed   int64
	Failed      int64
	TotalEmails int64
}

// CountJobStats computes the aggregate job stats for an organizer's
// job list: pending, running, completed, failed, total emails.
func (s *Store) CountJobStats(ctx context.Context, organizerID uuid.UUID) (JobStats, error) {
	var stats JobStats
	row := s.DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('pending', 'queued')),
			COUNT(*) FILTER (WHERE status = 'running'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status IN ('failed', 'blocked')),
			COALESCE(SUM(total_emails_raw), 0)
		FROM jobs WHERE organizer_id = $1`, organizerID)
	err := row.Scan(&stats.Pending, &stats.Running, &stats.Completed, &stats.Failed, &stats.TotalEmails)
	return stats, err
}

// CreateOrganizer inserts a new organizer row.
func (s *Store) CreateOrganizer(ctx context.Context, org model.Organizer) (model.Organizer, error) {
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	org.CreatedAt = time.Now().UTC()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO organizers (id, name, crm_provider, crm_token, created_at) VALUES ($1,$2,$3,$4,$5)`,
		org.ID, org.Name, org.CRMProvider, org.CRMToken, org.CreatedAt)
	if err != nil {
		return model.Organizer{}, err
	}
	return org, nil
}
