package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/fitx/internal/models"
	"github.com/desertthunder/fitx/internal/shared"
)

// JobStore persists transfer jobs and their per-item outcomes.
//
// All status transitions are guarded by the current status in the WHERE
// clause, so a stale writer loses the race instead of clobbering state.
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a new JobStore with the given database connection
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `
	id, status, start_date, end_date, filters,
	total, succeeded, skipped, failed,
	error_message, cancel_requested, created_at, started_at, finished_at
`

// Create inserts a new pending job with a generated ID.
func (s *JobStore) Create(job *models.Job) error {
	if job.Range.Start.After(job.Range.End) {
		return fmt.Errorf("%w: start date after end date", shared.ErrValidation)
	}

	job.ID = shared.GenerateID()
	job.Status = models.StatusPending
	job.CreatedAt = time.Now().UTC()

	filters, err := marshalFilters(job.Filters)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (id, status, start_date, end_date, filters, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.Exec(query,
		job.ID,
		job.Status,
		job.Range.Start.Format(models.DateLayout),
		job.Range.End.Format(models.DateLayout),
		filters,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// Get retrieves a job by ID.
func (s *JobStore) Get(id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	return s.scanOne(s.db.QueryRow(query, id))
}

// List retrieves jobs newest-first, optionally filtered by status.
// A limit of 0 means no limit.
func (s *JobStore) List(status models.JobStatus, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}

	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return jobs, nil
}

// ClaimNextPending atomically moves the oldest pending job to running and
// returns it. It returns (nil, nil) when there is nothing to claim, and
// refuses to claim while another job is already running.
func (s *JobStore) ClaimNextPending() (*models.Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var running int
	err = tx.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`, models.StatusRunning).Scan(&running)
	if err != nil {
		return nil, fmt.Errorf("failed to check running jobs: %w", err)
	}
	if running > 0 {
		return nil, nil
	}

	var id string
	err = tx.QueryRow(`
		SELECT id FROM jobs
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, models.StatusPending).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select pending job: %w", err)
	}

	startedAt := time.Now().UTC()
	result, err := tx.Exec(`
		UPDATE jobs
		SET status = ?, started_at = ?
		WHERE id = ? AND status = ?
	`, models.StatusRunning, startedAt, id, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: job %s changed state during claim", shared.ErrInvalidTransition, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	return s.Get(id)
}

// SetTotal records the item count discovered from the source listing.
func (s *JobStore) SetTotal(id string, total int) error {
	result, err := s.db.Exec(`
		UPDATE jobs SET total = ? WHERE id = ? AND status = ?
	`, total, id, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to set total: %w", err)
	}
	return s.requireRunning(result, id)
}

// UpdateProgress increments the job's counters by the given delta. The job
// must still be running.
func (s *JobStore) UpdateProgress(id string, delta models.CountDelta) error {
	result, err := s.db.Exec(`
		UPDATE jobs
		SET succeeded = succeeded + ?, skipped = skipped + ?, failed = failed + ?
		WHERE id = ? AND status = ?
	`, delta.Succeeded, delta.Skipped, delta.Failed, id, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return s.requireRunning(result, id)
}

// Finalize moves a running job to a terminal status and stamps finished_at.
func (s *JobStore) Finalize(id string, status models.JobStatus, errorMessage string) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", shared.ErrInvalidTransition, status)
	}

	var message any = errorMessage
	if errorMessage == "" {
		message = nil
	}

	result, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ? AND status = ?
	`, status, message, time.Now().UTC(), id, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	return s.requireRunning(result, id)
}

// RequestCancel flags a job for cooperative cancellation. Requests against a
// job that already reached a terminal status are ignored. The status guard
// lives in the UPDATE itself so a job finalizing concurrently can never gain
// the flag after settling.
func (s *JobStore) RequestCancel(id string) error {
	result, err := s.db.Exec(`
		UPDATE jobs
		SET cancel_requested = 1
		WHERE id = ? AND status IN (?, ?)
	`, id, models.StatusPending, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check cancel result: %w", err)
	}
	if rows == 0 {
		// Terminal no-op or missing job; Get tells them apart.
		if _, err := s.Get(id); err != nil {
			return err
		}
	}
	return nil
}

// CancelRequested reports whether cancellation has been requested for a job.
func (s *JobStore) CancelRequested(id string) (bool, error) {
	var requested bool
	err := s.db.QueryRow(`SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&requested)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return requested, nil
}

// RecordItem appends a settled item outcome for a job.
func (s *JobStore) RecordItem(jobID string, seq int, outcome models.ItemOutcome) error {
	query := `
		INSERT INTO job_items (id, job_id, seq, source_id, activity_name, result, reason, destination_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		shared.GenerateID(),
		jobID,
		seq,
		outcome.SourceID,
		outcome.Name,
		outcome.Result,
		outcome.Reason,
		outcome.DestinationID,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record item: %w", err)
	}

	return nil
}

// Items retrieves a job's item outcomes in processing order.
func (s *JobStore) Items(jobID string) ([]models.ItemOutcome, error) {
	rows, err := s.db.Query(`
		SELECT source_id, activity_name, result, reason, destination_id
		FROM job_items
		WHERE job_id = ?
		ORDER BY seq ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []models.ItemOutcome
	for rows.Next() {
		var (
			item          models.ItemOutcome
			name          sql.NullString
			reason        sql.NullString
			destinationID sql.NullString
		)
		if err := rows.Scan(&item.SourceID, &name, &item.Result, &reason, &destinationID); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.Name = name.String
		item.Reason = reason.String
		item.DestinationID = destinationID.String
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

// SweepInterrupted fails any job left in running from a previous process.
// Counters are preserved as the partial progress actually made. Returns the
// number of jobs swept.
func (s *JobStore) SweepInterrupted() (int, error) {
	result, err := s.db.Exec(`
		UPDATE jobs
		SET status = ?, error_message = ?, finished_at = ?
		WHERE status = ?
	`, models.StatusFailed, "interrupted", time.Now().UTC(), models.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep interrupted jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return int(rows), nil
}

// requireRunning translates a zero-row update into ErrInvalidTransition,
// distinguishing a missing job from one that already left running.
func (s *JobStore) requireRunning(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	if _, err := s.Get(id); err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is not running", shared.ErrInvalidTransition, id)
}

// scanOne scans a single row into a [models.Job]
func (s *JobStore) scanOne(row *sql.Row) (*models.Job, error) {
	job, err := scanJob(row.Scan)
	if err == sql.ErrNoRows {
		return nil, shared.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}

// scanRow scans a row from [sql.Rows] into a [models.Job]
func (s *JobStore) scanRow(rows *sql.Rows) (*models.Job, error) {
	job, err := scanJob(rows.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}

func scanJob(scan func(...any) error) (*models.Job, error) {
	var (
		job          models.Job
		startDate    string
		endDate      string
		filters      sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		finishedAt   sql.NullTime
	)

	err := scan(
		&job.ID, &job.Status, &startDate, &endDate, &filters,
		&job.Counts.Total, &job.Counts.Succeeded, &job.Counts.Skipped, &job.Counts.Failed,
		&errorMessage, &job.CancelRequested, &job.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Range, err = models.ParseDateRange(startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("stored date range invalid: %w", err)
	}

	if filters.Valid && filters.String != "" {
		if err := json.Unmarshal([]byte(filters.String), &job.Filters); err != nil {
			return nil, fmt.Errorf("stored filters invalid: %w", err)
		}
	}

	job.Error = errorMessage.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}

	return &job, nil
}

// marshalFilters encodes a filter list as JSON, or NULL when empty.
func marshalFilters(filters []string) (any, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}
	return string(encoded), nil
}
