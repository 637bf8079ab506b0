package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/expensesync/pkg/models"
)

// CreateJob inserts a new pending job
func (db *DB) CreateJob(ctx context.Context, job *models.SyncJob) error {
	if job.Status == "" {
		job.Status = models.JobPending
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_jobs (id, user_id, kind, category, query, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.UserID, job.Kind, job.Category, job.Query, job.Status, job.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob returns a job by ID
func (db *DB) GetJob(ctx context.Context, id string) (*models.SyncJob, error) {
	var job models.SyncJob
	err := db.GetContext(ctx, &job, `SELECT * FROM sync_jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListRecentJobs returns a user's latest jobs
func (db *DB) ListRecentJobs(ctx context.Context, userID int64, limit int) ([]*models.SyncJob, error) {
	var jobs []*models.SyncJob
	err := db.SelectContext(ctx, &jobs,
		`SELECT * FROM sync_jobs WHERE user_id = ? ORDER BY started_at DESC, id DESC LIMIT ?`, userID, pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// LastCompletedSync returns the most recently completed sync job for a category
func (db *DB) LastCompletedSync(ctx context.Context, userID int64, category string) (*models.SyncJob, error) {
	var job models.SyncJob
	err := db.GetContext(ctx, &job, `
		SELECT * FROM sync_jobs
		WHERE user_id = ? AND category = ? AND kind = ? AND status = ?
		ORDER BY completed_at DESC LIMIT 1
	`, userID, category, models.JobSync, models.JobCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed job: %w", err)
	}
	return &job, nil
}

// MarkJobProcessing moves a pending job to processing
func (db *DB) MarkJobProcessing(ctx context.Context, id string) error {
	return db.transition(ctx, `
		UPDATE sync_jobs SET status = ? WHERE id = ? AND status = ?
	`, models.JobProcessing, id, models.JobPending)
}

// SetJobTotal records how many emails a processing job will handle
func (db *DB) SetJobTotal(ctx context.Context, id string, total int) error {
	return db.transition(ctx, `
		UPDATE sync_jobs SET total_emails = ? WHERE id = ? AND status = ?
	`, total, id, models.JobProcessing)
}

// IncrementJobProgress adds counter deltas to a processing job. Processed
// emails never exceed the job total.
func (db *DB) IncrementJobProgress(ctx context.Context, id string, p models.JobProgress) error {
	return db.transition(ctx, `
		UPDATE sync_jobs SET
			processed_emails = MIN(total_emails, processed_emails + ?),
			new_emails = new_emails + ?,
			transactions = transactions + ?,
			statements = statements + ?
		WHERE id = ? AND status = ?
	`, p.Processed, p.New, p.Transactions, p.Statements, id, models.JobProcessing)
}

// CompleteJob marks a processing job completed
func (db *DB) CompleteJob(ctx context.Context, id string) error {
	return db.transition(ctx, `
		UPDATE sync_jobs SET status = ?, processed_emails = total_emails, completed_at = ?
		WHERE id = ? AND status = ?
	`, models.JobCompleted, time.Now().UTC(), id, models.JobProcessing)
}

// FailJob marks a non-terminal job failed
func (db *DB) FailJob(ctx context.Context, id string, message string) error {
	return db.transition(ctx, `
		UPDATE sync_jobs SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, models.JobFailed, message, time.Now().UTC(), id, models.JobPending, models.JobProcessing)
}

func (db *DB) transition(ctx context.Context, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}
