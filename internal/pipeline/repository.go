package pipeline

import (
	"context"
	"database/sql"
	"time"
)

// Repository handles database operations for pipeline run tracking. A nil
// repository is valid and turns tracking into a no-op, so the pipeline can
// run without a database.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new pipeline repository
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// CreatePipelineRun creates a new pipeline run record
func (r *Repository) CreatePipelineRun(ctx context.Context, run *PipelineRun) error {
	if r == nil {
		return nil
	}
	query := `
		INSERT INTO pipeline_runs (
			pipeline_name, date, status, total_files,
			processed_files, total_rows, items, corrections, warnings, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.db.QueryRowContext(
		ctx, query,
		run.PipelineName, run.Date, run.Status, run.TotalFiles,
		run.ProcessedFiles, run.TotalRows, run.Items, run.Corrections,
		run.Warnings, run.StartedAt,
	).Scan(&run.ID)

	return err
}

// UpdatePipelineRun updates an existing pipeline run
func (r *Repository) UpdatePipelineRun(ctx context.Context, run *PipelineRun) error {
	if r == nil {
		return nil
	}
	query := `
		UPDATE pipeline_runs
		SET status = $1, processed_files = $2, total_rows = $3,
		    items = $4, corrections = $5, warnings = $6,
		    completed_at = $7, error_message = $8
		WHERE id = $9
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.ProcessedFiles, run.TotalRows,
		run.Items, run.Corrections, run.Warnings,
		run.CompletedAt, run.ErrorMessage, run.ID,
	)

	return err
}

// GetPipelineRun retrieves a pipeline run by ID
func (r *Repository) GetPipelineRun(ctx context.Context, id int64) (*PipelineRun, error) {
	if r == nil {
		return nil, nil
	}
	query := `
		SELECT id, pipeline_name, date, status, total_files,
		       processed_files, total_rows, items, corrections, warnings,
		       started_at, completed_at, error_message
		FROM pipeline_runs
		WHERE id = $1
	`

	run := &PipelineRun{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.PipelineName, &run.Date, &run.Status,
		&run.TotalFiles, &run.ProcessedFiles, &run.TotalRows,
		&run.Items, &run.Corrections, &run.Warnings,
		&run.StartedAt, &run.CompletedAt, &run.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetPipelineRunByDate retrieves the run for a pipeline and snapshot date
func (r *Repository) GetPipelineRunByDate(ctx context.Context, name string, date time.Time) (*PipelineRun, error) {
	if r == nil {
		return nil, nil
	}
	query := `
		SELECT id, pipeline_name, date, status, total_files,
		       processed_files, total_rows, items, corrections, warnings,
		       started_at, completed_at, error_message
		FROM pipeline_runs
		WHERE pipeline_name = $1 AND date = $2
	`

	run := &PipelineRun{}
	err := r.db.QueryRowContext(ctx, query, name, date).Scan(
		&run.ID, &run.PipelineName, &run.Date, &run.Status,
		&run.TotalFiles, &run.ProcessedFiles, &run.TotalRows,
		&run.Items, &run.Corrections, &run.Warnings,
		&run.StartedAt, &run.CompletedAt, &run.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CreateFileJob creates a new file job record
func (r *Repository) CreateFileJob(ctx context.Context, job *FileJob) error {
	if r == nil {
		return nil
	}
	query := `
		INSERT INTO file_jobs (pipeline_run_id, file_path, status, rows, retry_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	return r.db.QueryRowContext(
		ctx, query,
		job.PipelineRunID, job.FilePath, job.Status, job.Rows, job.RetryCount,
	).Scan(&job.ID)
}

// UpdateFileJob updates an existing file job
func (r *Repository) UpdateFileJob(ctx context.Context, job *FileJob) error {
	if r == nil {
		return nil
	}
	query := `
		UPDATE file_jobs
		SET status = $1, rows = $2, error_message = $3, processed_at = $4, retry_count = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(
		ctx, query,
		job.Status, job.Rows, job.ErrorMessage, job.ProcessedAt, job.RetryCount, job.ID,
	)
	return err
}

// GetFileJobByPath retrieves the job tracking a file within a run, or nil
// when the file has not been seen for that run
func (r *Repository) GetFileJobByPath(ctx context.Context, runID int64, path string) (*FileJob, error) {
	if r == nil {
		return nil, nil
	}
	query := `
		SELECT id, pipeline_run_id, file_path, status, rows,
		       error_message, processed_at, retry_count
		FROM file_jobs
		WHERE pipeline_run_id = $1 AND file_path = $2
	`

	job := &FileJob{}
	err := r.db.QueryRowContext(ctx, query, runID, path).Scan(
		&job.ID, &job.PipelineRunID, &job.FilePath, &job.Status, &job.Rows,
		&job.ErrorMessage, &job.ProcessedAt, &job.RetryCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetFileJobsByRunID retrieves all file jobs for a pipeline run
func (r *Repository) GetFileJobsByRunID(ctx context.Context, runID int64) ([]*FileJob, error) {
	if r == nil {
		return nil, nil
	}
	query := `
		SELECT id, pipeline_run_id, file_path, status, rows,
		       error_message, processed_at, retry_count
		FROM file_jobs
		WHERE pipeline_run_id = $1
		ORDER BY file_path
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*FileJob
	for rows.Next() {
		job := &FileJob{}
		if err := rows.Scan(
			&job.ID, &job.PipelineRunID, &job.FilePath, &job.Status, &job.Rows,
			&job.ErrorMessage, &job.ProcessedAt, &job.RetryCount,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// GetFailedFileJobs lists failed jobs for a pipeline that still have
// retries left
func (r *Repository) GetFailedFileJobs(ctx context.Context, pipelineName string, maxRetries int) ([]*FileJob, error) {
	if r == nil {
		return nil, nil
	}
	query := `
		SELECT j.id, j.pipeline_run_id, j.file_path, j.status, j.rows,
		       j.error_message, j.processed_at, j.retry_count
		FROM file_jobs j
		JOIN pipeline_runs r ON r.id = j.pipeline_run_id
		WHERE r.pipeline_name = $1 AND j.status = $2 AND j.retry_count < $3
	`

	rows, err := r.db.QueryContext(ctx, query, pipelineName, FileStatusFailed, maxRetries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*FileJob
	for rows.Next() {
		job := &FileJob{}
		if err := rows.Scan(
			&job.ID, &job.PipelineRunID, &job.FilePath, &job.Status, &job.Rows,
			&job.ErrorMessage, &job.ProcessedAt, &job.RetryCount,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
