package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/engine"
)

// Worker processes a batch of movement files for a single snapshot date. It
// loads files concurrently, runs the reconstruction engine on the merged
// rows and hands the result to each configured sink.
type Worker struct {
	pipeline Pipeline
	config   PipelineConfig
	repo     RunStore
	eng      *engine.Engine
	sinks    []ResultSink

	mu      sync.Mutex
	rowsFor map[string][]domain.ItemRow
}

// NewWorker creates a new pipeline worker. repo may be nil when run
// tracking is disabled.
func NewWorker(pipeline Pipeline, config PipelineConfig, repo RunStore, eng *engine.Engine, sinks ...ResultSink) *Worker {
	if repo == nil {
		repo = (*Repository)(nil)
	}
	return &Worker{
		pipeline: pipeline,
		config:   config,
		repo:     repo,
		eng:      eng,
		sinks:    sinks,
	}
}

// ProcessBatch processes a batch of files for a specific date.
func (w *Worker) ProcessBatch(ctx context.Context, date time.Time, files []string) (*engine.Result, error) {
	log.Info().
		Str("pipeline", w.pipeline.Name()).
		Str("date", date.Format("2006-01-02")).
		Int("files", len(files)).
		Msg("starting batch processing")

	// Files are merged in name order so the row sequence, and therefore
	// the output, does not depend on load completion order.
	files = append([]string(nil), files...)
	sort.Strings(files)

	run, err := w.getOrCreatePipelineRun(ctx, date, len(files))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline run: %w", err)
	}

	fileJobs := make([]*FileJob, len(files))
	for i, file := range files {
		job, err := w.getOrCreateFileJob(ctx, run.ID, file)
		if err != nil {
			return nil, fmt.Errorf("failed to create file job: %w", err)
		}
		fileJobs[i] = job
	}

	run.Status = StatusProcessing
	if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to update pipeline run: %w", err)
	}

	w.mu.Lock()
	w.rowsFor = make(map[string][]domain.ItemRow, len(files))
	w.mu.Unlock()

	if err := w.loadFilesParallel(ctx, run, fileJobs); err != nil {
		w.failRun(ctx, run, err)
		return nil, err
	}

	rows := w.mergedRows(files)
	run.TotalRows = len(rows)

	result, err := w.eng.Run(ctx, rows)
	if err != nil {
		w.failRun(ctx, run, fmt.Errorf("engine run failed: %w", err))
		return nil, fmt.Errorf("engine run failed: %w", err)
	}

	run.Items = len(result.Items)
	run.Corrections = len(result.Corrections)
	run.Warnings = len(result.Warnings)

	for _, sink := range w.sinks {
		if err := sink.Persist(ctx, run, result); err != nil {
			w.failRun(ctx, run, fmt.Errorf("sink failed: %w", err))
			return nil, fmt.Errorf("sink failed: %w", err)
		}
	}

	run.Status = StatusCompleted
	now := time.Now()
	run.CompletedAt = &now
	if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to complete pipeline run: %w", err)
	}

	log.Info().
		Str("pipeline", w.pipeline.Name()).
		Int("files", run.ProcessedFiles).
		Int("rows", run.TotalRows).
		Int("items", run.Items).
		Int("corrections", run.Corrections).
		Int("warnings", run.Warnings).
		Msg("batch processing completed")

	return result, nil
}

// loadFilesParallel loads files using a worker pool
func (w *Worker) loadFilesParallel(ctx context.Context, run *PipelineRun, jobs []*FileJob) error {
	workerCount := w.config.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}

	jobChan := make(chan *FileJob, len(jobs))
	errChan := make(chan error, workerCount)
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				if err := w.loadFile(ctx, run, job); err != nil {
					log.Error().
						Err(err).
						Str("pipeline", w.pipeline.Name()).
						Int("worker", workerID).
						Str("file", job.FilePath).
						Msg("failed to load file")
					select {
					case errChan <- err:
					default:
					}
				}
			}
		}(i)
	}

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			close(jobChan)
			return ctx.Err()
		case jobChan <- job:
		}
	}
	close(jobChan)

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return err
	}

	return nil
}

// loadFile loads a single file into the batch row buffer
func (w *Worker) loadFile(ctx context.Context, run *PipelineRun, job *FileJob) error {
	startTime := time.Now()

	job.Status = FileStatusProcessing
	if err := w.repo.UpdateFileJob(ctx, job); err != nil {
		return err
	}

	if err := w.pipeline.Validate(job.FilePath); err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("validation failed: %w", err))
	}

	rows, err := w.pipeline.Load(ctx, job.FilePath)
	if err != nil {
		return w.markJobFailed(ctx, job, fmt.Errorf("load failed: %w", err))
	}

	w.mu.Lock()
	w.rowsFor[job.FilePath] = rows
	run.ProcessedFiles++
	w.mu.Unlock()

	job.Status = FileStatusCompleted
	job.Rows = len(rows)
	now := time.Now()
	job.ProcessedAt = &now
	if err := w.repo.UpdateFileJob(ctx, job); err != nil {
		return err
	}

	log.Debug().
		Str("pipeline", w.pipeline.Name()).
		Str("file", job.FilePath).
		Int("rows", len(rows)).
		Dur("duration", time.Since(startTime)).
		Msg("file loaded")

	return nil
}

// mergedRows flattens per-file buffers in file name order.
func (w *Worker) mergedRows(files []string) []domain.ItemRow {
	w.mu.Lock()
	defer w.mu.Unlock()

	var rows []domain.ItemRow
	for _, file := range files {
		rows = append(rows, w.rowsFor[file]...)
	}
	return rows
}

// markJobFailed marks a job as failed and handles retry logic
func (w *Worker) markJobFailed(ctx context.Context, job *FileJob, err error) error {
	job.Status = FileStatusFailed
	job.ErrorMessage = err.Error()
	job.RetryCount++

	if uerr := w.repo.UpdateFileJob(ctx, job); uerr != nil {
		log.Error().Err(uerr).Str("pipeline", w.pipeline.Name()).Msg("failed to update job status")
	}

	if job.RetryCount < w.config.RetryAttempts {
		log.Warn().
			Str("pipeline", w.pipeline.Name()).
			Str("file", job.FilePath).
			Int("attempt", job.RetryCount).
			Int("max", w.config.RetryAttempts).
			Msg("job will be retried")
	}

	return err
}

func (w *Worker) failRun(ctx context.Context, run *PipelineRun, err error) {
	run.Status = StatusFailed
	run.ErrorMessage = err.Error()
	now := time.Now()
	run.CompletedAt = &now
	if uerr := w.repo.UpdatePipelineRun(ctx, run); uerr != nil {
		log.Error().Err(uerr).Str("pipeline", w.pipeline.Name()).Msg("failed to record run failure")
	}
}

// getOrCreatePipelineRun gets or creates a pipeline run for the date
func (w *Worker) getOrCreatePipelineRun(ctx context.Context, date time.Time, totalFiles int) (*PipelineRun, error) {
	run, err := w.repo.GetPipelineRunByDate(ctx, w.pipeline.Name(), date)
	if err != nil {
		return nil, err
	}

	if run != nil {
		// Reusing a run restarts its batch, so the previous attempt's
		// progress and failure state are cleared.
		run.TotalFiles = totalFiles
		run.ProcessedFiles = 0
		run.TotalRows = 0
		run.ErrorMessage = ""
		run.CompletedAt = nil
		if err := w.repo.UpdatePipelineRun(ctx, run); err != nil {
			return nil, err
		}
		return run, nil
	}

	run = &PipelineRun{
		PipelineName: w.pipeline.Name(),
		Date:         date,
		Status:       StatusPending,
		TotalFiles:   totalFiles,
		StartedAt:    time.Now(),
	}

	if err := w.repo.CreatePipelineRun(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}

// getOrCreateFileJob reuses the existing job for a (run, file) pair so a
// re-run keeps the retry count instead of starting a duplicate record.
func (w *Worker) getOrCreateFileJob(ctx context.Context, runID int64, file string) (*FileJob, error) {
	job, err := w.repo.GetFileJobByPath(ctx, runID, file)
	if err != nil {
		return nil, err
	}

	if job != nil {
		job.Status = FileStatusQueued
		job.ErrorMessage = ""
		if err := w.repo.UpdateFileJob(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}

	job = &FileJob{
		PipelineRunID: runID,
		FilePath:      file,
		Status:        FileStatusQueued,
	}
	if err := w.repo.CreateFileJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// RetryFailed re-runs every batch of this pipeline that has failed file
// jobs with retries left. The whole batch is re-processed, not just the
// failed files, because the engine output is a function of the complete
// row set.
func (w *Worker) RetryFailed(ctx context.Context) error {
	jobs, err := w.repo.GetFailedFileJobs(ctx, w.pipeline.Name(), w.config.RetryAttempts)
	if err != nil {
		return fmt.Errorf("failed to get failed jobs: %w", err)
	}

	if len(jobs) == 0 {
		log.Info().Str("pipeline", w.pipeline.Name()).Msg("no failed jobs to retry")
		return nil
	}

	log.Info().Str("pipeline", w.pipeline.Name()).Int("jobs", len(jobs)).Msg("retrying failed jobs")

	jobsByRun := make(map[int64][]*FileJob)
	for _, job := range jobs {
		jobsByRun[job.PipelineRunID] = append(jobsByRun[job.PipelineRunID], job)
	}

	for runID := range jobsByRun {
		run, err := w.repo.GetPipelineRun(ctx, runID)
		if err != nil || run == nil {
			log.Error().Err(err).Int64("run", runID).Msg("failed to load run for retry")
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.config.RetryBackoff):
		}

		all, err := w.repo.GetFileJobsByRunID(ctx, runID)
		if err != nil {
			log.Error().Err(err).Int64("run", runID).Msg("failed to list run files for retry")
			continue
		}

		files := make([]string, 0, len(all))
		for _, j := range all {
			files = append(files, j.FilePath)
		}

		if _, err := w.ProcessBatch(ctx, run.Date, files); err != nil {
			log.Error().Err(err).Int64("run", runID).Msg("retry failed")
			continue
		}
	}

	return nil
}
