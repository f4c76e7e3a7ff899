package pipeline

import (
	"context"
	"time"

	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/engine"
)

// Pipeline defines how one family of source files is turned into item rows.
type Pipeline interface {
	// Name returns the unique identifier for this pipeline
	Name() string

	// Load reads a single input file into normalized item rows
	Load(ctx context.Context, inputFile string) ([]domain.ItemRow, error)

	// GetSnapshotDate extracts the date from the filename
	GetSnapshotDate(filename string) (time.Time, error)

	// Validate checks if the input file is valid for this pipeline
	Validate(inputFile string) error
}

// RunStore persists pipeline run and file job tracking records.
// *Repository implements it against Postgres; a nil *Repository is a
// valid no-op store.
type RunStore interface {
	CreatePipelineRun(ctx context.Context, run *PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *PipelineRun) error
	GetPipelineRun(ctx context.Context, id int64) (*PipelineRun, error)
	GetPipelineRunByDate(ctx context.Context, name string, date time.Time) (*PipelineRun, error)
	CreateFileJob(ctx context.Context, job *FileJob) error
	UpdateFileJob(ctx context.Context, job *FileJob) error
	GetFileJobByPath(ctx context.Context, runID int64, path string) (*FileJob, error)
	GetFileJobsByRunID(ctx context.Context, runID int64) ([]*FileJob, error)
	GetFailedFileJobs(ctx context.Context, pipelineName string, maxRetries int) ([]*FileJob, error)
}

// ResultSink receives the engine output of a completed batch. Sinks are
// independent: CSV export, Postgres persistence, object storage upload and
// the summary cache all implement this.
type ResultSink interface {
	Persist(ctx context.Context, run *PipelineRun, result *engine.Result) error
}

// PipelineConfig holds configuration for a pipeline instance
type PipelineConfig struct {
	Name          string
	WorkerCount   int           // Number of concurrent file loaders
	OutputDir     string        // Directory for result CSVs
	RetryAttempts int           // Number of retries on failure
	RetryBackoff  time.Duration // Backoff duration between retries
}

// DefaultPipelineConfig returns sensible defaults
func DefaultPipelineConfig(name string) PipelineConfig {
	return PipelineConfig{
		Name:          name,
		WorkerCount:   4,
		OutputDir:     "data/output/" + name,
		RetryAttempts: 3,
		RetryBackoff:  30 * time.Second,
	}
}

// PipelineStatus represents the current state of a pipeline run
type PipelineStatus string

const (
	StatusPending    PipelineStatus = "pending"
	StatusProcessing PipelineStatus = "processing"
	StatusCompleted  PipelineStatus = "completed"
	StatusFailed     PipelineStatus = "failed"
)

// FileJobStatus represents the state of a single file loading job
type FileJobStatus string

const (
	FileStatusQueued     FileJobStatus = "queued"
	FileStatusProcessing FileJobStatus = "processing"
	FileStatusCompleted  FileJobStatus = "completed"
	FileStatusFailed     FileJobStatus = "failed"
)

// PipelineRun tracks a single execution of a pipeline for a specific date
type PipelineRun struct {
	ID             int64
	PipelineName   string
	Date           time.Time
	Status         PipelineStatus
	TotalFiles     int
	ProcessedFiles int
	TotalRows      int
	Items          int
	Corrections    int
	Warnings       int
	StartedAt      time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
}

// FileJob tracks the loading of a single file
type FileJob struct {
	ID            int64
	PipelineRunID int64
	FilePath      string
	Status        FileJobStatus
	Rows          int
	ErrorMessage  string
	ProcessedAt   *time.Time
	RetryCount    int
}
