package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/portops/cargoflow/internal/cache"
	"github.com/portops/cargoflow/internal/domain"
	"github.com/portops/cargoflow/internal/engine"
	"github.com/portops/cargoflow/internal/pipeline"
)

// MovementService runs uploaded movement snapshots through the
// reconstruction pipeline and serves run status and summaries.
type MovementService struct {
	pipe    pipeline.Pipeline
	config  pipeline.PipelineConfig
	repo    *pipeline.Repository
	eng     *engine.Engine
	cache   cache.SummaryCache
	sinks   []pipeline.ResultSink
	nowFunc func() time.Time
}

func NewMovementService(
	pipe pipeline.Pipeline,
	config pipeline.PipelineConfig,
	repo *pipeline.Repository,
	eng *engine.Engine,
	summaryCache cache.SummaryCache,
	sinks ...pipeline.ResultSink,
) *MovementService {
	return &MovementService{
		pipe:    pipe,
		config:  config,
		repo:    repo,
		eng:     eng,
		cache:   summaryCache,
		sinks:   sinks,
		nowFunc: time.Now,
	}
}

// ProcessUploads runs a batch of uploaded files and returns the resulting
// reconciliation summary. Files sharing the batch are processed under one
// snapshot date, taken from the first filename that carries one.
func (s *MovementService) ProcessUploads(ctx context.Context, files []*domain.UploadedFile) (*domain.ReconciliationSummary, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to process")
	}

	date := s.snapshotDate(files)

	// Re-processing a date supersedes its summary, so drop the cached one
	// up front rather than serving stale numbers while the batch runs.
	if err := s.cache.Invalidate(ctx, date); err != nil {
		log.Warn().Err(err).Msg("failed to invalidate cached summary")
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}

	worker := pipeline.NewWorker(s.pipe, s.config, s.repo, s.eng, s.sinks...)
	result, err := worker.ProcessBatch(ctx, date, paths)
	if err != nil {
		return nil, err
	}

	summary := result.Summary(s.nowFunc())
	if err := s.cache.SetSummary(ctx, date, &summary); err != nil {
		log.Warn().Err(err).Msg("failed to cache reconciliation summary")
	}

	return &summary, nil
}

// GetSummary returns the cached reconciliation summary for a snapshot
// date, if one exists.
func (s *MovementService) GetSummary(ctx context.Context, date time.Time) (*domain.ReconciliationSummary, bool, error) {
	return s.cache.GetSummary(ctx, date)
}

// GetRunStatus returns the pipeline run record for a snapshot date. A nil
// run means no batch has been processed for that date.
func (s *MovementService) GetRunStatus(ctx context.Context, date time.Time) (*pipeline.PipelineRun, error) {
	return s.repo.GetPipelineRunByDate(ctx, s.pipe.Name(), date)
}

// snapshotDate takes the date from the first filename carrying one, else
// today. Uploads are ad hoc, so missing dates are not an error.
func (s *MovementService) snapshotDate(files []*domain.UploadedFile) time.Time {
	for _, f := range files {
		if date, err := s.pipe.GetSnapshotDate(f.Filename); err == nil {
			return date
		}
	}
	return s.nowFunc().Truncate(24 * time.Hour)
}
