package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/portops/cargoflow/internal/engine"
)

// Orchestrator coordinates running a Pipeline over a set of local files
// grouped by snapshot date.
type Orchestrator struct {
	repo  RunStore
	cfg   PipelineConfig
	eng   *engine.Engine
	sinks []ResultSink
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(repo RunStore, cfg PipelineConfig, eng *engine.Engine, sinks ...ResultSink) *Orchestrator {
	return &Orchestrator{
		repo:  repo,
		cfg:   cfg,
		eng:   eng,
		sinks: sinks,
	}
}

// Run groups the provided files by snapshot date (using p.GetSnapshotDate)
// and runs a Worker batch for each date, oldest first.
func (o *Orchestrator) Run(ctx context.Context, p Pipeline, files []string) error {
	if len(files) == 0 {
		return nil
	}

	byDate := make(map[time.Time][]string)
	for _, f := range files {
		date, err := p.GetSnapshotDate(filepath.Base(f))
		if err != nil {
			return fmt.Errorf("failed to get snapshot date for %s: %w", f, err)
		}

		date = date.Truncate(24 * time.Hour)
		byDate[date] = append(byDate[date], f)
	}

	dates := make([]time.Time, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	worker := NewWorker(p, o.cfg, o.repo, o.eng, o.sinks...)

	for _, date := range dates {
		if _, err := worker.ProcessBatch(ctx, date, byDate[date]); err != nil {
			return fmt.Errorf("failed to process batch for %s: %w", date.Format("2006-01-02"), err)
		}
	}

	return nil
}
