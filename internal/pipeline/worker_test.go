package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/portops/cargoflow/internal/config"
	"github.com/portops/cargoflow/internal/engine"
	"github.com/portops/cargoflow/internal/taxonomy"
)

type captureSink struct {
	run    PipelineRun
	result *engine.Result
	calls  int
	err    error
}

func (s *captureSink) Persist(ctx context.Context, run *PipelineRun, result *engine.Result) error {
	if s.err != nil {
		return s.err
	}
	s.run = *run
	s.result = result
	s.calls++
	return nil
}

// memStore is an in-memory RunStore mirroring the repository's semantics:
// records are stored and returned by value so callers never share state
// through aliased pointers.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	runs   map[int64]PipelineRun
	jobs   map[int64]FileJob
}

func newMemStore() *memStore {
	return &memStore{
		runs: make(map[int64]PipelineRun),
		jobs: make(map[int64]FileJob),
	}
}

func (m *memStore) CreatePipelineRun(ctx context.Context, run *PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	run.ID = m.nextID
	m.runs[run.ID] = *run
	return nil
}

func (m *memStore) UpdatePipelineRun(ctx context.Context, run *PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memStore) GetPipelineRun(ctx context.Context, id int64) (*PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *memStore) GetPipelineRunByDate(ctx context.Context, name string, date time.Time) (*PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, run := range m.runs {
		if run.PipelineName == name && run.Date.Equal(date) {
			r := run
			return &r, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateFileJob(ctx context.Context, job *FileJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	job.ID = m.nextID
	m.jobs[job.ID] = *job
	return nil
}

func (m *memStore) UpdateFileJob(ctx context.Context, job *FileJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memStore) GetFileJobByPath(ctx context.Context, runID int64, path string) (*FileJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.PipelineRunID == runID && job.FilePath == path {
			j := job
			return &j, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetFileJobsByRunID(ctx context.Context, runID int64) ([]*FileJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*FileJob
	for _, job := range m.jobs {
		if job.PipelineRunID == runID {
			j := job
			jobs = append(jobs, &j)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].FilePath < jobs[k].FilePath })
	return jobs, nil
}

func (m *memStore) GetFailedFileJobs(ctx context.Context, pipelineName string, maxRetries int) ([]*FileJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var jobs []*FileJob
	for _, job := range m.jobs {
		run, ok := m.runs[job.PipelineRunID]
		if !ok || run.PipelineName != pipelineName {
			continue
		}
		if job.Status == FileStatusFailed && job.RetryCount < maxRetries {
			j := job
			jobs = append(jobs, &j)
		}
	}
	return jobs, nil
}

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	reg, err := taxonomy.New(config.TaxonomyConfig{
		Warehouses: []string{"DSV Indoor", "DSV Outdoor", "MOSB"},
		Sites:      []string{"AGI", "DAS"},
		Offshore:   "MOSB",
	})
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	return engine.New(reg, config.EngineConfig{Workers: 2, AutoCloseResidual: true})
}

func TestWorkerProcessBatch(t *testing.T) {
	dir := t.TempDir()
	writeTestCSV(t, dir, "20240110_a.csv", `Item No,Pkg,DSV Indoor,AGI
A-1,2,2024-01-10,2024-02-05
`)
	writeTestCSV(t, dir, "20240110_b.csv", `Item No,Pkg,MOSB
B-1,1,2024-01-15
`)

	sink := &captureSink{}
	worker := NewWorker(NewMovementPipeline(MovementConfig{}), DefaultPipelineConfig("cargo_movement"), nil, testEngine(t), sink)

	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	files := []string{
		filepath.Join(dir, "20240110_b.csv"),
		filepath.Join(dir, "20240110_a.csv"),
	}

	result, err := worker.ProcessBatch(context.Background(), date, files)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	// Name-sorted merge puts file a before file b regardless of argument order.
	if result.Items[0].Item.ID != "A-1" {
		t.Errorf("expected A-1 first, got %s", result.Items[0].Item.ID)
	}

	if sink.calls != 1 {
		t.Fatalf("expected sink called once, got %d", sink.calls)
	}
	if sink.run.Status != StatusProcessing {
		t.Errorf("sink should see the run before completion, got status %s", sink.run.Status)
	}
	if sink.run.Items != 2 || sink.run.TotalRows != 2 {
		t.Errorf("unexpected run stats: %+v", sink.run)
	}
}

func TestWorkerProcessBatchSinkFailure(t *testing.T) {
	dir := t.TempDir()
	writeTestCSV(t, dir, "20240110_a.csv", `Item No,DSV Indoor
A-1,2024-01-10
`)

	sinkErr := errors.New("sink down")
	worker := NewWorker(NewMovementPipeline(MovementConfig{}), DefaultPipelineConfig("cargo_movement"), nil, testEngine(t), &captureSink{err: sinkErr})

	_, err := worker.ProcessBatch(context.Background(), time.Now(), []string{filepath.Join(dir, "20240110_a.csv")})
	if err == nil {
		t.Fatal("expected error from failing sink")
	}
	if !errors.Is(err, sinkErr) {
		t.Errorf("expected wrapped sink error, got %v", err)
	}
}

func TestWorkerProcessBatchBadFile(t *testing.T) {
	dir := t.TempDir()
	writeTestCSV(t, dir, "20240110_a.csv", `Vendor,DSV Indoor
Hitachi,2024-01-10
`)

	sink := &captureSink{}
	worker := NewWorker(NewMovementPipeline(MovementConfig{}), DefaultPipelineConfig("cargo_movement"), nil, testEngine(t), sink)

	_, err := worker.ProcessBatch(context.Background(), time.Now(), []string{filepath.Join(dir, "20240110_a.csv")})
	if err == nil {
		t.Fatal("expected error for file without item identifier column")
	}
	if sink.calls != 0 {
		t.Error("sink must not run for a failed batch")
	}
}

func TestOrchestratorGroupsByDate(t *testing.T) {
	dir := t.TempDir()
	writeTestCSV(t, dir, "20240110_a.csv", `Item No,DSV Indoor
A-1,2024-01-10
`)
	writeTestCSV(t, dir, "20240215_b.csv", `Item No,DSV Indoor
B-1,2024-02-10
`)

	outDir := filepath.Join(dir, "out")
	orchestrator := NewOrchestrator(nil, DefaultPipelineConfig("cargo_movement"), testEngine(t), NewCSVExporter(outDir))

	err := orchestrator.Run(context.Background(), NewMovementPipeline(MovementConfig{}), []string{
		filepath.Join(dir, "20240215_b.csv"),
		filepath.Join(dir, "20240110_a.csv"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, sub := range []string{"20240110", "20240215"} {
		if _, err := os.Stat(filepath.Join(outDir, sub, "monthly_kpis.csv")); err != nil {
			t.Errorf("expected results for batch %s: %v", sub, err)
		}
	}
}

func TestCSVExporterOutput(t *testing.T) {
	dir := t.TempDir()
	writeTestCSV(t, dir, "20240110_a.csv", `Item No,Pkg,DSV Indoor,AGI
A-1,3,2024-01-10,2024-02-05
`)

	outDir := filepath.Join(dir, "out")
	worker := NewWorker(NewMovementPipeline(MovementConfig{}), DefaultPipelineConfig("cargo_movement"), nil, testEngine(t), NewCSVExporter(outDir))

	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if _, err := worker.ProcessBatch(context.Background(), date, []string{filepath.Join(dir, "20240110_a.csv")}); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	f, err := os.Open(filepath.Join(outDir, "20240110", "transitions.csv"))
	if err != nil {
		t.Fatalf("open transitions: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read transitions: %v", err)
	}
	// Header plus one inbound and one outbound transition.
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[1][0] != "A-1" || records[1][1] != "Inbound" {
		t.Errorf("unexpected first transition: %v", records[1])
	}
	if records[2][1] != "Outbound" || records[2][5] != "3" {
		t.Errorf("unexpected second transition: %v", records[2])
	}
}

func TestWorkerRetryFailed(t *testing.T) {
	dir := t.TempDir()
	path := writeTestCSV(t, dir, "20240110_a.csv", `Vendor,DSV Indoor
Hitachi,2024-01-10
`)

	store := newMemStore()
	sink := &captureSink{}
	cfg := DefaultPipelineConfig("cargo_movement")
	cfg.RetryBackoff = time.Millisecond
	worker := NewWorker(NewMovementPipeline(MovementConfig{}), cfg, store, testEngine(t), sink)

	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if _, err := worker.ProcessBatch(context.Background(), date, []string{path}); err == nil {
		t.Fatal("expected error for file without item identifier column")
	}

	failed, err := store.GetFailedFileJobs(context.Background(), "cargo_movement", cfg.RetryAttempts)
	if err != nil {
		t.Fatalf("GetFailedFileJobs: %v", err)
	}
	if len(failed) != 1 || failed[0].RetryCount != 1 {
		t.Fatalf("expected one failed job with retry count 1, got %+v", failed)
	}

	// Fix the file in place and retry the batch.
	writeTestCSV(t, dir, "20240110_a.csv", `Item No,DSV Indoor
A-1,2024-01-10
`)

	if err := worker.RetryFailed(context.Background()); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}

	if sink.calls != 1 {
		t.Fatalf("expected sink called once on retry, got %d", sink.calls)
	}

	run, err := store.GetPipelineRunByDate(context.Background(), "cargo_movement", date)
	if err != nil || run == nil {
		t.Fatalf("GetPipelineRunByDate: run=%v err=%v", run, err)
	}
	if run.Status != StatusCompleted {
		t.Errorf("expected completed run after retry, got %s", run.Status)
	}

	jobs, err := store.GetFileJobsByRunID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetFileJobsByRunID: %v", err)
	}
	// The retry must reuse the original job record, not start a second one.
	if len(jobs) != 1 {
		t.Fatalf("expected a single job record, got %d", len(jobs))
	}
	if jobs[0].Status != FileStatusCompleted {
		t.Errorf("expected completed job, got %s", jobs[0].Status)
	}
	if jobs[0].RetryCount != 1 {
		t.Errorf("retry count should survive the re-run, got %d", jobs[0].RetryCount)
	}
}

func TestWorkerRetryFailedExhausted(t *testing.T) {
	dir := t.TempDir()
	path := writeTestCSV(t, dir, "20240110_a.csv", `Vendor,DSV Indoor
Hitachi,2024-01-10
`)

	store := newMemStore()
	sink := &captureSink{}
	cfg := DefaultPipelineConfig("cargo_movement")
	cfg.RetryAttempts = 1
	cfg.RetryBackoff = time.Millisecond
	worker := NewWorker(NewMovementPipeline(MovementConfig{}), cfg, store, testEngine(t), sink)

	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if _, err := worker.ProcessBatch(context.Background(), date, []string{path}); err == nil {
		t.Fatal("expected error for file without item identifier column")
	}

	if err := worker.RetryFailed(context.Background()); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}

	// The single attempt is spent, so nothing is re-processed.
	if sink.calls != 0 {
		t.Errorf("expected no sink calls once retries are exhausted, got %d", sink.calls)
	}
	job, err := store.GetFileJobByPath(context.Background(), 1, path)
	if err != nil || job == nil {
		t.Fatalf("GetFileJobByPath: job=%v err=%v", job, err)
	}
	if job.Status != FileStatusFailed {
		t.Errorf("expected job to stay failed, got %s", job.Status)
	}
}
