package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/portops/cargoflow/internal/engine"
	"github.com/portops/cargoflow/internal/storage"
)

// ArchiveSink uploads the reconciliation summary and flow codes of each
// completed batch to object storage, keyed by snapshot date.
type ArchiveSink struct {
	store storage.ObjectStorage
	now   func() time.Time
}

// NewArchiveSink creates an archive sink backed by the given storage.
func NewArchiveSink(store storage.ObjectStorage) *ArchiveSink {
	return &ArchiveSink{store: store, now: time.Now}
}

// Persist uploads runs/<date>/summary.json and runs/<date>/flow_codes.json.
func (s *ArchiveSink) Persist(ctx context.Context, run *PipelineRun, result *engine.Result) error {
	prefix := fmt.Sprintf("runs/%s", run.Date.Format("20060102"))

	summary := result.Summary(s.now())
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := s.store.UploadObject(ctx, prefix+"/summary.json", payload); err != nil {
		return fmt.Errorf("upload summary: %w", err)
	}

	codes, err := json.MarshalIndent(result.FlowCodes, "", "  ")
	if err != nil {
		return fmt.Errorf("encode flow codes: %w", err)
	}
	if err := s.store.UploadObject(ctx, prefix+"/flow_codes.json", codes); err != nil {
		return fmt.Errorf("upload flow codes: %w", err)
	}

	log.Info().Str("prefix", prefix).Msg("archived batch results")
	return nil
}
