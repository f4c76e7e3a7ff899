package drive

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/portops/cargoflow/internal/pipeline"
)

// SyncService downloads movement snapshots from a Drive folder and runs
// them through the reconstruction pipeline.
type SyncService struct {
	downloader   *Downloader
	orchestrator *pipeline.Orchestrator
	pipe         pipeline.Pipeline
	downloadDir  string
}

func NewSyncService(downloader *Downloader, orchestrator *pipeline.Orchestrator, pipe pipeline.Pipeline, downloadDir string) *SyncService {
	return &SyncService{
		downloader:   downloader,
		orchestrator: orchestrator,
		pipe:         pipe,
		downloadDir:  downloadDir,
	}
}

// SyncFolder pulls every movement file from the folder and processes it.
// Returns the number of files processed.
func (s *SyncService) SyncFolder(ctx context.Context, folderID string) (int, error) {
	files, err := s.downloader.DownloadFolder(ctx, DownloadOptions{
		FolderID:    folderID,
		DownloadDir: s.downloadDir,
	})
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	if len(files) == 0 {
		log.Info().Str("folder", folderID).Msg("no movement files in folder")
		return 0, nil
	}

	if err := s.orchestrator.Run(ctx, s.pipe, files); err != nil {
		return 0, err
	}

	log.Info().Str("folder", folderID).Int("files", len(files)).Msg("folder sync completed")
	return len(files), nil
}
