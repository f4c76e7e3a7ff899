package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DownloadOptions controls how movement files are pulled from Drive.
type DownloadOptions struct {
	FolderID    string
	DownloadDir string
	// ConvertXLSX converts downloaded workbooks to CSV instead of keeping
	// them as .xlsx.
	ConvertXLSX bool
}

// Downloader wraps Service to download movement files from a folder.
type Downloader struct {
	service *Service
}

// NewDownloader creates a new Downloader.
func NewDownloader(s *Service) *Downloader {
	return &Downloader{service: s}
}

// DownloadFolder downloads all non-trashed CSV and XLSX files from the
// given Drive folder into DownloadDir and returns their local paths. With
// ConvertXLSX set, workbooks are converted to CSV (first sheet) and the
// intermediate .xlsx is removed.
func (d *Downloader) DownloadFolder(ctx context.Context, opts DownloadOptions) ([]string, error) {
	if opts.DownloadDir == "" {
		return nil, fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(opts.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	files, err := d.service.ListMovementFiles(ctx, opts.FolderID)
	if err != nil {
		return nil, err
	}

	var localPaths []string
	for _, f := range files {
		localPath := filepath.Join(opts.DownloadDir, f.Name)
		if err := d.downloadTo(ctx, f.ID, localPath); err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", f.Name, err)
		}

		if opts.ConvertXLSX && strings.EqualFold(filepath.Ext(f.Name), ".xlsx") {
			csvName := strings.TrimSuffix(f.Name, filepath.Ext(f.Name)) + ".csv"
			csvPath := filepath.Join(opts.DownloadDir, csvName)
			if err := convertXLSXToCSV(localPath, csvPath); err != nil {
				return nil, fmt.Errorf("failed to convert %s to csv: %w", f.Name, err)
			}
			_ = os.Remove(localPath)
			localPath = csvPath
		}

		localPaths = append(localPaths, localPath)
	}

	return localPaths, nil
}

func (d *Downloader) downloadTo(ctx context.Context, fileID, localPath string) error {
	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	defer out.Close()

	return d.service.Download(ctx, fileID, out)
}
