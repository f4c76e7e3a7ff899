package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Downloader pulls movement source files out of object storage so the
// pipeline can process them like local uploads.
type Downloader struct {
	client ObjectStorage
}

// NewDownloader creates a downloader backed by the given storage client.
func NewDownloader(client ObjectStorage) *Downloader {
	return &Downloader{client: client}
}

// DownloadPrefix downloads every movement file found under the prefix
// into destDir and returns the local paths in name order. Objects that
// are not CSV or XLSX files are ignored.
func (d *Downloader) DownloadPrefix(ctx context.Context, prefix, destDir string) ([]string, error) {
	objects, err := d.client.ListObjects(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}

	var paths []string
	for _, obj := range objects {
		switch strings.ToLower(filepath.Ext(obj.Key)) {
		case ".csv", ".xlsx":
		default:
			continue
		}

		dest := filepath.Join(destDir, filepath.Base(obj.Key))
		if err := d.client.DownloadObject(ctx, obj.Key, dest); err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", obj.Key, err)
		}

		log.Debug().Str("key", obj.Key).Str("dest", dest).Msg("downloaded source file")
		paths = append(paths, dest)
	}

	sort.Strings(paths)
	log.Info().Str("prefix", prefix).Int("files", len(paths)).Msg("storage download finished")
	return paths, nil
}
