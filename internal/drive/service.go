package drive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Service reads the Drive folders where movement snapshot files are
// dropped. Only read scope is requested.
type Service struct {
	files *drive.FilesService
}

// NewService authenticates with a service account credentials JSON blob.
func NewService(credentialsJSON string) (*Service, error) {
	jwt, err := google.JWTConfigFromJSON([]byte(credentialsJSON), drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse drive credentials: %w", err)
	}

	srv, err := drive.NewService(context.Background(), option.WithHTTPClient(jwt.Client(context.Background())))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}

	return &Service{files: srv.Files}, nil
}

// File is the subset of Drive file metadata the sync flow needs.
type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
	Size         int64  `json:"size,string,omitempty"`
}

// ListMovementFiles returns the CSV and XLSX files in a folder, in name
// order. The extension filter runs in the Drive query itself so drop
// folders full of unrelated files are not paged through client side.
func (s *Service) ListMovementFiles(ctx context.Context, folderID string) ([]File, error) {
	if folderID == "" {
		folderID = "root"
	}

	query := fmt.Sprintf(
		"'%s' in parents and trashed=false and (fileExtension='csv' or fileExtension='xlsx')",
		folderID,
	)

	var (
		files     []File
		pageToken string
	)
	for {
		result, err := s.files.List().Context(ctx).
			Q(query).
			Fields("nextPageToken, files(id, name, modifiedTime, size)").
			OrderBy("name").
			PageToken(pageToken).
			Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
		}

		for _, f := range result.Files {
			files = append(files, File{
				ID:           f.Id,
				Name:         f.Name,
				ModifiedTime: f.ModifiedTime,
				Size:         f.Size,
			})
		}

		pageToken = result.NextPageToken
		if pageToken == "" {
			return files, nil
		}
	}
}

// Download streams a file's content into w.
func (s *Service) Download(ctx context.Context, fileID string, w io.Writer) error {
	resp, err := s.files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(w, resp.Body)
	return err
}

// ResolveFolder walks a slash-separated folder path down from the Drive
// root and returns the ID of the last segment.
func (s *Service) ResolveFolder(ctx context.Context, path string) (string, error) {
	currentID := "root"
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		id, err := s.childFolderID(ctx, currentID, name)
		if err != nil {
			return "", err
		}
		currentID = id
	}
	return currentID, nil
}

func (s *Service) childFolderID(ctx context.Context, parentID, name string) (string, error) {
	result, err := s.files.List().Context(ctx).
		Q(fmt.Sprintf("'%s' in parents and name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false",
			parentID, name)).
		Fields("files(id)").
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to look up folder %s: %w", name, err)
	}
	if len(result.Files) == 0 {
		return "", fmt.Errorf("folder not found: %s", name)
	}
	return result.Files[0].Id, nil
}
