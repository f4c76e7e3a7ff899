package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeStorage struct {
	objects map[string][]byte
	listErr error
}

func (f *fakeStorage) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var infos []ObjectInfo
	for key, data := range f.objects {
		infos = append(infos, ObjectInfo{Key: key, Size: int64(len(data))})
	}
	return infos, nil
}

func (f *fakeStorage) DownloadObject(ctx context.Context, key, destPath string) error {
	data, ok := f.objects[key]
	if !ok {
		return errors.New("no such object: " + key)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o644)
}

func (f *fakeStorage) UploadObject(ctx context.Context, key string, data []byte) error {
	f.objects[key] = data
	return nil
}

func TestDownloaderDownloadPrefix(t *testing.T) {
	store := &fakeStorage{objects: map[string][]byte{
		"incoming/20240110_b.csv":  []byte("Item No,DSV Indoor\nB-1,2024-01-10\n"),
		"incoming/20240110_a.xlsx": []byte("workbook"),
		"incoming/readme.txt":      []byte("ignore me"),
	}}

	dir := t.TempDir()
	paths, err := NewDownloader(store).DownloadPrefix(context.Background(), "incoming/", dir)
	if err != nil {
		t.Fatalf("DownloadPrefix: %v", err)
	}

	// Only movement file types come down, in name order.
	want := []string{
		filepath.Join(dir, "20240110_a.xlsx"),
		filepath.Join(dir, "20240110_b.csv"),
	}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
	}

	data, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "Item No,DSV Indoor\nB-1,2024-01-10\n" {
		t.Errorf("unexpected content: %q", data)
	}

	if _, err := os.Stat(filepath.Join(dir, "readme.txt")); !os.IsNotExist(err) {
		t.Error("non-movement object should not be downloaded")
	}
}

func TestDownloaderListFailure(t *testing.T) {
	store := &fakeStorage{listErr: errors.New("bucket unavailable")}

	_, err := NewDownloader(store).DownloadPrefix(context.Background(), "incoming/", t.TempDir())
	if err == nil {
		t.Fatal("expected error when listing fails")
	}
}
