package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSStorage writes objects below a directory that is served at BaseURL.
type FSStorage struct {
	dir     string
	baseURL string
}

func NewFSStorage(dir, baseURL string) *FSStorage {
	return &FSStorage{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *FSStorage) Dir() string {
	return s.dir
}

func (s *FSStorage) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(path, filepath.Clean(s.dir)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("media key %q escapes storage directory", key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write media: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to store media: %w", err)
	}

	return &Object{
		Key:  key,
		URL:  s.baseURL + "/" + key,
		Size: int64(len(data)),
	}, nil
}
