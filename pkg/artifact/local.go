package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore is a BlobStore over the local filesystem, used in dev mode
// and tests in place of object storage. Objects are sharded by the first
// two characters of their key (expected to be a content hash), mirroring
// git's loose-object layout, so a single directory never accumulates
// millions of entries.
type LocalStore struct {
	baseDir string
}

var _ BlobStore = (*LocalStore)(nil)

// NewLocalStore roots a LocalStore at baseDir, creating it if missing.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create base dir %s: %w", baseDir, err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

func (s *LocalStore) path(key string) string {
	if len(key) < 2 {
		return filepath.Join(s.baseDir, "_", key)
	}
	return filepath.Join(s.baseDir, key[:2], key[2:])
}

// Put writes data to disk. contentType is unused; the local backend has
// no request headers to carry it on, and artifact.Manager already tracks
// media type in the Artifact metadata record.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("artifact: create shard dir for %s: %w", key, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("artifact: write %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("artifact: read %s: %w", key, err)
	}
	return data, nil
}
