package artifact

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/store"
)

// metadataStore is the subset of store.ArtifactStore the Manager depends
// on.
type metadataStore interface {
	Create(ctx context.Context, a *model.Artifact) error
	Get(ctx context.Context, id string) (*model.Artifact, error)
	GetByContentHash(ctx context.Context, contentHash string) (*model.Artifact, error)
}

// Manager satisfies the ArtifactSink seam pkg/toolrouter/tools/document
// and pkg/toolrouter/tools/image each declare locally (Put(ctx, runID,
// name string, data []byte) (uri string, err error)), and owns the
// content-addressing and dedupe logic spec §3 describes: two artifacts
// with identical bytes share a ContentHash and resolve to the same id
// rather than writing the blob twice.
type Manager struct {
	blobs BlobStore
	meta  metadataStore
}

// New builds a Manager over a BlobStore (bytes) and a store.ArtifactStore
// (metadata).
func New(blobs BlobStore, meta metadataStore) *Manager {
	return &Manager{blobs: blobs, meta: meta}
}

// Put stores data under name for runID, returning a "artifact://<id>" URI
// callers (and the Supervisor's observation text) can treat opaquely.
// When data's content hash already has a record, the existing id is
// returned and no blob write happens, matching spec §3's "Creation is
// idempotent under the content hash."
func (m *Manager) Put(ctx context.Context, runID, name string, data []byte) (string, error) {
	hash := model.ContentHash(data)

	existing, err := m.meta.GetByContentHash(ctx, hash)
	if err == nil {
		return artifactURI(existing.ID), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("artifact: lookup content hash %s: %w", hash, err)
	}

	ext := filepath.Ext(name)
	mediaType := mime.TypeByExtension(ext)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	if err := m.blobs.Put(ctx, hash, data, mediaType); err != nil {
		return "", fmt.Errorf("artifact: store blob for run %s: %w", runID, err)
	}

	a := &model.Artifact{
		ID:          uuid.NewString(),
		RunID:       runID,
		Kind:        inferKind(ext),
		Filename:    name,
		MediaType:   mediaType,
		ContentHash: hash,
		SizeBytes:   int64(len(data)),
		StorageKey:  hash,
		CreatedAt:   time.Now(),
	}
	if err := m.meta.Create(ctx, a); err != nil {
		return "", fmt.Errorf("artifact: record metadata for run %s: %w", runID, err)
	}

	return artifactURI(a.ID), nil
}

// Fetch resolves an artifact id to its metadata record and raw bytes, for
// pkg/ingress's download endpoint.
func (m *Manager) Fetch(ctx context.Context, id string) (*model.Artifact, []byte, error) {
	a, err := m.meta.Get(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("artifact: lookup %s: %w", id, err)
	}
	data, err := m.blobs.Get(ctx, a.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("artifact: fetch blob for %s: %w", id, err)
	}
	return a, data, nil
}

func artifactURI(id string) string {
	return "artifact://" + id
}

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true}
var documentExts = map[string]bool{".md": true, ".pdf": true, ".txt": true, ".json": true, ".csv": true, ".html": true}

// inferKind classifies an Artifact from its file extension; Put's fixed
// sink signature has no room for an explicit kind argument, so this is
// the only information available at creation time.
func inferKind(ext string) model.ArtifactKind {
	ext = strings.ToLower(ext)
	switch {
	case imageExts[ext]:
		return model.ArtifactKindImage
	case documentExts[ext]:
		return model.ArtifactKindDocument
	default:
		return model.ArtifactKindFile
	}
}
