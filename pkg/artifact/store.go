// Package artifact implements the content-addressed artifact store seam
// (spec §3's Artifact type, "content-addressed by SHA-256... Creation is
// idempotent under the content hash"). It sits behind the two
// ArtifactSink seams pkg/toolrouter/tools/document and
// pkg/toolrouter/tools/image already declare locally, and in front of
// store.ArtifactStore, which owns the metadata record; this package owns
// the bytes.
package artifact

import "context"

// BlobStore persists raw bytes under an opaque key and hands them back
// unchanged. It knows nothing about Runs, content hashes, or metadata —
// that bookkeeping lives in Manager.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}
