package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ArtifactKind classifies the content an Artifact wraps.
type ArtifactKind string

// Recognized artifact kinds (spec §3).
const (
	ArtifactKindDocument ArtifactKind = "document"
	ArtifactKindImage    ArtifactKind = "image"
	ArtifactKindFile     ArtifactKind = "file"
	ArtifactKindLog      ArtifactKind = "log"
)

// Artifact is a content-addressed blob produced by a Step (spec §3).
// Two artifacts with identical bytes share a ContentHash and, in the
// backing store, a single stored object; creation is therefore idempotent.
type Artifact struct {
	ID        string
	RunID     string
	StepID    string
	Kind      ArtifactKind
	Filename  string
	MediaType string

	ContentHash string // hex sha256 of the raw bytes
	SizeBytes   int64

	StorageKey string // backend-specific locator, never exposed to callers

	CreatedAt time.Time
}

// ContentHash computes the Artifact content address for a byte slice.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
