package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/store/memstore"
)

func newTestManager(t *testing.T) (*Manager, *memstore.Store) {
	t.Helper()
	blobs, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	st := memstore.New()
	return New(blobs, st.Artifacts), st
}

func TestPutStoresBlobAndMetadata(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	uri, err := m.Put(ctx, "run-1", "report.md", []byte("# hello"))
	require.NoError(t, err)
	assert.Contains(t, uri, "artifact://")

	artifacts, err := st.Artifacts.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, model.ArtifactKindDocument, artifacts[0].Kind)
	assert.Equal(t, "report.md", artifacts[0].Filename)
	assert.EqualValues(t, len("# hello"), artifacts[0].SizeBytes)
}

func TestPutIsIdempotentUnderContentHash(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	uri1, err := m.Put(ctx, "run-1", "a.txt", []byte("same bytes"))
	require.NoError(t, err)
	uri2, err := m.Put(ctx, "run-1", "b.txt", []byte("same bytes"))
	require.NoError(t, err)

	assert.Equal(t, uri1, uri2, "identical content must resolve to the same artifact id")

	artifacts, err := st.Artifacts.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, artifacts, 1, "no duplicate artifact record for identical content")
}

func TestPutInfersKindFromExtension(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	_, err := m.Put(ctx, "run-1", "chart.png", []byte("png bytes"))
	require.NoError(t, err)

	artifacts, err := st.Artifacts.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, model.ArtifactKindImage, artifacts[0].Kind)
}

func TestFetchReturnsMetadataAndBytes(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	uri, err := m.Put(ctx, "run-1", "notes.txt", []byte("notes"))
	require.NoError(t, err)
	id := uri[len("artifact://"):]

	a, data, err := m.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", a.Filename)
	assert.Equal(t, "notes", string(data))
}
