package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrips(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "deadbeef", []byte("hello"), "text/plain"))

	data, err := store.Get(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalStoreGetMissingKeyErrors(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "nope")
	assert.Error(t, err)
}

func TestLocalStoreShardsShortKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "a", []byte("x"), ""))

	data, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}
