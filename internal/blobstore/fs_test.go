package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreWriteReadRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "/a/b.txt", strings.NewReader("hello")))

	rc, err := store.Read(ctx, "/a/b.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFSStoreReadMissingReturnsErrNotFound(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Read(context.Background(), "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreRenameIsAtomicAndCleansSource(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "/x.tmp.abc", strings.NewReader("partial-then-final")))
	require.NoError(t, store.Rename(ctx, "/x.tmp.abc", "/x.final"))

	_, err = store.Read(ctx, "/x.tmp.abc")
	assert.ErrorIs(t, err, ErrNotFound)

	rc, err := store.Read(ctx, "/x.final")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "partial-then-final", string(data))
}

func TestFSStoreRenameMissingSource(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	err = store.Rename(context.Background(), "/nope", "/dst")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreDeleteIsIdempotent(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, store.Delete(ctx, "/never-existed"))

	require.NoError(t, store.Write(ctx, "/y", strings.NewReader("z")))
	require.NoError(t, store.Delete(ctx, "/y"))
	assert.NoError(t, store.Delete(ctx, "/y"))
}

func TestFSStoreListByPrefix(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "/intermediate/job1/map-0-reduce-0.pb", strings.NewReader("a")))
	require.NoError(t, store.Write(ctx, "/intermediate/job1/map-1-reduce-0.pb", strings.NewReader("b")))
	require.NoError(t, store.Write(ctx, "/intermediate/job1/map-0-reduce-1.pb", strings.NewReader("c")))

	paths, err := store.List(ctx, "/intermediate/job1/map-0")
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}
