package file

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/vycodi/vycodi/coordinator/coordinatortest"
	"gitlab.com/vycodi/vycodi/core"
)

func TestBucketAddPublishesAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(coordinatortest.New())
	b := NewBucket(r, 1)

	lf := LocalFile{File: core.File{ID: 1, Name: "a.txt", Type: core.FileReadable}, Path: "/tmp/a.txt"}
	require.NoError(t, b.Add(ctx, lf))

	got, ok := b.Get(1)
	assert.True(t, ok)
	assert.Equal(t, lf, got)

	hosts, err := r.Hosts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, hosts)
}

func TestBucketRemoveUnpublishesAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(coordinatortest.New())
	b := NewBucket(r, 1)

	lf := LocalFile{File: core.File{ID: 1, Name: "a.txt", Type: core.FileReadable}, Path: "/tmp/a.txt"}
	require.NoError(t, b.Add(ctx, lf))
	require.NoError(t, b.AcquireWriteLock(ctx, 1))

	require.NoError(t, b.Remove(ctx, 1))
	_, ok := b.Get(1)
	assert.False(t, ok)
	_, held := b.writeLocks[1]
	assert.False(t, held, "Remove must release the write lock")

	_, err := r.Lookup(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBucketAcquireWriteLockIsIdempotentAndLocksType(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(coordinatortest.New())
	b := NewBucket(r, 1)

	lf := LocalFile{File: core.File{ID: 1, Name: "a.txt", Type: core.FileReadable}, Path: "/tmp/a.txt"}
	require.NoError(t, b.Add(ctx, lf))

	require.NoError(t, b.AcquireWriteLock(ctx, 1))
	require.NoError(t, b.AcquireWriteLock(ctx, 1))

	got, ok := b.Get(1)
	require.True(t, ok)
	assert.Equal(t, core.FileLocked, got.Type)

	registered, err := r.Lookup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.FileLocked, registered.Type)
}

func TestBucketReleaseWriteLockIsNoOpWhenNotHeld(t *testing.T) {
	b := NewBucket(NewRegistry(coordinatortest.New()), 1)
	b.ReleaseWriteLock(1)
}

func TestBucketCompleteWriteLockRestoresReadableType(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(coordinatortest.New())
	b := NewBucket(r, 1)

	lf := LocalFile{File: core.File{ID: 1, Name: "a.txt", Type: core.FileReadable}, Path: "/tmp/a.txt"}
	require.NoError(t, b.Add(ctx, lf))
	require.NoError(t, b.AcquireWriteLock(ctx, 1))
	require.NoError(t, b.CompleteWriteLock(ctx, 1))

	got, ok := b.Get(1)
	require.True(t, ok)
	assert.Equal(t, core.FileReadable, got.Type)

	registered, err := r.Lookup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.FileReadable, registered.Type)
}

func TestBucketStoreAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(coordinatortest.New())
	b := NewBucket(r, 1)

	require.NoError(t, b.Add(ctx, LocalFile{File: core.File{ID: 1, Name: "a.txt", Type: core.FileReadable}, Path: "/tmp/a.txt"}))
	require.NoError(t, b.Add(ctx, LocalFile{File: core.File{ID: 2, Name: "b.txt", Type: core.FileReadable}, Path: "/tmp/b.txt"}))

	path := filepath.Join(t.TempDir(), "bucket.json")
	require.NoError(t, b.Store(path))

	loaded := NewBucket(r, 1)
	require.NoError(t, loaded.Load(ctx, path, false))

	assert.Len(t, loaded.All(), 2)
	got, ok := loaded.Get(1)
	require.True(t, ok)
	assert.Equal(t, "a.txt", got.Name)
}

func TestBucketLoadWithRegisterRepublishesToRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(coordinatortest.New())
	b := NewBucket(r, 1)
	require.NoError(t, b.Add(ctx, LocalFile{File: core.File{ID: 5, Name: "c.txt", Type: core.FileReadable}, Path: "/tmp/c.txt"}))

	path := filepath.Join(t.TempDir(), "bucket.json")
	require.NoError(t, b.Store(path))

	freshRegistry := NewRegistry(coordinatortest.New())
	loaded := NewBucket(freshRegistry, 1)
	require.NoError(t, loaded.Load(ctx, path, true))

	_, err := freshRegistry.Lookup(ctx, 5)
	assert.NoError(t, err, "Load with register=true must republish every loaded file")
}
