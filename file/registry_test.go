package file

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/vycodi/vycodi/coordinator/coordinatortest"
	"gitlab.com/vycodi/vycodi/core"
)

func TestRegistryPublishAndLookup(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(coordinatortest.New())

	id, err := r.NextID(ctx)
	require.NoError(t, err)

	f := core.File{ID: id, Name: "a.txt", Type: core.FileReadable}
	require.NoError(t, r.Publish(ctx, f, 1))

	got, err := r.Lookup(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	hosts, err := r.Hosts(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, hosts)
}

func TestRegistryLookupMissingReturnsErrNotFound(t *testing.T) {
	r := NewRegistry(coordinatortest.New())
	_, err := r.Lookup(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryUpdateType(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(coordinatortest.New())

	f := core.File{ID: 1, Name: "a.txt", Type: core.FileReadable}
	require.NoError(t, r.Publish(ctx, f, 1))
	require.NoError(t, r.UpdateType(ctx, 1, core.FileLocked))

	got, err := r.Lookup(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, core.FileLocked, got.Type)
}

func TestRegistryUnpublishRemovesHostButKeepsDescriptorWhileOthersServe(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(coordinatortest.New())

	f := core.File{ID: 1, Name: "a.txt", Type: core.FileReadable}
	require.NoError(t, r.Publish(ctx, f, 1))
	require.NoError(t, r.Publish(ctx, f, 2))

	require.NoError(t, r.Unpublish(ctx, 1, 1))
	hosts, err := r.Hosts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, hosts)

	_, err = r.Lookup(ctx, 1)
	assert.NoError(t, err, "descriptor survives while another host still serves it")
}

func TestRegistryUnpublishDeletesDescriptorOnceNoHostServesIt(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(coordinatortest.New())

	f := core.File{ID: 1, Name: "a.txt", Type: core.FileReadable}
	require.NoError(t, r.Publish(ctx, f, 1))
	require.NoError(t, r.Unpublish(ctx, 1, 1))

	_, err := r.Lookup(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
