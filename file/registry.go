package file

import (
	"context"
	"strconv"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/coordinator"
)

// Registry is the coordinator-backed descriptor of every known file:
// its name and type, and the set of hosts currently serving it. A
// Bucket wraps a Registry to add a host's local, on-disk view.
type Registry struct {
	coord coordinator.Coordinator
}

// NewRegistry returns a Registry backed by coord.
func NewRegistry(coord coordinator.Coordinator) *Registry {
	return &Registry{coord: coord}
}

// NextID allocates a new file id.
func (r *Registry) NextID(ctx context.Context) (int64, error) {
	return r.coord.Incr(ctx, core.KeyFilesIndex)
}

// Lookup returns the descriptor for id, or ErrNotFound.
func (r *Registry) Lookup(ctx context.Context, id int64) (core.File, error) {
	fields, err := r.coord.HGetAll(ctx, core.FileKey(id))
	if err != nil {
		return core.File{}, errors.AddContext(err, "file registry: lookup")
	}
	if len(fields) == 0 {
		return core.File{}, ErrNotFound
	}
	return core.File{ID: id, Name: fields["name"], Type: core.FileType(fields["type"])}, nil
}

// Hosts returns the ids of every host currently serving file id.
func (r *Registry) Hosts(ctx context.Context, id int64) ([]int64, error) {
	members, err := r.coord.SMembers(ctx, core.FileHostsKey(id))
	if err != nil {
		return nil, errors.AddContext(err, "file registry: hosts")
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		hostID, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, errors.AddContext(err, "file registry: parse host id")
		}
		ids = append(ids, hostID)
	}
	return ids, nil
}

// Publish writes f's descriptor and adds hostID to its serving set,
// holding the file's advisory lock for the duration.
func (r *Registry) Publish(ctx context.Context, f core.File, hostID int64) error {
	return withLock(ctx, r.coord, core.FileLockKey(f.ID), func() error {
		fields := map[string]string{
			"name": f.Name,
			"type": string(f.Type),
		}
		if err := r.coord.HSet(ctx, core.FileKey(f.ID), fields); err != nil {
			return err
		}
		return r.coord.SAdd(ctx, core.FileHostsKey(f.ID), strconv.FormatInt(hostID, 10))
	})
}

// UpdateType rewrites a file's type field without touching its hosts set.
func (r *Registry) UpdateType(ctx context.Context, id int64, t core.FileType) error {
	return withLock(ctx, r.coord, core.FileLockKey(id), func() error {
		return r.coord.HSet(ctx, core.FileKey(id), map[string]string{"type": string(t)})
	})
}

// Unpublish removes hostID from the file's serving set, and deletes the
// file's descriptor entirely once no host serves it any longer.
func (r *Registry) Unpublish(ctx context.Context, id, hostID int64) error {
	return withLock(ctx, r.coord, core.FileLockKey(id), func() error {
		if _, err := r.coord.SRem(ctx, core.FileHostsKey(id), strconv.FormatInt(hostID, 10)); err != nil {
			return err
		}
		remaining, err := r.coord.SCard(ctx, core.FileHostsKey(id))
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		return r.coord.Del(ctx, core.FileKey(id), core.FileHostsKey(id))
	})
}
