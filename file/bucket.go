package file

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/vycodi/vycodi/core"
)

// LocalFile is a File known to this host, with the local path it lives
// at on disk in addition to the registry-visible id/name/type.
type LocalFile struct {
	core.File
	Path string `json:"path"`
}

// Bucket is a host's local index of the files it serves: the
// registry-visible descriptor plus the on-disk path, persisted to a
// JSON snapshot so a restarted host can pick its file set back up
// without re-scanning a directory.
type Bucket struct {
	registry *Registry
	hostID   int64

	mu         sync.Mutex
	files      map[int64]LocalFile
	writeLocks map[int64]struct{}
}

// NewBucket returns an empty Bucket for hostID, persisting registry
// writes through registry.
func NewBucket(registry *Registry, hostID int64) *Bucket {
	return &Bucket{
		registry:   registry,
		hostID:     hostID,
		files:      make(map[int64]LocalFile),
		writeLocks: make(map[int64]struct{}),
	}
}

// Get returns the locally known file descriptor for id.
func (b *Bucket) Get(id int64) (LocalFile, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.files[id]
	return f, ok
}

// All returns every file currently in the bucket.
func (b *Bucket) All() []LocalFile {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LocalFile, 0, len(b.files))
	for _, f := range b.files {
		out = append(out, f)
	}
	return out
}

// Add inserts f into the bucket, replacing any existing entry for the
// same id, and publishes it to the registry.
func (b *Bucket) Add(ctx context.Context, f LocalFile) error {
	b.mu.Lock()
	b.files[f.ID] = f
	b.mu.Unlock()
	return b.registry.Publish(ctx, f.File, b.hostID)
}

// Remove drops id from the bucket and unpublishes it from the registry,
// releasing any write lock held on it first.
func (b *Bucket) Remove(ctx context.Context, id int64) error {
	b.mu.Lock()
	delete(b.writeLocks, id)
	delete(b.files, id)
	b.mu.Unlock()
	return b.registry.Unpublish(ctx, id, b.hostID)
}

// Register publishes every file currently in the bucket to the
// registry. Used after a fresh load to re-announce this host as a
// server for all of them.
func (b *Bucket) Register(ctx context.Context) error {
	for _, f := range b.All() {
		if err := b.registry.Publish(ctx, f.File, b.hostID); err != nil {
			return errors.AddContext(err, "bucket: register "+f.Name)
		}
	}
	return nil
}

// Unregister unpublishes every file in the bucket from the registry and
// releases all outstanding write locks. Called on host shutdown.
func (b *Bucket) Unregister(ctx context.Context) error {
	for _, f := range b.All() {
		b.ReleaseWriteLock(f.ID)
		if err := b.registry.Unpublish(ctx, f.ID, b.hostID); err != nil {
			return errors.AddContext(err, "bucket: unregister "+f.Name)
		}
	}
	return nil
}

// AcquireWriteLock marks id as locked for an in-progress upload,
// switching its registry type to locked so readers know not to serve
// a half-written file. It is idempotent: a second call while the lock
// is already held is a no-op.
func (b *Bucket) AcquireWriteLock(ctx context.Context, id int64) error {
	b.mu.Lock()
	if _, held := b.writeLocks[id]; held {
		b.mu.Unlock()
		return nil
	}
	b.writeLocks[id] = struct{}{}
	f, ok := b.files[id]
	if ok {
		f.Type = core.FileLocked
		b.files[id] = f
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return b.registry.UpdateType(ctx, id, core.FileLocked)
}

// ReleaseWriteLock clears the write lock on id and switches its
// registry type to readable. A no-op if the lock is not held.
func (b *Bucket) ReleaseWriteLock(id int64) {
	b.mu.Lock()
	if _, held := b.writeLocks[id]; !held {
		b.mu.Unlock()
		return
	}
	delete(b.writeLocks, id)
	f, ok := b.files[id]
	if ok {
		f.Type = core.FileReadable
		b.files[id] = f
	}
	b.mu.Unlock()
	if ok {
		_ = b.registry.UpdateType(context.Background(), id, core.FileReadable)
	}
}

// CompleteWriteLock releases id's write lock after a successful upload,
// making it the caller's responsibility to surface any registry error.
func (b *Bucket) CompleteWriteLock(ctx context.Context, id int64) error {
	b.mu.Lock()
	if _, held := b.writeLocks[id]; !held {
		b.mu.Unlock()
		return nil
	}
	delete(b.writeLocks, id)
	f, ok := b.files[id]
	if ok {
		f.Type = core.FileReadable
		b.files[id] = f
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return b.registry.UpdateType(ctx, id, core.FileReadable)
}

// Load replaces the bucket's contents with the JSON snapshot in path,
// optionally re-registering every loaded file with the registry.
func (b *Bucket) Load(ctx context.Context, path string, register bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.AddContext(err, "bucket: read snapshot")
	}
	var files []LocalFile
	if err := json.Unmarshal(data, &files); err != nil {
		return errors.AddContext(err, "bucket: decode snapshot")
	}
	b.mu.Lock()
	b.files = make(map[int64]LocalFile, len(files))
	for _, f := range files {
		b.files[f.ID] = f
	}
	b.mu.Unlock()
	if register {
		return b.Register(ctx)
	}
	return nil
}

// Store writes the bucket's current contents to path as a JSON snapshot.
func (b *Bucket) Store(path string) error {
	data, err := json.Marshal(b.All())
	if err != nil {
		return errors.AddContext(err, "bucket: encode snapshot")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.AddContext(err, "bucket: write snapshot")
	}
	return nil
}
