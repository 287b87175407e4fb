// Package fsbackend implements backend.Backend over the local
// filesystem, rooted at a single directory. It never generates a
// presigned read URL, so the HTTP file server always streams the file
// itself for this backend.
package fsbackend

import (
	"context"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gitlab.com/vycodi/vycodi/backend"
)

// Backend serves and accepts files rooted under Dir. Keys are joined
// onto Dir with filepath.Join and never allowed to escape it.
type Backend struct {
	Dir string
}

// New returns a Backend rooted at dir. dir must already exist.
func New(dir string) *Backend {
	return &Backend{Dir: dir}
}

func (b *Backend) path(key string) (string, error) {
	full := filepath.Join(b.Dir, filepath.Clean("/"+key))
	rel, err := filepath.Rel(b.Dir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", &backend.Error{Op: "path", Key: key, Err: os.ErrInvalid}
	}
	return full, nil
}

// OpenR implements backend.Backend.
func (b *Backend) OpenR(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &backend.Error{Op: "openR", Key: key, Err: err}
	}
	return f, nil
}

// OpenW implements backend.Backend. contentLength is unused; the
// filesystem needs no upfront size hint.
func (b *Backend) OpenW(ctx context.Context, key string, contentLength int64) (io.WriteCloser, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &backend.Error{Op: "openW", Key: key, Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, &backend.Error{Op: "openW", Key: key, Err: err}
	}
	return f, nil
}

// GenReadURL implements backend.Backend. The filesystem backend has no
// presigning capability, so it always returns "".
func (b *Backend) GenReadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "", nil
}

// Size implements backend.Backend.
func (b *Backend) Size(ctx context.Context, key string) (int64, error) {
	path, err := b.path(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, &backend.Error{Op: "size", Key: key, Err: err}
	}
	return info.Size(), nil
}

// ContentType implements backend.Backend, guessing from the key's
// extension.
func (b *Backend) ContentType(ctx context.Context, key string) (string, error) {
	ct := mime.TypeByExtension(filepath.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return ct, nil
}

// LastModified implements backend.Backend.
func (b *Backend) LastModified(ctx context.Context, key string) (time.Time, error) {
	path, err := b.path(key)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, &backend.Error{Op: "lastModified", Key: key, Err: err}
	}
	return info.ModTime(), nil
}

var _ backend.Backend = (*Backend)(nil)
