// Package backend abstracts the storage a file's bytes actually live
// on, so httpfile's server can serve a file without caring whether it
// sits on local disk or in an S3 bucket. Two implementations are
// provided: fsbackend for local files and s3backend for S3-compatible
// object storage with presigned GET URLs.
package backend

import (
	"context"
	"io"
	"time"
)

// Backend is the per-file storage surface the HTTP file server and the
// upload path need. GenReadURL returning a non-empty URL and nil error
// means the server should 302-redirect instead of streaming the file
// itself, the behaviour S3 presigning exists for.
type Backend interface {
	// OpenR opens key for reading.
	OpenR(ctx context.Context, key string) (io.ReadCloser, error)
	// OpenW opens key for writing, truncating any existing content.
	// contentLength is a hint some backends (S3) require up front.
	OpenW(ctx context.Context, key string, contentLength int64) (io.WriteCloser, error)
	// GenReadURL returns a presigned, time-limited URL serving key
	// directly from the backend, or "" if the backend has no such
	// capability and the server should stream the file itself.
	GenReadURL(ctx context.Context, key string, expires time.Duration) (string, error)
	// Size returns the current size in bytes of key.
	Size(ctx context.Context, key string) (int64, error)
	// ContentType returns the MIME type key should be served as.
	ContentType(ctx context.Context, key string) (string, error)
	// LastModified returns key's last modification time.
	LastModified(ctx context.Context, key string) (time.Time, error)
}

// Error wraps a backend-specific failure so callers can distinguish it
// from a usage error without caring which concrete backend raised it.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string { return "backend: " + e.Op + " " + e.Key + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
