// Package s3backend implements backend.Backend against an S3-compatible
// bucket using the AWS SDK v2, including presigned GET URLs so the HTTP
// file server can 302-redirect readers straight to S3 instead of
// proxying the bytes itself.
package s3backend

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gitlab.com/vycodi/vycodi/backend"
)

// Backend serves and accepts files in a single S3 bucket, with keys
// taken verbatim from the caller.
type Backend struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// New returns a Backend for bucket using cfg, an aws.Config typically
// built with config.LoadDefaultConfig.
func New(cfg aws.Config, bucket string) *Backend {
	client := s3.NewFromConfig(cfg)
	return &Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}
}

// NewFromEnv loads the default AWS config chain (environment, shared
// config, instance role) and returns a Backend for bucket.
func NewFromEnv(ctx context.Context, bucket string) (*Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return New(cfg, bucket), nil
}

// OpenR implements backend.Backend.
func (b *Backend) OpenR(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &backend.Error{Op: "openR", Key: key, Err: err}
	}
	return out.Body, nil
}

// OpenW implements backend.Backend. S3 has no streaming write handle,
// so the returned writer buffers in memory and performs a single
// PutObject when closed.
func (b *Backend) OpenW(ctx context.Context, key string, contentLength int64) (io.WriteCloser, error) {
	return &s3Writer{ctx: ctx, backend: b, key: key, buf: make([]byte, 0, contentLength)}, nil
}

type s3Writer struct {
	ctx     context.Context
	backend *Backend
	key     string
	buf     []byte
}

func (w *s3Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *s3Writer) Close() error {
	_, err := w.backend.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.backend.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf),
	})
	if err != nil {
		return &backend.Error{Op: "openW", Key: w.key, Err: err}
	}
	return nil
}

// GenReadURL implements backend.Backend, returning an S3 presigned GET
// URL valid for expires.
func (b *Backend) GenReadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", &backend.Error{Op: "genReadURL", Key: key, Err: err}
	}
	return req.URL, nil
}

// Size implements backend.Backend.
func (b *Backend) Size(ctx context.Context, key string) (int64, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, &backend.Error{Op: "size", Key: key, Err: err}
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

// ContentType implements backend.Backend.
func (b *Backend) ContentType(ctx context.Context, key string) (string, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", &backend.Error{Op: "contentType", Key: key, Err: err}
	}
	if out.ContentType == nil {
		return "application/octet-stream", nil
	}
	return *out.ContentType, nil
}

// LastModified implements backend.Backend.
func (b *Backend) LastModified(ctx context.Context, key string) (time.Time, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return time.Time{}, &backend.Error{Op: "lastModified", Key: key, Err: err}
	}
	if out.LastModified == nil {
		return time.Time{}, nil
	}
	return *out.LastModified, nil
}

var _ backend.Backend = (*Backend)(nil)
