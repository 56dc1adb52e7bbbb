// Package minio provides a storage backend over an S3-compatible bucket
// using the MinIO client. Objects are read lazily: each positioned read is a
// ranged GET, so indexing and extraction only transfer the bytes they need.
package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/meigma/ziptoc/storage"
)

// ErrNoClient is returned when a backend is constructed without a client.
var ErrNoClient = errors.New("minio storage: client is nil")

// NewClient creates a MinIO client with static credentials.
func NewClient(endpoint, accessKey, secretKey string, secure bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio storage: %w", err)
	}
	return client, nil
}

// Backend resolves keys to objects in one bucket, optionally under a prefix.
type Backend struct {
	client *minio.Client
	bucket string
	prefix string
}

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix places all keys under prefix inside the bucket.
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = prefix
	}
}

// New creates a Backend for bucket.
func New(client *minio.Client, bucket string, opts ...Option) (*Backend, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if bucket == "" {
		return nil, errors.New("minio storage: bucket is empty")
	}
	b := &Backend{client: client, bucket: bucket}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Object returns the object stored at key.
func (b *Backend) Object(key string) storage.Object {
	return &Object{backend: b, key: key}
}

// objectName maps a key to the name inside the bucket.
func (b *Backend) objectName(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

// Object is an archive stored in a bucket.
type Object struct {
	backend *Backend
	key     string
}

// Key returns the object key.
func (o *Object) Key() string {
	return o.key
}

// Open returns the MinIO object handle. minio.Object implements io.ReaderAt
// and io.Seeker; it is stat'ed eagerly so a missing object fails here rather
// than on first read.
func (o *Object) Open(ctx context.Context) (storage.Stream, error) {
	name := o.backend.objectName(o.key)
	obj, err := o.backend.client.GetObject(ctx, o.backend.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, name)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, mapError(err, name)
	}
	return obj, nil
}

// mapError translates MinIO not-found responses to storage.ErrNotExist.
func mapError(err error, name string) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %s", storage.ErrNotExist, name)
	}
	return fmt.Errorf("minio storage: %s: %w", name, err)
}

// IsNotFound reports whether err is a MinIO "no such key" response.
func IsNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
