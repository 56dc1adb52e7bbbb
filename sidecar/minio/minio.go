// Package minio stores listings as objects in an S3-compatible bucket.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"

	"github.com/meigma/ziptoc/sidecar"
	miniostorage "github.com/meigma/ziptoc/storage/minio"
)

const contentType = "application/json"

// Store implements sidecar.Store on a bucket.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix places listings under prefix inside the bucket.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Store writing to bucket.
func New(client *minio.Client, bucket string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, miniostorage.ErrNoClient
	}
	if bucket == "" {
		return nil, errors.New("minio sidecar: bucket is empty")
	}
	s := &Store{client: client, bucket: bucket}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) objectName(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Get opens the listing object.
func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(err, name)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, s.mapError(err, name)
	}
	return obj, nil
}

// Begin starts a transaction. Listings are buffered in memory and uploaded
// by End.
func (s *Store) Begin(ctx context.Context) (sidecar.Tx, error) {
	return &tx{ctx: ctx, store: s}, nil
}

func (s *Store) mapError(err error, name string) error {
	if miniostorage.IsNotFound(err) {
		return fmt.Errorf("%w: %s", sidecar.ErrNotExist, name)
	}
	return fmt.Errorf("minio sidecar: %s: %w", name, err)
}

type tx struct {
	ctx   context.Context
	store *Store
	sidecar.Staging
}

func (t *tx) Create(name string, r io.Reader) error {
	return t.Stage(name, r)
}

func (t *tx) Commit(name string) error {
	return t.Mark(name)
}

// End uploads committed listings that do not exist yet. The existence check
// and the upload are not atomic; a concurrent writer may still win the race,
// in which case both uploads carry equivalent content.
func (t *tx) End() error {
	entries, err := t.Finish()
	if err != nil {
		return err
	}
	s := t.store
	for _, e := range entries {
		objName := s.objectName(e.Name)
		_, err := s.client.StatObject(t.ctx, s.bucket, objName, minio.StatObjectOptions{})
		if err == nil {
			return fmt.Errorf("%w: %s", sidecar.ErrExist, e.Name)
		}
		if !miniostorage.IsNotFound(err) {
			return s.mapError(err, e.Name)
		}
		_, err = s.client.PutObject(t.ctx, s.bucket, objName, bytes.NewReader(e.Data), int64(len(e.Data)),
			minio.PutObjectOptions{ContentType: contentType})
		if err != nil {
			return s.mapError(err, e.Name)
		}
	}
	return nil
}

func (t *tx) Rollback() error {
	t.Discard()
	return nil
}
