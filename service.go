package ziptoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/ziptoc/internal/doccache"
	"github.com/meigma/ziptoc/internal/extract"
	"github.com/meigma/ziptoc/internal/toc"
	"github.com/meigma/ziptoc/internal/tree"
	"github.com/meigma/ziptoc/sidecar"
	"github.com/meigma/ziptoc/storage"
)

// Service indexes archives in a storage backend and serves listings and
// extractions from the stored indexes.
//
// A Service is safe for concurrent use. Each request opens its own storage
// stream and shares nothing with other requests except the optional
// listing cache.
type Service struct {
	backend storage.Backend
	store   sidecar.Store

	logger     *slog.Logger
	formats    map[string]struct{}
	maxEntries int
	prefetch   int64
	suffix     string
	docs       *doccache.Cache // nil disables caching

	engine  extract.Options
	extract *extract.Engine

	indexing singleflight.Group
	async    sync.WaitGroup
}

// New creates a Service reading archives from backend and keeping their
// listings in store.
func New(backend storage.Backend, store sidecar.Store, opts ...Option) (*Service, error) {
	if backend == nil {
		return nil, errors.New("ziptoc: storage backend is nil")
	}
	if store == nil {
		return nil, errors.New("ziptoc: sidecar store is nil")
	}
	s := &Service{
		backend: backend,
		store:   store,
		formats: map[string]struct{}{".zip": {}},
		suffix:  DefaultSidecarSuffix,
		engine:  extract.Options{ChunkSize: DefaultChunkSize},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.engine.Logger = s.logger
	s.extract = extract.New(s.engine)
	return s, nil
}

func (s *Service) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// CanProcess reports whether key has one of the configured extensions.
func (s *Service) CanProcess(key string) bool {
	_, ok := s.formats[strings.ToLower(path.Ext(key))]
	return ok
}

// SidecarName returns the name under which the listing of key is stored.
func (s *Service) SidecarName(key string) string {
	return sidecar.Name(key, s.suffix)
}

// Index builds and stores the listing of the archive at key unless one
// already exists.
//
// Indexing is best effort. Failures to read the archive or to store the
// listing are logged and absorbed; the archive then stays unindexed and
// a later call retries. The only error returned is [ErrNotIndexable].
// Concurrent calls for the same key in this process share one attempt.
func (s *Service) Index(ctx context.Context, key string) error {
	if !s.CanProcess(key) {
		return fmt.Errorf("%w: %s", ErrNotIndexable, key)
	}
	_, _, _ = s.indexing.Do(key, func() (any, error) {
		s.index(ctx, key)
		return nil, nil
	})
	return nil
}

// IndexAsync starts Index in the background and returns at once. The
// background work is not cancelled with ctx. Use Wait to block until
// all started indexing has finished.
func (s *Service) IndexAsync(ctx context.Context, key string) error {
	if !s.CanProcess(key) {
		return fmt.Errorf("%w: %s", ErrNotIndexable, key)
	}
	ctx = context.WithoutCancel(ctx)
	s.async.Add(1)
	go func() {
		defer s.async.Done()
		_ = s.Index(ctx, key)
	}()
	return nil
}

// Wait blocks until every IndexAsync call has finished.
func (s *Service) Wait() {
	s.async.Wait()
}

// index runs the read phase outside any transaction, then stores the
// result in one short transaction.
func (s *Service) index(ctx context.Context, key string) {
	name := s.SidecarName(key)
	log := s.log().With("archive", key, "sidecar", name)

	exists, err := s.exists(ctx, name)
	if err != nil {
		log.Error("indexing failed", "error", err)
		return
	}
	if exists {
		log.Debug("archive already indexed")
		return
	}

	doc, err := s.build(ctx, key)
	if err != nil {
		log.Error("indexing failed", "error", err)
		return
	}
	data, err := toc.Marshal(doc)
	if err != nil {
		log.Error("indexing failed", "error", err)
		return
	}

	err = sidecar.InTx(ctx, s.store, func(tx sidecar.Tx) error {
		if err := tx.Create(name, bytes.NewReader(data)); err != nil {
			return err
		}
		return tx.Commit(name)
	})
	switch {
	case errors.Is(err, sidecar.ErrExist):
		log.Warn("listing written concurrently", "error", err)
		return
	case err != nil:
		log.Error("failed to store listing", "error", err)
		return
	}

	if s.docs != nil {
		s.docs.Set(key, doc)
	}
	log.Info("indexed archive", "entries", doc.Total, "truncated", doc.Truncated)
}

func (s *Service) exists(ctx context.Context, name string) (bool, error) {
	rc, err := s.store.Get(ctx, name)
	if errors.Is(err, sidecar.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check listing: %w", err)
	}
	_ = rc.Close()
	return true, nil
}

func (s *Service) build(ctx context.Context, key string) (*toc.Document, error) {
	stream, err := s.backend.Object(key).Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer stream.Close()

	doc, err := toc.Build(ctx, stream, key, toc.BuildOptions{
		MaxEntries: s.maxEntries,
		Reader:     s.engine.Reader,
		Prefetch:   s.prefetch,
	})
	if err != nil {
		return nil, fmt.Errorf("build listing: %w", err)
	}
	return doc, nil
}

// List returns the listing of the archive at key.
func (s *Service) List(ctx context.Context, key string) (*Listing, error) {
	doc, err := s.document(ctx, "list", key)
	if err != nil {
		return nil, err
	}
	return doc.Listing(), nil
}

// Stat returns the node at path in the archive at key.
func (s *Service) Stat(ctx context.Context, key, name string) (*Node, error) {
	_, n, err := s.locate(ctx, "stat", key, name)
	return n, err
}

// Open returns a seekable reader over the file at path in the archive at
// key. Directories return [ErrIsDirectory]. The handle must be closed.
func (s *Service) Open(ctx context.Context, key, name string) (*Handle, error) {
	doc, n, err := s.locate(ctx, "open", key, name)
	if err != nil {
		return nil, err
	}
	h, err := s.extract.Open(ctx, s.backend.Object(key), doc, n)
	if err != nil {
		return nil, s.requestError("open", key, name, err)
	}
	return h, nil
}

// Extract returns the content at path in the archive at key: the file's
// bytes, or for a directory a new ZIP archive of every file below it named
// relative to it. The extraction must be closed.
func (s *Service) Extract(ctx context.Context, key, name string) (*Extraction, error) {
	doc, n, err := s.locate(ctx, "extract", key, name)
	if err != nil {
		return nil, err
	}
	x, err := s.extract.Extract(ctx, s.backend.Object(key), doc, n)
	if err != nil {
		return nil, s.requestError("extract", key, name, err)
	}
	return x, nil
}

// Invalidate drops the cached listing of key, if any. Stored listings are
// not touched.
func (s *Service) Invalidate(key string) {
	if s.docs != nil {
		s.docs.Invalidate(key)
	}
}

func (s *Service) locate(ctx context.Context, op, key, name string) (*toc.Document, *tree.Node, error) {
	doc, err := s.document(ctx, op, key)
	if err != nil {
		return nil, nil, err
	}
	n, err := doc.Tree.Locate(name)
	if errors.Is(err, tree.ErrNotFound) {
		return nil, nil, &fs.PathError{Op: op, Path: key + ":" + name, Err: ErrNotFound}
	}
	if err != nil {
		return nil, nil, err
	}
	return doc, n, nil
}

// document loads the listing of key, from the cache when enabled.
func (s *Service) document(ctx context.Context, op, key string) (*toc.Document, error) {
	if !s.CanProcess(key) {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexable, key)
	}
	if s.docs == nil {
		return s.load(ctx, op, key)
	}
	if doc, ok := s.docs.Get(key); ok {
		s.log().Debug("listing cache hit", "archive", key)
		return doc, nil
	}
	s.log().Debug("listing cache miss", "archive", key)
	return s.docs.Load(ctx, key, func(ctx context.Context) (*toc.Document, error) {
		return s.load(ctx, op, key)
	})
}

func (s *Service) load(ctx context.Context, op, key string) (*toc.Document, error) {
	name := s.SidecarName(key)
	rc, err := s.store.Get(ctx, name)
	if errors.Is(err, sidecar.ErrNotExist) {
		return nil, &fs.PathError{Op: op, Path: key, Err: ErrNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read listing %s: %w", ErrIO, name, err)
	}
	defer rc.Close()

	doc, err := toc.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", name, err)
	}
	return doc, nil
}

// requestError classifies an engine failure. A stale listing is dropped from
// the cache so the next request rereads it.
func (s *Service) requestError(op, key, name string, err error) error {
	switch {
	case errors.Is(err, toc.ErrStale):
		s.Invalidate(key)
		s.log().Warn("archive changed since indexing", "archive", key, "error", err)
	case errors.Is(err, storage.ErrNotExist):
		return &fs.PathError{Op: op, Path: key, Err: fmt.Errorf("%w: %w", ErrNotFound, err)}
	}
	return &fs.PathError{Op: op, Path: key + ":" + name, Err: err}
}
