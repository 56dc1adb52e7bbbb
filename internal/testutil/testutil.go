// Package testutil provides in-memory archives and storage objects for tests.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/ziptoc/storage"
)

// Modified is the timestamp given to every fixture entry.
var Modified = time.Date(2025, 1, 2, 3, 4, 6, 0, time.UTC)

// File describes one fixture entry. Names ending in "/" are directory markers.
type File struct {
	Name    string
	Content []byte
	// Method defaults to deflate for files. Stored forces zip.Store.
	Method uint16
	Stored bool
}

// Zip builds an archive holding files in order.
func Zip(tb testing.TB, files ...File) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())
	for _, f := range files {
		method := f.Method
		switch {
		case f.Stored, strings.HasSuffix(f.Name, "/"):
			method = zip.Store
		case method == 0:
			method = zip.Deflate
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: method, Modified: Modified})
		if err != nil {
			tb.Fatalf("create %s: %v", f.Name, err)
		}
		if _, err := w.Write(f.Content); err != nil {
			tb.Fatalf("write %s: %v", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// Range is a half-open byte range read from an object.
type Range struct {
	Off, End int64
}

// Object is an in-memory storage.Object that records how it is used.
type Object struct {
	key  string
	data []byte

	// SeekOnly hides io.ReaderAt on opened streams.
	SeekOnly bool
	// OpenErr is returned by Open when set.
	OpenErr error
	// ReadErr is returned by reads reaching offset FailAt when set.
	ReadErr error
	FailAt  int64

	mu     sync.Mutex
	opens  int
	closes int
	ranges []Range
}

// NewObject returns an object holding data under key.
func NewObject(key string, data []byte) *Object {
	return &Object{key: key, data: data}
}

// Key returns the object key.
func (o *Object) Key() string {
	return o.key
}

// Bytes returns the backing data.
func (o *Object) Bytes() []byte {
	return o.data
}

// Open returns a new stream over the data.
func (o *Object) Open(_ context.Context) (storage.Stream, error) {
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	o.mu.Lock()
	o.opens++
	o.mu.Unlock()
	s := &stream{obj: o, r: bytes.NewReader(o.data)}
	if o.SeekOnly {
		return seekOnlyStream{s}, nil
	}
	return s, nil
}

// Opens returns how many streams were opened.
func (o *Object) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// Closes returns how many streams were closed.
func (o *Object) Closes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closes
}

// Ranges returns every range served, in order.
func (o *Object) Ranges() []Range {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Range(nil), o.ranges...)
}

// ResetRanges forgets recorded ranges.
func (o *Object) ResetRanges() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ranges = nil
}

func (o *Object) note(off int64, n int) {
	if n <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ranges = append(o.ranges, Range{Off: off, End: off + int64(n)})
}

// ErrStreamClosed is returned by reads on a closed fixture stream.
var ErrStreamClosed = errors.New("testutil: stream closed")

type stream struct {
	obj    *Object
	r      *bytes.Reader
	closed bool
}

func (s *stream) fail(off int64, n int) error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.obj.ReadErr != nil && off+int64(n) > s.obj.FailAt {
		return s.obj.ReadErr
	}
	return nil
}

func (s *stream) Read(p []byte) (int, error) {
	off := s.r.Size() - int64(s.r.Len())
	if err := s.fail(off, len(p)); err != nil {
		return 0, err
	}
	n, err := s.r.Read(p)
	s.obj.note(off, n)
	return n, err
}

func (s *stream) ReadAt(p []byte, off int64) (int, error) {
	if err := s.fail(off, len(p)); err != nil {
		return 0, err
	}
	n, err := s.r.ReadAt(p, off)
	s.obj.note(off, n)
	return n, err
}

func (s *stream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	return s.r.Seek(offset, whence)
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.obj.mu.Lock()
	s.obj.closes++
	s.obj.mu.Unlock()
	return nil
}

type seekOnlyStream struct {
	s *stream
}

func (s seekOnlyStream) Read(p []byte) (int, error)                { return s.s.Read(p) }
func (s seekOnlyStream) Seek(off int64, whence int) (int64, error) { return s.s.Seek(off, whence) }
func (s seekOnlyStream) Close() error                              { return s.s.Close() }

// Backend is an in-memory storage.Backend.
type Backend struct {
	mu      sync.Mutex
	objects map[string]*Object
}

// NewBackend returns a backend holding objs.
func NewBackend(objs ...*Object) *Backend {
	b := &Backend{objects: make(map[string]*Object)}
	for _, o := range objs {
		b.objects[o.key] = o
	}
	return b
}

// Put adds or replaces an object.
func (b *Backend) Put(o *Object) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[o.key] = o
}

// Object returns the object at key. Missing keys open with storage.ErrNotExist.
func (b *Backend) Object(key string) storage.Object {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.objects[key]; ok {
		return o
	}
	return &Object{key: key, OpenErr: storage.ErrNotExist}
}

// ReadAll drains r, failing the test on error.
func ReadAll(tb testing.TB, r io.Reader) []byte {
	tb.Helper()
	data, err := io.ReadAll(r)
	if err != nil {
		tb.Fatalf("read: %v", err)
	}
	return data
}
