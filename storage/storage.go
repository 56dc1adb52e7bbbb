// Package storage defines the contract between the archive index engine and
// the object storage that holds archives.
//
// The engine treats [Object.Open] as its sole source of live archive bytes.
// Every call returns an independent [Stream]; closing the stream releases
// whatever the backend acquired to serve it (file descriptors, HTTP bodies,
// transactions).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotExist is returned when the requested object does not exist.
var ErrNotExist = errors.New("storage: object does not exist")

// Stream is a seekable, readable view of a stored object.
//
// Implementations may additionally implement io.ReaderAt, which lets the
// engine issue positioned reads without moving the stream cursor.
type Stream interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Object is a single stored archive.
type Object interface {
	// Key returns the storage key of the object (e.g. "records/12/data.zip").
	Key() string

	// Open acquires a new stream over the object's content.
	// The caller owns the stream and must close it.
	Open(ctx context.Context) (Stream, error)
}

// Backend resolves storage keys to objects.
type Backend interface {
	Object(key string) Object
}

// Size reports the total length of s by seeking to the end and back to the
// current position.
func Size(s io.Seeker) (int64, error) {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	return end, nil
}

// SectionStream adapts an io.ReaderAt of known size to a Stream.
// The optional closer is invoked once by Close.
type SectionStream struct {
	*io.SectionReader
	closer func() error
}

// NewSectionStream returns a Stream reading [0, size) of r.
func NewSectionStream(r io.ReaderAt, size int64, closer func() error) *SectionStream {
	return &SectionStream{
		SectionReader: io.NewSectionReader(r, 0, size),
		closer:        closer,
	}
}

// Close releases the underlying resource, if any.
func (s *SectionStream) Close() error {
	if s.closer == nil {
		return nil
	}
	closer := s.closer
	s.closer = nil
	return closer()
}
