package stream

import (
	"errors"
	"io"
	"sync"
)

// live serializes access to a backing stream and tracks its cursor so
// sequential reads only seek when the requested offset moved.
type live struct {
	mu  sync.Mutex
	rs  io.ReadSeeker
	ra  io.ReaderAt // nil when rs has no native positioned reads
	pos int64       // -1 when unknown
}

func newLive(rs io.ReadSeeker) *live {
	l := &live{rs: rs, pos: -1}
	if ra, ok := rs.(io.ReaderAt); ok {
		l.ra = ra
	}
	return l
}

// seek moves the backing cursor relative to whence and returns the result.
func (l *live) seek(offset int64, whence int) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, err := l.rs.Seek(offset, whence)
	if err != nil {
		l.pos = -1
		return 0, err
	}
	l.pos = pos
	return pos, nil
}

// seekTo positions the backing cursor at off unless it is already there.
func (l *live) seekTo(off int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seekToLocked(off)
}

func (l *live) seekToLocked(off int64) error {
	if l.pos == off {
		return nil
	}
	if _, err := l.rs.Seek(off, io.SeekStart); err != nil {
		l.pos = -1
		return err
	}
	l.pos = off
	return nil
}

// readSeq performs one Read at off. It may return fewer bytes than asked.
func (l *live) readSeq(p []byte, off int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.seekToLocked(off); err != nil {
		return 0, err
	}
	n, err := l.rs.Read(p)
	l.pos += int64(n)
	return n, err
}

// read performs one Read at the current cursor.
func (l *live) read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := l.rs.Read(p)
	if l.pos >= 0 {
		l.pos += int64(n)
	}
	return n, err
}

// readAt fills p from off, following io.ReaderAt semantics.
func (l *live) readAt(p []byte, off int64) (int, error) {
	if l.ra != nil {
		return l.ra.ReadAt(p, off)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.seekToLocked(off); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(l.rs, p)
	l.pos += int64(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

// ReaderAt returns rs as an io.ReaderAt. Streams without native positioned
// reads are adapted with a locked seek-then-read; the adapter moves the
// stream cursor and must be the stream's only user.
func ReaderAt(rs io.ReadSeeker) io.ReaderAt {
	if ra, ok := rs.(io.ReaderAt); ok {
		return ra
	}
	return readerAtFunc(newLive(rs).readAt)
}

type readerAtFunc func(p []byte, off int64) (int, error)

func (f readerAtFunc) ReadAt(p []byte, off int64) (int, error) {
	return f(p, off)
}
