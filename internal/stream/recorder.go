// Package stream provides the byte-level stream views used to index and
// re-read archives: a Recorder that notes which bytes a format reader
// touched, and a Spliced stream that serves those bytes from memory while
// reading everything else live.
package stream

import (
	"fmt"
	"io"
	"sync"
)

// Region is a contiguous cached byte range [Min, Max) of an archive.
type Region struct {
	Min     int64
	Max     int64
	Content []byte
}

// Recorder proxies a live stream and records the lowest and highest offsets
// reached through ReadAt and Seek. Plain Read calls are not recorded.
//
// Recorder is safe for concurrent ReadAt calls.
type Recorder struct {
	live *live
	size int64

	mu       sync.Mutex
	min, max int64
	touched  bool
}

// NewRecorder wraps rs. The stream length is measured up front and the
// cursor is left at offset 0; neither seek is recorded.
func NewRecorder(rs io.ReadSeeker) (*Recorder, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("recorder: measure size: %w", err)
	}
	r := &Recorder{live: newLive(rs), size: size}
	if err := r.live.seekTo(0); err != nil {
		return nil, fmt.Errorf("recorder: rewind: %w", err)
	}
	return r, nil
}

// Size returns the length of the underlying stream.
func (r *Recorder) Size() int64 {
	return r.size
}

// ReadAt reads from the live stream and widens the recorded range to cover
// the bytes returned.
func (r *Recorder) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.live.readAt(p, off)
	if n > 0 {
		r.note(off, off+int64(n))
	}
	return n, err
}

// Seek delegates to the live stream and records the resulting position.
func (r *Recorder) Seek(offset int64, whence int) (int64, error) {
	pos, err := r.live.seek(offset, whence)
	if err != nil {
		return 0, err
	}
	r.note(pos, pos)
	return pos, nil
}

// Read delegates to the live stream.
func (r *Recorder) Read(p []byte) (int, error) {
	return r.live.read(p)
}

func (r *Recorder) note(lo, hi int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.touched {
		r.min, r.max, r.touched = lo, hi, true
		return
	}
	r.min = min(r.min, lo)
	r.max = max(r.max, hi)
}

// Range returns the recorded offsets. ok is false when nothing was touched.
func (r *Recorder) Range() (lo, hi int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.min, r.max, r.touched
}

// Region reads back the recorded range from the live stream. It returns nil
// when nothing was touched. Region moves the live cursor; the stream should
// only be closed afterwards.
func (r *Recorder) Region() (*Region, error) {
	lo, hi, ok := r.Range()
	if !ok {
		return nil, nil
	}
	hi = min(hi, r.size)
	content := make([]byte, max(hi-lo, 0))
	if n, err := r.live.readAt(content, lo); n < len(content) {
		return nil, fmt.Errorf("recorder: read region [%d, %d): %w", lo, hi, err)
	}
	return &Region{Min: lo, Max: hi, Content: content}, nil
}
