package stream

import (
	"fmt"
	"io"
)

// Tail is a stream whose last bytes are held in memory. Positioned reads at
// or past the buffered start are served from the buffer; everything else is
// forwarded to the wrapped stream.
type Tail struct {
	live  *live
	size  int64
	start int64
	buf   []byte
}

// NewTail wraps rs, whose total length is size. Nothing is buffered until
// Fill is called.
func NewTail(rs io.ReadSeeker, size int64) *Tail {
	return &Tail{live: newLive(rs), size: size, start: size}
}

// Fill buffers the last n bytes of the stream, clamped to its length.
// Filling less than is already buffered is a no-op.
func (t *Tail) Fill(n int64) error {
	n = min(max(n, 0), t.size)
	if n <= int64(len(t.buf)) {
		return nil
	}
	buf := make([]byte, n)
	start := t.size - n
	if got, err := t.live.readAt(buf, start); int64(got) < n {
		return fmt.Errorf("tail: read [%d, %d): %w", start, t.size, err)
	}
	t.buf, t.start = buf, start
	return nil
}

// Bytes returns the buffered tail.
func (t *Tail) Bytes() []byte {
	return t.buf
}

// ReadAt reads from the buffer where it can and from the stream before it.
func (t *Tail) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("tail: negative offset %d", off)
	}
	n := 0
	if off < t.start {
		head := p[:min(int64(len(p)), t.start-off)]
		got, err := t.live.readAt(head, off)
		n += got
		if got < len(head) {
			return n, err
		}
		off += int64(got)
		p = p[got:]
		if len(p) == 0 {
			return n, nil
		}
	}
	if off >= t.size {
		return n, io.EOF
	}
	got := copy(p, t.buf[off-t.start:])
	n += got
	if got < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Read reads from the stream cursor.
func (t *Tail) Read(p []byte) (int, error) {
	return t.live.read(p)
}

// Seek moves the stream cursor.
func (t *Tail) Seek(offset int64, whence int) (int64, error) {
	return t.live.seek(offset, whence)
}
