package stream

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidWhence is returned by Seek for an unknown whence value.
	ErrInvalidWhence = errors.New("stream: invalid whence")

	// ErrNegativePosition is returned by Seek when the target is before offset 0.
	ErrNegativePosition = errors.New("stream: negative position")

	// ErrClosed is returned by reads after Close.
	ErrClosed = errors.New("stream: closed")
)

// Spliced is a read-only view of an archive of known size in which the
// bytes of one cached region are served from memory and every other byte is
// read from a live stream at the same absolute offset.
//
// Read and Seek share one cursor and must not be used concurrently.
// ReadAt is stateless and may be called concurrently.
type Spliced struct {
	live      *live
	headerPos int64
	header    []byte
	size      int64
	pos       int64
	closed    bool
}

// NewSpliced returns a stream of logical length size that serves
// [headerPos, headerPos+len(header)) from header and all other offsets
// from rs.
func NewSpliced(rs io.ReadSeeker, headerPos int64, header []byte, size int64) (*Spliced, error) {
	if headerPos < 0 || size < 0 || headerPos+int64(len(header)) > size {
		return nil, fmt.Errorf("stream: header [%d, %d) outside archive of size %d",
			headerPos, headerPos+int64(len(header)), size)
	}
	return &Spliced{
		live:      newLive(rs),
		headerPos: headerPos,
		header:    header,
		size:      size,
	}, nil
}

// Size returns the logical length of the stream.
func (s *Spliced) Size() int64 {
	return s.size
}

func (s *Spliced) headerEnd() int64 {
	return s.headerPos + int64(len(s.header))
}

func (s *Spliced) inHeader(off int64) bool {
	return off >= s.headerPos && off < s.headerEnd()
}

// zoneEnd returns the exclusive end of the zone containing off.
func (s *Spliced) zoneEnd(off int64) int64 {
	switch {
	case off < s.headerPos:
		return s.headerPos
	case off < s.headerEnd():
		return s.headerEnd()
	default:
		return s.size
	}
}

// Seek sets the logical cursor. END is relative to the logical size. When
// the cursor lands outside the cached region the live stream is moved to
// the same absolute offset.
func (s *Spliced) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = s.pos + offset
	case io.SeekEnd:
		pos = s.size + offset
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidWhence, whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativePosition, pos)
	}
	if !s.inHeader(pos) && pos < s.size {
		if err := s.live.seekTo(pos); err != nil {
			return 0, fmt.Errorf("stream: reposition live stream to %d: %w", pos, err)
		}
	}
	s.pos = pos
	return pos, nil
}

// Read drains zones in order from the cursor until p is full. A short live
// read ends the call early with the bytes produced so far.
func (s *Spliced) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.pos >= s.size {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && s.pos < s.size {
		chunk := p[n:min(len(p), n+int(s.zoneEnd(s.pos)-s.pos))]
		if s.inHeader(s.pos) {
			m := copy(chunk, s.header[s.pos-s.headerPos:])
			n += m
			s.pos += int64(m)
			continue
		}
		m, err := s.live.readSeq(chunk, s.pos)
		n += m
		s.pos += int64(m)
		if err != nil {
			if errors.Is(err, io.EOF) && n > 0 {
				return n, nil
			}
			return n, err
		}
		if m < len(chunk) {
			return n, nil
		}
	}
	return n, nil
}

// ReadAt fills p from logical offset off without moving the cursor.
func (s *Spliced) ReadAt(p []byte, off int64) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegativePosition, off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	want := p
	if rem := s.size - off; int64(len(p)) > rem {
		want = p[:rem]
	}
	n := 0
	for n < len(want) {
		cur := off + int64(n)
		chunk := want[n:min(len(want), n+int(s.zoneEnd(cur)-cur))]
		if s.inHeader(cur) {
			n += copy(chunk, s.header[cur-s.headerPos:])
			continue
		}
		m, err := s.live.readAt(chunk, cur)
		n += m
		if m < len(chunk) {
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			return n, err
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close detaches the live stream. It does not close it.
func (s *Spliced) Close() error {
	s.closed = true
	s.live = nil
	s.header = nil
	return nil
}
