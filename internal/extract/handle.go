package extract

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/klauspost/compress/zip"

	"github.com/meigma/ziptoc/internal/chain"
	"github.com/meigma/ziptoc/internal/tree"
)

// Handle is a readable, seekable view of one decompressed entry.
//
// Seeking is emulated: moving forward discards decompressed bytes, moving
// backward reopens the entry. A Handle must not be used concurrently.
type Handle struct {
	node  *tree.Node
	file  *zip.File
	chain *chain.Chain

	rc     io.ReadCloser
	rpos   int64 // offset of rc
	pos    int64 // logical offset
	closed bool
}

func (h *Handle) size() int64 {
	return int64(h.file.UncompressedSize64)
}

func (h *Handle) reopen() error {
	if err := h.closeEntry(); err != nil {
		return fmt.Errorf("%w: close entry %s: %w", ErrIO, h.file.Name, err)
	}
	rc, err := h.file.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %s: %w", ErrIO, h.file.Name, err)
	}
	h.rc = rc
	h.rpos = 0
	return nil
}

func (h *Handle) closeEntry() error {
	if h.rc == nil {
		return nil
	}
	rc := h.rc
	h.rc = nil
	return rc.Close()
}

// Read reads decompressed entry bytes from the current offset.
func (h *Handle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if h.pos >= h.size() {
		return 0, io.EOF
	}
	if h.pos < h.rpos || h.rc == nil {
		if err := h.reopen(); err != nil {
			return 0, err
		}
	}
	if skip := h.pos - h.rpos; skip > 0 {
		n, err := io.CopyN(io.Discard, h.rc, skip)
		h.rpos += n
		if err != nil {
			return 0, fmt.Errorf("%w: skip in %s: %w", ErrIO, h.file.Name, err)
		}
	}

	n, err := h.rc.Read(p)
	h.rpos += int64(n)
	h.pos += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: read %s: %w", ErrIO, h.file.Name, err)
	}
	return n, err
}

// Seek sets the offset for the next Read. Offsets past the end are allowed
// and read as EOF.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	if h.closed {
		return 0, ErrClosed
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = h.pos + offset
	case io.SeekEnd:
		pos = h.size() + offset
	default:
		return 0, fmt.Errorf("extract: invalid whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("extract: negative position %d", pos)
	}
	h.pos = pos
	return pos, nil
}

// Stat describes the entry as stored in the archive.
func (h *Handle) Stat() (fs.FileInfo, error) {
	if h.closed {
		return nil, ErrClosed
	}
	return h.file.FileInfo(), nil
}

// Metadata returns the indexed description of the entry.
func (h *Handle) Metadata() Metadata {
	return Metadata{Filename: h.node.Key, MimeType: h.node.MimeType, Size: int64(h.node.Size)}
}

// Close releases the entry, the archive reader, and the storage stream.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.chain.Close()
}
