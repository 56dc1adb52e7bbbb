// Package toc defines the persisted archive index and builds it.
//
// The document holds the entry tree, the entry count, and the cached bytes
// of the archive's central directory. The cached bytes are enough to reparse
// the directory without touching storage; entry content is still read live.
package toc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/ziptoc/internal/stream"
	"github.com/meigma/ziptoc/internal/tree"
)

var (
	// ErrCorrupt is returned when a document cannot be decoded or fails
	// validation.
	ErrCorrupt = errors.New("toc: corrupt index document")

	// ErrStale is returned when the archive no longer matches its index.
	ErrStale = errors.New("toc: archive changed since indexing")
)

// Header is the cached region [Min, Max) of the archive.
type Header struct {
	Min     int64
	Max     int64
	Content []byte
	Digest  digest.Digest
}

// Document is the persisted index of one archive.
type Document struct {
	Tree      *tree.Tree
	Total     int
	Truncated bool
	// Size is the archive length at indexing time.
	Size int64
	// Header is nil when indexing touched no bytes.
	Header *Header
}

// Listing is the caller-facing view of a document, without cached bytes.
type Listing struct {
	Entries   []*tree.Node `json:"entries"`
	Total     int          `json:"total"`
	Truncated bool         `json:"truncated"`
}

// Listing returns the document without its cached header.
func (d *Document) Listing() *Listing {
	return &Listing{
		Entries:   []*tree.Node{d.Tree.Root},
		Total:     d.Total,
		Truncated: d.Truncated,
	}
}

// Splice returns a stream over the live archive rs that serves the cached
// header from memory.
func (d *Document) Splice(rs io.ReadSeeker) (*stream.Spliced, error) {
	if d.Header == nil {
		return stream.NewSpliced(rs, 0, nil, d.Size)
	}
	return stream.NewSpliced(rs, d.Header.Min, d.Header.Content, d.Size)
}

// Check returns ErrStale when size differs from the indexed archive size.
func (d *Document) Check(size int64) error {
	if size != d.Size {
		return fmt.Errorf("%w: size %d, indexed %d", ErrStale, size, d.Size)
	}
	return nil
}

type documentJSON struct {
	Entries   []*tree.Node `json:"entries"`
	Synthetic bool         `json:"synthetic,omitempty"`
	Total     int          `json:"total"`
	Truncated bool         `json:"truncated"`
	Size      int64        `json:"size"`
	TOC       headerJSON   `json:"toc"`
}

type headerJSON struct {
	Content   []byte        `json:"content"`
	MinOffset *int64        `json:"min_offset"`
	MaxOffset *int64        `json:"max_offset,omitempty"`
	Digest    digest.Digest `json:"digest,omitempty"`
}

// MarshalJSON encodes the persisted form.
func (d *Document) MarshalJSON() ([]byte, error) {
	v := documentJSON{
		Entries:   []*tree.Node{d.Tree.Root},
		Synthetic: d.Tree.Synthetic,
		Total:     d.Total,
		Truncated: d.Truncated,
		Size:      d.Size,
		TOC:       headerJSON{Content: []byte{}},
	}
	if h := d.Header; h != nil {
		v.TOC = headerJSON{
			Content:   h.Content,
			MinOffset: &h.Min,
			MaxOffset: &h.Max,
			Digest:    h.Digest,
		}
	}
	return json.Marshal(v)
}

// Encode writes d as indented JSON.
func Encode(w io.Writer, d *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Marshal returns the encoded document.
func Marshal(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads and validates a document.
func Decode(r io.Reader) (*Document, error) {
	var v documentJSON
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(v.Entries) != 1 || v.Entries[0] == nil || !v.Entries[0].IsDir() {
		return nil, fmt.Errorf("%w: want exactly one root directory", ErrCorrupt)
	}
	if v.Total < 0 || v.Size < 0 {
		return nil, fmt.Errorf("%w: negative total or size", ErrCorrupt)
	}
	d := &Document{
		Tree:      &tree.Tree{Root: v.Entries[0], Synthetic: v.Synthetic},
		Total:     v.Total,
		Truncated: v.Truncated,
		Size:      v.Size,
	}
	if v.TOC.MinOffset == nil {
		if len(v.TOC.Content) != 0 {
			return nil, fmt.Errorf("%w: header content without offset", ErrCorrupt)
		}
		return d, nil
	}

	h := &Header{Min: *v.TOC.MinOffset, Content: v.TOC.Content, Digest: v.TOC.Digest}
	h.Max = h.Min + int64(len(h.Content))
	if v.TOC.MaxOffset != nil && *v.TOC.MaxOffset != h.Max {
		return nil, fmt.Errorf("%w: header spans [%d, %d) but holds %d bytes", ErrCorrupt, h.Min, *v.TOC.MaxOffset, len(h.Content))
	}
	if h.Min < 0 || h.Max > d.Size {
		return nil, fmt.Errorf("%w: header [%d, %d) outside archive of size %d", ErrCorrupt, h.Min, h.Max, d.Size)
	}
	if h.Digest != "" {
		if err := h.Digest.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if got := h.Digest.Algorithm().FromBytes(h.Content); got != h.Digest {
			return nil, fmt.Errorf("%w: header digest %s, want %s", ErrCorrupt, got, h.Digest)
		}
	}
	d.Header = h
	return d, nil
}
