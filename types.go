package ziptoc

import (
	"github.com/meigma/ziptoc/internal/extract"
	"github.com/meigma/ziptoc/internal/toc"
	"github.com/meigma/ziptoc/internal/tree"
	"github.com/meigma/ziptoc/internal/zipfmt"
)

// Listing is an archive's entry tree with its file count.
type Listing = toc.Listing

// Node is one file or directory in a listing.
type Node = tree.Node

// Handle is a seekable reader over one file entry.
type Handle = extract.Handle

// Extraction is a one-shot content stream with its metadata.
type Extraction = extract.Extraction

// Metadata describes extracted content.
type Metadata = extract.Metadata

// Compression selects how extracted directories are compressed.
type Compression = zipfmt.Method

// Compression methods for re-packaged directories.
const (
	CompressionDeflate = zipfmt.Deflate
	CompressionStore   = zipfmt.Store
	CompressionZstd    = zipfmt.Zstd
)

// ParseCompression parses a compression name: deflate, store, or zstd.
func ParseCompression(s string) (Compression, error) {
	return zipfmt.ParseMethod(s)
}
