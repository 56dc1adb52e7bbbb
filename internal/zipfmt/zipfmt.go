// Package zipfmt configures the ZIP reader and writer used for indexing and
// re-packaging, including the extra compression methods they understand.
package zipfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Method selects the compression of entries written by a Writer.
type Method string

const (
	// Deflate is the default method for re-packaged archives.
	Deflate Method = "deflate"
	// Store writes entries uncompressed.
	Store Method = "store"
	// Zstd writes entries with zstd (ZIP method 93).
	Zstd Method = "zstd"
)

// ParseMethod parses a method name. The empty string selects Deflate.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(s)) {
	case "", Deflate:
		return Deflate, nil
	case Store:
		return Store, nil
	case Zstd:
		return Zstd, nil
	default:
		return "", fmt.Errorf("zipfmt: unknown compression method %q", s)
	}
}

// id returns the ZIP method identifier.
func (m Method) id() uint16 {
	switch m {
	case Store:
		return zip.Store
	case Zstd:
		return zstd.ZipMethodWinZip
	default:
		return zip.Deflate
	}
}

// ReaderOptions bounds the resources used to decompress entries.
type ReaderOptions struct {
	// MaxDecoderMemory caps zstd decoder memory. Zero means no limit.
	MaxDecoderMemory uint64
	// Lowmem trades decode speed for lower zstd memory use.
	Lowmem bool
}

// NewReader parses the central directory of the archive in r and registers
// a zstd decompressor for method 93 entries.
func NewReader(r io.ReaderAt, size int64, opts ReaderOptions) (*zip.Reader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	dopts := []zstd.DOption{
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(opts.Lowmem),
	}
	if opts.MaxDecoderMemory > 0 {
		dopts = append(dopts, zstd.WithDecoderMaxMemory(opts.MaxDecoderMemory))
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor(dopts...))
	return zr, nil
}

// Writer streams a new archive with a fixed entry method.
type Writer struct {
	*zip.Writer
	method Method
}

// NewWriter returns a Writer producing entries compressed with method at
// level. Level follows flate levels for Deflate and zstd levels for Zstd;
// zero selects each codec's default.
func NewWriter(w io.Writer, method Method, level int) *Writer {
	zw := zip.NewWriter(w)
	switch method {
	case Deflate:
		if level == 0 {
			level = flate.DefaultCompression
		}
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	case Zstd:
		eopts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if level != 0 {
			eopts = append(eopts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(eopts...))
	}
	return &Writer{Writer: zw, method: method}
}

// CreateFrom starts an entry named name carrying the modification time of
// src, so repeated output is byte-identical.
func (w *Writer) CreateFrom(name string, src *zip.File) (io.Writer, error) {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   w.method.id(),
		Modified: src.Modified,
	}
	hdr.SetMode(0o644)
	return w.CreateHeader(hdr)
}

// IsDir reports whether f is a directory marker entry.
func IsDir(f *zip.File) bool {
	return strings.HasSuffix(f.Name, "/")
}

// Split returns the non-empty path segments of name, dropping "." segments.
func Split(name string) []string {
	parts := strings.Split(name, "/")
	out := parts[:0]
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Clean returns name with empty and "." segments removed.
func Clean(name string) string {
	return strings.Join(Split(name), "/")
}

// Files maps cleaned entry names to their file, skipping directory markers.
// The last entry wins when two names clean to the same path.
func Files(zr *zip.Reader) map[string]*zip.File {
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if IsDir(f) {
			continue
		}
		files[Clean(f.Name)] = f
	}
	return files
}
