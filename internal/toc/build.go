package toc

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/ziptoc/internal/stream"
	"github.com/meigma/ziptoc/internal/tree"
	"github.com/meigma/ziptoc/internal/zipfmt"
)

// BuildOptions configures Build.
type BuildOptions struct {
	// MaxEntries stops enumeration after this many files. Zero means no limit.
	MaxEntries int
	// Reader bounds decompressor resources.
	Reader zipfmt.ReaderOptions
	// Prefetch is the number of trailing bytes fetched in one read before
	// the central directory is parsed. Zero selects zipfmt.DefaultTail and
	// a negative value disables prefetching.
	Prefetch int64
}

// MaxPrefetch caps the bytes prefetched for a single central directory.
// Larger directories are read on demand.
const MaxPrefetch = 64 << 20

// Build parses the central directory of the archive in rs and returns its
// index document. key names the archive; its file stem names a synthesized
// root. Build reads only the bytes the format reader needs and leaves rs
// positioned arbitrarily.
func Build(ctx context.Context, rs io.ReadSeeker, key string, opts BuildOptions) (*Document, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("measure archive: %w", err)
	}
	tail := stream.NewTail(rs, size)
	if err := prefetch(tail, size, opts.Prefetch); err != nil {
		return nil, err
	}
	rec, err := stream.NewRecorder(tail)
	if err != nil {
		return nil, err
	}
	zr, err := zipfmt.NewReader(rec, rec.Size(), opts.Reader)
	if err != nil {
		return nil, fmt.Errorf("read central directory: %w", err)
	}

	b := tree.NewBuilder()
	truncated := false
	for i, f := range zr.File {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if zipfmt.IsDir(f) {
			continue
		}
		parts := zipfmt.Split(f.Name)
		if len(parts) == 0 {
			continue
		}
		if opts.MaxEntries > 0 && b.Count() >= opts.MaxEntries {
			truncated = true
			break
		}
		b.Add(parts, tree.Attrs{
			Size:           f.UncompressedSize64,
			CompressedSize: f.CompressedSize64,
			MimeType:       MimeType(parts[len(parts)-1]),
			CRC32:          f.CRC32,
		})
	}

	region, err := rec.Region()
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Tree:      b.Tree(Stem(key)),
		Total:     b.Count(),
		Truncated: truncated,
		Size:      rec.Size(),
	}
	if region != nil {
		doc.Header = &Header{
			Min:     region.Min,
			Max:     region.Max,
			Content: region.Content,
			Digest:  digest.FromBytes(region.Content),
		}
	}
	return doc, nil
}

// prefetch buffers the end of the archive so the central directory is served
// from memory. Archives the directory sizer cannot parse are left to the
// format reader, which reports the error.
func prefetch(t *stream.Tail, size, initial int64) error {
	if initial < 0 {
		return nil
	}
	if initial == 0 {
		initial = zipfmt.DefaultTail
	}
	want := initial
	// A second round covers zip64 end records found past the first tail.
	for range 3 {
		if err := t.Fill(want); err != nil {
			return err
		}
		need, err := zipfmt.DirectoryTail(t.Bytes(), size)
		if err != nil || need <= int64(len(t.Bytes())) || need > MaxPrefetch {
			return nil
		}
		want = need
	}
	return nil
}

// Stem returns the final path element of key without its extension.
func Stem(key string) string {
	base := path.Base(key)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		return "archive"
	}
	return stem
}
