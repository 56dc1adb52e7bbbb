package extract

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"

	"github.com/meigma/ziptoc/internal/tree"
	"github.com/meigma/ziptoc/internal/zipfmt"
)

// repack writes a new archive to w holding every file under dir, named
// relative to dir, in tree order. Entries are copied one chunk at a time so
// memory use is bounded by the chunk size and the codecs' windows.
func (e *Engine) repack(ctx context.Context, w io.Writer, s *session, dir *tree.Node) error {
	zw := zipfmt.NewWriter(w, e.opts.Method, e.opts.Level)
	buf := make([]byte, e.opts.ChunkSize)
	count := 0
	for n := range dir.Files() {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := s.file(n)
		if err != nil {
			return err
		}
		name := tree.Relative(dir, n)
		out, err := zw.CreateFrom(name, f)
		if err != nil {
			return fmt.Errorf("write header %s: %w", name, err)
		}
		if err := copyEntry(out, f, buf); err != nil {
			return err
		}
		count++
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	e.log().Debug("repacked directory", "path", dir.FullPath, "entries", count)
	return nil
}

// copyEntry streams the decompressed content of f into w through buf.
func copyEntry(w io.Writer, f *zip.File, buf []byte) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open entry %s: %w", ErrIO, f.Name, err)
	}
	defer rc.Close()
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write %s: %w", f.Name, werr)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("%w: read entry %s: %w", ErrIO, f.Name, rerr)
		}
	}
}
