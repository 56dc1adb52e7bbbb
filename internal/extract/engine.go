// Package extract reads entries out of indexed archives.
//
// Every request opens the archive's live stream once, splices the cached
// central directory over it, and parses the directory from memory. Entry
// content is then read live. All handles of a request are owned by one
// chain and released together.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zip"

	"github.com/meigma/ziptoc/internal/chain"
	"github.com/meigma/ziptoc/internal/toc"
	"github.com/meigma/ziptoc/internal/tree"
	"github.com/meigma/ziptoc/internal/zipfmt"
	"github.com/meigma/ziptoc/storage"
)

var (
	// ErrIO wraps storage and format reader failures.
	ErrIO = errors.New("extract: i/o failure")

	// ErrIsDirectory is returned when random access is requested for a directory.
	ErrIsDirectory = errors.New("extract: is a directory")

	// ErrClosed is returned by reads after Close.
	ErrClosed = errors.New("extract: closed")
)

// DefaultChunkSize is the streaming chunk size used when none is set.
const DefaultChunkSize = 64 << 10

// ZipMimeType is reported for re-packaged directories.
const ZipMimeType = "application/zip"

// Options configures an Engine.
type Options struct {
	// ChunkSize is the unit of streamed reads and writes.
	ChunkSize int
	// Method and Level select the compression of re-packaged entries.
	Method zipfmt.Method
	Level  int
	// Reader bounds decompressor resources.
	Reader zipfmt.ReaderOptions
	Logger *slog.Logger
}

// Engine opens entries of indexed archives. It holds no per-request state
// and is safe for concurrent use.
type Engine struct {
	opts Options
}

// New returns an Engine.
func New(opts Options) *Engine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Method == "" {
		opts.Method = zipfmt.Deflate
	}
	return &Engine{opts: opts}
}

func (e *Engine) log() *slog.Logger {
	if e.opts.Logger != nil {
		return e.opts.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// Metadata describes extracted content.
type Metadata struct {
	// Filename is the suggested name for the content.
	Filename string
	MimeType string
	// Size is the content length, or -1 when unknown in advance.
	Size int64
}

// session is one opened archive: live stream, spliced stream, and parsed
// central directory, all owned by chain.
type session struct {
	chain *chain.Chain
	tree  *tree.Tree
	zr    *zip.Reader
	files map[string]*zip.File
}

// open acquires the archive for one request. On failure everything already
// acquired is released.
func (e *Engine) open(ctx context.Context, obj storage.Object, doc *toc.Document) (_ *session, err error) {
	s := &session{chain: chain.New(e.log().With("archive", obj.Key())), tree: doc.Tree}
	defer func() {
		if err != nil {
			_ = s.chain.Close()
		}
	}()

	live, err := obj.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, obj.Key(), err)
	}
	if err := s.chain.Push("storage stream", live); err != nil {
		return nil, err
	}

	size, err := storage.Size(live)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIO, obj.Key(), err)
	}
	if err := doc.Check(size); err != nil {
		return nil, err
	}

	sp, err := doc.Splice(live)
	if err != nil {
		return nil, err
	}
	if err := s.chain.Push("spliced stream", sp); err != nil {
		return nil, err
	}

	zr, err := zipfmt.NewReader(sp, sp.Size(), e.opts.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrIO, obj.Key(), err)
	}
	s.zr = zr
	s.files = zipfmt.Files(zr)
	if err := s.chain.PushFunc("archive reader", func() error {
		s.zr = nil
		s.files = nil
		return nil
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// file returns the archive entry backing n.
func (s *session) file(n *tree.Node) (*zip.File, error) {
	name := s.tree.ArchivePath(n)
	f, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: entry %q missing from archive", toc.ErrStale, name)
	}
	return f, nil
}

// Open returns a random-access handle on a file node.
func (e *Engine) Open(ctx context.Context, obj storage.Object, doc *toc.Document, n *tree.Node) (*Handle, error) {
	if n.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, n.FullPath)
	}
	s, err := e.open(ctx, obj, doc)
	if err != nil {
		return nil, err
	}
	f, err := s.file(n)
	if err != nil {
		_ = s.chain.Close()
		return nil, err
	}
	h := &Handle{node: n, file: f, chain: s.chain}
	if err := h.reopen(); err != nil {
		_ = s.chain.Close()
		return nil, err
	}
	if err := s.chain.PushFunc("entry", h.closeEntry); err != nil {
		return nil, err
	}
	return h, nil
}

// Extract returns the content of n as a one-shot stream: the entry bytes
// for a file, or a newly assembled archive of its files for a directory.
func (e *Engine) Extract(ctx context.Context, obj storage.Object, doc *toc.Document, n *tree.Node) (*Extraction, error) {
	if !n.IsDir() {
		h, err := e.Open(ctx, obj, doc, n)
		if err != nil {
			return nil, err
		}
		return &Extraction{
			Metadata: Metadata{Filename: n.Key, MimeType: n.MimeType, Size: int64(n.Size)},
			chain:    h.chain,
			chunk:    e.opts.ChunkSize,
			reader:   h,
		}, nil
	}

	s, err := e.open(ctx, obj, doc)
	if err != nil {
		return nil, err
	}
	return &Extraction{
		Metadata: Metadata{Filename: n.Key + ".zip", MimeType: ZipMimeType, Size: -1},
		chain:    s.chain,
		chunk:    e.opts.ChunkSize,
		produce: func(w *countWriter) error {
			return e.repack(ctx, w, s, n)
		},
	}, nil
}
