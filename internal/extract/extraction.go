package extract

import (
	"errors"
	"io"
	"iter"
	"sync"

	"github.com/meigma/ziptoc/internal/chain"
)

// Extraction is a one-shot content stream with its metadata. It must be
// closed; closing before the content is drained aborts production and
// releases every resource the request acquired.
type Extraction struct {
	Metadata

	chain *chain.Chain
	chunk int

	// reader serves file content.
	reader io.Reader
	// produce writes a re-packaged directory.
	produce func(w *countWriter) error

	mu      sync.Mutex
	pr      *io.PipeReader
	done    chan struct{}
	started bool
	closed  bool
}

// Read reads the next bytes of content. For directories the archive is
// assembled in the background as Read consumes it.
func (x *Extraction) Read(p []byte) (int, error) {
	pr, err := x.source()
	if err != nil {
		return 0, err
	}
	if pr != nil {
		return pr.Read(p)
	}
	return x.reader.Read(p)
}

// source returns the pipe to read directory output from, starting the
// producer on first use. It returns nil for file content.
func (x *Extraction) source() (*io.PipeReader, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil, ErrClosed
	}
	if x.produce == nil {
		return nil, nil
	}
	if x.pr == nil {
		if x.started {
			return nil, errors.New("extract: content already written")
		}
		x.started = true
		pr, pw := io.Pipe()
		x.pr = pr
		x.done = make(chan struct{})
		go func() {
			defer close(x.done)
			pw.CloseWithError(x.produce(&countWriter{w: pw}))
		}()
	}
	return x.pr, nil
}

// WriteTo writes the remaining content to w in chunks. Directory archives
// are written straight to w without an intermediate pipe.
func (x *Extraction) WriteTo(w io.Writer) (int64, error) {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return 0, ErrClosed
	}
	if x.produce != nil && !x.started {
		x.started = true
		x.mu.Unlock()
		cw := &countWriter{w: w}
		err := x.produce(cw)
		return cw.n, err
	}
	x.mu.Unlock()
	return copyChunks(w, x, x.chunk)
}

// Chunks yields the content in chunks of the configured size; only the
// last chunk may be shorter. The yielded slice is reused between
// iterations. The extraction is closed when iteration stops.
func (x *Extraction) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer x.Close()
		buf := make([]byte, x.chunk)
		for {
			n, err := io.ReadFull(x, buf)
			if n > 0 && !yield(buf[:n], nil) {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// Close stops any background production, waits for it, and releases the
// request's resources innermost first. Close is idempotent.
func (x *Extraction) Close() error {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil
	}
	x.closed = true
	pr, done := x.pr, x.done
	x.mu.Unlock()

	if pr != nil {
		_ = pr.CloseWithError(ErrClosed)
		<-done
	}
	return x.chain.Close()
}

type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// copyChunks copies r to w through a buffer of size chunk.
func copyChunks(w io.Writer, r io.Reader, chunk int) (int64, error) {
	buf := make([]byte, chunk)
	var written int64
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if m < n {
				return written, io.ErrShortWrite
			}
		}
		if errors.Is(rerr, io.EOF) {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
