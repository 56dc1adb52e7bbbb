package ziptoc

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meigma/ziptoc/internal/doccache"
	"github.com/meigma/ziptoc/internal/zipfmt"
)

// Option configures a Service.
type Option func(*Service) error

// Defaults applied by New.
const (
	DefaultSidecarSuffix = ".listing"
	DefaultChunkSize     = 64 << 10 // 64 KiB
)

// WithLogger sets the logger for indexing and extraction events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		s.logger = logger
		return nil
	}
}

// WithFormats sets the archive extensions that are indexed, such as ".zip".
// Matching is case-insensitive. The default is ".zip".
func WithFormats(exts ...string) Option {
	return func(s *Service) error {
		formats := make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			formats[ext] = struct{}{}
		}
		if len(formats) == 0 {
			return errors.New("ziptoc: no formats given")
		}
		s.formats = formats
		return nil
	}
}

// WithMaxEntries limits how many files a listing records. Archives with
// more files are listed as truncated. Zero disables the limit.
func WithMaxEntries(n int) Option {
	return func(s *Service) error {
		if n < 0 {
			return fmt.Errorf("ziptoc: negative max entries %d", n)
		}
		s.maxEntries = n
		return nil
	}
}

// WithPrefetch sets how many trailing bytes of an archive are fetched in one
// read before its central directory is parsed (default 64 KiB). Directories
// that extend further are fetched in one more read. A negative value reads
// the directory on demand.
func WithPrefetch(n int64) Option {
	return func(s *Service) error {
		s.prefetch = n
		return nil
	}
}

// WithChunkSize sets the unit of streamed reads and writes (default 64 KiB).
func WithChunkSize(n int) Option {
	return func(s *Service) error {
		if n <= 0 {
			return fmt.Errorf("ziptoc: invalid chunk size %d", n)
		}
		s.engine.ChunkSize = n
		return nil
	}
}

// WithCompression sets the method used for entries of extracted
// directories (default deflate).
func WithCompression(c Compression) Option {
	return func(s *Service) error {
		m, err := zipfmt.ParseMethod(string(c))
		if err != nil {
			return err
		}
		s.engine.Method = m
		return nil
	}
}

// WithCompressionLevel sets the compression level for extracted
// directories. Zero selects the method's default.
func WithCompressionLevel(level int) Option {
	return func(s *Service) error {
		s.engine.Level = level
		return nil
	}
}

// WithDocumentCache keeps up to maxEntries decoded listings in memory for
// ttl. Non-positive values select the cache defaults.
func WithDocumentCache(ttl time.Duration, maxEntries int) Option {
	return func(s *Service) error {
		s.docs = doccache.New(ttl, maxEntries)
		return nil
	}
}

// WithMaxDecoderMemory limits the memory used by the zstd decoder.
// Set limit to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(s *Service) error {
		s.engine.Reader.MaxDecoderMemory = limit
		return nil
	}
}

// WithDecoderLowmem sets whether the zstd decoder should use low-memory mode.
func WithDecoderLowmem(enabled bool) Option {
	return func(s *Service) error {
		s.engine.Reader.Lowmem = enabled
		return nil
	}
}

// WithSidecarSuffix sets the suffix appended to an archive key to name its
// listing (default ".listing").
func WithSidecarSuffix(suffix string) Option {
	return func(s *Service) error {
		if suffix == "" {
			return errors.New("ziptoc: empty sidecar suffix")
		}
		s.suffix = suffix
		return nil
	}
}
