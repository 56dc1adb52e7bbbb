package ziptoc

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/meigma/ziptoc/internal/extract"
	"github.com/meigma/ziptoc/internal/toc"
)

var (
	// ErrNotIndexable is returned for archives whose extension is not in the
	// configured formats.
	ErrNotIndexable = errors.New("ziptoc: archive format not indexable")

	// ErrNotFound is returned when an archive has no listing or a path is not
	// in it. It matches fs.ErrNotExist.
	ErrNotFound = fmt.Errorf("ziptoc: not found: %w", fs.ErrNotExist)
)

// Errors re-exported from the extraction engine.
var (
	// ErrIO is returned when storage or the archive reader fails. The cause
	// is wrapped alongside it.
	ErrIO = extract.ErrIO

	// ErrIsDirectory is returned by Open for directory paths.
	ErrIsDirectory = extract.ErrIsDirectory

	// ErrClosed is returned by reads after Close.
	ErrClosed = extract.ErrClosed
)

// Errors re-exported from the listing format.
var (
	// ErrCorruptIndex is returned when a stored listing cannot be decoded or
	// its cached bytes do not match their digest.
	ErrCorruptIndex = toc.ErrCorrupt

	// ErrStale is returned when an archive no longer matches its listing.
	ErrStale = toc.ErrStale
)
