// Package disk stores listings as files under a root directory, mirroring
// the archive key layout.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meigma/ziptoc/sidecar"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// Store implements sidecar.Store on the local filesystem.
// The store is safe for concurrent use.
type Store struct {
	dir      string      // root directory for listings
	dirPerm  os.FileMode // permissions for created directories
	filePerm os.FileMode // permissions for published listings
}

// Option configures a disk store.
type Option func(*Store)

// WithDirPerm sets the permissions used for created directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = mode
	}
}

// WithFilePerm sets the permissions of published listings.
func WithFilePerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.filePerm = mode
	}
}

// New creates a disk store rooted at dir.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("sidecar dir is empty")
	}
	s := &Store{
		dir:      dir,
		dirPerm:  defaultDirPerm,
		filePerm: defaultFilePerm,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, err
	}
	return s, nil
}

// Get opens the listing stored under name.
func (s *Store) Get(_ context.Context, name string) (io.ReadCloser, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // path is validated by fs.ValidPath
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sidecar.ErrNotExist, name)
		}
		return nil, err
	}
	return f, nil
}

// Begin starts a transaction. Staged listings live in temporary files next
// to their final location until End links them into place.
func (s *Store) Begin(_ context.Context) (sidecar.Tx, error) {
	return &tx{store: s, staged: make(map[string]string)}, nil
}

func (s *Store) path(name string) (string, error) {
	if !fs.ValidPath(name) || name == "." {
		return "", fmt.Errorf("invalid listing name %q", name)
	}
	return filepath.Join(s.dir, filepath.FromSlash(name)), nil
}

type tx struct {
	store     *Store
	done      bool
	staged    map[string]string // name -> temp file path
	committed []string
}

func (t *tx) Create(name string, r io.Reader) error {
	if t.done {
		return sidecar.ErrTxDone
	}
	path, err := t.store.path(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, t.store.dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".listing-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Chmod(t.store.filePerm); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if prev, ok := t.staged[name]; ok {
		_ = os.Remove(prev)
	}
	t.staged[name] = tmpPath
	return nil
}

func (t *tx) Commit(name string) error {
	if t.done {
		return sidecar.ErrTxDone
	}
	if _, ok := t.staged[name]; !ok {
		return fmt.Errorf("%w: %s", sidecar.ErrNotStaged, name)
	}
	for _, c := range t.committed {
		if c == name {
			return nil
		}
	}
	t.committed = append(t.committed, name)
	return nil
}

// End hard-links each committed temp file to its final path. Linking fails
// when the destination exists, so a listing is never overwritten. Listings
// published before a failure stay published.
func (t *tx) End() error {
	if t.done {
		return sidecar.ErrTxDone
	}
	t.done = true
	defer t.cleanup()

	for _, name := range t.committed {
		path, err := t.store.path(name)
		if err != nil {
			return err
		}
		if err := os.Link(t.staged[name], path); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("%w: %s", sidecar.ErrExist, name)
			}
			return fmt.Errorf("publish %s: %w", name, err)
		}
	}
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.cleanup()
	return nil
}

func (t *tx) cleanup() {
	for _, tmpPath := range t.staged {
		_ = os.Remove(tmpPath)
	}
	t.staged = nil
	t.committed = nil
}
