// Package file provides a storage backend over a local directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meigma/ziptoc/storage"
)

// Backend serves objects from files under a root directory.
type Backend struct {
	root string
}

// New creates a Backend rooted at dir.
func New(dir string) (*Backend, error) {
	if dir == "" {
		return nil, errors.New("file storage: root dir is empty")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("file storage: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file storage: %s is not a directory", dir)
	}
	return &Backend{root: dir}, nil
}

// Object returns the object stored at key.
func (b *Backend) Object(key string) storage.Object {
	return &Object{backend: b, key: key}
}

// Object is a file stored under a Backend root.
type Object struct {
	backend *Backend
	key     string
}

// Key returns the object key.
func (o *Object) Key() string {
	return o.key
}

// Open opens the file for reading. The returned *os.File implements
// io.ReaderAt, so positioned reads do not disturb the stream cursor.
func (o *Object) Open(_ context.Context) (storage.Stream, error) {
	if !fs.ValidPath(o.key) {
		return nil, &fs.PathError{Op: "open", Path: o.key, Err: fs.ErrInvalid}
	}
	f, err := os.Open(filepath.Join(o.backend.root, filepath.FromSlash(o.key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotExist, o.key)
		}
		return nil, err
	}
	return f, nil
}
