// Package memory provides an in-process sidecar store.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/meigma/ziptoc/sidecar"
)

// Store keeps listings in a map. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	listings map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{listings: make(map[string][]byte)}
}

// Get returns a reader over the stored listing.
func (s *Store) Get(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.listings[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", sidecar.ErrNotExist, name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Len returns the number of stored listings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listings)
}

// Begin starts a transaction.
func (s *Store) Begin(_ context.Context) (sidecar.Tx, error) {
	return &tx{store: s}, nil
}

type tx struct {
	store *Store
	sidecar.Staging
}

func (t *tx) Create(name string, r io.Reader) error {
	return t.Stage(name, r)
}

func (t *tx) Commit(name string) error {
	return t.Mark(name)
}

// End publishes all committed listings or none of them.
func (t *tx) End() error {
	entries, err := t.Finish()
	if err != nil {
		return err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, e := range entries {
		if _, ok := t.store.listings[e.Name]; ok {
			return fmt.Errorf("%w: %s", sidecar.ErrExist, e.Name)
		}
	}
	for _, e := range entries {
		t.store.listings[e.Name] = e.Data
	}
	return nil
}

func (t *tx) Rollback() error {
	t.Discard()
	return nil
}
