// Package sidecar defines where archive listings are persisted.
//
// A listing is stored next to its archive under a derived name. Writes go
// through a short transaction: the document is staged with Create, marked
// for publication with Commit, and published by End. Publication never
// overwrites; a listing that already exists makes End fail with [ErrExist].
package sidecar

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNotExist is returned by Get when no listing is stored under the name.
	ErrNotExist = errors.New("sidecar: listing does not exist")

	// ErrExist is returned when publishing a listing that is already stored.
	ErrExist = errors.New("sidecar: listing already exists")

	// ErrTxDone is returned by operations on a finished transaction.
	ErrTxDone = errors.New("sidecar: transaction already finished")

	// ErrNotStaged is returned by Commit for a name that was never created.
	ErrNotStaged = errors.New("sidecar: listing not staged")
)

// Store persists listings.
type Store interface {
	// Get opens the listing stored under name.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Begin starts a write transaction.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a write transaction against a Store.
//
// Exactly one of End or Rollback finishes a transaction; later calls return
// ErrTxDone, except Rollback which is a no-op after End.
type Tx interface {
	// Create stages the content of r under name.
	Create(name string, r io.Reader) error

	// Commit marks a staged name for publication.
	Commit(name string) error

	// End publishes every committed name.
	End() error

	// Rollback discards everything staged.
	Rollback() error
}

// InTx runs fn inside a transaction on s. The transaction is ended when fn
// returns nil and rolled back when fn fails or panics.
func InTx(ctx context.Context, s Store, fn func(Tx) error) (err error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.End()
}

// Name returns the listing name for an archive key.
func Name(key, suffix string) string {
	return key + suffix
}

// Staging tracks created and committed names for in-process transactions.
// Store implementations embed it and publish the committed entries in End.
type Staging struct {
	done      bool
	staged    map[string][]byte
	committed []string
}

// Stage records content for name.
func (s *Staging) Stage(name string, r io.Reader) error {
	if s.done {
		return ErrTxDone
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	if s.staged == nil {
		s.staged = make(map[string][]byte)
	}
	s.staged[name] = data
	return nil
}

// Mark marks a staged name for publication.
func (s *Staging) Mark(name string) error {
	if s.done {
		return ErrTxDone
	}
	if _, ok := s.staged[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotStaged, name)
	}
	for _, c := range s.committed {
		if c == name {
			return nil
		}
	}
	s.committed = append(s.committed, name)
	return nil
}

// Finish returns the committed entries in commit order and closes the
// staging area. It returns ErrTxDone when already finished.
func (s *Staging) Finish() ([]Entry, error) {
	if s.done {
		return nil, ErrTxDone
	}
	s.done = true
	entries := make([]Entry, 0, len(s.committed))
	for _, name := range s.committed {
		entries = append(entries, Entry{Name: name, Data: s.staged[name]})
	}
	s.staged = nil
	s.committed = nil
	return entries, nil
}

// Discard drops everything staged. It is a no-op when already finished.
func (s *Staging) Discard() {
	s.done = true
	s.staged = nil
	s.committed = nil
}

// Entry is a committed listing awaiting publication.
type Entry struct {
	Name string
	Data []byte
}
