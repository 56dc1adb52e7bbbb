// Package chain releases nested resources in reverse acquisition order.
package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

type link struct {
	name   string
	closer io.Closer
}

// Chain owns a stack of resources where each one holds a view into the one
// acquired before it. Close releases them innermost first, continuing past
// failures. Chain is safe for concurrent use.
type Chain struct {
	mu     sync.Mutex
	links  []link
	closed bool
	logger *slog.Logger
}

// New returns an empty chain logging release failures to logger.
func New(logger *slog.Logger) *Chain {
	return &Chain{logger: logger}
}

func (c *Chain) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Push takes ownership of closer. Pushing onto a closed chain closes the
// resource immediately and returns an error.
func (c *Chain) Push(name string, closer io.Closer) error {
	c.mu.Lock()
	if !c.closed {
		c.links = append(c.links, link{name: name, closer: closer})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	if err := closer.Close(); err != nil {
		c.log().Warn("release failed", "resource", name, "error", err)
	}
	return fmt.Errorf("chain: push %s: chain is closed", name)
}

// PushFunc is Push for a release function.
func (c *Chain) PushFunc(name string, release func() error) error {
	return c.Push(name, closerFunc(release))
}

// Len returns the number of resources still held.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.links)
}

// Close releases every resource, last pushed first. Each failure is logged
// and the remaining resources are still released; the joined failures are
// returned. Subsequent calls return nil.
func (c *Chain) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	links := c.links
	c.links = nil
	c.mu.Unlock()

	var errs []error
	for i := len(links) - 1; i >= 0; i-- {
		if err := release(links[i]); err != nil {
			c.log().LogAttrs(context.Background(), slog.LevelWarn, "release failed",
				slog.String("resource", links[i].name), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("release %s: %w", links[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// release closes l, converting a panic into an error so later links are
// still released.
func release(l link) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return l.closer.Close()
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
