// Package doccache keeps recently used archive indexes in memory.
package doccache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/ziptoc/internal/toc"
)

const (
	// DefaultTTL is used when New is given a non-positive ttl.
	DefaultTTL = 5 * time.Minute
	// DefaultMaxSize is used when New is given a non-positive size.
	DefaultMaxSize = 256
)

// Cache is an LRU cache of decoded index documents with TTL expiration.
// Concurrent loads of the same key share one call.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	group   singleflight.Group
	gen     map[string]uint64

	now func() time.Time
}

type entry struct {
	key     string
	doc     *toc.Document
	expires time.Time
}

// New returns a cache holding up to maxSize documents for ttl each.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		gen:     make(map[string]uint64),
		now:     time.Now,
	}
}

// Get returns the cached document for key if present and not expired.
func (c *Cache) Get(key string) (*toc.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry) //nolint:errcheck // type is guaranteed by set
	if c.now().After(e.expires) {
		c.removeLocked(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return e.doc, true
}

// Set stores doc under key, evicting the least recently used entry when full.
func (c *Cache) Set(key string, doc *toc.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, doc)
}

func (c *Cache) setLocked(key string, doc *toc.Document) {
	if elem, ok := c.entries[key]; ok {
		e := elem.Value.(*entry) //nolint:errcheck // type is guaranteed
		e.doc = doc
		e.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
	}

	elem := c.order.PushFront(&entry{key: key, doc: doc, expires: c.now().Add(c.ttl)})
	c.entries[key] = elem
}

// Load returns the cached document for key, calling fn on a miss. Callers
// racing on the same key wait for a single fn call. Errors are not cached.
// A result whose key was invalidated while fn ran is returned but not stored.
func (c *Cache) Load(ctx context.Context, key string, fn func(context.Context) (*toc.Document, error)) (*toc.Document, error) {
	if doc, ok := c.Get(key); ok {
		return doc, nil
	}

	c.mu.Lock()
	gen := c.gen[key]
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		doc, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen[key] == gen {
			c.setLocked(key, doc)
		}
		c.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*toc.Document), nil //nolint:errcheck // type is guaranteed by fn
}

// Invalidate drops key. It is safe to call for keys that are not cached.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[key]++
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
	c.group.Forget(key)
}

// Len returns the number of cached entries, including expired ones not yet
// evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// removeLocked removes an element from both the list and map.
// Caller must hold c.mu.
func (c *Cache) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry) //nolint:errcheck // type is guaranteed
	c.order.Remove(elem)
	delete(c.entries, e.key)
}
