// Package tree holds the hierarchical entry tree of an indexed archive.
//
// Every tree has exactly one root directory. When an archive's top level is
// not a single directory, the root is synthesized and named after the
// archive, and archive paths are resolved relative to it.
package tree

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/meigma/ziptoc/internal/zipfmt"
)

// ErrNotFound is returned when a path does not resolve to a node.
var ErrNotFound = errors.New("tree: no such entry")

// Kind distinguishes file and directory nodes.
type Kind uint8

const (
	// File is a leaf holding entry metadata.
	File Kind = iota
	// Directory holds ordered children.
	Directory
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Attrs is the metadata recorded for a file entry.
type Attrs struct {
	Size           uint64
	CompressedSize uint64
	MimeType       string
	CRC32          uint32
}

// Node is one file or directory. Attrs is meaningful for files only;
// children for directories only.
type Node struct {
	Key      string
	Kind     Kind
	FullPath string
	Attrs

	children []*Node
	index    map[string]*Node
}

// NewDirectory returns an empty directory node.
func NewDirectory(key, fullPath string) *Node {
	return &Node{Key: key, Kind: Directory, FullPath: fullPath}
}

// NewFile returns a file node.
func NewFile(key, fullPath string, attrs Attrs) *Node {
	return &Node{Key: key, Kind: File, FullPath: fullPath, Attrs: attrs}
}

// IsDir reports whether n is a directory.
func (n *Node) IsDir() bool {
	return n.Kind == Directory
}

// Children returns the children of a directory in insertion order.
func (n *Node) Children() []*Node {
	return n.children
}

// Child returns the child named key.
func (n *Node) Child(key string) (*Node, bool) {
	c, ok := n.index[key]
	return c, ok
}

// Put adds c as a child of n. A child with the same key is replaced in place.
func (n *Node) Put(c *Node) {
	if n.index == nil {
		n.index = make(map[string]*Node)
	}
	if old, ok := n.index[c.Key]; ok {
		for i, existing := range n.children {
			if existing == old {
				n.children[i] = c
				break
			}
		}
	} else {
		n.children = append(n.children, c)
	}
	n.index[c.Key] = c
}

// dir returns the directory child named key, creating it when missing. A
// file with that key is replaced by the directory.
func (n *Node) dir(key string) *Node {
	if c, ok := n.index[key]; ok && c.IsDir() {
		return c
	}
	c := NewDirectory(key, join(n.FullPath, key))
	n.Put(c)
	return c
}

// Files yields the file nodes under n in pre-order, following insertion
// order at every level. A file node yields itself.
func (n *Node) Files() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		n.walkFiles(yield)
	}
}

func (n *Node) walkFiles(yield func(*Node) bool) bool {
	if !n.IsDir() {
		return yield(n)
	}
	for _, c := range n.children {
		if !c.walkFiles(yield) {
			return false
		}
	}
	return true
}

// Tree is the entry tree of one archive.
type Tree struct {
	Root *Node
	// Synthetic is set when Root does not exist in the archive.
	Synthetic bool
}

// ArchivePath returns the name under which n is stored in the archive.
func (t *Tree) ArchivePath(n *Node) string {
	if !t.Synthetic {
		return n.FullPath
	}
	if n == t.Root {
		return ""
	}
	return strings.TrimPrefix(n.FullPath, t.Root.Key+"/")
}

// Locate resolves a slash-delimited path whose first segment is the root
// key. Empty and "." segments are ignored; an empty path is the root.
func (t *Tree) Locate(path string) (*Node, error) {
	parts := zipfmt.Split(path)
	if len(parts) == 0 {
		return t.Root, nil
	}
	if parts[0] != t.Root.Key {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	n := t.Root
	for _, part := range parts[1:] {
		c, ok := n.Child(part)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		n = c
	}
	return n, nil
}

// Relative returns the path of n below dir, or "" when n is dir.
func Relative(dir, n *Node) string {
	if n == dir {
		return ""
	}
	return strings.TrimPrefix(n.FullPath, dir.FullPath+"/")
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "/" + key
}

// Builder assembles a Tree from archive entries.
type Builder struct {
	top   *Node
	count int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{top: NewDirectory("", "")}
}

// Add inserts a file at the given path segments, creating intermediate
// directories on demand. Empty parts are ignored.
func (b *Builder) Add(parts []string, attrs Attrs) {
	if len(parts) == 0 {
		return
	}
	n := b.top
	for _, part := range parts[:len(parts)-1] {
		n = n.dir(part)
	}
	key := parts[len(parts)-1]
	n.Put(NewFile(key, join(n.FullPath, key), attrs))
	b.count++
}

// Count returns the number of files added.
func (b *Builder) Count() int {
	return b.count
}

// Tree returns the built tree. If the top level is not a single directory,
// a root named name is synthesized above it.
func (b *Builder) Tree(name string) *Tree {
	if cs := b.top.children; len(cs) == 1 && cs[0].IsDir() {
		return &Tree{Root: cs[0]}
	}
	root := NewDirectory(name, name)
	for _, c := range b.top.children {
		rebase(c, name)
		root.Put(c)
	}
	return &Tree{Root: root, Synthetic: true}
}

func rebase(n *Node, prefix string) {
	n.FullPath = join(prefix, n.FullPath)
	for _, c := range n.children {
		rebase(c, prefix)
	}
}
