// Package xhash content-addresses a Git tree's shape: the sequence of
// (path, mode) pairs encountered during a breadth-first walk, independent of
// any blob content. Two trees with the same shape hash identically, which is
// the dedup property the tree indexer relies on.
package xhash

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// TreeShape accumulates (path, mode) pairs from a breadth-first tree walk
// and produces a 64-bit digest: the low 64 bits of an xxh3_128 over the
// concatenation of every pair fed in, in the order fed.
//
// Not safe for concurrent use; each tree indexing pass gets its own.
type TreeShape struct {
	h        *xxh3.Hasher
	modeBuf  [2]byte
}

// NewTreeShape returns a fresh, empty accumulator.
func NewTreeShape() *TreeShape {
	return &TreeShape{h: xxh3.New()}
}

// Add feeds one tree entry's path and 16-bit Git file mode into the digest.
// Call in breadth-first order: all entries of a directory before descending
// into any of its subdirectories.
func (t *TreeShape) Add(path string, mode uint16) {
	t.h.Write([]byte(path))
	binary.NativeEndian.PutUint16(t.modeBuf[:], mode)
	t.h.Write(t.modeBuf[:])
}

// Digest returns the accumulated 64-bit indexed_tree_id. Calling it does
// not reset the accumulator.
func (t *TreeShape) Digest() uint64 {
	return t.h.Sum128().Lo
}
