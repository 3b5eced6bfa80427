package record

import (
	"encoding/binary"
	"fmt"
)

// EntryKind discriminates a TreeItem's payload.
type EntryKind byte

const (
	KindFile EntryKind = iota
	KindTree
	KindSubmodule
)

// TreeItem is the archived form of spec.md §3's TreeItem entity: one
// directory entry under a content-addressed tree.
type TreeItem struct {
	Mode uint16
	Kind EntryKind

	// Valid only when Kind == KindSubmodule.
	SubmoduleURL string
	SubmoduleOID [20]byte
}

// EncodedSize returns the exact byte length EncodeTreeItem will produce.
func (t *TreeItem) EncodedSize() int {
	size := 2 + 1
	if t.Kind == KindSubmodule {
		size += sizeString(t.SubmoduleURL) + 20
	}
	return size
}

// EncodeTreeItem serializes t into a freshly allocated buffer.
func EncodeTreeItem(t *TreeItem) []byte {
	buf := make([]byte, t.EncodedSize())
	binary.BigEndian.PutUint16(buf, t.Mode)
	buf[2] = byte(t.Kind)
	if t.Kind == KindSubmodule {
		off := 3 + putString(buf[3:], t.SubmoduleURL)
		copy(buf[off:], t.SubmoduleOID[:])
	}
	return buf
}

// DecodeTreeItem parses a TreeItem out of buf.
func DecodeTreeItem(buf []byte) (*TreeItem, error) {
	if len(buf) < 3 {
		return nil, ErrTruncated
	}
	t := &TreeItem{
		Mode: binary.BigEndian.Uint16(buf),
		Kind: EntryKind(buf[2]),
	}
	if t.Kind == KindSubmodule {
		url, n, err := getString(buf[3:])
		if err != nil {
			return nil, err
		}
		t.SubmoduleURL = url
		off := 3 + n
		if len(buf) < off+20 {
			return nil, ErrTruncated
		}
		copy(t.SubmoduleOID[:], buf[off:off+20])
	}
	return t, nil
}

// TreeRef is the archived form of the tree family's value:
// {indexed_tree_id: u64}, the mapping from a Git tree object id to its
// content-addressed index.
type TreeRef struct {
	IndexedTreeID uint64
}

// EncodeTreeRef serializes r as an 8-byte big-endian integer.
func EncodeTreeRef(r *TreeRef) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, r.IndexedTreeID)
	return buf
}

// DecodeTreeRef parses a TreeRef out of buf.
func DecodeTreeRef(buf []byte) (*TreeRef, error) {
	if len(buf) < 8 {
		return nil, ErrTruncated
	}
	return &TreeRef{IndexedTreeID: binary.BigEndian.Uint64(buf)}, nil
}

// SortedTree is the archived form of spec.md §3's SortedTree entity: a
// recursive directory summary keyed by path segment. A nil Dir marks a file
// entry; a non-nil Dir marks a subdirectory.
type SortedTree struct {
	Entries map[string]*SortedTreeEntry
}

// SortedTreeEntry is one child of a SortedTree: exactly one of IsFile or
// Dir is set.
type SortedTreeEntry struct {
	IsFile bool
	Dir    *SortedTree
}

// NewSortedTree returns an empty directory summary.
func NewSortedTree() *SortedTree {
	return &SortedTree{Entries: make(map[string]*SortedTreeEntry)}
}

// Insert records one file's full path in t, creating intermediate
// directories on demand. It panics if path names a directory where a file
// of the same name already exists (or vice versa): per spec.md §4.H this
// indicates a tree shape that is not the BFS walk's invariant to prevent,
// and is treated as a programming error, not a runtime condition.
func (t *SortedTree) Insert(path string) {
	segs := splitPath(path)
	cur := t
	for i, seg := range segs {
		isLast := i == len(segs)-1
		existing, ok := cur.Entries[seg]
		if isLast {
			if ok {
				panic(fmt.Sprintf("sorted tree: path %q collides with existing entry", path))
			}
			cur.Entries[seg] = &SortedTreeEntry{IsFile: true}
			return
		}
		if !ok {
			existing = &SortedTreeEntry{Dir: NewSortedTree()}
			cur.Entries[seg] = existing
		} else if existing.IsFile {
			panic(fmt.Sprintf("sorted tree: path %q collides with existing file entry", path))
		}
		cur = existing.Dir
	}
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				segs = append(segs, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segs = append(segs, path[start:])
	}
	return segs
}

// EncodeSortedTree serializes t recursively into a freshly allocated buffer.
func EncodeSortedTree(t *SortedTree) []byte {
	var buf []byte
	buf = appendUint32(buf, uint32(len(t.Entries)))
	for name, e := range t.Entries {
		buf = appendString(buf, name)
		if e.IsFile {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, 1)
		buf = append(buf, EncodeSortedTree(e.Dir)...)
	}
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// DecodeSortedTree parses a SortedTree out of buf, returning the number of
// bytes consumed.
func DecodeSortedTree(buf []byte) (*SortedTree, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrTruncated
	}
	count := binary.BigEndian.Uint32(buf)
	off := 4
	t := NewSortedTree()
	for i := uint32(0); i < count; i++ {
		name, n, err := getString(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		if len(buf) < off+1 {
			return nil, 0, ErrTruncated
		}
		isFile := buf[off] == 0
		off++
		if isFile {
			t.Entries[name] = &SortedTreeEntry{IsFile: true}
			continue
		}
		child, n, err := DecodeSortedTree(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		off += n
		t.Entries[name] = &SortedTreeEntry{Dir: child}
	}
	return t, off, nil
}
