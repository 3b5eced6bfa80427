// Package keys implements the composite key layouts of the store's column
// families. Every encoder here is a pure function over bytes; none of them
// touch the store or the filesystem.
package keys

import "encoding/binary"

// RepoIDSize is the width, in bytes, of a Repository's id as it appears in
// every composite key that embeds it.
const RepoIDSize = 8

// sep is the single trailing separator appended after repo_id‖ref_name so
// that one ref's prefix never matches the keys of a ref whose name merely
// extends it ("main" vs "main2"). A ref name that itself contains 0x00 is
// not separated this way: "a" and "a\x00b" share the prefix of "a".
const sep = 0x00

// CommitPrefix returns repo_id ‖ ref_name ‖ 0x00, the prefix shared by every
// commit row (and the key of the matching commit-count row) for one ref.
func CommitPrefix(repoID uint64, ref string) []byte {
	buf := make([]byte, RepoIDSize+len(ref)+1)
	binary.BigEndian.PutUint64(buf, repoID)
	copy(buf[RepoIDSize:], ref)
	buf[len(buf)-1] = sep
	return buf
}

// CommitKey returns the commit-family key for (repo_id, ref, seq).
func CommitKey(repoID uint64, ref string, seq uint64) []byte {
	prefix := CommitPrefix(repoID, ref)
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], seq)
	return buf
}

// CommitKeyWithPrefix appends seq to an already-computed commit prefix.
// Equivalent to CommitKey but avoids recomputing the prefix when the
// caller already has it (e.g. from CommitPrefix or CommitCountKey).
func CommitKeyWithPrefix(prefix []byte, seq uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], seq)
	return buf
}

// SeqFromCommitKey extracts the seq suffix from a full commit-family key
// sharing the given prefix. It panics if key is shorter than prefix+8, which
// would indicate store corruption rather than a recoverable condition.
func SeqFromCommitKey(key, prefix []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(prefix):])
}

// CommitCountKey returns the commit-count-family key for (repo_id, ref). It
// is identical to CommitPrefix; kept as a distinct name because the two
// families have different value shapes and callers should not conflate them.
func CommitCountKey(repoID uint64, ref string) []byte {
	return CommitPrefix(repoID, ref)
}

// PrefixUpperBound returns the exclusive upper bound of the half-open range
// [prefix, PrefixUpperBound(prefix)), i.e. prefix with its last byte
// incremented. Used for delete_range_cf and prefix-bounded iteration. A
// trailing run of 0xff bytes is dropped and the byte before it incremented
// ({0x01, 0xff} gives {0x02}).
//
// A prefix made up only of 0xff bytes (or the empty prefix) has no finite
// successor; the caller should treat the upper bound as unbounded (nil) in
// that case, which is what the boolean return signals.
func PrefixUpperBound(prefix []byte) ([]byte, bool) {
	if len(prefix) == 0 {
		return nil, false
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1], true
		}
	}
	return nil, false
}

// RepoPrefix returns the 8-byte big-endian repo_id, the prefix shared by
// every composite key in any family that leads with repo_id: commit,
// commit_count, tag, and reference. Used on its own to delete_range_cf an
// entire deleted repository's rows across those families at once.
func RepoPrefix(repoID uint64) []byte {
	buf := make([]byte, RepoIDSize)
	binary.BigEndian.PutUint64(buf, repoID)
	return buf
}

// TagKey returns the tag-family key for (repo_id, full_ref_name).
func TagKey(repoID uint64, fullRefName string) []byte {
	buf := make([]byte, RepoIDSize+len(fullRefName))
	binary.BigEndian.PutUint64(buf, repoID)
	copy(buf[RepoIDSize:], fullRefName)
	return buf
}

// TagPrefix returns the repo_id prefix shared by every tag row of one repo;
// the tag family uses a fixed 8-byte prefix extractor.
func TagPrefix(repoID uint64) []byte {
	return RepoPrefix(repoID)
}

// RefNameFromTagKey strips the leading repo_id from a tag-family key.
func RefNameFromTagKey(key []byte) string {
	return string(key[RepoIDSize:])
}

// ReferenceKey returns the reference-family (Heads) key for repo_id.
func ReferenceKey(repoID uint64) []byte {
	return RepoPrefix(repoID)
}

// TreeKey returns the tree-family key: a Git tree object id (20 bytes).
func TreeKey(gitTreeOID [20]byte) []byte {
	buf := make([]byte, 20)
	copy(buf, gitTreeOID[:])
	return buf
}

// TreeItemDepth returns the number of '/' separators in path, which is the
// depth field embedded in every tree-item key.
func TreeItemDepth(path string) uint64 {
	var depth uint64
	for _, b := range []byte(path) {
		if b == '/' {
			depth++
		}
	}
	return depth
}

// TreeItemKey returns the tree-item-family key: indexed_tree_id (native
// endian, 8B) ‖ depth (big endian, 8B) ‖ path.
//
// indexedTreeID is written in the platform's native byte order, deliberately
// inconsistent with every other integer in this package, because it must
// match the in-memory byte order the xxh3 hasher produced it in; it is only
// ever probed by equality (a seek to an exact 8-byte prefix), never range
// compared across values, so native order costs nothing and saves a byte
// swap on every tree lookup.
func TreeItemKey(indexedTreeID uint64, path string) []byte {
	depth := TreeItemDepth(path)
	buf := make([]byte, 8+8+len(path))
	binary.NativeEndian.PutUint64(buf[0:8], indexedTreeID)
	binary.BigEndian.PutUint64(buf[8:16], depth)
	copy(buf[16:], path)
	return buf
}

// TreeItemAllPrefix returns the prefix that selects every tree-item row
// under indexedTreeID regardless of depth (TreeItemFindPrefix semantics
// with path_prefix=None): just the 8-byte indexed_tree_id.
func TreeItemAllPrefix(indexedTreeID uint64) []byte {
	buf := make([]byte, 8)
	binary.NativeEndian.PutUint64(buf, indexedTreeID)
	return buf
}

// TreeItemPrefix returns the prefix that selects exactly the direct
// children of dirPath under indexedTreeID (TreeItemFindPrefix semantics
// with path_prefix=Some(dirPath), including the root when dirPath is "").
//
// For the root (dirPath==""), the returned prefix is
// indexed_tree_id ‖ depth=0, which matches only depth-0 entries: the root's
// direct children, not the whole flattened tree.
//
// For a non-root dirPath, the returned prefix is
// indexed_tree_id ‖ depth(dirPath+"/") ‖ dirPath ‖ "/", which selects
// exactly the direct children of dirPath: their depth is fixed (so no
// deeper descendant can match the prefix) and their path starts with
// "dirPath/".
func TreeItemPrefix(indexedTreeID uint64, dirPath string) []byte {
	childPrefix := dirPath
	if dirPath != "" {
		childPrefix = dirPath + "/"
	}
	depth := TreeItemDepth(childPrefix)
	buf := make([]byte, 8+8+len(childPrefix))
	binary.NativeEndian.PutUint64(buf[0:8], indexedTreeID)
	binary.BigEndian.PutUint64(buf[8:16], depth)
	copy(buf[16:], childPrefix)
	return buf
}

// TreeItemPathFromKey strips the fixed 16-byte indexed_tree_id‖depth header
// off a tree-item-family key, returning the entry's path.
func TreeItemPathFromKey(key []byte) string {
	return string(key[16:])
}

// SortedTreeKey returns the sorted-tree-family key: indexed_tree_id, native
// endian, 8 bytes.
func SortedTreeKey(indexedTreeID uint64) []byte {
	buf := make([]byte, 8)
	binary.NativeEndian.PutUint64(buf, indexedTreeID)
	return buf
}

// SchemaVersionKey is the default-family key holding the persisted schema
// version, an ASCII integer string.
var SchemaVersionKey = []byte("schema_version")

// RepositoryKey returns the repository-family key for a repo's path
// relative to the scan root (spec.md §4.F: "Upsert the Repository record
// under its path key").
func RepositoryKey(relPath string) []byte {
	return []byte(relPath)
}
