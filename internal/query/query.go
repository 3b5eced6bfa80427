// Package query implements the read-only surface spec.md §6 describes for
// the web layer: repository listing and lookup, per-ref commit pages,
// per-repo tag listing, and content-addressed tree lookups. Every method
// here only reads from internal/store; none of them touch Git directly.
package query

import (
	"sort"

	"github.com/vcsindex/barehub/internal/keys"
	"github.com/vcsindex/barehub/internal/record"
	"github.com/vcsindex/barehub/internal/store"
)

// Surface is the query surface, backed by one store handle.
type Surface struct {
	store *store.Store
}

// New wraps s in a query Surface.
func New(s *store.Store) *Surface {
	return &Surface{store: s}
}

// RepositoryEntry pairs a repository's path key with its decoded record.
type RepositoryEntry struct {
	Path       string
	Repository *record.Repository
}

// FetchAllRepositories returns every repository, ordered by path.
func (q *Surface) FetchAllRepositories() ([]RepositoryEntry, error) {
	kvs, err := q.store.PrefixIteratorCF(store.BucketRepository, nil)
	if err != nil {
		return nil, err
	}
	out := make([]RepositoryEntry, 0, len(kvs))
	for _, kv := range kvs {
		rec, err := record.DecodeRepository(kv.Value)
		if err != nil {
			continue // tolerate a corrupt row rather than failing the whole listing
		}
		out = append(out, RepositoryEntry{Path: string(kv.Key), Repository: rec})
	}
	return out, nil
}

// OpenRepository returns the repository record at path, or ok=false if
// absent.
func (q *Surface) OpenRepository(path string) (*record.Repository, bool, error) {
	raw, ok, err := q.store.GetCF(store.BucketRepository, keys.RepositoryKey(path))
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := record.DecodeRepository(raw)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Exists reports whether a repository record exists at path.
func (q *Surface) Exists(path string) (bool, error) {
	_, ok, err := q.store.GetCF(store.BucketRepository, keys.RepositoryKey(path))
	return ok, err
}

// CommitTree is the per-(repo, ref) commit log query object, spec.md §6's
// `commit_tree(repo_id, ref)`.
type CommitTree struct {
	store  *store.Store
	prefix []byte
}

// CommitTree returns the commit-log query object for one (repoID, ref).
func (q *Surface) CommitTree(repoID uint64, ref string) *CommitTree {
	return &CommitTree{store: q.store, prefix: keys.CommitPrefix(repoID, ref)}
}

// Len returns the number of commits currently indexed for this ref.
func (c *CommitTree) Len() (uint64, error) {
	raw, ok, err := c.store.GetCF(store.BucketCommitCount, c.prefix)
	if err != nil || !ok {
		return 0, err
	}
	return record.DecodeCommitCount(raw)
}

// FetchLatestOne returns the most recently indexed commit, or ok=false if
// the ref has no indexed history.
func (c *CommitTree) FetchLatestOne() (*record.Commit, bool, error) {
	commits, err := c.FetchLatest(1, 0)
	if err != nil || len(commits) == 0 {
		return nil, false, err
	}
	return commits[0], true, nil
}

// FetchLatest returns up to amount commits, newest first, skipping offset
// from the tip.
func (c *CommitTree) FetchLatest(amount, offset uint64) ([]*record.Commit, error) {
	count, err := c.Len()
	if err != nil || count == 0 {
		return nil, err
	}
	if offset >= count {
		return nil, nil
	}
	hi := count - offset // exclusive upper bound on seq, 1-indexed from 0
	lo := uint64(0)
	if hi > amount {
		lo = hi - amount
	}

	start := keys.CommitKeyWithPrefix(c.prefix, lo)
	end := keys.CommitKeyWithPrefix(c.prefix, hi)
	kvs, err := c.store.IteratorCFOpt(store.BucketCommit, start, end, store.Reverse)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Commit, 0, len(kvs))
	for _, kv := range kvs {
		rec, err := record.DecodeCommit(kv.Value)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// DropCommits deletes every indexed commit and the commit-count row for
// this ref, used when a repository or ref is removed.
func (c *CommitTree) DropCommits() error {
	upper, ok := keys.PrefixUpperBound(c.prefix)
	var end []byte
	if ok {
		end = upper
	}
	if err := c.store.DeleteRangeCF(store.BucketCommit, c.prefix, end); err != nil {
		return err
	}
	return c.store.DeleteCF(store.BucketCommitCount, c.prefix)
}

// TagTree is the per-repo tag query object, spec.md §6's `tag_tree(repo_id)`.
type TagTree struct {
	store  *store.Store
	repoID uint64
}

// TagTree returns the tag query object for repoID.
func (q *Surface) TagTree(repoID uint64) *TagTree {
	return &TagTree{store: q.store, repoID: repoID}
}

// TagEntry pairs a tag's full ref name with its decoded record.
type TagEntry struct {
	RefName string
	Tag     *record.Tag
}

// FetchAll returns every indexed tag for this repo, ordered by ref name.
func (t *TagTree) FetchAll() ([]TagEntry, error) {
	kvs, err := t.store.PrefixIteratorCF(store.BucketTag, keys.TagPrefix(t.repoID))
	if err != nil {
		return nil, err
	}
	out := make([]TagEntry, 0, len(kvs))
	for _, kv := range kvs {
		rec, err := record.DecodeTag(kv.Value)
		if err != nil {
			continue
		}
		out = append(out, TagEntry{RefName: keys.RefNameFromTagKey(kv.Key), Tag: rec})
	}
	return out, nil
}

// List returns just the ref names of every indexed tag for this repo.
func (t *TagTree) List() ([]string, error) {
	all, err := t.FetchAll()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(all))
	for i, e := range all {
		names[i] = e.RefName
	}
	return names, nil
}

// Insert upserts the tag record for refName.
func (t *TagTree) Insert(refName string, rec *record.Tag) error {
	return t.store.PutCF(store.BucketTag, keys.TagKey(t.repoID, refName), record.EncodeTag(rec))
}

// Remove deletes the tag record for refName.
func (t *TagTree) Remove(refName string) error {
	return t.store.DeleteCF(store.BucketTag, keys.TagKey(t.repoID, refName))
}

// TreeItemFindExact returns the single TreeItem at (indexedTreeID, path),
// or ok=false if absent.
func (q *Surface) TreeItemFindExact(indexedTreeID uint64, path string) (*record.TreeItem, bool, error) {
	raw, ok, err := q.store.GetCF(store.BucketTreeItem, keys.TreeItemKey(indexedTreeID, path))
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := record.DecodeTreeItem(raw)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// TreeItemEntry pairs a TreeItem's path with its decoded record.
type TreeItemEntry struct {
	Path string
	Item *record.TreeItem
}

// TreeItemFindPrefix lists TreeItem rows under indexedTreeID. pathPrefix
// distinguishes spec.md §6's `Option<path_prefix>`: nil selects every entry
// in the tree (the None case), while a non-nil pathPrefix selects exactly
// the direct children of *pathPrefix — including the root's direct
// children when *pathPrefix is "" (the Some("") case).
func (q *Surface) TreeItemFindPrefix(indexedTreeID uint64, pathPrefix *string) ([]TreeItemEntry, error) {
	prefix := keys.TreeItemAllPrefix(indexedTreeID)
	if pathPrefix != nil {
		prefix = keys.TreeItemPrefix(indexedTreeID, *pathPrefix)
	}
	kvs, err := q.store.PrefixIteratorCF(store.BucketTreeItem, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]TreeItemEntry, 0, len(kvs))
	for _, kv := range kvs {
		rec, err := record.DecodeTreeItem(kv.Value)
		if err != nil {
			continue
		}
		out = append(out, TreeItemEntry{Path: keys.TreeItemPathFromKey(kv.Key), Item: rec})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// TreeItemContains reports whether any TreeItem row exists for
// indexedTreeID at all, without materializing the full listing.
func (q *Surface) TreeItemContains(indexedTreeID uint64) (bool, error) {
	kvs, err := q.store.PrefixIteratorCF(store.BucketTreeItem, keys.TreeItemAllPrefix(indexedTreeID))
	return len(kvs) > 0, err
}

// TreeFind resolves a Git tree object id to its content-addressed
// indexed_tree_id, or ok=false if this tree has never been indexed.
func (q *Surface) TreeFind(gitTreeOID [20]byte) (uint64, bool, error) {
	raw, ok, err := q.store.GetCF(store.BucketTree, keys.TreeKey(gitTreeOID))
	if err != nil || !ok {
		return 0, false, err
	}
	rec, err := record.DecodeTreeRef(raw)
	if err != nil {
		return 0, false, err
	}
	return rec.IndexedTreeID, true, nil
}

// SortedTreeGet returns the SortedTree summary for indexedTreeID, or
// ok=false if absent.
func (q *Surface) SortedTreeGet(indexedTreeID uint64) (*record.SortedTree, bool, error) {
	raw, ok, err := q.store.GetCF(store.BucketSortedTree, keys.SortedTreeKey(indexedTreeID))
	if err != nil || !ok {
		return nil, false, err
	}
	rec, _, err := record.DecodeSortedTree(raw)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Heads returns the repository's current Heads record (ordered ref names).
func (q *Surface) Heads(repoID uint64) (*record.Heads, bool, error) {
	raw, ok, err := q.store.GetCF(store.BucketReference, keys.ReferenceKey(repoID))
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := record.DecodeHeads(raw)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// ReplaceHeads atomically overwrites the repository's Heads record.
func (q *Surface) ReplaceHeads(repoID uint64, refs []string) error {
	return q.store.PutCF(store.BucketReference, keys.ReferenceKey(repoID), record.EncodeHeads(&record.Heads{Refs: refs}))
}
