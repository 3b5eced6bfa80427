package query

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vcsindex/barehub/internal/keys"
	"github.com/vcsindex/barehub/internal/record"
	"github.com/vcsindex/barehub/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "store"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFetchAllRepositoriesOrdersByPath(t *testing.T) {
	s := openTestStore(t)
	q := New(s)

	for i, path := range []string{"b.git", "a.git", "c.git"} {
		rec := &record.Repository{ID: uint64(i + 1), Name: path}
		require.NoError(t, s.PutCF(store.BucketRepository, keys.RepositoryKey(path), record.EncodeRepository(rec)))
	}

	entries, err := q.FetchAllRepositories()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "a.git", entries[0].Path)
	require.Equal(t, "b.git", entries[1].Path)
	require.Equal(t, "c.git", entries[2].Path)
}

func TestOpenRepositoryAndExists(t *testing.T) {
	s := openTestStore(t)
	q := New(s)

	ok, err := q.Exists("missing.git")
	require.NoError(t, err)
	require.False(t, ok)

	rec := &record.Repository{ID: 42, Name: "present.git"}
	require.NoError(t, s.PutCF(store.BucketRepository, keys.RepositoryKey("present.git"), record.EncodeRepository(rec)))

	got, ok, err := q.OpenRepository("present.git")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), got.ID)

	ok, err = q.Exists("present.git")
	require.NoError(t, err)
	require.True(t, ok)
}

func seedCommits(t *testing.T, s *store.Store, repoID uint64, ref string, n int) {
	t.Helper()
	prefix := keys.CommitPrefix(repoID, ref)
	var batch store.Batch
	for i := 0; i < n; i++ {
		c := &record.Commit{Summary: string(rune('a' + i))}
		batch.Put(store.BucketCommit, keys.CommitKeyWithPrefix(prefix, uint64(i)), record.EncodeCommit(c))
	}
	batch.Put(store.BucketCommitCount, prefix, record.EncodeCommitCount(uint64(n)))
	require.NoError(t, s.Write(&batch))
}

func TestCommitTreeFetchLatest(t *testing.T) {
	s := openTestStore(t)
	q := New(s)
	seedCommits(t, s, 1, "refs/heads/main", 5)

	ct := q.CommitTree(1, "refs/heads/main")

	count, err := ct.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(5), count)

	latest, err := ct.FetchLatest(2, 0)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, "e", latest[0].Summary) // newest first
	require.Equal(t, "d", latest[1].Summary)

	one, ok, err := ct.FetchLatestOne()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "e", one.Summary)

	skipped, err := ct.FetchLatest(2, 3)
	require.NoError(t, err)
	require.Len(t, skipped, 2)
	require.Equal(t, "b", skipped[0].Summary)
	require.Equal(t, "a", skipped[1].Summary)
}

func TestCommitTreeFetchLatestEmptyRef(t *testing.T) {
	s := openTestStore(t)
	q := New(s)
	ct := q.CommitTree(1, "refs/heads/nothing")

	count, err := ct.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(0), count)

	latest, err := ct.FetchLatest(10, 0)
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestCommitTreeDropCommits(t *testing.T) {
	s := openTestStore(t)
	q := New(s)
	seedCommits(t, s, 1, "refs/heads/main", 3)

	ct := q.CommitTree(1, "refs/heads/main")
	require.NoError(t, ct.DropCommits())

	count, err := ct.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(0), count)

	latest, err := ct.FetchLatest(10, 0)
	require.NoError(t, err)
	require.Empty(t, latest)
}

func TestTagTreeInsertFetchRemove(t *testing.T) {
	s := openTestStore(t)
	q := New(s)
	tt := q.TagTree(7)

	treeID := uint64(99)
	require.NoError(t, tt.Insert("refs/tags/v1", &record.Tag{TreeID: &treeID}))
	require.NoError(t, tt.Insert("refs/tags/v2", &record.Tag{TreeID: &treeID}))

	names, err := tt.List()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"refs/tags/v1", "refs/tags/v2"}, names)

	require.NoError(t, tt.Remove("refs/tags/v1"))
	names, err = tt.List()
	require.NoError(t, err)
	require.Equal(t, []string{"refs/tags/v2"}, names)
}

func TestTreeItemFindExactAndPrefix(t *testing.T) {
	s := openTestStore(t)
	q := New(s)
	const digest = uint64(123)

	var batch store.Batch
	batch.Put(store.BucketTreeItem, keys.TreeItemKey(digest, "README.md"), record.EncodeTreeItem(&record.TreeItem{Mode: 0o100644, Kind: record.KindFile}))
	batch.Put(store.BucketTreeItem, keys.TreeItemKey(digest, "src/main.go"), record.EncodeTreeItem(&record.TreeItem{Mode: 0o100644, Kind: record.KindFile}))
	batch.Put(store.BucketTreeItem, keys.TreeItemKey(digest, "src/util.go"), record.EncodeTreeItem(&record.TreeItem{Mode: 0o100644, Kind: record.KindFile}))
	require.NoError(t, s.Write(&batch))

	item, ok, err := q.TreeItemFindExact(digest, "README.md")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.KindFile, item.Kind)

	_, ok, err = q.TreeItemFindExact(digest, "missing.go")
	require.NoError(t, err)
	require.False(t, ok)

	all, err := q.TreeItemFindPrefix(digest, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)

	root := ""
	rootChildren, err := q.TreeItemFindPrefix(digest, &root)
	require.NoError(t, err)
	require.Len(t, rootChildren, 1)
	require.Equal(t, "README.md", rootChildren[0].Path)

	src := "src"
	underSrc, err := q.TreeItemFindPrefix(digest, &src)
	require.NoError(t, err)
	require.Len(t, underSrc, 2)
	require.Equal(t, "src/main.go", underSrc[0].Path)
	require.Equal(t, "src/util.go", underSrc[1].Path)

	has, err := q.TreeItemContains(digest)
	require.NoError(t, err)
	require.True(t, has)

	has, err = q.TreeItemContains(digest + 1)
	require.NoError(t, err)
	require.False(t, has)
}

func TestTreeFindAndSortedTreeGet(t *testing.T) {
	s := openTestStore(t)
	q := New(s)

	var gitTreeOID [20]byte
	gitTreeOID[0] = 0xAB
	require.NoError(t, s.PutCF(store.BucketTree, keys.TreeKey(gitTreeOID), record.EncodeTreeRef(&record.TreeRef{IndexedTreeID: 55})))

	id, ok, err := q.TreeFind(gitTreeOID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(55), id)

	sorted := record.NewSortedTree()
	sorted.Insert("a.txt")
	require.NoError(t, s.PutCF(store.BucketSortedTree, keys.SortedTreeKey(55), record.EncodeSortedTree(sorted)))

	got, ok, err := q.SortedTreeGet(55)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, got.Entries, "a.txt")
}

func TestHeadsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	q := New(s)

	_, ok, err := q.Heads(1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, q.ReplaceHeads(1, []string{"refs/heads/main", "refs/heads/dev"}))
	heads, ok, err := q.Heads(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"refs/heads/main", "refs/heads/dev"}, heads.Refs)
}
