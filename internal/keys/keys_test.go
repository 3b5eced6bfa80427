package keys

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitKeyOrdering(t *testing.T) {
	k0 := CommitKey(1, "refs/heads/main", 0)
	k1 := CommitKey(1, "refs/heads/main", 1)
	k2 := CommitKey(1, "refs/heads/main", 2)
	require.True(t, bytes.Compare(k0, k1) < 0)
	require.True(t, bytes.Compare(k1, k2) < 0)
}

func TestCommitKeySeqRoundTrip(t *testing.T) {
	prefix := CommitPrefix(7, "refs/heads/main")
	key := CommitKey(7, "refs/heads/main", 1234)
	require.True(t, bytes.HasPrefix(key, prefix))
	require.Equal(t, uint64(1234), SeqFromCommitKey(key, prefix))
}

func TestCommitPrefixSeparatesArbitraryRefBytes(t *testing.T) {
	// The trailing 0x00 keeps a ref whose name extends another's ("ab" vs
	// "a") from matching the shorter ref's prefix.
	p1 := CommitPrefix(1, "a")
	p2 := CommitPrefix(1, "ab")
	require.False(t, bytes.HasPrefix(p2, p1))
}

func TestPrefixUpperBound(t *testing.T) {
	upper, ok := PrefixUpperBound([]byte{0x01, 0x02})
	require.True(t, ok)
	require.Equal(t, []byte{0x01, 0x03}, upper)

	_, ok = PrefixUpperBound([]byte{0xff, 0xff})
	require.False(t, ok)

	_, ok = PrefixUpperBound(nil)
	require.False(t, ok)
}

func TestTreeItemPrefixSelectsDirectChildrenOnly(t *testing.T) {
	const treeID = uint64(99)
	grandchild := TreeItemKey(treeID, "a/b/c")
	child := TreeItemKey(treeID, "a/b")
	sibling := TreeItemKey(treeID, "a/z")

	prefix := TreeItemPrefix(treeID, "a")
	require.True(t, bytes.HasPrefix(child, prefix))
	require.True(t, bytes.HasPrefix(sibling, prefix))
	// grandchild's depth differs from direct children, so even though its
	// path also starts with "a/", the depth field in the key must exclude
	// it from the direct-children prefix.
	require.False(t, bytes.HasPrefix(grandchild, prefix))
}

func TestTreeItemAllPrefixSelectsEverything(t *testing.T) {
	const treeID = uint64(5)
	everything := TreeItemAllPrefix(treeID)
	require.Len(t, everything, 8)
	require.True(t, bytes.HasPrefix(TreeItemKey(treeID, "a/b/c"), everything))
	require.True(t, bytes.HasPrefix(TreeItemKey(treeID, "a"), everything))
}

func TestTreeItemPrefixEmptyDirSelectsRootChildrenOnly(t *testing.T) {
	const treeID = uint64(5)
	root := TreeItemPrefix(treeID, "")
	require.True(t, bytes.HasPrefix(TreeItemKey(treeID, "a"), root))
	require.False(t, bytes.HasPrefix(TreeItemKey(treeID, "a/b"), root))
}

func TestTagKeyUsesRepoIDPrefix(t *testing.T) {
	key := TagKey(3, "refs/tags/v1.0")
	prefix := TagPrefix(3)
	require.True(t, bytes.HasPrefix(key, prefix))
	require.Equal(t, "refs/tags/v1.0", RefNameFromTagKey(key))
}
