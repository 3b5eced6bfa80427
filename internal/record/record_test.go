package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestRepositoryRoundTrip(t *testing.T) {
	desc := "a test repo"
	owner := "kirr"
	branch := "main"
	want := &Repository{
		ID:            42,
		Name:          "hello-world.git",
		Description:   &desc,
		Owner:         &owner,
		LastModified:  Timestamp{Seconds: 1700000000, Offset: 3600},
		DefaultBranch: &branch,
		Exported:      true,
	}
	got, err := DecodeRepository(EncodeRepository(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRepositoryRoundTripAbsentFields(t *testing.T) {
	want := &Repository{ID: 7, Name: "bare.git"}
	got, err := DecodeRepository(EncodeRepository(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Nil(t, got.Description)
	require.Nil(t, got.Owner)
	require.Nil(t, got.DefaultBranch)
}

func TestCommitRoundTrip(t *testing.T) {
	want := &Commit{
		Hash:    [20]byte{1, 2, 3},
		Summary: "fix the thing",
		Message: "fix the thing\n\nlonger body here",
		Author: Signature{
			Name: "A U Thor", Email: "author@example.com",
			Time: Timestamp{Seconds: 1600000000, Offset: -7 * 3600},
		},
		Committer: Signature{
			Name: "C Ommitter", Email: "committer@example.com",
			Time: Timestamp{Seconds: 1600000100, Offset: 0},
		},
		TreeID: 0xdeadbeef,
	}
	got, err := DecodeCommit(EncodeCommit(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestCommitCountRoundTrip(t *testing.T) {
	got, err := DecodeCommitCount(EncodeCommitCount(12345))
	require.NoError(t, err)
	require.Equal(t, uint64(12345), got)
}

func TestTagRoundTripAnnotated(t *testing.T) {
	tree := uint64(99)
	want := &Tag{
		Tagger: &Signature{Name: "T Agger", Email: "t@example.com", Time: Timestamp{Seconds: 1, Offset: 0}},
		TreeID: &tree,
	}
	got, err := DecodeTag(EncodeTag(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestTagRoundTripLightweight(t *testing.T) {
	want := &Tag{}
	got, err := DecodeTag(EncodeTag(want))
	require.NoError(t, err)
	require.Nil(t, got.Tagger)
	require.Nil(t, got.TreeID)
}

func TestHeadsRoundTrip(t *testing.T) {
	want := &Heads{Refs: []string{"refs/heads/main", "refs/tags/v1.0"}}
	got, err := DecodeHeads(EncodeHeads(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestTreeItemRoundTripFile(t *testing.T) {
	want := &TreeItem{Mode: 0100644, Kind: KindFile}
	got, err := DecodeTreeItem(EncodeTreeItem(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestTreeItemRoundTripSubmodule(t *testing.T) {
	want := &TreeItem{
		Mode:         0160000,
		Kind:         KindSubmodule,
		SubmoduleURL: "https://example.com/repo.git",
		SubmoduleOID: [20]byte{9, 9, 9},
	}
	got, err := DecodeTreeItem(EncodeTreeItem(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestTreeRefRoundTrip(t *testing.T) {
	want := &TreeRef{IndexedTreeID: 0x1234}
	got, err := DecodeTreeRef(EncodeTreeRef(want))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSortedTreeRoundTrip(t *testing.T) {
	want := NewSortedTree()
	want.Insert("README")
	want.Insert("src/main.go")
	want.Insert("src/lib/util.go")

	encoded := EncodeSortedTree(want)
	got, n, err := DecodeSortedTree(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.Equal(t, want, got)
}

func TestSortedTreeCollisionPanics(t *testing.T) {
	tr := NewSortedTree()
	tr.Insert("a")
	require.Panics(t, func() { tr.Insert("a/b") })
}
