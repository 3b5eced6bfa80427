package gitrepo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/require"
)

func TestOpenNotARepository(t *testing.T) {
	_, err := Open(t.TempDir())
	require.ErrorIs(t, err, ErrNotARepository)
}

func TestDescriptionPlaceholderIsAbsent(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "description"),
		[]byte(placeholderDescription+"\n"), 0o644))

	r, err := Open(dir)
	require.NoError(t, err)
	_, ok := r.Description()
	require.False(t, ok)
}

func TestDescriptionPresent(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "description"), []byte("my repo\n"), 0o644))

	r, err := Open(dir)
	require.NoError(t, err)
	desc, ok := r.Description()
	require.True(t, ok)
	require.Equal(t, "my repo", desc)
}

func TestDescriptionAbsentFile(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	_ = os.Remove(filepath.Join(dir, "description")) // present or not depending on go-git's init template

	r, err := Open(dir)
	require.NoError(t, err)
	_, ok := r.Description()
	require.False(t, ok)
}

func TestExported(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)

	r, err := Open(dir)
	require.NoError(t, err)
	require.False(t, r.Exported())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "git-daemon-export-ok"), nil, 0o644))
	require.True(t, r.Exported())
}

func TestDefaultBranchPresentWhenNoCommits(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)

	r, err := Open(dir)
	require.NoError(t, err)
	// HEAD is still symbolic (refs/heads/master) before the first commit.
	branch, ok, err := r.DefaultBranch()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "master", branch)
}

func TestLooksLikeRepository(t *testing.T) {
	dir := t.TempDir()
	require.False(t, LooksLikeRepository(dir))

	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	require.True(t, LooksLikeRepository(dir))
}

func TestRewriteSubmoduleURL(t *testing.T) {
	require.Equal(t, "https://example.com/a.git", RewriteSubmoduleURL("git://example.com/a.git"))
	require.Equal(t, "https://example.com/a.git", RewriteSubmoduleURL("ssh://example.com/a.git"))
	require.Equal(t, "git@example.com:a.git", RewriteSubmoduleURL("git@example.com:a.git"))
	require.Equal(t, "https://example.com/a.git", RewriteSubmoduleURL("https://example.com/a.git"))
}
