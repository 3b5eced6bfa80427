// Package gitrepo is the thin domain layer over go-git (spec.md §6's
// "External Interfaces" scan-root layout and per-repo files) that every
// indexer component in internal/index reads through. It never mutates a
// repository; every operation here is a read.
package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotARepository is returned by Open when path does not open as a Git
// repository at all (as opposed to opening but being corrupt).
var ErrNotARepository = errors.New("gitrepo: not a git repository")

// placeholderDescription is the canned text `git init --template` ships in
// new bare repositories' description file; spec.md §3 represents it as an
// absent description.
const placeholderDescription = "Unnamed repository; edit this file to name the repository."

// Repo wraps one bare repository opened from disk.
type Repo struct {
	path string
	g    *git.Repository
}

// Open opens the bare (or non-bare, though this subsystem only ever points
// it at bare repositories) Git repository at path.
func Open(path string) (*Repo, error) {
	g, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotARepository, path)
		}
		return nil, fmt.Errorf("gitrepo: open %s: %w", path, err)
	}
	return &Repo{path: path, g: g}, nil
}

// Path returns the path the repository was opened from, as given to Open.
func (r *Repo) Path() string { return r.path }

// LooksLikeRepository applies the §6 walk heuristic without fully opening
// the repository: a directory is a repository candidate if it contains
// packed-refs, or a HEAD file (covers a freshly initialized repo with no
// packed refs yet).
func LooksLikeRepository(dir string) bool {
	for _, marker := range [...]string{"packed-refs", "HEAD"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// Description reads the repo's description file, treating an absent file,
// empty contents, or the canned placeholder as no description (spec.md §3,
// §4.F step 4, and the SPEC_FULL.md supplemented "placeholder stripping"
// behavior).
func (r *Repo) Description() (string, bool) {
	data, err := os.ReadFile(filepath.Join(r.path, "description"))
	if err != nil {
		return "", false
	}
	s := strings.TrimSpace(string(data))
	if s == "" || s == placeholderDescription {
		return "", false
	}
	return s, true
}

// Owner reads gitweb.owner out of the repository's config file.
func (r *Repo) Owner() (string, bool) {
	cfg, err := r.g.ConfigScoped(config.LocalScope)
	if err != nil {
		return "", false
	}
	v := cfg.Raw.Section("gitweb").Option("owner")
	if v == "" {
		return "", false
	}
	return v, true
}

// Exported reports whether git-daemon-export-ok is present in the
// repository directory.
func (r *Repo) Exported() bool {
	_, err := os.Stat(filepath.Join(r.path, "git-daemon-export-ok"))
	return err == nil
}

// DefaultBranch returns HEAD's referent short name, or ok=false if HEAD is
// detached (points directly at a commit rather than a branch) or missing
// entirely — both are "no default branch," never an error, per
// SPEC_FULL.md's supplemented detached-HEAD handling.
func (r *Repo) DefaultBranch() (string, bool, error) {
	ref, err := r.g.Reference(plumbing.HEAD, false)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if ref.Type() != plumbing.SymbolicReference {
		return "", false, nil
	}
	return ref.Target().Short(), true, nil
}

// LastModified returns the max committer time across every reference in the
// repository, peeling tags and skipping anything that doesn't resolve to a
// commit. Returns the zero value if the repository has no references at
// all, which callers represent as the Unix epoch per spec.md §3.
func (r *Repo) LastModified() (time.Time, error) {
	iter, err := r.g.References()
	if err != nil {
		return time.Time{}, err
	}
	defer iter.Close()

	var max time.Time
	walkErr := iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		commit, err := r.PeelToCommit(ref.Hash())
		if err != nil {
			return nil // not a commit-bearing ref; skip, not fatal
		}
		if commit.Committer.When.After(max) {
			max = commit.Committer.When
		}
		return nil
	})
	return max, walkErr
}

// PeelToCommit resolves h, through an arbitrary chain of tag objects, down
// to the commit it ultimately names. Returns an error if h does not
// ultimately name a commit (e.g. a ref pointing straight at a tree or blob,
// which Git permits but this index has no use for).
func (r *Repo) PeelToCommit(h plumbing.Hash) (*object.Commit, error) {
	obj, err := r.g.Object(plumbing.AnyObject, h)
	if err != nil {
		return nil, err
	}
	for {
		switch o := obj.(type) {
		case *object.Commit:
			return o, nil
		case *object.Tag:
			target, err := o.Object()
			if err != nil {
				return nil, err
			}
			obj = target
		default:
			return nil, fmt.Errorf("gitrepo: %s does not resolve to a commit", h)
		}
	}
}

// References returns every local-branch and tag reference in the
// repository (spec.md §4.G: "retain those categorised as local branches or
// tags").
func (r *Repo) References() ([]*plumbing.Reference, error) {
	iter, err := r.g.References()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*plumbing.Reference
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Name().IsBranch() || ref.Name().IsTag() {
			out = append(out, ref)
		}
		return nil
	})
	return out, err
}

// RevWalk enumerates commits reachable from tip in reverse-chronological
// (newest first) order, spec.md §4.G step 5.
func (r *Repo) RevWalk(tip plumbing.Hash) (object.CommitIter, error) {
	return r.g.Log(&git.LogOptions{From: tip, Order: git.LogOrderCommitterTime})
}

// TreeEntry is one entry produced by a breadth-first tree walk.
type TreeEntry struct {
	Path string
	Mode filemode.FileMode
	Hash plumbing.Hash
}

// IsDir reports whether this entry is itself a (non-submodule) directory.
func (e TreeEntry) IsDir() bool { return e.Mode == filemode.Dir }

// IsSubmodule reports whether this entry is a gitlink / submodule pointer.
func (e TreeEntry) IsSubmodule() bool { return e.Mode == filemode.Submodule }

// WalkTreeBFS walks every entry reachable from the tree at root, breadth
// first: all entries of a directory are visited (and, for the hasher in
// internal/xhash, fed in) before any of that directory's subdirectories are
// descended into. A subtree that fails to resolve is skipped, not fatal —
// spec.md §7's "Git object lookup failure" policy.
func (r *Repo) WalkTreeBFS(root plumbing.Hash) ([]TreeEntry, error) {
	type queued struct {
		hash   plumbing.Hash
		prefix string
	}
	queue := []queued{{hash: root, prefix: ""}}
	var out []TreeEntry

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		tree, err := r.g.TreeObject(cur.hash)
		if err != nil {
			continue
		}
		for _, e := range tree.Entries {
			path := e.Name
			if cur.prefix != "" {
				path = cur.prefix + "/" + e.Name
			}
			out = append(out, TreeEntry{Path: path, Mode: e.Mode, Hash: e.Hash})
			if e.Mode == filemode.Dir {
				queue = append(queue, queued{hash: e.Hash, prefix: path})
			}
		}
	}
	return out, nil
}

// CommitObject resolves a commit by hash.
func (r *Repo) CommitObject(h plumbing.Hash) (*object.Commit, error) {
	return r.g.CommitObject(h)
}

// TagObject resolves an annotated tag object by hash. Returns
// plumbing.ErrObjectNotFound-wrapping errors unchanged so callers can
// distinguish "this ref is a lightweight tag" (the hash names a commit, not
// a tag object) from a genuine lookup failure.
func (r *Repo) TagObject(h plumbing.Hash) (*object.Tag, error) {
	return r.g.TagObject(h)
}

// SubmoduleURLs parses the .gitmodules blob (if any) reachable from root,
// returning a map from submodule path to its declared URL.
func (r *Repo) SubmoduleURLs(root plumbing.Hash) (map[string]string, error) {
	tree, err := r.g.TreeObject(root)
	if err != nil {
		return nil, err
	}
	f, err := tree.File(".gitmodules")
	if err != nil {
		return map[string]string{}, nil
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, err
	}

	var mods config.Modules
	if err := mods.Unmarshal([]byte(contents)); err != nil {
		return map[string]string{}, nil
	}

	out := make(map[string]string, len(mods.Submodules))
	for _, sub := range mods.Submodules {
		out[sub.Path] = RewriteSubmoduleURL(sub.URL)
	}
	return out, nil
}

// RewriteSubmoduleURL rewrites git:// and ssh:// submodule URLs to https://,
// matching the original implementation's handling (a prefix rewrite, not a
// full URL parse, so scp-like "git@host:path" forms pass through
// unmolested rather than erroring).
func RewriteSubmoduleURL(url string) string {
	switch {
	case strings.HasPrefix(url, "git://"):
		return "https://" + strings.TrimPrefix(url, "git://")
	case strings.HasPrefix(url, "ssh://"):
		return "https://" + strings.TrimPrefix(url, "ssh://")
	default:
		return url
	}
}
