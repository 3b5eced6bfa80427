package index

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/vcsindex/barehub/internal/gitrepo"
	"github.com/vcsindex/barehub/internal/keys"
	"github.com/vcsindex/barehub/internal/record"
	"github.com/vcsindex/barehub/internal/store"
	"github.com/vcsindex/barehub/internal/xhash"
)

// IndexTree implements spec.md §4.H: it content-addresses the Git tree at
// root via a breadth-first (path, mode) hash, and if that digest has not
// been seen before, flattens the whole tree into per-entry TreeItem rows
// plus a SortedTree summary, writing both in one batch. Returns the
// content-addressed indexed_tree_id either way (freshly written, or
// previously indexed).
func IndexTree(s *store.Store, repo *gitrepo.Repo, root plumbing.Hash) (uint64, error) {
	if cached, ok, err := lookupTreeRef(s, root); err != nil {
		return 0, err
	} else if ok {
		return cached, nil
	}

	entries, err := repo.WalkTreeBFS(root)
	if err != nil {
		return 0, err
	}

	shape := xhash.NewTreeShape()
	for _, e := range entries {
		shape.Add(e.Path, uint16(e.Mode))
	}
	digest := shape.Digest()

	// Probe by the content digest itself: a second, unrelated Git tree with
	// the same shape must not be re-flattened.
	existing, err := s.PrefixIteratorCF(store.BucketTreeItem, keys.TreeItemAllPrefix(digest))
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		if err := writeTreeItems(s, repo, digest, root, entries); err != nil {
			return 0, err
		}
	}

	if err := s.PutCF(store.BucketTree, keys.TreeKey([20]byte(root)), record.EncodeTreeRef(&record.TreeRef{IndexedTreeID: digest})); err != nil {
		return 0, err
	}
	return digest, nil
}

func lookupTreeRef(s *store.Store, root plumbing.Hash) (uint64, bool, error) {
	raw, ok, err := s.GetCF(store.BucketTree, keys.TreeKey([20]byte(root)))
	if err != nil || !ok {
		return 0, false, err
	}
	ref, err := record.DecodeTreeRef(raw)
	if err != nil {
		return 0, false, err
	}
	return ref.IndexedTreeID, true, nil
}

func writeTreeItems(s *store.Store, repo *gitrepo.Repo, digest uint64, root plumbing.Hash, entries []gitrepo.TreeEntry) error {
	var submoduleURLs map[string]string
	needSubmoduleURLs := false
	for _, e := range entries {
		if e.Mode == filemode.Submodule {
			needSubmoduleURLs = true
			break
		}
	}
	if needSubmoduleURLs {
		var err error
		submoduleURLs, err = repo.SubmoduleURLs(root)
		if err != nil {
			submoduleURLs = map[string]string{}
		}
	}

	var batch store.Batch
	sorted := record.NewSortedTree()

	for _, e := range entries {
		item := &record.TreeItem{Mode: uint16(e.Mode)}
		switch e.Mode {
		case filemode.Dir:
			item.Kind = record.KindTree
		case filemode.Submodule:
			item.Kind = record.KindSubmodule
			copy(item.SubmoduleOID[:], e.Hash[:])
			item.SubmoduleURL = submoduleURLs[e.Path]
		default:
			item.Kind = record.KindFile
		}

		batch.Put(store.BucketTreeItem, keys.TreeItemKey(digest, e.Path), record.EncodeTreeItem(item))
		if e.Mode != filemode.Dir {
			sorted.Insert(e.Path)
		}
	}

	batch.Put(store.BucketSortedTree, keys.SortedTreeKey(digest), record.EncodeSortedTree(sorted))
	return s.WriteWithoutWAL(&batch)
}
