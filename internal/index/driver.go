package index

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vcsindex/barehub/internal/discover"
	"github.com/vcsindex/barehub/internal/gitcache"
	"github.com/vcsindex/barehub/internal/gitrepo"
	"github.com/vcsindex/barehub/internal/keys"
	"github.com/vcsindex/barehub/internal/record"
	"github.com/vcsindex/barehub/internal/store"
)

// Driver owns the dependencies one indexing cycle needs: the store, the
// discovery configuration, and a shared handle cache so a repository
// opened for metadata refresh is reused for ref and tag indexing within
// the same cycle.
type Driver struct {
	Store    *store.Store
	Log      *zap.Logger
	ScanRoot string
	ListFile string // empty means Walk mode
	Cache    *gitcache.Cache
}

// RunCycle implements spec.md §4.J: serial phases per cycle (discover,
// metadata refresh, ref indexing, tag indexing, prune, flush); a flush
// failure is logged but not fatal. The cycle's start and end are logged
// (the end with its repository count and duration) and each repository gets
// a debug line with its duration; the individual phases are not timed
// separately, only a failing phase is named in its warning.
func (d *Driver) RunCycle() error {
	start := time.Now()
	d.Log.Info("indexer cycle starting")

	found, err := d.discoverRepos()
	if err != nil {
		return err
	}

	for _, f := range found {
		d.indexOne(f)
	}

	d.pruneDeleted()

	if err := d.Store.Flush(); err != nil {
		d.Log.Warn("flush failed, will retry next cycle", zap.Error(err))
	}

	d.Log.Info("indexer cycle finished",
		zap.Int("repositories", len(found)), zap.Duration("duration", time.Since(start)))
	return nil
}

func (d *Driver) discoverRepos() ([]discover.Found, error) {
	if d.ListFile != "" {
		f, err := os.Open(d.ListFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return discover.List(d.ScanRoot, f, d.Log)
	}
	return discover.Walk(d.ScanRoot, d.Log)
}

// indexOne runs F→G→I for one discovered repository. A failure in any
// phase is logged and the repository is skipped for the remainder of this
// cycle; it is retried on the next cycle.
func (d *Driver) indexOne(found discover.Found) {
	phaseStart := time.Now()
	repo, err := d.Cache.Get(found.AbsPath)
	if err != nil {
		d.Log.Warn("failed to open repository, skipping this cycle",
			zap.String("path", found.AbsPath), zap.Error(err))
		return
	}

	if err := RefreshMetadata(d.Store, d.Log, d.ScanRoot, found.RelPath, repo); err != nil {
		d.Log.Warn("metadata refresh failed", zap.String("path", found.RelPath), zap.Error(err))
		return
	}

	raw, ok, err := d.Store.GetCF(store.BucketRepository, keys.RepositoryKey(found.RelPath))
	if err != nil || !ok {
		d.Log.Warn("repository record missing after refresh, skipping", zap.String("path", found.RelPath))
		return
	}
	repoRec, err := record.DecodeRepository(raw)
	if err != nil {
		d.Log.Warn("repository record undecodable after refresh, skipping", zap.String("path", found.RelPath), zap.Error(err))
		return
	}

	if err := IndexRefs(d.Store, d.Log, repo, repoRec.ID); err != nil {
		d.Log.Warn("ref indexing failed", zap.String("path", found.RelPath), zap.Error(err))
		return
	}
	if err := IndexTags(d.Store, d.Log, repo, repoRec.ID); err != nil {
		d.Log.Warn("tag indexing failed", zap.String("path", found.RelPath), zap.Error(err))
		return
	}

	d.Log.Debug("repository indexed",
		zap.String("path", found.RelPath), zap.Duration("duration", time.Since(phaseStart)))
}

// pruneDeleted implements spec.md §3's repository lifecycle ("deleted when
// their directory disappears from disk") and §7's "Repository gone from
// disk" row: it walks every stored repository and, for any whose path no
// longer opens as a Git repository, removes its Repository row and every
// range keyed by its repo_id.
func (d *Driver) pruneDeleted() {
	kvs, err := d.Store.PrefixIteratorCF(store.BucketRepository, nil)
	if err != nil {
		d.Log.Warn("failed to list stored repositories for pruning", zap.Error(err))
		return
	}

	for _, kv := range kvs {
		relPath := string(kv.Key)
		rec, err := record.DecodeRepository(kv.Value)
		if err != nil {
			d.Log.Warn("repository record undecodable while pruning, skipping",
				zap.String("path", relPath), zap.Error(err))
			continue
		}

		absPath := filepath.Join(d.ScanRoot, relPath)
		if _, err := gitrepo.Open(absPath); err != nil {
			if !errors.Is(err, gitrepo.ErrNotARepository) {
				d.Log.Warn("failed to probe repository while pruning, leaving it indexed",
					zap.String("path", relPath), zap.Error(err))
				continue
			}
			d.Log.Info("repository gone from disk, removing from index", zap.String("path", relPath))
			d.Cache.Evict(absPath)
			if err := d.dropRepository(relPath, rec.ID); err != nil {
				d.Log.Warn("failed to remove deleted repository's index state",
					zap.String("path", relPath), zap.Error(err))
			}
		}
	}
}

// dropRepository deletes repoID's commit, commit-count, tag, and reference
// ranges along with its Repository row at relPath.
func (d *Driver) dropRepository(relPath string, repoID uint64) error {
	prefix := keys.RepoPrefix(repoID)
	upper, ok := keys.PrefixUpperBound(prefix)
	end := boundOrNil(upper, ok)

	if err := d.Store.DeleteRangeCF(store.BucketCommit, prefix, end); err != nil {
		return err
	}
	if err := d.Store.DeleteRangeCF(store.BucketCommitCount, prefix, end); err != nil {
		return err
	}
	if err := d.Store.DeleteRangeCF(store.BucketTag, prefix, end); err != nil {
		return err
	}
	if err := d.Store.DeleteCF(store.BucketReference, keys.ReferenceKey(repoID)); err != nil {
		return err
	}
	return d.Store.DeleteCF(store.BucketRepository, keys.RepositoryKey(relPath))
}
