package index

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vcsindex/barehub/internal/gitrepo"
	"github.com/vcsindex/barehub/internal/keys"
	"github.com/vcsindex/barehub/internal/record"
	"github.com/vcsindex/barehub/internal/store"
)

// IndexTags implements spec.md §4.I: diff the Git repo's refs/tags/* set
// against the tag family's indexed set for repoID, inserting newly
// annotated tags (also indexing their tree) and deleting stale entries.
// Lightweight tags are silently skipped on insert, per spec.md step 5 and
// the Open Question decision recorded in DESIGN.md.
func IndexTags(s *store.Store, log *zap.Logger, repo *gitrepo.Repo, repoID uint64) error {
	refs, err := repo.References()
	if err != nil {
		return fmt.Errorf("index: list references for tags: %w", err)
	}

	gitTags := make(map[string]struct{})
	for _, ref := range refs {
		if ref.Name().IsTag() {
			gitTags[ref.Name().String()] = struct{}{}
		}
	}

	prefix := keys.TagPrefix(repoID)
	indexed, err := s.PrefixIteratorCF(store.BucketTag, prefix)
	if err != nil {
		return fmt.Errorf("index: list indexed tags: %w", err)
	}
	indexedSet := make(map[string]struct{}, len(indexed))
	for _, kv := range indexed {
		indexedSet[keys.RefNameFromTagKey(kv.Key)] = struct{}{}
	}

	for _, ref := range refs {
		if !ref.Name().IsTag() {
			continue
		}
		name := ref.Name().String()
		if _, already := indexedSet[name]; already {
			continue
		}

		tagObj, err := repo.TagObject(ref.Hash())
		if err != nil {
			// Lightweight tag (or any other non-tag-object ref): skip on
			// insert, never treated as stale since it will never appear in
			// indexedSet either.
			continue
		}

		commit, err := tagObj.Commit()
		if err != nil {
			log.Warn("annotated tag does not resolve to a commit, skipping", zap.String("tag", name), zap.Error(err))
			continue
		}

		treeID, err := IndexTree(s, repo, commit.TreeHash)
		if err != nil {
			return fmt.Errorf("index: tree for tag %s: %w", name, err)
		}

		rec := &record.Tag{
			Tagger: &record.Signature{
				Name:  tagObj.Tagger.Name,
				Email: tagObj.Tagger.Email,
				Time:  toTimestamp(tagObj.Tagger.When),
			},
			TreeID: &treeID,
		}
		if err := s.PutCF(store.BucketTag, keys.TagKey(repoID, name), record.EncodeTag(rec)); err != nil {
			return fmt.Errorf("index: write tag %s: %w", name, err)
		}
	}

	for name := range indexedSet {
		if _, stillExists := gitTags[name]; !stillExists {
			if err := s.DeleteCF(store.BucketTag, keys.TagKey(repoID, name)); err != nil {
				return fmt.Errorf("index: delete stale tag %s: %w", name, err)
			}
		}
	}

	return nil
}
