package index

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/vcsindex/barehub/internal/gitrepo"
	"github.com/vcsindex/barehub/internal/keys"
	"github.com/vcsindex/barehub/internal/record"
	"github.com/vcsindex/barehub/internal/store"
)

// commitChunkSize is how many commits accumulate into one write batch
// before it is flushed and the commit-count advanced, spec.md §4.G step 7.
const commitChunkSize = 250

// progressEvery is how often the ref indexer logs ingestion progress,
// spec.md §4.G's "log N commits ingested every 25 000 commits."
const progressEvery = 25000

// ErrDiverged is returned by UpdateRef when a forced reindex still fails to
// observe the previously-indexed tip: per spec.md §4.G step 8 and the
// per-ref state machine in §4.K, a second unsuccessful pass is a hard
// error rather than a further retry.
var ErrDiverged = errors.New("index: ref diverged even after forced reindex")

// IndexRefs implements spec.md §4.G's outer loop: index every retained
// reference, then atomically replace the repository's Heads record with
// the set of ref names that still exist.
func IndexRefs(s *store.Store, log *zap.Logger, repo *gitrepo.Repo, repoID uint64) error {
	refs, err := repo.References()
	if err != nil {
		return fmt.Errorf("index: list references: %w", err)
	}

	var live []string
	for _, ref := range refs {
		name := ref.Name().String()
		if err := UpdateRef(s, log, repo, repoID, name, ref.Hash(), false); err != nil {
			log.Warn("ref indexing failed, leaving ref unindexed this cycle",
				zap.String("ref", name), zap.Error(err))
			continue
		}
		live = append(live, name)
	}

	heads := &record.Heads{Refs: live}
	return s.PutCF(store.BucketReference, keys.ReferenceKey(repoID), record.EncodeHeads(heads))
}

// UpdateRef implements spec.md §4.G's single-ref update routine for one
// (repoID, refName) pair whose tip is currently at tip. forceReindex, when
// true, drops all previously-indexed state for this ref before walking
// (used both for an explicit caller-requested reindex and for this
// function's own single retry on detected history rewrite).
func UpdateRef(s *store.Store, log *zap.Logger, repo *gitrepo.Repo, repoID uint64, refName string, tip plumbing.Hash, forceReindex bool) error {
	prefix := keys.CommitPrefix(repoID, refName)

	count, prevTipHash, hasPrev, err := latestIndexed(s, prefix)
	if err != nil {
		return fmt.Errorf("index: read indexed tip for %s: %w", refName, err)
	}
	if hasPrev && prevTipHash == [20]byte(tip) {
		return nil // already up to date
	}

	if forceReindex {
		upper, ok := keys.PrefixUpperBound(prefix)
		if err := s.DeleteRangeCF(store.BucketCommit, prefix, boundOrNil(upper, ok)); err != nil {
			return fmt.Errorf("index: clear commit range for %s: %w", refName, err)
		}
		if err := s.DeleteRangeCF(store.BucketCommitCount, prefix, boundOrNil(upper, ok)); err != nil {
			return fmt.Errorf("index: clear commit-count range for %s: %w", refName, err)
		}
		count, hasPrev = 0, false
	}

	revs, err := walkForward(repo, tip)
	if err != nil {
		return fmt.Errorf("index: rev-walk %s: %w", refName, err)
	}

	startIdx := 0
	observedPrevTip := !hasPrev
	if hasPrev {
		for i, c := range revs {
			if c.Hash == prevTipHash {
				startIdx = i + 1
				observedPrevTip = true
				break
			}
		}
	}

	if !observedPrevTip {
		if forceReindex {
			return ErrDiverged
		}
		log.Warn("history rewrite detected, forcing reindex", zap.String("ref", refName))
		return UpdateRef(s, log, repo, repoID, refName, tip, true)
	}

	toIngest := revs[startIdx:]
	seq := count
	ingested := 0
	for chunkStart := 0; chunkStart < len(toIngest); chunkStart += commitChunkSize {
		chunkEnd := chunkStart + commitChunkSize
		if chunkEnd > len(toIngest) {
			chunkEnd = len(toIngest)
		}
		chunk := toIngest[chunkStart:chunkEnd]

		var batch store.Batch
		for _, c := range chunk {
			treeID, err := IndexTree(s, repo, c.TreeHash)
			if err != nil {
				return fmt.Errorf("index: tree for commit %s: %w", c.Hash, err)
			}
			rec := &record.Commit{
				Hash:      c.Hash,
				Summary:   c.Summary,
				Message:   c.Message,
				Author:    c.Author,
				Committer: c.Committer,
				TreeID:    treeID,
			}
			batch.Put(store.BucketCommit, keys.CommitKey(repoID, refName, seq), record.EncodeCommit(rec))
			seq++
			ingested++
		}
		batch.Put(store.BucketCommitCount, keys.CommitCountKey(repoID, refName), record.EncodeCommitCount(seq))

		if err := s.WriteWithoutWAL(&batch); err != nil {
			return fmt.Errorf("index: write commit chunk for %s: %w", refName, err)
		}

		before := ingested - len(chunk)
		if before/progressEvery != ingested/progressEvery {
			log.Info("commits ingested", zap.String("ref", refName),
				zap.Int("count", (ingested/progressEvery)*progressEvery))
		}
	}

	return nil
}

func boundOrNil(upper []byte, ok bool) []byte {
	if !ok {
		return nil
	}
	return upper
}

// revision is the subset of commit data UpdateRef needs, materialized once
// per rev-walk so the forward sweep doesn't re-touch the Git object store.
type revision struct {
	Hash      [20]byte
	TreeHash  plumbing.Hash
	Summary   string
	Message   string
	Author    record.Signature
	Committer record.Signature
}

// walkForward performs the reverse-chronological rev-walk from tip (spec.md
// §4.G step 5) and materializes it into forward-chronological (oldest to
// newest) order.
func walkForward(repo *gitrepo.Repo, tip plumbing.Hash) ([]revision, error) {
	iter, err := repo.RevWalk(tip)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var reverseChron []revision
	err = iter.ForEach(func(c *object.Commit) error {
		summary, message := splitCommitMessage(c.Message)
		reverseChron = append(reverseChron, revision{
			Hash:     [20]byte(c.Hash),
			TreeHash: c.TreeHash,
			Summary:  summary,
			Message:  message,
			Author: record.Signature{
				Name: c.Author.Name, Email: c.Author.Email,
				Time: toTimestamp(c.Author.When),
			},
			Committer: record.Signature{
				Name: c.Committer.Name, Email: c.Committer.Email,
				Time: toTimestamp(c.Committer.When),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reverse into forward-chronological (oldest first) order.
	forward := make([]revision, len(reverseChron))
	for i, r := range reverseChron {
		forward[len(reverseChron)-1-i] = r
	}
	return forward, nil
}

// splitCommitMessage splits a Git commit message into its summary (first
// line) and the remainder that follows it, matching spec.md §3's
// Commit.summary/message split: summary is the subject line, message is the
// body after it, not the whole text.
func splitCommitMessage(msg string) (summary, body string) {
	for i := 0; i < len(msg); i++ {
		if msg[i] == '\n' {
			return msg[:i], strings.TrimLeft(msg[i+1:], "\n")
		}
	}
	return msg, ""
}

func toTimestamp(t time.Time) record.Timestamp {
	_, offset := t.Zone()
	return record.Timestamp{Seconds: t.Unix(), Offset: int32(offset)}
}

// latestIndexed returns the current commit count and the hash of the
// commit at seq=count-1 (the indexed tip) for the ref identified by
// prefix, or hasPrev=false if nothing has been indexed for it yet.
func latestIndexed(s *store.Store, prefix []byte) (count uint64, tipHash [20]byte, hasPrev bool, err error) {
	raw, ok, err := s.GetCF(store.BucketCommitCount, prefix)
	if err != nil || !ok {
		return 0, tipHash, false, err
	}
	count, err = record.DecodeCommitCount(raw)
	if err != nil {
		return 0, tipHash, false, err
	}
	if count == 0 {
		return 0, tipHash, false, nil
	}

	tipKey := keys.CommitKeyWithPrefix(prefix, count-1)
	tipRaw, ok, err := s.GetCF(store.BucketCommit, tipKey)
	if err != nil {
		return 0, tipHash, false, err
	}
	if !ok {
		// commit_count says count commits exist but the tip row is missing:
		// treat as no prior state rather than failing the whole cycle.
		return 0, tipHash, false, nil
	}
	tipCommit, err := record.DecodeCommit(tipRaw)
	if err != nil {
		return 0, tipHash, false, err
	}
	return count, tipCommit.Hash, true, nil
}
