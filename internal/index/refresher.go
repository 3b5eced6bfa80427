// Package index implements the indexer phases of spec.md §4.F-§4.K: the
// metadata refresher, ref indexer (with its tree-indexing subroutine), tag
// indexer, serial driver, and scheduler.
package index

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/vcsindex/barehub/internal/gitrepo"
	"github.com/vcsindex/barehub/internal/keys"
	"github.com/vcsindex/barehub/internal/record"
	"github.com/vcsindex/barehub/internal/store"
)

// RefreshMetadata implements spec.md §4.F for one discovered repository:
// it upserts the Repository record at relPath, allocating a fresh random
// id on first sight and keeping the stored id afterwards. Every other field
// is re-read from repo on each refresh and overwrites the stored value: a
// description or owner that cannot be read is stored as absent, and a
// failed last-modified scan as the epoch; a default-branch read error
// returns without writing. A read error on the existing record is logged
// and treated as "skip this repo, try again next cycle" — never as cause
// to delete it, since corruption may be transient.
func RefreshMetadata(s *store.Store, log *zap.Logger, scanRoot, relPath string, repo *gitrepo.Repo) error {
	if strings.HasPrefix(relPath, "..") {
		log.Warn("repository path escapes scan root, skipping", zap.String("path", relPath))
		return nil
	}

	key := keys.RepositoryKey(relPath)
	var id uint64
	raw, ok, err := s.GetCF(store.BucketRepository, key)
	if err != nil {
		log.Warn("repository record read error, skipping refresh", zap.String("path", relPath), zap.Error(err))
		return nil
	}
	if ok {
		existing, err := record.DecodeRepository(raw)
		if err != nil {
			log.Warn("repository record decode error, skipping refresh", zap.String("path", relPath), zap.Error(err))
			return nil
		}
		id = existing.ID
	} else {
		id, err = allocateRepoID()
		if err != nil {
			return fmt.Errorf("index: allocate repo id: %w", err)
		}
	}

	desc, hasDesc := repo.Description()
	owner, hasOwner := repo.Owner()
	branch, hasBranch, err := repo.DefaultBranch()
	if err != nil {
		return fmt.Errorf("index: default branch: %w", err)
	}

	lastMod, err := repo.LastModified()
	if err != nil {
		log.Warn("last-modified scan failed, defaulting to epoch", zap.String("path", relPath), zap.Error(err))
	}

	var lastModTS record.Timestamp
	if !lastMod.IsZero() {
		_, offset := lastMod.Zone()
		lastModTS = record.Timestamp{Seconds: lastMod.Unix(), Offset: int32(offset)}
	}

	rec := &record.Repository{
		ID:           id,
		Name:         filepath.Base(relPath),
		LastModified: lastModTS,
		Exported:     repo.Exported(),
	}
	if hasDesc {
		rec.Description = &desc
	}
	if hasOwner {
		rec.Owner = &owner
	}
	if hasBranch {
		rec.DefaultBranch = &branch
	}

	return s.PutCF(store.BucketRepository, key, record.EncodeRepository(rec))
}

func allocateRepoID() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
