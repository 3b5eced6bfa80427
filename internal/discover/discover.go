// Package discover implements spec.md §4.E's two repository-discovery
// modes: a recursive filesystem walk rooted at scan_path, and a static
// newline-delimited list of relative paths supplied up front.
package discover

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/vcsindex/barehub/internal/gitrepo"
)

// Found is one repository located by a discovery pass, identified by its
// path joined onto the scan root (absolute only when the scan root is) plus
// the path relative to the scan root (used to derive a stable display name).
type Found struct {
	AbsPath string
	RelPath string
}

// Walk recursively descends root, stopping at the first directory along
// each branch that looks like a Git repository (it is never descended
// into further, since bare repositories keep their own nested object/ and
// refs/ directories that are not further repositories). Directories that
// fail to open for reasons other than "not a repository" are logged and
// skipped rather than aborting the whole walk, per spec.md §7.
func Walk(root string, log *zap.Logger) ([]Found, error) {
	var found []Found

	var visit func(dir, rel string) error
	visit = func(dir, rel string) error {
		if gitrepo.LooksLikeRepository(dir) {
			if _, err := gitrepo.Open(dir); err != nil {
				if errors.Is(err, gitrepo.ErrNotARepository) {
					return nil
				}
				log.Warn("skipping unreadable repository candidate",
					zap.String("path", dir), zap.Error(err))
				return nil
			}
			found = append(found, Found{AbsPath: dir, RelPath: rel})
			return nil
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Warn("skipping unreadable directory", zap.String("path", dir), zap.Error(err))
			return nil
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			childRel := e.Name()
			if rel != "" {
				childRel = filepath.Join(rel, e.Name())
			}
			if err := visit(filepath.Join(dir, e.Name()), childRel); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(root, ""); err != nil {
		return nil, err
	}
	return found, nil
}

// List reads newline-delimited paths (relative to root) from r, one
// candidate repository per line. Blank lines are ignored. Unlike Walk,
// every listed entry is expected to be a repository; one that fails to
// open is logged and skipped, never fatal to the rest of the list.
func List(root string, r io.Reader, log *zap.Logger) ([]Found, error) {
	var found []Found
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		rel := scanner.Text()
		if rel == "" {
			continue
		}
		abs := filepath.Join(root, rel)
		if _, err := gitrepo.Open(abs); err != nil {
			log.Warn("skipping listed path that is not a repository",
				zap.String("path", abs), zap.Error(err))
			continue
		}
		found = append(found, Found{AbsPath: abs, RelPath: rel})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return found, nil
}
