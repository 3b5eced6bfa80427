// Package store is the thin facade over the embedded key-value engine that
// spec.md §4.C describes: column-family reads/writes, prefix iteration,
// range deletion and atomic batches, plus the schema gate of §4.D.
//
// A bbolt bucket plays the role of a RocksDB column family: an
// independently-keyed, lexicographically byte-sorted namespace created once
// at open time. Unlike RocksDB, bbolt has no custom prefix-extractor
// concept and no WAL to selectively skip — both are approximated here
// (prefix scanning via cursor.Seek plus a bytes.HasPrefix bound; "without
// WAL" via bbolt's documented DB.NoSync escape hatch) rather than
// reproduced exactly; see DESIGN.md.
package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/vcsindex/barehub/internal/keys"
)

// SchemaVersion is the monotonically increasing schema version constant
// baked into this binary, spec.md §4.D.
const SchemaVersion = "3"

// Column family names, spec.md §4.C.
var (
	BucketDefault     = []byte("default")
	BucketRepository  = []byte("repository")
	BucketCommit      = []byte("commit")
	BucketCommitCount = []byte("commit_count")
	BucketTag         = []byte("tag")
	BucketReference   = []byte("reference")
	BucketTree        = []byte("tree")
	BucketTreeItem    = []byte("tree_item")
	BucketSortedTree  = []byte("sorted_tree")
)

var allBuckets = [][]byte{
	BucketDefault,
	BucketRepository,
	BucketCommit,
	BucketCommitCount,
	BucketTag,
	BucketReference,
	BucketTree,
	BucketTreeItem,
	BucketSortedTree,
}

// Store wraps one bbolt database rooted at a directory, dbFileName inside
// it. Safe for concurrent use: bbolt serializes writers internally and
// supports many concurrent readers, so no external lock is held here
// during reads, matching spec.md §5.
type Store struct {
	dir    string
	db     *bbolt.DB
	log    *zap.Logger
	noSync sync.Mutex
}

const dbFileName = "data.db"

// Open opens (creating if absent) the store at dir, applying the schema
// gate of spec.md §4.D: if the persisted schema_version differs from
// SchemaVersion, the store directory is destroyed and recreated from
// scratch before Open returns successfully.
func Open(dir string, log *zap.Logger) (*Store, error) {
	for {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
		db, err := bbolt.Open(filepath.Join(dir, dbFileName), 0o600, nil)
		if err != nil {
			return nil, fmt.Errorf("store: open: %w", err)
		}
		if err := createBuckets(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: create buckets: %w", err)
		}

		match, err := checkSchemaVersion(db)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("store: schema check: %w", err)
		}
		if match {
			return &Store{dir: dir, db: db, log: log}, nil
		}

		log.Warn("schema version mismatch, destroying store", zap.String("dir", dir))
		db.Close()
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("store: destroy for schema mismatch: %w", err)
		}
	}
}

func createBuckets(db *bbolt.DB) error {
	return db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// checkSchemaVersion implements spec.md §4.D's tri-state: absent (write
// current, proceed), equal (proceed), different (caller destroys).
func checkSchemaVersion(db *bbolt.DB) (matches bool, err error) {
	err = db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(BucketDefault)
		v := b.Get(keys.SchemaVersionKey)
		if v == nil {
			matches = true
			return b.Put(keys.SchemaVersionKey, []byte(SchemaVersion))
		}
		matches = string(v) == SchemaVersion
		return nil
	})
	return matches, err
}

// PersistedSchemaVersion returns the schema_version currently stored in the
// default bucket, for tests and diagnostics.
func (s *Store) PersistedSchemaVersion() (string, error) {
	v, ok, err := s.GetCF(BucketDefault, keys.SchemaVersionKey)
	if err != nil || !ok {
		return "", err
	}
	return string(v), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Destroy closes the store and removes its directory from disk.
func (s *Store) Destroy() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	return os.RemoveAll(s.dir)
}

// Flush forces a commit of any pending state to stable storage. bbolt
// commits every Update transaction durably already (absent NoSync), so
// Flush is a cheap synchronization point a caller can use after a burst of
// WriteWithoutWAL batches to force them past the page cache; failure is
// logged by the caller per spec.md §4.J/§7, never fatal.
func (s *Store) Flush() error {
	return s.db.Update(func(tx *bbolt.Tx) error { return nil })
}

// GetCF returns a copy of the value at key in bucket, or ok=false if absent.
// The returned slice is owned by the caller and safe to retain indefinitely
// (including across goroutine suspension points): it is copied out of
// bbolt's read transaction before the transaction closes, since bbolt
// explicitly forbids retaining values past their transaction's lifetime.
func (s *Store) GetCF(bucket, key []byte) (value []byte, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v == nil {
			return nil
		}
		ok = true
		value = append([]byte(nil), v...)
		return nil
	})
	return value, ok, err
}

// GetPinnedCF is the zero-copy variant of GetCF for callers who consume the
// value entirely inside fn and never retain it afterward: it passes the
// transaction-owned slice straight through without the defensive copy,
// matching spec.md §4.C's get_pinned_cf.
func (s *Store) GetPinnedCF(bucket, key []byte, fn func(value []byte, ok bool) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		return fn(v, v != nil)
	})
}

// PutCF writes key/value into bucket in its own transaction.
func (s *Store) PutCF(bucket, key, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put(key, value)
	})
}

// DeleteCF removes key from bucket in its own transaction. Deleting an
// absent key is not an error.
func (s *Store) DeleteCF(bucket, key []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

// DeleteRangeCF deletes every key in [start, end) from bucket. A nil end
// means unbounded (delete through the end of the bucket).
func (s *Store) DeleteRangeCF(bucket, start, end []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, _ := c.Seek(start); k != nil; k, _ = c.Next() {
			if end != nil && bytes.Compare(k, end) >= 0 {
				break
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}

// KV is one key/value pair copied out of a read transaction.
type KV struct {
	Key   []byte
	Value []byte
}

// PrefixIteratorCF returns every key/value pair in bucket whose key starts
// with prefix, in ascending key order.
func (s *Store) PrefixIteratorCF(bucket, prefix []byte) ([]KV, error) {
	var out []KV
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			out = append(out, KV{
				Key:   append([]byte(nil), k...),
				Value: append([]byte(nil), v...),
			})
		}
		return nil
	})
	return out, err
}

// Direction selects iteration order for IteratorCFOpt.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

// IteratorCFOpt returns every key/value pair in bucket within [start, end)
// (end nil means unbounded), in the given direction.
func (s *Store) IteratorCFOpt(bucket, start, end []byte, dir Direction) ([]KV, error) {
	var out []KV
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		if dir == Forward {
			for k, v := c.Seek(start); k != nil; k, v = c.Next() {
				if end != nil && bytes.Compare(k, end) >= 0 {
					break
				}
				out = append(out, KV{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)})
			}
			return nil
		}
		// Reverse: seek to end (or last key), then walk backward to start.
		var k, v []byte
		if end != nil {
			k, v = c.Seek(end)
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
		} else {
			k, v = c.Last()
		}
		for ; k != nil; k, v = c.Prev() {
			if bytes.Compare(k, start) < 0 {
				break
			}
			out = append(out, KV{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)})
		}
		return nil
	})
	return out, err
}

// Op is one operation in a Batch: either a put (Value non-nil) or a delete
// (Value nil).
type Op struct {
	Bucket []byte
	Key    []byte
	Value  []byte
}

// Batch is an ordered set of operations, possibly spanning several
// buckets, applied atomically by Write or WriteWithoutWAL.
type Batch struct {
	ops []Op
}

// Put appends a put operation to the batch.
func (b *Batch) Put(bucket, key, value []byte) {
	b.ops = append(b.ops, Op{Bucket: bucket, Key: key, Value: value})
}

// Delete appends a delete operation to the batch.
func (b *Batch) Delete(bucket, key []byte) {
	b.ops = append(b.ops, Op{Bucket: bucket, Key: key, Value: nil})
}

// Len reports the number of queued operations.
func (b *Batch) Len() int { return len(b.ops) }

func (s *Store) applyBatch(tx *bbolt.Tx, batch *Batch) error {
	for _, op := range batch.ops {
		bucket := tx.Bucket(op.Bucket)
		if op.Value == nil {
			if err := bucket.Delete(op.Key); err != nil {
				return err
			}
			continue
		}
		if err := bucket.Put(op.Key, op.Value); err != nil {
			return err
		}
	}
	return nil
}

// Write commits batch durably.
func (s *Store) Write(batch *Batch) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.applyBatch(tx, batch)
	})
}

// WriteWithoutWAL commits batch the same way Write does, except the
// transaction's fsync is skipped (bbolt's DB.NoSync, toggled for the
// duration of this call only). Used for commit/tree ingestion batches
// where crash-replay by re-walking Git history is acceptable and preferable
// to fsync cost, per spec.md §4.C.
func (s *Store) WriteWithoutWAL(batch *Batch) error {
	s.noSync.Lock()
	defer s.noSync.Unlock()
	prev := s.db.NoSync
	s.db.NoSync = true
	defer func() { s.db.NoSync = prev }()
	return s.db.Update(func(tx *bbolt.Tx) error {
		return s.applyBatch(tx, batch)
	})
}
