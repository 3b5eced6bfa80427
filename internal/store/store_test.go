package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenWritesSchemaVersion(t *testing.T) {
	s := openTestStore(t)
	v, err := s.PersistedSchemaVersion()
	require.NoError(t, err)
	require.Equal(t, SchemaVersion, v)
}

func TestOpenDestroysOnSchemaMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	s, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.PutCF(BucketRepository, []byte("stale"), []byte("data")))
	require.NoError(t, s.Close())

	// Simulate an older build having written an obsolete version by
	// reopening the store and overwriting the key with something else.
	s2, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s2.PutCF(BucketDefault, []byte("schema_version"), []byte("0")))
	require.NoError(t, s2.Close())

	s3, err := Open(dir, zap.NewNop())
	require.NoError(t, err)
	defer s3.Close()

	v, err := s3.PersistedSchemaVersion()
	require.NoError(t, err)
	require.Equal(t, SchemaVersion, v)

	// The stale repository row must not have survived the destroy+recreate.
	_, ok, err := s3.GetCF(BucketRepository, []byte("stale"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetPutDeleteCF(t *testing.T) {
	s := openTestStore(t)
	key := []byte("k")

	_, ok, err := s.GetCF(BucketRepository, key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.PutCF(BucketRepository, key, []byte("v1")))
	v, ok, err := s.GetCF(BucketRepository, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, s.DeleteCF(BucketRepository, key))
	_, ok, err = s.GetCF(BucketRepository, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPrefixIteratorCF(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutCF(BucketCommit, []byte("a\x00\x00\x00\x00\x00\x00\x00\x00\x00"), []byte("0")))
	require.NoError(t, s.PutCF(BucketCommit, []byte("a\x00\x00\x00\x00\x00\x00\x00\x00\x01"), []byte("1")))
	require.NoError(t, s.PutCF(BucketCommit, []byte("b\x00\x00\x00\x00\x00\x00\x00\x00\x00"), []byte("2")))

	got, err := s.PrefixIteratorCF(BucketCommit, []byte("a\x00"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, []byte("0"), got[0].Value)
	require.Equal(t, []byte("1"), got[1].Value)
}

func TestDeleteRangeCF(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutCF(BucketCommit, []byte("a0"), []byte("x")))
	require.NoError(t, s.PutCF(BucketCommit, []byte("a1"), []byte("x")))
	require.NoError(t, s.PutCF(BucketCommit, []byte("b0"), []byte("x")))

	require.NoError(t, s.DeleteRangeCF(BucketCommit, []byte("a"), []byte("b")))

	got, err := s.PrefixIteratorCF(BucketCommit, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []byte("b0"), got[0].Key)
}

func TestIteratorCFOptReverse(t *testing.T) {
	s := openTestStore(t)
	for _, k := range []string{"a0", "a1", "a2"} {
		require.NoError(t, s.PutCF(BucketCommit, []byte(k), []byte(k)))
	}

	got, err := s.IteratorCFOpt(BucketCommit, []byte("a0"), []byte("a3"), Reverse)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []byte("a2"), got[0].Key)
	require.Equal(t, []byte("a0"), got[2].Key)
}

func TestWriteBatchAcrossBuckets(t *testing.T) {
	s := openTestStore(t)
	var b Batch
	b.Put(BucketCommit, []byte("c"), []byte("cv"))
	b.Put(BucketCommitCount, []byte("cc"), []byte("ccv"))
	require.NoError(t, s.Write(&b))

	v, ok, err := s.GetCF(BucketCommit, []byte("c"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("cv"), v)

	v, ok, err = s.GetCF(BucketCommitCount, []byte("cc"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("ccv"), v)
}

func TestWriteWithoutWAL(t *testing.T) {
	s := openTestStore(t)
	var b Batch
	b.Put(BucketCommit, []byte("c"), []byte("cv"))
	require.NoError(t, s.WriteWithoutWAL(&b))

	v, ok, err := s.GetCF(BucketCommit, []byte("c"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("cv"), v)
	require.False(t, s.db.NoSync) // restored after the call
}
