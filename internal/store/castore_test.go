package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castore-io/castore/internal/config"
	"github.com/castore-io/castore/internal/fingerprint"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Create(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newFileBackedStore creates a store whose inline limit forces every
// payload into the blob file area.
func newFileBackedStore(t *testing.T) *Store {
	t.Helper()
	root := filepath.Join(t.TempDir(), "store")

	s, err := Create(root)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg, err := config.Load(root)
	require.NoError(t, err)
	cfg.InlineLimit = 1
	require.NoError(t, cfg.Save())

	s, err = Open(root)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func blobFileCount(t *testing.T, s *Store) int {
	t.Helper()
	count := 0
	err := filepath.Walk(s.cfg.BlobsPath(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && !strings.HasPrefix(info.Name(), ".") {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	return count
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("some content worth keeping")
	fp, err := s.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Compute(data), fp)

	got, err := s.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStore_RoundTripEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fp, err := s.Put(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Compute(nil), fp)

	got, err := s.Get(ctx, fp)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_RoundTripFileBacked(t *testing.T) {
	ctx := context.Background()
	s := newFileBackedStore(t)

	data := bytes.Repeat([]byte("large payload "), 1000)
	fp, err := s.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 1, blobFileCount(t, s))

	got, err := s.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStore_PutIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	data := []byte("same bytes twice")
	fp1, err := s.Put(ctx, data)
	require.NoError(t, err)
	fp2, err := s.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)

	// Physically stored exactly once.
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Objects)
}

func TestStore_DedupStoresOnce(t *testing.T) {
	ctx := context.Background()
	s := newFileBackedStore(t)

	data := bytes.Repeat([]byte("dedup me "), 500)

	_, err := s.Put(ctx, data)
	require.NoError(t, err)
	after1, err := s.Stats(ctx)
	require.NoError(t, err)

	_, err = s.Put(ctx, data)
	require.NoError(t, err)
	after2, err := s.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, after1.StoredBytes, after2.StoredBytes,
		"storage after two puts of identical content equals storage after one")
	assert.Equal(t, 1, blobFileCount(t, s))
}

func TestStore_RefCounting(t *testing.T) {
	ctx := context.Background()
	s := newFileBackedStore(t)

	data := bytes.Repeat([]byte("counted content "), 500)
	const k = 3

	var fp fingerprint.Fingerprint
	var err error
	for i := 0; i < k; i++ {
		fp, err = s.Put(ctx, data)
		require.NoError(t, err)
	}

	// Intermediate deletes leave the content retrievable.
	for i := 0; i < k-1; i++ {
		require.NoError(t, s.Delete(ctx, fp))
		got, err := s.Get(ctx, fp)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
	assert.Equal(t, 1, blobFileCount(t, s))

	// The k-th delete reclaims physical storage.
	require.NoError(t, s.Delete(ctx, fp))
	assert.Equal(t, 0, blobFileCount(t, s))

	_, err = s.Get(ctx, fp)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_UnknownFingerprint(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	fp := fingerprint.Compute([]byte("never stored"))

	_, err := s.Get(ctx, fp)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Delete(ctx, fp)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ConcurrentIdenticalPuts(t *testing.T) {
	ctx := context.Background()
	s := newFileBackedStore(t)

	data := bytes.Repeat([]byte("contended content "), 500)
	const workers = 8

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Put(ctx, data); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, blobFileCount(t, s), "exactly one physical write")

	// Final reference count equals the number of puts: all but the
	// last delete leave the object present.
	fp := fingerprint.Compute(data)
	for i := 0; i < workers-1; i++ {
		require.NoError(t, s.Delete(ctx, fp))
	}
	ok, err := s.Exists(ctx, fp)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, fp))
	ok, err = s.Exists(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	s := newFileBackedStore(t)

	data := bytes.Repeat([]byte("will be damaged "), 1000)
	fp, err := s.Put(ctx, data)
	require.NoError(t, err)

	// Truncate the stored payload behind the store's back.
	path := s.blobPath(fp)
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload[:len(payload)/2], 0644))

	_, err = s.Get(ctx, fp)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_MissingPayloadFile(t *testing.T) {
	ctx := context.Background()
	s := newFileBackedStore(t)

	data := bytes.Repeat([]byte("soon gone "), 1000)
	fp, err := s.Put(ctx, data)
	require.NoError(t, err)

	require.NoError(t, os.Remove(s.blobPath(fp)))

	_, err = s.Get(ctx, fp)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	contents := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	want := make([]fingerprint.Fingerprint, 0, len(contents))
	for _, c := range contents {
		fp, err := s.Put(ctx, c)
		require.NoError(t, err)
		want = append(want, fp)
	}
	fingerprint.Sort(want)

	got, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_Persistence(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "store")

	s, err := Create(root)
	require.NoError(t, err)

	data := []byte("survives reopen")
	fp, err := s.Put(ctx, data)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(root)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStore_Verify(t *testing.T) {
	ctx := context.Background()
	s := newFileBackedStore(t)

	good := bytes.Repeat([]byte("good "), 1000)
	badSrc := bytes.Repeat([]byte("bad! "), 1000)

	_, err := s.Put(ctx, good)
	require.NoError(t, err)
	badFp, err := s.Put(ctx, badSrc)
	require.NoError(t, err)

	bad, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.Empty(t, bad)

	// Damage one payload; Verify pins it down.
	path := s.blobPath(badFp)
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	payload[0] ^= 0xff
	require.NoError(t, os.WriteFile(path, payload, 0644))

	bad, err = s.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, []fingerprint.Fingerprint{badFp}, bad)
}

func TestStore_StatsUUID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, st.UUID)
	assert.Equal(t, config.DefaultPoolCapacity, st.PoolCapacity)
}
