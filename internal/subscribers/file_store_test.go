package subscribers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "userids.txt"))
	require.NoError(t, err)
	return store
}

func TestFileStoreAddIsIdempotent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.Add("100"))
	require.NoError(t, store.Add("100"))

	ids, err := store.Ids()
	require.NoError(t, err)
	require.Equal(t, []string{"100"}, ids)
}

func TestFileStoreRemoveAbsentIsNoop(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.Add("100"))
	require.NoError(t, store.Remove("200"))

	ids, err := store.Ids()
	require.NoError(t, err)
	require.Equal(t, []string{"100"}, ids)
}

func TestFileStoreAddRemoveRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	require.NoError(t, store.Add("100"))
	require.NoError(t, store.Add("200"))
	require.NoError(t, store.Add("300"))
	require.NoError(t, store.Remove("300"))

	ids, err := store.Ids()
	require.NoError(t, err)
	require.Equal(t, []string{"100", "200"}, ids)
}

func TestFileStoreEmptyFileMissing(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	ids, err := store.Ids()
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestFileStorePreservesMetadataSuffix(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "userids.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("100||alice joined 2024\n200\n"), 0o600))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	ids, err := store.Ids()
	require.NoError(t, err)
	require.Equal(t, []string{"100", "200"}, ids)

	// Mutating an unrelated id keeps alice's metadata on disk.
	require.NoError(t, store.Remove("200"))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "100||alice joined 2024\n", string(raw))
}
