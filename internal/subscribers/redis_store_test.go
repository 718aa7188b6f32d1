package subscribers

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStoreAddRemove(t *testing.T) {
	t.Parallel()
	store := newRedisTestStore(t)

	require.NoError(t, store.Add("100"))
	require.NoError(t, store.Add("100"))
	require.NoError(t, store.Add("200"))

	ids, err := store.Ids()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"100", "200"}, ids)

	require.NoError(t, store.Remove("100"))
	require.NoError(t, store.Remove("100"))

	ids, err = store.Ids()
	require.NoError(t, err)
	require.Equal(t, []string{"200"}, ids)
}

func TestRedisStoreConnectFailure(t *testing.T) {
	t.Parallel()

	_, err := NewRedisStore(context.Background(), "127.0.0.1:1", "", 0)
	require.Error(t, err)
}
