package localstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetMissingKey(t *testing.T) {
	s := openTemp(t)

	var out []string
	found, err := s.Get(KeyProducts, &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, out)
}

func TestPutAllThenDelete(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.PutAll(map[string]any{
		KeyProducts:          []string{"a", "b"},
		KeyProductsTimestamp: int64(42),
	}))

	var items []string
	found, err := s.Get(KeyProducts, &items)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a", "b"}, items)

	var stamp int64
	_, err = s.Get(KeyProductsTimestamp, &stamp)
	require.NoError(t, err)
	assert.Equal(t, int64(42), stamp)

	require.NoError(t, s.Delete(KeyProducts, KeyProductsTimestamp))
	found, err = s.Get(KeyProductsTimestamp, &stamp)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestModifyAppendsAndDeletes(t *testing.T) {
	s := openTemp(t)

	for _, v := range []string{"first", "second"} {
		var list []string
		require.NoError(t, s.Modify(KeyOfflinePurchases, &list, func(bool) (bool, error) {
			list = append(list, v)
			return true, nil
		}))
	}

	var list []string
	_, err := s.Get(KeyOfflinePurchases, &list)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, list)

	require.NoError(t, s.Modify(KeyOfflinePurchases, &list, func(found bool) (bool, error) {
		assert.True(t, found)
		return false, nil
	}))
	found, err := s.Get(KeyOfflinePurchases, &list)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestModifyErrorLeavesValue(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Put(KeyUserData, "kept"))

	boom := errors.New("boom")
	var v string
	err := s.Modify(KeyUserData, &v, func(bool) (bool, error) {
		v = "changed"
		return true, boom
	})
	assert.ErrorIs(t, err, boom)

	var got string
	_, err = s.Get(KeyUserData, &got)
	require.NoError(t, err)
	assert.Equal(t, "kept", got)
}
