package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	_, ok := c.Get("missing")
	require.False(t, ok)

	require.NoError(t, c.Set("k1", []byte("v1")))
	v, ok := c.Get("k1")
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	require.NoError(t, c.Set("k1", []byte("v2")))
	v, ok = c.Get("k1")
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)

	require.NoError(t, c.Delete("k1"))
	_, ok = c.Get("k1")
	require.False(t, ok)
}

func TestMapCache(t *testing.T) {
	exerciseCache(t, NewMapCache())
}
