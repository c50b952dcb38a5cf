package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelCache(t *testing.T) {
	c, err := Load(t.TempDir())
	require.NoError(t, err)
	defer c.Close()

	exerciseCache(t, c)
}

func TestLevelCacheSurvivesReload(t *testing.T) {
	dir := t.TempDir()

	c1, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, c1.Set("k1", []byte("v1")))
	require.NoError(t, c1.Close())

	c2, err := Load(dir)
	require.NoError(t, err)
	defer c2.Close()

	v, ok := c2.Get("k1")
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)
}
