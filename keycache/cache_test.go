package keycache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"poc-challenge-manager/pockeys"
)

func TestCacheLookupDelete(t *testing.T) {
	c := New()
	kp, err := pockeys.Generate()
	require.NoError(t, err)
	hash := kp.OnionKeyHash()

	_, ok := c.Lookup(hash)
	require.False(t, ok)

	c.Cache(hash, 100, kp)
	entry, ok := c.Lookup(hash)
	require.True(t, ok)
	require.Equal(t, int64(100), entry.ReceiveHeight)
	require.Equal(t, hash, entry.OnionKeyHash)

	c.Delete(hash)
	_, ok = c.Lookup(hash)
	require.False(t, ok)
}

func TestCacheLastWriteWins(t *testing.T) {
	c := New()
	kp, err := pockeys.Generate()
	require.NoError(t, err)
	hash := kp.OnionKeyHash()

	c.Cache(hash, 100, kp)
	c.Cache(hash, 200, kp)

	entry, ok := c.Lookup(hash)
	require.True(t, ok)
	require.Equal(t, int64(200), entry.ReceiveHeight)
	require.Equal(t, 1, c.Len())
}

func TestGCOlderThan(t *testing.T) {
	c := New()
	kp1, err := pockeys.Generate()
	require.NoError(t, err)
	kp2, err := pockeys.Generate()
	require.NoError(t, err)

	c.Cache(kp1.OnionKeyHash(), 100, kp1)
	c.Cache(kp2.OnionKeyHash(), 196, kp2)

	removed := c.GCOlderThan(200, 4)
	require.Equal(t, 1, removed)

	_, ok := c.Lookup(kp1.OnionKeyHash())
	require.False(t, ok, "entry more than maxAge behind must be gone")

	_, ok = c.Lookup(kp2.OnionKeyHash())
	require.True(t, ok, "entry within maxAge must survive")
}

func TestIter(t *testing.T) {
	c := New()
	kp, err := pockeys.Generate()
	require.NoError(t, err)
	c.Cache(kp.OnionKeyHash(), 1, kp)

	entries := c.Iter()
	require.Len(t, entries, 1)
}
