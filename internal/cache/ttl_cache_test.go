package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLCacheRoundTrip(t *testing.T) {
	c := NewTTLCache[string, int]()

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Set("k", 42, time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 42, got)

	c.Delete("k")
	_, ok = c.Get("k")
	require.False(t, ok)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("k", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k")
	require.False(t, ok)
}

func TestTTLCacheZeroTTLNeverExpires(t *testing.T) {
	c := NewTTLCache[string, string]()
	c.Set("k", "v", 0)

	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", got)
}

func TestTTLCachePurge(t *testing.T) {
	c := NewTTLCache[int, int]()
	c.Set(1, 1, time.Minute)
	c.Set(2, 2, time.Minute)
	c.Purge()

	_, ok := c.Get(1)
	require.False(t, ok)
	_, ok = c.Get(2)
	require.False(t, ok)
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *TTLCache[string, int]
	c.Set("k", 1, time.Minute)
	_, ok := c.Get("k")
	require.False(t, ok)
	c.Delete("k")
}
