package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollyoak/citysignal/internal/series"
)

func condOf(key string) *series.Conditioned {
	return &series.Conditioned{Series: &series.Series{Key: key}}
}

func TestSeriesCache_GetPut(t *testing.T) {
	c := newSeriesCache(4)

	_, ok := c.get("missing")
	assert.False(t, ok)

	want := condOf("taxi:161")
	c.put("k1", want)

	got, ok := c.get("k1")
	require.True(t, ok)
	assert.Same(t, want, got)
}

func TestSeriesCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newSeriesCache(3)
	for i := 0; i < 3; i++ {
		c.put(fmt.Sprintf("k%d", i), condOf("s"))
	}

	// Touch k0 so k1 becomes the eviction candidate.
	_, ok := c.get("k0")
	require.True(t, ok)

	c.put("k3", condOf("s"))

	_, ok = c.get("k1")
	assert.False(t, ok, "least recently used entry is evicted")
	for _, key := range []string{"k0", "k2", "k3"} {
		_, ok := c.get(key)
		assert.True(t, ok, key)
	}
}

func TestSeriesCache_PutExistingUpdatesValue(t *testing.T) {
	c := newSeriesCache(2)
	c.put("k", condOf("old"))

	updated := condOf("new")
	c.put("k", updated)

	got, ok := c.get("k")
	require.True(t, ok)
	assert.Same(t, updated, got)

	// The update must not grow the cache.
	c.put("other", condOf("s"))
	_, ok = c.get("k")
	assert.True(t, ok)
}

func TestSeriesCache_SingleEntry(t *testing.T) {
	c := newSeriesCache(1)
	c.put("a", condOf("a"))
	c.put("b", condOf("b"))

	_, ok := c.get("a")
	assert.False(t, ok)
	got, ok := c.get("b")
	require.True(t, ok)
	assert.Equal(t, "b", got.Series.Key)
}
