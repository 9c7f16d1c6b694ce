package spatial

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldCacheMatchesUncached(t *testing.T) {
	cache := NewFieldCache(4)
	b := PadBounds(triX, triY, DefaultMarginPercent, nil)

	want, ok := Interpolate(triX, triY, triZ, b, IDWOptions{GridSize: 12})
	require.True(t, ok)

	first, ok := cache.Interpolate(triX, triY, triZ, b, IDWOptions{GridSize: 12})
	require.True(t, ok)
	second, ok := cache.Interpolate(triX, triY, triZ, b, IDWOptions{GridSize: 12})
	require.True(t, ok)

	if diff := cmp.Diff(want, first); diff != "" {
		t.Fatalf("miss differs from uncached (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, second); diff != "" {
		t.Fatalf("hit differs from uncached (-want +got):\n%s", diff)
	}
	hits, misses := cache.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestFieldCacheReturnsIndependentCopies(t *testing.T) {
	cache := NewFieldCache(2)
	b := Bounds{XMax: 10, YMax: 10}
	a, _ := cache.Interpolate(triX, triY, triZ, b, IDWOptions{GridSize: 5})
	a.GridZ[0][0] = -1

	c, _ := cache.Interpolate(triX, triY, triZ, b, IDWOptions{GridSize: 5})
	assert.NotEqual(t, -1.0, c.GridZ[0][0])
}

func TestFieldCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewFieldCache(2)
	b := Bounds{XMax: 10, YMax: 10}
	opts := IDWOptions{GridSize: 4}

	cache.Interpolate(triX, triY, []float64{1, 2, 3}, b, opts)
	cache.Interpolate(triX, triY, []float64{4, 5, 6}, b, opts)
	cache.Interpolate(triX, triY, []float64{1, 2, 3}, b, opts) // refresh
	cache.Interpolate(triX, triY, []float64{7, 8, 9}, b, opts) // evicts {4,5,6}
	assert.Equal(t, 2, cache.Len())

	cache.Interpolate(triX, triY, []float64{1, 2, 3}, b, opts)
	hits, _ := cache.Stats()
	assert.Equal(t, uint64(2), hits)

	cache.Interpolate(triX, triY, []float64{4, 5, 6}, b, opts)
	hits, misses := cache.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(4), misses)
}

func TestFieldCacheDoesNotStoreDeclined(t *testing.T) {
	cache := NewFieldCache(2)
	_, ok := cache.Interpolate([]float64{1}, []float64{1}, []float64{1}, Bounds{XMax: 1, YMax: 1}, IDWOptions{})
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestFieldCacheDisabled(t *testing.T) {
	var cache *FieldCache
	field, ok := cache.Interpolate(triX, triY, triZ, Bounds{XMax: 10, YMax: 10}, IDWOptions{GridSize: 3})
	require.True(t, ok)
	assert.Len(t, field.GridZ, 3)
}
