package spatial

import (
	"container/list"
	"math"
	"strconv"
	"strings"
	"sync"
)

// FieldCache memoizes Interpolate results in a fixed-capacity LRU. Keys use the
// exact bit patterns of the inputs, so a hit returns what an uncached call would.
type FieldCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	hits     uint64
	misses   uint64
}

type cacheEntry struct {
	key   string
	field *Field
}

// NewFieldCache constructs a cache holding at most capacity fields. A
// non-positive capacity disables caching.
func NewFieldCache(capacity int) *FieldCache {
	return &FieldCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Interpolate returns a cached field or computes and stores one.
func (c *FieldCache) Interpolate(x, y, z []float64, bounds Bounds, opts IDWOptions) (*Field, bool) {
	if c == nil || c.capacity <= 0 {
		return Interpolate(x, y, z, bounds, opts)
	}
	checkLengths(len(x), len(y), len(z))
	key := cacheKey(x, y, z, bounds, opts.normalized())

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		c.hits++
		field := el.Value.(*cacheEntry).field.Clone()
		c.mu.Unlock()
		return field, true
	}
	c.misses++
	c.mu.Unlock()

	field, ok := Interpolate(x, y, z, bounds, opts)
	if !ok {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, exists := c.items[key]; exists {
		c.ll.MoveToFront(el)
		return field, true
	}
	c.items[key] = c.ll.PushFront(&cacheEntry{key: key, field: field.Clone()})
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
	return field, true
}

// Len returns the number of cached fields.
func (c *FieldCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns hit and miss counts.
func (c *FieldCache) Stats() (hits, misses uint64) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func cacheKey(x, y, z []float64, b Bounds, opts IDWOptions) string {
	var sb strings.Builder
	sb.Grow((len(x)*3 + 4) * 17)
	sb.WriteString(strconv.Itoa(opts.GridSize))
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(opts.Power))
	for _, v := range []float64{b.XMin, b.XMax, b.YMin, b.YMax} {
		writeBits(&sb, v)
	}
	for i := range x {
		writeBits(&sb, x[i])
		writeBits(&sb, y[i])
		writeBits(&sb, z[i])
	}
	return sb.String()
}

func writeBits(sb *strings.Builder, v float64) {
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatUint(math.Float64bits(v), 16))
}
