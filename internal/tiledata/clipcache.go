package tiledata

import (
	"sync"

	"github.com/paulmach/orb"
)

// clipCacheShardCapacity is the per-shard entry cap; a shard that
// reaches it is evicted wholesale.
const clipCacheShardCapacity = 5000

// ClipKey identifies one cached clip result: a tile plus the object it
// belongs to.
type ClipKey struct {
	Z, X, Y  int
	ObjectID uint64
}

// ClipCache stores shared, immutable clipped geometries keyed by
// (zoom, x, y, object id), sharded by object id modulo the shard count
// to spread writer contention. Entries are reference-counted
// only in the sense that Get returns the same orb.Geometry value to
// every caller — callers must never mutate what Get returns.
//
// Grounded on internal/cog/tilecache.go's bounded cache idiom,
// generalized from decoded raster tiles to geometry handles and
// re-sharded by object id instead of holding one global map.
type ClipCache struct {
	shards []clipShard
}

type clipShard struct {
	mu      sync.Mutex
	entries map[ClipKey]orb.Geometry
}

// NewClipCache creates a cache with the given number of shards.
func NewClipCache(shards int) *ClipCache {
	if shards < 1 {
		shards = 1
	}
	c := &ClipCache{shards: make([]clipShard, shards)}
	for i := range c.shards {
		c.shards[i].entries = make(map[ClipKey]orb.Geometry)
	}
	return c
}

func (c *ClipCache) shardFor(objectID uint64) *clipShard {
	return &c.shards[objectID%uint64(len(c.shards))]
}

// Get returns a previously cached clip for key, if present.
func (c *ClipCache) Get(key ClipKey) (orb.Geometry, bool) {
	sh := c.shardFor(key.ObjectID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	g, ok := sh.entries[key]
	return g, ok
}

// Put stores a clip result for key, evicting the whole owning shard
// first if it has reached capacity.
func (c *ClipCache) Put(key ClipKey, geom orb.Geometry) {
	sh := c.shardFor(key.ObjectID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if len(sh.entries) >= clipCacheShardCapacity {
		sh.entries = make(map[ClipKey]orb.Geometry)
	}
	sh.entries[key] = geom
}
