package tiledata

import (
	"sync"

	"github.com/paulmach/orb"
)

// GeometryHandle addresses a materialised geometry: its owning shard
// in the high bits, its index within that shard's arena in the low
// bits.
type GeometryHandle uint64

const geomShardBits = 12
const geomShardShift = 64 - geomShardBits

func makeHandle(shard, idx int) GeometryHandle {
	return GeometryHandle(uint64(shard)<<geomShardShift | uint64(idx))
}

func (h GeometryHandle) shard() int { return int(uint64(h) >> geomShardShift) }
func (h GeometryHandle) index() int { return int(uint64(h) & (1<<geomShardShift - 1)) }

type geomShardArena struct {
	mu         sync.Mutex
	points     []orb.Point
	lines      []orb.LineString
	multiLines []orb.MultiLineString
	polys      []orb.MultiPolygon
}

// GeometryStore holds the materialised Point/Linestring/
// MultiLinestring/MultiPolygon arenas, one set of arenas per shard so
// concurrent writers from different worker threads don't contend on a
// single mutex.
type GeometryStore struct {
	shards []geomShardArena
}

// NewGeometryStore creates a geometry store with the given shard
// count (typically the worker thread count).
func NewGeometryStore(shards int) *GeometryStore {
	if shards < 1 {
		shards = 1
	}
	return &GeometryStore{shards: make([]geomShardArena, shards)}
}

// StorePoint materialises a point on the given shard and returns its
// handle. shard is normally the calling worker's own index, so writes
// never contend.
func (g *GeometryStore) StorePoint(shard int, p orb.Point) GeometryHandle {
	sh := &g.shards[shard]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	idx := len(sh.points)
	sh.points = append(sh.points, p)
	return makeHandle(shard, idx)
}

func (g *GeometryStore) StoreLineString(shard int, ls orb.LineString) GeometryHandle {
	sh := &g.shards[shard]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	idx := len(sh.lines)
	sh.lines = append(sh.lines, ls)
	return makeHandle(shard, idx)
}

func (g *GeometryStore) StoreMultiLineString(shard int, mls orb.MultiLineString) GeometryHandle {
	sh := &g.shards[shard]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	idx := len(sh.multiLines)
	sh.multiLines = append(sh.multiLines, mls)
	return makeHandle(shard, idx)
}

func (g *GeometryStore) StoreMultiPolygon(shard int, mp orb.MultiPolygon) GeometryHandle {
	sh := &g.shards[shard]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	idx := len(sh.polys)
	sh.polys = append(sh.polys, mp)
	return makeHandle(shard, idx)
}

func (g *GeometryStore) Point(h GeometryHandle) orb.Point {
	sh := &g.shards[h.shard()]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.points[h.index()]
}

func (g *GeometryStore) LineString(h GeometryHandle) orb.LineString {
	sh := &g.shards[h.shard()]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.lines[h.index()]
}

func (g *GeometryStore) MultiLineString(h GeometryHandle) orb.MultiLineString {
	sh := &g.shards[h.shard()]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.multiLines[h.index()]
}

func (g *GeometryStore) MultiPolygon(h GeometryHandle) orb.MultiPolygon {
	sh := &g.shards[h.shard()]
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.polys[h.index()]
}
