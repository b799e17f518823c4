package tiledata

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/pspoerri/tilemaker/internal/coord"
	"github.com/pspoerri/tilemaker/internal/model"
)

func obj(id uint64, minZoom uint8) model.OutputObject {
	return model.OutputObject{ObjectId: model.NodeId(id), MinZoom: minZoom}
}

// TestMortonContiguousRange checks, for z = 8 under base zoom 10, that
// the offsets belonging to each of the 16 (z,x,y) boxes form a
// contiguous run of Morton codes.
func TestMortonContiguousRange(t *testing.T) {
	const baseZoom = 10
	boxShift := uint(baseZoom - 8) // z = 8
	for bx := 0; bx < 4; bx++ {
		for by := 0; by < 4; by++ {
			loX := uint8(bx << boxShift)
			loY := uint8(by << boxShift)
			n := uint32(1) << (2 * boxShift)
			lo := mortonCode(loX, loY)
			hi := lo + n

			// Enumerate every offset in the box and confirm its code
			// falls in [lo, hi).
			side := uint8(1) << boxShift
			count := 0
			for dx := uint8(0); dx < side; dx++ {
				for dy := uint8(0); dy < side; dy++ {
					code := mortonCode(loX+dx, loY+dy)
					if code < lo || code >= hi {
						t.Fatalf("offset (%d,%d) code %d outside range [%d,%d)", loX+dx, loY+dy, code, lo, hi)
					}
					count++
				}
			}
			if uint32(count) != n {
				t.Fatalf("expected %d offsets in box, counted %d", n, count)
			}
		}
	}
}

func TestSourceCollectSmallBaseZoom(t *testing.T) {
	s := NewSource(8, false, 2)
	tiles := []coord.TileCoord{{X: 10, Y: 20}, {X: 10, Y: 21}, {X: 200, Y: 5}}
	batch := NewBatch()
	for i, tile := range tiles {
		s.AddObject(tile, obj(uint64(i), 8), 0, batch)
	}
	s.Drain(batch)
	s.Finalize(4)

	var out []Candidate
	out = s.CollectObjectsForTile(8, 10, 20, nil)
	if len(out) != 1 {
		t.Fatalf("expected exactly 1 object at (8,10,20), got %d", len(out))
	}

	out = s.CollectObjectsForTile(7, 5, 10, nil)
	if len(out) != 2 {
		t.Fatalf("expected 2 objects aggregated at parent tile (7,5,10), got %d", len(out))
	}
}

func TestSourceShadowIndex(t *testing.T) {
	s := NewSource(10, false, 2)
	batch := NewBatch()
	s.AddObject(coord.TileCoord{X: 500, Y: 500}, obj(1, 3), 0, batch)
	s.Drain(batch)
	s.Finalize(2)

	out := s.CollectObjectsForTile(3, 500>>(10-3), 500>>(10-3), nil)
	if len(out) != 1 {
		t.Fatalf("expected shadow index to surface low-zoom object, got %d", len(out))
	}
}

func TestSourceLargeObjectTier(t *testing.T) {
	s := NewSource(14, true, 2)
	s.AddLargeObject(0, 0, 100, 100, obj(99, 0), 99)

	out := s.CollectObjectsForTile(10, 0, 0, nil)
	if len(out) != 1 || out[0].OsmId != 99 {
		t.Fatalf("expected large object to be returned by overlap query, got %v", out)
	}

	out = s.CollectObjectsForTile(14, 16000, 16000, nil)
	if len(out) != 0 {
		t.Fatalf("expected no overlap far from the large object's bbox, got %v", out)
	}
}

func TestClipCacheEvictsWholeShard(t *testing.T) {
	c := NewClipCache(1)
	for i := 0; i < clipCacheShardCapacity; i++ {
		c.Put(ClipKey{Z: 10, X: 0, Y: 0, ObjectID: uint64(i)}, orb.Point{0, 0})
	}
	if _, ok := c.Get(ClipKey{Z: 10, X: 0, Y: 0, ObjectID: 0}); !ok {
		t.Fatal("expected entry 0 to still be cached before eviction")
	}
	// one more insert overflows the shard and clears it
	c.Put(ClipKey{Z: 10, X: 0, Y: 0, ObjectID: uint64(clipCacheShardCapacity)}, orb.Point{1, 1})
	if _, ok := c.Get(ClipKey{Z: 10, X: 0, Y: 0, ObjectID: 0}); ok {
		t.Fatal("expected shard to have been evicted wholesale")
	}
	if _, ok := c.Get(ClipKey{Z: 10, X: 0, Y: 0, ObjectID: uint64(clipCacheShardCapacity)}); !ok {
		t.Fatal("expected the triggering entry to be present after eviction")
	}
}

func TestGeometryStoreRoundTrip(t *testing.T) {
	g := NewGeometryStore(4)
	p := orb.Point{1.5, 2.5}
	ls := orb.LineString{{0, 0}, {1, 1}}
	mp := orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}

	hp := g.StorePoint(0, p)
	hl := g.StoreLineString(1, ls)
	hm := g.StoreMultiPolygon(3, mp)

	if g.Point(hp) != p {
		t.Fatalf("point round trip mismatch: %v", g.Point(hp))
	}
	if len(g.LineString(hl)) != 2 {
		t.Fatalf("linestring round trip mismatch: %v", g.LineString(hl))
	}
	if len(g.MultiPolygon(hm)) != 1 {
		t.Fatalf("multipolygon round trip mismatch: %v", g.MultiPolygon(hm))
	}
}
