// Package tiledata implements the planet-scale tile index:
// a two-tier spatial index (a small-object index clustered at z6, plus
// a large-object tier for wide-footprint geometries), a low-zoom
// shadow index, and the per-tile clip cache.
//
// Adapted from internal/tile/tiledata.go's "detect the cheap
// representation, fall back to the general one" shape: the teacher's
// uniform-tile-color fast path becomes this package's small/large
// object split, and its style of a thin struct wrapping a decision
// function carries over even though the decision itself (object
// footprint size, not pixel uniformity) is new.
package tiledata

import (
	"sort"
	"sync"

	"github.com/pspoerri/tilemaker/internal/coord"
	"github.com/pspoerri/tilemaker/internal/model"
)

// ClusterZoom is the zoom level the small-object index clusters at.
const ClusterZoom = 6

// ClusterAxis is the number of clusters per axis at ClusterZoom.
const ClusterAxis = 1 << ClusterZoom

// ClusterCount is the total number of clusters in the small-object index.
const ClusterCount = ClusterAxis * ClusterAxis

// LargeObjectMinTiles is the base-zoom tile-footprint size of an object
// for the large-object tier (AddLargeObject). No code in this module
// applies it: internal/pipeline adds every emitted object to the
// small-object index once per footprint tile, whatever its footprint.
const LargeObjectMinTiles = 16

// Candidate is a tile-index hit as returned by CollectObjectsForTile:
// the output object plus, when id preservation is configured, the
// original OSM id.
type Candidate struct {
	OO    model.OutputObject
	OsmId uint64
}

type smallCluster struct {
	mu        sync.Mutex
	xy        []model.OutputObjectXY
	xyID      []model.OutputObjectXYID
	sortKeys  []uint32 // parallel to xy/xyID, the morton code each entry sorted on
	finalized bool
}

type largeEntry struct {
	minX, minY, maxX, maxY int // inclusive bounds in z14-equivalent tile units
	oo                     model.OutputObject
	osmID                  uint64
}

// Batch is a worker-local pending list for small-index writes that
// couldn't acquire their target cluster's lock without waiting. Drain
// flushes it back into the index. Create one with NewBatch; a zero
// Batch has nil maps.
type Batch struct {
	pendingXY   map[int][]model.OutputObjectXY
	pendingXYID map[int][]model.OutputObjectXYID
}

func NewBatch() *Batch {
	return &Batch{
		pendingXY:   make(map[int][]model.OutputObjectXY),
		pendingXYID: make(map[int][]model.OutputObjectXYID),
	}
}

// Source is one data source's tile index: the small-object clusters,
// the large-object tier, the low-zoom shadow index, materialised
// geometry arenas, and the clip cache.
type Source struct {
	baseZoom  int
	includeID bool

	small [ClusterCount]smallCluster

	largeMu sync.RWMutex
	large   []largeEntry

	shadow    [ClusterCount]smallCluster
	shadowSet bool

	Clip *ClipCache
	Geom *GeometryStore

	finalized bool
}

// NewSource creates a tile index targeting the given base zoom
// (spec's tile-index resolution, at most 14). includeID controls
// whether OutputObjectXYID (with the original source id) is stored
// instead of the plain OutputObjectXY.
func NewSource(baseZoom int, includeID bool, clipShards int) *Source {
	return &Source{
		baseZoom:  baseZoom,
		includeID: includeID,
		Clip:      NewClipCache(clipShards),
		Geom:      NewGeometryStore(clipShards),
	}
}

func clusterOf(tile coord.TileCoord, baseZoom int) (cluster int, xOff, yOff uint8) {
	shift := uint(baseZoom - ClusterZoom)
	cx := tile.X >> shift
	cy := tile.Y >> shift
	cluster = cx*ClusterAxis + cy
	mask := (1 << shift) - 1
	xOff = uint8(tile.X & mask)
	yOff = uint8(tile.Y & mask)
	return
}

// AddObject places oo at the given base-zoom tile coordinate. osmID
// is only retained when the source was built with includeID. If the
// owning cluster's lock can't be acquired
// immediately, the write is deferred into batch; call Drain(batch)
// before Finalize to flush it.
func (s *Source) AddObject(tile coord.TileCoord, oo model.OutputObject, osmID uint64, batch *Batch) {
	cluster, xOff, yOff := clusterOf(tile, s.baseZoom)
	s.addTo(&s.small[cluster], cluster, xOff, yOff, oo, osmID, batch)
}

func (s *Source) addTo(c *smallCluster, cluster int, xOff, yOff uint8, oo model.OutputObject, osmID uint64, batch *Batch) {
	if s.includeID {
		entry := model.OutputObjectXYID{OO: oo, XOff: xOff, YOff: yOff, OsmId: osmID}
		if c.mu.TryLock() {
			c.xyID = append(c.xyID, entry)
			c.mu.Unlock()
			return
		}
		batch.pendingXYID[cluster] = append(batch.pendingXYID[cluster], entry)
		return
	}
	entry := model.OutputObjectXY{OO: oo, XOff: xOff, YOff: yOff}
	if c.mu.TryLock() {
		c.xy = append(c.xy, entry)
		c.mu.Unlock()
		return
	}
	batch.pendingXY[cluster] = append(batch.pendingXY[cluster], entry)
}

// Drain flushes a batch's deferred writes back into their owning
// clusters. Safe to call from any goroutine; must happen before
// Finalize.
func (s *Source) Drain(batch *Batch) {
	for cluster, entries := range batch.pendingXY {
		c := &s.small[cluster]
		c.mu.Lock()
		c.xy = append(c.xy, entries...)
		c.mu.Unlock()
	}
	for cluster, entries := range batch.pendingXYID {
		c := &s.small[cluster]
		c.mu.Lock()
		c.xyID = append(c.xyID, entries...)
		c.mu.Unlock()
	}
	batch.pendingXY = make(map[int][]model.OutputObjectXY)
	batch.pendingXYID = make(map[int][]model.OutputObjectXYID)
}

// AddLargeObject inserts oo into the large-object tier, addressed by
// its bounding box in z14-equivalent tile units.
func (s *Source) AddLargeObject(minX, minY, maxX, maxY int, oo model.OutputObject, osmID uint64) {
	s.largeMu.Lock()
	s.large = append(s.large, largeEntry{minX: minX, minY: minY, maxX: maxX, maxY: maxY, oo: oo, osmID: osmID})
	s.largeMu.Unlock()
}

func sortCluster(c *smallCluster) {
	n := len(c.xy)
	if c.xyID != nil {
		n = len(c.xyID)
	}
	keys := make([]uint32, n)
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		idx[i] = i
		if c.xyID != nil {
			keys[i] = mortonCode(c.xyID[i].XOff, c.xyID[i].YOff)
		} else {
			keys[i] = mortonCode(c.xy[i].XOff, c.xy[i].YOff)
		}
	}
	sort.Slice(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })

	sortedKeys := make([]uint32, n)
	if c.xyID != nil {
		sorted := make([]model.OutputObjectXYID, n)
		for i, j := range idx {
			sorted[i] = c.xyID[j]
			sortedKeys[i] = keys[j]
		}
		c.xyID = sorted
	} else {
		sorted := make([]model.OutputObjectXY, n)
		for i, j := range idx {
			sorted[i] = c.xy[j]
			sortedKeys[i] = keys[j]
		}
		c.xy = sorted
	}
	c.sortKeys = sortedKeys
	c.finalized = true
}

// Finalize sorts each cluster's small-object vector into Morton order,
// so CollectObjectsForTile can binary-search a contiguous range instead
// of scanning linearly, and builds the low-zoom shadow index from every
// object with MinZoom < ClusterZoom.
func (s *Source) Finalize(nThreads int) {
	var wg sync.WaitGroup
	for i := range s.small {
		wg.Add(1)
		go func(c *smallCluster) {
			defer wg.Done()
			sortCluster(c)
		}(&s.small[i])
	}
	wg.Wait()

	for i := range s.small {
		c := &s.small[i]
		sh := &s.shadow[i]
		if c.xyID != nil {
			for _, e := range c.xyID {
				if e.OO.MinZoom < ClusterZoom {
					sh.xyID = append(sh.xyID, e)
				}
			}
		} else {
			for _, e := range c.xy {
				if e.OO.MinZoom < ClusterZoom {
					sh.xy = append(sh.xy, e)
				}
			}
		}
	}
	s.shadowSet = true
	s.finalized = true
}

// NonEmptyClusters returns the indices of every small-object cluster
// that holds at least one entry, valid only after Finalize. The tile
// worker uses this to enumerate candidate base-zoom tiles without
// walking the full theoretical tile space: coverage is proportional to
// actual data density rather than to 4^baseZoom.
func (s *Source) NonEmptyClusters() []int {
	var out []int
	for i := range s.small {
		c := &s.small[i]
		if len(c.xy) > 0 || len(c.xyID) > 0 {
			out = append(out, i)
		}
	}
	return out
}

// ClusterTileOffsets returns the distinct base-zoom (x,y) tile
// coordinates actually occupied within cluster, more precise than
// ClusterBounds' rectangle when a cluster's objects are sparse within
// it. Valid only after Finalize.
func (s *Source) ClusterTileOffsets(cluster int) []coord.TileCoord {
	shift := uint(s.baseZoom - ClusterZoom)
	cx := cluster / ClusterAxis
	cy := cluster % ClusterAxis
	baseX := cx << shift
	baseY := cy << shift

	c := &s.small[cluster]
	seen := make(map[uint32]struct{})
	var out []coord.TileCoord
	add := func(xOff, yOff uint8) {
		key := uint32(xOff)<<8 | uint32(yOff)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, coord.TileCoord{Z: s.baseZoom, X: baseX + int(xOff), Y: baseY + int(yOff)})
	}
	if c.xyID != nil {
		for _, e := range c.xyID {
			add(e.XOff, e.YOff)
		}
	} else {
		for _, e := range c.xy {
			add(e.XOff, e.YOff)
		}
	}
	return out
}

// ClusterBounds returns the cluster's base-zoom tile-coordinate range:
// [minX, maxX] x [minY, maxY] inclusive, one tile per ClusterAxis step.
func (s *Source) ClusterBounds(cluster int) (minX, minY, maxX, maxY int) {
	shift := uint(s.baseZoom - ClusterZoom)
	span := 1 << shift
	cx := cluster / ClusterAxis
	cy := cluster % ClusterAxis
	minX = cx * span
	minY = cy * span
	maxX = minX + span - 1
	maxY = minY + span - 1
	return
}

// LargeObjectBounds returns the union bounding box, in z14-equivalent
// tile units, of every large-tier object — the region the tile worker
// must also enumerate even where no small-object cluster has data.
func (s *Source) LargeObjectBounds() (minX, minY, maxX, maxY int, ok bool) {
	s.largeMu.RLock()
	defer s.largeMu.RUnlock()
	for i, e := range s.large {
		if i == 0 {
			minX, minY, maxX, maxY = e.minX, e.minY, e.maxX, e.maxY
			continue
		}
		if e.minX < minX {
			minX = e.minX
		}
		if e.minY < minY {
			minY = e.minY
		}
		if e.maxX > maxX {
			maxX = e.maxX
		}
		if e.maxY > maxY {
			maxY = e.maxY
		}
	}
	return minX, minY, maxX, maxY, len(s.large) > 0
}

// BaseZoom reports the zoom level this index's coordinates are
// addressed at.
func (s *Source) BaseZoom() int { return s.baseZoom }

// IncludesID reports whether AddObject entries retain the original OSM id.
func (s *Source) IncludesID() bool { return s.includeID }
