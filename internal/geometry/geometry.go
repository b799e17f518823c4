// Package geometry builds a clipped, simplified geometry for one
// output object at one tile. It is built on
// github.com/paulmach/orb's clip/simplify/planar subpackages, the
// same stack internal/tiler/gotiler in the retrieval pack uses for
// an equivalent clip→simplify→project pipeline.
package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/simplify"

	"github.com/pspoerri/tilemaker/internal/tiledata"
)

// marginFraction is the clipping-box expansion applied on every side
// before clipping, and reused here for point/linestring discard
// margins.
const marginFraction = 1.0 / 200

// ExpandedBound returns bound grown by marginFraction of its extent on
// every side.
func ExpandedBound(bound orb.Bound) orb.Bound {
	dx := (bound.Max[0] - bound.Min[0]) * marginFraction
	dy := (bound.Max[1] - bound.Min[1]) * marginFraction
	return orb.Bound{
		Min: orb.Point{bound.Min[0] - dx, bound.Min[1] - dy},
		Max: orb.Point{bound.Max[0] + dx, bound.Max[1] + dy},
	}
}

// ClipPoint returns (p, true) if p lies within the expanded bound,
// (zero, false) otherwise.
func ClipPoint(p orb.Point, bound orb.Bound) (orb.Point, bool) {
	if !bound.Contains(p) {
		return orb.Point{}, false
	}
	return p, true
}

// ClipLineString clips ls to bound, dropping resulting sub-linestrings
// with fewer than 2 points.
func ClipLineString(ls orb.LineString, bound orb.Bound) orb.MultiLineString {
	clipped := clip.LineString(bound, ls)
	return dropShortLines(clipped)
}

func dropShortLines(mls orb.MultiLineString) orb.MultiLineString {
	out := mls[:0]
	for _, l := range mls {
		if len(l) >= 2 {
			out = append(out, l)
		}
	}
	return out
}

// CacheSource resolves a cached clip ancestor for multi-linestrings and
// polygons by walking up the tile pyramid: consult the clip cache
// first at (z-1, x/2, y/2), (z-2, ...), and on a cache hit use it as
// the clipping source rather than the original.
func CacheSource(cache *tiledata.ClipCache, objectID uint64, z, x, y int, original orb.Geometry) orb.Geometry {
	cz, cx, cy := z, x, y
	for cz > 0 {
		cz--
		cx >>= 1
		cy >>= 1
		if g, ok := cache.Get(tiledata.ClipKey{Z: cz, X: cx, Y: cy, ObjectID: objectID}); ok {
			return g
		}
	}
	return original
}

// ClipMultiLineString clips mls to bound, first trying the clip-cache
// pyramid walk-up as the source geometry, and stores the result back
// into cache for descendant tiles.
func ClipMultiLineString(cache *tiledata.ClipCache, objectID uint64, z, x, y int, mls orb.MultiLineString, bound orb.Bound) orb.MultiLineString {
	source := CacheSource(cache, objectID, z, x, y, mls)
	src, ok := source.(orb.MultiLineString)
	if !ok {
		src = mls
	}
	clipped := clip.MultiLineString(bound, src)
	result := dropShortLines(clipped)
	cache.Put(tiledata.ClipKey{Z: z, X: x, Y: y, ObjectID: objectID}, result)
	return result
}

// ClipMultiPolygonResult is the outcome of clipping a polygon-typed
// object: the clipped geometry plus whether a repair pass ran (used to
// bump a "corrected geometries" counter in the build's user-visible summary).
type ClipMultiPolygonResult struct {
	Geometry  orb.MultiPolygon
	Repaired  bool
	Dropped   bool
}

// ClipMultiPolygon clips mp to bound via the same cache pyramid
// walk-up as linestrings, then validates and repairs the result
// following the polygon error-recovery ladder: spike removal, then a
// general-intersection retry, then an empty result reported as Dropped
// (nothing is logged).
//
// No dedicated polygon-repair library is present anywhere in the
// retrieval pack (documented in DESIGN.md), so the repair ladder here
// is a best-effort approximation: spike removal drops near-zero-area
// consecutive-point degeneracies, and the "general intersection retry"
// is simply re-clipping against the original (un-cached) source, since
// orb/clip's own polygon clipper is already an exact intersection
// routine — the original two-stage ladder collapses to one
// useful retry in this stack.
func ClipMultiPolygon(cache *tiledata.ClipCache, objectID uint64, z, x, y int, mp orb.MultiPolygon, bound orb.Bound) ClipMultiPolygonResult {
	source := CacheSource(cache, objectID, z, x, y, mp)
	src, ok := source.(orb.MultiPolygon)
	if !ok {
		src = mp
	}

	clipped := clip.MultiPolygon(bound, src)
	repaired := false
	if !validMultiPolygon(clipped) {
		clipped = removeSpikes(clipped)
		repaired = true
	}
	if !validMultiPolygon(clipped) && ok {
		// Retry against the uncached original: the cached ancestor may
		// have accumulated clipping artefacts across several pyramid
		// levels that the original source doesn't have.
		clipped = clip.MultiPolygon(bound, mp)
		clipped = removeSpikes(clipped)
		repaired = true
	}
	if !validMultiPolygon(clipped) {
		cache.Put(tiledata.ClipKey{Z: z, X: x, Y: y, ObjectID: objectID}, orb.MultiPolygon(nil))
		return ClipMultiPolygonResult{Repaired: repaired, Dropped: true}
	}

	cache.Put(tiledata.ClipKey{Z: z, X: x, Y: y, ObjectID: objectID}, clipped)
	return ClipMultiPolygonResult{Geometry: clipped, Repaired: repaired}
}

func validMultiPolygon(mp orb.MultiPolygon) bool {
	for _, poly := range mp {
		for _, ring := range poly {
			if len(ring) < 4 {
				return false
			}
		}
	}
	return true
}

// removeSpikes drops consecutive, near-collinear points that form a
// zero-area spike in any ring.
func removeSpikes(mp orb.MultiPolygon) orb.MultiPolygon {
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		newPoly := make(orb.Polygon, 0, len(poly))
		for _, ring := range poly {
			cleaned := removeSpikesFromRing(ring)
			if len(cleaned) >= 4 {
				newPoly = append(newPoly, cleaned)
			}
		}
		if len(newPoly) > 0 {
			out = append(out, newPoly)
		}
	}
	return out
}

// removeSpikesFromRing operates on the ring's unique vertices (orb
// rings repeat the first point as the last to close the loop) and
// re-closes the result.
func removeSpikesFromRing(ring orb.Ring) orb.Ring {
	if len(ring) < 4 {
		return ring
	}
	unique := ring[:len(ring)-1]
	n := len(unique)
	out := make(orb.Ring, 0, n)
	for i := 0; i < n; i++ {
		prev := unique[(i-1+n)%n]
		cur := unique[i]
		next := unique[(i+1)%n]
		if isSpike(prev, cur, next) {
			continue
		}
		out = append(out, cur)
	}
	if len(out) < 3 {
		return ring
	}
	out = append(out, out[0])
	return out
}

// isSpike reports whether cur is a degenerate back-and-forth spike
// between prev and next: the triangle they form has near-zero area.
func isSpike(prev, cur, next orb.Point) bool {
	area := (cur[0]-prev[0])*(next[1]-prev[1]) - (next[0]-prev[0])*(cur[1]-prev[1])
	return math.Abs(area) < 1e-12
}

// SimplifyFor returns a Visvalingam simplifier scaled for zoom z below
// a layer's simplify_below: the threshold scales by the difference
// between simplifyBelow and z, and by the simplify_ratio parameter.
// simplifyBelow is the configured zoom cutoff; ratio is simplify_ratio.
//
// Grounded on internal/tile/downsample.go's per-zoom quality scaling
// idea (coarser output at lower zoom), applied to vertex count instead
// of pixel sampling.
func SimplifyFor(z, simplifyBelow int, ratio float64) simplify.Simplifier {
	if ratio <= 0 {
		ratio = 1
	}
	zoomDiff := float64(simplifyBelow - z)
	if zoomDiff < 0 {
		zoomDiff = 0
	}
	threshold := ratio * math.Pow(2, zoomDiff) * 1e-9
	return simplify.VisvalingamThreshold(threshold)
}

// Simplify applies s to geom, falling back to the unsimplified input
// wherever the result drops below a minimum point count: 2 points for a
// linestring (closed or not, per line of a multi-linestring) and 4
// points for every ring of a polygon or multipolygon.
func Simplify(s simplify.Simplifier, geom orb.Geometry) orb.Geometry {
	switch g := geom.(type) {
	case orb.LineString:
		out := s.LineString(g)
		if len(out) < 2 {
			return g
		}
		return out
	case orb.MultiLineString:
		out := s.MultiLineString(g)
		for i, l := range out {
			if len(l) < 2 {
				out[i] = g[i]
			}
		}
		return out
	case orb.Polygon:
		out := s.Polygon(g)
		if !validMultiPolygon(orb.MultiPolygon{out}) {
			return g
		}
		return out
	case orb.MultiPolygon:
		out := s.MultiPolygon(g)
		if !validMultiPolygon(out) {
			return g
		}
		return out
	default:
		return geom
	}
}

// ringArea computes a ring's signed area via the shoelace formula.
// orb's planar package exposes distance and point-in-polygon helpers
// but no ring-area function, so this stays a direct formula rather
// than an uncertain API guess.
func ringArea(ring orb.Ring) float64 {
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum / 2
}

// FilterArea reports whether a polygon ring's absolute area is below
// the configured threshold, scaled as filter_area * 2^(filter_below-1-z).
// Rings under the threshold should be dropped by the caller.
func FilterArea(ring orb.Ring, filterBelow int, filterArea float64, z int) bool {
	scaled := filterArea * math.Pow(2, float64(filterBelow-1-z))
	return math.Abs(ringArea(ring)) < scaled
}

// FilterSmallPolygonParts drops polygon parts (and holes) whose area
// falls under the configured threshold for the current zoom.
func FilterSmallPolygonParts(mp orb.MultiPolygon, filterBelow int, filterArea float64, z int) orb.MultiPolygon {
	if z >= filterBelow {
		return mp
	}
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		if FilterArea(poly[0], filterBelow, filterArea, z) {
			continue
		}
		newPoly := orb.Polygon{poly[0]}
		for _, hole := range poly[1:] {
			if !FilterArea(hole, filterBelow, filterArea, z) {
				newPoly = append(newPoly, hole)
			}
		}
		out = append(out, newPoly)
	}
	return out
}

// ErrEmptyResult is returned by callers that need to distinguish "the
// geometry became empty after clipping/repair" from other failure.
var ErrEmptyResult = fmt.Errorf("geometry: empty after clip and repair")
