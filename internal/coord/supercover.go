package coord

import (
	"math"

	"github.com/paulmach/orb"
)

// TileCoord is a (z, x, y) tile address, grouped the same way the
// teacher's TilesInBounds already groups them ([3]int), but named so
// callers outside this package don't have to remember the slot order.
type TileCoord struct {
	Z, X, Y int
}

// SupercoverLine walks the tile grid at zoom z along the straight line
// from (x0,y0) to (x1,y1), both in tile-fractional coordinates (the same
// units LonLatpToTile produces before flooring), and returns every tile
// the line passes through, including tiles it only grazes at a corner.
//
// This is a supercover rasterisation (every cell the ideal line
// intersects), not Bresenham's line (which picks one cell per step and
// can skip a diagonal neighbour) — a linestring that clips a tile corner
// must still contribute that tile's feature placement.
func SupercoverLine(x0, y0, x1, y1 float64) []TileCoord {
	ix0, iy0 := int(math.Floor(x0)), int(math.Floor(y0))
	ix1, iy1 := int(math.Floor(x1)), int(math.Floor(y1))

	if ix0 == ix1 && iy0 == iy1 {
		return []TileCoord{{X: ix0, Y: iy0}}
	}

	dx := x1 - x0
	dy := y1 - y0

	stepX, stepY := 1, 1
	if dx < 0 {
		stepX = -1
	}
	if dy < 0 {
		stepY = -1
	}

	// tMaxX/tMaxY: distance (in units of the line's own parametrisation)
	// to the first grid line crossing in each axis; tDeltaX/tDeltaY: the
	// parametric distance between consecutive grid line crossings.
	var tMaxX, tMaxY, tDeltaX, tDeltaY float64
	if dx != 0 {
		tDeltaX = 1.0 / math.Abs(dx)
		if stepX > 0 {
			tMaxX = (math.Floor(x0) + 1 - x0) * tDeltaX
		} else {
			tMaxX = (x0 - math.Floor(x0)) * tDeltaX
		}
	} else {
		tMaxX = inf
	}
	if dy != 0 {
		tDeltaY = 1.0 / math.Abs(dy)
		if stepY > 0 {
			tMaxY = (math.Floor(y0) + 1 - y0) * tDeltaY
		} else {
			tMaxY = (y0 - math.Floor(y0)) * tDeltaY
		}
	} else {
		tMaxY = inf
	}

	cx, cy := ix0, iy0
	tiles := []TileCoord{{X: cx, Y: cy}}
	for cx != ix1 || cy != iy1 {
		switch {
		case tMaxX < tMaxY:
			cx += stepX
			tMaxX += tDeltaX
		case tMaxY < tMaxX:
			cy += stepY
			tMaxY += tDeltaY
		default:
			// Exact corner crossing: both axes advance, and the two
			// tiles straddling the corner (same row, same column as
			// the new cell) are touched too.
			tiles = append(tiles, TileCoord{X: cx + stepX, Y: cy}, TileCoord{X: cx, Y: cy + stepY})
			cx += stepX
			cy += stepY
			tMaxX += tDeltaX
			tMaxY += tDeltaY
		}
		tiles = append(tiles, TileCoord{X: cx, Y: cy})
	}
	return tiles
}

// SupercoverLinestring rasterises every segment of a linestring (given in
// tile-fractional coordinates at a fixed zoom) and returns the
// deduplicated union of tiles touched.
func SupercoverLinestring(z int, points []orb.Point) []TileCoord {
	seen := make(map[TileCoord]struct{})
	var out []TileCoord
	add := func(t TileCoord) {
		t.Z = z
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for i := 0; i+1 < len(points); i++ {
		for _, t := range SupercoverLine(points[i][0], points[i][1], points[i+1][0], points[i+1][1]) {
			add(t)
		}
	}
	if len(points) == 1 {
		add(TileCoord{X: int(math.Floor(points[0][0])), Y: int(math.Floor(points[0][1]))})
	}
	return out
}

// FillCoveredTiles returns every tile a closed polygon ring (given in
// tile-fractional coordinates at a fixed zoom) covers, including its
// interior: the ring's outline is rasterised with SupercoverLinestring,
// then for each x-column the interior is taken as the inclusive interval
// between that column's minimum and maximum touched y — the same
// column-scan idiom TilesInBounds already uses for a rectangular bound,
// generalised from a box to an arbitrary outline.
func FillCoveredTiles(z int, ring []orb.Point) []TileCoord {
	outline := SupercoverLinestring(z, ring)
	if len(outline) == 0 {
		return nil
	}

	minYByX := make(map[int]int)
	maxYByX := make(map[int]int)
	for _, t := range outline {
		if y, ok := minYByX[t.X]; !ok || t.Y < y {
			minYByX[t.X] = t.Y
		}
		if y, ok := maxYByX[t.X]; !ok || t.Y > y {
			maxYByX[t.X] = t.Y
		}
	}

	var out []TileCoord
	for x, minY := range minYByX {
		maxY := maxYByX[x]
		for y := minY; y <= maxY; y++ {
			out = append(out, TileCoord{Z: z, X: x, Y: y})
		}
	}
	return out
}

const inf = 1e308
