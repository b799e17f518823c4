package geometry

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/pspoerri/tilemaker/internal/tiledata"
)

func square(minX, minY, maxX, maxY float64) orb.Ring {
	return orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}
}

func TestClipPointDiscardsOutsideMargin(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	expanded := ExpandedBound(bound)
	if _, ok := ClipPoint(orb.Point{0.5, 0.5}, expanded); !ok {
		t.Fatal("expected interior point to survive clipping")
	}
	if _, ok := ClipPoint(orb.Point{5, 5}, expanded); ok {
		t.Fatal("expected far-outside point to be discarded")
	}
}

func TestClipLineStringDropsShortRemainders(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	ls := orb.LineString{{-5, 5}, {15, 5}}
	out := ClipLineString(ls, bound)
	if len(out) != 1 || len(out[0]) != 2 {
		t.Fatalf("expected one clipped segment with 2 points, got %v", out)
	}
}

func TestCacheSourceWalksPyramid(t *testing.T) {
	cache := tiledata.NewClipCache(1)
	ancestor := orb.MultiPolygon{{square(0, 0, 100, 100)}}
	cache.Put(tiledata.ClipKey{Z: 5, X: 1, Y: 1, ObjectID: 7}, ancestor)

	original := orb.MultiPolygon{{square(0, 0, 1, 1)}}
	got := CacheSource(cache, 7, 8, 9, 9, original)
	// (8,9,9) -> (7,4,4) -> (6,2,2) -> (5,1,1) hits the cached ancestor.
	mp, ok := got.(orb.MultiPolygon)
	if !ok || len(mp) != 1 {
		t.Fatalf("expected pyramid walk-up to find the cached ancestor, got %v", got)
	}
}

func TestCacheSourceFallsBackToOriginalOnMiss(t *testing.T) {
	cache := tiledata.NewClipCache(1)
	original := orb.MultiPolygon{{square(0, 0, 1, 1)}}
	got := CacheSource(cache, 7, 8, 9, 9, original)
	if _, ok := got.(orb.MultiPolygon); !ok {
		t.Fatalf("expected fallback to the original geometry, got %v", got)
	}
}

func TestRemoveSpikesDropsDegenerateVertex(t *testing.T) {
	// A square with a redundant, exactly collinear vertex along one edge
	// (zero triangle area against its neighbors, the degenerate case
	// spike removal targets).
	ring := orb.Ring{
		{0, 0}, {5, 0}, {7, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0},
	}
	mp := orb.MultiPolygon{{ring}}
	cleaned := removeSpikes(mp)
	if len(cleaned) != 1 {
		t.Fatalf("expected the polygon to survive spike removal, got %v", cleaned)
	}
	gotRing := cleaned[0][0]
	if len(gotRing) != 5 {
		t.Fatalf("expected both redundant collinear vertices to be dropped, got %d points: %v", len(gotRing), gotRing)
	}
}

func TestFilterSmallPolygonPartsDropsBelowThreshold(t *testing.T) {
	tiny := orb.Polygon{square(0, 0, 0.001, 0.001)}
	big := orb.Polygon{square(0, 0, 10, 10)}
	mp := orb.MultiPolygon{tiny, big}

	out := FilterSmallPolygonParts(mp, 14, 1.0, 13)
	if len(out) != 1 {
		t.Fatalf("expected the tiny polygon to be filtered out, got %d parts", len(out))
	}
}

func TestFilterSmallPolygonPartsNoopAboveFilterBelow(t *testing.T) {
	tiny := orb.Polygon{square(0, 0, 0.001, 0.001)}
	mp := orb.MultiPolygon{tiny}
	out := FilterSmallPolygonParts(mp, 10, 1.0, 12)
	if len(out) != 1 {
		t.Fatal("expected no filtering once z >= filter_below")
	}
}
