package coord

import (
	"sort"
	"testing"

	"github.com/paulmach/orb"
)

func sortedCoords(tiles []TileCoord) []TileCoord {
	out := append([]TileCoord(nil), tiles...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Y < out[j].Y
	})
	return out
}

func TestSupercoverLineStraight(t *testing.T) {
	// Purely horizontal line across 3 tiles.
	tiles := SupercoverLine(0.5, 0.5, 3.5, 0.5)
	got := sortedCoords(tiles)
	want := []TileCoord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 3, Y: 0}}
	if len(got) != len(want) {
		t.Fatalf("got %d tiles, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tile %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSupercoverLineSingleTile(t *testing.T) {
	tiles := SupercoverLine(0.1, 0.1, 0.9, 0.9)
	if len(tiles) != 1 || tiles[0] != (TileCoord{X: 0, Y: 0}) {
		t.Errorf("got %v, want single tile (0,0)", tiles)
	}
}

func TestSupercoverLineDiagonalCorner(t *testing.T) {
	// Exact diagonal through integer grid points grazes both neighbours
	// at the corner it crosses.
	tiles := SupercoverLine(0.5, 0.5, 2.5, 2.5)
	got := sortedCoords(tiles)
	seen := make(map[TileCoord]bool)
	for _, tc := range got {
		seen[tc] = true
	}
	for _, want := range []TileCoord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 2, Y: 1}, {X: 1, Y: 2}, {X: 2, Y: 2}} {
		if !seen[want] {
			t.Errorf("expected tile %v to be touched, got %v", want, got)
		}
	}
}

func TestFillCoveredTilesSquare(t *testing.T) {
	// A 3x3-tile square ring, z irrelevant to the math.
	ring := []orb.Point{
		{0.5, 0.5}, {3.5, 0.5}, {3.5, 3.5}, {0.5, 3.5}, {0.5, 0.5},
	}
	tiles := FillCoveredTiles(5, ring)
	if len(tiles) == 0 {
		t.Fatal("expected covered tiles, got none")
	}
	seen := make(map[[2]int]bool)
	for _, tc := range tiles {
		if tc.Z != 5 {
			t.Errorf("tile %v has wrong zoom", tc)
		}
		seen[[2]int{tc.X, tc.Y}] = true
	}
	// The square's interior (tiles 0..3 in both axes) must be fully covered.
	for x := 0; x <= 3; x++ {
		for y := 0; y <= 3; y++ {
			if !seen[[2]int{x, y}] {
				t.Errorf("tile (%d,%d) not covered", x, y)
			}
		}
	}
}

func TestSupercoverLinestringSinglePoint(t *testing.T) {
	tiles := SupercoverLinestring(4, []orb.Point{{1.2, 1.7}})
	if len(tiles) != 1 || tiles[0] != (TileCoord{Z: 4, X: 1, Y: 1}) {
		t.Errorf("got %v, want single tile (4,1,1)", tiles)
	}
}
