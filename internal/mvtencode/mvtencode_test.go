package mvtencode

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

func TestEncodeSinglePointLayer(t *testing.T) {
	tile := maptile.New(0, 0, 1)
	bound := tile.Bound()
	center := bound.Center()

	f := NewFeature(orb.Point(center), 42, true, map[string]interface{}{"amenity": "cafe"})
	data, err := Encode(tile, 4096, []LayerFeatures{{Name: "points", Features: []*geojson.Feature{f}}}, CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty tile bytes for a feature inside the tile bound")
	}
}

func TestEncodeDropsEmptyLayers(t *testing.T) {
	tile := maptile.New(0, 0, 1)
	data, err := Encode(tile, 4096, []LayerFeatures{{Name: "empty", Features: nil}}, CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	if data != nil {
		t.Fatalf("expected nil output for an all-empty tile, got %d bytes", len(data))
	}
}
