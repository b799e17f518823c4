// Package mvtencode serialises a tile's per-layer feature collections
// into the Mapbox Vector Tile wire format ("Wire format of a
// tile"), wrapping github.com/paulmach/orb/encoding/mvt for the
// command-stream/zig-zag geometry encoding and per-layer string/value
// dictionaries — exactly the library and call sequence
// internal/tiler/gotiler in the retrieval pack uses (NewLayer /
// Simplify / Clip / ProjectToTile / RemoveEmpty / Marshal).
package mvtencode

import (
	"bytes"
	"compress/flate"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
)

// LayerFeatures is one output layer's finished features, already
// clipped to the tile's working bbox by internal/geometry.
type LayerFeatures struct {
	Name     string
	Features []*geojson.Feature
}

// Compression selects the optional final compression step applied after encoding.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionDeflate
)

// Encode projects every layer's features into the tile's local pixel
// grid and serialises the result, applying comp as a final pass.
// extent is the tile's pixel resolution per side (4096 or 8192); zero
// keeps the mvt package's default of 4096.
func Encode(tile maptile.Tile, extent uint64, layers []LayerFeatures, comp Compression) ([]byte, error) {
	mvtLayers := make(mvt.Layers, 0, len(layers))
	bound := tile.Bound()

	for _, lf := range layers {
		if len(lf.Features) == 0 {
			continue
		}
		fc := geojson.NewFeatureCollection()
		for _, f := range lf.Features {
			fc.Append(f)
		}

		layer := mvt.NewLayer(lf.Name, fc)
		if extent > 0 {
			layer.Extent = uint32(extent)
		}
		layer.Clip(bound)
		layer.ProjectToTile(maptile.New(tile.X, tile.Y, tile.Z))
		layer.RemoveEmpty(1.0, 1.0)

		if len(layer.Features) == 0 {
			continue
		}
		mvtLayers = append(mvtLayers, layer)
	}

	if len(mvtLayers) == 0 {
		return nil, nil
	}

	switch comp {
	case CompressionGzip:
		return mvt.MarshalGzipped(mvtLayers)
	case CompressionDeflate:
		data, err := mvtLayers.Marshal()
		if err != nil {
			return nil, fmt.Errorf("mvtencode: marshal: %w", err)
		}
		return deflate(data)
	default:
		return mvtLayers.Marshal()
	}
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NewFeature is the small constructor internal/tileworker uses to wrap
// a resolved geometry plus its properties into a *geojson.Feature,
// setting the feature id only when includeID is true.
func NewFeature(geom orb.Geometry, id uint64, includeID bool, properties map[string]interface{}) *geojson.Feature {
	f := geojson.NewFeature(geom)
	f.Properties = properties
	if includeID {
		f.ID = float64(id)
	}
	return f
}
