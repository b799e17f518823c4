// Package config holds the configuration surface set once by the
// external loader, not by the core: global build parameters and the
// per-layer definitions that drive simplification, filtering, and
// feature limits in internal/geometry and internal/tileworker.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bounds is a plain WGS84 bounding box, replacing the teacher's
// raster-specific cog.Bounds: min/max longitude and latitude in plain
// degrees.
type Bounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Empty reports whether b was never set (the zero value).
func (b Bounds) Empty() bool {
	return b == Bounds{}
}

// ZOrderDirection controls which way a layer's z_order sorts within
// the tile worker's comparator. Sort direction is treated as an
// external configuration concern, not a core one.
type ZOrderDirection int

const (
	ZOrderAscending ZOrderDirection = iota
	ZOrderDescending
)

// Layer is one vector tile layer's configuration.
type Layer struct {
	Name    string `yaml:"name"`
	MinZoom int    `yaml:"minzoom"`
	MaxZoom int    `yaml:"maxzoom"`

	SimplifyBelow int     `yaml:"simplify_below"`
	SimplifyLevel float64 `yaml:"simplify_level"`
	SimplifyLength float64 `yaml:"simplify_length"`
	SimplifyRatio  float64 `yaml:"simplify_ratio"`

	FilterBelow int     `yaml:"filter_below"`
	FilterArea  float64 `yaml:"filter_area"`

	CombinePolygonsBelowZoom int `yaml:"combine_polygons_below_zoom"`

	FeatureLimit         int `yaml:"feature_limit"`
	FeatureLimitBelowZoom int `yaml:"feature_limit_below_zoom"`

	ZOrder ZOrderDirection `yaml:"-"`
	ZOrderName string `yaml:"z_order"`
}

// descendingZOrder reports the sort direction the tile worker's
// comparator should use for this layer.
func (l Layer) descendingZOrder() bool {
	return l.ZOrder == ZOrderDescending
}

// DescendingZOrder is the exported form used by internal/model.Less.
func (l Layer) DescendingZOrder() bool { return l.descendingZOrder() }

// Config is the global build configuration.
type Config struct {
	BaseZoom  int  `yaml:"base_zoom"`
	StartZoom int  `yaml:"start_zoom"`
	EndZoom   int  `yaml:"end_zoom"`
	IncludeID bool `yaml:"include_id"`

	Compress bool `yaml:"compress"`
	Gzip     bool `yaml:"gzip"`

	Clip Bounds `yaml:"-"`

	MVTVersion int `yaml:"mvt_version"`

	Layers []Layer `yaml:"layers"`
}

// fileConfig mirrors the YAML layout; Clip is expressed as a flat
// 4-element list there, converted to Bounds once loaded.
type fileConfig struct {
	BaseZoom   int       `yaml:"base_zoom"`
	StartZoom  int       `yaml:"start_zoom"`
	EndZoom    int       `yaml:"end_zoom"`
	IncludeID  bool      `yaml:"include_id"`
	Compress   bool      `yaml:"compress"`
	Gzip       bool      `yaml:"gzip"`
	ClipBox    []float64 `yaml:"clip_box"`
	MVTVersion int       `yaml:"mvt_version"`
	Layers     []Layer   `yaml:"layers"`
}

// Load reads a layer configuration file in the teacher's YAML-driven
// style (gopkg.in/yaml.v3, the same library the retrieval pack uses
// for layer definitions).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := &Config{
		BaseZoom:   fc.BaseZoom,
		StartZoom:  fc.StartZoom,
		EndZoom:    fc.EndZoom,
		IncludeID:  fc.IncludeID,
		Compress:   fc.Compress,
		Gzip:       fc.Gzip,
		MVTVersion: fc.MVTVersion,
		Layers:     fc.Layers,
	}
	if len(fc.ClipBox) == 4 {
		cfg.Clip = Bounds{MinLon: fc.ClipBox[0], MinLat: fc.ClipBox[1], MaxLon: fc.ClipBox[2], MaxLat: fc.ClipBox[3]}
	}
	if cfg.BaseZoom == 0 {
		cfg.BaseZoom = 14
	}
	if cfg.BaseZoom > 14 {
		return nil, fmt.Errorf("config: base_zoom %d exceeds the tile-index maximum of 14", cfg.BaseZoom)
	}
	if cfg.MVTVersion == 0 {
		cfg.MVTVersion = 2
	}
	for i := range cfg.Layers {
		switch cfg.Layers[i].ZOrderName {
		case "desc", "descending":
			cfg.Layers[i].ZOrder = ZOrderDescending
		default:
			cfg.Layers[i].ZOrder = ZOrderAscending
		}
	}
	return cfg, nil
}
