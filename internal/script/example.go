package script

import "github.com/pspoerri/tilemaker/internal/model"

// Example is a minimal reference Bridge, analogous to the teacher's
// default-format choices in cmd/geotiff2pmtiles/main.go: it is not
// meant to produce a polished basemap, only to exercise every
// callback with a plausible, realistic rule set. cmd/tilemaker uses it
// when no external bridge is configured.
type Example struct {
	// Layers maps a layer name to its numeric index, matching the
	// layer order a YAML config assigns (internal/config).
	Layers map[string]uint8
}

// NewExample builds the default layer table: points, lines, roads,
// buildings, in that order.
func NewExample() *Example {
	return &Example{Layers: map[string]uint8{
		"points":    0,
		"lines":     1,
		"roads":     2,
		"buildings": 3,
	}}
}

func (e *Example) SignificantNodeKeys() []string {
	return []string{"amenity", "shop", "tourism", "place"}
}

func (e *Example) SignificantWayKeys() []string {
	return []string{"highway", "building", "waterway", "landuse"}
}

func (e *Example) RelationScan(id int64, tags map[string]string) RelationScanResult {
	if tags["type"] != "multipolygon" && tags["type"] != "boundary" {
		return RelationScanResult{}
	}
	return RelationScanResult{Accepted: true}
}

func (e *Example) NodeFunction(id int64, ll model.LatpLon, tags map[string]string) []model.OutputObject {
	if len(tags) == 0 {
		return nil
	}
	return []model.OutputObject{{
		Layer:    e.Layers["points"],
		GeomType: model.Point,
		MinZoom:  e.minZoomFor(tags),
	}}
}

func (e *Example) WayFunction(id int64, nodeIDs []int64, tags map[string]string) []model.OutputObject {
	switch {
	case tags["building"] != "":
		return []model.OutputObject{{
			Layer:    e.Layers["buildings"],
			GeomType: model.Polygon,
			MinZoom:  13,
		}}
	case tags["highway"] != "":
		return []model.OutputObject{{
			Layer:    e.Layers["roads"],
			GeomType: model.Linestring,
			MinZoom:  e.roadMinZoom(tags["highway"]),
		}}
	case tags["waterway"] != "" || tags["landuse"] != "":
		return []model.OutputObject{{
			Layer:    e.Layers["lines"],
			GeomType: model.Linestring,
			MinZoom:  10,
		}}
	}
	return nil
}

func (e *Example) RelationFunction(id int64, members []Member, tags map[string]string) []model.OutputObject {
	if tags["type"] != "multipolygon" && tags["type"] != "boundary" {
		return nil
	}
	return []model.OutputObject{{
		Layer:    e.Layers["buildings"],
		GeomType: model.Polygon,
		MinZoom:  12,
	}}
}

func (e *Example) minZoomFor(tags map[string]string) uint8 {
	if tags["place"] == "city" {
		return 4
	}
	return 14
}

func (e *Example) roadMinZoom(class string) uint8 {
	switch class {
	case "motorway", "trunk":
		return 3
	case "primary":
		return 7
	case "secondary":
		return 9
	case "tertiary":
		return 11
	default:
		return 13
	}
}
