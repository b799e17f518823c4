package tileworker

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/pspoerri/tilemaker/internal/attrstore"
	"github.com/pspoerri/tilemaker/internal/config"
	"github.com/pspoerri/tilemaker/internal/coord"
	"github.com/pspoerri/tilemaker/internal/geometry"
	"github.com/pspoerri/tilemaker/internal/model"
	"github.com/pspoerri/tilemaker/internal/mvtencode"
	"github.com/pspoerri/tilemaker/internal/nodestore"
	"github.com/pspoerri/tilemaker/internal/tiledata"
)

type tileStat struct {
	dropped   int
	corrected int
}

// buildTile assembles and encodes one MVT tile, or returns nil data if
// every candidate object was filtered, dropped, or out of zoom range.
// workerShard selects which materialised-geometry arena shard this
// call may write into, so concurrent workers never contend.
func buildTile(cfg Config, stores Stores, workerShard, z, x, y int) ([]byte, tileStat, error) {
	var stat tileStat

	bound := geometry.ExpandedBound(coord.TileBoundsLatp(z, x, y))

	cands := stores.Tiles.CollectObjectsForTile(z, x, y, nil)
	if len(cands) == 0 {
		return nil, stat, nil
	}
	cands = sortCandidates(cands, cfg.Layers)

	layerOut := make(map[uint8]*mvtencode.LayerFeatures)

	i := 0
	for i < len(cands) {
		layerIdx := cands[i].OO.Layer
		j := i
		for j < len(cands) && cands[j].OO.Layer == layerIdx {
			j++
		}
		layer := layerFor(cfg.Layers, layerIdx)
		feats, lstat := buildLayer(cfg, stores, workerShard, layer, layerIdx, z, x, y, bound, cands[i:j])
		stat.dropped += lstat.dropped
		stat.corrected += lstat.corrected
		if len(feats) > 0 {
			lf := layerOut[layerIdx]
			if lf == nil {
				lf = &mvtencode.LayerFeatures{Name: layer.Name}
				layerOut[layerIdx] = lf
			}
			lf.Features = append(lf.Features, feats...)
		}
		i = j
	}

	if len(layerOut) == 0 {
		return nil, stat, nil
	}
	layers := make([]mvtencode.LayerFeatures, 0, len(layerOut))
	for _, lf := range layerOut {
		layers = append(layers, *lf)
	}

	data, err := mvtencode.Encode(TileID(z, x, y), cfg.Extent, layers, cfg.Compression)
	if err != nil {
		return nil, stat, err
	}
	return data, stat, nil
}

func layerFor(layers []config.Layer, idx uint8) config.Layer {
	if int(idx) < len(layers) {
		return layers[idx]
	}
	return config.Layer{Name: fmt.Sprintf("layer%d", idx)}
}

// buildLayer processes one layer's contiguous candidate run: min-zoom
// filtering, feature_limit, per-candidate clip/simplify, and merging
// of contiguous same-(zorder,geomtype,attrset) runs into single
// features.
func buildLayer(cfg Config, stores Stores, workerShard int, layer config.Layer, layerIdx uint8, z, x, y int, bound orb.Bound, cands []tiledata.Candidate) ([]*geojson.Feature, tileStat) {
	var stat tileStat
	var kept []tiledata.Candidate
	for _, c := range cands {
		if int(c.OO.MinZoom) > z {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return nil, stat
	}

	limit := layer.FeatureLimit
	if limit > 0 && z < layer.FeatureLimitBelowZoom && len(kept) > limit {
		kept = kept[:limit]
	}

	var feats []*geojson.Feature
	i := 0
	for i < len(kept) {
		j := i
		for j < len(kept) &&
			kept[j].OO.ZOrder == kept[i].OO.ZOrder &&
			kept[j].OO.GeomType == kept[i].OO.GeomType &&
			kept[j].OO.AttrSet == kept[i].OO.AttrSet {
			j++
		}
		f, lstat := buildGroup(cfg, stores, workerShard, layer, z, x, y, bound, kept[i:j])
		stat.dropped += lstat.dropped
		stat.corrected += lstat.corrected
		if f != nil {
			feats = append(feats, f...)
		}
		i = j
	}
	_ = layerIdx
	return feats, stat
}

// buildGroup resolves, clips, and simplifies every candidate in a
// contiguous same-attribute run, then merges the results: points stay
// one feature each, lines are endpoint-joined, polygons are flattened
// into a single MultiPolygon (see merge.go).
func buildGroup(cfg Config, stores Stores, workerShard int, layer config.Layer, z, x, y int, bound orb.Bound, cands []tiledata.Candidate) ([]*geojson.Feature, tileStat) {
	var stat tileStat
	props := resolveAttrs(stores, cands[0].OO.AttrSet)

	switch cands[0].OO.GeomType {
	case model.Point:
		var feats []*geojson.Feature
		for _, c := range cands {
			p, err := resolvePoint(stores, workerShard, c.OO.ObjectId)
			if err != nil {
				stat.dropped++
				continue
			}
			clipped, ok := geometry.ClipPoint(p, bound)
			if !ok {
				continue
			}
			feats = append(feats, mvtencode.NewFeature(clipped, c.OsmId, cfg.IncludeID, props))
		}
		return feats, stat

	case model.Linestring, model.MultiLinestring:
		var parts orb.MultiLineString
		for _, c := range cands {
			mls, err := resolveLines(stores, workerShard, c.OO)
			if err != nil {
				stat.dropped++
				continue
			}
			if len(cands) == 1 {
				clipped := geometry.ClipMultiLineString(stores.Tiles.Clip, objectIDFor(c), z, x, y, mls, bound)
				parts = append(parts, clipped...)
			} else {
				for _, ls := range mls {
					c2 := geometry.ClipLineString(ls, bound)
					parts = append(parts, c2...)
				}
			}
		}
		if len(parts) == 0 {
			return nil, stat
		}
		s := geometry.SimplifyFor(z, layer.SimplifyBelow, layer.SimplifyRatio)
		joined := joinLines(parts)
		var geom orb.Geometry
		if len(joined) == 1 {
			geom = geometry.Simplify(s, joined[0])
		} else {
			geom = geometry.Simplify(s, orb.MultiLineString(joined))
		}
		return []*geojson.Feature{mvtencode.NewFeature(geom, cands[0].OsmId, cfg.IncludeID, props)}, stat

	case model.Polygon:
		var combined orb.MultiPolygon
		for _, c := range cands {
			mp, err := resolvePolygon(stores, workerShard, c.OO)
			if err != nil {
				stat.dropped++
				continue
			}
			res := geometry.ClipMultiPolygon(stores.Tiles.Clip, objectIDFor(c), z, x, y, mp, bound)
			if res.Repaired {
				stat.corrected++
			}
			if res.Dropped {
				stat.dropped++
				continue
			}
			combined = append(combined, res.Geometry...)
		}
		if len(combined) == 0 {
			return nil, stat
		}
		combined = geometry.FilterSmallPolygonParts(combined, layer.FilterBelow, layer.FilterArea, z)
		if len(combined) == 0 {
			return nil, stat
		}
		s := geometry.SimplifyFor(z, layer.SimplifyBelow, layer.SimplifyRatio)
		geom := geometry.Simplify(s, combined)
		return []*geojson.Feature{mvtencode.NewFeature(geom, cands[0].OsmId, cfg.IncludeID, props)}, stat
	}
	return nil, stat
}

func objectIDFor(c tiledata.Candidate) uint64 {
	if c.OsmId != 0 {
		return c.OsmId
	}
	return uint64(c.OO.ObjectId)
}

func resolvePoint(stores Stores, workerShard int, id model.NodeId) (orb.Point, error) {
	switch id.Tag() {
	case model.TagNodeStore:
		ll, err := stores.Nodes.At(model.NodeId(id.Value()))
		if err != nil {
			return orb.Point{}, err
		}
		return ll.Point(), nil
	case model.TagMaterialized:
		return stores.Tiles.Geom.Point(tiledata.GeometryHandle(id.Value())), nil
	default:
		return orb.Point{}, fmt.Errorf("tileworker: point object has non-point resolution tag %v", id.Tag())
	}
}

func resolveLines(stores Stores, workerShard int, oo model.OutputObject) (orb.MultiLineString, error) {
	switch oo.ObjectId.Tag() {
	case model.TagWayStore:
		coords, err := resolveWayCoords(stores, model.WayId(oo.ObjectId.Value()))
		if err != nil {
			return nil, err
		}
		if len(coords) < 2 {
			return nil, fmt.Errorf("tileworker: line geometry has fewer than 2 points")
		}
		ls := make(orb.LineString, len(coords))
		for i, c := range coords {
			ls[i] = c.Point()
		}
		return orb.MultiLineString{ls}, nil
	case model.TagMaterialized:
		h := tiledata.GeometryHandle(oo.ObjectId.Value())
		if oo.GeomType == model.Linestring {
			return orb.MultiLineString{stores.Tiles.Geom.LineString(h)}, nil
		}
		return stores.Tiles.Geom.MultiLineString(h), nil
	default:
		return nil, fmt.Errorf("tileworker: line object has unsupported resolution tag %v", oo.ObjectId.Tag())
	}
}

func resolvePolygon(stores Stores, workerShard int, oo model.OutputObject) (orb.MultiPolygon, error) {
	switch oo.ObjectId.Tag() {
	case model.TagWayStore:
		coords, err := resolveWayCoords(stores, model.WayId(oo.ObjectId.Value()))
		if err != nil {
			return nil, err
		}
		ring := make(orb.Ring, len(coords))
		for i, c := range coords {
			ring[i] = c.Point()
		}
		if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		if len(ring) < 4 {
			return nil, fmt.Errorf("tileworker: polygon ring has fewer than 4 points")
		}
		return orb.MultiPolygon{orb.Polygon{ring}}, nil
	case model.TagMaterialized:
		return stores.Tiles.Geom.MultiPolygon(tiledata.GeometryHandle(oo.ObjectId.Value())), nil
	default:
		return nil, fmt.Errorf("tileworker: polygon object has unsupported resolution tag %v", oo.ObjectId.Tag())
	}
}

// resolveWayCoords returns a way's (or a relation's synthetic-way's)
// resolved coordinate sequence, going through the node store when the
// way store variant in use keeps only node id references.
func resolveWayCoords(stores Stores, id model.WayId) ([]model.LatpLon, error) {
	geom, err := stores.Ways.At(id)
	if err != nil {
		return nil, err
	}
	if geom.Resolved {
		return geom.Coords, nil
	}
	return resolveNodeIDs(stores.Nodes, geom.NodeIDs)
}

func resolveNodeIDs(nodes nodestore.Store, ids []model.NodeId) ([]model.LatpLon, error) {
	out := make([]model.LatpLon, 0, len(ids))
	for _, id := range ids {
		ll, err := nodes.At(id)
		if err != nil {
			if err == nodestore.ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, ll)
	}
	return out, nil
}

// resolveAttrs expands an attribute-set id into a property map via
// the key/pair/set dictionaries.
func resolveAttrs(stores Stores, attrSet uint32) map[string]interface{} {
	pairIDs := stores.Sets.At(attrSet)
	if len(pairIDs) == 0 {
		return nil
	}
	props := make(map[string]interface{}, len(pairIDs))
	for _, pid := range pairIDs {
		pair, ok := stores.Pairs.At(pid)
		if !ok {
			continue
		}
		name, ok := stores.Keys.Name(pair.Key)
		if !ok {
			continue
		}
		props[name] = attrValue(pair.Value)
	}
	return props
}

func attrValue(v attrstore.Value) interface{} {
	switch v.Kind {
	case attrstore.KindFalse:
		return false
	case attrstore.KindTrue:
		return true
	case attrstore.KindFloat:
		return v.Num
	case attrstore.KindString:
		return v.Str
	default:
		return nil
	}
}
