// Package pipeline drives the phased PBF processor: RelationScan,
// WayScan, Nodes, Ways, Relations, executed strictly in that order, with
// per-phase parallelism fanned out over golang.org/x/sync/errgroup and a
// shared context cancelled on the first fatal error — the capacity/I-O
// propagation policy from the error-handling design.
//
// internal/osmpbf's Scanner does not expose the underlying library's block
// boundaries to callers (paulmach/osm/osmpbf decodes straight to a stream
// of *osm.Node/*osm.Way/*osm.Relation values), so the literal "per-block
// worker" shape isn't available here. Each phase instead runs a single
// goroutine driving Scan() that hands freshly decoded objects to a fixed
// pool of errgroup workers over a channel — the same data-parallel,
// no-task-continuation scheduling the phased design calls for, just with
// the fan-out granularity moved from "block" to "object". DESIGN.md's
// internal/pipeline entry records this choice.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/errgroup"

	"github.com/paulmach/osm"

	"github.com/pspoerri/tilemaker/internal/attrstore"
	"github.com/pspoerri/tilemaker/internal/coord"
	"github.com/pspoerri/tilemaker/internal/model"
	"github.com/pspoerri/tilemaker/internal/nodestore"
	"github.com/pspoerri/tilemaker/internal/osmpbf"
	"github.com/pspoerri/tilemaker/internal/script"
	"github.com/pspoerri/tilemaker/internal/tiledata"
	"github.com/pspoerri/tilemaker/internal/waystore"
)

// Stats collects the pipeline's counters: nodes, ways and relations
// scanned, output objects emitted, and dropped referents or objects.
type Stats struct {
	NodesScanned     int64
	WaysScanned      int64
	RelationsScanned int64
	ObjectsEmitted   int64
	Dropped          int64 // missing referents, skipped malformed objects
}

// relationInfo is what RelationScan records for one accepted relation:
// its merged tags (original plus any AddedTags) and its member list,
// needed again in the Relations phase.
type relationInfo struct {
	tags    map[string]string
	members []osm.Member
}

// Pipeline wires the external collaborator (script.Bridge) to the process
// state the five phases build up: node/way stores, the attribute
// dictionary, and the tile data source(s) that the tile worker reads from.
type Pipeline struct {
	Reader      *osmpbf.Reader
	Bridge      script.Bridge
	Nodes       nodestore.Store
	Ways        waystore.Store
	Keys        *attrstore.KeyStore
	Pairs       *attrstore.PairStore
	Sets        *attrstore.SetStore
	Tiles       *tiledata.Source
	BaseZoom    int
	Concurrency int

	// Strict enables strict integrity mode: a way referencing a node
	// missing from the (finalised) node store, or a relation referencing
	// a missing node or way member, aborts the build instead of being
	// logged and dropped. Off by default.
	Strict bool

	Stats Stats

	mu            sync.Mutex
	usedNodes     *roaring.Bitmap
	usedWays      *roaring.Bitmap
	relations     map[int64]*relationInfo
	current       atomic.Int64
	nextSynthetic atomic.Uint64

	batchMu sync.Mutex
	batch   *tiledata.Batch
}

// addTileObject serialises access to the source's deferred-write batch
// (tiledata.Batch is not itself safe for concurrent use, unlike the
// clusters it defers into) so every phase worker can call AddObject
// without needing its own batch plumbed through handle's signature.
func (p *Pipeline) addTileObject(tc coord.TileCoord, oo model.OutputObject, osmID uint64) {
	p.batchMu.Lock()
	p.Tiles.AddObject(tc, oo, osmID, p.batch)
	p.batchMu.Unlock()
}

// drainBatch flushes any deferred small-index writes accumulated during a
// phase. Must be called before the tile data source is finalised.
func (p *Pipeline) drainBatch() {
	p.batchMu.Lock()
	p.Tiles.Drain(p.batch)
	p.batch = tiledata.NewBatch()
	p.batchMu.Unlock()
}

// New builds a Pipeline ready to Run. concurrency must be >= 1.
func New(reader *osmpbf.Reader, bridge script.Bridge, nodes nodestore.Store, ways waystore.Store,
	keys *attrstore.KeyStore, pairs *attrstore.PairStore, sets *attrstore.SetStore,
	tiles *tiledata.Source, baseZoom, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	p := &Pipeline{
		Reader:      reader,
		Bridge:      bridge,
		Nodes:       nodes,
		Ways:        ways,
		Keys:        keys,
		Pairs:       pairs,
		Sets:        sets,
		Tiles:       tiles,
		BaseZoom:    baseZoom,
		Concurrency: concurrency,
		usedNodes:   roaring.New(),
		usedWays:    roaring.New(),
		relations:   make(map[int64]*relationInfo),
		batch:       tiledata.NewBatch(),
	}
	p.nextSynthetic.Store(uint64(model.SyntheticWayIdBase))
	return p
}

// Run executes all five phases in order, returning the first fatal error
// (capacity exceeded, I/O failure). A SIGUSR1 handler is installed for the
// duration of the run and prints the id currently being processed, for
// debugging stuck builds.
func (p *Pipeline) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	stopDump := make(chan struct{})
	go func() {
		for {
			select {
			case <-stopDump:
				signal.Stop(sigCh)
				return
			case <-sigCh:
				log.Printf("pipeline: currently processing id %d", p.current.Load())
			}
		}
	}()
	defer close(stopDump)

	if err := p.relationScan(ctx); err != nil {
		return fmt.Errorf("pipeline: relation scan: %w", err)
	}
	if len(p.Bridge.SignificantWayKeys()) > 0 {
		if err := p.wayScan(ctx); err != nil {
			return fmt.Errorf("pipeline: way scan: %w", err)
		}
	}
	if err := p.nodesPhase(ctx); err != nil {
		return fmt.Errorf("pipeline: nodes phase: %w", err)
	}
	p.drainBatch()
	p.Nodes.Finalize(p.Concurrency)

	if err := p.waysPhase(ctx); err != nil {
		return fmt.Errorf("pipeline: ways phase: %w", err)
	}
	p.drainBatch()
	p.Ways.Finalize(p.Concurrency)

	if err := p.relationsPhase(ctx); err != nil {
		return fmt.Errorf("pipeline: relations phase: %w", err)
	}
	return nil
}

// runPhase opens a fresh scanner and fans decoded objects out across
// p.Concurrency errgroup workers, calling handle for each one. The first
// worker error cancels the shared context and unwinds the group; Scan
// errors from the underlying library are treated the same way: fatal.
func (p *Pipeline) runPhase(ctx context.Context, handle func(o osm.Object) error) error {
	scanner, err := p.Reader.Open(ctx)
	if err != nil {
		return err
	}
	defer scanner.Close()

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan osm.Object, p.Concurrency*4)

	g.Go(func() error {
		defer close(jobs)
		for scanner.Scan() {
			var obj osm.Object
			switch {
			case scanner.Node() != nil:
				obj = scanner.Node()
			case scanner.Way() != nil:
				obj = scanner.Way()
			case scanner.Relation() != nil:
				obj = scanner.Relation()
			default:
				continue
			}
			select {
			case jobs <- obj:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return scanner.Err()
	})

	for i := 0; i < p.Concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case obj, ok := <-jobs:
					if !ok {
						return nil
					}
					if err := handle(obj); err != nil {
						return err
					}
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}
	return g.Wait()
}

// relationScan is phase 1: ask the bridge about every relation, and record
// member node/way ids in the used-{node,way} bitsets so phases 3 and 4
// know which otherwise-insignificant objects to keep.
func (p *Pipeline) relationScan(ctx context.Context) error {
	return p.runPhase(ctx, func(o osm.Object) error {
		if rel, ok := o.(*osm.Relation); ok {
			p.scanRelation(rel)
		}
		return nil
	})
}

func (p *Pipeline) scanRelation(rel *osm.Relation) {
	p.current.Store(int64(rel.ID))
	atomic.AddInt64(&p.Stats.RelationsScanned, 1)

	tags := osmpbf.Tags(rel.Tags)
	result := p.Bridge.RelationScan(int64(rel.ID), tags)
	if !result.Accepted {
		return
	}
	for k, v := range result.AddedTags {
		tags[k] = v
	}

	p.mu.Lock()
	for _, m := range rel.Members {
		switch m.Type {
		case osm.TypeNode:
			p.usedNodes.Add(uint32(m.Ref))
		case osm.TypeWay:
			p.usedWays.Add(uint32(m.Ref))
		}
	}
	p.relations[int64(rel.ID)] = &relationInfo{tags: tags, members: rel.Members}
	p.mu.Unlock()
}

// wayScan is phase 2: mark every member node of a way whose tags pass the
// bridge's significant-way-key filter, so the Nodes phase keeps them even
// though they carry no tags of their own.
func (p *Pipeline) wayScan(ctx context.Context) error {
	keys := p.Bridge.SignificantWayKeys()
	return p.runPhase(ctx, func(o osm.Object) error {
		if way, ok := o.(*osm.Way); ok {
			p.scanWay(way, keys)
		}
		return nil
	})
}

func (p *Pipeline) scanWay(way *osm.Way, keys []string) {
	p.current.Store(int64(way.ID))

	tags := osmpbf.Tags(way.Tags)
	if !passesFilter(tags, keys) {
		return
	}
	p.mu.Lock()
	for _, n := range way.Nodes {
		p.usedNodes.Add(uint32(n.ID))
	}
	p.mu.Unlock()
}

func passesFilter(tags map[string]string, keys []string) bool {
	for _, k := range keys {
		if v, ok := tags[k]; ok && v != "" {
			return true
		}
	}
	return false
}

// nodesPhase is phase 3: decode every node; if it is used (phases 1/2) or
// its own tags are significant, call the bridge and insert any emitted
// objects into the tile data source; insert the coordinate into the node
// store whenever the node is used by a later phase.
func (p *Pipeline) nodesPhase(ctx context.Context) error {
	significantKeys := p.Bridge.SignificantNodeKeys()
	return p.runPhase(ctx, func(o osm.Object) error {
		if node, ok := o.(*osm.Node); ok {
			return p.handleNode(node, significantKeys)
		}
		return nil
	})
}

func (p *Pipeline) handleNode(node *osm.Node, significantKeys []string) error {
	p.current.Store(int64(node.ID))
	atomic.AddInt64(&p.Stats.NodesScanned, 1)

	tags := osmpbf.Tags(node.Tags)
	p.mu.Lock()
	used := p.usedNodes.Contains(uint32(node.ID))
	p.mu.Unlock()

	ll := model.LatpLon{
		Latp: int32(coord.LatToLatp(node.Lat) * 1e7),
		Lon:  int32(node.Lon * 1e7),
	}

	if used {
		p.Nodes.Insert([]nodestore.Entry{{ID: model.NodeId(node.ID), Pos: ll}})
	}

	if !used && !passesFilter(tags, significantKeys) {
		return nil
	}

	objs := p.Bridge.NodeFunction(int64(node.ID), ll, tags)
	if len(objs) == 0 {
		return nil
	}
	attrSet, err := p.addAttrs(tags, 0)
	if err != nil {
		return err
	}
	x, y := coord.LonLatpToTile(float64(ll.Lon)/1e7, float64(ll.Latp)/1e7, p.BaseZoom)
	for _, oo := range objs {
		oo.ObjectId = model.TaggedNodeId(model.TagNodeStore, uint64(node.ID))
		oo.AttrSet = attrSet
		p.addTileObject(coord.TileCoord{Z: p.BaseZoom, X: x, Y: y}, oo, uint64(node.ID))
		atomic.AddInt64(&p.Stats.ObjectsEmitted, 1)
	}
	return nil
}

// waysPhase is phase 4: for every way, resolve its node ids through the
// (now finalised) node store, logging and counting each missing node (or
// failing in Strict mode); call the bridge when at least two nodes
// resolve, and store the way if a relation references it or it emitted
// output.
func (p *Pipeline) waysPhase(ctx context.Context) error {
	return p.runPhase(ctx, func(o osm.Object) error {
		if way, ok := o.(*osm.Way); ok {
			return p.handleWay(way)
		}
		return nil
	})
}

func (p *Pipeline) handleWay(way *osm.Way) error {
	p.current.Store(int64(way.ID))
	atomic.AddInt64(&p.Stats.WaysScanned, 1)

	p.mu.Lock()
	referencedByRelation := p.usedWays.Contains(uint32(way.ID))
	p.mu.Unlock()

	tags := osmpbf.Tags(way.Tags)

	nodeIDs := make([]model.NodeId, 0, len(way.Nodes))
	coords := make([]model.LatpLon, 0, len(way.Nodes))
	for _, n := range way.Nodes {
		ll, err := p.Nodes.At(model.NodeId(n.ID))
		if err != nil {
			if p.Strict {
				return fmt.Errorf("pipeline: way %d references missing node %d: %w", way.ID, n.ID, err)
			}
			log.Printf("pipeline: way %d references missing node %d, skipping node", way.ID, n.ID)
			atomic.AddInt64(&p.Stats.Dropped, 1)
			continue
		}
		nodeIDs = append(nodeIDs, model.NodeId(n.ID))
		coords = append(coords, ll)
	}
	if len(coords) < 2 {
		return nil
	}

	rawIDs := make([]int64, len(nodeIDs))
	for i, id := range nodeIDs {
		rawIDs[i] = int64(id)
	}
	objs := p.Bridge.WayFunction(int64(way.ID), rawIDs, tags)

	if referencedByRelation || len(objs) > 0 {
		entry := waystore.Entry{ID: model.WayId(way.ID)}
		if p.Ways.RequiresNodes() {
			entry.NodeIDs = nodeIDs
		} else {
			entry.Coords = coords
		}
		p.Ways.Insert([]waystore.Entry{entry})
	}
	if len(objs) == 0 {
		return nil
	}

	attrSet, err := p.addAttrs(tags, 0)
	if err != nil {
		return err
	}
	tiles := tileFootprint(coords, p.BaseZoom)
	for _, oo := range objs {
		oo.ObjectId = model.TaggedNodeId(model.TagWayStore, uint64(way.ID))
		oo.AttrSet = attrSet
		for _, tc := range tiles {
			p.addTileObject(tc, oo, uint64(way.ID))
		}
		atomic.AddInt64(&p.Stats.ObjectsEmitted, 1)
	}
	return nil
}

// relationsPhase is phase 5: for every relation RelationScan accepted,
// resolve its members through the node/way stores, call the bridge, and
// insert emitted objects under a synthetic way id (see ids.go
// SyntheticWayIdBase) spanning the union of its resolved member
// footprints.
//
// Full multipolygon ring reassembly (outer/inner matching across member
// ways) is out of scope for this pass: member way geometries are read
// back from the way store and their combined bounding footprint is used
// to place the relation's emitted objects in the tile data source. This
// is a documented simplification, not a silent one — see DESIGN.md.
//
// Relations are visited in ascending id order rather than map iteration
// order: the synthetic way id each relation is assigned comes from a
// sequential counter, and that id feeds the tile sort comparator's
// final tie-breaker, so an unordered walk would make two runs emit
// relation-derived features in different relative order within a tile
// whenever ≥2 relations share (layer, z_order, geomType, attrSet).
func (p *Pipeline) relationsPhase(ctx context.Context) error {
	ids := make([]int64, 0, len(p.relations))
	for id := range p.relations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := p.handleRelation(id, p.relations[id]); err != nil {
			return err
		}
	}
	p.drainBatch()
	return nil
}

func (p *Pipeline) handleRelation(id int64, info *relationInfo) error {
	p.current.Store(id)

	members := make([]script.Member, 0, len(info.members))
	var coords []model.LatpLon
	for _, m := range info.members {
		switch m.Type {
		case osm.TypeNode:
			members = append(members, script.Member{Type: model.TagNodeStore, Ref: uint64(m.Ref), Role: m.Role})
			if ll, err := p.Nodes.At(model.NodeId(m.Ref)); err == nil {
				coords = append(coords, ll)
			} else if p.Strict {
				return fmt.Errorf("pipeline: relation %d references missing node %d: %w", id, m.Ref, err)
			} else {
				log.Printf("pipeline: relation %d references missing node %d, skipping member", id, m.Ref)
				atomic.AddInt64(&p.Stats.Dropped, 1)
			}
		case osm.TypeWay:
			members = append(members, script.Member{Type: model.TagWayStore, Ref: uint64(m.Ref), Role: m.Role})
			if geom, err := p.Ways.At(model.WayId(m.Ref)); err == nil {
				if geom.Resolved {
					coords = append(coords, geom.Coords...)
				} else {
					for _, nid := range geom.NodeIDs {
						if ll, err := p.Nodes.At(nid); err == nil {
							coords = append(coords, ll)
						}
					}
				}
			} else if p.Strict {
				return fmt.Errorf("pipeline: relation %d references missing way %d: %w", id, m.Ref, err)
			} else {
				log.Printf("pipeline: relation %d references missing way %d, skipping member", id, m.Ref)
				atomic.AddInt64(&p.Stats.Dropped, 1)
			}
		}
	}

	objs := p.Bridge.RelationFunction(id, members, info.tags)
	if len(objs) == 0 || len(coords) == 0 {
		return nil
	}
	if p.Ways.RequiresNodes() {
		// Relation geometries are assembled from several member ways'
		// coordinates, not a single node-id sequence, so they can only
		// be materialised into a Coords-capable way store.
		log.Printf("pipeline: relation %d skipped: way store requires node ids", id)
		return nil
	}

	attrSet, err := p.addAttrs(info.tags, 0)
	if err != nil {
		return err
	}
	synthetic := model.WayId(p.nextSynthetic.Add(1))
	p.Ways.Insert([]waystore.Entry{{ID: synthetic, Coords: coords}})

	tiles := tileFootprint(coords, p.BaseZoom)
	for _, oo := range objs {
		oo.ObjectId = model.TaggedNodeId(model.TagWayStore, uint64(synthetic))
		oo.AttrSet = attrSet
		for _, tc := range tiles {
			p.addTileObject(tc, oo, uint64(id))
		}
		atomic.AddInt64(&p.Stats.ObjectsEmitted, 1)
	}
	return nil
}

// addAttrs interns every tag as a pair and returns the canonicalised
// attribute-set id for the whole tag map.
func (p *Pipeline) addAttrs(tags map[string]string, minZoom uint8) (uint32, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	ids := make([]uint32, 0, len(tags))
	for k, v := range tags {
		keyIdx, err := p.Keys.Intern(k)
		if err != nil {
			return 0, err
		}
		pairID, err := p.Pairs.Add(k, keyIdx, minZoom, attrstore.Value{Kind: attrstore.KindString, Str: v})
		if err != nil {
			return 0, err
		}
		ids = append(ids, pairID)
	}
	return p.Sets.Add(ids), nil
}

// tileFootprint returns the set of base-zoom tiles a coordinate sequence
// touches, walking each consecutive pair with coord.SupercoverLine so a
// line that only grazes a tile corner still contributes that tile.
func tileFootprint(coords []model.LatpLon, baseZoom int) []coord.TileCoord {
	if len(coords) == 0 {
		return nil
	}
	seen := make(map[coord.TileCoord]struct{})
	n := float64(int(1) << uint(baseZoom))
	toTileFrac := func(ll model.LatpLon) (float64, float64) {
		lon := float64(ll.Lon) / 1e7
		latp := float64(ll.Latp) / 1e7
		x := (lon + 180.0) / 360.0 * n
		y := (1.0 - latp/180.0) / 2.0 * n
		return x, y
	}
	if len(coords) == 1 {
		x, y := coord.LonLatpToTile(float64(coords[0].Lon)/1e7, float64(coords[0].Latp)/1e7, baseZoom)
		return []coord.TileCoord{{Z: baseZoom, X: x, Y: y}}
	}
	for i := 0; i+1 < len(coords); i++ {
		x0, y0 := toTileFrac(coords[i])
		x1, y1 := toTileFrac(coords[i+1])
		for _, tc := range coord.SupercoverLine(x0, y0, x1, y1) {
			seen[coord.TileCoord{Z: baseZoom, X: tc.X, Y: tc.Y}] = struct{}{}
		}
	}
	out := make([]coord.TileCoord, 0, len(seen))
	for tc := range seen {
		out = append(out, tc)
	}
	return out
}
