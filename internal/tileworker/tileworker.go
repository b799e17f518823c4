// Package tileworker assembles and serialises one vector tile at a
// time: it collects the output objects a tiledata.Source indexed for
// a given (z, x, y), resolves each one's geometry through the node
// store, way store, or materialised-geometry arena, clips and
// simplifies per layer, merges adjacent same-attribute features, and
// encodes the result as an MVT tile. The per-zoom worker-pool
// orchestration is adapted from internal/tile/generator.go's Generate:
// same job-channel-plus-waitgroup shape, same atomic counters and
// progress bar, with the per-job body entirely replaced since there is
// no pyramid downsample to reuse between zoom levels — every zoom
// independently re-queries the tile index.
package tileworker

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb/maptile"

	"github.com/pspoerri/tilemaker/internal/attrstore"
	"github.com/pspoerri/tilemaker/internal/config"
	"github.com/pspoerri/tilemaker/internal/coord"
	"github.com/pspoerri/tilemaker/internal/mvtencode"
	"github.com/pspoerri/tilemaker/internal/nodestore"
	"github.com/pspoerri/tilemaker/internal/tiledata"
	"github.com/pspoerri/tilemaker/internal/waystore"
)

// Stores bundles the process state built up by internal/pipeline that
// the worker needs to resolve geometry and attributes for one object.
type Stores struct {
	Nodes nodestore.Store
	Ways  waystore.Store
	Keys  *attrstore.KeyStore
	Pairs *attrstore.PairStore
	Sets  *attrstore.SetStore
	Tiles *tiledata.Source
}

// Config holds tile generation configuration.
type Config struct {
	Layers      []config.Layer
	StartZoom   int
	EndZoom     int
	Extent      uint64
	IncludeID   bool
	Compression mvtencode.Compression
	Concurrency int
	Verbose     bool
}

// Stats holds generation statistics, including the counts a final
// user-visible summary line reports.
type Stats struct {
	TileCount           int64
	EmptyTiles          int64
	TotalBytes          int64
	DroppedGeometries   int64
	CorrectedGeometries int64
}

// TileWriter is the interface for writing tiles (implemented by pmtiles.Writer).
type TileWriter interface {
	WriteTile(z, x, y int, data []byte) error
}

type tileJob struct {
	Z, X, Y int
}

// EnumerateTiles returns every (z,x,y) tile a finalised source might
// produce output for, across [cfg.StartZoom, cfg.EndZoom]. Coverage
// comes from the tile index itself rather than the full theoretical
// tile space: for each non-empty small-object cluster, its occupied
// base-zoom tile offsets are projected down to every ancestor zoom and
// deduplicated; the large-object tier's bounding box is projected the
// same way. This keeps enumeration cost proportional to actual data
// density.
func EnumerateTiles(src *tiledata.Source, cfg Config) []coord.TileCoord {
	baseZoom := src.BaseZoom()
	endZoom := cfg.EndZoom
	if endZoom > baseZoom {
		endZoom = baseZoom
	}

	seen := make(map[coord.TileCoord]struct{})
	var all []coord.TileCoord
	add := func(tc coord.TileCoord) {
		if _, ok := seen[tc]; ok {
			return
		}
		seen[tc] = struct{}{}
		all = append(all, tc)
	}

	for _, cluster := range src.NonEmptyClusters() {
		for _, tc := range src.ClusterTileOffsets(cluster) {
			addAncestors(tc, cfg.StartZoom, endZoom, add)
		}
	}
	if minX, minY, maxX, maxY, ok := src.LargeObjectBounds(); ok {
		for x := minX; x <= maxX; x++ {
			for y := minY; y <= maxY; y++ {
				addAncestors(coord.TileCoord{Z: 14, X: x, Y: y}, cfg.StartZoom, endZoom, add)
			}
		}
	}
	return all
}

// addAncestors projects a base-zoom (or z14, for large objects) tile
// down to every zoom in [startZoom, endZoom] and calls add for each.
func addAncestors(tc coord.TileCoord, startZoom, endZoom int, add func(coord.TileCoord)) {
	for z := endZoom; z >= startZoom; z-- {
		shift := uint(tc.Z - z)
		if tc.Z < z {
			continue
		}
		add(coord.TileCoord{Z: z, X: tc.X >> shift, Y: tc.Y >> shift})
	}
}

// Generate walks every zoom in [cfg.StartZoom, cfg.EndZoom], building
// and writing one MVT tile per candidate (z,x,y) the source's index
// covers.
func Generate(cfg Config, stores Stores, writer TileWriter) (Stats, error) {
	if stores.Tiles == nil {
		return Stats{}, fmt.Errorf("tileworker: no tile data source")
	}

	byZoom := make(map[int][]coord.TileCoord)
	for _, tc := range EnumerateTiles(stores.Tiles, cfg) {
		byZoom[tc.Z] = append(byZoom[tc.Z], tc)
	}

	var tileCount, emptyCount, totalBytes, dropped, corrected atomic.Int64
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	for z := cfg.EndZoom; z >= cfg.StartZoom; z-- {
		tiles := byZoom[z]
		if len(tiles) == 0 {
			continue
		}
		if cfg.Verbose {
			log.Printf("tileworker: zoom %d: %d candidate tiles", z, len(tiles))
		}

		pb := newProgressBar(fmt.Sprintf("Zoom %2d", z), int64(len(tiles)))

		jobs := make(chan tileJob, concurrency*2)
		var wg sync.WaitGroup
		errCh := make(chan error, 1)

		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func(workerShard int) {
				defer wg.Done()
				for job := range jobs {
					data, stat, err := buildTile(cfg, stores, workerShard, job.Z, job.X, job.Y)
					dropped.Add(int64(stat.dropped))
					corrected.Add(int64(stat.corrected))
					if err != nil {
						select {
						case errCh <- fmt.Errorf("tile z%d/%d/%d: %w", job.Z, job.X, job.Y, err):
						default:
						}
						pb.Increment()
						continue
					}
					if len(data) == 0 {
						emptyCount.Add(1)
						pb.Increment()
						continue
					}
					if err := writer.WriteTile(job.Z, job.X, job.Y, data); err != nil {
						select {
						case errCh <- fmt.Errorf("writing tile z%d/%d/%d: %w", job.Z, job.X, job.Y, err):
						default:
						}
						pb.Increment()
						continue
					}
					tileCount.Add(1)
					totalBytes.Add(int64(len(data)))
					pb.Increment()
				}
			}(w % concurrency)
		}

		for _, t := range tiles {
			jobs <- tileJob{Z: t.Z, X: t.X, Y: t.Y}
		}
		close(jobs)
		wg.Wait()
		pb.Finish()

		select {
		case err := <-errCh:
			return Stats{}, err
		default:
		}
	}

	return Stats{
		TileCount:           tileCount.Load(),
		EmptyTiles:          emptyCount.Load(),
		TotalBytes:          totalBytes.Load(),
		DroppedGeometries:   dropped.Load(),
		CorrectedGeometries: corrected.Load(),
	}, nil
}

// sortCandidates orders candidates per internal/model.Less, using each
// object's own layer's configured z-order direction (Less only takes a
// single shared direction, so candidates are bucketed by layer index
// first). Adjacent structurally-equal entries are then deduplicated —
// an object can appear twice when it straddles cluster shard
// boundaries or was added to both the small and large tiers during a
// transition.
func sortCandidates(cands []tiledata.Candidate, layers []config.Layer) []tiledata.Candidate {
	descFor := func(layerIdx uint8) bool {
		if int(layerIdx) < len(layers) {
			return layers[layerIdx].DescendingZOrder()
		}
		return false
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return lessCandidate(cands[i], cands[j], descFor)
	})

	out := cands[:0]
	for i, c := range cands {
		if i > 0 && c.OO == cands[i-1].OO {
			continue
		}
		out = append(out, c)
	}
	return out
}

func lessCandidate(a, b tiledata.Candidate, descFor func(uint8) bool) bool {
	if a.OO.Layer != b.OO.Layer {
		return a.OO.Layer < b.OO.Layer
	}
	desc := descFor(a.OO.Layer)
	if a.OO.ZOrder != b.OO.ZOrder {
		if desc {
			return a.OO.ZOrder > b.OO.ZOrder
		}
		return a.OO.ZOrder < b.OO.ZOrder
	}
	if a.OO.GeomType != b.OO.GeomType {
		return a.OO.GeomType < b.OO.GeomType
	}
	if a.OO.AttrSet != b.OO.AttrSet {
		return a.OO.AttrSet < b.OO.AttrSet
	}
	return a.OO.ObjectId < b.OO.ObjectId
}

// TileID returns the maptile.Tile corresponding to (z,x,y), a small
// convenience wrapper so callers in this package don't repeat the
// struct literal.
func TileID(z, x, y int) maptile.Tile {
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
}
