// Command tilemaker is the thin outer CLI: it parses flags, optionally
// loads a YAML layer-configuration file, wires a script.Bridge (the
// reference internal/script.Example when none is configured) and an
// internal/pmtiles.Writer sink, then drives internal/pipeline and
// internal/tileworker over the requested input. Modelled directly on
// the teacher's cmd/geotiff2pmtiles/main.go: flag-based configuration,
// a settings summary printed before work starts, CPU/mem profiling
// flags, and a "Done: ..." summary line at the end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/pspoerri/tilemaker/internal/attrstore"
	"github.com/pspoerri/tilemaker/internal/config"
	"github.com/pspoerri/tilemaker/internal/mvtencode"
	"github.com/pspoerri/tilemaker/internal/nodestore"
	"github.com/pspoerri/tilemaker/internal/osmpbf"
	"github.com/pspoerri/tilemaker/internal/pipeline"
	"github.com/pspoerri/tilemaker/internal/pmtiles"
	"github.com/pspoerri/tilemaker/internal/script"
	"github.com/pspoerri/tilemaker/internal/tiledata"
	"github.com/pspoerri/tilemaker/internal/tileworker"
	"github.com/pspoerri/tilemaker/internal/waystore"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  string
		nodeStore   string
		wayStore    string
		baseZoom    int
		startZoom   int
		endZoom     int
		concurrency int
		verbose     bool
		strict      bool
		includeID   bool
		gzipTiles   bool
		name        string
		description string
		attribution string
		layerType   string
		showVersion bool
		cpuProfile  string
		memProfile  string
	)

	flag.StringVar(&configPath, "config", "", "YAML layer-configuration file (optional)")
	flag.StringVar(&nodeStore, "node-store", "sorted", "Node store variant: binarysearch, compact, sorted, sharded")
	flag.StringVar(&wayStore, "way-store", "binarysearch", "Way store variant: binarysearch, sorted, sharded")
	flag.IntVar(&baseZoom, "base-zoom", 14, "Tile index resolution (at most 14)")
	flag.IntVar(&startZoom, "start-zoom", 0, "Lowest zoom to emit tiles for")
	flag.IntVar(&endZoom, "end-zoom", 14, "Highest zoom to emit tiles for")
	flag.IntVar(&concurrency, "concurrency", runtime.NumCPU(), "Number of parallel workers")
	flag.BoolVar(&verbose, "verbose", false, "Verbose progress output")
	flag.BoolVar(&strict, "strict", false, "Abort the build on the first missing-referent error instead of skipping it")
	flag.BoolVar(&includeID, "include-id", false, "Preserve original OSM ids in the tile index and output features")
	flag.BoolVar(&gzipTiles, "gzip", true, "Gzip-compress each serialised tile before writing it")
	flag.StringVar(&name, "name", "", "Tileset name (stored in PMTiles metadata)")
	flag.StringVar(&description, "description", "", "Tileset description (stored in PMTiles metadata)")
	flag.StringVar(&attribution, "attribution", "", "Attribution string (stored in PMTiles metadata)")
	flag.StringVar(&layerType, "type", "overlay", "Layer type: baselayer, overlay")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&cpuProfile, "cpuprofile", "", "Write CPU profile to file")
	flag.StringVar(&memProfile, "memprofile", "", "Write memory profile to file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tilemaker [flags] <input.osm.pbf> <output.pmtiles>\n\n")
		fmt.Fprintf(os.Stderr, "Build a pyramid of vector tiles from planet-scale OpenStreetMap data.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("tilemaker %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Fatalf("Creating CPU profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("Starting CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
		if verbose {
			log.Printf("CPU profiling enabled -> %s", cpuProfile)
		}
	}
	if memProfile != "" {
		defer func() {
			f, err := os.Create(memProfile)
			if err != nil {
				log.Fatalf("Creating memory profile: %v", err)
			}
			defer f.Close()
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				log.Fatalf("Writing memory profile: %v", err)
			}
			if verbose {
				log.Printf("Memory profile written -> %s", memProfile)
			}
		}()
	}

	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		os.Exit(1)
	}
	inputPath, outputPath := args[0], args[1]
	if !strings.HasSuffix(outputPath, ".pmtiles") {
		log.Fatal("Output file must have .pmtiles extension")
	}

	cfg := config.Config{
		BaseZoom:  baseZoom,
		StartZoom: startZoom,
		EndZoom:   endZoom,
		IncludeID: includeID,
		Gzip:      gzipTiles,
	}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("Loading config: %v", err)
		}
		cfg = *loaded
		// Flags still win over a loaded file for the few values that
		// also have command-line equivalents, matching the teacher's
		// "auto unless overridden" convention.
		if !flagWasSet("base-zoom") && cfg.BaseZoom > 0 {
			baseZoom = cfg.BaseZoom
		}
		if !flagWasSet("start-zoom") && cfg.StartZoom > 0 {
			startZoom = cfg.StartZoom
		}
		if !flagWasSet("end-zoom") && cfg.EndZoom > 0 {
			endZoom = cfg.EndZoom
		}
	}
	if cfg.Layers == nil {
		// No YAML config: fall back to internal/script.Example's layer
		// table so the build still produces something inspectable.
		cfg.Layers = defaultLayers()
	}
	if baseZoom > 14 {
		log.Fatalf("base-zoom %d exceeds the tile-index maximum of 14", baseZoom)
	}

	if verbose {
		log.Printf("tilemaker %s (commit %s, built %s)", version, commit, buildDate)
	}
	fmt.Printf("  %-14s %s\n", "Node store:", nodeStore)
	fmt.Printf("  %-14s %s\n", "Way store:", wayStore)
	fmt.Printf("  %-14s %d\n", "Base zoom:", baseZoom)
	fmt.Printf("  %-14s %d - %d\n", "Zoom range:", startZoom, endZoom)
	fmt.Printf("  %-14s %d\n", "Concurrency:", concurrency)
	fmt.Printf("  %-14s %s\n", "Input:", inputPath)
	fmt.Printf("  %-14s %s\n", "Output:", outputPath)

	nodes, err := buildNodeStore(nodeStore)
	if err != nil {
		log.Fatalf("Node store: %v", err)
	}
	ways, err := buildWayStore(wayStore)
	if err != nil {
		log.Fatalf("Way store: %v", err)
	}

	keys := attrstore.NewKeyStore()
	pairs := attrstore.NewPairStore()
	sets := attrstore.NewSetStore()
	tiles := tiledata.NewSource(baseZoom, includeID, 4*concurrency)

	reader := osmpbf.NewReader(inputPath, concurrency)
	bridge := script.NewExample()

	p := pipeline.New(reader, bridge, nodes, ways, keys, pairs, sets, tiles, baseZoom, concurrency)
	p.Strict = strict

	start := time.Now()
	if err := p.Run(context.Background()); err != nil {
		log.Fatalf("Pipeline: %v", err)
	}
	if verbose {
		log.Printf("Processed %d nodes, %d ways, %d relations, emitted %d objects (%d dropped) in %v",
			p.Stats.NodesScanned, p.Stats.WaysScanned, p.Stats.RelationsScanned,
			p.Stats.ObjectsEmitted, p.Stats.Dropped, time.Since(start).Round(time.Millisecond))
	}

	tiles.Finalize(concurrency)

	writer, err := pmtiles.NewWriter(outputPath, pmtiles.WriterOptions{
		MinZoom:      startZoom,
		MaxZoom:      endZoom,
		Bounds:       cfg.Clip,
		TileFormat:   pmtiles.TileTypeMVT,
		TileSize:     4096,
		TempDir:      "",
		Name:         name,
		Description:  description,
		Attribution:  attribution,
		Type:         layerType,
		VectorLayers: vectorLayers(cfg.Layers),
	})
	if err != nil {
		log.Fatalf("Creating PMTiles writer: %v", err)
	}

	comp := mvtCompression(gzipTiles)
	genStart := time.Now()
	stats, err := tileworker.Generate(tileworker.Config{
		Layers:      cfg.Layers,
		StartZoom:   startZoom,
		EndZoom:     endZoom,
		Extent:      4096,
		IncludeID:   includeID,
		Compression: comp,
		Concurrency: concurrency,
		Verbose:     verbose,
	}, tileworker.Stores{
		Nodes: nodes,
		Ways:  ways,
		Keys:  keys,
		Pairs: pairs,
		Sets:  sets,
		Tiles: tiles,
	}, writer)
	if err != nil {
		writer.Abort()
		log.Fatalf("Tile generation: %v", err)
	}
	if verbose {
		log.Printf("Generated %d tiles (%d empty) in %v", stats.TileCount, stats.EmptyTiles,
			time.Since(genStart).Round(time.Millisecond))
	}

	if err := writer.Finalize(); err != nil {
		log.Fatalf("Finalizing PMTiles: %v", err)
	}

	elapsed := time.Since(start).Round(time.Millisecond)
	fi, _ := os.Stat(outputPath)
	fmt.Printf("Done: %d tiles (%d dropped geometries, %d corrected), %s, %v -> %s\n",
		stats.TileCount, stats.DroppedGeometries, stats.CorrectedGeometries, humanSize(sizeOf(fi)), elapsed, outputPath)
}

func sizeOf(fi os.FileInfo) int64 {
	if fi == nil {
		return 0
	}
	return fi.Size()
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func mvtCompression(gzipTiles bool) mvtencode.Compression {
	if gzipTiles {
		return mvtencode.CompressionGzip
	}
	return mvtencode.CompressionNone
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func buildNodeStore(variant string) (nodestore.Store, error) {
	switch variant {
	case "binarysearch":
		return nodestore.NewBinarySearch(), nil
	case "compact":
		return nodestore.NewCompact(1 << 20), nil
	case "sorted":
		return nodestore.NewSorted(), nil
	case "sharded":
		return nodestore.NewSharded(func() nodestore.Store { return nodestore.NewSorted() }), nil
	default:
		return nil, fmt.Errorf("unknown node store variant %q", variant)
	}
}

func buildWayStore(variant string) (waystore.Store, error) {
	switch variant {
	case "binarysearch":
		return waystore.NewBinarySearch(), nil
	case "sorted":
		return waystore.NewSorted(), nil
	case "sharded":
		return waystore.NewSharded(8, func() waystore.Store { return waystore.NewSorted() }, func(e waystore.Entry) int {
			if len(e.NodeIDs) == 0 {
				return 0
			}
			return int(uint64(e.NodeIDs[0]) % 8)
		}), nil
	default:
		return nil, fmt.Errorf("unknown way store variant %q", variant)
	}
}

// defaultLayers mirrors script.Example's fixed layer table, so a run
// without a YAML config still produces layers that match what the
// bridge actually emits.
func defaultLayers() []config.Layer {
	return []config.Layer{
		{Name: "points", MinZoom: 4, MaxZoom: 14, SimplifyBelow: 0, FilterBelow: 0},
		{Name: "lines", MinZoom: 10, MaxZoom: 14, SimplifyBelow: 14, SimplifyRatio: 1, FilterBelow: 12, FilterArea: 1e-8},
		{Name: "roads", MinZoom: 3, MaxZoom: 14, SimplifyBelow: 14, SimplifyRatio: 1, FilterBelow: 0},
		{Name: "buildings", MinZoom: 12, MaxZoom: 14, SimplifyBelow: 14, SimplifyRatio: 1, FilterBelow: 13, FilterArea: 1e-9},
	}
}

// vectorLayers converts the layer configuration to the PMTiles
// metadata's vector_layers shape.
func vectorLayers(layers []config.Layer) []pmtiles.VectorLayer {
	out := make([]pmtiles.VectorLayer, 0, len(layers))
	for _, l := range layers {
		out = append(out, pmtiles.VectorLayer{
			ID:      l.Name,
			MinZoom: l.MinZoom,
			MaxZoom: l.MaxZoom,
		})
	}
	return out
}
