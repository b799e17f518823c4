package nodestore

import (
	"sort"
	"sync"

	"github.com/pspoerri/tilemaker/internal/model"
	"github.com/pspoerri/tilemaker/internal/varint"
)

const (
	groupIDShift = 16 // ids in the same group share their top bits above this
	chunkIDBits  = 8  // a group holds 256 chunks
	chunkIDMask  = 1<<chunkIDBits - 1
	slotBits     = 8 // a chunk holds 256 ids
	slotMask     = 1<<slotBits - 1

	// compressedLengthLimit mirrors "both streams fit in 10 bits of
	// length": a chunk whose delta stream would need more bytes than a
	// 10-bit length field can address is never worth compressing.
	compressedLengthLimit = 1 << 10
)

type chunk struct {
	mask       bitmask256
	compressed bool

	// uncompressed form
	raw []model.LatpLon

	// compressed form: first value verbatim, remaining values as
	// zig-zag delta varints, one stream per axis.
	firstLatp, firstLon int32
	encLatp, encLon     []byte
	n                   int
}

func (c *chunk) at(rank int) model.LatpLon {
	if !c.compressed {
		return c.raw[rank]
	}
	if rank == 0 {
		return model.LatpLon{Latp: c.firstLatp, Lon: c.firstLon}
	}
	latps, _, err := varint.DecodeDelta(padded(c.encLatp), int64(c.firstLatp), c.n-1)
	if err != nil {
		panic(err) // a corrupt chunk is a programmer error, not a runtime condition to recover from
	}
	lons, _, err := varint.DecodeDelta(padded(c.encLon), int64(c.firstLon), c.n-1)
	if err != nil {
		panic(err)
	}
	return model.LatpLon{Latp: int32(latps[rank-1]), Lon: int32(lons[rank-1])}
}

// padded returns a fresh copy of b with MaxPadding zero bytes appended,
// so concurrent At calls decoding the same chunk never race on a
// shared backing array (encLatp/encLon are immutable post-Finalize,
// but append into spare capacity of the same slice would still be a
// write race even when the bytes written are always zero).
func padded(b []byte) []byte {
	out := make([]byte, len(b)+varint.MaxPadding)
	copy(out, b)
	return out
}

func buildChunk(bySlot map[int]model.LatpLon) *chunk {
	slots := make([]int, 0, len(bySlot))
	for s := range bySlot {
		slots = append(slots, s)
	}
	sort.Ints(slots)

	var mask bitmask256
	raw := make([]model.LatpLon, len(slots))
	latps := make([]int64, len(slots))
	lons := make([]int64, len(slots))
	for i, s := range slots {
		mask.set(s)
		raw[i] = bySlot[s]
		latps[i] = int64(raw[i].Latp)
		lons[i] = int64(raw[i].Lon)
	}

	c := &chunk{mask: mask, raw: raw, n: len(slots)}
	if len(slots) <= 1 {
		return c
	}

	encLatp := varint.EncodeDelta(nil, latps[0], latps[1:])
	encLon := varint.EncodeDelta(nil, lons[0], lons[1:])
	rawSize := len(slots) * 8
	if len(encLatp) < compressedLengthLimit && len(encLon) < compressedLengthLimit &&
		len(encLatp)+len(encLon) < rawSize {
		c.compressed = true
		c.firstLatp, c.firstLon = raw[0].Latp, raw[0].Lon
		c.encLatp, c.encLon = encLatp, encLon
		c.raw = nil
	}
	return c
}

type group struct {
	mask   bitmask256 // which of 256 chunks are present
	chunks []*chunk   // dense, ordered by chunk index
}

// Sorted is the "256x256 grouped, per-chunk bitmask plus optional
// delta-compressed payload" variant of . It is the variant
// intended for planet-scale builds: a well-formed (spatially or
// id-locally clustered) insertion stream compresses to a small
// fraction of the raw 8-bytes-per-node cost.
//
// Grounded on internal/tile/diskstore.go's DiskTileStore: Insert
// accumulates under a short per-store mutex (the "owner publishes
// under a short critical section" idiom; this package simplifies the
// teacher's separate per-thread local buffer into a single guarded
// pending map, since Go's map writes are already cheap enough under a
// mutex at this grain — see DESIGN.md), and Finalize performs the bulk
// "orphan" consolidation the teacher's Drain does for stragglers.
type Sorted struct {
	mu      sync.Mutex
	pending map[uint64]map[int]map[int]model.LatpLon // group -> chunk -> slot -> pos

	groups    map[uint64]*group
	finalized bool
}

func NewSorted() *Sorted {
	return &Sorted{pending: make(map[uint64]map[int]map[int]model.LatpLon)}
}

func decompose(id model.NodeId) (groupID uint64, chunkIdx, slot int) {
	u := uint64(id)
	groupID = u >> groupIDShift
	chunkIdx = int((u >> slotBits) & chunkIDMask)
	slot = int(u & slotMask)
	return
}

func (s *Sorted) Insert(batch []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range batch {
		g, c, slot := decompose(e.ID)
		byChunk, ok := s.pending[g]
		if !ok {
			byChunk = make(map[int]map[int]model.LatpLon)
			s.pending[g] = byChunk
		}
		bySlot, ok := byChunk[c]
		if !ok {
			bySlot = make(map[int]model.LatpLon)
			byChunk[c] = bySlot
		}
		bySlot[slot] = e.Pos
	}
}

func (s *Sorted) BatchStart() {}

func (s *Sorted) Finalize(nThreads int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.groups = make(map[uint64]*group, len(s.pending))
	for gid, byChunk := range s.pending {
		chunkIdxs := make([]int, 0, len(byChunk))
		for c := range byChunk {
			chunkIdxs = append(chunkIdxs, c)
		}
		sort.Ints(chunkIdxs)

		var mask bitmask256
		chunks := make([]*chunk, 0, len(chunkIdxs))
		for _, c := range chunkIdxs {
			mask.set(c)
			chunks = append(chunks, buildChunk(byChunk[c]))
		}
		s.groups[gid] = &group{mask: mask, chunks: chunks}
	}
	s.pending = nil
	s.finalized = true
}

func (s *Sorted) At(id model.NodeId) (model.LatpLon, error) {
	gid, chunkIdx, slot := decompose(id)
	g, ok := s.groups[gid]
	if !ok || !g.mask.test(chunkIdx) {
		return model.LatpLon{}, ErrNotFound
	}
	c := g.chunks[g.mask.rank(chunkIdx)]
	if !c.mask.test(slot) {
		return model.LatpLon{}, ErrNotFound
	}
	return c.at(c.mask.rank(slot)), nil
}

func (s *Sorted) Shards() int { return 1 }

func (s *Sorted) Contains(shard int, id model.NodeId) bool {
	if shard != 0 {
		return false
	}
	_, err := s.At(id)
	return err == nil
}
