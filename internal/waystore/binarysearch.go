package waystore

import (
	"sort"
	"sync"

	"github.com/pspoerri/tilemaker/internal/model"
)

type bsWay struct {
	id     model.WayId
	coords []model.LatpLon
}

// BinarySearch is the "append vector of (WayId, [LatpLon]), sorted in
// Finalize" variant of : the caller has already resolved node
// ids to coordinates before Insert, so lookups never touch a node
// store.
//
// Grounded on internal/pmtiles/writer.go's accumulate-under-mutex /
// sort-once-in-Finalize / sort.Search-At discipline, the same shape
// internal/nodestore.BinarySearch already reuses.
type BinarySearch struct {
	mu      sync.Mutex
	ways    []bsWay
	sorted  bool
}

func NewBinarySearch() *BinarySearch {
	return &BinarySearch{}
}

func (s *BinarySearch) RequiresNodes() bool { return false }

func (s *BinarySearch) Insert(batch []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range batch {
		s.ways = append(s.ways, bsWay{id: e.ID, coords: e.Coords})
	}
}

func (s *BinarySearch) BatchStart() {}

func (s *BinarySearch) Finalize(nThreads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.Slice(s.ways, func(i, j int) bool { return s.ways[i].id < s.ways[j].id })
	s.sorted = true
}

func (s *BinarySearch) At(id model.WayId) (Geometry, error) {
	i := sort.Search(len(s.ways), func(j int) bool { return s.ways[j].id >= id })
	if i < len(s.ways) && s.ways[i].id == id {
		return Geometry{Resolved: true, Coords: s.ways[i].coords}, nil
	}
	return Geometry{}, ErrNotFound
}

func (s *BinarySearch) Shards() int { return 1 }

func (s *BinarySearch) Contains(shard int, id model.WayId) bool {
	if shard != 0 {
		return false
	}
	_, err := s.At(id)
	return err == nil
}
