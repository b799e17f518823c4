package nodestore

import (
	"sort"
	"sync"

	"github.com/pspoerri/tilemaker/internal/model"
)

const binarySearchShardCount = 16

type bsEntry struct {
	low uint64 // id with the top 4 bits (the shard selector) masked off
	pos model.LatpLon
}

const bsLowMask = 1<<60 - 1

// BinarySearch is the "sixteen shards keyed on the top four bits of the
// id" variant of : an append vector per shard, sorted once at
// Finalize, looked up by binary search. Simple, and fastest for inputs
// small enough that sort-then-search beats a dense or bitmask layout.
//
// Grounded on internal/pmtiles/writer.go's Finalize/At discipline:
// entries accumulate unsorted under a mutex, are sorted once, and are
// then read via sort.Search with no further locking.
type BinarySearch struct {
	shards [binarySearchShardCount]struct {
		mu      sync.Mutex
		entries []bsEntry
	}
	finalized bool
}

func NewBinarySearch() *BinarySearch {
	return &BinarySearch{}
}

func bsShard(id model.NodeId) int {
	return int(uint64(id) >> 60)
}

func (s *BinarySearch) Insert(batch []Entry) {
	for _, e := range batch {
		sh := &s.shards[bsShard(e.ID)]
		low := uint64(e.ID) & bsLowMask
		sh.mu.Lock()
		sh.entries = append(sh.entries, bsEntry{low: low, pos: e.Pos})
		sh.mu.Unlock()
	}
}

func (s *BinarySearch) BatchStart() {}

func (s *BinarySearch) Finalize(nThreads int) {
	var wg sync.WaitGroup
	for i := range s.shards {
		wg.Add(1)
		go func(sh *struct {
			mu      sync.Mutex
			entries []bsEntry
		}) {
			defer wg.Done()
			sort.Slice(sh.entries, func(a, b int) bool { return sh.entries[a].low < sh.entries[b].low })
		}(&s.shards[i])
	}
	wg.Wait()
	s.finalized = true
}

func (s *BinarySearch) At(id model.NodeId) (model.LatpLon, error) {
	sh := &s.shards[bsShard(id)]
	low := uint64(id) & bsLowMask
	entries := sh.entries
	i := sort.Search(len(entries), func(j int) bool { return entries[j].low >= low })
	if i < len(entries) && entries[i].low == low {
		return entries[i].pos, nil
	}
	return model.LatpLon{}, ErrNotFound
}

func (s *BinarySearch) Shards() int { return binarySearchShardCount }

func (s *BinarySearch) Contains(shard int, id model.NodeId) bool {
	if shard != bsShard(id) {
		return false
	}
	_, err := s.At(id)
	return err == nil
}
