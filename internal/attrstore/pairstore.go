package attrstore

import (
	"hash/fnv"
	"strconv"
	"sync"
)

// HotPoolCapacity is the hot pool's fixed slot count: pair ids in
// [0, HotPoolCapacity) always fit in 16 bits.
const HotPoolCapacity = 1 << 16

// ColdShardCount is the cold-storage shard count.
const ColdShardCount = 256

// coldShardCapacity is derived so the full 32-bit id space is covered:
// (2^32 - HotPoolCapacity) / ColdShardCount is just under 2^24, which
// gives roughly 16M entries of headroom per shard.
const coldShardCapacity = (uint64(1)<<32 - HotPoolCapacity) / ColdShardCount

type pairShard struct {
	mu    sync.Mutex
	index map[Pair]uint32
	pairs []Pair
}

func newPairShard(capacityHint int) *pairShard {
	return &pairShard{index: make(map[Pair]uint32, capacityHint)}
}

// PairStore holds the process-wide deduplicated attribute-pair
// dictionary: shard 0 is the hot pool, shards 1..N are cold. Add
// checks the appropriate shard's map and appends on miss.
type PairStore struct {
	hot  *pairShard
	cold [ColdShardCount]*pairShard
}

// NewPairStore returns an empty pair store.
func NewPairStore() *PairStore {
	s := &PairStore{hot: newPairShard(1024)}
	for i := range s.cold {
		s.cold[i] = newPairShard(64)
	}
	return s
}

// Add interns (keyName, keyIdx, minZoom, v) and returns its pair id,
// reusing an existing id if an identical pair was already added.
// keyName drives the hot-pool classification; keyIdx is what's
// actually stored in the Pair record.
func (s *PairStore) Add(keyName string, keyIdx KeyIndex, minZoom uint8, v Value) (uint32, error) {
	p := Pair{Key: keyIdx, MinZoom: minZoom, Value: v}

	if IsHot(keyName, v) {
		if id, ok := s.tryHot(p); ok {
			return id, nil
		}
		// Hot pool full: falling through to cold storage only wastes
		// the classification's intended benefit, never correctness.
	}
	return s.addCold(p)
}

func (s *PairStore) tryHot(p Pair) (uint32, bool) {
	s.hot.mu.Lock()
	defer s.hot.mu.Unlock()
	if id, ok := s.hot.index[p]; ok {
		return id, true
	}
	if len(s.hot.pairs) >= HotPoolCapacity {
		return 0, false
	}
	id := uint32(len(s.hot.pairs))
	s.hot.pairs = append(s.hot.pairs, p)
	s.hot.index[p] = id
	return id, true
}

func (s *PairStore) addCold(p Pair) (uint32, error) {
	shard := coldShardFor(p)
	cs := s.cold[shard]
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if id, ok := cs.index[p]; ok {
		return id, nil
	}
	offset := uint64(len(cs.pairs))
	if offset >= coldShardCapacity {
		return 0, ErrCapacityExceeded
	}
	cs.pairs = append(cs.pairs, p)
	id := uint32(HotPoolCapacity) + uint32(shard)*uint32(coldShardCapacity) + uint32(offset)
	cs.index[p] = id
	return id, nil
}

// At resolves a pair id back to its Pair.
func (s *PairStore) At(id uint32) (Pair, bool) {
	if id < HotPoolCapacity {
		s.hot.mu.Lock()
		defer s.hot.mu.Unlock()
		if int(id) >= len(s.hot.pairs) {
			return Pair{}, false
		}
		return s.hot.pairs[id], true
	}
	rem := uint64(id) - HotPoolCapacity
	shard := rem / coldShardCapacity
	offset := rem % coldShardCapacity
	if shard >= ColdShardCount {
		return Pair{}, false
	}
	cs := s.cold[shard]
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if offset >= uint64(len(cs.pairs)) {
		return Pair{}, false
	}
	return cs.pairs[offset], true
}

// HotPoolSize returns the number of entries currently in shard 0,
// which never exceeds HotPoolCapacity.
func (s *PairStore) HotPoolSize() int {
	s.hot.mu.Lock()
	defer s.hot.mu.Unlock()
	return len(s.hot.pairs)
}

// coldShardFor hashes a pair's content into one of the cold shards, to
// spread insert-time contention. The hash doesn't need to be
// stable across processes: it only partitions live in-memory storage.
func coldShardFor(p Pair) int {
	h := fnv.New32a()
	h.Write([]byte(strconv.Itoa(int(p.Key))))
	h.Write([]byte{byte(p.MinZoom), byte(p.Value.Kind)})
	h.Write([]byte(strconv.FormatFloat(float64(p.Value.Num), 'g', -1, 32)))
	h.Write([]byte(p.Value.Str))
	return int(h.Sum32() % ColdShardCount)
}
