package attrstore

import (
	"sort"
	"strconv"
	"strings"
	"sync"
)

// SetStore is the insertion-ordered, canonicalised attribute-set dedup
// table. Set id 0 is always the empty set. Add canonicalises
// its input (sorted ascending, duplicates removed) before hashing, so
// two sets built from the same multiset of pair ids in any order
// collapse to the same id.
//
// Sets are stored as a plain growable []uint32 per id rather than the
// source's small-fixed-layout/growable-vector dual representation: Go
// slices already keep per-entry overhead low, and the dual layout's
// benefit there is mostly inline-struct packing that doesn't carry
// over cleanly to Go. See DESIGN.md.
type SetStore struct {
	mu      sync.Mutex
	forward [][]uint32
	reverse map[string]uint32 // dropped by DoneReading
}

// NewSetStore returns a set store with id 0 reserved for the empty set.
func NewSetStore() *SetStore {
	return &SetStore{
		forward: [][]uint32{nil},
		reverse: map[string]uint32{"": 0},
	}
}

func canonicalize(ids []uint32) []uint32 {
	out := append([]uint32(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}

func canonicalKey(ids []uint32) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}

// Add returns the set id for the canonical form of pairIDs, allocating
// a new one only if this exact canonical set hasn't been seen before.
// Must not be called after DoneReading.
func (s *SetStore) Add(pairIDs []uint32) uint32 {
	canon := canonicalize(pairIDs)
	if len(canon) == 0 {
		return 0
	}
	key := canonicalKey(canon)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reverse == nil {
		panic("attrstore: Add called after DoneReading")
	}
	if id, ok := s.reverse[key]; ok {
		return id
	}
	id := uint32(len(s.forward))
	s.forward = append(s.forward, canon)
	s.reverse[key] = id
	return id
}

// At returns the canonical pair-id sequence for a set id.
func (s *SetStore) At(id uint32) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id) >= len(s.forward) {
		return nil
	}
	return s.forward[id]
}

// Size returns the number of distinct sets, including the empty set.
func (s *SetStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forward)
}

// DoneReading drops the reverse lookup map, retaining only the forward
// table.
// After this call Add must not be used.
func (s *SetStore) DoneReading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reverse = nil
}
