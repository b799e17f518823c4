package waystore

import (
	"sync"

	"github.com/pspoerri/tilemaker/internal/model"
)

// Classify decides which shard a way belongs to from the entry being
// inserted. Callers typically derive this from the geographic shard of
// the way's member nodes (matching nodestore.Sharded's bucketing), so
// a way lives in the shard holding most of its nodes.
type Classify func(Entry) int

// Sharded composes N instances of another Store variant, dispatching
// each way to one shard at Insert time and fanning Finalize out across
// all shards concurrently. Mirrors nodestore.Sharded's outer-wrapper
// shape.
type Sharded struct {
	shards   []Store
	classify Classify
	requires bool
}

// NewSharded builds a Sharded store of n shards, each created by
// factory, dispatching with classify. factory's stores must all agree
// on RequiresNodes(); that value is cached from shard 0.
func NewSharded(n int, factory func() Store, classify Classify) *Sharded {
	s := &Sharded{shards: make([]Store, n), classify: classify}
	for i := range s.shards {
		s.shards[i] = factory()
	}
	if n > 0 {
		s.requires = s.shards[0].RequiresNodes()
	}
	return s
}

func (s *Sharded) RequiresNodes() bool { return s.requires }

func (s *Sharded) Insert(batch []Entry) {
	byShard := make(map[int][]Entry)
	for _, e := range batch {
		sh := s.classify(e) % len(s.shards)
		byShard[sh] = append(byShard[sh], e)
	}
	for sh, entries := range byShard {
		s.shards[sh].Insert(entries)
	}
}

func (s *Sharded) BatchStart() {
	for _, sh := range s.shards {
		sh.BatchStart()
	}
}

func (s *Sharded) Finalize(nThreads int) {
	var wg sync.WaitGroup
	for _, sh := range s.shards {
		sh := sh
		wg.Add(1)
		go func() {
			defer wg.Done()
			sh.Finalize(nThreads)
		}()
	}
	wg.Wait()
}

// At tries every shard in turn; callers that know a way's shard should
// prefer Contains/shard-specific lookups during the Ways phase.
func (s *Sharded) At(id model.WayId) (Geometry, error) {
	for _, sh := range s.shards {
		if g, err := sh.At(id); err == nil {
			return g, nil
		}
	}
	return Geometry{}, ErrNotFound
}

func (s *Sharded) Shards() int { return len(s.shards) }

func (s *Sharded) Contains(shard int, id model.WayId) bool {
	if shard < 0 || shard >= len(s.shards) {
		return false
	}
	_, err := s.shards[shard].At(id)
	return err == nil
}
