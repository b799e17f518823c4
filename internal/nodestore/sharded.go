package nodestore

import (
	"sync"

	"github.com/pspoerri/tilemaker/internal/coord"
	"github.com/pspoerri/tilemaker/internal/model"
)

const shardedCount = 8

// ShardHint carries one goroutine's "last shard that resolved a
// lookup" across calls to AtHint, the explicit worker-local context
// struct the redesigned concurrency model uses in place of a hidden
// thread-local.
type ShardHint struct {
	last int
	set  bool
}

// Sharded is the "eight geography-keyed sub-stores" variant of
// : the only variant that keeps a planet build's working set
// bounded on memory-constrained hardware, since each shard's backing
// store only ever holds the nodes that landed in its slice of the
// world.
//
// A node's shard is decided at Insert time from its position (a
// coarse z3-tile bucketing), not from its id, so At without a hint
// falls through every shard in turn — correct regardless of hint
// accuracy, just slower on a cold/wrong guess. This mirrors
// internal/cog/tilecache.go's recently-used-first probe order.
type Sharded struct {
	shards [shardedCount]Store
}

// NewSharded builds a Sharded store whose per-shard backing stores are
// created by factory (e.g. NewBinarySearch, or a closure around
// NewSorted).
func NewSharded(factory func() Store) *Sharded {
	s := &Sharded{}
	for i := range s.shards {
		s.shards[i] = factory()
	}
	return s
}

// shardForPos buckets a position into one of 8 shards via its z3 tile
// coordinate. This is a coarse geographic heuristic, not a guarantee:
// a shard boundary can still bisect a dense urban area, which only
// costs a little cross-shard fallthrough on lookup, never correctness.
func shardForPos(pos model.LatpLon) int {
	p := pos.Point()
	x, y := coord.LonLatpToTile(p[0], p[1], 3)
	return (x*8 + y*3) % shardedCount
}

func (s *Sharded) Insert(batch []Entry) {
	var byShard [shardedCount][]Entry
	for _, e := range batch {
		sh := shardForPos(e.Pos)
		byShard[sh] = append(byShard[sh], e)
	}
	for i, entries := range byShard {
		if len(entries) > 0 {
			s.shards[i].Insert(entries)
		}
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

// At resolves id with no shard hint, trying every shard in order.
func (s *Sharded) At(id model.NodeId) (model.LatpLon, error) {
	return s.AtHint(id, nil)
}

// AtHint resolves id, trying hint's last-successful shard first. hint
// is updated in place on success so the caller's next lookup tries the
// same shard first again.
func (s *Sharded) AtHint(id model.NodeId, hint *ShardHint) (model.LatpLon, error) {
	if hint != nil && hint.set {
		if pos, err := s.shards[hint.last].At(id); err == nil {
			return pos, nil
		}
	}
	for i, sh := range s.shards {
		if hint != nil && hint.set && i == hint.last {
			continue
		}
		if pos, err := sh.At(id); err == nil {
			if hint != nil {
				hint.last, hint.set = i, true
			}
			return pos, nil
		}
	}
	return model.LatpLon{}, ErrNotFound
}

func (s *Sharded) Shards() int { return shardedCount }

func (s *Sharded) Contains(shard int, id model.NodeId) bool {
	if shard < 0 || shard >= shardedCount {
		return false
	}
	_, err := s.shards[shard].At(id)
	return err == nil
}
