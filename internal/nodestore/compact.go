package nodestore

import (
	"sync"

	"github.com/pspoerri/tilemaker/internal/model"
)

// Compact is the dense-slice variant of : O(1) lookup, minimal
// per-node overhead, no deletion, but only usable once ids have been
// renumbered (by an upstream pass) to fit densely into [0, Capacity).
type Compact struct {
	mu       sync.RWMutex
	slots    []model.LatpLon
	present  []bool
}

// NewCompact preallocates a dense slice sized for ids in [0, capacity).
func NewCompact(capacity int) *Compact {
	return &Compact{
		slots:   make([]model.LatpLon, capacity),
		present: make([]bool, capacity),
	}
}

func (c *Compact) Insert(batch []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range batch {
		idx := int(e.ID)
		if idx < 0 || idx >= len(c.slots) {
			continue // out of renumbered range: caller's renumbering pass is responsible for this invariant
		}
		c.slots[idx] = e.Pos
		c.present[idx] = true
	}
}

func (c *Compact) BatchStart() {}

func (c *Compact) Finalize(nThreads int) {}

func (c *Compact) At(id model.NodeId) (model.LatpLon, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx := int(id)
	if idx < 0 || idx >= len(c.slots) || !c.present[idx] {
		return model.LatpLon{}, ErrNotFound
	}
	return c.slots[idx], nil
}

func (c *Compact) Shards() int { return 1 }

func (c *Compact) Contains(shard int, id model.NodeId) bool {
	if shard != 0 {
		return false
	}
	_, err := c.At(id)
	return err == nil
}
