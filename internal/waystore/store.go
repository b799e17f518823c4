// Package waystore holds the way-geometry stores: a map from WayId to
// either an ordered node-id sequence (left for the caller to resolve
// through a node store) or an already resolved coordinate sequence,
// depending on the variant's RequiresNodes capability.
package waystore

import (
	"errors"

	"github.com/pspoerri/tilemaker/internal/model"
)

// ErrNotFound is returned when a requested WayId was never inserted.
var ErrNotFound = errors.New("waystore: not found")

// Entry is a single way as seen by Insert. Exactly one of NodeIDs or
// Coords is populated, matching the owning Store's RequiresNodes().
type Entry struct {
	ID      model.WayId
	NodeIDs []model.NodeId
	Coords  []model.LatpLon
}

// Geometry is a way's member sequence as returned by At: either raw
// node ids still needing node-store resolution, or coordinates
// already resolved at insert time.
type Geometry struct {
	Resolved bool
	NodeIDs  []model.NodeId
	Coords   []model.LatpLon
}

// Store is the contract every way store variant implements.
type Store interface {
	// RequiresNodes reports whether Insert expects Entry.NodeIDs
	// (true, coordinates are resolved lazily) or Entry.Coords (false,
	// already resolved by the caller before Insert).
	RequiresNodes() bool

	Insert(batch []Entry)
	BatchStart()
	Finalize(nThreads int)

	// At resolves id to its member Geometry, or ErrNotFound.
	At(id model.WayId) (Geometry, error)

	Shards() int
	Contains(shard int, id model.WayId) bool
}
