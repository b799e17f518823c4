// Package nodestore holds four interchangeable ways to answer "where
// is node N" during way and relation assembly, trading memory, lookup
// speed, and insertion-order constraints against each other.
package nodestore

import (
	"errors"

	"github.com/pspoerri/tilemaker/internal/model"
)

// ErrNotFound is returned by At when the requested id was never
// inserted (or was inserted into a different shard than queried).
var ErrNotFound = errors.New("nodestore: not found")

// Entry is a single (id, position) pair as seen by Insert.
type Entry struct {
	ID  model.NodeId
	Pos model.LatpLon
}

// Store is the contract every node store variant implements.
type Store interface {
	// Insert adds a batch of entries. Thread-safe; may block. No
	// ordering guarantee beyond every pair being retrievable after
	// Finalize.
	Insert(batch []Entry)

	// BatchStart marks a thread-local batch boundary so implementations
	// that buffer locally may publish completed work.
	BatchStart()

	// Finalize builds whatever index At needs (sorting, bitmask
	// construction, ...). Must be called exactly once before At.
	Finalize(nThreads int)

	// At resolves id to its position, or ErrNotFound.
	At(id model.NodeId) (model.LatpLon, error)

	// Shards reports how many independent shards this store is split
	// into (1 for variants that aren't sharded).
	Shards() int

	// Contains reports whether a given shard holds id, without
	// resolving its position.
	Contains(shard int, id model.NodeId) bool
}
