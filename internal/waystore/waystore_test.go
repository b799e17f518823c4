package waystore

import (
	"reflect"
	"testing"

	"github.com/pspoerri/tilemaker/internal/model"
)

func TestBinarySearchRoundTrip(t *testing.T) {
	s := NewBinarySearch()
	s.Insert([]Entry{
		{ID: 1, Coords: []model.LatpLon{{Latp: 10, Lon: 20}, {Latp: 11, Lon: 21}}},
		{ID: 5, Coords: []model.LatpLon{{Latp: 30, Lon: 40}}},
	})
	s.Finalize(1)

	g, err := s.At(1)
	if err != nil || !g.Resolved || len(g.Coords) != 2 {
		t.Fatalf("At(1) = %+v, %v", g, err)
	}
	if _, err := s.At(2); err != ErrNotFound {
		t.Fatalf("At(2) = %v, want ErrNotFound", err)
	}
}

func TestSortedRoundTripSharedHigh(t *testing.T) {
	s := NewSorted()
	nodes := []model.NodeId{
		model.NodeId(0x0001_0000_0001),
		model.NodeId(0x0001_0000_0002),
		model.NodeId(0x0001_0000_0005),
		model.NodeId(0x0002_0000_0001), // different high word
		model.NodeId(0x0001_0000_0009), // back to the common high word
	}
	s.Insert([]Entry{{ID: 42, NodeIDs: nodes}})
	s.Finalize(1)

	g, err := s.At(42)
	if err != nil {
		t.Fatalf("At(42): %v", err)
	}
	if g.Resolved {
		t.Fatalf("Sorted variant must report unresolved geometry")
	}
	if !reflect.DeepEqual(g.NodeIDs, nodes) {
		t.Fatalf("round trip mismatch: got %v, want %v", g.NodeIDs, nodes)
	}
}

func TestSortedManyWays(t *testing.T) {
	s := NewSorted()
	for w := model.WayId(0); w < 50; w++ {
		nodes := make([]model.NodeId, 10)
		for i := range nodes {
			nodes[i] = model.NodeId(uint64(w)<<8 | uint64(i))
		}
		s.Insert([]Entry{{ID: w, NodeIDs: nodes}})
	}
	s.Finalize(1)

	for w := model.WayId(0); w < 50; w++ {
		g, err := s.At(w)
		if err != nil {
			t.Fatalf("At(%d): %v", w, err)
		}
		if len(g.NodeIDs) != 10 {
			t.Fatalf("way %d: got %d nodes, want 10", w, len(g.NodeIDs))
		}
		for i, id := range g.NodeIDs {
			want := model.NodeId(uint64(w)<<8 | uint64(i))
			if id != want {
				t.Fatalf("way %d node %d: got %d, want %d", w, i, id, want)
			}
		}
	}
}

func TestSharded(t *testing.T) {
	s := NewSharded(4, func() Store { return NewBinarySearch() }, func(e Entry) int {
		return int(e.ID) % 4
	})
	for id := model.WayId(0); id < 16; id++ {
		s.Insert([]Entry{{ID: id, Coords: []model.LatpLon{{Latp: int32(id), Lon: int32(id)}}}})
	}
	s.Finalize(1)

	for id := model.WayId(0); id < 16; id++ {
		shard := int(id) % 4
		if !s.Contains(shard, id) {
			t.Fatalf("way %d not found in expected shard %d", id, shard)
		}
		g, err := s.At(id)
		if err != nil || g.Coords[0].Latp != int32(id) {
			t.Fatalf("At(%d) = %+v, %v", id, g, err)
		}
	}
}
