package nodestore

import (
	"testing"

	"github.com/pspoerri/tilemaker/internal/model"
)

// Tiny node store, exercised against every variant.
func tinyStoreBatch() []Entry {
	return []Entry{
		{ID: 1, Pos: model.LatpLon{Latp: 10, Lon: 20}},
		{ID: 5, Pos: model.LatpLon{Latp: 30, Lon: 40}},
	}
}

func assertTinyStore(t *testing.T, s Store) {
	t.Helper()
	s.Insert(tinyStoreBatch())
	s.Finalize(1)

	pos, err := s.At(1)
	if err != nil || pos != (model.LatpLon{Latp: 10, Lon: 20}) {
		t.Errorf("At(1) = %v, %v, want {10,20}, nil", pos, err)
	}
	pos, err = s.At(5)
	if err != nil || pos != (model.LatpLon{Latp: 30, Lon: 40}) {
		t.Errorf("At(5) = %v, %v, want {30,40}, nil", pos, err)
	}
	if _, err := s.At(2); err != ErrNotFound {
		t.Errorf("At(2) = %v, want ErrNotFound", err)
	}
}

func TestS1BinarySearch(t *testing.T) {
	assertTinyStore(t, NewBinarySearch())
}

func TestS1Compact(t *testing.T) {
	assertTinyStore(t, NewCompact(6))
}

func TestS1Sorted(t *testing.T) {
	assertTinyStore(t, NewSorted())
}

func TestS1Sharded(t *testing.T) {
	assertTinyStore(t, NewSharded(func() Store { return NewBinarySearch() }))
}

func TestSortedAcrossGroupAndChunkBoundaries(t *testing.T) {
	s := NewSorted()
	var batch []Entry
	ids := []model.NodeId{
		0,                          // group 0, chunk 0, slot 0
		255,                        // group 0, chunk 0, slot 255
		256,                        // group 0, chunk 1, slot 0
		1 << 16,                    // group 1, chunk 0, slot 0
		(1 << 16) | (3 << 8) | 7,   // group 1, chunk 3, slot 7
	}
	for i, id := range ids {
		batch = append(batch, Entry{ID: id, Pos: model.LatpLon{Latp: int32(i * 10), Lon: int32(i * 20)}})
	}
	s.Insert(batch)
	s.Finalize(1)

	for i, id := range ids {
		pos, err := s.At(id)
		want := model.LatpLon{Latp: int32(i * 10), Lon: int32(i * 20)}
		if err != nil || pos != want {
			t.Errorf("At(%d) = %v, %v, want %v, nil", id, pos, err, want)
		}
	}
	if _, err := s.At(999999); err != ErrNotFound {
		t.Errorf("At(999999) = %v, want ErrNotFound", err)
	}
}

func TestSortedCompressesDenseRun(t *testing.T) {
	s := NewSorted()
	var batch []Entry
	// A dense run within one chunk, nearby coordinates: this should
	// take the compressed branch (small deltas beat 8 bytes/entry raw).
	for i := model.NodeId(0); i < 200; i++ {
		batch = append(batch, Entry{ID: i, Pos: model.LatpLon{Latp: int32(1000 + i), Lon: int32(2000 + i*2)}})
	}
	s.Insert(batch)
	s.Finalize(1)

	for i := model.NodeId(0); i < 200; i++ {
		pos, err := s.At(i)
		want := model.LatpLon{Latp: int32(1000 + i), Lon: int32(2000 + int32(i)*2)}
		if err != nil || pos != want {
			t.Fatalf("At(%d) = %v, %v, want %v, nil", i, pos, err, want)
		}
	}
}

func TestShardedRoutesAndFallsThrough(t *testing.T) {
	s := NewSharded(func() Store { return NewBinarySearch() })

	// Two positions far apart, very likely landing in different shards;
	// regardless of which shards they land in, At must find both.
	batch := []Entry{
		{ID: 100, Pos: model.LatpLon{Latp: 500000000, Lon: 100000000}},  // ~ northern Europe
		{ID: 200, Pos: model.LatpLon{Latp: -300000000, Lon: -600000000}}, // ~ southern South America
	}
	s.Insert(batch)
	s.Finalize(1)

	for _, e := range batch {
		pos, err := s.At(e.ID)
		if err != nil || pos != e.Pos {
			t.Errorf("At(%d) = %v, %v, want %v, nil", e.ID, pos, err, e.Pos)
		}
	}
	if _, err := s.At(999); err != ErrNotFound {
		t.Errorf("At(999) = %v, want ErrNotFound", err)
	}
}

func TestShardHintSpeedsRepeatLookups(t *testing.T) {
	s := NewSharded(func() Store { return NewBinarySearch() })
	s.Insert(tinyStoreBatch())
	s.Finalize(1)

	var hint ShardHint
	for i := 0; i < 3; i++ {
		pos, err := s.AtHint(1, &hint)
		if err != nil || pos != (model.LatpLon{Latp: 10, Lon: 20}) {
			t.Fatalf("AtHint(1) iteration %d = %v, %v", i, pos, err)
		}
	}
	if !hint.set {
		t.Error("hint should be set after a successful lookup")
	}
}
