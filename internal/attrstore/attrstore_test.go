package attrstore

import "testing"

func TestKeyStoreIntern(t *testing.T) {
	ks := NewKeyStore()
	a, err := ks.Intern("highway")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ks.Intern("highway")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("Intern not idempotent: %d != %d", a, b)
	}
	if a == 0 {
		t.Fatalf("Intern returned the reserved sentinel index")
	}
	name, ok := ks.Name(a)
	if !ok || name != "highway" {
		t.Fatalf("Name(%d) = %q, %v", a, name, ok)
	}
	if _, ok := ks.Name(0); ok {
		t.Fatalf("Name(0) should report not-found: it's the sentinel")
	}
}

func TestPairDedup(t *testing.T) {
	// Add the same pair twice, expect the same id both times.
	ps := NewPairStore()
	v := Value{Kind: KindString, Str: "yes"}
	id1, err := ps.Add("highway", 7, 0, v)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := ps.Add("highway", 7, 0, v)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("Add not idempotent: %d != %d", id1, id2)
	}
}

func TestIsHot(t *testing.T) {
	cases := []struct {
		key  string
		v    Value
		want bool
	}{
		{"oneway", Value{Kind: KindTrue}, true},
		{"oneway", Value{Kind: KindFalse}, true},
		{"lanes", Value{Kind: KindFloat, Num: 3}, true},
		{"lanes", Value{Kind: KindFloat, Num: 26}, false},
		{"lanes", Value{Kind: KindFloat, Num: -1}, false},
		{"lanes", Value{Kind: KindFloat, Num: 2.5}, false},
		{"highway", Value{Kind: KindString, Str: "residential"}, true},
		{"highway", Value{Kind: KindString, Str: "Residential"}, false},
		{"name", Value{Kind: KindString, Str: "residential"}, false},
		{"name:en", Value{Kind: KindString, Str: "residential"}, false},
		{"nameless", Value{Kind: KindString, Str: "residential"}, false}, // documented off-by-one behaviour
	}
	for _, c := range cases {
		if got := IsHot(c.key, c.v); got != c.want {
			t.Errorf("IsHot(%q, %+v) = %v, want %v", c.key, c.v, got, c.want)
		}
	}
}

func TestHotPoolBound(t *testing.T) {
	// No more than HotPoolCapacity ids fall in shard 0.
	ps := NewPairStore()
	for i := 0; i < HotPoolCapacity+10; i++ {
		v := Value{Kind: KindFloat, Num: float32(i % 26)}
		if _, err := ps.Add("lanes", 1, uint8(i%256), v); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if got := ps.HotPoolSize(); got > HotPoolCapacity {
		t.Fatalf("hot pool size %d exceeds capacity %d", got, HotPoolCapacity)
	}
}

func TestSetCanonicalization(t *testing.T) {
	// Sets built from the same multiset in any order collapse to
	// the same id.
	ss := NewSetStore()
	id1 := ss.Add([]uint32{5, 3, 9})
	id2 := ss.Add([]uint32{9, 5, 3})
	id3 := ss.Add([]uint32{3, 3, 5, 9})
	if id1 != id2 || id2 != id3 {
		t.Fatalf("canonicalization mismatch: %d, %d, %d", id1, id2, id3)
	}
	if got := ss.At(id1); len(got) != 3 || got[0] != 3 || got[1] != 5 || got[2] != 9 {
		t.Fatalf("At(%d) = %v", id1, got)
	}
}

func TestEmptySetIsZero(t *testing.T) {
	ss := NewSetStore()
	if id := ss.Add(nil); id != 0 {
		t.Fatalf("empty set id = %d, want 0", id)
	}
}

func TestDoneReadingDropsReverseMap(t *testing.T) {
	ss := NewSetStore()
	ss.Add([]uint32{1, 2})
	ss.DoneReading()
	defer func() {
		if recover() == nil {
			t.Fatal("Add after DoneReading should panic")
		}
	}()
	ss.Add([]uint32{3, 4})
}
