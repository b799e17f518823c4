package arena

import (
	"os"
	"sync"
	"testing"
)

func TestFileBackedSegmentPersistsBytes(t *testing.T) {
	dir := t.TempDir()
	a := New(Config{Mode: ModeFileBacked, Dir: dir})
	defer a.Close()

	h := a.Allocate(8)
	buf := a.Bytes(h, 8)
	copy(buf, []byte("tilemkr!"))

	if got := string(a.Bytes(h, 8)); got != "tilemkr!" {
		t.Errorf("got %q, want %q", got, "tilemkr!")
	}
}

func TestCloseRemovesSegmentFiles(t *testing.T) {
	dir := t.TempDir()
	a := New(Config{Mode: ModeFileBacked, Dir: dir})
	a.Allocate(8)

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no files left in %s, found %v", dir, entries)
	}
}

func TestAllocateWritesPersist(t *testing.T) {
	a := New(Config{Mode: ModeAnonymous})
	defer a.Close()

	h := a.Allocate(10)
	buf := a.Bytes(h, 10)
	copy(buf, []byte("0123456789"))

	got := a.Bytes(h, 10)
	if string(got) != "0123456789" {
		t.Errorf("got %q, want %q", got, "0123456789")
	}
}

func TestAllocateDistinctRegions(t *testing.T) {
	a := New(Config{Mode: ModeAnonymous})
	defer a.Close()

	h1 := a.Allocate(16)
	h2 := a.Allocate(16)

	b1 := a.Bytes(h1, 16)
	b2 := a.Bytes(h2, 16)
	for i := range b1 {
		b1[i] = 0xAA
	}
	for i := range b2 {
		b2[i] = 0xBB
	}
	for i := range b1 {
		if b1[i] != 0xAA {
			t.Fatalf("region 1 corrupted at %d: %x", i, b1[i])
		}
	}
	for i := range b2 {
		if b2[i] != 0xBB {
			t.Fatalf("region 2 corrupted at %d: %x", i, b2[i])
		}
	}
}

func TestAllocationsAreAligned(t *testing.T) {
	a := New(Config{Mode: ModeAnonymous})
	defer a.Close()

	for _, n := range []int{1, 5, 31, 32, 33, 100} {
		h := a.Allocate(n)
		if h.offset()%Alignment != 0 {
			t.Errorf("Allocate(%d) offset %d not %d-byte aligned", n, h.offset(), Alignment)
		}
	}
}

func TestGrowsBeyondInitialSegment(t *testing.T) {
	a := New(Config{Mode: ModeAnonymous})
	defer a.Close()

	// Force several segment growths; every handle must stay independently
	// addressable afterward regardless of which segment it lives in.
	var handles []Handle
	for i := 0; i < 64; i++ {
		h := a.Allocate(1 << 20) // 1 MiB
		buf := a.Bytes(h, 4)
		buf[0] = byte(i)
		handles = append(handles, h)
	}
	for i, h := range handles {
		buf := a.Bytes(h, 4)
		if buf[0] != byte(i) {
			t.Fatalf("handle %d corrupted after growth: got %d", i, buf[0])
		}
	}
}

func TestDeallocateReusesFreedSpace(t *testing.T) {
	a := New(Config{Mode: ModeAnonymous})
	defer a.Close()

	h1 := a.Allocate(64)
	a.Deallocate(h1, 64)
	h2 := a.Allocate(64)

	if h1.segment() != h2.segment() || h1.offset() != h2.offset() {
		t.Errorf("Deallocate then Allocate of same size should reuse the freed slot: h1=%v h2=%v", h1, h2)
	}
}

func TestConcurrentAllocate(t *testing.T) {
	a := New(Config{Mode: ModeAnonymous})
	defer a.Close()

	const workers = 32
	const perWorker = 200
	results := make([][]Handle, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			hs := make([]Handle, perWorker)
			for i := 0; i < perWorker; i++ {
				h := a.Allocate(64)
				buf := a.Bytes(h, 64)
				buf[0] = byte(w)
				hs[i] = h
			}
			results[w] = hs
		}()
	}
	wg.Wait()

	seen := make(map[Handle]bool)
	for w, hs := range results {
		for _, h := range hs {
			if seen[h] {
				t.Fatalf("handle %v allocated twice", h)
			}
			seen[h] = true
			if buf := a.Bytes(h, 64); buf[0] != byte(w) {
				t.Fatalf("worker %d's region was overwritten", w)
			}
		}
	}
}
