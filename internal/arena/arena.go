// Package arena implements the process-wide mmap-backed allocator
// described in spec : a uniform home for the many billions of small
// records the node, way, and geometry stores allocate, so the OS page
// cache (not the binary) manages working-set pressure.
//
// Grounded on internal/cog/mmap_unix.go's thin syscall.Mmap wrapper,
// extended from a read-only file mapping to both an anonymous
// read-write mapping and a growable, writable file-backed segment.
package arena

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Alignment is the byte boundary every allocation is rounded up to.
const Alignment = 32

// fileSegmentSize is the fixed size of each file-backed segment (~1 GiB).
const fileSegmentSize = 1 << 30

// initialAnonSegmentSize is the size of the first anonymous segment;
// subsequent ones double in size as capacity is exhausted.
const initialAnonSegmentSize = 16 << 20

// Mode selects the arena's backing storage.
type Mode int

const (
	// ModeAnonymous backs the arena with in-memory pages only, doubled
	// in size whenever a new segment is needed.
	ModeAnonymous Mode = iota
	// ModeFileBacked backs the arena with a directory of fixed-size
	// segment files, added as pressure grows.
	ModeFileBacked
)

// Config selects the arena's backing mode and, for ModeFileBacked,
// the directory segment files are created in.
type Config struct {
	Mode Mode
	Dir  string
}

// Handle addresses a single allocation: the segment it lives in and its
// byte offset within that segment. The zero Handle addresses offset 0 of
// the first segment, so it is a valid handle once that segment exists.
type Handle uint64

const segmentBits = 20

func makeHandle(segment int, offset uint64) Handle {
	return Handle(uint64(segment)<<(64-segmentBits) | offset)
}

func (h Handle) segment() int   { return int(uint64(h) >> (64 - segmentBits)) }
func (h Handle) offset() uint64 { return uint64(h) & (1<<(64-segmentBits) - 1) }

// Arena is a process-wide allocator over a growing list of segments.
// Safe for concurrent use: segment growth and cross-segment frees take
// a short lock; allocation within an already-sized segment takes the
// arena lock only long enough to read the last segment, then reuses a
// freed block under that segment's free-list lock or bumps its offset
// with a compare-and-swap loop.
type Arena struct {
	cfg Config

	mu       sync.Mutex
	segments []*segment
	files    []*os.File // parallel to segments, nil entries for anonymous segments
}

type segment struct {
	data []byte
	next atomic.Int64 // bump offset, bytes

	freeMu sync.Mutex
	free   map[uint64][]uint64 // size class (rounded bytes) -> free offsets
}

// New creates an arena with no segments; the first Allocate call grows
// one on demand.
func New(cfg Config) *Arena {
	return &Arena{cfg: cfg}
}

func alignUp(n int) int {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// Allocate reserves n bytes, returning a handle to them. Never fails
// unless the operating system does (segment creation is the only
// fallible step, and its error is folded into a panic, matching the
// "never fails" contract – callers that need to stage a large batch
// ahead of time should size their arena's Dir's filesystem accordingly).
func (a *Arena) Allocate(n int) Handle {
	size := alignUp(n)
	sizeClass := uint64(size)

	// Fast path: reuse freed space or bump the current segment. The
	// arena-wide lock is held only to read the last segment; growing
	// the segment list is the one step that holds it longer.
	a.mu.Lock()
	idx := len(a.segments) - 1
	var last *segment
	if idx >= 0 {
		last = a.segments[idx]
	}
	a.mu.Unlock()

	if last != nil {
		if off, ok := last.popFree(sizeClass); ok {
			return makeHandle(idx, off)
		}
		if off, ok := last.tryBump(size); ok {
			return makeHandle(idx, off)
		}
	}

	return a.growAndAllocate(size)
}

// growAndAllocate appends a new segment sized to guarantee size fits,
// then reserves it. Double-checks the current last segment first in
// case another goroutine grew it first while this one was blocked.
func (a *Arena) growAndAllocate(size int) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.segments) > 0 {
		idx := len(a.segments) - 1
		last := a.segments[idx]
		if off, ok := last.tryBump(size); ok {
			return makeHandle(idx, off)
		}
	}

	segSize := a.nextSegmentSize(size)
	seg, file := a.createSegment(segSize)
	a.segments = append(a.segments, seg)
	a.files = append(a.files, file)
	idx := len(a.segments) - 1

	off, ok := seg.tryBump(size)
	if !ok {
		panic("arena: freshly created segment too small, this is a bug in nextSegmentSize")
	}
	return makeHandle(idx, off)
}

func (a *Arena) nextSegmentSize(minSize int) int {
	switch a.cfg.Mode {
	case ModeFileBacked:
		size := fileSegmentSize
		if minSize > size {
			size = alignUp(minSize + Alignment)
		}
		return size
	default:
		size := initialAnonSegmentSize
		if len(a.segments) > 0 {
			size = len(a.segments[len(a.segments)-1].data) * 2
		}
		if minSize > size {
			size = alignUp(minSize + Alignment)
		}
		return size
	}
}

func (a *Arena) createSegment(size int) (*segment, *os.File) {
	switch a.cfg.Mode {
	case ModeFileBacked:
		name := filepath.Join(a.cfg.Dir, fmt.Sprintf("segment-%04d.arena", len(a.segments)))
		f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			panic(fmt.Errorf("arena: create segment file: %w", err))
		}
		data, err := mmapFileSegment(f, size)
		if err != nil {
			f.Close()
			panic(fmt.Errorf("arena: mmap segment file: %w", err))
		}
		return &segment{data: data, free: make(map[uint64][]uint64)}, f
	default:
		data, err := mmapAnon(size)
		if err != nil {
			panic(fmt.Errorf("arena: mmap anonymous segment: %w", err))
		}
		return &segment{data: data, free: make(map[uint64][]uint64)}, nil
	}
}

// tryBump atomically reserves size bytes if the segment has room,
// via a compare-and-swap loop rather than an unconditional Add, so a
// losing caller observes the failure instead of pushing next past the
// segment's capacity.
func (s *segment) tryBump(size int) (uint64, bool) {
	for {
		cur := s.next.Load()
		next := cur + int64(size)
		if next > int64(len(s.data)) {
			return 0, false
		}
		if s.next.CompareAndSwap(cur, next) {
			return uint64(cur), true
		}
	}
}

func (s *segment) popFree(sizeClass uint64) (uint64, bool) {
	s.freeMu.Lock()
	defer s.freeMu.Unlock()
	offs := s.free[sizeClass]
	if len(offs) == 0 {
		return 0, false
	}
	off := offs[len(offs)-1]
	s.free[sizeClass] = offs[:len(offs)-1]
	return off, true
}

func (s *segment) pushFree(sizeClass, off uint64) {
	s.freeMu.Lock()
	s.free[sizeClass] = append(s.free[sizeClass], off)
	s.freeMu.Unlock()
}

// Deallocate returns an allocation's space to its owning segment's free
// list: it walks the segment list to locate the owning segment and
// calls through to its sub-allocator. n must match the size originally
// passed to Allocate.
func (a *Arena) Deallocate(h Handle, n int) {
	size := alignUp(n)
	a.mu.Lock()
	idx := h.segment()
	if idx < 0 || idx >= len(a.segments) {
		a.mu.Unlock()
		return
	}
	seg := a.segments[idx]
	a.mu.Unlock()
	seg.pushFree(uint64(size), h.offset())
}

// Bytes resolves a handle to the n-byte slice it addresses. The
// returned slice aliases the arena's backing storage and is invalid
// after a corresponding Deallocate call.
func (a *Arena) Bytes(h Handle, n int) []byte {
	a.mu.Lock()
	seg := a.segments[h.segment()]
	a.mu.Unlock()
	off := h.offset()
	end := off + uint64(n)
	return seg.data[off:end:end]
}

// Close unmaps every segment and removes any file-backed segment files:
// process teardown removes file-backed segments.
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for i, seg := range a.segments {
		if err := munmap(seg.data); err != nil && firstErr == nil {
			firstErr = err
		}
		if f := a.files[i]; f != nil {
			name := f.Name()
			f.Close()
			if err := os.Remove(name); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	a.segments = nil
	a.files = nil
	return firstErr
}
