//go:build unix

package arena

import (
	"os"
	"syscall"
)

// mmapAnon creates a new anonymous, zero-filled, read-write mapping of
// size bytes. It is not backed by any file and vanishes on unmap.
func mmapAnon(size int) ([]byte, error) {
	return syscall.Mmap(-1, 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_ANON|syscall.MAP_PRIVATE)
}

// mmapFileSegment truncates f to size and maps it read-write, shared so
// writes are visible to any other process holding the same mapping (and
// survive a clean process exit, unlike the anonymous mode).
func mmapFileSegment(f *os.File, size int) ([]byte, error) {
	if err := f.Truncate(int64(size)); err != nil {
		return nil, err
	}
	return syscall.Mmap(int(f.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}

// munmap releases a mapping created by mmapAnon or mmapFileSegment.
func munmap(data []byte) error {
	return syscall.Munmap(data)
}
