//go:build !unix

package arena

import "os"

// mmapAnon falls back to a plain heap allocation on platforms without
// mmap; the arena's segment/handle bookkeeping is unaffected, only the
// OS page cache benefit described in 's rationale is lost.
func mmapAnon(size int) ([]byte, error) {
	return make([]byte, size), nil
}

// mmapFileSegment falls back to truncating the file and handing back an
// in-memory buffer; writes never reach disk on this platform.
func mmapFileSegment(f *os.File, size int) ([]byte, error) {
	if err := f.Truncate(int64(size)); err != nil {
		return nil, err
	}
	return make([]byte, size), nil
}

func munmap(data []byte) error {
	return nil
}
