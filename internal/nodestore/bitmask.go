package nodestore

import "math/bits"

// bitmask256 names membership of up to 256 items in 32 bytes (four
// uint64 words), the layout uses both for which of a group's
// 256 chunks are present and which of a chunk's 256 ids are present.
type bitmask256 [4]uint64

func (m *bitmask256) set(i int) {
	m[i/64] |= 1 << uint(i%64)
}

func (m bitmask256) test(i int) bool {
	return m[i/64]&(1<<uint(i%64)) != 0
}

// rank returns the number of set bits at index < i, i.e. the dense
// position i would occupy among the set bits — how a set bit's bit
// index maps to its slot in the group's/chunk's packed data array.
func (m bitmask256) rank(i int) int {
	n := 0
	word := i / 64
	for w := 0; w < word; w++ {
		n += bits.OnesCount64(m[w])
	}
	n += bits.OnesCount64(m[word] & (1<<uint(i%64) - 1))
	return n
}

func (m bitmask256) popcount() int {
	n := 0
	for _, w := range m {
		n += bits.OnesCount64(w)
	}
	return n
}
