package tiledata

// interleave spreads v's 8 bits into the even bit positions of a
// 16-bit word, the building block of a 2D Morton (Z-order) code.
func interleave(v uint8) uint16 {
	x := uint16(v)
	x = (x | (x << 4)) & 0x0F0F
	x = (x | (x << 2)) & 0x3333
	x = (x | (x << 1)) & 0x5555
	return x
}

// mortonCode interleaves a cluster-local (x,y) offset pair into a
// single sort key. Sorting a cluster's objects by this key gives a
// useful property for free: for any zoom z between 6 and base zoom,
// the objects belonging to a single (z,x,y) tile form an
// axis-aligned, power-of-two-aligned box in (x,y) offset space, and a
// Z-order curve always keeps such a box contiguous.
func mortonCode(x, y uint8) uint32 {
	return uint32(interleave(x)) | uint32(interleave(y))<<1
}
