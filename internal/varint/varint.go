// Package varint implements the variable-byte integer codec used to
// compress node and way store runs: a 2-bit length tag per value packed
// four-to-a-control-byte, followed by 1-4 payload bytes per value.
//
// The control-byte layout mirrors the bit-packing style of the teacher's
// LZW bit reader (internal/cog/lzw.go): small fixed-size scratch buffers,
// explicit shifting, no reflection.
package varint

import "fmt"

// MaxPadding is the number of extra bytes a Decode call may read past
// the logical end of an encoded buffer; callers must reserve this many
// trailing bytes but must not interpret their contents.
const MaxPadding = 16

// byteLen returns the number of bytes needed to hold v (1-4).
func byteLen(v uint32) int {
	switch {
	case v <= 0xFF:
		return 1
	case v <= 0xFFFF:
		return 2
	case v <= 0xFFFFFF:
		return 3
	default:
		return 4
	}
}

// EncodedLen returns the number of bytes Encode(values) will write.
func EncodedLen(values []uint32) int {
	n := (len(values) + 3) / 4 // control bytes
	for _, v := range values {
		n += byteLen(v)
	}
	return n
}

// Encode appends the variable-byte encoding of values to dst and returns
// the extended slice. Every 4 values share one control byte holding four
// 2-bit length tags (00=1 byte, 01=2 bytes, 10=3 bytes, 11=4 bytes).
func Encode(dst []byte, values []uint32) []byte {
	for i := 0; i < len(values); i += 4 {
		group := values[i:min(i+4, len(values))]
		var ctrl byte
		for j, v := range group {
			ctrl |= byte(byteLen(v)-1) << (uint(j) * 2)
		}
		dst = append(dst, ctrl)
		for _, v := range group {
			n := byteLen(v)
			for k := 0; k < n; k++ {
				dst = append(dst, byte(v>>(uint(k)*8)))
			}
		}
	}
	return dst
}

// Decode reads n values encoded by Encode from src, returning them and
// the number of bytes consumed (not counting any padding). src must have
// at least MaxPadding bytes available beyond the logical encoding.
func Decode(src []byte, n int) ([]uint32, int, error) {
	values := make([]uint32, 0, n)
	pos := 0
	for len(values) < n {
		if pos >= len(src) {
			return nil, 0, fmt.Errorf("varint: truncated control byte at value %d", len(values))
		}
		ctrl := src[pos]
		pos++
		remaining := n - len(values)
		count := 4
		if remaining < 4 {
			count = remaining
		}
		for j := 0; j < count; j++ {
			ln := int((ctrl>>(uint(j)*2))&0x3) + 1
			if pos+ln > len(src) {
				return nil, 0, fmt.Errorf("varint: truncated payload at value %d", len(values))
			}
			var v uint32
			for k := 0; k < ln; k++ {
				v |= uint32(src[pos+k]) << (uint(k) * 8)
			}
			pos += ln
			values = append(values, v)
		}
	}
	return values, pos, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
