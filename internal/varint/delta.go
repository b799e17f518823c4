package varint

// zigzag maps a signed delta to an unsigned value so small magnitude
// deltas (positive or negative) both encode in few bytes.
func zigzag(d int64) uint32 {
	return uint32((d << 1) ^ (d >> 63))
}

func unzigzag(v uint32) int64 {
	d := int64(v)
	return (d >> 1) ^ -(d & 1)
}

// EncodeDelta zig-zag-encodes the differences between consecutive values
// (the first difference is against start) and appends the varint
// encoding of those differences to dst.
func EncodeDelta(dst []byte, start int64, values []int64) []byte {
	deltas := make([]uint32, len(values))
	prev := start
	for i, v := range values {
		deltas[i] = zigzag(v - prev)
		prev = v
	}
	return Encode(dst, deltas)
}

// DecodeDelta is the inverse of EncodeDelta: it reconstructs n values
// starting from start, returning the values and bytes consumed.
func DecodeDelta(src []byte, start int64, n int) ([]int64, int, error) {
	deltas, consumed, err := Decode(src, n)
	if err != nil {
		return nil, 0, err
	}
	values := make([]int64, n)
	prev := start
	for i, d := range deltas {
		prev += unzigzag(d)
		values[i] = prev
	}
	return values, consumed, nil
}
