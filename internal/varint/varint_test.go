package varint

import (
	"reflect"
	"testing"
)

// Boundary values spanning every byte-length tag.
func TestEncodeDecodeBoundaries(t *testing.T) {
	values := []uint32{0, 1, 255, 256, 65535, 65536, 16777215, 16777216, 4294967295}

	enc := Encode(nil, values)
	if len(enc) != EncodedLen(values) {
		t.Fatalf("EncodedLen mismatch: got %d, want %d", EncodedLen(values), len(enc))
	}
	// pad so Decode's bounds checks never see a short read as legitimate EOF.
	enc = append(enc, make([]byte, MaxPadding)...)

	got, n, err := Decode(enc, len(values))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, values) {
		t.Errorf("round-trip mismatch: got %v, want %v", got, values)
	}
	if n != EncodedLen(values) {
		t.Errorf("consumed %d bytes, want %d", n, EncodedLen(values))
	}
}

func TestEncodeDecodeRandomish(t *testing.T) {
	values := make([]uint32, 0, 1000)
	seed := uint32(1)
	for i := 0; i < 1000; i++ {
		seed = seed*1103515245 + 12345
		values = append(values, seed%(1<<(uint(i%32))+1))
	}

	enc := Encode(nil, values)
	enc = append(enc, make([]byte, MaxPadding)...)

	got, _, err := Decode(enc, len(values))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, values) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestEncode0124ZeroRuns(t *testing.T) {
	values := []uint32{0, 0, 0, 0, 1, 0, 300, 0}
	enc := Encode0124(nil, values)
	enc = append(enc, make([]byte, MaxPadding)...)

	got, _, err := Decode0124(enc, len(values))
	if err != nil {
		t.Fatalf("Decode0124: %v", err)
	}
	if !reflect.DeepEqual(got, values) {
		t.Errorf("round-trip mismatch: got %v, want %v", got, values)
	}

	// Zero run should cost exactly one control byte and nothing else.
	allZero := []uint32{0, 0, 0, 0}
	enc2 := Encode0124(nil, allZero)
	if len(enc2) != 1 {
		t.Errorf("all-zero group should encode to 1 control byte, got %d bytes", len(enc2))
	}
}

// Delta variant round-trips, including negative deltas.
func TestEncodeDecodeDelta(t *testing.T) {
	values := []int64{100, 105, 90, 90, 1000000, -500, -500}
	enc := EncodeDelta(nil, 0, values)
	enc = append(enc, make([]byte, MaxPadding)...)

	got, _, err := DecodeDelta(enc, 0, len(values))
	if err != nil {
		t.Fatalf("DecodeDelta: %v", err)
	}
	if !reflect.DeepEqual(got, values) {
		t.Errorf("round-trip mismatch: got %v, want %v", got, values)
	}
}

func TestZigzag(t *testing.T) {
	cases := []int64{0, 1, -1, 2, -2, 1 << 30, -(1 << 30)}
	for _, c := range cases {
		if got := unzigzag(zigzag(c)); got != c {
			t.Errorf("zigzag round-trip(%d) = %d", c, got)
		}
	}
}
