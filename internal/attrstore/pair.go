package attrstore

// ValueKind tags the union a Pair's value carries: False, True,
// Float(f32), or String(interned).
type ValueKind uint8

const (
	KindFalse ValueKind = iota
	KindTrue
	KindFloat
	KindString
)

// Value is an attribute pair's payload. Num is valid when Kind ==
// KindFloat; Str is valid when Kind == KindString.
type Value struct {
	Kind ValueKind
	Num  float32
	Str  string
}

// Pair is a complete attribute key/value/min-zoom triple. It is a
// plain comparable struct (no slices) so Pair itself can be used as a
// map key for dedup: two pairs are equal iff all four fields are
// equal, which Go's == already gives for a struct of comparable fields.
type Pair struct {
	Key     KeyIndex
	MinZoom uint8
	Value   Value
}

// hotStringMaxLen bounds how long a string value may be to qualify as
// "short" for the hot predicate below.
const hotStringMaxLen = 24

// namePrefix is the literal 4-byte prefix the hot predicate excludes a
// key on. The source this is ported from tests exactly these four
// characters without checking that a 4th character is a boundary (a
// null terminator or ':'), so "nameless" is excluded by this check
// exactly as much as "name:en" is — see DESIGN.md's Open Question
// resolution: this port keeps that literal 4-byte prefix match rather
// than "fixing" it to a true word-boundary check.
const namePrefix = "name"

// IsHot predicts whether a pair should live in the densely-packed hot
// pool rather than a cold shard. This is a speculative prediction,
// not a guarantee: a misclassified pair only wastes a little
// hot-pool space, it never affects correctness. Exposed as a pure
// function so the heuristic is directly testable.
func IsHot(keyName string, v Value) bool {
	switch v.Kind {
	case KindFalse, KindTrue:
		return true
	case KindFloat:
		if v.Num < 0 || v.Num > 25 {
			return false
		}
		return v.Num == float32(int32(v.Num))
	case KindString:
		if len(v.Str) == 0 || len(v.Str) > hotStringMaxLen {
			return false
		}
		if len(keyName) >= len(namePrefix) && keyName[:len(namePrefix)] == namePrefix {
			return false
		}
		for _, r := range v.Str {
			if r < 'a' || r > 'z' {
				return false
			}
		}
		return true
	default:
		return false
	}
}
