package tileworker

import "github.com/paulmach/orb"

// joinLines greedily merges line parts that share an endpoint into
// longer lines, the way the teacher's downsampling code merges
// adjacent pixel blocks rather than keeping every source fragment
// distinct. Geometry has no exact "intersect and union" operator
// available anywhere in the stack (see internal/geometry's clip-repair
// notes), so this is a deliberate approximation of a full line merge:
// it only joins parts whose endpoints coincide exactly, which is what
// clipping against a shared tile boundary actually produces.
func joinLines(parts orb.MultiLineString) []orb.LineString {
	if len(parts) <= 1 {
		out := make([]orb.LineString, len(parts))
		copy(out, parts)
		return out
	}

	remaining := make([]orb.LineString, len(parts))
	copy(remaining, parts)

	var joined []orb.LineString
	for len(remaining) > 0 {
		cur := remaining[0]
		remaining = remaining[1:]

		for {
			merged := false
			for i, other := range remaining {
				if extended, ok := tryJoin(cur, other); ok {
					cur = extended
					remaining = append(remaining[:i], remaining[i+1:]...)
					merged = true
					break
				}
			}
			if !merged {
				break
			}
		}
		joined = append(joined, cur)
	}
	return joined
}

// tryJoin appends b to a if they share an endpoint, trying all four
// head/tail combinations. Returns ok=false if no endpoint matches.
func tryJoin(a, b orb.LineString) (orb.LineString, bool) {
	if len(a) == 0 || len(b) == 0 {
		return a, false
	}
	aHead, aTail := a[0], a[len(a)-1]
	bHead, bTail := b[0], b[len(b)-1]

	switch {
	case aTail == bHead:
		return append(append(orb.LineString{}, a...), b[1:]...), true
	case aTail == bTail:
		return append(append(orb.LineString{}, a...), reversed(b)[1:]...), true
	case aHead == bTail:
		return append(append(orb.LineString{}, b...), a[1:]...), true
	case aHead == bHead:
		return append(append(orb.LineString{}, reversed(b)...), a[1:]...), true
	default:
		return a, false
	}
}

func reversed(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, p := range ls {
		out[len(ls)-1-i] = p
	}
	return out
}
