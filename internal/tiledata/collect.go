package tiledata

import "sort"

// CollectObjectsForTile reads both tiers for tile (z,x,y) and appends
// every candidate object to out. For
// z < ClusterZoom it reads the shadow index; otherwise it reads
// exactly one cluster from the small-object index. The large-object
// tier is always range-queried.
func (s *Source) CollectObjectsForTile(z, x, y int, out []Candidate) []Candidate {
	if z < ClusterZoom {
		out = s.collectShadow(z, x, y, out)
	} else {
		out = s.collectSmall(z, x, y, out)
	}
	return s.collectLarge(z, x, y, out)
}

func (s *Source) collectSmall(z, x, y int, out []Candidate) []Candidate {
	shift := uint(z - ClusterZoom)
	cx := x >> shift
	cy := y >> shift
	cluster := cx*ClusterAxis + cy
	c := &s.small[cluster]

	if z == ClusterZoom {
		return appendAll(c, out)
	}

	// Within the cluster, (x,y) at zoom z addresses an axis-aligned,
	// power-of-two-aligned box of base-zoom offsets. Its Morton codes
	// form one contiguous range (see morton.go), so a binary search on
	// each boundary gives the slice directly.
	boxShift := uint(s.baseZoom - z)
	mask := (1 << shift) - 1
	loX := uint8((x & mask) << boxShift)
	loY := uint8((y & mask) << boxShift)
	n := uint32(1) << (2 * boxShift)
	lo := mortonCode(loX, loY)
	hi := lo + n

	keys := c.sortKeys
	i := sort.Search(len(keys), func(i int) bool { return keys[i] >= lo })
	j := sort.Search(len(keys), func(i int) bool { return keys[i] >= hi })

	return appendRange(c, i, j, out)
}

func appendAll(c *smallCluster, out []Candidate) []Candidate {
	return appendRange(c, 0, len(c.sortKeys), out)
}

func appendRange(c *smallCluster, i, j int, out []Candidate) []Candidate {
	if c.xyID != nil {
		for _, e := range c.xyID[i:j] {
			out = append(out, Candidate{OO: e.OO, OsmId: e.OsmId})
		}
		return out
	}
	for _, e := range c.xy[i:j] {
		out = append(out, Candidate{OO: e.OO})
	}
	return out
}

func (s *Source) collectShadow(z, x, y int, out []Candidate) []Candidate {
	scale := 1 << (ClusterZoom - z)
	cx0, cx1 := x*scale, (x+1)*scale-1
	cy0, cy1 := y*scale, (y+1)*scale-1
	for cx := cx0; cx <= cx1; cx++ {
		for cy := cy0; cy <= cy1; cy++ {
			out = appendAll(&s.shadow[cx*ClusterAxis+cy], out)
		}
	}
	return out
}

// z14Bounds converts (z,x,y) to its bounding box in z14-equivalent
// tile units, matching the units AddLargeObject's caller uses.
func z14Bounds(z, x, y int) (minX, minY, maxX, maxY int) {
	const target = 14
	if z >= target {
		shift := uint(z - target)
		return x >> shift, y >> shift, x >> shift, y >> shift
	}
	shift := uint(target - z)
	minX, minY = x<<shift, y<<shift
	maxX, maxY = ((x+1)<<shift)-1, ((y+1)<<shift)-1
	return
}

func (s *Source) collectLarge(z, x, y int, out []Candidate) []Candidate {
	s.largeMu.RLock()
	defer s.largeMu.RUnlock()

	qMinX, qMinY, qMaxX, qMaxY := z14Bounds(z, x, y)
	for _, e := range s.large {
		if e.maxX < qMinX || e.minX > qMaxX || e.maxY < qMinY || e.minY > qMaxY {
			continue
		}
		out = append(out, Candidate{OO: e.oo, OsmId: e.osmID})
	}
	return out
}
