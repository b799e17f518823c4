package model

import "github.com/paulmach/orb"

// MaxLatp is the standard web-mercator latitude clamp in plain degrees
// (the same value as coord.MaxLat); the projected latp at this latitude
// is about ±180.
const MaxLatp = 85.0511

// latp1e7 is the fixed-point scale: degrees × 10^7.
const latp1e7 = 1e7

// LatpLon is a point in projected space: latp is "projected latitude"
// (the mercator-transformed y coordinate in degree-equivalent units so
// that equal increments map to equal pixels), lon is plain longitude.
// Both are fixed-point degrees × 10^7.
type LatpLon struct {
	Latp int32
	Lon  int32
}

// Point converts ll to an orb.Point in (lon, latp) order, in plain
// degrees, for use with orb's geometry algorithms.
func (ll LatpLon) Point() orb.Point {
	return orb.Point{float64(ll.Lon) / latp1e7, float64(ll.Latp) / latp1e7}
}

// FromPoint builds a LatpLon from an orb.Point already in projected
// (lon, latp) degrees.
func FromPoint(p orb.Point) LatpLon {
	return LatpLon{
		Latp: int32(p[1] * latp1e7),
		Lon:  int32(p[0] * latp1e7),
	}
}
