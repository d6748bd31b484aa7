// Package geo resolves point coordinates to named zones via polygon
// containment. Zone geometry is immutable reference data loaded once per
// run from a GeoJSON file.
package geo

import (
	"math"

	"github.com/hollyoak/citysignal/internal/domain"
)

// ringContains reports whether p is strictly inside the ring, using the
// even-odd ray casting rule. Points exactly on an edge are reported by
// ringOnBoundary instead; callers combine both for boundary-inclusive
// containment.
func ringContains(ring domain.Ring, p domain.Point) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			x := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// ringOnBoundary reports whether p lies on one of the ring's edges, within
// eps degrees of perpendicular distance. eps of 0 matches exact boundary
// points only (up to floating error).
func ringOnBoundary(ring domain.Ring, p domain.Point, eps float64) bool {
	n := len(ring)
	j := n - 1
	for i := 0; i < n; i++ {
		if segmentDistance(ring[j], ring[i], p) <= eps {
			return true
		}
		j = i
	}
	return false
}

// segmentDistance returns the planar distance in degrees from p to the
// segment ab. Degrees are a reasonable proxy at city scale where the
// tolerance buffer is tiny.
func segmentDistance(a, b, p domain.Point) float64 {
	dx, dy := b.Lon-a.Lon, b.Lat-a.Lat
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((p.Lon-a.Lon)*dx + (p.Lat-a.Lat)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	cx, cy := a.Lon+t*dx, a.Lat+t*dy
	return math.Hypot(p.Lon-cx, p.Lat-cy)
}

// polygonContains tests one polygon (outer ring plus holes): the point must
// be inside the outer ring and outside every hole. A point inside a hole
// but within tolerance of the hole's edge still counts as contained, so
// boundary points resolve deterministically rather than falling through.
func polygonContains(rings []domain.Ring, p domain.Point, tolerance float64) bool {
	if len(rings) == 0 {
		return false
	}
	outer := rings[0]
	if !ringContains(outer, p) && !ringOnBoundary(outer, p, tolerance) {
		return false
	}
	for _, hole := range rings[1:] {
		if ringContains(hole, p) && !ringOnBoundary(hole, p, tolerance) {
			return false
		}
	}
	return true
}

// Contains reports whether the multi-polygon contains p, with the given
// edge tolerance in degrees.
func Contains(g domain.MultiPolygon, p domain.Point, tolerance float64) bool {
	for _, poly := range g {
		if polygonContains(poly, p, tolerance) {
			return true
		}
	}
	return false
}
