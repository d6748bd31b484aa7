package geo

import (
	"sort"

	"github.com/hollyoak/citysignal/internal/domain"
)

// Resolver assigns zone IDs to points by polygon containment. Zones are
// checked in ascending zone-ID order, so a point on a shared boundary
// always resolves to the same zone regardless of input file order. IDs
// compare as strings ("10" sorts before "2"); the ordering only has to be
// stable, not numeric.
type Resolver struct {
	zones     []domain.Zone // sorted by ID
	boxes     []boundingBox
	tolerance float64 // edge tolerance in degrees; 0 disables the buffer
}

type boundingBox struct {
	minLon, minLat, maxLon, maxLat float64
}

// NewResolver builds a resolver over the given zones with the given edge
// tolerance in degrees. The zone slice is copied and sorted; the caller may
// discard it.
func NewResolver(zones []domain.Zone, tolerance float64) *Resolver {
	sorted := make([]domain.Zone, len(zones))
	copy(sorted, zones)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	boxes := make([]boundingBox, len(sorted))
	for i, z := range sorted {
		boxes[i] = bounds(z.Geometry, tolerance)
	}
	return &Resolver{zones: sorted, boxes: boxes, tolerance: tolerance}
}

// Resolve returns the ID of the first zone (in ID order) containing the
// point, or domain.ErrNoZoneFound when the point lies outside every polygon
// and its tolerance buffer. Near misses never panic; they are reported as
// unresolved.
func (r *Resolver) Resolve(lat, lon float64) (string, error) {
	p := domain.Point{Lon: lon, Lat: lat}
	for i, z := range r.zones {
		if !r.boxes[i].contains(p) {
			continue
		}
		if Contains(z.Geometry, p, r.tolerance) {
			return z.ID, nil
		}
	}
	return "", domain.ErrNoZoneFound
}

// ResolveCRS converts the point from crs to WGS-84 before resolving.
func (r *Resolver) ResolveCRS(crs CRS, lat, lon float64) (string, error) {
	p, err := ToWGS84(crs, domain.Point{Lon: lon, Lat: lat})
	if err != nil {
		return "", err
	}
	return r.Resolve(p.Lat, p.Lon)
}

// Zones returns the resolver's zones in ID order.
func (r *Resolver) Zones() []domain.Zone {
	return r.zones
}

func bounds(g domain.MultiPolygon, pad float64) boundingBox {
	b := boundingBox{minLon: 180, minLat: 90, maxLon: -180, maxLat: -90}
	for _, poly := range g {
		for _, ring := range poly {
			for _, p := range ring {
				if p.Lon < b.minLon {
					b.minLon = p.Lon
				}
				if p.Lon > b.maxLon {
					b.maxLon = p.Lon
				}
				if p.Lat < b.minLat {
					b.minLat = p.Lat
				}
				if p.Lat > b.maxLat {
					b.maxLat = p.Lat
				}
			}
		}
	}
	b.minLon -= pad
	b.minLat -= pad
	b.maxLon += pad
	b.maxLat += pad
	return b
}

func (b boundingBox) contains(p domain.Point) bool {
	return p.Lon >= b.minLon && p.Lon <= b.maxLon && p.Lat >= b.minLat && p.Lat <= b.maxLat
}
