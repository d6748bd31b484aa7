package geo

import (
	"fmt"
	"math"

	"github.com/hollyoak/citysignal/internal/domain"
)

// CRS identifies a supported coordinate reference system. All containment
// tests run in WGS-84; inputs in another CRS are converted first.
type CRS string

const (
	CRSWGS84       CRS = "EPSG:4326" // lon/lat degrees
	CRSWebMercator CRS = "EPSG:3857" // meters
)

const earthRadius = 6378137.0 // WGS-84 spherical radius used by EPSG:3857

// ParseCRS validates a CRS declaration from configuration.
func ParseCRS(s string) (CRS, error) {
	switch CRS(s) {
	case CRSWGS84, CRSWebMercator:
		return CRS(s), nil
	case "":
		return CRSWGS84, nil
	}
	return "", fmt.Errorf("geo: unsupported CRS %q", s)
}

// ToWGS84 converts a point from the given CRS to WGS-84 lon/lat degrees.
func ToWGS84(crs CRS, p domain.Point) (domain.Point, error) {
	switch crs {
	case CRSWGS84:
		return p, nil
	case CRSWebMercator:
		lon := p.Lon / earthRadius * 180 / math.Pi
		lat := (2*math.Atan(math.Exp(p.Lat/earthRadius)) - math.Pi/2) * 180 / math.Pi
		return domain.Point{Lon: lon, Lat: lat}, nil
	}
	return domain.Point{}, fmt.Errorf("geo: unsupported CRS %q", crs)
}

// FromWGS84 converts a WGS-84 point into the given CRS. Used by tests and
// by zone files published in projected coordinates.
func FromWGS84(crs CRS, p domain.Point) (domain.Point, error) {
	switch crs {
	case CRSWGS84:
		return p, nil
	case CRSWebMercator:
		x := p.Lon * math.Pi / 180 * earthRadius
		y := math.Log(math.Tan(math.Pi/4+p.Lat*math.Pi/360)) * earthRadius
		return domain.Point{Lon: x, Lat: y}, nil
	}
	return domain.Point{}, fmt.Errorf("geo: unsupported CRS %q", crs)
}
