package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/hollyoak/citysignal/internal/domain"
)

// featureCollection mirrors the subset of GeoJSON used by zone files.
type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   featureGeometry `json:"geometry"`
}

type featureGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// LoadZones reads a GeoJSON FeatureCollection of zone polygons. idProp and
// nameProp name the feature properties carrying the zone ID and human name.
// Coordinates in the file are interpreted in crs and normalized to WGS-84.
func LoadZones(path, idProp, nameProp string, crs CRS) ([]domain.Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geo: read zone file: %w", err)
	}
	return ParseZones(data, idProp, nameProp, crs)
}

// ParseZones parses zone polygons from GeoJSON bytes.
func ParseZones(data []byte, idProp, nameProp string, crs CRS) ([]domain.Zone, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("geo: parse zone file: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("geo: expected FeatureCollection, got %q", fc.Type)
	}

	zones := make([]domain.Zone, 0, len(fc.Features))
	for i, f := range fc.Features {
		id := propString(f.Properties, idProp)
		if id == "" {
			return nil, fmt.Errorf("geo: feature %d missing property %q", i, idProp)
		}
		geom, err := parseGeometry(f.Geometry, crs)
		if err != nil {
			return nil, fmt.Errorf("geo: feature %d (%s): %w", i, id, err)
		}
		zones = append(zones, domain.Zone{
			ID:       id,
			Name:     propString(f.Properties, nameProp),
			Geometry: geom,
		})
	}
	return zones, nil
}

func propString(props map[string]any, key string) string {
	switch v := props[key].(type) {
	case string:
		return v
	case float64:
		// GeoJSON numeric IDs (e.g. LocationID) come through as floats.
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func parseGeometry(g featureGeometry, crs CRS) (domain.MultiPolygon, error) {
	switch g.Type {
	case "Polygon":
		var coords [][][2]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("polygon coordinates: %w", err)
		}
		poly, err := toPolygon(coords, crs)
		if err != nil {
			return nil, err
		}
		return domain.MultiPolygon{poly}, nil
	case "MultiPolygon":
		var coords [][][][2]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, fmt.Errorf("multipolygon coordinates: %w", err)
		}
		mp := make(domain.MultiPolygon, 0, len(coords))
		for _, polyCoords := range coords {
			poly, err := toPolygon(polyCoords, crs)
			if err != nil {
				return nil, err
			}
			mp = append(mp, poly)
		}
		return mp, nil
	}
	return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
}

func toPolygon(coords [][][2]float64, crs CRS) ([]domain.Ring, error) {
	rings := make([]domain.Ring, 0, len(coords))
	for _, rawRing := range coords {
		ring := make(domain.Ring, 0, len(rawRing))
		for _, pt := range rawRing {
			p, err := ToWGS84(crs, domain.Point{Lon: pt[0], Lat: pt[1]})
			if err != nil {
				return nil, err
			}
			ring = append(ring, p)
		}
		rings = append(rings, ring)
	}
	return rings, nil
}
