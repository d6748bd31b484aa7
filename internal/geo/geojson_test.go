package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollyoak/citysignal/internal/domain"
)

const zoneFixture = `{
	"type": "FeatureCollection",
	"features": [
		{
			"type": "Feature",
			"properties": {"LocationID": 161, "zone": "Midtown Center"},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]
			}
		},
		{
			"type": "Feature",
			"properties": {"LocationID": "103", "zone": "Governors Island"},
			"geometry": {
				"type": "MultiPolygon",
				"coordinates": [
					[[[2,2],[3,2],[3,3],[2,3],[2,2]]],
					[[[4,4],[5,4],[5,5],[4,5],[4,4]]]
				]
			}
		}
	]
}`

func TestParseZones(t *testing.T) {
	zones, err := ParseZones([]byte(zoneFixture), "LocationID", "zone", CRSWGS84)
	require.NoError(t, err)
	require.Len(t, zones, 2)

	assert.Equal(t, "161", zones[0].ID, "numeric IDs are stringified")
	assert.Equal(t, "Midtown Center", zones[0].Name)
	require.Len(t, zones[0].Geometry, 1)
	require.Len(t, zones[0].Geometry[0], 1)
	assert.Len(t, zones[0].Geometry[0][0], 5)

	assert.Equal(t, "103", zones[1].ID, "string IDs pass through")
	assert.Len(t, zones[1].Geometry, 2, "multipolygon keeps both parts")
}

func TestParseZones_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"wrong root type", `{"type": "Feature", "features": []}`},
		{"missing id property", `{
			"type": "FeatureCollection",
			"features": [{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]
		}`},
		{"unsupported geometry", `{
			"type": "FeatureCollection",
			"features": [{"type":"Feature","properties":{"LocationID":1},"geometry":{"type":"Point","coordinates":[0,0]}}]
		}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseZones([]byte(tt.data), "LocationID", "zone", CRSWGS84)
			assert.Error(t, err)
		})
	}
}

func TestLoadZones_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.json")
	require.NoError(t, os.WriteFile(path, []byte(zoneFixture), 0o644))

	zones, err := LoadZones(path, "LocationID", "zone", CRSWGS84)
	require.NoError(t, err)
	assert.Len(t, zones, 2)

	_, err = LoadZones(filepath.Join(t.TempDir(), "missing.json"), "LocationID", "zone", CRSWGS84)
	assert.Error(t, err)
}

func TestParseZones_ProjectedCoordinates(t *testing.T) {
	// A square around Manhattan in EPSG:3857 meters.
	projected := `{
		"type": "FeatureCollection",
		"features": [{
			"type": "Feature",
			"properties": {"LocationID": 1},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[
					[-8242000, 4965000], [-8220000, 4965000],
					[-8220000, 4990000], [-8242000, 4990000],
					[-8242000, 4965000]
				]]
			}
		}]
	}`
	zones, err := ParseZones([]byte(projected), "LocationID", "zone", CRSWebMercator)
	require.NoError(t, err)
	require.Len(t, zones, 1)

	// Times Square in WGS-84 must fall inside after normalization.
	assert.True(t, Contains(zones[0].Geometry, domain.Point{Lon: -73.9851, Lat: 40.7589}, 0))
}
