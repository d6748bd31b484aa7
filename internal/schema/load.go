package schema

import (
	"strconv"
	"strings"
	"time"

	"github.com/hollyoak/citysignal/internal/domain"
)

// LoadVersion is the registry key for NYISO integrated real-time load rows.
const LoadVersion = "load/v1"

// tzOffsets converts the NYISO time-zone designator column to the offset
// that turns the wall-clock timestamp into UTC. The raw files disambiguate
// the repeated 1 AM hour at the end of DST this way.
var tzOffsets = map[string]time.Duration{
	"EDT": 4 * time.Hour,
	"EST": 5 * time.Hour,
}

// loadColumns translates the raw NYISO header names to canonical field
// names. Canonical names pass through untouched.
var loadColumns = map[string]string{
	"Time Stamp":      "timestamp",
	"Time Zone":       "timezone",
	"Name":            "name",
	"PTID":            "ptid",
	"Integrated Load": "integrated_load",
}

// LoadAdapter normalizes power-load rows. Load zones are fixed reference
// data (a name-to-ID table), so these records never pass through spatial
// resolution.
type LoadAdapter struct {
	zoneIDs map[string]string // zone name -> zone ID
}

// NewLoadAdapter builds an adapter with the given zone name-to-ID table.
func NewLoadAdapter(zoneIDs map[string]string) *LoadAdapter {
	return &LoadAdapter{zoneIDs: zoneIDs}
}

// Normalize converts one load row. Expected fields: "timestamp"
// ("01/02/2006 15:04:05" wall clock), "timezone" (EDT or EST), "name"
// (load zone name), "integrated_load" (MW). Measure is the load value;
// category and zone come from the zone table.
func (a *LoadAdapter) Normalize(raw map[string]string) (domain.CanonicalRecord, error) {
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		if canon, ok := loadColumns[k]; ok {
			fields[canon] = v
			continue
		}
		fields[k] = v
	}

	tzRaw := strings.TrimSpace(fields["timezone"])
	offset, ok := tzOffsets[tzRaw]
	if !ok {
		return domain.CanonicalRecord{}, &domain.SchemaError{Field: "timezone", Reason: "unparsable", Value: tzRaw}
	}

	wall, err := parseTimestamp(fields["timestamp"], time.UTC)
	if err != nil {
		return domain.CanonicalRecord{}, err
	}
	ts := wall.Add(offset)

	name := strings.TrimSpace(fields["name"])
	if name == "" {
		return domain.CanonicalRecord{}, &domain.SchemaError{Field: "name", Reason: "missing"}
	}
	zoneID, ok := a.zoneIDs[name]
	if !ok {
		return domain.CanonicalRecord{}, &domain.SchemaError{Field: "name", Reason: domain.DropUnknownZone, Value: name}
	}

	rawLoad := strings.TrimSpace(fields["integrated_load"])
	if rawLoad == "" {
		return domain.CanonicalRecord{}, &domain.SchemaError{Field: "integrated_load", Reason: "missing"}
	}
	load, err := strconv.ParseFloat(rawLoad, 64)
	if err != nil {
		return domain.CanonicalRecord{}, &domain.SchemaError{Field: "integrated_load", Reason: "unparsable", Value: rawLoad}
	}
	if load < 0 {
		return domain.CanonicalRecord{}, &domain.SchemaError{Field: "integrated_load", Reason: "out_of_range", Value: rawLoad}
	}

	rec := domain.CanonicalRecord{
		Dataset:   domain.DatasetLoad,
		Timestamp: ts,
		Category:  name,
		ZoneID:    zoneID,
		Measure:   load,
	}
	rec.ID = domain.NewRecordID(rec.Dataset, rec.Category, rec.ZoneID, rec.Timestamp, 0, 0, rec.Measure)
	return rec, nil
}
