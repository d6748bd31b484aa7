package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Dataset identifies which raw source a record came from.
type Dataset string

const (
	DatasetPosts Dataset = "posts"
	DatasetTaxi  Dataset = "taxi"
	DatasetLoad  Dataset = "load"
)

// Valid reports whether d is one of the known datasets.
func (d Dataset) Valid() bool {
	switch d {
	case DatasetPosts, DatasetTaxi, DatasetLoad:
		return true
	}
	return false
}

// RawRecord is a source-specific row: raw field name to raw value, plus the
// schema version inferred from the file's year/format. Consumed once by the
// schema normalizer and discarded.
type RawRecord struct {
	Fields  map[string]string
	Version string
}

// CanonicalRecord is the normalized, schema-independent form of one raw
// observation. Exactly one of (Lat/Lon present, ZoneID set) holds until
// spatial resolution completes; load records carry a fixed zone from the
// start and skip resolution.
type CanonicalRecord struct {
	ID        string    `json:"id"`
	Dataset   Dataset   `json:"dataset"`
	Timestamp time.Time `json:"timestamp"` // always UTC
	Category  string    `json:"category"`  // keyword, vendor ID, or load zone name

	// Geographic location. HasCoords reports whether Lat/Lon are set;
	// ZoneID is empty until resolution (or fixed for load records).
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
	HasCoords bool    `json:"has_coords"`
	ZoneID    string  `json:"zone_id,omitempty"`

	// Measure is 1 for count-style records (posts, trips) and the observed
	// value for load records.
	Measure float64 `json:"measure"`
}

// NewRecordID produces a deterministic ID from the record's key fields plus
// any source-level discriminators. Deterministic IDs make ingestion
// idempotent: the store's insert-if-absent write collapses replays of the
// same raw row. Rows without coordinates must pass a discriminator (taxi
// dropoff fields, post document ID): for them the key fields alone cannot
// tell two same-second observations apart, and colliding IDs would silently
// collapse distinct records.
func NewRecordID(dataset Dataset, category, zoneID string, ts time.Time, lat, lon, measure float64, extra ...string) string {
	input := fmt.Sprintf("%s|%s|%s|%d|%.6f|%.6f|%g", dataset, category, zoneID, ts.UTC().Unix(), lat, lon, measure)
	for _, e := range extra {
		input += "|" + e
	}
	hash := sha256.Sum256([]byte(input))
	return string(dataset) + "-" + hex.EncodeToString(hash[:8])
}

// Zone is one named geographic polygon from the zone reference file.
// Immutable after load.
type Zone struct {
	ID       string
	Name     string
	Geometry MultiPolygon
}

// MultiPolygon is one or more polygons, each an outer ring plus optional
// holes. Rings are closed (first point repeated last) in the GeoJSON input
// but containment does not require the repetition.
type MultiPolygon [][]Ring

// Ring is a sequence of (lon, lat) vertices.
type Ring []Point

// Point is a WGS-84 coordinate pair.
type Point struct {
	Lon float64
	Lat float64
}

// Bucket is an aggregate for one key over one fixed time window.
// WindowStart is aligned to the window-width boundary. Merging is additive:
// at most one Bucket exists per (dataset, key, window).
type Bucket struct {
	Dataset     Dataset   `json:"dataset"`
	Key         string    `json:"key"` // zone ID or keyword
	WindowStart time.Time `json:"window_start"`
	Value       float64   `json:"value"`
	Count       int       `json:"count"`
}

// CorrelationResult reports the correlation between two series at one lag.
// Lag is signed in window units: positive means series B lags series A.
type CorrelationResult struct {
	SeriesAKey  string    `json:"series_a_key"`
	SeriesBKey  string    `json:"series_b_key"`
	Lag         int       `json:"lag"`
	Correlation float64   `json:"correlation"`
	SampleSize  int       `json:"sample_size"`
	ComputedAt  time.Time `json:"computed_at"`
}

// RunReport aggregates per-row outcomes for one ingested file. Dropped rows
// are counted by reason, never silently discarded.
type RunReport struct {
	RunID       string         `json:"run_id"`
	Dataset     Dataset        `json:"dataset"`
	SourceFile  string         `json:"source_file"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	RowsIn      int            `json:"rows_in"`
	RowsOK      int            `json:"rows_ok"`
	RowsDropped int            `json:"rows_dropped"`
	Unresolved  int            `json:"unresolved"` // kept, but no zone found
	DropReasons map[string]int `json:"drop_reasons"`
}

// AddDrop records one dropped row under the given reason.
func (r *RunReport) AddDrop(reason string) {
	if r.DropReasons == nil {
		r.DropReasons = make(map[string]int)
	}
	r.DropReasons[reason]++
	r.RowsDropped++
}
