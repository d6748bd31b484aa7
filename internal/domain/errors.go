package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the non-row-specific failure modes.
var (
	// ErrNoZoneFound means a point lies outside every zone polygon (and
	// outside the tolerance buffer). The record is kept with its zone
	// unresolved and excluded from zone-keyed aggregation.
	ErrNoZoneFound = errors.New("no zone found")

	// ErrInsufficientSample means no lag in the search window had enough
	// overlapping samples to compute a correlation. Distinct from a weak
	// correlation, which is a present result with a low score.
	ErrInsufficientSample = errors.New("insufficient overlapping samples")
)

// SchemaError reports one raw row that could not be normalized. It is
// unrecoverable for that row: the row is skipped and counted in the run
// report under Reason.
type SchemaError struct {
	Field  string
	Reason string // e.g. "missing", "unparsable", "out_of_range"
	Value  string
}

func (e *SchemaError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("schema: field %q %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("schema: field %q %s (value %q)", e.Field, e.Reason, e.Value)
}

// TransformDomainError means the requested variance-stabilizing transform
// was fitted on data outside its domain (non-positive values). Fatal for
// the conditioning operation; values are never silently clipped.
type TransformDomainError struct {
	Value float64
	Index int
}

func (e *TransformDomainError) Error() string {
	return fmt.Sprintf("transform: non-positive value %g at index %d", e.Value, e.Index)
}

// Drop-reason keys used in run reports. Kept as constants so counts from
// different adapters aggregate under stable names.
const (
	DropMissingField   = "missing_field"
	DropUnparsable     = "unparsable"
	DropOutOfRange     = "out_of_range"
	DropBadCoordinates = "bad_coordinates"
	DropNoKeywordMatch = "no_keyword_match"
	DropUnknownZone    = "unknown_zone"
)
