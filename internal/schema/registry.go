// Package schema normalizes raw, source-specific rows into canonical
// records. Each supported (dataset, era) layout is a named adapter in a
// registry; adding a new year means registering a new adapter without
// touching existing ones.
package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/hollyoak/citysignal/internal/domain"
)

// NormalizeFunc converts one raw row into exactly one canonical record.
// Implementations are pure: the same input always yields the same output,
// including the record ID.
type NormalizeFunc func(fields map[string]string) (domain.CanonicalRecord, error)

// Registry maps schema-version keys to adapters.
type Registry struct {
	adapters map[string]NormalizeFunc
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]NormalizeFunc)}
}

// Register adds an adapter under the given version key. Registering the
// same key twice is a caller bug and returns an error.
func (r *Registry) Register(version string, fn NormalizeFunc) error {
	if _, ok := r.adapters[version]; ok {
		return fmt.Errorf("schema: version %q already registered", version)
	}
	r.adapters[version] = fn
	return nil
}

// Has reports whether a version is registered.
func (r *Registry) Has(version string) bool {
	_, ok := r.adapters[version]
	return ok
}

// Normalize dispatches a raw record to the adapter for its version tag.
func (r *Registry) Normalize(raw domain.RawRecord) (domain.CanonicalRecord, error) {
	fn, ok := r.adapters[raw.Version]
	if !ok {
		return domain.CanonicalRecord{}, fmt.Errorf("schema: unknown version %q", raw.Version)
	}
	return fn(raw.Fields)
}

// Versions lists the registered version keys.
func (r *Registry) Versions() []string {
	out := make([]string, 0, len(r.adapters))
	for v := range r.adapters {
		out = append(out, v)
	}
	return out
}

// timestampLayouts are the combined date-time encodings seen across the raw
// sources, tried in order.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006 15:04:05",
	"Mon Jan 02 15:04:05 -0700 2006", // social-media created_at
}

// parseTimestamp parses a raw timestamp in the given location, tolerating
// the combined encodings above or separate date ("2006-01-02") and time
// ("15:04:05") fields joined by the caller. Returns UTC.
func parseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &domain.SchemaError{Field: "timestamp", Reason: "missing"}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &domain.SchemaError{Field: "timestamp", Reason: "unparsable", Value: value}
}

// joinDateTime combines separate date and time fields into one parseable
// value. Either part may already be empty when the source uses a combined
// column.
func joinDateTime(date, clock string) string {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" {
		return clock
	}
	if clock == "" {
		return date + " 00:00:00"
	}
	return date + " " + clock
}
