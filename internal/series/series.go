// Package series aligns bucket aggregates to a dense time index and applies
// variance-stabilizing transforms and differencing ahead of correlation.
package series

import (
	"fmt"
	"time"

	"github.com/hollyoak/citysignal/internal/domain"
)

// Entry is one window of a series. Gap marks windows with no bucket at all;
// a bucket with value 0 is an explicit zero, not a gap, so "no activity"
// and "no data collected" stay distinguishable.
type Entry struct {
	Window time.Time
	Value  float64
	Gap    bool
}

// Series is an ordered, duplicate-free sequence of windows at a fixed width.
type Series struct {
	Key     string
	Width   time.Duration
	Entries []Entry
}

// Len returns the number of windows.
func (s *Series) Len() int { return len(s.Entries) }

// Observed returns the count of non-gap windows.
func (s *Series) Observed() int {
	n := 0
	for _, e := range s.Entries {
		if !e.Gap {
			n++
		}
	}
	return n
}

// Build materializes the full window grid over [start, end) at the given
// width from a sparse set of buckets for one key. Every window in range
// gets exactly one entry: the bucket value when present, a gap otherwise.
// Buckets outside the range are ignored; two buckets in the same window is
// a caller contract violation (the aggregator guarantees uniqueness).
func Build(key string, buckets []domain.Bucket, start, end time.Time, width time.Duration) (*Series, error) {
	if width <= 0 {
		return nil, fmt.Errorf("series: window width must be positive, got %s", width)
	}
	start = start.UTC().Truncate(width)
	end = end.UTC()
	if !start.Before(end) {
		return nil, fmt.Errorf("series: empty range [%s, %s)", start, end)
	}

	byWindow := make(map[int64]float64, len(buckets))
	for _, b := range buckets {
		ws := b.WindowStart.UTC()
		if ws.Before(start) || !ws.Before(end) {
			continue
		}
		if !ws.Equal(ws.Truncate(width)) {
			return nil, fmt.Errorf("series: bucket window %s not aligned to %s", ws, width)
		}
		if _, dup := byWindow[ws.Unix()]; dup {
			return nil, fmt.Errorf("series: duplicate bucket for window %s", ws)
		}
		byWindow[ws.Unix()] = b.Value
	}

	var entries []Entry
	for w := start; w.Before(end); w = w.Add(width) {
		if v, ok := byWindow[w.Unix()]; ok {
			entries = append(entries, Entry{Window: w, Value: v})
		} else {
			entries = append(entries, Entry{Window: w, Gap: true})
		}
	}
	return &Series{Key: key, Width: width, Entries: entries}, nil
}

// Values returns the series values with gaps reported separately: the bool
// slice is true where the window is observed.
func (s *Series) Values() ([]float64, []bool) {
	vals := make([]float64, len(s.Entries))
	ok := make([]bool, len(s.Entries))
	for i, e := range s.Entries {
		vals[i] = e.Value
		ok[i] = !e.Gap
	}
	return vals, ok
}
