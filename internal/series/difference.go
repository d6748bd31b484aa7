package series

import "fmt"

// Difference returns the period-differenced series: out[i] = in[i+period] -
// in[i], of length n - period. A difference touching a gap on either side
// is itself a gap. period 1 is first differencing; larger periods handle
// seasonality (e.g. 24 for daily cycles in hourly data).
func Difference(s *Series, period int) (*Series, error) {
	if period < 1 {
		return nil, fmt.Errorf("series: differencing period must be >= 1, got %d", period)
	}
	if len(s.Entries) <= period {
		return nil, fmt.Errorf("series: length %d too short for period %d", len(s.Entries), period)
	}

	entries := make([]Entry, len(s.Entries)-period)
	for i := range entries {
		a, b := s.Entries[i], s.Entries[i+period]
		entries[i] = Entry{Window: a.Window}
		if a.Gap || b.Gap {
			entries[i].Gap = true
			continue
		}
		entries[i].Value = b.Value - a.Value
	}
	return &Series{Key: s.Key, Width: s.Width, Entries: entries}, nil
}
