// Package aggregate buckets canonical records into fixed-width time windows
// per key. Windows with no records are not emitted; materializing the full
// window grid (and telling "no activity" apart from "no data") is the series
// conditioner's job.
package aggregate

import (
	"fmt"
	"time"

	"github.com/hollyoak/citysignal/internal/domain"
)

// Policy declares how records combine within a window.
type Policy string

const (
	PolicyCount Policy = "count" // posts, trips: each record contributes 1
	PolicySum   Policy = "sum"   // load: sum of measures
	PolicyMean  Policy = "mean"  // load: mean of measures
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyCount, PolicySum, PolicyMean:
		return true
	}
	return false
}

// KeyFunc extracts the bucket key from a record. ByZone and ByCategory are
// the two keyings the analyses use.
type KeyFunc func(domain.CanonicalRecord) string

// ByZone keys records by resolved zone; records without a zone return ""
// and are excluded from aggregation (they remain in the canonical store for
// audit).
func ByZone(rec domain.CanonicalRecord) string { return rec.ZoneID }

// ByCategory keys records by category (keyword for posts, vendor for trips,
// zone name for load).
func ByCategory(rec domain.CanonicalRecord) string { return rec.Category }

// Aggregator accumulates records into buckets. Merging is additive, so the
// result is invariant to input order; at most one bucket exists per
// (key, window).
type Aggregator struct {
	dataset domain.Dataset
	window  time.Duration
	policy  Policy
	keyFn   KeyFunc
	buckets map[bucketKey]*domain.Bucket
}

type bucketKey struct {
	key   string
	start int64 // unix seconds of window start
}

// New creates an aggregator. An invalid window width or policy is a caller
// contract violation and fails immediately.
func New(dataset domain.Dataset, window time.Duration, policy Policy, keyFn KeyFunc) (*Aggregator, error) {
	if window <= 0 {
		return nil, fmt.Errorf("aggregate: window width must be positive, got %s", window)
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("aggregate: unknown policy %q", policy)
	}
	if keyFn == nil {
		return nil, fmt.Errorf("aggregate: key function is required")
	}
	return &Aggregator{
		dataset: dataset,
		window:  window,
		policy:  policy,
		keyFn:   keyFn,
		buckets: make(map[bucketKey]*domain.Bucket),
	}, nil
}

// Add accumulates one record. Records keyed to "" (e.g. zone-unresolved)
// are skipped; the caller tracks them separately.
func (a *Aggregator) Add(rec domain.CanonicalRecord) {
	key := a.keyFn(rec)
	if key == "" {
		return
	}
	start := rec.Timestamp.UTC().Truncate(a.window)
	bk := bucketKey{key: key, start: start.Unix()}
	b, ok := a.buckets[bk]
	if !ok {
		b = &domain.Bucket{Dataset: a.dataset, Key: key, WindowStart: start}
		a.buckets[bk] = b
	}
	b.Count++
	switch a.policy {
	case PolicyCount:
		b.Value++
	default:
		// Sum here; mean is finalized in Buckets.
		b.Value += rec.Measure
	}
}

// Buckets returns the accumulated buckets. For the mean policy the stored
// sum is divided by the count here, so Add stays order-invariant.
func (a *Aggregator) Buckets() []domain.Bucket {
	out := make([]domain.Bucket, 0, len(a.buckets))
	for _, b := range a.buckets {
		bucket := *b
		if a.policy == PolicyMean && bucket.Count > 0 {
			bucket.Value /= float64(bucket.Count)
		}
		out = append(out, bucket)
	}
	return out
}

// Window returns the aggregator's window width.
func (a *Aggregator) Window() time.Duration { return a.window }
