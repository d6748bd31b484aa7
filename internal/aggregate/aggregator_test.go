package aggregate

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollyoak/citysignal/internal/domain"
)

func rec(ts time.Time, zone string, measure float64) domain.CanonicalRecord {
	return domain.CanonicalRecord{
		Dataset:   domain.DatasetTaxi,
		Timestamp: ts,
		ZoneID:    zone,
		Measure:   measure,
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(domain.DatasetTaxi, 0, PolicyCount, ByZone)
	assert.Error(t, err, "zero window width")

	_, err = New(domain.DatasetTaxi, -time.Hour, PolicyCount, ByZone)
	assert.Error(t, err, "negative window width")

	_, err = New(domain.DatasetTaxi, time.Hour, Policy("median"), ByZone)
	assert.Error(t, err, "unknown policy")

	_, err = New(domain.DatasetTaxi, time.Hour, PolicyCount, nil)
	assert.Error(t, err, "nil key function")
}

func TestAggregator_CountPolicy(t *testing.T) {
	agg, err := New(domain.DatasetTaxi, time.Hour, PolicyCount, ByZone)
	require.NoError(t, err)

	base := time.Date(2012, time.October, 29, 14, 0, 0, 0, time.UTC)
	agg.Add(rec(base.Add(5*time.Minute), "161", 1))
	agg.Add(rec(base.Add(25*time.Minute), "161", 1))
	agg.Add(rec(base.Add(59*time.Minute), "161", 1))
	agg.Add(rec(base.Add(61*time.Minute), "161", 1)) // next window
	agg.Add(rec(base.Add(10*time.Minute), "236", 1)) // other zone

	buckets := agg.Buckets()
	require.Len(t, buckets, 3)

	byKey := indexBuckets(buckets)
	first := byKey[bucketID{"161", base}]
	require.NotNil(t, first)
	assert.Equal(t, 3.0, first.Value)
	assert.Equal(t, 3, first.Count)

	second := byKey[bucketID{"161", base.Add(time.Hour)}]
	require.NotNil(t, second)
	assert.Equal(t, 1.0, second.Value)
}

func TestAggregator_MeanPolicy(t *testing.T) {
	agg, err := New(domain.DatasetLoad, time.Hour, PolicyMean, ByCategory)
	require.NoError(t, err)

	base := time.Date(2012, time.October, 29, 14, 0, 0, 0, time.UTC)
	for _, load := range []float64{5000, 5200, 5400} {
		agg.Add(domain.CanonicalRecord{
			Dataset:   domain.DatasetLoad,
			Timestamp: base.Add(10 * time.Minute),
			Category:  "N.Y.C.",
			Measure:   load,
		})
	}

	buckets := agg.Buckets()
	require.Len(t, buckets, 1)
	assert.InDelta(t, 5200.0, buckets[0].Value, 1e-9)
	assert.Equal(t, 3, buckets[0].Count)
}

func TestAggregator_SumPolicy(t *testing.T) {
	agg, err := New(domain.DatasetLoad, time.Hour, PolicySum, ByCategory)
	require.NoError(t, err)

	base := time.Date(2012, time.October, 29, 14, 0, 0, 0, time.UTC)
	agg.Add(domain.CanonicalRecord{Dataset: domain.DatasetLoad, Timestamp: base, Category: "N.Y.C.", Measure: 100})
	agg.Add(domain.CanonicalRecord{Dataset: domain.DatasetLoad, Timestamp: base, Category: "N.Y.C.", Measure: 250})

	buckets := agg.Buckets()
	require.Len(t, buckets, 1)
	assert.InDelta(t, 350.0, buckets[0].Value, 1e-9)
}

func TestAggregator_EmptyKeyExcluded(t *testing.T) {
	agg, err := New(domain.DatasetTaxi, time.Hour, PolicyCount, ByZone)
	require.NoError(t, err)

	base := time.Date(2012, time.October, 29, 14, 0, 0, 0, time.UTC)
	agg.Add(rec(base, "", 1)) // zone-unresolved
	agg.Add(rec(base, "161", 1))

	buckets := agg.Buckets()
	require.Len(t, buckets, 1)
	assert.Equal(t, "161", buckets[0].Key)
}

func TestAggregator_WindowAlignment(t *testing.T) {
	agg, err := New(domain.DatasetTaxi, 15*time.Minute, PolicyCount, ByZone)
	require.NoError(t, err)

	ts := time.Date(2012, time.October, 29, 14, 37, 22, 0, time.UTC)
	agg.Add(rec(ts, "161", 1))

	buckets := agg.Buckets()
	require.Len(t, buckets, 1)
	assert.Equal(t, time.Date(2012, time.October, 29, 14, 30, 0, 0, time.UTC), buckets[0].WindowStart)
}

// Merging is additive, so any permutation of the input yields identical
// buckets.
func TestAggregator_OrderInvariant(t *testing.T) {
	base := time.Date(2012, time.October, 29, 0, 0, 0, 0, time.UTC)
	var records []domain.CanonicalRecord
	for i := 0; i < 200; i++ {
		zone := "161"
		if i%3 == 0 {
			zone = "236"
		}
		records = append(records, rec(base.Add(time.Duration(i)*7*time.Minute), zone, float64(i%5+1)))
	}

	run := func(recs []domain.CanonicalRecord) []domain.Bucket {
		agg, err := New(domain.DatasetTaxi, time.Hour, PolicyMean, ByZone)
		require.NoError(t, err)
		for _, r := range recs {
			agg.Add(r)
		}
		buckets := agg.Buckets()
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].Key != buckets[j].Key {
				return buckets[i].Key < buckets[j].Key
			}
			return buckets[i].WindowStart.Before(buckets[j].WindowStart)
		})
		return buckets
	}

	expected := run(records)

	shuffled := make([]domain.CanonicalRecord, len(records))
	copy(shuffled, records)
	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	assert.Equal(t, expected, run(shuffled))
}

type bucketID struct {
	key   string
	start time.Time
}

func indexBuckets(buckets []domain.Bucket) map[bucketID]*domain.Bucket {
	out := make(map[bucketID]*domain.Bucket, len(buckets))
	for i := range buckets {
		b := &buckets[i]
		out[bucketID{b.Key, b.WindowStart}] = b
	}
	return out
}
