package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollyoak/citysignal/internal/domain"
)

func nyLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestTaxiVersion(t *testing.T) {
	assert.Equal(t, "taxi/2010-01", TaxiVersion(2010, 1))
	assert.Equal(t, "taxi/2016-12", TaxiVersion(2016, 12))
}

func TestNewTaxiAdapter_RejectsUnknownEra(t *testing.T) {
	_, err := NewTaxiAdapter(2008, 1, time.UTC)
	assert.Error(t, err)

	_, err = NewTaxiAdapter(2010, 13, time.UTC)
	assert.Error(t, err)
}

func TestTaxiAdapter_Normalize2010(t *testing.T) {
	adapter, err := NewTaxiAdapter(2010, 1, nyLoc(t))
	require.NoError(t, err)

	rec, err := adapter.Normalize(map[string]string{
		"vendor_id":          "CMT",
		"pickup_datetime":    "2010-01-15 09:30:00",
		"pickup_latitude":    "40.7589",
		"pickup_longitude":   "-73.9851",
		"store_and_fwd_flag": "*",
		"trip_distance":      "2.4",
		"payment_type":       "CASH",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DatasetTaxi, rec.Dataset)
	assert.Equal(t, "1", rec.Category, "CMT maps to vendor 1")
	assert.True(t, rec.HasCoords)
	assert.InDelta(t, 40.7589, rec.Lat, 1e-9)
	assert.InDelta(t, -73.9851, rec.Lon, 1e-9)
	assert.Empty(t, rec.ZoneID)
	assert.Equal(t, 1.0, rec.Measure)

	// 09:30 EST is 14:30 UTC.
	assert.Equal(t, time.Date(2010, time.January, 15, 14, 30, 0, 0, time.UTC), rec.Timestamp)
}

func TestTaxiAdapter_NormalizeIdempotent(t *testing.T) {
	adapter, err := NewTaxiAdapter(2010, 1, nyLoc(t))
	require.NoError(t, err)

	fields := map[string]string{
		"vendor_id":          "VTS",
		"pickup_datetime":    "2010-01-02 00:15:00",
		"pickup_latitude":    "40.70",
		"pickup_longitude":   "-74.00",
		"store_and_fwd_flag": "",
	}
	first, err := adapter.Normalize(fields)
	require.NoError(t, err)
	second, err := adapter.Normalize(fields)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.ID, second.ID)
}

func TestTaxiAdapter_Normalize2009Columns(t *testing.T) {
	adapter, err := NewTaxiAdapter(2009, 6, nyLoc(t))
	require.NoError(t, err)

	rec, err := adapter.Normalize(map[string]string{
		"vendor_name":          "VTS",
		"Trip_Pickup_DateTime": "2009-06-10 18:00:00",
		"Start_Lat":            "40.75",
		"Start_Lon":            "-73.99",
		"store_and_forward":    "0",
		"Payment_Type":         "Credit",
	})
	require.NoError(t, err)
	assert.Equal(t, "4", rec.Category, "VTS maps to vendor 4")
	assert.True(t, rec.HasCoords)
}

func TestTaxiAdapter_Normalize2014LeadingSpaceHeaders(t *testing.T) {
	adapter, err := NewTaxiAdapter(2014, 3, nyLoc(t))
	require.NoError(t, err)

	rec, err := adapter.Normalize(map[string]string{
		"vendor_id":           "CMT",
		" pickup_datetime":    "2014-03-08 12:00:00",
		" pickup_latitude":    "40.71",
		" pickup_longitude":   "-74.01",
		" store_and_fwd_flag": "N",
	})
	require.NoError(t, err)
	assert.Equal(t, "1", rec.Category)
	assert.True(t, rec.HasCoords)
}

func TestTaxiAdapter_Normalize2017ZoneIDs(t *testing.T) {
	adapter, err := NewTaxiAdapter(2017, 1, nyLoc(t))
	require.NoError(t, err)

	rec, err := adapter.Normalize(map[string]string{
		"VendorID":             "2",
		"tpep_pickup_datetime": "2017-01-05 08:00:00",
		"PULocationID":         "161",
		"DOLocationID":         "236",
		"store_and_fwd_flag":   "N",
		"payment_type":         "1",
	})
	require.NoError(t, err)

	assert.Equal(t, "161", rec.ZoneID, "2017 rows carry the zone directly")
	assert.False(t, rec.HasCoords)
}

// Coordless rows hash to all-zero lat/lon, so without further key material
// two trips by one vendor in the same second would share an ID and the
// store's insert-if-absent write would drop one of them.
func TestTaxiAdapter_SameSecondTripsGetDistinctIDs(t *testing.T) {
	adapter, err := NewTaxiAdapter(2017, 1, nyLoc(t))
	require.NoError(t, err)

	base := func() map[string]string {
		return map[string]string{
			"VendorID":              "2",
			"tpep_pickup_datetime":  "2017-01-05 08:00:00",
			"tpep_dropoff_datetime": "2017-01-05 08:12:00",
			"PULocationID":          "161",
			"DOLocationID":          "236",
			"trip_distance":         "2.4",
			"store_and_fwd_flag":    "N",
		}
	}

	first, err := adapter.Normalize(base())
	require.NoError(t, err)

	otherZone := base()
	otherZone["PULocationID"] = "237"
	second, err := adapter.Normalize(otherZone)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "same second, different pickup zone")

	otherDropoff := base()
	otherDropoff["tpep_dropoff_datetime"] = "2017-01-05 08:09:00"
	third, err := adapter.Normalize(otherDropoff)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID, "same second and zone, different dropoff")

	otherDistance := base()
	otherDistance["trip_distance"] = "3.1"
	fourth, err := adapter.Normalize(otherDistance)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fourth.ID, "same second and zone, different distance")
}

func TestTaxiAdapter_RejectsOutOfMonthPickup(t *testing.T) {
	adapter, err := NewTaxiAdapter(2010, 1, nyLoc(t))
	require.NoError(t, err)

	tests := []struct {
		name   string
		pickup string
	}{
		{"previous month", "2009-12-31 23:59:59"},
		{"next month", "2010-02-01 00:00:00"},
		{"wrong year", "2011-01-15 12:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.Normalize(map[string]string{
				"vendor_id":          "CMT",
				"pickup_datetime":    tt.pickup,
				"store_and_fwd_flag": "",
			})
			var schemaErr *domain.SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, "out_of_range", schemaErr.Reason)
		})
	}
}

func TestTaxiAdapter_RejectsBadRows(t *testing.T) {
	adapter, err := NewTaxiAdapter(2010, 8, nyLoc(t))
	require.NoError(t, err)

	base := func() map[string]string {
		return map[string]string{
			"vendor_id":          "CMT",
			"pickup_datetime":    "2010-08-15 12:00:00",
			"pickup_latitude":    "40.75",
			"pickup_longitude":   "-73.99",
			"store_and_fwd_flag": "Y",
		}
	}

	tests := []struct {
		name       string
		mutate     func(map[string]string)
		wantField  string
		wantReason string
	}{
		{
			"missing pickup time",
			func(f map[string]string) { f["pickup_datetime"] = "" },
			"timestamp", "missing",
		},
		{
			"garbage pickup time",
			func(f map[string]string) { f["pickup_datetime"] = "not-a-date" },
			"timestamp", "unparsable",
		},
		{
			"unknown vendor",
			func(f map[string]string) { f["vendor_id"] = "ZZZ" },
			"vendor_id", "unparsable",
		},
		{
			"garbage flag",
			func(f map[string]string) { f["store_and_fwd_flag"] = "maybe" },
			"store_and_fwd_flag", "unparsable",
		},
		{
			"unknown payment type",
			func(f map[string]string) { f["payment_type"] = "Barter" },
			"payment_type", "unparsable",
		},
		{
			"dropoff before pickup",
			func(f map[string]string) { f["dropoff_datetime"] = "2010-08-15 11:00:00" },
			"dropoff_datetime", "out_of_range",
		},
		{
			"zero duration",
			func(f map[string]string) { f["dropoff_datetime"] = "2010-08-15 12:00:00" },
			"dropoff_datetime", "out_of_range",
		},
		{
			"negative distance",
			func(f map[string]string) { f["trip_distance"] = "-1.5" },
			"trip_distance", "out_of_range",
		},
		{
			"unparsable coordinates",
			func(f map[string]string) { f["pickup_latitude"] = "north" },
			"coordinates", "unparsable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := base()
			tt.mutate(fields)
			_, err := adapter.Normalize(fields)
			var schemaErr *domain.SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, tt.wantField, schemaErr.Field)
			assert.Equal(t, tt.wantReason, schemaErr.Reason)
		})
	}
}

func TestTaxiAdapter_ImpossibleCoordsAreAbsentNotFatal(t *testing.T) {
	adapter, err := NewTaxiAdapter(2010, 8, nyLoc(t))
	require.NoError(t, err)

	tests := []struct {
		name     string
		lat, lon string
	}{
		{"latitude over 90", "91.0", "-73.99"},
		{"longitude under -180", "40.75", "-181.0"},
		{"null island placeholder", "0", "0"},
		{"empty pair", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := adapter.Normalize(map[string]string{
				"vendor_id":          "CMT",
				"pickup_datetime":    "2010-08-15 12:00:00",
				"pickup_latitude":    tt.lat,
				"pickup_longitude":   tt.lon,
				"store_and_fwd_flag": "N",
			})
			require.NoError(t, err, "impossible coords keep the row, zone-unresolved")
			assert.False(t, rec.HasCoords)
		})
	}
}

// Early 2010 files encode the flag as '*' or empty while late 2010 files use
// Y/N; both eras must normalize through the same adapter code.
func TestNormalizeStoreFwdFlag(t *testing.T) {
	tests := []struct {
		raw     string
		want    TriState
		wantErr bool
	}{
		{"Y", TriTrue, false},
		{"1", TriTrue, false},
		{"N", TriFalse, false},
		{"0", TriFalse, false},
		{"*", TriUnknown, false},
		{"", TriUnknown, false},
		{"2", TriUnknown, false},
		{"  ", TriUnknown, false},
		{"yes", TriUnknown, true},
	}
	for _, tt := range tests {
		t.Run("raw="+tt.raw, func(t *testing.T) {
			got, err := normalizeStoreFwdFlag(tt.raw)
			if tt.wantErr {
				var schemaErr *domain.SchemaError
				assert.True(t, errors.As(err, &schemaErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
