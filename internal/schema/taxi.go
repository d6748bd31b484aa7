package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hollyoak/citysignal/internal/domain"
)

// TaxiVersion is the registry key for a taxi file's year-month, e.g.
// "taxi/2010-01". Layouts are shared across eras but the valid timestamp
// range (and the flag encodings observed in the wild) differ per month.
func TaxiVersion(year, month int) string {
	return fmt.Sprintf("taxi/%04d-%02d", year, month)
}

// taxiColumns returns the raw-to-canonical column translation table for the
// layout era covering the given year. Canonical names follow the TLC data
// dictionary for yellow trips.
func taxiColumns(year int) (map[string]string, error) {
	switch {
	case year == 2009:
		return map[string]string{
			"vendor_name":          "vendor_id",
			"Trip_Pickup_DateTime": "pickup_datetime",
			"Trip_Dropoff_DateTime": "dropoff_datetime",
			"Passenger_Count":      "passenger_count",
			"Trip_Distance":        "trip_distance",
			"Start_Lon":            "pickup_longitude",
			"Start_Lat":            "pickup_latitude",
			"Rate_Code":            "rate_code_id",
			"store_and_forward":    "store_and_fwd_flag",
			"End_Lon":              "dropoff_longitude",
			"End_Lat":              "dropoff_latitude",
			"Payment_Type":         "payment_type",
			"Fare_Amt":             "fare_amount",
			"Total_Amt":            "total_amount",
		}, nil
	case year >= 2010 && year <= 2013:
		return identityColumns(
			"vendor_id", "pickup_datetime", "dropoff_datetime",
			"passenger_count", "trip_distance", "pickup_longitude",
			"pickup_latitude", "rate_code", "store_and_fwd_flag",
			"dropoff_longitude", "dropoff_latitude", "payment_type",
			"fare_amount", "total_amount",
		), nil
	case year == 2014:
		// 2014 files repeat the 2010-2013 names with a leading space on
		// every header except vendor_id.
		cols := map[string]string{"vendor_id": "vendor_id"}
		for raw, canon := range identityColumns(
			"pickup_datetime", "dropoff_datetime", "passenger_count",
			"trip_distance", "pickup_longitude", "pickup_latitude",
			"rate_code", "store_and_fwd_flag", "dropoff_longitude",
			"dropoff_latitude", "payment_type", "fare_amount", "total_amount",
		) {
			cols[" "+raw] = canon
		}
		return cols, nil
	case year >= 2015 && year <= 2016:
		return map[string]string{
			"VendorID":              "vendor_id",
			"tpep_pickup_datetime":  "pickup_datetime",
			"tpep_dropoff_datetime": "dropoff_datetime",
			"passenger_count":       "passenger_count",
			"trip_distance":         "trip_distance",
			"pickup_longitude":      "pickup_longitude",
			"pickup_latitude":       "pickup_latitude",
			"RatecodeID":            "rate_code_id",
			"store_and_fwd_flag":    "store_and_fwd_flag",
			"dropoff_longitude":     "dropoff_longitude",
			"dropoff_latitude":      "dropoff_latitude",
			"payment_type":          "payment_type",
			"fare_amount":           "fare_amount",
			"total_amount":          "total_amount",
		}, nil
	case year >= 2017:
		// Lat/lon disappear from the published files; pickup and dropoff
		// are TLC zone IDs, so these records bypass spatial resolution.
		return map[string]string{
			"VendorID":              "vendor_id",
			"tpep_pickup_datetime":  "pickup_datetime",
			"tpep_dropoff_datetime": "dropoff_datetime",
			"passenger_count":       "passenger_count",
			"trip_distance":         "trip_distance",
			"RatecodeID":            "rate_code_id",
			"store_and_fwd_flag":    "store_and_fwd_flag",
			"PULocationID":          "pickup_location_id",
			"DOLocationID":          "dropoff_location_id",
			"payment_type":          "payment_type",
			"fare_amount":           "fare_amount",
			"total_amount":          "total_amount",
		}, nil
	default:
		return nil, fmt.Errorf("schema: no taxi layout for year %d", year)
	}
}

func identityColumns(names ...string) map[string]string {
	m := make(map[string]string, len(names))
	for _, n := range names {
		m[n] = n
	}
	return m
}

// vendorIDs maps raw vendor spellings to stable numeric IDs.
// 1=CMT (Creative Mobile Technologies), 2=VeriFone, 3=DDS, 4=VTS.
var vendorIDs = map[string]string{
	"CMT": "1", "DDS": "3", "VTS": "4",
	"1": "1", "2": "2", "3": "3", "4": "4",
}

// paymentTypeIDs maps the raw payment-type spellings observed across eras
// to stable numeric IDs: 1=credit, 2=cash, 3=no charge, 4=dispute,
// 5=unknown, 6=voided.
var paymentTypeIDs = map[string]string{
	"Credit": "1", "CREDIT": "1", "CRE": "1", "Cre": "1", "CRD": "1", "1": "1",
	"CASH": "2", "Cash": "2", "CAS": "2", "Cas": "2", "CSH": "2", "2": "2",
	"No": "3", "No Charge": "3", "NOC": "3", "3": "3",
	"Dis": "4", "DIS": "4", "Dispute": "4", "4": "4",
	"UNK": "5", "C": "5", "NA": "5", "5": "5",
	"Voided trip": "6", "6": "6",
}

// TriState is the canonical store-and-forward flag: true, false, or unknown.
type TriState int8

const (
	TriUnknown TriState = iota
	TriFalse
	TriTrue
)

// normalizeStoreFwdFlag maps the era-dependent flag encodings to a
// tri-state. Encodings seen in the wild:
//
//	{'Y','1'} -> true
//	{'N','0'} -> false
//	{'*','','2', whitespace} -> unknown
func normalizeStoreFwdFlag(raw string) (TriState, error) {
	switch strings.TrimSpace(raw) {
	case "Y", "1":
		return TriTrue, nil
	case "N", "0":
		return TriFalse, nil
	case "*", "", "2":
		return TriUnknown, nil
	}
	return TriUnknown, &domain.SchemaError{Field: "store_and_fwd_flag", Reason: "unparsable", Value: raw}
}

// TaxiAdapter normalizes one era of yellow-taxi trip rows. One adapter is
// registered per source file (year-month), because rows with a pickup time
// outside the file's month are rejected as out of range.
type TaxiAdapter struct {
	cols  map[string]string // raw name -> canonical name
	year  int
	month time.Month
	loc   *time.Location
}

// NewTaxiAdapter builds an adapter for one year-month file. Raw timestamps
// are wall-clock time in loc (the TLC publishes local New York time).
func NewTaxiAdapter(year, month int, loc *time.Location) (*TaxiAdapter, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("schema: invalid month %d", month)
	}
	cols, err := taxiColumns(year)
	if err != nil {
		return nil, err
	}
	return &TaxiAdapter{cols: cols, year: year, month: time.Month(month), loc: loc}, nil
}

// Normalize converts one raw trip row to a canonical record: timestamp is
// the pickup time in UTC, category is the vendor ID, measure is 1 (a trip
// is a count observation). Pure; normalizing the same row twice yields an
// identical record.
func (a *TaxiAdapter) Normalize(fields map[string]string) (domain.CanonicalRecord, error) {
	canon := a.translate(fields)

	ts, err := parseTimestamp(canon["pickup_datetime"], a.loc)
	if err != nil {
		return domain.CanonicalRecord{}, err
	}
	if err := a.checkMonth(ts); err != nil {
		return domain.CanonicalRecord{}, err
	}

	// Dropoff before or equal to pickup means a corrupt row.
	if raw := strings.TrimSpace(canon["dropoff_datetime"]); raw != "" {
		dropoff, err := parseTimestamp(raw, a.loc)
		if err == nil && !dropoff.After(ts) {
			return domain.CanonicalRecord{}, &domain.SchemaError{Field: "dropoff_datetime", Reason: "out_of_range", Value: raw}
		}
	}

	vendor, ok := vendorIDs[strings.TrimSpace(canon["vendor_id"])]
	if !ok {
		return domain.CanonicalRecord{}, &domain.SchemaError{Field: "vendor_id", Reason: "unparsable", Value: canon["vendor_id"]}
	}

	if _, err := normalizeStoreFwdFlag(canon["store_and_fwd_flag"]); err != nil {
		return domain.CanonicalRecord{}, err
	}

	if raw, present := canon["payment_type"]; present && strings.TrimSpace(raw) != "" {
		if _, ok := paymentTypeIDs[strings.TrimSpace(raw)]; !ok {
			return domain.CanonicalRecord{}, &domain.SchemaError{Field: "payment_type", Reason: "unparsable", Value: raw}
		}
	}

	if raw, present := canon["trip_distance"]; present && strings.TrimSpace(raw) != "" {
		dist, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return domain.CanonicalRecord{}, &domain.SchemaError{Field: "trip_distance", Reason: "unparsable", Value: raw}
		}
		if dist < 0 {
			return domain.CanonicalRecord{}, &domain.SchemaError{Field: "trip_distance", Reason: "out_of_range", Value: raw}
		}
	}

	rec := domain.CanonicalRecord{
		Dataset:   domain.DatasetTaxi,
		Timestamp: ts,
		Category:  vendor,
		Measure:   1,
	}

	// 2017+ rows carry a zone ID directly and skip spatial resolution.
	if zoneID := strings.TrimSpace(canon["pickup_location_id"]); zoneID != "" {
		rec.ZoneID = zoneID
	} else {
		lat, lon, ok, err := parseCoords(canon["pickup_latitude"], canon["pickup_longitude"])
		if err != nil {
			return domain.CanonicalRecord{}, err
		}
		rec.Lat, rec.Lon, rec.HasCoords = lat, lon, ok
	}

	// Dropoff fields and distance discriminate same-second trips by one
	// vendor, which the key fields alone cannot for coordless rows.
	rec.ID = domain.NewRecordID(rec.Dataset, rec.Category, rec.ZoneID, rec.Timestamp, rec.Lat, rec.Lon, rec.Measure,
		strings.TrimSpace(canon["dropoff_datetime"]),
		strings.TrimSpace(canon["dropoff_location_id"]),
		strings.TrimSpace(canon["trip_distance"]),
	)
	return rec, nil
}

// translate renames raw columns to canonical names, keeping only mapped
// columns.
func (a *TaxiAdapter) translate(fields map[string]string) map[string]string {
	out := make(map[string]string, len(a.cols))
	for raw, canon := range a.cols {
		if v, ok := fields[raw]; ok {
			out[canon] = v
		}
	}
	return out
}

// checkMonth rejects pickups outside the file's declared year-month,
// evaluated in the source location (file boundaries are local-time months).
func (a *TaxiAdapter) checkMonth(ts time.Time) error {
	local := ts.In(a.loc)
	start := time.Date(a.year, a.month, 1, 0, 0, 0, 0, a.loc)
	end := start.AddDate(0, 1, 0)
	if local.Before(start) || !local.Before(end) {
		return &domain.SchemaError{Field: "pickup_datetime", Reason: "out_of_range", Value: ts.Format(time.RFC3339)}
	}
	return nil
}

// parseCoords parses a lat/lon pair. Values outside the possible ranges
// (|lat|>90, |lon|>180) or unparsable values mean the row has no usable
// coordinates; that is not an error because the record is still useful for
// non-spatial aggregation, it just stays zone-unresolved.
func parseCoords(latRaw, lonRaw string) (lat, lon float64, ok bool, err error) {
	latRaw = strings.TrimSpace(latRaw)
	lonRaw = strings.TrimSpace(lonRaw)
	if latRaw == "" || lonRaw == "" {
		return 0, 0, false, nil
	}
	lat, errLat := strconv.ParseFloat(latRaw, 64)
	lon, errLon := strconv.ParseFloat(lonRaw, 64)
	if errLat != nil || errLon != nil {
		return 0, 0, false, &domain.SchemaError{Field: "coordinates", Reason: "unparsable", Value: latRaw + "," + lonRaw}
	}
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return 0, 0, false, nil
	}
	// (0,0) is the null island placeholder some eras emit for missing GPS.
	if lat == 0 && lon == 0 {
		return 0, 0, false, nil
	}
	return lat, lon, true, nil
}
