// Package domain models the canonical representation of the three datasets
// studied around the Hurricane Sandy landfall window: social-media posts,
// NYC TLC taxi trip records, and NYISO regional power-load records.
//
// # Data Sources
//
// Taxi trips come from the NYC Taxi & Limousine Commission monthly trip
// record CSVs. The column layout drifted over the years; the schema package
// maintains one adapter per layout era:
//
//	2009       "Trip_Pickup_DateTime", "Start_Lon", "vendor_name", ...
//	2010-2013  "pickup_datetime", "pickup_longitude", "vendor_id", ...
//	2014       same names, but every header carries a leading space
//	2015-2016  "tpep_pickup_datetime", "VendorID", "RatecodeID", ...
//	2017+      "PULocationID"/"DOLocationID" replace lat/lon entirely
//
// Social-media posts arrive as newline-delimited JSON documents with a
// created-at timestamp, optional point coordinates, text, and hashtag
// entities. Posts are tagged with a keyword category (token or hashtag
// match); posts matching no configured keyword are dropped with a counted
// reason.
//
// Power-load records are NYISO integrated real-time load CSVs: one row per
// (timestamp, load zone), with an explicit EDT/EST designator column because
// the raw timestamps are wall-clock New York time. Load zones are fixed
// reference data, so load records skip spatial resolution.
//
// # Flag Conventions
//
// The taxi store-and-forward flag alternates encoding by era:
//
//	{'Y','1'} -> true, {'N','0'} -> false, {'*','','2',whitespace} -> unknown
//
// Anything else is a schema error. Vendor codes ("CMT", "DDS", "VTS") and
// payment-type spellings ("Credit", "CRD", "CSH", "No Charge", ...) are
// mapped to stable numeric IDs; see the schema package mapping tables.
//
// # Timestamps
//
// Every canonical timestamp is UTC. Taxi and post timestamps are parsed in
// the source's declared location (America/New_York by default) and
// converted; load rows convert via their designator column.
//
// # ID Generation
//
// Record IDs are deterministic SHA-256 hashes of
// dataset|category|zone|timestamp|lat|lon|measure plus per-source
// discriminators (taxi dropoff time, dropoff zone, and trip distance; the
// post document ID). This makes ingestion idempotent: re-reading a file
// produces the same IDs, and the store's insert-if-absent write collapses
// duplicates. The discriminators matter for rows without coordinates, where
// the key fields alone would merge distinct same-second observations. See
// [NewRecordID].
package domain
