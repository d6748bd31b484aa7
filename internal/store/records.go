package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hollyoak/citysignal/internal/domain"
)

// InsertRecords writes canonical records with insert-if-absent semantics on
// the natural-key ID, inside one transaction per batch. Replayed rows are
// collapsed, which is what makes abort-and-restart ingestion safe. Returns
// the number of newly inserted rows.
func (db *DB) InsertRecords(ctx context.Context, recs []domain.CanonicalRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO canonical_records
			(id, dataset, category, ts_utc, lat, lon, zone_id, zone_resolved, measure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare record insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range recs {
		var lat, lon any
		if r.HasCoords {
			lat, lon = r.Lat, r.Lon
		}
		res, err := stmt.ExecContext(ctx,
			r.ID, string(r.Dataset), r.Category, r.Timestamp.UTC(),
			lat, lon, r.ZoneID, boolToInt(r.ZoneID != ""), r.Measure,
		)
		if err != nil {
			return inserted, fmt.Errorf("store: insert record %s: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("store: commit records: %w", err)
	}
	return inserted, nil
}

// RecordQuery selects canonical records by dataset and time range, with
// optional category and zone filters.
type RecordQuery struct {
	Dataset  domain.Dataset
	Category string // "" = any
	ZoneID   string // "" = any
	Start    time.Time
	End      time.Time // exclusive
}

// ReadRecords bulk-reads canonical records matching the query, ordered by
// timestamp.
func (db *DB) ReadRecords(ctx context.Context, q RecordQuery) ([]domain.CanonicalRecord, error) {
	sqlStr := `
		SELECT id, dataset, category, ts_utc, lat, lon, zone_id, measure
		FROM canonical_records
		WHERE dataset = ? AND ts_utc >= ? AND ts_utc < ?`
	args := []any{string(q.Dataset), q.Start.UTC(), q.End.UTC()}
	if q.Category != "" {
		sqlStr += ` AND category = ?`
		args = append(args, q.Category)
	}
	if q.ZoneID != "" {
		sqlStr += ` AND zone_id = ?`
		args = append(args, q.ZoneID)
	}
	sqlStr += ` ORDER BY ts_utc`

	rows, err := db.conn.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("store: read records: %w", err)
	}
	defer rows.Close()

	var out []domain.CanonicalRecord
	for rows.Next() {
		var (
			r        domain.CanonicalRecord
			dataset  string
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &dataset, &r.Category, &r.Timestamp, &lat, &lon, &r.ZoneID, &r.Measure); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		r.Dataset = domain.Dataset(dataset)
		r.Timestamp = r.Timestamp.UTC()
		if lat.Valid && lon.Valid {
			r.Lat, r.Lon, r.HasCoords = lat.Float64, lon.Float64, true
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
