package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hollyoak/citysignal/internal/domain"
)

// SaveResult persists one correlation result for a (series pair, window,
// range) key, replacing any previous run's result for the same key.
func (db *DB) SaveResult(ctx context.Context, window time.Duration, rangeStart, rangeEnd time.Time, res domain.CorrelationResult) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO correlation_results
			(series_a, series_b, window_seconds, range_start, range_end, lag, correlation, sample_size, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(series_a, series_b, window_seconds, range_start, range_end) DO UPDATE SET
			lag         = excluded.lag,
			correlation = excluded.correlation,
			sample_size = excluded.sample_size,
			computed_at = excluded.computed_at
	`, res.SeriesAKey, res.SeriesBKey, int64(window/time.Second),
		rangeStart.UTC(), rangeEnd.UTC(), res.Lag, res.Correlation, res.SampleSize, res.ComputedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: save result %s/%s: %w", res.SeriesAKey, res.SeriesBKey, err)
	}
	return nil
}

// ReadResults returns all stored correlation results, best-correlation
// first. Either series filter may be empty.
func (db *DB) ReadResults(ctx context.Context, seriesA, seriesB string) ([]domain.CorrelationResult, error) {
	sqlStr := `
		SELECT series_a, series_b, lag, correlation, sample_size, computed_at
		FROM correlation_results WHERE 1=1`
	var args []any
	if seriesA != "" {
		sqlStr += ` AND series_a = ?`
		args = append(args, seriesA)
	}
	if seriesB != "" {
		sqlStr += ` AND series_b = ?`
		args = append(args, seriesB)
	}
	sqlStr += ` ORDER BY correlation DESC`

	rows, err := db.conn.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("store: read results: %w", err)
	}
	defer rows.Close()

	var out []domain.CorrelationResult
	for rows.Next() {
		var r domain.CorrelationResult
		if err := rows.Scan(&r.SeriesAKey, &r.SeriesBKey, &r.Lag, &r.Correlation, &r.SampleSize, &r.ComputedAt); err != nil {
			return nil, fmt.Errorf("store: scan result: %w", err)
		}
		r.ComputedAt = r.ComputedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveRun persists one ingest run report.
func (db *DB) SaveRun(ctx context.Context, r domain.RunReport) error {
	reasons, err := json.Marshal(r.DropReasons)
	if err != nil {
		return fmt.Errorf("store: marshal drop reasons: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO ingest_runs
			(id, dataset, source_file, started_at, finished_at, rows_in, rows_ok, rows_dropped, unresolved, drop_reasons)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, string(r.Dataset), r.SourceFile, r.StartedAt.UTC(), r.FinishedAt.UTC(),
		r.RowsIn, r.RowsOK, r.RowsDropped, r.Unresolved, string(reasons))
	if err != nil {
		return fmt.Errorf("store: save run %s: %w", r.RunID, err)
	}
	return nil
}

// ReadRuns returns ingest run reports, most recent first.
func (db *DB) ReadRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, dataset, source_file, started_at, finished_at, rows_in, rows_ok, rows_dropped, unresolved, drop_reasons
		FROM ingest_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: read runs: %w", err)
	}
	defer rows.Close()

	var out []domain.RunReport
	for rows.Next() {
		var (
			r       domain.RunReport
			dataset string
			reasons string
		)
		if err := rows.Scan(&r.RunID, &dataset, &r.SourceFile, &r.StartedAt, &r.FinishedAt,
			&r.RowsIn, &r.RowsOK, &r.RowsDropped, &r.Unresolved, &reasons); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.Dataset = domain.Dataset(dataset)
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		if err := json.Unmarshal([]byte(reasons), &r.DropReasons); err != nil {
			return nil, fmt.Errorf("store: unmarshal drop reasons: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
