package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hollyoak/citysignal/internal/domain"
)

// UpsertBuckets writes bucket aggregates for one (dataset, window) pass.
// Re-running an analysis replaces the previous values for the same windows;
// the uniqueness constraint guarantees at most one row per (key, window).
func (db *DB) UpsertBuckets(ctx context.Context, window time.Duration, buckets []domain.Bucket) error {
	if len(buckets) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO buckets (dataset, window_seconds, key, window_start, value, count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset, window_seconds, key, window_start) DO UPDATE SET
			value = excluded.value,
			count = excluded.count
	`)
	if err != nil {
		return fmt.Errorf("store: prepare bucket upsert: %w", err)
	}
	defer stmt.Close()

	winSec := int64(window / time.Second)
	for _, b := range buckets {
		if _, err := stmt.ExecContext(ctx,
			string(b.Dataset), winSec, b.Key, b.WindowStart.UTC(), b.Value, b.Count,
		); err != nil {
			return fmt.Errorf("store: upsert bucket %s/%s: %w", b.Dataset, b.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit buckets: %w", err)
	}
	return nil
}

// ReadBuckets returns the buckets for one (dataset, window, key) within
// [start, end), ordered by window start.
func (db *DB) ReadBuckets(ctx context.Context, dataset domain.Dataset, window time.Duration, key string, start, end time.Time) ([]domain.Bucket, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT dataset, key, window_start, value, count
		FROM buckets
		WHERE dataset = ? AND window_seconds = ? AND key = ?
		  AND window_start >= ? AND window_start < ?
		ORDER BY window_start
	`, string(dataset), int64(window/time.Second), key, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: read buckets: %w", err)
	}
	defer rows.Close()

	var out []domain.Bucket
	for rows.Next() {
		var (
			b  domain.Bucket
			ds string
		)
		if err := rows.Scan(&ds, &b.Key, &b.WindowStart, &b.Value, &b.Count); err != nil {
			return nil, fmt.Errorf("store: scan bucket: %w", err)
		}
		b.Dataset = domain.Dataset(ds)
		b.WindowStart = b.WindowStart.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// BucketKeys lists the distinct keys present for one (dataset, window).
func (db *DB) BucketKeys(ctx context.Context, dataset domain.Dataset, window time.Duration) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT key FROM buckets
		WHERE dataset = ? AND window_seconds = ?
		ORDER BY key
	`, string(dataset), int64(window/time.Second))
	if err != nil {
		return nil, fmt.Errorf("store: bucket keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
