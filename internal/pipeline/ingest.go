// Package pipeline orchestrates ingestion (normalize, resolve, persist) and
// analysis (aggregate, condition, correlate) over the persisted store.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hollyoak/citysignal/internal/domain"
	"github.com/hollyoak/citysignal/internal/geo"
	"github.com/hollyoak/citysignal/internal/observability"
	"github.com/hollyoak/citysignal/internal/schema"
)

// insertBatchSize bounds memory per transaction during file ingestion.
const insertBatchSize = 500

// RecordWriter is the narrow store surface ingestion needs.
type RecordWriter interface {
	InsertRecords(ctx context.Context, recs []domain.CanonicalRecord) (int, error)
	SaveRun(ctx context.Context, r domain.RunReport) error
}

// Ingestor runs the normalize-resolve-persist pass over raw files.
// Independent files share no mutable state beyond the append-only store,
// so they run concurrently up to the worker limit.
type Ingestor struct {
	registry *schema.Registry
	resolver *geo.Resolver
	writer   RecordWriter
	crs      map[domain.Dataset]geo.CRS
	loc      *time.Location
	logger   *slog.Logger
	metrics  *observability.Metrics
	workers  int
}

// IngestorConfig carries the collaborators for NewIngestor.
type IngestorConfig struct {
	Registry *schema.Registry
	Resolver *geo.Resolver // nil disables spatial resolution
	Writer   RecordWriter
	// SourceCRS declares the coordinate reference system of each dataset's
	// raw coordinates; missing datasets default to WGS-84.
	SourceCRS map[domain.Dataset]geo.CRS
	Location  *time.Location
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Workers   int
}

// NewIngestor wires an ingestion pass.
func NewIngestor(cfg IngestorConfig) *Ingestor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	crs := cfg.SourceCRS
	if crs == nil {
		crs = map[domain.Dataset]geo.CRS{}
	}
	return &Ingestor{
		registry: cfg.Registry,
		resolver: cfg.Resolver,
		writer:   cfg.Writer,
		crs:      crs,
		loc:      cfg.Location,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		workers:  workers,
	}
}

// IngestFiles ingests each file as an independent task, bounded by the
// worker limit. Per-row problems never abort the batch; they are counted in
// each file's run report. A file-level failure (unreadable file, unknown
// layout) cancels the remaining work and is returned.
func (in *Ingestor) IngestFiles(ctx context.Context, paths []string) ([]domain.RunReport, error) {
	sources := make([]Source, len(paths))
	for i, p := range paths {
		src, err := DetectSource(p)
		if err != nil {
			return nil, err
		}
		// Taxi adapters are per year-month; register before the parallel
		// phase so the registry is read-only while workers run.
		if src.Dataset == domain.DatasetTaxi && !in.registry.Has(src.Version) {
			adapter, err := schema.NewTaxiAdapter(src.Year, src.Month, in.loc)
			if err != nil {
				return nil, err
			}
			if err := in.registry.Register(src.Version, adapter.Normalize); err != nil {
				return nil, err
			}
		}
		sources[i] = src
	}

	in.metrics.PipelineRunning.Set(1)
	defer in.metrics.PipelineRunning.Set(0)

	reports := make([]domain.RunReport, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			report, err := in.ingestFile(gctx, src)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// ingestFile runs one file end to end and persists its run report.
func (in *Ingestor) ingestFile(ctx context.Context, src Source) (domain.RunReport, error) {
	start := time.Now()
	report := domain.RunReport{
		RunID:      uuid.NewString(),
		Dataset:    src.Dataset,
		SourceFile: src.Path,
		StartedAt:  domain.Clock().Now().UTC(),
	}
	in.logger.Info("ingest started", "file", src.Path, "dataset", src.Dataset, "version", src.Version)

	batch := make([]domain.CanonicalRecord, 0, insertBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := in.writer.InsertRecords(ctx, batch)
		if err != nil {
			return err
		}
		in.metrics.RowsInserted.WithLabelValues(string(src.Dataset)).Add(float64(n))
		batch = batch[:0]
		return nil
	}

	err := readRows(src, func(fields map[string]string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.RowsIn++
		in.metrics.RowsIngested.WithLabelValues(string(src.Dataset)).Inc()

		rec, err := in.registry.Normalize(domain.RawRecord{Fields: fields, Version: src.Version})
		if err != nil {
			reason := dropReason(err)
			report.AddDrop(reason)
			in.metrics.RowsDropped.WithLabelValues(string(src.Dataset), reason).Inc()
			in.logger.Debug("row dropped", "file", src.Path, "reason", reason, "error", err)
			return nil
		}

		in.resolveZone(&rec, &report)

		report.RowsOK++
		batch = append(batch, rec)
		if len(batch) >= insertBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return domain.RunReport{}, err
	}
	if err := flush(); err != nil {
		return domain.RunReport{}, err
	}

	report.FinishedAt = domain.Clock().Now().UTC()
	if err := in.writer.SaveRun(ctx, report); err != nil {
		return domain.RunReport{}, err
	}

	in.metrics.FilesIngested.Inc()
	in.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	in.logger.Info("ingest finished",
		"file", src.Path,
		"rows_in", report.RowsIn,
		"rows_ok", report.RowsOK,
		"rows_dropped", report.RowsDropped,
		"unresolved", report.Unresolved,
		"drop_reasons", report.DropReasons,
	)
	return report, nil
}

// resolveZone assigns a zone to records that carry coordinates but no zone
// yet. Unresolved records are kept for audit but flagged; they are excluded
// from zone-keyed aggregation by their empty zone ID.
func (in *Ingestor) resolveZone(rec *domain.CanonicalRecord, report *domain.RunReport) {
	if rec.ZoneID != "" || !rec.HasCoords || in.resolver == nil {
		in.metrics.ZoneResolutions.WithLabelValues("skipped").Inc()
		return
	}
	crs, ok := in.crs[rec.Dataset]
	if !ok {
		crs = geo.CRSWGS84
	}
	zoneID, err := in.resolver.ResolveCRS(crs, rec.Lat, rec.Lon)
	if err != nil {
		if errors.Is(err, domain.ErrNoZoneFound) {
			report.Unresolved++
			in.metrics.ZoneResolutions.WithLabelValues("unresolved").Inc()
			return
		}
		// CRS misconfiguration; treat as unresolved but log loudly.
		in.logger.Warn("zone resolution failed", "error", err, "dataset", rec.Dataset)
		report.Unresolved++
		in.metrics.ZoneResolutions.WithLabelValues("unresolved").Inc()
		return
	}
	rec.ZoneID = zoneID
	in.metrics.ZoneResolutions.WithLabelValues("resolved").Inc()
}

// dropReason maps a normalization error onto a stable run-report key.
func dropReason(err error) string {
	var schemaErr *domain.SchemaError
	if errors.As(err, &schemaErr) {
		switch schemaErr.Reason {
		case "missing":
			return domain.DropMissingField
		case "unparsable":
			return domain.DropUnparsable
		case "out_of_range":
			return domain.DropOutOfRange
		default:
			return schemaErr.Reason
		}
	}
	return domain.DropUnparsable
}
