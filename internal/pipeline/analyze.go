package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hollyoak/citysignal/internal/aggregate"
	"github.com/hollyoak/citysignal/internal/config"
	"github.com/hollyoak/citysignal/internal/correlate"
	"github.com/hollyoak/citysignal/internal/domain"
	"github.com/hollyoak/citysignal/internal/observability"
	"github.com/hollyoak/citysignal/internal/series"
	"github.com/hollyoak/citysignal/internal/store"
)

// AnalysisStore is the store surface an analysis pass reads and writes.
type AnalysisStore interface {
	ReadRecords(ctx context.Context, q store.RecordQuery) ([]domain.CanonicalRecord, error)
	UpsertBuckets(ctx context.Context, window time.Duration, buckets []domain.Bucket) error
	SaveResult(ctx context.Context, window time.Duration, rangeStart, rangeEnd time.Time, res domain.CorrelationResult) error
}

// ResultPublisher pushes finished correlation results to an external sink.
type ResultPublisher interface {
	PublishResult(ctx context.Context, res domain.CorrelationResult) error
}

// seriesCacheSize bounds the conditioned-series cache; an analysis rarely
// touches more than a few hundred distinct series.
const seriesCacheSize = 256

// Analyzer runs one analysis pass: aggregate canonical records into buckets,
// condition the requested series, and search each configured pair for its
// best lag.
type Analyzer struct {
	store     AnalysisStore
	publisher ResultPublisher // nil disables publishing
	logger    *slog.Logger
	metrics   *observability.Metrics
	cache     *seriesCache
}

// NewAnalyzer wires an analysis pass. publisher may be nil.
func NewAnalyzer(st AnalysisStore, publisher ResultPublisher, logger *slog.Logger, metrics *observability.Metrics) *Analyzer {
	return &Analyzer{
		store:     st,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		cache:     newSeriesCache(seriesCacheSize),
	}
}

// Run executes the configured analysis. Pairs whose series cannot support a
// single qualifying lag are reported and skipped; they do not abort the
// pass. Returns the results that were computed.
func (a *Analyzer) Run(ctx context.Context, cfg *config.AnalysisConfig) ([]domain.CorrelationResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: analysis config: %w", err)
	}

	a.metrics.PipelineRunning.Set(1)
	defer a.metrics.PipelineRunning.Set(0)

	opts := series.Options{
		Transform:    series.Transform(cfg.Transform),
		Differencing: cfg.Differencing,
	}
	if opts.Transform == "" {
		opts.Transform = series.TransformNone
	}

	// Aggregate each dataset named by a pair exactly once.
	bucketsByDataset := make(map[domain.Dataset]map[string][]domain.Bucket)
	for _, p := range cfg.Pairs {
		for _, ds := range []string{p.DatasetA, p.DatasetB} {
			dataset := domain.Dataset(ds)
			if !dataset.Valid() {
				return nil, fmt.Errorf("pipeline: unknown dataset %q in pair", ds)
			}
			if _, done := bucketsByDataset[dataset]; done {
				continue
			}
			byKey, err := a.aggregateDataset(ctx, dataset, cfg)
			if err != nil {
				return nil, err
			}
			bucketsByDataset[dataset] = byKey
		}
	}

	var results []domain.CorrelationResult
	for _, p := range cfg.Pairs {
		res, err := a.correlatePair(ctx, p, bucketsByDataset, cfg, opts)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientSample) {
				a.metrics.CorrelationsSkipped.Inc()
				a.logger.Warn("pair skipped, insufficient overlap",
					"series_a", seriesName(p.DatasetA, p.KeyA),
					"series_b", seriesName(p.DatasetB, p.KeyB),
				)
				continue
			}
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// aggregateDataset reads one dataset's canonical records over the analysis
// range, buckets them, and persists the buckets. Returns buckets grouped by
// series key.
func (a *Analyzer) aggregateDataset(ctx context.Context, dataset domain.Dataset, cfg *config.AnalysisConfig) (map[string][]domain.Bucket, error) {
	recs, err := a.store.ReadRecords(ctx, store.RecordQuery{
		Dataset: dataset,
		Start:   cfg.RangeStart,
		End:     cfg.RangeEnd,
	})
	if err != nil {
		return nil, err
	}

	agg, err := aggregate.New(dataset, cfg.WindowWidth, policyFor(dataset, cfg), keyingFor(dataset, cfg))
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		agg.Add(r)
	}
	buckets := agg.Buckets()

	if err := a.store.UpsertBuckets(ctx, cfg.WindowWidth, buckets); err != nil {
		return nil, err
	}
	a.logger.Info("dataset aggregated",
		"dataset", dataset, "records", len(recs), "buckets", len(buckets), "window", cfg.WindowWidth,
	)

	byKey := make(map[string][]domain.Bucket)
	for _, b := range buckets {
		byKey[b.Key] = append(byKey[b.Key], b)
	}
	return byKey, nil
}

// correlatePair conditions both series of one pair and searches the lag
// window. The result is persisted and, when a publisher is wired, pushed to
// the external sink.
func (a *Analyzer) correlatePair(ctx context.Context, p config.SeriesPair, buckets map[domain.Dataset]map[string][]domain.Bucket, cfg *config.AnalysisConfig, opts series.Options) (domain.CorrelationResult, error) {
	condA, err := a.condition(domain.Dataset(p.DatasetA), p.KeyA, buckets, cfg, opts)
	if err != nil {
		return domain.CorrelationResult{}, err
	}
	condB, err := a.condition(domain.Dataset(p.DatasetB), p.KeyB, buckets, cfg, opts)
	if err != nil {
		return domain.CorrelationResult{}, err
	}

	search, err := correlate.Search(condA.Series, condB.Series, cfg.MaxLag, cfg.MinSamples)
	if err != nil {
		return domain.CorrelationResult{}, err
	}

	res := search.ToResult(seriesName(p.DatasetA, p.KeyA), seriesName(p.DatasetB, p.KeyB))
	if err := a.store.SaveResult(ctx, cfg.WindowWidth, cfg.RangeStart, cfg.RangeEnd, res); err != nil {
		return domain.CorrelationResult{}, err
	}
	a.metrics.CorrelationsComputed.Inc()
	a.logger.Info("pair correlated",
		"series_a", res.SeriesAKey,
		"series_b", res.SeriesBKey,
		"lag", res.Lag,
		"correlation", res.Correlation,
		"sample_size", res.SampleSize,
		"skipped_lags", len(search.SkippedLags),
	)

	if a.publisher != nil {
		if err := a.publisher.PublishResult(ctx, res); err != nil {
			// Publishing is a side channel; the stored result is the record
			// of truth, so a sink outage only warns.
			a.logger.Warn("result publish failed", "error", err, "series_a", res.SeriesAKey)
		}
	}
	return res, nil
}

// condition builds (or reuses) one conditioned series.
func (a *Analyzer) condition(dataset domain.Dataset, key string, buckets map[domain.Dataset]map[string][]domain.Bucket, cfg *config.AnalysisConfig, opts series.Options) (*series.Conditioned, error) {
	cacheKey := fmt.Sprintf("%s|%s|%d|%d|%d|%s|%d",
		dataset, key, int64(cfg.WindowWidth/time.Second),
		cfg.RangeStart.Unix(), cfg.RangeEnd.Unix(), opts.Transform, opts.Differencing,
	)
	if cond, ok := a.cache.get(cacheKey); ok {
		a.metrics.SeriesCache.WithLabelValues("hit").Inc()
		return cond, nil
	}
	a.metrics.SeriesCache.WithLabelValues("miss").Inc()

	cond, err := series.Condition(key, buckets[dataset][key], cfg.RangeStart, cfg.RangeEnd, cfg.WindowWidth, opts)
	if err != nil {
		return nil, fmt.Errorf("pipeline: condition %s: %w", seriesName(string(dataset), key), err)
	}
	a.cache.put(cacheKey, cond)
	return cond, nil
}

// policyFor resolves the aggregation policy for a dataset, with overrides
// from the analysis config.
func policyFor(dataset domain.Dataset, cfg *config.AnalysisConfig) aggregate.Policy {
	if p, ok := cfg.Policies[string(dataset)]; ok {
		return aggregate.Policy(p)
	}
	if dataset == domain.DatasetLoad {
		return aggregate.PolicyMean
	}
	return aggregate.PolicyCount
}

// keyingFor resolves the bucket keying for a dataset. Posts default to
// category (the matched keyword); taxi and load default to zone.
func keyingFor(dataset domain.Dataset, cfg *config.AnalysisConfig) aggregate.KeyFunc {
	keying, ok := cfg.Keyings[string(dataset)]
	if !ok {
		if dataset == domain.DatasetPosts {
			keying = "category"
		} else {
			keying = "zone"
		}
	}
	if keying == "category" {
		return aggregate.ByCategory
	}
	return aggregate.ByZone
}

// seriesName is the stable "dataset:key" identifier used in stored results.
func seriesName(dataset, key string) string {
	return dataset + ":" + key
}
