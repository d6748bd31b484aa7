// Command citysignal ingests raw urban activity archives, resolves records
// to zones, aggregates them into time-window buckets, and searches series
// pairs for their best cross-correlation lag.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/hollyoak/citysignal/internal/adapter/fetch"
	"github.com/hollyoak/citysignal/internal/adapter/httpapi"
	"github.com/hollyoak/citysignal/internal/adapter/kafkaout"
	"github.com/hollyoak/citysignal/internal/config"
	"github.com/hollyoak/citysignal/internal/domain"
	"github.com/hollyoak/citysignal/internal/geo"
	"github.com/hollyoak/citysignal/internal/observability"
	"github.com/hollyoak/citysignal/internal/pipeline"
	"github.com/hollyoak/citysignal/internal/schema"
	"github.com/hollyoak/citysignal/internal/store"
)

func main() {
	cmd := &cli.Command{
		Name:  "citysignal",
		Usage: "Batch pipeline correlating urban activity signals across taxi trips, social posts, and power load",
		Commands: []*cli.Command{
			{
				Name:      "fetch",
				Usage:     "Download raw archives from a URL manifest",
				ArgsUsage: "<manifest> <dest-dir>",
				Action:    runFetch,
			},
			{
				Name:      "ingest",
				Usage:     "Normalize raw files into canonical records",
				ArgsUsage: "<file>...",
				Flags:     []cli.Flag{analysisFlag},
				Action:    runIngest,
			},
			{
				Name:      "watch",
				Usage:     "Watch a drop directory and ingest files as they arrive",
				ArgsUsage: "<dir>",
				Flags:     []cli.Flag{analysisFlag},
				Action:    runWatch,
			},
			{
				Name:   "analyze",
				Usage:  "Aggregate, condition, and correlate the configured series pairs",
				Flags:  []cli.Flag{analysisFlag},
				Action: runAnalyze,
			},
			{
				Name:   "serve",
				Usage:  "Serve the query API and metrics endpoints",
				Action: runServe,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var analysisFlag = &cli.StringFlag{
	Name:    "analysis",
	Aliases: []string{"a"},
	Usage:   "Path to the analysis definition YAML",
	Value:   "analysis.yaml",
	Sources: cli.EnvVars("ANALYSIS_CONFIG"),
}

func runFetch(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return errors.New("usage: citysignal fetch <manifest> <dest-dir>")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	report, err := fetch.NewFetcher(logger).FetchList(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
	if err != nil {
		return err
	}
	logger.Info("fetch complete", "downloaded", report.Downloaded, "skipped", report.Skipped)
	return nil
}

func runIngest(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return errors.New("usage: citysignal ingest <file>...")
	}
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	reports, err := app.ingestor.IngestFiles(ctx, cmd.Args().Slice())
	if err != nil {
		return err
	}
	for _, r := range reports {
		app.logger.Info("run complete",
			"run_id", r.RunID, "file", r.SourceFile,
			"rows_in", r.RowsIn, "rows_ok", r.RowsOK, "rows_dropped", r.RowsDropped,
		)
	}
	return nil
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("usage: citysignal watch <dir>")
	}
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	return pipeline.Watch(ctx, app.ingestor, cmd.Args().Get(0), app.logger)
}

func runAnalyze(ctx context.Context, cmd *cli.Command) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	// A nil *Publisher must stay a nil interface inside the analyzer.
	var publisher pipeline.ResultPublisher
	if app.publisher != nil {
		publisher = app.publisher
	}
	analyzer := pipeline.NewAnalyzer(app.db, publisher, app.logger, app.metrics)
	results, err := analyzer.Run(ctx, app.analysis)
	if err != nil {
		return err
	}
	for _, r := range results {
		app.logger.Info("correlation",
			"series_a", r.SeriesAKey, "series_b", r.SeriesBKey,
			"lag", r.Lag, "correlation", r.Correlation, "sample_size", r.SampleSize,
		)
	}
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	observability.NewMetrics()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := httpapi.NewServer(cfg.HTTPAddr, db, readiness{db}, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// readiness reports ready once the store answers queries.
type readiness struct {
	db *store.DB
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	_, err := r.db.ReadRuns(ctx, 1)
	return err
}

// app bundles the wiring shared by ingest, watch, and analyze.
type app struct {
	cfg       *config.Config
	analysis  *config.AnalysisConfig
	db        *store.DB
	ingestor  *pipeline.Ingestor
	publisher *kafkaout.Publisher // nil when Kafka is disabled
	logger    *slog.Logger
	metrics   *observability.Metrics
	closers   []func() error
}

func newApp(cmd *cli.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	analysis, err := config.LoadAnalysis(cmd.String("analysis"))
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, analysis: analysis, db: db, logger: logger, metrics: metrics}
	a.closers = append(a.closers, db.Close)

	var resolver *geo.Resolver
	if cfg.ZoneFile != "" {
		crs, err := geo.ParseCRS(cfg.ZoneCRS)
		if err != nil {
			a.Close()
			return nil, err
		}
		zones, err := geo.LoadZones(cfg.ZoneFile, cfg.ZoneIDProp, cfg.ZoneNameProp, crs)
		if err != nil {
			a.Close()
			return nil, err
		}
		resolver = geo.NewResolver(zones, cfg.ZoneTolerance)
		logger.Info("zones loaded", "file", cfg.ZoneFile, "count", len(zones))
	} else {
		logger.Info("zone resolution disabled, ZONE_FILE not set")
	}

	loc := cfg.Location()
	registry := schema.NewRegistry()
	posts := schema.NewPostAdapter(analysis.Keywords, analysis.Hashtags, loc)
	if err := registry.Register(schema.PostsVersion, posts.Normalize); err != nil {
		a.Close()
		return nil, err
	}
	load := schema.NewLoadAdapter(analysis.LoadZones)
	if err := registry.Register(schema.LoadVersion, load.Normalize); err != nil {
		a.Close()
		return nil, err
	}

	sourceCRS := make(map[domain.Dataset]geo.CRS, len(analysis.SourceCRS))
	for ds, name := range analysis.SourceCRS {
		crs, err := geo.ParseCRS(name)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("source_crs[%s]: %w", ds, err)
		}
		sourceCRS[domain.Dataset(ds)] = crs
	}

	a.ingestor = pipeline.NewIngestor(pipeline.IngestorConfig{
		Registry:  registry,
		Resolver:  resolver,
		Writer:    db,
		SourceCRS: sourceCRS,
		Location:  loc,
		Logger:    logger,
		Metrics:   metrics,
		Workers:   cfg.IngestWorkers,
	})

	if cfg.KafkaEnabled {
		a.publisher = kafkaout.NewPublisher(cfg.KafkaBrokers, cfg.KafkaResultsTopic, logger)
		a.closers = append(a.closers, a.publisher.Close)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaResultsTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	return a, nil
}

// Close releases app resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("close error", "error", err)
		}
	}
}
