// Command ingest runs one ingestion pass: it enumerates observation files
// under INPUT_DIR, resolves parameter and location identities, and loads
// flagged measurement records into Postgres. Reprocessing the same inputs
// is a no-op.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tidemark-obs/obs-ingest/internal/adapter/grid"
	httpadapter "github.com/tidemark-obs/obs-ingest/internal/adapter/http"
	kafkaadapter "github.com/tidemark-obs/obs-ingest/internal/adapter/kafka"
	"github.com/tidemark-obs/obs-ingest/internal/adapter/postgres"
	"github.com/tidemark-obs/obs-ingest/internal/adapter/tabular"
	"github.com/tidemark-obs/obs-ingest/internal/catalog"
	"github.com/tidemark-obs/obs-ingest/internal/config"
	"github.com/tidemark-obs/obs-ingest/internal/domain"
	"github.com/tidemark-obs/obs-ingest/internal/enumerate"
	"github.com/tidemark-obs/obs-ingest/internal/location"
	"github.com/tidemark-obs/obs-ingest/internal/observability"
	"github.com/tidemark-obs/obs-ingest/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	seed, err := catalog.LoadSeed(cfg.CatalogSeed)
	if err != nil {
		return err
	}
	inserted, err := store.SeedCatalog(ctx, seed.Mappings)
	if err != nil {
		return err
	}
	logger.Info("catalog seeded",
		"version", seed.Version, "mappings", len(seed.Mappings), "new", inserted)

	resolver := domain.NewResolver(store, logger)
	locations := location.NewResolver(store, cfg.StudyArea, cfg.LocationCacheSize, logger)

	extractors := map[domain.SourceKind]pipeline.Extractor{
		domain.SourceTabular: tabular.New(resolver, locations, logger, metrics),
		domain.SourceGrid:    grid.New(resolver, locations, logger, metrics),
	}

	// Post-commit sink, feature-flagged via KAFKA_SINK_TOPIC / KAFKA_ENABLED.
	var sink pipeline.Sink
	var kafkaWriter *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		kafkaWriter = kafkaadapter.NewWriter(cfg, logger)
		sink = kafkaWriter
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka sink disabled")
	}

	runner := pipeline.New(extractors, store, sink, logger, metrics, cfg.BatchSize, cfg.Workers)

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, runner, runner, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	sources, err := enumerate.Sources(cfg.InputDir, logger)
	if err != nil {
		return err
	}

	summary, runErr := runner.Run(ctx, sources)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if summary.FilesFailed > 0 {
		return errors.New("run completed with failed files")
	}
	return nil
}
