// Command reflag re-evaluates quality flags across the whole measurements
// table against the current plausibility rules. Ingestion never rewrites a
// stored flag; this explicit pass is the only way flags change after the
// rules are updated.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./cmd/reflag [-page-size 5000] [-dry-run]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tidemark-obs/obs-ingest/internal/adapter/postgres"
	"github.com/tidemark-obs/obs-ingest/internal/domain"
	"github.com/tidemark-obs/obs-ingest/internal/observability"
)

func main() {
	pageSize := flag.Int("page-size", 5000, "rows scanned per page")
	dryRun := flag.Bool("dry-run", false, "report changes without writing them")
	flag.Parse()

	logger := observability.NewLogger(
		envOrDefault("LOG_LEVEL", "info"),
		envOrDefault("LOG_FORMAT", "text"),
	)

	if err := run(logger, *pageSize, *dryRun); err != nil {
		logger.Error("reflag failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, pageSize int, dryRun bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Connect(ctx, os.Getenv("DATABASE_URL"), logger)
	if err != nil {
		return err
	}
	defer store.Close()

	total, err := store.CountMeasurements(ctx)
	if err != nil {
		return err
	}
	logger.Info("re-evaluation started", "rows", total, "page_size", pageSize, "dry_run", dryRun)

	var scanned, changed int64
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := store.PageMeasurements(ctx, afterID, pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		afterID = page[len(page)-1].ID
		scanned += int64(len(page))

		updates := make(map[int64]domain.QualityFlag)
		for _, row := range page {
			next := domain.EvaluateQuality(row.ParameterCode, row.Value, row.Depth)
			if next != row.QualityFlag {
				updates[row.ID] = next
			}
		}
		changed += int64(len(updates))

		if dryRun || len(updates) == 0 {
			continue
		}
		if err := store.UpdateFlags(ctx, updates); err != nil {
			return err
		}
	}

	logger.Info("re-evaluation finished", "scanned", scanned, "changed", changed, "dry_run", dryRun)
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
