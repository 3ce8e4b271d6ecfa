// Package pipeline orchestrates an ingest run: a worker pool fans source
// files out to format extractors, and a per-file batch loader flags and
// persists the resulting records.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tidemark-obs/obs-ingest/internal/domain"
	"github.com/tidemark-obs/obs-ingest/internal/observability"
)

// DefaultBatchSize is the insert batch size used when the configuration
// does not override it.
const DefaultBatchSize = 1000

// Extractor turns one source file into a stream of measurement records.
type Extractor interface {
	Extract(ctx context.Context, src domain.Source, emit func(domain.MeasurementRecord) error) (domain.ExtractStats, error)
}

// MeasurementStore writes record batches. Inserts are idempotent: rows that
// collide on the measurement identity are dropped, and the returned count
// covers new rows only.
type MeasurementStore interface {
	InsertMeasurements(ctx context.Context, records []domain.MeasurementRecord) (int64, error)
}

// Sink receives successfully persisted batches. Publication is best effort
// and never fails the run.
type Sink interface {
	Publish(ctx context.Context, records []domain.MeasurementRecord) error
}

// RunSummary is the aggregate outcome of one ingest run.
type RunSummary struct {
	RunID          string
	FilesProcessed int
	FilesFailed    int
	RowsRead       int
	Extracted      int
	Inserted       int64
	Duplicates     int64
	BatchesFailed  int
	Skipped        map[string]int
	Flags          map[domain.QualityFlag]int
	Elapsed        time.Duration
}

// Runner drives a full ingest run over a set of source files.
type Runner struct {
	extractors map[domain.SourceKind]Extractor
	store      MeasurementStore
	sink       Sink
	logger     *slog.Logger
	metrics    *observability.Metrics
	ready      atomic.Bool
	last       atomic.Pointer[RunSummary]
	batchSize  int
	workers    int
}

// New creates a Runner. sink may be nil. batchSize and workers fall back to
// sane defaults when non-positive.
func New(
	extractors map[domain.SourceKind]Extractor,
	store MeasurementStore,
	sink Sink,
	logger *slog.Logger,
	metrics *observability.Metrics,
	batchSize, workers int,
) *Runner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		extractors: extractors,
		store:      store,
		sink:       sink,
		logger:     logger,
		metrics:    metrics,
		batchSize:  batchSize,
		workers:    workers,
	}
}

// LastSummary returns the most recently completed run's summary, if any.
func (r *Runner) LastSummary() (RunSummary, bool) {
	if s := r.last.Load(); s != nil {
		return *s, true
	}
	return RunSummary{}, false
}

// CheckReadiness returns nil once the run has persisted at least one batch,
// or an error describing why the service is not yet ready.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("ingest has not persisted any records yet")
	}
	return nil
}

// Run processes every source, bounded by the worker limit. A file-level
// failure is logged and counted without stopping the run; only context
// cancellation aborts early. The summary reflects whatever completed.
func (r *Runner) Run(ctx context.Context, sources []domain.Source) (RunSummary, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)
	logger.Info("ingest run started",
		"files", len(sources), "workers", r.workers, "batch_size", r.batchSize)
	r.metrics.IngestRunning.Set(1)
	defer r.metrics.IngestRunning.Set(0)

	var (
		mu      sync.Mutex
		summary = RunSummary{
			RunID:   runID,
			Skipped: make(map[string]int),
			Flags:   make(map[domain.QualityFlag]int),
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, src := range sources {
		g.Go(func() error {
			out, err := r.processSource(gctx, src)
			mu.Lock()
			defer mu.Unlock()
			summary.merge(out)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				summary.FilesFailed++
				r.metrics.FilesFailed.Inc()
				logger.Error("source failed", "source", src.ID, "path", src.Path, "error", err)
				return nil
			}
			summary.FilesProcessed++
			return nil
		})
	}

	err := g.Wait()
	summary.Elapsed = time.Since(start)
	r.last.Store(&summary)

	logger.Info("ingest run finished",
		"files_processed", summary.FilesProcessed,
		"files_failed", summary.FilesFailed,
		"extracted", summary.Extracted,
		"inserted", summary.Inserted,
		"duplicates", summary.Duplicates,
		"skipped", summary.SkippedTotal(),
		"batches_failed", summary.BatchesFailed,
		"elapsed", summary.Elapsed,
	)
	return summary, err
}

// processSource extracts one file through a fresh batch loader.
func (r *Runner) processSource(ctx context.Context, src domain.Source) (fileOutcome, error) {
	start := time.Now()

	extractor, ok := r.extractors[src.Kind]
	if !ok {
		return fileOutcome{}, errors.New("no extractor for source kind " + string(src.Kind))
	}

	loader := &batchLoader{
		ctx:       ctx,
		store:     r.store,
		sink:      r.sink,
		logger:    r.logger.With("source", src.ID),
		metrics:   r.metrics,
		batchSize: r.batchSize,
		flags:     make(map[domain.QualityFlag]int),
	}

	stats, err := extractor.Extract(ctx, src, loader.add)
	out := fileOutcome{stats: stats, loader: loader}
	if err != nil {
		return out, err
	}
	if err := loader.flush(); err != nil {
		return out, err
	}

	if loader.inserted > 0 {
		r.ready.Store(true)
	}
	r.metrics.FilesProcessed.Inc()
	r.metrics.FileDuration.Observe(time.Since(start).Seconds())
	r.metrics.RecordsExtracted.Add(float64(stats.Emitted))
	for reason, n := range stats.Skipped {
		r.metrics.RecordsSkipped.WithLabelValues(reason).Add(float64(n))
	}

	r.logger.Info("source processed",
		"source", src.ID,
		"rows", stats.RowsRead,
		"extracted", stats.Emitted,
		"inserted", loader.inserted,
		"skipped", stats.SkippedTotal(),
		"elapsed", time.Since(start),
	)
	return out, nil
}

// fileOutcome carries one file's contribution to the run summary.
type fileOutcome struct {
	stats  domain.ExtractStats
	loader *batchLoader
}

func (s *RunSummary) merge(out fileOutcome) {
	s.RowsRead += out.stats.RowsRead
	s.Extracted += out.stats.Emitted
	for reason, n := range out.stats.Skipped {
		s.Skipped[reason] += n
	}
	if out.loader == nil {
		return
	}
	s.Inserted += out.loader.inserted
	s.Duplicates += out.loader.attempted - out.loader.inserted
	s.BatchesFailed += out.loader.failedBatches
	for flag, n := range out.loader.flags {
		s.Flags[flag] += n
	}
}

// SkippedTotal sums skips across reasons.
func (s *RunSummary) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// batchLoader buffers records, assigns write-time quality flags, and
// persists full batches. One loader serves one file; it is not safe for
// concurrent use.
type batchLoader struct {
	ctx       context.Context
	store     MeasurementStore
	sink      Sink
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int

	buf           []domain.MeasurementRecord
	flags         map[domain.QualityFlag]int
	attempted     int64
	inserted      int64
	failedBatches int
}

// add enriches one record and buffers it, flushing when the batch is full.
func (l *batchLoader) add(rec domain.MeasurementRecord) error {
	rec.QualityFlag = domain.EvaluateQuality(rec.ParameterCode, rec.Value, rec.Depth)
	rec.IngestedAt = domain.Now()
	l.flags[rec.QualityFlag]++
	l.metrics.FlagsAssigned.WithLabelValues(string(rec.QualityFlag)).Inc()

	l.buf = append(l.buf, rec)
	if len(l.buf) >= l.batchSize {
		return l.flush()
	}
	return nil
}

// flush writes the buffered batch. An insert failure drops the batch,
// counts it, and lets the file continue; only cancellation is fatal.
func (l *batchLoader) flush() error {
	if len(l.buf) == 0 {
		return nil
	}
	if err := l.ctx.Err(); err != nil {
		return err
	}

	batch := l.buf
	l.buf = nil

	n, err := l.store.InsertMeasurements(l.ctx, batch)
	if err != nil {
		l.failedBatches++
		l.metrics.BatchesFailed.Inc()
		l.logger.Error("insert batch failed, dropping batch",
			"batch_size", len(batch), "error", err)
		return l.ctx.Err()
	}

	l.attempted += int64(len(batch))
	l.inserted += n
	l.metrics.RecordsInserted.Add(float64(n))
	l.metrics.BatchSize.Observe(float64(len(batch)))

	if l.sink != nil && n > 0 {
		if err := l.sink.Publish(l.ctx, batch); err != nil {
			l.logger.Warn("sink publish failed", "batch_size", len(batch), "error", err)
		}
	}
	return nil
}
