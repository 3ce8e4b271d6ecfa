// Package postgres persists the three tables owned by the ingestion core:
// parameter_mappings, locations, and measurements. Every write path is
// idempotent: inserts land on uniqueness constraints with ON CONFLICT DO
// NOTHING, so racing workers and replays converge instead of erroring.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark-obs/obs-ingest/internal/domain"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a pool against the given DSN and verifies connectivity.
func Connect(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connected")
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// ── parameter catalog ──

// SeedCatalog loads the versioned seed with insert-if-absent semantics.
// Existing rows are never mutated, so re-running with an older or newer
// seed cannot rewrite history.
func (s *Store) SeedCatalog(ctx context.Context, mappings []domain.ParameterMapping) (int64, error) {
	if len(mappings) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	const query = `INSERT INTO parameter_mappings (raw_identifier, standard_code, namespace, canonical_unit, description)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (raw_identifier) DO NOTHING`

	for _, m := range mappings {
		batch.Queue(query, m.RawIdentifier, m.StandardCode, string(m.Namespace), m.CanonicalUnit, m.Description)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	var inserted int64
	for range mappings {
		tag, err := res.Exec()
		if err != nil {
			return inserted, fmt.Errorf("seed catalog: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// Lookup implements domain.CatalogStore. rawIdentifier must already be
// normalized (the resolver and seed loader both do this).
func (s *Store) Lookup(ctx context.Context, rawIdentifier string) (domain.ParameterMapping, bool, error) {
	var m domain.ParameterMapping
	err := s.pool.QueryRow(ctx,
		`SELECT raw_identifier, standard_code, namespace, canonical_unit, description
		 FROM parameter_mappings WHERE raw_identifier = $1`,
		rawIdentifier,
	).Scan(&m.RawIdentifier, &m.StandardCode, &m.Namespace, &m.CanonicalUnit, &m.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ParameterMapping{}, false, nil
	}
	if err != nil {
		return domain.ParameterMapping{}, false, fmt.Errorf("lookup mapping: %w", err)
	}
	return m, true, nil
}

// GetOrCreate implements domain.CatalogStore. The insert lands on the
// primary key, so of two racing creators exactly one wins and the loser's
// insert degrades to the follow-up lookup.
func (s *Store) GetOrCreate(ctx context.Context, mapping domain.ParameterMapping) (domain.ParameterMapping, error) {
	var m domain.ParameterMapping
	err := s.pool.QueryRow(ctx,
		`INSERT INTO parameter_mappings (raw_identifier, standard_code, namespace, canonical_unit, description)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (raw_identifier) DO NOTHING
		 RETURNING raw_identifier, standard_code, namespace, canonical_unit, description`,
		mapping.RawIdentifier, mapping.StandardCode, string(mapping.Namespace), mapping.CanonicalUnit, mapping.Description,
	).Scan(&m.RawIdentifier, &m.StandardCode, &m.Namespace, &m.CanonicalUnit, &m.Description)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ParameterMapping{}, fmt.Errorf("create mapping: %w", err)
	}

	// Conflict: someone else created it first. Their row wins.
	existing, ok, err := s.Lookup(ctx, mapping.RawIdentifier)
	if err != nil {
		return domain.ParameterMapping{}, err
	}
	if !ok {
		return domain.ParameterMapping{}, fmt.Errorf("mapping %q vanished after conflict", mapping.RawIdentifier)
	}
	return existing, nil
}

// ── locations ──

// FindOrCreateLocation resolves a position to a durable location ID,
// inserting a row when the tolerance bucket is unoccupied. Safe under
// concurrent writers via the (lat_bucket, lon_bucket) unique constraint.
func (s *Store) FindOrCreateLocation(ctx context.Context, lat, lon float64) (int64, error) {
	latB, lonB := domain.LocationBucket(lat), domain.LocationBucket(lon)

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO locations (lat_bucket, lon_bucket, latitude, longitude)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT ON CONSTRAINT locations_bucket DO NOTHING
		 RETURNING id`,
		latB, lonB, lat, lon,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("create location: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT id FROM locations WHERE lat_bucket = $1 AND lon_bucket = $2`,
		latB, lonB,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("find location: %w", err)
	}
	return id, nil
}

// BackfillLocationName sets a location's name if it has none. Name is the
// only mutable column on a location.
func (s *Store) BackfillLocationName(ctx context.Context, id int64, name string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE locations SET name = $2 WHERE id = $1 AND name IS NULL`,
		id, name,
	)
	if err != nil {
		return fmt.Errorf("backfill location name: %w", err)
	}
	return nil
}

// ── measurements ──

// InsertMeasurements writes one batch with idempotent inserts: records
// conflicting on (ts, source_id, parameter_code, depth) are silent no-ops.
// Returns the number of rows actually inserted.
func (s *Store) InsertMeasurements(ctx context.Context, records []domain.MeasurementRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	const query = `INSERT INTO measurements (ts, parameter_code, namespace, value, unit, depth, location_id, source_id, quality_flag, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT ON CONSTRAINT measurements_identity DO NOTHING`

	for _, r := range records {
		batch.Queue(query,
			r.Timestamp, r.ParameterCode, string(r.Namespace), r.Value, r.Unit,
			r.Depth, r.LocationID, r.SourceID, string(r.QualityFlag), r.IngestedAt,
		)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	var inserted int64
	for range records {
		tag, err := res.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert measurements: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// StoredFlag is one row of the re-evaluation scan: just enough to recompute
// a quality flag.
type StoredFlag struct {
	ID            int64
	ParameterCode string
	Value         float64
	Depth         *float64
	QualityFlag   domain.QualityFlag
}

// PageMeasurements returns up to limit measurement rows with id > afterID,
// ordered by id. Used by the explicit re-evaluation pass to walk the table
// in bounded pages.
func (s *Store) PageMeasurements(ctx context.Context, afterID int64, limit int) ([]StoredFlag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, parameter_code, value, depth, quality_flag
		 FROM measurements WHERE id > $1 ORDER BY id LIMIT $2`,
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("page measurements: %w", err)
	}
	defer rows.Close()

	var out []StoredFlag
	for rows.Next() {
		var f StoredFlag
		if err := rows.Scan(&f.ID, &f.ParameterCode, &f.Value, &f.Depth, &f.QualityFlag); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateFlags rewrites quality flags for the given rows. Only the explicit
// re-evaluation pass calls this; flags never change during ingestion.
func (s *Store) UpdateFlags(ctx context.Context, updates map[int64]domain.QualityFlag) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for id, flag := range updates {
		batch.Queue(`UPDATE measurements SET quality_flag = $2 WHERE id = $1`, id, string(flag))
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range updates {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("update flags: %w", err)
		}
	}
	return nil
}

// CountMeasurements returns the total number of stored measurements.
func (s *Store) CountMeasurements(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM measurements`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count measurements: %w", err)
	}
	return n, nil
}
