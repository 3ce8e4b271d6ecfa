package postgres

import (
	"context"
	"fmt"
)

// Schema owned by this service. No external migration tooling: tables are
// created idempotently at startup. The measurements identity constraint
// uses NULLS NOT DISTINCT (Postgres 15+) so a NULL depth still dedupes.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS parameter_mappings (
		raw_identifier TEXT PRIMARY KEY,
		standard_code  TEXT NOT NULL,
		namespace      TEXT NOT NULL,
		canonical_unit TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		lat_bucket BIGINT NOT NULL,
		lon_bucket BIGINT NOT NULL,
		latitude   DOUBLE PRECISION NOT NULL,
		longitude  DOUBLE PRECISION NOT NULL,
		name       TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT locations_bucket UNIQUE (lat_bucket, lon_bucket)
	)`,
	`CREATE TABLE IF NOT EXISTS measurements (
		id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		ts             TIMESTAMPTZ NOT NULL,
		parameter_code TEXT NOT NULL,
		namespace      TEXT NOT NULL,
		value          DOUBLE PRECISION NOT NULL,
		unit           TEXT NOT NULL,
		depth          DOUBLE PRECISION,
		location_id    BIGINT NOT NULL REFERENCES locations(id),
		source_id      TEXT NOT NULL,
		quality_flag   TEXT NOT NULL,
		ingested_at    TIMESTAMPTZ NOT NULL,
		CONSTRAINT measurements_identity
			UNIQUE NULLS NOT DISTINCT (ts, source_id, parameter_code, depth)
	)`,
	`CREATE INDEX IF NOT EXISTS measurements_location_ts
		ON measurements (location_id, ts)`,
}

// EnsureSchema creates the service's tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
