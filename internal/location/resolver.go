// Package location resolves cleaned coordinates to durable location
// identities: proximity bucketing in front of a create-if-absent store,
// with a bounded cache so repeated rows at the same site stay in memory.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidemark-obs/obs-ingest/internal/domain"
)

// ErrUnusableCoordinates marks positions that cannot resolve to a
// location: missing or invalid after every correction was attempted.
var ErrUnusableCoordinates = errors.New("coordinates unusable for location resolution")

// Store is the persistence surface the resolver needs. FindOrCreateLocation
// must be safe under concurrent writers: two racing creators of the same
// bucket converge on one row. BackfillLocationName only sets a name where
// none exists; a location's position is immutable.
type Store interface {
	FindOrCreateLocation(ctx context.Context, lat, lon float64) (int64, error)
	BackfillLocationName(ctx context.Context, id int64, name string) error
}

// Resolver validates a raw position and maps it to a location ID.
type Resolver struct {
	store  Store
	cache  *lruCache
	region domain.Region
	logger *slog.Logger
}

// NewResolver creates a Resolver with a bucket cache of the given size.
func NewResolver(store Store, region domain.Region, cacheSize int, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		cache:  newLRUCache(cacheSize),
		region: region,
		logger: logger,
	}
}

// Region returns the configured study area.
func (r *Resolver) Region() domain.Region { return r.region }

// Resolve cleans the raw position, then finds or creates its location.
// A non-empty name is backfilled onto locations that have none. The
// returned CoordResult carries the classification regardless of outcome,
// cache hit or not, so callers can attribute corrections to their source
// file; unusable positions return ErrUnusableCoordinates.
func (r *Resolver) Resolve(ctx context.Context, lat, lon *float64, name string) (int64, domain.CoordResult, error) {
	res := domain.ValidateCoords(lat, lon, r.region)
	if !res.Usable() {
		return 0, res, fmt.Errorf("%w: %s", ErrUnusableCoordinates, res.Status)
	}

	key := bucketKey{
		lat: domain.LocationBucket(res.Lat),
		lon: domain.LocationBucket(res.Lon),
	}
	if id, ok := r.cache.get(key); ok {
		return id, res, nil
	}

	id, err := r.store.FindOrCreateLocation(ctx, res.Lat, res.Lon)
	if err != nil {
		return 0, res, fmt.Errorf("resolve location: %w", err)
	}
	if name != "" {
		if err := r.store.BackfillLocationName(ctx, id, name); err != nil {
			r.logger.Warn("location name backfill failed", "location_id", id, "error", err)
		}
	}
	r.cache.put(key, id)
	return id, res, nil
}
