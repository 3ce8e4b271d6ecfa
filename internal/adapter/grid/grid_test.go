package grid

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-obs/obs-ingest/internal/domain"
	"github.com/tidemark-obs/obs-ingest/internal/location"
	"github.com/tidemark-obs/obs-ingest/internal/observability"
)

var testRegion = domain.Region{LatMin: -45, LatMax: -39, LonMin: 143, LonMax: 150}

type memCatalog struct {
	mu       sync.Mutex
	mappings map[string]domain.ParameterMapping
}

func (c *memCatalog) Lookup(_ context.Context, raw string) (domain.ParameterMapping, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.mappings[raw]
	return m, ok, nil
}

func (c *memCatalog) GetOrCreate(_ context.Context, m domain.ParameterMapping) (domain.ParameterMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mappings == nil {
		c.mappings = make(map[string]domain.ParameterMapping)
	}
	if existing, ok := c.mappings[m.RawIdentifier]; ok {
		return existing, nil
	}
	c.mappings[m.RawIdentifier] = m
	return m, nil
}

type memLocations struct {
	mu      sync.Mutex
	buckets map[[2]int64]int64
	nextID  int64
}

func (m *memLocations) FindOrCreateLocation(_ context.Context, lat, lon float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets == nil {
		m.buckets = make(map[[2]int64]int64)
	}
	key := [2]int64{domain.LocationBucket(lat), domain.LocationBucket(lon)}
	if id, ok := m.buckets[key]; ok {
		return id, nil
	}
	m.nextID++
	m.buckets[key] = m.nextID
	return m.nextID, nil
}

func (m *memLocations) BackfillLocationName(context.Context, int64, string) error { return nil }

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, _ := newTestExtractorWithMetrics(t)
	return e
}

func newTestExtractorWithMetrics(t *testing.T) (*Extractor, *observability.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	return New(
		domain.NewResolver(&memCatalog{}, logger),
		location.NewResolver(&memLocations{}, testRegion, 128, logger),
		logger,
		metrics,
	), metrics
}

func writeGrid(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "field.grid.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func collect(t *testing.T, e *Extractor, src domain.Source) ([]domain.MeasurementRecord, domain.ExtractStats) {
	t.Helper()
	var got []domain.MeasurementRecord
	stats, err := e.Extract(context.Background(), src, func(r domain.MeasurementRecord) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	return got, stats
}

// smallGrid is a 2-time x 2-lat x 2-lon temperature field. One lat and one
// lon sit outside the study area.
func smallGrid() map[string]any {
	return map[string]any{
		"coords": map[string]any{
			"time":      map[string]any{"values": []float64{0, 1}, "units": "days since 2023-06-01 00:00:00"},
			"latitude":  map[string]any{"values": []float64{-42.9, -30.0}},
			"longitude": map[string]any{"values": []float64{147.3, 160.0}},
		},
		"variables": map[string]any{
			"sea_temp": map[string]any{
				"dims":       []string{"time", "latitude", "longitude"},
				"units":      "degC",
				"fill_value": -999.0,
				"values":     []any{13.2, 13.3, 13.4, 13.5, 12.2, 12.3, 12.4, 12.5},
			},
		},
	}
}

func TestExtract_BBoxFilterByAxisIndex(t *testing.T) {
	e := newTestExtractor(t)
	path := writeGrid(t, smallGrid())

	got, stats := collect(t, e, domain.Source{ID: "g1", Path: path, Kind: domain.SourceGrid})

	// Of 8 cells only the (lat=-42.9, lon=147.3) column survives: 2 times.
	require.Len(t, got, 2)
	assert.Equal(t, 6, stats.Skipped[domain.SkipOutsideBBox])
	assert.Equal(t, 8, stats.RowsRead)

	assert.Equal(t, "TEMP", got[0].ParameterCode)
	assert.Equal(t, 13.2, got[0].Value)
	assert.Equal(t, 12.2, got[1].Value)
	assert.Equal(t, got[0].LocationID, got[1].LocationID)
}

func TestExtract_TimeAxisOffsets(t *testing.T) {
	e := newTestExtractor(t)
	path := writeGrid(t, smallGrid())

	got, _ := collect(t, e, domain.Source{ID: "g1", Path: path, Kind: domain.SourceGrid})

	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), got[0].Timestamp)
	assert.Equal(t, time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC), got[1].Timestamp)
}

func TestExtract_FillAndNullCells(t *testing.T) {
	e := newTestExtractor(t)
	doc := map[string]any{
		"coords": map[string]any{
			"time":      map[string]any{"values": []float64{0, 1, 2, 3}, "units": "days since 2023-06-01"},
			"latitude":  map[string]any{"values": []float64{-42.9}},
			"longitude": map[string]any{"values": []float64{147.3}},
		},
		"variables": map[string]any{
			"sea_temp": map[string]any{
				"dims":       []string{"time", "latitude", "longitude"},
				"fill_value": -999.0,
				"values":     []any{13.2, -999.0, nil, 13.5},
			},
		},
	}
	path := writeGrid(t, doc)

	got, stats := collect(t, e, domain.Source{ID: "g1", Path: path, Kind: domain.SourceGrid})

	require.Len(t, got, 2)
	assert.Equal(t, 1, stats.Skipped[domain.SkipFillValue])
	assert.Equal(t, 1, stats.Skipped[domain.SkipMissingValue])
}

func TestExtract_DepthAxis(t *testing.T) {
	e := newTestExtractor(t)
	doc := map[string]any{
		"coords": map[string]any{
			"time":      map[string]any{"values": []float64{0}, "units": "days since 2023-06-01"},
			"depth":     map[string]any{"values": []float64{5, 20}},
			"latitude":  map[string]any{"values": []float64{-42.9}},
			"longitude": map[string]any{"values": []float64{147.3}},
		},
		"variables": map[string]any{
			"sea_temp": map[string]any{
				"dims":   []string{"time", "depth", "latitude", "longitude"},
				"values": []any{13.2, 12.4},
			},
		},
	}
	path := writeGrid(t, doc)

	got, _ := collect(t, e, domain.Source{ID: "g1", Path: path, Kind: domain.SourceGrid})

	require.Len(t, got, 2)
	assert.Equal(t, 5.0, *got[0].Depth)
	assert.Equal(t, 20.0, *got[1].Depth)
}

func TestExtract_InlineStandardNameWins(t *testing.T) {
	e := newTestExtractor(t)
	doc := map[string]any{
		"coords": map[string]any{
			"time":      map[string]any{"values": []float64{0}, "units": "days since 2023-06-01"},
			"latitude":  map[string]any{"values": []float64{-42.9}},
			"longitude": map[string]any{"values": []float64{147.3}},
		},
		"variables": map[string]any{
			"var_03": map[string]any{
				"dims":          []string{"time", "latitude", "longitude"},
				"standard_name": "sea_water_practical_salinity",
				"values":        []any{35.1},
			},
		},
	}
	path := writeGrid(t, doc)

	got, _ := collect(t, e, domain.Source{ID: "g1", Path: path, Kind: domain.SourceGrid})

	require.Len(t, got, 1)
	assert.Equal(t, "PSAL", got[0].ParameterCode)
	assert.Equal(t, domain.NamespaceCF, got[0].Namespace)
}

func TestExtract_MultipleVariablesResolvedOnce(t *testing.T) {
	e := newTestExtractor(t)
	doc := map[string]any{
		"coords": map[string]any{
			"time":      map[string]any{"values": []float64{0, 1}, "units": "days since 2023-06-01"},
			"latitude":  map[string]any{"values": []float64{-42.9}},
			"longitude": map[string]any{"values": []float64{147.3}},
		},
		"variables": map[string]any{
			"sea_temp": map[string]any{
				"dims":   []string{"time", "latitude", "longitude"},
				"values": []any{13.2, 13.1},
			},
			"salinity": map[string]any{
				"dims":   []string{"time", "latitude", "longitude"},
				"values": []any{35.1, 35.0},
			},
		},
	}
	path := writeGrid(t, doc)

	got, stats := collect(t, e, domain.Source{ID: "g1", Path: path, Kind: domain.SourceGrid})

	assert.Equal(t, 4, stats.Emitted)
	codes := map[string]int{}
	for _, r := range got {
		codes[r.ParameterCode]++
	}
	assert.Equal(t, map[string]int{"TEMP": 2, "PSAL": 2}, codes)
}

func TestExtract_SignCorrectionsCounted(t *testing.T) {
	e, metrics := newTestExtractorWithMetrics(t)
	// The latitude axis carries the wrong hemisphere; the bbox pre-filter
	// keeps the index because its mirror falls in the study band.
	doc := map[string]any{
		"coords": map[string]any{
			"time":      map[string]any{"values": []float64{0, 1}, "units": "days since 2023-06-01"},
			"latitude":  map[string]any{"values": []float64{42.9}},
			"longitude": map[string]any{"values": []float64{147.3}},
		},
		"variables": map[string]any{
			"sea_temp": map[string]any{
				"dims":   []string{"time", "latitude", "longitude"},
				"values": []any{13.2, 13.1},
			},
		},
	}
	path := writeGrid(t, doc)

	got, _ := collect(t, e, domain.Source{ID: "g1", Path: path, Kind: domain.SourceGrid})
	require.Len(t, got, 2)

	corrected := metrics.CoordCorrections.WithLabelValues(string(domain.CoordSignCorrected))
	assert.Equal(t, 2.0, testutil.ToFloat64(corrected))
}

func TestExtract_MalformedContainerIsError(t *testing.T) {
	e := newTestExtractor(t)
	path := filepath.Join(t.TempDir(), "bad.grid.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := e.Extract(context.Background(), domain.Source{ID: "g1", Path: path}, func(domain.MeasurementRecord) error {
		return nil
	})
	require.Error(t, err)
}

func TestExtract_MissingTimeAxisIsError(t *testing.T) {
	e := newTestExtractor(t)
	doc := map[string]any{
		"coords": map[string]any{
			"latitude":  map[string]any{"values": []float64{-42.9}},
			"longitude": map[string]any{"values": []float64{147.3}},
		},
		"variables": map[string]any{
			"sea_temp": map[string]any{
				"dims":   []string{"latitude", "longitude"},
				"values": []any{13.2},
			},
		},
	}
	path := writeGrid(t, doc)

	_, err := e.Extract(context.Background(), domain.Source{ID: "g1", Path: path}, func(domain.MeasurementRecord) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no time axis")
}
