// Package tabular extracts measurement records from wide CSV exports: one
// row per observation instant, one column per variable. Each parameter
// column is resolved to an identity once, then every row yields one record
// per resolved column (wide-to-long expansion).
package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/tidemark-obs/obs-ingest/internal/domain"
	"github.com/tidemark-obs/obs-ingest/internal/location"
	"github.com/tidemark-obs/obs-ingest/internal/observability"
)

// sampleLimit caps the disambiguation pre-pass: only this many leading data
// rows are scanned to build value samples for ambiguous columns.
const sampleLimit = 1000

// fillSentinels are conventional in-band missing markers in instrument
// exports.
var fillSentinels = map[float64]struct{}{
	-999: {}, -9999: {}, -99999: {},
}

// Column-role detection by conventional header names, case-insensitive.
var (
	timeHeaders = map[string]struct{}{
		"time": {}, "timestamp": {}, "datetime": {}, "date_time": {}, "obs_time": {}, "date": {},
	}
	latHeaders  = map[string]struct{}{"lat": {}, "latitude": {}}
	lonHeaders  = map[string]struct{}{"lon": {}, "lng": {}, "longitude": {}}
	depthHeader = map[string]struct{}{"depth": {}, "depth_m": {}}
	siteHeaders = map[string]struct{}{"site": {}, "station": {}, "site_name": {}, "station_name": {}}
)

// flagSuffixes mark quality/flag metadata columns. These are consumed as a
// side channel for their base column, never emitted as records.
var flagSuffixes = []string{"_qc", "_flag", "_quality"}

// Extractor is the CSV format adapter.
type Extractor struct {
	resolver  *domain.Resolver
	locations *location.Resolver
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a tabular Extractor.
func New(resolver *domain.Resolver, locations *location.Resolver, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	return &Extractor{resolver: resolver, locations: locations, logger: logger, metrics: metrics}
}

// coordAudit tallies the coordinate corrections applied while extracting
// one file, keyed by correction kind.
type coordAudit map[domain.CoordClass]int

func (a coordAudit) observe(res domain.CoordResult) {
	for _, c := range res.Corrections {
		a[c]++
	}
	if res.Status == domain.CoordOutOfRegion {
		a[domain.CoordOutOfRegion]++
	}
}

// reportCorrections emits one per-file log line and the correction counters
// once extraction is done, so a million corrected cells cost one line.
func (e *Extractor) reportCorrections(src domain.Source, audit coordAudit) {
	if len(audit) == 0 {
		return
	}
	attrs := []any{"file", src.Path, "source", src.ID}
	for _, kind := range []domain.CoordClass{domain.CoordSignCorrected, domain.CoordNormalized, domain.CoordOutOfRegion} {
		n := audit[kind]
		if n == 0 {
			continue
		}
		e.metrics.CoordCorrections.WithLabelValues(string(kind)).Add(float64(n))
		attrs = append(attrs, string(kind), n)
	}
	e.logger.Info("coordinates corrected", attrs...)
}

// layout is the per-file column plan derived from the header row.
type layout struct {
	timeCol  int
	latCol   int
	lonCol   int
	depthCol int
	siteCol  int
	// params maps column index to its raw identifier.
	params map[int]string
	// flags maps a parameter column index to its flag column index.
	flags map[int]int
}

// Extract streams the file, resolving each parameter column once and
// emitting one record per row per column. Per-row failures are counted and
// skipped; only file-level problems (unreadable file, no header, no time
// column) return an error.
func (e *Extractor) Extract(ctx context.Context, src domain.Source, emit func(domain.MeasurementRecord) error) (domain.ExtractStats, error) {
	var stats domain.ExtractStats

	header, err := readHeader(src.Path)
	if err != nil {
		return stats, err
	}
	lay, err := planLayout(header)
	if err != nil {
		return stats, fmt.Errorf("%s: %w", src.Path, err)
	}

	samples, err := e.collectSamples(src.Path, lay)
	if err != nil {
		return stats, err
	}

	resolutions, err := e.resolveColumns(ctx, src, lay, samples)
	if err != nil {
		return stats, err
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return stats, fmt.Errorf("open %s: %w", src.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil { // header, already planned
		return stats, fmt.Errorf("reread header %s: %w", src.Path, err)
	}

	hint := domain.TimeHint{
		Units:    src.Declared.GetTimeUnits(),
		Calendar: src.Declared.GetCalendar(),
	}
	audit := make(coordAudit)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stats.RowsRead++
			stats.Skip(domain.SkipMalformedRow)
			e.logger.Warn("malformed row skipped", "file", src.Path, "error", err)
			continue
		}
		stats.RowsRead++
		if err := e.extractRow(ctx, src, row, lay, resolutions, hint, audit, &stats, emit); err != nil {
			return stats, err
		}
	}

	e.reportCorrections(src, audit)
	return stats, nil
}

// extractRow enriches and emits every parameter cell of one row. A failure
// in the row's shared fields (time, position) skips the whole row; a
// failure in one cell skips just that cell.
func (e *Extractor) extractRow(
	ctx context.Context,
	src domain.Source,
	row []string,
	lay layout,
	resolutions map[int]domain.Resolution,
	hint domain.TimeHint,
	audit coordAudit,
	stats *domain.ExtractStats,
	emit func(domain.MeasurementRecord) error,
) error {
	ts, err := domain.NormalizeTime(cell(row, lay.timeCol), hint)
	if err != nil {
		stats.Skip(domain.SkipUnparseableTime)
		e.logger.Warn("row skipped: unparseable time",
			"file", src.Path, "value", cell(row, lay.timeCol), "error", err)
		return nil
	}

	lat, lon := e.rowPosition(row, lay, src.Declared)
	name := cell(row, lay.siteCol)
	if name == "" && src.Declared != nil {
		name = src.Declared.SiteName
	}
	locID, coords, err := e.locations.Resolve(ctx, lat, lon, name)
	if err != nil {
		if errors.Is(err, location.ErrUnusableCoordinates) {
			stats.Skip(domain.SkipUnusableCoords)
			e.logger.Warn("row skipped: unusable coordinates", "file", src.Path, "error", err)
			return nil
		}
		// Storage trouble on the location path: skip the row, keep going.
		stats.Skip(domain.SkipUnusableCoords)
		e.logger.Error("location resolution failed", "file", src.Path, "error", err)
		return nil
	}
	audit.observe(coords)

	var depth *float64
	if lay.depthCol >= 0 {
		if v, ok := parseValue(cell(row, lay.depthCol)); ok && !isFillSentinel(v) {
			depth = &v
		}
	}

	for col, res := range resolutions {
		if flagCol, ok := lay.flags[col]; ok && flaggedMissing(cell(row, flagCol)) {
			stats.Skip(domain.SkipSourceFlagMissing)
			continue
		}
		v, ok := parseValue(cell(row, col))
		if !ok {
			stats.Skip(domain.SkipMissingValue)
			continue
		}
		if isFillSentinel(v) {
			stats.Skip(domain.SkipFillValue)
			continue
		}
		rec := domain.MeasurementRecord{
			Timestamp:     ts,
			ParameterCode: res.Code,
			Namespace:     res.Namespace,
			Value:         v,
			Unit:          res.Unit,
			Depth:         depth,
			LocationID:    locID,
			SourceID:      src.ID,
		}
		if err := emit(rec); err != nil {
			return err
		}
		stats.Emitted++
	}
	return nil
}

// rowPosition takes the row's own coordinates when columns exist, falling
// back to the declared fixed deployment position.
func (e *Extractor) rowPosition(row []string, lay layout, meta *domain.DeclaredMetadata) (lat, lon *float64) {
	if lay.latCol >= 0 && lay.lonCol >= 0 {
		if v, ok := parseValue(cell(row, lay.latCol)); ok && !isFillSentinel(v) {
			lat = &v
		}
		if v, ok := parseValue(cell(row, lay.lonCol)); ok && !isFillSentinel(v) {
			lon = &v
		}
		return lat, lon
	}
	if meta != nil {
		return meta.Latitude, meta.Longitude
	}
	return nil, nil
}

// resolveColumns assigns one parameter identity per data column, passing
// the collected value sample for ambiguous identifiers.
func (e *Extractor) resolveColumns(
	ctx context.Context,
	src domain.Source,
	lay layout,
	samples map[int][]float64,
) (map[int]domain.Resolution, error) {
	resolutions := make(map[int]domain.Resolution, len(lay.params))
	for col, rawID := range lay.params {
		res, err := e.resolver.Resolve(ctx, rawID, src.Declared.StandardName(rawID), samples[col])
		if err != nil {
			return nil, fmt.Errorf("resolve column %q: %w", rawID, err)
		}
		if res.Warning != "" {
			e.metrics.AmbiguousResolutions.Inc()
			e.logger.Warn("ambiguous parameter default applied",
				"file", src.Path, "column", rawID, "code", res.Code, "detail", res.Warning)
		}
		resolutions[col] = res
	}
	return resolutions, nil
}

// collectSamples pre-scans up to sampleLimit rows, gathering values for
// columns whose identifier is known to be ambiguous. Files without such
// columns skip the pre-pass entirely.
func (e *Extractor) collectSamples(path string, lay layout) (map[int][]float64, error) {
	var ambiguous []int
	for col, rawID := range lay.params {
		if domain.IsAmbiguousIdentifier(domain.NormalizeIdentifier(rawID)) {
			ambiguous = append(ambiguous, col)
		}
	}
	if len(ambiguous) == 0 {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}

	samples := make(map[int][]float64, len(ambiguous))
	for i := 0; i < sampleLimit; i++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		for _, col := range ambiguous {
			if v, ok := parseValue(cell(row, col)); ok && !isFillSentinel(v) {
				samples[col] = append(samples[col], v)
			}
		}
	}
	return samples, nil
}

// planLayout classifies every header into a role: time, position, depth,
// site name, flag side-channel, or parameter column.
func planLayout(header []string) (layout, error) {
	lay := layout{
		timeCol: -1, latCol: -1, lonCol: -1, depthCol: -1, siteCol: -1,
		params: make(map[int]string),
		flags:  make(map[int]int),
	}

	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = strings.ToLower(strings.TrimSpace(h))
	}

	flagCols := make(map[string]int) // base identifier → flag column
	for i, h := range norm {
		switch {
		case inSet(h, timeHeaders):
			if lay.timeCol < 0 {
				lay.timeCol = i
			}
		case inSet(h, latHeaders):
			lay.latCol = i
		case inSet(h, lonHeaders):
			lay.lonCol = i
		case inSet(h, depthHeader):
			lay.depthCol = i
		case inSet(h, siteHeaders):
			lay.siteCol = i
		default:
			if base, ok := flagBase(h); ok {
				flagCols[base] = i
				continue
			}
			if h != "" {
				lay.params[i] = header[i]
			}
		}
	}

	for col, rawID := range lay.params {
		if flagCol, ok := flagCols[strings.ToLower(strings.TrimSpace(rawID))]; ok {
			lay.flags[col] = flagCol
		}
	}

	if lay.timeCol < 0 {
		return lay, errors.New("no time column recognized")
	}
	if len(lay.params) == 0 {
		return lay, errors.New("no parameter columns recognized")
	}
	return lay, nil
}

// flagBase strips a flag suffix ("temp_qc" → "temp"); ok is false for
// non-flag headers.
func flagBase(h string) (string, bool) {
	for _, suffix := range flagSuffixes {
		if strings.HasSuffix(h, suffix) && len(h) > len(suffix) {
			return strings.TrimSuffix(h, suffix), true
		}
	}
	if strings.HasPrefix(h, "qc_") && len(h) > 3 {
		return strings.TrimPrefix(h, "qc_"), true
	}
	return "", false
}

// flaggedMissing reports whether a source flag value marks the paired cell
// as absent (IODE/Argo convention: 9 = missing).
func flaggedMissing(flag string) bool {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "9", "m", "missing":
		return true
	default:
		return false
	}
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	return header, nil
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// parseValue parses a cell as float64, treating empty cells, non-numeric
// text, and NaN as missing. Fill sentinels parse fine; callers check them
// with isFillSentinel so the skip taxonomy keeps the two cases apart.
func parseValue(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func isFillSentinel(v float64) bool {
	_, ok := fillSentinels[v]
	return ok
}

func inSet(h string, set map[string]struct{}) bool {
	_, ok := set[h]
	return ok
}
