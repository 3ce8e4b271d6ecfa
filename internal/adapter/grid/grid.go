// Package grid extracts measurement records from gridded JSON containers:
// named coordinate axes plus variables holding row-major flattened value
// arrays over those axes. A modest grid explodes into millions of cells, so
// cells outside the study area are discarded by axis index before any
// record is materialized.
package grid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"time"

	"github.com/tidemark-obs/obs-ingest/internal/domain"
	"github.com/tidemark-obs/obs-ingest/internal/location"
	"github.com/tidemark-obs/obs-ingest/internal/observability"
)

// sampleLimit caps the number of values gathered per ambiguous variable for
// distribution-based disambiguation.
const sampleLimit = 1000

// Axis dimension names the container must use.
const (
	dimTime  = "time"
	dimLat   = "latitude"
	dimLon   = "longitude"
	dimDepth = "depth"
)

// axis is one coordinate dimension. Units and Calendar only apply to the
// time axis.
type axis struct {
	Values   []float64 `json:"values"`
	Units    string    `json:"units,omitempty"`
	Calendar string    `json:"calendar,omitempty"`
}

// variable is one gridded quantity. Values is flattened row-major over Dims;
// a null entry or the declared fill value marks a missing cell.
type variable struct {
	Dims         []string   `json:"dims"`
	StandardName string     `json:"standard_name,omitempty"`
	Units        string     `json:"units,omitempty"`
	FillValue    *float64   `json:"fill_value,omitempty"`
	Values       []*float64 `json:"values"`
}

// container is the on-disk grid document.
type container struct {
	Coords    map[string]axis     `json:"coords"`
	Variables map[string]variable `json:"variables"`
}

// Extractor is the gridded-JSON format adapter.
type Extractor struct {
	resolver  *domain.Resolver
	locations *location.Resolver
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a grid Extractor.
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

// Extract decodes the container, resolves each variable's identity once,
// then walks every cell inside the study area and emits one record per
// non-missing value. Cell-level problems degrade to counted skips; only a
// malformed container is a file error.
func (e *Extractor) Extract(ctx context.Context, src domain.Source, emit func(domain.MeasurementRecord) error) (domain.ExtractStats, error) {
	var stats domain.ExtractStats

	doc, err := readContainer(src.Path)
	if err != nil {
		return stats, err
	}

	timeAxis, ok := doc.Coords[dimTime]
	if !ok {
		return stats, fmt.Errorf("%s: grid has no time axis", src.Path)
	}
	latAxis, ok := doc.Coords[dimLat]
	if !ok {
		return stats, fmt.Errorf("%s: grid has no latitude axis", src.Path)
	}
	lonAxis, ok := doc.Coords[dimLon]
	if !ok {
		return stats, fmt.Errorf("%s: grid has no longitude axis", src.Path)
	}

	plan := gridPlan{
		times:      e.normalizeTimeAxis(src, timeAxis),
		latAllowed: allowedLatitudes(latAxis.Values, e.locations.Region()),
		lonAllowed: allowedLongitudes(lonAxis.Values, e.locations.Region()),
		axes:       doc.Coords,
	}

	audit := make(coordAudit)
	for _, name := range sortedNames(doc.Variables) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		v := doc.Variables[name]
		res, err := e.resolveVariable(ctx, src, name, v)
		if err != nil {
			return stats, err
		}
		if err := e.extractVariable(ctx, src, name, v, res, plan, audit, &stats, emit); err != nil {
			return stats, err
		}
	}

	e.reportCorrections(src, audit)
	return stats, nil
}

// gridPlan is the per-file precomputation shared across variables: the
// normalized time axis and the axis-index bbox filter.
type gridPlan struct {
	times      []normalizedTime
	latAllowed []bool
	lonAllowed []bool
	axes       map[string]axis
}

type normalizedTime struct {
	at time.Time
	ok bool
}

// normalizeTimeAxis converts the whole time axis up front so unparseable
// entries are diagnosed once instead of per variable per cell.
func (e *Extractor) normalizeTimeAxis(src domain.Source, ax axis) []normalizedTime {
	hint := domain.TimeHint{Units: ax.Units, Calendar: ax.Calendar}
	if hint.Units == "" {
		hint.Units = src.Declared.GetTimeUnits()
	}
	if hint.Calendar == "" {
		hint.Calendar = src.Declared.GetCalendar()
	}

	out := make([]normalizedTime, len(ax.Values))
	for i, v := range ax.Values {
		t, err := domain.NormalizeNumericTime(v, hint)
		if err != nil {
			e.logger.Warn("unparseable time axis entry",
				"file", src.Path, "index", i, "value", v, "error", err)
			continue
		}
		out[i] = normalizedTime{at: t, ok: true}
	}
	return out
}

// resolveVariable assigns the variable's parameter identity, using the
// inline standard_name first, then the sidecar declaration, then the value
// sample for ambiguous names.
func (e *Extractor) resolveVariable(ctx context.Context, src domain.Source, name string, v variable) (domain.Resolution, error) {
	declared := v.StandardName
	if declared == "" {
		declared = src.Declared.StandardName(name)
	}

	var sample []float64
	if domain.IsAmbiguousIdentifier(domain.NormalizeIdentifier(name)) {
		for _, p := range v.Values {
			if p == nil || math.IsNaN(*p) || isFill(v.FillValue, *p) {
				continue
			}
			sample = append(sample, *p)
			if len(sample) == sampleLimit {
				break
			}
		}
	}

	res, err := e.resolver.Resolve(ctx, name, declared, sample)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("resolve variable %q: %w", name, err)
	}
	if res.Warning != "" {
		e.metrics.AmbiguousResolutions.Inc()
		e.logger.Warn("ambiguous parameter default applied",
			"file", src.Path, "variable", name, "code", res.Code, "detail", res.Warning)
	}
	return res, nil
}

// extractVariable walks one variable's flattened values, mapping each flat
// index back to its axis indices via the dim strides.
func (e *Extractor) extractVariable(
	ctx context.Context,
	src domain.Source,
	name string,
	v variable,
	res domain.Resolution,
	plan gridPlan,
	audit coordAudit,
	stats *domain.ExtractStats,
	emit func(domain.MeasurementRecord) error,
) error {
	shape, strides, err := variableShape(v, plan.axes)
	if err != nil {
		e.logger.Error("variable skipped", "file", src.Path, "variable", name, "error", err)
		return nil
	}
	if prod(shape) != len(v.Values) {
		e.logger.Error("variable skipped: values length does not match dims",
			"file", src.Path, "variable", name, "want", prod(shape), "got", len(v.Values))
		return nil
	}

	// Axis positions within Dims; -1 when the variable lacks the dimension.
	timeDim := dimIndex(v.Dims, dimTime)
	latDim := dimIndex(v.Dims, dimLat)
	lonDim := dimIndex(v.Dims, dimLon)
	depthDim := dimIndex(v.Dims, dimDepth)
	if timeDim < 0 {
		e.logger.Error("variable skipped: no time dimension", "file", src.Path, "variable", name)
		return nil
	}

	latAxis := plan.axes[dimLat]
	lonAxis := plan.axes[dimLon]
	depthAxis := plan.axes[dimDepth]

	for flat, p := range v.Values {
		if flat%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		stats.RowsRead++

		latIdx := axisIndex(flat, strides, shape, latDim)
		lonIdx := axisIndex(flat, strides, shape, lonDim)
		if (latIdx >= 0 && !plan.latAllowed[latIdx]) || (lonIdx >= 0 && !plan.lonAllowed[lonIdx]) {
			stats.Skip(domain.SkipOutsideBBox)
			continue
		}

		if p == nil || math.IsNaN(*p) {
			stats.Skip(domain.SkipMissingValue)
			continue
		}
		if isFill(v.FillValue, *p) {
			stats.Skip(domain.SkipFillValue)
			continue
		}

		ts := plan.times[axisIndex(flat, strides, shape, timeDim)]
		if !ts.ok {
			stats.Skip(domain.SkipUnparseableTime)
			continue
		}

		var lat, lon *float64
		if latIdx >= 0 {
			lat = &latAxis.Values[latIdx]
		}
		if lonIdx >= 0 {
			lon = &lonAxis.Values[lonIdx]
		}
		locID, coords, err := e.locations.Resolve(ctx, lat, lon, src.Declared.GetSiteName())
		if err != nil {
			if errors.Is(err, location.ErrUnusableCoordinates) {
				stats.Skip(domain.SkipUnusableCoords)
				continue
			}
			stats.Skip(domain.SkipUnusableCoords)
			e.logger.Error("location resolution failed", "file", src.Path, "error", err)
			continue
		}
		audit.observe(coords)

		var depth *float64
		if depthDim >= 0 {
			depth = &depthAxis.Values[axisIndex(flat, strides, shape, depthDim)]
		}

		rec := domain.MeasurementRecord{
			Timestamp:     ts.at,
			ParameterCode: res.Code,
			Namespace:     res.Namespace,
			Value:         *p,
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

// variableShape returns the axis lengths and row-major strides for the
// variable's dims.
func variableShape(v variable, axes map[string]axis) (shape, strides []int, err error) {
	if len(v.Dims) == 0 {
		return nil, nil, errors.New("variable has no dims")
	}
	shape = make([]int, len(v.Dims))
	for i, d := range v.Dims {
		ax, ok := axes[d]
		if !ok {
			return nil, nil, fmt.Errorf("dim %q has no coordinate axis", d)
		}
		shape[i] = len(ax.Values)
	}
	strides = make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return shape, strides, nil
}

// axisIndex recovers the index along one dimension from a flat row-major
// index; dim -1 yields -1.
func axisIndex(flat int, strides, shape []int, dim int) int {
	if dim < 0 {
		return -1
	}
	return (flat / strides[dim]) % shape[dim]
}

// allowedLatitudes marks axis indices whose latitude can fall inside the
// study band, counting a hemisphere flip as reachable since downstream
// validation would apply it.
func allowedLatitudes(values []float64, region domain.Region) []bool {
	out := make([]bool, len(values))
	for i, v := range values {
		out[i] = (v >= region.LatMin && v <= region.LatMax) ||
			(-v >= region.LatMin && -v <= region.LatMax)
	}
	return out
}

// allowedLongitudes marks axis indices reachable after 0..360 wrapping.
func allowedLongitudes(values []float64, region domain.Region) []bool {
	out := make([]bool, len(values))
	for i, v := range values {
		for _, cand := range [3]float64{v, v - 360, v + 360} {
			if cand >= region.LonMin && cand <= region.LonMax {
				out[i] = true
				break
			}
		}
	}
	return out
}

func readContainer(path string) (container, error) {
	var doc container
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("open %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(doc.Variables) == 0 {
		return doc, fmt.Errorf("%s: grid has no variables", path)
	}
	return doc, nil
}

func isFill(fill *float64, v float64) bool {
	return fill != nil && v == *fill
}

func dimIndex(dims []string, name string) int {
	for i, d := range dims {
		if d == name {
			return i
		}
	}
	return -1
}

func sortedNames(vars map[string]variable) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func prod(xs []int) int {
	p := 1
	for _, x := range xs {
		p *= x
	}
	return p
}
