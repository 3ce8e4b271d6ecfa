package domain

import "time"

// Namespace identifies the authority whose vocabulary a standard code
// belongs to.
type Namespace string

const (
	// NamespaceCF marks codes resolved from CF standard names declared by
	// the dataset itself.
	NamespaceCF Namespace = "cf"
	// NamespaceBODC marks codes taken from the curated catalog seed, which
	// follows BODC-style parameter usage.
	NamespaceBODC Namespace = "bodc"
	// NamespaceCustom marks codes minted at runtime for identifiers no
	// tier could resolve.
	NamespaceCustom Namespace = "custom"
)

// QualityFlag is the validity judgment attached to a measurement at write
// time. It only changes through an explicit re-evaluation pass (cmd/reflag),
// never implicitly.
type QualityFlag string

const (
	FlagGood         QualityFlag = "good"
	FlagQuestionable QualityFlag = "questionable"
	FlagBad          QualityFlag = "bad"
	FlagMissing      QualityFlag = "missing"
)

// ParameterMapping is one row of the parameter catalog: a raw on-disk
// identifier bound to a standard code, namespace, and canonical unit.
// RawIdentifier is matched case-insensitively and is unique. Rows are never
// mutated or deleted; runtime growth only adds custom entries.
type ParameterMapping struct {
	RawIdentifier string    `json:"raw_identifier"`
	StandardCode  string    `json:"standard_code"`
	Namespace     Namespace `json:"namespace"`
	CanonicalUnit string    `json:"canonical_unit"`
	Description   string    `json:"description,omitempty"`
}

// Location is a durable observation site. Identity is proximity-based: two
// positions within ~11 m (1e-4 degrees) share an ID regardless of which
// file created the row. Only Name may be backfilled after creation.
type Location struct {
	ID        int64
	Latitude  float64
	Longitude float64
	Name      string
}

// LocationBucket quantizes a coordinate to the shared-identity tolerance.
// Positions rounding to the same bucket always resolve to the same location.
func LocationBucket(coord float64) int64 {
	if coord >= 0 {
		return int64(coord*10000 + 0.5)
	}
	return int64(coord*10000 - 0.5)
}

// MeasurementRecord is the canonical output of the pipeline.
// (Timestamp, SourceID, ParameterCode, Depth) is unique; duplicate inserts
// are no-ops.
type MeasurementRecord struct {
	Timestamp     time.Time   `json:"timestamp"`
	ParameterCode string      `json:"parameter_code"`
	Namespace     Namespace   `json:"namespace"`
	Value         float64     `json:"value"`
	Unit          string      `json:"unit"`
	Depth         *float64    `json:"depth,omitempty"`
	LocationID    int64       `json:"location_id"`
	SourceID      string      `json:"source_id"`
	QualityFlag   QualityFlag `json:"quality_flag"`
	IngestedAt    time.Time   `json:"ingested_at"`
}

// SourceKind selects the extractor adapter for a file.
type SourceKind string

const (
	SourceTabular SourceKind = "tabular"
	SourceGrid    SourceKind = "grid"
)

// Source is one unit of work handed to the pipeline by the dataset
// enumerator: a file plus optional authoritative metadata.
type Source struct {
	ID       string
	Path     string
	Kind     SourceKind
	Declared *DeclaredMetadata
}

// DeclaredMetadata carries the authoritative per-dataset declarations: a
// controlled-vocabulary standard name per variable, plus optional temporal
// and positional declarations for files that omit them inline. When a
// standard name is present for a variable it wins over every other
// resolution tier.
type DeclaredMetadata struct {
	SourceID  string            `json:"source_id,omitempty"`
	Variables map[string]string `json:"variables"`
	TimeUnits string            `json:"time_units,omitempty"`
	Calendar  string            `json:"calendar,omitempty"`
	// Fixed deployment position for point datasets whose rows carry no
	// coordinate columns (e.g. a moored instrument export).
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	SiteName  string   `json:"site_name,omitempty"`
}

// StandardName returns the declared standard name for a variable, or "".
func (m *DeclaredMetadata) StandardName(variable string) string {
	if m == nil {
		return ""
	}
	return m.Variables[variable]
}

// GetTimeUnits returns the declared time encoding, or "".
func (m *DeclaredMetadata) GetTimeUnits() string {
	if m == nil {
		return ""
	}
	return m.TimeUnits
}

// GetCalendar returns the declared calendar, or "".
func (m *DeclaredMetadata) GetCalendar() string {
	if m == nil {
		return ""
	}
	return m.Calendar
}

// GetSiteName returns the declared site name, or "".
func (m *DeclaredMetadata) GetSiteName() string {
	if m == nil {
		return ""
	}
	return m.SiteName
}

// Region is the configured study-area bounding box. It drives the
// hemisphere sign correction, the out-of-region classification, and the
// grid adapter's pre-materialization filter.
type Region struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

// Contains reports whether the point lies inside the box (inclusive).
func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.LatMin && lat <= r.LatMax && lon >= r.LonMin && lon <= r.LonMax
}

// southern reports whether the whole box sits below the equator, which is
// what makes a positive reported latitude a candidate for sign correction.
func (r Region) southern() bool { return r.LatMax < 0 }

func (r Region) northern() bool { return r.LatMin > 0 }
