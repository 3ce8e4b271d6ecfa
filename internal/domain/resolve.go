package domain

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// ResolutionTier records which strategy produced a parameter identity,
// ordered by confidence.
type ResolutionTier string

const (
	TierDeclared     ResolutionTier = "declared"
	TierCatalog      ResolutionTier = "catalog"
	TierKeyword      ResolutionTier = "keyword"
	TierDistribution ResolutionTier = "distribution"
	TierFallback     ResolutionTier = "fallback"
)

// Resolution is the parameter identity assigned to one column or variable.
// Warning is non-empty when the identity is a conservative default for an
// ambiguous identifier; it is a review signal, never an error.
type Resolution struct {
	Code      string
	Namespace Namespace
	Unit      string
	Tier      ResolutionTier
	Warning   string
}

// CatalogStore is the persistent parameter catalog consumed by the
// resolver. GetOrCreate must be safe under concurrent writers: two racing
// creators of the same identifier converge on one row, with the loser's
// insert degrading to a lookup.
type CatalogStore interface {
	Lookup(ctx context.Context, rawIdentifier string) (ParameterMapping, bool, error)
	GetOrCreate(ctx context.Context, mapping ParameterMapping) (ParameterMapping, error)
}

// standardNames is the fixed controlled-vocabulary table. The convention
// guarantees a 1:1 standard-name-to-quantity mapping, so a declared name
// resolves immediately and unambiguously.
var standardNames = map[string]Resolution{
	"sea_water_temperature":                          {Code: "TEMP", Namespace: NamespaceCF, Unit: "degC"},
	"sea_surface_temperature":                        {Code: "TEMP", Namespace: NamespaceCF, Unit: "degC"},
	"sea_water_practical_salinity":                   {Code: "PSAL", Namespace: NamespaceCF, Unit: "1"},
	"sea_water_salinity":                             {Code: "PSAL", Namespace: NamespaceCF, Unit: "1"},
	"sea_water_electrical_conductivity":              {Code: "CNDC", Namespace: NamespaceCF, Unit: "S m-1"},
	"sea_water_pressure":                             {Code: "PRES", Namespace: NamespaceCF, Unit: "dbar"},
	"depth":                                          {Code: "DEPTH", Namespace: NamespaceCF, Unit: "m"},
	"moles_of_oxygen_per_unit_mass_in_sea_water":     {Code: "DOX2", Namespace: NamespaceCF, Unit: "umol kg-1"},
	"mole_concentration_of_dissolved_molecular_oxygen_in_sea_water": {Code: "DOX2", Namespace: NamespaceCF, Unit: "mmol m-3"},
	"mass_concentration_of_chlorophyll_in_sea_water":                {Code: "CPHL", Namespace: NamespaceCF, Unit: "mg m-3"},
	"mass_concentration_of_chlorophyll_a_in_sea_water":              {Code: "CPHL", Namespace: NamespaceCF, Unit: "mg m-3"},
	"sea_water_turbidity":                                           {Code: "TURB", Namespace: NamespaceCF, Unit: "NTU"},
	"sea_water_ph_reported_on_total_scale":                          {Code: "PHXX", Namespace: NamespaceCF, Unit: "1"},
	"mole_concentration_of_nitrate_in_sea_water":                    {Code: "NTRA", Namespace: NamespaceCF, Unit: "mmol m-3"},
	"mole_concentration_of_phosphate_in_sea_water":                  {Code: "PHOS", Namespace: NamespaceCF, Unit: "mmol m-3"},
}

// keywordGroup maps identifier substrings to a parameter family. Groups
// are tried in order; within a group, the first matching token wins.
type keywordGroup struct {
	tokens []string
	res    Resolution
}

// keywordGroups is the ordered substring-heuristic table. More specific
// families sit above generic ones so e.g. "bottom_temp_flag" never falls
// through to a weaker match. None of the tokens may match a known
// ambiguous identifier (those are handled by value distribution).
var keywordGroups = []keywordGroup{
	{tokens: []string{"temp", "sst"}, res: Resolution{Code: "TEMP", Namespace: NamespaceBODC, Unit: "degC"}},
	{tokens: []string{"psal", "salin", "sal_"}, res: Resolution{Code: "PSAL", Namespace: NamespaceBODC, Unit: "1"}},
	{tokens: []string{"chlor", "chl", "fluor"}, res: Resolution{Code: "CPHL", Namespace: NamespaceBODC, Unit: "mg m-3"}},
	{tokens: []string{"oxyg", "dox", "o2_", "_o2"}, res: Resolution{Code: "DOX2", Namespace: NamespaceBODC, Unit: "umol kg-1"}},
	{tokens: []string{"turb", "ntu"}, res: Resolution{Code: "TURB", Namespace: NamespaceBODC, Unit: "NTU"}},
	{tokens: []string{"nitrat", "no3"}, res: Resolution{Code: "NTRA", Namespace: NamespaceBODC, Unit: "mmol m-3"}},
	{tokens: []string{"phosph", "po4"}, res: Resolution{Code: "PHOS", Namespace: NamespaceBODC, Unit: "mmol m-3"}},
	{tokens: []string{"cond", "cndc"}, res: Resolution{Code: "CNDC", Namespace: NamespaceBODC, Unit: "S m-1"}},
	{tokens: []string{"press", "pres", "dbar"}, res: Resolution{Code: "PRES", Namespace: NamespaceBODC, Unit: "dbar"}},
	{tokens: []string{"depth"}, res: Resolution{Code: "DEPTH", Namespace: NamespaceBODC, Unit: "m"}},
}

// ambiguousIdentifier describes an identifier known to mean either of two
// quantities with disjoint plausible value ranges. The preferred
// interpretation is the historically safer default.
type ambiguousIdentifier struct {
	preferred, alternate Resolution
	prefLo, prefHi       float64
	altLo, altHi         float64
}

// ambiguousIdentifiers keys on the normalized identifier. "ph" is the
// classic case: acidity (6..9) vs a phosphate column abbreviated the same
// way (−2..4, small negatives being sensor noise).
var ambiguousIdentifiers = map[string]ambiguousIdentifier{
	"ph": {
		preferred: Resolution{Code: "PHXX", Namespace: NamespaceBODC, Unit: "1"},
		alternate: Resolution{Code: "PHOS", Namespace: NamespaceBODC, Unit: "mmol m-3"},
		prefLo:    6, prefHi: 9,
		altLo: -2, altHi: 4,
	},
}

// IsAmbiguousIdentifier reports whether a normalized identifier needs a
// value sample for distribution-based disambiguation. Adapters use this to
// decide which columns are worth a sampling pre-pass.
func IsAmbiguousIdentifier(norm string) bool {
	_, ok := ambiguousIdentifiers[norm]
	return ok
}

// ambiguityThreshold is the fraction of non-null sample values that must
// fall inside one plausible range before the distribution tier commits to
// that interpretation.
const ambiguityThreshold = 0.8

// Resolver assigns a single parameter identity to a raw variable
// identifier. Identity is contextual, not intrinsic: the same identifier
// may legitimately resolve differently in different files depending on the
// declaration and the observed values.
type Resolver struct {
	catalog CatalogStore
	logger  *slog.Logger
}

// NewResolver creates a Resolver backed by the given catalog.
func NewResolver(catalog CatalogStore, logger *slog.Logger) *Resolver {
	return &Resolver{catalog: catalog, logger: logger}
}

// Resolve returns the parameter identity for rawIdentifier.
//
// Tiers, highest confidence first: authoritative declaration, catalog
// lookup, keyword heuristic, value-distribution disambiguation (only for
// known-ambiguous identifiers), then a custom fallback code persisted to
// the catalog so repeats skip the heuristics. Identical inputs always
// yield identical output; no tier is fatal.
func (r *Resolver) Resolve(ctx context.Context, rawIdentifier, declared string, sample []float64) (Resolution, error) {
	norm := NormalizeIdentifier(rawIdentifier)

	if declared != "" {
		if res, ok := standardNames[strings.ToLower(strings.TrimSpace(declared))]; ok {
			res.Tier = TierDeclared
			return res, nil
		}
		r.logger.Warn("declared standard name not in vocabulary, falling back",
			"identifier", rawIdentifier, "standard_name", declared)
	}

	if mapping, ok, err := r.catalog.Lookup(ctx, norm); err != nil {
		return Resolution{}, fmt.Errorf("catalog lookup %q: %w", norm, err)
	} else if ok {
		return Resolution{
			Code:      mapping.StandardCode,
			Namespace: mapping.Namespace,
			Unit:      mapping.CanonicalUnit,
			Tier:      TierCatalog,
		}, nil
	}

	for _, group := range keywordGroups {
		for _, token := range group.tokens {
			if strings.Contains(norm, token) {
				res := group.res
				res.Tier = TierKeyword
				return res, nil
			}
		}
	}

	if amb, ok := ambiguousIdentifiers[norm]; ok {
		return r.disambiguate(norm, amb, sample), nil
	}

	return r.fallback(ctx, norm)
}

// disambiguate selects between an ambiguous identifier's two readings by
// the fraction of sample values inside each plausible range. Below the
// threshold it keeps the conservative default and emits a review warning.
func (r *Resolver) disambiguate(norm string, amb ambiguousIdentifier, sample []float64) Resolution {
	var inPref, inAlt, total int
	for _, v := range sample {
		if math.IsNaN(v) {
			continue
		}
		total++
		if v >= amb.prefLo && v <= amb.prefHi {
			inPref++
		}
		if v >= amb.altLo && v <= amb.altHi {
			inAlt++
		}
	}

	if total > 0 {
		if float64(inPref)/float64(total) >= ambiguityThreshold {
			res := amb.preferred
			res.Tier = TierDistribution
			return res
		}
		if float64(inAlt)/float64(total) >= ambiguityThreshold {
			res := amb.alternate
			res.Tier = TierDistribution
			return res
		}
	}

	res := amb.preferred
	res.Tier = TierDistribution
	res.Warning = fmt.Sprintf("identifier %q is ambiguous between %s and %s; defaulting to %s, needs review",
		norm, amb.preferred.Code, amb.alternate.Code, amb.preferred.Code)
	r.logger.Warn("ambiguous parameter identifier",
		"identifier", norm,
		"default", amb.preferred.Code,
		"alternate", amb.alternate.Code,
		"sample_size", total,
	)
	return res
}

// fallback mints a custom code for an unresolvable identifier and persists
// it so the next file carrying the same identifier resolves via the
// catalog tier instead of re-running the heuristics.
func (r *Resolver) fallback(ctx context.Context, norm string) (Resolution, error) {
	mapping := ParameterMapping{
		RawIdentifier: norm,
		StandardCode:  CustomCode(norm),
		Namespace:     NamespaceCustom,
		CanonicalUnit: "unknown",
		Description:   "auto-registered unresolved identifier",
	}

	created, err := r.catalog.GetOrCreate(ctx, mapping)
	if err != nil {
		// Persistence trouble must not fail resolution; the identity is
		// still deterministic without the catalog row.
		r.logger.Warn("persist custom parameter failed", "identifier", norm, "error", err)
		created = mapping
	}

	return Resolution{
		Code:      created.StandardCode,
		Namespace: created.Namespace,
		Unit:      created.CanonicalUnit,
		Tier:      TierFallback,
	}, nil
}

// NormalizeIdentifier lower-cases and collapses the whitespace of a raw
// identifier; catalog keys are stored in this form.
func NormalizeIdentifier(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// CustomCode derives the custom-namespace standard code for an identifier:
// upper-cased with non-alphanumerics squashed to underscores.
func CustomCode(norm string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(norm) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
