package domain

import "math"

// qualityRule is the plausibility envelope for one parameter code. Rules
// judge values; they never alter them.
type qualityRule struct {
	// nonNegative marks quantities that cannot physically be below zero.
	// Values under noiseFloor (a small negative sensor-noise allowance,
	// usually 0) are questionable. Exact zero is plausible.
	nonNegative bool
	noiseFloor  float64
	// ceiling/floor bound the physically possible range; values beyond
	// them are bad outright.
	ceiling float64
	floor   float64
}

// qualityRules maps parameter codes to their envelopes. Absence of a rule
// fails open: unknown codes flag good. New rules slot in independently.
var qualityRules = map[string]qualityRule{
	"TEMP": {floor: -5, ceiling: 45},
	"PSAL": {nonNegative: true, ceiling: 45},
	"CNDC": {nonNegative: true, ceiling: 10},
	// Pressure sensors legitimately read slightly negative at the surface;
	// only excursions past the noise threshold are suspect.
	"PRES":  {nonNegative: true, noiseFloor: -5, ceiling: 12000},
	"DEPTH": {nonNegative: true, noiseFloor: -5, ceiling: 12000},
	"DOX2":  {nonNegative: true, ceiling: 800},
	"CPHL":  {nonNegative: true, ceiling: 150},
	"TURB":  {nonNegative: true, ceiling: 4000},
	"PHXX":  {nonNegative: true, ceiling: 14},
	"NTRA":  {ceiling: 5000, floor: -50},
	"PHOS":  {ceiling: 500, floor: -50},
}

// EvaluateQuality computes the write-time quality flag for one value.
// It is a pure function of (parameterCode, value, depth) and independent of
// provenance. NaN values are missing. The optional depth is available to
// depth-dependent rules; none of the current envelopes use it.
func EvaluateQuality(parameterCode string, value float64, depth *float64) QualityFlag {
	_ = depth

	if math.IsNaN(value) {
		return FlagMissing
	}

	rule, ok := qualityRules[parameterCode]
	if !ok {
		return FlagGood
	}

	if rule.ceiling != 0 && value > rule.ceiling {
		return FlagBad
	}
	if rule.floor != 0 && value < rule.floor {
		return FlagBad
	}
	if rule.nonNegative && value < rule.noiseFloor {
		return FlagQuestionable
	}

	return FlagGood
}

// HasQualityRule reports whether a plausibility envelope exists for the
// code. Codes without one fail open at evaluation time.
func HasQualityRule(parameterCode string) bool {
	_, ok := qualityRules[parameterCode]
	return ok
}
