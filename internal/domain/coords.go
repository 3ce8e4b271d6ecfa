package domain

import "math"

// CoordClass classifies the outcome of coordinate validation.
type CoordClass string

const (
	CoordMissing       CoordClass = "missing"
	CoordInvalid       CoordClass = "invalid"
	CoordSignCorrected CoordClass = "sign_corrected"
	CoordNormalized    CoordClass = "normalized"
	CoordOutOfRegion   CoordClass = "out_of_region"
	CoordClean         CoordClass = "clean"
)

// CoordResult is the corrected position plus its classification. Status is
// the primary class; Corrections lists every fix applied, since longitude
// wraparound composes with a hemisphere sign flip.
type CoordResult struct {
	Lat, Lon    float64
	Status      CoordClass
	Corrections []CoordClass
}

// Usable reports whether the position can resolve to a location. Missing
// and invalid positions cannot; out-of-region positions are kept.
func (r CoordResult) Usable() bool {
	return r.Status != CoordMissing && r.Status != CoordInvalid
}

// ValidateCoords cleans and classifies a raw latitude/longitude pair.
//
// Order: nil values are missing; longitude is wrapped into [-180,180] by
// ±360; positions still outside valid bounds are invalid; a latitude with
// the wrong sign for the study hemisphere but a plausible magnitude is
// flipped; positions outside the study-area box are kept but marked
// out_of_region; everything else is clean.
func ValidateCoords(lat, lon *float64, region Region) CoordResult {
	if lat == nil || lon == nil {
		return CoordResult{Status: CoordMissing}
	}
	la, lo := *lat, *lon
	if math.IsNaN(la) || math.IsNaN(lo) {
		return CoordResult{Status: CoordMissing}
	}

	var fixes []CoordClass

	if lo > 180 || lo < -180 {
		wrapped := wrapLongitude(lo)
		if wrapped >= -180 && wrapped <= 180 {
			lo = wrapped
			fixes = append(fixes, CoordNormalized)
		}
	}

	if math.Abs(la) > 90 || math.Abs(lo) > 180 {
		return CoordResult{Lat: la, Lon: lo, Status: CoordInvalid}
	}

	// Hemisphere fix: a reported latitude on the wrong side of the equator
	// whose mirror falls inside the study band is a sign-entry error.
	switch {
	case region.southern() && la > 0 && -la >= region.LatMin && -la <= region.LatMax:
		la = -la
		fixes = append(fixes, CoordSignCorrected)
	case region.northern() && la < 0 && -la >= region.LatMin && -la <= region.LatMax:
		la = -la
		fixes = append(fixes, CoordSignCorrected)
	}

	status := CoordClean
	switch {
	case !region.Contains(la, lo):
		status = CoordOutOfRegion
	case contains(fixes, CoordSignCorrected):
		status = CoordSignCorrected
	case contains(fixes, CoordNormalized):
		status = CoordNormalized
	}

	return CoordResult{Lat: la, Lon: lo, Status: status, Corrections: fixes}
}

// wrapLongitude shifts a longitude into [-180,180] by whole turns.
func wrapLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

func contains(cs []CoordClass, c CoordClass) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}
