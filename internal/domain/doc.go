// Package domain holds the pure ingestion logic: parameter identity
// resolution, time normalization, coordinate validation, and quality
// flagging. Nothing here touches storage or the filesystem; adapters feed
// raw values in and persist records out.
//
// # Parameter identity
//
// On-disk variable names in observation files are a mess: the same column
// may be called "SeaTemp", "temp_c", or "TEMP_ADJUSTED" across deployments,
// and one name can mean two different quantities in two files. Identity is
// therefore contextual, resolved per file through tiers of decreasing
// confidence (see [Resolver.Resolve]):
//
//  1. Authoritative declaration — a CF standard name supplied by the
//     dataset's metadata. Standard names are 1:1 with physical quantities
//     by convention, so this tier can never be ambiguous and is never
//     skipped when available.
//  2. Catalog lookup — the seeded parameter_mappings table, keyed on the
//     case-folded identifier.
//  3. Keyword heuristic — an ordered substring table ("temp", "salin",
//     "turb", ...); first match wins.
//  4. Value distribution — only for identifiers known to be ambiguous
//     between two quantities with disjoint plausible ranges. "ph" is the
//     canonical case: acidity sits in 6..9 while a phosphate column
//     abbreviated the same way sits in −2..4. If at least 80% of the
//     sampled values fall in one range that reading wins; otherwise the
//     historically safer default (pH) applies with a review warning.
//  5. Fallback — the identifier becomes its own code under the custom
//     namespace and is persisted, so repeats resolve via tier 2.
//
// # Time encodings
//
// Source files encode time as CF offsets ("days since 1950-01-01" under a
// named calendar), ISO-8601-ish strings, or bare numbers. Bare numbers are
// interpreted by magnitude band: decimal/whole years (1900..2100), months
// since 1900 (240..1900), days since 1970 (2100..25569), days since 1900
// (25569..109572), POSIX seconds (>=1e8). The bands are heuristic and
// resolved by first match; genuinely ambiguous values would need
// dataset-specific context this package does not model. See
// [NormalizeTime].
//
// # Coordinates
//
// Field-entered positions suffer three recurring defects: dropped minus
// signs on latitude (the study area is in the southern hemisphere),
// 0..360 longitudes, and plain garbage. [ValidateCoords] wraps, flips, and
// classifies rather than rejecting; only missing or truly invalid
// positions are unusable. Locations are identified by proximity: positions
// within 1e-4 degrees (~11 m) share a location row (see [LocationBucket]).
//
// # Quality flags
//
// [EvaluateQuality] is a pure plausibility judgment per parameter code:
// negative values of inherently non-negative quantities are questionable
// (pressure gets a small sensor-noise allowance), values beyond a
// physically impossible ceiling are bad, NaN is missing, everything else,
// including exact zero, is good. Unknown codes fail open to good. Flags
// are computed once at write time; re-evaluation is an explicit separate
// pass (cmd/reflag).
package domain
