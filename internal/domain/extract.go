package domain

// Skip reasons counted per file. Per-row failures degrade to skip+log; an
// extractor never aborts a whole file over one row.
const (
	SkipUnparseableTime   = "unparseable_time"
	SkipUnusableCoords    = "unusable_coordinates"
	SkipMissingValue      = "missing_value"
	SkipFillValue         = "fill_value"
	SkipOutsideBBox       = "outside_bbox"
	SkipMalformedRow      = "malformed_row"
	SkipSourceFlagMissing = "source_flag_missing"
)

// ExtractStats tallies one file's extraction: rows/cells seen, records
// emitted, and skips by reason.
type ExtractStats struct {
	RowsRead int
	Emitted  int
	Skipped  map[string]int
}

// Skip counts one skipped row or cell.
func (s *ExtractStats) Skip(reason string) {
	if s.Skipped == nil {
		s.Skipped = make(map[string]int)
	}
	s.Skipped[reason]++
}

// SkippedTotal sums skips across reasons.
func (s *ExtractStats) SkippedTotal() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// Merge folds another file's stats into this one.
func (s *ExtractStats) Merge(other ExtractStats) {
	s.RowsRead += other.RowsRead
	s.Emitted += other.Emitted
	for reason, n := range other.Skipped {
		if s.Skipped == nil {
			s.Skipped = make(map[string]int)
		}
		s.Skipped[reason] += n
	}
}
