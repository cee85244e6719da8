package freetime

import (
	"iter"

	"freetime/internal/model"
)

// ScanMode selects how overlapping busy ranges advance the running end of
// the busy block during a gap scan.
type ScanMode int

const (
	// ScanMax keeps the furthest end seen so far. A range nested inside an
	// earlier one never opens a gap.
	ScanMax ScanMode = iota

	// ScanLegacy replaces the running end with each overlapping range's end
	// and restarts the scan from every suffix of the day. A range nested
	// inside an earlier one can then open a gap inside busy time.
	ScanLegacy
)

// Gaps yields the free ranges between consecutive busy ranges of a sorted
// day. Nothing is produced before the first or after the last range; a day
// with fewer than two ranges yields nothing.
func Gaps(busy []model.TimeRange, mode ScanMode) iter.Seq[model.TimeRange] {
	if mode == ScanLegacy {
		return legacyGaps(busy)
	}
	return func(yield func(model.TimeRange) bool) {
		if len(busy) == 0 {
			return
		}
		end := busy[0].End
		for _, cur := range busy[1:] {
			if end < cur.Start {
				if !yield(model.TimeRange{Start: end, End: cur.Start}) {
					return
				}
			}
			end = max(end, cur.End)
		}
	}
}

// legacyGaps drops the first range after each scan and scans again, so the
// same gap may be yielded more than once.
func legacyGaps(busy []model.TimeRange) iter.Seq[model.TimeRange] {
	return func(yield func(model.TimeRange) bool) {
		for rest := busy; len(rest) > 1; rest = rest[1:] {
			if g, ok := earliestGap(rest); ok {
				if !yield(g) {
					return
				}
			}
		}
	}
}

func earliestGap(busy []model.TimeRange) (model.TimeRange, bool) {
	end := busy[0].End
	for _, cur := range busy[1:] {
		if end < cur.Start {
			return model.TimeRange{Start: end, End: cur.Start}, true
		}
		end = cur.End
	}
	return model.TimeRange{}, false
}
