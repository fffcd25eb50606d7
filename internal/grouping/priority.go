package grouping

import (
	"time"

	"github.com/dshills/gosum-mcp/pkg/types"
)

// Priority weights. Unresolved files dominate; recently edited files come
// next; lightly referenced files last.
const (
	weightUnresolved = 0.5
	weightRecency    = 0.3
	weightLowRef     = 0.2

	recencyWindow = 7 * 24 * time.Hour
)

// computePriority scores a group for dispatch ordering. Higher scores
// dispatch sooner. Importance of a file is its incoming reference count in
// the candidate set's import graph; files below the caller's threshold count
// toward the low-importance component.
func computePriority(files []*types.FileRecord, refs map[int64]int, threshold float64, now time.Time) float64 {
	if len(files) == 0 {
		return 0
	}

	var unresolved, recent, lowRef int
	for _, f := range files {
		if !f.HasSummary() {
			unresolved++
		}
		if now.Sub(f.ModTime) <= recencyWindow {
			recent++
		}
		if float64(refs[f.ID]) < threshold {
			lowRef++
		}
	}

	n := float64(len(files))
	return weightUnresolved*(float64(unresolved)/n) +
		weightRecency*(float64(recent)/n) +
		weightLowRef*(float64(lowRef)/n)
}
