package patch

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// progressTracker turns raw engine readings into Progress snapshots. The index
// never goes backwards and the ratio stays within [0,1].
type progressTracker struct {
	repository string
	total      int
	totalBytes int64
	lastIndex  int
	lastRatio  float64
}

func newProgressTracker(repository string, pending []Entry) *progressTracker {
	var totalBytes int64
	for _, p := range pending {
		totalBytes += p.Size
	}

	return &progressTracker{repository: repository, total: len(pending), totalBytes: totalBytes}
}

func (t *progressTracker) observe(index int, remaining int64, speeds []int64) Progress {
	index = min(max(index, t.lastIndex), t.total)
	t.lastIndex = index

	var speed int64
	for _, s := range speeds {
		if s > 0 {
			speed += s
		}
	}

	ratio := 0.0
	switch {
	case t.totalBytes > 0 && remaining >= 0:
		ratio = 1 - float64(remaining)/float64(t.totalBytes)
	case t.total > 0:
		ratio = float64(index) / float64(t.total)
	}
	ratio = min(max(ratio, t.lastRatio, 0), 1)
	t.lastRatio = ratio

	return Progress{
		Repository:     t.repository,
		CurrentIndex:   index,
		TotalCount:     t.total,
		BytesRemaining: remaining,
		Speed:          speed,
		Ratio:          ratio,
		Line:           progressLine(index, t.total, remaining, speed),
	}
}

// progressLine renders e.g. "Patch 2/5 (1.2 GB remaining) at 4.5 MB/s".
func progressLine(index, total int, remaining, speed int64) string {
	current := min(index+1, total)
	line := fmt.Sprintf("Patch %d/%d", current, total)
	if remaining >= 0 {
		line += fmt.Sprintf(" (%s remaining)", humanize.Bytes(uint64(remaining)))
	}
	if speed > 0 {
		line += fmt.Sprintf(" at %s/s", humanize.Bytes(uint64(speed)))
	}

	return line
}
