package cluster

import (
	"math"

	"github.com/me/framesched/pkg/model"
)

// DropNested removes every box fully contained in another box of the same
// frame. The keep set is decided against the unmodified input before anything
// is removed. Of two identical boxes the first one is kept.
func DropNested(boxes []model.RawBox) []model.RawBox {
	drop := make([]bool, len(boxes))
	for i, inner := range boxes {
		for j, outer := range boxes {
			if i == j || !outer.Contains(inner.Rect) {
				continue
			}
			if inner.Rect == outer.Rect && i < j {
				continue
			}
			drop[i] = true
			break
		}
	}

	kept := make([]model.RawBox, 0, len(boxes))
	for i, b := range boxes {
		if !drop[i] {
			kept = append(kept, b)
		}
	}
	return kept
}

// FilterOutliers keeps the working boxes whose area lies within sigma
// population standard deviations of the mean raw box area.
func FilterOutliers(working []model.WorkingBox, raw []model.RawBox, sigma float64) []model.WorkingBox {
	if len(raw) == 0 {
		return working
	}
	mean, sd := areaStats(raw)
	lo, hi := mean-sigma*sd, mean+sigma*sd

	kept := make([]model.WorkingBox, 0, len(working))
	for _, wb := range working {
		a := float64(wb.Area())
		if a >= lo && a <= hi {
			kept = append(kept, wb)
		}
	}
	return kept
}

func areaStats(boxes []model.RawBox) (mean, sd float64) {
	for _, b := range boxes {
		mean += float64(b.Area())
	}
	mean /= float64(len(boxes))
	for _, b := range boxes {
		d := float64(b.Area()) - mean
		sd += d * d
	}
	return mean, math.Sqrt(sd / float64(len(boxes)))
}
