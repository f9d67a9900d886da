package analysis

import (
	"math"
	"slices"

	"github.com/me/framesched/pkg/model"
)

// MaxDepthGap is the largest depth difference at which a scheduled box can
// account for a ground-truth box (exclusive).
const MaxDepthGap = 10.0

// CoverageStats summarizes how well scheduled boxes cover ground truth.
type CoverageStats struct {
	// Coverage is the mean, over ground-truth boxes, of the fraction of
	// each box's area covered by matching scheduled boxes.
	Coverage float64 `json:"coverage"`
	// Accuracy is the mean, over images, of the fraction of scheduled
	// boxes that match at least one ground-truth box.
	Accuracy float64 `json:"accuracy"`

	Images           int `json:"images"`
	GroundTruthBoxes int `json:"ground_truth_boxes"`

	// Hits flags, per image, which scheduled boxes matched ground truth.
	Hits map[string][]bool `json:"hits,omitempty"`
}

// Coverage compares scheduled boxes against ground truth. Only images present
// in both maps are considered. A scheduled box matches a ground-truth box when
// their rectangles share area and their depths differ by less than
// MaxDepthGap. It returns model.ErrNoData when no image can be compared.
func Coverage(groundTruth map[string][]model.RawBox, scheduled map[string][]model.ScheduledBox) (CoverageStats, error) {
	stats := CoverageStats{Hits: make(map[string][]bool)}
	var coverageSum, accuracySum float64
	accuracyImages := 0

	names := make([]string, 0, len(groundTruth))
	for name := range groundTruth {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		boxes, ok := scheduled[name]
		if !ok {
			continue
		}
		truth := groundTruth[name]
		hits := make([]bool, len(boxes))

		for _, gt := range truth {
			area := gt.Area()
			if area == 0 {
				continue
			}
			var covered []model.Rect
			for j, sb := range boxes {
				in, ok := gt.Intersect(sb.Rect)
				if !ok || math.Abs(gt.Depth-sb.Depth) >= MaxDepthGap {
					continue
				}
				hits[j] = true
				covered = append(covered, in)
			}
			coverageSum += float64(UnionArea(covered)) / float64(area)
			stats.GroundTruthBoxes++
		}

		if len(boxes) > 0 {
			n := 0
			for _, h := range hits {
				if h {
					n++
				}
			}
			accuracySum += float64(n) / float64(len(boxes))
			accuracyImages++
		}
		stats.Hits[name] = hits
		stats.Images++
	}

	if stats.GroundTruthBoxes == 0 || accuracyImages == 0 {
		return stats, model.ErrNoData
	}
	stats.Coverage = coverageSum / float64(stats.GroundTruthBoxes)
	stats.Accuracy = accuracySum / float64(accuracyImages)
	return stats, nil
}

// UnionArea returns the exact area covered by the union of rects, using
// coordinate compression.
func UnionArea(rects []model.Rect) int {
	if len(rects) == 0 {
		return 0
	}
	xs := make([]int, 0, 2*len(rects))
	ys := make([]int, 0, 2*len(rects))
	for _, r := range rects {
		xs = append(xs, r.X0, r.X1)
		ys = append(ys, r.Y0, r.Y1)
	}
	slices.Sort(xs)
	slices.Sort(ys)
	xs = slices.Compact(xs)
	ys = slices.Compact(ys)

	total := 0
	for i := 0; i+1 < len(xs); i++ {
		for j := 0; j+1 < len(ys); j++ {
			cell := model.Rect{X0: xs[i], Y0: ys[j], X1: xs[i+1], Y1: ys[j+1]}
			for _, r := range rects {
				if r.Contains(cell) {
					total += cell.Area()
					break
				}
			}
		}
	}
	return total
}
