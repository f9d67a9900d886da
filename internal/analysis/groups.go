// Package analysis derives statistics from a completed run: response times
// per depth group and coverage of ground-truth boxes by scheduled boxes.
package analysis

import (
	"math"

	"github.com/me/framesched/pkg/model"
)

// GroupAvgResponse returns the mean response time of each depth group,
// rounded to three decimals. Groups follow the deadline table's buckets;
// groups without records report 0.
func GroupAvgResponse(records []model.HistoryRecord, table model.DeadlineTable) []float64 {
	groups := len(table.Deadlines)
	sum := make([]int, groups)
	count := make([]int, groups)
	for _, rec := range records {
		g := model.DepthGroup(rec.Depth, table.Bucket, groups)
		sum[g] += rec.ResponseTime
		count[g]++
	}

	avg := make([]float64, groups)
	for g := range avg {
		if count[g] > 0 {
			avg[g] = math.Round(float64(sum[g])/float64(count[g])*1000) / 1000
		}
	}
	return avg
}

// GroupWorstResponse returns the largest response time of each depth group.
func GroupWorstResponse(records []model.HistoryRecord, table model.DeadlineTable) []int {
	groups := len(table.Deadlines)
	worst := make([]int, groups)
	for _, rec := range records {
		g := model.DepthGroup(rec.Depth, table.Bucket, groups)
		worst[g] = max(worst[g], rec.ResponseTime)
	}
	return worst
}

// GroupMisses returns the number of missed deadlines in each depth group.
func GroupMisses(records []model.HistoryRecord, table model.DeadlineTable) []int {
	groups := len(table.Deadlines)
	missed := make([]int, groups)
	for _, rec := range records {
		if rec.Missed {
			missed[model.DepthGroup(rec.Depth, table.Bucket, groups)]++
		}
	}
	return missed
}

// GroupStats summarizes the records of one depth group.
type GroupStats struct {
	Group         int      `json:"group"`
	DepthMin      float64  `json:"depth_min"`
	DepthMax      *float64 `json:"depth_max"` // nil for the open-ended last group
	Deadline      int      `json:"deadline"`
	Tasks         int      `json:"tasks"`
	AvgResponse   float64  `json:"avg_response"`
	WorstResponse int      `json:"worst_response"`
	Missed        int      `json:"missed"`
}

// Groups returns one summary per deadline-table bucket.
func Groups(records []model.HistoryRecord, table model.DeadlineTable) []GroupStats {
	avg := GroupAvgResponse(records, table)
	worst := GroupWorstResponse(records, table)
	missed := GroupMisses(records, table)

	stats := make([]GroupStats, len(table.Deadlines))
	for g := range stats {
		stats[g] = GroupStats{
			Group:         g,
			DepthMin:      float64(g) * table.Bucket,
			Deadline:      table.Deadlines[g],
			AvgResponse:   avg[g],
			WorstResponse: worst[g],
			Missed:        missed[g],
		}
		if g < len(stats)-1 {
			upper := float64(g+1) * table.Bucket
			stats[g].DepthMax = &upper
		}
	}
	for _, rec := range records {
		stats[model.DepthGroup(rec.Depth, table.Bucket, len(stats))].Tasks++
	}
	return stats
}
