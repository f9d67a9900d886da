// Package cluster turns the raw detection boxes of one frame into prioritized
// task batches.
//
// A frame goes through four passes: an optional nested-box filter over the raw
// boxes, the merge pass that folds overlapping boxes into working boxes, an
// optional area outlier filter, and classification into size tiers. Each tier
// that receives at least one box becomes one batch; boxes too large for every
// tier become singleton batches at full frame size.
package cluster

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/me/framesched/internal/config"
	"github.com/me/framesched/pkg/model"
)

// Clusterer converts per-frame raw boxes into task batches. It holds no
// per-frame state and may be reused across frames of one run.
type Clusterer struct {
	cfg       config.ClusterConfig
	frame     model.FrameSize
	deadlines model.DeadlineTable
	overlaps  func(a, b model.Rect) bool
	logger    *slog.Logger
}

// New creates a Clusterer. The deadline table is scoped to the clusterer and
// used to stamp each task's deadline from its depth.
func New(cfg config.ClusterConfig, frame model.FrameSize, deadlines model.DeadlineTable, logger *slog.Logger) (*Clusterer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, &model.ConfigError{Field: "frame", Message: fmt.Sprintf("size must be positive, got %dx%d", frame.Width, frame.Height)}
	}
	if len(deadlines.Deadlines) == 0 {
		return nil, &model.ConfigError{Field: "deadlines.deadlines", Message: "at least one bucket is required"}
	}

	c := &Clusterer{
		cfg:       cfg,
		frame:     frame,
		deadlines: deadlines,
		logger:    logger.With("component", "cluster"),
	}
	switch cfg.Merge {
	case config.MergeInterval:
		c.overlaps = intervalOverlap
	case config.MergeStrict:
		c.overlaps = strictOverlap
	}
	return c, nil
}

// Cluster runs every pass over one frame's boxes and returns the non-empty
// batches to enqueue. A frame without boxes yields no batches.
func (c *Clusterer) Cluster(imagePath string, boxes []model.RawBox) []*model.TaskBatch {
	if len(boxes) == 0 {
		return nil
	}

	raw := boxes
	if c.cfg.DropNested {
		raw = DropNested(raw)
	}
	working := c.Merge(raw)
	if c.cfg.OutlierSigma > 0 {
		working = FilterOutliers(working, raw, c.cfg.OutlierSigma)
	}

	var batches []*model.TaskBatch
	if c.cfg.Mode == config.ModeSingleton {
		batches = c.singletons(imagePath, working)
	} else {
		batches = c.classify(imagePath, working)
	}

	c.logger.Debug("frame clustered",
		"image", model.ImageName(imagePath),
		"raw", len(boxes),
		"working", len(working),
		"batches", len(batches),
	)
	return batches
}

// Merge folds overlapping raw boxes into working boxes, in input order. Each
// incoming box merges into at most the first known working box it overlaps;
// the result takes the union rectangle and the incoming box's depth. This is
// a single pass, not a transitive closure: two working boxes that come to
// overlap through later growth stay separate.
func (c *Clusterer) Merge(boxes []model.RawBox) []model.WorkingBox {
	known := make([]model.WorkingBox, 0, len(boxes))
	for _, b := range boxes {
		merged := false
		if c.overlaps != nil {
			for i := range known {
				if c.overlaps(b.Rect, known[i].Rect) {
					known[i] = model.WorkingBox{Rect: known[i].Union(b.Rect), Depth: b.Depth}
					merged = true
					break
				}
			}
		}
		if !merged {
			known = append(known, model.WorkingBox{Rect: b.Rect, Depth: b.Depth})
		}
	}
	return known
}

// classify assigns each working box to the first tier whose bound admits it
// and whose fixed output rectangle stays inside the frame.
func (c *Clusterer) classify(imagePath string, working []model.WorkingBox) []*model.TaskBatch {
	byTier := make([][]*model.TaskEntity, len(c.cfg.Tiers))
	var oversized []*model.TaskBatch

	for id, wb := range working {
		tier, coord, ok := c.pickTier(wb.Rect)
		if !ok {
			full := clamp(wb.Rect, c.frame)
			task := model.NewTaskEntity(imagePath, full, wb.Depth, c.cfg.OversizedPriority, id, c.deadlines)
			if b := model.NewTaskBatch([]*model.TaskEntity{task}, c.frame.Width, c.frame.Height, c.cfg.OversizedPriority); b != nil {
				oversized = append(oversized, b)
			}
			continue
		}
		t := c.cfg.Tiers[tier]
		byTier[tier] = append(byTier[tier], model.NewTaskEntity(imagePath, coord, wb.Depth, t.Priority, id, c.deadlines))
	}

	batches := make([]*model.TaskBatch, 0, len(c.cfg.Tiers)+len(oversized))
	for i, tasks := range byTier {
		t := c.cfg.Tiers[i]
		if b := model.NewTaskBatch(tasks, t.Width, t.Height, t.Priority); b != nil {
			batches = append(batches, b)
		}
	}
	return append(batches, oversized...)
}

func (c *Clusterer) pickTier(r model.Rect) (int, model.Rect, bool) {
	size := r.Dim()
	if c.cfg.Metric == config.MetricArea {
		size = r.Area()
	}
	for i, t := range c.cfg.Tiers {
		if size > t.MaxSize {
			continue
		}
		resized := r.Resize(t.Width, t.Height)
		if !resized.Within(c.frame) {
			continue
		}
		return i, resized, true
	}
	return 0, model.Rect{}, false
}

// singletons emits one batch per working box at the box's own size, with the
// integer part of its depth as priority and the full depth as rank, so nearer
// boxes run first.
func (c *Clusterer) singletons(imagePath string, working []model.WorkingBox) []*model.TaskBatch {
	batches := make([]*model.TaskBatch, 0, len(working))
	for id, wb := range working {
		coord := clamp(wb.Rect, c.frame)
		prio := int(math.Floor(wb.Depth))
		task := model.NewTaskEntity(imagePath, coord, wb.Depth, prio, id, c.deadlines)
		if b := model.NewTaskBatch([]*model.TaskEntity{task}, coord.Width(), coord.Height(), prio); b != nil {
			b.Rank = wb.Depth
			batches = append(batches, b)
		}
	}
	return batches
}

// intervalOverlap reports whether the x-ranges and the y-ranges of a and b
// both intersect. Shared edges count as overlap.
func intervalOverlap(a, b model.Rect) bool {
	return spans(a.X0, a.X1, b.X0, b.X1) && spans(a.Y0, a.Y1, b.Y0, b.Y1)
}

func spans(a0, a1, b0, b1 int) bool {
	return a0 <= b1 && b0 <= a1
}

func strictOverlap(a, b model.Rect) bool {
	_, ok := a.Intersect(b)
	return ok
}

func clamp(r model.Rect, frame model.FrameSize) model.Rect {
	return model.Rect{
		X0: min(max(r.X0, 0), frame.Width),
		Y0: min(max(r.Y0, 0), frame.Height),
		X1: min(max(r.X1, 0), frame.Width),
		Y1: min(max(r.Y1, 0), frame.Height),
	}
}
