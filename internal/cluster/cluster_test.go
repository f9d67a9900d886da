package cluster

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/me/framesched/internal/config"
	"github.com/me/framesched/pkg/model"
)

var testFrame = model.FrameSize{Width: 1920, Height: 1280}

func box(x0, y0, x1, y1 int, depth float64) model.RawBox {
	return model.RawBox{Rect: model.Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}, Depth: depth}
}

func newClusterer(t *testing.T, mutate func(*config.ClusterConfig)) *Clusterer {
	t.Helper()
	cfg := config.DefaultClusterConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(cfg, testFrame, model.DefaultDeadlineTable(), logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_InvalidConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.DefaultClusterConfig()
	cfg.Merge = "bogus"
	_, err := New(cfg, testFrame, model.DefaultDeadlineTable(), logger)
	var ce *model.ConfigError
	if !errors.As(err, &ce) || ce.Field != "cluster.merge" {
		t.Errorf("New() error = %v, want cluster.merge ConfigError", err)
	}

	_, err = New(config.DefaultClusterConfig(), model.FrameSize{}, model.DefaultDeadlineTable(), logger)
	if !errors.As(err, &ce) || ce.Field != "frame" {
		t.Errorf("New() error = %v, want frame ConfigError", err)
	}

	_, err = New(config.DefaultClusterConfig(), testFrame, model.DeadlineTable{Bucket: 10}, logger)
	if !errors.As(err, &ce) || ce.Field != "deadlines.deadlines" {
		t.Errorf("New() error = %v, want deadlines ConfigError", err)
	}
}

func TestCluster_SingleSmallBox(t *testing.T) {
	c := newClusterer(t, nil)
	batches := c.Cluster("../dataset/1.png", []model.RawBox{box(0, 0, 50, 50, 5)})
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	b := batches[0]
	if b.BatchSize != 1 || b.Priority != 4 {
		t.Errorf("batch size/priority = %d/%d, want 1/4", b.BatchSize, b.Priority)
	}
	if b.ImgWidth != 50 || b.ImgHeight != 50 {
		t.Errorf("batch dims = %dx%d, want 50x50", b.ImgWidth, b.ImgHeight)
	}
	task := b.Tasks[0]
	if task.Deadline != 30 {
		t.Errorf("Deadline = %d, want 30", task.Deadline)
	}
	if task.Coord != (model.Rect{X1: 50, Y1: 50}) {
		t.Errorf("Coord = %v", task.Coord)
	}
	if task.ImagePath != "../dataset/1.png" || task.ImageOutPath != "../dataset/out/1.png" {
		t.Errorf("paths = %q, %q", task.ImagePath, task.ImageOutPath)
	}
	if task.EnqueueTime != 0 || task.ExecTime != 0 || task.Missed {
		t.Errorf("scheduler-owned fields should be zero: %+v", task)
	}
}

func TestCluster_EmptyFrame(t *testing.T) {
	c := newClusterer(t, nil)
	if got := c.Cluster("1.png", nil); len(got) != 0 {
		t.Errorf("expected no batches, got %d", len(got))
	}
}

func TestMerge_OverlappingPair(t *testing.T) {
	c := newClusterer(t, nil)
	got := c.Merge([]model.RawBox{box(0, 0, 100, 100, 10), box(50, 50, 150, 150, 12)})
	if len(got) != 1 {
		t.Fatalf("got %d working boxes, want 1", len(got))
	}
	if got[0].Rect != (model.Rect{X1: 150, Y1: 150}) {
		t.Errorf("Rect = %v, want [0,0,150,150]", got[0].Rect)
	}
	if got[0].Depth != 12 {
		t.Errorf("Depth = %v, want depth of the last merged box", got[0].Depth)
	}
}

func TestMerge_DisjointIsIdentity(t *testing.T) {
	boxes := []model.RawBox{
		box(0, 0, 40, 40, 1),
		box(100, 0, 140, 40, 2),
		box(0, 100, 40, 140, 3),
		box(500, 500, 900, 900, 4),
	}
	for _, policy := range []string{config.MergeInterval, config.MergeStrict, config.MergeNone} {
		t.Run(policy, func(t *testing.T) {
			c := newClusterer(t, func(cfg *config.ClusterConfig) { cfg.Merge = policy })
			got := c.Merge(boxes)
			if len(got) != len(boxes) {
				t.Fatalf("got %d working boxes, want %d", len(got), len(boxes))
			}
			for i := range boxes {
				if got[i].Rect != boxes[i].Rect || got[i].Depth != boxes[i].Depth {
					t.Errorf("box %d = %+v, want %+v", i, got[i], boxes[i])
				}
			}
		})
	}
}

func TestMerge_FirstMatchOnly(t *testing.T) {
	c := newClusterer(t, nil)
	got := c.Merge([]model.RawBox{
		box(0, 0, 10, 10, 1),
		box(100, 100, 110, 110, 2),
		box(5, 5, 105, 105, 3),
	})
	if len(got) != 2 {
		t.Fatalf("got %d working boxes, want 2", len(got))
	}
	if got[0].Rect != (model.Rect{X1: 105, Y1: 105}) {
		t.Errorf("first = %v, want [0,0,105,105]", got[0].Rect)
	}
	if got[1].Rect != (model.Rect{X0: 100, Y0: 100, X1: 110, Y1: 110}) {
		t.Errorf("second = %v, should be untouched", got[1].Rect)
	}
}

func TestMerge_Containment(t *testing.T) {
	c := newClusterer(t, nil)
	got := c.Merge([]model.RawBox{box(0, 0, 100, 100, 1), box(20, 20, 30, 30, 2)})
	if len(got) != 1 || got[0].Rect != (model.Rect{X1: 100, Y1: 100}) {
		t.Errorf("nested box should merge into its container: %+v", got)
	}
}

func TestMerge_Policies(t *testing.T) {
	touching := []model.RawBox{box(0, 0, 10, 10, 1), box(10, 0, 20, 10, 1)}
	tests := []struct {
		policy string
		want   int
	}{
		{config.MergeInterval, 1},
		{config.MergeStrict, 2},
		{config.MergeNone, 2},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			c := newClusterer(t, func(cfg *config.ClusterConfig) { cfg.Merge = tt.policy })
			if got := len(c.Merge(touching)); got != tt.want {
				t.Errorf("working boxes = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCluster_GroupsByTier(t *testing.T) {
	c := newClusterer(t, nil)
	batches := c.Cluster("7.png", []model.RawBox{
		box(0, 0, 20, 20, 5),          // small
		box(100, 0, 130, 40, 25),      // small
		box(300, 0, 400, 100, 64.44),  // medium
		box(600, 0, 650, 50, 15),      // small
		box(800, 0, 1000, 250, 45),    // large
		box(1200, 0, 1700, 600, 99.9), // oversized
	})
	if len(batches) != 4 {
		t.Fatalf("got %d batches, want 4", len(batches))
	}

	want := []struct {
		size, prio, w, h int
	}{
		{3, 4, 50, 50},
		{1, 3, 150, 150},
		{1, 2, 300, 450},
		{1, 1, 1920, 1280},
	}
	for i, w := range want {
		b := batches[i]
		if b.BatchSize != w.size || b.Priority != w.prio || b.ImgWidth != w.w || b.ImgHeight != w.h {
			t.Errorf("batch %d = size %d prio %d %dx%d, want %+v", i, b.BatchSize, b.Priority, b.ImgWidth, b.ImgHeight, w)
		}
		for _, task := range b.Tasks {
			if task.Priority != b.Priority {
				t.Errorf("batch %d task priority %d differs from batch %d", i, task.Priority, b.Priority)
			}
		}
	}

	medium := batches[1].Tasks[0]
	if medium.Coord != (model.Rect{X0: 300, Y0: 0, X1: 450, Y1: 150}) {
		t.Errorf("medium coord = %v, want resized to tier output", medium.Coord)
	}
	if medium.Deadline != 100 {
		t.Errorf("medium deadline = %d, want 100", medium.Deadline)
	}
	if got := batches[3].Tasks[0].Coord; got != (model.Rect{X0: 1200, X1: 1700, Y1: 600}) {
		t.Errorf("oversized coord = %v, want working box", got)
	}
}

func TestCluster_OversizedAreSingletons(t *testing.T) {
	c := newClusterer(t, nil)
	batches := c.Cluster("1.png", []model.RawBox{
		box(0, 0, 400, 400, 10),
		box(500, 0, 900, 400, 20),
	})
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	for _, b := range batches {
		if b.BatchSize != 1 || b.Priority != 1 {
			t.Errorf("oversized batch size/prio = %d/%d, want 1/1", b.BatchSize, b.Priority)
		}
		if b.ImgWidth != 1920 || b.ImgHeight != 1280 {
			t.Errorf("oversized batch dims = %dx%d, want full frame", b.ImgWidth, b.ImgHeight)
		}
	}
	if got, want := batches[1].Tasks[0].Coord, (model.Rect{X0: 500, Y0: 0, X1: 900, Y1: 400}); got != want {
		t.Errorf("oversized task coord = %v, want detected box %v", got, want)
	}
}

func TestCluster_FrameEdgeFallsThrough(t *testing.T) {
	c := newClusterer(t, nil)
	batches := c.Cluster("1.png", []model.RawBox{box(1900, 1260, 1910, 1270, 5)})
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	b := batches[0]
	if b.Priority != 1 || b.ImgWidth != 1920 {
		t.Errorf("edge box should fall through to oversized, got prio %d width %d", b.Priority, b.ImgWidth)
	}

	c = newClusterer(t, func(cfg *config.ClusterConfig) {
		cfg.Tiers = []config.Tier{
			{Name: "wide", MaxSize: 50, Width: 200, Height: 50, Priority: 5},
			{Name: "square", MaxSize: 100, Width: 60, Height: 60, Priority: 3},
		}
	})
	batches = c.Cluster("1.png", []model.RawBox{box(1800, 0, 1830, 30, 5)})
	if len(batches) != 1 || batches[0].Priority != 3 {
		t.Fatalf("expected fall-through to the square tier, got %+v", batches)
	}
	if got := batches[0].Tasks[0].Coord; !got.Within(testFrame) {
		t.Errorf("coord %v leaves the frame", got)
	}
}

func TestCluster_MetricChangesAssignment(t *testing.T) {
	elongated := []model.RawBox{box(0, 0, 10, 200, 5)}

	dim := newClusterer(t, nil)
	if got := dim.Cluster("1.png", elongated); len(got) != 1 || got[0].Priority != 2 {
		t.Errorf("dim metric: want large tier (prio 2), got %+v", got)
	}

	area := newClusterer(t, func(cfg *config.ClusterConfig) {
		cfg.Metric = config.MetricArea
		cfg.Tiers = []config.Tier{
			{Name: "medium", MaxSize: 10000, Width: 175, Height: 225, Priority: 3},
			{Name: "large", MaxSize: 75000, Width: 300, Height: 450, Priority: 2},
		}
	})
	if got := area.Cluster("1.png", elongated); len(got) != 1 || got[0].Priority != 3 {
		t.Errorf("area metric: want medium tier (prio 3), got %+v", got)
	}
}

func TestCluster_SingletonMode(t *testing.T) {
	c := newClusterer(t, func(cfg *config.ClusterConfig) {
		cfg.Mode = config.ModeSingleton
		cfg.Merge = config.MergeNone
	})
	batches := c.Cluster("1.png", []model.RawBox{
		box(571, 667, 759, 813, 29.45),
		box(644, 655, 729, 720, 64.44),
	})
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if batches[0].Priority != 29 || batches[1].Priority != 64 {
		t.Errorf("priorities = %d, %d, want 29, 64", batches[0].Priority, batches[1].Priority)
	}
	if batches[0].Rank != 29.45 || batches[1].Rank != 64.44 {
		t.Errorf("ranks = %v, %v, want 29.45, 64.44", batches[0].Rank, batches[1].Rank)
	}
	if batches[0].ImgWidth != 188 || batches[0].ImgHeight != 146 {
		t.Errorf("dims = %dx%d, want 188x146", batches[0].ImgWidth, batches[0].ImgHeight)
	}
	if batches[1].Tasks[0].BBoxID != 1 {
		t.Errorf("BBoxID = %d, want 1", batches[1].Tasks[0].BBoxID)
	}
}

func TestCluster_DropNestedThenMerge(t *testing.T) {
	c := newClusterer(t, func(cfg *config.ClusterConfig) {
		cfg.Merge = config.MergeNone
		cfg.DropNested = true
	})
	batches := c.Cluster("1.png", []model.RawBox{
		box(0, 0, 40, 40, 3),
		box(10, 10, 20, 20, 4),
		box(100, 100, 140, 140, 5),
	})
	if len(batches) != 1 || batches[0].BatchSize != 2 {
		t.Fatalf("expected one small batch of 2 tasks, got %+v", batches)
	}
}
