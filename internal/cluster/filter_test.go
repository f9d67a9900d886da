package cluster

import (
	"testing"

	"github.com/me/framesched/pkg/model"
)

func TestDropNested(t *testing.T) {
	tests := []struct {
		name  string
		boxes []model.RawBox
		want  []model.Rect
	}{
		{
			name:  "no containment",
			boxes: []model.RawBox{box(0, 0, 10, 10, 1), box(20, 20, 30, 30, 1)},
			want:  []model.Rect{{X0: 0, Y0: 0, X1: 10, Y1: 10}, {X0: 20, Y0: 20, X1: 30, Y1: 30}},
		},
		{
			name:  "inner removed",
			boxes: []model.RawBox{box(10, 10, 20, 20, 1), box(0, 0, 100, 100, 1)},
			want:  []model.Rect{{X0: 0, Y0: 0, X1: 100, Y1: 100}},
		},
		{
			name:  "duplicates keep first",
			boxes: []model.RawBox{box(0, 0, 50, 50, 1), box(0, 0, 50, 50, 2)},
			want:  []model.Rect{{X0: 0, Y0: 0, X1: 50, Y1: 50}},
		},
		{
			name: "chain of nesting",
			boxes: []model.RawBox{
				box(0, 0, 100, 100, 1),
				box(10, 10, 90, 90, 1),
				box(20, 20, 80, 80, 1),
				box(200, 0, 210, 10, 1),
			},
			want: []model.Rect{{X0: 0, Y0: 0, X1: 100, Y1: 100}, {X0: 200, Y0: 0, X1: 210, Y1: 10}},
		},
		{
			name:  "partial overlap kept",
			boxes: []model.RawBox{box(0, 0, 50, 50, 1), box(25, 25, 75, 75, 1)},
			want:  []model.Rect{{X0: 0, Y0: 0, X1: 50, Y1: 50}, {X0: 25, Y0: 25, X1: 75, Y1: 75}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DropNested(tt.boxes)
			if len(got) != len(tt.want) {
				t.Fatalf("kept %d boxes, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].Rect != tt.want[i] {
					t.Errorf("box %d = %v, want %v", i, got[i].Rect, tt.want[i])
				}
			}
		})
	}
}

func TestDropNested_DoesNotMutateInput(t *testing.T) {
	in := []model.RawBox{box(10, 10, 20, 20, 1), box(0, 0, 100, 100, 1)}
	DropNested(in)
	if len(in) != 2 || in[0].Rect != (model.Rect{X0: 10, Y0: 10, X1: 20, Y1: 20}) {
		t.Errorf("input mutated: %+v", in)
	}
}

func TestFilterOutliers(t *testing.T) {
	var raw []model.RawBox
	for i := range 9 {
		raw = append(raw, box(i*20, 0, i*20+10, 10, 1))
	}
	raw = append(raw, box(0, 100, 1000, 1100, 1))

	working := make([]model.WorkingBox, len(raw))
	for i, r := range raw {
		working[i] = model.WorkingBox{Rect: r.Rect, Depth: r.Depth}
	}

	got := FilterOutliers(working, raw, 1)
	if len(got) != 9 {
		t.Fatalf("kept %d boxes, want 9", len(got))
	}
	for _, wb := range got {
		if wb.Area() != 100 {
			t.Errorf("kept outlier %v", wb.Rect)
		}
	}

	if got := FilterOutliers(working, raw, 4); len(got) != 10 {
		t.Errorf("sigma 4 should keep all boxes, kept %d", len(got))
	}
}

func TestFilterOutliers_UniformAreas(t *testing.T) {
	raw := []model.RawBox{box(0, 0, 10, 10, 1), box(50, 50, 60, 60, 1)}
	working := []model.WorkingBox{{Rect: raw[0].Rect}, {Rect: raw[1].Rect}}
	if got := FilterOutliers(working, raw, 1); len(got) != 2 {
		t.Errorf("equal areas have zero spread and should all be kept, got %d", len(got))
	}
}

func TestFilterOutliers_NoRaw(t *testing.T) {
	working := []model.WorkingBox{{Rect: model.Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}}}
	if got := FilterOutliers(working, nil, 1); len(got) != 1 {
		t.Errorf("expected input unchanged, got %d", len(got))
	}
}
