package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Rect is an axis-aligned pixel rectangle, (X0, Y0) top-left and (X1, Y1)
// bottom-right.
type Rect struct {
	X0 int
	Y0 int
	X1 int
	Y1 int
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() int { return abs(r.X1 - r.X0) }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() int { return abs(r.Y1 - r.Y0) }

// Area returns width * height.
func (r Rect) Area() int { return r.Width() * r.Height() }

// Dim returns the bounding dimension max(width, height).
func (r Rect) Dim() int { return max(r.Width(), r.Height()) }

// Union returns the axis-wise bounding rectangle of r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		X0: min(r.X0, o.X0),
		Y0: min(r.Y0, o.Y0),
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
	}
}

// Contains reports whether o lies entirely inside r (edges inclusive).
func (r Rect) Contains(o Rect) bool {
	return o.X0 >= r.X0 && o.Y0 >= r.Y0 && o.X1 <= r.X1 && o.Y1 <= r.Y1
}

// Intersect returns the overlapping region of r and o. ok is false when the
// rectangles share no interior area.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	in := Rect{
		X0: max(r.X0, o.X0),
		Y0: max(r.Y0, o.Y0),
		X1: min(r.X1, o.X1),
		Y1: min(r.Y1, o.Y1),
	}
	if in.X0 >= in.X1 || in.Y0 >= in.Y1 {
		return Rect{}, false
	}
	return in, true
}

// Resize re-anchors r at its top-left corner with the given width and height.
func (r Rect) Resize(width, height int) Rect {
	return Rect{X0: r.X0, Y0: r.Y0, X1: r.X0 + width, Y1: r.Y0 + height}
}

// Within reports whether r lies inside a frame of the given size.
func (r Rect) Within(frame FrameSize) bool {
	return r.X0 >= 0 && r.Y0 >= 0 && r.X1 <= frame.Width && r.Y1 <= frame.Height
}

// String formats r as "(x0,y0), (x1,y1)".
func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d), (%d,%d)", r.X0, r.Y0, r.X1, r.Y1)
}

// MarshalJSON encodes r as [x0, y0, x1, y1].
func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X0, r.Y0, r.X1, r.Y1})
}

// UnmarshalJSON decodes r from [x0, y0, x1, y1].
func (r *Rect) UnmarshalJSON(data []byte) error {
	var v [4]int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("rect: %w", err)
	}
	*r = Rect{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}
	return nil
}

// MarshalYAML encodes r as a flow sequence [x0, y0, x1, y1].
func (r Rect) MarshalYAML() (any, error) {
	return []int{r.X0, r.Y0, r.X1, r.Y1}, nil
}

// FrameSize is the pixel size of a full frame.
type FrameSize struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Rect returns the full-frame rectangle.
func (f FrameSize) Rect() Rect {
	return Rect{X1: f.Width, Y1: f.Height}
}

// RawBox is one detection as delivered by the detection source.
type RawBox struct {
	Rect
	Depth   float64
	ClassID int
}

// UnmarshalJSON decodes a detection entry [x0, y0, x1, y1, depth, classId].
// Coordinates and class are truncated toward zero; classId is optional.
func (b *RawBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("detection entry: %w", err)
	}
	if len(v) < 5 {
		return fmt.Errorf("detection entry: want at least 5 fields, got %d", len(v))
	}
	*b = RawBox{
		Rect: Rect{
			X0: int(v[0]),
			Y0: int(v[1]),
			X1: int(v[2]),
			Y1: int(v[3]),
		},
		Depth: v[4],
	}
	if len(v) > 5 {
		b.ClassID = int(v[5])
	}
	return nil
}

// MarshalJSON encodes b as [x0, y0, x1, y1, depth, classId].
func (b RawBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{b.X0, b.Y0, b.X1, b.Y1, b.Depth, b.ClassID})
}

// WorkingBox is a merged cluster of one or more raw boxes. Depth is taken
// from the member that merged into it last.
type WorkingBox struct {
	Rect
	Depth float64
}

// ScheduledBox is a box that was admitted to the run queue, kept for
// downstream coverage analysis.
type ScheduledBox struct {
	Rect
	Depth float64
}

// MarshalJSON encodes b as [x0, y0, x1, y1, depth].
func (b ScheduledBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{b.X0, b.Y0, b.X1, b.Y1, b.Depth})
}

// UnmarshalJSON decodes b from [x0, y0, x1, y1, depth, ...]. Extra trailing
// fields are ignored.
func (b *ScheduledBox) UnmarshalJSON(data []byte) error {
	var raw RawBox
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = ScheduledBox{Rect: raw.Rect, Depth: raw.Depth}
	return nil
}

// MarshalYAML encodes b as a flow sequence [x0, y0, x1, y1, depth].
func (b ScheduledBox) MarshalYAML() (any, error) {
	return []any{b.X0, b.Y0, b.X1, b.Y1, b.Depth}, nil
}

// DeadlineTable maps object depth to a response-time deadline. Depths are
// bucketed in Bucket-sized ranges; depths past the last bucket use the last entry.
type DeadlineTable struct {
	Bucket    float64 `yaml:"bucket" json:"bucket"`
	Deadlines []int   `yaml:"deadlines" json:"deadlines"`
}

// DefaultDeadlineTable returns the 10-unit table used by the reference dataset.
func DefaultDeadlineTable() DeadlineTable {
	return DeadlineTable{
		Bucket:    10,
		Deadlines: []int{30, 50, 60, 70, 80, 100, 100, 100, 100, 100},
	}
}

// Lookup returns the deadline for the given depth.
func (t DeadlineTable) Lookup(depth float64) int {
	if len(t.Deadlines) == 0 {
		return 0
	}
	return t.Deadlines[DepthGroup(depth, t.Bucket, len(t.Deadlines))]
}

// DepthGroup returns the bucket index of depth, clamped to [0, groups-1].
func DepthGroup(depth, bucket float64, groups int) int {
	if groups <= 0 {
		return 0
	}
	if bucket <= 0 || math.IsNaN(depth) || depth < 0 {
		return 0
	}
	q := depth / bucket
	if q >= float64(groups) {
		return groups - 1
	}
	return int(q)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
