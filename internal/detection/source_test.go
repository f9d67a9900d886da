package detection

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/me/framesched/pkg/model"
)

const sampleDetections = `{
  "10.png": [[0, 0, 50, 50, 5.2, 1]],
  "2.png":  [[644, 655, 729, 720, 64.44, 2], [571, 667, 759, 813, 29.45, 1]],
  "1.png":  []
}`

func TestDecodeJSON(t *testing.T) {
	src, err := DecodeJSON(strings.NewReader(sampleDetections))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if src.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", src.Len())
	}

	boxes, err := src.Boxes("../dataset/2.png")
	if err != nil {
		t.Fatalf("Boxes: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("len(boxes) = %d, want 2", len(boxes))
	}
	if boxes[1].Depth != 29.45 || boxes[1].ClassID != 1 {
		t.Errorf("boxes[1] = %+v", boxes[1])
	}

	empty, err := src.Boxes("1.png")
	if err != nil {
		t.Fatalf("Boxes(1.png): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no boxes, got %d", len(empty))
	}
}

func TestMapSource_MissingFrame(t *testing.T) {
	src := NewMapSource(nil)
	_, err := src.Boxes("missing.png")
	if !errors.Is(err, model.ErrMissingFrame) {
		t.Fatalf("err = %v, want ErrMissingFrame", err)
	}
	if !strings.Contains(err.Error(), "missing.png") {
		t.Errorf("error should name the frame: %v", err)
	}
}

func TestMapSource_BoxesReturnsCopy(t *testing.T) {
	src := NewMapSource(map[string][]model.RawBox{
		"1.png": {{Rect: model.Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}, Depth: 1}},
	})
	boxes, _ := src.Boxes("1.png")
	boxes[0].X1 = 999

	again, _ := src.Boxes("1.png")
	if again[0].X1 != 10 {
		t.Errorf("source mutated through returned slice: X1 = %d", again[0].X1)
	}
}

func TestMapSource_Frames(t *testing.T) {
	src, err := DecodeJSON(strings.NewReader(sampleDetections))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	want := []string{"1.png", "2.png", "10.png"}
	if got := src.Frames(); !slices.Equal(got, want) {
		t.Errorf("Frames() = %v, want %v", got, want)
	}

	withDir := FramesFromSource(src, "data")
	if withDir[2] != filepath.Join("data", "10.png") {
		t.Errorf("FramesFromSource()[2] = %q", withDir[2])
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.json")
	if err := os.WriteFile(path, []byte(sampleDetections), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if src.Len() != 3 {
		t.Errorf("Len() = %d, want 3", src.Len())
	}

	if _, err := LoadJSON(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestListFrames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame_100.png", "frame_9.png", "frame_10.png", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "out.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	frames, err := ListFrames(dir)
	if err != nil {
		t.Fatalf("ListFrames: %v", err)
	}
	var names []string
	for _, f := range frames {
		names = append(names, filepath.Base(f))
	}
	want := []string{"frame_9.png", "frame_10.png", "frame_100.png"}
	if !slices.Equal(names, want) {
		t.Errorf("ListFrames() = %v, want %v", names, want)
	}
}

func TestSortNumeric(t *testing.T) {
	ids := []string{"0020.png", "3.png", "00000000000000000000000000001.png", "b.png", "a.png"}
	SortNumeric(ids)
	want := []string{"a.png", "b.png", "00000000000000000000000000001.png", "3.png", "0020.png"}
	if !slices.Equal(ids, want) {
		t.Errorf("SortNumeric() = %v, want %v", ids, want)
	}
}

func TestLimit(t *testing.T) {
	frames := []string{"1", "2", "3"}
	tests := []struct {
		n    int
		want int
	}{
		{0, 3},
		{2, 2},
		{5, 3},
		{-1, 3},
	}
	for _, tt := range tests {
		if got := len(Limit(frames, tt.n)); got != tt.want {
			t.Errorf("Limit(%d) = %d frames, want %d", tt.n, got, tt.want)
		}
	}
}
