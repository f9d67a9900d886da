// Package detection supplies per-frame raw detection boxes to the scheduler
// and lists the frames of a dataset in arrival order.
package detection

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/me/framesched/pkg/model"
)

// Source returns the raw detection boxes for a frame. A frame the source
// knows nothing about yields a *model.MissingFrameError.
type Source interface {
	Boxes(frameID string) ([]model.RawBox, error)
}

// MapSource is an in-memory Source keyed by image name. Lookups strip any
// directory from the frame identifier, so both "0001.png" and
// "../dataset/0001.png" resolve to the same entry.
type MapSource struct {
	boxes map[string][]model.RawBox
}

// NewMapSource creates a source over boxes keyed by image name.
func NewMapSource(boxes map[string][]model.RawBox) *MapSource {
	if boxes == nil {
		boxes = map[string][]model.RawBox{}
	}
	return &MapSource{boxes: boxes}
}

// Boxes returns a copy of the detections recorded for frameID.
func (s *MapSource) Boxes(frameID string) ([]model.RawBox, error) {
	boxes, ok := s.boxes[model.ImageName(frameID)]
	if !ok {
		return nil, &model.MissingFrameError{FrameID: frameID}
	}
	return slices.Clone(boxes), nil
}

// Frames returns the image names known to the source in numeric order.
func (s *MapSource) Frames() []string {
	ids := make([]string, 0, len(s.boxes))
	for id := range s.boxes {
		ids = append(ids, id)
	}
	SortNumeric(ids)
	return ids
}

// Len returns the number of frames in the source.
func (s *MapSource) Len() int {
	return len(s.boxes)
}

// LoadJSON reads a detection file: a JSON object mapping image names to
// lists of [x0, y0, x1, y1, depth, classId] entries.
func LoadJSON(path string) (*MapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detections: %w", err)
	}
	defer f.Close()

	src, err := DecodeJSON(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return src, nil
}

// DecodeJSON decodes a detection mapping from r.
func DecodeJSON(r io.Reader) (*MapSource, error) {
	var boxes map[string][]model.RawBox
	if err := json.NewDecoder(r).Decode(&boxes); err != nil {
		return nil, err
	}
	return NewMapSource(boxes), nil
}

// ListFrames returns the paths of all PNG images in dir, ordered by the
// number formed from the digits of each file name.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	var frames []string
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), ".png") {
			continue
		}
		frames = append(frames, filepath.Join(dir, e.Name()))
	}
	SortNumeric(frames)
	return frames, nil
}

// FramesFromSource lists the frames of a source whose boxes are keyed by
// name. dir, when non-empty, is joined in front of each name.
func FramesFromSource(src *MapSource, dir string) []string {
	frames := src.Frames()
	if dir == "" {
		return frames
	}
	for i, name := range frames {
		frames[i] = filepath.Join(dir, name)
	}
	return frames
}

// Limit returns the first n frames, or all of them when n is 0 or exceeds
// the number available.
func Limit(frames []string, n int) []string {
	if n <= 0 || n >= len(frames) {
		return frames
	}
	return frames[:n]
}

// SortNumeric orders identifiers by the integer formed from the digits in
// their base name. Names with equal numbers fall back to lexical order.
func SortNumeric(ids []string) {
	slices.SortStableFunc(ids, func(a, b string) int {
		if c := compareDigits(digitsOf(model.ImageName(a)), digitsOf(model.ImageName(b))); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return strings.TrimLeft(b.String(), "0")
}

// compareDigits compares two non-negative decimal strings without leading
// zeros, so arbitrarily long numbers never overflow.
func compareDigits(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
