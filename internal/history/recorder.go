// Package history accumulates completed task records and the boxes admitted
// per image, and exports them.
package history

import (
	"slices"

	"github.com/me/framesched/pkg/model"
)

// Recorder is an append-only log of completed tasks plus the scheduled box
// list of every image. It is written by one scheduler loop and is not safe
// for concurrent use.
type Recorder struct {
	records   []model.HistoryRecord
	scheduled map[string][]model.ScheduledBox
	images    []string
	missed    int
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{scheduled: make(map[string][]model.ScheduledBox)}
}

// Record appends a snapshot of a completed task.
func (r *Recorder) Record(t *model.TaskEntity) {
	rec := t.Snapshot()
	r.records = append(r.records, rec)
	if rec.Missed {
		r.missed++
	}
}

// RecordScheduled notes a box admitted to the run queue for the given image.
// Boxes are keyed by image name.
func (r *Recorder) RecordScheduled(imagePath string, coord model.Rect, depth float64) {
	name := model.ImageName(imagePath)
	if _, ok := r.scheduled[name]; !ok {
		r.images = append(r.images, name)
	}
	r.scheduled[name] = append(r.scheduled[name], model.ScheduledBox{Rect: coord, Depth: depth})
}

// Len returns the number of history records.
func (r *Recorder) Len() int {
	return len(r.records)
}

// Records returns a copy of the history in completion order.
func (r *Recorder) Records() []model.HistoryRecord {
	return slices.Clone(r.records)
}

// ScheduledBoxes returns a copy of the per-image scheduled boxes.
func (r *Recorder) ScheduledBoxes() map[string][]model.ScheduledBox {
	out := make(map[string][]model.ScheduledBox, len(r.scheduled))
	for name, boxes := range r.scheduled {
		out[name] = slices.Clone(boxes)
	}
	return out
}

// Images returns image names in the order their first box was scheduled.
func (r *Recorder) Images() []string {
	return slices.Clone(r.images)
}

// MissRate returns the deadline miss rate over recorded tasks.
func (r *Recorder) MissRate() model.MissRate {
	return model.MissRate{Missed: r.missed, Completed: len(r.records)}
}
