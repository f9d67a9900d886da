package model

import "strings"

// TaskEntity is one schedulable unit of work tied to one working box.
//
// EnqueueTime, ExecTime, RemainTime, ResponseTime, Order and Missed are owned
// by the scheduler loop; the clusterer leaves them zero.
type TaskEntity struct {
	ImagePath    string  `json:"image_path"`
	ImageOutPath string  `json:"image_out_path"`
	Coord        Rect    `json:"coord"`
	Depth        float64 `json:"depth"`
	Priority     int     `json:"priority"`
	Deadline     int     `json:"deadline"`
	BBoxID       int     `json:"bbox_id"`

	EnqueueTime  int  `json:"enqueue_time"`
	ExecTime     int  `json:"exec_time"`
	RemainTime   int  `json:"remain_time"`
	ResponseTime int  `json:"response_time"`
	Order        int  `json:"order"`
	Missed       bool `json:"missed"`
}

// NewTaskEntity creates a task for the given image region. The deadline is
// derived from depth through the deadline table.
func NewTaskEntity(imagePath string, coord Rect, depth float64, priority, bboxID int, deadlines DeadlineTable) *TaskEntity {
	return &TaskEntity{
		ImagePath:    imagePath,
		ImageOutPath: OutPath(imagePath),
		Coord:        coord,
		Depth:        depth,
		Priority:     priority,
		Deadline:     deadlines.Lookup(depth),
		BBoxID:       bboxID,
	}
}

// Snapshot freezes the task into a history record.
func (t *TaskEntity) Snapshot() HistoryRecord {
	return HistoryRecord{
		ImagePath:    t.ImagePath,
		ImageOutPath: t.ImageOutPath,
		Coord:        t.Coord,
		Depth:        t.Depth,
		Priority:     t.Priority,
		BBoxID:       t.BBoxID,
		EnqueueTime:  t.EnqueueTime,
		ExecTime:     t.ExecTime,
		ResponseTime: t.ResponseTime,
		Deadline:     t.Deadline,
		Missed:       t.Missed,
		Order:        t.Order,
	}
}

// TaskBatch groups tasks that share an output size and a priority. All tasks
// in a batch execute as one atomic unit of simulated time.
type TaskBatch struct {
	Tasks     []*TaskEntity
	BatchSize int
	ImgWidth  int
	ImgHeight int
	Priority  int
	// Rank orders batches of equal priority before enqueue time; lower runs
	// first. Singleton batches carry their depth here.
	Rank float64

	EnqueueTime int
	ExecTime    int
	RemainTime  int
}

// NewTaskBatch builds a batch over tasks. It returns nil when tasks is empty;
// empty batches are never scheduled.
func NewTaskBatch(tasks []*TaskEntity, width, height, priority int) *TaskBatch {
	if len(tasks) == 0 {
		return nil
	}
	return &TaskBatch{
		Tasks:     tasks,
		BatchSize: len(tasks),
		ImgWidth:  width,
		ImgHeight: height,
		Priority:  priority,
	}
}

// SetEnqueueTime stamps the batch and every task with the admission time.
func (b *TaskBatch) SetEnqueueTime(t int) {
	b.EnqueueTime = t
	for _, task := range b.Tasks {
		task.EnqueueTime = t
	}
}

// SetExecTime records the simulated execution time and resets the remaining time.
func (b *TaskBatch) SetExecTime(t int) {
	b.ExecTime = t
	b.RemainTime = t
	for _, task := range b.Tasks {
		task.ExecTime = t
		task.RemainTime = t
	}
}

// SetRemainTime propagates the remaining execution time to every task.
func (b *TaskBatch) SetRemainTime(t int) {
	b.RemainTime = t
	for _, task := range b.Tasks {
		task.RemainTime = t
	}
}

// SetResponseTime propagates the batch response time to every task.
func (b *TaskBatch) SetResponseTime(t int) {
	for _, task := range b.Tasks {
		task.ResponseTime = t
	}
}

// SetOrder records the completion order on every task.
func (b *TaskBatch) SetOrder(order int) {
	for _, task := range b.Tasks {
		task.Order = order
	}
}

// HistoryRecord is an immutable snapshot of a completed task.
type HistoryRecord struct {
	ImagePath    string  `json:"image_path" yaml:"image_path"`
	ImageOutPath string  `json:"image_out_path" yaml:"image_out_path"`
	Coord        Rect    `json:"coord" yaml:"coord,flow"`
	Depth        float64 `json:"depth" yaml:"depth"`
	Priority     int     `json:"priority" yaml:"priority"`
	BBoxID       int     `json:"bbox_id" yaml:"bbox_id"`
	EnqueueTime  int     `json:"enqueue_time" yaml:"enqueue_time"`
	ExecTime     int     `json:"exec_time" yaml:"exec_time"`
	ResponseTime int     `json:"response_time" yaml:"response_time"`
	Deadline     int     `json:"deadline" yaml:"deadline"`
	Missed       bool    `json:"missed" yaml:"missed"`
	Order        int     `json:"order" yaml:"order"`
}

// ImageName returns the final path element of an image path.
func ImageName(imagePath string) string {
	if i := strings.LastIndexAny(imagePath, `/\`); i >= 0 {
		return imagePath[i+1:]
	}
	return imagePath
}

// OutPath returns the visualization output path for an image: the image name
// under an "out" directory next to it.
func OutPath(imagePath string) string {
	name := ImageName(imagePath)
	dir := strings.TrimSuffix(imagePath, name)
	return dir + "out/" + name
}
