package model

import (
	"fmt"
	"time"
)

// MissRate is the fraction of completed tasks that missed their deadline.
// It is undefined when no task completed.
type MissRate struct {
	Missed    int `json:"missed"`
	Completed int `json:"completed"`
}

// Value returns the rate and false when no task completed.
func (m MissRate) Value() (float64, bool) {
	if m.Completed == 0 {
		return 0, false
	}
	return float64(m.Missed) / float64(m.Completed), true
}

// String formats the rate with three decimals, or "no data".
func (m MissRate) String() string {
	v, ok := m.Value()
	if !ok {
		return "no data"
	}
	return fmt.Sprintf("%.3f", v)
}

// Counters are the task accounting figures of a scheduler loop.
type Counters struct {
	EnqueuedTasks    int `json:"enqueued_tasks"`
	EnqueuedBatches  int `json:"enqueued_batches"`
	CompletedTasks   int `json:"completed_tasks"`
	CompletedBatches int `json:"completed_batches"`
	MissedTasks      int `json:"missed_tasks"`
	PendingTasks     int `json:"pending_tasks"`
}

// MissRate returns the deadline miss rate over completed tasks.
func (c Counters) MissRate() MissRate {
	return MissRate{Missed: c.MissedTasks, Completed: c.CompletedTasks}
}

// Run is a persisted simulation run.
type Run struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Source      string         `json:"source,omitempty"` // detection file the run read
	Status      RunStatus      `json:"status"`
	Error       string         `json:"error,omitempty"`
	FramePeriod int            `json:"frame_period"`
	Frames      int            `json:"frames"`
	SimTime     int            `json:"sim_time"`
	Counters    Counters       `json:"counters"`
	MissRate    *float64       `json:"miss_rate"`
	Config      map[string]any `json:"config,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Duration    time.Duration  `json:"duration_ns"`
}
