// Package runqueue holds admitted task batches ordered by
// (priority, rank, enqueue time, admission order).
package runqueue

import (
	"container/heap"

	"github.com/me/framesched/pkg/model"
)

type entry struct {
	batch *model.TaskBatch
	seq   uint64
}

// less orders entries; lower priority values run first.
func (e entry) less(o entry) bool {
	if e.batch.Priority != o.batch.Priority {
		return e.batch.Priority < o.batch.Priority
	}
	if e.batch.Rank != o.batch.Rank {
		return e.batch.Rank < o.batch.Rank
	}
	if e.batch.EnqueueTime != o.batch.EnqueueTime {
		return e.batch.EnqueueTime < o.batch.EnqueueTime
	}
	return e.seq < o.seq
}

type entries []entry

func (h entries) Len() int           { return len(h) }
func (h entries) Less(i, j int) bool { return h[i].less(h[j]) }
func (h entries) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entries) Push(x any)        { *h = append(*h, x.(entry)) }
func (h *entries) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}

// Queue is a min-heap of task batches. Batches with equal priority and equal
// enqueue time leave in the order they were pushed. The zero value is not
// usable; call New.
type Queue struct {
	h     entries
	seq   uint64
	tasks int
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Push admits a batch. The batch's priority and enqueue time must not change
// while it is queued. Nil and empty batches are ignored.
func (q *Queue) Push(b *model.TaskBatch) {
	if b == nil || b.BatchSize == 0 {
		return
	}
	heap.Push(&q.h, entry{batch: b, seq: q.seq})
	q.seq++
	q.tasks += b.BatchSize
}

// Peek returns the head batch without removing it, or nil when empty.
func (q *Queue) Peek() *model.TaskBatch {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0].batch
}

// Pop removes and returns the head batch, or nil when empty.
func (q *Queue) Pop() *model.TaskBatch {
	if len(q.h) == 0 {
		return nil
	}
	e := heap.Pop(&q.h).(entry)
	q.tasks -= e.batch.BatchSize
	return e.batch
}

// Len returns the number of queued batches.
func (q *Queue) Len() int {
	return len(q.h)
}

// Tasks returns the number of tasks across all queued batches.
func (q *Queue) Tasks() int {
	return q.tasks
}
