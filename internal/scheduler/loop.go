package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/me/framesched/internal/cluster"
	"github.com/me/framesched/internal/config"
	"github.com/me/framesched/internal/costmodel"
	"github.com/me/framesched/internal/detection"
	"github.com/me/framesched/internal/history"
	"github.com/me/framesched/internal/runqueue"
	"github.com/me/framesched/pkg/model"
)

// ErrTruncated is returned by RunUntil when the time limit is reached before
// the simulation drains.
var ErrTruncated = errors.New("simulation truncated")

// Config holds scheduler configuration.
type Config struct {
	FramePeriod int // ticks between frame arrivals
	NumFrames   int // 0 = every frame supplied
	MaxSimTime  int // 0 = no limit; Run stops at this tick
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{FramePeriod: 100}
}

// ConfigFrom extracts the scheduler settings of a simulation config.
func ConfigFrom(sim config.SimConfig) Config {
	return Config{
		FramePeriod: sim.FramePeriod,
		NumFrames:   sim.NumFrames,
		MaxSimTime:  sim.MaxSimTime,
	}
}

// Result is the outcome of a simulation.
type Result struct {
	State          model.LoopState
	SimTime        int
	Counters       model.Counters
	MissRate       model.MissRate
	History        []model.HistoryRecord
	ScheduledBoxes map[string][]model.ScheduledBox
	Err            error
}

var _ Scheduler = (*Loop)(nil)

// Loop implements the Scheduler interface. It owns the run queue, the
// currently executing batch, the history recorder and all task counters.
type Loop struct {
	frames    []string
	source    detection.Source
	clusterer *cluster.Clusterer
	cost      costmodel.Model
	config    Config
	logger    *slog.Logger

	queue     *runqueue.Queue
	running   *model.TaskBatch
	recorder  *history.Recorder
	simTime   int
	nextFrame int
	state     model.LoopState
	err       error
	counters  model.Counters
}

// NewLoop creates a scheduler loop over frames, in arrival order. Only the
// first cfg.NumFrames frames arrive when NumFrames is positive.
func NewLoop(frames []string, src detection.Source, cl *cluster.Clusterer, cost costmodel.Model, cfg Config, logger *slog.Logger) (*Loop, error) {
	if cfg.FramePeriod <= 0 {
		return nil, &model.ConfigError{Field: "frame_period", Message: fmt.Sprintf("must be > 0, got %d", cfg.FramePeriod)}
	}
	if cfg.NumFrames < 0 {
		return nil, &model.ConfigError{Field: "num_frames", Message: fmt.Sprintf("must be >= 0, got %d", cfg.NumFrames)}
	}
	if cfg.MaxSimTime < 0 {
		return nil, &model.ConfigError{Field: "max_sim_time", Message: fmt.Sprintf("must be >= 0, got %d", cfg.MaxSimTime)}
	}
	if src == nil || cl == nil || cost == nil {
		return nil, errors.New("scheduler: source, clusterer and cost model are required")
	}

	if cfg.NumFrames > 0 && cfg.NumFrames < len(frames) {
		frames = frames[:cfg.NumFrames]
	}

	l := &Loop{
		frames:    frames,
		source:    src,
		clusterer: cl,
		cost:      cost,
		config:    cfg,
		logger:    logger.With("component", "scheduler"),
		queue:     runqueue.New(),
		recorder:  history.NewRecorder(),
		state:     model.LoopStateRunning,
	}
	if l.drained() {
		l.transition(model.LoopStateDrained)
	}
	return l, nil
}

// Run steps until the simulation drains, fails, or reaches MaxSimTime. A run
// cut short by MaxSimTime returns ErrTruncated.
func (l *Loop) Run(ctx context.Context) error {
	if l.config.MaxSimTime > 0 {
		return l.RunUntil(ctx, l.config.MaxSimTime)
	}
	l.logger.Info("simulation started", "frames", len(l.frames), "frame_period", l.config.FramePeriod)
	for !l.state.IsTerminal() {
		if err := l.Step(ctx); err != nil {
			return err
		}
	}
	l.logSummary()
	return nil
}

// RunUntil steps until simTime reaches limit or the simulation ends. Tasks
// still pending at the limit are counted in Counters.PendingTasks.
func (l *Loop) RunUntil(ctx context.Context, limit int) error {
	l.logger.Info("simulation started", "frames", len(l.frames), "frame_period", l.config.FramePeriod, "limit", limit)
	for !l.state.IsTerminal() && l.simTime < limit {
		if err := l.Step(ctx); err != nil {
			return err
		}
	}
	l.logSummary()
	if !l.state.IsTerminal() {
		return ErrTruncated
	}
	return nil
}

// Step runs a single tick.
func (l *Loop) Step(ctx context.Context) error {
	switch l.state {
	case model.LoopStateFailed:
		return l.err
	case model.LoopStateDrained:
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Phase 1: Admit the frame arriving at this tick.
	if err := l.arrive(); err != nil {
		l.fail(err)
		return err
	}

	// Phase 2: Advance the running batch.
	l.execute()

	l.simTime++
	if l.drained() {
		l.transition(model.LoopStateDrained)
	}
	return nil
}

// arrive clusters the next frame and enqueues its batches when the frame
// period divides the current time.
func (l *Loop) arrive() error {
	if l.simTime%l.config.FramePeriod != 0 || l.nextFrame >= len(l.frames) {
		return nil
	}
	frame := l.frames[l.nextFrame]
	l.nextFrame++

	boxes, err := l.source.Boxes(frame)
	if err != nil {
		return fmt.Errorf("frame %d at t=%d: %w", l.nextFrame-1, l.simTime, err)
	}

	batches := l.clusterer.Cluster(frame, boxes)
	for _, b := range batches {
		if err := l.enqueue(frame, b); err != nil {
			return err
		}
	}
	l.logger.Debug("frame arrived",
		"frame", model.ImageName(frame),
		"t", l.simTime,
		"boxes", len(boxes),
		"batches", len(batches),
	)
	return nil
}

func (l *Loop) enqueue(frame string, b *model.TaskBatch) error {
	if b == nil || b.BatchSize == 0 {
		return nil
	}
	exec, err := l.cost.ExecTime(b.ImgWidth, b.ImgHeight, b.BatchSize)
	if err != nil {
		return fmt.Errorf("cost of %dx%d batch from %s: %w", b.ImgWidth, b.ImgHeight, model.ImageName(frame), err)
	}
	if exec < 1 {
		return fmt.Errorf("cost of %dx%d batch from %s: execution time %d < 1", b.ImgWidth, b.ImgHeight, model.ImageName(frame), exec)
	}

	for _, task := range b.Tasks {
		l.recorder.RecordScheduled(task.ImagePath, task.Coord, task.Depth)
	}
	b.SetEnqueueTime(l.simTime)
	b.SetExecTime(exec)
	l.queue.Push(b)

	l.counters.EnqueuedBatches++
	l.counters.EnqueuedTasks += b.BatchSize
	return nil
}

// execute starts the head batch when nothing is running, then charges one
// tick to the running batch. A started batch runs to completion regardless of
// later arrivals.
func (l *Loop) execute() {
	if l.running == nil {
		l.running = l.queue.Pop()
		if l.running == nil {
			return
		}
	}

	l.running.SetRemainTime(l.running.RemainTime - 1)
	if l.running.RemainTime > 0 {
		return
	}
	l.complete(l.running)
	l.running = nil
}

func (l *Loop) complete(b *model.TaskBatch) {
	l.counters.CompletedBatches++
	b.SetOrder(l.counters.CompletedBatches)
	b.SetResponseTime(l.simTime - b.EnqueueTime + 1)

	for _, task := range b.Tasks {
		task.Missed = task.ResponseTime > task.Deadline
		if task.Missed {
			l.counters.MissedTasks++
			l.logger.Debug("deadline missed",
				"image", model.ImageName(task.ImagePath),
				"bbox_id", task.BBoxID,
				"response_time", task.ResponseTime,
				"deadline", task.Deadline,
			)
		}
		l.counters.CompletedTasks++
		l.recorder.Record(task)
	}

	l.logger.Debug("batch completed",
		"order", l.counters.CompletedBatches,
		"t", l.simTime,
		"priority", b.Priority,
		"size", b.BatchSize,
		"response_time", l.simTime-b.EnqueueTime+1,
	)
}

func (l *Loop) drained() bool {
	return l.nextFrame >= len(l.frames) && l.running == nil && l.queue.Len() == 0
}

func (l *Loop) transition(next model.LoopState) {
	if !l.state.CanTransitionTo(next) {
		return
	}
	l.logger.Debug("state transition", "from", l.state, "to", next, "t", l.simTime)
	l.state = next
}

func (l *Loop) fail(err error) {
	l.err = err
	l.transition(model.LoopStateFailed)
}

func (l *Loop) logSummary() {
	c := l.Counters()
	l.logger.Info("simulation stopped",
		"state", l.state,
		"t", l.simTime,
		"completed_tasks", c.CompletedTasks,
		"missed_tasks", c.MissedTasks,
		"pending_tasks", c.PendingTasks,
		"miss_rate", c.MissRate().String(),
	)
}

// State returns the current lifecycle state.
func (l *Loop) State() model.LoopState {
	return l.state
}

// SimTime returns the current simulated time.
func (l *Loop) SimTime() int {
	return l.simTime
}

// Err returns the fatal error of a failed loop.
func (l *Loop) Err() error {
	return l.err
}

// PendingTasks returns the number of admitted tasks not yet completed,
// including the running batch.
func (l *Loop) PendingTasks() int {
	n := l.queue.Tasks()
	if l.running != nil {
		n += l.running.BatchSize
	}
	return n
}

// Counters returns the task accounting figures.
func (l *Loop) Counters() model.Counters {
	c := l.counters
	c.PendingTasks = l.PendingTasks()
	return c
}

// History returns the loop's recorder. Callers must not record into it.
func (l *Loop) History() *history.Recorder {
	return l.recorder
}

// Result snapshots the outcome so far.
func (l *Loop) Result() Result {
	c := l.Counters()
	return Result{
		State:          l.state,
		SimTime:        l.simTime,
		Counters:       c,
		MissRate:       c.MissRate(),
		History:        l.recorder.Records(),
		ScheduledBoxes: l.recorder.ScheduledBoxes(),
		Err:            l.err,
	}
}
