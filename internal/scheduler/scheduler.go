package scheduler

import (
	"context"

	"github.com/me/framesched/pkg/model"
)

// Scheduler advances a discrete-time simulation of frame arrivals and batch
// execution.
type Scheduler interface {
	// Run steps until the simulation drains or fails.
	Run(ctx context.Context) error

	// Step advances simulated time by one tick. Used for testing.
	Step(ctx context.Context) error

	// State reports the lifecycle state of the simulation.
	State() model.LoopState
}
