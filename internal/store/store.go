package store

import (
	"context"

	"github.com/me/framesched/pkg/model"
)

// Store defines the persistence layer for simulation runs.
type Store interface {
	// Run CRUD. Get returns (nil, nil) when the run does not exist.
	CreateRun(ctx context.Context, run *model.Run, history []model.HistoryRecord, boxes map[string][]model.ScheduledBox) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	DeleteRun(ctx context.Context, id string) error

	// Run outputs
	ListHistory(ctx context.Context, runID string, opts model.ListOptions) ([]model.HistoryRecord, int, error)
	AllHistory(ctx context.Context, runID string) ([]model.HistoryRecord, error)
	ListScheduledBoxes(ctx context.Context, runID string) (map[string][]model.ScheduledBox, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
