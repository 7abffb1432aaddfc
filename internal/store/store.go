// Package store persists the run ledger: one row per pipeline run and one per
// stage invocation.
package store

import (
	"context"
	"time"

	"github.com/me/virocov/pkg/model"
)

// Store defines the persistence layer for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, id string, state model.State, errMsg string, at time.Time) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)

	// Stage runs
	CreateStageRun(ctx context.Context, sr *model.StageRun) error
	FinishStageRun(ctx context.Context, id string, state model.State, exitCode *int, at time.Time) error
	ListStageRuns(ctx context.Context, runID string) ([]*model.StageRun, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
