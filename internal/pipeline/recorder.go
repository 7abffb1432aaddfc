package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/me/virocov/internal/execution"
	"github.com/me/virocov/internal/store"
	"github.com/me/virocov/pkg/model"
)

// StageRunner executes a named stage.
type StageRunner interface {
	RunStage(ctx context.Context, req execution.StageRequest) (*execution.StageResult, error)
}

// recordingRunner writes one ledger row per stage it runs.
type recordingRunner struct {
	next   StageRunner
	store  store.Store
	runID  string
	sample string
	onErr  func(error)
}

func (r *recordingRunner) RunStage(ctx context.Context, req execution.StageRequest) (*execution.StageResult, error) {
	res, err := r.next.RunStage(ctx, req)
	if r.store == nil || r.runID == "" {
		return res, err
	}

	sr := &model.StageRun{
		RunID:   r.runID,
		Sample:  r.sample,
		Stage:   req.Stage,
		State:   model.StateRunning,
		Command: []string{},
	}
	finished := time.Now()
	if res != nil {
		sr.Command = res.Command
		sr.StartedAt = res.Started
		finished = res.Finished
	}
	if sr.StartedAt.IsZero() {
		sr.StartedAt = finished
	}

	state := model.StateSuccess
	var exitCode *int
	if res != nil && !res.Started.IsZero() {
		code := res.ExitCode
		exitCode = &code
	}
	if err != nil {
		state = model.StateFailed
		var execErr *execution.ExecutionError
		if errors.As(err, &execErr) && execErr.ExitCode != 0 {
			code := execErr.ExitCode
			exitCode = &code
		}
	}

	// Record even when the run was cancelled.
	rctx := context.WithoutCancel(ctx)
	if cerr := r.store.CreateStageRun(rctx, sr); cerr != nil {
		r.onErr(cerr)
		return res, err
	}
	if ferr := r.store.FinishStageRun(rctx, sr.ID, state, exitCode, finished); ferr != nil {
		r.onErr(ferr)
	}
	return res, err
}
