package pipeline

import (
	"errors"
	"fmt"

	"github.com/me/virocov/internal/execution"
)

// ErrStageFailure marks a stage that could not run or exited unsuccessfully.
var ErrStageFailure = errors.New("stage failed")

// StageError wraps the failure of one stage. Sample is empty for the index build.
type StageError struct {
	Sample string
	Stage  string
	Err    error
}

func (e *StageError) Error() string {
	if e.Sample == "" {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("sample %s: stage %s: %v", e.Sample, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is reports StageError as ErrStageFailure.
func (e *StageError) Is(target error) bool {
	return target == ErrStageFailure
}

// ExitCode maps a run error to the process exit status: 0 on success, the
// failing stage's exit code when it has one, 1 otherwise.
func ExitCode(err error) int {
	return execution.ExitCode(err)
}
