package execution

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrNoDockerImage = errors.New("container execution requested but no docker image specified")
	ErrNonZeroExit   = errors.New("command exited with non-zero status")
	ErrEmptyCommand  = errors.New("empty command")
	ErrNoOutput      = errors.New("declared output not produced")
)

// ExecutionError wraps errors with execution phase context.
type ExecutionError struct {
	Phase    string // "setup", "build_command", "execute", "collect_outputs"
	Err      error
	ExitCode int
}

func (e *ExecutionError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("%s: %v (exit code %d)", e.Phase, e.Err, e.ExitCode)
	}
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error to a process exit status: 0 for nil, the stage's
// own exit code when a stage exited non-zero, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) && execErr.ExitCode > 0 && execErr.ExitCode < 256 {
		return execErr.ExitCode
	}
	return 1
}
