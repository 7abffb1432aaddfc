package execution

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Runtime abstracts the execution environment (local process, Docker, etc.).
type Runtime interface {
	// Run executes a command and returns the result.
	Run(ctx context.Context, spec RunSpec) (*RunResult, error)
}

// RunSpec describes what to execute.
type RunSpec struct {
	Command []string          // Command and arguments
	WorkDir string            // Working directory, mounted at the same path in containers
	Env     map[string]string // Environment variables
	Stdout  string            // File in WorkDir capturing stdout (optional)
	Stderr  string            // File in WorkDir capturing stderr (optional)
	Image   string            // Container image (ignored by LocalRuntime)
	Volumes map[string]string // Host path -> container path, mounted read-only
}

// RunResult holds the result of a command execution.
type RunResult struct {
	ExitCode int
	Stdout   string // Captured stdout content (if not redirected to file)
	Stderr   string // Captured stderr content (if not redirected to file)
}

// NewRuntime returns the runtime registered under name: "none" (or empty)
// for local processes, "docker" or "apptainer".
func NewRuntime(name string) (Runtime, error) {
	switch name {
	case "", "none", "local":
		return &LocalRuntime{}, nil
	case "docker":
		return &DockerRuntime{}, nil
	case "apptainer", "singularity":
		return &ApptainerRuntime{}, nil
	default:
		return nil, fmt.Errorf("unknown runtime %q", name)
	}
}

// runProcess wires stdio for spec onto cmd, runs it and translates the exit status.
func runProcess(cmd *exec.Cmd, spec RunSpec) (*RunResult, error) {
	var stdoutBuf, stderrBuf bytes.Buffer

	if spec.Stdout != "" {
		f, err := os.Create(filepath.Join(spec.WorkDir, spec.Stdout))
		if err != nil {
			return nil, fmt.Errorf("create stdout file: %w", err)
		}
		defer f.Close()
		cmd.Stdout = f
	} else {
		cmd.Stdout = &stdoutBuf
	}

	if spec.Stderr != "" {
		f, err := os.Create(filepath.Join(spec.WorkDir, spec.Stderr))
		if err != nil {
			return nil, fmt.Errorf("create stderr file: %w", err)
		}
		defer f.Close()
		cmd.Stderr = f
	} else {
		cmd.Stderr = &stderrBuf
	}

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("run %s: %w", filepath.Base(cmd.Path), err)
		}
	}

	return &RunResult{
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
	}, nil
}

// resolveSymlinks resolves symlinks in a path for container mounts.
// On macOS, /tmp is a symlink to /private/tmp which can cause issues with Docker.
func resolveSymlinks(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return absPath
	}
	return resolved
}
