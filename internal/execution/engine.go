// Package execution runs CWL CommandLineTool stage descriptors. It builds the
// command line, traces it, runs it through a Runtime and collects the paths of
// the declared outputs.
package execution

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/me/virocov/internal/cmdline"
	"github.com/me/virocov/internal/cwlexpr"
	"github.com/me/virocov/internal/validate"
	"github.com/me/virocov/pkg/cwl"
)

// ToolSource resolves stage names to descriptors.
type ToolSource interface {
	Tool(name string) (*cwl.CommandLineTool, error)
}

// Engine executes named pipeline stages.
type Engine struct {
	logger  *slog.Logger
	tools   ToolSource
	runtime Runtime
	cores   int

	traceMu sync.Mutex
	trace   io.Writer

	// ExpressionLib contains JavaScript library code available to expressions.
	ExpressionLib []string
}

// Config holds engine configuration.
type Config struct {
	Logger        *slog.Logger
	Tools         ToolSource
	Runtime       Runtime
	Trace         io.Writer // Receives one "+ <argv>" line per command; nil disables tracing
	Cores         int       // Value of runtime.cores (default 1)
	ExpressionLib []string
}

// NewEngine creates a new execution engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	runtime := cfg.Runtime
	if runtime == nil {
		runtime = &LocalRuntime{}
	}

	cores := cfg.Cores
	if cores <= 0 {
		cores = 1
	}

	return &Engine{
		logger:        logger.With("component", "engine"),
		tools:         cfg.Tools,
		runtime:       runtime,
		cores:         cores,
		trace:         cfg.Trace,
		ExpressionLib: cfg.ExpressionLib,
	}
}

// StageRequest names a stage and the values for its typed inputs.
// WorkDir is the stage's working area; TmpDir is exposed as runtime.tmpdir.
type StageRequest struct {
	Stage   string
	Inputs  map[string]any
	WorkDir string
	TmpDir  string
}

// StageResult holds the outcome of one stage invocation.
type StageResult struct {
	Stage    string
	Command  []string
	ExitCode int
	Stderr   string
	Started  time.Time
	Finished time.Time

	// Outputs maps each declared output to the paths matched by its glob.
	Outputs map[string][]string
}

// Output returns the first path collected for a declared output.
func (r *StageResult) Output(name string) (string, error) {
	paths := r.Outputs[name]
	if len(paths) == 0 {
		return "", fmt.Errorf("%s output %q: %w", r.Stage, name, ErrNoOutput)
	}
	return paths[0], nil
}

// Prepare resolves a stage and builds its command line without running it.
func (e *Engine) Prepare(req StageRequest) (*cwl.CommandLineTool, map[string]any, *cmdline.BuildResult, error) {
	if e.tools == nil {
		return nil, nil, nil, &ExecutionError{Phase: "setup", Err: fmt.Errorf("no stage descriptors configured")}
	}
	tool, err := e.tools.Tool(req.Stage)
	if err != nil {
		return nil, nil, nil, &ExecutionError{Phase: "setup", Err: err}
	}

	if err := validate.ToolInputs(tool, req.Inputs); err != nil {
		return nil, nil, nil, &ExecutionError{Phase: "process_inputs", Err: err}
	}
	inputs, err := applyToolDefaults(tool, req.Inputs)
	if err != nil {
		return nil, nil, nil, &ExecutionError{Phase: "process_inputs", Err: err}
	}

	builder := cmdline.NewBuilder(e.ExpressionLib)
	cmdResult, err := builder.Build(tool, inputs, e.runtimeContext(req))
	if err != nil {
		return nil, nil, nil, &ExecutionError{Phase: "build_command", Err: err}
	}
	return tool, inputs, cmdResult, nil
}

// RunStage executes one stage in req.WorkDir. A non-success exit yields both
// a result (carrying the exit code and timestamps) and an *ExecutionError.
func (e *Engine) RunStage(ctx context.Context, req StageRequest) (*StageResult, error) {
	if req.WorkDir == "" {
		return nil, &ExecutionError{Phase: "setup", Err: fmt.Errorf("stage %s: empty working directory", req.Stage)}
	}
	for _, dir := range []string{req.WorkDir, req.TmpDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &ExecutionError{Phase: "setup", Err: err}
		}
	}

	tool, inputs, cmdResult, err := e.Prepare(req)
	if err != nil {
		return nil, err
	}

	e.logger.Info("running stage", "stage", req.Stage, "workDir", req.WorkDir)
	e.Trace(traceLine(cmdResult))

	spec := RunSpec{
		Command: cmdResult.Command,
		WorkDir: req.WorkDir,
		Stdout:  cmdResult.Stdout,
		Stderr:  cmdResult.Stderr,
		Image:   tool.DockerImage(),
		Volumes: collectInputMounts(inputs, req.WorkDir),
	}
	if req.TmpDir != "" {
		spec.Env = map[string]string{"TMPDIR": req.TmpDir}
	}

	result := &StageResult{
		Stage:   req.Stage,
		Command: cmdResult.Command,
		Started: time.Now(),
	}
	runResult, err := e.runtime.Run(ctx, spec)
	result.Finished = time.Now()
	if err != nil {
		return result, &ExecutionError{Phase: "execute", Err: err}
	}
	result.ExitCode = runResult.ExitCode
	result.Stderr = runResult.Stderr

	if !isSuccessCode(runResult.ExitCode, tool.SuccessCodes) {
		e.logger.Error("stage failed", "stage", req.Stage, "exitCode", runResult.ExitCode, "stderr", tail(runResult.Stderr, 2048))
		return result, &ExecutionError{
			Phase:    "execute",
			Err:      fmt.Errorf("%s: %w", req.Stage, ErrNonZeroExit),
			ExitCode: runResult.ExitCode,
		}
	}

	outputs, err := e.collectOutputs(tool, inputs, req, cmdResult)
	if err != nil {
		return result, &ExecutionError{Phase: "collect_outputs", Err: err}
	}
	result.Outputs = outputs

	e.logger.Debug("stage finished", "stage", req.Stage, "elapsed", result.Finished.Sub(result.Started))
	return result, nil
}

// CommandLine returns the command a stage would run, as it appears in the trace.
func (e *Engine) CommandLine(req StageRequest) (string, error) {
	_, _, cmdResult, err := e.Prepare(req)
	if err != nil {
		return "", err
	}
	return traceLine(cmdResult), nil
}

// Trace writes one line to the trace writer. Safe for concurrent use.
func (e *Engine) Trace(line string) {
	if e.trace == nil {
		return
	}
	e.traceMu.Lock()
	defer e.traceMu.Unlock()
	fmt.Fprintf(e.trace, "+ %s\n", line)
}

// traceLine renders a command for the trace. Shell stages show the shell line itself.
func traceLine(res *cmdline.BuildResult) string {
	line := res.ShellLine
	if !res.Shell {
		line = strings.Join(res.Command, " ")
	}
	if res.Stdout != "" {
		line += " > " + res.Stdout
	}
	return line
}

func (e *Engine) runtimeContext(req StageRequest) *cwlexpr.RuntimeContext {
	rt := cwlexpr.DefaultRuntimeContext()
	if req.WorkDir != "" {
		rt.OutDir = req.WorkDir
	}
	if req.TmpDir != "" {
		rt.TmpDir = req.TmpDir
	}
	rt.Cores = e.cores
	return rt
}

// collectOutputs resolves every declared output to paths inside the work dir.
func (e *Engine) collectOutputs(tool *cwl.CommandLineTool, inputs map[string]any, req StageRequest, cmdResult *cmdline.BuildResult) (map[string][]string, error) {
	evaluator := cwlexpr.NewEvaluator(e.ExpressionLib)
	ctx := cwlexpr.NewContext(inputs).WithRuntime(e.runtimeContext(req))

	outputs := make(map[string][]string, len(tool.Outputs))
	for name, out := range tool.Outputs {
		var patterns []string
		switch out.Type {
		case "stdout":
			patterns = []string{cmdResult.Stdout}
		case "stderr":
			patterns = []string{cmdResult.Stderr}
		default:
			if out.OutputBinding == nil {
				continue
			}
			globs, err := globPatterns(evaluator, ctx, out.OutputBinding.Glob)
			if err != nil {
				return nil, fmt.Errorf("output %s: %w", name, err)
			}
			patterns = globs
		}

		var paths []string
		for _, pattern := range patterns {
			if pattern == "" {
				continue
			}
			if !filepath.IsAbs(pattern) {
				pattern = filepath.Join(req.WorkDir, pattern)
			}
			matches, err := filepath.Glob(pattern)
			if err != nil {
				return nil, fmt.Errorf("output %s: glob %q: %w", name, pattern, err)
			}
			paths = append(paths, matches...)
		}
		sort.Strings(paths)

		if len(paths) == 0 && !strings.HasSuffix(out.Type, "?") {
			return nil, fmt.Errorf("output %s: %w", name, ErrNoOutput)
		}
		outputs[name] = paths
	}
	return outputs, nil
}

func globPatterns(evaluator *cwlexpr.Evaluator, ctx *cwlexpr.Context, glob any) ([]string, error) {
	var raw []string
	switch g := glob.(type) {
	case string:
		raw = []string{g}
	case []any:
		for _, item := range g {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported glob type %T", glob)
	}

	patterns := make([]string, 0, len(raw))
	for _, pattern := range raw {
		if cwlexpr.IsExpression(pattern) {
			s, err := evaluator.EvaluateString(pattern, ctx)
			if err != nil {
				return nil, fmt.Errorf("evaluate glob %q: %w", pattern, err)
			}
			pattern = s
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}

// isSuccessCode checks if an exit code is in the success codes list.
func isSuccessCode(code int, successCodes []int) bool {
	if len(successCodes) == 0 {
		return code == 0
	}
	for _, sc := range successCodes {
		if code == sc {
			return true
		}
	}
	return false
}

// applyToolDefaults merges tool input defaults with provided inputs.
// Undeclared inputs are dropped; a required input without a value is an error.
func applyToolDefaults(tool *cwl.CommandLineTool, inputs map[string]any) (map[string]any, error) {
	result := make(map[string]any, len(tool.Inputs))
	for inputID, inputDef := range tool.Inputs {
		val, exists := inputs[inputID]
		if !exists || val == nil {
			val = inputDef.Default
		}
		if val == nil && !inputDef.Optional() {
			return nil, fmt.Errorf("missing required input %q", inputID)
		}
		result[inputID] = val
	}
	return result, nil
}

// collectInputMounts collects File and Directory inputs living outside
// workDir. Each maps to the same path inside the container.
func collectInputMounts(inputs map[string]any, workDir string) map[string]string {
	mounts := make(map[string]string)
	absWorkDir, _ := filepath.Abs(workDir)
	for _, v := range inputs {
		collectInputMountsValue(v, absWorkDir, mounts)
	}
	return mounts
}

func collectInputMountsValue(v any, workDir string, mounts map[string]string) {
	switch val := v.(type) {
	case map[string]any:
		class, _ := val["class"].(string)
		if class != "File" && class != "Directory" {
			return
		}
		path, ok := val["path"].(string)
		if !ok || !filepath.IsAbs(path) {
			return
		}
		if path == workDir || strings.HasPrefix(path, workDir+string(filepath.Separator)) {
			return
		}
		mounts[path] = path
	case []any:
		for _, item := range val {
			collectInputMountsValue(item, workDir, mounts)
		}
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
