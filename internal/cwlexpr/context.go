package cwlexpr

// Context holds the evaluation context for stage descriptor expressions:
// the inputs object, the self reference and the runtime block.
type Context struct {
	// Inputs holds the resolved input parameter values keyed by input ID.
	Inputs map[string]any

	// Self is the value being processed (the input value inside inputBinding.valueFrom).
	Self any

	// Runtime describes the execution environment of the stage.
	Runtime *RuntimeContext
}

// RuntimeContext provides runtime information available to expressions.
// See https://www.commonwl.org/v1.2/CommandLineTool.html#Runtime_environment
type RuntimeContext struct {
	// OutDir is the working area the stage runs in.
	OutDir string `json:"outdir"`

	// TmpDir is the dedicated temporary directory of the working area.
	TmpDir string `json:"tmpdir"`

	// Cores is the number of CPU cores allocated.
	Cores int `json:"cores"`

	// Ram is the amount of RAM in mebibytes allocated.
	Ram int64 `json:"ram"`
}

// NewContext creates a new evaluation context with the given inputs.
func NewContext(inputs map[string]any) *Context {
	return &Context{
		Inputs:  inputs,
		Runtime: DefaultRuntimeContext(),
	}
}

// WithSelf returns a new context with the self value set.
func (c *Context) WithSelf(self any) *Context {
	return &Context{
		Inputs:  c.Inputs,
		Self:    self,
		Runtime: c.Runtime,
	}
}

// WithRuntime returns a new context with the runtime context set.
func (c *Context) WithRuntime(rt *RuntimeContext) *Context {
	return &Context{
		Inputs:  c.Inputs,
		Self:    c.Self,
		Runtime: rt,
	}
}

// DefaultRuntimeContext returns a RuntimeContext with single-core defaults.
func DefaultRuntimeContext() *RuntimeContext {
	return &RuntimeContext{
		OutDir: "/tmp/virocov-output",
		TmpDir: "/tmp/virocov-tmp",
		Cores:  1,
		Ram:    1024,
	}
}
