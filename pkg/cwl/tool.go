// Package cwl holds the typed form of the CWL v1.2 CommandLineTool descriptors
// that describe each pipeline stage.
package cwl

// CommandLineTool is a typed representation of a CWL CommandLineTool.
// See https://www.commonwl.org/v1.2/CommandLineTool.html
type CommandLineTool struct {
	ID           string
	Class        string
	CWLVersion   string
	Doc          string
	Label        string
	BaseCommand  any // string or []any; normalized by the command line builder
	Inputs       map[string]ToolInputParam
	Outputs      map[string]ToolOutputParam
	Hints        map[string]any
	Requirements map[string]any

	// Arguments are command-line arguments not tied to input parameters.
	// Entries are either strings or Argument values.
	Arguments []any

	// Stdout specifies the file name for capturing standard output.
	Stdout string

	// Stderr specifies the file name for capturing standard error.
	Stderr string

	// SuccessCodes are exit codes that indicate success (default: [0]).
	SuccessCodes []int
}

// ToolInputParam is a CWL tool input parameter.
// Handles both shorthand ("reads_1: File") and expanded form.
type ToolInputParam struct {
	Type    string
	Doc     string
	Label   string
	Default any

	// InputBinding controls how this parameter appears on the command line.
	InputBinding *InputBinding

	// ItemInputBinding is the inputBinding nested in an array type definition.
	ItemInputBinding *InputBinding
}

// Optional reports whether the parameter type admits null ("File?", "string?").
func (p ToolInputParam) Optional() bool {
	return len(p.Type) > 0 && p.Type[len(p.Type)-1] == '?'
}

// BaseType returns the type with any optional marker removed.
func (p ToolInputParam) BaseType() string {
	if p.Optional() {
		return p.Type[:len(p.Type)-1]
	}
	return p.Type
}

// ToolOutputParam is a CWL tool output parameter.
type ToolOutputParam struct {
	Type  string
	Doc   string
	Label string

	// OutputBinding specifies how to collect this output.
	OutputBinding *OutputBinding
}

// HasRequirement reports whether name appears in requirements or hints.
func (t *CommandLineTool) HasRequirement(name string) bool {
	if _, ok := t.Requirements[name]; ok {
		return true
	}
	_, ok := t.Hints[name]
	return ok
}

// Requirement returns the requirement body from requirements, falling back to hints.
func (t *CommandLineTool) Requirement(name string) map[string]any {
	if r, ok := t.Requirements[name].(map[string]any); ok {
		return r
	}
	if r, ok := t.Hints[name].(map[string]any); ok {
		return r
	}
	return nil
}

// DockerImage returns the dockerPull image of the tool, or "" if none is declared.
func (t *CommandLineTool) DockerImage() string {
	if dr := t.Requirement("DockerRequirement"); dr != nil {
		if pull, ok := dr["dockerPull"].(string); ok {
			return pull
		}
	}
	return ""
}
