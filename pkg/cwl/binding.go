package cwl

// InputBinding controls how an input parameter is converted to command-line argument(s).
// See https://www.commonwl.org/v1.2/CommandLineTool.html#CommandLineBinding
type InputBinding struct {
	// Position determines the relative ordering of arguments on the command line.
	// Can be an integer or a CWL expression.
	Position any `json:"position,omitempty"`

	// Prefix is a string to prepend to the input value (e.g., "--ff" or "-x").
	Prefix string `json:"prefix,omitempty"`

	// Separate controls whether there is a space between prefix and value.
	// Default is true.
	Separate *bool `json:"separate,omitempty"`

	// ItemSeparator joins array items into a single argument.
	ItemSeparator string `json:"itemSeparator,omitempty"`

	// ValueFrom is a CWL expression to compute the argument value.
	ValueFrom string `json:"valueFrom,omitempty"`

	// ShellQuote controls whether the value is shell-quoted under ShellCommandRequirement.
	ShellQuote *bool `json:"shellQuote,omitempty"`
}

// OutputBinding specifies how to find output files after tool execution.
// See https://www.commonwl.org/v1.2/CommandLineTool.html#CommandOutputBinding
type OutputBinding struct {
	// Glob is a pattern (or list of patterns) matched in the output directory.
	// Can be a string, array of strings, or a CWL expression.
	Glob any `json:"glob,omitempty"`
}

// Argument represents a structured command-line argument (CommandLineBinding).
type Argument struct {
	Position   any    `json:"position,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
	Separate   *bool  `json:"separate,omitempty"`
	ValueFrom  string `json:"valueFrom,omitempty"`
	ShellQuote *bool  `json:"shellQuote,omitempty"`
}
