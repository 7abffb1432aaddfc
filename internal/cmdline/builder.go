// Package cmdline builds stage command lines from CWL CommandLineTool descriptors.
package cmdline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/me/virocov/internal/cwlexpr"
	"github.com/me/virocov/pkg/cwl"
)

// Builder constructs command lines from CWL CommandLineTool definitions.
type Builder struct {
	evaluator *cwlexpr.Evaluator
}

// NewBuilder creates a new command line builder with the given expression library.
func NewBuilder(expressionLib []string) *Builder {
	return &Builder{
		evaluator: cwlexpr.NewEvaluator(expressionLib),
	}
}

// BuildResult contains the constructed command line and related information.
type BuildResult struct {
	// Command is the full command line as an array of strings.
	Command []string

	// Shell is set when the tool declares ShellCommandRequirement. Command then
	// holds a single /bin/sh -c invocation and ShellLine the script it runs.
	Shell     bool
	ShellLine string

	// Stdout is the file name for standard output capture (if specified).
	Stdout string

	// Stderr is the file name for standard error capture (if specified).
	Stderr string
}

// cmdPart is one positioned chunk of the command line.
type cmdPart struct {
	position int
	name     string   // tie-breaker when positions are equal
	args     []string // the actual command-line arguments
	noQuote  bool     // shellQuote: false
}

// Build constructs the command line for tool with the given inputs.
func (b *Builder) Build(tool *cwl.CommandLineTool, inputs map[string]any, runtime *cwlexpr.RuntimeContext) (*BuildResult, error) {
	ctx := cwlexpr.NewContext(inputs)
	if runtime != nil {
		ctx = ctx.WithRuntime(runtime)
	}

	var parts []cmdPart
	for i, arg := range tool.Arguments {
		part, err := b.buildArgument(arg, i, ctx)
		if err != nil {
			return nil, fmt.Errorf("argument[%d]: %w", i, err)
		}
		if part != nil {
			parts = append(parts, *part)
		}
	}

	for _, name := range sortedKeys(tool.Inputs) {
		input := tool.Inputs[name]
		if input.InputBinding == nil {
			continue
		}
		part, err := b.buildInputBinding(name, &input, inputs[name], ctx)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		if part != nil {
			parts = append(parts, *part)
		}
	}

	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].position != parts[j].position {
			return parts[i].position < parts[j].position
		}
		return parts[i].name < parts[j].name
	})

	base := normalizeBaseCommand(tool.BaseCommand)
	if len(base) == 0 && len(parts) == 0 {
		return nil, fmt.Errorf("tool %q: empty command", tool.ID)
	}

	result := &BuildResult{}
	if tool.HasRequirement("ShellCommandRequirement") {
		var words []string
		for _, w := range base {
			words = append(words, shellQuote(w))
		}
		for _, p := range parts {
			for _, a := range p.args {
				if p.noQuote {
					words = append(words, a)
				} else {
					words = append(words, shellQuote(a))
				}
			}
		}
		result.Shell = true
		result.ShellLine = strings.Join(words, " ")
		result.Command = []string{"/bin/sh", "-c", result.ShellLine}
	} else {
		cmd := append([]string(nil), base...)
		for _, p := range parts {
			cmd = append(cmd, p.args...)
		}
		result.Command = cmd
	}

	if tool.Stdout != "" {
		stdout, err := b.evaluator.EvaluateString(tool.Stdout, ctx)
		if err != nil {
			return nil, fmt.Errorf("stdout: %w", err)
		}
		result.Stdout = stdout
	}
	if tool.Stderr != "" {
		stderr, err := b.evaluator.EvaluateString(tool.Stderr, ctx)
		if err != nil {
			return nil, fmt.Errorf("stderr: %w", err)
		}
		result.Stderr = stderr
	}

	return result, nil
}

// buildArgument builds a command-line part from a tool argument.
func (b *Builder) buildArgument(arg any, index int, ctx *cwlexpr.Context) (*cmdPart, error) {
	name := fmt.Sprintf("arg_%03d", index)
	switch a := arg.(type) {
	case string:
		value, err := b.evaluator.EvaluateString(a, ctx)
		if err != nil {
			return nil, err
		}
		return &cmdPart{name: name, args: []string{value}}, nil

	case cwl.Argument:
		pos, err := b.position(a.Position, ctx)
		if err != nil {
			return nil, err
		}
		value, err := b.evaluator.EvaluateString(a.ValueFrom, ctx)
		if err != nil {
			return nil, err
		}
		return &cmdPart{
			position: pos,
			name:     name,
			args:     buildPrefixedArgs(a.Prefix, value, a.Separate),
			noQuote:  a.ShellQuote != nil && !*a.ShellQuote,
		}, nil
	}

	return nil, fmt.Errorf("unexpected argument type: %T", arg)
}

// buildInputBinding builds a command-line part from an input binding.
func (b *Builder) buildInputBinding(name string, input *cwl.ToolInputParam, value any, ctx *cwlexpr.Context) (*cmdPart, error) {
	binding := input.InputBinding
	if value == nil {
		return nil, nil
	}

	pos, err := b.position(binding.Position, ctx)
	if err != nil {
		return nil, err
	}
	part := &cmdPart{
		position: pos,
		name:     name,
		noQuote:  binding.ShellQuote != nil && !*binding.ShellQuote,
	}

	if binding.ValueFrom != "" {
		evaluated, err := b.evaluator.Evaluate(binding.ValueFrom, ctx.WithSelf(value))
		if err != nil {
			return nil, err
		}
		value = evaluated
		if value == nil {
			return nil, nil
		}
	}

	// False booleans are omitted; true booleans emit only their prefix.
	if boolVal, ok := value.(bool); ok {
		if !boolVal || binding.Prefix == "" {
			return nil, nil
		}
		part.args = []string{binding.Prefix}
		return part, nil
	}

	if arrVal, ok := value.([]any); ok {
		part.args = buildArrayArgs(binding, input.ItemInputBinding, arrVal)
		if len(part.args) == 0 {
			return nil, nil
		}
		return part, nil
	}

	strValue := inputValueToString(value)
	if strValue == "" {
		return nil, nil
	}
	part.args = buildPrefixedArgs(binding.Prefix, strValue, binding.Separate)
	return part, nil
}

// buildArrayArgs renders an array value; itemSeparator joins items into one argument.
func buildArrayArgs(binding, itemBinding *cwl.InputBinding, values []any) []string {
	var items []string
	for _, item := range values {
		if s := inputValueToString(item); s != "" {
			items = append(items, s)
		}
	}
	if len(items) == 0 {
		return nil
	}
	if binding.ItemSeparator != "" {
		return buildPrefixedArgs(binding.Prefix, strings.Join(items, binding.ItemSeparator), binding.Separate)
	}

	var args []string
	if binding.Prefix != "" {
		args = append(args, binding.Prefix)
	}
	for _, s := range items {
		if itemBinding != nil && itemBinding.Prefix != "" {
			args = append(args, buildPrefixedArgs(itemBinding.Prefix, s, itemBinding.Separate)...)
		} else {
			args = append(args, s)
		}
	}
	return args
}

// position resolves a binding position that may be a number or an expression.
func (b *Builder) position(p any, ctx *cwlexpr.Context) (int, error) {
	switch v := p.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		val, err := b.evaluator.Evaluate(v, ctx)
		if err != nil {
			return 0, fmt.Errorf("position: %w", err)
		}
		switch n := val.(type) {
		case int64:
			return int(n), nil
		case float64:
			return int(n), nil
		}
		return 0, fmt.Errorf("position: expression returned %T", val)
	}
	return 0, fmt.Errorf("position: unsupported type %T", p)
}

// buildPrefixedArgs builds the argument array with optional prefix.
func buildPrefixedArgs(prefix, value string, separate *bool) []string {
	if prefix == "" {
		return []string{value}
	}
	if separate == nil || *separate {
		return []string{prefix, value}
	}
	return []string{prefix + value}
}

// normalizeBaseCommand converts baseCommand to []string.
func normalizeBaseCommand(bc any) []string {
	switch cmd := bc.(type) {
	case string:
		return []string{cmd}
	case []string:
		return cmd
	case []any:
		var result []string
		for _, v := range cmd {
			if s, ok := v.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}

// inputValueToString converts an input value to a string for the command line.
// File and Directory objects render as their path.
func inputValueToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return ""
	case map[string]any:
		if path, ok := v["path"].(string); ok {
			return path
		}
		if loc, ok := v["location"].(string); ok {
			_, path := cwl.ParseLocationScheme(loc)
			return path
		}
		return cwlexpr.ToString(v)
	default:
		return cwlexpr.ToString(v)
	}
}

// shellQuote single-quotes s unless it consists only of shell-safe characters.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || strings.ContainsRune("@%+=:,./_-", c)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// sortedKeys returns the sorted keys of a map.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
