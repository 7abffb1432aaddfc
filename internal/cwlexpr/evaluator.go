// Package cwlexpr evaluates CWL parameter references and JavaScript expressions
// embedded in stage descriptors, using goja as the JavaScript runtime.
package cwlexpr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Evaluator evaluates CWL expressions using a JavaScript runtime.
type Evaluator struct {
	expressionLib []string
}

// NewEvaluator creates a new expression evaluator.
// expressionLib holds JavaScript code loaded before each evaluation.
func NewEvaluator(expressionLib []string) *Evaluator {
	return &Evaluator{
		expressionLib: expressionLib,
	}
}

// setupVM creates a JavaScript VM with inputs, self and runtime bound.
func (e *Evaluator) setupVM(ctx *Context) (*goja.Runtime, error) {
	vm := goja.New()

	for i, lib := range e.expressionLib {
		if _, err := vm.RunString(lib); err != nil {
			return nil, fmt.Errorf("expressionLib[%d]: %w", i, err)
		}
	}

	if err := vm.Set("inputs", ctx.Inputs); err != nil {
		return nil, fmt.Errorf("set inputs: %w", err)
	}
	if err := vm.Set("self", ctx.Self); err != nil {
		return nil, fmt.Errorf("set self: %w", err)
	}

	rt := ctx.Runtime
	if rt == nil {
		rt = DefaultRuntimeContext()
	}
	runtimeMap := map[string]any{
		"outdir": rt.OutDir,
		"tmpdir": rt.TmpDir,
		"cores":  rt.Cores,
		"ram":    rt.Ram,
	}
	if err := vm.Set("runtime", runtimeMap); err != nil {
		return nil, fmt.Errorf("set runtime: %w", err)
	}

	return vm, nil
}

// Evaluate evaluates an expression string with the given context.
// Supported forms:
//   - Parameter references: $(inputs.index.path)
//   - Interpolation: $(inputs.sample_id).sorted.bam
//   - JavaScript code blocks: ${ return inputs.threads + 1; }
//
// A string consisting of a single expression returns the typed value.
func (e *Evaluator) Evaluate(expr string, ctx *Context) (any, error) {
	if expr == "" {
		return "", nil
	}
	if !containsExpression(expr) {
		return unescape(expr), nil
	}

	vm, err := e.setupVM(ctx)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(expr)
	if strings.HasPrefix(trimmed, "${") {
		if idx := findMatchingBrace(trimmed); idx == len(trimmed)-1 {
			return evaluateCodeBlock(vm, trimmed)
		}
	}

	return evaluateInterpolated(vm, expr)
}

// EvaluateString evaluates an expression that should produce a string.
func (e *Evaluator) EvaluateString(expr string, ctx *Context) (string, error) {
	val, err := e.Evaluate(expr, ctx)
	if err != nil {
		return "", err
	}
	return ToString(val), nil
}

func evaluateCodeBlock(vm *goja.Runtime, expr string) (any, error) {
	code := strings.TrimPrefix(expr, "${")
	code = strings.TrimSuffix(code, "}")
	wrapped := fmt.Sprintf("(function() { %s })()", strings.TrimSpace(code))
	val, err := vm.RunString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("JavaScript error: %w", err)
	}
	return val.Export(), nil
}

func evaluateInterpolated(vm *goja.Runtime, expr string) (any, error) {
	matches := findExpressions(expr)
	if len(matches) == 0 {
		return unescape(expr), nil
	}

	if len(matches) == 1 && matches[0].start == 0 && matches[0].end == len(expr) {
		return runExpression(vm, matches[0].expr)
	}

	var sb strings.Builder
	lastEnd := 0
	for _, m := range matches {
		sb.WriteString(expr[lastEnd:m.start])
		val, err := runExpression(vm, m.expr)
		if err != nil {
			return nil, err
		}
		sb.WriteString(ToString(val))
		lastEnd = m.end
	}
	sb.WriteString(expr[lastEnd:])
	return unescape(sb.String()), nil
}

func runExpression(vm *goja.Runtime, code string) (any, error) {
	if strings.HasPrefix(strings.TrimSpace(code), "{") {
		code = "(" + code + ")"
	}
	val, err := vm.RunString(code)
	if err != nil {
		return nil, fmt.Errorf("expression error in $(%s): %w", code, err)
	}
	if val == nil || goja.IsUndefined(val) {
		return nil, fmt.Errorf("expression $(%s) returned undefined", code)
	}
	return val.Export(), nil
}

// findMatchingBrace returns the index of the brace closing a leading "${", or -1.
func findMatchingBrace(s string) int {
	depth := 0
	for i, c := range s {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

type exprMatch struct {
	start int // index of "$("
	end   int // index after the closing ")"
	expr  string
}

// findExpressions finds all unescaped $(expr) patterns, honoring nested parentheses.
func findExpressions(s string) []exprMatch {
	var matches []exprMatch
	i := 0
	for i < len(s)-1 {
		if s[i] == '$' && s[i+1] == '(' && (i == 0 || s[i-1] != '\\') {
			depth := 1
			j := i + 2
			for j < len(s) && depth > 0 {
				switch s[j] {
				case '(':
					depth++
				case ')':
					depth--
				}
				j++
			}
			if depth == 0 {
				matches = append(matches, exprMatch{start: i, end: j, expr: s[i+2 : j-1]})
				i = j
				continue
			}
		}
		i++
	}
	return matches
}

func containsExpression(s string) bool {
	if strings.HasPrefix(strings.TrimSpace(s), "${") {
		return true
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '$' && s[i+1] == '(' && (i == 0 || s[i-1] != '\\') {
			return true
		}
	}
	return false
}

// IsExpression returns true if the string contains CWL expression syntax.
func IsExpression(s string) bool {
	return containsExpression(s)
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, "\\$(", "$(")
	return strings.ReplaceAll(s, "\\${", "${")
}

// ToString converts an evaluated value to its command-line string form.
// Floats are formatted without scientific notation; maps and slices become JSON.
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any, []any:
		data, _ := json.Marshal(val)
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}
