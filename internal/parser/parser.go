// Package parser converts CWL CommandLineTool YAML into typed stage descriptors.
package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/me/virocov/pkg/cwl"
	"gopkg.in/yaml.v3"
)

// Parser converts raw CWL YAML into typed CWL structs.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser with the given logger.
func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger.With("component", "parser")}
}

// ParseTool parses a bare CommandLineTool document.
func (p *Parser) ParseTool(data []byte) (*cwl.CommandLineTool, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("empty document")
	}

	class := stringField(raw, "class")
	if class != "CommandLineTool" {
		return nil, fmt.Errorf("unsupported class %q: stage descriptors must be CommandLineTool", class)
	}

	tool := &cwl.CommandLineTool{
		ID:           strings.TrimPrefix(stringField(raw, "id"), "#"),
		Class:        class,
		CWLVersion:   stringField(raw, "cwlVersion"),
		Doc:          stringField(raw, "doc"),
		Label:        stringField(raw, "label"),
		BaseCommand:  raw["baseCommand"],
		Hints:        normalizeHintsToMap(raw["hints"]),
		Requirements: normalizeHintsToMap(raw["requirements"]),
		Stdout:       stringField(raw, "stdout"),
		Stderr:       stringField(raw, "stderr"),
		SuccessCodes: intSlice(raw, "successCodes"),
		Inputs:       make(map[string]cwl.ToolInputParam),
		Outputs:      make(map[string]cwl.ToolOutputParam),
	}

	if args, ok := raw["arguments"].([]any); ok {
		for i, arg := range args {
			switch a := arg.(type) {
			case string:
				tool.Arguments = append(tool.Arguments, a)
			case map[string]any:
				tool.Arguments = append(tool.Arguments, parseArgument(a))
			default:
				return nil, fmt.Errorf("arguments[%d]: unexpected %T", i, arg)
			}
		}
	}

	for id, v := range normalizeToMap(raw["inputs"]) {
		switch val := v.(type) {
		case string:
			tool.Inputs[id] = cwl.ToolInputParam{Type: val}
		case map[string]any:
			tool.Inputs[id] = parseToolInput(val)
		}
	}

	for id, v := range normalizeToMap(raw["outputs"]) {
		switch val := v.(type) {
		case string:
			// Shorthand: report: stdout
			tool.Outputs[id] = cwl.ToolOutputParam{Type: val}
		case map[string]any:
			tool.Outputs[id] = parseToolOutput(val)
		}
	}

	p.logger.Debug("parsed tool", "id", tool.ID, "inputs", len(tool.Inputs), "outputs", len(tool.Outputs))
	return tool, nil
}

// normalizeToMap converts array-style inputs/outputs to map-style keyed by id.
func normalizeToMap(v any) map[string]any {
	switch val := v.(type) {
	case map[string]any:
		return val
	case []any:
		result := make(map[string]any)
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				if id, ok := m["id"].(string); ok {
					result[strings.TrimPrefix(id, "#")] = m
				}
			}
		}
		return result
	}
	return make(map[string]any)
}

// normalizeHintsToMap converts array-style hints/requirements to map-style keyed by class.
// CWL supports both: hints: [{class: DockerRequirement, ...}] and hints: {DockerRequirement: {...}}.
func normalizeHintsToMap(v any) map[string]any {
	switch val := v.(type) {
	case map[string]any:
		return val
	case []any:
		result := make(map[string]any)
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				if class, ok := m["class"].(string); ok {
					result[class] = m
				}
			}
		}
		return result
	}
	return nil
}

func parseToolInput(val map[string]any) cwl.ToolInputParam {
	inp := cwl.ToolInputParam{
		Type:    typeString(val["type"]),
		Doc:     stringField(val, "doc"),
		Label:   stringField(val, "label"),
		Default: val["default"],
	}

	if ib, ok := val["inputBinding"].(map[string]any); ok {
		inp.InputBinding = parseInputBinding(ib)
	}

	// Item-level binding: type: { type: array, items: File, inputBinding: { prefix: -U } }
	if typeMap, ok := val["type"].(map[string]any); ok && typeMap["type"] == "array" {
		if itemIB, ok := typeMap["inputBinding"].(map[string]any); ok {
			inp.ItemInputBinding = parseInputBinding(itemIB)
		}
	}

	return inp
}

func parseToolOutput(m map[string]any) cwl.ToolOutputParam {
	out := cwl.ToolOutputParam{
		Type:  typeString(m["type"]),
		Doc:   stringField(m, "doc"),
		Label: stringField(m, "label"),
	}
	if ob, ok := m["outputBinding"].(map[string]any); ok {
		out.OutputBinding = &cwl.OutputBinding{Glob: ob["glob"]}
	}
	return out
}

func parseInputBinding(ib map[string]any) *cwl.InputBinding {
	return &cwl.InputBinding{
		Position:      positionField(ib),
		Prefix:        stringField(ib, "prefix"),
		Separate:      boolPtrField(ib, "separate"),
		ItemSeparator: stringField(ib, "itemSeparator"),
		ValueFrom:     stringField(ib, "valueFrom"),
		ShellQuote:    boolPtrField(ib, "shellQuote"),
	}
}

func parseArgument(a map[string]any) cwl.Argument {
	return cwl.Argument{
		Position:   positionField(a),
		Prefix:     stringField(a, "prefix"),
		Separate:   boolPtrField(a, "separate"),
		ValueFrom:  stringField(a, "valueFrom"),
		ShellQuote: boolPtrField(a, "shellQuote"),
	}
}

// typeString renders a CWL type as its shorthand: "File", "File[]", "string?".
func typeString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if t["type"] == "array" {
			return typeString(t["items"]) + "[]"
		}
		return stringField(t, "type")
	case []any:
		// Union with null: ["null", "File"] -> "File?"
		var nonNull []string
		nullable := false
		for _, item := range t {
			s := typeString(item)
			if s == "null" {
				nullable = true
				continue
			}
			nonNull = append(nonNull, s)
		}
		if len(nonNull) == 1 {
			if nullable {
				return nonNull[0] + "?"
			}
			return nonNull[0]
		}
		return strings.Join(nonNull, "|")
	}
	return ""
}

// positionField extracts a position, which may be an int or an expression string.
func positionField(m map[string]any) any {
	switch p := m["position"].(type) {
	case int:
		return p
	case float64:
		return int(p)
	case string:
		return p
	}
	return nil
}

// stringField safely extracts a string from a map.
func stringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	// Handle YAML type coercion (e.g., a numeric label).
	return fmt.Sprintf("%v", v)
}

func boolPtrField(m map[string]any, key string) *bool {
	if b, ok := m[key].(bool); ok {
		return &b
	}
	return nil
}

// intSlice safely extracts a []int from a map value.
// YAML decoder produces []any with int values.
func intSlice(m map[string]any, key string) []int {
	s, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var result []int
	for _, item := range s {
		switch i := item.(type) {
		case int:
			result = append(result, i)
		case float64:
			result = append(result, int(i))
		}
	}
	return result
}
