// Package validate checks stage input values against a descriptor's
// declared input types before a command line is built.
package validate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/me/virocov/pkg/cwl"
)

// ToolInputs checks that every provided input is declared by the tool and
// that its value fits the declared type. Missing inputs are left to the
// caller, which applies defaults.
func ToolInputs(tool *cwl.CommandLineTool, inputs map[string]any) error {
	ids := make([]string, 0, len(inputs))
	for id := range inputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		def, ok := tool.Inputs[id]
		if !ok {
			return fmt.Errorf("unknown input %q for %s", id, tool.ID)
		}
		value := inputs[id]
		if value == nil {
			if !IsOptionalType(def.Type) {
				return fmt.Errorf("null is not valid for non-optional input: %s (type: %s)", id, def.Type)
			}
			continue
		}
		if err := checkType(def.BaseType(), value); err != nil {
			return fmt.Errorf("input %s: %w", id, err)
		}
	}
	return nil
}

// IsOptionalType checks if a CWL type is optional (can be null).
func IsOptionalType(t string) bool {
	return strings.HasSuffix(t, "?") || t == "null"
}

func checkType(t string, v any) error {
	if item, ok := strings.CutSuffix(t, "[]"); ok {
		items, ok := v.([]any)
		if !ok {
			if typed, isObjs := v.([]map[string]any); isObjs {
				for _, obj := range typed {
					items = append(items, obj)
				}
			} else {
				return fmt.Errorf("want %s, got %T", t, v)
			}
		}
		for i, it := range items {
			if err := checkType(item, it); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	}

	switch t {
	case "string":
		if _, ok := v.(string); !ok {
			return fmt.Errorf("want string, got %T", v)
		}
	case "int", "long":
		if !isInteger(v) {
			return fmt.Errorf("want %s, got %v", t, v)
		}
	case "float", "double":
		switch v.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("want %s, got %T", t, v)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("want boolean, got %T", v)
		}
	case "File", "Directory":
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("want %s object, got %T", t, v)
		}
		if class, _ := obj["class"].(string); class != t {
			return fmt.Errorf("want class %s, got %q", t, class)
		}
		if path, _ := obj["path"].(string); path == "" {
			return fmt.Errorf("%s object has no path", t)
		}
	}
	return nil
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int32, int64, uint16:
		return true
	case float64:
		return n == math.Trunc(n)
	}
	return false
}
