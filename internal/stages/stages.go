// Package stages provides the CWL descriptors of the pipeline stages: the shared
// index build, the two layout-specific alignment stages and the coverage report.
package stages

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/me/virocov/internal/parser"
	"github.com/me/virocov/pkg/cwl"
)

// Stage names, matching the descriptor ids.
const (
	IndexBuild  = "bowtie2-build"
	AlignPaired = "align-paired"
	AlignSingle = "align-single"
	Coverage    = "samtools-coverage"
)

//go:embed descriptors/*.cwl
var descriptors embed.FS

// Embedded returns the built-in descriptor tree. Files sit at the root of the
// returned FS, one <stage>.cwl per stage.
func Embedded() fs.FS {
	sub, err := fs.Sub(descriptors, "descriptors")
	if err != nil {
		panic(err)
	}
	return sub
}

// Registry maps stage names to parsed descriptors.
type Registry struct {
	tools map[string]*cwl.CommandLineTool
}

// Load parses every *.cwl file at the root of fsys. All four pipeline stages
// must be present.
func Load(fsys fs.FS, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := parser.New(logger)

	entries, err := fs.Glob(fsys, "*.cwl")
	if err != nil {
		return nil, fmt.Errorf("list descriptors: %w", err)
	}

	r := &Registry{tools: make(map[string]*cwl.CommandLineTool)}
	for _, name := range entries {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read descriptor %s: %w", name, err)
		}
		tool, err := p.ParseTool(data)
		if err != nil {
			return nil, fmt.Errorf("parse descriptor %s: %w", name, err)
		}
		stage := strings.TrimSuffix(path.Base(name), ".cwl")
		if tool.ID == "" {
			tool.ID = stage
		}
		r.tools[stage] = tool
	}

	for _, required := range []string{IndexBuild, AlignPaired, AlignSingle, Coverage} {
		if _, ok := r.tools[required]; !ok {
			return nil, fmt.Errorf("descriptor for stage %q not found", required)
		}
	}
	return r, nil
}

// Tool returns the descriptor for a stage.
func (r *Registry) Tool(name string) (*cwl.CommandLineTool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", name)
	}
	return tool, nil
}

// Names returns the registered stage names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
