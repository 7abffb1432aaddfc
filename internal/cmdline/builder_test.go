package cmdline

import (
	"reflect"
	"testing"

	"github.com/me/virocov/internal/cwlexpr"
	"github.com/me/virocov/pkg/cwl"
)

func boolPtr(b bool) *bool { return &b }

func TestBuilder_CoverageCommand(t *testing.T) {
	tool := &cwl.CommandLineTool{
		ID:          "samtools-coverage",
		BaseCommand: []any{"samtools", "coverage"},
		Stdout:      "coverage.tsv",
		Inputs: map[string]cwl.ToolInputParam{
			"exclude_flags": {
				Type:         "string",
				InputBinding: &cwl.InputBinding{Position: 1, Prefix: "--ff"},
			},
			"alignments": {
				Type:         "File",
				InputBinding: &cwl.InputBinding{Position: 2},
			},
		},
	}

	inputs := map[string]any{
		"exclude_flags": "UNMAP,SECONDARY,QCFAIL,DUP",
		"alignments":    cwl.FileObject("/runs/A/A.sorted.bam"),
	}

	result, err := NewBuilder(nil).Build(tool, inputs, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{"samtools", "coverage", "--ff", "UNMAP,SECONDARY,QCFAIL,DUP", "/runs/A/A.sorted.bam"}
	if !reflect.DeepEqual(result.Command, want) {
		t.Errorf("Command = %v, want %v", result.Command, want)
	}
	if result.Stdout != "coverage.tsv" {
		t.Errorf("Stdout = %q, want coverage.tsv", result.Stdout)
	}
	if result.Shell {
		t.Error("Shell = true, want false")
	}
}

func TestBuilder_BaseCommandString(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: "bowtie2-build",
		Inputs: map[string]cwl.ToolInputParam{
			"threads": {Type: "int", InputBinding: &cwl.InputBinding{Position: 0, Prefix: "--threads"}},
		},
	}

	result, err := NewBuilder(nil).Build(tool, map[string]any{"threads": 4}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []string{"bowtie2-build", "--threads", "4"}
	if !reflect.DeepEqual(result.Command, want) {
		t.Errorf("Command = %v, want %v", result.Command, want)
	}
}

func TestBuilder_PositionOrdering(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: "tool",
		Arguments: []any{
			cwl.Argument{Position: 3, ValueFrom: "last"},
			cwl.Argument{Position: 1, Prefix: "-o", ValueFrom: "$(inputs.name).bam"},
		},
		Inputs: map[string]cwl.ToolInputParam{
			"name": {Type: "string", InputBinding: &cwl.InputBinding{Position: 2}},
		},
	}

	result, err := NewBuilder(nil).Build(tool, map[string]any{"name": "A"}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []string{"tool", "-o", "A.bam", "A", "last"}
	if !reflect.DeepEqual(result.Command, want) {
		t.Errorf("Command = %v, want %v", result.Command, want)
	}
}

func TestBuilder_Booleans(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: "tool",
		Inputs: map[string]cwl.ToolInputParam{
			"verbose": {Type: "boolean", InputBinding: &cwl.InputBinding{Prefix: "-v"}},
			"quiet":   {Type: "boolean", InputBinding: &cwl.InputBinding{Prefix: "-q"}},
		},
	}

	result, err := NewBuilder(nil).Build(tool, map[string]any{"verbose": true, "quiet": false}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []string{"tool", "-v"}
	if !reflect.DeepEqual(result.Command, want) {
		t.Errorf("Command = %v, want %v", result.Command, want)
	}
}

func TestBuilder_NullInputOmitted(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: "tool",
		Inputs: map[string]cwl.ToolInputParam{
			"optional": {Type: "File?", InputBinding: &cwl.InputBinding{Prefix: "-i"}},
		},
	}

	result, err := NewBuilder(nil).Build(tool, map[string]any{}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !reflect.DeepEqual(result.Command, []string{"tool"}) {
		t.Errorf("Command = %v", result.Command)
	}
}

func TestBuilder_ArrayItemSeparator(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: "bowtie2",
		Inputs: map[string]cwl.ToolInputParam{
			"unpaired": {Type: "File[]", InputBinding: &cwl.InputBinding{Prefix: "-U", ItemSeparator: ","}},
		},
	}

	inputs := map[string]any{
		"unpaired": []any{cwl.FileObject("/r/a.fastq.gz"), cwl.FileObject("/r/b.fastq.gz")},
	}
	result, err := NewBuilder(nil).Build(tool, inputs, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []string{"bowtie2", "-U", "/r/a.fastq.gz,/r/b.fastq.gz"}
	if !reflect.DeepEqual(result.Command, want) {
		t.Errorf("Command = %v, want %v", result.Command, want)
	}
}

func TestBuilder_ValueFromSelf(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand: "bowtie2",
		Inputs: map[string]cwl.ToolInputParam{
			"index": {
				Type:         "Directory",
				InputBinding: &cwl.InputBinding{Prefix: "-x", ValueFrom: "$(self.path)/viral"},
			},
		},
	}

	result, err := NewBuilder(nil).Build(tool, map[string]any{"index": cwl.DirectoryObject("/runs/index")}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []string{"bowtie2", "-x", "/runs/index/viral"}
	if !reflect.DeepEqual(result.Command, want) {
		t.Errorf("Command = %v, want %v", result.Command, want)
	}
}

func TestBuilder_ShellCommand(t *testing.T) {
	tool := &cwl.CommandLineTool{
		BaseCommand:  "bowtie2",
		Requirements: map[string]any{"ShellCommandRequirement": map[string]any{}},
		Arguments: []any{
			cwl.Argument{Position: 1, Prefix: "-U", ValueFrom: "$(inputs.reads.path)"},
			cwl.Argument{Position: 2, ValueFrom: "|", ShellQuote: boolPtr(false)},
			cwl.Argument{Position: 3, ValueFrom: "samtools sort -T $(runtime.tmpdir)/sort -o out.bam -", ShellQuote: boolPtr(false)},
		},
		Inputs: map[string]cwl.ToolInputParam{
			"reads": {Type: "File"},
		},
	}

	rt := cwlexpr.DefaultRuntimeContext()
	rt.TmpDir = "/runs/A/tmp"
	inputs := map[string]any{"reads": cwl.FileObject("/runs/A/A reads.fastq.gz")}

	result, err := NewBuilder(nil).Build(tool, inputs, rt)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !result.Shell {
		t.Fatal("Shell = false, want true")
	}
	wantLine := "bowtie2 -U '/runs/A/A reads.fastq.gz' | samtools sort -T /runs/A/tmp/sort -o out.bam -"
	if result.ShellLine != wantLine {
		t.Errorf("ShellLine = %q, want %q", result.ShellLine, wantLine)
	}
	if !reflect.DeepEqual(result.Command, []string{"/bin/sh", "-c", wantLine}) {
		t.Errorf("Command = %v", result.Command)
	}
}

func TestBuilder_EmptyCommand(t *testing.T) {
	tool := &cwl.CommandLineTool{ID: "empty"}
	if _, err := NewBuilder(nil).Build(tool, nil, nil); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"/runs/A/x.bam", "/runs/A/x.bam"},
		{"UNMAP,SECONDARY", "UNMAP,SECONDARY"},
		{"has space", "'has space'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Errorf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
