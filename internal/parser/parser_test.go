package parser

import (
	"log/slog"
	"os"
	"testing"
)

func testParser() *Parser {
	return New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

const coverageTool = `
cwlVersion: v1.2
class: CommandLineTool
id: "#samtools-coverage"
baseCommand: [samtools, coverage]
hints:
  - class: DockerRequirement
    dockerPull: quay.io/biocontainers/samtools:1.19--h50ea8bc_0
inputs:
  exclude_flags:
    type: string
    inputBinding:
      position: 1
      prefix: --ff
  alignments:
    type: File
    inputBinding:
      position: 2
stdout: coverage.tsv
outputs:
  report:
    type: stdout
successCodes: [0]
`

func TestParseTool_Coverage(t *testing.T) {
	tool, err := testParser().ParseTool([]byte(coverageTool))
	if err != nil {
		t.Fatalf("ParseTool: %v", err)
	}

	if tool.ID != "samtools-coverage" {
		t.Errorf("ID = %q, want samtools-coverage", tool.ID)
	}
	if tool.CWLVersion != "v1.2" {
		t.Errorf("CWLVersion = %q", tool.CWLVersion)
	}
	if tool.Stdout != "coverage.tsv" {
		t.Errorf("Stdout = %q", tool.Stdout)
	}
	if got := tool.DockerImage(); got != "quay.io/biocontainers/samtools:1.19--h50ea8bc_0" {
		t.Errorf("DockerImage() = %q", got)
	}

	ff, ok := tool.Inputs["exclude_flags"]
	if !ok {
		t.Fatal("missing input exclude_flags")
	}
	if ff.InputBinding == nil || ff.InputBinding.Prefix != "--ff" || ff.InputBinding.Position != 1 {
		t.Errorf("exclude_flags binding = %+v", ff.InputBinding)
	}
	if tool.Inputs["alignments"].Type != "File" {
		t.Errorf("alignments type = %q", tool.Inputs["alignments"].Type)
	}
	if tool.Outputs["report"].Type != "stdout" {
		t.Errorf("report type = %q", tool.Outputs["report"].Type)
	}
	if len(tool.SuccessCodes) != 1 || tool.SuccessCodes[0] != 0 {
		t.Errorf("SuccessCodes = %v", tool.SuccessCodes)
	}
}

func TestParseTool_ArrayStyleAndArguments(t *testing.T) {
	doc := `
class: CommandLineTool
cwlVersion: v1.2
baseCommand: bowtie2
requirements:
  ShellCommandRequirement: {}
arguments:
  - -q
  - position: 5
    valueFrom: "|"
    shellQuote: false
inputs:
  - id: reads
    type: {type: array, items: File, inputBinding: {prefix: -U}}
    inputBinding: {position: 2}
  - id: threads
    type: ["null", int]
outputs:
  - id: bam
    type: File
    outputBinding:
      glob: "*.sorted.bam"
`
	tool, err := testParser().ParseTool([]byte(doc))
	if err != nil {
		t.Fatalf("ParseTool: %v", err)
	}

	if len(tool.Arguments) != 2 {
		t.Fatalf("Arguments = %d, want 2", len(tool.Arguments))
	}
	if s, ok := tool.Arguments[0].(string); !ok || s != "-q" {
		t.Errorf("Arguments[0] = %#v", tool.Arguments[0])
	}

	reads := tool.Inputs["reads"]
	if reads.Type != "File[]" {
		t.Errorf("reads type = %q, want File[]", reads.Type)
	}
	if reads.ItemInputBinding == nil || reads.ItemInputBinding.Prefix != "-U" {
		t.Errorf("reads item binding = %+v", reads.ItemInputBinding)
	}
	if tool.Inputs["threads"].Type != "int?" {
		t.Errorf("threads type = %q, want int?", tool.Inputs["threads"].Type)
	}
	if !tool.HasRequirement("ShellCommandRequirement") {
		t.Error("missing ShellCommandRequirement")
	}
	if glob := tool.Outputs["bam"].OutputBinding.Glob; glob != "*.sorted.bam" {
		t.Errorf("glob = %v", glob)
	}
}

func TestParseTool_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid yaml", "class: [unclosed"},
		{"empty", ""},
		{"workflow class", "class: Workflow\nsteps: {}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := testParser().ParseTool([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
