package cwlexpr

import (
	"testing"
)

func TestEvaluator_ParameterReference(t *testing.T) {
	eval := NewEvaluator(nil)

	ctx := &Context{
		Inputs: map[string]any{
			"sample_id": "SRR1553425",
			"threads":   4,
			"index": map[string]any{
				"class":    "Directory",
				"path":     "/runs/index",
				"basename": "index",
			},
			"include_secondary": false,
		},
		Runtime: &RuntimeContext{OutDir: "/runs/SRR1553425", TmpDir: "/runs/SRR1553425/tmp", Cores: 8},
	}

	tests := []struct {
		name    string
		expr    string
		want    any
		wantErr bool
	}{
		{name: "literal", expr: "samtools", want: "samtools"},
		{name: "string reference", expr: "$(inputs.sample_id)", want: "SRR1553425"},
		{name: "int reference", expr: "$(inputs.threads)", want: int64(4)},
		{name: "nested property", expr: "$(inputs.index.path)", want: "/runs/index"},
		{name: "interpolation", expr: "$(inputs.sample_id).sorted.bam", want: "SRR1553425.sorted.bam"},
		{name: "two references", expr: "$(inputs.index.path)/$(inputs.sample_id)", want: "/runs/index/SRR1553425"},
		{name: "runtime tmpdir", expr: "$(runtime.tmpdir)/sort", want: "/runs/SRR1553425/tmp/sort"},
		{name: "runtime cores", expr: "$(runtime.cores)", want: int64(8)},
		{name: "ternary", expr: `$(inputs.include_secondary ? "UNMAP,QCFAIL,DUP" : "UNMAP,SECONDARY,QCFAIL,DUP")`, want: "UNMAP,SECONDARY,QCFAIL,DUP"},
		{name: "code block", expr: "${ return inputs.threads * 2; }", want: int64(8)},
		{name: "escaped", expr: `\$(not evaluated)`, want: "$(not evaluated)"},
		{name: "undefined property", expr: "$(inputs.missing.path)", wantErr: true},
		{name: "undefined value", expr: "$(inputs.nothing)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.Evaluate(tt.expr, ctx)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Evaluate(%q) expected error, got %v", tt.expr, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate(%q) error = %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %v (%T), want %v (%T)", tt.expr, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestEvaluator_Self(t *testing.T) {
	eval := NewEvaluator(nil)
	ctx := NewContext(map[string]any{}).WithSelf(map[string]any{"path": "/runs/A/A.sorted.bam"})

	got, err := eval.EvaluateString("$(self.path)", ctx)
	if err != nil {
		t.Fatalf("EvaluateString error = %v", err)
	}
	if got != "/runs/A/A.sorted.bam" {
		t.Errorf("got %q", got)
	}
}

func TestEvaluator_ExpressionLib(t *testing.T) {
	eval := NewEvaluator([]string{`function mate(id, n) { return id + "_" + n + ".fastq.gz"; }`})
	ctx := NewContext(map[string]any{"sample_id": "ERR0000001"})

	got, err := eval.EvaluateString("$(mate(inputs.sample_id, 2))", ctx)
	if err != nil {
		t.Fatalf("EvaluateString error = %v", err)
	}
	if got != "ERR0000001_2.fastq.gz" {
		t.Errorf("got %q", got)
	}
}

func TestIsExpression(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"plain", false},
		{"$(inputs.x)", true},
		{"prefix_$(inputs.x)", true},
		{"${ return 1; }", true},
		{`\$(escaped)`, false},
	}
	for _, tt := range tests {
		if got := IsExpression(tt.in); got != tt.want {
			t.Errorf("IsExpression(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestToString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "null"},
		{true, "true"},
		{int64(12), "12"},
		{0.5, "0.5"},
		{1e21, "1000000000000000000000"},
		{[]any{"a", "b"}, `["a","b"]`},
	}
	for _, tt := range tests {
		if got := ToString(tt.in); got != tt.want {
			t.Errorf("ToString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
