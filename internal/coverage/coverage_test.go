package coverage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/virocov/internal/execution"
	"github.com/me/virocov/internal/flagfilter"
	"github.com/me/virocov/internal/stages"
	"github.com/me/virocov/internal/workarea"
)

const sampleTable = "#rname\tstartpos\tendpos\tnumreads\tcovbases\tcoverage\tmeandepth\tmeanbaseq\tmeanmapq\n" +
	"KJ660346.2\t1\t18959\t21873\t18840\t99.3723\t115.391\t35.9\t41.8\n" +
	"NC_045512.2\t1\t29903\t0\t0\t0\t0\t0\t0\n"

type fakeRunner struct {
	reqs  []execution.StageRequest
	table string
	exit  int
}

func (f *fakeRunner) RunStage(_ context.Context, req execution.StageRequest) (*execution.StageResult, error) {
	f.reqs = append(f.reqs, req)
	path := filepath.Join(req.WorkDir, ReportFile)
	if err := os.WriteFile(path, []byte(f.table), 0o644); err != nil {
		return nil, err
	}
	res := &execution.StageResult{Stage: req.Stage, ExitCode: f.exit}
	if f.exit != 0 {
		return res, &execution.ExecutionError{Phase: "execute", Err: execution.ErrNonZeroExit, ExitCode: f.exit}
	}
	res.Outputs = map[string][]string{"report": {path}}
	return res, nil
}

func TestReporter_Compute(t *testing.T) {
	area := workarea.New(t.TempDir())
	runner := &fakeRunner{table: sampleTable}
	r := NewReporter(runner, nil)

	bam := area.Path("A.sorted.bam")
	report, err := r.Compute(context.Background(), area, bam, flagfilter.ComputeExclusionSet(false))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	req := runner.reqs[0]
	if req.Stage != stages.Coverage {
		t.Errorf("stage = %q", req.Stage)
	}
	if req.WorkDir != area.Dir || req.TmpDir != area.TmpDir() {
		t.Errorf("dirs = %q, %q", req.WorkDir, req.TmpDir)
	}
	if got := req.Inputs["exclude_flags"]; got != "UNMAP,SECONDARY,QCFAIL,DUP" {
		t.Errorf("exclude_flags = %v", got)
	}
	if got := req.Inputs["include_secondary"]; got != false {
		t.Errorf("include_secondary = %v", got)
	}
	alignments, _ := req.Inputs["alignments"].(map[string]any)
	if alignments["path"] != bam {
		t.Errorf("alignments = %v", req.Inputs["alignments"])
	}

	if report.Path != area.Path(ReportFile) {
		t.Errorf("Path = %q", report.Path)
	}
	if len(report.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(report.Rows))
	}
	row, ok := report.Row("KJ660346.2")
	if !ok || row.Length != 18959 || row.NumReads != 21873 {
		t.Errorf("row = %+v", row)
	}
}

func TestReporter_Compute_IncludeSecondary(t *testing.T) {
	area := workarea.New(t.TempDir())
	runner := &fakeRunner{table: sampleTable}
	if _, err := NewReporter(runner, nil).Compute(context.Background(), area, "x.bam", flagfilter.ComputeExclusionSet(true)); err != nil {
		t.Fatal(err)
	}
	if got := runner.reqs[0].Inputs["exclude_flags"]; got != "UNMAP,QCFAIL,DUP" {
		t.Errorf("exclude_flags = %v", got)
	}
	if got := runner.reqs[0].Inputs["include_secondary"]; got != true {
		t.Errorf("include_secondary = %v", got)
	}
}

func TestReporter_Compute_Failure(t *testing.T) {
	area := workarea.New(t.TempDir())
	runner := &fakeRunner{table: "partial", exit: 1}

	_, err := NewReporter(runner, nil).Compute(context.Background(), area, "x.bam", flagfilter.ComputeExclusionSet(false))
	if !errors.Is(err, execution.ErrNonZeroExit) {
		t.Fatalf("error = %v, want ErrNonZeroExit", err)
	}
	if area.Exists(ReportFile) {
		t.Error("no report should remain after a failed stage")
	}
}

func TestReporter_Compute_Rewrites(t *testing.T) {
	area := workarea.New(t.TempDir())
	if err := os.WriteFile(area.Path(ReportFile), []byte("old\tgarbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{table: sampleTable}
	report, err := NewReporter(runner, nil).Compute(context.Background(), area, "x.bam", flagfilter.ComputeExclusionSet(false))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if len(report.Rows) != 2 {
		t.Errorf("rows = %d, want 2 (no merge with the previous table)", len(report.Rows))
	}
}

func TestParseReport(t *testing.T) {
	rows, err := ParseReport(strings.NewReader(sampleTable))
	if err != nil {
		t.Fatalf("ParseReport failed: %v", err)
	}
	want := Row{
		Name: "KJ660346.2", Length: 18959, NumReads: 21873, CoveredBases: 18840,
		Coverage: 99.3723, MeanDepth: 115.391, MeanBaseQ: 35.9, MeanMapQ: 41.8,
	}
	if rows[0] != want {
		t.Errorf("rows[0] = %+v, want %+v", rows[0], want)
	}
	if rows[1].Length != 29903 || rows[1].NumReads != 0 {
		t.Errorf("rows[1] = %+v", rows[1])
	}
}

func TestParseReport_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"short row", "ref\t1\t10\n"},
		{"bad int", "ref\t1\tten\t0\t0\t0\t0\t0\t0\n"},
		{"bad float", "ref\t1\t10\t0\t0\tx\t0\t0\t0\n"},
		{"end before start", "ref\t10\t1\t0\t0\t0\t0\t0\t0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseReport(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseReport_Empty(t *testing.T) {
	rows, err := ParseReport(strings.NewReader("#rname\tstartpos\tendpos\tnumreads\tcovbases\tcoverage\tmeandepth\tmeanbaseq\tmeanmapq\n"))
	if err != nil || len(rows) != 0 {
		t.Errorf("ParseReport = %v, %v", rows, err)
	}
}
