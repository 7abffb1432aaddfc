// Package coverage runs the samtools coverage stage over a sample's sorted
// alignment and reads back the table it writes.
package coverage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/me/virocov/internal/execution"
	"github.com/me/virocov/internal/flagfilter"
	"github.com/me/virocov/internal/stages"
	"github.com/me/virocov/internal/workarea"
	"github.com/me/virocov/pkg/cwl"
)

// ReportFile is the name of the coverage table in the sample area.
const ReportFile = "coverage.tsv"

// StageRunner executes a named stage.
type StageRunner interface {
	RunStage(ctx context.Context, req execution.StageRequest) (*execution.StageResult, error)
}

// Reporter computes coverage reports.
type Reporter struct {
	runner StageRunner
	logger *slog.Logger
}

// NewReporter creates a Reporter.
func NewReporter(runner StageRunner, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{runner: runner, logger: logger.With("component", "coverage")}
}

// Request returns the coverage stage invocation for alignmentFile in area.
func Request(area workarea.Area, alignmentFile string, set flagfilter.ExclusionSet) execution.StageRequest {
	return execution.StageRequest{
		Stage:   stages.Coverage,
		WorkDir: area.Dir,
		TmpDir:  area.TmpDir(),
		Inputs: map[string]any{
			"include_secondary": !set.Excludes(flagfilter.Secondary),
			"exclude_flags":     set.String(),
			"alignments":        cwl.FileObject(alignmentFile),
		},
	}
}

// Compute runs the coverage stage on alignmentFile inside area, excluding
// records that carry any flag of set. The table is rewritten on every call;
// on failure no table is left behind.
func (r *Reporter) Compute(ctx context.Context, area workarea.Area, alignmentFile string, set flagfilter.ExclusionSet) (*Report, error) {
	reportPath := area.Path(ReportFile)
	if err := os.Remove(reportPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove previous report: %w", err)
	}

	res, err := r.runner.RunStage(ctx, Request(area, alignmentFile, set))
	if err != nil {
		os.Remove(reportPath)
		return nil, err
	}

	path, err := res.Output("report")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	rows, err := ParseReport(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	r.logger.Info("coverage report written", "path", path, "references", len(rows), "excluded", set.String())
	return &Report{Path: path, Rows: rows}, nil
}
