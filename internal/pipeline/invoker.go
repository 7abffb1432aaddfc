// Package pipeline drives a run: it cleans the run root, builds the shared
// viral index once, then stages, aligns and reports coverage for each sample
// in its own working area.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/me/virocov/internal/coverage"
	"github.com/me/virocov/internal/execution"
	"github.com/me/virocov/internal/flagfilter"
	"github.com/me/virocov/internal/reference"
	"github.com/me/virocov/internal/stages"
	"github.com/me/virocov/internal/staging"
	"github.com/me/virocov/internal/store"
	"github.com/me/virocov/internal/workarea"
	"github.com/me/virocov/pkg/cwl"
	"github.com/me/virocov/pkg/model"
)

const (
	// IndexDir is the shared index area under the run root.
	IndexDir = "index"
	// ReferenceFile is the prepared reference inside the index area.
	ReferenceFile = "reference.fasta"
)

// Config holds Invoker settings.
type Config struct {
	Root   string
	Runner StageRunner

	Fetcher    staging.Fetcher
	ArchiveURL string

	// Store records runs and stage invocations; nil disables the ledger.
	Store store.Store

	Reference     reference.Options
	IndexBasename string

	IncludeSecondary bool
	Jobs             int
	Cores            int

	// ControlAssets are files the root cleanup must keep, such as the
	// configuration file and the ledger database.
	ControlAssets []string

	Logger *slog.Logger
	Trace  func(line string)
}

// Invoker runs the pipeline.
type Invoker struct {
	cfg    Config
	root   workarea.Area
	stager *staging.Stager
	logger *slog.Logger
}

// NewInvoker creates an Invoker.
func NewInvoker(cfg Config) *Invoker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IndexBasename == "" {
		cfg.IndexBasename = "viral"
	}
	if cfg.Cores <= 0 {
		cfg.Cores = 1
	}
	root := workarea.New(cfg.Root)
	return &Invoker{
		cfg:  cfg,
		root: root,
		stager: staging.NewStager(staging.Config{
			Root:       root,
			ArchiveURL: cfg.ArchiveURL,
			Fetcher:    cfg.Fetcher,
			Logger:     cfg.Logger,
			Trace:      cfg.Trace,
		}),
		logger: cfg.Logger.With("component", "invoker"),
	}
}

// IndexArea returns the shared index area.
func (i *Invoker) IndexArea() workarea.Area {
	return i.root.Sub(IndexDir)
}

// Run processes samples in declared order. The first failure aborts the
// run and later samples are not attempted.
func (i *Invoker) Run(ctx context.Context, samples []staging.Sample) (err error) {
	if i.cfg.Runner == nil {
		return fmt.Errorf("%w: no stage runner configured", staging.ErrPrecondition)
	}
	if err := validateSamples(samples); err != nil {
		return fmt.Errorf("%w: %w", staging.ErrPrecondition, err)
	}
	if err := os.MkdirAll(i.root.Dir, 0o755); err != nil {
		return fmt.Errorf("%w: create run root: %w", staging.ErrPrecondition, err)
	}

	runID, err := i.startRun(ctx, samples)
	if err != nil {
		return err
	}
	defer func() { i.finishRun(ctx, runID, err) }()

	start := time.Now()
	removed, err := i.Cleanup(samples)
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		i.logger.Info("cleaned run root", "removed", removed)
	}

	index, err := i.BuildIndex(ctx, runID)
	if err != nil {
		return err
	}

	set := flagfilter.ComputeExclusionSet(i.cfg.IncludeSecondary)
	i.logger.Info("processing samples", "count", len(samples), "jobs", i.cfg.Jobs, "exclude", set.String())

	if i.cfg.Jobs <= 1 {
		for _, s := range samples {
			if err := i.runSample(ctx, runID, index, s, set); err != nil {
				return err
			}
		}
	} else if err := i.runParallel(ctx, runID, index, samples, set); err != nil {
		return err
	}

	i.logger.Info("run complete", "samples", len(samples), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Cleanup removes every root entry that is not a sample area, the index
// area, the sentinel or a control asset, then writes the root sentinel.
// It returns the removed names.
func (i *Invoker) Cleanup(samples []staging.Sample) ([]string, error) {
	keep := []string{IndexDir, workarea.SentinelName}
	for _, s := range samples {
		keep = append(keep, s.ID)
	}
	assets, err := i.controlNames(keep)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", staging.ErrPrecondition, err)
	}
	keep = append(keep, assets...)

	removed, err := i.root.Prune(keep)
	if err != nil {
		return removed, fmt.Errorf("%w: %w", staging.ErrPrecondition, err)
	}
	if err := i.root.WriteSentinel(); err != nil {
		return removed, fmt.Errorf("%w: %w", staging.ErrPrecondition, err)
	}
	return removed, nil
}

// controlNames returns the root-level entries that hold control assets: the
// asset itself when it sits directly in the root, otherwise the top directory
// containing it. SQLite side files of a top-level asset are kept with it. An
// asset inside one of the managed names is an error, since the run rewrites
// those entries.
func (i *Invoker) controlNames(managed []string) ([]string, error) {
	assets := append([]string{i.cfg.Reference.FASTA, i.cfg.Reference.List}, i.cfg.ControlAssets...)
	rootAbs, err := filepath.Abs(i.root.Dir)
	if err != nil {
		rootAbs = i.root.Dir
	}

	var names []string
	for _, asset := range assets {
		if asset == "" || asset == ":memory:" {
			continue
		}
		abs, err := filepath.Abs(asset)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(rootAbs, abs)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		top, _, nested := strings.Cut(rel, string(filepath.Separator))
		if slices.Contains(managed, top) {
			return nil, fmt.Errorf("control asset %s lies inside %s, which the run rewrites", asset, top)
		}
		if nested {
			names = append(names, top)
			continue
		}
		names = append(names, top, top+"-wal", top+"-shm", top+"-journal")
	}
	return names, nil
}

// BuildIndex prepares the reference and runs the index build once. It
// returns the index area, which every alignment reads.
func (i *Invoker) BuildIndex(ctx context.Context, runID string) (workarea.Area, error) {
	area := i.IndexArea()
	if err := area.WriteSentinel(); err != nil {
		return area, fmt.Errorf("%w: %w", staging.ErrPrecondition, err)
	}
	if err := area.Ensure(); err != nil {
		return area, fmt.Errorf("%w: %w", staging.ErrPrecondition, err)
	}
	if _, err := area.Prune([]string{workarea.SentinelName, workarea.TmpName}); err != nil {
		return area, fmt.Errorf("%w: %w", staging.ErrPrecondition, err)
	}

	refPath := area.Path(ReferenceFile)
	stats, err := reference.Prepare(ctx, i.cfg.Reference, refPath)
	if err != nil {
		return area, fmt.Errorf("%w: prepare reference: %w", staging.ErrPrecondition, err)
	}
	i.logger.Info("reference prepared", "path", refPath, "kept", stats.Kept, "total", stats.Total)

	runner := i.recorder(runID, "")
	res, err := runner.RunStage(ctx, i.indexRequest())
	if err != nil {
		return area, &StageError{Stage: stages.IndexBuild, Err: err}
	}
	i.logger.Info("index built", "files", len(res.Outputs["index_files"]))
	return area, nil
}

func (i *Invoker) runParallel(ctx context.Context, runID string, index workarea.Area, samples []staging.Sample, set flagfilter.ExclusionSet) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := NewSemaphore(i.cfg.Jobs)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, s := range samples {
		if !sem.Acquire(ctx) {
			break
		}
		if ctx.Err() != nil {
			sem.Release()
			break
		}
		wg.Add(1)
		go func(s staging.Sample) {
			defer wg.Done()
			defer sem.Release()
			if err := i.runSample(ctx, runID, index, s, set); err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(s)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// runSample stages one sample, clears stale outputs, aligns it and
// writes its coverage report.
func (i *Invoker) runSample(ctx context.Context, runID string, index workarea.Area, s staging.Sample, set flagfilter.ExclusionSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := i.logger.With("sample", s.ID)

	staged, err := i.stager.EnsureStaged(ctx, s)
	if err != nil {
		return err
	}

	area := staged.Area
	keep := append([]string{workarea.SentinelName, workarea.TmpName}, s.ExpectedFiles()...)
	removed, err := area.Prune(keep)
	if err != nil {
		return fmt.Errorf("%w: sample %s: %w", staging.ErrPrecondition, s.ID, err)
	}
	if len(removed) > 0 {
		logger.Debug("removed stale outputs", "removed", removed)
	}
	if err := area.ResetTmp(); err != nil {
		return fmt.Errorf("%w: sample %s: %w", staging.ErrPrecondition, s.ID, err)
	}

	runner := i.recorder(runID, s.ID)
	req := i.alignRequest(index, area, s, staged.Files)
	stage := req.Stage
	res, err := runner.RunStage(ctx, req)
	if err != nil {
		return &StageError{Sample: s.ID, Stage: stage, Err: err}
	}
	bam, err := res.Output("alignments")
	if err != nil {
		return &StageError{Sample: s.ID, Stage: stage, Err: err}
	}

	report, err := coverage.NewReporter(runner, i.cfg.Logger).Compute(ctx, area, bam, set)
	if err != nil {
		return &StageError{Sample: s.ID, Stage: stages.Coverage, Err: err}
	}
	logger.Info("sample complete", "report", report.Path, "references", len(report.Rows))
	return nil
}

// StageRequest returns the invocation the run would make of stage for
// sample, without staging or running anything. The index build ignores sample.
func (i *Invoker) StageRequest(stage string, s staging.Sample) (execution.StageRequest, error) {
	area := i.stager.Area(s)
	switch stage {
	case stages.IndexBuild:
		return i.indexRequest(), nil
	case stages.AlignPaired, stages.AlignSingle:
		if err := s.Validate(); err != nil {
			return execution.StageRequest{}, err
		}
		req := i.alignRequest(i.IndexArea(), area, s, nil)
		if req.Stage != stage {
			return execution.StageRequest{}, fmt.Errorf("sample %s is %s-end; it runs %s", s.ID, s.Layout, req.Stage)
		}
		return req, nil
	case stages.Coverage:
		set := flagfilter.ComputeExclusionSet(i.cfg.IncludeSecondary)
		return coverage.Request(area, area.Path(s.AlignmentFile()), set), nil
	default:
		return execution.StageRequest{}, fmt.Errorf("unknown stage %q", stage)
	}
}

func (i *Invoker) indexRequest() execution.StageRequest {
	area := i.IndexArea()
	return execution.StageRequest{
		Stage:   stages.IndexBuild,
		WorkDir: area.Dir,
		TmpDir:  area.TmpDir(),
		Inputs: map[string]any{
			"reference":      cwl.FileObject(area.Path(ReferenceFile)),
			"index_basename": i.cfg.IndexBasename,
			"threads":        i.cfg.Cores,
		},
	}
}

// alignRequest picks the alignment stage for the sample's layout. files
// defaults to the expected raw files of the area.
func (i *Invoker) alignRequest(index, area workarea.Area, s staging.Sample, files []string) execution.StageRequest {
	if files == nil {
		for _, name := range s.ExpectedFiles() {
			files = append(files, area.Path(name))
		}
	}
	req := execution.StageRequest{
		Stage:   stages.AlignSingle,
		WorkDir: area.Dir,
		TmpDir:  area.TmpDir(),
		Inputs: map[string]any{
			"sample_id":      s.ID,
			"index":          cwl.DirectoryObject(index.Dir),
			"index_basename": i.cfg.IndexBasename,
		},
	}
	if s.Layout == staging.PairedEnd {
		req.Stage = stages.AlignPaired
		req.Inputs["reads_1"] = cwl.FileObject(files[0])
		req.Inputs["reads_2"] = cwl.FileObject(files[1])
		return req
	}
	req.Inputs["reads"] = cwl.FileObject(files[0])
	return req
}

func (i *Invoker) recorder(runID, sample string) StageRunner {
	if i.cfg.Store == nil {
		return i.cfg.Runner
	}
	return &recordingRunner{
		next:   i.cfg.Runner,
		store:  i.cfg.Store,
		runID:  runID,
		sample: sample,
		onErr: func(err error) {
			i.logger.Warn("ledger write failed", "sample", sample, "error", err)
		},
	}
}

func (i *Invoker) startRun(ctx context.Context, samples []staging.Sample) (string, error) {
	if i.cfg.Store == nil {
		return "", nil
	}
	run := &model.Run{
		Root:             i.root.Dir,
		IncludeSecondary: i.cfg.IncludeSecondary,
		StartedAt:        time.Now(),
	}
	for _, s := range samples {
		run.Samples = append(run.Samples, s.ID)
	}
	if err := i.cfg.Store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("%w: record run: %w", staging.ErrPrecondition, err)
	}
	i.logger.Debug("run started", "run", run.ID)
	return run.ID, nil
}

func (i *Invoker) finishRun(ctx context.Context, runID string, runErr error) {
	if i.cfg.Store == nil || runID == "" {
		return
	}
	state, msg := model.StateSuccess, ""
	if runErr != nil {
		state, msg = model.StateFailed, runErr.Error()
	}
	if err := i.cfg.Store.FinishRun(context.WithoutCancel(ctx), runID, state, msg, time.Now()); err != nil {
		i.logger.Warn("ledger write failed", "run", runID, "error", err)
	}
}

func validateSamples(samples []staging.Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples")
	}
	seen := make(map[string]bool, len(samples))
	for _, s := range samples {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("sample %s listed twice", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
