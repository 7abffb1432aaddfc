// Package staging makes sure every sample's raw read files are present in its
// working area, fetching only what is missing.
package staging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/me/virocov/internal/workarea"
)

// DefaultArchiveURL is the ENA FASTQ mirror.
const DefaultArchiveURL = "https://ftp.sra.ebi.ac.uk/vol1/fastq"

// Fetcher copies one location to a local path.
type Fetcher interface {
	StageIn(ctx context.Context, location string, destPath string) error
}

// Config holds Stager settings.
type Config struct {
	Root       workarea.Area
	ArchiveURL string
	Fetcher    Fetcher
	Logger     *slog.Logger
	Trace      func(line string)
}

// Stager ensures samples are fully staged under the run root.
type Stager struct {
	root    workarea.Area
	base    string
	fetcher Fetcher
	logger  *slog.Logger
	trace   func(string)
}

// StagedSample is a sample whose raw files are all present.
type StagedSample struct {
	Sample
	Area workarea.Area

	// Files holds the absolute paths of the raw files, primary first.
	Files []string

	// Fetched lists the file names downloaded by this call.
	Fetched []string
}

// NewStager creates a Stager.
func NewStager(cfg Config) *Stager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.ArchiveURL
	if base == "" {
		base = DefaultArchiveURL
	}
	trace := cfg.Trace
	if trace == nil {
		trace = func(string) {}
	}
	return &Stager{
		root:    cfg.Root,
		base:    base,
		fetcher: cfg.Fetcher,
		logger:  logger.With("component", "stager"),
		trace:   trace,
	}
}

// Area returns the working area of a sample.
func (s *Stager) Area(sample Sample) workarea.Area {
	return s.root.Sub(sample.ID)
}

// EnsureStaged makes every expected raw file of sample present. A sample
// that is already complete is passed through without network access or
// deletions. Otherwise the area is initialized, pruned to the raw files, the
// sentinel and the scratch dir, and only the missing files are fetched.
func (s *Stager) EnsureStaged(ctx context.Context, sample Sample) (*StagedSample, error) {
	if err := sample.Validate(); err != nil {
		return nil, err
	}
	area := s.Area(sample)
	expected := sample.ExpectedFiles()

	staged := &StagedSample{Sample: sample, Area: area}
	var missing []string
	for _, name := range expected {
		staged.Files = append(staged.Files, area.Path(name))
		if !area.Exists(name) {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		s.logger.Debug("sample already staged", "sample", sample.ID)
		return staged, nil
	}

	if sample.Layout == PairedEnd && len(missing) < len(expected) {
		s.logger.Warn("repairing sample", "sample", sample.ID, "missing", missing, "error", ErrInconsistentSample)
	}

	if err := area.WriteSentinel(); err != nil {
		return nil, fmt.Errorf("%w: sample %s: %w", ErrPrecondition, sample.ID, err)
	}
	if err := area.Ensure(); err != nil {
		return nil, fmt.Errorf("%w: sample %s: %w", ErrPrecondition, sample.ID, err)
	}

	keep := append([]string{workarea.SentinelName, workarea.TmpName}, expected...)
	removed, err := area.Prune(keep)
	if err != nil {
		return nil, fmt.Errorf("%w: sample %s: %w", ErrPrecondition, sample.ID, err)
	}
	if len(removed) > 0 {
		s.logger.Info("removed stale entries", "sample", sample.ID, "removed", removed)
	}

	if s.fetcher == nil {
		return nil, fmt.Errorf("%w: sample %s: no fetcher configured for %v", ErrPrecondition, sample.ID, missing)
	}
	for _, name := range missing {
		url := RemoteURL(s.base, sample.ID, name)
		dest := area.Path(name)
		s.trace(fmt.Sprintf("fetch %s %s", url, dest))
		if err := s.fetcher.StageIn(ctx, url, dest); err != nil {
			return nil, fmt.Errorf("%w: fetch %s: %w", ErrPrecondition, url, err)
		}
		staged.Fetched = append(staged.Fetched, name)
	}

	for _, name := range expected {
		if !area.Exists(name) {
			return nil, fmt.Errorf("%w: sample %s: %s still missing after fetch", ErrInconsistentSample, sample.ID, name)
		}
	}

	s.logger.Info("sample staged", "sample", sample.ID, "fetched", staged.Fetched)
	return staged, nil
}
