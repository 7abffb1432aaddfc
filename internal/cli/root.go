// Package cli implements the virocov command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/me/virocov/internal/config"
	"github.com/me/virocov/internal/logging"
)

// app carries the global flags and the streams of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath       string
	root             string
	includeSecondary bool
	runtime          string
	jobs             int
	archiveURL       string
	ledger           string
	logLevel         string
	logFormat        string
}

// NewRootCmd creates the root cobra command. Running it without a
// subcommand runs the pipeline. Trace and command output go to stdout,
// logs to stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	defaults := config.Default()

	root := &cobra.Command{
		Use:   "virocov",
		Short: "Viral genome coverage for sequencing runs",
		Long: `virocov builds a bowtie2 index of viral reference genomes, fetches the
configured sequencing runs, aligns them and writes a samtools coverage
table per sample.

Examples:
  # Run with the built-in sample list in the current directory
  virocov

  # Run a configured sample list four samples at a time
  virocov --config runs.yaml --root /data/runs -j 4

  # Show the command a stage would run
  virocov print-command align-paired --sample SRR1553425
`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.runPipeline,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Configuration file (default: <root>/"+config.DefaultFile+" if present)")
	pf.StringVar(&a.root, "root", defaults.Root, "Run root directory")
	pf.BoolVar(&a.includeSecondary, "include-secondary", defaults.IncludeSecondary, "Count secondary alignments in coverage")
	pf.StringVar(&a.runtime, "runtime", defaults.Runtime, "Stage runtime: docker, apptainer, or none")
	pf.IntVarP(&a.jobs, "jobs", "j", defaults.Jobs, "Samples processed concurrently")
	pf.StringVar(&a.archiveURL, "archive-url", defaults.ArchiveURL, "Base URL of the read archive (https, http, file, s3)")
	pf.StringVar(&a.ledger, "ledger", defaults.Ledger, "Run ledger database, relative to the root (empty disables)")
	pf.StringVar(&a.logLevel, "log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	pf.StringVar(&a.logFormat, "log-format", defaults.LogFormat, "Log format (text, json)")

	root.AddCommand(
		a.newExclusionFlagsCmd(),
		a.newFilterReferenceCmd(),
		a.newPrintCommandCmd(),
		a.newHistoryCmd(),
	)
	return root
}

// loadConfig layers the configuration file and explicitly set flags over
// the defaults. It returns the config and the file it read, if any.
func (a *app) loadConfig(cmd *cobra.Command) (config.PipelineConfig, string, error) {
	flags := cmd.Flags()
	path := a.configPath
	if path == "" {
		candidate := filepath.Join(a.root, config.DefaultFile)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, path, err
		}
	}

	if flags.Changed("root") {
		cfg.Root = a.root
	}
	if flags.Changed("include-secondary") {
		cfg.IncludeSecondary = a.includeSecondary
	}
	if flags.Changed("runtime") {
		cfg.Runtime = a.runtime
	}
	if flags.Changed("jobs") {
		cfg.Jobs = a.jobs
	}
	if flags.Changed("archive-url") {
		cfg.ArchiveURL = a.archiveURL
	}
	if flags.Changed("ledger") {
		cfg.Ledger = a.ledger
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return cfg, path, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}

func (a *app) newLogger(cfg config.PipelineConfig) (*slog.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, a.stderr)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return logger, nil
}
