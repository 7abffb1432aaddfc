// Package config loads the pipeline configuration. Values come from built-in
// defaults, then an optional YAML file, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/virocov/internal/execution"
	"github.com/me/virocov/internal/staging"
)

// DefaultFile is the configuration file looked up in the run root.
const DefaultFile = "virocov.yaml"

// PipelineConfig holds configuration for a pipeline run.
type PipelineConfig struct {
	Root             string           `yaml:"root"`              // Run root directory
	IncludeSecondary bool             `yaml:"include_secondary"` // Count secondary alignments in coverage
	Runtime          string           `yaml:"runtime"`           // docker, apptainer or none
	Jobs             int              `yaml:"jobs"`              // Samples processed concurrently
	Cores            int              `yaml:"cores"`             // runtime.cores for every stage
	ArchiveURL       string           `yaml:"archive_url"`       // Base of the read archive
	Ledger           string           `yaml:"ledger"`            // SQLite ledger, relative to Root
	IndexBasename    string           `yaml:"index_basename"`    // bowtie2 index prefix
	LogLevel         string           `yaml:"log_level"`         // debug, info, warn, error
	LogFormat        string           `yaml:"log_format"`        // text, json
	Reference        ReferenceConfig  `yaml:"reference"`
	HTTP             HTTPConfig       `yaml:"http"`
	S3               S3Config         `yaml:"s3"`
	Samples          []staging.Sample `yaml:"samples"`
}

// ReferenceConfig selects the viral reference the index is built from.
type ReferenceConfig struct {
	FASTA         string `yaml:"fasta"`          // Master FASTA, plain or gzip
	List          string `yaml:"list"`           // Optional accession list
	IgnoreVersion bool   `yaml:"ignore_version"` // Match accessions regardless of version
}

// HTTPConfig configures the HTTP(S) fetcher.
type HTTPConfig struct {
	Timeout     time.Duration                      `yaml:"timeout"`
	MaxRetries  int                                `yaml:"max_retries"`
	RetryDelay  time.Duration                      `yaml:"retry_delay"`
	Credentials map[string]execution.CredentialSet `yaml:"credentials"`
}

// S3Config configures the s3:// fetcher.
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	Anonymous bool   `yaml:"anonymous"`
}

// DefaultSamples is the built-in sample list.
var DefaultSamples = []staging.Sample{
	{ID: "SRR1553425", Layout: staging.PairedEnd},
	{ID: "SRR1972739", Layout: staging.SingleEnd},
}

// Default returns sensible defaults. Secondary alignments are excluded
// unless include_secondary is set.
func Default() PipelineConfig {
	return PipelineConfig{
		Root:             ".",
		IncludeSecondary: false,
		Runtime:          "docker",
		Jobs:             1,
		Cores:            1,
		ArchiveURL:       staging.DefaultArchiveURL,
		Ledger:           "virocov.db",
		IndexBasename:    "viral",
		LogLevel:         "info",
		LogFormat:        "text",
		Reference: ReferenceConfig{
			FASTA:         "viruses.fasta",
			IgnoreVersion: true,
		},
		HTTP: HTTPConfig{
			Timeout:    30 * time.Minute,
			MaxRetries: 1,
			RetryDelay: time.Second,
		},
		Samples: append([]staging.Sample(nil), DefaultSamples...),
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
// Relative reference paths are resolved against the file's directory.
func Load(path string) (PipelineConfig, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := decode(f, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	cfg.Reference.FASTA = resolve(dir, cfg.Reference.FASTA)
	cfg.Reference.List = resolve(dir, cfg.Reference.List)
	return cfg, nil
}

func decode(r io.Reader, cfg *PipelineConfig) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// LedgerPath returns the ledger location; relative paths sit in the run root.
func (c PipelineConfig) LedgerPath() string {
	if c.Ledger == "" || c.Ledger == ":memory:" || filepath.IsAbs(c.Ledger) {
		return c.Ledger
	}
	return filepath.Join(c.Root, c.Ledger)
}

var runtimes = map[string]bool{"docker": true, "apptainer": true, "none": true}

// Validate reports the first invalid setting.
func (c PipelineConfig) Validate() error {
	if c.Root == "" {
		return errors.New("root must be set")
	}
	if !runtimes[c.Runtime] {
		return fmt.Errorf("runtime %q: want docker, apptainer or none", c.Runtime)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	if c.Cores < 1 {
		return fmt.Errorf("cores must be at least 1, got %d", c.Cores)
	}
	if c.IndexBasename == "" {
		return errors.New("index_basename must be set")
	}
	if c.Reference.FASTA == "" {
		return errors.New("reference.fasta must be set")
	}
	if len(c.Samples) == 0 {
		return errors.New("no samples configured")
	}
	seen := make(map[string]bool, len(c.Samples))
	for _, s := range c.Samples {
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
