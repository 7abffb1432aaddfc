package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/virocov/internal/staging"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.IncludeSecondary {
		t.Error("secondary alignments must be excluded by default")
	}
	if cfg.Jobs != 1 {
		t.Errorf("Jobs = %d, want 1", cfg.Jobs)
	}
	if len(cfg.Samples) != len(DefaultSamples) {
		t.Errorf("Samples = %v", cfg.Samples)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	// Default must not alias the package-level list.
	cfg.Samples[0].ID = "changed"
	if DefaultSamples[0].ID == "changed" {
		t.Error("Default() aliases DefaultSamples")
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
root: /data/runs
include_secondary: true
runtime: apptainer
jobs: 4
reference:
  fasta: refs/viruses.fasta.gz
  list: refs/sam-viruses.txt
http:
  timeout: 10m
  max_retries: 3
samples:
  - id: SRR1553425
    layout: paired
  - id: ERR000001
    layout: SINGLE
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Root != "/data/runs" || !cfg.IncludeSecondary || cfg.Runtime != "apptainer" || cfg.Jobs != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.HTTP.Timeout != 10*time.Minute || cfg.HTTP.MaxRetries != 3 {
		t.Errorf("HTTP = %+v", cfg.HTTP)
	}
	// Untouched keys keep their defaults.
	if cfg.Cores != 1 || cfg.IndexBasename != "viral" || !cfg.Reference.IgnoreVersion {
		t.Errorf("defaults lost: %+v", cfg)
	}
	dir := filepath.Dir(path)
	if cfg.Reference.FASTA != filepath.Join(dir, "refs/viruses.fasta.gz") {
		t.Errorf("FASTA = %q", cfg.Reference.FASTA)
	}
	want := []staging.Sample{{ID: "SRR1553425", Layout: staging.PairedEnd}, {ID: "ERR000001", Layout: staging.SingleEnd}}
	if len(cfg.Samples) != 2 || cfg.Samples[0] != want[0] || cfg.Samples[1] != want[1] {
		t.Errorf("Samples = %v, want %v", cfg.Samples, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.IncludeSecondary || len(cfg.Samples) != 2 {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "includeSecondary: true\n", "field includeSecondary not found"},
		{"bad layout", "samples:\n  - id: SRR1553425\n    layout: interleaved\n", "unknown layout"},
		{"bad duration", "http:\n  timeout: soon\n", "time.Duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
	}{
		{"empty root", func(c *PipelineConfig) { c.Root = "" }},
		{"bad runtime", func(c *PipelineConfig) { c.Runtime = "podman" }},
		{"zero jobs", func(c *PipelineConfig) { c.Jobs = 0 }},
		{"zero cores", func(c *PipelineConfig) { c.Cores = 0 }},
		{"no reference", func(c *PipelineConfig) { c.Reference.FASTA = "" }},
		{"no samples", func(c *PipelineConfig) { c.Samples = nil }},
		{"duplicate sample", func(c *PipelineConfig) { c.Samples = append(c.Samples, c.Samples[0]) }},
		{"bad accession", func(c *PipelineConfig) { c.Samples = []staging.Sample{{ID: "index", Layout: staging.SingleEnd}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLedgerPath(t *testing.T) {
	cfg := Default()
	cfg.Root = "/data/runs"
	if got := cfg.LedgerPath(); got != "/data/runs/virocov.db" {
		t.Errorf("LedgerPath = %q", got)
	}
	cfg.Ledger = "/var/lib/virocov.db"
	if got := cfg.LedgerPath(); got != "/var/lib/virocov.db" {
		t.Errorf("LedgerPath = %q", got)
	}
	cfg.Ledger = ":memory:"
	if got := cfg.LedgerPath(); got != ":memory:" {
		t.Errorf("LedgerPath = %q", got)
	}
}
