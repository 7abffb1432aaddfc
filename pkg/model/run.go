// Package model holds the records kept in the run ledger.
package model

import "time"

// Run is one pipeline invocation.
type Run struct {
	ID      string   `json:"id"`
	Root    string   `json:"root"`
	Samples []string `json:"samples"`

	IncludeSecondary bool `json:"include_secondary"`

	State      State      `json:"state"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StageRun is one stage invocation inside a Run. Sample is empty for the
// shared index build.
type StageRun struct {
	ID         string     `json:"id"`
	RunID      string     `json:"run_id"`
	Sample     string     `json:"sample,omitempty"`
	Stage      string     `json:"stage"`
	Command    []string   `json:"command"`
	State      State      `json:"state"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns the elapsed time of a finished stage, or zero.
func (s *StageRun) Duration() time.Duration {
	if s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
