package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/virocov/pkg/model"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width UTC so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// One connection: samples record concurrently, and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = "run_" + uuid.New().String()
	}
	if run.State == "" {
		run.State = model.StateRunning
	}
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	samplesJSON, err := json.Marshal(run.Samples)
	if err != nil {
		return fmt.Errorf("marshal samples: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, root, samples, include_secondary, state, error, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Root, string(samplesJSON), boolToInt(run.IncludeSecondary),
		string(run.State), run.Error, formatTime(run.StartedAt),
	)
	return err
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, state model.State, errMsg string, at time.Time) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", id, "state", state)
	return s.finish(ctx,
		`UPDATE runs SET state = ?, error = ?, finished_at = ? WHERE id = ? AND state = ?`,
		"runs", id, state, string(state), errMsg, formatTime(at), id, string(model.StateRunning))
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, root, samples, include_secondary, state, error, started_at, finished_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "limit", limit)
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, root, samples, include_secondary, state, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// --- Stage runs ---

func (s *SQLiteStore) CreateStageRun(ctx context.Context, sr *model.StageRun) error {
	if sr.ID == "" {
		sr.ID = "stage_" + uuid.New().String()
	}
	if sr.State == "" {
		sr.State = model.StateRunning
	}
	s.logger.Debug("sql", "op", "insert", "table", "stage_runs", "id", sr.ID, "stage", sr.Stage)

	commandJSON, err := json.Marshal(sr.Command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stage_runs (id, run_id, sample, stage, command, state, exit_code, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sr.ID, sr.RunID, sr.Sample, sr.Stage, string(commandJSON), string(sr.State),
		nullInt(sr.ExitCode), formatTime(sr.StartedAt), nullTime(sr.FinishedAt),
	)
	return err
}

func (s *SQLiteStore) FinishStageRun(ctx context.Context, id string, state model.State, exitCode *int, at time.Time) error {
	s.logger.Debug("sql", "op", "update", "table", "stage_runs", "id", id, "state", state)
	return s.finish(ctx,
		`UPDATE stage_runs SET state = ?, exit_code = ?, finished_at = ? WHERE id = ? AND state = ?`,
		"stage_runs", id, state, string(state), nullInt(exitCode), formatTime(at), id, string(model.StateRunning))
}

func (s *SQLiteStore) ListStageRuns(ctx context.Context, runID string) ([]*model.StageRun, error) {
	s.logger.Debug("sql", "op", "select", "table", "stage_runs", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, sample, stage, command, state, exit_code, started_at, finished_at
		 FROM stage_runs WHERE run_id = ? ORDER BY started_at, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.StageRun
	for rows.Next() {
		var sr model.StageRun
		var commandJSON, state, startedAt string
		var exitCode sql.NullInt64
		var finishedAt sql.NullString
		if err := rows.Scan(&sr.ID, &sr.RunID, &sr.Sample, &sr.Stage, &commandJSON, &state,
			&exitCode, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(commandJSON), &sr.Command); err != nil {
			return nil, fmt.Errorf("unmarshal command: %w", err)
		}
		sr.State = model.State(state)
		if exitCode.Valid {
			code := int(exitCode.Int64)
			sr.ExitCode = &code
		}
		if sr.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if sr.FinishedAt, err = parseNullTime(finishedAt); err != nil {
			return nil, err
		}
		out = append(out, &sr)
	}
	return out, rows.Err()
}

// finish applies a RUNNING -> terminal update and rejects any other transition.
func (s *SQLiteStore) finish(ctx context.Context, query, table, id string, state model.State, args ...any) error {
	if !model.StateRunning.CanTransitionTo(state) {
		return fmt.Errorf("%s %s: invalid final state %q", table, id, state)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: not found or already finished", table, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var samplesJSON, state, startedAt string
	var includeSecondary int
	var finishedAt sql.NullString
	if err := row.Scan(&run.ID, &run.Root, &samplesJSON, &includeSecondary, &state, &run.Error,
		&startedAt, &finishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(samplesJSON), &run.Samples); err != nil {
		return nil, fmt.Errorf("unmarshal samples: %w", err)
	}
	run.IncludeSecondary = includeSecondary != 0
	run.State = model.State(state)
	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
