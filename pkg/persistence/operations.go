package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tinker/pkg/plan"
	"tinker/pkg/utils"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// StartRun inserts a run in the running state. An empty ID is generated.
func (s *Store) StartRun(run *Run) error {
	if run.ID == "" {
		run.ID = utils.NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}

	query := `
		INSERT INTO runs (id, firmware, project_path, provider, model, max_iter, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		run.ID, run.Firmware, run.ProjectPath, run.Provider, run.Model,
		run.MaxIter, run.Status, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// SetProjectPath records the project created by init.
func (s *Store) SetProjectPath(runID, projectPath string) error {
	_, err := s.db.Exec(`UPDATE runs SET project_path = ? WHERE id = ?`, projectPath, runID)
	if err != nil {
		return fmt.Errorf("failed to update project path for run %s: %w", runID, err)
	}
	return nil
}

// FinishRun stores the final status and collected errors of a run.
func (s *Store) FinishRun(runID, status string, runErrors []string, at time.Time) error {
	if runErrors == nil {
		runErrors = []string{}
	}
	errorsJSON, err := json.Marshal(runErrors)
	if err != nil {
		return fmt.Errorf("failed to marshal run errors: %w", err)
	}

	res, err := s.db.Exec(`UPDATE runs SET status = ?, errors_json = ?, finished_at = ? WHERE id = ?`,
		status, string(errorsJSON), formatTime(at), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// RecordRound inserts or replaces the summary of one round.
func (s *Store) RecordRound(r *Round) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO rounds (
			run_id, round, plan_id, plan_json, fallback, discovery_state, discovery_variable,
			completed, partial, failed, skipped, config_diff, error, created_at,
			prompt_tokens, completion_tokens
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, round) DO UPDATE SET
			plan_id = excluded.plan_id,
			plan_json = excluded.plan_json,
			fallback = excluded.fallback,
			discovery_state = excluded.discovery_state,
			discovery_variable = excluded.discovery_variable,
			completed = excluded.completed,
			partial = excluded.partial,
			failed = excluded.failed,
			skipped = excluded.skipped,
			config_diff = excluded.config_diff,
			error = excluded.error,
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens
	`
	_, err := s.db.Exec(query,
		r.RunID, r.Round, r.PlanID, r.PlanJSON, r.Fallback, r.DiscoveryState, r.DiscoveryVariable,
		r.Completed, r.Partial, r.Failed, r.Skipped, r.ConfigDiff, r.Error, formatTime(r.CreatedAt),
		r.PromptTokens, r.CompletionTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to record round %d of run %s: %w", r.Round, r.RunID, err)
	}
	return nil
}

// RecordActions stores the action records of a round in one transaction.
func (s *Store) RecordActions(runID string, records []plan.ActionRecord, at time.Time) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(`
		INSERT INTO actions (
			run_id, round, step_id, option_id, tool, input_json, output_uri,
			summary, status, calls_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare action insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	created := formatTime(at)
	for i := range records {
		rec := &records[i]
		var inputJSON, callsJSON []byte
		if inputJSON, err = marshalOr(rec.Input, "{}"); err != nil {
			return fmt.Errorf("failed to marshal input of %s: %w", rec.StepID, err)
		}
		if callsJSON, err = marshalOr(rec.Calls, "[]"); err != nil {
			return fmt.Errorf("failed to marshal calls of %s: %w", rec.StepID, err)
		}
		if _, err = stmt.Exec(
			runID, rec.Round, rec.StepID, rec.OptionID, rec.Tool, string(inputJSON),
			rec.OutputURI, rec.Summary, string(rec.Status), string(callsJSON), created,
		); err != nil {
			return fmt.Errorf("failed to insert action %s: %w", rec.StepID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit actions: %w", err)
	}
	return nil
}

func marshalOr(v any, empty string) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return []byte(empty), nil
	}
	return data, nil
}

const runColumns = `id, firmware, project_path, provider, model, max_iter, status, errors_json, started_at, finished_at`

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run by ID, or ErrNotFound.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run        Run
		errorsJSON string
		startedAt  string
		finishedAt sql.NullString
	)
	err := sc.Scan(&run.ID, &run.Firmware, &run.ProjectPath, &run.Provider, &run.Model,
		&run.MaxIter, &run.Status, &errorsJSON, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		t := parseTime(finishedAt.String)
		run.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(errorsJSON), &run.Errors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal errors of run %s: %w", run.ID, err)
	}
	return &run, nil
}

// ListRounds returns the rounds of a run in order.
func (s *Store) ListRounds(runID string) ([]*Round, error) {
	rows, err := s.db.Query(`
		SELECT run_id, round, plan_id, plan_json, fallback, discovery_state, discovery_variable,
			completed, partial, failed, skipped, config_diff, error, created_at,
			prompt_tokens, completion_tokens
		FROM rounds WHERE run_id = ? ORDER BY round
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rounds []*Round
	for rows.Next() {
		var (
			r         Round
			createdAt string
		)
		if err := rows.Scan(&r.RunID, &r.Round, &r.PlanID, &r.PlanJSON, &r.Fallback,
			&r.DiscoveryState, &r.DiscoveryVariable, &r.Completed, &r.Partial, &r.Failed,
			&r.Skipped, &r.ConfigDiff, &r.Error, &createdAt, &r.PromptTokens, &r.CompletionTokens); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		r.CreatedAt = parseTime(createdAt)
		rounds = append(rounds, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rounds: %w", err)
	}
	return rounds, nil
}

// ListActions returns the actions of a run in insertion order.
func (s *Store) ListActions(runID string) ([]*Action, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, round, step_id, option_id, tool, input_json, output_uri,
			summary, status, calls_json, created_at
		FROM actions WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actions []*Action
	for rows.Next() {
		var (
			a         Action
			inputJSON string
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.RunID, &a.Round, &a.StepID, &a.OptionID, &a.Tool,
			&inputJSON, &a.OutputURI, &a.Summary, &a.Status, &a.CallsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		if err := json.Unmarshal([]byte(inputJSON), &a.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input of action %d: %w", a.ID, err)
		}
		a.CreatedAt = parseTime(createdAt)
		actions = append(actions, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}
	return actions, nil
}
