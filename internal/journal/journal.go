// Package journal keeps a local SQLite history of finished cycles.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/refset/churn-decision-agent/internal/cycle"
)

//go:embed schema.sql
var schema string

var ErrNotFound = errors.New("cycle not found")

type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path and applies
// the schema.
func Open(ctx context.Context, path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores a finished cycle. Recording the same cycle twice replaces it.
func (j *Journal) Record(ctx context.Context, r *cycle.Result) error {
	errs, err := json.Marshal(r.Errors)
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, `INSERT OR REPLACE INTO cycles (
		cycle_id, cycle_start, cycle_end, duration_seconds, stage,
		customers_analyzed, churn_predictions, anomalies_detected,
		actions_executed, successful_actions, failed_actions, errors
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CycleID,
		r.CycleStart.UTC().Format(time.RFC3339Nano),
		r.CycleEnd.UTC().Format(time.RFC3339Nano),
		r.DurationSeconds,
		string(r.Stage),
		r.CustomersAnalyzed,
		r.Predictions,
		r.Anomalies,
		r.ActionsExecuted,
		r.SuccessfulActions,
		r.FailedActions,
		string(errs),
	)
	if err != nil {
		return fmt.Errorf("record cycle %s: %w", r.CycleID, err)
	}
	return nil
}

const selectCycles = `SELECT cycle_id, cycle_start, cycle_end, duration_seconds, stage,
	customers_analyzed, churn_predictions, anomalies_detected,
	actions_executed, successful_actions, failed_actions, errors
FROM cycles`

// Recent returns up to limit cycles, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]cycle.Result, error) {
	rows, err := j.db.QueryContext(ctx, selectCycles+` ORDER BY cycle_start DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cycle.Result
	for rows.Next() {
		r, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns one cycle by id.
func (j *Journal) Get(ctx context.Context, id string) (cycle.Result, error) {
	r, err := scanCycle(j.db.QueryRowContext(ctx, selectCycles+` WHERE cycle_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return cycle.Result{}, ErrNotFound
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(s scanner) (cycle.Result, error) {
	var (
		r          cycle.Result
		start, end string
		stage      string
		errs       string
	)
	err := s.Scan(&r.CycleID, &start, &end, &r.DurationSeconds, &stage,
		&r.CustomersAnalyzed, &r.Predictions, &r.Anomalies,
		&r.ActionsExecuted, &r.SuccessfulActions, &r.FailedActions, &errs)
	if err != nil {
		return cycle.Result{}, err
	}
	if r.CycleStart, err = time.Parse(time.RFC3339Nano, start); err != nil {
		return cycle.Result{}, fmt.Errorf("parse cycle_start: %w", err)
	}
	if r.CycleEnd, err = time.Parse(time.RFC3339Nano, end); err != nil {
		return cycle.Result{}, fmt.Errorf("parse cycle_end: %w", err)
	}
	if err := json.Unmarshal([]byte(errs), &r.Errors); err != nil {
		return cycle.Result{}, fmt.Errorf("parse errors: %w", err)
	}
	r.Stage = cycle.Stage(stage)
	r.Duration = time.Duration(r.DurationSeconds * float64(time.Second))
	return r, nil
}
