package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// StartRun records the start of an auto-reconcile pass
func (s *Storage) StartRun(ctx context.Context, params RunParams) (int64, error) {
	query := `
		INSERT INTO reconcile_runs
		(started_at, max_date_delta_days, max_amount_delta_ratio, auto_confirm_threshold, status)
		VALUES (?, ?, ?, ?, 'running')
	`

	result, err := s.db.ExecContext(ctx, query,
		s.now().UTC().Format(timestampLayout),
		params.Window.MaxDateDeltaDays,
		params.Window.MaxAmountDeltaRatio,
		params.AutoConfirmThreshold,
	)
	if err != nil {
		return 0, classify("start run", err)
	}

	return result.LastInsertId()
}

// CompleteRun records the outcome of a pass
func (s *Storage) CompleteRun(ctx context.Context, runID int64, outcome RunOutcome) error {
	query := `
		UPDATE reconcile_runs
		SET completed_at = ?,
		    confirmed = ?,
		    suggested = ?,
		    still_unmatched = ?,
		    conflicts = ?,
		    status = ?,
		    error_message = ?
		WHERE id = ?
	`

	status := outcome.Status
	if status == "" {
		status = RunStatusCompleted
	}

	result, err := s.db.ExecContext(ctx, query,
		s.now().UTC().Format(timestampLayout),
		outcome.Confirmed,
		outcome.Suggested,
		outcome.StillUnmatched,
		outcome.Conflicts,
		string(status),
		outcome.ErrorMessage,
		runID,
	)
	if err != nil {
		return classify("complete run", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Resource: "run", ID: fmt.Sprint(runID)}
	}
	return nil
}

const runColumns = `
	id, started_at, completed_at, max_date_delta_days, max_amount_delta_ratio,
	auto_confirm_threshold, confirmed, suggested, still_unmatched, conflicts,
	status, error_message
`

// ListRuns returns recent runs
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM reconcile_runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, classify("list runs", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, classify("list runs", err)
		}
		runs = append(runs, *run)
	}

	return runs, classify("list runs", rows.Err())
}

// GetRun retrieves a run by ID
func (s *Storage) GetRun(ctx context.Context, runID int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM reconcile_runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Resource: "run", ID: fmt.Sprint(runID)}
	}
	if err != nil {
		return nil, classify("get run", err)
	}
	return run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var startedAt, status string
	var completedAt sql.NullString

	err := row.Scan(
		&run.ID,
		&startedAt,
		&completedAt,
		&run.MaxDateDeltaDays,
		&run.MaxAmountDeltaRatio,
		&run.AutoConfirmThreshold,
		&run.Confirmed,
		&run.Suggested,
		&run.StillUnmatched,
		&run.Conflicts,
		&status,
		&run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	if run.StartedAt, err = time.Parse(timestampLayout, startedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := time.Parse(timestampLayout, completedAt.String)
		if err != nil {
			return nil, err
		}
		run.CompletedAt = &t
	}
	return &run, nil
}
