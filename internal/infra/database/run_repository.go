// internal/infra/database/run_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ib_reminder_service/internal/domain/run"
)

// Custom errors specific to the run ledger
var ErrRunNotFound = fmt.Errorf("scheduler run not found")
var ErrDuplicateRun = fmt.Errorf("scheduler run for this date already exists")

type RunRepository struct {
	db *Conn
}

func NewRunRepository(db *Conn) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(ctx context.Context, rn *run.Run) error {
	if rn.StartedAt == "" {
		rn.StartedAt = now()
	}
	query := `INSERT INTO scheduler_runs (run_date, run_id, started_at)
               VALUES ($1, $2, $3)
               RETURNING id`
	err := r.db.QueryRowContext(ctx, query, rn.RunDate, rn.RunID, rn.StartedAt).Scan(&rn.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRun
		}
		return fmt.Errorf("error creating scheduler run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetByDate(ctx context.Context, runDate string) (*run.Run, error) {
	query := `SELECT id, run_date, run_id, started_at, finished_at, due_sent, due_failed, escalations
               FROM scheduler_runs WHERE run_date = $1`
	rn := run.Run{}
	err := r.db.QueryRowContext(ctx, query, runDate).Scan(&rn.ID, &rn.RunDate, &rn.RunID, &rn.StartedAt,
		&rn.FinishedAt, &rn.DueSent, &rn.DueFailed, &rn.Escalations)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("error getting scheduler run by date: %w", err)
	}
	return &rn, nil
}

func (r *RunRepository) Finish(ctx context.Context, rn *run.Run) error {
	if rn.FinishedAt == "" {
		rn.FinishedAt = now()
	}
	query := `UPDATE scheduler_runs
               SET finished_at = $1, due_sent = $2, due_failed = $3, escalations = $4
               WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query, rn.FinishedAt, rn.DueSent, rn.DueFailed, rn.Escalations, rn.ID)
	if err != nil {
		return fmt.Errorf("error finishing scheduler run: %w", err)
	}
	return requireRow(res, ErrRunNotFound)
}
