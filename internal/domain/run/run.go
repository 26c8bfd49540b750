// internal/domain/run/run.go
package run

import "context"

// Run is one execution of the daily reminder job.
// Corresponds to the 'scheduler_runs' table; run_date is unique so a calendar
// day is processed at most once.
type Run struct {
	ID          int64
	RunDate     string // YYYY-MM-DD
	RunID       string // uuid, correlates log lines of the run
	StartedAt   string
	FinishedAt  string
	DueSent     int
	DueFailed   int
	Escalations int
}

// Repository defines operations for the run ledger.
type Repository interface {
	Create(ctx context.Context, r *Run) error
	GetByDate(ctx context.Context, runDate string) (*Run, error)
	Finish(ctx context.Context, r *Run) error
}
