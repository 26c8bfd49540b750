package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ib_reminder_service/internal/domain/reminder"
)

// Custom errors
var ErrReminderNotFound = fmt.Errorf("reminder not found")

const reminderColumns = `id, ib_id, name, start_date, end_date, reminder_date, reminder_text,
       created_by, created_at, targets, payments, is_sent`

type ReminderRepository struct {
	db *Conn
}

func NewReminderRepository(db *Conn) *ReminderRepository {
	return &ReminderRepository{db: db}
}

func scanReminder(row rowScanner) (*reminder.Reminder, error) {
	r := &reminder.Reminder{}
	err := row.Scan(&r.ID, &r.IBID, &r.Name, &r.StartDate, &r.EndDate, &r.ReminderDate, &r.ReminderText,
		&r.CreatedBy, &r.CreatedAt, &r.TargetsJSON, &r.PaymentsJSON, &r.IsSent)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Helper to scan multiple rows
func scanReminders(rows *sql.Rows) ([]*reminder.Reminder, error) {
	reminders := make([]*reminder.Reminder, 0)
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning reminder row: %w", err)
		}
		reminders = append(reminders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder rows: %w", err)
	}
	return reminders, nil
}

func (r *ReminderRepository) Create(ctx context.Context, rem *reminder.Reminder) error {
	if rem.CreatedAt == "" {
		rem.CreatedAt = now()
	}
	if strings.TrimSpace(rem.TargetsJSON) == "" {
		rem.TargetsJSON = "{}"
	}
	if strings.TrimSpace(rem.PaymentsJSON) == "" {
		rem.PaymentsJSON = "[]"
	}
	query := `INSERT INTO ib_reminders (ib_id, name, start_date, end_date, reminder_date, reminder_text,
                                        created_by, created_at, targets, payments)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
               RETURNING id`
	err := r.db.QueryRowContext(ctx, query, rem.IBID, rem.Name, rem.StartDate, rem.EndDate, rem.ReminderDate,
		rem.ReminderText, rem.CreatedBy, rem.CreatedAt, rem.TargetsJSON, rem.PaymentsJSON).Scan(&rem.ID)
	if err != nil {
		return fmt.Errorf("error creating reminder: %w", err)
	}
	return nil
}

func (r *ReminderRepository) GetByID(ctx context.Context, id int64) (*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM ib_reminders WHERE id = $1`
	rem, err := scanReminder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReminderNotFound
		}
		return nil, fmt.Errorf("error getting reminder by ID: %w", err)
	}
	return rem, nil
}

func (r *ReminderRepository) Update(ctx context.Context, rem *reminder.Reminder) error {
	query := `UPDATE ib_reminders
               SET ib_id = $1, name = $2, start_date = $3, end_date = $4, reminder_date = $5,
                   reminder_text = $6, targets = $7, payments = $8
               WHERE id = $9`
	res, err := r.db.ExecContext(ctx, query, rem.IBID, rem.Name, rem.StartDate, rem.EndDate, rem.ReminderDate,
		rem.ReminderText, rem.TargetsJSON, rem.PaymentsJSON, rem.ID)
	if err != nil {
		return fmt.Errorf("error updating reminder: %w", err)
	}
	return requireRow(res, ErrReminderNotFound)
}

func (r *ReminderRepository) UpdatePayments(ctx context.Context, id int64, paymentsJSON string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE ib_reminders SET payments = $1 WHERE id = $2`, paymentsJSON, id)
	if err != nil {
		return fmt.Errorf("error updating reminder payments: %w", err)
	}
	return requireRow(res, ErrReminderNotFound)
}

func (r *ReminderRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ib_reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting reminder: %w", err)
	}
	return requireRow(res, ErrReminderNotFound)
}

func (r *ReminderRepository) List(ctx context.Context, filter reminder.ListFilter) ([]*reminder.Reminder, int, error) {
	where := ""
	args := make([]any, 0, 6)
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		where = ` WHERE LOWER(ib_id) LIKE $1 OR LOWER(name) LIKE $2 OR LOWER(reminder_text) LIKE $3 OR LOWER(created_by) LIKE $4`
		args = append(args, pattern, pattern, pattern, pattern)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ib_reminders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting reminders: %w", err)
	}

	n := len(args)
	query := `SELECT ` + reminderColumns + ` FROM ib_reminders` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("error listing reminders: %w", err)
	}
	defer rows.Close()
	reminders, err := scanReminders(rows)
	if err != nil {
		return nil, 0, err
	}
	return reminders, total, nil
}

func (r *ReminderRepository) ListByMonth(ctx context.Context, month string) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM ib_reminders
               WHERE SUBSTR(reminder_date, 1, 7) = $1 ORDER BY reminder_date, id`
	return r.list(ctx, "by month", query, month)
}

func (r *ReminderRepository) ListByReminderDate(ctx context.Context, date string) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM ib_reminders WHERE reminder_date = $1 ORDER BY id`
	return r.list(ctx, "by reminder date", query, date)
}

func (r *ReminderRepository) ListByOwner(ctx context.Context, email string) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM ib_reminders WHERE created_by = $1 ORDER BY id`
	return r.list(ctx, "by owner", query, email)
}

func (r *ReminderRepository) ListAll(ctx context.Context) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM ib_reminders ORDER BY id`
	return r.list(ctx, "all", query)
}

func (r *ReminderRepository) ListDueUnsent(ctx context.Context, date string) ([]*reminder.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM ib_reminders
               WHERE reminder_date = $1 AND is_sent = FALSE ORDER BY id`
	return r.list(ctx, "due unsent", query, date)
}

func (r *ReminderRepository) MarkSent(ctx context.Context, id int64, date string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ib_reminders SET is_sent = TRUE WHERE id = $1 AND reminder_date = $2 AND is_sent = FALSE`, id, date)
	if err != nil {
		return false, fmt.Errorf("error marking reminder %d sent: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *ReminderRepository) list(ctx context.Context, what, query string, args ...any) ([]*reminder.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying reminders %s: %w", what, err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// requireRow maps a zero-row UPDATE/DELETE to notFound.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
