// internal/domain/reminder/repository.go
package reminder

import "context"

// ListFilter narrows a paginated reminder listing.
type ListFilter struct {
	Search string // matched against ib_id, name, reminder_text and created_by
	Limit  int
	Offset int
}

// Repository defines the operations for persisting and retrieving reminders.
type Repository interface {
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id int64) (*Reminder, error)
	// Update rewrites the editable columns. It never touches is_sent.
	Update(ctx context.Context, r *Reminder) error
	UpdatePayments(ctx context.Context, id int64, paymentsJSON string) error
	Delete(ctx context.Context, id int64) error

	// List returns one page ordered by created_at (newest first) and the total match count.
	List(ctx context.Context, filter ListFilter) ([]*Reminder, int, error)
	ListByMonth(ctx context.Context, month string) ([]*Reminder, error) // month is YYYY-MM
	ListByReminderDate(ctx context.Context, date string) ([]*Reminder, error)
	ListByOwner(ctx context.Context, email string) ([]*Reminder, error)
	ListAll(ctx context.Context) ([]*Reminder, error)

	// ListDueUnsent fetches reminders whose reminder_date is date and is_sent is false.
	ListDueUnsent(ctx context.Context, date string) ([]*Reminder, error)
	// MarkSent sets is_sent for id, but only while its reminder_date is still date.
	// It reports whether a row was updated.
	MarkSent(ctx context.Context, id int64, date string) (bool, error)
}
