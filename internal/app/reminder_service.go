package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ib_reminder_service/internal/domain/notify"
	"ib_reminder_service/internal/domain/reminder"
	"ib_reminder_service/internal/domain/user"
	idb "ib_reminder_service/internal/infra/database"
	"ib_reminder_service/internal/infra/email"

	"github.com/sirupsen/logrus"
)

var ErrPaymentIndex = fmt.Errorf("payment index out of range")
var ErrInvalidStatus = fmt.Errorf("invalid payment status")
var ErrInvalidInput = fmt.Errorf("invalid input")
var ErrTestSendFailed = fmt.Errorf("test send failed on every channel")

// PageSize is the number of rows per page of every paginated listing.
const PageSize = 10

// Renderer renders the HTML email body of a reminder.
type Renderer interface {
	Render(r *reminder.Reminder) (string, error)
}

// ReminderInput is the editable part of a reminder.
type ReminderInput struct {
	IBID         string
	Name         string
	StartDate    string
	EndDate      string
	ReminderDate string
	ReminderText string
	CreatedBy    string
	Targets      reminder.Targets
	Payments     []reminder.Payment
}

// ReminderQuery selects a reminder listing. A non-empty Month (YYYY-MM)
// returns every reminder of that month without pagination.
type ReminderQuery struct {
	Search string
	Month  string
	Page   int
}

type ReminderPage struct {
	Reminders  []*reminder.Reminder
	TotalPages int
}

// PaymentPatch holds the payment fields a back-office user may change. Nil
// fields are left as they are.
type PaymentPatch struct {
	Status     *reminder.PaymentStatus
	PaidAmount *reminder.Amount
	HashLink   *string
	Comment    *string
}

// CalendarQuery selects the payments of one month.
type CalendarQuery struct {
	Year   int
	Month  int
	Search string
	Status string
}

// CalendarEntry is one payment shown on the payment calendar.
type CalendarEntry struct {
	ContractID int64                  `json:"contract_id"`
	IBID       string                 `json:"ib_id"`
	Name       string                 `json:"name"`
	Date       string                 `json:"date"`
	Amount     reminder.Amount        `json:"amount"`
	TargetKey  string                 `json:"target_key"`
	Status     reminder.PaymentStatus `json:"status"`
}

type ReminderService struct {
	reminderRepo reminder.Repository
	userRepo     user.Repository
	email        notify.EmailSender
	chat         notify.ChatSender
	renderer     Renderer
	location     *time.Location
	now          func() time.Time
	logger       *logrus.Entry
}

func NewReminderService(
	rr reminder.Repository,
	ur user.Repository,
	emailSender notify.EmailSender,
	chat notify.ChatSender,
	renderer Renderer,
	location *time.Location,
	logger *logrus.Entry,
) *ReminderService {
	if location == nil {
		location = time.Local
	}
	return &ReminderService{
		reminderRepo: rr,
		userRepo:     ur,
		email:        emailSender,
		chat:         chat,
		renderer:     renderer,
		location:     location,
		now:          time.Now,
		logger:       logger,
	}
}

// Account Managers have no access to reminders.
func requireReminderAccess(caller *user.User) error {
	if caller == nil || caller.Role == user.RoleAccountManager {
		return ErrNotAuthorized
	}
	return nil
}

func (s *ReminderService) today() string {
	return reminder.FormatDate(s.now().In(s.location))
}

func (s *ReminderService) List(ctx context.Context, caller *user.User, q ReminderQuery) (*ReminderPage, error) {
	if err := requireReminderAccess(caller); err != nil {
		return nil, err
	}
	if q.Month != "" {
		if _, err := time.Parse("2006-01", q.Month); err != nil {
			return nil, fmt.Errorf("%w: month must be YYYY-MM", ErrInvalidInput)
		}
		list, err := s.reminderRepo.ListByMonth(ctx, q.Month)
		if err != nil {
			return nil, fmt.Errorf("failed to list reminders by month: %w", err)
		}
		return &ReminderPage{Reminders: list, TotalPages: 1}, nil
	}

	page := normalizePage(q.Page)
	list, total, err := s.reminderRepo.List(ctx, reminder.ListFilter{
		Search: q.Search,
		Limit:  PageSize,
		Offset: (page - 1) * PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	return &ReminderPage{Reminders: list, TotalPages: totalPages(total)}, nil
}

func (s *ReminderService) Get(ctx context.Context, caller *user.User, id int64) (*reminder.Reminder, error) {
	if err := requireReminderAccess(caller); err != nil {
		return nil, err
	}
	return s.reminderRepo.GetByID(ctx, id)
}

func (s *ReminderService) Create(ctx context.Context, caller *user.User, in ReminderInput) (*reminder.Reminder, error) {
	if err := requireReminderAccess(caller); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.CreatedBy) == "" {
		in.CreatedBy = caller.Email
	}
	r := &reminder.Reminder{}
	if err := applyReminderInput(r, in); err != nil {
		return nil, err
	}
	if err := s.reminderRepo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}
	return r, nil
}

// Update rewrites the editable fields of a reminder. The owner and the sent
// flag are kept.
func (s *ReminderService) Update(ctx context.Context, caller *user.User, id int64, in ReminderInput) (*reminder.Reminder, error) {
	if err := requireReminderAccess(caller); err != nil {
		return nil, err
	}
	r, err := s.reminderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	in.CreatedBy = r.CreatedBy
	if err := applyReminderInput(r, in); err != nil {
		return nil, err
	}
	if err := s.reminderRepo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to update reminder: %w", err)
	}
	return r, nil
}

func (s *ReminderService) Delete(ctx context.Context, caller *user.User, id int64) error {
	if err := requireReminderAccess(caller); err != nil {
		return err
	}
	return s.reminderRepo.Delete(ctx, id)
}

// SendTest delivers the reminder to its owner right away without marking it
// sent.
func (s *ReminderService) SendTest(ctx context.Context, caller *user.User, id int64) error {
	if err := requireReminderAccess(caller); err != nil {
		return err
	}
	r, err := s.reminderRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	log := s.logger.WithFields(logrus.Fields{"reminder_id": r.ID, "ib_id": r.IBID, "requested_by": caller.Email})

	chatID := ""
	if owner, err := s.userRepo.GetByEmail(ctx, r.CreatedBy); err == nil {
		chatID = owner.TelegramChatID
	} else if !errors.Is(err, idb.ErrUserNotFound) {
		log.WithError(err).WithField("failure", FailureStore).Warn("Failed to look up chat ID")
	}

	subject := fmt.Sprintf(notify.TestReminderSubject, r.IBID)
	emailErr := s.email.SendReminder(ctx, r.CreatedBy, subject, r)
	if emailErr != nil {
		log.WithError(emailErr).WithField("failure", FailureTransport).Warn("Test email failed")
	}
	chatErr := s.chat.SendReminder(ctx, chatID, r)
	if chatErr != nil {
		logChatError(log, chatErr, "Test chat message failed")
	}
	if emailErr != nil && chatErr != nil {
		return ErrTestSendFailed
	}
	log.Info("Test notification sent")
	return nil
}

// UpdatePayment patches the idx-th payment of a reminder. Only Admin and
// Backoffice users may do this.
func (s *ReminderService) UpdatePayment(ctx context.Context, caller *user.User, id int64, idx int, patch PaymentPatch) ([]reminder.Payment, error) {
	if caller == nil || (caller.Role != user.RoleAdmin && caller.Role != user.RoleBackoffice) {
		return nil, ErrNotAuthorized
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	r, err := s.reminderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	payments, err := r.Payments()
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"reminder_id": r.ID, "failure": FailureParse}).
			Warn("Stored payments are malformed, treating as empty")
		payments = make([]reminder.Payment, 0)
	}
	if idx < 0 || idx >= len(payments) {
		return nil, ErrPaymentIndex
	}

	p := &payments[idx]
	if patch.Status != nil {
		p.Status = *patch.Status
	} else {
		p.Status = p.EffectiveStatus()
	}
	if patch.PaidAmount != nil {
		p.PaidAmount = *patch.PaidAmount
	}
	if patch.HashLink != nil {
		p.HashLink = *patch.HashLink
	}
	if patch.Comment != nil {
		p.Comment = *patch.Comment
	}

	if err := r.SetPayments(payments); err != nil {
		return nil, err
	}
	if err := s.reminderRepo.UpdatePayments(ctx, r.ID, r.PaymentsJSON); err != nil {
		return nil, fmt.Errorf("failed to update payments: %w", err)
	}
	return payments, nil
}

// Todays lists the reminders whose reminder date is today.
func (s *ReminderService) Todays(ctx context.Context, caller *user.User) ([]*reminder.Reminder, error) {
	if err := requireReminderAccess(caller); err != nil {
		return nil, err
	}
	list, err := s.reminderRepo.ListByReminderDate(ctx, s.today())
	if err != nil {
		return nil, fmt.Errorf("failed to list today's reminders: %w", err)
	}
	return list, nil
}

// PaymentCalendar lists the payments of the requested month sorted by date.
// Account Managers only see contracts they created.
func (s *ReminderService) PaymentCalendar(ctx context.Context, caller *user.User, q CalendarQuery) ([]CalendarEntry, error) {
	if caller == nil {
		return nil, ErrNotAuthorized
	}
	now := s.now().In(s.location)
	if q.Year == 0 {
		q.Year = now.Year()
	}
	if q.Month == 0 {
		q.Month = int(now.Month())
	}
	if q.Month < 1 || q.Month > 12 {
		return nil, fmt.Errorf("%w: month must be 1-12", ErrInvalidInput)
	}

	var (
		list []*reminder.Reminder
		err  error
	)
	if caller.Role == user.RoleAccountManager {
		list, err = s.reminderRepo.ListByOwner(ctx, caller.Email)
	} else {
		list, err = s.reminderRepo.ListAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders for calendar: %w", err)
	}

	prefix := fmt.Sprintf("%04d-%02d", q.Year, q.Month)
	search := strings.ToLower(strings.TrimSpace(q.Search))
	status := reminder.PaymentStatus(strings.TrimSpace(q.Status))

	entries := make([]CalendarEntry, 0)
	for _, r := range list {
		if search != "" && !strings.Contains(strings.ToLower(r.IBID), search) && !strings.Contains(strings.ToLower(r.Name), search) {
			continue
		}
		payments, err := r.Payments()
		if err != nil {
			continue
		}
		for _, p := range payments {
			if !strings.HasPrefix(p.Date, prefix) {
				continue
			}
			st := p.EffectiveStatus()
			if status != "" && st != status {
				continue
			}
			entries = append(entries, CalendarEntry{
				ContractID: r.ID,
				IBID:       r.IBID,
				Name:       r.DisplayName(),
				Date:       p.Date,
				Amount:     p.Amount,
				TargetKey:  p.TargetKey,
				Status:     st,
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date < entries[j].Date })
	return entries, nil
}

// Preview renders the reminder email for id, or for a sample record when id
// is zero or unknown.
func (s *ReminderService) Preview(ctx context.Context, id int64) (string, error) {
	r := email.SampleReminder()
	if id > 0 {
		found, err := s.reminderRepo.GetByID(ctx, id)
		switch {
		case err == nil:
			r = found
		case !errors.Is(err, idb.ErrReminderNotFound):
			return "", fmt.Errorf("failed to load reminder for preview: %w", err)
		}
	}
	return s.renderer.Render(r)
}

func applyReminderInput(r *reminder.Reminder, in ReminderInput) error {
	in.IBID = strings.TrimSpace(in.IBID)
	if in.IBID == "" {
		return fmt.Errorf("%w: ib_id is required", ErrInvalidInput)
	}
	for field, v := range map[string]string{
		"start_date":    in.StartDate,
		"end_date":      in.EndDate,
		"reminder_date": in.ReminderDate,
	} {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if _, err := reminder.ParseDate(v); err != nil {
			return fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidInput, field)
		}
	}

	r.IBID = in.IBID
	r.Name = strings.TrimSpace(in.Name)
	r.StartDate = strings.TrimSpace(in.StartDate)
	r.EndDate = strings.TrimSpace(in.EndDate)
	r.ReminderDate = strings.TrimSpace(in.ReminderDate)
	r.ReminderText = in.ReminderText
	r.CreatedBy = user.NormalizeEmail(in.CreatedBy)

	targets, err := in.Targets.Encode()
	if err != nil {
		return err
	}
	r.TargetsJSON = targets
	return r.SetPayments(in.Payments)
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func totalPages(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + PageSize - 1) / PageSize
}
