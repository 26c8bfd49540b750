package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ib_reminder_service/internal/app" // For NotificationService interface

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	// DailySpec fires the reminder run at 07:00 in the scheduler location.
	DailySpec = "0 7 * * *"
	dailyHour = 7

	runTimeout = 10 * time.Minute
)

type NotificationScheduler struct {
	cronEngine   *cron.Cron
	notifService app.NotificationService // Using the interface
	location     *time.Location
	catchUp      bool
	now          func() time.Time
	logger       *logrus.Entry

	runCtx    context.Context
	cancelRun context.CancelFunc
	inFlight  sync.WaitGroup
}

func NewNotificationScheduler(
	notifService app.NotificationService,
	location *time.Location,
	catchUp bool,
	logger *logrus.Entry,
) *NotificationScheduler {
	if location == nil {
		location = time.Local
	}
	cl := cronLogger{entry: logger}
	runCtx, cancel := context.WithCancel(context.Background())
	return &NotificationScheduler{
		cronEngine: cron.New(
			cron.WithLocation(location),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		notifService: notifService,
		location:     location,
		catchUp:      catchUp,
		now:          time.Now,
		logger:       logger,
		runCtx:       runCtx,
		cancelRun:    cancel,
	}
}

// Start registers the daily job, starts the cron engine and, when enabled,
// runs a missed job for today right away.
func (s *NotificationScheduler) Start() error {
	s.logger.WithFields(logrus.Fields{"spec": DailySpec, "location": s.location.String()}).Info("Starting notification scheduler")

	if _, err := s.cronEngine.AddFunc(DailySpec, s.runDaily); err != nil {
		return fmt.Errorf("could not add daily reminder cron job: %w", err)
	}
	s.cronEngine.Start()

	if s.catchUp {
		s.catchUpToday()
	}
	s.logger.Info("Notification scheduler started")
	return nil
}

// runDaily executes one daily run. The cron chain recovers panics from it.
func (s *NotificationScheduler) runDaily() {
	s.inFlight.Add(1)
	defer s.inFlight.Done()

	ctx, cancel := context.WithTimeout(s.runCtx, runTimeout)
	defer cancel()

	s.logger.Info("Cron job triggered for daily reminder run")
	if _, err := s.notifService.RunDaily(ctx, s.now()); err != nil {
		if errors.Is(err, app.ErrAlreadyRan) {
			return
		}
		s.logger.WithError(err).Error("Daily reminder run failed")
	}
}

func (s *NotificationScheduler) catchUpToday() {
	now := s.now().In(s.location)
	dueAt := time.Date(now.Year(), now.Month(), now.Day(), dailyHour, 0, 0, 0, s.location)
	if now.Before(dueAt) {
		return
	}

	ctx, cancel := context.WithTimeout(s.runCtx, 10*time.Second)
	ran, err := s.notifService.HasRun(ctx, now)
	cancel()
	if err != nil {
		s.logger.WithError(err).Error("Failed to check run ledger for catch-up")
		return
	}
	if ran {
		return
	}

	s.logger.WithField("date", now.Format("2006-01-02")).Info("Missed today's 07:00 run, catching up")
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.WithField("panic", rec).Error("Recovered from panic in catch-up run")
			}
		}()
		s.runDaily()
	}()
}

// Stop stops scheduling new runs, cancels the in-flight run's context and
// waits for it to return or for ctx to expire.
func (s *NotificationScheduler) Stop(ctx context.Context) error {
	s.logger.Info("Stopping notification scheduler...")
	cronDone := s.cronEngine.Stop()
	s.cancelRun()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Notification scheduler gracefully stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler did not stop in time: %w", ctx.Err())
	}
}

// cronLogger routes cron engine logs to logrus.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
