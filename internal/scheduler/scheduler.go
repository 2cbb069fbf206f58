package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/prepbot/pkg/models"
)

// Default notification window, hours in UTC
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 22
)

const checkTimeout = 2 * time.Minute

// Notifier sends a reminder that count items are waiting for review
type Notifier interface {
	SendReminders(ctx context.Context, userID int64, count int) error
}

// UserSource lists users whose reminder hour matches
type UserSource interface {
	GetUsersForNotification(ctx context.Context, hour int) ([]models.User, error)
}

// DueSelector is the part of the review scheduler the reminder job needs
type DueSelector interface {
	SelectDue(ctx context.Context, userID int64, now time.Time, limit int, includeNew bool) ([]string, error)
}

// Config controls when reminders are checked
type Config struct {
	// Cron is a standard five-field expression. Empty means hourly.
	// A user gets at most one reminder per hour however often it fires.
	Cron      string
	StartHour int
	EndHour   int
	// DefaultLimit caps the count for users without a session size
	DefaultLimit int
}

// Scheduler runs the periodic "what is due now" check and notifies users
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       Config
	users     UserSource
	due       DueSelector
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	lastSent map[int64]time.Time // hour slot of the last reminder per user
}

// New creates a new scheduler instance
func New(cfg Config, users UserSource, due DueSelector, notifier Notifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		cfg:       cfg,
		users:     users,
		due:       due,
		notifier:  notifier,
		logger:    logger.With("component", "reminders"),
		now:       time.Now,
		lastSent:  make(map[int64]time.Time),
	}
}

// Start registers the reminder job and runs the scheduler in the background
func (s *Scheduler) Start() error {
	job := func() {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		if _, err := s.CheckAndSendReminders(ctx); err != nil {
			s.logger.Error("reminder check failed", "error", err)
		}
	}

	var err error
	if s.cfg.Cron != "" {
		_, err = s.scheduler.Cron(s.cfg.Cron).Do(job)
	} else {
		_, err = s.scheduler.Every(1).Hour().Do(job)
	}
	if err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}

	s.scheduler.StartAsync()
	s.logger.Info("reminder scheduler started", "cron", s.cfg.Cron, "start_hour", s.cfg.StartHour, "end_hour", s.cfg.EndHour)
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// inWindow reports whether hour lies in [start, end]; a window may wrap past midnight
func inWindow(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

// CheckAndSendReminders notifies every user whose reminder hour is now and who has due items.
// It returns the number of users notified. Failures for one user do not stop the others.
func (s *Scheduler) CheckAndSendReminders(ctx context.Context) (int, error) {
	now := s.now().UTC()
	hour := now.Hour()

	if !inWindow(hour, s.cfg.StartHour, s.cfg.EndHour) {
		s.logger.Debug("outside notification hours, skipping reminders",
			"hour", hour, "start_hour", s.cfg.StartHour, "end_hour", s.cfg.EndHour)
		return 0, nil
	}

	users, err := s.users.GetUsersForNotification(ctx, hour)
	if err != nil {
		return 0, fmt.Errorf("failed to get users for notification: %w", err)
	}

	slot := now.Truncate(time.Hour)
	notified := 0
	for _, user := range users {
		if s.alreadySent(user.ID, slot) {
			continue
		}
		sent, err := s.remind(ctx, user.ID, s.limitFor(user), now)
		if err != nil {
			s.logger.Error("failed to send reminder", "user_id", user.ID, "error", err)
			continue
		}
		if sent {
			s.markSent(user.ID, slot)
			notified++
		}
	}

	s.logger.Info("reminders sent", "hour", hour, "candidates", len(users), "notified", notified)
	return notified, nil
}

// RunManualCheck forces a check for a specific user regardless of the hour
func (s *Scheduler) RunManualCheck(ctx context.Context, userID int64, limit int) (bool, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	return s.remind(ctx, userID, limit, s.now().UTC())
}

func (s *Scheduler) remind(ctx context.Context, userID int64, limit int, now time.Time) (bool, error) {
	items, err := s.due.SelectDue(ctx, userID, now, limit, false)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, nil
	}
	if err := s.notifier.SendReminders(ctx, userID, len(items)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Scheduler) alreadySent(userID int64, slot time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSent[userID].Equal(slot)
}

func (s *Scheduler) markSent(userID int64, slot time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSent[userID] = slot
}

func (s *Scheduler) limitFor(user models.User) int {
	if user.ItemsPerSession > 0 {
		return user.ItemsPerSession
	}
	return s.cfg.DefaultLimit
}
