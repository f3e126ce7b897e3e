package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/fluentbuddy/internal/coach"
	"github.com/example/fluentbuddy/internal/metrics"
	"github.com/example/fluentbuddy/pkg/models"
	"github.com/go-co-op/gocron"
)

// Default notification window, in hours of the scheduler's location
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 22
)

const jobTimeout = time.Minute

// Notifier delivers review reminders
type Notifier interface {
	SendReminder(chatID int64, due, upcoming int) error
}

// LearnerSource lists learners who asked for reminders at an hour
type LearnerSource interface {
	GetForNotification(ctx context.Context, hour int) ([]models.Learner, error)
}

// Coaches resolves the loaded coach of a learner
type Coaches interface {
	Get(ctx context.Context, learnerID string) (*coach.Coach, error)
	All() []*coach.Coach
}

// Config holds scheduler settings
type Config struct {
	NotificationStartHour int
	NotificationEndHour   int
	// How often remote progress is pulled; 0 disables the job
	SyncInterval time.Duration
	Location     *time.Location
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		NotificationStartHour: DefaultNotificationStartHour,
		NotificationEndHour:   DefaultNotificationEndHour,
		SyncInterval:          5 * time.Minute,
		Location:              time.UTC,
	}
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       Config
	learners  LearnerSource
	coaches   Coaches
	notifier  Notifier
	now       func() time.Time
	metrics   *metrics.Metrics
}

// New creates a new scheduler instance
func New(cfg Config, learners LearnerSource, coaches Coaches, notifier Notifier) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(cfg.Location),
		cfg:       cfg,
		learners:  learners,
		coaches:   coaches,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().In(cfg.Location) },
		metrics:   metrics.Get(),
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(1).Hour().StartAt(s.nextHour()).Do(s.checkAndSendReminders); err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}
	if s.cfg.SyncInterval > 0 {
		if _, err := s.scheduler.Every(s.cfg.SyncInterval).Do(s.pullRemote); err != nil {
			return fmt.Errorf("failed to schedule remote sync: %w", err)
		}
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) nextHour() time.Time {
	return s.now().Truncate(time.Hour).Add(time.Hour)
}

func (s *Scheduler) checkAndSendReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.SendReminders(ctx, s.now().Hour()); err != nil {
		log.Printf("error sending reminders: %v", err)
	}
}

// InWindow reports whether hour lies in the notification window
func (s *Scheduler) InWindow(hour int) bool {
	return hour >= s.cfg.NotificationStartHour && hour <= s.cfg.NotificationEndHour
}

// SendReminders notifies learners registered for hour who have reviews due.
// It returns the number of reminders sent.
func (s *Scheduler) SendReminders(ctx context.Context, hour int) (int, error) {
	if !s.InWindow(hour) {
		log.Printf("hour %d is outside notification hours (%d-%d), skipping reminders",
			hour, s.cfg.NotificationStartHour, s.cfg.NotificationEndHour)
		return 0, nil
	}

	learners, err := s.learners.GetForNotification(ctx, hour)
	if err != nil {
		return 0, fmt.Errorf("failed to get learners for notification: %w", err)
	}

	sent := 0
	for _, l := range learners {
		ok, err := s.remind(ctx, l)
		if err != nil {
			log.Printf("error sending reminder to chat %d: %v", l.ChatID, err)
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

// RunManualCheck sends a reminder to one learner if anything is due
func (s *Scheduler) RunManualCheck(ctx context.Context, l models.Learner) error {
	_, err := s.remind(ctx, l)
	return err
}

func (s *Scheduler) remind(ctx context.Context, l models.Learner) (bool, error) {
	c, err := s.coaches.Get(ctx, l.LearnerID)
	if err != nil {
		return false, err
	}
	due := len(c.Progress.DueForReview())
	if due == 0 {
		return false, nil
	}
	if err := s.notifier.SendReminder(l.ChatID, due, len(c.Progress.UpcomingReviews(1))); err != nil {
		return false, err
	}
	s.metrics.RemindersSent.Inc()
	return true, nil
}

func (s *Scheduler) pullRemote() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.SyncRemote(ctx)
}

// SyncRemote pulls newer remote progress for every loaded learner
func (s *Scheduler) SyncRemote(ctx context.Context) int {
	applied := 0
	for _, c := range s.coaches.All() {
		ok, err := c.SyncRemote(ctx)
		if err != nil {
			log.Printf("remote sync for learner %s failed: %v", c.LearnerID(), err)
			continue
		}
		if ok {
			log.Printf("applied newer remote progress for learner %s", c.LearnerID())
			applied++
		}
	}
	return applied
}
