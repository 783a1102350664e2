package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	msgdomain "github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/domain"
	"github.com/maxnutrition/whatsapp-gateway/internal/messaging_service/repository"
	"github.com/maxnutrition/whatsapp-gateway/internal/scheduler_service/domain"
)

// MessageDispatcher is the outbound side the scheduler needs.
type MessageDispatcher interface {
	SendMessage(ctx context.Context, msg msgdomain.OutboundMessage) (*msgdomain.SendResult, error)
}

// ReminderScheduler ticks once a minute and fires each job whose schedule
// matches the current local day+hour slot, at most once per slot per process.
// Eligibility (job condition + cooldown) is decided by the repository query,
// so a restart mid-slot cannot double-send: the delivery log remembers.
type ReminderScheduler struct {
	wellness   repository.WellnessRepository
	dispatcher MessageDispatcher
	schedule   domain.Schedule
	logger     *slog.Logger

	tick       time.Duration
	firedSlots map[string]struct{}
}

func NewReminderScheduler(
	wellness repository.WellnessRepository,
	dispatcher MessageDispatcher,
	schedule domain.Schedule,
	tick time.Duration,
	logger *slog.Logger,
) *ReminderScheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	return &ReminderScheduler{
		wellness:   wellness,
		dispatcher: dispatcher,
		schedule:   schedule,
		logger:     logger.With("component", "reminder_scheduler"),
		tick:       tick,
		firedSlots: make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled.
func (s *ReminderScheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Reminder scheduler starting",
		"timezone", s.schedule.Location.String(), "jobs", len(s.schedule.Jobs), "tick", s.tick.String())

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.runDueJobs(ctx, time.Now().In(s.schedule.Location))
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Reminder scheduler stopping")
			return ctx.Err()
		case now := <-ticker.C:
			s.runDueJobs(ctx, now.In(s.schedule.Location))
		}
	}
}

func (s *ReminderScheduler) runDueJobs(ctx context.Context, local time.Time) {
	for _, js := range s.schedule.Jobs {
		if !js.DueAt(local) {
			continue
		}
		slot := slotKey(js.Job, local)
		if _, done := s.firedSlots[slot]; done {
			continue
		}
		s.firedSlots[slot] = struct{}{}

		processed, failed, err := s.runJob(ctx, js)
		if err != nil {
			s.logger.ErrorContext(ctx, "Reminder job batch failed", "job", js.Job, "error", err)
			continue
		}
		s.logger.InfoContext(ctx, "Reminder job batch finished", "job", js.Job, "sent", processed, "failed", failed)

		if ctx.Err() != nil {
			return
		}
	}
	s.pruneFiredSlots(local)
}

// runJob sends one reminder to every eligible user. A single user's failure
// is logged and counted, never aborts the batch. Between sends the scheduler
// honors the throttle and exits early when shutting down, letting the
// in-flight send complete and starting no new one.
func (s *ReminderScheduler) runJob(ctx context.Context, js domain.JobSchedule) (processed, failed int, err error) {
	start := time.Now()
	defer func() {
		reminderBatchDurationSeconds.WithLabelValues(string(js.Job)).Observe(time.Since(start).Seconds())
	}()

	candidates, err := s.wellness.GetUsersDueForReminder(ctx, js.Job, js.Cooldown)
	if err != nil {
		return 0, 0, fmt.Errorf("loading users due for %s: %w", js.Job, err)
	}
	reminderBatchSize.WithLabelValues(string(js.Job)).Set(float64(len(candidates)))
	if len(candidates) == 0 {
		return 0, 0, nil
	}
	s.logger.InfoContext(ctx, "Reminder job batch starting", "job", js.Job, "due_users", len(candidates))

	for i, candidate := range candidates {
		if ctx.Err() != nil {
			s.logger.WarnContext(ctx, "Shutdown requested, abandoning rest of batch",
				"job", js.Job, "remaining", len(candidates)-i)
			return processed, failed, nil
		}

		msg, buildErr := buildReminderMessage(js.Job, candidate)
		if buildErr != nil {
			failed++
			remindersProcessedTotal.WithLabelValues(string(js.Job), "failed").Inc()
			s.logger.ErrorContext(ctx, "Failed to build reminder message",
				"job", js.Job, "user_id", candidate.User.ID, "error", buildErr)
			continue
		}

		if _, sendErr := s.dispatcher.SendMessage(ctx, msg); sendErr != nil {
			failed++
			remindersProcessedTotal.WithLabelValues(string(js.Job), "failed").Inc()
			s.logger.ErrorContext(ctx, "Failed to send reminder",
				"job", js.Job, "user_id", candidate.User.ID, "error", sendErr)
		} else {
			processed++
			remindersProcessedTotal.WithLabelValues(string(js.Job), "sent").Inc()
		}

		if s.schedule.Throttle > 0 && i < len(candidates)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(s.schedule.Throttle):
			}
		}
	}
	return processed, failed, nil
}

func slotKey(job msgdomain.ReminderJob, local time.Time) string {
	return fmt.Sprintf("%s|%s|%02d", job, local.Format("2006-01-02"), local.Hour())
}

// pruneFiredSlots drops slot markers from previous days so the map does not
// grow without bound in a long-lived process.
func (s *ReminderScheduler) pruneFiredSlots(local time.Time) {
	today := local.Format("2006-01-02")
	for k := range s.firedSlots {
		// Key layout: job|date|hour.
		if !strings.Contains(k, "|"+today+"|") {
			delete(s.firedSlots, k)
		}
	}
}
