package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/teamflux/teamflux-api/internal/repository"
	"github.com/teamflux/teamflux-api/internal/service"
	"github.com/teamflux/teamflux-api/internal/socket"
)

const deadlineSchedule = "0 9 * * *"

// Scheduler handles scheduled tasks
type Scheduler struct {
	cron            *cron.Cron
	deprecationRepo repository.DeprecationRepository
	broadcaster     service.Broadcaster
	warningDays     int
	log             zerolog.Logger
	now             func() time.Time
}

// NewScheduler creates a scheduler that reminds project rooms about
// deprecation deadlines. broadcaster may be nil.
func NewScheduler(deprecationRepo repository.DeprecationRepository, broadcaster service.Broadcaster, warningDays int, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:            cron.New(),
		deprecationRepo: deprecationRepo,
		broadcaster:     broadcaster,
		warningDays:     warningDays,
		log:             log.With().Str("component", "cron").Logger(),
		now:             time.Now,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	// Run every day at 9 AM
	if _, err := s.cron.AddFunc(deadlineSchedule, func() {
		s.log.Info().Msg("running deprecation deadline check")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.CheckDeadlines(ctx); err != nil {
			s.log.Error().Err(err).Msg("deprecation deadline check failed")
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", deadlineSchedule).Msg("scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// DeadlineReport counts the reminders sent by one check.
type DeadlineReport struct {
	Approaching int
	Overdue     int
}

// CheckDeadlines publishes a reminder for every unfinished deprecation whose
// deadline falls within the warning window, and an overdue notice for those
// already past it.
func (s *Scheduler) CheckDeadlines(ctx context.Context) (DeadlineReport, error) {
	var report DeadlineReport

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	horizon := today.AddDate(0, 0, s.warningDays)

	deprecations, err := s.deprecationRepo.FindOpenDueBy(ctx, horizon)
	if err != nil {
		return report, err
	}

	for _, d := range deprecations {
		daysLeft := int(d.Deadline.Sub(today).Hours() / 24)
		payload := map[string]interface{}{
			"deprecationId":  d.ID,
			"projectId":      d.ProjectID,
			"deprecatedItem": d.DeprecatedItem,
			"deadline":       d.Deadline.Format("2006-01-02"),
			"progressStatus": d.ProgressStatus,
		}

		msgType := socket.MessageDeadlineApproaching
		if d.Deadline.Before(today) {
			msgType = socket.MessageDeadlineOverdue
			payload["daysOverdue"] = -daysLeft
			report.Overdue++
		} else {
			payload["daysLeft"] = daysLeft
			report.Approaching++
		}

		if s.broadcaster != nil {
			s.broadcaster.BroadcastToProject(d.ProjectID, msgType, payload, "")
		}
		s.log.Debug().
			Str("deprecation_id", d.ID).
			Str("type", string(msgType)).
			Int("days_left", daysLeft).
			Msg("deadline reminder")
	}

	s.log.Info().
		Int("approaching", report.Approaching).
		Int("overdue", report.Overdue).
		Msg("deprecation deadline check finished")
	return report, nil
}
