// Package reminders periodically scans for onboarding workflows that have
// been open past a staleness threshold and emits reminder events for
// downstream notification channels.
package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agridesk/agridesk/pkg/eventbus"
	"github.com/agridesk/agridesk/pkg/events"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the scan daily at 09:00.
const DefaultSchedule = "0 9 * * *"

// DefaultStaleAfter is how long a workflow may sit open before it counts as
// stale.
const DefaultStaleAfter = 72 * time.Hour

// Scanner schedules and runs the stale-workflow scan.
type Scanner struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	schedule    string
	staleAfter  time.Duration
	cron        *cron.Cron
}

// NewScanner creates a scanner. Empty schedule and zero staleAfter use the
// defaults.
func NewScanner(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger, schedule string, staleAfter time.Duration) *Scanner {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	return &Scanner{
		persistence: p,
		publisher:   publisher,
		logger:      logger,
		schedule:    schedule,
		staleAfter:  staleAfter,
	}
}

// Start registers the cron schedule and begins scanning. The scan itself
// runs with ctx, so cancelling it stops in-flight work; Stop halts the
// schedule.
func (s *Scanner) Start(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.schedule, func() {
		err := s.Scan(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "Reminder scan failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminder scan: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Reminder scanner started",
		"schedule", s.schedule, "stale_after", s.staleAfter)

	return nil
}

// Stop halts the schedule and waits for a running scan to finish.
func (s *Scanner) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Scan emits one reminder event per stale open workflow.
func (s *Scanner) Scan(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.staleAfter)

	stale, err := s.persistence.WorkflowRepository().ListStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale workflows: %w", err)
	}

	for _, workflow := range stale {
		event := events.WorkflowReminder{
			BaseEvent:   events.NewBaseEvent(events.WorkflowReminderEvent, workflow.TenantID),
			WorkflowID:  workflow.ID,
			CurrentStep: workflow.CurrentStep,
			TotalSteps:  workflow.TotalSteps,
			StartedAt:   workflow.StartedAt,
		}

		err = s.publisher.Publish(ctx, workflow.TenantID, event)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to publish reminder",
				"workflow_id", workflow.ID, "error", err)

			continue
		}

		s.logger.InfoContext(ctx, "Onboarding reminder emitted",
			"tenant_id", workflow.TenantID,
			"workflow_id", workflow.ID,
			"current_step", workflow.CurrentStep,
			"total_steps", workflow.TotalSteps,
		)
	}

	return nil
}
