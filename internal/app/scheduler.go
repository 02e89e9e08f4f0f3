/**
 * @description
 * Cron scheduler for the monthly usage billing job.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	biller   *UsageBiller
	logger   *slog.Logger
	schedule string
	loc      *time.Location
}

// NewScheduler creates a new scheduler instance. timezone decides which
// calendar month "previous month" means on the billing boundary.
func NewScheduler(biller *UsageBiller, logger *slog.Logger, schedule, timezone string) *Scheduler {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("invalid billing timezone, defaulting to UTC", "timezone", timezone)
		loc = time.UTC
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		biller:   biller,
		logger:   logger,
		schedule: schedule,
		loc:      loc,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.runMonthlyUsageBilling); err != nil {
		s.logger.Error("failed to schedule usage billing job", "error", err)
	} else {
		s.logger.Info("scheduled usage billing job", "schedule", s.schedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// runMonthlyUsageBilling bills the previous calendar month.
func (s *Scheduler) runMonthlyUsageBilling() {
	periodStart, periodEnd := PreviousMonth(time.Now().In(s.loc))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if _, err := s.biller.Run(ctx, periodStart, periodEnd); err != nil {
		s.logger.Error("monthly usage billing failed", "error", err)
	}
}

// PreviousMonth returns the [start, end) bounds of the calendar month before
// the given time, in its location.
func PreviousMonth(now time.Time) (time.Time, time.Time) {
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	start := end.AddDate(0, -1, 0)
	return start, end
}
