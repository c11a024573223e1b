package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"paddock/internal/calendar"
	"paddock/internal/config"
	"paddock/internal/logging"
	"paddock/internal/services"
)

// Scheduler derives trigger jobs from the race calendar and owns retry
// policy for jobs that fail.
type Scheduler struct {
	jobs   *Store
	races  *calendar.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewScheduler builds a scheduler over the job and calendar stores.
func NewScheduler(jobStore *Store, raceStore *calendar.Store, cfg *config.Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		jobs:   jobStore,
		races:  raceStore,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "scheduler"),
	}
}

// weekendTriggers is the trigger plan per weekend shape. Sprint weekends
// replace the Friday practice episode with a post-sprint one so the same
// weekend never yields three episodes.
var weekendTriggers = map[calendar.WeekendKind][]TriggerKind{
	calendar.WeekendStandard: {TriggerPostFP2, TriggerPostRace},
	calendar.WeekendSprint:   {TriggerPostSprint, TriggerPostRace},
}

// SyncResult summarizes one calendar sync pass.
type SyncResult struct {
	RaceJobs int
	Recaps   int
	Skipped  int
}

// SyncCalendar plans jobs for every race inside the lookahead window and
// fills calendar gaps with weekly recaps. It is idempotent: running it
// twice, or after a calendar correction, never duplicates active jobs.
func (s *Scheduler) SyncCalendar(ctx context.Context, now time.Time) (SyncResult, error) {
	var result SyncResult

	lookahead := time.Duration(s.cfg.Scheduler.LookaheadDays) * 24 * time.Hour
	// Reach slightly back so a race that just ended still gets its
	// post-race job when the delay pushes the fire time past now.
	races, err := s.races.Upcoming(ctx, now.Add(-48*time.Hour), lookahead+48*time.Hour)
	if err != nil {
		return result, fmt.Errorf("load races for sync: %w", err)
	}

	for _, race := range races {
		for _, kind := range weekendTriggers[race.Kind()] {
			fireAt, ok := s.triggerTime(race, kind)
			if !ok {
				result.Skipped++
				continue
			}
			if !fireAt.After(now) {
				result.Skipped++
				continue
			}
			raceID := race.ID
			job := &Job{
				RaceID:       &raceID,
				TriggerKind:  kind,
				ScheduledFor: fireAt,
				MaxRetries:   s.cfg.Scheduler.MaxRetries,
			}
			inserted, err := s.jobs.Create(ctx, job)
			if err != nil {
				return result, fmt.Errorf("plan %s for %s: %w", kind, race.Label(), err)
			}
			if inserted {
				result.RaceJobs++
				s.logger.Info("planned race job",
					logging.Args(
						logging.String(logging.FieldTriggerKind, string(kind)),
						logging.Int64(logging.FieldRaceID, race.ID),
						logging.Time("scheduled_for", fireAt),
					)...)
			}
		}
	}

	recaps, err := s.planRecaps(ctx, now, races)
	if err != nil {
		return result, err
	}
	result.Recaps = recaps
	return result, nil
}

// triggerTime resolves when a trigger should fire for a race. The bool is
// false when the race lacks the session the trigger hangs off.
func (s *Scheduler) triggerTime(race *calendar.Race, kind TriggerKind) (time.Time, bool) {
	sched := s.cfg.Scheduler
	switch kind {
	case TriggerPostFP2:
		if race.FP2Start == nil {
			return time.Time{}, false
		}
		return race.FP2Start.Add(time.Duration(sched.PostFP2DelayMinutes) * time.Minute), true
	case TriggerPostSprint:
		if race.SprintStart == nil {
			return time.Time{}, false
		}
		return race.SprintStart.Add(time.Duration(sched.PostSprintDelayMinutes) * time.Minute), true
	case TriggerPostRace:
		return race.RaceStart.Add(time.Duration(sched.PostRaceDelayMinutes) * time.Minute), true
	default:
		return time.Time{}, false
	}
}

// planRecaps schedules a weekly recap for every off week: a gap between
// consecutive races wider than the configured threshold. The recap fires on
// the configured weekday and hour in the broadcast timezone.
func (s *Scheduler) planRecaps(ctx context.Context, now time.Time, races []*calendar.Race) (int, error) {
	if len(races) < 2 {
		return 0, nil
	}
	loc, err := s.cfg.Location()
	if err != nil {
		return 0, services.Categorize(err, services.ErrConfiguration)
	}
	threshold := time.Duration(s.cfg.Scheduler.OffWeekGapThresholdDays) * 24 * time.Hour

	created := 0
	for i := 0; i < len(races)-1; i++ {
		prev, next := races[i], races[i+1]
		if next.RaceStart.Sub(prev.RaceStart) <= threshold {
			continue
		}
		fireAt := s.offWeekSlot(prev.RaceStart.In(loc))
		if !fireAt.After(now) || !fireAt.Before(next.RaceStart) {
			continue
		}
		job := &Job{
			TriggerKind:  TriggerWeeklyRecap,
			ScheduledFor: fireAt,
			MaxRetries:   s.cfg.Scheduler.MaxRetries,
		}
		inserted, err := s.jobs.Create(ctx, job)
		if err != nil {
			return created, fmt.Errorf("plan recap after %s: %w", prev.Label(), err)
		}
		if inserted {
			created++
			s.logger.Info("planned off-week recap",
				logging.Args(logging.Time("scheduled_for", fireAt))...)
		}
	}
	return created, nil
}

// offWeekSlot finds the first configured weekday/hour at least five days
// after the given race so the recap lands in the empty week, not on the
// race weekend itself.
func (s *Scheduler) offWeekSlot(after time.Time) time.Time {
	weekday := s.cfg.OffWeekday()
	hour := s.cfg.Scheduler.OffWeekHour

	candidate := time.Date(after.Year(), after.Month(), after.Day(), hour, 0, 0, 0, after.Location())
	candidate = candidate.AddDate(0, 0, 5)
	for candidate.Weekday() != weekday {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// TriggerNow creates a job that fires immediately. Used by the CLI and API
// for manual episode runs.
func (s *Scheduler) TriggerNow(ctx context.Context, kind TriggerKind, raceID *int64, scrapeContext string) (*Job, error) {
	if !ValidTriggerKind(kind) {
		return nil, services.Categorize(fmt.Errorf("unknown trigger kind %q", kind), services.ErrValidation)
	}
	if raceID != nil {
		if _, err := s.races.GetByID(ctx, *raceID); err != nil {
			return nil, err
		}
	}
	job := &Job{
		RaceID:        raceID,
		TriggerKind:   kind,
		ScheduledFor:  time.Now(),
		ScrapeContext: scrapeContext,
		MaxRetries:    s.cfg.Scheduler.MaxRetries,
	}
	inserted, err := s.jobs.Create(ctx, job)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, services.Categorize(
			fmt.Errorf("an active %s job already exists for this race", kind), services.ErrValidation)
	}
	return job, nil
}

// TriggerJob forces an existing scheduled or failed job to run immediately.
// A failed job goes back to scheduled with a fresh retry budget. Running and
// finished jobs cannot be forced.
func (s *Scheduler) TriggerJob(ctx context.Context, id int64) (*Job, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != JobScheduled && job.Status != JobFailed {
		return nil, services.Categorize(
			fmt.Errorf("job %d is %s, only scheduled or failed jobs can be forced", id, job.Status),
			services.ErrValidation)
	}
	if err := s.jobs.ForceDue(ctx, id, time.Now()); err != nil {
		return nil, err
	}
	job, err = s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("job forced to run now",
		logging.Args(
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String(logging.FieldTriggerKind, string(job.TriggerKind)),
		)...)
	return job, nil
}

// ClaimDue claims up to the configured batch of due jobs for processing.
func (s *Scheduler) ClaimDue(ctx context.Context, now time.Time) ([]*Job, error) {
	due, err := s.jobs.DueScheduled(ctx, now, s.cfg.Scheduler.PendingBatchSize)
	if err != nil {
		return nil, err
	}
	claimed := make([]*Job, 0, len(due))
	for _, job := range due {
		ok, err := s.jobs.Claim(ctx, job.ID)
		if err != nil {
			return claimed, err
		}
		if ok {
			job.Status = JobRunning
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

// HandleFailure applies retry policy after a job's pipeline run failed.
// Retryable failures with remaining budget are pushed back with exponential
// backoff anchored to the job's original slot, so a long-running failed
// attempt does not stretch the ladder; everything else terminates the job.
func (s *Scheduler) HandleFailure(ctx context.Context, job *Job, runErr error) error {
	if services.IsRetryable(runErr) && job.RetriesLeft() {
		delay := s.retryDelay(job.RetryCount)
		anchor := job.FirstScheduledFor
		if anchor.IsZero() {
			anchor = time.Now()
		}
		at := anchor.Add(delay)
		if err := s.jobs.Reschedule(ctx, job.ID, at, runErr.Error()); err != nil {
			return err
		}
		s.logger.Warn("job rescheduled after failure",
			logging.Args(
				logging.Int64(logging.FieldJobID, job.ID),
				logging.Int("retry", job.RetryCount+1),
				logging.Duration("backoff", delay),
				logging.Error(runErr),
			)...)
		return nil
	}
	if err := s.jobs.MarkFailed(ctx, job.ID, runErr.Error()); err != nil {
		return err
	}
	s.logger.Error("job failed terminally",
		logging.Args(logging.Int64(logging.FieldJobID, job.ID), logging.Error(runErr))...)
	return nil
}

func (s *Scheduler) retryDelay(retryCount int) time.Duration {
	base := time.Duration(s.cfg.Scheduler.RetryBackoffMinutes) * time.Minute
	return base << retryCount
}

// RecoverStale releases running jobs orphaned by a crashed daemon back to
// the scheduled pool.
func (s *Scheduler) RecoverStale(ctx context.Context, heartbeatCutoff time.Time) (int, error) {
	stale, err := s.jobs.StaleRunning(ctx, heartbeatCutoff)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, job := range stale {
		if err := s.jobs.Release(ctx, job.ID); err != nil {
			s.logger.Warn("release stale job",
				logging.Args(logging.Int64(logging.FieldJobID, job.ID), logging.Error(err))...)
			continue
		}
		released++
	}
	if released > 0 {
		s.logger.Info("recovered stale jobs", logging.Args(logging.Int("count", released))...)
	}
	return released, nil
}

// Jobs exposes the underlying store for read paths like the API and CLI.
func (s *Scheduler) Jobs() *Store {
	return s.jobs
}
