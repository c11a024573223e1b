package schedule_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"paddock/internal/calendar"
	"paddock/internal/config"
	"paddock/internal/schedule"
	"paddock/internal/services"
	"paddock/internal/testsupport"
)

func timePtr(t time.Time) *time.Time { return &t }

type fixture struct {
	cfg       *config.Config
	scheduler *schedule.Scheduler
	jobs      *schedule.Store
	races     *calendar.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	jobs := schedule.NewStore(db)
	races := calendar.NewStore(db)
	return &fixture{
		cfg:       cfg,
		scheduler: schedule.NewScheduler(jobs, races, cfg, nil),
		jobs:      jobs,
		races:     races,
	}
}

func (f *fixture) seedRace(t *testing.T, round int, start time.Time, sprint bool) *calendar.Race {
	t.Helper()
	race := &calendar.Race{
		Season:    2026,
		Round:     round,
		Name:      "Round GP",
		RaceStart: start,
		FP2Start:  timePtr(start.Add(-46 * time.Hour)),
	}
	if sprint {
		race.HasSprint = true
		race.SprintStart = timePtr(start.Add(-22 * time.Hour))
	}
	if _, err := f.races.Upsert(context.Background(), race); err != nil {
		t.Fatalf("seed round %d: %v", round, err)
	}
	return race
}

func TestSyncPlansStandardWeekend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raceStart := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	race := f.seedRace(t, 1, raceStart, false)

	now := raceStart.AddDate(0, 0, -10)
	result, err := f.scheduler.SyncCalendar(ctx, now)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.RaceJobs != 2 {
		t.Fatalf("expected 2 jobs for a standard weekend, got %d", result.RaceJobs)
	}

	jobs, err := f.jobs.List(ctx, schedule.ListFilter{RaceID: &race.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	byKind := map[schedule.TriggerKind]time.Time{}
	for _, job := range jobs {
		byKind[job.TriggerKind] = job.ScheduledFor
	}

	wantFP2 := race.FP2Start.Add(60 * time.Minute)
	if got, ok := byKind[schedule.TriggerPostFP2]; !ok || !got.Equal(wantFP2) {
		t.Fatalf("post-fp2 at %v, want %v", got, wantFP2)
	}
	wantRace := raceStart.Add(120 * time.Minute)
	if got, ok := byKind[schedule.TriggerPostRace]; !ok || !got.Equal(wantRace) {
		t.Fatalf("post-race at %v, want %v", got, wantRace)
	}
	if _, ok := byKind[schedule.TriggerPostSprint]; ok {
		t.Fatal("standard weekend must not get a post-sprint job")
	}
}

func TestSyncPlansSprintWeekendWithoutFP2Episode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raceStart := time.Date(2026, 6, 7, 13, 0, 0, 0, time.UTC)
	race := f.seedRace(t, 1, raceStart, true)

	if _, err := f.scheduler.SyncCalendar(ctx, raceStart.AddDate(0, 0, -10)); err != nil {
		t.Fatalf("sync: %v", err)
	}

	jobs, err := f.jobs.List(ctx, schedule.ListFilter{RaceID: &race.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	kinds := map[schedule.TriggerKind]bool{}
	for _, job := range jobs {
		kinds[job.TriggerKind] = true
	}
	if !kinds[schedule.TriggerPostSprint] || !kinds[schedule.TriggerPostRace] {
		t.Fatalf("sprint weekend must plan post-sprint and post-race, got %v", kinds)
	}
	if kinds[schedule.TriggerPostFP2] {
		t.Fatal("sprint weekend must not plan a post-fp2 job")
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raceStart := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	f.seedRace(t, 1, raceStart, false)
	now := raceStart.AddDate(0, 0, -10)

	if _, err := f.scheduler.SyncCalendar(ctx, now); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	second, err := f.scheduler.SyncCalendar(ctx, now)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.RaceJobs != 0 {
		t.Fatalf("expected second sync to create nothing, got %d", second.RaceJobs)
	}

	jobs, err := f.jobs.List(ctx, schedule.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs total, got %d", len(jobs))
	}
}

func TestSyncSkipsPastFireTimes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raceStart := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	f.seedRace(t, 1, raceStart, false)

	// Between FP2 trigger and race trigger: only post-race remains.
	now := raceStart.Add(30 * time.Minute)
	result, err := f.scheduler.SyncCalendar(ctx, now)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.RaceJobs != 1 {
		t.Fatalf("expected only the post-race job, got %d", result.RaceJobs)
	}

	jobs, err := f.jobs.List(ctx, schedule.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].TriggerKind != schedule.TriggerPostRace {
		t.Fatalf("expected a single post-race job, got %+v", jobs)
	}
}

func TestSyncPlansOffWeekRecap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := time.Date(2026, 5, 3, 13, 0, 0, 0, time.UTC)
	f.seedRace(t, 1, first, false)
	// Three-week gap, wider than the 14-day threshold.
	f.seedRace(t, 2, first.AddDate(0, 0, 21), false)

	now := first.AddDate(0, 0, -5)
	result, err := f.scheduler.SyncCalendar(ctx, now)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Recaps != 1 {
		t.Fatalf("expected 1 recap, got %d", result.Recaps)
	}

	recaps, err := f.jobs.List(ctx, schedule.ListFilter{Kind: schedule.TriggerWeeklyRecap})
	if err != nil {
		t.Fatalf("list recaps: %v", err)
	}
	if len(recaps) != 1 {
		t.Fatalf("expected 1 recap job, got %d", len(recaps))
	}

	recap := recaps[0]
	loc, _ := time.LoadLocation("Africa/Johannesburg")
	local := recap.ScheduledFor.In(loc)
	if local.Weekday() != time.Friday || local.Hour() != 7 {
		t.Fatalf("expected Friday 07:00 local, got %s", local)
	}
	if !recap.ScheduledFor.After(first) || !recap.ScheduledFor.Before(first.AddDate(0, 0, 21)) {
		t.Fatalf("recap %s must land inside the gap", recap.ScheduledFor)
	}

	// Second sync must not duplicate it.
	again, err := f.scheduler.SyncCalendar(ctx, now)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if again.Recaps != 0 {
		t.Fatalf("expected no new recap on re-sync, got %d", again.Recaps)
	}
}

func TestSyncSurfacesUnknownTimezoneAsConfiguration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := time.Date(2026, 5, 3, 13, 0, 0, 0, time.UTC)
	f.seedRace(t, 1, first, false)
	f.seedRace(t, 2, first.AddDate(0, 0, 21), false)

	f.cfg.Scheduler.Timezone = "Mars/Olympus_Mons"
	if _, err := f.scheduler.SyncCalendar(ctx, first.AddDate(0, 0, -5)); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown timezone, got %v", err)
	}
}

func TestSyncSkipsRecapForBackToBackRaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := time.Date(2026, 5, 3, 13, 0, 0, 0, time.UTC)
	f.seedRace(t, 1, first, false)
	f.seedRace(t, 2, first.AddDate(0, 0, 7), false)

	result, err := f.scheduler.SyncCalendar(ctx, first.AddDate(0, 0, -5))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Recaps != 0 {
		t.Fatalf("expected no recap for a back-to-back, got %d", result.Recaps)
	}
}

func TestTriggerNowRejectsDuplicateActiveJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raceStart := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	race := f.seedRace(t, 1, raceStart, false)

	job, err := f.scheduler.TriggerNow(ctx, schedule.TriggerPostRace, &race.ID, "")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if job.ScrapeContext == "" {
		t.Fatal("expected default scrape context to be filled in")
	}

	if _, err := f.scheduler.TriggerNow(ctx, schedule.TriggerPostRace, &race.ID, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for duplicate active job, got %v", err)
	}

	if _, err := f.scheduler.TriggerNow(ctx, "post-lunch", nil, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown kind, got %v", err)
	}
}

func TestHandleFailureReschedulesWithBackoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raceStart := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	race := f.seedRace(t, 1, raceStart, false)

	job, err := f.scheduler.TriggerNow(ctx, schedule.TriggerPostRace, &race.ID, "")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if ok, err := f.jobs.Claim(ctx, job.ID); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	before := time.Now()
	runErr := services.Categorize(errors.New("provider 503"), services.ErrTransient)
	if err := f.scheduler.HandleFailure(ctx, job, runErr); err != nil {
		t.Fatalf("handle failure: %v", err)
	}

	updated, err := f.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.Status != schedule.JobScheduled {
		t.Fatalf("expected rescheduled, got %s", updated.Status)
	}
	if updated.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", updated.RetryCount)
	}
	// First retry backs off by the 30 minute base.
	wantMin := before.Add(29 * time.Minute)
	if updated.ScheduledFor.Before(wantMin) {
		t.Fatalf("expected ~30m backoff, scheduled for %s", updated.ScheduledFor)
	}
}

func TestHandleFailureTerminalAfterBudgetOrNonRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raceStart := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	race := f.seedRace(t, 1, raceStart, false)

	job, err := f.scheduler.TriggerNow(ctx, schedule.TriggerPostRace, &race.ID, "")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if ok, err := f.jobs.Claim(ctx, job.ID); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	runErr := services.Categorize(errors.New("script rejected"), services.ErrValidation)
	if err := f.scheduler.HandleFailure(ctx, job, runErr); err != nil {
		t.Fatalf("handle failure: %v", err)
	}

	updated, err := f.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.Status != schedule.JobFailed {
		t.Fatalf("expected failed for non-retryable error, got %s", updated.Status)
	}
	if updated.ErrorMessage == "" {
		t.Fatal("expected error message recorded")
	}
}

func TestHandleFailureStopsAtRetryBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raceStart := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	race := f.seedRace(t, 1, raceStart, false)

	job, err := f.scheduler.TriggerNow(ctx, schedule.TriggerPostRace, &race.ID, "")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}

	// max_retries=3 means three attempts total, not three retries after
	// the first one.
	runErr := services.Categorize(errors.New("provider 503"), services.ErrTransient)
	for attempt := 1; attempt <= 3; attempt++ {
		if ok, err := f.jobs.Claim(ctx, job.ID); err != nil || !ok {
			t.Fatalf("claim attempt %d: ok=%v err=%v", attempt, ok, err)
		}
		if err := f.scheduler.HandleFailure(ctx, job, runErr); err != nil {
			t.Fatalf("handle failure attempt %d: %v", attempt, err)
		}
		job, err = f.jobs.GetByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("refetch attempt %d: %v", attempt, err)
		}
		if attempt < 3 && job.Status != schedule.JobScheduled {
			t.Fatalf("expected reschedule after attempt %d, got %s", attempt, job.Status)
		}
	}

	if job.Status != schedule.JobFailed {
		t.Fatalf("expected terminal failure after third attempt, got %s", job.Status)
	}
	if job.RetryCount != 2 {
		t.Fatalf("expected 2 spent retries, got %d", job.RetryCount)
	}
}

func TestHandleFailureAnchorsBackoffToOriginalSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A slot two hours in the past, as if the attempt itself ran long.
	origSlot := time.Now().Add(-2 * time.Hour)
	job := &schedule.Job{
		TriggerKind:  schedule.TriggerWeeklyRecap,
		ScheduledFor: origSlot,
		MaxRetries:   3,
	}
	if _, err := f.jobs.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := f.jobs.Claim(ctx, job.ID); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	claimed, err := f.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	runErr := services.Categorize(errors.New("provider 503"), services.ErrTransient)
	if err := f.scheduler.HandleFailure(ctx, claimed, runErr); err != nil {
		t.Fatalf("handle failure: %v", err)
	}

	updated, err := f.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get after reschedule: %v", err)
	}
	want := claimed.FirstScheduledFor.Add(30 * time.Minute)
	if !updated.ScheduledFor.Equal(want) {
		t.Fatalf("backoff must anchor to the original slot: got %s, want %s", updated.ScheduledFor, want)
	}
	if !updated.FirstScheduledFor.Equal(claimed.FirstScheduledFor) {
		t.Fatal("original slot must survive rescheduling")
	}
}

func TestTriggerJobForcesScheduledAndFailedJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raceStart := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	race := f.seedRace(t, 1, raceStart, false)

	job, err := f.scheduler.TriggerNow(ctx, schedule.TriggerPostRace, &race.ID, "")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	// Spend a retry before the terminal failure so the reset is observable.
	if ok, err := f.jobs.Claim(ctx, job.ID); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	transient := services.Categorize(errors.New("provider 503"), services.ErrTransient)
	if err := f.scheduler.HandleFailure(ctx, job, transient); err != nil {
		t.Fatalf("transient failure: %v", err)
	}
	if ok, err := f.jobs.Claim(ctx, job.ID); err != nil || !ok {
		t.Fatalf("reclaim: ok=%v err=%v", ok, err)
	}
	if err := f.jobs.MarkFailed(ctx, job.ID, "script rejected"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	forced, err := f.scheduler.TriggerJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("force failed job: %v", err)
	}
	if forced.Status != schedule.JobScheduled {
		t.Fatalf("expected scheduled after force, got %s", forced.Status)
	}
	if forced.RetryCount != 0 {
		t.Fatalf("expected retry budget reset, got %d", forced.RetryCount)
	}
	if forced.ErrorMessage != "" {
		t.Fatalf("expected failure message cleared, got %q", forced.ErrorMessage)
	}
	if forced.ScheduledFor.After(time.Now().Add(time.Minute)) {
		t.Fatalf("forced job must be due now, scheduled for %s", forced.ScheduledFor)
	}

	if ok, err := f.jobs.Claim(ctx, job.ID); err != nil || !ok {
		t.Fatalf("claim forced job: ok=%v err=%v", ok, err)
	}
	if _, err := f.scheduler.TriggerJob(ctx, job.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error forcing a running job, got %v", err)
	}
	if _, err := f.scheduler.TriggerJob(ctx, 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found for unknown job, got %v", err)
	}
}

func TestRecoverStaleReleasesWithoutRetryCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raceStart := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	race := f.seedRace(t, 1, raceStart, false)

	job, err := f.scheduler.TriggerNow(ctx, schedule.TriggerPostRace, &race.ID, "")
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if ok, err := f.jobs.Claim(ctx, job.ID); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	released, err := f.scheduler.RecoverStale(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if released != 1 {
		t.Fatalf("expected 1 released job, got %d", released)
	}

	updated, err := f.jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.Status != schedule.JobScheduled {
		t.Fatalf("expected scheduled, got %s", updated.Status)
	}
	if updated.RetryCount != 0 {
		t.Fatalf("crash recovery must not spend retry budget, got %d", updated.RetryCount)
	}
}
