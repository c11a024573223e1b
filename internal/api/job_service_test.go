package api_test

import (
	"context"
	"testing"
	"time"

	"paddock/internal/api"
	"paddock/internal/calendar"
	"paddock/internal/schedule"
	"paddock/internal/testsupport"
)

func newJobService(t *testing.T) (*api.JobService, *schedule.Scheduler, *calendar.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	jobs := schedule.NewStore(db)
	races := calendar.NewStore(db)
	scheduler := schedule.NewScheduler(jobs, races, cfg, nil)
	return api.NewJobService(jobs, races, scheduler), scheduler, races
}

func TestJobServiceTriggerAndList(t *testing.T) {
	svc, _, races := newJobService(t)
	ctx := context.Background()

	race := &calendar.Race{
		Season:    2026,
		Round:     9,
		Name:      "Service GP",
		RaceStart: time.Now().Add(-time.Hour),
	}
	if _, err := races.Upsert(ctx, race); err != nil {
		t.Fatalf("seed race: %v", err)
	}

	job, err := svc.Trigger(ctx, api.TriggerRequest{
		TriggerKind: string(schedule.TriggerManual),
		RaceID:      &race.ID,
	})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if job.Status != string(schedule.JobScheduled) {
		t.Fatalf("unexpected job status %q", job.Status)
	}

	listed, err := svc.List(ctx, "", "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one job, got %d", len(listed))
	}
	if listed[0].RaceLabel != race.Label() {
		t.Fatalf("expected race label %q, got %q", race.Label(), listed[0].RaceLabel)
	}
}

func TestJobServiceDescribeMissingReturnsNil(t *testing.T) {
	svc, _, _ := newJobService(t)
	job, err := svc.Describe(context.Background(), 4242)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for missing job, got %+v", job)
	}
}

func TestJobServiceStats(t *testing.T) {
	svc, _, _ := newJobService(t)
	ctx := context.Background()

	if _, err := svc.Trigger(ctx, api.TriggerRequest{TriggerKind: string(schedule.TriggerManual)}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["scheduled"] != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
}
