package schedule_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"paddock/internal/schedule"
	"paddock/internal/services"
	"paddock/internal/testsupport"
)

func TestCreateIgnoresDuplicateActiveJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := schedule.NewStore(db)
	ctx := context.Background()

	raceID := int64(1)
	job := &schedule.Job{
		RaceID:       &raceID,
		TriggerKind:  schedule.TriggerPostRace,
		ScheduledFor: time.Now().Add(time.Hour),
		MaxRetries:   3,
	}
	inserted, err := store.Create(ctx, job)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !inserted {
		t.Fatal("expected first insert to succeed")
	}

	dup := &schedule.Job{
		RaceID:       &raceID,
		TriggerKind:  schedule.TriggerPostRace,
		ScheduledFor: time.Now().Add(2 * time.Hour),
		MaxRetries:   3,
	}
	inserted, err = store.Create(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if inserted {
		t.Fatal("expected duplicate active job to be ignored")
	}

	// Once the first job is finished, the slot reopens.
	if ok, err := store.Claim(ctx, job.ID); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if err := store.MarkCompleted(ctx, job.ID, 10); err != nil {
		t.Fatalf("complete: %v", err)
	}
	inserted, err = store.Create(ctx, dup)
	if err != nil {
		t.Fatalf("create after completion: %v", err)
	}
	if !inserted {
		t.Fatal("expected insert after previous job completed")
	}
}

func TestClaimIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := schedule.NewStore(db)
	ctx := context.Background()

	job := &schedule.Job{
		TriggerKind:  schedule.TriggerWeeklyRecap,
		ScheduledFor: time.Now().Add(-time.Minute),
		MaxRetries:   3,
	}
	if _, err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := store.Claim(ctx, job.ID)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	second, err := store.Claim(ctx, job.ID)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !first || second {
		t.Fatalf("expected exactly one winner, got first=%v second=%v", first, second)
	}

	claimed, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if claimed.Status != schedule.JobRunning {
		t.Fatalf("expected running, got %s", claimed.Status)
	}
	if claimed.StartedAt == nil || claimed.LastHeartbeat == nil {
		t.Fatal("expected started_at and heartbeat stamped on claim")
	}
}

func TestDueScheduledOrdersOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := schedule.NewStore(db)
	ctx := context.Background()

	now := time.Now()
	for i, offset := range []time.Duration{-time.Hour, -3 * time.Hour, time.Hour} {
		raceID := int64(i + 1)
		job := &schedule.Job{
			RaceID:       &raceID,
			TriggerKind:  schedule.TriggerPostRace,
			ScheduledFor: now.Add(offset),
			MaxRetries:   3,
		}
		if _, err := store.Create(ctx, job); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	due, err := store.DueScheduled(ctx, now, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due jobs, got %d", len(due))
	}
	if !due[0].ScheduledFor.Before(due[1].ScheduledFor) {
		t.Fatal("expected due jobs oldest first")
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := schedule.NewStore(db)
	ctx := context.Background()

	now := time.Now()
	for i, offset := range []time.Duration{-2 * time.Hour, 3 * time.Hour, time.Hour} {
		raceID := int64(i + 1)
		job := &schedule.Job{
			RaceID:       &raceID,
			TriggerKind:  schedule.TriggerPostRace,
			ScheduledFor: now.Add(offset),
			MaxRetries:   3,
		}
		if _, err := store.Create(ctx, job); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	jobs, err := store.List(ctx, schedule.ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i := 1; i < len(jobs); i++ {
		if jobs[i].ScheduledFor.After(jobs[i-1].ScheduledFor) {
			t.Fatalf("expected newest first, got %s before %s", jobs[i-1].ScheduledFor, jobs[i].ScheduledFor)
		}
	}
}

func TestCreateKeepsOriginalSlot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := schedule.NewStore(db)
	ctx := context.Background()

	slot := time.Date(2026, 5, 24, 15, 0, 0, 0, time.UTC)
	job := &schedule.Job{
		TriggerKind:  schedule.TriggerWeeklyRecap,
		ScheduledFor: slot,
		MaxRetries:   3,
	}
	if _, err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !fetched.FirstScheduledFor.Equal(slot) {
		t.Fatalf("expected original slot %s, got %s", slot, fetched.FirstScheduledFor)
	}
}

func TestCancelOnlyScheduledJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := schedule.NewStore(db)
	ctx := context.Background()

	job := &schedule.Job{
		TriggerKind:  schedule.TriggerWeeklyRecap,
		ScheduledFor: time.Now().Add(time.Hour),
		MaxRetries:   3,
	}
	if _, err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := store.Cancel(ctx, job.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error cancelling twice, got %v", err)
	}

	cancelled, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cancelled.Status != schedule.JobCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
}

func TestRescheduleResetsClaimState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := schedule.NewStore(db)
	ctx := context.Background()

	job := &schedule.Job{
		TriggerKind:  schedule.TriggerWeeklyRecap,
		ScheduledFor: time.Now().Add(-time.Minute),
		MaxRetries:   3,
	}
	if _, err := store.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := store.Claim(ctx, job.ID); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	retryAt := time.Now().Add(30 * time.Minute)
	if err := store.Reschedule(ctx, job.ID, retryAt, "clip service down"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	updated, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.Status != schedule.JobScheduled {
		t.Fatalf("expected scheduled, got %s", updated.Status)
	}
	if updated.StartedAt != nil || updated.LastHeartbeat != nil {
		t.Fatal("expected claim markers cleared on reschedule")
	}
	if updated.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", updated.RetryCount)
	}
	if updated.ErrorMessage != "clip service down" {
		t.Fatalf("expected failure recorded, got %q", updated.ErrorMessage)
	}
}
