package calendar_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"paddock/internal/calendar"
	"paddock/internal/services"
	"paddock/internal/testsupport"
)

func timePtr(t time.Time) *time.Time { return &t }

func sampleRace(round int, start time.Time) *calendar.Race {
	return &calendar.Race{
		Season:    2026,
		Round:     round,
		Name:      "Test GP",
		Circuit:   "Test Ring",
		Country:   "ZA",
		RaceStart: start,
		FP2Start:  timePtr(start.Add(-48 * time.Hour)),
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := calendar.NewStore(db)
	ctx := context.Background()

	start := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	race := sampleRace(5, start)
	firstID, err := store.Upsert(ctx, race)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	race.Name = "Renamed GP"
	race.RaceStart = start.Add(time.Hour)
	secondID, err := store.Upsert(ctx, race)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if firstID != secondID {
		t.Fatalf("expected same row, got %d then %d", firstID, secondID)
	}

	stored, err := store.GetBySeasonRound(ctx, 2026, 5)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Name != "Renamed GP" {
		t.Fatalf("expected updated name, got %q", stored.Name)
	}
	if !stored.RaceStart.Equal(start.Add(time.Hour)) {
		t.Fatalf("expected updated start, got %s", stored.RaceStart)
	}
}

func TestUpsertRejectsInvalidSessionOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := calendar.NewStore(db)

	start := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)
	race := sampleRace(1, start)
	race.FP2Start = timePtr(start.Add(time.Hour))

	if _, err := store.Upsert(context.Background(), race); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpsertRoundTripsFullSessionSchedule(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := calendar.NewStore(db)
	ctx := context.Background()

	start := time.Date(2026, 6, 7, 13, 0, 0, 0, time.UTC)
	race := &calendar.Race{
		Season:                2026,
		Round:                 9,
		Name:                  "Sprint GP",
		Circuit:               "Test Ring",
		Country:               "ZA",
		RaceStart:             start,
		FP1Start:              timePtr(start.Add(-49 * time.Hour)),
		SprintQualifyingStart: timePtr(start.Add(-45 * time.Hour)),
		SprintStart:           timePtr(start.Add(-25 * time.Hour)),
		QualifyingStart:       timePtr(start.Add(-21 * time.Hour)),
		HasSprint:             true,
	}
	if _, err := store.Upsert(ctx, race); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	stored, err := store.GetBySeasonRound(ctx, 2026, 9)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.FP1Start == nil || !stored.FP1Start.Equal(*race.FP1Start) {
		t.Fatalf("fp1 not round-tripped: %v", stored.FP1Start)
	}
	if stored.SprintQualifyingStart == nil || !stored.SprintQualifyingStart.Equal(*race.SprintQualifyingStart) {
		t.Fatalf("sprint qualifying not round-tripped: %v", stored.SprintQualifyingStart)
	}
	if stored.FP2Start != nil || stored.FP3Start != nil {
		t.Fatalf("absent sessions must stay nil, got fp2=%v fp3=%v", stored.FP2Start, stored.FP3Start)
	}
	if stored.QualifyingStart == nil {
		t.Fatal("qualifying not round-tripped")
	}
}

func TestValidateEnforcesSessionRunningOrder(t *testing.T) {
	start := time.Date(2026, 5, 24, 13, 0, 0, 0, time.UTC)

	race := sampleRace(3, start)
	race.FP1Start = timePtr(start.Add(-40 * time.Hour))
	// FP1 after FP2 breaks the running order.
	race.FP2Start = timePtr(start.Add(-44 * time.Hour))
	if err := race.Validate(); err == nil {
		t.Fatal("expected validation failure for out-of-order practice sessions")
	}

	race = sampleRace(3, start)
	race.FP1Start = timePtr(start.Add(-50 * time.Hour))
	race.FP3Start = timePtr(start.Add(-26 * time.Hour))
	race.QualifyingStart = timePtr(start.Add(-22 * time.Hour))
	if err := race.Validate(); err != nil {
		t.Fatalf("expected ordered weekend valid, got %v", err)
	}
}

func TestSprintWeekendRequiresSprintSession(t *testing.T) {
	race := sampleRace(2, time.Date(2026, 6, 7, 13, 0, 0, 0, time.UTC))
	race.HasSprint = true
	if err := race.Validate(); err == nil {
		t.Fatal("expected validation failure for sprint weekend without sprint time")
	}
	race.SprintStart = timePtr(race.RaceStart.Add(-24 * time.Hour))
	if err := race.Validate(); err != nil {
		t.Fatalf("expected valid sprint weekend, got %v", err)
	}
	if race.Kind() != calendar.WeekendSprint {
		t.Fatalf("expected sprint weekend kind, got %s", race.Kind())
	}
}

func TestUpcomingAndNeighbors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := calendar.NewStore(db)
	ctx := context.Background()

	base := time.Date(2026, 4, 5, 13, 0, 0, 0, time.UTC)
	for round := 1; round <= 4; round++ {
		race := sampleRace(round, base.AddDate(0, 0, (round-1)*14))
		if _, err := store.Upsert(ctx, race); err != nil {
			t.Fatalf("upsert round %d: %v", round, err)
		}
	}

	now := base.AddDate(0, 0, 10)
	upcoming, err := store.Upcoming(ctx, now, 21*24*time.Hour)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(upcoming) != 2 {
		t.Fatalf("expected 2 upcoming races, got %d", len(upcoming))
	}
	if upcoming[0].Round != 2 || upcoming[1].Round != 3 {
		t.Fatalf("unexpected upcoming order: %d, %d", upcoming[0].Round, upcoming[1].Round)
	}

	next, err := store.NextAfter(ctx, now)
	if err != nil {
		t.Fatalf("next after: %v", err)
	}
	if next.Round != 2 {
		t.Fatalf("expected round 2 next, got %d", next.Round)
	}

	prev, err := store.LatestBefore(ctx, now)
	if err != nil {
		t.Fatalf("latest before: %v", err)
	}
	if prev.Round != 1 {
		t.Fatalf("expected round 1 previous, got %d", prev.Round)
	}

	if _, err := store.LatestBefore(ctx, base.Add(-time.Hour)); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found before season start, got %v", err)
	}
}

func TestCountRoundsBetween(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := calendar.NewStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC)
	for round := 1; round <= 6; round++ {
		if _, err := store.Upsert(ctx, sampleRace(round, base.AddDate(0, 0, (round-1)*14))); err != nil {
			t.Fatalf("upsert round %d: %v", round, err)
		}
	}

	count, err := store.CountRoundsBetween(ctx, 2026, 2, 2026, 5)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rounds between R2 and R5, got %d", count)
	}

	count, err = store.CountRoundsBetween(ctx, 2026, 5, 2026, 5)
	if err != nil {
		t.Fatalf("count same round: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 rounds for identical bounds, got %d", count)
	}
}
