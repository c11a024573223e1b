package gags_test

import (
	"context"
	"testing"
	"time"

	"paddock/internal/calendar"
	"paddock/internal/gags"
	"paddock/internal/testsupport"
)

func seedCalendar(t *testing.T, store *calendar.Store, rounds int) {
	t.Helper()
	base := time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC)
	for round := 1; round <= rounds; round++ {
		race := &calendar.Race{
			Season:    2026,
			Round:     round,
			Name:      "Round GP",
			RaceStart: base.AddDate(0, 0, (round-1)*14),
		}
		if _, err := store.Upsert(context.Background(), race); err != nil {
			t.Fatalf("seed round %d: %v", round, err)
		}
	}
}

func TestEligibleFiltersByCharacterAndUniversal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	gagStore := gags.NewStore(db)
	calStore := calendar.NewStore(db)
	seedCalendar(t, calStore, 6)
	selector := gags.NewSelector(gagStore, calStore, nil)
	ctx := context.Background()

	mustCreate := func(g *gags.Gag) {
		t.Helper()
		if _, err := gagStore.Create(ctx, g); err != nil {
			t.Fatalf("create %s: %v", g.Name, err)
		}
	}

	mustCreate(newGag("torpedo-bit"))
	mustCreate(newGag("rival-bit", func(g *gags.Gag) { g.Character = "The Professor" }))
	mustCreate(newGag("universal-bit", func(g *gags.Gag) { g.Character = "" }))

	eligible, err := selector.Eligible(ctx, gags.Query{
		Characters: []string{"Torpedo"},
		Season:     2026,
		Round:      3,
	})
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}

	names := map[string]bool{}
	for _, gag := range eligible {
		names[gag.Name] = true
	}
	if !names["torpedo-bit"] || !names["universal-bit"] {
		t.Fatalf("expected character and universal gags eligible, got %v", names)
	}
	if names["rival-bit"] {
		t.Fatal("gag for an absent character must not be eligible")
	}
}

func TestEligibleMatchesSecondaryCharacter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	gagStore := gags.NewStore(db)
	calStore := calendar.NewStore(db)
	seedCalendar(t, calStore, 6)
	selector := gags.NewSelector(gagStore, calStore, nil)
	ctx := context.Background()

	// Checo only appears as the straight man in this bit.
	if _, err := gagStore.Create(ctx, newGag("duo-bit", func(g *gags.Gag) {
		g.SecondaryCharacter = "Checo"
	})); err != nil {
		t.Fatalf("create: %v", err)
	}

	eligible, err := selector.Eligible(ctx, gags.Query{Characters: []string{"Checo"}, Season: 2026, Round: 2})
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 1 || eligible[0].Name != "duo-bit" {
		t.Fatalf("expected gag eligible via secondary character, got %v", eligible)
	}

	eligible, err = selector.Eligible(ctx, gags.Query{Characters: []string{"The Professor"}, Season: 2026, Round: 2})
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected no match for uninvolved cast, got %v", eligible)
	}
}

func TestEligibleHonorsCooldown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	gagStore := gags.NewStore(db)
	calStore := calendar.NewStore(db)
	seedCalendar(t, calStore, 8)
	selector := gags.NewSelector(gagStore, calStore, nil)
	ctx := context.Background()

	id, err := gagStore.Create(ctx, newGag("cooling-bit"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gagStore.RecordUsage(ctx, usageIn(id, 1, 2026, 3)); err != nil {
		t.Fatalf("record usage: %v", err)
	}

	// One round later: still within the 2-round cooldown.
	eligible, err := selector.Eligible(ctx, gags.Query{Characters: []string{"Torpedo"}, Season: 2026, Round: 4})
	if err != nil {
		t.Fatalf("eligible during cooldown: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected no eligible gags during cooldown, got %d", len(eligible))
	}

	// Two rounds later: cooldown elapsed; the gag flips back to active.
	eligible, err = selector.Eligible(ctx, gags.Query{Characters: []string{"Torpedo"}, Season: 2026, Round: 5})
	if err != nil {
		t.Fatalf("eligible after cooldown: %v", err)
	}
	if len(eligible) != 1 || eligible[0].Name != "cooling-bit" {
		t.Fatalf("expected cooling-bit eligible after cooldown, got %v", eligible)
	}
	if eligible[0].Status != gags.StatusActive {
		t.Fatalf("expected gag reactivated, got %s", eligible[0].Status)
	}
}

func TestEligibleSkipsExhaustedAndRetired(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	gagStore := gags.NewStore(db)
	calStore := calendar.NewStore(db)
	seedCalendar(t, calStore, 6)
	selector := gags.NewSelector(gagStore, calStore, nil)
	ctx := context.Background()

	exhaustedID, err := gagStore.Create(ctx, newGag("spent-bit", func(g *gags.Gag) {
		g.MaxUses = 1
		g.CooldownRaces = 0
	}))
	if err != nil {
		t.Fatalf("create exhausted: %v", err)
	}
	if err := gagStore.RecordUsage(ctx, usageIn(exhaustedID, 1, 2026, 1)); err != nil {
		t.Fatalf("exhaust: %v", err)
	}

	retiredID, err := gagStore.Create(ctx, newGag("shelved-bit"))
	if err != nil {
		t.Fatalf("create retired: %v", err)
	}
	if err := gagStore.Retire(ctx, retiredID); err != nil {
		t.Fatalf("retire: %v", err)
	}

	eligible, err := selector.Eligible(ctx, gags.Query{Characters: []string{"Torpedo"}, Season: 2026, Round: 6})
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 0 {
		t.Fatalf("expected no eligible gags, got %d", len(eligible))
	}
}

func TestEligibleRankingAndLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	gagStore := gags.NewStore(db)
	calStore := calendar.NewStore(db)
	seedCalendar(t, calStore, 6)
	selector := gags.NewSelector(gagStore, calStore, nil)
	ctx := context.Background()

	mustCreate := func(g *gags.Gag) {
		t.Helper()
		if _, err := gagStore.Create(ctx, g); err != nil {
			t.Fatalf("create %s: %v", g.Name, err)
		}
	}

	mustCreate(newGag("mid", func(g *gags.Gag) { g.HumorRating = 6 }))
	mustCreate(newGag("best", func(g *gags.Gag) { g.HumorRating = 9 }))
	mustCreate(newGag("fresh", func(g *gags.Gag) { g.HumorRating = 6; g.TimesUsed = 0 }))
	mustCreate(newGag("worn", func(g *gags.Gag) { g.HumorRating = 6; g.TimesUsed = 4 }))

	eligible, err := selector.Eligible(ctx, gags.Query{
		Characters: []string{"Torpedo"},
		Season:     2026,
		Round:      4,
		Limit:      3,
	})
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(eligible))
	}
	if eligible[0].Name != "best" {
		t.Fatalf("expected highest humor first, got %s", eligible[0].Name)
	}
	if eligible[len(eligible)-1].TimesUsed > 0 && eligible[0].TimesUsed > eligible[len(eligible)-1].TimesUsed {
		t.Fatal("expected least-used gags ranked ahead at equal humor")
	}
}
