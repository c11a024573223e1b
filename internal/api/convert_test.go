package api

import (
	"testing"
	"time"

	"paddock/internal/calendar"
	"paddock/internal/episodes"
	"paddock/internal/schedule"
)

func TestFromJobFormatsTimestamps(t *testing.T) {
	raceID := int64(7)
	started := time.Date(2026, 5, 24, 16, 5, 0, 0, time.UTC)
	job := &schedule.Job{
		ID:           3,
		RaceID:       &raceID,
		TriggerKind:  schedule.TriggerPostRace,
		ScheduledFor: time.Date(2026, 5, 24, 16, 0, 0, 0, time.UTC),
		Status:       schedule.JobRunning,
		RetryCount:   1,
		MaxRetries:   3,
		StartedAt:    &started,
	}
	dto := FromJob(job)
	if dto.ScheduledFor != "2026-05-24T16:00:00.000Z" {
		t.Fatalf("unexpected scheduledFor %q", dto.ScheduledFor)
	}
	if dto.StartedAt != "2026-05-24T16:05:00.000Z" {
		t.Fatalf("unexpected startedAt %q", dto.StartedAt)
	}
	if dto.FinishedAt != "" {
		t.Fatalf("expected empty finishedAt, got %q", dto.FinishedAt)
	}
	if dto.RaceID == nil || *dto.RaceID != raceID {
		t.Fatalf("race id lost in conversion: %+v", dto)
	}
}

func TestFromRaceReportsWeekendKind(t *testing.T) {
	sprint := time.Date(2026, 4, 18, 14, 0, 0, 0, time.UTC)
	race := &calendar.Race{
		Season:      2026,
		Round:       4,
		Name:        "Sprint GP",
		RaceStart:   time.Date(2026, 4, 19, 15, 0, 0, 0, time.UTC),
		SprintStart: &sprint,
		HasSprint:   true,
	}
	dto := FromRace(race)
	if dto.WeekendKind != string(calendar.WeekendSprint) {
		t.Fatalf("unexpected weekend kind %q", dto.WeekendKind)
	}
	if dto.SprintStart == "" || dto.FP2Start != "" {
		t.Fatalf("session times converted incorrectly: %+v", dto)
	}
}

func TestFromEpisodeOmitsNilPublishedAt(t *testing.T) {
	dto := FromEpisode(&episodes.Episode{
		ID:          1,
		TriggerKind: "post-race",
		Status:      episodes.StatusRendering,
		SceneCount:  24,
	})
	if dto.PublishedAt != "" {
		t.Fatalf("expected empty publishedAt, got %q", dto.PublishedAt)
	}
	if dto.Status != "rendering" || dto.SceneCount != 24 {
		t.Fatalf("unexpected dto %+v", dto)
	}
}

func TestMergeJobStats(t *testing.T) {
	merged := MergeJobStats(map[schedule.JobStatus]int{
		schedule.JobScheduled: 2,
		schedule.JobFailed:    1,
	})
	if merged["scheduled"] != 2 || merged["failed"] != 1 {
		t.Fatalf("unexpected stats %v", merged)
	}
}
