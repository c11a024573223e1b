package api

import (
	"time"

	"paddock/internal/calendar"
	"paddock/internal/episodes"
	"paddock/internal/gags"
	"paddock/internal/schedule"
)

// FromJob converts a scheduled job record to its API representation.
func FromJob(job *schedule.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:            job.ID,
		RaceID:        job.RaceID,
		TriggerKind:   string(job.TriggerKind),
		ScheduledFor:  FormatTime(job.ScheduledFor),
		Status:        string(job.Status),
		ScrapeContext: job.ScrapeContext,
		RetryCount:    job.RetryCount,
		MaxRetries:    job.MaxRetries,
		ErrorMessage:  job.ErrorMessage,
		EpisodeID:     job.EpisodeID,
		CreatedAt:     FormatTime(job.CreatedAt),
		UpdatedAt:     FormatTime(job.UpdatedAt),
	}
	if job.StartedAt != nil {
		dto.StartedAt = FormatTime(*job.StartedAt)
	}
	if job.FinishedAt != nil {
		dto.FinishedAt = FormatTime(*job.FinishedAt)
	}
	return dto
}

// FromJobs converts a slice of job records into API DTOs.
func FromJobs(jobs []*schedule.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromGag converts a running gag record to its API representation.
func FromGag(gag *gags.Gag) Gag {
	if gag == nil {
		return Gag{}
	}
	dto := Gag{
		ID:                  gag.ID,
		Name:                gag.Name,
		Description:         gag.Description,
		Category:            string(gag.Category),
		Character:           gag.Character,
		SecondaryCharacter:  gag.SecondaryCharacter,
		Setup:               gag.Setup,
		Punchline:           gag.Punchline,
		Variations:          gag.Variations,
		Origin:              gag.Origin,
		Tags:                gag.Tags,
		HumorRating:         gag.HumorRating,
		TimesUsed:           gag.TimesUsed,
		MaxUses:             gag.MaxUses,
		CooldownRaces:       gag.CooldownRaces,
		LastUsedSeason:      gag.LastUsedSeason,
		LastUsedRound:       gag.LastUsedRound,
		AudienceFamiliarity: gag.AudienceFamiliarity,
		Status:              string(gag.Status),
		CreatedAt:           FormatTime(gag.CreatedAt),
		UpdatedAt:           FormatTime(gag.UpdatedAt),
	}
	if gag.LastUsedAt != nil {
		dto.LastUsedAt = FormatTime(*gag.LastUsedAt)
	}
	return dto
}

// FromGags converts a slice of gag records into API DTOs.
func FromGags(list []*gags.Gag) []Gag {
	if len(list) == 0 {
		return nil
	}
	out := make([]Gag, 0, len(list))
	for _, gag := range list {
		out = append(out, FromGag(gag))
	}
	return out
}

// FromRace converts a calendar entry to its API representation.
func FromRace(race *calendar.Race) Race {
	if race == nil {
		return Race{}
	}
	dto := Race{
		ID:          race.ID,
		Season:      race.Season,
		Round:       race.Round,
		Name:        race.Name,
		Circuit:     race.Circuit,
		Country:     race.Country,
		WeekendKind: string(race.Kind()),
		RaceStart:   FormatTime(race.RaceStart),
	}
	if race.FP1Start != nil {
		dto.FP1Start = FormatTime(*race.FP1Start)
	}
	if race.FP2Start != nil {
		dto.FP2Start = FormatTime(*race.FP2Start)
	}
	if race.FP3Start != nil {
		dto.FP3Start = FormatTime(*race.FP3Start)
	}
	if race.SprintQualifyingStart != nil {
		dto.SprintQualifyingStart = FormatTime(*race.SprintQualifyingStart)
	}
	if race.SprintStart != nil {
		dto.SprintStart = FormatTime(*race.SprintStart)
	}
	if race.QualifyingStart != nil {
		dto.QualifyingStart = FormatTime(*race.QualifyingStart)
	}
	return dto
}

// FromRaces converts a slice of calendar entries into API DTOs.
func FromRaces(races []*calendar.Race) []Race {
	if len(races) == 0 {
		return nil
	}
	out := make([]Race, 0, len(races))
	for _, race := range races {
		out = append(out, FromRace(race))
	}
	return out
}

// FromEpisode converts an episode record to its API representation.
// Scenes are attached separately by callers that loaded them.
func FromEpisode(episode *episodes.Episode) Episode {
	if episode == nil {
		return Episode{}
	}
	dto := Episode{
		ID:           episode.ID,
		JobID:        episode.JobID,
		RaceID:       episode.RaceID,
		TriggerKind:  episode.TriggerKind,
		Title:        episode.Title,
		Status:       string(episode.Status),
		Stage:        string(episode.CurrentStage),
		SceneCount:   episode.SceneCount,
		VideoPath:    episode.VideoPath,
		PublishURL:   episode.PublishURL,
		ErrorMessage: episode.ErrorMessage,
		CreatedAt:    FormatTime(episode.CreatedAt),
		UpdatedAt:    FormatTime(episode.UpdatedAt),
	}
	if episode.PublishedAt != nil {
		dto.PublishedAt = FormatTime(*episode.PublishedAt)
	}
	return dto
}

// FromEpisodes converts a slice of episode records into API DTOs.
func FromEpisodes(list []*episodes.Episode) []Episode {
	if len(list) == 0 {
		return nil
	}
	out := make([]Episode, 0, len(list))
	for _, episode := range list {
		out = append(out, FromEpisode(episode))
	}
	return out
}

// FromScenes converts scene records into API DTOs.
func FromScenes(scenes []*episodes.Scene) []Scene {
	if len(scenes) == 0 {
		return nil
	}
	out := make([]Scene, 0, len(scenes))
	for _, scene := range scenes {
		out = append(out, Scene{
			Index:      scene.Index,
			Status:     string(scene.Status),
			RetryCount: scene.RetryCount,
			ImagePath:  scene.ImagePath,
			ClipPath:   scene.ClipPath,
		})
	}
	return out
}

// MergeJobStats produces a string-keyed representation of job stats.
func MergeJobStats(stats map[schedule.JobStatus]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
