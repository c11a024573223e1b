package schedule

import (
	"fmt"
	"time"
)

// TriggerKind names what prompted an episode to be produced.
type TriggerKind string

const (
	TriggerPostFP2     TriggerKind = "post-fp2"
	TriggerPostSprint  TriggerKind = "post-sprint"
	TriggerPostRace    TriggerKind = "post-race"
	TriggerWeeklyRecap TriggerKind = "weekly-recap"
	TriggerManual      TriggerKind = "manual"
)

var validTriggerKinds = map[TriggerKind]struct{}{
	TriggerPostFP2:     {},
	TriggerPostSprint:  {},
	TriggerPostRace:    {},
	TriggerWeeklyRecap: {},
	TriggerManual:      {},
}

// ValidTriggerKind reports whether kind is one of the known triggers.
func ValidTriggerKind(kind TriggerKind) bool {
	_, ok := validTriggerKinds[kind]
	return ok
}

// DefaultScrapeContext describes what source material a trigger's scrape
// should focus on when the job carries no explicit context.
func DefaultScrapeContext(kind TriggerKind) string {
	switch kind {
	case TriggerPostFP2:
		return "friday practice headlines, driver quotes, paddock rumors"
	case TriggerPostSprint:
		return "sprint result, grid fallout, sprint incidents"
	case TriggerPostRace:
		return "race result, podium interviews, stewards decisions, championship swing"
	case TriggerWeeklyRecap:
		return "week in review, silly season, social media beefs"
	default:
		return "latest paddock news"
	}
}

// JobStatus tracks a scheduled job's lifecycle.
type JobStatus string

const (
	JobScheduled JobStatus = "scheduled"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobScheduled: {JobRunning, JobCancelled},
	JobRunning:   {JobCompleted, JobFailed, JobScheduled},
	JobFailed:    {JobScheduled},
}

// CanTransition reports whether a job may move between two statuses.
// Running back to scheduled is the retry path.
func CanTransition(from, to JobStatus) bool {
	for _, allowed := range jobTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the job.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is one planned episode production run. FirstScheduledFor keeps the
// original slot: Reschedule overwrites ScheduledFor on every retry, and the
// backoff ladder anchors to where the job was first planned.
type Job struct {
	ID                int64
	RaceID            *int64
	TriggerKind       TriggerKind
	ScheduledFor      time.Time
	FirstScheduledFor time.Time
	Status            JobStatus
	ScrapeContext     string
	RetryCount        int
	MaxRetries        int
	ErrorMessage      string
	EpisodeID         *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	StartedAt         *time.Time
	FinishedAt        *time.Time
	LastHeartbeat     *time.Time
}

// RetriesLeft reports whether the job still has retry budget. MaxRetries
// counts total attempts, and the failing attempt being handled is not yet
// reflected in RetryCount, so the attempt about to be scheduled must still
// fit under the cap.
func (j *Job) RetriesLeft() bool {
	return j.RetryCount+1 < j.MaxRetries
}

// Label renders a short identifier for logs and tables.
func (j *Job) Label() string {
	if j.RaceID != nil {
		return fmt.Sprintf("job %d (%s, race %d)", j.ID, j.TriggerKind, *j.RaceID)
	}
	return fmt.Sprintf("job %d (%s)", j.ID, j.TriggerKind)
}
