package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"paddock/internal/calendar"
	"paddock/internal/schedule"
	"paddock/internal/services"
)

// JobScheduler abstracts the scheduler operations the API exposes.
type JobScheduler interface {
	SyncCalendar(ctx context.Context, now time.Time) (schedule.SyncResult, error)
	TriggerNow(ctx context.Context, kind schedule.TriggerKind, raceID *int64, scrapeContext string) (*schedule.Job, error)
	TriggerJob(ctx context.Context, id int64) (*schedule.Job, error)
}

// JobService exposes scheduled job operations returning API DTOs.
type JobService struct {
	jobs      *schedule.Store
	races     *calendar.Store
	scheduler JobScheduler
}

// NewJobService constructs a JobService around the provided stores.
func NewJobService(jobs *schedule.Store, races *calendar.Store, scheduler JobScheduler) *JobService {
	if jobs == nil {
		return nil
	}
	return &JobService{jobs: jobs, races: races, scheduler: scheduler}
}

// List returns jobs filtered by status and trigger kind.
func (s *JobService) List(ctx context.Context, status, kind string, limit int) ([]Job, error) {
	if s == nil || s.jobs == nil {
		return nil, nil
	}
	filter := schedule.ListFilter{
		Status: schedule.JobStatus(strings.TrimSpace(status)),
		Kind:   schedule.TriggerKind(strings.TrimSpace(kind)),
		Limit:  limit,
	}
	jobs, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.withRaceLabels(ctx, FromJobs(jobs)), nil
}

// Describe fetches a single job.
func (s *JobService) Describe(ctx context.Context, id int64) (*Job, error) {
	if s == nil || s.jobs == nil {
		return nil, nil
	}
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	dtos := s.withRaceLabels(ctx, []Job{FromJob(job)})
	return &dtos[0], nil
}

// Trigger queues an immediate production run.
func (s *JobService) Trigger(ctx context.Context, req TriggerRequest) (*Job, error) {
	if s == nil || s.scheduler == nil {
		return nil, services.Categorize(errors.New("scheduler unavailable"), services.ErrConfiguration)
	}
	job, err := s.scheduler.TriggerNow(ctx, schedule.TriggerKind(strings.TrimSpace(req.TriggerKind)), req.RaceID, req.ScrapeContext)
	if err != nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}

// TriggerExisting forces an already planned scheduled or failed job to run
// immediately.
func (s *JobService) TriggerExisting(ctx context.Context, id int64) (*Job, error) {
	if s == nil || s.scheduler == nil {
		return nil, services.Categorize(errors.New("scheduler unavailable"), services.ErrConfiguration)
	}
	job, err := s.scheduler.TriggerJob(ctx, id)
	if err != nil {
		return nil, err
	}
	dtos := s.withRaceLabels(ctx, []Job{FromJob(job)})
	return &dtos[0], nil
}

// Cancel cancels a scheduled job that has not started.
func (s *JobService) Cancel(ctx context.Context, id int64) error {
	if s == nil || s.jobs == nil {
		return services.Categorize(errors.New("job store unavailable"), services.ErrConfiguration)
	}
	return s.jobs.Cancel(ctx, id)
}

// Sync refreshes the job plan from the stored calendar.
func (s *JobService) Sync(ctx context.Context) (*SyncResponse, error) {
	if s == nil || s.scheduler == nil {
		return nil, services.Categorize(errors.New("scheduler unavailable"), services.ErrConfiguration)
	}
	result, err := s.scheduler.SyncCalendar(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	return &SyncResponse{
		RaceJobs: result.RaceJobs,
		Recaps:   result.Recaps,
		Skipped:  result.Skipped,
	}, nil
}

// Upcoming returns scheduled jobs due soonest first.
func (s *JobService) Upcoming(ctx context.Context, limit int) ([]Job, error) {
	if s == nil || s.jobs == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	jobs, err := s.jobs.Upcoming(ctx, time.Now(), limit)
	if err != nil {
		return nil, err
	}
	return s.withRaceLabels(ctx, FromJobs(jobs)), nil
}

// Stats returns job summary counts keyed by status string.
func (s *JobService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.jobs == nil {
		return nil, nil
	}
	stats, err := s.jobs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeJobStats(stats), nil
}

// NextUp returns the next scheduled job, if any.
func (s *JobService) NextUp(ctx context.Context) (*Job, error) {
	if s == nil || s.jobs == nil {
		return nil, nil
	}
	jobs, err := s.jobs.Upcoming(ctx, time.Now(), 1)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	dtos := s.withRaceLabels(ctx, []Job{FromJob(jobs[0])})
	return &dtos[0], nil
}

func (s *JobService) withRaceLabels(ctx context.Context, jobs []Job) []Job {
	if s.races == nil {
		return jobs
	}
	labels := make(map[int64]string)
	for i, job := range jobs {
		if job.RaceID == nil {
			continue
		}
		label, ok := labels[*job.RaceID]
		if !ok {
			race, err := s.races.GetByID(ctx, *job.RaceID)
			if err != nil {
				continue
			}
			label = race.Label()
			labels[*job.RaceID] = label
		}
		jobs[i].RaceLabel = label
	}
	return jobs
}
