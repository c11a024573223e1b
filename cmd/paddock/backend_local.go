package main

import (
	"context"
	"errors"
	"os"

	"paddock/internal/api"
	"paddock/internal/calendar"
	"paddock/internal/config"
	"paddock/internal/episodes"
	"paddock/internal/gags"
	"paddock/internal/schedule"
	"paddock/internal/store"
)

// localBackend serves CLI commands straight from the database when no
// daemon is running. Triggered jobs stay scheduled until a daemon picks
// them up.
type localBackend struct {
	cfg *config.Config
	db  *store.DB

	jobSvc     *api.JobService
	gagSvc     *api.GagService
	raceSvc    *api.CalendarService
	episodeSvc *api.EpisodeService
}

func newLocalBackend(cfg *config.Config) (*localBackend, error) {
	db, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	jobs := schedule.NewStore(db)
	races := calendar.NewStore(db)
	scheduler := schedule.NewScheduler(jobs, races, cfg, nil)
	return &localBackend{
		cfg:        cfg,
		db:         db,
		jobSvc:     api.NewJobService(jobs, races, scheduler),
		gagSvc:     api.NewGagService(gags.NewStore(db), races),
		raceSvc:    api.NewCalendarService(races),
		episodeSvc: api.NewEpisodeService(episodes.NewStore(db), nil),
	}, nil
}

func (b *localBackend) Status(ctx context.Context) (*api.DaemonStatus, error) {
	status := &api.DaemonStatus{
		Running:      false,
		PID:          os.Getpid(),
		DatabasePath: b.cfg.DatabasePath(),
	}
	stats, err := b.jobSvc.Stats(ctx)
	if err != nil {
		return nil, err
	}
	status.JobStats = stats
	if next, err := b.jobSvc.NextUp(ctx); err == nil {
		status.NextJob = next
	}
	return status, nil
}

func (b *localBackend) ListJobs(ctx context.Context, status, kind string, limit int) ([]api.Job, error) {
	return b.jobSvc.List(ctx, status, kind, limit)
}

func (b *localBackend) UpcomingJobs(ctx context.Context, limit int) ([]api.Job, error) {
	return b.jobSvc.Upcoming(ctx, limit)
}

func (b *localBackend) DescribeJob(ctx context.Context, id int64) (*api.Job, error) {
	job, err := b.jobSvc.Describe(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errors.New("job not found")
	}
	return job, nil
}

func (b *localBackend) TriggerJob(ctx context.Context, req api.TriggerRequest) (*api.Job, error) {
	return b.jobSvc.Trigger(ctx, req)
}

func (b *localBackend) TriggerExistingJob(ctx context.Context, id int64) (*api.Job, error) {
	return b.jobSvc.TriggerExisting(ctx, id)
}

func (b *localBackend) CancelJob(ctx context.Context, id int64) error {
	return b.jobSvc.Cancel(ctx, id)
}

func (b *localBackend) ListGags(ctx context.Context, status, category, character string) ([]api.Gag, error) {
	return b.gagSvc.List(ctx, status, category, character)
}

func (b *localBackend) DescribeGag(ctx context.Context, id int64) (*api.Gag, error) {
	gag, err := b.gagSvc.Describe(ctx, id)
	if err != nil {
		return nil, err
	}
	if gag == nil {
		return nil, errors.New("gag not found")
	}
	return gag, nil
}

func (b *localBackend) CreateGag(ctx context.Context, req api.GagRequest) (*api.Gag, error) {
	return b.gagSvc.Create(ctx, req)
}

func (b *localBackend) RateGag(ctx context.Context, id, episodeID int64, sceneIndex int, rating float64) (*api.Gag, error) {
	return b.gagSvc.RateUsage(ctx, id, episodeID, sceneIndex, rating)
}

func (b *localBackend) RetireGag(ctx context.Context, id int64) error {
	return b.gagSvc.Retire(ctx, id)
}

func (b *localBackend) ReviveGag(ctx context.Context, id int64) error {
	return b.gagSvc.Revive(ctx, id)
}

func (b *localBackend) ListRaces(ctx context.Context, season int) ([]api.Race, error) {
	return b.raceSvc.ListSeason(ctx, season)
}

func (b *localBackend) UpsertRace(ctx context.Context, req api.RaceRequest) (*api.Race, error) {
	return b.raceSvc.Upsert(ctx, req)
}

func (b *localBackend) SyncCalendar(ctx context.Context) (*api.SyncResponse, error) {
	return b.jobSvc.Sync(ctx)
}

func (b *localBackend) ListEpisodes(ctx context.Context, status string, limit int) ([]api.Episode, error) {
	return b.episodeSvc.List(ctx, status, limit)
}

func (b *localBackend) DescribeEpisode(ctx context.Context, id int64) (*api.Episode, error) {
	episode, err := b.episodeSvc.Describe(ctx, id)
	if err != nil {
		return nil, err
	}
	if episode == nil {
		return nil, errors.New("episode not found")
	}
	return episode, nil
}

func (b *localBackend) Close() error {
	return b.db.Close()
}
