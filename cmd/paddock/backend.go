package main

import (
	"context"

	"paddock/internal/api"
)

// backend abstracts where CLI commands read and write state: a running
// daemon over HTTP, or the database directly when no daemon is up.
type backend interface {
	Status(ctx context.Context) (*api.DaemonStatus, error)

	ListJobs(ctx context.Context, status, kind string, limit int) ([]api.Job, error)
	UpcomingJobs(ctx context.Context, limit int) ([]api.Job, error)
	DescribeJob(ctx context.Context, id int64) (*api.Job, error)
	TriggerJob(ctx context.Context, req api.TriggerRequest) (*api.Job, error)
	TriggerExistingJob(ctx context.Context, id int64) (*api.Job, error)
	CancelJob(ctx context.Context, id int64) error

	ListGags(ctx context.Context, status, category, character string) ([]api.Gag, error)
	DescribeGag(ctx context.Context, id int64) (*api.Gag, error)
	CreateGag(ctx context.Context, req api.GagRequest) (*api.Gag, error)
	RateGag(ctx context.Context, id, episodeID int64, sceneIndex int, rating float64) (*api.Gag, error)
	RetireGag(ctx context.Context, id int64) error
	ReviveGag(ctx context.Context, id int64) error

	ListRaces(ctx context.Context, season int) ([]api.Race, error)
	UpsertRace(ctx context.Context, req api.RaceRequest) (*api.Race, error)
	SyncCalendar(ctx context.Context) (*api.SyncResponse, error)

	ListEpisodes(ctx context.Context, status string, limit int) ([]api.Episode, error)
	DescribeEpisode(ctx context.Context, id int64) (*api.Episode, error)

	Close() error
}
