package schedule

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"paddock/internal/config"
	"paddock/internal/logging"
	"paddock/internal/services"
)

// JobRunner executes one claimed job end to end and returns the episode it
// produced. The pipeline coordinator implements this.
type JobRunner interface {
	Run(ctx context.Context, job *Job) (episodeID int64, err error)
}

// Poller drives the scheduler loop: claim due jobs, fan them out to a
// bounded worker pool, and apply retry policy on failure.
type Poller struct {
	scheduler *Scheduler
	runner    JobRunner
	cfg       *config.Config
	logger    *slog.Logger
}

// NewPoller wires the scheduler to a job runner.
func NewPoller(scheduler *Scheduler, runner JobRunner, cfg *config.Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		scheduler: scheduler,
		runner:    runner,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "poller"),
	}
}

// Start runs the poll loop until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	interval := time.Duration(p.cfg.Workflow.JobPollInterval) * time.Second
	errorInterval := time.Duration(p.cfg.Workflow.ErrorRetryInterval) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("poll tick", logging.Args(logging.Error(err))...)
			select {
			case <-time.After(errorInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tick claims one batch of due jobs and processes it to completion.
func (p *Poller) Tick(ctx context.Context) error {
	claimed, err := p.scheduler.ClaimDue(ctx, time.Now())
	if err != nil {
		return err
	}
	if len(claimed) == 0 {
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.cfg.Scheduler.Workers)
	for _, job := range claimed {
		job := job
		group.Go(func() error {
			p.process(groupCtx, job)
			return nil
		})
	}
	return group.Wait()
}

// process runs one job with a heartbeat keeping the claim fresh.
func (p *Poller) process(ctx context.Context, job *Job) {
	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("job started",
		logging.Args(logging.String(logging.FieldTriggerKind, string(job.TriggerKind)))...)

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go p.heartbeat(heartbeatCtx, job.ID)

	episodeID, runErr := p.runner.Run(ctx, job)
	stopHeartbeat()

	if runErr != nil {
		if err := p.scheduler.HandleFailure(ctx, job, runErr); err != nil {
			logger.Error("apply failure policy", logging.Args(logging.Error(err))...)
		}
		return
	}
	if err := p.scheduler.Jobs().MarkCompleted(ctx, job.ID, episodeID); err != nil {
		logger.Error("mark job completed", logging.Args(logging.Error(err))...)
		return
	}
	logger.Info("job completed", logging.Args(logging.Int64(logging.FieldEpisodeID, episodeID))...)
}

func (p *Poller) heartbeat(ctx context.Context, jobID int64) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.scheduler.Jobs().Heartbeat(ctx, jobID); err != nil {
				p.logger.Warn("heartbeat",
					logging.Args(logging.Int64(logging.FieldJobID, jobID), logging.Error(err))...)
			}
		case <-ctx.Done():
			return
		}
	}
}
