package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"paddock/internal/api"
	"paddock/internal/calendar"
	"paddock/internal/config"
	"paddock/internal/episodes"
	"paddock/internal/gags"
	"paddock/internal/logging"
	"paddock/internal/schedule"
	"paddock/internal/store"
)

// calendarSyncInterval is how often the daemon re-plans jobs from the
// stored calendar while running. Startup always syncs once immediately.
const calendarSyncInterval = 6 * time.Hour

// staleHeartbeatAge is how old a running job's heartbeat may be before a
// starting daemon reclaims it as a crash leftover.
const staleHeartbeatAge = 5 * time.Minute

// Daemon coordinates the scheduler loop and the API server, and enforces
// single-instance execution via a lock file.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *store.DB
	scheduler *schedule.Scheduler
	poller    *schedule.Poller

	jobSvc     *api.JobService
	gagSvc     *api.GagService
	raceSvc    *api.CalendarService
	episodeSvc *api.EpisodeService

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	runCtx  context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	JobStats     map[string]int
	NextJob      *api.Job
}

// Deps bundles the daemon's collaborators.
type Deps struct {
	Config    *config.Config
	DB        *store.DB
	Jobs      *schedule.Store
	Races     *calendar.Store
	Gags      *gags.Store
	Episodes  *episodes.Store
	Scheduler *schedule.Scheduler
	Poller    *schedule.Poller
	Retrier   api.SceneRetrier
	Logger    *slog.Logger
}

// New constructs a daemon with initialized dependencies.
func New(deps Deps) (*Daemon, error) {
	if deps.Config == nil || deps.DB == nil || deps.Scheduler == nil || deps.Poller == nil {
		return nil, errors.New("daemon requires config, store, scheduler, and poller")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(deps.Config.Paths.DataDir, "paddockd.lock")
	return &Daemon{
		cfg:        deps.Config,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		db:         deps.DB,
		scheduler:  deps.Scheduler,
		poller:     deps.Poller,
		jobSvc:     api.NewJobService(deps.Jobs, deps.Races, deps.Scheduler),
		gagSvc:     api.NewGagService(deps.Gags, deps.Races),
		raceSvc:    api.NewCalendarService(deps.Races),
		episodeSvc: api.NewEpisodeService(deps.Episodes, deps.Retrier),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, recovers crashed jobs, performs an
// initial calendar sync, and launches the poll loop. It returns once the
// background goroutines are running.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another paddock daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.runCtx = runCtx
	d.cancel = cancel

	recovered, err := d.scheduler.RecoverStale(runCtx, time.Now().Add(-staleHeartbeatAge))
	if err != nil {
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("recover stale jobs: %w", err)
	}
	if recovered > 0 {
		d.logger.Info("recovered orphaned jobs", logging.Args(logging.Int("count", recovered))...)
	}

	if _, err := d.scheduler.SyncCalendar(runCtx, time.Now()); err != nil {
		d.logger.Warn("initial calendar sync", logging.Args(logging.Error(err))...)
	}

	server, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.releaseLock()
		cancel()
		d.cancel = nil
		return err
	}
	if server != nil {
		if err := server.start(runCtx); err != nil {
			d.releaseLock()
			cancel()
			d.cancel = nil
			return err
		}
		d.api = server
	}

	go d.syncLoop(runCtx)
	go func() {
		if err := d.poller.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("poller stopped", logging.Args(logging.Error(err))...)
		}
	}()

	d.running.Store(true)
	d.logger.Info("paddock daemon started", logging.Args(logging.String("lock", d.lockPath))...)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.api = nil
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("paddock daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Args(logging.Error(err))...)
	}
}

func (d *Daemon) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(calendarSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			result, err := d.scheduler.SyncCalendar(ctx, time.Now())
			if err != nil {
				d.logger.Error("calendar sync", logging.Args(logging.Error(err))...)
				continue
			}
			if result.RaceJobs > 0 || result.Recaps > 0 {
				d.logger.Info("calendar sync planned jobs",
					logging.Args(
						logging.Int("race_jobs", result.RaceJobs),
						logging.Int("recaps", result.Recaps),
					)...)
			}
		case <-ctx.Done():
			return
		}
	}
}

// APIAddr returns the API server's bound address, empty when disabled.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
	if stats, err := d.jobSvc.Stats(ctx); err == nil {
		status.JobStats = stats
	}
	if next, err := d.jobSvc.NextUp(ctx); err == nil {
		status.NextJob = next
	}
	return status
}
