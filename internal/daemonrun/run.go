// Package daemonrun wires the daemon process: logging, storage, the
// scheduler loop, the generation pipeline, and signal handling.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"paddock/internal/calendar"
	"paddock/internal/config"
	"paddock/internal/daemon"
	"paddock/internal/episodes"
	"paddock/internal/gags"
	"paddock/internal/generation"
	"paddock/internal/logging"
	"paddock/internal/pipeline"
	"paddock/internal/schedule"
	"paddock/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the paddock daemon runtime loop and blocks until the process
// receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "paddock.log")
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := logging.CleanupOldLogs(cfg.Paths.LogDir, cfg.Logging.RetentionDays); err != nil {
		logger.Warn("log cleanup", logging.Args(logging.Error(err))...)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "paddock.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	db, err := store.Open(cfg)
	if err != nil {
		logger.Error("open database", logging.Args(logging.Error(err))...)
		return err
	}
	defer db.Close()

	jobStore := schedule.NewStore(db)
	raceStore := calendar.NewStore(db)
	gagStore := gags.NewStore(db)
	episodeStore := episodes.NewStore(db)

	scheduler := schedule.NewScheduler(jobStore, raceStore, cfg, logger)
	coordinator := pipeline.New(pipeline.Deps{
		Config:    cfg,
		Episodes:  episodeStore,
		Gags:      gagStore,
		Selector:  gags.NewSelector(gagStore, raceStore, logger),
		Races:     raceStore,
		Script:    generation.NewScriptClient(cfg.Script),
		Image:     generation.NewImageClient(cfg.Image),
		Clips:     generation.NewClipClient(cfg.Video, cfg.Pipeline.ClipsPerMinute),
		Stitcher:  generation.NewFFmpegStitcher(cfg.FFmpegBinary()),
		Publisher: generation.NewPublisher(cfg.Publish),
		Staging:   generation.NewObjectStore(cfg.Paths.StagingDir),
		Assets:    generation.NewObjectStore(cfg.Paths.AssetsDir),
		Logger:    logger,
	})
	poller := schedule.NewPoller(scheduler, coordinator, cfg, logger)

	d, err := daemon.New(daemon.Deps{
		Config:    cfg,
		DB:        db,
		Jobs:      jobStore,
		Races:     raceStore,
		Gags:      gagStore,
		Episodes:  episodeStore,
		Scheduler: scheduler,
		Poller:    poller,
		Retrier:   coordinator,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed", logging.Args(logging.Error(err))...)
		return err
	}

	<-signalCtx.Done()
	logger.Info("paddock daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
