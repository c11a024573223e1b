package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"paddock/internal/calendar"
	"paddock/internal/config"
	"paddock/internal/episodes"
	"paddock/internal/gags"
	"paddock/internal/generation"
	"paddock/internal/logging"
	"paddock/internal/schedule"
	"paddock/internal/services"
)

// Coordinator runs one scheduled job through the production pipeline:
// gather context, write the script, render every scene, stitch, publish,
// clean up. It implements schedule.JobRunner.
type Coordinator struct {
	cfg       *config.Config
	episodes  *episodes.Store
	gagStore  *gags.Store
	selector  *gags.Selector
	races     *calendar.Store
	script    generation.ScriptService
	image     generation.ImageService
	clips     generation.ClipService
	stitcher  generation.Stitcher
	publisher generation.Publisher
	staging   *generation.ObjectStore
	assets    *generation.ObjectStore
	logger    *slog.Logger
}

// Deps bundles the coordinator's collaborators.
type Deps struct {
	Config    *config.Config
	Episodes  *episodes.Store
	Gags      *gags.Store
	Selector  *gags.Selector
	Races     *calendar.Store
	Script    generation.ScriptService
	Image     generation.ImageService
	Clips     generation.ClipService
	Stitcher  generation.Stitcher
	Publisher generation.Publisher
	Staging   *generation.ObjectStore
	Assets    *generation.ObjectStore
	Logger    *slog.Logger
}

// New builds a coordinator.
func New(deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		cfg:       deps.Config,
		episodes:  deps.Episodes,
		gagStore:  deps.Gags,
		selector:  deps.Selector,
		races:     deps.Races,
		script:    deps.Script,
		image:     deps.Image,
		clips:     deps.Clips,
		stitcher:  deps.Stitcher,
		publisher: deps.Publisher,
		staging:   deps.Staging,
		assets:    deps.Assets,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Run produces the episode for a claimed job. A previous partial run for
// the same job is resumed from its last checkpoint rather than restarted.
func (c *Coordinator) Run(ctx context.Context, job *schedule.Job) (int64, error) {
	episode, err := c.findOrCreateEpisode(ctx, job)
	if err != nil {
		return 0, err
	}
	if episode.Status == episodes.StatusPublished {
		return episode.ID, nil
	}

	logger := logging.WithContext(ctx, c.logger).With(
		logging.Args(logging.Int64(logging.FieldEpisodeID, episode.ID))...)

	runErr := c.produce(ctx, job, episode, logger)
	if runErr == nil {
		return episode.ID, nil
	}

	if markErr := c.episodes.MarkFailed(ctx, episode.ID, runErr.Error()); markErr != nil {
		logger.Error("mark episode failed", logging.Args(logging.Error(markErr))...)
	}
	// When the job is out of road, give back the continuity budget: the
	// audience never saw these gags.
	if !services.IsRetryable(runErr) || !job.RetriesLeft() {
		c.rollbackGags(ctx, episode.ID, logger)
	}
	return episode.ID, runErr
}

func (c *Coordinator) produce(ctx context.Context, job *schedule.Job, episode *episodes.Episode, logger *slog.Logger) error {
	if episode.ScriptPath == "" {
		if err := c.runScriptStage(ctx, job, episode, logger); err != nil {
			return err
		}
	} else if episode.Status == episodes.StatusFailed {
		// Resuming after a failure with the script intact: rejoin at
		// the render stage.
		if err := c.episodes.Transition(ctx, episode.ID, episodes.StatusFailed, episodes.StatusRendering, episodes.StageScenes); err != nil {
			return err
		}
		episode.Status = episodes.StatusRendering
	}

	if episode.VideoPath == "" {
		// A crash right after the script was written leaves the status
		// at scripting with scenes already persisted.
		if episode.Status == episodes.StatusScripting {
			if err := c.episodes.Transition(ctx, episode.ID, episodes.StatusScripting, episodes.StatusRendering, episodes.StageScenes); err != nil {
				return err
			}
			episode.Status = episodes.StatusRendering
		}
		if err := c.runSceneStage(ctx, episode, logger); err != nil {
			return err
		}
		if err := c.runStitchStage(ctx, episode, logger); err != nil {
			return err
		}
	}

	if err := c.runPublishStage(ctx, episode, logger); err != nil {
		return err
	}
	c.cleanup(ctx, episode, logger)
	return nil
}

// RetryScenes re-renders the named scenes of a failed episode and, once
// every scene is complete again, resumes stitching and publishing. An
// empty scene list retries whatever failed.
func (c *Coordinator) RetryScenes(ctx context.Context, episodeID int64, sceneNumbers []int) error {
	episode, err := c.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return err
	}
	if episode.Status != episodes.StatusFailed {
		return services.Categorize(
			fmt.Errorf("episode %d is %s, only failed episodes can retry scenes", episodeID, episode.Status),
			services.ErrValidation)
	}
	if episode.ScriptPath == "" {
		return services.Categorize(
			fmt.Errorf("episode %d has no script to retry from", episodeID), services.ErrValidation)
	}

	logger := logging.WithContext(ctx, c.logger).With(
		logging.Args(logging.Int64(logging.FieldEpisodeID, episode.ID))...)

	requeued, err := c.episodes.RequeueScenes(ctx, episodeID, sceneNumbers)
	if err != nil {
		return err
	}
	logger.Info("scenes requeued", logging.Args(logging.Int("scenes", requeued))...)

	if err := c.episodes.Transition(ctx, episodeID, episodes.StatusFailed, episodes.StatusRendering, episodes.StageScenes); err != nil {
		return err
	}
	episode.Status = episodes.StatusRendering

	runErr := func() error {
		if err := c.runSceneStage(ctx, episode, logger); err != nil {
			return err
		}
		// Re-rendered scenes invalidate any previously stitched cut.
		if err := c.runStitchStage(ctx, episode, logger); err != nil {
			return err
		}
		return c.runPublishStage(ctx, episode, logger)
	}()
	if runErr != nil {
		if markErr := c.episodes.MarkFailed(ctx, episodeID, runErr.Error()); markErr != nil {
			logger.Error("mark episode failed", logging.Args(logging.Error(markErr))...)
		}
		return runErr
	}
	c.cleanup(ctx, episode, logger)
	return nil
}

func (c *Coordinator) findOrCreateEpisode(ctx context.Context, job *schedule.Job) (*episodes.Episode, error) {
	existing, err := c.episodes.GetByJobID(ctx, job.ID)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	jobID := job.ID
	episode := &episodes.Episode{
		JobID:       &jobID,
		RaceID:      job.RaceID,
		TriggerKind: string(job.TriggerKind),
		SceneCount:  c.cfg.Pipeline.SceneCount,
	}
	if _, err := c.episodes.Create(ctx, episode); err != nil {
		return nil, err
	}
	return episode, nil
}

// runScriptStage selects continuity, charges the selected gags, generates
// the script, and persists the scene breakdown.
func (c *Coordinator) runScriptStage(ctx context.Context, job *schedule.Job, episode *episodes.Episode, logger *slog.Logger) error {
	ctx = services.WithStage(ctx, string(episodes.StageScript))
	if err := c.episodes.Transition(ctx, episode.ID, episode.Status, episodes.StatusScripting, episodes.StageScript); err != nil {
		return err
	}
	episode.Status = episodes.StatusScripting

	season, round, raceName, err := c.episodeRound(ctx, job)
	if err != nil {
		return err
	}

	selected, err := c.selector.Eligible(ctx, gags.Query{
		Season: season,
		Round:  round,
		Limit:  c.cfg.Continuity.MaxGagsPerEpisode,
	})
	if err != nil {
		return err
	}

	// Charge the gags before generation starts. A second job selecting
	// concurrently must see these slots taken; a terminal failure later
	// refunds them through rollbackGags.
	for _, gag := range selected {
		usage := gags.Usage{
			GagID:     gag.ID,
			EpisodeID: episode.ID,
			Season:    season,
			Round:     round,
			Context:   job.ScrapeContext,
		}
		if err := c.gagStore.RecordUsage(ctx, usage); err != nil {
			return err
		}
	}

	req := generation.ScriptRequest{
		TriggerKind:   string(job.TriggerKind),
		ScrapeContext: job.ScrapeContext,
		RaceName:      raceName,
		Season:        season,
		Round:         round,
		SceneCount:    c.cfg.Pipeline.SceneCount,
		Gags:          gagBriefs(selected),
	}

	var script *generation.Script
	err = c.withStageRetry(ctx, "script", logger, func() error {
		var genErr error
		script, genErr = c.script.GenerateScript(ctx, req)
		return genErr
	})
	if err != nil {
		return err
	}

	scriptKey := path.Join(episodeKey(episode.ID), "script.json")
	scriptPath, err := c.staging.Save(scriptKey, scriptJSON(script))
	if err != nil {
		return err
	}
	if err := c.episodes.SetScript(ctx, episode.ID, scriptPath, script.Title, len(script.Scenes)); err != nil {
		return err
	}
	episode.ScriptPath = scriptPath
	episode.Title = script.Title

	scenes := make([]*episodes.Scene, len(script.Scenes))
	for i, prompt := range script.Scenes {
		scenes[i] = &episodes.Scene{Index: prompt.Index, Prompt: prompt.Prompt, Dialogue: prompt.Dialogue}
	}
	if err := c.episodes.ReplaceScenes(ctx, episode.ID, scenes); err != nil {
		return err
	}

	logger.Info("script ready",
		logging.Args(logging.String("title", script.Title), logging.Int("gags", len(selected)))...)

	if err := c.episodes.Transition(ctx, episode.ID, episodes.StatusScripting, episodes.StatusRendering, episodes.StageScenes); err != nil {
		return err
	}
	episode.Status = episodes.StatusRendering
	return nil
}

// runSceneStage renders every scene: still first, then the animated clip.
// Scenes fan out concurrently with a bounded worker count, and failed
// scenes are retried until their per-scene budget runs out.
func (c *Coordinator) runSceneStage(ctx context.Context, episode *episodes.Episode, logger *slog.Logger) error {
	ctx = services.WithStage(ctx, string(episodes.StageScenes))

	for attempt := 0; attempt <= c.cfg.Pipeline.SceneMaxRetries; attempt++ {
		scenes, err := c.episodes.Scenes(ctx, episode.ID)
		if err != nil {
			return err
		}
		pending := pendingScenes(scenes)
		if len(pending) == 0 {
			break
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(c.cfg.Pipeline.SceneFanout)
		for _, scene := range pending {
			scene := scene
			group.Go(func() error {
				if err := c.renderScene(groupCtx, episode.ID, scene, logger); err != nil {
					if markErr := c.episodes.MarkSceneFailed(groupCtx, scene.ID, err.Error()); markErr != nil {
						return markErr
					}
					logger.Warn("scene render failed",
						logging.Args(logging.Int(logging.FieldSceneIndex, scene.Index), logging.Error(err))...)
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		reset, err := c.episodes.ResetFailedScenes(ctx, episode.ID, c.cfg.Pipeline.SceneMaxRetries)
		if err != nil {
			return err
		}
		if reset == 0 {
			break
		}
	}

	scenes, err := c.episodes.Scenes(ctx, episode.ID)
	if err != nil {
		return err
	}
	failed := 0
	for _, scene := range scenes {
		if scene.Status != episodes.SceneStatusComplete {
			failed++
		}
	}
	if failed > 0 {
		return services.Categorize(
			fmt.Errorf("%d of %d scenes failed to render", failed, len(scenes)), services.ErrTransient)
	}
	logger.Info("all scenes rendered", logging.Args(logging.Int("scenes", len(scenes)))...)
	return nil
}

// renderScene produces the still and clip for one scene, skipping whatever
// a previous run already checkpointed.
func (c *Coordinator) renderScene(ctx context.Context, episodeID int64, scene *episodes.Scene, logger *slog.Logger) error {
	imagePath := scene.ImagePath
	if imagePath == "" {
		var imageData []byte
		err := c.withStageRetry(ctx, "image", logger, func() error {
			var genErr error
			imageData, genErr = c.image.GenerateImage(ctx, generation.ImageRequest{Prompt: scene.Prompt})
			return genErr
		})
		if err != nil {
			return err
		}
		imagePath, err = c.staging.Save(sceneKey(episodeID, scene.Index, "png"), imageData)
		if err != nil {
			return err
		}
		if err := c.episodes.SetSceneImage(ctx, scene.ID, imagePath); err != nil {
			return err
		}
	}

	imageData, err := readStaged(imagePath)
	if err != nil {
		return err
	}

	jobRef, err := c.clips.Submit(ctx, generation.ClipRequest{
		Image:    imageData,
		Prompt:   scene.Prompt,
		Dialogue: scene.Dialogue,
	})
	if err != nil {
		return err
	}

	videoURL, err := c.awaitClip(ctx, jobRef)
	if err != nil {
		return err
	}
	clipData, err := c.clips.Fetch(ctx, videoURL)
	if err != nil {
		return err
	}
	clipPath, err := c.staging.Save(sceneKey(episodeID, scene.Index, "mp4"), clipData)
	if err != nil {
		return err
	}
	return c.episodes.SetSceneClip(ctx, scene.ID, clipPath)
}

// awaitClip polls an async clip job until it finishes or times out.
func (c *Coordinator) awaitClip(ctx context.Context, jobRef string) (string, error) {
	interval := time.Duration(c.cfg.Pipeline.ClipPollIntervalSeconds) * time.Second
	timeout := time.Duration(c.cfg.Pipeline.ClipTimeoutSeconds) * time.Second
	deadline := time.Now().Add(timeout)

	for {
		status, err := c.clips.Poll(ctx, jobRef)
		if err != nil {
			return "", err
		}
		if status.Done {
			return status.VideoURL, nil
		}
		if status.Failed {
			return "", services.Categorize(
				fmt.Errorf("clip %s failed: %s", jobRef, status.Message), services.ErrTransient)
		}
		if time.Now().After(deadline) {
			return "", services.Categorize(
				fmt.Errorf("clip %s timed out after %s", jobRef, timeout), services.ErrTransient)
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (c *Coordinator) runStitchStage(ctx context.Context, episode *episodes.Episode, logger *slog.Logger) error {
	ctx = services.WithStage(ctx, string(episodes.StageStitch))
	if episode.Status != episodes.StatusStitching {
		if err := c.episodes.Transition(ctx, episode.ID, episode.Status, episodes.StatusStitching, episodes.StageStitch); err != nil {
			return err
		}
		episode.Status = episodes.StatusStitching
	}

	scenes, err := c.episodes.Scenes(ctx, episode.ID)
	if err != nil {
		return err
	}
	clipPaths := make([]string, 0, len(scenes))
	for _, scene := range scenes {
		clipPaths = append(clipPaths, scene.ClipPath)
	}

	outPath := c.assets.PathFor(path.Join(episodeKey(episode.ID), "episode.mp4"))
	err = c.withStageRetry(ctx, "stitch", logger, func() error {
		return c.stitcher.Stitch(ctx, clipPaths, outPath)
	})
	if err != nil {
		return err
	}
	if err := c.episodes.SetVideo(ctx, episode.ID, outPath); err != nil {
		return err
	}
	episode.VideoPath = outPath
	logger.Info("episode stitched", logging.Args(logging.String("video", outPath))...)
	return nil
}

func (c *Coordinator) runPublishStage(ctx context.Context, episode *episodes.Episode, logger *slog.Logger) error {
	ctx = services.WithStage(ctx, string(episodes.StagePublish))

	if !c.cfg.Publish.Enabled {
		// No upload target configured: the stitched file is the deliverable.
		if err := c.episodes.MarkPublished(ctx, episode.ID, ""); err != nil {
			return err
		}
		episode.Status = episodes.StatusPublished
		logger.Info("episode finished without upload")
		return nil
	}

	if episode.Status != episodes.StatusPublishing {
		if err := c.episodes.Transition(ctx, episode.ID, episode.Status, episodes.StatusPublishing, episodes.StagePublish); err != nil {
			return err
		}
		episode.Status = episodes.StatusPublishing
	}

	var publishURL string
	err := c.withStageRetry(ctx, "publish", logger, func() error {
		var pubErr error
		publishURL, pubErr = c.publisher.Publish(ctx, episode.VideoPath, generation.PublishMeta{
			Title:       episode.Title,
			Description: fmt.Sprintf("Automated satirical episode (%s).", episode.TriggerKind),
		})
		return pubErr
	})
	if err != nil {
		return err
	}
	if err := c.episodes.MarkPublished(ctx, episode.ID, publishURL); err != nil {
		return err
	}
	episode.Status = episodes.StatusPublished
	logger.Info("episode published", logging.Args(logging.String("url", publishURL))...)
	return nil
}

// cleanup drops the episode's staged intermediates. The stitched file in
// the assets store survives. Failure here never fails the job.
func (c *Coordinator) cleanup(ctx context.Context, episode *episodes.Episode, logger *slog.Logger) {
	_ = services.WithStage(ctx, string(episodes.StageCleanup))
	if err := c.staging.RemovePrefix(episodeKey(episode.ID)); err != nil {
		logger.Warn("cleanup staging", logging.Args(logging.Error(err))...)
	}
}

// withStageRetry retries a stage operation with exponential backoff. Only
// transient failures are retried.
func (c *Coordinator) withStageRetry(ctx context.Context, stage string, logger *slog.Logger, op func() error) error {
	attempts := c.cfg.Pipeline.StageAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Duration(c.cfg.Pipeline.StageBackoffSeconds) * time.Second
	maxBackoff := time.Duration(c.cfg.Pipeline.StageBackoffMaxSeconds) * time.Second

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !services.IsRetryable(lastErr) || attempt == attempts {
			break
		}
		logger.Warn("stage attempt failed",
			logging.Args(
				logging.String(logging.FieldStage, stage),
				logging.Int("attempt", attempt),
				logging.Duration("backoff", backoff),
				logging.Error(lastErr),
			)...)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := backoff * 2; next <= maxBackoff {
			backoff = next
		} else {
			backoff = maxBackoff
		}
	}
	return lastErr
}

func (c *Coordinator) rollbackGags(ctx context.Context, episodeID int64, logger *slog.Logger) {
	used, err := c.gagStore.UsedInEpisode(ctx, episodeID)
	if err != nil {
		logger.Error("load gag usage for rollback", logging.Args(logging.Error(err))...)
		return
	}
	for _, gagID := range used {
		if err := c.gagStore.RollbackUsage(ctx, gagID, episodeID); err != nil {
			logger.Error("rollback gag usage",
				logging.Args(logging.Int64("gag_id", gagID), logging.Error(err))...)
		}
	}
	if len(used) > 0 {
		logger.Info("gag usage rolled back", logging.Args(logging.Int("gags", len(used)))...)
	}
}

// episodeRound resolves the (season, round) an episode belongs to. Jobs
// without a race anchor to the most recent completed round.
func (c *Coordinator) episodeRound(ctx context.Context, job *schedule.Job) (season, round int, raceName string, err error) {
	if job.RaceID != nil {
		race, raceErr := c.races.GetByID(ctx, *job.RaceID)
		if raceErr != nil {
			return 0, 0, "", raceErr
		}
		return race.Season, race.Round, race.Name, nil
	}
	race, raceErr := c.races.LatestBefore(ctx, time.Now())
	if raceErr != nil {
		if isNotFound(raceErr) {
			return time.Now().Year(), 0, "", nil
		}
		return 0, 0, "", raceErr
	}
	return race.Season, race.Round, "", nil
}
