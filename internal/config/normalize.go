package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScheduler()
	c.normalizeContinuity()
	c.normalizePipeline()
	c.normalizeServices()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AssetsDir) == "" {
		c.Paths.AssetsDir = defaultAssetsDir
	}
	if c.Paths.AssetsDir, err = expandPath(c.Paths.AssetsDir); err != nil {
		return fmt.Errorf("paths.assets_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeScheduler() {
	s := &c.Scheduler
	s.Timezone = strings.TrimSpace(s.Timezone)
	if s.Timezone == "" {
		s.Timezone = defaultTimezone
	}
	if s.LookaheadDays <= 0 {
		s.LookaheadDays = defaultLookaheadDays
	}
	if s.PostFP2DelayMinutes < 0 {
		s.PostFP2DelayMinutes = defaultPostFP2DelayMinutes
	}
	if s.PostSprintDelayMinutes < 0 {
		s.PostSprintDelayMinutes = defaultPostSprintDelayMinutes
	}
	if s.PostRaceDelayMinutes < 0 {
		s.PostRaceDelayMinutes = defaultPostRaceDelayMinutes
	}
	if s.OffWeekGapThresholdDays <= 0 {
		s.OffWeekGapThresholdDays = defaultOffWeekGapThresholdDays
	}
	s.OffWeekWeekday = strings.ToLower(strings.TrimSpace(s.OffWeekWeekday))
	if s.OffWeekWeekday == "" {
		s.OffWeekWeekday = defaultOffWeekWeekday
	}
	if s.OffWeekHour < 0 || s.OffWeekHour > 23 {
		s.OffWeekHour = defaultOffWeekHour
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = defaultMaxRetries
	}
	if s.RetryBackoffMinutes <= 0 {
		s.RetryBackoffMinutes = defaultRetryBackoffMinutes
	}
	if s.PendingBatchSize <= 0 {
		s.PendingBatchSize = defaultPendingBatchSize
	}
	if s.Workers <= 0 {
		s.Workers = defaultSchedulerWorkers
	}
}

func (c *Config) normalizeContinuity() {
	if c.Continuity.MaxGagsPerEpisode <= 0 {
		c.Continuity.MaxGagsPerEpisode = defaultMaxGagsPerEpisode
	}
	if c.Continuity.DefaultCooldownRaces <= 0 {
		c.Continuity.DefaultCooldownRaces = defaultCooldownRaces
	}
}

func (c *Config) normalizePipeline() {
	p := &c.Pipeline
	if p.SceneCount <= 0 {
		p.SceneCount = defaultSceneCount
	}
	if p.SceneFanout <= 0 {
		p.SceneFanout = defaultSceneFanout
	}
	if p.SceneMaxRetries <= 0 {
		p.SceneMaxRetries = defaultSceneMaxRetries
	}
	if p.StageAttempts <= 0 {
		p.StageAttempts = defaultStageAttempts
	}
	if p.StageBackoffSeconds <= 0 {
		p.StageBackoffSeconds = defaultStageBackoffSeconds
	}
	if p.StageBackoffMaxSeconds <= 0 {
		p.StageBackoffMaxSeconds = defaultStageBackoffMax
	}
	if p.ClipPollIntervalSeconds <= 0 {
		p.ClipPollIntervalSeconds = defaultClipPollInterval
	}
	if p.ClipTimeoutSeconds <= 0 {
		p.ClipTimeoutSeconds = defaultClipTimeoutSeconds
	}
	if p.ClipsPerMinute <= 0 {
		p.ClipsPerMinute = defaultClipsPerMinute
	}
}

func (c *Config) normalizeServices() {
	c.Script.APIKey = strings.TrimSpace(c.Script.APIKey)
	if c.Script.APIKey == "" {
		if value, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
			c.Script.APIKey = strings.TrimSpace(value)
		}
	}
	c.Script.BaseURL = strings.TrimSpace(c.Script.BaseURL)
	if c.Script.BaseURL == "" {
		c.Script.BaseURL = defaultScriptBaseURL
	}
	c.Script.Model = strings.TrimSpace(c.Script.Model)
	if c.Script.Model == "" {
		c.Script.Model = defaultScriptModel
	}
	if c.Script.TimeoutSeconds <= 0 {
		c.Script.TimeoutSeconds = defaultServiceTimeout
	}

	c.Image.APIKey = strings.TrimSpace(c.Image.APIKey)
	if c.Image.APIKey == "" {
		if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
			c.Image.APIKey = strings.TrimSpace(value)
		}
	}
	c.Image.BaseURL = strings.TrimSpace(c.Image.BaseURL)
	if c.Image.BaseURL == "" {
		c.Image.BaseURL = defaultImageBaseURL
	}
	c.Image.Model = strings.TrimSpace(c.Image.Model)
	if c.Image.Model == "" {
		c.Image.Model = defaultImageModel
	}
	if strings.TrimSpace(c.Image.Resolution) == "" {
		c.Image.Resolution = defaultImageResolution
	}
	if c.Image.TimeoutSeconds <= 0 {
		c.Image.TimeoutSeconds = defaultServiceTimeout
	}

	c.Video.APIKey = strings.TrimSpace(c.Video.APIKey)
	if c.Video.APIKey == "" {
		if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.Video.APIKey = strings.TrimSpace(value)
		}
	}
	c.Video.BaseURL = strings.TrimSpace(c.Video.BaseURL)
	c.Video.Quality = strings.ToLower(strings.TrimSpace(c.Video.Quality))
	if c.Video.Quality == "" {
		c.Video.Quality = defaultVideoQuality
	}
	if c.Video.TimeoutSeconds <= 0 {
		c.Video.TimeoutSeconds = defaultServiceTimeout
	}

	c.Publish.BaseURL = strings.TrimSpace(c.Publish.BaseURL)
	c.Publish.Token = strings.TrimSpace(c.Publish.Token)
	if c.Publish.Token == "" {
		if value, ok := os.LookupEnv("PADDOCK_PUBLISH_TOKEN"); ok {
			c.Publish.Token = strings.TrimSpace(value)
		}
	}
	c.Publish.Privacy = strings.ToLower(strings.TrimSpace(c.Publish.Privacy))
	if c.Publish.Privacy == "" {
		c.Publish.Privacy = defaultPublishPrivacy
	}
	if strings.TrimSpace(c.Publish.CategoryID) == "" {
		c.Publish.CategoryID = defaultPublishCategoryID
	}
	if c.Publish.TimeoutSeconds <= 0 {
		c.Publish.TimeoutSeconds = defaultServiceTimeout
	}

	if c.Workflow.JobPollInterval <= 0 {
		c.Workflow.JobPollInterval = defaultJobPollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
