package config

const (
	defaultDataDir    = "~/.local/share/paddock"
	defaultStagingDir = "~/.local/share/paddock/staging"
	defaultAssetsDir  = "~/.local/share/paddock/assets"
	defaultLogDir     = "~/.local/share/paddock/logs"
	defaultAPIBind    = "127.0.0.1:7591"

	defaultTimezone                = "Africa/Johannesburg"
	defaultLookaheadDays           = 60
	defaultPostFP2DelayMinutes     = 60
	defaultPostSprintDelayMinutes  = 60
	defaultPostRaceDelayMinutes    = 120
	defaultOffWeekGapThresholdDays = 14
	defaultOffWeekWeekday          = "friday"
	defaultOffWeekHour             = 7
	defaultMaxRetries              = 3
	defaultRetryBackoffMinutes     = 30
	defaultPendingBatchSize        = 10
	defaultSchedulerWorkers        = 2

	defaultMaxGagsPerEpisode    = 3
	defaultCooldownRaces        = 2
	defaultSceneCount           = 24
	defaultSceneFanout          = 3
	defaultSceneMaxRetries      = 3
	defaultStageAttempts        = 3
	defaultStageBackoffSeconds  = 5
	defaultStageBackoffMax      = 300
	defaultClipPollInterval     = 10
	defaultClipTimeoutSeconds   = 300
	defaultClipsPerMinute       = 6
	defaultServiceTimeout       = 120
	defaultScriptBaseURL        = "https://api.anthropic.com/v1/messages"
	defaultScriptModel          = "claude-sonnet-4-20250514"
	defaultImageBaseURL         = "https://generativelanguage.googleapis.com/v1beta"
	defaultImageModel           = "gemini-2.5-flash-image"
	defaultImageResolution      = "1280x720"
	defaultVideoQuality         = "high"
	defaultPublishPrivacy       = "public"
	defaultPublishCategoryID    = "17"
	defaultJobPollInterval      = 30
	defaultErrorRetryInterval   = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			AssetsDir:  defaultAssetsDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Scheduler: Scheduler{
			Timezone:                defaultTimezone,
			LookaheadDays:           defaultLookaheadDays,
			PostFP2DelayMinutes:     defaultPostFP2DelayMinutes,
			PostSprintDelayMinutes:  defaultPostSprintDelayMinutes,
			PostRaceDelayMinutes:    defaultPostRaceDelayMinutes,
			OffWeekGapThresholdDays: defaultOffWeekGapThresholdDays,
			OffWeekWeekday:          defaultOffWeekWeekday,
			OffWeekHour:             defaultOffWeekHour,
			MaxRetries:              defaultMaxRetries,
			RetryBackoffMinutes:     defaultRetryBackoffMinutes,
			PendingBatchSize:        defaultPendingBatchSize,
			Workers:                 defaultSchedulerWorkers,
		},
		Continuity: Continuity{
			MaxGagsPerEpisode:    defaultMaxGagsPerEpisode,
			DefaultCooldownRaces: defaultCooldownRaces,
		},
		Pipeline: Pipeline{
			SceneCount:              defaultSceneCount,
			SceneFanout:             defaultSceneFanout,
			SceneMaxRetries:         defaultSceneMaxRetries,
			StageAttempts:           defaultStageAttempts,
			StageBackoffSeconds:     defaultStageBackoffSeconds,
			StageBackoffMaxSeconds:  defaultStageBackoffMax,
			ClipPollIntervalSeconds: defaultClipPollInterval,
			ClipTimeoutSeconds:      defaultClipTimeoutSeconds,
			ClipsPerMinute:          defaultClipsPerMinute,
		},
		Script: Script{
			BaseURL:        defaultScriptBaseURL,
			Model:          defaultScriptModel,
			TimeoutSeconds: defaultServiceTimeout,
		},
		Image: Image{
			BaseURL:        defaultImageBaseURL,
			Model:          defaultImageModel,
			Resolution:     defaultImageResolution,
			TimeoutSeconds: defaultServiceTimeout,
		},
		Video: Video{
			Quality:        defaultVideoQuality,
			TimeoutSeconds: defaultServiceTimeout,
		},
		Publish: Publish{
			Privacy:        defaultPublishPrivacy,
			CategoryID:     defaultPublishCategoryID,
			TimeoutSeconds: defaultServiceTimeout,
		},
		Workflow: Workflow{
			JobPollInterval:    defaultJobPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
