package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	return c.validateWorkflow()
}

func (c *Config) validateScheduler() error {
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: unknown location %q", c.Scheduler.Timezone)
	}
	if _, ok := weekdayNames[c.Scheduler.OffWeekWeekday]; !ok {
		return fmt.Errorf("scheduler.off_week_weekday: unknown weekday %q", c.Scheduler.OffWeekWeekday)
	}
	if err := ensurePositiveMap(map[string]int{
		"scheduler.lookahead_days":              c.Scheduler.LookaheadDays,
		"scheduler.off_week_gap_threshold_days": c.Scheduler.OffWeekGapThresholdDays,
		"scheduler.max_retries":                 c.Scheduler.MaxRetries,
		"scheduler.retry_backoff_minutes":       c.Scheduler.RetryBackoffMinutes,
		"scheduler.pending_batch_size":          c.Scheduler.PendingBatchSize,
		"scheduler.workers":                     c.Scheduler.Workers,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.scene_count":                c.Pipeline.SceneCount,
		"pipeline.scene_fanout":               c.Pipeline.SceneFanout,
		"pipeline.scene_max_retries":          c.Pipeline.SceneMaxRetries,
		"pipeline.stage_attempts":             c.Pipeline.StageAttempts,
		"pipeline.stage_backoff_seconds":      c.Pipeline.StageBackoffSeconds,
		"pipeline.clip_poll_interval_seconds": c.Pipeline.ClipPollIntervalSeconds,
		"pipeline.clip_timeout_seconds":       c.Pipeline.ClipTimeoutSeconds,
		"pipeline.clips_per_minute":           c.Pipeline.ClipsPerMinute,
	}); err != nil {
		return err
	}
	if c.Pipeline.StageBackoffMaxSeconds < c.Pipeline.StageBackoffSeconds {
		return errors.New("pipeline.stage_backoff_max_seconds must be >= pipeline.stage_backoff_seconds")
	}
	return nil
}

func (c *Config) validatePublish() error {
	if !c.Publish.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Publish.BaseURL) == "" {
		return errors.New("publish.base_url must be set when publish.enabled is true")
	}
	if strings.TrimSpace(c.Publish.Token) == "" {
		return errors.New("publish.token must be set when publish.enabled is true (or set PADDOCK_PUBLISH_TOKEN)")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.job_poll_interval":    c.Workflow.JobPollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
	})
}

// OffWeekday returns the parsed off-week weekday. Call after Validate.
func (c *Config) OffWeekday() time.Weekday {
	if day, ok := weekdayNames[c.Scheduler.OffWeekWeekday]; ok {
		return day
	}
	return time.Friday
}

// Location returns the parsed scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: unknown location %q", c.Scheduler.Timezone)
	}
	return loc, nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
