package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StagingDir string `toml:"staging_dir"`
	AssetsDir  string `toml:"assets_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Scheduler contains calendar sync and job timing configuration.
type Scheduler struct {
	Timezone                string `toml:"timezone"`
	LookaheadDays           int    `toml:"lookahead_days"`
	PostFP2DelayMinutes     int    `toml:"post_fp2_delay_minutes"`
	PostSprintDelayMinutes  int    `toml:"post_sprint_delay_minutes"`
	PostRaceDelayMinutes    int    `toml:"post_race_delay_minutes"`
	OffWeekGapThresholdDays int    `toml:"off_week_gap_threshold_days"`
	OffWeekWeekday          string `toml:"off_week_weekday"`
	OffWeekHour             int    `toml:"off_week_hour"`
	MaxRetries              int    `toml:"max_retries"`
	RetryBackoffMinutes     int    `toml:"retry_backoff_minutes"`
	PendingBatchSize        int    `toml:"pending_batch_size"`
	Workers                 int    `toml:"workers"`
}

// Continuity contains running-gag selection configuration.
type Continuity struct {
	MaxGagsPerEpisode    int `toml:"max_gags_per_episode"`
	DefaultCooldownRaces int `toml:"default_cooldown_races"`
}

// Pipeline contains per-job generation pipeline configuration.
type Pipeline struct {
	SceneCount              int `toml:"scene_count"`
	SceneFanout             int `toml:"scene_fanout"`
	SceneMaxRetries         int `toml:"scene_max_retries"`
	StageAttempts           int `toml:"stage_attempts"`
	StageBackoffSeconds     int `toml:"stage_backoff_seconds"`
	StageBackoffMaxSeconds  int `toml:"stage_backoff_max_seconds"`
	ClipPollIntervalSeconds int `toml:"clip_poll_interval_seconds"`
	ClipTimeoutSeconds      int `toml:"clip_timeout_seconds"`
	ClipsPerMinute          int `toml:"clips_per_minute"`
}

// Script contains configuration for the script generation service.
type Script struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Image contains configuration for the scene image generation service.
type Image struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Resolution     string `toml:"resolution"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Video contains configuration for the video clip generation service.
type Video struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Quality        string `toml:"quality"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Publish contains configuration for the publishing integration.
type Publish struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	Privacy        string `toml:"privacy"`
	CategoryID     string `toml:"category_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	JobPollInterval    int `toml:"job_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Paddock.
//
// Configuration sections by subsystem:
//   - Paths: data/staging/assets directories and API bind address
//   - Scheduler: calendar sync windows, trigger delays, retry policy
//   - Continuity: running-gag selection limits
//   - Pipeline: scene fan-out, stage retry, and clip polling settings
//   - Script/Image/Video: external generation service connections
//   - Publish: video publishing integration
//   - Workflow: daemon polling intervals
//   - Logging: log format, level, and retention
type Config struct {
	Paths      Paths      `toml:"paths"`
	Scheduler  Scheduler  `toml:"scheduler"`
	Continuity Continuity `toml:"continuity"`
	Pipeline   Pipeline   `toml:"pipeline"`
	Script     Script     `toml:"script"`
	Image      Image      `toml:"image"`
	Video      Video      `toml:"video"`
	Publish    Publish    `toml:"publish"`
	Workflow   Workflow   `toml:"workflow"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/paddock/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/paddock/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("paddock.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StagingDir, c.Paths.AssetsDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the SQLite database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "paddock.db")
}

// FFmpegBinary returns the ffmpeg executable name used for clip stitching.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
