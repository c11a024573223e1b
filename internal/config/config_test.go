package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"paddock/internal/config"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.StagingDir = filepath.Join(dir, "staging")
	cfg.Paths.AssetsDir = filepath.Join(dir, "assets")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Scheduler.MaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", cfg.Scheduler.MaxRetries)
	}
	if cfg.OffWeekday().String() != "Friday" {
		t.Fatalf("expected Friday off-week weekday, got %s", cfg.OffWeekday())
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[scheduler]
post_race_delay_minutes = 45
off_week_gap_threshold_days = 10

[pipeline]
scene_fanout = 5

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be reported as existing")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Scheduler.PostRaceDelayMinutes != 45 {
		t.Fatalf("expected post_race_delay_minutes 45, got %d", cfg.Scheduler.PostRaceDelayMinutes)
	}
	if cfg.Scheduler.OffWeekGapThresholdDays != 10 {
		t.Fatalf("expected gap threshold 10, got %d", cfg.Scheduler.OffWeekGapThresholdDays)
	}
	if cfg.Pipeline.SceneFanout != 5 {
		t.Fatalf("expected scene fanout 5, got %d", cfg.Pipeline.SceneFanout)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[scheduler]
timezone = "Mars/Olympus_Mons"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestLocationReportsUnknownTimezone(t *testing.T) {
	cfg := config.Default()
	if loc, err := cfg.Location(); err != nil || loc == nil {
		t.Fatalf("default timezone must parse, got loc=%v err=%v", loc, err)
	}

	cfg.Scheduler.Timezone = "Mars/Olympus_Mons"
	if _, err := cfg.Location(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config to be reported as absent")
	}
	if cfg.Workflow.JobPollInterval != 30 {
		t.Fatalf("expected default poll interval, got %d", cfg.Workflow.JobPollInterval)
	}
}
