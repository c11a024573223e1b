package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"paddock/internal/api"
	"paddock/internal/calendar"
	"paddock/internal/config"
	"paddock/internal/daemon"
	"paddock/internal/episodes"
	"paddock/internal/gags"
	"paddock/internal/schedule"
	"paddock/internal/testsupport"
)

type idleRunner struct{}

func (idleRunner) Run(context.Context, *schedule.Job) (int64, error) { return 0, nil }

func startDaemon(t *testing.T, mutate func(*config.Config)) (*daemon.Daemon, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	db := testsupport.MustOpenDB(t, cfg)

	jobs := schedule.NewStore(db)
	races := calendar.NewStore(db)
	scheduler := schedule.NewScheduler(jobs, races, cfg, nil)
	poller := schedule.NewPoller(scheduler, idleRunner{}, cfg, nil)

	d, err := daemon.New(daemon.Deps{
		Config:    cfg,
		DB:        db,
		Jobs:      jobs,
		Races:     races,
		Gags:      gags.NewStore(db),
		Episodes:  episodes.NewStore(db),
		Scheduler: scheduler,
		Poller:    poller,
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, cfg
}

func apiURL(d *daemon.Daemon, path string) string {
	return fmt.Sprintf("http://%s%s", d.APIAddr(), path)
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	d, cfg := startDaemon(t, nil)
	_ = d

	db2 := testsupport.MustOpenDB(t, cfg)
	jobs := schedule.NewStore(db2)
	races := calendar.NewStore(db2)
	scheduler := schedule.NewScheduler(jobs, races, cfg, nil)
	second, err := daemon.New(daemon.Deps{
		Config:    cfg,
		DB:        db2,
		Jobs:      jobs,
		Races:     races,
		Scheduler: scheduler,
		Poller:    schedule.NewPoller(scheduler, idleRunner{}, cfg, nil),
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}
}

func TestStatusEndpointRequiresToken(t *testing.T) {
	d, _ := startDaemon(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "sekrit"
	})

	resp, err := http.Get(apiURL(d, "/api/status"))
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, apiURL(d, "/api/status"), nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get status with token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}

	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.DatabasePath == "" {
		t.Fatalf("unexpected status payload %+v", status)
	}
}

func TestTriggerAndCancelOverAPI(t *testing.T) {
	d, _ := startDaemon(t, func(cfg *config.Config) {
		// keep the poller from claiming the job mid-test
		cfg.Workflow.JobPollInterval = 3600
	})

	body, _ := json.Marshal(api.TriggerRequest{TriggerKind: string(schedule.TriggerWeeklyRecap)})
	resp, err := http.Post(apiURL(d, "/api/jobs"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	var created api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode trigger response: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if created.Job.TriggerKind != string(schedule.TriggerWeeklyRecap) {
		t.Fatalf("unexpected job %+v", created.Job)
	}

	cancelURL := apiURL(d, fmt.Sprintf("/api/jobs/%d/cancel", created.Job.ID))
	resp, err = http.Post(cancelURL, "application/json", nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 cancelling, got %d", resp.StatusCode)
	}

	// Duplicate cancel is a validation error.
	resp, err = http.Post(cancelURL, "application/json", nil)
	if err != nil {
		t.Fatalf("cancel again: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 on duplicate cancel, got %d", resp.StatusCode)
	}
}

func TestForceTriggerOverAPI(t *testing.T) {
	d, _ := startDaemon(t, func(cfg *config.Config) {
		// keep the poller from claiming the job mid-test
		cfg.Workflow.JobPollInterval = 3600
	})

	body, _ := json.Marshal(api.TriggerRequest{TriggerKind: string(schedule.TriggerWeeklyRecap)})
	resp, err := http.Post(apiURL(d, "/api/jobs"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	var created api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode trigger response: %v", err)
	}
	resp.Body.Close()

	forceURL := apiURL(d, fmt.Sprintf("/api/jobs/%d/trigger", created.Job.ID))
	resp, err = http.Post(forceURL, "application/json", nil)
	if err != nil {
		t.Fatalf("force: %v", err)
	}
	var forced api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&forced); err != nil {
		t.Fatalf("decode force response: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 forcing scheduled job, got %d", resp.StatusCode)
	}
	if forced.Job.Status != string(schedule.JobScheduled) {
		t.Fatalf("expected forced job scheduled, got %s", forced.Job.Status)
	}
	scheduledFor, err := time.Parse(time.RFC3339Nano, forced.Job.ScheduledFor)
	if err != nil {
		t.Fatalf("parse scheduled_for: %v", err)
	}
	if scheduledFor.After(time.Now().Add(time.Minute)) {
		t.Fatalf("forced job must be due now, got %s", scheduledFor)
	}

	// A cancelled job cannot be forced.
	cancelURL := apiURL(d, fmt.Sprintf("/api/jobs/%d/cancel", created.Job.ID))
	resp, err = http.Post(cancelURL, "application/json", nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	resp.Body.Close()
	resp, err = http.Post(forceURL, "application/json", nil)
	if err != nil {
		t.Fatalf("force cancelled: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 forcing cancelled job, got %d", resp.StatusCode)
	}
}

func TestCalendarRoundTripOverAPI(t *testing.T) {
	d, _ := startDaemon(t, nil)

	race := api.RaceRequest{
		Season:    2026,
		Round:     12,
		Name:      "API GP",
		RaceStart: time.Now().Add(30 * 24 * time.Hour).UTC().Format(time.RFC3339),
	}
	body, _ := json.Marshal(race)
	resp, err := http.Post(apiURL(d, "/api/calendar"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("upsert race: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(apiURL(d, "/api/calendar?season=2026"))
	if err != nil {
		t.Fatalf("list races: %v", err)
	}
	defer resp.Body.Close()
	var listed api.RaceListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode races: %v", err)
	}
	if len(listed.Races) != 1 || listed.Races[0].Name != "API GP" {
		t.Fatalf("unexpected races %+v", listed.Races)
	}

	resp, err = http.Post(apiURL(d, "/api/calendar/sync"), "application/json", nil)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	defer resp.Body.Close()
	var sync api.SyncResponse
	if err := json.NewDecoder(resp.Body).Decode(&sync); err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	if sync.RaceJobs == 0 {
		t.Fatalf("expected sync to plan jobs, got %+v", sync)
	}
}

func TestUpcomingAndEligibleOverAPI(t *testing.T) {
	d, _ := startDaemon(t, func(cfg *config.Config) {
		cfg.Workflow.JobPollInterval = 3600
	})

	body, _ := json.Marshal(api.TriggerRequest{TriggerKind: string(schedule.TriggerWeeklyRecap)})
	resp, err := http.Post(apiURL(d, "/api/jobs"), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, err = http.Get(apiURL(d, "/api/jobs/upcoming?limit=5"))
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var upcoming api.JobListResponse
	if err := json.NewDecoder(resp.Body).Decode(&upcoming); err != nil {
		t.Fatalf("decode upcoming: %v", err)
	}
	if len(upcoming.Jobs) != 1 {
		t.Fatalf("expected 1 upcoming job, got %d", len(upcoming.Jobs))
	}

	gagBody, _ := json.Marshal(api.GagRequest{
		Name:        "safety-car-conga",
		Category:    "running_joke",
		HumorRating: 7,
	})
	resp, err = http.Post(apiURL(d, "/api/gags"), "application/json", bytes.NewReader(gagBody))
	if err != nil {
		t.Fatalf("create gag: %v", err)
	}
	var created api.GagResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode gag: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(apiURL(d, "/api/gags/eligible?season=2026&round=4"))
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	defer resp.Body.Close()
	var eligible api.GagListResponse
	if err := json.NewDecoder(resp.Body).Decode(&eligible); err != nil {
		t.Fatalf("decode eligible: %v", err)
	}
	if len(eligible.Gags) != 1 || eligible.Gags[0].Name != "safety-car-conga" {
		t.Fatalf("unexpected eligible gags %+v", eligible.Gags)
	}
}

func TestGagDeleteOverAPI(t *testing.T) {
	d, _ := startDaemon(t, nil)

	gagBody, _ := json.Marshal(api.GagRequest{
		Name:        "shortlived",
		Category:    "running_joke",
		HumorRating: 5,
	})
	resp, err := http.Post(apiURL(d, "/api/gags"), "application/json", bytes.NewReader(gagBody))
	if err != nil {
		t.Fatalf("create gag: %v", err)
	}
	var created api.GagResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode gag: %v", err)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, apiURL(d, fmt.Sprintf("/api/gags/%d", created.Gag.ID)), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete gag: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 deleting, got %d", resp.StatusCode)
	}

	resp, err = http.Get(apiURL(d, fmt.Sprintf("/api/gags/%d", created.Gag.ID)))
	if err != nil {
		t.Fatalf("get deleted gag: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestRetrySceneEndpointValidatesEpisode(t *testing.T) {
	d, _ := startDaemon(t, nil)

	resp, err := http.Post(apiURL(d, "/api/episodes/999/retry-scenes"), "application/json", nil)
	if err != nil {
		t.Fatalf("retry missing episode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown episode, got %d", resp.StatusCode)
	}
}
