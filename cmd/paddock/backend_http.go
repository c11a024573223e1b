package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"paddock/internal/api"
)

type httpBackend struct {
	base   string
	token  string
	client *http.Client
}

func newHTTPBackend(addr, token string) *httpBackend {
	return &httpBackend{
		base:   "http://" + addr,
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *httpBackend) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *httpBackend) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var status api.DaemonStatus
	if err := b.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (b *httpBackend) ListJobs(ctx context.Context, status, kind string, limit int) ([]api.Job, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if kind != "" {
		query.Set("kind", kind)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/jobs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp api.JobListResponse
	if err := b.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (b *httpBackend) UpcomingJobs(ctx context.Context, limit int) ([]api.Job, error) {
	path := "/api/jobs/upcoming"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp api.JobListResponse
	if err := b.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (b *httpBackend) DescribeJob(ctx context.Context, id int64) (*api.Job, error) {
	var resp api.JobResponse
	if err := b.do(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

func (b *httpBackend) TriggerJob(ctx context.Context, req api.TriggerRequest) (*api.Job, error) {
	var resp api.JobResponse
	if err := b.do(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

func (b *httpBackend) TriggerExistingJob(ctx context.Context, id int64) (*api.Job, error) {
	var resp api.JobResponse
	if err := b.do(ctx, http.MethodPost, fmt.Sprintf("/api/jobs/%d/trigger", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

func (b *httpBackend) CancelJob(ctx context.Context, id int64) error {
	return b.do(ctx, http.MethodPost, fmt.Sprintf("/api/jobs/%d/cancel", id), nil, nil)
}

func (b *httpBackend) ListGags(ctx context.Context, status, category, character string) ([]api.Gag, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if category != "" {
		query.Set("category", category)
	}
	if character != "" {
		query.Set("character", character)
	}
	path := "/api/gags"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp api.GagListResponse
	if err := b.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Gags, nil
}

func (b *httpBackend) DescribeGag(ctx context.Context, id int64) (*api.Gag, error) {
	var resp api.GagResponse
	if err := b.do(ctx, http.MethodGet, fmt.Sprintf("/api/gags/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Gag, nil
}

func (b *httpBackend) CreateGag(ctx context.Context, req api.GagRequest) (*api.Gag, error) {
	var resp api.GagResponse
	if err := b.do(ctx, http.MethodPost, "/api/gags", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Gag, nil
}

func (b *httpBackend) RateGag(ctx context.Context, id, episodeID int64, sceneIndex int, rating float64) (*api.Gag, error) {
	payload := api.RateGagRequest{HumorRating: rating, EpisodeID: episodeID, SceneIndex: sceneIndex}
	var resp api.GagResponse
	if err := b.do(ctx, http.MethodPost, fmt.Sprintf("/api/gags/%d/effectiveness", id), payload, &resp); err != nil {
		return nil, err
	}
	return &resp.Gag, nil
}

func (b *httpBackend) RetireGag(ctx context.Context, id int64) error {
	return b.do(ctx, http.MethodPost, fmt.Sprintf("/api/gags/%d/retire", id), nil, nil)
}

func (b *httpBackend) ReviveGag(ctx context.Context, id int64) error {
	return b.do(ctx, http.MethodPost, fmt.Sprintf("/api/gags/%d/revive", id), nil, nil)
}

func (b *httpBackend) ListRaces(ctx context.Context, season int) ([]api.Race, error) {
	var resp api.RaceListResponse
	if err := b.do(ctx, http.MethodGet, fmt.Sprintf("/api/calendar?season=%d", season), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Races, nil
}

func (b *httpBackend) UpsertRace(ctx context.Context, req api.RaceRequest) (*api.Race, error) {
	var race api.Race
	if err := b.do(ctx, http.MethodPut, "/api/calendar", req, &race); err != nil {
		return nil, err
	}
	return &race, nil
}

func (b *httpBackend) SyncCalendar(ctx context.Context) (*api.SyncResponse, error) {
	var resp api.SyncResponse
	if err := b.do(ctx, http.MethodPost, "/api/calendar/sync", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (b *httpBackend) ListEpisodes(ctx context.Context, status string, limit int) ([]api.Episode, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/episodes"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp api.EpisodeListResponse
	if err := b.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Episodes, nil
}

func (b *httpBackend) DescribeEpisode(ctx context.Context, id int64) (*api.Episode, error) {
	var resp api.EpisodeResponse
	if err := b.do(ctx, http.MethodGet, fmt.Sprintf("/api/episodes/%d", id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Episode, nil
}

func (b *httpBackend) Close() error { return nil }
