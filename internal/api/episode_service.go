package api

import (
	"context"
	"errors"
	"strings"

	"paddock/internal/episodes"
	"paddock/internal/services"
)

// SceneRetrier re-renders failed scenes and resumes the production
// pipeline for an episode.
type SceneRetrier interface {
	RetryScenes(ctx context.Context, episodeID int64, sceneNumbers []int) error
}

// EpisodeService exposes episode queries and scene retries returning
// API DTOs.
type EpisodeService struct {
	store   *episodes.Store
	retrier SceneRetrier
}

// NewEpisodeService constructs an EpisodeService around the provided
// store. The retrier may be nil for read-only surfaces.
func NewEpisodeService(store *episodes.Store, retrier SceneRetrier) *EpisodeService {
	if store == nil {
		return nil
	}
	return &EpisodeService{store: store, retrier: retrier}
}

// List returns episodes filtered by status, newest first.
func (s *EpisodeService) List(ctx context.Context, status string, limit int) ([]Episode, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	list, err := s.store.List(ctx, episodes.Status(strings.TrimSpace(status)), limit)
	if err != nil {
		return nil, err
	}
	return FromEpisodes(list), nil
}

// Describe fetches a single episode along with its scenes.
func (s *EpisodeService) Describe(ctx context.Context, id int64) (*Episode, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	episode, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	dto := FromEpisode(episode)
	scenes, err := s.store.Scenes(ctx, id)
	if err != nil {
		return nil, err
	}
	dto.Scenes = FromScenes(scenes)
	return &dto, nil
}

// RetryScenes regenerates the named scenes of a failed episode and
// resumes the pipeline. An empty list retries every failed scene.
func (s *EpisodeService) RetryScenes(ctx context.Context, id int64, sceneNumbers []int) (*Episode, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	if s.retrier == nil {
		return nil, services.Categorize(errors.New("scene retries require the running daemon"), services.ErrConfiguration)
	}
	if err := s.retrier.RetryScenes(ctx, id, sceneNumbers); err != nil {
		return nil, err
	}
	return s.Describe(ctx, id)
}
