package api

import (
	"context"
	"errors"
	"strings"

	"paddock/internal/calendar"
	"paddock/internal/gags"
	"paddock/internal/services"
)

// GagService exposes running-gag management returning API DTOs.
type GagService struct {
	store    *gags.Store
	selector *gags.Selector
}

// NewGagService constructs a GagService around the provided stores. The
// calendar store feeds the eligibility selector's cooldown arithmetic.
func NewGagService(store *gags.Store, races *calendar.Store) *GagService {
	if store == nil {
		return nil
	}
	return &GagService{
		store:    store,
		selector: gags.NewSelector(store, races, nil),
	}
}

// List returns gags filtered by status, category, and character.
func (s *GagService) List(ctx context.Context, status, category, character string) ([]Gag, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	filter := gags.ListFilter{
		Status:    gags.Status(strings.TrimSpace(status)),
		Category:  gags.Category(strings.TrimSpace(category)),
		Character: strings.TrimSpace(character),
	}
	list, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromGags(list), nil
}

// Describe fetches a single gag.
func (s *GagService) Describe(ctx context.Context, id int64) (*Gag, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	gag, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	dto := FromGag(gag)
	return &dto, nil
}

// Create registers a new running gag.
func (s *GagService) Create(ctx context.Context, req GagRequest) (*Gag, error) {
	if s == nil || s.store == nil {
		return nil, services.Categorize(errors.New("gag store unavailable"), services.ErrConfiguration)
	}
	gag := gagFromRequest(0, req)
	id, err := s.store.Create(ctx, gag)
	if err != nil {
		return nil, err
	}
	return s.Describe(ctx, id)
}

// Update rewrites a gag's descriptive fields from the request.
func (s *GagService) Update(ctx context.Context, id int64, req GagRequest) (*Gag, error) {
	if s == nil || s.store == nil {
		return nil, services.Categorize(errors.New("gag store unavailable"), services.ErrConfiguration)
	}
	gag := gagFromRequest(id, req)
	if err := s.store.Update(ctx, gag); err != nil {
		return nil, err
	}
	return s.Describe(ctx, id)
}

func gagFromRequest(id int64, req GagRequest) *gags.Gag {
	return &gags.Gag{
		ID:                 id,
		Name:               strings.TrimSpace(req.Name),
		Description:        strings.TrimSpace(req.Description),
		Category:           gags.Category(strings.TrimSpace(req.Category)),
		Character:          strings.TrimSpace(req.Character),
		SecondaryCharacter: strings.TrimSpace(req.SecondaryCharacter),
		Setup:              strings.TrimSpace(req.Setup),
		Punchline:          strings.TrimSpace(req.Punchline),
		Variations:         strings.TrimSpace(req.Variations),
		Origin:             strings.TrimSpace(req.Origin),
		Tags:               req.Tags,
		HumorRating:        req.HumorRating,
		MaxUses:            req.MaxUses,
		CooldownRaces:      req.CooldownRaces,
	}
}

// RateUsage scores one recorded deployment of a gag from audience feedback
// and returns the gag with its refreshed rating.
func (s *GagService) RateUsage(ctx context.Context, gagID, episodeID int64, sceneIndex int, rating float64) (*Gag, error) {
	if s == nil || s.store == nil {
		return nil, services.Categorize(errors.New("gag store unavailable"), services.ErrConfiguration)
	}
	if err := s.store.RateUsage(ctx, gagID, episodeID, sceneIndex, rating); err != nil {
		return nil, err
	}
	return s.Describe(ctx, gagID)
}

// Retire removes a gag from rotation permanently.
func (s *GagService) Retire(ctx context.Context, id int64) error {
	if s == nil || s.store == nil {
		return services.Categorize(errors.New("gag store unavailable"), services.ErrConfiguration)
	}
	return s.store.Retire(ctx, id)
}

// Revive brings a retired gag back into rotation.
func (s *GagService) Revive(ctx context.Context, id int64) error {
	if s == nil || s.store == nil {
		return services.Categorize(errors.New("gag store unavailable"), services.ErrConfiguration)
	}
	return s.store.Revive(ctx, id)
}

// Delete removes a gag and its usage history.
func (s *GagService) Delete(ctx context.Context, id int64) error {
	if s == nil || s.store == nil {
		return services.Categorize(errors.New("gag store unavailable"), services.ErrConfiguration)
	}
	return s.store.Delete(ctx, id)
}

// Eligible returns gags cleared for use in an episode anchored at the
// given season and round, best candidates first.
func (s *GagService) Eligible(ctx context.Context, characters []string, season, round, limit int) ([]Gag, error) {
	if s == nil || s.selector == nil {
		return nil, nil
	}
	list, err := s.selector.Eligible(ctx, gags.Query{
		Characters: characters,
		Season:     season,
		Round:      round,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	return FromGags(list), nil
}
