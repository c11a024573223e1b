package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"paddock/internal/calendar"
	"paddock/internal/services"
)

// CalendarService exposes race calendar operations returning API DTOs.
type CalendarService struct {
	store *calendar.Store
}

// NewCalendarService constructs a CalendarService around the provided store.
func NewCalendarService(store *calendar.Store) *CalendarService {
	if store == nil {
		return nil
	}
	return &CalendarService{store: store}
}

// ListSeason returns every stored race of a season in round order.
func (s *CalendarService) ListSeason(ctx context.Context, season int) ([]Race, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	races, err := s.store.ListSeason(ctx, season)
	if err != nil {
		return nil, err
	}
	return FromRaces(races), nil
}

// Upsert stores or updates one calendar entry.
func (s *CalendarService) Upsert(ctx context.Context, req RaceRequest) (*Race, error) {
	if s == nil || s.store == nil {
		return nil, services.Categorize(errors.New("calendar store unavailable"), services.ErrConfiguration)
	}
	race := &calendar.Race{
		Season:    req.Season,
		Round:     req.Round,
		Name:      strings.TrimSpace(req.Name),
		Circuit:   strings.TrimSpace(req.Circuit),
		Country:   strings.TrimSpace(req.Country),
		HasSprint: req.HasSprint,
	}
	var err error
	if race.RaceStart, err = parseRequired(req.RaceStart, "raceStart"); err != nil {
		return nil, err
	}
	if race.FP1Start, err = parseOptional(req.FP1Start, "fp1Start"); err != nil {
		return nil, err
	}
	if race.FP2Start, err = parseOptional(req.FP2Start, "fp2Start"); err != nil {
		return nil, err
	}
	if race.FP3Start, err = parseOptional(req.FP3Start, "fp3Start"); err != nil {
		return nil, err
	}
	if race.SprintQualifyingStart, err = parseOptional(req.SprintQualifyingStart, "sprintQualifyingStart"); err != nil {
		return nil, err
	}
	if race.SprintStart, err = parseOptional(req.SprintStart, "sprintStart"); err != nil {
		return nil, err
	}
	if race.QualifyingStart, err = parseOptional(req.QualifyingStart, "qualifyingStart"); err != nil {
		return nil, err
	}
	if _, err := s.store.Upsert(ctx, race); err != nil {
		return nil, err
	}
	dto := FromRace(race)
	return &dto, nil
}

func parseRequired(value, field string) (time.Time, error) {
	t, err := parseOptional(value, field)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, services.Categorize(errors.New(field+" is required"), services.ErrValidation)
	}
	return *t, nil
}

func parseOptional(value, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, services.Categorize(errors.New("invalid "+field+" timestamp"), services.ErrValidation)
	}
	return &t, nil
}
