package gags

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"paddock/internal/calendar"
	"paddock/internal/logging"
)

// Selector picks which running gags an episode should call back to.
type Selector struct {
	gags     *Store
	calendar *calendar.Store
	logger   *slog.Logger
}

// NewSelector builds a selector over the gag and calendar stores.
func NewSelector(gagStore *Store, calendarStore *calendar.Store, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Selector{
		gags:     gagStore,
		calendar: calendarStore,
		logger:   logging.NewComponentLogger(logger, "continuity"),
	}
}

// Query scopes an eligibility pass to one episode.
type Query struct {
	// Characters featuring in the episode. Universal gags always qualify.
	// An empty list disables the character filter entirely, which is what
	// the pipeline wants before the script has decided the cast.
	Characters []string
	// Season and Round locate the episode for cooldown distance.
	Season int
	Round  int
	// Limit caps how many gags are returned. Zero means no cap.
	Limit int
}

// candidate pairs a gag with its cooldown arithmetic for ranking.
type candidate struct {
	gag        *Gag
	racesSince int
}

// Eligible returns gags ready for use in the queried episode, best first.
// Ranking: humor rating descending, then smallest remaining cooldown debt,
// then least-used. Exhausted and retired gags never qualify; a cooling gag
// qualifies once its cooldown distance has elapsed and is flipped back to
// active as a side effect.
func (s *Selector) Eligible(ctx context.Context, query Query) ([]*Gag, error) {
	all, err := s.gags.List(ctx, ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("load gag pool: %w", err)
	}

	characters := make(map[string]struct{}, len(query.Characters))
	for _, name := range query.Characters {
		characters[name] = struct{}{}
	}

	var candidates []candidate
	for _, gag := range all {
		if gag.Status == StatusRetired || gag.Status == StatusExhausted {
			continue
		}
		if gag.Exhaustible() && gag.TimesUsed >= gag.MaxUses {
			continue
		}
		if len(characters) > 0 && !gag.IsUniversal() {
			_, primary := characters[gag.Character]
			_, secondary := characters[gag.SecondaryCharacter]
			if !primary && !secondary {
				continue
			}
		}

		racesSince, err := s.racesSinceLastUse(ctx, gag, query.Season, query.Round)
		if err != nil {
			return nil, err
		}
		if racesSince < gag.CooldownRaces {
			continue
		}

		if gag.Status == StatusCoolingDown {
			if err := s.gags.Transition(ctx, gag.ID, StatusCoolingDown, StatusActive); err != nil {
				s.logger.Warn("reactivate cooled gag",
					logging.Args(logging.Int64("gag_id", gag.ID), logging.Error(err))...)
			} else {
				gag.Status = StatusActive
			}
		}

		candidates = append(candidates, candidate{gag: gag, racesSince: racesSince})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.gag.HumorRating != b.gag.HumorRating {
			return a.gag.HumorRating > b.gag.HumorRating
		}
		debtA := a.gag.CooldownRaces - a.racesSince
		debtB := b.gag.CooldownRaces - b.racesSince
		if debtA != debtB {
			return debtA < debtB
		}
		return a.gag.TimesUsed < b.gag.TimesUsed
	})

	result := make([]*Gag, 0, len(candidates))
	for _, c := range candidates {
		result = append(result, c.gag)
		if query.Limit > 0 && len(result) >= query.Limit {
			break
		}
	}
	return result, nil
}

// racesSinceLastUse measures cooldown distance in completed rounds. A gag
// that has never been used is always past its cooldown.
func (s *Selector) racesSinceLastUse(ctx context.Context, gag *Gag, season, round int) (int, error) {
	if gag.LastUsedSeason == nil || gag.LastUsedRound == nil {
		return gag.CooldownRaces, nil
	}
	count, err := s.calendar.CountRoundsBetween(ctx, *gag.LastUsedSeason, *gag.LastUsedRound, season, round)
	if err != nil {
		return 0, fmt.Errorf("cooldown distance for gag %d: %w", gag.ID, err)
	}
	return count, nil
}
